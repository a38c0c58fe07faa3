package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/billman/internal/model"
)

// PostgresDatasetRepo はインポート機能のためのユーザーデータ一括置換リポジトリ。
type PostgresDatasetRepo struct {
	db *sql.DB
}

// NewPostgresDatasetRepo はPostgresDatasetRepoを生成する。
func NewPostgresDatasetRepo(db *sql.DB) *PostgresDatasetRepo {
	return &PostgresDatasetRepo{db: db}
}

// ReplaceUserData はユーザーの顧客・請求書コレクションを
// 同一トランザクションで丸ごと置き換える。マージは行わない。
// 途中で失敗した場合はロールバックされ、既存データは保持される。
func (r *PostgresDatasetRepo) ReplaceUserData(ctx context.Context, userID string, clients []*model.Client, invoices []*model.Invoice) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM invoices WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to clear invoices: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM clients WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to clear clients: %w", err)
	}

	for _, client := range clients {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO clients (id, user_id, name, email, address, phone, company, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			client.ID, userID, client.Name, client.Email,
			client.Address, client.Phone, client.Company, client.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert imported client: %w", err)
		}
	}

	for _, invoice := range invoices {
		itemsJSON, err := encodeJSONB(invoice.Items)
		if err != nil {
			return err
		}
		emailLogsJSON, err := encodeJSONB(invoice.EmailLogs)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO invoices (
				id, user_id, invoice_number, client_id,
				client_name, client_email, client_address, client_phone,
				issue_date, due_date, status, items,
				subtotal, tax_rate, tax_amount, discount_rate, discount_amount, total,
				notes, template, currency, signature, qr_payload, email_logs,
				created_at, updated_at
			 ) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
				$14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26
			 )`,
			invoice.ID, userID, invoice.InvoiceNumber, invoice.ClientID,
			invoice.ClientName, invoice.ClientEmail, invoice.ClientAddress, invoice.ClientPhone,
			invoice.IssueDate, invoice.DueDate, string(invoice.Status), itemsJSON,
			invoice.Subtotal, invoice.TaxRate, invoice.TaxAmount,
			invoice.DiscountRate, invoice.DiscountAmount, invoice.Total,
			invoice.Notes, string(invoice.Template), invoice.Currency,
			invoice.Signature, invoice.QRPayload, emailLogsJSON,
			invoice.CreatedAt, invoice.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert imported invoice: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// compile-time interface check
var _ DatasetRepository = (*PostgresDatasetRepo)(nil)
