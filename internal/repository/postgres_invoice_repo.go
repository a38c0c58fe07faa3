package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/billman/internal/model"
)

// PostgresInvoiceRepo はPostgreSQLを使用した請求書リポジトリ。
// 明細行（items）とメール送信履歴（email_logs）はJSONBカラムとして保存する。
// 明細は親請求書に排他的に所有され独立したライフサイクルを持たないため、
// 正規化テーブルではなくJSONBで十分であり、請求書の読み書きが1行で完結する。
type PostgresInvoiceRepo struct {
	db *sql.DB
}

// NewPostgresInvoiceRepo はPostgresInvoiceRepoを生成する。
func NewPostgresInvoiceRepo(db *sql.DB) *PostgresInvoiceRepo {
	return &PostgresInvoiceRepo{db: db}
}

// invoiceColumns はSELECT句で使用するカラムリスト。scanInvoiceと順序を一致させること。
const invoiceColumns = `id, user_id, invoice_number, client_id,
	client_name, client_email, client_address, client_phone,
	issue_date, due_date, status, items,
	subtotal, tax_rate, tax_amount, discount_rate, discount_amount, total,
	notes, template, currency, signature, qr_payload, email_logs,
	created_at, updated_at`

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanInvoice は1行をInvoiceにスキャンする。
// JSONBカラムの内容が壊れている場合は空のリストとして扱い、警告ログを出す
// （破損した永続データで読み取り側をクラッシュさせない）。
func scanInvoice(row rowScanner) (*model.Invoice, error) {
	inv := &model.Invoice{}
	var itemsJSON, emailLogsJSON []byte

	err := row.Scan(
		&inv.ID, &inv.UserID, &inv.InvoiceNumber, &inv.ClientID,
		&inv.ClientName, &inv.ClientEmail, &inv.ClientAddress, &inv.ClientPhone,
		&inv.IssueDate, &inv.DueDate, &inv.Status, &itemsJSON,
		&inv.Subtotal, &inv.TaxRate, &inv.TaxAmount, &inv.DiscountRate, &inv.DiscountAmount, &inv.Total,
		&inv.Notes, &inv.Template, &inv.Currency, &inv.Signature, &inv.QRPayload, &emailLogsJSON,
		&inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	inv.Items = decodeLineItems(inv.ID, itemsJSON)
	inv.EmailLogs = decodeEmailLogs(inv.ID, emailLogsJSON)

	return inv, nil
}

// decodeLineItems はJSONBの明細リストをデコードする。破損時は空リストを返す。
func decodeLineItems(invoiceID string, data []byte) []model.LineItem {
	if len(data) == 0 {
		return []model.LineItem{}
	}
	var items []model.LineItem
	if err := json.Unmarshal(data, &items); err != nil {
		slog.Warn("請求書の明細データが破損しているため空として扱います",
			slog.String("invoice_id", invoiceID),
			slog.String("error", err.Error()),
		)
		return []model.LineItem{}
	}
	return items
}

// decodeEmailLogs はJSONBのメール送信履歴をデコードする。破損時は空リストを返す。
func decodeEmailLogs(invoiceID string, data []byte) []model.EmailLog {
	if len(data) == 0 {
		return nil
	}
	var logs []model.EmailLog
	if err := json.Unmarshal(data, &logs); err != nil {
		slog.Warn("請求書のメール送信履歴が破損しているため空として扱います",
			slog.String("invoice_id", invoiceID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return logs
}

// encodeJSONB はスライスをJSONBカラム用にエンコードする。
func encodeJSONB(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode JSONB column: %w", err)
	}
	return data, nil
}

// FindByID はユーザーIDと請求書IDで請求書を取得する。見つからない場合はnilを返す。
func (r *PostgresInvoiceRepo) FindByID(ctx context.Context, userID, id string) (*model.Invoice, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE user_id = $1 AND id = $2`,
		userID, id,
	)

	inv, err := scanInvoice(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find invoice: %w", err)
	}

	return inv, nil
}

// queryInvoices はクエリを実行し、結果をInvoiceスライスにスキャンする。
func (r *PostgresInvoiceRepo) queryInvoices(ctx context.Context, query string, args ...any) ([]*model.Invoice, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	var invoices []*model.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate invoices: %w", err)
	}

	return invoices, nil
}

// ListByUserID はユーザーの請求書一覧を作成日時の降順（新しい順）で返す。
func (r *PostgresInvoiceRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Invoice, error) {
	return r.queryInvoices(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC`,
		userID,
	)
}

// Search は請求書番号・顧客名・備考に対する大文字小文字を区別しない部分一致検索を行う。
func (r *PostgresInvoiceRepo) Search(ctx context.Context, userID, query string) ([]*model.Invoice, error) {
	pattern := "%" + escapeLikePattern(query) + "%"
	return r.queryInvoices(ctx,
		`SELECT `+invoiceColumns+` FROM invoices
		 WHERE user_id = $1
		   AND (invoice_number ILIKE $2 OR client_name ILIKE $2 OR notes ILIKE $2)
		 ORDER BY created_at DESC, id DESC`,
		userID, pattern,
	)
}

// escapeLikePattern はLIKE/ILIKEパターンのメタ文字をエスケープする。
func escapeLikePattern(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(s)
}

// ListFiltered は構造化フィルタ（AND条件）で請求書を絞り込む。
// 未指定のフィルタ項目は制約なしとして扱う。
// 日付は発行日に対する両端を含む範囲、金額は合計に対する両端を含む範囲で比較する。
func (r *PostgresInvoiceRepo) ListFiltered(ctx context.Context, userID string, filter model.InvoiceFilter) ([]*model.Invoice, error) {
	conditions := []string{"user_id = $1"}
	args := []any{userID}

	appendCond := func(cond string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if filter.Status != nil {
		appendCond("status = $%d", string(*filter.Status))
	}
	if filter.DateFrom != nil {
		appendCond("issue_date >= $%d", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		appendCond("issue_date <= $%d", *filter.DateTo)
	}
	if filter.MinAmount != nil {
		appendCond("total >= $%d", *filter.MinAmount)
	}
	if filter.MaxAmount != nil {
		appendCond("total <= $%d", *filter.MaxAmount)
	}

	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE ` +
		strings.Join(conditions, " AND ") +
		` ORDER BY created_at DESC, id DESC`

	return r.queryInvoices(ctx, query, args...)
}

// Create は請求書を作成する。
func (r *PostgresInvoiceRepo) Create(ctx context.Context, invoice *model.Invoice) error {
	itemsJSON, err := encodeJSONB(invoice.Items)
	if err != nil {
		return err
	}
	emailLogsJSON, err := encodeJSONB(invoice.EmailLogs)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
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
		invoice.ID, invoice.UserID, invoice.InvoiceNumber, invoice.ClientID,
		invoice.ClientName, invoice.ClientEmail, invoice.ClientAddress, invoice.ClientPhone,
		invoice.IssueDate, invoice.DueDate, string(invoice.Status), itemsJSON,
		invoice.Subtotal, invoice.TaxRate, invoice.TaxAmount, invoice.DiscountRate, invoice.DiscountAmount, invoice.Total,
		invoice.Notes, string(invoice.Template), invoice.Currency, invoice.Signature, invoice.QRPayload, emailLogsJSON,
		invoice.CreatedAt, invoice.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert invoice: %w", err)
	}
	return nil
}

// Update は請求書を上書き更新する。マージと金額の再計算はサービス層で行う。
func (r *PostgresInvoiceRepo) Update(ctx context.Context, invoice *model.Invoice) error {
	itemsJSON, err := encodeJSONB(invoice.Items)
	if err != nil {
		return err
	}
	emailLogsJSON, err := encodeJSONB(invoice.EmailLogs)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE invoices SET
			invoice_number = $3, client_id = $4,
			client_name = $5, client_email = $6, client_address = $7, client_phone = $8,
			issue_date = $9, due_date = $10, status = $11, items = $12,
			subtotal = $13, tax_rate = $14, tax_amount = $15,
			discount_rate = $16, discount_amount = $17, total = $18,
			notes = $19, template = $20, currency = $21,
			signature = $22, qr_payload = $23, email_logs = $24,
			updated_at = $25
		 WHERE user_id = $1 AND id = $2`,
		invoice.UserID, invoice.ID, invoice.InvoiceNumber, invoice.ClientID,
		invoice.ClientName, invoice.ClientEmail, invoice.ClientAddress, invoice.ClientPhone,
		invoice.IssueDate, invoice.DueDate, string(invoice.Status), itemsJSON,
		invoice.Subtotal, invoice.TaxRate, invoice.TaxAmount,
		invoice.DiscountRate, invoice.DiscountAmount, invoice.Total,
		invoice.Notes, string(invoice.Template), invoice.Currency,
		invoice.Signature, invoice.QRPayload, emailLogsJSON,
		invoice.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update invoice: %w", err)
	}
	return nil
}

// Delete はユーザーIDと請求書IDで請求書を削除する。
// 存在しない場合は何もせずに正常終了する（冪等）。
func (r *PostgresInvoiceRepo) Delete(ctx context.Context, userID, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM invoices WHERE user_id = $1 AND id = $2`,
		userID, id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete invoice: %w", err)
	}
	return nil
}

// StatsByUserID は請求書のステータス別件数と売上集計をSQLで算出する。
func (r *PostgresInvoiceRepo) StatsByUserID(ctx context.Context, userID string) (*InvoiceStats, error) {
	stats := &InvoiceStats{}
	err := r.db.QueryRowContext(ctx,
		`SELECT
			COALESCE(SUM(total), 0),
			COALESCE(SUM(total) FILTER (WHERE status = 'paid'), 0),
			COALESCE(SUM(total) FILTER (WHERE status = 'sent'), 0),
			COALESCE(SUM(total) FILTER (WHERE status = 'overdue'), 0),
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'draft'),
			COUNT(*) FILTER (WHERE status = 'sent'),
			COUNT(*) FILTER (WHERE status = 'paid'),
			COUNT(*) FILTER (WHERE status = 'overdue')
		 FROM invoices WHERE user_id = $1`,
		userID,
	).Scan(
		&stats.TotalRevenue, &stats.PaidRevenue, &stats.PendingRevenue, &stats.OverdueRevenue,
		&stats.TotalCount, &stats.DraftCount, &stats.SentCount, &stats.PaidCount, &stats.OverdueCount,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate invoice stats: %w", err)
	}

	return stats, nil
}

// compile-time interface check
var _ InvoiceRepository = (*PostgresInvoiceRepo)(nil)
