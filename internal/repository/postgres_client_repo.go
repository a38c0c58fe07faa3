package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/billman/internal/model"
)

// PostgresClientRepo はPostgreSQLを使用した顧客リポジトリ。
type PostgresClientRepo struct {
	db *sql.DB
}

// NewPostgresClientRepo はPostgresClientRepoを生成する。
func NewPostgresClientRepo(db *sql.DB) *PostgresClientRepo {
	return &PostgresClientRepo{db: db}
}

// FindByID はユーザーIDと顧客IDで顧客を取得する。見つからない場合はnilを返す。
func (r *PostgresClientRepo) FindByID(ctx context.Context, userID, id string) (*model.Client, error) {
	client := &model.Client{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, email, address, phone, company, created_at
		 FROM clients WHERE user_id = $1 AND id = $2`,
		userID, id,
	).Scan(&client.ID, &client.UserID, &client.Name, &client.Email,
		&client.Address, &client.Phone, &client.Company, &client.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find client: %w", err)
	}

	return client, nil
}

// ListByUserID はユーザーの顧客一覧を作成日時の降順（新しい順）で返す。
func (r *PostgresClientRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Client, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, name, email, address, phone, company, created_at
		 FROM clients WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	var clients []*model.Client
	for rows.Next() {
		client := &model.Client{}
		if err := rows.Scan(&client.ID, &client.UserID, &client.Name, &client.Email,
			&client.Address, &client.Phone, &client.Company, &client.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		clients = append(clients, client)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate clients: %w", err)
	}

	return clients, nil
}

// Create は顧客を作成する。
func (r *PostgresClientRepo) Create(ctx context.Context, client *model.Client) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO clients (id, user_id, name, email, address, phone, company, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		client.ID, client.UserID, client.Name, client.Email,
		client.Address, client.Phone, client.Company, client.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert client: %w", err)
	}
	return nil
}

// Update は顧客情報を上書き更新する。マージはサービス層で行う。
func (r *PostgresClientRepo) Update(ctx context.Context, client *model.Client) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE clients SET name = $3, email = $4, address = $5, phone = $6, company = $7
		 WHERE user_id = $1 AND id = $2`,
		client.UserID, client.ID, client.Name, client.Email,
		client.Address, client.Phone, client.Company,
	)
	if err != nil {
		return fmt.Errorf("failed to update client: %w", err)
	}
	return nil
}

// DeleteWithDetach は顧客を削除し、同一トランザクションで
// その顧客を参照する請求書のclient_idを空にする。
// 顧客が存在しない場合は何もせずに正常終了する（冪等）。
func (r *PostgresClientRepo) DeleteWithDetach(ctx context.Context, userID, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 参照している請求書から切り離す（スナップショットは残す）
	_, err = tx.ExecContext(ctx,
		`UPDATE invoices SET client_id = '' WHERE user_id = $1 AND client_id = $2`,
		userID, id,
	)
	if err != nil {
		return fmt.Errorf("failed to detach invoices: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM clients WHERE user_id = $1 AND id = $2`,
		userID, id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// compile-time interface check
var _ ClientRepository = (*PostgresClientRepo)(nil)
