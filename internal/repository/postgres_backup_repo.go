package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/billman/internal/model"
)

// PostgresBackupRepo はPostgreSQLを使用したスナップショットリポジトリ。
type PostgresBackupRepo struct {
	db *sql.DB
}

// NewPostgresBackupRepo はPostgresBackupRepoを生成する。
func NewPostgresBackupRepo(db *sql.DB) *PostgresBackupRepo {
	return &PostgresBackupRepo{db: db}
}

// Create はスナップショットを作成する。
func (r *PostgresBackupRepo) Create(ctx context.Context, backup *model.Backup) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO backups (id, user_id, key, data, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		backup.ID, backup.UserID, backup.Key, backup.Data, backup.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create backup: %w", err)
	}
	return nil
}

// ListByUserID はユーザーのスナップショット一覧をキーの昇順（古い順）で返す。
func (r *PostgresBackupRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Backup, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, key, data, created_at
		 FROM backups WHERE user_id = $1
		 ORDER BY key ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}
	defer rows.Close()

	var backups []*model.Backup
	for rows.Next() {
		backup := &model.Backup{}
		if err := rows.Scan(&backup.ID, &backup.UserID, &backup.Key, &backup.Data, &backup.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan backup: %w", err)
		}
		backups = append(backups, backup)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate backups: %w", err)
	}

	return backups, nil
}

// Prune は指定ユーザーのスナップショットをキーのソート順で新しいkeep件のみ残し、
// それより古いものを削除する。削除した件数を返す。
func (r *PostgresBackupRepo) Prune(ctx context.Context, userID string, keep int) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM backups
		 WHERE user_id = $1 AND key NOT IN (
			SELECT key FROM backups WHERE user_id = $1
			ORDER BY key DESC LIMIT $2
		 )`,
		userID, keep,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune backups: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(deleted), nil
}

// compile-time interface check
var _ BackupRepository = (*PostgresBackupRepo)(nil)
