// Package backup はユーザーデータの定期スナップショットジョブを提供する。
// 一定間隔でデータを持つ全ユーザーのスナップショットを作成し、
// ユーザーごとに保持上限を超えた古いスナップショットを削除する。
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/billman/internal/export"
	"github.com/hitoshi/billman/internal/metrics"
	"github.com/hitoshi/billman/internal/model"
	"github.com/hitoshi/billman/internal/repository"
)

// DocumentBuilder はスナップショット内容の組み立てインターフェース。
// エクスポート文書と同一形式を使用するため、復元はインポート処理で行える。
type DocumentBuilder interface {
	BuildDocument(ctx context.Context, userID string) (*export.Document, error)
}

// Job はユーザー1人分のスナップショット作成と保持制御を行う。
type Job struct {
	builder    DocumentBuilder
	backupRepo repository.BackupRepository
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
	Keep       int // ユーザーごとのスナップショット保持件数
}

// NewJob はJobの新しいインスタンスを生成する。
// keepが0以下の場合はデフォルト値5を使用する。
func NewJob(
	builder DocumentBuilder,
	backupRepo repository.BackupRepository,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	keep int,
) *Job {
	if keep <= 0 {
		keep = 5
	}
	return &Job{
		builder:    builder,
		backupRepo: backupRepo,
		metrics:    collector,
		logger:     logger,
		Keep:       keep,
	}
}

// RunForUser は指定ユーザーのスナップショットを1件作成し、古いものを削除する。
// キーは backup_<user_id>_<作成時刻のミリ秒> 形式で、キーのソート順が時系列順になる。
func (j *Job) RunForUser(ctx context.Context, userID string) error {
	doc, err := j.builder.BuildDocument(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to build snapshot: %w", err)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	now := time.Now()
	backup := &model.Backup{
		ID:        uuid.New().String(),
		UserID:    userID,
		Key:       fmt.Sprintf("backup_%s_%d", userID, now.UnixMilli()),
		Data:      data,
		CreatedAt: now,
	}

	if err := j.backupRepo.Create(ctx, backup); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	j.metrics.RecordBackupCreated()

	pruned, err := j.backupRepo.Prune(ctx, userID, j.Keep)
	if err != nil {
		return fmt.Errorf("failed to prune snapshots: %w", err)
	}
	if pruned > 0 {
		j.metrics.RecordBackupsPruned(pruned)
	}

	j.logger.Info("スナップショットを作成しました",
		slog.String("user_id", userID),
		slog.String("key", backup.Key),
		slog.Int("pruned", pruned),
	)

	return nil
}
