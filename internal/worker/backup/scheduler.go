package backup

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/billman/internal/repository"
)

// Scheduler はスナップショットジョブの定期実行を行う。
// 対象はデータを1件以上持つユーザーのみで、空のアカウントの
// スナップショットは作成しない。
type Scheduler struct {
	userRepo       repository.UserRepository
	job            *Job
	logger         *slog.Logger
	maxConcurrency int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値4を使用する。
func NewScheduler(
	userRepo repository.UserRepository,
	job *Job,
	logger *slog.Logger,
	maxConcurrency int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	return &Scheduler{
		userRepo:       userRepo,
		job:            job,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("バックアップスケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("keep", s.job.Keep),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("バックアップスケジューラを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("バックアップサイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce はデータを持つ全ユーザーのスナップショットを1回作成する。
// semaphoreパターンで最大並列数を制御する。
// 1ユーザーの失敗は他のユーザーの処理を妨げない。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	userIDs, err := s.userRepo.ListIDsWithRecords(ctx)
	if err != nil {
		return err
	}

	if len(userIDs) == 0 {
		return nil
	}

	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, userID := range userIDs {
		wg.Add(1)
		sem <- struct{}{}

		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := s.job.RunForUser(ctx, id); err != nil {
				s.logger.Error("スナップショットの作成に失敗しました",
					slog.String("user_id", id),
					slog.String("error", err.Error()),
				)
			}
		}(userID)
	}

	wg.Wait()

	s.logger.Info("バックアップサイクルが完了しました",
		slog.Int("user_count", len(userIDs)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}
