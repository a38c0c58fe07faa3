// Package account はアカウントの退会処理を提供する。
package account

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/billman/internal/repository"
)

// Service はアカウント管理のサービス層。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, sessionRepo repository.SessionRepository) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
	}
}

// Withdraw はアカウントを削除する。
// 顧客・請求書・スナップショットはデータベースのCASCADE制約で削除され、
// 全セッションも無効化される。この操作は取り消せない。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}

	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	slog.Info("account withdrawn", slog.String("user_id", userID))
	return nil
}
