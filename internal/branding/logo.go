// Package branding は請求書に表示する会社ロゴの管理を提供する。
// URL指定のロゴ取得はSSRF防止機能付きクライアントで行う。
package branding

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/billman/internal/model"
	"github.com/hitoshi/billman/internal/repository"
	"github.com/hitoshi/billman/internal/security"
)

// maxLogoSize はロゴ画像の最大サイズ（2MB）。
const maxLogoSize = 2 * 1024 * 1024

// fetchTimeout はロゴ取得のタイムアウト。
const fetchTimeout = 5 * time.Second

// Service は会社ロゴの取得と保存を行う。
type Service struct {
	userRepo  repository.UserRepository
	ssrfGuard security.SSRFGuardService
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, ssrfGuard security.SSRFGuardService) *Service {
	return &Service{
		userRepo:  userRepo,
		ssrfGuard: ssrfGuard,
	}
}

// SetLogo はアップロードされたロゴ画像を検証して保存する。
func (s *Service) SetLogo(ctx context.Context, userID string, data []byte, mimeType string) error {
	if len(data) == 0 {
		return model.NewValidationError("logo")
	}
	if len(data) > maxLogoSize {
		return model.NewValidationError("logo")
	}
	if !isImageMime(mimeType) {
		return model.NewValidationError("logo")
	}

	if err := s.userRepo.UpdateLogo(ctx, userID, data, mimeType); err != nil {
		return fmt.Errorf("failed to save logo: %w", err)
	}
	return nil
}

// ClearLogo は保存済みのロゴを削除する。
func (s *Service) ClearLogo(ctx context.Context, userID string) error {
	if err := s.userRepo.UpdateLogo(ctx, userID, nil, ""); err != nil {
		return fmt.Errorf("failed to clear logo: %w", err)
	}
	return nil
}

// SetLogoFromURL は指定URLからロゴ画像を取得して保存する。
//
// URLはSSRF防止の事前検証を通過する必要があり、取得自体も
// DNS再バインディング対策付きのHTTPクライアントで行う。
// プライベートネットワーク宛のURLはSSRF_BLOCKEDを返す。
func (s *Service) SetLogoFromURL(ctx context.Context, userID, logoURL string) error {
	if strings.TrimSpace(logoURL) == "" {
		return model.NewValidationError("logoUrl")
	}

	if err := s.ssrfGuard.ValidateURL(logoURL); err != nil {
		slog.Warn("ロゴ取得: SSRFブロック",
			slog.String("url", logoURL),
			slog.String("error", err.Error()),
		)
		return model.NewSSRFBlockedError()
	}

	client := s.ssrfGuard.NewSafeClient(fetchTimeout)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, logoURL, nil)
	if err != nil {
		return model.NewLogoFetchFailedError("リクエストの作成に失敗しました")
	}
	req.Header.Set("User-Agent", "Billman/1.0 Invoice Manager")

	resp, err := client.Do(req)
	if err != nil {
		slog.Warn("ロゴ取得: HTTPリクエスト失敗",
			slog.String("url", logoURL),
			slog.String("error", err.Error()),
		)
		return model.NewLogoFetchFailedError("画像の取得に失敗しました")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return model.NewLogoFetchFailedError(fmt.Sprintf("HTTPステータス %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxLogoSize+1))
	if err != nil {
		return model.NewLogoFetchFailedError("レスポンスの読み取りに失敗しました")
	}
	if int64(len(body)) > maxLogoSize {
		return model.NewLogoFetchFailedError("画像サイズが上限を超えています")
	}

	mimeType := extractMimeType(resp.Header.Get("Content-Type"))
	if !isImageMime(mimeType) {
		return model.NewLogoFetchFailedError("画像以外のコンテンツです")
	}

	if err := s.userRepo.UpdateLogo(ctx, userID, body, mimeType); err != nil {
		return fmt.Errorf("failed to save logo: %w", err)
	}

	slog.Info("ロゴを更新しました",
		slog.String("user_id", userID),
		slog.Int("size", len(body)),
	)
	return nil
}

// extractMimeType はContent-Typeヘッダーからメディアタイプ部分を取り出す。
func extractMimeType(contentType string) string {
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

// isImageMime は画像のメディアタイプかを判定する。
func isImageMime(mimeType string) bool {
	switch mimeType {
	case "image/png", "image/jpeg", "image/gif", "image/webp", "image/svg+xml":
		return true
	}
	return false
}
