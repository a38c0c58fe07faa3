package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/billman/internal/middleware"
	"github.com/hitoshi/billman/internal/model"
)

// AccountServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type AccountServiceInterface interface {
	// Withdraw はユーザーの退会処理を実行する。
	// セッションを全て失効させたうえで、ユーザーと所有する全データを削除する。
	Withdraw(ctx context.Context, userID string) error
}

// BrandingServiceInterface は会社ロゴ管理のインターフェース。
type BrandingServiceInterface interface {
	// SetLogoFromURL はURLからロゴ画像を取得して保存する。
	SetLogoFromURL(ctx context.Context, userID, logoURL string) error
	// ClearLogo はロゴを削除する。
	ClearLogo(ctx context.Context, userID string) error
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service  AccountServiceInterface
	branding BrandingServiceInterface
	config   AuthHandlerConfig
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service AccountServiceInterface, branding BrandingServiceInterface, config AuthHandlerConfig) *UserHandler {
	return &UserHandler{
		service:  service,
		branding: branding,
		config:   config,
	}
}

// setLogoRequest はロゴ設定リクエストのボディ。
type setLogoRequest struct {
	URL string `json:"url"`
}

// Withdraw はユーザーの退会処理を実行する。
// DELETE /api/users/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	if err := h.service.Withdraw(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	// セッションは退会時に全て失効済みのため、Cookieもクリアする
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	w.WriteHeader(http.StatusNoContent)
}

// SetLogo は会社ロゴをURLから取得して設定する。
// PUT /api/users/me/logo
func (h *UserHandler) SetLogo(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req setLogoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	if err := h.branding.SetLogoFromURL(r.Context(), userID, req.URL); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteLogo は会社ロゴを削除する。
// DELETE /api/users/me/logo
func (h *UserHandler) DeleteLogo(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	if err := h.branding.ClearLogo(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
