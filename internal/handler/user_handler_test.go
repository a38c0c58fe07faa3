package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/billman/internal/model"
)

// --- モック定義 ---

// mockAccountService はAccountServiceInterfaceのモック実装。
type mockAccountService struct {
	withdrawFn func(ctx context.Context, userID string) error
}

func (m *mockAccountService) Withdraw(ctx context.Context, userID string) error {
	if m.withdrawFn != nil {
		return m.withdrawFn(ctx, userID)
	}
	return nil
}

// mockBrandingService はBrandingServiceInterfaceのモック実装。
type mockBrandingService struct {
	setLogoFromURLFn func(ctx context.Context, userID, logoURL string) error
	clearLogoFn      func(ctx context.Context, userID string) error
}

func (m *mockBrandingService) SetLogoFromURL(ctx context.Context, userID, logoURL string) error {
	if m.setLogoFromURLFn != nil {
		return m.setLogoFromURLFn(ctx, userID, logoURL)
	}
	return nil
}

func (m *mockBrandingService) ClearLogo(ctx context.Context, userID string) error {
	if m.clearLogoFn != nil {
		return m.clearLogoFn(ctx, userID)
	}
	return nil
}

// --- DELETE /api/users/me テスト ---

func TestUserHandler_Withdraw_Success(t *testing.T) {
	withdrawCalled := false
	svc := &mockAccountService{
		withdrawFn: func(ctx context.Context, userID string) error {
			withdrawCalled = true
			if userID != "user-1" {
				t.Errorf("userID = %q, want user-1", userID)
			}
			return nil
		},
	}

	h := NewUserHandler(svc, &mockBrandingService{}, testAuthConfig())

	req := httptest.NewRequest(http.MethodDelete, "/api/users/me", nil)
	req = withUserID(req, "user-1")
	w := httptest.NewRecorder()

	h.Withdraw(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
	if !withdrawCalled {
		t.Error("Withdraw should be called")
	}

	cookie := findCookie(t, resp, "session_id")
	if cookie == nil || cookie.MaxAge >= 0 {
		t.Error("session cookie should be cleared after withdrawal")
	}
}

func TestUserHandler_Withdraw_Unauthorized(t *testing.T) {
	h := NewUserHandler(&mockAccountService{}, &mockBrandingService{}, testAuthConfig())

	req := httptest.NewRequest(http.MethodDelete, "/api/users/me", nil)
	w := httptest.NewRecorder()

	h.Withdraw(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

// --- PUT /api/users/me/logo テスト ---

func TestUserHandler_SetLogo_Success(t *testing.T) {
	branding := &mockBrandingService{
		setLogoFromURLFn: func(ctx context.Context, userID, logoURL string) error {
			if logoURL != "https://example.com/logo.png" {
				t.Errorf("logoURL = %q", logoURL)
			}
			return nil
		},
	}

	h := NewUserHandler(&mockAccountService{}, branding, testAuthConfig())

	body := `{"url": "https://example.com/logo.png"}`
	req := httptest.NewRequest(http.MethodPut, "/api/users/me/logo", bytes.NewBufferString(body))
	req = withUserID(req, "user-1")
	w := httptest.NewRecorder()

	h.SetLogo(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
}

func TestUserHandler_SetLogo_SSRFBlocked(t *testing.T) {
	branding := &mockBrandingService{
		setLogoFromURLFn: func(ctx context.Context, userID, logoURL string) error {
			return model.NewSSRFBlockedError()
		},
	}

	h := NewUserHandler(&mockAccountService{}, branding, testAuthConfig())

	body := `{"url": "http://169.254.169.254/latest/meta-data"}`
	req := httptest.NewRequest(http.MethodPut, "/api/users/me/logo", bytes.NewBufferString(body))
	req = withUserID(req, "user-1")
	w := httptest.NewRecorder()

	h.SetLogo(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
	result := parseAPIErrorResponse(t, w)
	if result["code"] != "SSRF_BLOCKED" {
		t.Errorf("code = %q, want SSRF_BLOCKED", result["code"])
	}
}

// --- DELETE /api/users/me/logo テスト ---

func TestUserHandler_DeleteLogo(t *testing.T) {
	clearCalled := false
	branding := &mockBrandingService{
		clearLogoFn: func(ctx context.Context, userID string) error {
			clearCalled = true
			return nil
		},
	}

	h := NewUserHandler(&mockAccountService{}, branding, testAuthConfig())

	req := httptest.NewRequest(http.MethodDelete, "/api/users/me/logo", nil)
	req = withUserID(req, "user-1")
	w := httptest.NewRecorder()

	h.DeleteLogo(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if !clearCalled {
		t.Error("ClearLogo should be called")
	}
}
