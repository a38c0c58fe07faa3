package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/billman/internal/model"
	"github.com/hitoshi/billman/internal/repository"
)

// --- モック定義 ---

type mockUserRepo struct {
	findByIDFn    func(ctx context.Context, id string) (*model.User, error)
	findByEmailFn func(ctx context.Context, email string) (*model.User, error)
	createFn      func(ctx context.Context, user *model.User) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) UpdateLogo(_ context.Context, _ string, _ []byte, _ string) error {
	return nil
}

func (m *mockUserRepo) DeleteByID(_ context.Context, _ string) error {
	return nil
}

func (m *mockUserRepo) ListIDsWithRecords(_ context.Context) ([]string, error) {
	return nil, nil
}

type mockSessionRepo struct {
	createFn         func(ctx context.Context, session *model.Session) error
	findByIDFn       func(ctx context.Context, id string) (*model.Session, error)
	deleteByIDFn     func(ctx context.Context, id string) error
	deleteByUserIDFn func(ctx context.Context, userID string) error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return nil
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

func (m *mockSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	if m.deleteByUserIDFn != nil {
		return m.deleteByUserIDFn(ctx, userID)
	}
	return nil
}

// --- compile-time interface checks ---
var _ repository.UserRepository = (*mockUserRepo)(nil)
var _ repository.SessionRepository = (*mockSessionRepo)(nil)

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt.GenerateFromPassword() error = %v", err)
	}
	return string(hash)
}

// --- テスト ---

func TestRegister_NewUser_CreatesUserAndSession(t *testing.T) {
	ctx := context.Background()

	var createdUser *model.User
	var createdSession *model.Session

	userRepo := &mockUserRepo{
		createFn: func(ctx context.Context, user *model.User) error {
			createdUser = user
			return nil
		},
	}
	sessionRepo := &mockSessionRepo{
		createFn: func(ctx context.Context, session *model.Session) error {
			createdSession = session
			return nil
		},
	}

	svc := NewService(userRepo, sessionRepo, ServiceConfig{SessionMaxAge: 86400})

	session, err := svc.Register(ctx, "  Alice@Example.COM ", "secret123", "Alice", "Acme Inc")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if session == nil {
		t.Fatal("expected non-nil session")
	}

	if createdUser == nil {
		t.Fatal("expected user to be created")
	}
	// メールアドレスは小文字化・前後空白除去の上で保存されること
	if createdUser.Email != "alice@example.com" {
		t.Errorf("user email = %q, want %q", createdUser.Email, "alice@example.com")
	}
	if createdUser.PasswordHash == "" || createdUser.PasswordHash == "secret123" {
		t.Error("password must be stored as a bcrypt hash, not plaintext")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(createdUser.PasswordHash), []byte("secret123")); err != nil {
		t.Errorf("stored hash does not verify the original password: %v", err)
	}

	if createdSession == nil {
		t.Fatal("expected session to be created")
	}
	if createdSession.UserID != createdUser.ID {
		t.Errorf("session userID = %q, want %q", createdSession.UserID, createdUser.ID)
	}
	if len(createdSession.ID) != 64 {
		t.Errorf("session ID length = %d, want 64 hex chars", len(createdSession.ID))
	}
	if createdSession.ExpiresAt.Before(time.Now()) {
		t.Error("session should not be expired")
	}
}

func TestRegister_DuplicateEmail_FailsWithoutCreating(t *testing.T) {
	ctx := context.Background()

	created := false
	userRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: "user-1", Email: email}, nil
		},
		createFn: func(ctx context.Context, user *model.User) error {
			created = true
			return nil
		},
	}

	svc := NewService(userRepo, &mockSessionRepo{}, ServiceConfig{SessionMaxAge: 86400})

	_, err := svc.Register(ctx, "alice@example.com", "secret123", "Alice", "")
	if err == nil {
		t.Fatal("expected error for duplicate email")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T", err)
	}
	if apiErr.Code != model.ErrCodeRegistrationFailed {
		t.Errorf("error code = %q, want %q", apiErr.Code, model.ErrCodeRegistrationFailed)
	}
	if created {
		t.Error("no user record should be created on duplicate email")
	}
}

func TestRegister_MissingFields_ReturnsValidationError(t *testing.T) {
	svc := NewService(&mockUserRepo{}, &mockSessionRepo{}, ServiceConfig{SessionMaxAge: 86400})

	tests := []struct {
		name     string
		email    string
		password string
		userName string
	}{
		{"empty email", "", "secret123", "Alice"},
		{"empty password", "alice@example.com", "", "Alice"},
		{"empty name", "alice@example.com", "secret123", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tt.email, tt.password, tt.userName, "")
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *model.APIError, got %v", err)
			}
			if apiErr.Code != model.ErrCodeValidationFailed {
				t.Errorf("error code = %q, want %q", apiErr.Code, model.ErrCodeValidationFailed)
			}
		})
	}
}

func TestLogin_CorrectPassword_IssuesSession(t *testing.T) {
	ctx := context.Background()
	hash := hashPassword(t, "secret123")

	userRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: "user-1", Email: email, PasswordHash: hash}, nil
		},
	}

	var createdSession *model.Session
	sessionRepo := &mockSessionRepo{
		createFn: func(ctx context.Context, session *model.Session) error {
			createdSession = session
			return nil
		},
	}

	svc := NewService(userRepo, sessionRepo, ServiceConfig{SessionMaxAge: 86400})

	session, err := svc.Login(ctx, "alice@example.com", "secret123")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if session == nil || createdSession == nil {
		t.Fatal("expected session to be issued")
	}
	if createdSession.UserID != "user-1" {
		t.Errorf("session userID = %q, want %q", createdSession.UserID, "user-1")
	}
}

func TestLogin_WrongPassword_ReturnsInvalidCredentials(t *testing.T) {
	hash := hashPassword(t, "secret123")

	userRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: "user-1", Email: email, PasswordHash: hash}, nil
		},
	}

	svc := NewService(userRepo, &mockSessionRepo{}, ServiceConfig{SessionMaxAge: 86400})

	_, err := svc.Login(context.Background(), "alice@example.com", "wrong")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeInvalidCredentials {
		t.Errorf("error code = %q, want %q", apiErr.Code, model.ErrCodeInvalidCredentials)
	}
}

func TestLogin_UnknownEmail_ReturnsSameErrorAsWrongPassword(t *testing.T) {
	// メールアドレス不明でもパスワード誤りと同じエラーコードを返すこと
	// （アカウント列挙防止）。
	svc := NewService(&mockUserRepo{}, &mockSessionRepo{}, ServiceConfig{SessionMaxAge: 86400})

	_, err := svc.Login(context.Background(), "nobody@example.com", "whatever")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeInvalidCredentials {
		t.Errorf("error code = %q, want %q", apiErr.Code, model.ErrCodeInvalidCredentials)
	}
}

func TestLogout_DeletesSession(t *testing.T) {
	var deletedID string
	sessionRepo := &mockSessionRepo{
		deleteByIDFn: func(ctx context.Context, id string) error {
			deletedID = id
			return nil
		},
	}

	svc := NewService(&mockUserRepo{}, sessionRepo, ServiceConfig{SessionMaxAge: 86400})

	if err := svc.Logout(context.Background(), "session-abc"); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if deletedID != "session-abc" {
		t.Errorf("deleted session ID = %q, want %q", deletedID, "session-abc")
	}
}

func TestLogout_EmptySessionID_IsNoop(t *testing.T) {
	called := false
	sessionRepo := &mockSessionRepo{
		deleteByIDFn: func(ctx context.Context, id string) error {
			called = true
			return nil
		},
	}

	svc := NewService(&mockUserRepo{}, sessionRepo, ServiceConfig{SessionMaxAge: 86400})

	if err := svc.Logout(context.Background(), ""); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if called {
		t.Error("repository should not be called for empty session ID")
	}
}

func TestGetCurrentUser_ExpiredSession_ReturnsUnauthorized(t *testing.T) {
	// 期限切れセッションはリポジトリがnilを返す契約
	sessionRepo := &mockSessionRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			return nil, nil
		},
	}

	svc := NewService(&mockUserRepo{}, sessionRepo, ServiceConfig{SessionMaxAge: 86400})

	_, err := svc.GetCurrentUser(context.Background(), "expired-session")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeUnauthorized {
		t.Errorf("error code = %q, want %q", apiErr.Code, model.ErrCodeUnauthorized)
	}
}

func TestGetCurrentUser_ValidSession_ReturnsUser(t *testing.T) {
	sessionRepo := &mockSessionRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			return &model.Session{ID: id, UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
	}
	userRepo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Email: "alice@example.com", Name: "Alice"}, nil
		},
	}

	svc := NewService(userRepo, sessionRepo, ServiceConfig{SessionMaxAge: 86400})

	user, err := svc.GetCurrentUser(context.Background(), "session-abc")
	if err != nil {
		t.Fatalf("GetCurrentUser() error = %v", err)
	}
	if user.ID != "user-1" {
		t.Errorf("user ID = %q, want %q", user.ID, "user-1")
	}
}
