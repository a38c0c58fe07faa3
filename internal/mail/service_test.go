package mail

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/billman/internal/metrics"
	"github.com/hitoshi/billman/internal/model"
	"github.com/hitoshi/billman/internal/security"
)

// --- モック定義 ---

type mockSender struct {
	sendFn func(ctx context.Context, msg Message) (string, error)
}

func (m *mockSender) Send(ctx context.Context, msg Message) (string, error) {
	if m.sendFn != nil {
		return m.sendFn(ctx, msg)
	}
	return "resend-msg-1", nil
}

type mockInvoiceAccess struct {
	getFn            func(ctx context.Context, userID, id string) (*model.Invoice, error)
	appendEmailLogFn func(ctx context.Context, userID, id string, entry model.EmailLog, markSent bool) (*model.Invoice, error)
}

func (m *mockInvoiceAccess) Get(ctx context.Context, userID, id string) (*model.Invoice, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID, id)
	}
	return nil, model.NewInvoiceNotFoundError(id)
}

func (m *mockInvoiceAccess) AppendEmailLog(ctx context.Context, userID, id string, entry model.EmailLog, markSent bool) (*model.Invoice, error) {
	if m.appendEmailLogFn != nil {
		return m.appendEmailLogFn(ctx, userID, id, entry, markSent)
	}
	return &model.Invoice{ID: id}, nil
}

type noopMetrics struct{}

func (noopMetrics) RecordInvoiceCreated()                 {}
func (noopMetrics) RecordEmailSent()                      {}
func (noopMetrics) RecordEmailFailed(string)              {}
func (noopMetrics) RecordEmailLatency(time.Duration)      {}
func (noopMetrics) RecordBackupCreated()                  {}
func (noopMetrics) RecordBackupsPruned(int)               {}
func (noopMetrics) RecordExport(string)                   {}

var _ Sender = (*mockSender)(nil)
var _ InvoiceAccess = (*mockInvoiceAccess)(nil)
var _ metrics.MetricsCollector = noopMetrics{}

func testInvoice() *model.Invoice {
	return &model.Invoice{
		ID:            "inv-1",
		UserID:        "user-1",
		InvoiceNumber: "INV-100",
		ClientName:    "Acme Inc",
		ClientEmail:   "billing@acme.example",
		DueDate:       "2025-07-01",
		Status:        model.InvoiceStatusDraft,
		Total:         decimal.RequireFromString("110.00"),
		Currency:      "USD",
	}
}

func testUser() *model.User {
	return &model.User{ID: "user-1", Name: "Alice", Company: "Alice Design"}
}

func newTestService(sender Sender, invoices InvoiceAccess) *Service {
	return NewService(sender, invoices, security.NewMessageSanitizer(), noopMetrics{}, "invoices@example.com")
}

// --- テスト ---

func TestSendInvoice_Success_AppendsSentLogAndMarksSent(t *testing.T) {
	var sentMsg Message
	sender := &mockSender{
		sendFn: func(ctx context.Context, msg Message) (string, error) {
			sentMsg = msg
			return "resend-abc123", nil
		},
	}

	var loggedEntry model.EmailLog
	var gotMarkSent bool
	invoices := &mockInvoiceAccess{
		getFn: func(ctx context.Context, userID, id string) (*model.Invoice, error) {
			return testInvoice(), nil
		},
		appendEmailLogFn: func(ctx context.Context, userID, id string, entry model.EmailLog, markSent bool) (*model.Invoice, error) {
			loggedEntry = entry
			gotMarkSent = markSent
			inv := testInvoice()
			inv.Status = model.InvoiceStatusSent
			inv.EmailLogs = []model.EmailLog{entry}
			return inv, nil
		},
	}

	svc := newTestService(sender, invoices)

	result, err := svc.SendInvoice(context.Background(), testUser(), "inv-1", SendOptions{})
	if err != nil {
		t.Fatalf("SendInvoice() error = %v", err)
	}

	// 宛先は請求書の顧客メールアドレス
	if sentMsg.To != "billing@acme.example" {
		t.Errorf("to = %q, want client email", sentMsg.To)
	}
	// 件名は請求書番号と送信者（会社名優先）を含む
	if sentMsg.Subject != "Invoice INV-100 from Alice Design" {
		t.Errorf("subject = %q", sentMsg.Subject)
	}
	if !strings.Contains(sentMsg.HTML, "INV-100") {
		t.Error("body should contain the invoice number")
	}
	if !strings.Contains(sentMsg.HTML, "110.00") {
		t.Error("body should contain the total amount")
	}

	if loggedEntry.Status != "sent" {
		t.Errorf("log status = %q, want sent", loggedEntry.Status)
	}
	if loggedEntry.Recipient != "billing@acme.example" {
		t.Errorf("log recipient = %q", loggedEntry.Recipient)
	}
	if loggedEntry.ProviderID != "resend-abc123" {
		t.Errorf("log provider id = %q, want resend-abc123", loggedEntry.ProviderID)
	}
	if !gotMarkSent {
		t.Error("successful send should request draft→sent transition")
	}
	if result.MessageID != "resend-abc123" {
		t.Errorf("message id = %q, want resend-abc123", result.MessageID)
	}
	if result.Invoice.Status != model.InvoiceStatusSent {
		t.Errorf("invoice status = %q, want sent", result.Invoice.Status)
	}
}

func TestSendInvoice_SubjectAndSignatureUseSameSenderName(t *testing.T) {
	var sentMsg Message
	sender := &mockSender{
		sendFn: func(ctx context.Context, msg Message) (string, error) {
			sentMsg = msg
			return "resend-msg-1", nil
		},
	}
	invoices := &mockInvoiceAccess{
		getFn: func(ctx context.Context, userID, id string) (*model.Invoice, error) {
			return testInvoice(), nil
		},
	}

	svc := newTestService(sender, invoices)

	// 会社名がある場合は件名・本文とも会社名
	if _, err := svc.SendInvoice(context.Background(), testUser(), "inv-1", SendOptions{}); err != nil {
		t.Fatalf("SendInvoice() error = %v", err)
	}
	if !strings.Contains(sentMsg.Subject, "Alice Design") {
		t.Errorf("subject = %q, want company name", sentMsg.Subject)
	}
	if !strings.Contains(sentMsg.HTML, "Alice Design") {
		t.Error("body signature should use the same sender name as the subject")
	}

	// 会社名がない場合は件名・本文とも個人名
	user := &model.User{ID: "user-1", Name: "Alice"}
	if _, err := svc.SendInvoice(context.Background(), user, "inv-1", SendOptions{}); err != nil {
		t.Fatalf("SendInvoice() error = %v", err)
	}
	if !strings.Contains(sentMsg.Subject, "from Alice") {
		t.Errorf("subject = %q, want personal name fallback", sentMsg.Subject)
	}
	if !strings.Contains(sentMsg.HTML, "Alice") {
		t.Error("body signature should fall back to the personal name")
	}
}

func TestSendInvoice_RelayFailure_AppendsFailedLogAndReturnsError(t *testing.T) {
	sender := &mockSender{
		sendFn: func(ctx context.Context, msg Message) (string, error) {
			return "", errors.New("relay unavailable")
		},
	}

	var loggedEntry model.EmailLog
	var gotMarkSent bool
	logAppended := false
	invoices := &mockInvoiceAccess{
		getFn: func(ctx context.Context, userID, id string) (*model.Invoice, error) {
			return testInvoice(), nil
		},
		appendEmailLogFn: func(ctx context.Context, userID, id string, entry model.EmailLog, markSent bool) (*model.Invoice, error) {
			logAppended = true
			loggedEntry = entry
			gotMarkSent = markSent
			return testInvoice(), nil
		},
	}

	svc := newTestService(sender, invoices)

	_, err := svc.SendInvoice(context.Background(), testUser(), "inv-1", SendOptions{})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeEmailSendFailed {
		t.Errorf("error code = %q, want %q", apiErr.Code, model.ErrCodeEmailSendFailed)
	}

	// 失敗でも履歴は必ず追記される
	if !logAppended {
		t.Fatal("failed send must still be recorded in email logs")
	}
	if loggedEntry.Status != "failed" {
		t.Errorf("log status = %q, want failed", loggedEntry.Status)
	}
	if loggedEntry.Error == "" {
		t.Error("failed log should carry the error detail")
	}
	if gotMarkSent {
		t.Error("failed send must not transition the invoice status")
	}
}

func TestSendInvoice_NotConfigured_NoLogAppended(t *testing.T) {
	sender := &mockSender{
		sendFn: func(ctx context.Context, msg Message) (string, error) {
			return "", ErrNotConfigured
		},
	}

	logAppended := false
	invoices := &mockInvoiceAccess{
		getFn: func(ctx context.Context, userID, id string) (*model.Invoice, error) {
			return testInvoice(), nil
		},
		appendEmailLogFn: func(ctx context.Context, userID, id string, entry model.EmailLog, markSent bool) (*model.Invoice, error) {
			logAppended = true
			return testInvoice(), nil
		},
	}

	svc := newTestService(sender, invoices)

	_, err := svc.SendInvoice(context.Background(), testUser(), "inv-1", SendOptions{})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeEmailNotConfigured {
		t.Errorf("error code = %q, want %q", apiErr.Code, model.ErrCodeEmailNotConfigured)
	}
	if logAppended {
		t.Error("configuration error is not a send attempt and must not be logged")
	}
}

func TestSendInvoice_NoRecipient_ReturnsValidationError(t *testing.T) {
	invoices := &mockInvoiceAccess{
		getFn: func(ctx context.Context, userID, id string) (*model.Invoice, error) {
			inv := testInvoice()
			inv.ClientEmail = ""
			return inv, nil
		},
	}

	svc := newTestService(&mockSender{}, invoices)

	_, err := svc.SendInvoice(context.Background(), testUser(), "inv-1", SendOptions{})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeValidationFailed {
		t.Errorf("error code = %q, want %q", apiErr.Code, model.ErrCodeValidationFailed)
	}
}

func TestSendInvoice_CustomMessageIsSanitized(t *testing.T) {
	var sentMsg Message
	sender := &mockSender{
		sendFn: func(ctx context.Context, msg Message) (string, error) {
			sentMsg = msg
			return "resend-msg-1", nil
		},
	}
	invoices := &mockInvoiceAccess{
		getFn: func(ctx context.Context, userID, id string) (*model.Invoice, error) {
			return testInvoice(), nil
		},
	}

	svc := newTestService(sender, invoices)

	_, err := svc.SendInvoice(context.Background(), testUser(), "inv-1", SendOptions{
		Message: `<p>Thank you!</p><script>alert(1)</script>`,
	})
	if err != nil {
		t.Fatalf("SendInvoice() error = %v", err)
	}

	if !strings.Contains(sentMsg.HTML, "<p>Thank you!</p>") {
		t.Error("allowed formatting tags should survive sanitization")
	}
	if strings.Contains(sentMsg.HTML, "<script>") {
		t.Error("script tags must be stripped from the custom message")
	}
}

func TestSendInvoice_ExplicitRecipientOverridesClientEmail(t *testing.T) {
	var sentMsg Message
	sender := &mockSender{
		sendFn: func(ctx context.Context, msg Message) (string, error) {
			sentMsg = msg
			return "resend-msg-1", nil
		},
	}
	invoices := &mockInvoiceAccess{
		getFn: func(ctx context.Context, userID, id string) (*model.Invoice, error) {
			return testInvoice(), nil
		},
	}

	svc := newTestService(sender, invoices)

	_, err := svc.SendInvoice(context.Background(), testUser(), "inv-1", SendOptions{
		Recipient: "accounting@acme.example",
	})
	if err != nil {
		t.Fatalf("SendInvoice() error = %v", err)
	}
	if sentMsg.To != "accounting@acme.example" {
		t.Errorf("to = %q, want explicit recipient", sentMsg.To)
	}
}
