package mail

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/billman/internal/metrics"
	"github.com/hitoshi/billman/internal/model"
	"github.com/hitoshi/billman/internal/security"
)

// InvoiceAccess はメール送信に必要な請求書操作の narrow interface。
type InvoiceAccess interface {
	// Get は指定IDの請求書を取得する。
	Get(ctx context.Context, userID, id string) (*model.Invoice, error)
	// AppendEmailLog は送信履歴を追記して保存する。
	AppendEmailLog(ctx context.Context, userID, id string, entry model.EmailLog, markSent bool) (*model.Invoice, error)
}

// SendOptions は請求書メール送信時の任意項目。
type SendOptions struct {
	Recipient string // 空の場合は請求書の顧客メールアドレス
	Message   string // 本文に添えるカスタムメッセージ（サニタイズされる）
}

// SendResult はメール送信の結果を表す。
type SendResult struct {
	Invoice   *model.Invoice // 送信履歴追記後の請求書
	MessageID string         // メールリレーが発行したメッセージID
}

// Service は請求書メール送信のオーケストレーションを行う。
// 送信の成否にかかわらず送信履歴を請求書に追記する。
type Service struct {
	sender    Sender
	invoices  InvoiceAccess
	sanitizer security.MessageSanitizerService
	metrics   metrics.MetricsCollector
	from      string
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	sender Sender,
	invoices InvoiceAccess,
	sanitizer security.MessageSanitizerService,
	collector metrics.MetricsCollector,
	from string,
) *Service {
	return &Service{
		sender:    sender,
		invoices:  invoices,
		sanitizer: sanitizer,
		metrics:   collector,
		from:      from,
	}
}

// bodyTemplate は請求書メールのHTML本文テンプレート。
// CustomMessageはサニタイズ済みHTMLとして埋め込む。
var bodyTemplate = template.Must(template.New("invoice_email").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #1a1a1a;">
<p>{{.ClientName}} 様</p>
<p>{{.SenderName}}より請求書をお送りします。</p>
<table style="border-collapse: collapse;">
<tr><td style="padding: 4px 16px 4px 0;">請求書番号</td><td>{{.InvoiceNumber}}</td></tr>
<tr><td style="padding: 4px 16px 4px 0;">請求金額</td><td>{{.Total}} {{.Currency}}</td></tr>
{{if .DueDate}}<tr><td style="padding: 4px 16px 4px 0;">支払期限</td><td>{{.DueDate}}</td></tr>{{end}}
</table>
{{if .CustomMessage}}<div>{{.CustomMessage}}</div>{{end}}
<p>{{.SenderName}}</p>
</body>
</html>`))

type bodyData struct {
	ClientName    string
	SenderName    string
	InvoiceNumber string
	Total         string
	Currency      string
	DueDate       string
	CustomMessage template.HTML
}

// senderDisplayName は差出人の表示名を返す。会社名があれば会社名を優先する。
// 件名と本文の署名はどちらもこの表示名を使う。
func senderDisplayName(user *model.User) string {
	if user.Company != "" {
		return user.Company
	}
	return user.Name
}

// SendInvoice は請求書メールを送信する。
//
// 送信成功時はステータス"sent"の履歴を追記し、下書きの請求書をsentへ遷移させる。
// 送信失敗時もステータス"failed"の履歴を必ず追記した上でEMAIL_SEND_FAILEDを返す。
// APIキー未設定の場合は履歴を追記せずEMAIL_NOT_CONFIGUREDを返す
// （設定の問題であり送信の試行ではないため）。
func (s *Service) SendInvoice(ctx context.Context, user *model.User, invoiceID string, opts SendOptions) (*SendResult, error) {
	invoice, err := s.invoices.Get(ctx, user.ID, invoiceID)
	if err != nil {
		return nil, err
	}

	recipient := strings.TrimSpace(opts.Recipient)
	if recipient == "" {
		recipient = invoice.ClientEmail
	}
	if recipient == "" {
		return nil, model.NewValidationError("recipient")
	}

	senderName := senderDisplayName(user)
	subject := fmt.Sprintf("Invoice %s from %s", invoice.InvoiceNumber, senderName)

	html, err := s.renderBody(invoice, senderName, opts.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to render mail body: %w", err)
	}

	start := time.Now()
	messageID, sendErr := s.sender.Send(ctx, Message{
		From:    s.from,
		To:      recipient,
		Subject: subject,
		HTML:    html,
	})
	s.metrics.RecordEmailLatency(time.Since(start))

	if errors.Is(sendErr, ErrNotConfigured) {
		s.metrics.RecordEmailFailed("not_configured")
		return nil, model.NewEmailNotConfiguredError()
	}

	entry := model.EmailLog{
		ID:        uuid.New().String(),
		SentAt:    time.Now(),
		Recipient: recipient,
		Subject:   subject,
	}

	if sendErr != nil {
		entry.Status = "failed"
		entry.Error = sendErr.Error()
		s.metrics.RecordEmailFailed("relay_error")

		// 失敗の記録も必ず残す
		if _, logErr := s.invoices.AppendEmailLog(ctx, user.ID, invoiceID, entry, false); logErr != nil {
			slog.Error("failed to record failed email attempt",
				slog.String("invoice_id", invoiceID),
				slog.String("error", logErr.Error()),
			)
		}
		return nil, model.NewEmailSendFailedError(sendErr.Error())
	}

	entry.Status = "sent"
	entry.ProviderID = messageID
	s.metrics.RecordEmailSent()

	updated, err := s.invoices.AppendEmailLog(ctx, user.ID, invoiceID, entry, true)
	if err != nil {
		return nil, err
	}

	slog.Info("invoice email sent",
		slog.String("invoice_id", invoiceID),
		slog.String("user_id", user.ID),
		slog.String("message_id", messageID),
	)

	return &SendResult{Invoice: updated, MessageID: messageID}, nil
}

// renderBody はHTML本文を組み立てる。カスタムメッセージはサニタイズ後に埋め込む。
func (s *Service) renderBody(invoice *model.Invoice, senderName, customMessage string) (string, error) {
	data := bodyData{
		ClientName:    invoice.ClientName,
		SenderName:    senderName,
		InvoiceNumber: invoice.InvoiceNumber,
		Total:         invoice.Total.StringFixed(2),
		Currency:      invoice.Currency,
		DueDate:       invoice.DueDate,
		CustomMessage: template.HTML(s.sanitizer.Sanitize(customMessage)),
	}

	var sb strings.Builder
	if err := bodyTemplate.Execute(&sb, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}
