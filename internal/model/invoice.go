// Package model はドメインモデルを定義する。
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus は請求書のステータスを表す。
type InvoiceStatus string

const (
	// InvoiceStatusDraft は下書き状態。
	InvoiceStatusDraft InvoiceStatus = "draft"
	// InvoiceStatusSent は送付済み状態。
	InvoiceStatusSent InvoiceStatus = "sent"
	// InvoiceStatusPaid は入金済み状態。
	InvoiceStatusPaid InvoiceStatus = "paid"
	// InvoiceStatusOverdue は支払期限超過状態。
	InvoiceStatusOverdue InvoiceStatus = "overdue"
)

// ValidInvoiceStatus はステータス値が定義済みのものかを判定する。
func ValidInvoiceStatus(s InvoiceStatus) bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusPaid, InvoiceStatusOverdue:
		return true
	}
	return false
}

// InvoiceTemplate は請求書の表示テンプレートを表す。
type InvoiceTemplate string

const (
	// TemplateModern はモダンテンプレート。
	TemplateModern InvoiceTemplate = "modern"
	// TemplateClassic はクラシックテンプレート。
	TemplateClassic InvoiceTemplate = "classic"
	// TemplateMinimal はミニマルテンプレート。
	TemplateMinimal InvoiceTemplate = "minimal"
)

// ValidInvoiceTemplate はテンプレート値が定義済みのものかを判定する。
func ValidInvoiceTemplate(t InvoiceTemplate) bool {
	switch t {
	case TemplateModern, TemplateClassic, TemplateMinimal:
		return true
	}
	return false
}

// LineItem は請求書の明細行を表す。
// 親の請求書に排他的に所有され、独立したライフサイクルを持たない。
// Amountは quantity × rate の導出値で、数量・単価の変更時に再計算される。
type LineItem struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	Rate        decimal.Decimal `json:"rate"`
	Amount      decimal.Decimal `json:"amount"`
}

// EmailLog は請求書のメール送信履歴の1エントリを表す。
// 追記専用であり、一度記録されたエントリは変更されない。
type EmailLog struct {
	ID        string    `json:"id"`
	SentAt    time.Time `json:"sent_at"`
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject"`
	Status    string    `json:"status"` // "sent" または "failed"
	Error     string    `json:"error,omitempty"`
	// ProviderID はメールリレーが発行したメッセージID。失敗時は空。
	ProviderID string `json:"provider_id,omitempty"`
}

// Invoice は請求書を表す。
// 顧客情報（ClientName等）は作成・編集時点のスナップショットであり、
// Clientレコードの後続の変更とは同期しない。
// 金額フィールドはすべて小数第2位に丸めた確定値として保持する。
type Invoice struct {
	ID             string
	UserID         string
	InvoiceNumber  string
	ClientID       string // 参照元Clientが削除された場合は空になる
	ClientName     string
	ClientEmail    string
	ClientAddress  string
	ClientPhone    string
	IssueDate      string // YYYY-MM-DD
	DueDate        string // YYYY-MM-DD
	Status         InvoiceStatus
	Items          []LineItem
	Subtotal       decimal.Decimal
	TaxRate        decimal.Decimal
	TaxAmount      decimal.Decimal
	DiscountRate   decimal.Decimal
	DiscountAmount decimal.Decimal
	Total          decimal.Decimal
	Notes          string
	Template       InvoiceTemplate
	Currency       string
	Signature      string // 署名画像のdata URL（任意）
	QRPayload      string // QRコードに埋め込む文字列（任意）
	EmailLogs      []EmailLog
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// InvoiceFilter は請求書一覧の構造化フィルタを表す。
// nilのフィールドは制約なしを意味し、指定されたフィールドはAND条件で適用される。
type InvoiceFilter struct {
	Status    *InvoiceStatus
	DateFrom  *string // issue_dateに対する下限（その日を含む）
	DateTo    *string // issue_dateに対する上限（その日を含む）
	MinAmount *decimal.Decimal
	MaxAmount *decimal.Decimal
}

// Empty はフィルタが1つも指定されていないかを返す。
func (f InvoiceFilter) Empty() bool {
	return f.Status == nil && f.DateFrom == nil && f.DateTo == nil &&
		f.MinAmount == nil && f.MaxAmount == nil
}
