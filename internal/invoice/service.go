// Package invoice は請求書管理のドメインロジックを提供する。
package invoice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/billman/internal/metrics"
	"github.com/hitoshi/billman/internal/model"
	"github.com/hitoshi/billman/internal/money"
	"github.com/hitoshi/billman/internal/repository"
)

// ItemInput は明細行の入力。金額はサーバー側で算出するため受け取らない。
type ItemInput struct {
	ID          string
	Description string
	Quantity    int
	Rate        decimal.Decimal
}

// CreateInput は請求書作成の入力。
// 金額系フィールド（小計・税額・割引額・合計）は入力に含まれず、
// 常に明細行と税率・割引率からサーバー側で算出する。
type CreateInput struct {
	InvoiceNumber string
	ClientID      string
	ClientName    string
	ClientEmail   string
	ClientAddress string
	ClientPhone   string
	IssueDate     string
	DueDate       string
	Status        model.InvoiceStatus
	Items         []ItemInput
	TaxRate       decimal.Decimal
	DiscountRate  decimal.Decimal
	Notes         string
	Template      model.InvoiceTemplate
	Currency      string
	Signature     string
	QRPayload     string
}

// Update は請求書の部分更新コマンド。nilのフィールドは変更しない。
// Items・TaxRate・DiscountRateのいずれかが指定された場合、
// 金額系フィールドはすべて再計算される。
type Update struct {
	InvoiceNumber *string
	ClientID      *string
	ClientName    *string
	ClientEmail   *string
	ClientAddress *string
	ClientPhone   *string
	IssueDate     *string
	DueDate       *string
	Status        *model.InvoiceStatus
	Items         *[]ItemInput
	TaxRate       *decimal.Decimal
	DiscountRate  *decimal.Decimal
	Notes         *string
	Template      *model.InvoiceTemplate
	Currency      *string
	Signature     *string
	QRPayload     *string
}

// Service は請求書管理のサービス層。
type Service struct {
	invoiceRepo repository.InvoiceRepository
	clientRepo  repository.ClientRepository
	metrics     metrics.MetricsCollector
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	invoiceRepo repository.InvoiceRepository,
	clientRepo repository.ClientRepository,
	collector metrics.MetricsCollector,
) *Service {
	return &Service{
		invoiceRepo: invoiceRepo,
		clientRepo:  clientRepo,
		metrics:     collector,
	}
}

// List はユーザーの請求書一覧を新しい順で返す。
func (s *Service) List(ctx context.Context, userID string) ([]*model.Invoice, error) {
	invoices, err := s.invoiceRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	return invoices, nil
}

// Get は指定IDの請求書を取得する。見つからない場合はINVOICE_NOT_FOUNDを返す。
func (s *Service) Get(ctx context.Context, userID, id string) (*model.Invoice, error) {
	invoice, err := s.invoiceRepo.FindByID(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find invoice: %w", err)
	}
	if invoice == nil {
		return nil, model.NewInvoiceNotFoundError(id)
	}
	return invoice, nil
}

// Search は請求書番号・顧客名・備考に対する部分一致検索を行う。
// 空のクエリは全件と等価。
func (s *Service) Search(ctx context.Context, userID, query string) ([]*model.Invoice, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.List(ctx, userID)
	}

	invoices, err := s.invoiceRepo.Search(ctx, userID, query)
	if err != nil {
		return nil, fmt.Errorf("failed to search invoices: %w", err)
	}
	return invoices, nil
}

// Filter は構造化フィルタで請求書を絞り込む。空のフィルタは全件と等価。
func (s *Service) Filter(ctx context.Context, userID string, filter model.InvoiceFilter) ([]*model.Invoice, error) {
	if filter.Status != nil && !model.ValidInvoiceStatus(*filter.Status) {
		return nil, model.NewInvalidStatusError(string(*filter.Status))
	}
	if filter.Empty() {
		return s.List(ctx, userID)
	}

	invoices, err := s.invoiceRepo.ListFiltered(ctx, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to filter invoices: %w", err)
	}
	return invoices, nil
}

// Create は請求書を作成する。
// 請求書番号が未指定の場合は INV-<作成時刻のミリ秒> 形式で採番する。
// ClientIDが指定されスナップショットが空の場合、顧客情報をこの時点で複製する。
func (s *Service) Create(ctx context.Context, userID string, input CreateInput) (*model.Invoice, error) {
	if input.Status == "" {
		input.Status = model.InvoiceStatusDraft
	}
	if !model.ValidInvoiceStatus(input.Status) {
		return nil, model.NewInvalidStatusError(string(input.Status))
	}
	if input.Template == "" {
		input.Template = model.TemplateModern
	}
	if !model.ValidInvoiceTemplate(input.Template) {
		return nil, model.NewValidationError("template")
	}
	if input.Currency == "" {
		input.Currency = "USD"
	}

	items, err := buildItems(input.Items)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	invoice := &model.Invoice{
		ID:            uuid.New().String(),
		UserID:        userID,
		InvoiceNumber: input.InvoiceNumber,
		ClientID:      input.ClientID,
		ClientName:    input.ClientName,
		ClientEmail:   input.ClientEmail,
		ClientAddress: input.ClientAddress,
		ClientPhone:   input.ClientPhone,
		IssueDate:     input.IssueDate,
		DueDate:       input.DueDate,
		Status:        input.Status,
		Items:         items,
		TaxRate:       input.TaxRate,
		DiscountRate:  input.DiscountRate,
		Notes:         input.Notes,
		Template:      input.Template,
		Currency:      input.Currency,
		Signature:     input.Signature,
		QRPayload:     input.QRPayload,
		EmailLogs:     []model.EmailLog{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if invoice.InvoiceNumber == "" {
		invoice.InvoiceNumber = fmt.Sprintf("INV-%d", now.UnixMilli())
	}

	if invoice.ClientID != "" && invoice.ClientName == "" {
		if err := s.snapshotClient(ctx, invoice); err != nil {
			return nil, err
		}
	}

	applyTotals(invoice)

	if err := s.invoiceRepo.Create(ctx, invoice); err != nil {
		return nil, fmt.Errorf("failed to create invoice: %w", err)
	}
	s.metrics.RecordInvoiceCreated()

	return invoice, nil
}

// UpdateInvoice は請求書を部分更新する。見つからない場合はINVOICE_NOT_FOUNDを返す。
func (s *Service) UpdateInvoice(ctx context.Context, userID, id string, update Update) (*model.Invoice, error) {
	invoice, err := s.invoiceRepo.FindByID(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find invoice: %w", err)
	}
	if invoice == nil {
		return nil, model.NewInvoiceNotFoundError(id)
	}

	if update.Status != nil && !model.ValidInvoiceStatus(*update.Status) {
		return nil, model.NewInvalidStatusError(string(*update.Status))
	}
	if update.Template != nil && !model.ValidInvoiceTemplate(*update.Template) {
		return nil, model.NewValidationError("template")
	}

	recompute := false

	if update.InvoiceNumber != nil {
		invoice.InvoiceNumber = *update.InvoiceNumber
	}
	if update.ClientID != nil {
		invoice.ClientID = *update.ClientID
	}
	if update.ClientName != nil {
		invoice.ClientName = *update.ClientName
	}
	if update.ClientEmail != nil {
		invoice.ClientEmail = *update.ClientEmail
	}
	if update.ClientAddress != nil {
		invoice.ClientAddress = *update.ClientAddress
	}
	if update.ClientPhone != nil {
		invoice.ClientPhone = *update.ClientPhone
	}
	if update.IssueDate != nil {
		invoice.IssueDate = *update.IssueDate
	}
	if update.DueDate != nil {
		invoice.DueDate = *update.DueDate
	}
	if update.Status != nil {
		invoice.Status = *update.Status
	}
	if update.Items != nil {
		items, err := buildItems(*update.Items)
		if err != nil {
			return nil, err
		}
		invoice.Items = items
		recompute = true
	}
	if update.TaxRate != nil {
		invoice.TaxRate = *update.TaxRate
		recompute = true
	}
	if update.DiscountRate != nil {
		invoice.DiscountRate = *update.DiscountRate
		recompute = true
	}
	if update.Notes != nil {
		invoice.Notes = *update.Notes
	}
	if update.Template != nil {
		invoice.Template = *update.Template
	}
	if update.Currency != nil {
		invoice.Currency = *update.Currency
	}
	if update.Signature != nil {
		invoice.Signature = *update.Signature
	}
	if update.QRPayload != nil {
		invoice.QRPayload = *update.QRPayload
	}

	if recompute {
		applyTotals(invoice)
	}
	invoice.UpdatedAt = time.Now()

	if err := s.invoiceRepo.Update(ctx, invoice); err != nil {
		return nil, fmt.Errorf("failed to update invoice: %w", err)
	}

	return invoice, nil
}

// Delete は請求書を削除する。存在しないIDに対しては何もしない（冪等）。
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if err := s.invoiceRepo.Delete(ctx, userID, id); err != nil {
		return fmt.Errorf("failed to delete invoice: %w", err)
	}
	return nil
}

// Stats はダッシュボード用の集計を返す。
func (s *Service) Stats(ctx context.Context, userID string) (*repository.InvoiceStats, error) {
	stats, err := s.invoiceRepo.StatsByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute invoice stats: %w", err)
	}
	return stats, nil
}

// AppendEmailLog は送信履歴を追記して請求書を保存する。
// markSentがtrueかつ現在のステータスがdraftの場合、sentへ遷移させる。
// 送信失敗の記録でも履歴は必ず残す（追記専用）。
func (s *Service) AppendEmailLog(ctx context.Context, userID, id string, entry model.EmailLog, markSent bool) (*model.Invoice, error) {
	invoice, err := s.invoiceRepo.FindByID(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find invoice: %w", err)
	}
	if invoice == nil {
		return nil, model.NewInvoiceNotFoundError(id)
	}

	invoice.EmailLogs = append(invoice.EmailLogs, entry)
	if markSent && invoice.Status == model.InvoiceStatusDraft {
		invoice.Status = model.InvoiceStatusSent
	}
	invoice.UpdatedAt = time.Now()

	if err := s.invoiceRepo.Update(ctx, invoice); err != nil {
		return nil, fmt.Errorf("failed to save email log: %w", err)
	}

	return invoice, nil
}

// snapshotClient は顧客情報を請求書に複製する。
// 参照先の顧客が存在しない場合はCLIENT_NOT_FOUNDを返す。
func (s *Service) snapshotClient(ctx context.Context, invoice *model.Invoice) error {
	client, err := s.clientRepo.FindByID(ctx, invoice.UserID, invoice.ClientID)
	if err != nil {
		return fmt.Errorf("failed to find client for snapshot: %w", err)
	}
	if client == nil {
		return model.NewClientNotFoundError(invoice.ClientID)
	}

	invoice.ClientName = client.Name
	invoice.ClientEmail = client.Email
	invoice.ClientAddress = client.Address
	invoice.ClientPhone = client.Phone
	return nil
}

// buildItems は明細行入力を検証し、ID付与と金額算出を行う。
func buildItems(inputs []ItemInput) ([]model.LineItem, error) {
	items := make([]model.LineItem, 0, len(inputs))
	for _, in := range inputs {
		if in.Quantity <= 0 {
			return nil, model.NewValidationError("quantity")
		}
		if in.Rate.IsNegative() {
			return nil, model.NewValidationError("rate")
		}
		id := in.ID
		if id == "" {
			id = uuid.New().String()
		}
		items = append(items, model.LineItem{
			ID:          id,
			Description: in.Description,
			Quantity:    in.Quantity,
			Rate:        in.Rate,
			Amount:      money.LineAmount(in.Quantity, in.Rate),
		})
	}
	return items, nil
}

// applyTotals は明細行と税率・割引率から金額系フィールドを再計算する。
func applyTotals(invoice *model.Invoice) {
	totals := money.ComputeTotals(invoice.Items, invoice.TaxRate, invoice.DiscountRate)
	invoice.Subtotal = totals.Subtotal
	invoice.DiscountAmount = totals.DiscountAmount
	invoice.TaxAmount = totals.TaxAmount
	invoice.Total = totals.Total
}
