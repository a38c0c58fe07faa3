// Package export はユーザーデータのエクスポート・インポートとCSV出力を提供する。
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/billman/internal/metrics"
	"github.com/hitoshi/billman/internal/model"
	"github.com/hitoshi/billman/internal/money"
	"github.com/hitoshi/billman/internal/repository"
)

// documentVersion はエクスポート文書のスキーマバージョン。
const documentVersion = "1.0"

// ClientRecord はエクスポート文書内の顧客レコード。
type ClientRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Address   string    `json:"address"`
	Phone     string    `json:"phone"`
	Company   string    `json:"company,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// InvoiceRecord はエクスポート文書内の請求書レコード。
type InvoiceRecord struct {
	ID             string           `json:"id"`
	InvoiceNumber  string           `json:"invoiceNumber"`
	ClientID       string           `json:"clientId"`
	ClientName     string           `json:"clientName"`
	ClientEmail    string           `json:"clientEmail"`
	ClientAddress  string           `json:"clientAddress"`
	ClientPhone    string           `json:"clientPhone,omitempty"`
	IssueDate      string           `json:"issueDate"`
	DueDate        string           `json:"dueDate"`
	Status         string           `json:"status"`
	Items          []model.LineItem `json:"items"`
	Subtotal       decimal.Decimal  `json:"subtotal"`
	TaxRate        decimal.Decimal  `json:"taxRate"`
	TaxAmount      decimal.Decimal  `json:"taxAmount"`
	DiscountRate   decimal.Decimal  `json:"discountRate"`
	DiscountAmount decimal.Decimal  `json:"discountAmount"`
	Total          decimal.Decimal  `json:"total"`
	Notes          string           `json:"notes"`
	Template       string           `json:"template"`
	Currency       string           `json:"currency,omitempty"`
	Signature      string           `json:"signature,omitempty"`
	QRPayload      string           `json:"qrPayload,omitempty"`
	EmailLogs      []model.EmailLog `json:"emailLogs,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// Document はエクスポート文書全体を表す。
// バックアップスナップショットもこの形式を共有する。
type Document struct {
	Invoices   []InvoiceRecord `json:"invoices"`
	Clients    []ClientRecord  `json:"clients"`
	ExportDate time.Time       `json:"exportDate"`
	Version    string          `json:"version"`
}

// Service はエクスポート・インポートのサービス層。
type Service struct {
	clientRepo  repository.ClientRepository
	invoiceRepo repository.InvoiceRepository
	datasetRepo repository.DatasetRepository
	metrics     metrics.MetricsCollector
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	clientRepo repository.ClientRepository,
	invoiceRepo repository.InvoiceRepository,
	datasetRepo repository.DatasetRepository,
	collector metrics.MetricsCollector,
) *Service {
	return &Service{
		clientRepo:  clientRepo,
		invoiceRepo: invoiceRepo,
		datasetRepo: datasetRepo,
		metrics:     collector,
	}
}

// BuildDocument はユーザーの全データからエクスポート文書を組み立てる。
// バックアップワーカーもスナップショット生成にこれを使用する。
func (s *Service) BuildDocument(ctx context.Context, userID string) (*Document, error) {
	clients, err := s.clientRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load clients: %w", err)
	}
	invoices, err := s.invoiceRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load invoices: %w", err)
	}

	doc := &Document{
		Invoices:   make([]InvoiceRecord, 0, len(invoices)),
		Clients:    make([]ClientRecord, 0, len(clients)),
		ExportDate: time.Now(),
		Version:    documentVersion,
	}
	for _, c := range clients {
		doc.Clients = append(doc.Clients, toClientRecord(c))
	}
	for _, inv := range invoices {
		doc.Invoices = append(doc.Invoices, toInvoiceRecord(inv))
	}

	return doc, nil
}

// ExportJSON はエクスポート文書をJSONとして返す。
func (s *Service) ExportJSON(ctx context.Context, userID string) ([]byte, error) {
	doc, err := s.BuildDocument(ctx, userID)
	if err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode export document: %w", err)
	}

	s.metrics.RecordExport("json")
	return data, nil
}

// ImportJSON はエクスポート文書を検証し、ユーザーのデータを丸ごと置き換える。
//
// 検証に1箇所でも失敗した場合は何も変更せずIMPORT_INVALIDを返す（全置換か無変更か）。
// 文書内の所有者情報は無視し、すべてのレコードをインポート先ユーザーの所有として
// 取り込む。金額系フィールドは文書の値を信用せず再計算する。
func (s *Service) ImportJSON(ctx context.Context, userID string, data []byte) error {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return model.NewImportInvalidError("JSON文書として解釈できません")
	}
	if doc.Version != documentVersion {
		return model.NewImportInvalidError(fmt.Sprintf("未対応のバージョンです: %q", doc.Version))
	}

	clients := make([]*model.Client, 0, len(doc.Clients))
	for i, rec := range doc.Clients {
		if rec.Name == "" {
			return model.NewImportInvalidError(fmt.Sprintf("clients[%d]: nameは必須です", i))
		}
		c := fromClientRecord(rec, userID)
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		clients = append(clients, c)
	}

	invoices := make([]*model.Invoice, 0, len(doc.Invoices))
	for i, rec := range doc.Invoices {
		inv, err := fromInvoiceRecord(rec, userID)
		if err != nil {
			return model.NewImportInvalidError(fmt.Sprintf("invoices[%d]: %s", i, err))
		}
		invoices = append(invoices, inv)
	}

	if err := s.datasetRepo.ReplaceUserData(ctx, userID, clients, invoices); err != nil {
		return fmt.Errorf("failed to replace user data: %w", err)
	}

	return nil
}

func toClientRecord(c *model.Client) ClientRecord {
	return ClientRecord{
		ID:        c.ID,
		Name:      c.Name,
		Email:     c.Email,
		Address:   c.Address,
		Phone:     c.Phone,
		Company:   c.Company,
		CreatedAt: c.CreatedAt,
	}
}

func fromClientRecord(rec ClientRecord, userID string) *model.Client {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return &model.Client{
		ID:        rec.ID,
		UserID:    userID,
		Name:      rec.Name,
		Email:     rec.Email,
		Address:   rec.Address,
		Phone:     rec.Phone,
		Company:   rec.Company,
		CreatedAt: createdAt,
	}
}

func toInvoiceRecord(inv *model.Invoice) InvoiceRecord {
	return InvoiceRecord{
		ID:             inv.ID,
		InvoiceNumber:  inv.InvoiceNumber,
		ClientID:       inv.ClientID,
		ClientName:     inv.ClientName,
		ClientEmail:    inv.ClientEmail,
		ClientAddress:  inv.ClientAddress,
		ClientPhone:    inv.ClientPhone,
		IssueDate:      inv.IssueDate,
		DueDate:        inv.DueDate,
		Status:         string(inv.Status),
		Items:          inv.Items,
		Subtotal:       inv.Subtotal,
		TaxRate:        inv.TaxRate,
		TaxAmount:      inv.TaxAmount,
		DiscountRate:   inv.DiscountRate,
		DiscountAmount: inv.DiscountAmount,
		Total:          inv.Total,
		Notes:          inv.Notes,
		Template:       string(inv.Template),
		Currency:       inv.Currency,
		Signature:      inv.Signature,
		QRPayload:      inv.QRPayload,
		EmailLogs:      inv.EmailLogs,
		CreatedAt:      inv.CreatedAt,
		UpdatedAt:      inv.UpdatedAt,
	}
}

// fromInvoiceRecord はレコードを検証してドメインモデルへ変換する。
// 金額系フィールドは文書の値を捨てて明細行から再計算する。
func fromInvoiceRecord(rec InvoiceRecord, userID string) (*model.Invoice, error) {
	status := model.InvoiceStatus(rec.Status)
	if status == "" {
		status = model.InvoiceStatusDraft
	}
	if !model.ValidInvoiceStatus(status) {
		return nil, fmt.Errorf("不正なステータスです: %q", rec.Status)
	}

	tmpl := model.InvoiceTemplate(rec.Template)
	if tmpl == "" {
		tmpl = model.TemplateModern
	}
	if !model.ValidInvoiceTemplate(tmpl) {
		return nil, fmt.Errorf("不正なテンプレートです: %q", rec.Template)
	}

	for _, item := range rec.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("明細行の数量が不正です: %d", item.Quantity)
		}
		if item.Rate.IsNegative() {
			return nil, fmt.Errorf("明細行の単価が負です: %s", item.Rate)
		}
	}

	now := time.Now()
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}

	inv := &model.Invoice{
		ID:            rec.ID,
		UserID:        userID,
		InvoiceNumber: rec.InvoiceNumber,
		ClientID:      rec.ClientID,
		ClientName:    rec.ClientName,
		ClientEmail:   rec.ClientEmail,
		ClientAddress: rec.ClientAddress,
		ClientPhone:   rec.ClientPhone,
		IssueDate:     rec.IssueDate,
		DueDate:       rec.DueDate,
		Status:        status,
		Items:         money.RecalculateItems(rec.Items),
		TaxRate:       rec.TaxRate,
		DiscountRate:  rec.DiscountRate,
		Notes:         rec.Notes,
		Template:      tmpl,
		Currency:      rec.Currency,
		Signature:     rec.Signature,
		QRPayload:     rec.QRPayload,
		EmailLogs:     rec.EmailLogs,
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
	}
	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}
	if inv.InvoiceNumber == "" {
		inv.InvoiceNumber = fmt.Sprintf("INV-%d", now.UnixMilli())
	}
	if inv.EmailLogs == nil {
		inv.EmailLogs = []model.EmailLog{}
	}

	totals := money.ComputeTotals(inv.Items, inv.TaxRate, inv.DiscountRate)
	inv.Subtotal = totals.Subtotal
	inv.DiscountAmount = totals.DiscountAmount
	inv.TaxAmount = totals.TaxAmount
	inv.Total = totals.Total

	return inv, nil
}
