package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/billman/internal/invoice"
	"github.com/hitoshi/billman/internal/mail"
	"github.com/hitoshi/billman/internal/middleware"
	"github.com/hitoshi/billman/internal/model"
	"github.com/hitoshi/billman/internal/repository"
)

// InvoiceServiceInterface は請求書ハンドラーが必要とするサービスインターフェース。
type InvoiceServiceInterface interface {
	// List はユーザーの請求書一覧を新しい順で返す。
	List(ctx context.Context, userID string) ([]*model.Invoice, error)
	// Get は指定IDの請求書を取得する。
	Get(ctx context.Context, userID, id string) (*model.Invoice, error)
	// Search は請求書番号・顧客名・備考に対する部分一致検索を行う。
	Search(ctx context.Context, userID, query string) ([]*model.Invoice, error)
	// Filter は構造化フィルタで請求書を絞り込む。
	Filter(ctx context.Context, userID string, filter model.InvoiceFilter) ([]*model.Invoice, error)
	// Create は請求書を作成する。金額は常にサーバー側で算出する。
	Create(ctx context.Context, userID string, input invoice.CreateInput) (*model.Invoice, error)
	// UpdateInvoice は請求書を部分更新する。
	UpdateInvoice(ctx context.Context, userID, id string, update invoice.Update) (*model.Invoice, error)
	// Delete は請求書を削除する。
	Delete(ctx context.Context, userID, id string) error
	// Stats はステータス別の件数と売上集計を返す。
	Stats(ctx context.Context, userID string) (*repository.InvoiceStats, error)
}

// MailServiceInterface は請求書メール送信のインターフェース。
type MailServiceInterface interface {
	// SendInvoice は請求書をメール送信し、メッセージIDと履歴追記後の請求書を返す。
	SendInvoice(ctx context.Context, user *model.User, invoiceID string, opts mail.SendOptions) (*mail.SendResult, error)
}

// UserProviderInterface は認証済みユーザーの取得インターフェース。
// repository.UserRepositoryの部分集合として定義する。
type UserProviderInterface interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// PDFRendererInterface は請求書のPDF描画インターフェース。
type PDFRendererInterface interface {
	Render(invoice *model.Invoice, user *model.User) ([]byte, error)
}

// InvoiceHandler は請求書管理のHTTPハンドラー。
type InvoiceHandler struct {
	service  InvoiceServiceInterface
	mailer   MailServiceInterface
	users    UserProviderInterface
	renderer PDFRendererInterface
}

// NewInvoiceHandler はInvoiceHandlerを生成する。
func NewInvoiceHandler(
	service InvoiceServiceInterface,
	mailer MailServiceInterface,
	users UserProviderInterface,
	renderer PDFRendererInterface,
) *InvoiceHandler {
	return &InvoiceHandler{
		service:  service,
		mailer:   mailer,
		users:    users,
		renderer: renderer,
	}
}

// itemRequest は明細行の入力。Amountは受け取らずサーバー側で算出する。
type itemRequest struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	Rate        decimal.Decimal `json:"rate"`
}

// createInvoiceRequest は請求書作成リクエストのボディ。
// 小計・税額・割引額・合計は受け取らない。
type createInvoiceRequest struct {
	InvoiceNumber string          `json:"invoice_number"`
	ClientID      string          `json:"client_id"`
	ClientName    string          `json:"client_name"`
	ClientEmail   string          `json:"client_email"`
	ClientAddress string          `json:"client_address"`
	ClientPhone   string          `json:"client_phone"`
	IssueDate     string          `json:"issue_date"`
	DueDate       string          `json:"due_date"`
	Status        string          `json:"status"`
	Items         []itemRequest   `json:"items"`
	TaxRate       decimal.Decimal `json:"tax_rate"`
	DiscountRate  decimal.Decimal `json:"discount_rate"`
	Notes         string          `json:"notes"`
	Template      string          `json:"template"`
	Currency      string          `json:"currency"`
	Signature     string          `json:"signature"`
	QRPayload     string          `json:"qr_payload"`
}

// updateInvoiceRequest は請求書更新リクエストのボディ。
// 省略されたフィールドは変更しない。
type updateInvoiceRequest struct {
	InvoiceNumber *string          `json:"invoice_number"`
	ClientID      *string          `json:"client_id"`
	ClientName    *string          `json:"client_name"`
	ClientEmail   *string          `json:"client_email"`
	ClientAddress *string          `json:"client_address"`
	ClientPhone   *string          `json:"client_phone"`
	IssueDate     *string          `json:"issue_date"`
	DueDate       *string          `json:"due_date"`
	Status        *string          `json:"status"`
	Items         *[]itemRequest   `json:"items"`
	TaxRate       *decimal.Decimal `json:"tax_rate"`
	DiscountRate  *decimal.Decimal `json:"discount_rate"`
	Notes         *string          `json:"notes"`
	Template      *string          `json:"template"`
	Currency      *string          `json:"currency"`
	Signature     *string          `json:"signature"`
	QRPayload     *string          `json:"qr_payload"`
}

// sendInvoiceRequest はメール送信リクエストのボディ。
type sendInvoiceRequest struct {
	Recipient     string `json:"recipient"`
	CustomMessage string `json:"custom_message"`
}

// sendInvoiceResponse はメール送信のAPIレスポンス。
type sendInvoiceResponse struct {
	MessageID string          `json:"message_id"`
	Invoice   invoiceResponse `json:"invoice"`
}

// invoiceResponse は請求書のAPIレスポンス。
type invoiceResponse struct {
	ID             string           `json:"id"`
	InvoiceNumber  string           `json:"invoice_number"`
	ClientID       string           `json:"client_id"`
	ClientName     string           `json:"client_name"`
	ClientEmail    string           `json:"client_email"`
	ClientAddress  string           `json:"client_address"`
	ClientPhone    string           `json:"client_phone"`
	IssueDate      string           `json:"issue_date"`
	DueDate        string           `json:"due_date"`
	Status         string           `json:"status"`
	Items          []model.LineItem `json:"items"`
	Subtotal       decimal.Decimal  `json:"subtotal"`
	TaxRate        decimal.Decimal  `json:"tax_rate"`
	TaxAmount      decimal.Decimal  `json:"tax_amount"`
	DiscountRate   decimal.Decimal  `json:"discount_rate"`
	DiscountAmount decimal.Decimal  `json:"discount_amount"`
	Total          decimal.Decimal  `json:"total"`
	Notes          string           `json:"notes"`
	Template       string           `json:"template"`
	Currency       string           `json:"currency"`
	Signature      string           `json:"signature,omitempty"`
	QRPayload      string           `json:"qr_payload,omitempty"`
	EmailLogs      []model.EmailLog `json:"email_logs"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// statsResponse は売上集計のAPIレスポンス。
type statsResponse struct {
	TotalRevenue   decimal.Decimal `json:"total_revenue"`
	PaidRevenue    decimal.Decimal `json:"paid_revenue"`
	PendingRevenue decimal.Decimal `json:"pending_revenue"`
	OverdueRevenue decimal.Decimal `json:"overdue_revenue"`
	TotalCount     int             `json:"total_count"`
	DraftCount     int             `json:"draft_count"`
	SentCount      int             `json:"sent_count"`
	PaidCount      int             `json:"paid_count"`
	OverdueCount   int             `json:"overdue_count"`
	AverageValue   decimal.Decimal `json:"average_value"`
}

// ListInvoices は請求書一覧を取得する。
// クエリパラメータ q があればテキスト検索、
// status / date_from / date_to / min_amount / max_amount があれば構造化フィルタを適用する。
// GET /api/invoices
func (h *InvoiceHandler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	query := r.URL.Query()

	var invoices []*model.Invoice
	if q := query.Get("q"); q != "" {
		invoices, err = h.service.Search(r.Context(), userID, q)
	} else {
		filter, filterErr := parseInvoiceFilter(query.Get("status"), query.Get("date_from"),
			query.Get("date_to"), query.Get("min_amount"), query.Get("max_amount"))
		if filterErr != nil {
			handleServiceError(w, filterErr)
			return
		}
		invoices, err = h.service.Filter(r.Context(), userID, filter)
	}
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]invoiceResponse, len(invoices))
	for i, inv := range invoices {
		results[i] = toInvoiceResponse(inv)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

// GetInvoice は請求書詳細を取得する。
// GET /api/invoices/:id
func (h *InvoiceHandler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	inv, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toInvoiceResponse(inv))
}

// CreateInvoice は請求書を作成する。
// POST /api/invoices
func (h *InvoiceHandler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req createInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	inv, err := h.service.Create(r.Context(), userID, invoice.CreateInput{
		InvoiceNumber: req.InvoiceNumber,
		ClientID:      req.ClientID,
		ClientName:    req.ClientName,
		ClientEmail:   req.ClientEmail,
		ClientAddress: req.ClientAddress,
		ClientPhone:   req.ClientPhone,
		IssueDate:     req.IssueDate,
		DueDate:       req.DueDate,
		Status:        model.InvoiceStatus(req.Status),
		Items:         toItemInputs(req.Items),
		TaxRate:       req.TaxRate,
		DiscountRate:  req.DiscountRate,
		Notes:         req.Notes,
		Template:      model.InvoiceTemplate(req.Template),
		Currency:      req.Currency,
		Signature:     req.Signature,
		QRPayload:     req.QRPayload,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toInvoiceResponse(inv))
}

// UpdateInvoice は請求書を部分更新する。
// PATCH /api/invoices/:id
func (h *InvoiceHandler) UpdateInvoice(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req updateInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	update := invoice.Update{
		InvoiceNumber: req.InvoiceNumber,
		ClientID:      req.ClientID,
		ClientName:    req.ClientName,
		ClientEmail:   req.ClientEmail,
		ClientAddress: req.ClientAddress,
		ClientPhone:   req.ClientPhone,
		IssueDate:     req.IssueDate,
		DueDate:       req.DueDate,
		TaxRate:       req.TaxRate,
		DiscountRate:  req.DiscountRate,
		Notes:         req.Notes,
		Currency:      req.Currency,
		Signature:     req.Signature,
		QRPayload:     req.QRPayload,
	}
	if req.Status != nil {
		status := model.InvoiceStatus(*req.Status)
		update.Status = &status
	}
	if req.Template != nil {
		template := model.InvoiceTemplate(*req.Template)
		update.Template = &template
	}
	if req.Items != nil {
		items := toItemInputs(*req.Items)
		update.Items = &items
	}

	inv, err := h.service.UpdateInvoice(r.Context(), userID, chi.URLParam(r, "id"), update)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toInvoiceResponse(inv))
}

// DeleteInvoice は請求書を削除する。
// DELETE /api/invoices/:id
func (h *InvoiceHandler) DeleteInvoice(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SendInvoice は請求書をメールで送信する。
// POST /api/invoices/:id/send
func (h *InvoiceHandler) SendInvoice(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req sendInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	user, err := h.users.FindByID(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if user == nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	result, err := h.mailer.SendInvoice(r.Context(), user, chi.URLParam(r, "id"), mail.SendOptions{
		Recipient: req.Recipient,
		Message:   req.CustomMessage,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sendInvoiceResponse{
		MessageID: result.MessageID,
		Invoice:   toInvoiceResponse(result.Invoice),
	})
}

// RenderPDF は請求書をテンプレートに従ってPDFとして出力する。
// GET /api/invoices/:id/pdf
func (h *InvoiceHandler) RenderPDF(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	inv, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	user, err := h.users.FindByID(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if user == nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	data, err := h.renderer.Render(inv, user)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", "invoice-"+inv.InvoiceNumber+".pdf"))
	w.Write(data)
}

// GetStats は売上集計を取得する。
// GET /api/stats
func (h *InvoiceHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	stats, err := h.service.Stats(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	average := decimal.Zero
	if stats.TotalCount > 0 {
		average = stats.TotalRevenue.Div(decimal.NewFromInt(int64(stats.TotalCount))).Round(2)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(statsResponse{
		TotalRevenue:   stats.TotalRevenue,
		PaidRevenue:    stats.PaidRevenue,
		PendingRevenue: stats.PendingRevenue,
		OverdueRevenue: stats.OverdueRevenue,
		TotalCount:     stats.TotalCount,
		DraftCount:     stats.DraftCount,
		SentCount:      stats.SentCount,
		PaidCount:      stats.PaidCount,
		OverdueCount:   stats.OverdueCount,
		AverageValue:   average,
	})
}

// --- ヘルパー関数 ---

// parseInvoiceFilter はクエリパラメータから構造化フィルタを組み立てる。
// 空のパラメータは制約なしとして扱う。
func parseInvoiceFilter(status, dateFrom, dateTo, minAmount, maxAmount string) (model.InvoiceFilter, error) {
	var filter model.InvoiceFilter

	if status != "" {
		s := model.InvoiceStatus(status)
		filter.Status = &s
	}
	if dateFrom != "" {
		filter.DateFrom = &dateFrom
	}
	if dateTo != "" {
		filter.DateTo = &dateTo
	}
	if minAmount != "" {
		d, err := decimal.NewFromString(minAmount)
		if err != nil {
			return model.InvoiceFilter{}, model.NewValidationError("min_amount")
		}
		filter.MinAmount = &d
	}
	if maxAmount != "" {
		d, err := decimal.NewFromString(maxAmount)
		if err != nil {
			return model.InvoiceFilter{}, model.NewValidationError("max_amount")
		}
		filter.MaxAmount = &d
	}

	return filter, nil
}

// toItemInputs はリクエストの明細行をサービス入力に変換する。
func toItemInputs(items []itemRequest) []invoice.ItemInput {
	results := make([]invoice.ItemInput, len(items))
	for i, item := range items {
		results[i] = invoice.ItemInput{
			ID:          item.ID,
			Description: item.Description,
			Quantity:    item.Quantity,
			Rate:        item.Rate,
		}
	}
	return results
}

// toInvoiceResponse はmodel.InvoiceからAPIレスポンスに変換する。
func toInvoiceResponse(inv *model.Invoice) invoiceResponse {
	return invoiceResponse{
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

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// writeInvalidRequestBody はJSONボディの解析失敗に対する400レスポンスを書き込む。
func writeInvalidRequestBody(w http.ResponseWriter) {
	writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthorized, model.ErrCodeInvalidCredentials:
		return http.StatusUnauthorized
	case model.ErrCodeRegistrationFailed:
		return http.StatusConflict
	case model.ErrCodeValidationFailed, model.ErrCodeInvalidStatus, model.ErrCodeImportInvalid:
		return http.StatusBadRequest
	case model.ErrCodeClientNotFound, model.ErrCodeInvoiceNotFound, model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeEmailNotConfigured:
		return http.StatusInternalServerError
	case model.ErrCodeEmailSendFailed, model.ErrCodeLogoFetchFailed:
		return http.StatusBadGateway
	case model.ErrCodeSSRFBlocked:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
