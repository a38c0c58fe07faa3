package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/billman/internal/client"
	"github.com/hitoshi/billman/internal/middleware"
	"github.com/hitoshi/billman/internal/model"
)

// ClientServiceInterface は顧客ハンドラーが必要とするサービスインターフェース。
type ClientServiceInterface interface {
	// List はユーザーの顧客一覧を新しい順で返す。
	List(ctx context.Context, userID string) ([]*model.Client, error)
	// Get は指定IDの顧客を取得する。
	Get(ctx context.Context, userID, id string) (*model.Client, error)
	// Create は顧客を作成する。
	Create(ctx context.Context, userID string, input client.CreateInput) (*model.Client, error)
	// UpdateClient は顧客を部分更新する。
	UpdateClient(ctx context.Context, userID, id string, update client.Update) (*model.Client, error)
	// Delete は顧客を削除し、参照している請求書のclient_idを切り離す。
	Delete(ctx context.Context, userID, id string) error
}

// ClientHandler は顧客管理のHTTPハンドラー。
type ClientHandler struct {
	service ClientServiceInterface
}

// NewClientHandler はClientHandlerを生成する。
func NewClientHandler(service ClientServiceInterface) *ClientHandler {
	return &ClientHandler{service: service}
}

// createClientRequest は顧客作成リクエストのボディ。
type createClientRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
	Company string `json:"company"`
}

// updateClientRequest は顧客更新リクエストのボディ。
// 省略されたフィールドは変更しない。
type updateClientRequest struct {
	Name    *string `json:"name"`
	Email   *string `json:"email"`
	Address *string `json:"address"`
	Phone   *string `json:"phone"`
	Company *string `json:"company"`
}

// clientResponse は顧客情報のAPIレスポンス。
type clientResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Address   string    `json:"address"`
	Phone     string    `json:"phone"`
	Company   string    `json:"company"`
	CreatedAt time.Time `json:"created_at"`
}

// ListClients は顧客一覧を取得する。
// GET /api/clients
func (h *ClientHandler) ListClients(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	clients, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]clientResponse, len(clients))
	for i, c := range clients {
		results[i] = toClientResponse(c)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

// GetClient は顧客詳細を取得する。
// GET /api/clients/:id
func (h *ClientHandler) GetClient(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	c, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toClientResponse(c))
}

// CreateClient は顧客を作成する。
// POST /api/clients
func (h *ClientHandler) CreateClient(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req createClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	c, err := h.service.Create(r.Context(), userID, client.CreateInput{
		Name:    req.Name,
		Email:   req.Email,
		Address: req.Address,
		Phone:   req.Phone,
		Company: req.Company,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toClientResponse(c))
}

// UpdateClient は顧客を部分更新する。
// PATCH /api/clients/:id
func (h *ClientHandler) UpdateClient(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req updateClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	c, err := h.service.UpdateClient(r.Context(), userID, chi.URLParam(r, "id"), client.Update{
		Name:    req.Name,
		Email:   req.Email,
		Address: req.Address,
		Phone:   req.Phone,
		Company: req.Company,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toClientResponse(c))
}

// DeleteClient は顧客を削除する。
// DELETE /api/clients/:id
func (h *ClientHandler) DeleteClient(w http.ResponseWriter, r *http.Request) {
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

// toClientResponse はmodel.ClientからAPIレスポンスに変換する。
func toClientResponse(c *model.Client) clientResponse {
	return clientResponse{
		ID:        c.ID,
		Name:      c.Name,
		Email:     c.Email,
		Address:   c.Address,
		Phone:     c.Phone,
		Company:   c.Company,
		CreatedAt: c.CreatedAt,
	}
}
