package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/billman/internal/middleware"
	"github.com/hitoshi/billman/internal/model"
)

// importMaxBodySize はインポートボディの最大サイズ。
const importMaxBodySize = 10 << 20 // 10MB

// ExportServiceInterface はエクスポートハンドラーが必要とするサービスインターフェース。
type ExportServiceInterface interface {
	// ExportJSON はユーザーの全データをJSONドキュメントとして返す。
	ExportJSON(ctx context.Context, userID string) ([]byte, error)
	// ImportJSON はJSONドキュメントを検証し、ユーザーのデータを一括置換する。
	ImportJSON(ctx context.Context, userID string, data []byte) error
	// ExportCSV は請求書一覧をCSVとして返す。
	ExportCSV(ctx context.Context, userID string) ([]byte, error)
	// ExportInvoiceCSV は単一の請求書をCSVとして返す。
	ExportInvoiceCSV(ctx context.Context, userID, invoiceID string) ([]byte, error)
}

// BackupRunnerInterface はオンデマンドバックアップの実行インターフェース。
type BackupRunnerInterface interface {
	// RunForUser は1ユーザーのスナップショットを作成し、古い世代を削除する。
	RunForUser(ctx context.Context, userID string) error
}

// BackupListerInterface はスナップショット一覧の取得インターフェース。
// repository.BackupRepositoryの部分集合として定義する。
type BackupListerInterface interface {
	ListByUserID(ctx context.Context, userID string) ([]*model.Backup, error)
}

// ExportHandler はデータエクスポート・インポート・バックアップのHTTPハンドラー。
type ExportHandler struct {
	service ExportServiceInterface
	runner  BackupRunnerInterface
	backups BackupListerInterface
}

// NewExportHandler はExportHandlerを生成する。
func NewExportHandler(service ExportServiceInterface, runner BackupRunnerInterface, backups BackupListerInterface) *ExportHandler {
	return &ExportHandler{
		service: service,
		runner:  runner,
		backups: backups,
	}
}

// backupResponse はスナップショット情報のAPIレスポンス。
// データ本体は含めず、キーと作成日時のみ返す。
type backupResponse struct {
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"created_at"`
}

// ExportJSON は全データをJSONファイルとしてダウンロードさせる。
// GET /api/export
func (h *ExportHandler) ExportJSON(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	data, err := h.service.ExportJSON(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="invoices-export.json"`)
	w.Write(data)
}

// ImportJSON はエクスポートドキュメントを取り込み、ユーザーのデータを一括置換する。
// POST /api/import
func (h *ExportHandler) ImportJSON(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, importMaxBodySize))
	if err != nil {
		writeInvalidRequestBody(w)
		return
	}

	if err := h.service.ImportJSON(r.Context(), userID, body); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ExportCSV は請求書一覧をCSVファイルとしてダウンロードさせる。
// GET /api/invoices/csv
func (h *ExportHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	data, err := h.service.ExportCSV(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="invoices.csv"`)
	w.Write(data)
}

// ExportInvoiceCSV は単一の請求書をCSVファイルとしてダウンロードさせる。
// GET /api/invoices/{id}/csv
func (h *ExportHandler) ExportInvoiceCSV(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	invoiceID := chi.URLParam(r, "id")
	data, err := h.service.ExportInvoiceCSV(r.Context(), userID, invoiceID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "invoice-"+invoiceID+".csv"))
	w.Write(data)
}

// CreateBackup はオンデマンドでスナップショットを作成する。
// POST /api/export/backup
func (h *ExportHandler) CreateBackup(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	if err := h.runner.RunForUser(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

// ListBackups はスナップショット一覧を古い順で返す。
// GET /api/export/backups
func (h *ExportHandler) ListBackups(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	backups, err := h.backups.ListByUserID(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]backupResponse, len(backups))
	for i, b := range backups {
		results[i] = backupResponse{
			Key:       b.Key,
			CreatedAt: b.CreatedAt,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}
