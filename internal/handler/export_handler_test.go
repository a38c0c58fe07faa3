package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/billman/internal/model"
)

// --- モック定義 ---

// mockExportService はExportServiceInterfaceのモック実装。
type mockExportService struct {
	exportJSONFn       func(ctx context.Context, userID string) ([]byte, error)
	importJSONFn       func(ctx context.Context, userID string, data []byte) error
	exportCSVFn        func(ctx context.Context, userID string) ([]byte, error)
	exportInvoiceCSVFn func(ctx context.Context, userID, invoiceID string) ([]byte, error)
}

func (m *mockExportService) ExportJSON(ctx context.Context, userID string) ([]byte, error) {
	if m.exportJSONFn != nil {
		return m.exportJSONFn(ctx, userID)
	}
	return []byte(`{"version":"1.0"}`), nil
}

func (m *mockExportService) ImportJSON(ctx context.Context, userID string, data []byte) error {
	if m.importJSONFn != nil {
		return m.importJSONFn(ctx, userID, data)
	}
	return nil
}

func (m *mockExportService) ExportCSV(ctx context.Context, userID string) ([]byte, error) {
	if m.exportCSVFn != nil {
		return m.exportCSVFn(ctx, userID)
	}
	return []byte("Invoice Number\n"), nil
}

func (m *mockExportService) ExportInvoiceCSV(ctx context.Context, userID, invoiceID string) ([]byte, error) {
	if m.exportInvoiceCSVFn != nil {
		return m.exportInvoiceCSVFn(ctx, userID, invoiceID)
	}
	return []byte("Invoice Number\n"), nil
}

// mockBackupRunner はBackupRunnerInterfaceのモック実装。
type mockBackupRunner struct {
	runForUserFn func(ctx context.Context, userID string) error
}

func (m *mockBackupRunner) RunForUser(ctx context.Context, userID string) error {
	if m.runForUserFn != nil {
		return m.runForUserFn(ctx, userID)
	}
	return nil
}

// mockBackupLister はBackupListerInterfaceのモック実装。
type mockBackupLister struct {
	listByUserIDFn func(ctx context.Context, userID string) ([]*model.Backup, error)
}

func (m *mockBackupLister) ListByUserID(ctx context.Context, userID string) ([]*model.Backup, error) {
	if m.listByUserIDFn != nil {
		return m.listByUserIDFn(ctx, userID)
	}
	return nil, nil
}

func newExportHandler(svc *mockExportService, runner *mockBackupRunner, lister *mockBackupLister) *ExportHandler {
	if svc == nil {
		svc = &mockExportService{}
	}
	if runner == nil {
		runner = &mockBackupRunner{}
	}
	if lister == nil {
		lister = &mockBackupLister{}
	}
	return NewExportHandler(svc, runner, lister)
}

// --- GET /api/export テスト ---

func TestExportHandler_ExportJSON_Download(t *testing.T) {
	svc := &mockExportService{
		exportJSONFn: func(ctx context.Context, userID string) ([]byte, error) {
			if userID != "user-1" {
				t.Errorf("userID = %q, want user-1", userID)
			}
			return []byte(`{"invoices":[],"clients":[],"version":"1.0"}`), nil
		},
	}

	h := newExportHandler(svc, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/export", nil)
	req = withUserID(req, "user-1")
	w := httptest.NewRecorder()

	h.ExportJSON(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "invoices-export.json") {
		t.Errorf("Content-Disposition = %q, want filename invoices-export.json", cd)
	}
}

func TestExportHandler_ExportJSON_Unauthorized(t *testing.T) {
	h := newExportHandler(nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/export", nil)
	w := httptest.NewRecorder()

	h.ExportJSON(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

// --- POST /api/import テスト ---

func TestExportHandler_ImportJSON_PassesBody(t *testing.T) {
	doc := `{"invoices":[],"clients":[],"exportDate":"2026-08-31T00:00:00Z","version":"1.0"}`
	svc := &mockExportService{
		importJSONFn: func(ctx context.Context, userID string, data []byte) error {
			if string(data) != doc {
				t.Errorf("data = %q, want original body", string(data))
			}
			return nil
		},
	}

	h := newExportHandler(svc, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/import", bytes.NewBufferString(doc))
	req = withUserID(req, "user-1")
	w := httptest.NewRecorder()

	h.ImportJSON(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
}

func TestExportHandler_ImportJSON_InvalidDocument(t *testing.T) {
	svc := &mockExportService{
		importJSONFn: func(ctx context.Context, userID string, data []byte) error {
			return model.NewImportInvalidError("バージョンが一致しません")
		},
	}

	h := newExportHandler(svc, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/import", bytes.NewBufferString(`{"version":"2.0"}`))
	req = withUserID(req, "user-1")
	w := httptest.NewRecorder()

	h.ImportJSON(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	result := parseAPIErrorResponse(t, w)
	if result["code"] != "IMPORT_INVALID" {
		t.Errorf("code = %q, want IMPORT_INVALID", result["code"])
	}
}

// --- GET /api/invoices/csv テスト ---

func TestExportHandler_ExportCSV_Download(t *testing.T) {
	h := newExportHandler(nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/invoices/csv", nil)
	req = withUserID(req, "user-1")
	w := httptest.NewRecorder()

	h.ExportCSV(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Content-Type = %q, want text/csv", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "invoices.csv") {
		t.Errorf("Content-Disposition = %q, want filename invoices.csv", cd)
	}
}

// --- GET /api/invoices/{id}/csv テスト ---

func TestExportHandler_ExportInvoiceCSV_Download(t *testing.T) {
	svc := &mockExportService{
		exportInvoiceCSVFn: func(ctx context.Context, userID, invoiceID string) ([]byte, error) {
			if invoiceID != "inv-1" {
				t.Errorf("invoiceID = %q, want inv-1", invoiceID)
			}
			return []byte("Invoice Number\nINV-1\n"), nil
		},
	}

	h := newExportHandler(svc, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/invoices/inv-1/csv", nil)
	req = withUserID(req, "user-1")
	req = withChiURLParam(req, "id", "inv-1")
	w := httptest.NewRecorder()

	h.ExportInvoiceCSV(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "invoice-inv-1.csv") {
		t.Errorf("Content-Disposition = %q, want filename invoice-inv-1.csv", cd)
	}
}

func TestExportHandler_ExportInvoiceCSV_NotFound(t *testing.T) {
	svc := &mockExportService{
		exportInvoiceCSVFn: func(ctx context.Context, userID, invoiceID string) ([]byte, error) {
			return nil, model.NewInvoiceNotFoundError(invoiceID)
		},
	}

	h := newExportHandler(svc, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/invoices/missing/csv", nil)
	req = withUserID(req, "user-1")
	req = withChiURLParam(req, "id", "missing")
	w := httptest.NewRecorder()

	h.ExportInvoiceCSV(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// --- POST /api/export/backup テスト ---

func TestExportHandler_CreateBackup(t *testing.T) {
	runCalled := false
	runner := &mockBackupRunner{
		runForUserFn: func(ctx context.Context, userID string) error {
			runCalled = true
			if userID != "user-1" {
				t.Errorf("userID = %q, want user-1", userID)
			}
			return nil
		},
	}

	h := newExportHandler(nil, runner, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/export/backup", nil)
	req = withUserID(req, "user-1")
	w := httptest.NewRecorder()

	h.CreateBackup(w, req)

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if !runCalled {
		t.Error("RunForUser should be called")
	}
}

// --- GET /api/export/backups テスト ---

func TestExportHandler_ListBackups_OmitsData(t *testing.T) {
	lister := &mockBackupLister{
		listByUserIDFn: func(ctx context.Context, userID string) ([]*model.Backup, error) {
			return []*model.Backup{
				{Key: "backup_user-1_1000", Data: []byte("{}"), CreatedAt: time.Now()},
				{Key: "backup_user-1_2000", Data: []byte("{}"), CreatedAt: time.Now()},
			}, nil
		},
	}

	h := newExportHandler(nil, nil, lister)

	req := httptest.NewRequest(http.MethodGet, "/api/export/backups", nil)
	req = withUserID(req, "user-1")
	w := httptest.NewRecorder()

	h.ListBackups(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var results []map[string]any
	if err := json.NewDecoder(w.Body).Decode(&results); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d backups, want 2", len(results))
	}
	if results[0]["key"] != "backup_user-1_1000" {
		t.Errorf("key = %v, want backup_user-1_1000", results[0]["key"])
	}
	if _, ok := results[0]["data"]; ok {
		t.Error("backup data should not be included in the listing")
	}
}
