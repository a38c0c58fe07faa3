package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"

	"github.com/hitoshi/billman/internal/model"
)

// csvHeaders はCSVエクスポートの固定カラム。順序もこの通りに出力する。
var csvHeaders = []string{
	"Invoice Number",
	"Client Name",
	"Client Email",
	"Issue Date",
	"Due Date",
	"Status",
	"Currency",
	"Subtotal",
	"Tax Rate",
	"Tax Amount",
	"Discount Rate",
	"Discount Amount",
	"Total",
	"Notes",
}

// ExportCSV は請求書一覧をCSVとして返す。
// 明細行は展開せず、1請求書1行のサマリー形式で出力する。
// カンマ・改行・引用符を含むフィールドはencoding/csvの規則で引用される。
func (s *Service) ExportCSV(ctx context.Context, userID string) ([]byte, error) {
	invoices, err := s.invoiceRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load invoices: %w", err)
	}

	data, err := renderCSV(invoices)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordExport("csv")
	return data, nil
}

// ExportInvoiceCSV は単一の請求書を1行のCSVとして返す。
// 請求書が見つからない場合はINVOICE_NOT_FOUNDを返す。
func (s *Service) ExportInvoiceCSV(ctx context.Context, userID, invoiceID string) ([]byte, error) {
	inv, err := s.invoiceRepo.FindByID(ctx, userID, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice: %w", err)
	}
	if inv == nil {
		return nil, model.NewInvoiceNotFoundError(invoiceID)
	}

	data, err := renderCSV([]*model.Invoice{inv})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordExport("csv")
	return data, nil
}

func renderCSV(invoices []*model.Invoice) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(csvHeaders); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, inv := range invoices {
		row := []string{
			inv.InvoiceNumber,
			inv.ClientName,
			inv.ClientEmail,
			inv.IssueDate,
			inv.DueDate,
			string(inv.Status),
			inv.Currency,
			inv.Subtotal.StringFixed(2),
			inv.TaxRate.String(),
			inv.TaxAmount.StringFixed(2),
			inv.DiscountRate.String(),
			inv.DiscountAmount.StringFixed(2),
			inv.Total.StringFixed(2),
			inv.Notes,
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush CSV: %w", err)
	}

	return buf.Bytes(), nil
}
