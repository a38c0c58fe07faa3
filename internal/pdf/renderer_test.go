package pdf

import (
	"bytes"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/billman/internal/model"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func sampleInvoice(tmpl model.InvoiceTemplate) *model.Invoice {
	return &model.Invoice{
		ID:            "inv-1",
		InvoiceNumber: "INV-100",
		ClientName:    "Acme Inc",
		ClientEmail:   "billing@acme.example",
		IssueDate:     "2025-06-01",
		DueDate:       "2025-07-01",
		Status:        model.InvoiceStatusSent,
		Items: []model.LineItem{
			{ID: "i1", Description: "Consulting", Quantity: 2, Rate: dec("50"), Amount: dec("100.00")},
			{ID: "i2", Description: "Design work", Quantity: 1, Rate: dec("80"), Amount: dec("80.00")},
		},
		Subtotal:       dec("180.00"),
		TaxRate:        dec("10"),
		TaxAmount:      dec("18.00"),
		DiscountRate:   dec("0"),
		DiscountAmount: dec("0.00"),
		Total:          dec("198.00"),
		Notes:          "Net 30",
		Template:       tmpl,
		Currency:       "USD",
	}
}

func TestRender_ProducesPDFForEveryTemplate(t *testing.T) {
	r := NewRenderer()
	user := &model.User{Name: "Alice", Company: "Alice Design", Email: "alice@example.com"}

	for _, tmpl := range []model.InvoiceTemplate{
		model.TemplateModern,
		model.TemplateClassic,
		model.TemplateMinimal,
	} {
		t.Run(string(tmpl), func(t *testing.T) {
			data, err := r.Render(sampleInvoice(tmpl), user)
			if err != nil {
				t.Fatalf("Render() error = %v", err)
			}
			if !bytes.HasPrefix(data, []byte("%PDF")) {
				t.Error("output does not start with a PDF header")
			}
			if len(data) < 500 {
				t.Errorf("output suspiciously small: %d bytes", len(data))
			}
		})
	}
}

func TestRender_UnknownTemplateFallsBackToModern(t *testing.T) {
	r := NewRenderer()
	inv := sampleInvoice("")
	inv.Template = "unknown"

	data, err := r.Render(inv, &model.User{Name: "Alice"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Error("output does not start with a PDF header")
	}
}

func TestRender_EmptyItems(t *testing.T) {
	r := NewRenderer()
	inv := sampleInvoice(model.TemplateModern)
	inv.Items = nil
	inv.Subtotal = dec("0.00")
	inv.Total = dec("0.00")

	if _, err := r.Render(inv, &model.User{Name: "Alice"}); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
}

func TestRender_SkipsUnsupportedLogoMime(t *testing.T) {
	r := NewRenderer()
	user := &model.User{
		Name:     "Alice",
		LogoData: []byte("not an image"),
		LogoMime: "image/svg+xml", // gofpdf未対応
	}

	if _, err := r.Render(sampleInvoice(model.TemplateModern), user); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
}
