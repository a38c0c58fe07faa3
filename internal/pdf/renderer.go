// Package pdf は請求書のPDF出力を提供する。
package pdf

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"

	"github.com/hitoshi/billman/internal/model"
)

// templateStyle はテンプレートごとの描画スタイル。
type templateStyle struct {
	headerFont  string
	bodyFont    string
	accentR     int
	accentG     int
	accentB     int
	ruledTable  bool // 明細表に罫線を引くか
	showDivider bool // ヘッダー下に水平線を引くか
}

// styles はテンプレート名と描画スタイルの対応。
var styles = map[model.InvoiceTemplate]templateStyle{
	model.TemplateModern: {
		headerFont: "Helvetica", bodyFont: "Helvetica",
		accentR: 37, accentG: 99, accentB: 235,
		ruledTable: false, showDivider: true,
	},
	model.TemplateClassic: {
		headerFont: "Times", bodyFont: "Times",
		accentR: 31, accentG: 41, accentB: 55,
		ruledTable: true, showDivider: true,
	},
	model.TemplateMinimal: {
		headerFont: "Helvetica", bodyFont: "Helvetica",
		accentR: 107, accentG: 114, accentB: 128,
		ruledTable: false, showDivider: false,
	},
}

// Renderer は請求書のPDF描画を行う。
type Renderer struct{}

// NewRenderer はRendererの新しいインスタンスを生成する。
func NewRenderer() *Renderer {
	return &Renderer{}
}

// Render は請求書をA4縦のPDFとして描画する。
// テンプレート（modern/classic/minimal）に応じて書体と配色を切り替える。
// ユーザーにロゴが登録されていればヘッダーに埋め込む。
func (r *Renderer) Render(invoice *model.Invoice, user *model.User) ([]byte, error) {
	style, ok := styles[invoice.Template]
	if !ok {
		style = styles[model.TemplateModern]
	}

	doc := gofpdf.New("P", "mm", "A4", "")
	doc.SetMargins(18, 18, 18)
	doc.AddPage()

	r.drawHeader(doc, style, invoice, user)
	r.drawParties(doc, style, invoice, user)
	r.drawItemsTable(doc, style, invoice)
	r.drawTotals(doc, style, invoice)
	r.drawFooter(doc, style, invoice)

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) drawHeader(doc *gofpdf.Fpdf, style templateStyle, invoice *model.Invoice, user *model.User) {
	if len(user.LogoData) > 0 {
		imageType := logoImageType(user.LogoMime)
		if imageType != "" {
			opts := gofpdf.ImageOptions{ImageType: imageType, ReadDpi: true}
			doc.RegisterImageOptionsReader("logo", opts, bytes.NewReader(user.LogoData))
			doc.ImageOptions("logo", 18, 16, 28, 0, false, opts, 0, "")
		}
	}

	doc.SetFont(style.headerFont, "B", 24)
	doc.SetTextColor(style.accentR, style.accentG, style.accentB)
	doc.SetXY(130, 18)
	doc.CellFormat(62, 10, "INVOICE", "", 1, "R", false, 0, "")

	doc.SetFont(style.bodyFont, "", 10)
	doc.SetTextColor(60, 60, 60)
	doc.SetX(130)
	doc.CellFormat(62, 5, invoice.InvoiceNumber, "", 1, "R", false, 0, "")
	if invoice.IssueDate != "" {
		doc.SetX(130)
		doc.CellFormat(62, 5, "Issued: "+invoice.IssueDate, "", 1, "R", false, 0, "")
	}
	if invoice.DueDate != "" {
		doc.SetX(130)
		doc.CellFormat(62, 5, "Due: "+invoice.DueDate, "", 1, "R", false, 0, "")
	}

	doc.SetY(50)
	if style.showDivider {
		doc.SetDrawColor(style.accentR, style.accentG, style.accentB)
		doc.SetLineWidth(0.6)
		doc.Line(18, 50, 192, 50)
		doc.SetY(54)
	}
}

func (r *Renderer) drawParties(doc *gofpdf.Fpdf, style templateStyle, invoice *model.Invoice, user *model.User) {
	startY := doc.GetY()

	doc.SetFont(style.bodyFont, "B", 10)
	doc.SetTextColor(120, 120, 120)
	doc.SetXY(18, startY)
	doc.CellFormat(80, 5, "FROM", "", 1, "L", false, 0, "")

	doc.SetFont(style.bodyFont, "", 10)
	doc.SetTextColor(30, 30, 30)
	doc.SetX(18)
	doc.MultiCell(80, 5, senderLines(user), "", "L", false)

	doc.SetFont(style.bodyFont, "B", 10)
	doc.SetTextColor(120, 120, 120)
	doc.SetXY(110, startY)
	doc.CellFormat(80, 5, "BILL TO", "", 1, "L", false, 0, "")

	doc.SetFont(style.bodyFont, "", 10)
	doc.SetTextColor(30, 30, 30)
	doc.SetX(110)
	doc.MultiCell(80, 5, clientLines(invoice), "", "L", false)

	doc.SetY(doc.GetY() + 8)
}

func (r *Renderer) drawItemsTable(doc *gofpdf.Fpdf, style templateStyle, invoice *model.Invoice) {
	border := ""
	if style.ruledTable {
		border = "1"
	}

	// ヘッダー行
	doc.SetFont(style.bodyFont, "B", 9)
	doc.SetFillColor(style.accentR, style.accentG, style.accentB)
	doc.SetTextColor(255, 255, 255)
	doc.CellFormat(92, 7, "Description", border, 0, "L", true, 0, "")
	doc.CellFormat(20, 7, "Qty", border, 0, "R", true, 0, "")
	doc.CellFormat(30, 7, "Rate", border, 0, "R", true, 0, "")
	doc.CellFormat(32, 7, "Amount", border, 1, "R", true, 0, "")

	doc.SetFont(style.bodyFont, "", 9)
	doc.SetTextColor(30, 30, 30)
	fill := false
	for _, item := range invoice.Items {
		doc.SetFillColor(245, 246, 248)
		doc.CellFormat(92, 6, item.Description, border, 0, "L", fill, 0, "")
		doc.CellFormat(20, 6, fmt.Sprintf("%d", item.Quantity), border, 0, "R", fill, 0, "")
		doc.CellFormat(30, 6, item.Rate.StringFixed(2), border, 0, "R", fill, 0, "")
		doc.CellFormat(32, 6, item.Amount.StringFixed(2), border, 1, "R", fill, 0, "")
		fill = !fill
	}

	doc.SetY(doc.GetY() + 4)
}

func (r *Renderer) drawTotals(doc *gofpdf.Fpdf, style templateStyle, invoice *model.Invoice) {
	currency := invoice.Currency
	if currency == "" {
		currency = "USD"
	}

	row := func(label, value string, bold bool) {
		font := ""
		if bold {
			font = "B"
		}
		doc.SetFont(style.bodyFont, font, 10)
		doc.SetX(110)
		doc.CellFormat(50, 6, label, "", 0, "R", false, 0, "")
		doc.CellFormat(32, 6, value, "", 1, "R", false, 0, "")
	}

	row("Subtotal", invoice.Subtotal.StringFixed(2), false)
	if !invoice.DiscountRate.IsZero() {
		label := fmt.Sprintf("Discount (%s%%)", invoice.DiscountRate.String())
		row(label, "-"+invoice.DiscountAmount.StringFixed(2), false)
	}
	if !invoice.TaxRate.IsZero() {
		label := fmt.Sprintf("Tax (%s%%)", invoice.TaxRate.String())
		row(label, invoice.TaxAmount.StringFixed(2), false)
	}

	doc.SetTextColor(style.accentR, style.accentG, style.accentB)
	row("Total", fmt.Sprintf("%s %s", invoice.Total.StringFixed(2), currency), true)
	doc.SetTextColor(30, 30, 30)
}

func (r *Renderer) drawFooter(doc *gofpdf.Fpdf, style templateStyle, invoice *model.Invoice) {
	if invoice.Notes == "" {
		return
	}

	doc.SetY(doc.GetY() + 10)
	doc.SetFont(style.bodyFont, "B", 9)
	doc.SetTextColor(120, 120, 120)
	doc.CellFormat(174, 5, "NOTES", "", 1, "L", false, 0, "")

	doc.SetFont(style.bodyFont, "", 9)
	doc.SetTextColor(60, 60, 60)
	doc.MultiCell(174, 5, invoice.Notes, "", "L", false)
}

// senderLines は差出人欄の表示文字列を組み立てる。
func senderLines(user *model.User) string {
	lines := user.Name
	if user.Company != "" {
		lines += "\n" + user.Company
	}
	if user.Email != "" {
		lines += "\n" + user.Email
	}
	return lines
}

// clientLines は請求先欄の表示文字列を組み立てる。
// 顧客情報は請求書作成時点のスナップショットを使用する。
func clientLines(invoice *model.Invoice) string {
	lines := invoice.ClientName
	if invoice.ClientAddress != "" {
		lines += "\n" + invoice.ClientAddress
	}
	if invoice.ClientEmail != "" {
		lines += "\n" + invoice.ClientEmail
	}
	if invoice.ClientPhone != "" {
		lines += "\n" + invoice.ClientPhone
	}
	return lines
}

// logoImageType はMIMEタイプをgofpdfの画像タイプへ変換する。
// 未対応のタイプは空文字列を返し、ロゴは描画しない。
func logoImageType(mimeType string) string {
	switch mimeType {
	case "image/png":
		return "PNG"
	case "image/jpeg":
		return "JPG"
	case "image/gif":
		return "GIF"
	}
	return ""
}
