package money

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/billman/internal/model"
)

// dec はテスト用のdecimalリテラルヘルパー。
func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// TestLineAmount は明細1行の金額計算を検証する。
func TestLineAmount(t *testing.T) {
	tests := []struct {
		name     string
		quantity int
		rate     string
		want     string
	}{
		{"整数単価", 2, "50", "100"},
		{"小数単価", 3, "19.99", "59.97"},
		{"丸めが必要な単価", 3, "0.333", "1"},
		{"単価ゼロ", 5, "0", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LineAmount(tt.quantity, dec(tt.rate))
			if !got.Equal(dec(tt.want)) {
				t.Errorf("LineAmount(%d, %s) = %s, want %s", tt.quantity, tt.rate, got, tt.want)
			}
		})
	}
}

// TestComputeTotals_Scenario は数量2×単価50、税率10%、割引0%のシナリオで
// subtotal=100.00、taxAmount=10.00、total=110.00になることを検証する。
func TestComputeTotals_Scenario(t *testing.T) {
	items := []model.LineItem{
		{ID: "item-1", Description: "Consulting", Quantity: 2, Rate: dec("50")},
	}

	totals := ComputeTotals(items, dec("10"), dec("0"))

	if !totals.Subtotal.Equal(dec("100.00")) {
		t.Errorf("Subtotal = %s, want 100.00", totals.Subtotal)
	}
	if !totals.DiscountAmount.Equal(dec("0")) {
		t.Errorf("DiscountAmount = %s, want 0", totals.DiscountAmount)
	}
	if !totals.TaxAmount.Equal(dec("10.00")) {
		t.Errorf("TaxAmount = %s, want 10.00", totals.TaxAmount)
	}
	if !totals.Total.Equal(dec("110.00")) {
		t.Errorf("Total = %s, want 110.00", totals.Total)
	}
}

// TestComputeTotals_DiscountBeforeTax は割引後の金額に課税されることを検証する。
func TestComputeTotals_DiscountBeforeTax(t *testing.T) {
	items := []model.LineItem{
		{Quantity: 1, Rate: dec("200")},
	}

	// 割引10% → 課税対象180、税率5% → 税額9、合計189
	totals := ComputeTotals(items, dec("5"), dec("10"))

	if !totals.Subtotal.Equal(dec("200")) {
		t.Errorf("Subtotal = %s, want 200", totals.Subtotal)
	}
	if !totals.DiscountAmount.Equal(dec("20")) {
		t.Errorf("DiscountAmount = %s, want 20", totals.DiscountAmount)
	}
	if !totals.TaxAmount.Equal(dec("9")) {
		t.Errorf("TaxAmount = %s, want 9", totals.TaxAmount)
	}
	if !totals.Total.Equal(dec("189")) {
		t.Errorf("Total = %s, want 189", totals.Total)
	}
}

// TestComputeTotals_SubtotalIsSumOfLineAmounts は任意の明細リストについて
// subtotalが各行のquantity × rate（2桁丸め）の総和に一致することを検証する。
func TestComputeTotals_SubtotalIsSumOfLineAmounts(t *testing.T) {
	items := []model.LineItem{
		{Quantity: 3, Rate: dec("19.99")},
		{Quantity: 7, Rate: dec("0.333")},
		{Quantity: 1, Rate: dec("1234.56")},
		{Quantity: 12, Rate: dec("8.125")},
	}

	want := decimal.Zero
	for _, item := range items {
		want = want.Add(LineAmount(item.Quantity, item.Rate))
	}

	totals := ComputeTotals(items, dec("8"), dec("3"))
	if !totals.Subtotal.Equal(want) {
		t.Errorf("Subtotal = %s, want %s", totals.Subtotal, want)
	}
}

// TestComputeTotals_Identity は total = subtotal − discountAmount + taxAmount の
// 恒等式が成り立つことを検証する。
func TestComputeTotals_Identity(t *testing.T) {
	items := []model.LineItem{
		{Quantity: 2, Rate: dec("33.33")},
		{Quantity: 5, Rate: dec("7.77")},
	}

	totals := ComputeTotals(items, dec("10"), dec("15"))

	want := totals.Subtotal.Sub(totals.DiscountAmount).Add(totals.TaxAmount)
	if !totals.Total.Equal(want) {
		t.Errorf("Total = %s, want subtotal−discount+tax = %s", totals.Total, want)
	}
}

// TestComputeTotals_EmptyItems は明細なしの場合に全項目が0になることを検証する。
func TestComputeTotals_EmptyItems(t *testing.T) {
	totals := ComputeTotals(nil, dec("10"), dec("5"))

	for name, got := range map[string]decimal.Decimal{
		"Subtotal":       totals.Subtotal,
		"DiscountAmount": totals.DiscountAmount,
		"TaxAmount":      totals.TaxAmount,
		"Total":          totals.Total,
	} {
		if !got.IsZero() {
			t.Errorf("%s = %s, want 0", name, got)
		}
	}
}

// TestRecalculateItems は各行のAmountが再計算され、入力が変更されないことを検証する。
func TestRecalculateItems(t *testing.T) {
	items := []model.LineItem{
		{ID: "a", Quantity: 2, Rate: dec("50"), Amount: dec("999")},
		{ID: "b", Quantity: 4, Rate: dec("2.5"), Amount: decimal.Zero},
	}

	result := RecalculateItems(items)

	if !result[0].Amount.Equal(dec("100")) {
		t.Errorf("result[0].Amount = %s, want 100", result[0].Amount)
	}
	if !result[1].Amount.Equal(dec("10")) {
		t.Errorf("result[1].Amount = %s, want 10", result[1].Amount)
	}
	// 元のスライスは変更されない
	if !items[0].Amount.Equal(dec("999")) {
		t.Errorf("input mutated: items[0].Amount = %s, want 999", items[0].Amount)
	}
}
