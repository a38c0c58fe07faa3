// Package money は請求書の金額計算を提供する。
// すべての計算はdecimalで行い、保存・表示する金額は小数第2位に丸めた
// 確定値として返す。再読み込みのたびに丸め誤差が蓄積しないよう、
// 集計値は常に明細リスト全体から再計算する（増分更新はしない）。
package money

import (
	"github.com/shopspring/decimal"

	"github.com/hitoshi/billman/internal/model"
)

// hundred はパーセント換算用の定数。
var hundred = decimal.NewFromInt(100)

// Totals は明細リストと税率・割引率から導出される集計値。
type Totals struct {
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	TaxAmount      decimal.Decimal
	Total          decimal.Decimal
}

// LineAmount は明細1行の金額（quantity × rate）を小数第2位丸めで返す。
func LineAmount(quantity int, rate decimal.Decimal) decimal.Decimal {
	return rate.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
}

// ComputeTotals は明細リストと税率・割引率から集計値を計算する。
//
//	subtotal       = Σ (quantity × rate)
//	discountAmount = subtotal × discountRate / 100
//	taxAmount      = (subtotal − discountAmount) × taxRate / 100
//	total          = subtotal − discountAmount + taxAmount
//
// 各金額は小数第2位に丸めて返す。明細の金額変更時は呼び出し元が
// RecalculateItemsで各行のAmountを更新した上で本関数を呼ぶ。
func ComputeTotals(items []model.LineItem, taxRate, discountRate decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(LineAmount(item.Quantity, item.Rate))
	}
	subtotal = subtotal.Round(2)

	discountAmount := subtotal.Mul(discountRate).Div(hundred).Round(2)
	taxable := subtotal.Sub(discountAmount)
	taxAmount := taxable.Mul(taxRate).Div(hundred).Round(2)
	total := taxable.Add(taxAmount).Round(2)

	return Totals{
		Subtotal:       subtotal,
		DiscountAmount: discountAmount,
		TaxAmount:      taxAmount,
		Total:          total,
	}
}

// RecalculateItems は各明細行のAmountをquantity × rateから再計算した
// 新しいスライスを返す。入力スライスは変更しない。
func RecalculateItems(items []model.LineItem) []model.LineItem {
	result := make([]model.LineItem, len(items))
	for i, item := range items {
		item.Amount = LineAmount(item.Quantity, item.Rate)
		result[i] = item
	}
	return result
}
