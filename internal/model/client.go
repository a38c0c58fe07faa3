// Package model はドメインモデルを定義する。
package model

import "time"

// Client は請求先の顧客を表す。
// 請求書からはIDで参照されるが、請求書側には作成時点のスナップショットが
// 複製されるため、顧客情報の変更は既存の請求書に波及しない。
type Client struct {
	ID        string
	UserID    string
	Name      string
	Email     string
	Address   string
	Phone     string
	Company   string
	CreatedAt time.Time
}
