// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザー（請求書の発行主体）を表す。
// PasswordHashはbcryptハッシュであり、APIレスポンスには含めない。
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	Company      string
	LogoData     []byte
	LogoMime     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session はユーザーのログインセッションを表す。
// セッションIDはサーバー側で生成した乱数であり、クライアントには
// HTTP Only Cookieとしてのみ渡す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
