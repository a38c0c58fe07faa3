// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, invoice, mail, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeRegistrationFailed = "REGISTRATION_FAILED"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeClientNotFound     = "CLIENT_NOT_FOUND"
	ErrCodeInvoiceNotFound    = "INVOICE_NOT_FOUND"
	ErrCodeInvalidStatus      = "INVALID_STATUS"
	ErrCodeEmailNotConfigured = "EMAIL_NOT_CONFIGURED"
	ErrCodeEmailSendFailed    = "EMAIL_SEND_FAILED"
	ErrCodeImportInvalid      = "IMPORT_INVALID"
	ErrCodeLogoFetchFailed    = "LOGO_FETCH_FAILED"
	ErrCodeSSRFBlocked        = "SSRF_BLOCKED"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewInvalidCredentialsError は認証失敗エラーを生成する。
// アカウント列挙を防ぐため、メールアドレス不明とパスワード誤りを区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewRegistrationFailedError は登録失敗エラーを生成する。
// 重複メールアドレスの存在を外部に漏らさないよう、理由は示さない。
func NewRegistrationFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeRegistrationFailed,
		Message:  "アカウントを登録できませんでした。",
		Category: "auth",
		Action:   "別のメールアドレスで登録するか、ログインをお試しください。",
	}
}

// NewValidationError は必須フィールド欠落等のバリデーションエラーを生成する。
func NewValidationError(field string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("必須フィールドが不足しています: %s", field),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewClientNotFoundError は顧客未検出エラーを生成する。
func NewClientNotFoundError(clientID string) *APIError {
	return &APIError{
		Code:     ErrCodeClientNotFound,
		Message:  fmt.Sprintf("指定された顧客が見つかりません: %s", clientID),
		Category: "invoice",
		Action:   "顧客IDを確認してください。",
	}
}

// NewInvoiceNotFoundError は請求書未検出エラーを生成する。
func NewInvoiceNotFoundError(invoiceID string) *APIError {
	return &APIError{
		Code:     ErrCodeInvoiceNotFound,
		Message:  fmt.Sprintf("指定された請求書が見つかりません: %s", invoiceID),
		Category: "invoice",
		Action:   "請求書IDを確認してください。",
	}
}

// NewInvalidStatusError は無効なステータス値エラーを生成する。
func NewInvalidStatusError(status string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidStatus,
		Message:  fmt.Sprintf("無効なステータスです: %s", status),
		Category: "validation",
		Action:   "ステータスには draft、sent、paid、overdue のいずれかを指定してください。",
	}
}

// NewEmailNotConfiguredError はメールプロバイダー未設定エラーを生成する。
func NewEmailNotConfiguredError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailNotConfigured,
		Message:  "メール送信サービスが設定されていません。",
		Category: "mail",
		Action:   "環境変数 RESEND_API_KEY を設定してください。",
	}
}

// NewEmailSendFailedError はメール送信失敗エラーを生成する。
// プロバイダーから返されたエラー詳細をそのまま含める。
func NewEmailSendFailedError(detail string) *APIError {
	return &APIError{
		Code:     ErrCodeEmailSendFailed,
		Message:  fmt.Sprintf("メールの送信に失敗しました: %s", detail),
		Category: "mail",
		Action:   "請求書はローカルに保存されています。しばらく待ってから再送してください。",
	}
}

// NewImportInvalidError はインポート文書の検証失敗エラーを生成する。
func NewImportInvalidError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeImportInvalid,
		Message:  fmt.Sprintf("インポート文書が不正です: %s", reason),
		Category: "validation",
		Action:   "本サービスのエクスポート機能で出力したファイルを指定してください。",
	}
}

// NewLogoFetchFailedError はロゴ画像取得失敗エラーを生成する。
func NewLogoFetchFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeLogoFetchFailed,
		Message:  fmt.Sprintf("ロゴ画像の取得に失敗しました: %s", reason),
		Category: "validation",
		Action:   "公開されている画像のURLを指定してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されているWebサイトのURLを入力してください。ローカルネットワークやプライベートIPへのアクセスは許可されていません。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}
