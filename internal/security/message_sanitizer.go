// Package security はアプリケーションのセキュリティ機能を提供する。
//
// MessageSanitizerService は請求書メールに添えるカスタムメッセージを
// サニタイズし、受信者をXSS等のリスクから保護する。
// bluemondayライブラリを使用した許可リストベースのポリシーで、
// 送信メール本文に埋め込んでも安全なタグのみを通過させる。
package security

import (
	"github.com/microcosm-cc/bluemonday"
)

// MessageSanitizerService はメール本文サニタイズ機能のインターフェースを定義する。
// メール送信時、ユーザー入力のカスタムメッセージをHTMLテンプレートへ
// 埋め込む前に使用される。
type MessageSanitizerService interface {
	// Sanitize はカスタムメッセージをサニタイズして安全なHTMLを返す。
	// 許可タグ（p, br, ul, ol, li, strong, em）のみを通過させ、
	// script, iframe, style, aタグおよびon*イベント属性を除去する。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// messageSanitizer はMessageSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type messageSanitizer struct {
	policy *bluemonday.Policy
}

// NewMessageSanitizer はMessageSanitizerServiceの新しいインスタンスを生成する。
// ポリシーの内容:
//   - 許可タグ: p, br, ul, ol, li, strong, em
//   - 禁止タグ: script, iframe, style, a, img 等および全てのon*イベント属性
//
// 請求書メールの本文は送信者の名前で届くため、リンクや画像の埋め込みは
// フィッシングに悪用され得る。メッセージは整形タグのみに制限する。
func NewMessageSanitizer() *messageSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"strong", "em",
	)

	return &messageSanitizer{
		policy: p,
	}
}

// Sanitize はカスタムメッセージをサニタイズして安全なHTMLを返す。
func (s *messageSanitizer) Sanitize(raw string) string {
	return s.policy.Sanitize(raw)
}
