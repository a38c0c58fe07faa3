// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/billman/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。メールアドレスの一意制約違反はエラーになる。
	Create(ctx context.Context, user *model.User) error

	// UpdateLogo はユーザーの会社ロゴ画像を更新する。
	UpdateLogo(ctx context.Context, userID string, logoData []byte, logoMime string) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するsessions、clients、invoices、backupsはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error

	// ListIDsWithRecords は顧客または請求書を1件以上持つユーザーのID一覧を返す。
	// バックアップスケジューラの対象ユーザー選定に使用する。
	ListIDsWithRecords(ctx context.Context) ([]string, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// ClientRepository は顧客データの永続化インターフェース。
// すべての操作は所有ユーザーのスコープ内で行われる。
type ClientRepository interface {
	// FindByID はユーザーIDと顧客IDで顧客を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, userID, id string) (*model.Client, error)

	// ListByUserID はユーザーの顧客一覧を作成日時の降順（新しい順）で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Client, error)

	// Create は顧客を作成する。
	Create(ctx context.Context, client *model.Client) error

	// Update は顧客情報を上書き更新する。マージはサービス層で行う。
	Update(ctx context.Context, client *model.Client) error

	// DeleteWithDetach は顧客を削除し、同一トランザクションで
	// その顧客を参照する請求書のclient_idを空にする。
	// スナップショットフィールドは変更しないため、既存請求書の表示は維持される。
	// 顧客が存在しない場合は何もせずに正常終了する（冪等）。
	DeleteWithDetach(ctx context.Context, userID, id string) error
}

// InvoiceStats は請求書の集計情報を表す。
type InvoiceStats struct {
	TotalRevenue   decimal.Decimal
	PaidRevenue    decimal.Decimal
	PendingRevenue decimal.Decimal // status='sent' の合計
	OverdueRevenue decimal.Decimal
	TotalCount     int
	DraftCount     int
	SentCount      int
	PaidCount      int
	OverdueCount   int
}

// InvoiceRepository は請求書データの永続化インターフェース。
// 明細行とメール送信履歴は請求書行のJSONBカラムとして保存される。
type InvoiceRepository interface {
	// FindByID はユーザーIDと請求書IDで請求書を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, userID, id string) (*model.Invoice, error)

	// ListByUserID はユーザーの請求書一覧を作成日時の降順（新しい順）で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Invoice, error)

	// Search は請求書番号・顧客名・備考に対する大文字小文字を区別しない
	// 部分一致検索を行う。結果の並び順はListByUserIDと同じ。
	Search(ctx context.Context, userID, query string) ([]*model.Invoice, error)

	// ListFiltered は構造化フィルタ（AND条件）で請求書を絞り込む。
	// 未指定のフィルタ項目は制約なしとして扱う。
	ListFiltered(ctx context.Context, userID string, filter model.InvoiceFilter) ([]*model.Invoice, error)

	// Create は請求書を作成する。
	Create(ctx context.Context, invoice *model.Invoice) error

	// Update は請求書を上書き更新する。マージと金額の再計算はサービス層で行う。
	Update(ctx context.Context, invoice *model.Invoice) error

	// Delete はユーザーIDと請求書IDで請求書を削除する。
	// 存在しない場合は何もせずに正常終了する（冪等）。
	Delete(ctx context.Context, userID, id string) error

	// StatsByUserID は請求書のステータス別件数と売上集計をSQLで算出する。
	StatsByUserID(ctx context.Context, userID string) (*InvoiceStats, error)
}

// DatasetRepository はインポート機能のためのユーザーデータ一括置換インターフェース。
type DatasetRepository interface {
	// ReplaceUserData はユーザーの顧客・請求書コレクションを
	// 同一トランザクションで丸ごと置き換える。マージは行わない。
	ReplaceUserData(ctx context.Context, userID string, clients []*model.Client, invoices []*model.Invoice) error
}

// BackupRepository はスナップショットデータの永続化インターフェース。
type BackupRepository interface {
	// Create はスナップショットを作成する。
	Create(ctx context.Context, backup *model.Backup) error

	// ListByUserID はユーザーのスナップショット一覧をキーの昇順（古い順）で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Backup, error)

	// Prune は指定ユーザーのスナップショットをキーのソート順で新しいkeep件のみ残し、
	// それより古いものを削除する。削除した件数を返す。
	Prune(ctx context.Context, userID string, keep int) (int, error)
}
