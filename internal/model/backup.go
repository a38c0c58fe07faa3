// Package model はドメインモデルを定義する。
package model

import "time"

// Backup はレコードストア全体のタイムスタンプ付きスナップショットを表す。
// ユーザーごとに最新5件のみ保持され、古いものから削除される。
type Backup struct {
	ID        string
	UserID    string
	Key       string // backup_<user_id>_<unixミリ秒> 形式。キーのソート順が時系列順になる
	Data      []byte // invoices+clients+identityのJSONスナップショット
	CreatedAt time.Time
}
