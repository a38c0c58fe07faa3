// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層やバックアップワーカーから利用する。
type MetricsCollector interface {
	RecordInvoiceCreated()
	RecordEmailSent()
	RecordEmailFailed(reason string)
	RecordEmailLatency(duration time.Duration)
	RecordBackupCreated()
	RecordBackupsPruned(count int)
	RecordExport(format string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	invoicesCreated prometheus.Counter
	emailSent       prometheus.Counter
	emailFailed     *prometheus.CounterVec
	emailLatency    prometheus.Histogram
	backupsCreated  prometheus.Counter
	backupsPruned   prometheus.Counter
	exports         *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		invoicesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billman_invoices_created_total",
			Help: "作成された請求書の合計数",
		}),
		emailSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billman_email_sent_total",
			Help: "請求書メール送信成功の合計数",
		}),
		emailFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billman_email_failed_total",
			Help: "請求書メール送信失敗の合計数（理由別）",
		}, []string{"reason"}),
		emailLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "billman_email_latency_seconds",
			Help:    "メールリレーAPI呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		backupsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billman_backups_created_total",
			Help: "作成されたスナップショットの合計数",
		}),
		backupsPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billman_backups_pruned_total",
			Help: "保持上限超過で削除されたスナップショットの合計数",
		}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billman_exports_total",
			Help: "エクスポート実行の合計数（フォーマット別）",
		}, []string{"format"}),
	}

	reg.MustRegister(
		c.invoicesCreated,
		c.emailSent,
		c.emailFailed,
		c.emailLatency,
		c.backupsCreated,
		c.backupsPruned,
		c.exports,
	)

	return c
}

// RecordInvoiceCreated は請求書の作成を記録する。
func (c *Collector) RecordInvoiceCreated() {
	c.invoicesCreated.Inc()
}

// RecordEmailSent はメール送信成功を記録する。
func (c *Collector) RecordEmailSent() {
	c.emailSent.Inc()
}

// RecordEmailFailed はメール送信失敗を理由付きで記録する。
func (c *Collector) RecordEmailFailed(reason string) {
	c.emailFailed.WithLabelValues(reason).Inc()
}

// RecordEmailLatency はメールリレーAPI呼び出しのレイテンシを記録する。
func (c *Collector) RecordEmailLatency(duration time.Duration) {
	c.emailLatency.Observe(duration.Seconds())
}

// RecordBackupCreated はスナップショットの作成を記録する。
func (c *Collector) RecordBackupCreated() {
	c.backupsCreated.Inc()
}

// RecordBackupsPruned は削除されたスナップショット数を記録する。
func (c *Collector) RecordBackupsPruned(count int) {
	c.backupsPruned.Add(float64(count))
}

// RecordExport はエクスポート実行をフォーマット別に記録する。
func (c *Collector) RecordExport(format string) {
	c.exports.WithLabelValues(format).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
