package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/billman/internal/metrics"
	"github.com/hitoshi/billman/internal/middleware"
)

// HealthChecker はヘルスチェックに必要なインターフェース。
// *sql.DBがそのまま満たす。
type HealthChecker interface {
	Ping() error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	HealthChecker     HealthChecker
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	MetricsGatherer   prometheus.Gatherer

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 顧客
	ClientService ClientServiceInterface

	// 請求書
	InvoiceService InvoiceServiceInterface
	MailService    MailServiceInterface
	UserProvider   UserProviderInterface
	PDFRenderer    PDFRendererInterface

	// エクスポート・バックアップ
	ExportService ExportServiceInterface
	BackupRunner  BackupRunnerInterface
	BackupLister  BackupListerInterface

	// ユーザー
	AccountService  AccountServiceInterface
	BrandingService BrandingServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → SecurityHeaders → Recovery → Logging →（認証ルートを除き）Session → CSRF → RateLimit(General)
//
// 認証ルート（/auth/*）・/health・/metrics・/api/csrf-token はセッション検証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// 全ルートに効くミドルウェア
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(slog.Default()))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	clientHandler := NewClientHandler(deps.ClientService)
	invoiceHandler := NewInvoiceHandler(deps.InvoiceService, deps.MailService, deps.UserProvider, deps.PDFRenderer)
	exportHandler := NewExportHandler(deps.ExportService, deps.BackupRunner, deps.BackupLister)
	userHandler := NewUserHandler(deps.AccountService, deps.BrandingService, deps.AuthConfig)

	// --- 認証不要のルート ---

	r.Get("/health", healthHandler(deps.HealthChecker))
	r.Method(http.MethodGet, "/metrics", metrics.SetupMetricsRoute(deps.MetricsGatherer))
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → CSRF → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 顧客管理
		r.Route("/api/clients", func(r chi.Router) {
			r.Get("/", clientHandler.ListClients)
			r.Post("/", clientHandler.CreateClient)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", clientHandler.GetClient)
				r.Patch("/", clientHandler.UpdateClient)
				r.Delete("/", clientHandler.DeleteClient)
			})
		})

		// 請求書管理
		r.Route("/api/invoices", func(r chi.Router) {
			r.Get("/", invoiceHandler.ListInvoices)
			r.Post("/", invoiceHandler.CreateInvoice)

			// GET /api/invoices/csv - 請求書一覧のCSVエクスポート
			r.Get("/csv", exportHandler.ExportCSV)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", invoiceHandler.GetInvoice)
				r.Patch("/", invoiceHandler.UpdateInvoice)
				r.Delete("/", invoiceHandler.DeleteInvoice)
				r.Get("/pdf", invoiceHandler.RenderPDF)
				r.Get("/csv", exportHandler.ExportInvoiceCSV)

				// POST /api/invoices/{id}/send - メール送信（送信専用レート制限を追加）
				r.With(deps.RateLimiter.EmailSendMiddleware()).Post("/send", invoiceHandler.SendInvoice)
			})
		})

		// 集計
		r.Get("/api/stats", invoiceHandler.GetStats)

		// エクスポート・インポート・バックアップ
		r.Get("/api/export", exportHandler.ExportJSON)
		r.Post("/api/import", exportHandler.ImportJSON)
		r.Post("/api/export/backup", exportHandler.CreateBackup)
		r.Get("/api/export/backups", exportHandler.ListBackups)

		// ユーザー管理
		r.Route("/api/users/me", func(r chi.Router) {
			r.Delete("/", userHandler.Withdraw)
			r.Put("/logo", userHandler.SetLogo)
			r.Delete("/logo", userHandler.DeleteLogo)
		})
	})

	return r
}

// healthHandler はDB疎通を確認するハンドラーを返す。
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if checker != nil {
			if err := checker.Ping(); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
				return
			}
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}
