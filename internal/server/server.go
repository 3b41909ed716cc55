package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/digiurban/billing/internal/auth"
	"github.com/digiurban/billing/internal/authorization"
	auditdomain "github.com/digiurban/billing/internal/audit/domain"
	"github.com/digiurban/billing/internal/config"
	invoicedomain "github.com/digiurban/billing/internal/invoice/domain"
	"github.com/digiurban/billing/internal/observability"
	obsmiddleware "github.com/digiurban/billing/internal/observability/logger"
	obsmetrics "github.com/digiurban/billing/internal/observability/metrics"
	obstracing "github.com/digiurban/billing/internal/observability/tracing"
	"github.com/digiurban/billing/internal/ratelimit"
	tenantdomain "github.com/digiurban/billing/internal/tenant/domain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	shutdownTimeout = 10 * time.Second
	requestTimeout  = 30 * time.Second
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(RunHTTP),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	tokens          *auth.TokenService
	authzSvc        authorization.Service
	auditSvc        auditdomain.Service
	invoiceSvc      invoicedomain.Service
	tenantSvc       tenantdomain.Service
	mutationLimiter *ratelimit.MutationLimiter
	billingMetrics  *obsmetrics.BillingMetrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	Tokens          *auth.TokenService
	AuthzSvc        authorization.Service
	AuditSvc        auditdomain.Service
	InvoiceSvc      invoicedomain.Service
	TenantSvc       tenantdomain.Service
	MutationLimiter *ratelimit.MutationLimiter `optional:"true"`
	BillingMetrics  *obsmetrics.BillingMetrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http.server"),
		tokens:          p.Tokens,
		authzSvc:        p.AuthzSvc,
		auditSvc:        p.AuditSvc,
		invoiceSvc:      p.InvoiceSvc,
		tenantSvc:       p.TenantSvc,
		mutationLimiter: p.MutationLimiter,
		billingMetrics:  p.BillingMetrics,
	}

	s.registerAPIRoutes()
	s.registerFallback()

	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/super-admin")
	api.Use(RequestTimeout(requestTimeout))
	api.Use(s.AuthRequired())

	// -------- Invoices --------
	invoices := api.Group("/billing/invoices")
	{
		invoices.GET("", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.ListInvoices)
		invoices.POST("", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceCreate), s.MutationRateLimit(), s.CreateInvoice)
		invoices.GET("/summary", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.GetInvoiceSummary)
		invoices.GET("/export", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceExport), s.ExportInvoices)
		invoices.POST("/bulk-action", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceBulk), s.MutationRateLimit(), s.BulkInvoiceAction)

		invoices.GET("/:id", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.GetInvoiceByID)
		invoices.GET("/:id/pdf", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceExport), s.DownloadInvoicePDF)
		invoices.POST("/:id/send-reminder", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceRemind), s.MutationRateLimit(), s.SendInvoiceReminder)
		invoices.POST("/:id/mark-paid", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceMarkPaid), s.MutationRateLimit(), s.MarkInvoicePaid)
		invoices.POST("/:id/cancel", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceCancel), s.MutationRateLimit(), s.CancelInvoice)
	}

	// -------- Tenants --------
	tenants := api.Group("/tenants")
	{
		tenants.GET("", s.authorize(authorization.ObjectTenant, authorization.ActionTenantView), s.ListTenants)
		tenants.POST("", s.authorize(authorization.ObjectTenant, authorization.ActionTenantCreate), s.CreateTenant)
		tenants.GET("/:id", s.authorize(authorization.ObjectTenant, authorization.ActionTenantView), s.GetTenantByID)
	}

	api.GET("/audit-logs", s.authorize(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
