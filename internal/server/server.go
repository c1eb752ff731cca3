package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/donara/internal/config"
	"github.com/smallbiznis/donara/internal/donation"
	donationdomain "github.com/smallbiznis/donara/internal/donation/domain"
	"github.com/smallbiznis/donara/internal/gateway"
	"github.com/smallbiznis/donara/internal/notification"
	"github.com/smallbiznis/donara/internal/observability"
	obsmiddleware "github.com/smallbiznis/donara/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/donara/internal/observability/metrics"
	obstracing "github.com/smallbiznis/donara/internal/observability/tracing"
	"github.com/smallbiznis/donara/internal/providers"
	"github.com/smallbiznis/donara/internal/ratelimit"
	"github.com/smallbiznis/donara/internal/statement"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	gateway.Module,
	donation.Module,
	providers.Module,
	notification.Module,
	statement.Module,
	ratelimit.Module,
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, allowedOrigins ...string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if len(allowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:  allowedOrigins,
			AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
			AllowHeaders:  []string{"Authorization", "Content-Type", "X-Request-Id", "X-Correlation-Id"},
			ExposeHeaders: []string{"X-Request-Id", "X-Correlation-Id", "Retry-After", "X-Rate-Limited-Reason"},
			MaxAge:        12 * time.Hour,
		}))
	}
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics, cfg.CORSAllowedOrigins...)
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	log           *zap.Logger
	donationSvc   donationdomain.Service
	statementSvc  *statement.Service
	resendLimiter *ratelimit.ResendLimiter
	obsMetrics    *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	Log           *zap.Logger
	DonationSvc   donationdomain.Service
	StatementSvc  *statement.Service
	ResendLimiter *ratelimit.ResendLimiter `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics      `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		log:           p.Log.Named("http.server"),
		donationSvc:   p.DonationSvc,
		statementSvc:  p.StatementSvc,
		resendLimiter: p.ResendLimiter,
		obsMetrics:    p.ObsMetrics,
	}

	svc.registerWebhookRoutes()
	svc.registerAPIRoutes()
	svc.registerAdminRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/stripe", s.HandleStripeWebhook)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Donations --------
	api.POST("/donations/resolve", s.ResolveDonation)
	api.GET("/donations/:id", s.GetDonation)
	api.POST("/donations/:id/resend", s.ResendRateLimit(), s.ResendReceipt)

	// -------- Donors --------
	// Lookups by email expose donor history, so they share the admin token.
	donors := api.Group("/donors")
	donors.Use(s.AdminRequired())
	donors.GET("/:email/donations", s.ListDonorDonations)
	donors.GET("/:email/statement", s.GetStatement)
	donors.GET("/:email/statement.pdf", s.GetStatementPDF)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")
	admin.Use(s.AdminRequired())

	admin.GET("/donations", s.ListDonations)
	admin.POST("/donations", s.CreateManualDonation)
	admin.PATCH("/donations/:id/distribution", s.UpdateDistributionStatus)
	admin.GET("/donations/:id/receipt.pdf", s.GetReceiptPDF)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
