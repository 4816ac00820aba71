package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	apikeydomain "github.com/smallbiznis/trustmark/internal/apikey/domain"
	auditdomain "github.com/smallbiznis/trustmark/internal/audit/domain"
	"github.com/smallbiznis/trustmark/internal/authorization"
	"github.com/smallbiznis/trustmark/internal/config"
	issuancedomain "github.com/smallbiznis/trustmark/internal/issuance/domain"
	"github.com/smallbiznis/trustmark/internal/observability"
	obsmiddleware "github.com/smallbiznis/trustmark/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/trustmark/internal/observability/metrics"
	obstracing "github.com/smallbiznis/trustmark/internal/observability/tracing"
	"github.com/smallbiznis/trustmark/internal/ratelimit"
	registrydomain "github.com/smallbiznis/trustmark/internal/registry/domain"
	scanledgerdomain "github.com/smallbiznis/trustmark/internal/scanledger/domain"
	"github.com/smallbiznis/trustmark/internal/token"
	verificationdomain "github.com/smallbiznis/trustmark/internal/verification/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides the engine and the Server. Binaries pick which route groups
// to register and then invoke RunHTTP.
var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
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

func RunHTTP(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", addr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
	engine *gin.Engine
	cfg    config.Config
	log    *zap.Logger
	keys   *token.KeyPair

	verifySvc   verificationdomain.Service
	issuanceSvc issuancedomain.Service
	registrySvc registrydomain.Service
	ledgerSvc   scanledgerdomain.Service
	apiKeySvc   apikeydomain.Service
	authzSvc    authorization.Service
	auditSvc    auditdomain.Service

	verifyLimiter *ratelimit.VerifyLimiter
	obsMetrics    *obsmetrics.Metrics
}

// ServerParams marks everything outside verification optional so the
// verify-only edge can run without issuer keys or an admin surface.
type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	Log         *zap.Logger
	Keys        *token.KeyPair
	VerifySvc   verificationdomain.Service
	RegistrySvc registrydomain.Service
	LedgerSvc   scanledgerdomain.Service

	IssuanceSvc   issuancedomain.Service  `optional:"true"`
	APIKeySvc     apikeydomain.Service    `optional:"true"`
	AuthzSvc      authorization.Service   `optional:"true"`
	AuditSvc      auditdomain.Service     `optional:"true"`
	VerifyLimiter *ratelimit.VerifyLimiter `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics      `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		log:           log.Named("http.server"),
		keys:          p.Keys,
		verifySvc:     p.VerifySvc,
		issuanceSvc:   p.IssuanceSvc,
		registrySvc:   p.RegistrySvc,
		ledgerSvc:     p.LedgerSvc,
		apiKeySvc:     p.APIKeySvc,
		authzSvc:      p.AuthzSvc,
		auditSvc:      p.AuditSvc,
		verifyLimiter: p.VerifyLimiter,
		obsMetrics:    p.ObsMetrics,
	}
	if !p.Cfg.IssuerAuthRequired {
		s.log.Warn("issuer authentication disabled; /sign and product routes are open")
	}
	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// RegisterVerifyRoutes mounts the public verification surface.
func (s *Server) RegisterVerifyRoutes() {
	s.engine.POST("/verify-token", s.VerifyRateLimit(), s.VerifyToken)
	s.engine.GET("/verify", s.VerifyRateLimit(), s.VerifyLanding)
	s.engine.GET("/.well-known/trustmark-key", s.PublicKey)
}

func (s *Server) RegisterIssuerRoutes() error {
	if s.issuanceSvc == nil {
		return errors.New("issuer routes require the issuance service")
	}

	s.engine.POST("/sign", s.IssuerAuth(), s.authorize(authorization.ObjectToken, authorization.ActionTokenSign), s.Sign)

	products := s.engine.Group("/products", s.IssuerAuth())
	{
		products.GET("", s.authorize(authorization.ObjectProduct, authorization.ActionProductView), s.ListProducts)
		products.GET("/:id", s.authorize(authorization.ObjectProduct, authorization.ActionProductView), s.GetProduct)
		products.GET("/:id/scans", s.authorize(authorization.ObjectScan, authorization.ActionScanView), s.ListProductScans)
		products.POST("/:id/activate", s.authorize(authorization.ObjectProduct, authorization.ActionProductActivate), s.ActivateProduct)
		products.POST("/:id/deactivate", s.authorize(authorization.ObjectProduct, authorization.ActionProductDeactivate), s.DeactivateProduct)
	}
	return nil
}

func (s *Server) RegisterAdminRoutes() error {
	if s.apiKeySvc == nil || s.authzSvc == nil || s.auditSvc == nil {
		return errors.New("admin routes require api key, authorization and audit services")
	}

	admin := s.engine.Group("/admin", s.APIKeyRequired())
	{
		admin.GET("/api-keys", s.authorize(authorization.ObjectAPIKey, authorization.ActionAPIKeyView), s.ListAPIKeys)
		admin.POST("/api-keys", s.authorize(authorization.ObjectAPIKey, authorization.ActionAPIKeyCreate), s.CreateAPIKey)
		admin.POST("/api-keys/:key_id/rotate", s.authorize(authorization.ObjectAPIKey, authorization.ActionAPIKeyRotate), s.RotateAPIKey)
		admin.POST("/api-keys/:key_id/revoke", s.authorize(authorization.ObjectAPIKey, authorization.ActionAPIKeyRevoke), s.RevokeAPIKey)
		admin.GET("/audit-logs", s.authorize(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
	}
	return nil
}
