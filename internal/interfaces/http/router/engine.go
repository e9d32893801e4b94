package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/erp/claimsync/internal/infrastructure/config"
	"github.com/erp/claimsync/internal/infrastructure/logger"
	"github.com/erp/claimsync/internal/interfaces/http/handler"
	"github.com/erp/claimsync/internal/interfaces/http/middleware"
)

// Paths served outside the service token check.
const (
	HealthPath     = "/health"
	SystemInfoPath = "/api/v1/system/info"
)

// EngineOptions carries everything NewEngine wires into the gin engine.
type EngineOptions struct {
	Logger *zap.Logger
	HTTP   config.HTTPConfig

	// RequestTimeout bounds handler contexts; zero disables it.
	RequestTimeout time.Duration

	ServiceName      string
	TracingEnabled   bool
	Meter            metric.Meter
	ProfilingEnabled bool

	// RateLimiter is nil when rate limiting is disabled.
	RateLimiter *middleware.RateLimiter
	// Tokens is nil when service auth is disabled.
	Tokens middleware.TokenValidator

	System     *handler.SystemHandler
	Registrars []RouteRegistrar
}

// NewEngine builds the gin engine: global middleware, the unauthenticated system
// endpoints and the versioned API with its registrars.
func NewEngine(opts EngineOptions) *gin.Engine {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	middleware.SetupValidator()

	engine := gin.New()
	if len(opts.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(opts.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Order matters: the request ID must exist before the span and the access log
	// read it, and the error marker must see the final status.
	engine.Use(logger.Recovery(log))
	engine.Use(middleware.RequestID())
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: opts.ServiceName,
		Enabled:     opts.TracingEnabled,
	}))
	engine.Use(middleware.TracingAttributeInjector())
	engine.Use(logger.GinMiddleware(log))

	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = opts.HTTP.CORSAllowOrigins
	if len(opts.HTTP.CORSAllowMethods) > 0 {
		cors.AllowMethods = opts.HTTP.CORSAllowMethods
	}
	if len(opts.HTTP.CORSAllowHeaders) > 0 {
		cors.AllowHeaders = opts.HTTP.CORSAllowHeaders
	}
	engine.Use(middleware.CORSWithConfig(cors))
	engine.Use(middleware.Secure())
	engine.Use(middleware.BodyLimit(opts.HTTP.MaxBodySize))
	engine.Use(middleware.Timeout(opts.RequestTimeout))
	if opts.RateLimiter != nil {
		engine.Use(middleware.RateLimit(opts.RateLimiter))
		log.Info("Rate limiting enabled",
			zap.Int("requests", opts.HTTP.RateLimitRequests),
			zap.Duration("window", opts.HTTP.RateLimitWindow),
		)
	}
	engine.Use(middleware.HTTPMetrics(opts.Meter))
	engine.Use(middleware.SpanErrorMarker())

	if opts.System != nil {
		engine.GET(HealthPath, opts.System.Health)
		engine.GET(SystemInfoPath, opts.System.GetSystemInfo)
	}

	api := NewAPI("v1")
	if opts.Tokens != nil {
		api.Use(middleware.ServiceAuth(middleware.ServiceAuthConfig{
			Tokens: opts.Tokens,
			Logger: log,
		}))
	} else {
		log.Warn("Service token auth is disabled")
	}
	api.Use(middleware.Profiling(opts.ProfilingEnabled))
	api.Register(opts.Registrars...).Mount(engine)

	return engine
}
