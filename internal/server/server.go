package server

import (
	"context"
	"net/http"
	"time"

	"github.com/edgepulse/edgepulse/internal/apikey"
	apikeydomain "github.com/edgepulse/edgepulse/internal/apikey/domain"
	"github.com/edgepulse/edgepulse/internal/config"
	"github.com/edgepulse/edgepulse/internal/dimension"
	"github.com/edgepulse/edgepulse/internal/ingest"
	ingestdomain "github.com/edgepulse/edgepulse/internal/ingest/domain"
	"github.com/edgepulse/edgepulse/internal/observability/metrics"
	"github.com/edgepulse/edgepulse/internal/ratelimit"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	metrics.Module,
	apikey.Module,
	dimension.Module,
	ingest.Module,
	ratelimit.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) { s.RegisterRoutes() }),
	fx.Invoke(Run),
)

func NewEngine(log *zap.Logger, m *metrics.Metrics) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(metrics.GinMiddleware(m))
	r.Use(ErrorHandlingMiddleware())
	return r
}

// RequestLogger emits one structured line per request.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	}
}

type Server struct {
	engine   *gin.Engine
	cfg      config.Config
	log      *zap.Logger
	verifier apikeydomain.Verifier
	ingest   ingestdomain.Service
	limiter  *ratelimit.IngestLimiter
	registry *prometheus.Registry
}

type ServerParams struct {
	fx.In

	Engine   *gin.Engine
	Cfg      config.Config
	Log      *zap.Logger
	Verifier apikeydomain.Verifier
	Ingest   ingestdomain.Service
	Limiter  *ratelimit.IngestLimiter `optional:"true"`
	Registry *prometheus.Registry
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:   p.Engine,
		cfg:      p.Cfg,
		log:      p.Log.Named("server"),
		verifier: p.Verifier,
		ingest:   p.Ingest,
		limiter:  p.Limiter,
		registry: p.Registry,
	}
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) RegisterRoutes() {
	v1 := s.engine.Group("/v1")
	v1.GET("/health", s.Health)
	v1.POST("/ingest", s.APIKeyRequired(), s.RateLimited(), s.Ingest)

	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
	s.engine.NoMethod(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}

// Run starts the HTTP server under the fx lifecycle.
func Run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
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
