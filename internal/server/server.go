package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/cobranza/internal/config"
	"github.com/smallbiznis/cobranza/internal/scheduler"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log))
	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
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

// Server carries the operational HTTP surface: health, metrics, and a manual
// sweep trigger. Entity management happens through the service layer, not over
// HTTP.
type Server struct {
	engine *gin.Engine
	db     *gorm.DB
	sched  *scheduler.Scheduler
	log    *zap.Logger
}

type ServerParams struct {
	fx.In

	Gin       *gin.Engine
	DB        *gorm.DB
	Scheduler *scheduler.Scheduler
	Log       *zap.Logger
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine: p.Gin,
		db:     p.DB,
		sched:  p.Scheduler,
		log:    p.Log.Named("http.server"),
	}

	svc.registerOpsRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) registerOpsRoutes() {
	s.engine.GET("/healthz", s.healthz)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.engine.POST("/v1/billing/sweep", s.triggerSweep)
}

func (s *Server) healthz(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// triggerSweep runs the daily sweep on demand. The sweep is idempotent, so
// operators can call this freely after fixing a misconfiguration.
func (s *Server) triggerSweep(c *gin.Context) {
	if err := s.sched.RunOnce(c.Request.Context()); err != nil {
		s.log.Warn("manual sweep finished with errors", zap.Error(err))
		c.JSON(http.StatusMultiStatus, gin.H{
			"status": "completed_with_errors",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http.access")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}
