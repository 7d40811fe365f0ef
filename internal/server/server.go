// Package server exposes the HTTP surface: job submission and tracking,
// synchronous pricing, revision history, the progress event stream, and the
// worker callback endpoint.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/quoteforgelabs/quoteforge/internal/config"
	jobdomain "github.com/quoteforgelabs/quoteforge/internal/job/domain"
	pricingdomain "github.com/quoteforgelabs/quoteforge/internal/pricing/domain"
	"github.com/quoteforgelabs/quoteforge/internal/progress"
	quotedomain "github.com/quoteforgelabs/quoteforge/internal/quote/domain"
	revisiondomain "github.com/quoteforgelabs/quoteforge/internal/revision/domain"
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
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log.Named("http")))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Error("request", fields...)
			return
		}
		log.Info("request", fields...)
	}
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

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	db          *gorm.DB
	genID       *snowflake.Node
	queue       jobdomain.Queue
	pricingSvc  pricingdomain.Service
	quoteRepo   quotedomain.Repository
	revisionSvc revisiondomain.Writer
	publisher   progress.Publisher
	relay       *progress.Relay
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	DB          *gorm.DB
	GenID       *snowflake.Node
	Queue       jobdomain.Queue
	PricingSvc  pricingdomain.Service
	QuoteRepo   quotedomain.Repository
	RevisionSvc revisiondomain.Writer
	Publisher   progress.Publisher
	Relay       *progress.Relay
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		db:          p.DB,
		genID:       p.GenID,
		queue:       p.Queue,
		pricingSvc:  p.PricingSvc,
		quoteRepo:   p.QuoteRepo,
		revisionSvc: p.RevisionSvc,
		publisher:   p.Publisher,
		relay:       p.Relay,
	}

	svc.registerAPIRoutes()
	svc.registerCallbackRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.OrgContext())

	// -------- Jobs --------
	api.POST("/jobs", s.SubmitJob)
	api.GET("/jobs/:id", s.GetJob)
	api.POST("/jobs/:id/cancel", s.CancelJob)
	api.GET("/jobs/:id/events", s.StreamJobEvents)

	// -------- Pricing --------
	api.POST("/pricing/compute", s.ComputePricing)

	// -------- Quotes --------
	api.POST("/quotes", s.CreateQuote)
	api.GET("/quotes/:id", s.GetQuote)

	// -------- Revisions --------
	api.GET("/quotes/:id/revisions", s.ListRevisions)
	api.GET("/quotes/:id/revisions/compare", s.CompareRevisions)
	api.GET("/quotes/:id/revisions/:revision_id", s.GetRevision)
	api.POST("/quotes/:id/revisions/:revision_id/restore", s.RestoreRevision)
}

func (s *Server) registerCallbackRoutes() {
	// Out-of-process workers push lifecycle events here instead of talking
	// to redis directly.
	s.engine.POST("/ws/job-events", s.PublishJobEvent)
}
