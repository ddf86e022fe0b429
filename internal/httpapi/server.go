// Package httpapi serves the read-only status endpoints for the bot: a
// health check and aggregate outcome counters. It never mutates state.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"leadpilot_backend/internal/dedup"
	"leadpilot_backend/platform/config"
	"leadpilot_backend/platform/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Server struct {
	engine *gin.Engine
	addr   string
	log    *logger.Logger
}

func New(cfg config.HTTPConfig, pool *pgxpool.Pool, log *logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.Use(cors.New(cors.Config{
		AllowOrigins:  cfg.GetCORSOrigins(),
		AllowMethods:  []string{"GET", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	repo := dedup.New(pool)

	engine.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	engine.GET("/api/v1/stats", func(c *gin.Context) {
		counts, err := repo.OutcomeCounts(c.Request.Context())
		if err != nil {
			log.DatabaseError("OutcomeCounts", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "stats unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"sent":    counts[dedup.OutcomeSent],
			"skipped": counts[dedup.OutcomeSkipped],
			"failed":  counts[dedup.OutcomeFailed],
		})
	})

	return &Server{
		engine: engine,
		addr:   cfg.GetHTTPAddr(),
		log:    log,
	}
}

// Run serves until the context is canceled, then drains with a short
// shutdown grace period.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.log.Info("status server listening", "addr", s.addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
