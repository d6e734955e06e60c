// Package server provides the operational HTTP surface: health and metrics.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fleetwatch/canary/internal/infrastructure/logging"
	"github.com/fleetwatch/canary/internal/infrastructure/monitoring"
)

// Ops serves /health and /metrics for the prober process.
type Ops struct {
	srv    *http.Server
	logger *logging.Logger
}

// NewOps creates the ops server on the given port.
func NewOps(port string, metrics *monitoring.Metrics, gatherer prometheus.Gatherer, logger *logging.Logger) *Ops {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(metrics))

	started := time.Now()
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"uptime": time.Since(started).String(),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return &Ops{
		srv: &http.Server{
			Addr:    ":" + port,
			Handler: router,
		},
		logger: logger,
	}
}

// Run serves until the listener fails or Shutdown is called.
func (o *Ops) Run() error {
	o.logger.Info("Ops server listening", zap.String("addr", o.srv.Addr))
	if err := o.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the ops server gracefully.
func (o *Ops) Shutdown(ctx context.Context) error {
	return o.srv.Shutdown(ctx)
}
