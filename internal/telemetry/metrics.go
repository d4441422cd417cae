// Package telemetry exposes Prometheus metrics for the grid trader.
package telemetry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"grid_trader/internal/core"
)

var (
	// TicksTotal counts reconciliation passes.
	TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "grid_trader_ticks_total",
		Help: "Total number of reconciliation ticks",
	})

	// TickFaults counts ticks that ended in an error or panic.
	TickFaults = promauto.NewCounter(prometheus.CounterOpts{
		Name: "grid_trader_tick_faults_total",
		Help: "Total number of failed reconciliation ticks",
	})

	// OrdersPlaced counts successfully placed orders by side.
	OrdersPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grid_trader_orders_placed_total",
		Help: "Total number of orders placed",
	}, []string{"side"})

	// OrdersFilled counts fills observed during reconciliation by side.
	OrdersFilled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grid_trader_orders_filled_total",
		Help: "Total number of order fills observed",
	}, []string{"side"})

	// OrdersCanceled counts cancellations issued by the engine by side.
	OrdersCanceled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grid_trader_orders_canceled_total",
		Help: "Total number of orders canceled by the engine",
	}, []string{"side"})

	// OpenOrders tracks the tracked ladder depth per side.
	OpenOrders = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "grid_trader_open_orders",
		Help: "Number of tracked resting orders per side",
	}, []string{"side"})
)

// Server handles Prometheus metrics export.
type Server struct {
	port   int
	logger core.ILogger
	srv    *http.Server
}

// NewServer creates a new metrics server.
func NewServer(port int, logger core.ILogger) *Server {
	return &Server{
		port:   port,
		logger: logger.WithField("component", "metrics_server"),
	}
}

// Start starts the metrics HTTP server.
func (s *Server) Start() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: mux,
	}

	go func() {
		s.logger.Info("Starting Prometheus metrics server", "port", s.port)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Metrics server failed", "error", err)
		}
	}()
}

// Stop gracefully stops the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	s.logger.Info("Stopping metrics server")
	return s.srv.Shutdown(ctx)
}
