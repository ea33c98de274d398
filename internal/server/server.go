package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/searchrag/config"
	"github.com/mohammad-safakhou/searchrag/internal/pipeline"
	"github.com/mohammad-safakhou/searchrag/internal/runtime"
)

const shutdownTimeout = 10 * time.Second

// NewEcho builds the HTTP surface. gatherer may be nil to disable /metrics.
func NewEcho(h *QueryHandler, logger *zap.Logger, gatherer prometheus.Gatherer) *echo.Echo {
	if logger == nil {
		logger = zap.NewNop()
	}
	httpLogger := logger.Named("http")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = newRequestValidator()
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code, msg := statusFor(err)
		req := c.Request()
		fields := []zap.Field{
			zap.Int("status", code),
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.String("ip", c.RealIP()),
			zap.Error(err),
		}
		if code >= http.StatusInternalServerError {
			httpLogger.Error("request failed", fields...)
		} else {
			httpLogger.Info("request rejected", fields...)
		}
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	h.Register(e.Group(""))
	return e
}

// statusFor maps pipeline errors onto HTTP statuses.
func statusFor(err error) (int, string) {
	var he *echo.HTTPError
	var ce *config.ConfigurationError
	switch {
	case errors.As(err, &he):
		msg := http.StatusText(he.Code)
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
		return he.Code, msg
	case errors.Is(err, pipeline.ErrInvalidRequest):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &ce):
		return http.StatusServiceUnavailable, ce.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

// Run serves the API on addr (cfg.Server.Address when empty) until ctx is done.
func Run(ctx context.Context, cfg *config.Config, logger *zap.Logger, addr string) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if addr == "" {
		addr = cfg.Server.Address
	}

	tel, err := runtime.SetupTelemetry(ctx, cfg.Telemetry, runtime.TelemetryOptions{ServiceName: "searchrag", ServiceVersion: Version})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			logger.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	deps, err := BuildDeps(ctx, cfg, logger, reg)
	if err != nil {
		return err
	}
	defer deps.Close()

	var gatherer prometheus.Gatherer
	if cfg.Server.MetricsEnabled {
		gatherer = reg
	}
	e := NewEcho(&QueryHandler{Pipeline: deps.Pipeline, Timeout: cfg.Server.RequestTimeout}, logger, gatherer)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", addr))
		errCh <- e.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	logger.Info("shutting down")
	return e.Shutdown(sctx)
}

// Version is stamped at build time with -ldflags.
var Version = "dev"
