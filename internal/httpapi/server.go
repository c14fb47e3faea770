// Package httpapi exposes the run trigger/status surface over HTTP. All
// responses use the jsend envelope.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"bottlo.nz/pricefeed/internal/db"
	"bottlo.nz/pricefeed/internal/globaltime"
	"bottlo.nz/pricefeed/internal/ingest"
)

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type Server struct {
	pool        *db.Pool
	coordinator *ingest.Coordinator
	logger      zerolog.Logger
	opts        Options
}

func NewServer(pool *db.Pool, coordinator *ingest.Coordinator, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8090
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	return &Server{
		pool:        pool,
		coordinator: coordinator,
		logger:      logger,
		opts: Options{
			Host:            host,
			Port:            port,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
		},
	}
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.pool == nil || s.coordinator == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/stats", s.handleStats)
	api.GET("/retailers", s.handleRetailers)
	api.POST("/retailers/:slug/runs", s.handleStartRun)
	api.GET("/runs", s.handleListRuns)
	api.GET("/runs/:run_uuid", s.handleRunStatus)
	api.DELETE("/runs/:run_uuid", s.handleCancelRun)

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("pricefeed api started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("pricefeed api stopped")
	return nil
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		message = err.Error()
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}

func (s *Server) handleHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	dbStatus := "ok"
	if err := s.pool.DB().PingContext(ctx); err != nil {
		s.logger.Error().Err(err).Msg("health database ping failed")
		dbStatus = "unreachable"
	}

	return success(c, map[string]any{
		"service":  "pricefeed",
		"time":     globaltime.UTC(),
		"database": dbStatus,
	})
}

func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.pool.QueryCatalogStats(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("query stats failed")
		return internalError(c, "Failed to load stats")
	}
	return success(c, stats)
}

func (s *Server) handleRetailers(c echo.Context) error {
	retailers, err := s.pool.ListRetailers(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("list retailers failed")
		return internalError(c, "Failed to load retailers")
	}
	return success(c, map[string]any{"retailers": retailers})
}

func (s *Server) handleStartRun(c echo.Context) error {
	slug := strings.TrimSpace(strings.ToLower(c.Param("slug")))
	if slug == "" {
		return fail(c, http.StatusBadRequest, "Retailer slug is required", nil)
	}

	handle, err := s.coordinator.StartRun(c.Request().Context(), slug, "api")
	switch {
	case errors.Is(err, ingest.ErrUnknownRetailer):
		return failNotFound(c, fmt.Sprintf("Retailer %q is not registered", slug))
	case errors.Is(err, ingest.ErrRunAlreadyActive):
		return failConflict(c, fmt.Sprintf("A run is already active for retailer %q", slug))
	case err != nil:
		s.logger.Error().Err(err).Str("retailer", slug).Msg("start run failed")
		return internalError(c, "Failed to start run")
	}

	return successWithStatus(c, http.StatusAccepted, map[string]any{
		"run_uuid": handle.RunUUID,
		"retailer": handle.RetailerSlug,
	})
}

func (s *Server) handleListRuns(c echo.Context) error {
	opts := db.RunListOptions{
		RetailerSlug: c.QueryParam("retailer"),
		Status:       c.QueryParam("status"),
	}
	if raw := strings.TrimSpace(c.QueryParam("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return fail(c, http.StatusBadRequest, "limit must be a positive integer", nil)
		}
		opts.Limit = limit
	}

	runs, err := s.pool.ListRuns(c.Request().Context(), opts)
	if err != nil {
		s.logger.Error().Err(err).Msg("list runs failed")
		return internalError(c, "Failed to load runs")
	}
	return success(c, map[string]any{"runs": runs})
}

func (s *Server) handleRunStatus(c echo.Context) error {
	runUUID := strings.TrimSpace(c.Param("run_uuid"))
	run, err := s.pool.GetRunByUUID(c.Request().Context(), runUUID)
	if db.IsNoRows(err) {
		return failNotFound(c, "Run not found")
	}
	if err != nil {
		s.logger.Error().Err(err).Str("run_uuid", runUUID).Msg("load run failed")
		return internalError(c, "Failed to load run")
	}
	return success(c, run)
}

func (s *Server) handleCancelRun(c echo.Context) error {
	runUUID := strings.TrimSpace(c.Param("run_uuid"))
	if s.coordinator.CancelRun(runUUID) {
		return successWithStatus(c, http.StatusAccepted, map[string]any{
			"run_uuid":  runUUID,
			"cancelled": true,
		})
	}

	// Not active on this instance; distinguish finished runs from unknown ones.
	run, err := s.pool.GetRunByUUID(c.Request().Context(), runUUID)
	if db.IsNoRows(err) {
		return failNotFound(c, "Run not found")
	}
	if err != nil {
		s.logger.Error().Err(err).Str("run_uuid", runUUID).Msg("load run failed")
		return internalError(c, "Failed to load run")
	}
	return failConflict(c, fmt.Sprintf("Run is not running (status %s)", run.Status))
}
