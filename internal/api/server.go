package api

import (
	"context"
	"net/http"
	"time"

	"codeberg.org/mutker/boostctl/internal/errors"
	"codeberg.org/mutker/boostctl/internal/history"
	"codeberg.org/mutker/boostctl/internal/logger"
	"codeberg.org/mutker/boostctl/internal/mode"
	"codeberg.org/mutker/boostctl/internal/permission"
	"codeberg.org/mutker/boostctl/internal/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 5 * time.Second
)

type ModeController interface {
	mode.Reader
	SetMode(next mode.Mode) error
}

type SnapshotSource interface {
	Snapshot() telemetry.Snapshot
}

type HistoryReader interface {
	Enabled() bool
	Query(ctx context.Context, since time.Time, source string) ([]history.Sample, error)
}

type SetupFlow interface {
	Step() permission.Step
	Advance() permission.Step
	Recheck() permission.Step
}

type CapabilityStore interface {
	Capabilities() permission.Capabilities
	Set(caps permission.Capabilities)
}

// Deps are the components the API reads from and drives.
type Deps struct {
	Modes        ModeController
	Simulators   []SnapshotSource
	History      HistoryReader
	Setup        SetupFlow
	Capabilities CapabilityStore
	Gatherer     prometheus.Gatherer
}

type Server struct {
	addr   string
	deps   Deps
	router *gin.Engine
	logger logger.Logger
}

func NewServer(addr string, deps Deps, log logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))

	s := &Server{
		addr:   addr,
		deps:   deps,
		router: router,
		logger: log,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/mode", s.handleGetMode)
		api.PUT("/mode", s.handleSetMode)
		api.GET("/ranges", s.handleRanges)
		api.GET("/history", s.handleHistory)

		setup := api.Group("/setup")
		setup.GET("", s.handleSetup)
		setup.POST("/capabilities", s.handleCapabilities)
		setup.POST("/advance", s.handleAdvance)
		setup.POST("/recheck", s.handleRecheck)
	}

	if s.deps.Gatherer != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errFactory := errors.New()

	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.addr).Msg("HTTP API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return errFactory.Wrap(errors.ErrServeHTTP, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errFactory.Wrap(errors.ErrShutdownFailed, err)
	}

	s.logger.Info().Msg("HTTP API stopped")
	return nil
}

func requestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("HTTP request")
	}
}
