package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/flare-fhir/flare/internal/config"
	"github.com/flare-fhir/flare/internal/domain/feasibility"
	"github.com/flare-fhir/flare/internal/platform/auth"
	"github.com/flare-fhir/flare/internal/platform/db"
	"github.com/flare-fhir/flare/internal/platform/middleware"
)

const shutdownTimeout = 15 * time.Second

func serveCmd() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the feasibility API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fail(exitConfig, err)
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if err := cfg.ValidateServer(); err != nil {
				return fail(exitConfig, err)
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return runServer(ctx, cfg, newLogger(cfg))
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "listen port (overrides PORT)")
	return cmd
}

// server holds everything runServer wires together.
type server struct {
	echo   *echo.Echo
	engine *engine
	dbPool *pgxpool.Pool
}

func (s *server) Close() {
	s.engine.Close()
	if s.dbPool != nil {
		s.dbPool.Close()
	}
}

func newServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*server, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	eng, err := newEngine(cfg, logger, reg)
	if err != nil {
		return nil, err
	}
	s := &server{engine: eng}

	checks := []db.HealthCheck{}
	var runs feasibility.RunRepository
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
		if err != nil {
			eng.Close()
			return nil, err
		}
		s.dbPool = pool
		runs = feasibility.NewRunRepoPG(pool)
		checks = append(checks, db.PingCheck("database", pool))
		logger.Info().Msg("connected to database, recording feasibility runs")
	} else {
		logger.Warn().Msg("DATABASE_URL not set, feasibility runs are not recorded")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.BodyLimit("2M"))

	e.GET("/health", db.HealthHandler(s.healthInfo, checks...))
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	var authMW echo.MiddlewareFunc
	if cfg.IsDev() {
		logger.Warn().Msg("ENV=development: unauthenticated requests get admin access")
		authMW = auth.DevAuthMiddleware()
	} else {
		authMW = auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.AuthSigningKey),
		})
	}

	api := e.Group("/api/v1",
		authMW,
		middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			BurstSize:         cfg.RateLimitBurst,
			IdleTTL:           middleware.DefaultRateLimitConfig().IdleTTL,
		}),
		middleware.RequestTimeout(cfg.RequestTimeout),
	)

	svc := feasibility.NewService(eng.exec, runs, logger)
	feasibility.NewHandler(svc).RegisterRoutes(api)

	s.echo = e
	return s, nil
}

func (s *server) healthInfo() map[string]interface{} {
	st := s.engine.pool.Stats()
	info := map[string]interface{}{
		"workers": st.Workers,
		"queued":  st.Queued,
	}
	if s.dbPool != nil {
		info["database"] = db.GetPoolStats(s.dbPool)
	}
	return info
}

// runServer serves until ctx is cancelled, then shuts down gracefully.
func runServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	s, err := newServer(ctx, cfg, logger)
	if err != nil {
		return fail(exitConfig, err)
	}
	defer s.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("fhir_base_url", cfg.FHIRBaseURL).Msg("starting server")
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.echo.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		return fail(exitExecution, err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
