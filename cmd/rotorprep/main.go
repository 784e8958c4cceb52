package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/star/rotorprep/internal/api"
	"github.com/star/rotorprep/internal/auth"
	"github.com/star/rotorprep/internal/cache"
	"github.com/star/rotorprep/internal/health"
	"github.com/star/rotorprep/internal/pipeline"
	"github.com/star/rotorprep/internal/rotor"
	"github.com/star/rotorprep/internal/solver"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	addr := os.Getenv("ROTORPREP_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	authCfg, err := loadAuthConfig(logger)
	if err != nil {
		logger.Error("invalid auth configuration", "error", err)
		os.Exit(1)
	}

	opts := loadPipelineOptions(logger)
	solverCfg := loadSolverConfig(logger)
	cacheCfg := loadCacheConfig(logger)
	apiCfg := loadAPIConfig(logger)
	apiCfg.Addr = addr
	apiCfg.Auth = authCfg
	apiCfg.SolverTimeout = solverCfg.Timeout

	client := solver.NewClient(solverCfg.URL, solverCfg.Timeout, logger)
	if !client.Configured() {
		logger.Warn("ROTORPREP_SOLVER_URL not set, solver routes will return 503")
	}

	rotorCache := cache.NewRotorCache(cacheCfg, logger)
	readiness := &health.Readiness{}

	srv := api.NewServer(apiCfg, api.Deps{
		Builder:   pipeline.NewBuilder(opts, logger),
		Cache:     rotorCache,
		Pool:      rotor.NewWorkerPool(solverCfg.Workers, logger),
		Solver:    client,
		Readiness: readiness,
	}, logger)

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start cache expiry sweeper.
	go rotorCache.Start(ctx)

	go func() {
		logger.Info("starting server", "addr", addr, "auth_enabled", authCfg.Enabled, "solver_url", client.BaseURL())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()
	readiness.SetReady(true)

	<-ctx.Done()
	readiness.SetReady(false)
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func loadAuthConfig(logger *slog.Logger) (auth.Config, error) {
	cfg := auth.Config{}

	enabledStr := os.Getenv("ROTORPREP_AUTH_ENABLED")
	if enabledStr != "" {
		enabled, err := strconv.ParseBool(enabledStr)
		if err != nil {
			return cfg, errors.New("ROTORPREP_AUTH_ENABLED must be a boolean value (true/false/1/0)")
		}
		cfg.Enabled = enabled
	}

	if cfg.Enabled {
		cfg.Token = os.Getenv("ROTORPREP_AUTH_TOKEN")
		if cfg.Token == "" {
			return cfg, errors.New("ROTORPREP_AUTH_TOKEN is required when auth is enabled")
		}
		logger.Info("auth enabled")
	}

	return cfg, nil
}

// envInt reads a positive integer, keeping def on absence or error.
func envInt(logger *slog.Logger, name string, def, lo int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < lo {
		logger.Warn("invalid "+name+" value, using default", "value", v, "default", def)
		return def
	}
	return n
}

func envBool(logger *slog.Logger, name string, def bool) bool {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		logger.Warn("invalid "+name+" value, using default", "value", v, "default", def)
		return def
	}
	return b
}

func loadPipelineOptions(logger *slog.Logger) pipeline.Options {
	opts := pipeline.DefaultOptions()
	opts.NSpan = envInt(logger, "ROTORPREP_N_SPAN", opts.NSpan, 3)
	opts.NAoA = envInt(logger, "ROTORPREP_N_AOA", opts.NAoA, 2)
	opts.NSector = envInt(logger, "ROTORPREP_N_SECTOR", opts.NSector, 1)
	opts.Flags.TipLoss = envBool(logger, "ROTORPREP_TIP_LOSS", opts.Flags.TipLoss)
	opts.Flags.HubLoss = envBool(logger, "ROTORPREP_HUB_LOSS", opts.Flags.HubLoss)
	opts.Flags.WakeRotation = envBool(logger, "ROTORPREP_WAKE_ROTATION", opts.Flags.WakeRotation)
	opts.Flags.UseCD = envBool(logger, "ROTORPREP_USE_CD", opts.Flags.UseCD)

	logger.Info("pipeline config",
		"n_span", opts.NSpan,
		"n_aoa", opts.NAoA,
		"n_sector", opts.NSector,
		"tip_loss", opts.Flags.TipLoss,
		"hub_loss", opts.Flags.HubLoss,
		"wake_rotation", opts.Flags.WakeRotation,
		"use_cd", opts.Flags.UseCD,
	)
	if opts.NAoA%4 != 0 {
		logger.Warn("ROTORPREP_N_AOA is not a multiple of 4, angle-of-attack grid will be uniform", "n_aoa", opts.NAoA)
	}
	return opts
}

type solverConfig struct {
	URL     string
	Timeout time.Duration
	Workers int
}

func loadSolverConfig(logger *slog.Logger) solverConfig {
	cfg := solverConfig{
		URL:     os.Getenv("ROTORPREP_SOLVER_URL"),
		Timeout: time.Duration(envInt(logger, "ROTORPREP_SOLVER_TIMEOUT", 30, 1)) * time.Second,
		Workers: envInt(logger, "ROTORPREP_SOLVER_WORKERS", runtime.NumCPU(), 1),
	}

	logger.Info("solver config",
		"url", cfg.URL,
		"timeout_seconds", cfg.Timeout.Seconds(),
		"workers", cfg.Workers,
	)
	return cfg
}

func loadCacheConfig(logger *slog.Logger) cache.Config {
	cfg := cache.Config{
		TTL:        time.Duration(envInt(logger, "ROTORPREP_CACHE_TTL", 3600, 1)) * time.Second,
		MaxEntries: envInt(logger, "ROTORPREP_CACHE_MAX_ENTRIES", 64, 1),
	}

	logger.Info("cache config",
		"ttl_seconds", cfg.TTL.Seconds(),
		"max_entries", cfg.MaxEntries,
	)
	return cfg
}

func loadAPIConfig(logger *slog.Logger) api.Config {
	cfg := api.Config{
		TrustProxy:        envBool(logger, "ROTORPREP_TRUST_PROXY", false),
		MaxSolvesPerIP:    envInt(logger, "ROTORPREP_MAX_SOLVES_PER_IP", 4, 1),
		MaxSolvesPerRotor: envInt(logger, "ROTORPREP_MAX_SOLVES_PER_ROTOR", 16, 1),
		MaxBodyBytes:      int64(envInt(logger, "ROTORPREP_MAX_BODY_BYTES", 8<<20, 1024)),
		MaxCases:          envInt(logger, "ROTORPREP_MAX_CASES", 1000, 1),
	}

	logger.Info("api config",
		"trust_proxy", cfg.TrustProxy,
		"max_solves_per_ip", cfg.MaxSolvesPerIP,
		"max_solves_per_rotor", cfg.MaxSolvesPerRotor,
		"max_body_bytes", cfg.MaxBodyBytes,
		"max_cases", cfg.MaxCases,
	)
	return cfg
}
