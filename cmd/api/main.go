package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"rollcall.org/internal/auth"
	"rollcall.org/internal/config"
	"rollcall.org/internal/httpapi"
	"rollcall.org/internal/memstore"
	"rollcall.org/internal/obs"
	"rollcall.org/internal/report"
	"rollcall.org/internal/roster"
	"rollcall.org/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

type backend interface {
	roster.Store
	report.Source
}

func main() {
	log := obs.Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Error("load config", "error", err.Error())
		os.Exit(1)
	}
	obs.SetLevel(cfg.LogLevel)
	log = obs.Logger()
	obs.Init()
	obs.InitBuildInfo(version, commit)
	auth.Configure(cfg.AuthSecret)

	var (
		store backend
		db    *sql.DB
	)
	if cfg.PostgresDSN != "" {
		pgStore, err := pg.Open(cfg.PostgresDSN)
		if err != nil {
			log.Error("open postgres", "error", err.Error())
			os.Exit(1)
		}
		defer pgStore.Close()
		store, db = pgStore, pgStore.DB()
	} else {
		log.Warn("ROLLCALL_PG_DSN not set, using in-memory store")
		store = memstore.New()
	}

	defaults := cfg.EngineDefaults()
	rosterSvc, err := roster.NewService(store, roster.WithDefaults(defaults))
	if err != nil {
		log.Error("roster service", "error", err.Error())
		os.Exit(1)
	}
	reports, err := report.NewService(store, report.WithDefaults(defaults))
	if err != nil {
		log.Error("report service", "error", err.Error())
		os.Exit(1)
	}

	opts := []httpapi.Option{
		httpapi.WithRateLimit(cfg.RateBurst, cfg.RatePerSecond),
		httpapi.WithCORSOrigins(cfg.CORSOrigins),
	}
	if cfg.DevTokens {
		log.Warn("development token issuance enabled")
		opts = append(opts, httpapi.WithDevTokens(cfg.TokenTTL))
	}
	probe := httpapi.ReadyProbe{DB: db}
	api := httpapi.New(probe, version, rosterSvc, reports, opts...)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	health := httpapi.NewHealthServer(probe)
	grpcServer := grpc.NewServer()
	health.Register(grpcServer)
	go health.Run(ctx, 15*time.Second)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Error("grpc listen", "addr", cfg.GRPCAddr, "error", err.Error())
		os.Exit(1)
	}
	go func() {
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Error("grpc serve", "error", err.Error())
			stop()
		}
	}()

	log.Info("starting rollcall-api", "version", version, "http_addr", srv.Addr, "grpc_addr", cfg.GRPCAddr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("listen", "error", err.Error())
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	grpcServer.GracefulStop()
	log.Info("stopped")
}
