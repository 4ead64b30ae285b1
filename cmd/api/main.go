package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"crewgate.org/internal/audit"
	"crewgate.org/internal/config"
	"crewgate.org/internal/features"
	"crewgate.org/internal/httpapi"
	"crewgate.org/internal/identity"
	"crewgate.org/internal/jobs"
	"crewgate.org/internal/migrate"
	"crewgate.org/internal/obs"
	"crewgate.org/internal/siteops"
	"crewgate.org/internal/store/pg"
	"crewgate.org/internal/workforce"
)

var version = "0.3.1"

func main() {
	cfg, err := config.Load()
	if err != nil {
		obs.Logger().WithError(err).Fatal("load configuration")
	}
	obs.Init()
	obs.SetLevel(cfg.LogLevel)
	log := obs.Logger()

	if cfg.Database.DSN == "" {
		log.Fatal("CREWGATE_PG_DSN is required")
	}
	store, err := pg.Open(cfg.Database.DSN)
	if err != nil {
		log.WithError(err).Fatal("open database")
	}
	defer store.Close()

	ctx := context.Background()

	if cfg.Database.MigrateOnStart {
		mgr := migrate.NewManager(store.DB(), cfg.Database.MigrationsDir, cfg.Database.SeedsDir)
		if err := mgr.Up(ctx); err != nil {
			log.WithError(err).Fatal("run migrations")
		}
		if cfg.Database.SeedsDir != "" {
			if err := mgr.Seed(ctx); err != nil {
				log.WithError(err).Fatal("run seeds")
			}
		}
	}

	authSvc, err := identity.NewService(store, cfg.Auth.Secret, cfg.Auth.Issuer,
		identity.WithAccessTTL(cfg.Auth.AccessTTL),
		identity.WithRefreshTTL(cfg.Auth.RefreshTTL),
	)
	if err != nil {
		log.WithError(err).Fatal("build identity service")
	}
	if err := authSvc.EnsureBuiltins(ctx); err != nil {
		log.WithError(err).Fatal("ensure builtin permissions")
	}

	admin, err := identity.NewAdmin(store)
	if err != nil {
		log.WithError(err).Fatal("build admin service")
	}

	feats, err := features.NewService(store, features.WithCacheTTL(cfg.Features.CacheTTL))
	if err != nil {
		log.WithError(err).Fatal("build feature service")
	}

	wf, err := workforce.NewService(store)
	if err != nil {
		log.WithError(err).Fatal("build workforce service")
	}

	so, err := siteops.NewService(store)
	if err != nil {
		log.WithError(err).Fatal("build siteops service")
	}

	auditor := audit.NewRecorder(store)

	api := httpapi.New(authSvc, admin, feats, wf, so, auditor, store, version, httpapi.Options{
		CORSOrigins:     cfg.Server.CORSOrigins,
		RateLimitPerSec: cfg.Server.RateLimitPerSec,
		RateLimitBurst:  cfg.Server.RateLimitBurst,
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	sweeper := jobs.NewSweeper(store)
	if err := sweeper.Start(cfg.Jobs.SweepSchedule); err != nil {
		log.WithError(err).Fatal("start maintenance sweeper")
	}

	var grpcSrv *httpapi.GRPCServer
	if cfg.Server.GRPCAddr != "" {
		grpcSrv = httpapi.NewGRPCServer(store)
		go func() {
			log.WithField("addr", cfg.Server.GRPCAddr).Info("grpc health listener started")
			if err := grpcSrv.Serve(cfg.Server.GRPCAddr, 0); err != nil {
				log.WithError(err).Error("grpc listener stopped")
			}
		}()
	}

	go func() {
		log.WithField("addr", cfg.Server.Addr).WithField("version", version).Info("crewgate-api started")
		obs.SetReady(true)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("listen")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info("shutting down")
	obs.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	sweeper.Stop()
	log.Info("stopped")
}
