// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ubid-billing/internal/config"
	"ubid-billing/internal/domain/model"
	"ubid-billing/internal/domain/ports/repository"
	pg "ubid-billing/internal/infra/db/postgres"
	"ubid-billing/internal/infra/logging"
	"ubid-billing/internal/infra/metrics"
	"ubid-billing/internal/infra/payment"
	red "ubid-billing/internal/infra/redis"
	"ubid-billing/internal/infra/sched"
	"ubid-billing/internal/infra/web"
	"ubid-billing/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, relaxed cookies)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("[DEV MODE] Enabled")
	}
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	go pg.ReportPoolStats(ctx, pool, 15*time.Second)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	profileRepo := pg.NewProfileRepoCacheDecorator(pg.NewPostgresProfileRepo(pool), redisClient, cfg.Redis.TTL)
	changeRepo := pg.NewPostgresChangeLogRepo(pool)

	// ---- Payment gateway ----
	gateway := payment.NewSimulatedGateway(cfg.Payment.CaptureDelay)

	// ---- Use cases ----
	catalog := model.DefaultCatalog()
	billingUC := usecase.NewBillingUseCase(profileRepo, changeRepo, tm, gateway, catalog, logger)
	renewalUC := usecase.NewRenewalUseCase(profileRepo, tm, gateway, catalog, logger)

	// ---- Web server ----
	auth := web.NewAuthManager(cfg.Web.SessionSecret, cfg.Web.SecureCookie, cfg.Web.CookieDomain, cfg.Web.SessionTTL)
	health := func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return err
		}
		return redisClient.Ping(ctx)
	}
	srv := web.NewServer(billingUC, renewalUC, auth, cfg.Web.AdminAPIKey, health, logger)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Web.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Renewal worker ----
	worker := sched.NewRenewalWorker(cfg.Scheduler.RenewalInterval, renewalUC, logger)
	go func() { _ = worker.Run(ctx) }()

	// ---- Tier gauge refresh ----
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if counts, err := profileRepo.CountByTier(ctx, repository.NoTX); err == nil {
					metrics.SetProfilesTotal(counts)
				}
			}
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
}
