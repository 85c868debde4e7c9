// Command server runs the car manager REST API.
//
//	@title			Car Manager API
//	@version		1.0
//	@description	CRUD for vehicle records persisted in a document database.
//	@BasePath		/api
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/car-manager/docs"
	"github.com/tbourn/car-manager/internal/config"
	httpapi "github.com/tbourn/car-manager/internal/http"
	"github.com/tbourn/car-manager/internal/idgen"
	"github.com/tbourn/car-manager/internal/observability"
	"github.com/tbourn/car-manager/internal/repo"
	"github.com/tbourn/car-manager/internal/services"
	"github.com/tbourn/car-manager/internal/store"
	"github.com/tbourn/car-manager/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version string

func main() {
	// .env is optional; real environment wins.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ver := sysutil.FirstNonEmpty(version, os.Getenv("APP_VERSION"), "dev")
	logger := sysutil.SetupLogger(os.Stdout, cfg.LogLevel, cfg.LogPretty, cfg.OTEL.ServiceName, ver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx)

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, ver,
		observability.AttrStoreDriver.String(cfg.Store.Driver))
	if err != nil {
		logger.Fatal().Err(err).Msg("otel setup failed")
	}

	drv, err := openDriver(ctx, cfg.Store)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("store connect failed")
	}
	client := store.NewClient(drv)

	addr := cfg.Store.Addressing
	ready := func(ctx context.Context) error {
		_, err := client.Collection(ctx, addr.DatabaseID, addr.CollectionID, addr.PartitionKeyPath)
		return err
	}
	// Provisioning is lazy; a failure here is retried on first use.
	if err := ready(ctx); err != nil {
		logger.Warn().Err(err).Msg("store not ready at startup")
	}

	cars := services.NewCarService(repo.NewCarRepository(client, addr), idgen.UUIDGenerator{})

	docs.SwaggerInfo.BasePath = cfg.APIBasePath
	docs.SwaggerInfo.Version = ver

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	if err := r.SetTrustedProxies(nil); err != nil {
		logger.Fatal().Err(err).Msg("trusted proxies")
	}
	httpapi.RegisterRoutes(r, cars, ready, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Str("driver", drv.Name()).
			Str("database", addr.DatabaseID).
			Str("collection", addr.CollectionID).
			Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server error")
		}
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	}

	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	if err := client.Close(); err != nil {
		logger.Error().Err(err).Msg("store close")
	}
	if err := shutdownOTel(sctx); err != nil {
		logger.Error().Err(err).Msg("otel shutdown")
	}
	logger.Info().Msg("stopped")
}
