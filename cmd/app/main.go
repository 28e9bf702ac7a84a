package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/local/flipbook/internal/access"
	cfgpkg "github.com/local/flipbook/internal/config"
	"github.com/local/flipbook/internal/flipbook"
	"github.com/local/flipbook/internal/intake"
	"github.com/local/flipbook/internal/limiter"
	logpkg "github.com/local/flipbook/internal/logger"
	"github.com/local/flipbook/internal/metrics"
	"github.com/local/flipbook/internal/pagination"
	"github.com/local/flipbook/internal/rasterizer"
	"github.com/local/flipbook/internal/server"
	"github.com/local/flipbook/internal/statuscheck"
	"github.com/local/flipbook/internal/store"
)

func main() {
	cfg, err := cfgpkg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(1)
	}

	// Init logging
	if err := logpkg.Init(logpkg.Options{
		Service:      "flipbook",
		Level:        cfg.Logging.Level,
		Pretty:       cfg.Logging.Pretty,
		File:         cfg.Logging.File,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
		AxiomAPIKey:  cfg.Axiom.APIKey,
		AxiomOrgID:   cfg.Axiom.OrgID,
		AxiomDataset: cfg.Axiom.Dataset,
		AxiomFlush:   cfg.Axiom.FlushInterval,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
	}
	defer logpkg.Close()

	metrics.Init()

	// Status store: Redis when configured, otherwise in process
	var (
		status flipbook.StatusStore
		pinger statuscheck.RedisPinger
	)
	if cfg.Redis.URL != "" {
		rs, err := store.NewRedisStatus(cfg.Redis.URL, cfg.Redis.StatusTTL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init redis status store")
		}
		defer rs.Close()
		status = flipbook.NewStatusAdapter(rs)
		pinger = rs
	} else {
		status = flipbook.NewMemoryStatus(cfg.Redis.StatusTTL)
		log.Info().Msg("REDIS_URL not set, keeping load status in memory")
	}

	slots := limiter.New(limiter.Options{MaxInflight: cfg.Render.Slots})
	engine := rasterizer.NewFitzEngine()

	books := flipbook.NewRegistry(flipbook.Dependencies{
		Status: status,
		Slots:  slots,
		Engine: engine,
	}, flipbook.Settings{
		Render: rasterizer.Options{
			Scale:     cfg.Render.Scale,
			Format:    rasterizer.Format(cfg.Render.Format),
			Quality:   cfg.Render.Quality,
			ColorMode: rasterizer.ColorMode(cfg.Render.ColorMode),
			PadOdd:    cfg.Render.PadOdd,
			PadWidth:  cfg.Render.PadWidth,
			PadHeight: cfg.Render.PadHeight,
			Policy:    rasterizer.Policy(cfg.Render.Policy),
			Workers:   cfg.Render.Workers,
		},
		Step:   cfg.Viewer.Step,
		Cover:  cfg.Viewer.Cover,
		Settle: cfg.Viewer.Settle,
	}, cfg.Viewer.SessionTTL)
	defer books.Close()

	// Fail fast on bad render or viewer settings instead of on first create
	if _, err := rasterizer.New(engine, books.Defaults().Render); err != nil {
		log.Fatal().Err(err).Msg("invalid render configuration")
	}
	if _, err := pagination.New(pagination.Options{Step: cfg.Viewer.Step}); err != nil {
		log.Fatal().Err(err).Msg("invalid viewer configuration")
	}

	// S3 sources
	var (
		objects  intake.ObjectFetcher
		s3Client *s3.Client
	)
	s3Client, err = intake.NewS3Client(context.Background(), intake.S3Options{
		Region:    cfg.S3.Region,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
	})
	if err != nil {
		log.Warn().Err(err).Msg("s3 sources disabled")
	} else {
		objects = intake.NewS3Fetcher(s3Client)
	}

	in := intake.New(intake.Config{
		MaxBytes:     cfg.Intake.MaxBytes,
		MaxPages:     cfg.Intake.MaxPages,
		MaxLogoBytes: cfg.Intake.MaxLogoBytes,
		AllowLocal:   cfg.Intake.AllowLocal,
		AllowPrivate: cfg.Intake.AllowPrivate,
		FetchTimeout: cfg.Intake.FetchTimeout,
	}, objects)

	checkOpts := statuscheck.Options{
		Redis:    pinger,
		S3Bucket: cfg.S3.HealthBucket,
		Engine:   engine,
		Slots:    slots,
	}
	if s3Client != nil {
		checkOpts.S3 = s3Client
	}

	if cfg.Server.AuthToken == "" && !cfg.Server.AuthDisabled {
		log.Warn().Msg("AUTH_TOKEN not set, /flipbooks requests will be rejected")
	}

	srv := server.New(server.Dependencies{
		Books:   books,
		Intake:  in,
		Auth:    access.TokenAuthorizer{Token: cfg.Server.AuthToken, Disabled: cfg.Server.AuthDisabled},
		Checker: statuscheck.New(checkOpts),
	}, server.Options{
		RateLimit:  cfg.Server.RateLimit,
		RateWindow: cfg.Server.RateWindow,
	})

	httpSrv := &http.Server{Addr: ":" + cfg.Server.Port, Handler: srv}
	go func() {
		log.Info().Msgf("HTTP server listening on :%s", cfg.Server.Port)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	log.Info().Msg("shutdown complete")
}
