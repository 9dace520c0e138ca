package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/jasonlvhit/gocron"
	"github.com/peterbourgon/ff"
	"go.uber.org/zap"

	"github.com/deliverymap/server/internal/api"
	"github.com/deliverymap/server/internal/clients/mapbox"
	"github.com/deliverymap/server/internal/config"
	"github.com/deliverymap/server/internal/kv"
	"github.com/deliverymap/server/internal/lib/nav"
	"github.com/deliverymap/server/internal/lib/visits"
	"github.com/deliverymap/server/internal/lib/voice"
	"github.com/deliverymap/server/internal/services"
)

func main() {
	fs := flag.NewFlagSet("deliverymap-server", flag.ExitOnError)
	var (
		configPath = fs.String("config", "", "path to YAML config file")
		addr       = fs.String("addr", "", "listen address (overrides config)")
		debug      = fs.Bool("debug", false, "enable debug logging")
	)
	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix("DELIVERYMAP")); err != nil {
		os.Exit(2)
	}

	zlog, err := newLogger(*debug)
	if err != nil {
		os.Exit(1)
	}
	defer zlog.Sync()
	logger := zlog.Sugar()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalw("failed to load configuration", "error", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	store, err := kv.NewFileStore(cfg.Storage.Path, logger)
	if err != nil {
		logger.Fatalw("failed to open storage", "error", err)
	}

	visitStore := visits.NewStore(store, logger)
	if err := visitStore.Load(); err != nil {
		logger.Warnw("starting with empty visited locations", "error", err)
	}

	directions := mapbox.NewClientWithHTTPDoer(
		cfg.Directions.AccessToken,
		cfg.Directions.BaseURL,
		cfg.Directions.Language,
		&http.Client{Timeout: 30 * time.Second},
		logger)

	announcer := voice.NewAnnouncer(voice.NewLogSpeech(logger), cfg.Voice.Volume, logger)

	navigator := services.New(navigatorOptions(cfg), directions, announcer, visitStore, store, logger)

	s := gocron.NewScheduler()
	interval := uint64(cfg.Storage.FlushInterval.Seconds())
	if interval == 0 {
		interval = 60
	}
	s.Every(interval).Seconds().Do(func() {
		if err := visitStore.Save(); err != nil {
			logger.Warnw("periodic visit flush failed", "error", err)
		}
	})
	go s.Start()

	router := api.NewHandler(navigator, visitStore, logger).Router()
	cors := handlers.CORS(
		handlers.AllowedOrigins(cfg.Server.CorsOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: cors(router),
	}

	go func() {
		logger.Infow("server listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalw("server failed", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Infow("shutting down")
	s.Clear()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warnw("shutdown incomplete", "error", err)
	}

	if err := visitStore.Save(); err != nil {
		logger.Warnw("final visit flush failed", "error", err)
	}
}

// navigatorOptions maps the file configuration onto the navigator
// tuning, keeping the built-in camera padding.
func navigatorOptions(cfg *config.Config) services.Options {
	navCfg := nav.DefaultConfig()
	navCfg.ArrivalRadiusMeters = cfg.Navigation.ArrivalRadiusMeters
	navCfg.AdvanceRadiusMeters = cfg.Navigation.AdvanceRadiusMeters
	navCfg.ApproachRadiusMeters = cfg.Navigation.ApproachRadiusMeters
	navCfg.LowSpeedMetersPerSec = cfg.Navigation.LowSpeedMetersPerSec
	navCfg.FollowZoom = cfg.Navigation.FollowZoom
	navCfg.FollowPitch = cfg.Navigation.FollowPitch
	navCfg.ArrivalZoom = cfg.Navigation.ArrivalZoom

	return services.Options{
		Nav:                     navCfg,
		ArrivalSettleDelay:      cfg.Navigation.ArrivalSettleDelay,
		MovementThresholdMeters: cfg.Dwell.MovementThresholdMeters,
		DwellThreshold:          cfg.Dwell.DwellThreshold,
		RouteHistoryLimit:       cfg.Storage.RouteHistoryLimit,
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
