package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/curator/go/internal/catalog"
	"github.com/mcdev12/curator/go/internal/dbconfig"
	"github.com/mcdev12/curator/go/internal/gateway"
	"github.com/mcdev12/curator/go/internal/ledger"
	"github.com/mcdev12/curator/go/internal/outbox"
	"github.com/mcdev12/curator/go/internal/ranking"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// engineSink bridges the gateway's action stream to the engine. It exists
// because the gateway needs an action sink at construction time while the
// engine needs the gateway's connection manager to render panels.
type engineSink struct {
	engine *ranking.Engine
}

func (s *engineSink) Start(ctx context.Context, conversation string) error {
	if s.engine == nil {
		return fmt.Errorf("engine not ready")
	}
	return s.engine.Start(ctx, conversation)
}

func (s *engineSink) HandleAction(ctx context.Context, conversation string, tag string) error {
	if s.engine == nil {
		return fmt.Errorf("engine not ready")
	}
	return s.engine.HandleAction(ctx, conversation, tag)
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg, err := loadConfig(getEnv("CONFIG_PATH", ""))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	dbCfg := dbconfig.NewConfigFromEnv()
	database, err := setupDatabase(dbCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up database")
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Gateway and engine reference each other; the sink holder breaks the
	// construction cycle.
	sink := &engineSink{}

	gatewayCfg := gateway.DefaultConfig()
	gatewayCfg.JetStreamConfig.URL = cfg.NATS.URL
	gatewayCfg.JetStreamConfig.StreamName = cfg.NATS.StreamName
	gatewayCfg.JetStreamConfig.SubjectFilter = cfg.NATS.SubjectPrefix + ".>"
	gw, err := gateway.NewService(gatewayCfg, sink)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create gateway")
	}

	catalogRepo := catalog.NewRepository(catalog.New(database))
	ledgerRepo := ledger.NewRepository(database)

	engine := ranking.NewEngine(
		catalogRepo,
		gw.ConnectionManager(),
		ledgerRepo,
		clockwork.NewRealClock(),
		ranking.Config{
			AutoConfirm:   cfg.autoConfirm(),
			Inactivity:    cfg.inactivity(),
			CountdownTick: cfg.countdownTick(),
		},
	)
	sink.engine = engine
	defer engine.Shutdown()

	nc, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to NATS")
	}
	defer nc.Close()

	publisher, err := outbox.NewJetStreamPublisher(nc, cfg.NATS.SubjectPrefix, slog.Default())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create publisher")
	}

	listenerCfg := outbox.DefaultListenerConfig()
	listenerCfg.DatabaseURL = dbCfg.DSN()
	listenerCfg.NotifyChannel = cfg.Outbox.NotifyChannel
	listenerCfg.FallbackInterval = time.Duration(cfg.Outbox.FallbackIntervalSeconds) * time.Second
	listener, err := outbox.NewListener(database, publisher, listenerCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create outbox listener")
	}

	go func() {
		if err := listener.Start(ctx); err != nil {
			log.Error().Err(err).Msg("outbox listener failed")
		}
	}()

	go func() {
		if err := gw.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway failed")
		}
	}()

	server := setupServer(gw)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown failed")
	}
}
