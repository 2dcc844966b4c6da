package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/pigparty/pigparty/internal/dice"
	"github.com/pigparty/pigparty/internal/gateway"
	"github.com/pigparty/pigparty/internal/models"
	"github.com/pigparty/pigparty/internal/room"
	"github.com/pigparty/pigparty/internal/storage"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file loaded")
	}
	setupLogging()

	configPath := flag.String("config", "", "path to yaml config file")
	flag.Parse()

	config, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	adapter, cleanup, err := setupAdapter(ctx, config)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up storage")
	}
	defer cleanup()

	registry := room.NewRegistry(adapter, dice.NewRoller(), room.WithDefaults(models.Settings{
		MaxPlayers:       config.Game.MaxPlayers,
		TargetScore:      config.Game.TargetScore,
		TurnTimeLimitSec: config.Game.TurnTimeLimitSec,
	}))
	defer registry.Close()

	handler := cors.New(cors.Options{
		AllowedOrigins: config.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	}).Handler(gateway.NewServer(registry, adapter).Routes())

	server := &http.Server{
		Addr:    config.Server.Addr,
		Handler: handler,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", config.Server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("server exited with error")
	}
}

func setupLogging() {
	level, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if getEnv("LOG_PRETTY", "") != "" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// setupAdapter picks the storage stack: Postgres when DATABASE_URL is set,
// in-memory otherwise; either is wrapped with NATS broadcast when NATS_URL
// is set.
func setupAdapter(ctx context.Context, config *Config) (storage.Adapter, func(), error) {
	var adapter storage.Adapter
	cleanups := []func(){}

	if config.Database.URL != "" {
		pool, err := pgxpool.New(ctx, config.Database.URL)
		if err != nil {
			return nil, nil, err
		}
		pg := storage.NewPostgres(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		adapter = pg
		cleanups = append(cleanups, pool.Close)
		log.Info().Msg("using postgres storage")
	} else {
		adapter = storage.NewMemory()
		log.Info().Msg("using in-memory storage")
	}

	if config.NATS.URL != "" {
		conn, err := nats.Connect(config.NATS.URL)
		if err != nil {
			for _, fn := range cleanups {
				fn()
			}
			return nil, nil, err
		}
		adapter = storage.NewNATSBroadcaster(adapter, conn)
		cleanups = append(cleanups, conn.Close)
		log.Info().Str("url", config.NATS.URL).Msg("broadcasting snapshots over nats")
	} else if config.Database.URL != "" {
		log.Warn().Msg("postgres without nats: websocket snapshot delivery is unavailable")
	}

	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	return adapter, cleanup, nil
}
