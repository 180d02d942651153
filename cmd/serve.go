package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/scbrf/comments/internal/api"
	"github.com/scbrf/comments/internal/config"
	"github.com/scbrf/comments/internal/database"
	"github.com/scbrf/comments/internal/readcache"
	"github.com/scbrf/comments/internal/thread"
)

// ServeCommand returns the CLI command for starting the comment server
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the comments API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server (overrides config)",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.IsSet("port") {
		cfg.Server.Port = c.Int("port")
	}

	applyLogLevel(cfg.Log.Level)

	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	cache, err := readcache.New(cfg.Cache.Size)
	if err != nil {
		return fmt.Errorf("failed to create read cache: %w", err)
	}

	engine := thread.NewEngine(store)

	server := api.NewServer(engine, cache, api.Options{
		Port:          cfg.Server.Port,
		RatePerSecond: cfg.RateLimit.PerSecond,
		RateBurst:     cfg.RateLimit.Burst,
	})

	log.Info().
		Int("port", cfg.Server.Port).
		Str("storage", cfg.Storage.Driver).
		Msg("starting comments server")

	return server.Start()
}

func openStore(cfg *config.Config) (thread.Store, error) {
	switch cfg.Storage.Driver {
	case "memory":
		log.Warn().Msg("using in-memory storage, snapshots are lost on restart")
		return thread.NewInMemoryStore(), nil
	default:
		db, err := database.NewDB(cfg.Storage.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		store := thread.NewPostgresStore(db)
		if err := store.EnsureSchema(context.Background()); err != nil {
			return nil, err
		}
		return store, nil
	}
}

func applyLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
