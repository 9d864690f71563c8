// Package main provides the bot entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/melba-bot/melba/internal/app/filter"
	"github.com/melba-bot/melba/internal/app/jockey"
	"github.com/melba-bot/melba/internal/app/nowplaying"
	"github.com/melba-bot/melba/internal/app/resolver"
	"github.com/melba-bot/melba/internal/infra/audionode"
	"github.com/melba-bot/melba/internal/infra/config"
	"github.com/melba-bot/melba/internal/infra/lastfm"
	"github.com/melba-bot/melba/internal/infra/logger"
	"github.com/melba-bot/melba/internal/infra/settings"
	"github.com/melba-bot/melba/internal/infra/spotify"
)

var (
	app        = kingpin.New("melba", "melba music bot")
	configPath = app.Flag("config", "Path to config file").Default("config/melba.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{Output: "stdout", Level: "info"}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = "file"
		loggerConfig.File = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Bot error: %v", err)
		os.Exit(1)
	}
}

// run executes the main bot logic. A separate function ensures defers
// run even when returning with an error.
func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !cfg.SourceEnabled("spotify") {
		return errors.New("the spotify source must be enabled; it backs track resolution")
	}
	spotifySettings, err := cfg.SpotifySettings()
	if err != nil {
		return err
	}
	catalog, err := spotify.New(ctx, spotify.Config{
		ClientID:     spotifySettings.ClientID,
		ClientSecret: spotifySettings.ClientSecret,
		RefreshToken: spotifySettings.RefreshToken,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create Spotify client")
	}

	node, err := audionode.New(audionode.Config{
		Address:  cfg.AudioNode.Address,
		Password: cfg.AudioNode.Password,
		UserID:   cfg.Bot.UserID,
		Secure:   cfg.AudioNode.Secure,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create audio node client")
	}
	if err := node.Connect(ctx); err != nil {
		return errors.Wrap(err, "failed to connect to audio node")
	}
	defer func() { _ = node.Close() }()

	store, err := settings.Open(cfg.Database.Path)
	if err != nil {
		return errors.Wrap(err, "failed to open settings database")
	}
	defer func() { _ = store.Close() }()

	var scrobbler jockey.Scrobbler
	if cfg.SourceEnabled("lastfm") {
		lastfmSettings, err := cfg.LastFMSettings()
		if err != nil {
			return err
		}
		scrobbler, err = lastfm.New(lastfm.Config{
			APIKey:       lastfmSettings.APIKey,
			SharedSecret: lastfmSettings.SharedSecret,
			SessionKey:   lastfmSettings.SessionKey,
		})
		if err != nil {
			return errors.Wrap(err, "failed to create Last.fm client")
		}
	}

	res := resolver.New(catalog, node, resolver.Config{
		ConfidenceThreshold: cfg.Resolver.ConfidenceThreshold,
		DeezerEnabled:       cfg.SourceEnabled("deezer"),
	})

	reporter := nowplaying.New(newLogMessenger(), store)

	admission, err := buildAdmission(cfg)
	if err != nil {
		return err
	}

	manager, err := jockey.NewManager(jockey.ManagerDeps{
		NewPlayer: func(guildID string) jockey.NodePlayer {
			return node.Player(guildID)
		},
		Resolver:  res,
		Reporter:  reporter,
		Store:     store,
		Scrobbler: scrobbler,
		Admission: admission,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create jockey manager")
	}

	go manager.DispatchEvents(ctx, node.Events())

	if timeout := cfg.Bot.InactivityTimeoutSec; timeout > 0 {
		go watchIdle(ctx, manager, time.Duration(timeout)*time.Second)
	}

	zlog.Info().Str("node", cfg.AudioNode.Address).Msg("melba is up")
	<-ctx.Done()

	zlog.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	manager.Shutdown(shutdownCtx)
	return nil
}

// buildAdmission assembles the admission chain from config, or nil
// when no filter is enabled.
func buildAdmission(cfg *config.Config) (*filter.Chain, error) {
	chain := filter.NewChain()
	if fc, ok := cfg.Filters["duplicate_track"]; ok && fc.Enabled {
		chain.Add(filter.NewDuplicateTrack())
	}
	if fc, ok := cfg.Filters["duration_limit"]; ok && fc.Enabled {
		f, err := filter.NewDurationLimit(fc.Settings)
		if err != nil {
			return nil, errors.Wrap(err, "invalid duration_limit filter config")
		}
		chain.Add(f)
	}
	if len(chain.Filters()) == 0 {
		return nil, nil
	}
	return chain, nil
}

// watchIdle periodically disconnects guilds that have gone quiet.
func watchIdle(ctx context.Context, manager *jockey.Manager, maxIdle time.Duration) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			manager.ReapIdle(ctx, maxIdle)
		}
	}
}
