package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/latoulicious/Kolega/internal/commands"
	"github.com/latoulicious/Kolega/internal/config"
	"github.com/latoulicious/Kolega/internal/handlers"
	"github.com/latoulicious/Kolega/internal/messages"
	"github.com/latoulicious/Kolega/internal/presence"
	"github.com/latoulicious/Kolega/pkg/history"
	"github.com/latoulicious/Kolega/pkg/logging"
	"github.com/latoulicious/Kolega/pkg/player"
	"github.com/latoulicious/Kolega/pkg/source"
	"github.com/latoulicious/Kolega/pkg/voice"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "kolega: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	catalog, err := messages.Default()
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}

	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsMessageContent

	gateway := voice.NewDiscordGateway(dg, voice.EncodeConfig{
		Bitrate:        cfg.Voice.Bitrate,
		Volume:         cfg.Voice.Volume,
		BufferedFrames: cfg.Voice.BufferedFrames,
	}, logger)

	registry := player.NewRegistry(
		voice.NewBroker(gateway, cfg.Voice.ConnectTimeout, logger),
		source.NewYouTube(logger),
		player.NewFormatSelector(cfg.AudioQualityOrder...),
		logger,
	)
	defer registry.Close()

	notifier := commands.NewNotifier(dg, catalog, logger)
	registry.OnCreate(notifier.Attach)

	presenceManager := presence.NewManager(dg, func() int { return len(dg.State.Guilds) }, logger)
	registry.OnCreate(presenceManager.Attach)
	defer presenceManager.Stop()

	opts := commands.Options{
		Registry: registry,
		Locator:  commands.StateLocator{State: dg.State},
		Out:      dg,
		Catalog:  catalog,
		Limiter:  commands.NewLimiter(cfg.CommandRate, cfg.CommandBurst),
		Prefix:   cfg.CommandPrefix,
		Logger:   logger,
	}

	if cfg.History.Path != "" {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer store.Close()

		retention, err := history.NewRetention(store, cfg.History.Retention, cfg.History.Schedule, logger)
		if err != nil {
			return fmt.Errorf("create history retention: %w", err)
		}
		if err := retention.Start(); err != nil {
			return fmt.Errorf("schedule history retention: %w", err)
		}
		defer retention.Stop()

		registry.OnCreate(history.NewRecorder(store, logger).Attach)
		opts.History = store
		opts.Retention = retention
	}

	handler := commands.NewHandler(opts)
	dg.AddHandler(handlers.NewMessageHandler(handler).OnMessageCreate)
	dg.AddHandler(handlers.NewSlashHandler(handler, logger).OnInteractionCreate)

	if err := dg.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	defer dg.Close()

	if err := handlers.RegisterSlashCommands(dg, dg.State.User.ID); err != nil {
		logger.Warn("failed to register slash commands", zap.Error(err))
	}

	presenceManager.Start()

	logger.Info("bot is running, press CTRL-C to exit",
		zap.String("user", dg.State.User.Username),
		zap.String("prefix", cfg.CommandPrefix),
	)

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	logger.Info("shutting down", zap.Int("sessions", registry.Len()))
	registry.Close()
	return nil
}
