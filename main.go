package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"

	"modmail-bot/internal/archive"
	"modmail-bot/internal/clock"
	"modmail-bot/internal/config"
	"modmail-bot/internal/discord"
	"modmail-bot/internal/health"
	"modmail-bot/internal/modmail"
	"modmail-bot/internal/store"
	"modmail-bot/internal/ticket"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "modmail:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load(args, os.Getenv)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	snapshots, err := store.Open(cfg.StoreKind, cfg.StorePath)
	if err != nil {
		return err
	}
	if closer, ok := snapshots.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	registry := ticket.NewRegistry(nil)
	snap, err := snapshots.Load(ctx)
	if err != nil {
		return fmt.Errorf("load tickets: %w", err)
	}
	registry.Restore(snap)
	logger.Info("tickets loaded", "store", cfg.StoreKind, "users", len(snap.UserTickets), "open_channels", len(snap.ChannelToUser))

	clk := clock.Real()
	writer := store.NewWriter(snapshots, registry.Snapshot, store.WriterOptions{
		Delay:  cfg.FlushDelay,
		Clock:  clk,
		Logger: logger,
	})
	registry.SetPersister(writer)
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := writer.Close(flushCtx); err != nil {
			logger.Error("final snapshot save failed", "error", err)
		}
	}()

	var archiver modmail.Archiver = archive.Discard{}
	if cfg.MongoURI != "" {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		mongoArchive, err := archive.Connect(connectCtx, cfg.MongoURI, cfg.MongoDatabase, logger)
		cancel()
		if err != nil {
			return err
		}
		defer mongoArchive.Close(context.Background())
		archiver = mongoArchive
		logger.Info("connected to MongoDB", "database", cfg.MongoDatabase)
	}

	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}
	gateway := discord.New(session, discord.Options{
		GuildID:   cfg.GuildID,
		StaffRole: cfg.StaffRole,
		Logger:    logger,
	})
	if err := session.Open(); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}
	defer session.Close()

	if err := gateway.Resolve(); err != nil {
		return err
	}

	router := modmail.New(modmail.Options{
		Registry: registry,
		Platform: gateway,
		Archive:  archiver,
		Clock:    clk,
		Logger:   logger,
		Config:   cfg.RouterConfig(),
	})
	// Runs before the writer and store close, so no deletion saves into
	// a closed store.
	defer router.Close()
	if n := router.Lifecycle().Resume(); n > 0 {
		logger.Info("resumed closing tickets", "count", n)
	}
	gateway.Bind(router)
	defer gateway.Unbind()

	go func() {
		if err := health.Serve(ctx, cfg.Port, logger); err != nil {
			logger.Error("health endpoint stopped", "error", err)
		}
	}()

	logger.Info("bot is running, press CTRL-C to exit")
	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

func newLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
