package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chatlings/chatlings/internal/engine"
	"github.com/chatlings/chatlings/internal/rng"
	"github.com/chatlings/chatlings/internal/storage"
	"github.com/chatlings/chatlings/pkg/config"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", "config.yaml"))
	}

	// Initialize storage
	var store storage.Storage
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory storage")
		store = storage.NewMemoryStorage()
	} else {
		logger.Info("Using PostgreSQL storage")
		dbConfig := storage.DatabaseConfig{
			Host:        cfg.Database.Host,
			Port:        cfg.Database.Port,
			User:        cfg.Database.User,
			Password:    cfg.Database.Password,
			DBName:      cfg.Database.DBName,
			SSLMode:     cfg.Database.SSLMode,
			UseInMemory: cfg.Database.UseInMemory,
		}
		store, err = storage.NewPostgresStorage(dbConfig, logger)
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	}
	defer store.Close()

	// Optionally keep live conversations in redis, everything else in
	// the primary store
	if cfg.Redis.Enabled {
		logger.Info("Using redis for live conversations", zap.String("addr", cfg.Redis.Addr))
		conversations, err := storage.NewRedisConversationStore(storage.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      cfg.Redis.TTL,
		})
		if err != nil {
			logger.Fatal("Failed to connect to redis", zap.Error(err))
		}
		store = storage.NewLayered(store, conversations)
	}

	// Initialize the conversation engine
	eng := engine.New(store, engine.Config{
		BaseStartChance:     cfg.Engine.BaseStartChance,
		RecentWindow:        cfg.Engine.RecentWindow,
		RecentDamping:       cfg.Engine.RecentDamping,
		MinTurnDelay:        cfg.Engine.MinTurnDelay,
		StaleAfter:          cfg.Engine.StaleAfter,
		SoftEndTurn:         cfg.Engine.SoftEndTurn,
		SoftEndChance:       cfg.Engine.SoftEndChance,
		MaxTurns:            cfg.Engine.MaxTurns,
		RandomSpeakerChance: cfg.Engine.RandomSpeakerChance,
		RunawayThreshold:    cfg.Engine.RunawayThreshold,
		RunawayChance:       cfg.Engine.RunawayChance,
	}, rng.New(), logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Shut down cleanly on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("Shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("Chatlings daemon started", zap.Duration("poll_interval", cfg.Daemon.PollInterval))
	run(ctx, eng, store, cfg.Daemon.PollInterval, logger)
}

// run sweeps every user with creatures each tick and advances their
// conversation by at most one line.
func run(ctx context.Context, eng *engine.Engine, store storage.Storage, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			users, err := store.UsersWithCreatures(ctx)
			if err != nil {
				logger.Error("Failed to list users", zap.Error(err))
				continue
			}
			for _, userID := range users {
				line, err := eng.GetNextLine(ctx, userID)
				if err != nil {
					logger.Error("Conversation step failed",
						zap.Int64("user_id", userID), zap.Error(err))
					continue
				}
				if line != nil {
					logger.Debug("Conversation line",
						zap.Int64("user_id", userID),
						zap.String("speaker", line.Speaker),
						zap.Int("turn", line.Turn))
				}
			}
		}
	}
}
