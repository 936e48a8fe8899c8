package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/config"
	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/database"
	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/event"
	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/logger"
	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/overlay"
	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/overlay/redisnet"
	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/server"
	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/utils"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "mqtt-bridge",
	Short: "Bridge MQTT clients and an overlay publish/subscribe network",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to the configuration file")
}

func openBackbone(ctx context.Context, cfg config.OverlayConfig) (overlay.Backbone, error) {
	if cfg.Backend != "redis" {
		logger.Info("Overlay backend: local, publications stay inside this process")
		return nil, nil
	}
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	backbone, err := redisnet.Connect(dialCtx, redisnet.Config{
		Addr:          cfg.Redis.Addr,
		Password:      cfg.Redis.Password,
		DB:            cfg.Redis.DB,
		ChannelPrefix: cfg.Redis.ChannelPrefix,
		DialTimeout:   utils.ParseStringTime(cfg.Redis.DialTimeout),
	})
	if err != nil {
		return nil, err
	}
	logger.InfoF("Overlay backend: redis at %s", cfg.Redis.Addr)
	return backbone, nil
}

func openStore(ctx context.Context, cfg config.Config, bridgeID string, cleaner *event.Cleaner) (database.SessionStore, error) {
	if !cfg.Database.Enabled {
		return database.NewMemoryStore(), nil
	}
	store, err := database.ConnectMongo(ctx, cfg.Database, cfg.AppName)
	if err != nil {
		return nil, err
	}
	cleaner.Add(store)
	// records left behind by handlers that did not finish in time
	cleaner.Add(event.CallableFunc(func(ctx context.Context) error {
		removed, err := store.DeleteBridgeSessions(ctx, bridgeID)
		if removed > 0 {
			logger.InfoF("Removed %d session records of bridge %s", removed, bridgeID)
		}
		return err
	}))
	return store, nil
}

func run(ctx context.Context) error {
	cfg, err := config.ReadConfig(configPath)
	if err != nil {
		if errors.Is(err, config.ErrConfigCreated) {
			fmt.Println(err.Error())
			return nil
		}
		return fmt.Errorf("error occured while reading config %w", err)
	}

	loggerCallback := logger.Init(cfg.DebugMode, "logs")
	logger.Debug("Application initializing...")
	cleaner := event.NewCleaner()
	cleaner.Init(loggerCallback)

	bridgeConfig, err := cfg.Bridge.Compile()
	if err != nil {
		logger.ErrorF("Invalid bridge configuration, details: %v", err)
		cleaner.Clean()
		return err
	}

	backbone, err := openBackbone(ctx, cfg.Overlay)
	if err != nil {
		logger.ErrorF("Error occured while opening overlay backbone, details: %v", err)
		cleaner.Clean()
		return err
	}
	zsession := overlay.NewSession(backbone)
	cleaner.Add(overlay.NewCloseCallback(zsession))
	logger.InfoF("Overlay session %s opened, scope '%s'", zsession.ID(), bridgeConfig.Scope)

	store, err := openStore(ctx, cfg, zsession.ID(), cleaner)
	if err != nil {
		logger.ErrorF("Error occured while initializing database, details: %v", err)
		cleaner.Clean()
		return err
	}

	srv := server.NewServer(cfg.MQTT, zsession, bridgeConfig, store)
	if err := srv.Start(ctx); err != nil {
		logger.ErrorF("MQTT Server Start error: %v", err)
		cleaner.Clean()
		return err
	}
	cleaner.Add(server.NewShutdownCallback(srv))

	<-cleaner.Done()
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
