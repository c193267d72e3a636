package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gorm.io/gorm"

	"github.com/dumfing/skirmish/internal/config"
	"github.com/dumfing/skirmish/internal/database"
	"github.com/dumfing/skirmish/internal/monitor"
	"github.com/dumfing/skirmish/internal/storage"
	gormstorage "github.com/dumfing/skirmish/internal/storage/gorm"
	"github.com/dumfing/skirmish/internal/storage/memory"
	pgstorage "github.com/dumfing/skirmish/internal/storage/postgres"
	sqlitestorage "github.com/dumfing/skirmish/internal/storage/sqlite"
	wsstorage "github.com/dumfing/skirmish/internal/storage/websocket"
)

func createStorageBackend(storageCfg config.StorageConfig, serverCfg config.ServerConfig) (storage.Backend, error) {
	deps := gormstorage.Dependencies{
		PlayerCache:  PlayerCache,
		LevelCache:   LevelCache,
		LogManager:   SlogManager,
		RoundContext: RoundContext,
		Settings:     roundSettings(serverCfg),
	}

	switch storageCfg.Type {
	case "postgres":
		return pgstorage.New(pgstorage.Dependencies{
			Dependencies: deps,
			DSN:          database.PostgresDSN(),
			ServerName:   serverCfg.Name,
		}), nil

	case "sqlite":
		dumpPath := storageCfg.SQLite.DumpPath
		if dumpPath == "" {
			dumpPath = filepath.Join(storageCfg.Memory.OutputDir, fmt.Sprintf("%s_%s.db", serverCfg.Name, SessionStartTime.Format("20060102_150405")))
		}
		Logger.Info("SQLite storage dumps to disk", "path", dumpPath, "interval", storageCfg.SQLite.DumpInterval)
		return sqlitestorage.New(sqlitestorage.Config{
			DumpInterval: storageCfg.SQLite.DumpInterval,
			DumpPath:     dumpPath,
		}, deps), nil

	case "websocket":
		wsURL := storageCfg.WebSocket.URL
		if wsURL == "" {
			wsURL = httpToWS(viper.GetString("api.serverUrl")) + "/api"
		}
		secret := storageCfg.WebSocket.Secret
		if secret == "" {
			secret = viper.GetString("api.apiKey")
		}
		Logger.Info("WebSocket storage backend selected", "url", wsURL)
		return wsstorage.New(wsstorage.Config{
			URL:    wsURL,
			Secret: secret,
		}, SlogManager), nil

	case "memory", "":
		return memory.New(storageCfg.Memory), nil

	default:
		return nil, fmt.Errorf("unknown storage type %q", storageCfg.Type)
	}
}

// roundSettings is stored as JSON with every round row.
func roundSettings(cfg config.ServerConfig) map[string]any {
	phys := config.GetPhysicsConfig()
	return map[string]any{
		"tickRate":         cfg.TickRate,
		"broadcastEvery":   cfg.BroadcastEvery,
		"maxPlayers":       cfg.MaxPlayers,
		"friendlyFire":     cfg.FriendlyFire,
		"walkSpeed":        phys.WalkSpeed,
		"jumpPower":        phys.JumpPower,
		"projectileSpeed":  phys.ProjectileSpeed,
		"projectileDamage": phys.ProjectileDamage,
	}
}

// backendDB returns the connection of SQL backends, nil otherwise.
func backendDB(b storage.Backend) *gorm.DB {
	if p, ok := b.(interface{ DB() *gorm.DB }); ok {
		return p.DB()
	}
	return nil
}

func backendQueues(b storage.Backend) monitor.QueueLengthProvider {
	if p, ok := b.(monitor.QueueLengthProvider); ok {
		return p
	}
	return nil
}

// httpToWS converts an HTTP(S) URL to a WebSocket URL.
func httpToWS(httpURL string) string {
	s := strings.TrimRight(httpURL, "/")
	s = strings.Replace(s, "https://", "wss://", 1)
	s = strings.Replace(s, "http://", "ws://", 1)
	return s
}
