package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gorm.io/gorm"

	"github.com/dumfing/skirmish/internal/config"
	"github.com/dumfing/skirmish/internal/database"
	"github.com/dumfing/skirmish/internal/logging"
	"github.com/dumfing/skirmish/internal/model"
	"github.com/dumfing/skirmish/internal/model/convert"
	"github.com/dumfing/skirmish/internal/storage"
	gormstorage "github.com/dumfing/skirmish/internal/storage/gorm"
	"github.com/dumfing/skirmish/internal/storage/memory"
	pgstorage "github.com/dumfing/skirmish/internal/storage/postgres"
)

var sourceDB = pflag.String("sqlite", "", "getjson: read rounds from this SQLite file instead of Postgres")

//////////////////////////////////////////////////////////////
// Direct (exe) functions
//////////////////////////////////////////////////////////////

// setupDB creates the Postgres schema and the server info row.
func setupDB() error {
	m := database.NewManager(logging.NewZerolog(LogOutput, viper.GetString("logLevel")))
	if err := m.Connect(); err != nil {
		return err
	}
	if m.ShouldSaveLocal {
		return errors.New("postgres is not reachable, check the db section of the config")
	}
	if err := m.Setup(config.GetServerConfig().Name); err != nil {
		return err
	}
	Logger.Info("DB setup complete.")
	return nil
}

// getJSON exports stored rounds as replay files in the memory backend's
// output directory.
func getJSON(roundIDs []string) error {
	fmt.Println("Getting JSON for round IDs: ", roundIDs)

	db, err := openSource()
	if err != nil {
		return err
	}

	for _, arg := range roundIDs {
		id, err := strconv.ParseUint(arg, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid round id %q: %w", arg, err)
		}

		txStart := time.Now()
		out := memory.New(config.GetStorageConfig().Memory)
		if err := replayRound(db, uint(id), out); err != nil {
			return err
		}
		fmt.Println("Wrote", out.GetExportedFilePath(), "in", time.Since(txStart))
	}
	return nil
}

// migrateBackups copies every round from the SQLite dumps in the recordings
// directory into Postgres. Migrated files are renamed so they are not
// imported twice.
func migrateBackups() error {
	dir := config.GetStorageConfig().Memory.OutputDir
	sqlitePaths, err := database.GetBackupDBPaths(dir)
	if err != nil {
		return fmt.Errorf("error getting backup database paths: %w", err)
	}
	if len(sqlitePaths) == 0 {
		Logger.Info("No backups to migrate", "dir", dir)
		return nil
	}

	dst := pgstorage.New(pgstorage.Dependencies{
		Dependencies: gormstorage.Dependencies{LogManager: SlogManager},
		DSN:          database.PostgresDSN(),
		ServerName:   config.GetServerConfig().Name,
	})
	if err := dst.Init(); err != nil {
		return fmt.Errorf("error getting postgres database: %w", err)
	}
	defer dst.Close()

	successfulMigrations := make([]string, 0, len(sqlitePaths))
	for _, sqlitePath := range sqlitePaths {
		if err := migrateBackup(sqlitePath, dst); err != nil {
			Logger.Error("Error migrating backup", "path", sqlitePath, "error", err)
			continue
		}
		if err := os.Rename(sqlitePath, sqlitePath+".migrated"); err != nil {
			Logger.Error("Error renaming sqlite file", "error", err)
		}
		successfulMigrations = append(successfulMigrations, sqlitePath)
	}

	Logger.Info("Finished migrating backups",
		"count", len(successfulMigrations),
		"failed", len(sqlitePaths)-len(successfulMigrations),
		"paths", successfulMigrations)
	return nil
}

func migrateBackup(path string, dst storage.Backend) error {
	src, err := database.GetSqliteDB(path)
	if err != nil {
		return fmt.Errorf("error getting sqlite database: %w", err)
	}
	if sqlDB, err := src.DB(); err == nil {
		defer sqlDB.Close()
	}

	var ids []uint
	if err := src.Model(&model.Round{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return fmt.Errorf("error listing rounds: %w", err)
	}
	for _, id := range ids {
		if err := replayRound(src, id, dst); err != nil {
			return err
		}
	}
	Logger.Info("Migrated backup", "path", path, "rounds", len(ids))
	return nil
}

// openSource returns the database getjson reads from.
func openSource() (*gorm.DB, error) {
	if *sourceDB != "" {
		return database.GetSqliteDB(*sourceDB)
	}

	db, err := database.GetPostgresDB(database.PostgresDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql interface: %w", err)
	}
	if err = sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to validate connection: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	return db, nil
}

// replayRound feeds one stored round through dst as if it were being
// played: players and team picks first, then every record in tick order.
func replayRound(db *gorm.DB, roundID uint, dst storage.Backend) error {
	var stored model.Round
	if err := db.Preload("Level").First(&stored, roundID).Error; err != nil {
		return fmt.Errorf("error getting round %d: %w", roundID, err)
	}
	r := convert.RoundToCore(&stored)
	l := convert.LevelToCore(stored.Level)
	if err := dst.StartRound(&r, &l); err != nil {
		return fmt.Errorf("error starting round %d: %w", roundID, err)
	}

	steps := []struct {
		name string
		fn   func() (int, error)
	}{
		{"players", func() (int, error) {
			return replayTable(db, roundID, "conn_id", convert.PlayerToCore, dst.AddPlayer)
		}},
		{"team picks", func() (int, error) {
			return replayTable(db, roundID, "tick, id", convert.TeamPickToCore, dst.RecordTeamPick)
		}},
		{"soldier states", func() (int, error) {
			return replayTable(db, roundID, "tick, id", convert.SoldierStateToCore, dst.RecordSoldierState)
		}},
		{"projectile events", func() (int, error) {
			return replayTable(db, roundID, "spawn_tick, id", convert.ProjectileEventToCore, dst.RecordProjectileEvent)
		}},
		{"hit events", func() (int, error) {
			return replayTable(db, roundID, "tick, id", convert.HitEventToCore, dst.RecordHitEvent)
		}},
		{"chat events", func() (int, error) {
			return replayTable(db, roundID, "tick, id", convert.ChatEventToCore, dst.RecordChatEvent)
		}},
		{"tick stats", func() (int, error) {
			return replayTable(db, roundID, "tick, id", convert.TickStatToCore, dst.RecordTickStats)
		}},
	}
	for _, step := range steps {
		start := time.Now()
		n, err := step.fn()
		if err != nil {
			return fmt.Errorf("error getting %s: %w", step.name, err)
		}
		Logger.Debug("Replayed records", "round", roundID, "table", step.name, "count", n, "duration", time.Since(start))
	}

	return dst.EndRound()
}

func replayTable[M any, C any](db *gorm.DB, roundID uint, order string, toCore func(M) C, record func(*C) error) (int, error) {
	var rows []M
	if err := db.Where("round_id = ?", roundID).Order(order).Find(&rows).Error; err != nil {
		return 0, err
	}
	for _, row := range rows {
		c := toCore(row)
		if err := record(&c); err != nil {
			return 0, err
		}
	}
	return len(rows), nil
}
