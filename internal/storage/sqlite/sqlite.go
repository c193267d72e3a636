// Package sqlitestorage records rounds into an in-memory SQLite database and
// periodically copies it to disk with VACUUM INTO. Writes go through the
// shared GORM queue writer.
package sqlitestorage

import (
	"fmt"
	"time"

	"github.com/dumfing/skirmish/internal/database"
	"github.com/dumfing/skirmish/internal/logging"
	gormstorage "github.com/dumfing/skirmish/internal/storage/gorm"
)

// Config holds configuration for the SQLite storage backend.
type Config struct {
	DumpInterval time.Duration
	DumpPath     string // target of VACUUM INTO; empty disables dumps
}

// Backend wraps the GORM backend for SQLite-specific behavior.
type Backend struct {
	*gormstorage.Backend
	deps     gormstorage.Dependencies
	cfg      Config
	stopChan chan struct{}
	done     chan struct{}
}

// New creates a new SQLite storage backend. An in-memory database is opened
// by Init unless deps.DB is set.
func New(cfg Config, deps gormstorage.Dependencies) *Backend {
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	return &Backend{deps: deps, cfg: cfg}
}

// Init migrates the schema, starts the embedded GORM writer and the dump loop.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		db, err := database.GetSqliteDB("")
		if err != nil {
			return fmt.Errorf("failed to create in-memory SQLite DB: %w", err)
		}
		b.deps.DB = db
	}
	if err := database.Migrate(b.deps.DB, true, ""); err != nil {
		return err
	}

	b.Backend = gormstorage.New(b.deps)
	if err := b.Backend.Init(); err != nil {
		return err
	}

	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	if b.cfg.DumpPath != "" && b.cfg.DumpInterval > 0 {
		go b.dumpLoop()
	} else {
		close(b.done)
	}
	return nil
}

// EndRound flushes the round and dumps right away so a finished round is
// never only in memory.
func (b *Backend) EndRound() error {
	if err := b.Backend.EndRound(); err != nil {
		return err
	}
	return b.Dump()
}

// Dump copies the database to DumpPath. Without a path it does nothing.
func (b *Backend) Dump() error {
	if b.cfg.DumpPath == "" {
		return nil
	}
	start := time.Now()
	if err := database.DumpMemoryDBToDisk(b.Backend.DB(), b.cfg.DumpPath); err != nil {
		return err
	}
	b.deps.LogManager.Logger().Debug("Dumped SQLite DB to disk", "path", b.cfg.DumpPath, "duration", time.Since(start))
	return nil
}

// Close stops the dump loop, closes the GORM backend and writes a last dump.
func (b *Backend) Close() error {
	if b.Backend == nil {
		return nil
	}
	select {
	case <-b.stopChan:
		return nil
	default:
		close(b.stopChan)
	}
	<-b.done
	if err := b.Backend.Close(); err != nil {
		return err
	}
	return b.Dump()
}

func (b *Backend) dumpLoop() {
	defer close(b.done)
	ticker := time.NewTicker(b.cfg.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			if err := b.Dump(); err != nil {
				b.deps.LogManager.Logger().Error("Error dumping SQLite DB to disk", "error", err)
			}
		}
	}
}
