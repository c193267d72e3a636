// Package postgres implements the storage.Backend interface on PostgreSQL with
// PostGIS. Writes go through the shared GORM queue writer.
package postgres

import (
	"fmt"

	"github.com/dumfing/skirmish/internal/database"
	gormstorage "github.com/dumfing/skirmish/internal/storage/gorm"

	"gorm.io/gorm"
)

// Dependencies holds all dependencies for the Postgres storage backend.
type Dependencies struct {
	gormstorage.Dependencies
	// DSN is used when no DB is injected.
	DSN        string
	ServerName string
}

// Backend wraps the GORM backend with connection and schema setup.
type Backend struct {
	*gormstorage.Backend
	deps Dependencies
}

// New creates a new Postgres storage backend. The connection is opened by Init.
func New(deps Dependencies) *Backend {
	return &Backend{deps: deps}
}

// Init connects (unless a DB was injected), migrates the schema and starts
// the embedded GORM writer.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		db, err := connect(b.deps.DSN)
		if err != nil {
			return err
		}
		b.deps.DB = db
	}

	if err := database.Migrate(b.deps.DB, false, b.deps.ServerName); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}

	b.Backend = gormstorage.New(b.deps.Dependencies)
	return b.Backend.Init()
}

func connect(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		dsn = database.PostgresDSN()
	}
	db, err := database.GetPostgresDB(dsn)
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

// Close stops the writer. Safe to call before Init.
func (b *Backend) Close() error {
	if b.Backend == nil {
		return nil
	}
	return b.Backend.Close()
}
