package main

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/OCAP2/partswitch/internal/config"
	"github.com/OCAP2/partswitch/internal/database"
	"github.com/OCAP2/partswitch/internal/storage"
	gormstorage "github.com/OCAP2/partswitch/internal/storage/gorm"
	"github.com/OCAP2/partswitch/internal/storage/memory"
	sqlitestorage "github.com/OCAP2/partswitch/internal/storage/sqlite"
)

// Storage backend types.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

var _ storage.Backend = (*managedBackend)(nil)

// managedBackend closes the database connection after the gorm backend has
// flushed.
type managedBackend struct {
	*gormstorage.Backend
	db *database.Manager
}

func (b *managedBackend) Close() error {
	return errors.Join(b.Backend.Close(), b.db.Close())
}

func createStorageBackend(storageCfg config.StorageConfig, log zerolog.Logger) (storage.Backend, error) {
	switch storageCfg.Type {
	case StoragePostgres:
		m := database.NewManager(log)
		m.SqliteFilePath = storageCfg.SQLite.Path
		if err := m.Connect(database.PostgresConfigFromViper()); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		Logger.Info("Postgres storage backend initialized", "fallback", m.ShouldSaveLocal)
		return &managedBackend{
			Backend: gormstorage.New(gormstorage.Dependencies{DB: m.DB, Logger: log, QueueLimit: storageCfg.QueueLimit}),
			db:      m,
		}, nil

	case StorageSQLite:
		backend, err := sqlitestorage.New(sqlitestorage.Config{
			DumpInterval: storageCfg.SQLite.DumpInterval,
			DumpPath:     storageCfg.SQLite.Path,
			QueueLimit:   storageCfg.QueueLimit,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		Logger.Info("SQLite storage backend initialized", "path", storageCfg.SQLite.Path)
		return backend, nil

	case StorageMemory, "":
		Logger.Info("Memory storage backend initialized", "outputDir", storageCfg.Memory.OutputDir)
		return memory.New(storageCfg.Memory), nil

	default:
		return nil, fmt.Errorf("unknown storage type %q", storageCfg.Type)
	}
}

// openStorage creates and initializes the configured backend.
func openStorage() (storage.Backend, error) {
	log := zerologFor("storage")
	backend, err := createStorageBackend(config.Storage(), log)
	if err != nil {
		return nil, err
	}
	if err := backend.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage backend: %w", err)
	}
	return backend, nil
}
