// Package sqlitestorage implements the storage.Backend interface using an in-memory
// SQLite database with periodic disk dumps via VACUUM INTO.
// It wraps the GORM backend; the SQLite-specific parts are creating the
// in-memory DB, seeding it from the last dump and the periodic dump itself.
package sqlitestorage

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/OCAP2/partswitch/internal/database"
	"github.com/OCAP2/partswitch/internal/model"
	"github.com/OCAP2/partswitch/internal/storage"
	gormstorage "github.com/OCAP2/partswitch/internal/storage/gorm"
)

var _ storage.Backend = (*Backend)(nil)

// Config holds configuration for the SQLite storage backend.
type Config struct {
	DumpInterval time.Duration
	DumpPath     string // Path for periodic VACUUM INTO dumps
	QueueLimit   int
}

// Backend wraps the GORM backend for SQLite-specific behavior.
type Backend struct {
	*gormstorage.Backend
	db       *gorm.DB
	cfg      Config
	log      zerolog.Logger
	stopChan chan struct{}
	done     chan struct{}
	started  bool
	once     sync.Once
}

// New creates a new SQLite storage backend.
func New(cfg Config, log zerolog.Logger) (*Backend, error) {
	db, err := database.OpenSqlite("")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite DB: %w", err)
	}

	gormBackend := gormstorage.New(gormstorage.Dependencies{
		DB:         db,
		Logger:     log,
		QueueLimit: cfg.QueueLimit,
	})

	return &Backend{
		Backend:  gormBackend,
		db:       db,
		cfg:      cfg,
		log:      log,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Init initializes the embedded GORM backend, seeds it from the last dump
// and starts the dump goroutine.
func (b *Backend) Init() error {
	if err := b.Backend.Init(); err != nil {
		return err
	}

	if err := b.restore(); err != nil {
		return fmt.Errorf("restoring %s: %w", b.cfg.DumpPath, err)
	}

	b.started = true
	if b.cfg.DumpPath != "" && b.cfg.DumpInterval > 0 {
		go b.dumpLoop()
	} else {
		close(b.done)
	}

	return nil
}

// Close stops the dump goroutine, flushes the embedded GORM backend and
// writes a final dump.
func (b *Backend) Close() error {
	var err error
	b.once.Do(func() {
		close(b.stopChan)
		if b.started {
			<-b.done
		}
		err = b.Backend.Close()
		if b.cfg.DumpPath != "" {
			err = errors.Join(err, b.Dump())
		}
	})
	return err
}

// Dump writes the in-memory database to DumpPath.
func (b *Backend) Dump() error {
	if err := b.Backend.Flush(); err != nil {
		return err
	}
	start := time.Now()
	if err := database.DumpMemoryDBToDisk(b.db, b.cfg.DumpPath); err != nil {
		return err
	}
	b.log.Debug().Dur("duration", time.Since(start)).Str("path", b.cfg.DumpPath).Msg("Dumped to disk")
	return nil
}

// restore copies the tables of an existing dump into the in-memory database.
func (b *Backend) restore() error {
	if b.cfg.DumpPath == "" {
		return nil
	}
	if _, err := os.Stat(b.cfg.DumpPath); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	disk, err := database.OpenSqlite(b.cfg.DumpPath)
	if err != nil {
		return err
	}
	if sqlDB, err := disk.DB(); err == nil {
		defer sqlDB.Close()
	}

	var states []model.HostState
	if err := disk.Find(&states).Error; err != nil {
		return fmt.Errorf("reading host states: %w", err)
	}
	var events []model.SwitchEvent
	if err := disk.Find(&events).Error; err != nil {
		return fmt.Errorf("reading switch events: %w", err)
	}

	if len(states) > 0 {
		if err := b.db.Create(&states).Error; err != nil {
			return fmt.Errorf("seeding host states: %w", err)
		}
	}
	if len(events) > 0 {
		if err := b.db.Create(&events).Error; err != nil {
			return fmt.Errorf("seeding switch events: %w", err)
		}
	}
	b.log.Info().Int("states", len(states)).Int("events", len(events)).Str("path", b.cfg.DumpPath).Msg("Restored SQLite dump")
	return nil
}

// dumpLoop periodically dumps the in-memory SQLite database to disk via VACUUM INTO.
// VACUUM INTO creates a point-in-time snapshot, so no pause mechanism is needed.
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
				b.log.Error().Err(err).Msg("Error dumping to disk")
			}
		}
	}
}
