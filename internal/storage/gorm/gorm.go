// Package gormstorage implements the storage.Backend interface on any gorm
// dialect. Host states are upserted synchronously; switch events are queued
// and written in batches by a background flush loop.
package gormstorage

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/OCAP2/partswitch/internal/model"
	"github.com/OCAP2/partswitch/internal/model/convert"
	"github.com/OCAP2/partswitch/internal/queue"
	"github.com/OCAP2/partswitch/internal/storage"
	"github.com/OCAP2/partswitch/pkg/core"
)

var (
	_ storage.Backend      = (*Backend)(nil)
	_ storage.EventHistory = (*Backend)(nil)
)

// ErrNoDatabase is returned by reads and writes that need a connection when
// the backend runs in queue-only mode.
var ErrNoDatabase = errors.New("no database connection")

// DefaultFlushInterval is used when Dependencies.FlushInterval is zero.
const DefaultFlushInterval = 2 * time.Second

// Dependencies holds the collaborators of a Backend.
type Dependencies struct {
	DB            *gorm.DB // nil runs in queue-only mode
	Logger        zerolog.Logger
	FlushInterval time.Duration
	// QueueLimit bounds the events held while the database is unreachable.
	// Zero keeps every event.
	QueueLimit int
	// SkipMigrate leaves schema management to the caller.
	SkipMigrate bool
}

// Backend writes host states and switch events through gorm.
type Backend struct {
	deps   Dependencies
	events *queue.Bounded[model.SwitchEvent]

	flushMu             sync.Mutex
	lastDBWriteDuration time.Duration

	stopChan chan struct{}
	done     chan struct{}
	once     sync.Once
}

// New creates a new gorm storage backend.
func New(deps Dependencies) *Backend {
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = DefaultFlushInterval
	}
	return &Backend{
		deps:   deps,
		events: queue.New[model.SwitchEvent](deps.QueueLimit),
	}
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init migrates the schema and starts the flush loop.
func (b *Backend) Init() error {
	if b.deps.DB != nil && !b.deps.SkipMigrate {
		if err := b.deps.DB.AutoMigrate(model.DatabaseModels...); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}

	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	go b.flushLoop()
	return nil
}

// Close stops the flush loop and writes the remaining events.
func (b *Backend) Close() error {
	var err error
	b.once.Do(func() {
		if b.stopChan != nil {
			close(b.stopChan)
			<-b.done
		}
		err = b.Flush()
	})
	return err
}

// SaveHostState upserts the state keyed by host ID.
func (b *Backend) SaveHostState(s *core.HostState) error {
	if s == nil || s.HostID == "" {
		return fmt.Errorf("host state without host id")
	}
	if b.deps.DB == nil {
		return ErrNoDatabase
	}
	rec, err := convert.CoreToHostState(*s)
	if err != nil {
		return err
	}
	err = b.deps.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "host_id"}},
		UpdateAll: true,
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("saving host state %s: %w", s.HostID, err)
	}
	b.deps.Logger.Debug().Str("host", s.HostID).Str("template", s.TemplateName).Msg("Saved host state")
	return nil
}

// LoadHostState reads the saved state of a host.
func (b *Backend) LoadHostState(hostID string) (*core.HostState, error) {
	if b.deps.DB == nil {
		return nil, ErrNoDatabase
	}
	var rec model.HostState
	err := b.deps.DB.Where("host_id = ?", hostID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, hostID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading host state %s: %w", hostID, err)
	}
	s, err := convert.HostStateToCore(rec)
	if err != nil {
		return nil, fmt.Errorf("host state %s: %w", hostID, err)
	}
	return &s, nil
}

// ListHostStates returns every saved state ordered by host ID.
func (b *Backend) ListHostStates() ([]core.HostState, error) {
	if b.deps.DB == nil {
		return nil, ErrNoDatabase
	}
	var recs []model.HostState
	if err := b.deps.DB.Order("host_id").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("listing host states: %w", err)
	}
	out := make([]core.HostState, 0, len(recs))
	for _, rec := range recs {
		s, err := convert.HostStateToCore(rec)
		if err != nil {
			return nil, fmt.Errorf("host state %s: %w", rec.HostID, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// RecordSwitchEvent queues an event for the next flush.
func (b *Backend) RecordSwitchEvent(e *core.SwitchEvent) error {
	if e == nil {
		return nil
	}
	if n := b.events.Push(convert.CoreToSwitchEvent(*e)); n > 0 {
		b.deps.Logger.Warn().Int("dropped", n).Int("limit", b.deps.QueueLimit).Msg("Switch event queue full, dropped oldest")
	}
	return nil
}

// SwitchEvents returns the written events of a host ordered by time. An
// empty host ID returns every event. Queued events are flushed first.
func (b *Backend) SwitchEvents(hostID string) ([]core.SwitchEvent, error) {
	if b.deps.DB == nil {
		return nil, ErrNoDatabase
	}
	if err := b.Flush(); err != nil {
		return nil, err
	}
	q := b.deps.DB.Order("time").Order("id")
	if hostID != "" {
		q = q.Where("host_id = ?", hostID)
	}
	var recs []model.SwitchEvent
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("listing switch events: %w", err)
	}
	out := make([]core.SwitchEvent, len(recs))
	for i, rec := range recs {
		out[i] = convert.SwitchEventToCore(rec)
	}
	return out, nil
}

// QueuedEvents returns the number of events waiting for a flush.
func (b *Backend) QueuedEvents() int {
	return b.events.Len()
}

// DroppedEvents returns how many queued events the queue limit discarded.
func (b *Backend) DroppedEvents() int {
	return b.events.Dropped()
}

// GetLastDBWriteDuration returns how long the last flush took.
func (b *Backend) GetLastDBWriteDuration() time.Duration {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()
	return b.lastDBWriteDuration
}

// Flush writes the queued events. Without a connection the queue is kept.
func (b *Backend) Flush() error {
	if b.deps.DB == nil {
		return nil
	}
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	items := b.events.Drain()
	if len(items) == 0 {
		return nil
	}

	start := time.Now()
	err := b.deps.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&items).Error
	if err != nil {
		// requeue so the next flush retries
		b.events.Requeue(items...)
		return fmt.Errorf("writing %d switch events: %w", len(items), err)
	}
	b.lastDBWriteDuration = time.Since(start)
	b.deps.Logger.Debug().Int("count", len(items)).Dur("duration", b.lastDBWriteDuration).Msg("Wrote switch events")
	return nil
}

func (b *Backend) flushLoop() {
	defer close(b.done)
	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			if err := b.Flush(); err != nil {
				b.deps.Logger.Error().Err(err).Msg("Failed to flush switch events")
			}
		}
	}
}
