package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"stablecore/core/events"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// Record is one committed protocol event.
type Record struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	Type       string    `gorm:"size:64;index"`
	Attributes string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"index"`
}

// TableName pins the journal table name.
func (Record) TableName() string { return "protocol_events" }

// Decode returns the attribute map stored with the record.
func (r Record) Decode() (map[string]string, error) {
	out := map[string]string{}
	if strings.TrimSpace(r.Attributes) == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(r.Attributes), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Query filters journal reads.
type Query struct {
	Type    string
	AfterID uint64
	Limit   int
}

// Open connects to the journal database. DSNs starting with postgres:// or
// postgresql:// use the postgres driver, anything else is a sqlite path.
func Open(dsn string) (*gorm.DB, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, errors.New("eventlog: dsn required")
	}
	var dialector gorm.Dialector
	if strings.HasPrefix(trimmed, "postgres://") || strings.HasPrefix(trimmed, "postgresql://") {
		dialector = postgres.Open(trimmed)
	} else {
		dialector = sqlite.Open(trimmed)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("eventlog: open: %w", err)
	}
	return db, nil
}

// AutoMigrate creates the journal table.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Record{})
}

// Sink appends committed events to the journal. It implements events.Emitter;
// write failures are logged and do not affect the committed state.
type Sink struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewSink wraps db.
func NewSink(db *gorm.DB, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{db: db, logger: logger, now: time.Now}
}

// Emit implements events.Emitter.
func (s *Sink) Emit(evt events.Event) {
	if s == nil || s.db == nil || evt == nil {
		return
	}
	if err := s.Append(context.Background(), evt); err != nil {
		s.logger.Error("eventlog append failed", "event", evt.EventType(), "error", err)
	}
}

// Append stores evt.
func (s *Sink) Append(ctx context.Context, evt events.Event) error {
	rendered := events.Render(evt)
	attrs, err := json.Marshal(rendered.Attributes)
	if err != nil {
		return err
	}
	record := Record{Type: rendered.Type, Attributes: string(attrs), CreatedAt: s.now().UTC()}
	return s.db.WithContext(ctx).Create(&record).Error
}

// List returns journal records in id order.
func (s *Sink) List(ctx context.Context, q Query) ([]Record, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("eventlog: not configured")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	tx := s.db.WithContext(ctx).Where("id > ?", q.AfterID)
	if t := strings.TrimSpace(q.Type); t != "" {
		tx = tx.Where("type = ?", t)
	}
	var out []Record
	if err := tx.Order("id asc").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
