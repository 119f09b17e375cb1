// Package localstate persists client-only state: prompt dismissals and the
// items a polling view has already shown.
package localstate

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// BaseModel provides common fields and an auto-generated ULID
type BaseModel struct {
	ID        string    `gorm:"primaryKey;type:varchar(26)"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// BeforeCreate generates a ULID for the ID field if it's empty
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = ulid.Make().String()
	}
	return nil
}

// Dismissal records when a prompt was last dismissed
type Dismissal struct {
	BaseModel
	Name        string    `gorm:"uniqueIndex;not null"`
	DismissedAt time.Time `gorm:"not null"`
}

// SeenItem marks an item of a feed as already displayed
type SeenItem struct {
	BaseModel
	Kind   string `gorm:"uniqueIndex:idx_seen_kind_item;not null"`
	ItemID string `gorm:"uniqueIndex:idx_seen_kind_item;not null"`
}

// Store is the client state database
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the SQLite state file. ":memory:" is accepted.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.New(
			log.New(os.Stderr, "\r\n", log.LstdFlags),
			logger.Config{
				LogLevel:                  logger.Silent,
				IgnoreRecordNotFoundError: true,
				SlowThreshold:             200 * time.Millisecond,
			},
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and serializes writers
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Dismissal{}, &SeenItem{}); err != nil {
		return nil, fmt.Errorf("failed to migrate state database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Dismiss records that the prompt identified by key was dismissed at `at`
func (s *Store) Dismiss(key string, at time.Time) error {
	d := Dismissal{Name: key, DismissedAt: at.UTC()}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"dismissed_at"}),
	}).Create(&d).Error
	if err != nil {
		return fmt.Errorf("failed to save dismissal: %w", err)
	}
	return nil
}

// DismissedWithin reports whether key was dismissed less than window before now
func (s *Store) DismissedWithin(key string, window time.Duration, now time.Time) (bool, error) {
	var d Dismissal
	err := s.db.Where("name = ?", key).First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load dismissal: %w", err)
	}
	return now.Sub(d.DismissedAt) < window, nil
}

// MarkSeen records an item as displayed. Marking twice is a no-op.
func (s *Store) MarkSeen(kind, itemID string) error {
	err := s.db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&SeenItem{Kind: kind, ItemID: itemID}).Error
	if err != nil {
		return fmt.Errorf("failed to mark %s %s as seen: %w", kind, itemID, err)
	}
	return nil
}

// Seen reports whether an item was displayed before
func (s *Store) Seen(kind, itemID string) (bool, error) {
	var count int64
	if err := s.db.Model(&SeenItem{}).Where("kind = ? AND item_id = ?", kind, itemID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to query seen items: %w", err)
	}
	return count > 0, nil
}
