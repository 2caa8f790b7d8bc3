// Package store is the row-store gateway: narrow single-row reads and updates
// over messages, conversations, therapists and user profiles.
package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/Skyhug-AI/skyhug-backend/internal/apperr"
	"gorm.io/gorm"
)

// Store wraps a gorm connection. Every failure it returns matches
// apperr.ErrIO, or apperr.ErrNotFound for missing rows.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// New returns a Store over db.
func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("store: db is required")
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// DB exposes the underlying connection for migrations and tests.
func (s *Store) DB() *gorm.DB {
	return s.db
}

func ioErr(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.Wrap(apperr.ErrNotFound, "store: "+op, err)
	}
	return apperr.Wrap(apperr.ErrIO, "store: "+op, err)
}

func notFound(op string) error {
	return apperr.Wrap(apperr.ErrNotFound, "store: "+op, nil)
}
