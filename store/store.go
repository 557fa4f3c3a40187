package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/drewmudry/remixengine-api/models"
	"gorm.io/gorm"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrArtifactNotFound  = errors.New("artifact not found for video")
	ErrJobTerminal       = errors.New("job already finished")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrEmptyDialogue     = errors.New("dialogue line must not be empty")
)

// Store is the single source of truth for videos, jobs and remix artifacts.
type Store struct {
	db    *gorm.DB
	locks *keyedMutex
}

func New(db *gorm.DB) *Store {
	return &Store{db: db, locks: newKeyedMutex()}
}

// AutoMigrate creates or updates every table the pipeline uses.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Project{},
		&models.Video{},
		&models.Job{},
		&models.RemixedTitle{},
		&models.RemixedThumbnail{},
		&models.RemixedScript{},
		&models.Scene{},
	)
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) isPostgres() bool {
	return s.db.Dialector.Name() == "postgres"
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

// keyedMutex hands out one mutex per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
