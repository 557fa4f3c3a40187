// Package storetest opens throwaway databases for tests.
package storetest

import (
	"path/filepath"
	"testing"

	"github.com/drewmudry/remixengine-api/models"
	"github.com/drewmudry/remixengine-api/store"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB returns a migrated sqlite database in the test's temp dir.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "remixengine.db") + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// One connection keeps sqlite writers from tripping over each other.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := store.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// NewStore wraps NewDB in a Store.
func NewStore(t testing.TB) *store.Store {
	return store.New(NewDB(t))
}

// SeedVideo inserts a project and a video whose scrape stage is complete.
func SeedVideo(t testing.TB, s *store.Store, mutate func(v *models.Video)) *models.Video {
	t.Helper()

	project := &models.Project{Name: "Test project"}
	if err := s.CreateProject(testContext(t), project); err != nil {
		t.Fatalf("create project: %v", err)
	}

	v := &models.Video{
		ProjectID:           project.ID,
		YoutubeURL:          "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		YoutubeID:           "dQw4w9WgXcQ",
		OriginalTitle:       "X",
		OriginalDescription: "A video about things",
		ChannelName:         "Channel",
		DurationSeconds:     600,
		OriginalTranscript:  "hello and welcome to the channel",
		ScrapeStatus:        models.StageComplete,
		RemixStatus:         models.StagePending,
		GenerationStatus:    models.StagePending,
		AssemblyStatus:      models.StagePending,
	}
	if mutate != nil {
		mutate(v)
	}
	job := &models.Job{Type: models.JobTypeScrape, Status: models.JobComplete, Progress: 100}
	if err := s.CreateVideoWithJob(testContext(t), v, job); err != nil {
		t.Fatalf("create video: %v", err)
	}
	return v
}
