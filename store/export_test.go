package store

import (
	"testing"

	"gorm.io/gorm"
)

// DBForTest exposes the handle to external tests in this directory.
func DBForTest(t testing.TB, s *Store) *gorm.DB {
	t.Helper()
	return s.db
}
