package store_test

import (
	"testing"

	"github.com/drewmudry/remixengine-api/store"
	"gorm.io/gorm"
)

func storeDB(t *testing.T, s *store.Store) *gorm.DB {
	return store.DBForTest(t, s)
}
