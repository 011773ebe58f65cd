// Package testdb opens throwaway in-memory databases for handler tests.
package testdb

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/lawconnect/lawconnect-backend/pkg/database"
	"github.com/lawconnect/lawconnect-backend/pkg/models"
)

// Open returns a migrated in-memory SQLite database scoped to one test.
// A unique name per call keeps parallel tests isolated, while shared
// cache keeps the schema alive across the pooled connections GORM opens.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.Connect(dsn)
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(models.All()...))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}
