package repositories

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/anonto42/threadline/backend/internal/models"
)

// newTestDB returns a migrated in-memory SQLite database private to t.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every pooled connection would open its own empty :memory: database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Follow{}, &models.Notification{}))
	return db
}

func seedUsers(t *testing.T, repo *PostgresUserRepository, names ...string) []*models.User {
	t.Helper()
	users := make([]*models.User, 0, len(names))
	for _, name := range names {
		u := &models.User{Username: name, Name: name, Email: name + "@example.com"}
		require.NoError(t, repo.CreateUser(context.Background(), u))
		users = append(users, u)
	}
	return users
}
