package services

import (
	"testing"

	"grant-scribe/models"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB öffnet eine In-Memory-SQLite-Datenbank mit allen Tabellen.
// Eine einzelne Verbindung, damit alle Goroutinen dieselbe Datenbank sehen.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&models.SectionVersion{},
		&models.SectionTemplate{},
		&models.Citation{},
		&models.ReviewTask{},
		&models.UsageRecord{},
		&models.ImportJob{},
	)
	require.NoError(t, err)
	return db
}

func newTestLogger() *zap.Logger {
	return zap.NewNop()
}
