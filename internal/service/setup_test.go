package service

import (
	"path/filepath"
	"testing"

	"skilllab_backend/internal/config"
	"skilllab_backend/internal/repository"
	"skilllab_backend/pkg/database"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	testLearnerID = "6f1c2a9e-3b7d-4c55-9e2a-0d4b8f7a1c33"
	otherLearner  = "a2d94c51-8e0f-4b6a-b1c7-5f3e2d9a8b10"
)

var testLabSeeds = []database.LabSeed{
	{
		LabNumber:        1,
		Subject:          "maternalandchild",
		DisplayName:      "Breastfeeding counseling",
		PassThreshold:    60,
		StorageNamespace: "maternal-lab1",
		Rubric:           "1. Greets the mother (50 points)\n2. Explains positioning (50 points)",
	},
	{
		LabNumber:        3,
		Subject:          "pharmacology",
		DisplayName:      "Medication administration",
		PassThreshold:    50,
		StorageNamespace: "pharm-lab3",
		Instructions:     "Ignore small talk.",
		Rubric:           "1. Checks the five rights (100 points)",
	},
}

// setupTestDB 临时文件 sqlite，建表并导入测试实验
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.InitDB(&config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "test.db"),
	}, false)
	require.NoError(t, err, "Failed to open database")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db), "Failed to migrate")
	require.NoError(t, database.SeedLabs(db, testLabSeeds), "Failed to seed labs")
	return db
}

func setupLedger(t *testing.T) (*LedgerService, *gorm.DB) {
	db := setupTestDB(t)
	return NewLedgerService(repository.NewLabRepository(db), repository.NewSubmissionRepository(db)), db
}
