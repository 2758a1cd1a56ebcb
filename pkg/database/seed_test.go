package database

import (
	"os"
	"path/filepath"
	"testing"

	"skilllab_backend/internal/config"
	"skilllab_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := InitDB(&config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "seed.db")}, false)
	require.NoError(t, err, "Failed to open database")
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, Migrate(db), "Failed to migrate")
	return db
}

func writeSeedFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "labs.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadLabSeeds(t *testing.T) {
	path := writeSeedFile(t, `
[[labs]]
lab_number = 1
subject = " MaternalAndChild "
display_name = "Breastfeeding counseling"
rubric = """
1. Greets the mother (100 points)
"""

[[labs]]
lab_number = 4
subject = "pharmacology"
pass_threshold = 50
storage_namespace = "pharm-lab4"
instructions = "Ignore small talk."
rubric = "1. Checks the five rights (100 points)"
`)

	seeds, err := LoadLabSeeds(path)
	require.NoError(t, err)
	require.Len(t, seeds, 2)

	assert.Equal(t, "maternalandchild", seeds[0].Subject)
	assert.Equal(t, 60.0, seeds[0].PassThreshold)
	assert.Equal(t, "maternalandchild-lab1", seeds[0].StorageNamespace)
	assert.Equal(t, "1. Greets the mother (100 points)", seeds[0].Rubric)

	assert.Equal(t, 50.0, seeds[1].PassThreshold)
	assert.Equal(t, "pharm-lab4", seeds[1].StorageNamespace)
	assert.Equal(t, "Ignore small talk.", seeds[1].Instructions)
}

func TestLoadLabSeedsValidation(t *testing.T) {
	path := writeSeedFile(t, `
[[labs]]
lab_number = 1
subject = "pharmacology"
`)
	_, err := LoadLabSeeds(path)
	assert.Error(t, err)

	_, err = LoadLabSeeds(writeSeedFile(t, `[[labs]`))
	assert.Error(t, err)

	_, err = LoadLabSeeds(filepath.Join(t.TempDir(), "missing.toml"))
	assert.True(t, os.IsNotExist(err))
}

func TestLoadRepositorySeedFile(t *testing.T) {
	seeds, err := LoadLabSeeds(filepath.Join("..", "..", "configs", "labs.toml"))
	require.NoError(t, err)
	assert.NotEmpty(t, seeds)
}

func TestSeedLabsVersionsRubric(t *testing.T) {
	db := setupTestDB(t)
	seeds := []LabSeed{{
		LabNumber:        1,
		Subject:          "maternalandchild",
		DisplayName:      "Breastfeeding counseling",
		PassThreshold:    60,
		StorageNamespace: "maternal-lab1",
		Rubric:           "v1 rubric",
	}}

	require.NoError(t, SeedLabs(db, seeds))
	// 内容不变时重复导入不产生新版本
	require.NoError(t, SeedLabs(db, seeds))

	var lab model.LabDefinition
	require.NoError(t, db.Where("lab_number = ? AND subject = ?", 1, "maternalandchild").First(&lab).Error)
	assert.Equal(t, 1, lab.RubricVersion)

	seeds[0].Rubric = "v2 rubric"
	seeds[0].PassThreshold = 70
	require.NoError(t, SeedLabs(db, seeds))

	require.NoError(t, db.First(&lab, lab.ID).Error)
	assert.Equal(t, 2, lab.RubricVersion)
	assert.Equal(t, "v2 rubric", lab.RubricText)
	assert.Equal(t, 70.0, lab.PassThreshold)

	var versions []model.RubricVersion
	require.NoError(t, db.Where("lab_id = ?", lab.ID).Order("version ASC").Find(&versions).Error)
	require.Len(t, versions, 2)
	assert.Equal(t, "v1 rubric", versions[0].RubricText)
	assert.Equal(t, "v2 rubric", versions[1].RubricText)

	var count int64
	require.NoError(t, db.Model(&model.LabDefinition{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
