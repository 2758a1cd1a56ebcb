package database

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"skilllab_backend/internal/model"

	"github.com/pelletier/go-toml/v2"
	"gorm.io/gorm"
)

const defaultPassThreshold = 60

type labSeedFile struct {
	Labs []LabSeed `toml:"labs"`
}

// LabSeed 种子文件中的一个实验
type LabSeed struct {
	LabNumber        int     `toml:"lab_number"`
	Subject          string  `toml:"subject"`
	DisplayName      string  `toml:"display_name"`
	PassThreshold    float64 `toml:"pass_threshold"`
	StorageNamespace string  `toml:"storage_namespace"`
	Instructions     string  `toml:"instructions"`
	Rubric           string  `toml:"rubric"`
}

func LoadLabSeeds(path string) ([]LabSeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file labSeedFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	for i := range file.Labs {
		s := &file.Labs[i]
		s.Subject = strings.ToLower(strings.TrimSpace(s.Subject))
		s.Rubric = strings.TrimSpace(s.Rubric)
		s.Instructions = strings.TrimSpace(s.Instructions)
		if s.Subject == "" || s.LabNumber <= 0 || s.Rubric == "" {
			return nil, fmt.Errorf("lab seed #%d: lab_number, subject and rubric are required", i+1)
		}
		if s.PassThreshold == 0 {
			s.PassThreshold = defaultPassThreshold
		}
		if s.StorageNamespace == "" {
			s.StorageNamespace = fmt.Sprintf("%s-lab%d", s.Subject, s.LabNumber)
		}
	}
	return file.Labs, nil
}

// SeedLabs 写入/更新实验定义。rubric 内容变化时版本号加一并保存快照，
// 已有成绩记录仍然指向旧版本。
func SeedLabs(db *gorm.DB, seeds []LabSeed) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for _, s := range seeds {
			var lab model.LabDefinition
			err := tx.Where("lab_number = ? AND subject = ?", s.LabNumber, s.Subject).First(&lab).Error
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}

			if errors.Is(err, gorm.ErrRecordNotFound) {
				lab = model.LabDefinition{
					LabNumber:          s.LabNumber,
					Subject:            s.Subject,
					DisplayName:        s.DisplayName,
					RubricText:         s.Rubric,
					RubricInstructions: s.Instructions,
					RubricVersion:      1,
					PassThreshold:      s.PassThreshold,
					StorageNamespace:   s.StorageNamespace,
				}
				if err := tx.Create(&lab).Error; err != nil {
					return err
				}
				if err := createRubricVersion(tx, &lab); err != nil {
					return err
				}
				continue
			}

			rubricChanged := lab.RubricText != s.Rubric || lab.RubricInstructions != s.Instructions
			lab.DisplayName = s.DisplayName
			lab.PassThreshold = s.PassThreshold
			lab.StorageNamespace = s.StorageNamespace
			if rubricChanged {
				lab.RubricText = s.Rubric
				lab.RubricInstructions = s.Instructions
				lab.RubricVersion++
			}
			if err := tx.Save(&lab).Error; err != nil {
				return err
			}
			if rubricChanged {
				if err := createRubricVersion(tx, &lab); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func createRubricVersion(tx *gorm.DB, lab *model.LabDefinition) error {
	return tx.Create(&model.RubricVersion{
		LabID:        lab.ID,
		Version:      lab.RubricVersion,
		RubricText:   lab.RubricText,
		Instructions: lab.RubricInstructions,
	}).Error
}
