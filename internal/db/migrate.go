package db

import (
	"fmt"

	"github.com/Skyhug-AI/skyhug-backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AllModels returns every GORM model owned by the backend, in migration order.
func AllModels() []interface{} {
	return []interface{}{
		&models.Therapist{},
		&models.UserProfile{},
		&models.Conversation{},
		&models.Message{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// SeedTherapists upserts therapist personas by id. Existing rows have their
// persona fields replaced.
func SeedTherapists(db *gorm.DB, therapists []models.Therapist) error {
	for i := range therapists {
		t := therapists[i]
		result := db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "description", "bio", "approach", "session_structure",
				"specialties", "system_prompt", "eleven_labs_voice_id",
			}),
		}).Create(&t)
		if result.Error != nil {
			return fmt.Errorf("db: seed therapist %q: %w", t.ID, result.Error)
		}
	}
	return nil
}
