package store

import (
	"context"
	"errors"

	"github.com/Skyhug-AI/skyhug-backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetProfile loads the profile of a patient.
func (s *Store) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	var p models.UserProfile
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error; err != nil {
		return nil, ioErr("get profile "+userID, err)
	}
	return &p, nil
}

// AppendTopic adds topic to the profile's topics_on_mind unless already present.
// It reports whether the list changed.
func (s *Store) AppendTopic(ctx context.Context, userID, topic string) (bool, error) {
	added := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.UserProfile
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).First(&p).Error; err != nil {
			return err
		}
		for _, existing := range p.TopicsOnMind {
			if existing == topic {
				return nil
			}
		}
		topics := append(p.TopicsOnMind, topic)
		if err := tx.Model(&models.UserProfile{}).Where("user_id = ?", userID).
			Update("topics_on_mind", topics).Error; err != nil {
			return err
		}
		added = true
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, notFound("append topic for " + userID)
		}
		return false, ioErr("append topic for "+userID, err)
	}
	return added, nil
}

// GetTherapist loads a therapist persona by id.
func (s *Store) GetTherapist(ctx context.Context, id string) (*models.Therapist, error) {
	var t models.Therapist
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, ioErr("get therapist "+id, err)
	}
	return &t, nil
}
