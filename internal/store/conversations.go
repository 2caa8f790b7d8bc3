package store

import (
	"context"
	"time"

	"github.com/Skyhug-AI/skyhug-backend/internal/models"
	"github.com/google/uuid"
)

// CreateConversation inserts c, assigning an id when empty.
func (s *Store) CreateConversation(ctx context.Context, c *models.Conversation) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return ioErr("create conversation", err)
	}
	return nil
}

// GetConversation loads one conversation by id.
func (s *Store) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var c models.Conversation
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, ioErr("get conversation "+id, err)
	}
	return &c, nil
}

// ConsumeResummarizeFlag clears memory_summary and needs_resummarization
// together when the flag is set. It reports whether the flag was set.
// Activity time is left untouched.
func (s *Store) ConsumeResummarizeFlag(ctx context.Context, id string) (bool, error) {
	result := s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ? AND needs_resummarization = ?", id, true).
		UpdateColumns(map[string]interface{}{
			"memory_summary":        "",
			"needs_resummarization": false,
		})
	if result.Error != nil {
		return false, ioErr("consume resummarize flag on "+id, result.Error)
	}
	return result.RowsAffected == 1, nil
}

// SetMemorySummary writes the rolling memory phrase without counting as activity.
func (s *Store) SetMemorySummary(ctx context.Context, id, summary string) error {
	result := s.db.WithContext(ctx).Model(&models.Conversation{}).Where("id = ?", id).
		UpdateColumn("memory_summary", summary)
	if result.Error != nil {
		return ioErr("set memory_summary on "+id, result.Error)
	}
	if result.RowsAffected == 0 {
		return notFound("set memory_summary on " + id)
	}
	return nil
}

// EndConversation marks a conversation ended.
func (s *Store) EndConversation(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Model(&models.Conversation{}).Where("id = ?", id).
		UpdateColumn("ended", true)
	if result.Error != nil {
		return ioErr("end conversation "+id, result.Error)
	}
	return nil
}

// InactiveConversations returns open conversations last active strictly before cutoff.
func (s *Store) InactiveConversations(ctx context.Context, cutoff time.Time) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := s.db.WithContext(ctx).
		Where("ended = ? AND updated_at < ?", false, cutoff).
		Order("updated_at ASC").
		Find(&convs).Error
	if err != nil {
		return nil, ioErr("inactive conversations", err)
	}
	return convs, nil
}
