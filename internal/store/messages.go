package store

import (
	"context"
	"time"

	"github.com/Skyhug-AI/skyhug-backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GetMessage loads one message by id.
func (s *Store) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	var m models.Message
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, ioErr("get message "+id, err)
	}
	return &m, nil
}

// InsertMessage creates m, assigning an id when empty, and bumps the owning
// conversation's updated_at.
func (s *Store) InsertMessage(ctx context.Context, m *models.Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(m).Error; err != nil {
			return err
		}
		return s.touchConversation(tx, m.ConversationID)
	})
	if err != nil {
		return ioErr("insert message", err)
	}
	return nil
}

// ClaimMessage flips ai_started from false to true. It reports false when
// another dispatcher already claimed the row. A successful claim bumps the
// conversation.
func (s *Store) ClaimMessage(ctx context.Context, id string) (bool, error) {
	claimed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Message{}).
			Where("id = ? AND ai_started = ?", id, false).
			Update("ai_started", true)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != 1 {
			return nil
		}
		claimed = true
		return s.touchConversationOf(tx, id)
	})
	if err != nil {
		return false, ioErr("claim message "+id, err)
	}
	return claimed, nil
}

// SetAIStatus sets ai_status on a message.
func (s *Store) SetAIStatus(ctx context.Context, id, status string) error {
	return s.updateMessage(ctx, "set ai_status on "+id, id, map[string]interface{}{"ai_status": status})
}

// SetAssistantText overwrites the reply text. Streaming writers call this after
// every delta; the last write wins.
func (s *Store) SetAssistantText(ctx context.Context, id, text string) error {
	return s.updateMessage(ctx, "set assistant_text on "+id, id, map[string]interface{}{"assistant_text": text})
}

// CompleteAssistantText writes the final reply text and marks it done in one update.
func (s *Store) CompleteAssistantText(ctx context.Context, id, text string) error {
	return s.updateMessage(ctx, "complete assistant text on "+id, id,
		map[string]interface{}{"assistant_text": text, "ai_status": models.StatusDone})
}

// SetSnippetURL records where the first speech segment can be fetched.
func (s *Store) SetSnippetURL(ctx context.Context, id, url string) error {
	return s.updateMessage(ctx, "set snippet_url on "+id, id, map[string]interface{}{"snippet_url": url})
}

// SetTTSStatus sets tts_status on a message.
func (s *Store) SetTTSStatus(ctx context.Context, id, status string) error {
	return s.updateMessage(ctx, "set tts_status on "+id, id, map[string]interface{}{"tts_status": status})
}

// SetTranscription stores the transcribed text and marks transcription done.
func (s *Store) SetTranscription(ctx context.Context, id, text string) error {
	return s.updateMessage(ctx, "set transcription on "+id, id,
		map[string]interface{}{"transcription": text, "transcription_status": models.StatusDone})
}

// SetTranscriptionStatus sets transcription_status on a message.
func (s *Store) SetTranscriptionStatus(ctx context.Context, id, status string) error {
	return s.updateMessage(ctx, "set transcription_status on "+id, id,
		map[string]interface{}{"transcription_status": status})
}

// History returns the conversation's non-invalidated messages, oldest first.
func (s *Store) History(ctx context.Context, conversationID string) ([]models.Message, error) {
	var msgs []models.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ? AND invalidated = ?", conversationID, false).
		Order("created_at ASC, id ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, ioErr("history for "+conversationID, err)
	}
	return msgs, nil
}

// MessagesChangedSince returns up to limit messages whose updated_at is at or
// after since, oldest change first.
func (s *Store) MessagesChangedSince(ctx context.Context, since time.Time, limit int) ([]models.Message, error) {
	var msgs []models.Message
	err := s.db.WithContext(ctx).
		Where("updated_at >= ?", since).
		Order("updated_at ASC, id ASC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, ioErr("messages changed since", err)
	}
	return msgs, nil
}

// UserMessagesCreatedAfter returns user messages created after t, oldest first.
func (s *Store) UserMessagesCreatedAfter(ctx context.Context, t time.Time) ([]models.Message, error) {
	var msgs []models.Message
	err := s.db.WithContext(ctx).
		Where("sender_role = ? AND created_at > ?", models.RoleUser, t).
		Order("created_at ASC, id ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, ioErr("user messages created after", err)
	}
	return msgs, nil
}

// updateMessage applies values to one message and bumps its conversation in
// the same transaction. A missing message is reported as not found.
func (s *Store) updateMessage(ctx context.Context, op, id string, values map[string]interface{}) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Message{}).Where("id = ?", id).Updates(values)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return s.touchConversationOf(tx, id)
	})
	if err != nil {
		return ioErr(op, err)
	}
	return nil
}

func (s *Store) touchConversation(tx *gorm.DB, conversationID string) error {
	return tx.Model(&models.Conversation{}).Where("id = ?", conversationID).
		UpdateColumn("updated_at", s.now()).Error
}

func (s *Store) touchConversationOf(tx *gorm.DB, messageID string) error {
	sub := tx.Model(&models.Message{}).Select("conversation_id").Where("id = ?", messageID)
	return tx.Model(&models.Conversation{}).Where("id = (?)", sub).
		UpdateColumn("updated_at", s.now()).Error
}
