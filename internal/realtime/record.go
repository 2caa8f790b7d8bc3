package realtime

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Skyhug-AI/skyhug-backend/internal/models"
)

// wireRecord is a messages row as the realtime server encodes it.
type wireRecord struct {
	ID                  string  `json:"id"`
	ConversationID      string  `json:"conversation_id"`
	SenderRole          string  `json:"sender_role"`
	Transcription       *string `json:"transcription"`
	AssistantText       *string `json:"assistant_text"`
	AudioPath           *string `json:"audio_path"`
	TranscriptionStatus string  `json:"transcription_status"`
	AIStatus            string  `json:"ai_status"`
	AIStarted           bool    `json:"ai_started"`
	TTSStatus           string  `json:"tts_status"`
	EditedAt            *string `json:"edited_at"`
	SnippetURL          *string `json:"snippet_url"`
	Invalidated         bool    `json:"invalidated"`
	CreatedAt           *string `json:"created_at"`
	UpdatedAt           *string `json:"updated_at"`
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z07",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02 15:04:05.999999999",
}

// parseTimestamp accepts the timestamp shapes postgres emits, with or without
// a zone. Zone-less values are read as UTC.
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func optionalTime(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := parseTimestamp(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func decodeRecord(raw json.RawMessage) (models.Message, error) {
	var w wireRecord
	if err := json.Unmarshal(raw, &w); err != nil {
		return models.Message{}, fmt.Errorf("decode record: %w", err)
	}
	if w.ID == "" {
		return models.Message{}, fmt.Errorf("decode record: missing id")
	}
	m := models.Message{
		ID:                  w.ID,
		ConversationID:      w.ConversationID,
		SenderRole:          w.SenderRole,
		Transcription:       w.Transcription,
		TranscriptionStatus: w.TranscriptionStatus,
		AIStatus:            w.AIStatus,
		AIStarted:           w.AIStarted,
		TTSStatus:           w.TTSStatus,
		SnippetURL:          w.SnippetURL,
		Invalidated:         w.Invalidated,
	}
	if w.AssistantText != nil {
		m.AssistantText = *w.AssistantText
	}
	if w.AudioPath != nil {
		m.AudioPath = *w.AudioPath
	}

	var err error
	if m.EditedAt, err = optionalTime(w.EditedAt); err != nil {
		return models.Message{}, fmt.Errorf("decode record %s edited_at: %w", w.ID, err)
	}
	for _, ts := range []struct {
		src *string
		dst *time.Time
	}{{w.CreatedAt, &m.CreatedAt}, {w.UpdatedAt, &m.UpdatedAt}} {
		t, err := optionalTime(ts.src)
		if err != nil {
			return models.Message{}, fmt.Errorf("decode record %s: %w", w.ID, err)
		}
		if t != nil {
			*ts.dst = *t
		}
	}
	return m, nil
}
