package models

import "time"

// Sender roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Status values shared by transcription_status, ai_status and tts_status.
const (
	StatusPending = "pending"
	StatusDone    = "done"
	StatusError   = "error"
)

// Message is one turn of a conversation, written by the patient or the assistant.
// AIStarted only ever moves false to true, through a conditional update.
type Message struct {
	ID                  string  `gorm:"primaryKey;size:36"`
	ConversationID      string  `gorm:"size:36;not null;index"`
	SenderRole          string  `gorm:"size:16;not null"`
	Transcription       *string `gorm:"type:text"`
	AssistantText       string  `gorm:"type:text"`
	AudioPath           string  `gorm:"size:512"`
	TranscriptionStatus string  `gorm:"column:transcription_status;size:16;default:done"`
	AIStatus            string  `gorm:"column:ai_status;size:16;default:pending;index"`
	AIStarted           bool    `gorm:"column:ai_started;default:false"`
	TTSStatus           string  `gorm:"column:tts_status;size:16;default:done"`
	EditedAt            *time.Time
	SnippetURL          *string   `gorm:"size:512"`
	Invalidated         bool      `gorm:"default:false"`
	CreatedAt           time.Time `gorm:"index"`
	UpdatedAt           time.Time `gorm:"index"`
}

// Text returns the content a turn contributes to a prompt: the transcription
// for user rows and the reply for assistant rows.
func (m Message) Text() string {
	if m.SenderRole == RoleAssistant {
		return m.AssistantText
	}
	if m.Transcription == nil {
		return ""
	}
	return *m.Transcription
}
