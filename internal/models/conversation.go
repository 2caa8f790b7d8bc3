package models

import "time"

// Conversation groups the messages exchanged between one patient and the assistant.
type Conversation struct {
	ID                   string  `gorm:"primaryKey;size:36"`
	PatientID            *string `gorm:"size:36;index"`
	TherapistID          *string `gorm:"size:36"`
	VoiceEnabled         bool    `gorm:"default:false"`
	MemorySummary        string  `gorm:"type:text"`
	NeedsResummarization bool    `gorm:"default:false"`
	Ended                bool    `gorm:"default:false;index"`
	CreatedAt            time.Time
	UpdatedAt            time.Time `gorm:"index"`

	Messages []Message `gorm:"foreignKey:ConversationID"`
}
