package models

import "gorm.io/datatypes"

// Therapist is a persona the assistant speaks as. SystemPrompt, when set,
// replaces the rendered persona template.
type Therapist struct {
	ID                string                      `gorm:"primaryKey;size:36"`
	Name              string                      `gorm:"size:128"`
	Description       string                      `gorm:"type:text"`
	Bio               string                      `gorm:"type:text"`
	Approach          string                      `gorm:"type:text"`
	SessionStructure  string                      `gorm:"type:text"`
	Specialties       datatypes.JSONSlice[string] `gorm:"type:json"`
	SystemPrompt      string                      `gorm:"type:text"`
	ElevenLabsVoiceID string                      `gorm:"column:eleven_labs_voice_id;size:64"`
}
