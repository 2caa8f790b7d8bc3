package models

import "gorm.io/datatypes"

// UserProfile holds what a patient has shared about themselves. TopicsOnMind is
// append-only; drift detection adds newly mentioned topics.
type UserProfile struct {
	UserID              string                      `gorm:"primaryKey;size:36"`
	Age                 *int
	Gender              string                      `gorm:"size:64"`
	SexualPreferences   string                      `gorm:"size:128"`
	Career              string                      `gorm:"size:256"`
	SelfDiagnosedIssues string                      `gorm:"type:text"`
	TopicsOnMind        datatypes.JSONSlice[string] `gorm:"type:json"`
	AdditionalInfo      string                      `gorm:"type:text"`
}
