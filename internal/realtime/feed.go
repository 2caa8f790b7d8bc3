// Package realtime watches the messages table for new and edited user
// messages and hands eligible ones to transcription or reply generation.
package realtime

import (
	"context"

	"github.com/Skyhug-AI/skyhug-backend/internal/models"
)

// ChangeType is the kind of row change a feed reports.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
)

// Change is one row change on the messages table.
type Change struct {
	Type   ChangeType
	Record models.Message
}

// State is a feed's subscription state.
type State int

const (
	StateDisconnected State = iota
	StateSubscribing
	StateSubscribed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateSubscribing:
		return "subscribing"
	case StateSubscribed:
		return "subscribed"
	default:
		return "unknown"
	}
}

// StateFunc is called on every subscription state transition.
type StateFunc func(State)

// ChangeFeed delivers message changes until ctx is cancelled, then closes
// the channel.
type ChangeFeed interface {
	Subscribe(ctx context.Context) (<-chan Change, error)
}

// AIEligible reports whether a change should produce an assistant reply: a
// user message, transcribed, with ai_status pending and not yet started.
// Updates qualify only when the message was edited.
func AIEligible(c Change) bool {
	m := c.Record
	if m.SenderRole != models.RoleUser ||
		m.AIStatus != models.StatusPending ||
		m.TranscriptionStatus != models.StatusDone ||
		m.AIStarted {
		return false
	}
	switch c.Type {
	case ChangeInsert:
		return true
	case ChangeUpdate:
		return m.EditedAt != nil
	default:
		return false
	}
}

// TranscriptionEligible reports whether a change is a new voice message
// waiting for its transcription.
func TranscriptionEligible(c Change) bool {
	m := c.Record
	return c.Type == ChangeInsert &&
		m.SenderRole == models.RoleUser &&
		m.TranscriptionStatus == models.StatusPending &&
		m.AudioPath != ""
}
