// Package prompt assembles the ordered message list sent to the model for a
// conversation: persona, example dialog, profile, rolling memory, turns and
// drift reminders.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Skyhug-AI/skyhug-backend/internal/apperr"
	"github.com/Skyhug-AI/skyhug-backend/internal/llm"
	"github.com/Skyhug-AI/skyhug-backend/internal/models"
	"go.uber.org/zap"
)

// HistoryWindow is the number of most recent turns sent verbatim.
const HistoryWindow = 10

const (
	overflowInstruction = "Please summarize the earlier conversation briefly."
	overflowTemperature = 0.3
	overflowMaxTokens   = 600
)

// Store is the subset of the row store the builder reads and writes.
type Store interface {
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	ConsumeResummarizeFlag(ctx context.Context, id string) (bool, error)
	History(ctx context.Context, conversationID string) ([]models.Message, error)
	GetTherapist(ctx context.Context, id string) (*models.Therapist, error)
	GetProfile(ctx context.Context, userID string) (*models.UserProfile, error)
	AppendTopic(ctx context.Context, userID, topic string) (bool, error)
}

// BuilderOpts configures a Builder.
type BuilderOpts struct {
	Store     Store
	Completer llm.Completer
	Cache     *SessionCache
	// SummaryModel summarizes overflowing history.
	SummaryModel string
	Logger       *zap.Logger
}

// Builder assembles prompts. It is safe for concurrent use.
type Builder struct {
	store        Store
	completer    llm.Completer
	cache        *SessionCache
	summaryModel string
	log          *zap.Logger
}

// NewBuilder returns a Builder. A nil Cache gets a default-sized one.
func NewBuilder(opts BuilderOpts) (*Builder, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("prompt: store is required")
	}
	if opts.Completer == nil {
		return nil, fmt.Errorf("prompt: completer is required")
	}
	if opts.Cache == nil {
		opts.Cache = NewSessionCache(DefaultCacheSize)
	}
	if opts.SummaryModel == "" {
		opts.SummaryModel = "gpt-4-turbo"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Builder{
		store:        opts.Store,
		completer:    opts.Completer,
		cache:        opts.Cache,
		summaryModel: opts.SummaryModel,
		log:          opts.Logger,
	}, nil
}

// Cache returns the session cache the builder records injections in.
func (b *Builder) Cache() *SessionCache {
	return b.cache
}

// Build returns the prompt for the next reply in a conversation. Its only side
// effects are consuming the resummarize flag and appending newly mentioned
// topics to the user's profile.
func (b *Builder) Build(ctx context.Context, conversationID string, voiceMode bool) ([]llm.Message, error) {
	conv, err := b.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("prompt: load conversation: %w", err)
	}
	memory := conv.MemorySummary
	if conv.NeedsResummarization {
		if _, err := b.store.ConsumeResummarizeFlag(ctx, conversationID); err != nil {
			return nil, fmt.Errorf("prompt: clear memory: %w", err)
		}
		memory = ""
	}

	history, err := b.store.History(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("prompt: load history: %w", err)
	}

	therapist, err := b.therapist(ctx, conv)
	if err != nil {
		return nil, err
	}
	profile, err := b.profile(ctx, conv)
	if err != nil {
		return nil, err
	}

	msgs := []llm.Message{{Role: llm.RoleSystem, Content: SystemPrompt(therapist)}}
	msgs = append(msgs, ExampleDialog()...)
	if profile != nil {
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: MiniProfile(profile)})
	}

	if memory != "" && len(history) == 0 {
		msgs = append(msgs, llm.Message{
			Role:    llm.RoleAssistant,
			Content: "Last time we spoke, we discussed " + memory + ". Would you like to continue?",
		})
	}

	turns := make([]llm.Message, 0, len(history))
	for _, m := range history {
		role := llm.RoleUser
		if m.SenderRole == models.RoleAssistant {
			role = llm.RoleAssistant
		}
		turns = append(turns, llm.Message{Role: role, Content: m.Text()})
	}

	if len(turns) > HistoryWindow {
		older := turns[:len(turns)-HistoryWindow]
		summary, err := b.summarizeOverflow(ctx, msgs, older)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: "Summary of earlier conversation: " + summary})
		msgs = append(msgs, turns[len(turns)-HistoryWindow:]...)
	} else {
		msgs = append(msgs, turns...)
	}

	if profile != nil && !b.cache.ProfileInjected(conversationID) {
		if full := FullProfile(profile); full != "" && b.cache.MarkProfileInjected(conversationID) {
			msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: full})
			b.log.Debug("profile injected", zap.String("conversation_id", conversationID))
		}
	}

	if profile != nil && len(history) > 0 && b.cache.ProfileInjected(conversationID) {
		last := history[len(history)-1]
		if last.SenderRole == models.RoleUser {
			reminders, err := b.driftReminders(ctx, conversationID, profile, last.Text())
			if err != nil {
				return nil, err
			}
			msgs = append(msgs, reminders...)
		}
	}

	b.log.Debug("prompt built",
		zap.String("conversation_id", conversationID),
		zap.Bool("voice_mode", voiceMode),
		zap.Int("messages", len(msgs)),
		zap.Int("turns", len(turns)))
	return msgs, nil
}

func (b *Builder) therapist(ctx context.Context, conv *models.Conversation) (*models.Therapist, error) {
	if conv.TherapistID == nil || *conv.TherapistID == "" {
		return nil, nil
	}
	t, err := b.store.GetTherapist(ctx, *conv.TherapistID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("prompt: load therapist: %w", err)
	}
	return t, nil
}

func (b *Builder) profile(ctx context.Context, conv *models.Conversation) (*models.UserProfile, error) {
	if conv.PatientID == nil || *conv.PatientID == "" {
		return nil, nil
	}
	p, err := b.store.GetProfile(ctx, *conv.PatientID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("prompt: load profile: %w", err)
	}
	return p, nil
}

func (b *Builder) summarizeOverflow(ctx context.Context, base, older []llm.Message) (string, error) {
	req := make([]llm.Message, 0, len(base)+1+len(older))
	req = append(req, base...)
	req = append(req, llm.Message{Role: llm.RoleAssistant, Content: overflowInstruction})
	req = append(req, older...)

	reply, err := b.completer.Complete(ctx, llm.Request{
		Model:       b.summaryModel,
		Messages:    req,
		Temperature: overflowTemperature,
		MaxTokens:   overflowMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("prompt: summarize overflow: %w", err)
	}
	return reply.Text, nil
}

// driftReminders emits at most one reminder per field per conversation.
func (b *Builder) driftReminders(ctx context.Context, conversationID string, profile *models.UserProfile, userText string) ([]llm.Message, error) {
	text := strings.ToLower(userText)
	var out []llm.Message
	for _, rule := range driftRules {
		if b.cache.Reminded(conversationID, rule.field) {
			continue
		}
		kw, ok := rule.matchedKeyword(text)
		if !ok {
			continue
		}
		value := fieldValue(profile, rule.field)
		if value == "" {
			continue
		}
		if !b.cache.MarkReminded(conversationID, rule.field) {
			continue
		}

		if rule.field == "topics_on_mind" {
			topic := extractTopic(text, kw)
			added, err := b.store.AppendTopic(ctx, profile.UserID, topic)
			if err != nil {
				return nil, fmt.Errorf("prompt: append topic: %w", err)
			}
			if added {
				b.log.Info("topic added to profile",
					zap.String("conversation_id", conversationID),
					zap.String("topic", topic))
			}
		}
		out = append(out, llm.Message{Role: llm.RoleSystem, Content: reminderText(rule.field, value)})
	}
	return out, nil
}
