// Package summarizer condenses finished conversations into a short topic
// phrase and closes conversations that have gone quiet.
package summarizer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Skyhug-AI/skyhug-backend/internal/llm"
	"github.com/Skyhug-AI/skyhug-backend/internal/metrics"
	"github.com/Skyhug-AI/skyhug-backend/internal/models"
	"go.uber.org/zap"
)

const (
	// MinAssistantReplies is the number of assistant turns a conversation needs
	// before it is worth summarizing.
	MinAssistantReplies = 4

	summaryTemperature = 0.5
	summaryTokens      = 30

	instruction = "You are a concise summarizer. Return a single plain noun phrase (≤8 words) " +
		"that captures the conversation topic. Do NOT return a full sentence, " +
		"no punctuation, no articles like “the” or “a”."
)

// Store is the subset of the row store the summarizer reads and writes.
type Store interface {
	History(ctx context.Context, conversationID string) ([]models.Message, error)
	SetMemorySummary(ctx context.Context, id, summary string) error
	InactiveConversations(ctx context.Context, cutoff time.Time) ([]models.Conversation, error)
	EndConversation(ctx context.Context, id string) error
}

// Opts configures a Service.
type Opts struct {
	Store     Store
	Completer llm.Completer
	// Model is the completion model used for summaries.
	Model   string
	Metrics *metrics.Metrics
	Logger  *zap.Logger
	// Now overrides the clock; used by tests.
	Now func() time.Time
}

// Service writes memory summaries and ends inactive conversations.
type Service struct {
	store     Store
	completer llm.Completer
	model     string
	metrics   *metrics.Metrics
	log       *zap.Logger
	now       func() time.Time
}

// New returns a Service.
func New(opts Opts) (*Service, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("summarizer: store is required")
	}
	if opts.Completer == nil {
		return nil, fmt.Errorf("summarizer: completer is required")
	}
	if opts.Model == "" {
		opts.Model = "gpt-3.5-turbo"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:     opts.Store,
		completer: opts.Completer,
		model:     opts.Model,
		metrics:   opts.Metrics,
		log:       opts.Logger,
		now:       opts.Now,
	}, nil
}

// SummarizeAndStore writes a topic phrase for the conversation to its
// memory_summary. Conversations with fewer than MinAssistantReplies assistant
// turns are left alone, as are empty model replies.
func (s *Service) SummarizeAndStore(ctx context.Context, conversationID string) error {
	history, err := s.store.History(ctx, conversationID)
	if err != nil {
		s.metrics.Summary("error")
		return fmt.Errorf("summarizer: load history: %w", err)
	}

	transcript := make([]llm.Message, 0, len(history)+1)
	transcript = append(transcript, llm.Message{Role: llm.RoleSystem, Content: instruction})
	replies := 0
	for _, m := range history {
		role := llm.RoleUser
		if m.SenderRole == models.RoleAssistant {
			role = llm.RoleAssistant
			replies++
		}
		transcript = append(transcript, llm.Message{Role: role, Content: m.Text()})
	}
	if replies < MinAssistantReplies {
		s.log.Debug("skipping summary",
			zap.String("conversation_id", conversationID),
			zap.Int("assistant_replies", replies))
		s.metrics.Summary("skipped")
		return nil
	}

	reply, err := s.completer.Complete(ctx, llm.Request{
		Model:       s.model,
		Messages:    transcript,
		MaxTokens:   summaryTokens,
		Temperature: summaryTemperature,
	})
	if err != nil {
		s.metrics.Summary("error")
		return fmt.Errorf("summarizer: complete: %w", err)
	}

	summary := CleanPhrase(reply.Text)
	if summary == "" {
		s.log.Warn("empty summary", zap.String("conversation_id", conversationID))
		s.metrics.Summary("skipped")
		return nil
	}
	if err := s.store.SetMemorySummary(ctx, conversationID, summary); err != nil {
		s.metrics.Summary("error")
		return fmt.Errorf("summarizer: store summary: %w", err)
	}
	s.metrics.Summary("stored")
	s.log.Info("memory summary stored",
		zap.String("conversation_id", conversationID),
		zap.String("summary", summary))
	return nil
}

// CloseInactive summarizes and ends every open conversation whose last
// activity is strictly older than now minus interval. A failed summary is
// logged and the conversation is still ended.
func (s *Service) CloseInactive(ctx context.Context, interval time.Duration) error {
	cutoff := s.now().UTC().Add(-interval)
	stale, err := s.store.InactiveConversations(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("summarizer: find inactive: %w", err)
	}
	s.log.Debug("checking inactive conversations", zap.Time("cutoff", cutoff), zap.Int("count", len(stale)))

	for _, c := range stale {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.SummarizeAndStore(ctx, c.ID); err != nil {
			s.log.Warn("summary failed", zap.String("conversation_id", c.ID), zap.Error(err))
		}
		if err := s.store.EndConversation(ctx, c.ID); err != nil {
			return fmt.Errorf("summarizer: end %s: %w", c.ID, err)
		}
		s.log.Info("conversation ended", zap.String("conversation_id", c.ID))
	}
	return nil
}

// CleanPhrase trims whitespace, trailing punctuation and a leading article
// from a model-generated topic phrase.
func CleanPhrase(raw string) string {
	p := strings.TrimSpace(raw)
	p = strings.Trim(p, "\"“”")
	p = strings.TrimSpace(strings.TrimRight(p, ".!?,;"))
	lower := strings.ToLower(p)
	for _, article := range []string{"the ", "a ", "an "} {
		if strings.HasPrefix(lower, article) {
			p = strings.TrimSpace(p[len(article):])
			break
		}
	}
	return p
}
