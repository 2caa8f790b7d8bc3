// Package transcribe turns recorded user audio into message text and hands the
// finished message to the reply dispatcher.
package transcribe

import (
	"context"
	"fmt"
	"path"

	"github.com/Skyhug-AI/skyhug-backend/internal/llm"
	"github.com/Skyhug-AI/skyhug-backend/internal/metrics"
	"github.com/Skyhug-AI/skyhug-backend/internal/models"
	"go.uber.org/zap"
)

// Store is the subset of the row store the transcriber writes.
type Store interface {
	SetTranscription(ctx context.Context, id, text string) error
	SetTranscriptionStatus(ctx context.Context, id, status string) error
}

// Handler receives a message once its transcription is stored.
type Handler interface {
	Handle(ctx context.Context, msg models.Message) error
}

// Opts configures a Service.
type Opts struct {
	Store       Store
	Audio       AudioSource
	Transcriber llm.Transcriber
	// Next, when set, is handed each successfully transcribed message.
	Next    Handler
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// Service transcribes pending voice messages.
type Service struct {
	store       Store
	audio       AudioSource
	transcriber llm.Transcriber
	next        Handler
	metrics     *metrics.Metrics
	log         *zap.Logger
}

// New returns a Service.
func New(opts Opts) (*Service, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("transcribe: store is required")
	}
	if opts.Audio == nil {
		return nil, fmt.Errorf("transcribe: audio source is required")
	}
	if opts.Transcriber == nil {
		return nil, fmt.Errorf("transcribe: transcriber is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Service{
		store:       opts.Store,
		audio:       opts.Audio,
		transcriber: opts.Transcriber,
		next:        opts.Next,
		metrics:     opts.Metrics,
		log:         opts.Logger,
	}, nil
}

// Handle downloads and transcribes msg's audio, then stores the text with
// transcription_status done. Any failure sets transcription_status to error.
// Messages without an audio path are ignored.
func (s *Service) Handle(ctx context.Context, msg models.Message) error {
	if msg.AudioPath == "" {
		return nil
	}

	text, err := s.transcribe(ctx, msg)
	if err != nil {
		s.metrics.Transcription("error")
		if serr := s.store.SetTranscriptionStatus(context.WithoutCancel(ctx), msg.ID, models.StatusError); serr != nil {
			s.log.Error("mark transcription failed", zap.String("message_id", msg.ID), zap.Error(serr))
		}
		return fmt.Errorf("transcribe: message %s: %w", msg.ID, err)
	}
	s.metrics.Transcription("done")
	s.log.Info("message transcribed", zap.String("message_id", msg.ID), zap.Int("chars", len(text)))

	if s.next == nil {
		return nil
	}
	msg.Transcription = &text
	msg.TranscriptionStatus = models.StatusDone
	if msg.AIStarted || msg.AIStatus != models.StatusPending {
		return nil
	}
	return s.next.Handle(ctx, msg)
}

func (s *Service) transcribe(ctx context.Context, msg models.Message) (string, error) {
	body, err := s.audio.Fetch(ctx, msg.AudioPath)
	if err != nil {
		return "", err
	}
	defer body.Close()

	text, err := s.transcriber.Transcribe(ctx, path.Base(msg.AudioPath), body)
	if err != nil {
		return "", err
	}
	if err := s.store.SetTranscription(ctx, msg.ID, text); err != nil {
		return "", fmt.Errorf("store transcription: %w", err)
	}
	return text, nil
}
