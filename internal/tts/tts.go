// Package tts serves assistant replies as speech, one sentence per request.
package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Skyhug-AI/skyhug-backend/internal/apperr"
	"github.com/Skyhug-AI/skyhug-backend/internal/models"
	"go.uber.org/zap"
)

// ChunkSize is the size of each audio write to the client.
const ChunkSize = 4096

// Store is the subset of the row store speech streaming reads.
type Store interface {
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	GetTherapist(ctx context.Context, id string) (*models.Therapist, error)
}

// Opts configures a Service.
type Opts struct {
	Store       Store
	Synthesizer Synthesizer
	// DefaultVoiceID is used when the conversation's therapist has no voice.
	DefaultVoiceID string
	Logger         *zap.Logger
}

// Service streams reply snippets as audio.
type Service struct {
	store        Store
	synth        Synthesizer
	defaultVoice string
	log          *zap.Logger
}

// New returns a Service.
func New(opts Opts) (*Service, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("tts: store is required")
	}
	if opts.Synthesizer == nil {
		return nil, fmt.Errorf("tts: synthesizer is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Service{store: opts.Store, synth: opts.Synthesizer, defaultVoice: opts.DefaultVoiceID, log: opts.Logger}, nil
}

// Stream writes the audio for sentence number snippet of the message's reply
// to w. Nothing is written when an error is returned before synthesis starts,
// so callers may still send an error response. Errors carry apperr kinds:
// ErrNotFound for a message without text, ErrInvalidRange for a bad snippet
// index, ErrForbidden when the conversation is not voice-enabled, and
// ErrUpstream when synthesis fails.
func (s *Service) Stream(ctx context.Context, messageID string, snippet int, w io.Writer) error {
	const op = "tts stream"
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.AssistantText == "" {
		return apperr.New(apperr.ErrNotFound, op, "No assistant_text for that message")
	}
	sentences := Sentences(msg.AssistantText)
	if snippet < 0 || snippet >= len(sentences) {
		return apperr.New(apperr.ErrInvalidRange, op, "snippet index out of range")
	}

	conv, err := s.store.GetConversation(ctx, msg.ConversationID)
	if err != nil {
		return err
	}
	if !conv.VoiceEnabled {
		return apperr.New(apperr.ErrForbidden, op, "TTS only in Voice Mode")
	}

	voice := s.voiceFor(ctx, conv)
	audio, err := s.synth.Synthesize(ctx, voice, sentences[snippet])
	if err != nil {
		return err
	}
	defer audio.Close()

	n, err := copyChunks(w, audio)
	if err != nil {
		return apperr.Wrap(apperr.ErrUpstream, op, err)
	}
	s.log.Debug("snippet streamed",
		zap.String("message_id", messageID),
		zap.Int("snippet", snippet),
		zap.String("voice_id", voice),
		zap.Int64("bytes", n))
	return nil
}

// voiceFor returns the therapist's voice, falling back to the default.
func (s *Service) voiceFor(ctx context.Context, conv *models.Conversation) string {
	if conv.TherapistID == nil || *conv.TherapistID == "" {
		return s.defaultVoice
	}
	t, err := s.store.GetTherapist(ctx, *conv.TherapistID)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			s.log.Warn("therapist lookup failed", zap.String("conversation_id", conv.ID), zap.Error(err))
		}
		return s.defaultVoice
	}
	if t.ElevenLabsVoiceID == "" {
		return s.defaultVoice
	}
	return t.ElevenLabsVoiceID
}

// copyChunks copies src to dst in ChunkSize writes, flushing after each one
// when dst supports it.
func copyChunks(dst io.Writer, src io.Reader) (int64, error) {
	flusher, _ := dst.(http.Flusher)
	buf := make([]byte, ChunkSize)
	var total int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return total, err
			}
			total += int64(n)
			if flusher != nil {
				flusher.Flush()
			}
		}
		if rerr == io.EOF {
			return total, nil
		}
		if rerr != nil {
			return total, rerr
		}
	}
}
