package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Skyhug-AI/skyhug-backend/internal/apperr"
)

// Synthesizer streams speech audio for text in a given voice.
type Synthesizer interface {
	Synthesize(ctx context.Context, voiceID, text string) (io.ReadCloser, error)
}

var _ Synthesizer = (*ElevenLabs)(nil)

// VoiceSettings tunes the ElevenLabs voice.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	LatencyBoost    bool    `json:"latency_boost"`
}

// DefaultVoiceSettings are used for every reply snippet.
var DefaultVoiceSettings = VoiceSettings{Stability: 0.45, SimilarityBoost: 0.45, LatencyBoost: true}

type speechRequest struct {
	Text          string        `json:"text"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
	Stream        bool          `json:"stream"`
}

// ElevenLabsOpts configures an ElevenLabs client.
type ElevenLabsOpts struct {
	APIKey string
	// BaseURL defaults to https://api.elevenlabs.io.
	BaseURL    string
	Settings   *VoiceSettings
	HTTPClient *http.Client
}

// ElevenLabs is a streaming text-to-speech client.
type ElevenLabs struct {
	apiKey   string
	baseURL  string
	settings VoiceSettings
	client   *http.Client
}

// NewElevenLabs returns an ElevenLabs client.
func NewElevenLabs(opts ElevenLabsOpts) (*ElevenLabs, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("tts: elevenlabs api key is required")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.elevenlabs.io"
	}
	settings := DefaultVoiceSettings
	if opts.Settings != nil {
		settings = *opts.Settings
	}
	if opts.HTTPClient == nil {
		// No overall timeout: the body is streamed for as long as the speech lasts.
		opts.HTTPClient = &http.Client{Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: 5 * time.Second,
			MaxIdleConnsPerHost:   8,
		}}
	}
	return &ElevenLabs{
		apiKey:   opts.APIKey,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		settings: settings,
		client:   opts.HTTPClient,
	}, nil
}

func (e *ElevenLabs) speechURL(voiceID string) string {
	return e.baseURL + "/v1/text-to-speech/" + voiceID
}

// Synthesize starts a streaming synthesis and returns the audio body.
func (e *ElevenLabs) Synthesize(ctx context.Context, voiceID, text string) (io.ReadCloser, error) {
	resp, err := e.post(ctx, voiceID, speechRequest{Text: text, VoiceSettings: e.settings, Stream: true})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		return nil, apperr.Wrap(apperr.ErrUpstream, "synthesize speech",
			fmt.Errorf("elevenlabs returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}
	return resp.Body, nil
}

// Warmup opens pooled connections to the speech endpoint for voiceID. Failures
// are ignored.
func (e *ElevenLabs) Warmup(ctx context.Context, voiceID string) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	for i := 0; i < 3; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, e.speechURL(voiceID), nil)
		if err != nil {
			return
		}
		if resp, err := e.client.Do(req); err == nil {
			resp.Body.Close()
		}
	}
	resp, err := e.post(ctx, voiceID, speechRequest{
		Text:          ".",
		VoiceSettings: VoiceSettings{Stability: 0.2, SimilarityBoost: 0.2, LatencyBoost: true},
		Stream:        true,
	})
	if err == nil {
		resp.Body.Close()
	}
}

func (e *ElevenLabs) post(ctx context.Context, voiceID string, body speechRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("tts: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.speechURL(voiceID), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("tts: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrUpstream, "synthesize speech", err)
	}
	return resp, nil
}
