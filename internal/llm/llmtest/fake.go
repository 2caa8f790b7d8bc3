// Package llmtest provides a scripted llm.Completer for tests.
package llmtest

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/Skyhug-AI/skyhug-backend/internal/llm"
)

// Fake replays scripted replies and records every request it receives.
// Complete consumes Replies in order; Stream consumes Streams in order. When a
// script runs out, Complete returns Default and Stream emits DefaultStream.
type Fake struct {
	mu            sync.Mutex
	Replies       []llm.Reply
	Streams       []Stream
	Default       llm.Reply
	DefaultStream Stream
	Err           error
	Transcript    string

	Requests []llm.Request
}

// Stream is one scripted streaming response.
type Stream struct {
	Deltas    []string
	Truncated bool
	Err       error
}

var _ llm.Completer = (*Fake)(nil)
var _ llm.Transcriber = (*Fake)(nil)

func (f *Fake) Complete(_ context.Context, req llm.Request) (llm.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Requests = append(f.Requests, req)
	if f.Err != nil {
		return llm.Reply{}, f.Err
	}
	if len(f.Replies) == 0 {
		return f.Default, nil
	}
	r := f.Replies[0]
	f.Replies = f.Replies[1:]
	return r, nil
}

func (f *Fake) Stream(ctx context.Context, req llm.Request, onDelta func(string) error) (llm.StreamResult, error) {
	f.mu.Lock()
	f.Requests = append(f.Requests, req)
	err := f.Err
	s := f.DefaultStream
	if len(f.Streams) > 0 {
		s = f.Streams[0]
		f.Streams = f.Streams[1:]
	}
	f.mu.Unlock()
	if err != nil {
		return llm.StreamResult{}, err
	}

	var res llm.StreamResult
	for _, d := range s.Deltas {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Text += d
		if err := onDelta(d); err != nil {
			return res, err
		}
	}
	res.Truncated = s.Truncated
	return res, s.Err
}

func (f *Fake) Transcribe(_ context.Context, _ string, audio io.Reader) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return "", f.Err
	}
	if f.Transcript != "" {
		return f.Transcript, nil
	}
	b, err := io.ReadAll(audio)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// Calls returns a copy of the recorded requests.
func (f *Fake) Calls() []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]llm.Request, len(f.Requests))
	copy(out, f.Requests)
	return out
}
