package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Skyhug-AI/skyhug-backend/internal/apperr"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// ClientOpts configures an OpenAI-backed Client.
type ClientOpts struct {
	APIKey  string
	BaseURL string // optional, for proxies and tests
	// TranscribeModel defaults to whisper-1.
	TranscribeModel string
	// Timeout bounds each call, including the full duration of a stream.
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	HTTPClient        *http.Client
}

// Client implements Completer and Transcriber with go-openai.
type Client struct {
	api             *openai.Client
	limiter         *rate.Limiter
	timeout         time.Duration
	transcribeModel string
}

// NewClient builds a Client. A zero RequestsPerSecond disables rate limiting.
func NewClient(opts ClientOpts) (*Client, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("llm: api key is required")
	}
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	model := opts.TranscribeModel
	if model == "" {
		model = openai.Whisper1
	}
	return &Client{
		api:             openai.NewClientWithConfig(cfg),
		limiter:         limiter,
		timeout:         opts.Timeout,
		transcribeModel: model,
	}, nil
}

func (c *Client) begin(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, apperr.Wrap(apperr.ErrUpstream, "llm: rate limit", err)
	}
	if c.timeout > 0 {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		return ctx, cancel, nil
	}
	ctx, cancel := context.WithCancel(ctx)
	return ctx, cancel, nil
}

// Complete runs one non-streaming completion. When functions are offered and
// the model invokes one, the reply is tagged ReplyFunctionCall.
func (c *Client) Complete(ctx context.Context, req Request) (Reply, error) {
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return Reply{}, err
	}
	defer cancel()

	resp, err := c.api.CreateChatCompletion(ctx, toOpenAI(req))
	if err != nil {
		return Reply{}, apperr.Wrap(apperr.ErrUpstream, "llm: complete "+req.Model, err)
	}
	if len(resp.Choices) == 0 {
		return Reply{}, apperr.New(apperr.ErrUpstream, "llm: complete "+req.Model, "no choices returned")
	}
	return fromChoice(resp.Choices[0]), nil
}

// Stream runs a streaming completion.
func (c *Client) Stream(ctx context.Context, req Request, onDelta func(string) error) (StreamResult, error) {
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return StreamResult{}, err
	}
	defer cancel()

	oreq := toOpenAI(req)
	oreq.Stream = true
	stream, err := c.api.CreateChatCompletionStream(ctx, oreq)
	if err != nil {
		return StreamResult{}, apperr.Wrap(apperr.ErrUpstream, "llm: stream "+req.Model, err)
	}
	defer stream.Close()

	var res StreamResult
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return res, nil
		}
		if err != nil {
			return res, apperr.Wrap(apperr.ErrUpstream, "llm: stream "+req.Model, err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.FinishReason == openai.FinishReasonLength {
			res.Truncated = true
		}
		if choice.Delta.Content == "" {
			continue
		}
		res.Text += choice.Delta.Content
		if err := onDelta(choice.Delta.Content); err != nil {
			return res, err
		}
	}
}

// Warmup sends a one-token completion to each model so the first user reply
// does not pay connection setup. Failures are returned joined but are safe to
// ignore.
func (c *Client) Warmup(ctx context.Context, models ...string) error {
	var errs []error
	for _, m := range models {
		_, err := c.Complete(ctx, Request{
			Model:     m,
			Messages:  []Message{{Role: RoleUser, Content: "ping"}},
			MaxTokens: 1,
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Transcribe sends audio to the speech-to-text model.
func (c *Client) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return "", err
	}
	defer cancel()

	resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.transcribeModel,
		FilePath: filename,
		Reader:   audio,
	})
	if err != nil {
		return "", apperr.Wrap(apperr.ErrUpstream, "llm: transcribe", err)
	}
	return resp.Text, nil
}

func toOpenAI(req Request) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	out := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	for _, f := range req.Functions {
		out.Tools = append(out.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        f.Name,
				Description: f.Description,
				Parameters:  f.Parameters,
			},
		})
	}
	if len(out.Tools) > 0 {
		out.ToolChoice = "auto"
	}
	return out
}

func fromChoice(choice openai.ChatCompletionChoice) Reply {
	msg := choice.Message
	truncated := choice.FinishReason == openai.FinishReasonLength
	switch {
	case len(msg.ToolCalls) > 0:
		call := msg.ToolCalls[0].Function
		return Reply{
			Kind:      ReplyFunctionCall,
			Call:      FunctionCall{Name: call.Name, Arguments: []byte(call.Arguments)},
			Truncated: truncated,
		}
	case msg.FunctionCall != nil:
		return Reply{
			Kind:      ReplyFunctionCall,
			Call:      FunctionCall{Name: msg.FunctionCall.Name, Arguments: []byte(msg.FunctionCall.Arguments)},
			Truncated: truncated,
		}
	default:
		return Reply{Kind: ReplyText, Text: msg.Content, Truncated: truncated}
	}
}
