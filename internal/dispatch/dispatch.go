// Package dispatch turns an eligible user message into exactly one assistant
// reply: it claims the message, builds the prompt, selects a model and writes
// the reply in chat (streamed) or voice (function-calling) mode.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Skyhug-AI/skyhug-backend/internal/llm"
	"github.com/Skyhug-AI/skyhug-backend/internal/metrics"
	"github.com/Skyhug-AI/skyhug-backend/internal/models"
	"go.uber.org/zap"
)

const (
	replyTemperature   = 0.7
	continuationTokens = 200
	defaultHotline     = "988"
)

// Store is the subset of the row store the dispatcher writes through.
type Store interface {
	ClaimMessage(ctx context.Context, id string) (bool, error)
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	InsertMessage(ctx context.Context, m *models.Message) error
	SetAssistantText(ctx context.Context, id, text string) error
	CompleteAssistantText(ctx context.Context, id, text string) error
	SetSnippetURL(ctx context.Context, id, url string) error
	SetTTSStatus(ctx context.Context, id, status string) error
	SetAIStatus(ctx context.Context, id, status string) error
}

// PromptBuilder assembles the prompt for a conversation.
type PromptBuilder interface {
	Build(ctx context.Context, conversationID string, voiceMode bool) ([]llm.Message, error)
}

// Opts configures a Dispatcher.
type Opts struct {
	Store     Store
	Builder   PromptBuilder
	Completer llm.Completer
	Models    Models
	// PublicBaseURL prefixes snippet URLs. Empty keeps them relative.
	PublicBaseURL string
	Metrics       *metrics.Metrics
	Logger        *zap.Logger
}

// Dispatcher handles AI generation for user messages. It is safe for
// concurrent use; the claim guarantees one generation per message.
type Dispatcher struct {
	store     Store
	builder   PromptBuilder
	completer llm.Completer
	models    Models
	baseURL   string
	metrics   *metrics.Metrics
	log       *zap.Logger
}

// New returns a Dispatcher.
func New(opts Opts) (*Dispatcher, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("dispatch: store is required")
	}
	if opts.Builder == nil {
		return nil, fmt.Errorf("dispatch: prompt builder is required")
	}
	if opts.Completer == nil {
		return nil, fmt.Errorf("dispatch: completer is required")
	}
	if opts.Models.Fast == "" {
		opts.Models.Fast = "gpt-3.5-turbo"
	}
	if opts.Models.Deep == "" {
		opts.Models.Deep = "gpt-4-turbo"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Dispatcher{
		store:     opts.Store,
		builder:   opts.Builder,
		completer: opts.Completer,
		models:    opts.Models,
		baseURL:   strings.TrimRight(opts.PublicBaseURL, "/"),
		metrics:   opts.Metrics,
		log:       opts.Logger,
	}, nil
}

// Handle generates the reply for msg. A message that is already started, or
// that another dispatcher claims first, is skipped. Once claimed, the message
// always ends with ai_status done or error; the returned error reports the
// failure that produced the error status.
func (d *Dispatcher) Handle(ctx context.Context, msg models.Message) error {
	if msg.AIStarted {
		d.metrics.Dispatch("skipped", 0)
		return nil
	}
	claimed, err := d.store.ClaimMessage(ctx, msg.ID)
	if err != nil {
		return fmt.Errorf("dispatch: claim %s: %w", msg.ID, err)
	}
	if !claimed {
		d.log.Debug("message already claimed", zap.String("message_id", msg.ID))
		d.metrics.Dispatch("skipped", 0)
		return nil
	}

	start := time.Now()
	// Terminal status writes must land even when ctx is cancelled.
	final := context.WithoutCancel(ctx)

	if err := d.generate(ctx, msg); err != nil {
		if serr := d.store.SetAIStatus(final, msg.ID, models.StatusError); serr != nil {
			d.log.Error("mark message failed", zap.String("message_id", msg.ID), zap.Error(serr))
		}
		d.metrics.Dispatch("error", time.Since(start))
		return fmt.Errorf("dispatch: message %s: %w", msg.ID, err)
	}
	if err := d.store.SetAIStatus(final, msg.ID, models.StatusDone); err != nil {
		if serr := d.store.SetAIStatus(final, msg.ID, models.StatusError); serr != nil {
			d.log.Error("mark message failed", zap.String("message_id", msg.ID), zap.Error(serr))
		}
		d.metrics.Dispatch("error", time.Since(start))
		return fmt.Errorf("dispatch: mark %s done: %w", msg.ID, err)
	}
	d.metrics.Dispatch("done", time.Since(start))
	d.log.Info("assistant reply created",
		zap.String("message_id", msg.ID),
		zap.String("conversation_id", msg.ConversationID),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

func (d *Dispatcher) generate(ctx context.Context, msg models.Message) error {
	conv, err := d.store.GetConversation(ctx, msg.ConversationID)
	if err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}
	payload, err := d.builder.Build(ctx, conv.ID, conv.VoiceEnabled)
	if err != nil {
		return fmt.Errorf("build prompt: %w", err)
	}

	sel := SelectModel(msg.Text(), d.models)
	d.metrics.ModelSelected(sel.Model, sel.Rule)
	d.log.Debug("model selected",
		zap.String("message_id", msg.ID),
		zap.String("model", sel.Model),
		zap.String("rule", sel.Rule),
		zap.Bool("voice_mode", conv.VoiceEnabled))

	if conv.VoiceEnabled {
		return d.voiceReply(ctx, conv.ID, sel, payload)
	}
	return d.chatReply(ctx, conv.ID, sel, payload)
}

// chatReply inserts an empty assistant row, streams the completion into it,
// then marks it done.
func (d *Dispatcher) chatReply(ctx context.Context, conversationID string, sel Selection, payload []llm.Message) error {
	reply := &models.Message{
		ConversationID:      conversationID,
		SenderRole:          models.RoleAssistant,
		TranscriptionStatus: models.StatusDone,
		AIStatus:            models.StatusPending,
		TTSStatus:           models.StatusDone,
	}
	if err := d.store.InsertMessage(ctx, reply); err != nil {
		return fmt.Errorf("insert assistant row: %w", err)
	}

	text, err := d.streamReply(ctx, reply.ID, sel, payload)
	if err != nil {
		d.failReply(ctx, reply.ID)
		return err
	}
	if err := d.store.CompleteAssistantText(ctx, reply.ID, text); err != nil {
		d.failReply(ctx, reply.ID)
		return fmt.Errorf("complete assistant row: %w", err)
	}
	return nil
}

// failReply marks a partially written assistant row as errored.
func (d *Dispatcher) failReply(ctx context.Context, replyID string) {
	if err := d.store.SetAIStatus(context.WithoutCancel(ctx), replyID, models.StatusError); err != nil {
		d.log.Error("mark assistant row failed", zap.String("message_id", replyID), zap.Error(err))
	}
}

func (d *Dispatcher) streamReply(ctx context.Context, replyID string, sel Selection, payload []llm.Message) (string, error) {
	var text strings.Builder
	res, err := d.completer.Stream(ctx, d.request(sel, payload), func(delta string) error {
		text.WriteString(delta)
		return d.store.SetAssistantText(ctx, replyID, text.String())
	})
	if err != nil {
		return "", fmt.Errorf("stream reply: %w", err)
	}

	out := text.String()
	if needsContinuation(out, res.Truncated) {
		out, err = d.continueReply(ctx, sel, payload, out)
		if err != nil {
			return "", err
		}
		if err := d.store.SetAssistantText(ctx, replyID, out); err != nil {
			return "", fmt.Errorf("write continuation: %w", err)
		}
	}
	return out, nil
}

// voiceReply runs one function-enabled completion and inserts the finished
// assistant row with a pending speech seed.
func (d *Dispatcher) voiceReply(ctx context.Context, conversationID string, sel Selection, payload []llm.Message) error {
	req := d.request(sel, payload)
	req.Functions = llm.SafetyFunctions()
	reply, err := d.completer.Complete(ctx, req)
	if err != nil {
		return fmt.Errorf("complete reply: %w", err)
	}

	var content string
	switch reply.Kind {
	case llm.ReplyFunctionCall:
		content, err = functionCopy(reply.Call)
		if err != nil {
			return err
		}
		d.log.Info("function invoked", zap.String("function", reply.Call.Name))
	case llm.ReplyText:
		content = reply.Text
		if needsContinuation(content, reply.Truncated) {
			content, err = d.continueReply(ctx, sel, payload, content)
			if err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unexpected reply kind %v", reply.Kind)
	}

	row := &models.Message{
		ConversationID:      conversationID,
		SenderRole:          models.RoleAssistant,
		AssistantText:       content,
		TranscriptionStatus: models.StatusDone,
		AIStatus:            models.StatusDone,
		TTSStatus:           models.StatusPending,
	}
	if err := d.store.InsertMessage(ctx, row); err != nil {
		return fmt.Errorf("insert assistant row: %w", err)
	}
	if err := d.store.SetSnippetURL(ctx, row.ID, SnippetURL(d.baseURL, row.ID, 0)); err != nil {
		d.log.Warn("seed snippet url failed", zap.String("message_id", row.ID), zap.Error(err))
		if serr := d.store.SetTTSStatus(context.WithoutCancel(ctx), row.ID, models.StatusError); serr != nil {
			d.log.Error("mark tts failed", zap.String("message_id", row.ID), zap.Error(serr))
		}
	}
	return nil
}

// continueReply asks for the rest of a truncated reply and appends it.
func (d *Dispatcher) continueReply(ctx context.Context, sel Selection, payload []llm.Message, text string) (string, error) {
	msgs := make([]llm.Message, 0, len(payload)+1)
	msgs = append(msgs, payload...)
	msgs = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: text})

	d.metrics.Continuation()
	reply, err := d.completer.Complete(ctx, llm.Request{
		Model:       sel.Model,
		Messages:    msgs,
		MaxTokens:   continuationTokens,
		Temperature: replyTemperature,
	})
	if err != nil {
		return "", fmt.Errorf("continue reply: %w", err)
	}
	if reply.Kind != llm.ReplyText {
		return text, nil
	}
	return joinContinuation(text, reply.Text), nil
}

func (d *Dispatcher) request(sel Selection, payload []llm.Message) llm.Request {
	return llm.Request{
		Model:       sel.Model,
		Messages:    payload,
		MaxTokens:   sel.MaxTokens,
		Temperature: replyTemperature,
	}
}

// needsContinuation reports whether a reply was cut off: the provider said so,
// or the text does not end a sentence.
func needsContinuation(text string, truncated bool) bool {
	if truncated {
		return true
	}
	t := strings.TrimSpace(text)
	return !(strings.HasSuffix(t, ".") || strings.HasSuffix(t, "!") || strings.HasSuffix(t, "?"))
}

func joinContinuation(text, extra string) string {
	extra = strings.TrimSpace(extra)
	if extra == "" {
		return text
	}
	return strings.TrimRight(text, " \t\n") + " " + extra
}

// functionCopy renders the fixed reply text for a function invocation.
func functionCopy(call llm.FunctionCall) (string, error) {
	switch call.Name {
	case llm.FuncSuicidalMention:
		var args llm.SuicidalMentionArgs
		if len(call.Arguments) > 0 {
			if err := json.Unmarshal(call.Arguments, &args); err != nil {
				return "", fmt.Errorf("decode %s arguments: %w", call.Name, err)
			}
		}
		hotline := strings.TrimSpace(args.HotlineNumber)
		if hotline == "" {
			hotline = defaultHotline
		}
		return "I'm so sorry you're feeling this way. If you ever think about harming yourself, call " + hotline + ".", nil
	case llm.FuncSuggestAssessment:
		var args llm.SuggestAssessmentArgs
		if len(call.Arguments) > 0 {
			if err := json.Unmarshal(call.Arguments, &args); err != nil {
				return "", fmt.Errorf("decode %s arguments: %w", call.Name, err)
			}
		}
		text := "It might help to take a short self-assessment."
		if name := strings.TrimSpace(args.AssessmentName); name != "" {
			text = "It might help to take the " + name + " assessment."
		}
		if reason := strings.TrimSpace(args.Reason); reason != "" {
			text += " " + reason
		}
		return text, nil
	default:
		return "", fmt.Errorf("unknown function %q", call.Name)
	}
}

// SnippetURL returns the speech-stream endpoint for one segment of a reply.
func SnippetURL(baseURL, messageID string, snippet int) string {
	return fmt.Sprintf("%s/tts-stream/%s?snippet=%d", baseURL, messageID, snippet)
}
