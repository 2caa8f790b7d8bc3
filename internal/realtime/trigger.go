package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/Skyhug-AI/skyhug-backend/internal/metrics"
	"github.com/Skyhug-AI/skyhug-backend/internal/models"
	"go.uber.org/zap"
)

// Handler processes one message.
type Handler interface {
	Handle(ctx context.Context, msg models.Message) error
}

// CatchupSource lists user messages created after a point in time.
type CatchupSource interface {
	UserMessagesCreatedAfter(ctx context.Context, t time.Time) ([]models.Message, error)
}

// TriggerOpts configures a Trigger.
type TriggerOpts struct {
	Feed       ChangeFeed
	Dispatcher Handler
	// Transcriber handles new voice messages. Optional.
	Transcriber Handler
	// Catchup, when set, is swept once on Run for messages created after Start.
	Catchup CatchupSource
	// Start bounds the catch-up sweep. Defaults to the time New is called.
	Start   time.Time
	Workers int
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// Trigger routes eligible message changes to transcription or reply
// generation on a bounded worker pool.
type Trigger struct {
	feed        ChangeFeed
	dispatcher  Handler
	transcriber Handler
	catchup     CatchupSource
	start       time.Time
	pool        *Pool
	metrics     *metrics.Metrics
	log         *zap.Logger
}

// NewTrigger returns a Trigger.
func NewTrigger(opts TriggerOpts) (*Trigger, error) {
	if opts.Feed == nil {
		return nil, fmt.Errorf("realtime: trigger: feed is required")
	}
	if opts.Dispatcher == nil {
		return nil, fmt.Errorf("realtime: trigger: dispatcher is required")
	}
	if opts.Start.IsZero() {
		opts.Start = time.Now().UTC()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Trigger{
		feed:        opts.Feed,
		dispatcher:  opts.Dispatcher,
		transcriber: opts.Transcriber,
		catchup:     opts.Catchup,
		start:       opts.Start,
		pool:        NewPool(opts.Workers, opts.Logger),
		metrics:     opts.Metrics,
		log:         opts.Logger,
	}, nil
}

// Run subscribes to the feed, sweeps messages missed before the subscription,
// and routes changes until ctx is cancelled. It waits for in-flight jobs
// before returning.
func (t *Trigger) Run(ctx context.Context) error {
	changes, err := t.feed.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("realtime: trigger: subscribe: %w", err)
	}
	defer t.pool.Wait()

	if t.catchup != nil {
		if err := t.Sweep(ctx); err != nil {
			t.log.Error("catch-up sweep failed", zap.Error(err))
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case c, ok := <-changes:
			if !ok {
				return nil
			}
			t.route(ctx, c)
		}
	}
}

// Sweep handles, synchronously, the user messages created after the start
// time that are still waiting: transcriptions first, then replies.
func (t *Trigger) Sweep(ctx context.Context) error {
	rows, err := t.catchup.UserMessagesCreatedAfter(ctx, t.start)
	if err != nil {
		return fmt.Errorf("realtime: sweep: %w", err)
	}
	var transcribe, reply []models.Message
	for _, m := range rows {
		c := Change{Type: ChangeInsert, Record: m}
		switch {
		case t.transcriber != nil && TranscriptionEligible(c):
			transcribe = append(transcribe, m)
		case AIEligible(c):
			reply = append(reply, m)
		}
	}
	t.log.Info("catch-up sweep",
		zap.Time("since", t.start),
		zap.Int("transcriptions", len(transcribe)),
		zap.Int("replies", len(reply)))

	for _, m := range transcribe {
		t.run(ctx, "transcribe", t.transcriber, m)
	}
	for _, m := range reply {
		t.run(ctx, "dispatch", t.dispatcher, m)
	}
	return nil
}

func (t *Trigger) route(ctx context.Context, c Change) {
	var (
		name string
		h    Handler
	)
	switch {
	case t.transcriber != nil && TranscriptionEligible(c):
		name, h = "transcribe", t.transcriber
	case AIEligible(c):
		name, h = "dispatch", t.dispatcher
	}
	t.metrics.FeedEvent(string(c.Type), h != nil)
	if h == nil {
		return
	}

	msg := c.Record
	t.log.Debug("eligible change",
		zap.String("type", string(c.Type)),
		zap.String("job", name),
		zap.String("message_id", msg.ID))
	// In-flight work outlives the subscription; model timeouts bound it.
	jobCtx := context.WithoutCancel(ctx)
	if err := t.pool.Submit(ctx, name, func() { t.run(jobCtx, name, h, msg) }); err != nil {
		t.log.Warn("job not admitted", zap.String("message_id", msg.ID), zap.Error(err))
	}
}

func (t *Trigger) run(ctx context.Context, name string, h Handler, msg models.Message) {
	if err := h.Handle(ctx, msg); err != nil {
		t.log.Error("job failed",
			zap.String("job", name),
			zap.String("message_id", msg.ID),
			zap.String("conversation_id", msg.ConversationID),
			zap.Error(err))
	}
}
