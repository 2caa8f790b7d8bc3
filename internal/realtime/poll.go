package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/Skyhug-AI/skyhug-backend/internal/models"
	"go.uber.org/zap"
)

// Poll feed defaults.
const (
	DefaultPollInterval = time.Second
	DefaultPollBatch    = 200
)

// ChangeSource lists messages changed after a point in time.
type ChangeSource interface {
	MessagesChangedSince(ctx context.Context, since time.Time, limit int) ([]models.Message, error)
}

// PollFeedOpts configures a PollFeed.
type PollFeedOpts struct {
	Source   ChangeSource
	Interval time.Duration
	Batch    int
	// Since is the initial watermark. Defaults to the time Subscribe is called.
	Since   time.Time
	OnState StateFunc
	Logger  *zap.Logger
}

// PollFeed detects changes by polling messages.updated_at against a
// watermark. A row created after the current watermark, or created at it and
// not updated since, is reported as an INSERT; any other changed row as an
// UPDATE.
type PollFeed struct {
	source   ChangeSource
	interval time.Duration
	batch    int
	since    time.Time
	onState  StateFunc
	log      *zap.Logger
}

var _ ChangeFeed = (*PollFeed)(nil)

// NewPollFeed returns a PollFeed.
func NewPollFeed(opts PollFeedOpts) (*PollFeed, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("realtime: poll feed: source is required")
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultPollInterval
	}
	if opts.Batch <= 0 {
		opts.Batch = DefaultPollBatch
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &PollFeed{
		source:   opts.Source,
		interval: opts.Interval,
		batch:    opts.Batch,
		since:    opts.Since,
		onState:  opts.OnState,
		log:      opts.Logger,
	}, nil
}

// Subscribe starts polling. The channel closes when ctx is cancelled.
func (f *PollFeed) Subscribe(ctx context.Context) (<-chan Change, error) {
	watermark := Watermark{At: f.since}
	if watermark.At.IsZero() {
		watermark.At = time.Now().UTC()
	}
	f.setState(StateSubscribing)

	ch := make(chan Change, 64)
	go func() {
		defer close(ch)
		defer f.setState(StateDisconnected)

		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()
		subscribed := false

		for {
			changes, next, err := f.Poll(ctx, watermark)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				f.log.Warn("poll failed", zap.Error(err))
			} else {
				if !subscribed {
					subscribed = true
					f.setState(StateSubscribed)
				}
				watermark = next
				for _, c := range changes {
					select {
					case ch <- c:
					case <-ctx.Done():
						return
					}
				}
				// A full batch means more rows are waiting.
				if len(changes) >= f.batch {
					continue
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return ch, nil
}

// Watermark is the poll cursor: the newest updated_at delivered and the ids
// already delivered at exactly that instant.
type Watermark struct {
	At   time.Time
	seen map[string]struct{}
}

func (w Watermark) delivered(m models.Message) bool {
	if !m.UpdatedAt.Equal(w.At) {
		return false
	}
	_, ok := w.seen[m.ID]
	return ok
}

// Poll runs one detection cycle and returns the changes at or after the
// watermark that were not delivered yet, together with the advanced
// watermark. Rows sharing the watermark timestamp are delivered once each.
func (f *PollFeed) Poll(ctx context.Context, wm Watermark) ([]Change, Watermark, error) {
	rows, err := f.source.MessagesChangedSince(ctx, wm.At, f.batch+len(wm.seen))
	if err != nil {
		return nil, wm, fmt.Errorf("realtime: poll feed: %w", err)
	}
	next := Watermark{At: wm.At, seen: make(map[string]struct{}, len(wm.seen))}
	for id := range wm.seen {
		next.seen[id] = struct{}{}
	}
	changes := make([]Change, 0, len(rows))
	for _, m := range rows {
		if wm.delivered(m) {
			continue
		}
		typ := ChangeUpdate
		if m.CreatedAt.After(wm.At) || (m.CreatedAt.Equal(wm.At) && !m.UpdatedAt.After(m.CreatedAt)) {
			typ = ChangeInsert
		}
		changes = append(changes, Change{Type: typ, Record: m})
		if m.UpdatedAt.After(next.At) {
			next.At = m.UpdatedAt
			next.seen = make(map[string]struct{})
		}
		if m.UpdatedAt.Equal(next.At) {
			next.seen[m.ID] = struct{}{}
		}
	}
	return changes, next, nil
}

func (f *PollFeed) setState(s State) {
	f.log.Debug("feed state", zap.String("feed", "poll"), zap.Stringer("state", s))
	if f.onState != nil {
		f.onState(s)
	}
}
