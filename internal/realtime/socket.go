package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Socket feed defaults.
const (
	DefaultChannel           = "messages_changes"
	DefaultHeartbeatInterval = 30 * time.Second
	maxBackoff               = 30 * time.Second
)

// SocketFeedOpts configures a SocketFeed.
type SocketFeedOpts struct {
	// URL is the realtime websocket endpoint, e.g.
	// wss://<project>.supabase.co/realtime/v1/websocket.
	URL     string
	APIKey  string
	Channel string
	// Heartbeat defaults to DefaultHeartbeatInterval.
	Heartbeat time.Duration
	// Backoff is the first reconnect delay; it doubles up to 30s.
	Backoff time.Duration
	Dialer  *websocket.Dialer
	OnState StateFunc
	Logger  *zap.Logger
}

// SocketFeed subscribes to postgres changes on the messages table over a
// Phoenix-protocol realtime socket and reconnects when the socket drops.
type SocketFeed struct {
	url       string
	apiKey    string
	topic     string
	heartbeat time.Duration
	backoff   time.Duration
	dialer    *websocket.Dialer
	onState   StateFunc
	log       *zap.Logger
	ref       atomic.Int64
}

var _ ChangeFeed = (*SocketFeed)(nil)

// NewSocketFeed returns a SocketFeed.
func NewSocketFeed(opts SocketFeedOpts) (*SocketFeed, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("realtime: socket feed: url is required")
	}
	if opts.Channel == "" {
		opts.Channel = DefaultChannel
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeatInterval
	}
	if opts.Backoff <= 0 {
		opts.Backoff = time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	u, err := socketURL(opts.URL, opts.APIKey)
	if err != nil {
		return nil, err
	}
	return &SocketFeed{
		url:       u,
		apiKey:    opts.APIKey,
		topic:     "realtime:" + opts.Channel,
		heartbeat: opts.Heartbeat,
		backoff:   opts.Backoff,
		dialer:    opts.Dialer,
		onState:   opts.OnState,
		log:       opts.Logger,
	}, nil
}

func socketURL(raw, apiKey string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("realtime: socket feed: parse url: %w", err)
	}
	q := u.Query()
	if apiKey != "" && q.Get("apikey") == "" {
		q.Set("apikey", apiKey)
	}
	if q.Get("vsn") == "" {
		q.Set("vsn", "1.0.0")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Subscribe connects in the background and keeps reconnecting until ctx is
// cancelled. The channel closes after the last session ends.
func (f *SocketFeed) Subscribe(ctx context.Context) (<-chan Change, error) {
	ch := make(chan Change, 64)
	go func() {
		defer close(ch)
		delay := f.backoff
		for {
			connected, err := f.session(ctx, ch)
			f.setState(StateDisconnected)
			if ctx.Err() != nil {
				return
			}
			if connected {
				delay = f.backoff
			}
			f.log.Warn("realtime socket closed, reconnecting", zap.Error(err), zap.Duration("backoff", delay))
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > maxBackoff {
				delay = maxBackoff
			}
		}
	}()
	return ch, nil
}

// frame is one Phoenix channel message.
type frame struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     *string         `json:"ref"`
	JoinRef *string         `json:"join_ref,omitempty"`
}

type replyPayload struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

type changePayload struct {
	Data struct {
		Type   string          `json:"type"`
		Table  string          `json:"table"`
		Record json.RawMessage `json:"record"`
	} `json:"data"`
}

// session runs one connection. It reports whether the socket was dialed.
func (f *SocketFeed) session(ctx context.Context, ch chan<- Change) (bool, error) {
	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return false, fmt.Errorf("realtime: dial: %w", err)
	}
	defer conn.Close()

	var writeMu sync.Mutex
	send := func(fr frame) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(fr)
	}

	joinRef := f.nextRef()
	if err := send(f.joinFrame(joinRef)); err != nil {
		return true, fmt.Errorf("realtime: join: %w", err)
	}
	f.setState(StateSubscribing)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(f.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				writeMu.Lock()
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"),
					time.Now().Add(2*time.Second))
				writeMu.Unlock()
				_ = conn.Close()
				return
			case <-ticker.C:
				ref := f.nextRef()
				if err := send(frame{Topic: "phoenix", Event: "heartbeat", Payload: json.RawMessage(`{}`), Ref: &ref}); err != nil {
					f.log.Warn("heartbeat failed", zap.Error(err))
					_ = conn.Close()
					return
				}
			}
		}
	}()
	defer wg.Wait()
	defer close(stop)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(2*f.heartbeat + 10*time.Second))
		var fr frame
		if err := conn.ReadJSON(&fr); err != nil {
			if ctx.Err() != nil {
				return true, ctx.Err()
			}
			return true, fmt.Errorf("realtime: read: %w", err)
		}
		if err := f.handle(ctx, fr, joinRef, ch); err != nil {
			return true, err
		}
	}
}

func (f *SocketFeed) handle(ctx context.Context, fr frame, joinRef string, ch chan<- Change) error {
	switch fr.Event {
	case "phx_reply":
		if fr.Topic != f.topic || fr.Ref == nil || *fr.Ref != joinRef {
			return nil
		}
		var reply replyPayload
		if err := json.Unmarshal(fr.Payload, &reply); err != nil {
			return fmt.Errorf("realtime: decode join reply: %w", err)
		}
		if reply.Status == "ok" {
			f.setState(StateSubscribed)
		} else {
			f.log.Warn("subscription not confirmed",
				zap.String("status", reply.Status),
				zap.ByteString("response", reply.Response))
		}
	case "postgres_changes":
		c, ok, err := decodeChange(fr.Payload)
		if err != nil {
			f.log.Warn("undecodable change", zap.Error(err))
			return nil
		}
		if !ok {
			return nil
		}
		select {
		case ch <- c:
		case <-ctx.Done():
			return ctx.Err()
		}
	case "phx_error", "phx_close":
		if fr.Topic == f.topic {
			return fmt.Errorf("realtime: channel %s: %s", f.topic, fr.Event)
		}
	case "system":
		f.log.Debug("realtime system message", zap.ByteString("payload", fr.Payload))
	}
	return nil
}

func (f *SocketFeed) joinFrame(ref string) frame {
	payload := map[string]any{
		"config": map[string]any{
			"broadcast": map[string]any{"self": false},
			"presence":  map[string]any{"key": ""},
			"postgres_changes": []map[string]string{
				{"event": string(ChangeInsert), "schema": "public", "table": "messages"},
				{"event": string(ChangeUpdate), "schema": "public", "table": "messages"},
			},
		},
	}
	if f.apiKey != "" {
		payload["access_token"] = f.apiKey
	}
	b, _ := json.Marshal(payload)
	return frame{Topic: f.topic, Event: "phx_join", Payload: b, Ref: &ref, JoinRef: &ref}
}

func (f *SocketFeed) nextRef() string {
	return strconv.FormatInt(f.ref.Add(1), 10)
}

func (f *SocketFeed) setState(s State) {
	f.log.Debug("feed state", zap.String("feed", "socket"), zap.Stringer("state", s))
	if f.onState != nil {
		f.onState(s)
	}
}

// decodeChange extracts a message change from a postgres_changes payload.
// Changes to other tables or of other types report ok=false.
func decodeChange(raw json.RawMessage) (Change, bool, error) {
	var p changePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Change{}, false, err
	}
	typ := ChangeType(p.Data.Type)
	if typ != ChangeInsert && typ != ChangeUpdate {
		return Change{}, false, nil
	}
	if p.Data.Table != "" && p.Data.Table != "messages" {
		return Change{}, false, nil
	}
	if len(p.Data.Record) == 0 {
		return Change{}, false, errors.New("change without record")
	}
	m, err := decodeRecord(p.Data.Record)
	if err != nil {
		return Change{}, false, err
	}
	return Change{Type: typ, Record: m}, true, nil
}
