package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Skyhug-AI/skyhug-backend/internal/models"
	"go.uber.org/goleak"
)

// chanFeed is a ChangeFeed driven by the test.
type chanFeed struct {
	ch  chan Change
	err error
}

func (f *chanFeed) Subscribe(ctx context.Context) (<-chan Change, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ch, nil
}

type recorder struct {
	mu   sync.Mutex
	name string
	log  *[]string
	ids  []string
	err  error
}

func (r *recorder) Handle(_ context.Context, msg models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, msg.ID)
	if r.log != nil {
		*r.log = append(*r.log, r.name+":"+msg.ID)
	}
	return r.err
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

func TestTrigger_RoutesEligibleChanges(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	feed := &chanFeed{ch: make(chan Change, 8)}
	dispatch := &recorder{err: errors.New("logged, not fatal")}
	transcribe := &recorder{}
	trig, err := NewTrigger(TriggerOpts{Feed: feed, Dispatcher: dispatch, Transcriber: transcribe, Workers: 2})
	if err != nil {
		t.Fatal(err)
	}

	ready := userRow()
	started := userRow()
	started.ID, started.AIStarted = "m2", true
	voice := userRow()
	voice.ID, voice.TranscriptionStatus, voice.AudioPath = "m3", models.StatusPending, "u/a.webm"
	edited := userRow()
	now := time.Now()
	edited.ID, edited.EditedAt = "m4", &now

	feed.ch <- Change{Type: ChangeInsert, Record: ready}
	feed.ch <- Change{Type: ChangeInsert, Record: started}
	feed.ch <- Change{Type: ChangeInsert, Record: voice}
	feed.ch <- Change{Type: ChangeUpdate, Record: edited}
	feed.ch <- Change{Type: ChangeUpdate, Record: started}
	close(feed.ch)

	if err := trig.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	d := dispatch.got()
	if len(d) != 2 || !contains(d, "m1") || !contains(d, "m4") {
		t.Errorf("dispatched = %v, want m1 and m4", d)
	}
	if tr := transcribe.got(); len(tr) != 1 || tr[0] != "m3" {
		t.Errorf("transcribed = %v, want [m3]", tr)
	}
}

func TestTrigger_StopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	feed := &chanFeed{ch: make(chan Change)}
	trig, _ := NewTrigger(TriggerOpts{Feed: feed, Dispatcher: &recorder{}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- trig.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestTrigger_SubscribeError(t *testing.T) {
	trig, _ := NewTrigger(TriggerOpts{Feed: &chanFeed{err: errors.New("refused")}, Dispatcher: &recorder{}})
	if err := trig.Run(context.Background()); err == nil {
		t.Error("expected subscribe error")
	}
}

func TestTrigger_SweepTranscriptionsFirst(t *testing.T) {
	s := openRealtimeTestStore(t)
	start := time.Now().UTC().Add(-time.Second)
	ctx := context.Background()

	reply := insertUserMessage(t, s, "hello")
	voice := models.Message{
		ConversationID:      reply.ConversationID,
		SenderRole:          models.RoleUser,
		AudioPath:           "u/a.webm",
		TranscriptionStatus: models.StatusPending,
		AIStatus:            models.StatusPending,
	}
	if err := s.InsertMessage(ctx, &voice); err != nil {
		t.Fatal(err)
	}
	done := insertUserMessage(t, s, "answered")
	if err := s.SetAIStatus(ctx, done.ID, models.StatusDone); err != nil {
		t.Fatal(err)
	}

	var order []string
	dispatch := &recorder{name: "dispatch", log: &order}
	transcribe := &recorder{name: "transcribe", log: &order}
	trig, _ := NewTrigger(TriggerOpts{
		Feed:        &chanFeed{},
		Dispatcher:  dispatch,
		Transcriber: transcribe,
		Catchup:     s,
		Start:       start,
	})

	if err := trig.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	want := []string{"transcribe:" + voice.ID, "dispatch:" + reply.ID}
	if len(order) != 2 || order[0] != want[0] || order[1] != want[1] {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestTrigger_SweepSkipsRowsBeforeStart(t *testing.T) {
	s := openRealtimeTestStore(t)
	insertUserMessage(t, s, "old")
	time.Sleep(5 * time.Millisecond)

	dispatch := &recorder{}
	trig, _ := NewTrigger(TriggerOpts{Feed: &chanFeed{}, Dispatcher: dispatch, Catchup: s, Start: time.Now().UTC()})
	if err := trig.Sweep(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := dispatch.got(); len(got) != 0 {
		t.Errorf("dispatched = %v, want none", got)
	}
}

func TestNewTrigger_Validation(t *testing.T) {
	if _, err := NewTrigger(TriggerOpts{}); err == nil {
		t.Error("expected error without feed")
	}
	if _, err := NewTrigger(TriggerOpts{Feed: &chanFeed{}}); err == nil {
		t.Error("expected error without dispatcher")
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
