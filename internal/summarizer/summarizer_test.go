package summarizer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Skyhug-AI/skyhug-backend/internal/db"
	"github.com/Skyhug-AI/skyhug-backend/internal/llm"
	"github.com/Skyhug-AI/skyhug-backend/internal/llm/llmtest"
	"github.com/Skyhug-AI/skyhug-backend/internal/models"
	"github.com/Skyhug-AI/skyhug-backend/internal/store"
	"go.uber.org/goleak"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openSummarizerTestStore(t *testing.T) *store.Store {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, _ := gdb.DB()
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	s, err := store.New(gdb)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// seedConversation creates a conversation with the given number of
// user/assistant exchanges.
func seedConversation(t *testing.T, s *store.Store, exchanges int) string {
	t.Helper()
	ctx := context.Background()
	conv := models.Conversation{}
	if err := s.CreateConversation(ctx, &conv); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < exchanges; i++ {
		said := "I had a rough day at work"
		if err := s.InsertMessage(ctx, &models.Message{ConversationID: conv.ID, SenderRole: models.RoleUser, Transcription: &said}); err != nil {
			t.Fatal(err)
		}
		if err := s.InsertMessage(ctx, &models.Message{ConversationID: conv.ID, SenderRole: models.RoleAssistant, AssistantText: "Tell me more."}); err != nil {
			t.Fatal(err)
		}
	}
	return conv.ID
}

func backdate(t *testing.T, s *store.Store, convID string, at time.Time) {
	t.Helper()
	if err := s.DB().Model(&models.Conversation{}).Where("id = ?", convID).
		UpdateColumn("updated_at", at.UTC()).Error; err != nil {
		t.Fatal(err)
	}
}

func newService(t *testing.T, s Store, fake *llmtest.Fake, now time.Time) *Service {
	t.Helper()
	svc, err := New(Opts{Store: s, Completer: fake, Model: "fast", Now: func() time.Time { return now }})
	if err != nil {
		t.Fatal(err)
	}
	return svc
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Opts{}); err == nil {
		t.Error("expected error without store")
	}
	if _, err := New(Opts{Store: openSummarizerTestStore(t)}); err == nil {
		t.Error("expected error without completer")
	}
}

func TestCleanPhrase(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"Work stress and burnout.", "Work stress and burnout"},
		{"  the breakup with partner!  ", "breakup with partner"},
		{"A new job search;", "new job search"},
		{"An anxious week?!", "anxious week"},
		{"\"Sleep problems\"", "Sleep problems"},
		{"Theater auditions", "Theater auditions"},
		{"...", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CleanPhrase(tt.raw); got != tt.want {
			t.Errorf("CleanPhrase(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestSummarizeAndStore_WritesPhrase(t *testing.T) {
	s := openSummarizerTestStore(t)
	convID := seedConversation(t, s, 4)
	fake := &llmtest.Fake{Replies: []llm.Reply{{Kind: llm.ReplyText, Text: "Work stress."}}}
	svc := newService(t, s, fake, time.Now())

	if err := svc.SummarizeAndStore(context.Background(), convID); err != nil {
		t.Fatalf("SummarizeAndStore: %v", err)
	}
	conv, err := s.GetConversation(context.Background(), convID)
	if err != nil {
		t.Fatal(err)
	}
	if conv.MemorySummary != "Work stress" {
		t.Errorf("MemorySummary = %q, want %q", conv.MemorySummary, "Work stress")
	}

	calls := fake.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	req := calls[0]
	if req.Model != "fast" || req.MaxTokens != 30 || req.Temperature != 0.5 {
		t.Errorf("request = %s/%d/%v, want fast/30/0.5", req.Model, req.MaxTokens, req.Temperature)
	}
	if len(req.Messages) != 9 {
		t.Fatalf("messages = %d, want instruction + 8 turns", len(req.Messages))
	}
	if req.Messages[0].Role != llm.RoleSystem || req.Messages[0].Content != instruction {
		t.Errorf("first message = %+v", req.Messages[0])
	}
	if req.Messages[1].Role != llm.RoleUser || req.Messages[2].Role != llm.RoleAssistant {
		t.Errorf("turn roles = %s, %s", req.Messages[1].Role, req.Messages[2].Role)
	}
}

func TestSummarizeAndStore_TooFewReplies(t *testing.T) {
	s := openSummarizerTestStore(t)
	convID := seedConversation(t, s, 3)
	fake := &llmtest.Fake{}
	svc := newService(t, s, fake, time.Now())

	if err := svc.SummarizeAndStore(context.Background(), convID); err != nil {
		t.Fatalf("SummarizeAndStore: %v", err)
	}
	if len(fake.Calls()) != 0 {
		t.Error("model called for a short conversation")
	}
}

func TestSummarizeAndStore_EmptyReplyNotWritten(t *testing.T) {
	s := openSummarizerTestStore(t)
	convID := seedConversation(t, s, 4)
	if err := s.SetMemorySummary(context.Background(), convID, "old topic"); err != nil {
		t.Fatal(err)
	}
	fake := &llmtest.Fake{Replies: []llm.Reply{{Kind: llm.ReplyText, Text: " . "}}}
	svc := newService(t, s, fake, time.Now())

	if err := svc.SummarizeAndStore(context.Background(), convID); err != nil {
		t.Fatalf("SummarizeAndStore: %v", err)
	}
	conv, _ := s.GetConversation(context.Background(), convID)
	if conv.MemorySummary != "old topic" {
		t.Errorf("MemorySummary = %q, want unchanged", conv.MemorySummary)
	}
}

func TestSummarizeAndStore_UpstreamError(t *testing.T) {
	s := openSummarizerTestStore(t)
	convID := seedConversation(t, s, 4)
	fake := &llmtest.Fake{Err: errors.New("rate limited")}
	svc := newService(t, s, fake, time.Now())

	if err := svc.SummarizeAndStore(context.Background(), convID); err == nil {
		t.Fatal("expected error")
	}
}

func TestCloseInactive_StrictCutoff(t *testing.T) {
	s := openSummarizerTestStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stale := seedConversation(t, s, 4)
	boundary := seedConversation(t, s, 4)
	fresh := seedConversation(t, s, 1)
	backdate(t, s, stale, now.Add(-2*time.Hour))
	backdate(t, s, boundary, now.Add(-time.Hour))
	backdate(t, s, fresh, now.Add(-10*time.Minute))

	fake := &llmtest.Fake{Default: llm.Reply{Kind: llm.ReplyText, Text: "rough day at work"}}
	svc := newService(t, s, fake, now)

	if err := svc.CloseInactive(context.Background(), time.Hour); err != nil {
		t.Fatalf("CloseInactive: %v", err)
	}

	want := map[string]bool{stale: true, boundary: false, fresh: false}
	for id, ended := range want {
		conv, err := s.GetConversation(context.Background(), id)
		if err != nil {
			t.Fatal(err)
		}
		if conv.Ended != ended {
			t.Errorf("conversation %s ended = %v, want %v", id, conv.Ended, ended)
		}
	}
	conv, _ := s.GetConversation(context.Background(), stale)
	if conv.MemorySummary != "rough day at work" {
		t.Errorf("stale MemorySummary = %q", conv.MemorySummary)
	}
}

func TestCloseInactive_SummaryFailureStillEnds(t *testing.T) {
	s := openSummarizerTestStore(t)
	now := time.Now().UTC()
	convID := seedConversation(t, s, 4)
	backdate(t, s, convID, now.Add(-3*time.Hour))
	svc := newService(t, s, &llmtest.Fake{Err: errors.New("boom")}, now)

	if err := svc.CloseInactive(context.Background(), time.Hour); err != nil {
		t.Fatalf("CloseInactive: %v", err)
	}
	conv, _ := s.GetConversation(context.Background(), convID)
	if !conv.Ended {
		t.Error("conversation not ended after summary failure")
	}
}

// panicOnceStore panics on its first inactive lookup and counts every call.
type panicOnceStore struct {
	Store
	calls atomic.Int32
}

func (p *panicOnceStore) InactiveConversations(ctx context.Context, cutoff time.Time) ([]models.Conversation, error) {
	if p.calls.Add(1) == 1 {
		panic("store exploded")
	}
	return nil, nil
}

func TestSchedule_SurvivesPanicAndStops(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	st := &panicOnceStore{}
	svc := newService(t, st, &llmtest.Fake{}, time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	var schedErr error
	go func() {
		defer wg.Done()
		schedErr = svc.Schedule(ctx, time.Second)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for st.calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	wg.Wait()

	if schedErr != nil {
		t.Fatalf("Schedule: %v", schedErr)
	}
	// The first run panics; later ticks must keep running the job.
	if n := st.calls.Load(); n < 3 {
		t.Errorf("cleanup runs = %d, want at least 3 after a panic", n)
	}
}

func TestSchedule_RejectsShortInterval(t *testing.T) {
	svc := newService(t, openSummarizerTestStore(t), &llmtest.Fake{}, time.Now())
	if err := svc.Schedule(context.Background(), 10*time.Millisecond); err == nil {
		t.Error("expected error for sub-second interval")
	}
}
