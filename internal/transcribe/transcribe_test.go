package transcribe

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Skyhug-AI/skyhug-backend/internal/apperr"
	"github.com/Skyhug-AI/skyhug-backend/internal/db"
	"github.com/Skyhug-AI/skyhug-backend/internal/llm/llmtest"
	"github.com/Skyhug-AI/skyhug-backend/internal/models"
	"github.com/Skyhug-AI/skyhug-backend/internal/store"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTranscribeTestStore(t *testing.T) *store.Store {
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

// newStorageServer serves objects from a map and records the auth header.
func newStorageServer(t *testing.T, objects map[string]string) (*httptest.Server, *string) {
	t.Helper()
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		body, ok := objects[r.URL.Path]
		if !ok {
			http.Error(w, "missing", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "audio/webm")
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &auth
}

type recordingHandler struct {
	mu   sync.Mutex
	msgs []models.Message
}

func (r *recordingHandler) Handle(_ context.Context, msg models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func pendingVoiceMessage(t *testing.T, s *store.Store, audioPath string) models.Message {
	t.Helper()
	conv := models.Conversation{VoiceEnabled: true}
	if err := s.CreateConversation(context.Background(), &conv); err != nil {
		t.Fatal(err)
	}
	msg := models.Message{
		ConversationID:      conv.ID,
		SenderRole:          models.RoleUser,
		AudioPath:           audioPath,
		TranscriptionStatus: models.StatusPending,
		AIStatus:            models.StatusPending,
	}
	if err := s.InsertMessage(context.Background(), &msg); err != nil {
		t.Fatal(err)
	}
	return msg
}

func TestStorageSource_ObjectURL(t *testing.T) {
	src, err := NewStorageSource(StorageOpts{BaseURL: "https://proj.supabase.co/"})
	if err != nil {
		t.Fatal(err)
	}
	got := src.ObjectURL("/user 1/clip.webm")
	want := "https://proj.supabase.co/storage/v1/object/authenticated/raw-audio/user%201/clip.webm"
	if got != want {
		t.Errorf("ObjectURL = %q, want %q", got, want)
	}
	if _, err := NewStorageSource(StorageOpts{}); err == nil {
		t.Error("expected error without base url")
	}
}

func TestStorageSource_Fetch(t *testing.T) {
	srv, auth := newStorageServer(t, map[string]string{
		"/storage/v1/object/authenticated/raw-audio/u1/a.webm": "audio-bytes",
	})
	src, _ := NewStorageSource(StorageOpts{BaseURL: srv.URL, ServiceKey: "svc"})

	body, err := src.Fetch(context.Background(), "u1/a.webm")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer body.Close()
	b, _ := io.ReadAll(body)
	if string(b) != "audio-bytes" {
		t.Errorf("body = %q", b)
	}
	if *auth != "Bearer svc" {
		t.Errorf("Authorization = %q, want Bearer svc", *auth)
	}

	_, err = src.Fetch(context.Background(), "u1/missing.webm")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing object err = %v, want ErrNotFound", err)
	}
}

func TestHandle_TranscribesAndHandsOff(t *testing.T) {
	s := openTranscribeTestStore(t)
	srv, _ := newStorageServer(t, map[string]string{
		"/storage/v1/object/authenticated/raw-audio/u1/a.webm": "  I feel tired today  ",
	})
	src, _ := NewStorageSource(StorageOpts{BaseURL: srv.URL})
	next := &recordingHandler{}
	svc, err := New(Opts{Store: s, Audio: src, Transcriber: &llmtest.Fake{}, Next: next})
	if err != nil {
		t.Fatal(err)
	}
	msg := pendingVoiceMessage(t, s, "u1/a.webm")

	if err := svc.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	got, _ := s.GetMessage(context.Background(), msg.ID)
	if got.TranscriptionStatus != models.StatusDone {
		t.Errorf("TranscriptionStatus = %q, want done", got.TranscriptionStatus)
	}
	if got.Transcription == nil || *got.Transcription != "I feel tired today" {
		t.Errorf("Transcription = %v", got.Transcription)
	}
	if len(next.msgs) != 1 || next.msgs[0].Text() != "I feel tired today" {
		t.Fatalf("handed off = %+v", next.msgs)
	}
}

func TestHandle_DownloadFailureMarksError(t *testing.T) {
	s := openTranscribeTestStore(t)
	srv, _ := newStorageServer(t, nil)
	src, _ := NewStorageSource(StorageOpts{BaseURL: srv.URL})
	next := &recordingHandler{}
	svc, _ := New(Opts{Store: s, Audio: src, Transcriber: &llmtest.Fake{}, Next: next})
	msg := pendingVoiceMessage(t, s, "u1/gone.webm")

	if err := svc.Handle(context.Background(), msg); err == nil {
		t.Fatal("expected error")
	}
	got, _ := s.GetMessage(context.Background(), msg.ID)
	if got.TranscriptionStatus != models.StatusError {
		t.Errorf("TranscriptionStatus = %q, want error", got.TranscriptionStatus)
	}
	if len(next.msgs) != 0 {
		t.Error("failed message was handed off")
	}
}

func TestHandle_TranscriberFailureMarksError(t *testing.T) {
	s := openTranscribeTestStore(t)
	srv, _ := newStorageServer(t, map[string]string{
		"/storage/v1/object/authenticated/raw-audio/u1/a.webm": "x",
	})
	src, _ := NewStorageSource(StorageOpts{BaseURL: srv.URL})
	svc, _ := New(Opts{Store: s, Audio: src, Transcriber: &llmtest.Fake{Err: errors.New("whisper down")}})
	msg := pendingVoiceMessage(t, s, "u1/a.webm")

	err := svc.Handle(context.Background(), msg)
	if err == nil || !strings.Contains(err.Error(), "whisper down") {
		t.Fatalf("err = %v", err)
	}
	got, _ := s.GetMessage(context.Background(), msg.ID)
	if got.TranscriptionStatus != models.StatusError {
		t.Errorf("TranscriptionStatus = %q, want error", got.TranscriptionStatus)
	}
}

func TestHandle_NoAudioPathIgnored(t *testing.T) {
	s := openTranscribeTestStore(t)
	svc, _ := New(Opts{Store: s, Audio: &StorageSource{}, Transcriber: &llmtest.Fake{}})
	if err := svc.Handle(context.Background(), models.Message{ID: "m1"}); err != nil {
		t.Errorf("Handle: %v", err)
	}
}

func TestHandle_StartedMessageNotHandedOff(t *testing.T) {
	s := openTranscribeTestStore(t)
	srv, _ := newStorageServer(t, map[string]string{
		"/storage/v1/object/authenticated/raw-audio/u1/a.webm": "hello",
	})
	src, _ := NewStorageSource(StorageOpts{BaseURL: srv.URL})
	next := &recordingHandler{}
	svc, _ := New(Opts{Store: s, Audio: src, Transcriber: &llmtest.Fake{}, Next: next})
	msg := pendingVoiceMessage(t, s, "u1/a.webm")
	msg.AIStarted = true

	if err := svc.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(next.msgs) != 0 {
		t.Error("started message was handed off")
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Opts{}); err == nil {
		t.Error("expected error without store")
	}
}
