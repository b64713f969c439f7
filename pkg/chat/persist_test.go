package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/robochat-dev/robochat/pkg/backend"
	"github.com/robochat-dev/robochat/pkg/session"
	"github.com/robochat-dev/robochat/pkg/task"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	store, err := session.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	mock := &backend.Mock{Responses: []string{"[10, 20, 30, 40]"}}
	conv := New(mock, WithID("roundtrip"), WithDefaultTask(task.Pointing))
	conv.SetImage(backend.Image{URL: "https://example.com/scene.jpg", MIME: "image/jpeg"})
	if _, err := conv.Ask(ctx, "where is the cup?", task.Grounding); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if _, err := conv.Ask(ctx, "thanks", task.General); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if err := conv.Save(ctx, store); err != nil {
		t.Fatalf("Save: %v", err)
	}

	restored := New(&backend.Mock{})
	if err := restored.Load(ctx, store, "roundtrip"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if restored.ID() != "roundtrip" {
		t.Fatalf("restored ID = %q", restored.ID())
	}

	want := conv.History()
	got := restored.History()
	if len(got) != len(want) {
		t.Fatalf("restored %d turns, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Role != want[i].Role || got[i].Content != want[i].Content || got[i].Task != want[i].Task {
			t.Fatalf("turn %d differs: %+v vs %+v", i, got[i], want[i])
		}
	}
	// Geometry is rebuilt from the raw answer on load.
	if len(got[1].Parsed.Boxes) != 1 {
		t.Fatalf("restored assistant turn lost its boxes: %+v", got[1].Parsed)
	}
	if !restored.HasImage() {
		t.Fatal("restored conversation lost the pinned image")
	}
	if restored.defTask != task.Pointing {
		t.Fatalf("restored default task = %v, want pointing", restored.defTask)
	}
}

func TestLoadRejectedDuringAsk(t *testing.T) {
	store, err := session.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	defer func() { _ = store.Close() }()

	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	mock := &backend.Mock{ChatFunc: func(ctx context.Context, _ *backend.Request) (*backend.Response, error) {
		once.Do(func() { close(started) })
		<-release
		return &backend.Response{Text: "done"}, nil
	}}
	conv := New(mock)

	errCh := make(chan error, 1)
	go func() {
		_, err := conv.Ask(context.Background(), "slow question", task.General)
		errCh <- err
	}()
	<-started

	if err := conv.Load(context.Background(), store, "whatever"); !errors.Is(err, ErrBusy) {
		t.Fatalf("Load during ask = %v, want ErrBusy", err)
	}

	close(release)
	if err := <-errCh; err != nil {
		t.Fatalf("ask: %v", err)
	}
}

func TestLoadMissingSession(t *testing.T) {
	store, err := session.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	defer func() { _ = store.Close() }()

	conv := New(&backend.Mock{})
	err = conv.Load(context.Background(), store, "nope")
	if !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("Load missing = %v", err)
	}
}

func TestLoadInvalidRecordLeavesStateUntouched(t *testing.T) {
	store, err := session.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	bad := &session.Record{
		SessionID: "bad",
		Messages: []session.Message{
			{Role: "narrator", Content: "once upon a time", Timestamp: time.Now().UTC()},
		},
		Metadata: session.Metadata{CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()},
	}
	if err := store.Save(ctx, bad); err != nil {
		t.Fatalf("Save: %v", err)
	}

	mock := &backend.Mock{Responses: []string{"fine"}}
	conv := New(mock, WithID("keep"))
	if _, err := conv.Ask(ctx, "hello", task.General); err != nil {
		t.Fatalf("Ask: %v", err)
	}

	loadErr := conv.Load(ctx, store, "bad")
	var formatErr *FormatError
	if !errors.As(loadErr, &formatErr) {
		t.Fatalf("Load = %v, want FormatError", loadErr)
	}
	if conv.ID() != "keep" || len(conv.History()) != 2 {
		t.Fatal("failed load modified conversation state")
	}
}

func TestLoadRejectsUnknownTask(t *testing.T) {
	store, err := session.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	rec := &session.Record{
		SessionID: "weird",
		Messages: []session.Message{
			{Role: session.RoleUser, Content: "hi", Task: "telepathy", Timestamp: time.Now().UTC()},
		},
		Metadata: session.Metadata{CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()},
	}
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	conv := New(&backend.Mock{})
	var formatErr *FormatError
	if err := conv.Load(ctx, store, "weird"); !errors.As(err, &formatErr) {
		t.Fatalf("Load = %v, want FormatError", err)
	}
}
