package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testRecord(id string, turns int, updated time.Time) *Record {
	rec := &Record{
		SessionID: id,
		Metadata:  Metadata{CreatedAt: updated.Add(-time.Hour), UpdatedAt: updated},
	}
	for i := 0; i < turns; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		rec.Messages = append(rec.Messages, Message{
			Role:      role,
			Content:   "message",
			Task:      "general",
			Timestamp: updated,
		})
	}
	return rec
}

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	rec := testRecord("sess-1", 4, now)
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.SessionID != "sess-1" || len(got.Messages) != 4 {
		t.Fatalf("loaded record = %+v", got)
	}
	if !got.Metadata.UpdatedAt.Equal(now) {
		t.Fatalf("UpdatedAt = %v, want %v", got.Metadata.UpdatedAt, now)
	}
}

func TestFileStoreNotFound(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	if _, err := store.Load(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Load missing = %v, want ErrSessionNotFound", err)
	}
	if err := store.Delete(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Delete missing = %v, want ErrSessionNotFound", err)
	}
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	for _, id := range []string{"../escape", "a/b", `a\b`, ""} {
		if err := store.Save(ctx, testRecord(id, 0, time.Now())); err == nil {
			t.Fatalf("Save accepted unsafe ID %q", id)
		}
		if _, err := store.Load(ctx, id); err == nil {
			t.Fatalf("Load accepted unsafe ID %q", id)
		}
	}
}

func TestFileStoreRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	body := `{"sessionId": "drifted", "messages": [], "metadata": {}, "extra": true}`
	if err := os.WriteFile(filepath.Join(dir, "drifted.json"), []byte(body), 0600); err != nil {
		t.Fatalf("writing record: %v", err)
	}
	if _, err := store.Load(ctx, "drifted"); !errors.Is(err, ErrMalformedRecord) {
		t.Fatalf("Load = %v, want ErrMalformedRecord", err)
	}
}

func TestFileStoreList(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	now := time.Now().UTC()
	for i, id := range []string{"old", "mid", "new"} {
		rec := testRecord(id, 2, now.Add(time.Duration(i)*time.Hour))
		if err := store.Save(ctx, rec); err != nil {
			t.Fatalf("Save %s: %v", id, err)
		}
	}

	summaries, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(summaries) != 3 {
		t.Fatalf("listed %d sessions, want 3", len(summaries))
	}
	if summaries[0].SessionID != "new" || summaries[2].SessionID != "old" {
		t.Fatalf("unexpected order: %+v", summaries)
	}
	if summaries[0].Messages != 2 {
		t.Fatalf("message count = %d", summaries[0].Messages)
	}
}

func TestFileStoreClosed(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	_ = store.Close()
	ctx := context.Background()

	if err := store.Save(ctx, testRecord("x", 0, time.Now())); !errors.Is(err, ErrStorageClosed) {
		t.Fatalf("Save after close = %v", err)
	}
	if _, err := store.Load(ctx, "x"); !errors.Is(err, ErrStorageClosed) {
		t.Fatalf("Load after close = %v", err)
	}
}

func TestRecordValidate(t *testing.T) {
	rec := testRecord("ok", 2, time.Now())
	if err := rec.Validate(); err != nil {
		t.Fatalf("valid record rejected: %v", err)
	}

	bad := testRecord("", 0, time.Now())
	if err := bad.Validate(); err == nil {
		t.Fatal("record without session ID accepted")
	}

	badRole := testRecord("x", 1, time.Now())
	badRole.Messages[0].Role = "system"
	if err := badRole.Validate(); err == nil {
		t.Fatal("record with unknown role accepted")
	}

	empty := testRecord("x", 1, time.Now())
	empty.Messages[0].Content = ""
	if err := empty.Validate(); err == nil {
		t.Fatal("record with empty content accepted")
	}
}
