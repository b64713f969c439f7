package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robochat-dev/robochat/pkg/backend"
	"github.com/robochat-dev/robochat/pkg/observability"
	"github.com/robochat-dev/robochat/pkg/parser"
	"github.com/robochat-dev/robochat/pkg/session"
	"github.com/robochat-dev/robochat/pkg/task"
)

// Save writes the conversation to the store under its own ID.
func (c *Conversation) Save(ctx context.Context, store session.Store) error {
	return c.SaveAs(ctx, store, "")
}

// SaveAs writes the transcript, the pinned image, and the default task
// under the given ID, or the conversation ID when empty. The
// conversation keeps its own ID either way.
func (c *Conversation) SaveAs(ctx context.Context, store session.Store, id string) error {
	c.mu.RLock()
	if id == "" {
		id = c.id
	}
	rec := &session.Record{
		SessionID: id,
		Messages:  make([]session.Message, 0, len(c.turns)),
	}
	for _, turn := range c.turns {
		rec.Messages = append(rec.Messages, session.Message{
			Role:      turn.Role,
			Content:   turn.Content,
			Task:      turn.Task.String(),
			Timestamp: turn.Timestamp,
		})
	}
	if c.defTask != task.Auto {
		rec.ActiveTask = c.defTask.String()
	}
	if c.image != nil {
		rec.Image = &session.Image{URL: c.image.URL, MIME: c.image.MIME, Data: c.image.Data}
	}
	if len(c.turns) > 0 {
		rec.Metadata.CreatedAt = c.turns[0].Timestamp
	}
	c.mu.RUnlock()

	now := time.Now().UTC()
	if rec.Metadata.CreatedAt.IsZero() {
		rec.Metadata.CreatedAt = now
	}
	rec.Metadata.UpdatedAt = now

	if err := store.Save(ctx, rec); err != nil {
		observability.RecordSessionOp(storeName(store), "save", "error")
		return fmt.Errorf("saving session %s: %w", id, err)
	}
	observability.RecordSessionOp(storeName(store), "save", "ok")
	return nil
}

// Load replaces the transcript, pinned image, and default task with the
// stored record for sessionID. The record is validated before anything
// is touched, so a malformed record leaves the conversation unchanged.
// Returns ErrBusy while an ask is in flight.
func (c *Conversation) Load(ctx context.Context, store session.Store, sessionID string) error {
	if !c.writer.TryAcquire(1) {
		return ErrBusy
	}
	defer c.writer.Release(1)

	rec, err := store.Load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrMalformedRecord) {
			observability.RecordSessionOp(storeName(store), "load", "invalid")
			return &FormatError{Err: err}
		}
		observability.RecordSessionOp(storeName(store), "load", "error")
		return fmt.Errorf("loading session %s: %w", sessionID, err)
	}
	if err := rec.Validate(); err != nil {
		observability.RecordSessionOp(storeName(store), "load", "invalid")
		return &FormatError{Err: err}
	}

	defTask := task.Auto
	if rec.ActiveTask != "" {
		parsedType, err := task.Parse(rec.ActiveTask)
		if err != nil || !parsedType.Valid() {
			observability.RecordSessionOp(storeName(store), "load", "invalid")
			return &FormatError{Err: fmt.Errorf("bad active task %q", rec.ActiveTask)}
		}
		defTask = parsedType
	}
	var image *backend.Image
	if rec.Image != nil {
		image = &backend.Image{URL: rec.Image.URL, MIME: rec.Image.MIME, Data: rec.Image.Data}
	}

	turns := make([]Turn, 0, len(rec.Messages))
	for i, m := range rec.Messages {
		t := task.General
		if m.Task != "" {
			parsedType, err := task.Parse(m.Task)
			if err != nil || !parsedType.Valid() {
				observability.RecordSessionOp(storeName(store), "load", "invalid")
				return &FormatError{Err: fmt.Errorf("message %d: bad task type %q", i, m.Task)}
			}
			t = parsedType
		}
		turn := Turn{
			Role:      m.Role,
			Content:   m.Content,
			Task:      t,
			Timestamp: m.Timestamp,
		}
		if m.Role == backend.RoleAssistant {
			turn.Parsed = parser.Parse(m.Content, t)
		}
		turns = append(turns, turn)
	}

	c.mu.Lock()
	c.id = rec.SessionID
	c.turns = turns
	c.defTask = defTask
	c.image = image
	c.mu.Unlock()

	observability.RecordSessionOp(storeName(store), "load", "ok")
	return nil
}

// storeName labels session metrics per store implementation.
func storeName(store session.Store) string {
	switch store.(type) {
	case *session.FileStore:
		return "file"
	case *session.RedisStore:
		return "redis"
	case *session.FirestoreStore:
		return "firestore"
	default:
		return "custom"
	}
}
