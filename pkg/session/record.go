// Package session persists conversation transcripts across restarts.
// Stores share one JSON record shape so a transcript saved through one
// backend can be restored through another.
package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMalformedRecord marks stored bytes that do not decode into the
// record shape.
var ErrMalformedRecord = errors.New("malformed session record")

// Message roles as persisted.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one persisted conversation turn.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Task      string    `json:"task,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Metadata carries record lifecycle timestamps, always UTC.
type Metadata struct {
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Image is a persisted scene attachment, either a URL or inline bytes.
type Image struct {
	URL  string `json:"url,omitempty"`
	MIME string `json:"mime,omitempty"`
	Data []byte `json:"data,omitempty"`
}

// Record is a full stored conversation, including the pinned image and
// the active task so a restore picks up exactly where the save left off.
type Record struct {
	SessionID  string    `json:"sessionId"`
	Messages   []Message `json:"messages"`
	ActiveTask string    `json:"activeTask,omitempty"`
	Image      *Image    `json:"image,omitempty"`
	Metadata   Metadata  `json:"metadata"`
}

// Summary describes a stored conversation without its messages.
type Summary struct {
	SessionID string    `json:"sessionId"`
	Messages  int       `json:"messages"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DecodeRecord strictly decodes stored bytes. Unknown fields are
// rejected so schema drift surfaces at load instead of being silently
// dropped.
func DecodeRecord(data []byte) (*Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var rec Record
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return &rec, nil
}

// Validate checks structural integrity of a record, typically after
// loading bytes that may have been hand-edited or truncated.
func (r *Record) Validate() error {
	if r.SessionID == "" {
		return fmt.Errorf("record has no session ID")
	}
	for i, m := range r.Messages {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			return fmt.Errorf("message %d: unknown role %q", i, m.Role)
		}
		if m.Content == "" {
			return fmt.Errorf("message %d: empty content", i)
		}
	}
	return nil
}

// Summarize builds the listing view of a record.
func (r *Record) Summarize() Summary {
	return Summary{
		SessionID: r.SessionID,
		Messages:  len(r.Messages),
		UpdatedAt: r.Metadata.UpdatedAt,
	}
}
