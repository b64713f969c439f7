// Package backend abstracts the vision-language inference providers.
// Every provider speaks the same Chat contract: a system prompt, an
// ordered message history with optional image attachments, and a single
// text completion back.
package backend

import (
	"context"
	"errors"
	"fmt"
)

// Roles used in chat messages. Providers map these onto their own wire
// vocabulary.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Image is an attachment on a user message. Exactly one of URL or Data
// should be set; Data carries raw bytes with their MIME type.
type Image struct {
	URL  string
	Data []byte
	MIME string
}

// Message is one turn of the chat sent to a provider.
type Message struct {
	Role   string
	Text   string
	Images []Image
}

// Request is a single inference call.
type Request struct {
	System      string
	Messages    []Message
	Temperature float32
	MaxTokens   int
}

// Response is the provider's completion.
type Response struct {
	Text  string
	Model string
}

// Backend is implemented by each inference provider.
type Backend interface {
	// Name identifies the provider for logs and metrics.
	Name() string
	// Chat performs one inference call. Implementations must honor
	// ctx cancellation and deadlines.
	Chat(ctx context.Context, req *Request) (*Response, error)
}

// ErrTimeout marks a call that exceeded its deadline. It wraps the
// provider error so callers can match with errors.Is.
var ErrTimeout = errors.New("backend request timed out")

// ErrEmptyResponse marks a call that succeeded on the wire but carried
// no usable completion.
var ErrEmptyResponse = errors.New("backend returned an empty response")

// Error wraps a provider failure with enough context to log and route
// it. Status is the HTTP status when the provider exposes one, zero
// otherwise.
type Error struct {
	Provider string
	Status   int
	Err      error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s backend error (status %d): %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("%s backend error: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// wrapErr normalizes a provider error, folding deadline expiry into
// ErrTimeout so the taxonomy stays uniform across providers.
func wrapErr(provider string, status int, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return &Error{Provider: provider, Status: status, Err: err}
}
