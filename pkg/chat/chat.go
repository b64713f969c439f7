// Package chat implements the multi-turn conversation engine. A
// Conversation owns the transcript, the pinned image, and the bounded
// context window sent to the inference backend on every ask.
package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/robochat-dev/robochat/pkg/backend"
	"github.com/robochat-dev/robochat/pkg/observability"
	"github.com/robochat-dev/robochat/pkg/parser"
	"github.com/robochat-dev/robochat/pkg/task"
)

// DefaultWindow is how many transcript turns accompany each ask.
const DefaultWindow = 10

// DefaultSystemPrompt frames the model as an embodied assistant.
const DefaultSystemPrompt = "You are a helpful robot assistant. You observe scenes through images and answer questions about what you see, where objects are, how to manipulate them, and how to move."

// ErrBusy is returned when a mutation arrives while another is in
// flight. The conversation is strictly single-writer: Ask, Reset, and
// Load all contend for the same guard, and losers are rejected rather
// than queued so the caller keeps control of retry policy.
var ErrBusy = errors.New("conversation is busy with another request")

// FormatError marks persisted conversation data that failed
// validation on load.
type FormatError struct {
	Err error
}

func (e *FormatError) Error() string { return fmt.Sprintf("invalid session format: %v", e.Err) }

func (e *FormatError) Unwrap() error { return e.Err }

// Turn is one transcript entry. Assistant turns carry the task type
// they answered and the geometry parsed from the answer.
type Turn struct {
	Role      string
	Content   string
	Task      task.Type
	Parsed    parser.Result
	Timestamp time.Time
}

// Answer is the result of one ask.
type Answer struct {
	Text string
	Task task.Type
	// Parsed holds geometry extracted from Text per the task type.
	Parsed parser.Result
	// ContextTurns is how many prior transcript turns were sent.
	ContextTurns int
}

// Conversation is a single chat session. One ask runs at a time;
// concurrent asks are rejected with ErrBusy rather than queued.
type Conversation struct {
	id      string
	backend backend.Backend
	writer  *semaphore.Weighted

	mu       sync.RWMutex
	image    *backend.Image
	turns    []Turn
	system   string
	window   int
	maxTurns int
	timeout  time.Duration
	defTask  task.Type
	temp     float32
	maxTok   int
}

// Option configures a Conversation.
type Option func(*Conversation)

// WithID sets the session ID instead of generating one.
func WithID(id string) Option { return func(c *Conversation) { c.id = id } }

// WithWindow bounds how many transcript turns are sent per ask.
func WithWindow(n int) Option { return func(c *Conversation) { c.window = n } }

// WithMaxTurns caps the stored transcript; oldest turns are dropped
// first. Zero means unlimited.
func WithMaxTurns(n int) Option { return func(c *Conversation) { c.maxTurns = n } }

// WithSystemPrompt overrides the default system prompt.
func WithSystemPrompt(s string) Option { return func(c *Conversation) { c.system = s } }

// WithAskTimeout bounds each backend call. Zero means no deadline
// beyond the caller's context.
func WithAskTimeout(d time.Duration) Option { return func(c *Conversation) { c.timeout = d } }

// WithDefaultTask sets the task used when an ask passes task.Auto.
// task.Auto itself (the default) engages the classifier.
func WithDefaultTask(t task.Type) Option { return func(c *Conversation) { c.defTask = t } }

// WithSampling sets temperature and the completion token cap.
func WithSampling(temperature float32, maxTokens int) Option {
	return func(c *Conversation) {
		c.temp = temperature
		c.maxTok = maxTokens
	}
}

// New creates a Conversation over the given backend.
func New(b backend.Backend, opts ...Option) *Conversation {
	c := &Conversation{
		backend: b,
		writer:  semaphore.NewWeighted(1),
		system:  DefaultSystemPrompt,
		window:  DefaultWindow,
		defTask: task.Auto,
		temp:    0.7,
		maxTok:  1024,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.id == "" {
		c.id = uuid.NewString()
	}
	if c.window <= 0 {
		c.window = DefaultWindow
	}
	return c
}

// ID returns the session ID.
func (c *Conversation) ID() string { return c.id }

// SetImage pins the scene image attached to subsequent asks.
func (c *Conversation) SetImage(img backend.Image) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.image = &img
}

// ClearImage detaches the scene image.
func (c *Conversation) ClearImage() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.image = nil
}

// HasImage reports whether a scene image is pinned.
func (c *Conversation) HasImage() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.image != nil
}

// History returns a copy of the transcript. Each completed ask adds
// exactly two turns, user then assistant.
func (c *Conversation) History() []Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Reset drops the transcript and the pinned image. The session ID is
// kept; calling Reset twice is the same as calling it once. Returns
// ErrBusy while an ask is in flight so a slow answer cannot land on a
// cleared transcript.
func (c *Conversation) Reset() error {
	if !c.writer.TryAcquire(1) {
		return ErrBusy
	}
	defer c.writer.Release(1)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = nil
	c.image = nil
	return nil
}

// Ask sends one question under the given task type. task.Auto engages
// the keyword classifier. On backend failure the user turn is kept in
// the transcript so a retry has the full context.
func (c *Conversation) Ask(ctx context.Context, text string, t task.Type) (*Answer, error) {
	if !c.writer.TryAcquire(1) {
		return nil, ErrBusy
	}
	defer c.writer.Release(1)

	if t == task.Auto || !t.Valid() {
		t = c.defTask
	}
	resolved := task.Resolve(t, text)

	ctx, span := observability.StartSpan(ctx, "chat.ask")
	defer span.End()

	req, contextTurns := c.buildRequest(text, resolved)

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.backend.Chat(ctx, req)
	if err != nil {
		c.appendTurns(Turn{
			Role:      backend.RoleUser,
			Content:   text,
			Task:      resolved,
			Timestamp: time.Now().UTC(),
		})
		observability.RecordTurn(resolved.String(), "error", time.Since(start))
		return nil, fmt.Errorf("asking backend: %w", err)
	}

	parsed := parser.Parse(resp.Text, resolved)
	now := time.Now().UTC()
	c.appendTurns(
		Turn{Role: backend.RoleUser, Content: text, Task: resolved, Timestamp: now},
		Turn{Role: backend.RoleAssistant, Content: resp.Text, Task: resolved, Parsed: parsed, Timestamp: now},
	)
	observability.RecordTurn(resolved.String(), "ok", time.Since(start))

	return &Answer{
		Text:         resp.Text,
		Task:         resolved,
		Parsed:       parsed,
		ContextTurns: contextTurns,
	}, nil
}

// buildRequest assembles the backend request: system prompt, the last
// window transcript turns, and the new user message carrying the
// pinned image. Returns how many prior turns were included.
func (c *Conversation) buildRequest(text string, t task.Type) (*backend.Request, int) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	included := c.turns
	dropped := 0
	if len(included) > c.window {
		dropped = len(included) - c.window
		included = included[dropped:]
	}

	system := c.system
	if dropped > 0 {
		system = fmt.Sprintf("%s\nEarlier context: %d older turns omitted.", system, dropped)
	}

	messages := make([]backend.Message, 0, len(included)+1)
	for _, turn := range included {
		messages = append(messages, backend.Message{Role: turn.Role, Text: turn.Content})
	}

	userMsg := backend.Message{Role: backend.RoleUser, Text: task.Instruction(t, text)}
	if c.image != nil {
		userMsg.Images = []backend.Image{*c.image}
	}
	messages = append(messages, userMsg)

	return &backend.Request{
		System:      system,
		Messages:    messages,
		Temperature: c.temp,
		MaxTokens:   c.maxTok,
	}, len(included)
}

// appendTurns records turns, trimming to maxTurns. A failed ask leaves
// an unanswered user turn behind; when the retry carries the same
// content that turn is reused instead of duplicated.
func (c *Conversation) appendTurns(turns ...Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(turns) > 0 && turns[0].Role == backend.RoleUser {
		if n := len(c.turns); n > 0 {
			last := c.turns[n-1]
			if last.Role == backend.RoleUser && last.Content == turns[0].Content {
				turns = turns[1:]
			}
		}
	}
	c.turns = append(c.turns, turns...)
	if c.maxTurns > 0 && len(c.turns) > c.maxTurns {
		c.turns = c.turns[len(c.turns)-c.maxTurns:]
	}
}
