package backend

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"google.golang.org/genai"
)

const (
	geminiMaxRetries = 3
	geminiBaseDelay  = 500 * time.Millisecond
	geminiMaxDelay   = 8 * time.Second
)

// Gemini runs inference through the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// GeminiOptions configures NewGemini.
type GeminiOptions struct {
	APIKey string
	Model  string
}

// NewGemini builds a Gemini backend.
func NewGemini(ctx context.Context, opts GeminiOptions) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	model := opts.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Name() string { return "gemini" }

// Chat sends the request, retrying transient failures with exponential
// backoff and jitter.
func (g *Gemini) Chat(ctx context.Context, req *Request) (*Response, error) {
	contents := buildGeminiContents(req.Messages)
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Temperature),
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}

	var resp *genai.GenerateContentResponse
	var err error
	for attempt := 0; attempt < geminiMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, wrapErr(g.Name(), 0, ctx.Err())
			case <-time.After(geminiBackoff(attempt)):
			}
		}
		resp, err = g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
		if err == nil {
			break
		}
		if ctx.Err() != nil || !geminiRetryable(err) {
			return nil, wrapErr(g.Name(), 0, err)
		}
	}
	if err != nil {
		return nil, wrapErr(g.Name(), 0, err)
	}

	text := geminiText(resp)
	if text == "" {
		return nil, wrapErr(g.Name(), 0, ErrEmptyResponse)
	}
	return &Response{Text: text, Model: g.model}, nil
}

func buildGeminiContents(messages []Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		parts := []*genai.Part{{Text: m.Text}}
		for _, img := range m.Images {
			if img.URL != "" {
				parts = append(parts, &genai.Part{
					FileData: &genai.FileData{FileURI: img.URL, MIMEType: img.MIME},
				})
				continue
			}
			parts = append(parts, &genai.Part{
				InlineData: &genai.Blob{MIMEType: img.MIME, Data: img.Data},
			})
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	return contents
}

func geminiText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return strings.TrimSpace(sb.String())
}

func geminiRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "429") ||
		strings.Contains(msg, "500") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "unavailable")
}

// geminiBackoff returns the delay before the given retry attempt, with
// ±30% jitter.
func geminiBackoff(attempt int) time.Duration {
	delay := geminiBaseDelay * time.Duration(1<<uint(attempt-1))
	if delay > geminiMaxDelay {
		delay = geminiMaxDelay
	}
	jitter := time.Duration(float64(delay) * 0.3 * (rand.Float64()*2 - 1))
	return delay + jitter
}
