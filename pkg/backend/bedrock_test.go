package backend

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

type fakeInvoker struct {
	in   *bedrockruntime.InvokeModelInput
	body string
	err  error
}

func (f *fakeInvoker) InvokeModel(_ context.Context, in *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: []byte(f.body)}, nil
}

func TestBedrockChat(t *testing.T) {
	fake := &fakeInvoker{body: `{"content":[{"type":"text","text":"grasp the handle"}]}`}
	b := &Bedrock{client: fake, model: "test-model"}

	resp, err := b.Chat(context.Background(), &Request{
		System: "robot assistant",
		Messages: []Message{
			{Role: RoleUser, Text: "how do I open this?", Images: []Image{{Data: []byte{1, 2}, MIME: "image/jpeg"}}},
			{Role: RoleAssistant, Text: "pull the handle"},
		},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Text != "grasp the handle" {
		t.Fatalf("text = %q", resp.Text)
	}

	var sent bedrockRequest
	if err := json.Unmarshal(fake.in.Body, &sent); err != nil {
		t.Fatalf("decoding sent body: %v", err)
	}
	if sent.System != "robot assistant" {
		t.Fatalf("system = %q", sent.System)
	}
	if len(sent.Messages) != 2 {
		t.Fatalf("sent %d messages", len(sent.Messages))
	}
	user := sent.Messages[0]
	if len(user.Content) != 2 || user.Content[1].Type != "image" {
		t.Fatalf("user content = %+v", user.Content)
	}
	if user.Content[1].Source.MediaType != "image/jpeg" {
		t.Fatalf("media type = %q", user.Content[1].Source.MediaType)
	}
	if sent.Messages[1].Role != "assistant" {
		t.Fatalf("second role = %q", sent.Messages[1].Role)
	}
}

func TestBedrockChatEmpty(t *testing.T) {
	fake := &fakeInvoker{body: `{"content":[]}`}
	b := &Bedrock{client: fake, model: "test-model"}
	if _, err := b.Chat(context.Background(), &Request{Messages: []Message{{Role: RoleUser, Text: "hi"}}}); err == nil {
		t.Fatal("expected error for empty content")
	}
}
