package backend

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// modelInvoker is the slice of the Bedrock runtime client we use.
type modelInvoker interface {
	InvokeModel(ctx context.Context, in *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Bedrock runs inference through AWS Bedrock using the Anthropic
// messages body format, which supports inline base64 images.
type Bedrock struct {
	client modelInvoker
	model  string
}

// BedrockOptions configures NewBedrock.
type BedrockOptions struct {
	Region string
	Model  string
}

// NewBedrock builds a Bedrock backend from the default AWS credential
// chain.
func NewBedrock(ctx context.Context, opts BedrockOptions) (*Bedrock, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	model := opts.Model
	if model == "" {
		model = "anthropic.claude-3-5-sonnet-20241022-v2:0"
	}
	return &Bedrock{client: bedrockruntime.NewFromConfig(cfg), model: model}, nil
}

func (b *Bedrock) Name() string { return "bedrock" }

type bedrockContent struct {
	Type   string         `json:"type"`
	Text   string         `json:"text,omitempty"`
	Source *bedrockSource `json:"source,omitempty"`
}

type bedrockSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type bedrockMessage struct {
	Role    string           `json:"role"`
	Content []bedrockContent `json:"content"`
}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	System           string           `json:"system,omitempty"`
	Temperature      float32          `json:"temperature"`
	Messages         []bedrockMessage `json:"messages"`
}

type bedrockResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Model string `json:"model"`
}

// Chat invokes the model once. URL images are not supported by the
// messages API, so only inline data attachments are forwarded.
func (b *Bedrock) Chat(ctx context.Context, req *Request) (*Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}
	body := bedrockRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        maxTokens,
		System:           req.System,
		Temperature:      req.Temperature,
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, toBedrockMessage(m))
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, wrapErr(b.Name(), 0, fmt.Errorf("encoding request: %w", err))
	}

	out, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.model),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        payload,
	})
	if err != nil {
		return nil, wrapErr(b.Name(), 0, err)
	}

	var resp bedrockResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, wrapErr(b.Name(), 0, fmt.Errorf("decoding response: %w", err))
	}
	text := ""
	for _, c := range resp.Content {
		if c.Type == "text" {
			text += c.Text
		}
	}
	if text == "" {
		return nil, wrapErr(b.Name(), 0, ErrEmptyResponse)
	}
	model := resp.Model
	if model == "" {
		model = b.model
	}
	return &Response{Text: text, Model: model}, nil
}

func toBedrockMessage(m Message) bedrockMessage {
	role := "user"
	if m.Role == RoleAssistant {
		role = "assistant"
	}
	content := []bedrockContent{{Type: "text", Text: m.Text}}
	for _, img := range m.Images {
		if len(img.Data) == 0 {
			continue
		}
		content = append(content, bedrockContent{
			Type: "image",
			Source: &bedrockSource{
				Type:      "base64",
				MediaType: img.MIME,
				Data:      base64.StdEncoding.EncodeToString(img.Data),
			},
		})
	}
	return bedrockMessage{Role: role, Content: content}
}
