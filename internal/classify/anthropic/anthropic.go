// Package anthropic classifies photos with the Anthropic Messages API.
package anthropic

import (
	"context"
	"fmt"

	anthropic "github.com/liushuangls/go-anthropic/v2"

	"snapshelf/internal/classify"
)

// DefaultModel is used when neither the request nor the config names one.
const DefaultModel = "claude-3-5-sonnet-20241022"

// maxTokens bounds the response; the JSON proposal is tiny, this leaves
// headroom for verbose models.
const maxTokens = 1024

type Config struct {
	APIKey  string
	BaseURL string // optional override for proxies and tests
	Model   string
}

type Classifier struct {
	client *anthropic.Client
	model  string
}

func New(cfg Config) *Classifier {
	var opts []anthropic.ClientOption
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Classifier{
		client: anthropic.NewClient(cfg.APIKey, opts...),
		model:  model,
	}
}

func (c *Classifier) Classify(ctx context.Context, req classify.Request) (classify.Result, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages: []anthropic.Message{
			{
				Role: anthropic.RoleUser,
				Content: []anthropic.MessageContent{
					anthropic.NewImageMessageContent(anthropic.NewMessageContentSource(
						anthropic.MessagesContentSourceTypeBase64,
						normalizeMIME(req.MIMEType),
						req.Image,
					)),
					anthropic.NewTextMessageContent(classify.BuildPrompt(req)),
				},
			},
		},
	})
	if err != nil {
		return classify.Result{}, fmt.Errorf("failed to call anthropic: %w", err)
	}
	return classify.ParseResult(resp.GetFirstContentText())
}

// normalizeMIME coerces anything the API does not accept to jpeg; callers
// validate images before this layer.
func normalizeMIME(mimeType string) string {
	switch mimeType {
	case "image/png", "image/gif", "image/webp":
		return mimeType
	default:
		return "image/jpeg"
	}
}
