// Package openai classifies photos through an OpenAI-compatible
// chat-completions endpoint. Any gateway speaking that dialect works; the
// base URL is configurable.
package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"snapshelf/internal/classify"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o"

	maxTokens = 1024
)

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type Classifier struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

func New(apiKey, baseURL, model string) *Classifier {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	return &Classifier{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{},
	}
}

func (c *Classifier) Classify(ctx context.Context, req classify.Request) (classify.Result, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	dataURL := "data:" + mimeOrJPEG(req.MIMEType) + ";base64," + base64.StdEncoding.EncodeToString(req.Image)
	body := chatRequest{
		Model:          model,
		MaxTokens:      maxTokens,
		ResponseFormat: &responseFormat{Type: "json_object"},
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: classify.BuildPrompt(req)},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
			},
		}},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return classify.Result{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return classify.Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return classify.Result{}, fmt.Errorf("failed to call model endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return classify.Result{}, fmt.Errorf("model endpoint returned status %d: %s", resp.StatusCode, errBody)
	}

	var respBody chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&respBody); err != nil {
		return classify.Result{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(respBody.Choices) == 0 {
		return classify.Result{}, errors.New("model response contained no choices")
	}
	return classify.ParseResult(respBody.Choices[0].Message.Content)
}

func mimeOrJPEG(mimeType string) string {
	if strings.HasPrefix(mimeType, "image/") {
		return mimeType
	}
	return "image/jpeg"
}
