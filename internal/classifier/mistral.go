// Package classifier calls a Mistral-compatible chat-completions endpoint to
// assess a batch of chat messages for harmfulness. The caller treats the
// model as an opaque classifier: an ordered batch of (author, text) pairs
// goes in, a structured verdict comes out.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sentinel/mod-bot/internal/conversation"
	"github.com/sentinel/mod-bot/internal/moderation"
)

// DefaultBaseURL is the Mistral API endpoint.
const DefaultBaseURL = "https://api.mistral.ai"

// DefaultModel is used when no model is configured.
const DefaultModel = "mistral-large-latest"

const prompt = "Moderate the following conversation: '%s'. Each message is preceded by the user's name. " +
	"Respond with a JSON object that includes 'harmfulness_level', 'reasons', 'action_required', and 'user_scores'. " +
	"The 'user_scores' should be an object where keys are usernames and values are integers representing the score " +
	"change for that user (-2 for highly harmful, -1 for moderately harmful, 0 for neutral, 1 for positive contributions)."

// Client calls the chat-completions API.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// Config holds classifier connection settings.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// NewClient creates a classifier client. Zero-value config fields fall back
// to the Mistral defaults.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Assess submits the batch for a harmfulness assessment and returns the
// decoded verdict. Transport errors, non-200 responses, and empty choices
// are returned as errors; the caller decides how to degrade.
func (c *Client) Assess(ctx context.Context, batch []conversation.Message) (*moderation.Verdict, error) {
	lines := make([]string, len(batch))
	for i, m := range batch {
		lines[i] = m.AuthorName + ": " + m.Text
	}

	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "user", Content: fmt.Sprintf(prompt, strings.Join(lines, "\n"))},
		},
	}
	reqBody.ResponseFormat.Type = "json_object"

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("classifier: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("classifier: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classifier: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("classifier: status %d: %s", resp.StatusCode, string(body))
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("classifier: decode response: %w", err)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("classifier: response has no choices")
	}

	// A syntactically invalid or partially filled model answer normalizes
	// to the neutral verdict rather than failing the cycle.
	return moderation.DecodeVerdict([]byte(result.Choices[0].Message.Content)), nil
}
