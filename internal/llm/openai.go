package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cactuslabs/cactus/internal/httpkit"
)

// systemPrompt is prepended to every request. The endpoint holds no
// state, so the instruction travels with each call.
const systemPrompt = "You are Cactus, a helpful assistant on the user's personal device. " +
	"You can set alarms and start phone calls through the available tools. " +
	"Every tool action requires the user's explicit confirmation before it runs. " +
	"Be concise and helpful."

// OpenAIClient talks to an OpenAI-compatible chat-completions endpoint.
type OpenAIClient struct {
	baseURL             string
	apiKey              string
	model               string
	maxCompletionTokens int
	httpClient          *http.Client
	logger              *slog.Logger
}

// Option configures an OpenAIClient.
type Option func(*OpenAIClient)

// WithHTTPClient overrides the HTTP client (used by tests).
func WithHTTPClient(c *http.Client) Option {
	return func(o *OpenAIClient) { o.httpClient = c }
}

// WithMaxCompletionTokens caps the model's output per request.
func WithMaxCompletionTokens(n int) Option {
	return func(o *OpenAIClient) { o.maxCompletionTokens = n }
}

// NewOpenAIClient creates a client for the given endpoint and model.
func NewOpenAIClient(baseURL, apiKey, model string, logger *slog.Logger, opts ...Option) *OpenAIClient {
	if logger == nil {
		logger = slog.Default()
	}
	c := &OpenAIClient{
		baseURL:             strings.TrimRight(baseURL, "/"),
		apiKey:              apiKey,
		model:               model,
		maxCompletionTokens: 500,
		logger:              logger.With("provider", "openai"),
		// Completion calls can sit for a while before the first byte;
		// the transport's response-header timeout bounds that wait.
		httpClient: httpkit.NewClient(httpkit.WithTimeout(0)),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Wire request/response types.

type chatRequest struct {
	Model               string           `json:"model"`
	Messages            []Message        `json:"messages"`
	Tools               []map[string]any `json:"tools,omitempty"`
	ToolChoice          string           `json:"tool_choice,omitempty"`
	MaxCompletionTokens int              `json:"max_completion_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message *Message `json:"message"`
	} `json:"choices"`
}

// Complete sends one chat-completions request. The caller's history is
// sent verbatim after the fixed system instruction, minus any message
// with blank content (transient display markers never reach the wire).
func (c *OpenAIClient) Complete(ctx context.Context, history []Message, tools []map[string]any) (*Outcome, error) {
	req := chatRequest{
		Model:               c.model,
		Messages:            buildWireHistory(history),
		MaxCompletionTokens: c.maxCompletionTokens,
	}
	if len(tools) > 0 {
		req.Tools = tools
		req.ToolChoice = "auto"
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	c.logger.Debug("calling completion endpoint",
		"model", c.model,
		"messages", len(req.Messages),
		"tools", len(tools),
	)
	c.logger.Log(ctx, LevelTrace, "request payload", "body", string(jsonData))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, &ProtocolError{Message: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	c.logger.Log(ctx, LevelTrace, "response payload", "body", string(body))

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, &ProtocolError{Message: fmt.Sprintf("decode response: %v", err)}
	}
	if len(chatResp.Choices) == 0 {
		return nil, &ProtocolError{Message: "response has no choices"}
	}
	msg := chatResp.Choices[0].Message
	if msg == nil {
		return nil, &ProtocolError{Message: "response choice has no message"}
	}

	out := &Outcome{Assistant: *msg}
	if out.Assistant.Role == "" {
		out.Assistant.Role = RoleAssistant
	}
	c.logger.Debug("completion outcome",
		"tool_calls", len(out.Assistant.ToolCalls),
		"content_len", len(out.Assistant.Content),
	)
	return out, nil
}

// buildWireHistory prepends the system instruction and drops messages
// with blank content, unless they carry tool calls (the tool-call
// issuing assistant turn often has empty content but must be replayed
// verbatim).
func buildWireHistory(history []Message) []Message {
	wire := make([]Message, 0, len(history)+1)
	wire = append(wire, Message{Role: RoleSystem, Content: systemPrompt})
	for _, m := range history {
		if strings.TrimSpace(m.Content) == "" && len(m.ToolCalls) == 0 {
			continue
		}
		wire = append(wire, m)
	}
	return wire
}

// IsTransportError reports whether err is (or wraps) a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsProtocolError reports whether err is (or wraps) a ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
