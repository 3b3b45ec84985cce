// Package genai wraps the OpenAI API for the fallback assistant and voice note transcription.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

var (
	// ErrNoChoicesReturned is returned when the completion carries no choices.
	ErrNoChoicesReturned = errors.New("no choices returned")
	// ErrMissingAPIKey is returned by NewClient when no API key is configured.
	ErrMissingAPIKey = errors.New("OPENAI_API_KEY not set")
)

// FunctionCall is the function half of a tool call requested by the model.
type FunctionCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// ToolCallResponse carries the assistant text and any tool calls of one completion.
type ToolCallResponse struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ClientInterface is the chat surface used by the flow package.
type ClientInterface interface {
	GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error)
	GenerateWithTools(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, tools []openai.ChatCompletionToolParam) (*ToolCallResponse, error)
}

// Transcriber turns an audio clip into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, filename, contentType string) (string, error)
}

// chatService defines minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// transcriptionService defines minimal interface for audio transcription.
type transcriptionService interface {
	Create(ctx context.Context, params openai.AudioTranscriptionNewParams) (string, error)
}

type chatCompletions struct {
	svc *openai.ChatCompletionService
}

func (c chatCompletions) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := c.svc.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

type audioTranscriptions struct {
	svc *openai.AudioTranscriptionService
}

func (a audioTranscriptions) Create(ctx context.Context, params openai.AudioTranscriptionNewParams) (string, error) {
	resp, err := a.svc.New(ctx, params)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// Client wraps the OpenAI chat and transcription services.
type Client struct {
	chat                chatService
	audio               transcriptionService
	model               string
	temperature         float64
	maxCompletionTokens int
	debugMode           bool
	stateDir            string
}

var (
	_ ClientInterface = (*Client)(nil)
	_ Transcriber     = (*Client)(nil)
)

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey              string
	BaseURL             string
	Model               string
	Temperature         float64
	MaxCompletionTokens int
	DebugMode           bool
	StateDir            string
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithModel sets the chat model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(temp float64) Option {
	return func(o *Opts) { o.Temperature = temp }
}

// WithMaxCompletionTokens caps the completion length. Zero leaves it to the API.
func WithMaxCompletionTokens(n int) Option {
	return func(o *Opts) { o.MaxCompletionTokens = n }
}

// WithDebugMode enables writing every request and response under StateDir/debug.
func WithDebugMode(enabled bool) Option {
	return func(o *Opts) { o.DebugMode = enabled }
}

// WithStateDir sets the directory debug logs are written under.
func WithStateDir(dir string) Option {
	return func(o *Opts) { o.StateDir = dir }
}

// NewClient initializes a new GenAI client. An API key is required.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{Model: DefaultModel, Temperature: 0.3}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	cli := openai.NewClient(reqOpts...)

	slog.Debug("genai.NewClient: client created", "model", cfg.Model, "debugMode", cfg.DebugMode)
	return &Client{
		chat:                chatCompletions{svc: &cli.Chat.Completions},
		audio:               audioTranscriptions{svc: &cli.Audio.Transcriptions},
		model:               cfg.Model,
		temperature:         cfg.Temperature,
		maxCompletionTokens: cfg.MaxCompletionTokens,
		debugMode:           cfg.DebugMode,
		stateDir:            cfg.StateDir,
	}, nil
}

func (c *Client) newParams(messages []openai.ChatCompletionMessageParamUnion) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    messages,
		Temperature: openai.Float(c.temperature),
	}
	if c.maxCompletionTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(c.maxCompletionTokens))
	}
	return params
}

// GenerateWithMessages returns the text of a completion over the full message history.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	params := c.newParams(messages)
	resp, err := c.chat.Create(ctx, params)
	c.writeDebugLog("GenerateWithMessages", params, resp, err)
	if err != nil {
		slog.Error("genai.GenerateWithMessages: chat completion failed", "error", err, "messageCount", len(messages))
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoicesReturned
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateWithTools runs one completion with tools available and returns the
// assistant text together with any requested tool calls.
func (c *Client) GenerateWithTools(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, tools []openai.ChatCompletionToolParam) (*ToolCallResponse, error) {
	params := c.newParams(messages)
	if len(tools) > 0 {
		params.Tools = tools
	}
	resp, err := c.chat.Create(ctx, params)
	c.writeDebugLog("GenerateWithTools", params, resp, err)
	if err != nil {
		slog.Error("genai.GenerateWithTools: chat completion failed", "error", err, "messageCount", len(messages), "toolCount", len(tools))
		return nil, fmt.Errorf("failed to create chat completion with tools: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrNoChoicesReturned
	}

	msg := resp.Choices[0].Message
	out := &ToolCallResponse{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: FunctionCall{
				Name:      tc.Function.Name,
				Arguments: json.RawMessage(tc.Function.Arguments),
			},
		})
	}
	slog.Debug("genai.GenerateWithTools: completion received", "contentLength", len(out.Content), "toolCallCount", len(out.ToolCalls))
	return out, nil
}

// Transcribe sends an audio clip to Whisper and returns the transcript.
func (c *Client) Transcribe(ctx context.Context, audio io.Reader, filename, contentType string) (string, error) {
	if c.audio == nil {
		return "", fmt.Errorf("transcription service not configured")
	}
	text, err := c.audio.Create(ctx, openai.AudioTranscriptionNewParams{
		File:  openai.File(audio, filename, contentType),
		Model: openai.AudioModelWhisper1,
	})
	if err != nil {
		slog.Error("genai.Transcribe: transcription failed", "error", err, "filename", filename, "contentType", contentType)
		return "", fmt.Errorf("failed to transcribe audio: %w", err)
	}
	slog.Debug("genai.Transcribe: transcription complete", "length", len(text))
	return text, nil
}

// writeDebugLog records one API exchange as JSON under stateDir/debug.
func (c *Client) writeDebugLog(method string, params openai.ChatCompletionNewParams, resp openai.ChatCompletion, callErr error) {
	if !c.debugMode || c.stateDir == "" {
		return
	}
	debugDir := filepath.Join(c.stateDir, "debug")
	if err := os.MkdirAll(debugDir, 0o755); err != nil {
		slog.Warn("genai.writeDebugLog: failed to create debug directory", "error", err, "dir", debugDir)
		return
	}

	entry := map[string]interface{}{
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"method":    method,
		"model":     c.model,
		"params":    params,
		"response":  resp,
	}
	if callErr != nil {
		entry["error"] = callErr.Error()
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		slog.Warn("genai.writeDebugLog: failed to marshal debug entry", "error", err)
		return
	}
	name := fmt.Sprintf("%s_%d.json", method, time.Now().UnixNano())
	if err := os.WriteFile(filepath.Join(debugDir, name), data, 0o644); err != nil {
		slog.Warn("genai.writeDebugLog: failed to write debug file", "error", err, "file", name)
	}
}
