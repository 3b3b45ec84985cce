package genai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"
)

// mockChatService implements chatService for testing.
type mockChatService struct {
	resp       openai.ChatCompletion
	err        error
	lastParams openai.ChatCompletionNewParams
}

func (m *mockChatService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	m.lastParams = params
	return m.resp, m.err
}

// mockTranscriptionService implements transcriptionService for testing.
type mockTranscriptionService struct {
	text     string
	err      error
	received string
}

func (m *mockTranscriptionService) Create(ctx context.Context, params openai.AudioTranscriptionNewParams) (string, error) {
	if params.File != nil {
		b, _ := io.ReadAll(params.File)
		m.received = string(b)
	}
	return m.text, m.err
}

func TestGenerateWithMessages_Success(t *testing.T) {
	mockResp := openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: "Hello World"}},
		},
	}
	client := &Client{chat: &mockChatService{resp: mockResp}, model: "test-model"}
	out, err := client.GenerateWithMessages(context.Background(), []openai.ChatCompletionMessageParamUnion{openai.UserMessage("hi")})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != "Hello World" {
		t.Errorf("expected 'Hello World', got '%s'", out)
	}
}

func TestGenerateWithMessages_ServiceError(t *testing.T) {
	client := &Client{chat: &mockChatService{err: errors.New("service failure")}}
	_, err := client.GenerateWithMessages(context.Background(), nil)
	if err == nil || !strings.Contains(err.Error(), "service failure") {
		t.Errorf("expected service failure error, got %v", err)
	}
}

func TestGenerateWithMessages_NoChoices(t *testing.T) {
	mockResp := openai.ChatCompletion{Choices: []openai.ChatCompletionChoice{}}
	client := &Client{chat: &mockChatService{resp: mockResp}}
	_, err := client.GenerateWithMessages(context.Background(), nil)
	if err != ErrNoChoicesReturned {
		t.Errorf("expected no choices returned error, got %v", err)
	}
}

func TestGenerateWithTools_ParsesToolCalls(t *testing.T) {
	mockResp := openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{
				ToolCalls: []openai.ChatCompletionMessageToolCall{{
					ID: "call_1",
					Function: openai.ChatCompletionMessageToolCallFunction{
						Name:      "search_candidates",
						Arguments: `{"name":"almaz"}`,
					},
				}},
			},
		}},
	}
	svc := &mockChatService{resp: mockResp}
	client := &Client{chat: svc, model: "test-model", maxCompletionTokens: 50}
	tools := []openai.ChatCompletionToolParam{{Type: "function"}}

	resp, err := client.GenerateWithTools(context.Background(), []openai.ChatCompletionMessageParamUnion{openai.UserMessage("find almaz")}, tools)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(resp.ToolCalls))
	}
	call := resp.ToolCalls[0]
	if call.ID != "call_1" || call.Function.Name != "search_candidates" {
		t.Errorf("unexpected tool call: %+v", call)
	}
	if string(call.Function.Arguments) != `{"name":"almaz"}` {
		t.Errorf("unexpected arguments: %s", call.Function.Arguments)
	}
	if len(svc.lastParams.Tools) != 1 {
		t.Errorf("expected tools to be forwarded, got %d", len(svc.lastParams.Tools))
	}
	if string(svc.lastParams.Model) != "test-model" {
		t.Errorf("expected model test-model, got %s", svc.lastParams.Model)
	}
}

func TestGenerateWithTools_ContentOnly(t *testing.T) {
	mockResp := openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "No tools needed"}}},
	}
	client := &Client{chat: &mockChatService{resp: mockResp}}
	resp, err := client.GenerateWithTools(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "No tools needed" || len(resp.ToolCalls) != 0 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestGenerateWithTools_Error(t *testing.T) {
	client := &Client{chat: &mockChatService{err: errors.New("rate limited")}}
	if _, err := client.GenerateWithTools(context.Background(), nil, nil); err == nil {
		t.Error("expected error, got nil")
	}
}

func TestTranscribe(t *testing.T) {
	audio := &mockTranscriptionService{text: "schedule video interview with almaz"}
	client := &Client{audio: audio}
	text, err := client.Transcribe(context.Background(), strings.NewReader("OGGDATA"), "voice.ogg", "audio/ogg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "schedule video interview with almaz" {
		t.Errorf("unexpected transcript %q", text)
	}
	if audio.received != "OGGDATA" {
		t.Errorf("expected audio bytes to be forwarded, got %q", audio.received)
	}
}

func TestTranscribe_Error(t *testing.T) {
	client := &Client{audio: &mockTranscriptionService{err: errors.New("bad audio")}}
	_, err := client.Transcribe(context.Background(), strings.NewReader(""), "voice.ogg", "audio/ogg")
	if err == nil || !strings.Contains(err.Error(), "bad audio") {
		t.Errorf("expected bad audio error, got %v", err)
	}
}

func TestTranscribe_NotConfigured(t *testing.T) {
	client := &Client{}
	if _, err := client.Transcribe(context.Background(), strings.NewReader(""), "voice.ogg", "audio/ogg"); err == nil {
		t.Error("expected error without transcription service")
	}
}

func TestNewClient_NoKey(t *testing.T) {
	_, err := NewClient()
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestNewClient_WithKey(t *testing.T) {
	cli, err := NewClient(WithAPIKey("test-key"), WithModel("gpt-test"), WithMaxCompletionTokens(256))
	if err != nil {
		t.Fatalf("expected no error with API key, got %v", err)
	}
	if cli == nil {
		t.Fatal("expected client instance, got nil")
	}
	if cli.model != "gpt-test" || cli.maxCompletionTokens != 256 {
		t.Errorf("options not applied: model=%s max=%d", cli.model, cli.maxCompletionTokens)
	}
}

// debugEntries decodes every file under dir/debug, keyed by file name.
func debugEntries(t *testing.T, dir string) map[string]map[string]any {
	t.Helper()
	files, err := os.ReadDir(filepath.Join(dir, "debug"))
	if err != nil {
		t.Fatalf("read debug dir: %v", err)
	}
	entries := make(map[string]map[string]any, len(files))
	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(dir, "debug", f.Name()))
		if err != nil {
			t.Fatalf("read %s: %v", f.Name(), err)
		}
		var entry map[string]any
		if err := json.Unmarshal(data, &entry); err != nil {
			t.Fatalf("decode %s: %v", f.Name(), err)
		}
		entries[f.Name()] = entry
	}
	return entries
}

func TestDebugLog_ToolRoundTrip(t *testing.T) {
	dir := t.TempDir()
	mockResp := openai.ChatCompletion{Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "Which day suits you?"}}}}
	client := &Client{chat: &mockChatService{resp: mockResp}, model: "gpt-4o-mini", maxCompletionTokens: 256, debugMode: true, stateDir: dir}
	tools := []openai.ChatCompletionToolParam{{Function: shared.FunctionDefinitionParam{Name: "create_booking"}}}

	if _, err := client.GenerateWithTools(context.Background(), []openai.ChatCompletionMessageParamUnion{openai.UserMessage("book almaz")}, tools); err != nil {
		t.Fatalf("GenerateWithTools: %v", err)
	}

	entries := debugEntries(t, dir)
	if len(entries) != 1 {
		t.Fatalf("expected 1 debug file, got %d", len(entries))
	}
	for name, entry := range entries {
		if !strings.HasPrefix(name, "GenerateWithTools_") || !strings.HasSuffix(name, ".json") {
			t.Errorf("unexpected debug file name %q", name)
		}
		if entry["method"] != "GenerateWithTools" || entry["model"] != "gpt-4o-mini" {
			t.Errorf("unexpected method/model: %v %v", entry["method"], entry["model"])
		}
		if _, ok := entry["timestamp"].(string); !ok {
			t.Error("timestamp missing")
		}
		if _, ok := entry["error"]; ok {
			t.Errorf("successful call should carry no error, got %v", entry["error"])
		}
		params, _ := entry["params"].(map[string]any)
		if params["max_completion_tokens"] != float64(256) {
			t.Errorf("expected max_completion_tokens 256 in params, got %v", params["max_completion_tokens"])
		}
		if got, _ := params["tools"].([]any); len(got) != 1 {
			t.Errorf("expected the tool list in params, got %v", params["tools"])
		}
		if _, ok := entry["response"]; !ok {
			t.Error("response missing")
		}
	}
}

func TestDebugLog_RecordsFailure(t *testing.T) {
	dir := t.TempDir()
	client := &Client{chat: &mockChatService{err: errors.New("rate limited")}, model: "gpt-4o-mini", debugMode: true, stateDir: dir}

	if _, err := client.GenerateWithMessages(context.Background(), []openai.ChatCompletionMessageParamUnion{openai.UserMessage("hi")}); err == nil {
		t.Fatal("expected error")
	}

	for name, entry := range debugEntries(t, dir) {
		if !strings.HasPrefix(name, "GenerateWithMessages_") {
			t.Errorf("unexpected debug file name %q", name)
		}
		if msg, _ := entry["error"].(string); !strings.Contains(msg, "rate limited") {
			t.Errorf("expected the call error in the entry, got %v", entry["error"])
		}
	}
}

func TestDebugLog_Off(t *testing.T) {
	tests := map[string]func(dir string) *Client{
		"debug mode disabled": func(dir string) *Client { return &Client{debugMode: false, stateDir: dir} },
		"no state dir":        func(dir string) *Client { return &Client{debugMode: true} },
	}
	for name, build := range tests {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			client := build(dir)
			client.chat = &mockChatService{resp: openai.ChatCompletion{Choices: []openai.ChatCompletionChoice{{}}}}

			if _, err := client.GenerateWithMessages(context.Background(), nil); err != nil {
				t.Fatalf("GenerateWithMessages: %v", err)
			}
			if _, err := os.Stat(filepath.Join(dir, "debug")); !os.IsNotExist(err) {
				t.Error("no debug directory expected")
			}
		})
	}
}
