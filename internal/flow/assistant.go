package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/param"

	"github.com/BTreeMap/InterviewPipe/internal/genai"
	"github.com/BTreeMap/InterviewPipe/internal/metrics"
	"github.com/BTreeMap/InterviewPipe/internal/models"
)

const (
	// DefaultAssistantTimeout bounds one assistant reply including every tool round.
	DefaultAssistantTimeout = 25 * time.Second

	msgAssistantApology = "I apologize, but I'm experiencing technical difficulties. Please try again in a moment or contact our support team."
	msgToolRoundsDone   = "I've completed the requested actions."
)

// DefaultAssistantPrompt is used when no prompt file is configured or it cannot be read.
const DefaultAssistantPrompt = `You are Lucy, a friendly and professional receptionist for Ethiopian Maids, a platform connecting families in the GCC with qualified Ethiopian domestic workers.

Your responsibilities:
1. Greet users warmly and help them find the right domestic worker
2. Answer questions about our services and process
3. Check maid availability by name, skills, experience or location
4. View, cancel and reschedule the user's interview bookings

Communication style:
- Be warm, professional and concise; replies are read on WhatsApp
- Use clear, simple language (users may speak English as a second language)
- If you don't know something, say so and offer to connect them with a human agent

Guidelines:
- Respect cultural sensitivities of the GCC region and keep user data private
- Only act on bookings returned by list_bookings for this user
- When the user asks to schedule, book or arrange an interview or video interview, do not collect dates or times yourself. Reply only: "I'll connect you with our interview booking system." and suggest they send "Schedule video interview with <maid name>".`

// Assistant answers messages that are not part of the booking flow.
type Assistant interface {
	Reply(ctx context.Context, subject, text string, history []models.ConversationMessage) (string, error)
}

// LLMAssistant answers with an OpenAI model that can call Capabilities as tools.
type LLMAssistant struct {
	client           genai.ClientInterface
	caps             Capabilities
	systemPrompt     string
	systemPromptFile string
	timeout          time.Duration
	metrics          *metrics.Metrics
}

var (
	_ Assistant = (*LLMAssistant)(nil)
	_ Assistant = (*StaticAssistant)(nil)
)

// NewLLMAssistant creates an LLMAssistant. The system prompt is read from
// promptFile when set; otherwise DefaultAssistantPrompt is used.
func NewLLMAssistant(client genai.ClientInterface, caps Capabilities, promptFile string, timeout time.Duration, m *metrics.Metrics) *LLMAssistant {
	if timeout <= 0 {
		timeout = DefaultAssistantTimeout
	}
	a := &LLMAssistant{
		client:           client,
		caps:             caps,
		systemPrompt:     DefaultAssistantPrompt,
		systemPromptFile: promptFile,
		timeout:          timeout,
		metrics:          m,
	}
	if promptFile != "" {
		if err := a.LoadSystemPrompt(); err != nil {
			slog.Warn("LLMAssistant.NewLLMAssistant: using default system prompt", "error", err, "file", promptFile)
		}
	}
	return a
}

// LoadSystemPrompt replaces the system prompt with the contents of the configured file.
func (a *LLMAssistant) LoadSystemPrompt() error {
	if a.systemPromptFile == "" {
		return fmt.Errorf("system prompt file not configured")
	}
	content, err := os.ReadFile(a.systemPromptFile)
	if err != nil {
		return fmt.Errorf("failed to read system prompt file: %w", err)
	}
	prompt := strings.TrimSpace(string(content))
	if prompt == "" {
		return fmt.Errorf("system prompt file is empty: %s", a.systemPromptFile)
	}
	a.systemPrompt = prompt
	slog.Info("LLMAssistant.LoadSystemPrompt: system prompt loaded", "file", a.systemPromptFile, "length", len(prompt))
	return nil
}

// Reply runs the tool loop under the assistant timeout. Any failure yields the
// apology text together with the error so the caller can log it.
func (a *LLMAssistant) Reply(ctx context.Context, subject, text string, history []models.ConversationMessage) (string, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	messages = append(messages, openai.SystemMessage(a.systemPrompt))
	for _, m := range history {
		if strings.TrimSpace(m.Body) == "" {
			continue
		}
		if m.Sender == models.SenderAssistant {
			messages = append(messages, openai.AssistantMessage(m.Body))
		} else {
			messages = append(messages, openai.UserMessage(m.Body))
		}
	}
	messages = append(messages, openai.UserMessage(text))

	reply, err := a.toolLoop(ctx, subject, messages)
	outcome := "ok"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
	case err != nil:
		outcome = "error"
	}
	a.metrics.ObserveAssistant(outcome, time.Since(start).Seconds())
	if err != nil {
		slog.Error("LLMAssistant.Reply: assistant failed", "error", err, "subject", subject, "outcome", outcome)
		return msgAssistantApology, err
	}
	return reply, nil
}

func (a *LLMAssistant) toolLoop(ctx context.Context, subject string, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	const maxToolRounds = 10
	tools := assistantToolDefinitions()

	for round := 1; round <= maxToolRounds; round++ {
		slog.Debug("LLMAssistant.toolLoop: round start", "subject", subject, "round", round, "messageCount", len(messages))

		resp, err := a.client.GenerateWithTools(ctx, messages, tools)
		if err != nil {
			return "", fmt.Errorf("failed to generate response with tools: %w", err)
		}

		if len(resp.ToolCalls) == 0 {
			if strings.TrimSpace(resp.Content) == "" {
				slog.Warn("LLMAssistant.toolLoop: empty content and no tool calls", "subject", subject, "round", round)
				return "How can I help you today?", nil
			}
			return resp.Content, nil
		}

		slog.Info("LLMAssistant.toolLoop: processing tool calls", "subject", subject, "round", round, "toolCallCount", len(resp.ToolCalls))
		messages = a.appendToolRound(ctx, subject, messages, resp)
	}

	slog.Warn("LLMAssistant.toolLoop: hit maximum tool rounds", "subject", subject, "maxRounds", maxToolRounds)
	return msgToolRoundsDone, nil
}

// appendToolRound executes every tool call of resp and appends the assistant
// turn and one tool message per call.
func (a *LLMAssistant) appendToolRound(ctx context.Context, subject string, messages []openai.ChatCompletionMessageParamUnion, resp *genai.ToolCallResponse) []openai.ChatCompletionMessageParamUnion {
	toolCalls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(resp.ToolCalls))
	for _, tc := range resp.ToolCalls {
		toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
			ID:   tc.ID,
			Type: "function",
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      tc.Function.Name,
				Arguments: string(tc.Function.Arguments),
			},
		})
	}
	assistantTurn := openai.ChatCompletionAssistantMessageParam{
		Content: openai.ChatCompletionAssistantMessageParamContentUnion{
			OfString: param.NewOpt(resp.Content),
		},
		ToolCalls: toolCalls,
	}
	messages = append(messages, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistantTurn})

	for _, tc := range resp.ToolCalls {
		slog.Info("LLMAssistant.appendToolRound: executing tool call", "subject", subject, "toolName", tc.Function.Name, "toolCallID", tc.ID)
		result := executeTool(ctx, a.caps, subject, tc.Function.Name, tc.Function.Arguments)
		messages = append(messages, openai.ToolMessage(result, tc.ID))
	}
	return messages
}

// StaticAssistant is the rule-based reply used when no model is configured.
type StaticAssistant struct {
	caps Capabilities
}

// NewStaticAssistant creates a StaticAssistant. caps may be nil.
func NewStaticAssistant(caps Capabilities) *StaticAssistant {
	return &StaticAssistant{caps: caps}
}

// Reply lists the user's bookings when asked and otherwise explains how to book.
func (s *StaticAssistant) Reply(ctx context.Context, subject, text string, history []models.ConversationMessage) (string, error) {
	lower := strings.ToLower(text)
	if s.caps != nil && (strings.Contains(lower, "my booking") || strings.Contains(lower, "my interview")) {
		bookings, err := s.caps.ListBookings(ctx, subject, "")
		if err != nil {
			return msgAssistantApology, err
		}
		if len(bookings) == 0 {
			return "You don't have any interview bookings yet.", nil
		}
		var b strings.Builder
		b.WriteString("📋 *Your interviews:*\n\n")
		for i, booking := range bookings {
			fmt.Fprintf(&b, "%d. %s on %s (%s)\n", i+1, booking.CandidateName, booking.ScheduledAt.Format("Mon, Jan 2 3:04 PM"), booking.Status)
		}
		return strings.TrimRight(b.String(), "\n"), nil
	}
	return "👋 Hello! I can help you schedule a video interview with one of our maids.\n\n" +
		"Send a message like \"Schedule video interview with Fatima\" to get started, " +
		"or ask \"my bookings\" to see your interviews.", nil
}
