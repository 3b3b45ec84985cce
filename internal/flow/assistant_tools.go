package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"

	"github.com/BTreeMap/InterviewPipe/internal/models"
)

// Tool names exposed to the model.
const (
	toolSearchCandidates  = "search_candidates"
	toolListBookings      = "list_bookings"
	toolCreateBooking     = "create_booking"
	toolCancelBooking     = "cancel_booking"
	toolRescheduleBooking = "reschedule_booking"
)

// assistantToolDefinitions returns the OpenAI function definitions for Capabilities.
func assistantToolDefinitions() []openai.ChatCompletionToolParam {
	return []openai.ChatCompletionToolParam{
		{
			Type: "function",
			Function: shared.FunctionDefinitionParam{
				Name:        toolSearchCandidates,
				Description: openai.String("Search available maids by name, skills, minimum experience or preferred location. Returns ids, names and details."),
				Parameters: shared.FunctionParameters{
					"type": "object",
					"properties": map[string]interface{}{
						"name": map[string]interface{}{
							"type":        "string",
							"description": "Partial name match, e.g. \"Fatima\"",
						},
						"skills": map[string]interface{}{
							"type":        "array",
							"items":       map[string]interface{}{"type": "string"},
							"description": "Required skills, e.g. cooking, cleaning, childcare",
						},
						"min_experience": map[string]interface{}{
							"type":        "integer",
							"description": "Minimum years of experience",
						},
						"location": map[string]interface{}{
							"type":        "string",
							"description": "Preferred GCC country (UAE, Saudi Arabia, Qatar, Kuwait, Bahrain, Oman)",
						},
						"limit": map[string]interface{}{
							"type":        "integer",
							"description": "Maximum number of results (default 10)",
						},
					},
				},
			},
		},
		{
			Type: "function",
			Function: shared.FunctionDefinitionParam{
				Name:        toolListBookings,
				Description: openai.String("List the interview bookings of the current user."),
				Parameters: shared.FunctionParameters{
					"type": "object",
					"properties": map[string]interface{}{
						"status": map[string]interface{}{
							"type":        "string",
							"enum":        []string{"pending_confirmation", "confirmed", "declined", "cancelled", "all"},
							"description": "Filter by booking status",
						},
					},
				},
			},
		},
		{
			Type: "function",
			Function: shared.FunctionDefinitionParam{
				Name:        toolCreateBooking,
				Description: openai.String("Create an interview booking for the current user with a maid returned by search_candidates."),
				Parameters: shared.FunctionParameters{
					"type": "object",
					"properties": map[string]interface{}{
						"candidate_id": map[string]interface{}{
							"type":        "string",
							"description": "ID of the maid",
						},
						"date": map[string]interface{}{
							"type":        "string",
							"description": "Interview date as YYYY-MM-DD",
						},
						"time": map[string]interface{}{
							"type":        "string",
							"description": "Interview time as HH:MM (24h)",
						},
						"platform": map[string]interface{}{
							"type":        "string",
							"enum":        []string{"whatsapp_video", "zoom", "google_meet", "microsoft_teams", "skype", "phone_call"},
							"description": "Video call platform (default whatsapp_video)",
						},
					},
					"required": []string{"candidate_id", "date", "time"},
				},
			},
		},
		{
			Type: "function",
			Function: shared.FunctionDefinitionParam{
				Name:        toolCancelBooking,
				Description: openai.String("Cancel one of the current user's bookings."),
				Parameters: shared.FunctionParameters{
					"type": "object",
					"properties": map[string]interface{}{
						"booking_id": map[string]interface{}{
							"type":        "string",
							"description": "ID of the booking to cancel",
						},
						"reason": map[string]interface{}{
							"type":        "string",
							"description": "Cancellation reason",
						},
					},
					"required": []string{"booking_id"},
				},
			},
		},
		{
			Type: "function",
			Function: shared.FunctionDefinitionParam{
				Name:        toolRescheduleBooking,
				Description: openai.String("Move one of the current user's bookings to a new date and time."),
				Parameters: shared.FunctionParameters{
					"type": "object",
					"properties": map[string]interface{}{
						"booking_id": map[string]interface{}{
							"type":        "string",
							"description": "ID of the booking to reschedule",
						},
						"new_time": map[string]interface{}{
							"type":        "string",
							"description": "New date and time, RFC3339 or \"YYYY-MM-DD HH:MM\"",
						},
					},
					"required": []string{"booking_id", "new_time"},
				},
			},
		},
	}
}

type searchCandidatesArgs struct {
	Name          string   `json:"name"`
	Skills        []string `json:"skills"`
	MinExperience int      `json:"min_experience"`
	Location      string   `json:"location"`
	Limit         int      `json:"limit"`
}

type listBookingsArgs struct {
	Status string `json:"status"`
}

type createBookingArgs struct {
	CandidateID string `json:"candidate_id"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Platform    string `json:"platform"`
}

type cancelBookingArgs struct {
	BookingID string `json:"booking_id"`
	Reason    string `json:"reason"`
}

type rescheduleBookingArgs struct {
	BookingID string `json:"booking_id"`
	NewTime   string `json:"new_time"`
}

// executeTool runs one tool call for subject and returns the text handed back
// to the model. Failures are reported to the model, not to the caller.
func executeTool(ctx context.Context, caps Capabilities, subject, name string, rawArgs json.RawMessage) string {
	if len(rawArgs) == 0 {
		rawArgs = json.RawMessage("{}")
	}
	result, err := runTool(ctx, caps, subject, name, rawArgs)
	if err != nil {
		slog.Warn("executeTool: tool failed", "error", err, "subject", subject, "tool", name)
		return fmt.Sprintf("❌ %s failed: %s", name, toolErrorText(err))
	}
	return result
}

func runTool(ctx context.Context, caps Capabilities, subject, name string, rawArgs json.RawMessage) (string, error) {
	switch name {
	case toolSearchCandidates:
		var args searchCandidatesArgs
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
		candidates, err := caps.SearchCandidates(ctx, models.CandidateFilter{
			Name:          args.Name,
			Skills:        args.Skills,
			MinExperience: args.MinExperience,
			Location:      args.Location,
			Limit:         args.Limit,
		})
		if err != nil {
			return "", err
		}
		return formatCandidatesResult(candidates), nil

	case toolListBookings:
		var args listBookingsArgs
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
		status := models.BookingStatus(args.Status)
		if args.Status == "all" {
			status = ""
		} else if status != "" && !models.IsValidBookingStatus(status) {
			return "", fmt.Errorf("unknown status %q", args.Status)
		}
		bookings, err := caps.ListBookings(ctx, subject, status)
		if err != nil {
			return "", err
		}
		return formatBookingsResult(bookings), nil

	case toolCreateBooking:
		var args createBookingArgs
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
		b, err := caps.CreateBooking(ctx, subject, BookingRequest{
			CandidateID: args.CandidateID,
			Date:        args.Date,
			Time:        args.Time,
			Platform:    models.PlatformType(args.Platform),
		})
		if err != nil {
			return "", err
		}
		return "✅ Booking created, pending confirmation.\n" + formatBooking(*b), nil

	case toolCancelBooking:
		var args cancelBookingArgs
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
		b, err := caps.CancelBooking(ctx, subject, args.BookingID, args.Reason)
		if err != nil {
			return "", err
		}
		return "✅ Booking cancelled.\n" + formatBooking(*b), nil

	case toolRescheduleBooking:
		var args rescheduleBookingArgs
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
		b, err := caps.RescheduleBooking(ctx, subject, args.BookingID, args.NewTime)
		if err != nil {
			return "", err
		}
		return "✅ Booking rescheduled.\n" + formatBooking(*b), nil

	default:
		return "", fmt.Errorf("unknown tool %q", name)
	}
}

func toolErrorText(err error) string {
	switch {
	case errors.Is(err, models.ErrBookingNotFound):
		return "booking not found"
	case errors.Is(err, models.ErrCandidateNotFound):
		return "maid not found"
	case errors.Is(err, models.ErrCandidateUnavailable):
		return "maid is not available for interviews"
	case errors.Is(err, models.ErrInvalidTransition):
		return "the booking can no longer be changed"
	case errors.Is(err, models.ErrInvalidScheduleTime):
		return "the date or time is invalid or in the past"
	case errors.Is(err, models.ErrPlatformNotFound):
		return "unknown platform"
	default:
		return err.Error()
	}
}

func formatCandidatesResult(candidates []models.Candidate) string {
	if len(candidates) == 0 {
		return "No available maids matched."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d maid(s):\n", len(candidates))
	for _, c := range candidates {
		fmt.Fprintf(&b, "- id=%s name=%s experience=%dy", c.ID, c.FullName, c.ExperienceYears)
		if c.Location != "" {
			fmt.Fprintf(&b, " location=%s", c.Location)
		}
		if len(c.Skills) > 0 {
			fmt.Fprintf(&b, " skills=%s", strings.Join(c.Skills, ","))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatBookingsResult(bookings []models.Booking) string {
	if len(bookings) == 0 {
		return "No bookings found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d booking(s):\n", len(bookings))
	for _, booking := range bookings {
		b.WriteString(formatBooking(booking))
	}
	return b.String()
}

func formatBooking(b models.Booking) string {
	line := fmt.Sprintf("- id=%s maid=%s at=%s platform=%s status=%s",
		b.ID, b.CandidateName, b.ScheduledAt.Format("2006-01-02 15:04 MST"), b.Platform, b.Status)
	if b.MeetingLink != nil {
		line += " link=" + *b.MeetingLink
	}
	return line + "\n"
}
