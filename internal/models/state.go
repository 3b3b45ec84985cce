package models

import "time"

// Step represents the position of a subject inside the booking flow.
type Step string

// Booking flow steps.
const (
	StepIdle             Step = "idle"
	StepAwaitingDate     Step = "awaiting_date"
	StepAwaitingTime     Step = "awaiting_time"
	StepAwaitingPlatform Step = "awaiting_platform"
	StepProcessing       Step = "processing"
)

// IsValid reports whether s is a known step.
func (s Step) IsValid() bool {
	switch s {
	case StepIdle, StepAwaitingDate, StepAwaitingTime, StepAwaitingPlatform, StepProcessing:
		return true
	default:
		return false
	}
}

// InFlow reports whether a subject at this step is waiting on a positional reply.
func (s Step) InFlow() bool {
	switch s {
	case StepAwaitingDate, StepAwaitingTime, StepAwaitingPlatform:
		return true
	default:
		return false
	}
}

// Session is the persisted conversation state for one subject.
type Session struct {
	SubjectID string         `json:"subject_id"`
	Step      Step           `json:"step"`
	Context   SessionContext `json:"context"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// DateOption is one entry of the date option list.
type DateOption struct {
	Display   string `json:"display"`
	Value     string `json:"value"` // YYYY-MM-DD
	DayOfWeek string `json:"day_of_week"`
}

// TimeSlot is one entry of the time option list.
type TimeSlot struct {
	Display string `json:"display"`
	Value   string `json:"value"` // HH:MM
}

// CandidateOption is one entry of the candidate disambiguation list.
type CandidateOption struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
}

// SessionContext holds the selections accumulated while walking the flow,
// including the option lists shown at each step so replies resolve by position.
type SessionContext struct {
	CandidateID      string            `json:"candidate_id,omitempty"`
	CandidateName    string            `json:"candidate_name,omitempty"`
	CandidateOptions []CandidateOption `json:"candidate_options,omitempty"`
	CandidateQuery   string            `json:"candidate_query,omitempty"`

	DateOptions         []DateOption `json:"date_options,omitempty"`
	SelectedDate        string       `json:"selected_date,omitempty"`
	SelectedDateDisplay string       `json:"selected_date_display,omitempty"`

	TimeOptions         []TimeSlot `json:"time_options,omitempty"`
	SelectedTime        string     `json:"selected_time,omitempty"`
	SelectedTimeDisplay string     `json:"selected_time_display,omitempty"`

	PlatformOptions  []PlatformTemplate `json:"platform_options,omitempty"`
	SelectedPlatform string             `json:"selected_platform,omitempty"`
}

// AwaitingCandidateSelection reports whether a disambiguation list is pending.
func (c SessionContext) AwaitingCandidateSelection() bool {
	return c.CandidateID == "" && len(c.CandidateOptions) > 0
}

// Merge overlays every non-empty field of partial onto c and returns the result.
func (c SessionContext) Merge(partial SessionContext) SessionContext {
	if partial.CandidateID != "" {
		c.CandidateID = partial.CandidateID
	}
	if partial.CandidateName != "" {
		c.CandidateName = partial.CandidateName
	}
	if partial.CandidateOptions != nil {
		c.CandidateOptions = partial.CandidateOptions
	}
	if partial.CandidateQuery != "" {
		c.CandidateQuery = partial.CandidateQuery
	}
	if partial.DateOptions != nil {
		c.DateOptions = partial.DateOptions
	}
	if partial.SelectedDate != "" {
		c.SelectedDate = partial.SelectedDate
	}
	if partial.SelectedDateDisplay != "" {
		c.SelectedDateDisplay = partial.SelectedDateDisplay
	}
	if partial.TimeOptions != nil {
		c.TimeOptions = partial.TimeOptions
	}
	if partial.SelectedTime != "" {
		c.SelectedTime = partial.SelectedTime
	}
	if partial.SelectedTimeDisplay != "" {
		c.SelectedTimeDisplay = partial.SelectedTimeDisplay
	}
	if partial.PlatformOptions != nil {
		c.PlatformOptions = partial.PlatformOptions
	}
	if partial.SelectedPlatform != "" {
		c.SelectedPlatform = partial.SelectedPlatform
	}
	return c
}

// Complete reports whether the context carries everything the finalizer needs.
func (c SessionContext) Complete() bool {
	return c.CandidateID != "" && c.SelectedDate != "" && c.SelectedTime != "" && c.SelectedPlatform != ""
}
