package models

import (
	"strings"
	"time"
)

// BookingStatus represents the lifecycle state of an interview booking.
type BookingStatus string

const (
	// BookingStatusPendingConfirmation is set when the booking flow finalizes.
	BookingStatusPendingConfirmation BookingStatus = "pending_confirmation"
	// BookingStatusConfirmed is set when the candidate replies yes.
	BookingStatusConfirmed BookingStatus = "confirmed"
	// BookingStatusDeclined is set when the candidate replies no.
	BookingStatusDeclined BookingStatus = "declined"
	// BookingStatusCancelled is set by an explicit cancel operation.
	BookingStatusCancelled BookingStatus = "cancelled"
)

// IsValidBookingStatus checks if the given booking status is valid.
func IsValidBookingStatus(status BookingStatus) bool {
	switch status {
	case BookingStatusPendingConfirmation, BookingStatusConfirmed, BookingStatusDeclined, BookingStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether a booking in status s may move to next.
// Terminal statuses never change; pending and confirmed bookings can still be cancelled.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	switch s {
	case BookingStatusPendingConfirmation:
		return next == BookingStatusConfirmed || next == BookingStatusDeclined || next == BookingStatusCancelled
	case BookingStatusConfirmed:
		return next == BookingStatusCancelled
	default:
		return false
	}
}

// Booking channel markers stored in CreatedVia.
const (
	CreatedViaWhatsApp  = "whatsapp"
	CreatedViaAssistant = "assistant"
)

// Link type markers stored in LinkType.
const (
	LinkTypeDownloadRequired = "download_required"
	LinkTypeDirect           = "direct_link"
)

// DefaultInterviewDuration is the length of every booked interview in minutes.
const DefaultInterviewDuration = 30

// Booking is a persisted interview booking.
type Booking struct {
	ID              string        `json:"id"`
	CandidateID     string        `json:"candidate_id"`
	CandidateName   string        `json:"candidate_name,omitempty"`
	CandidatePhone  string        `json:"candidate_phone,omitempty"`
	RequesterPhone  string        `json:"requester_phone"`
	ScheduledAt     time.Time     `json:"scheduled_at"`
	DurationMinutes int           `json:"duration_minutes"`
	Platform        PlatformType  `json:"platform"`
	MeetingLink     *string       `json:"meeting_link"`
	LinkType        string        `json:"link_type"`
	Status          BookingStatus `json:"status"`
	CancelReason    string        `json:"cancel_reason,omitempty"`
	CreatedVia      string        `json:"created_via"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// BookingFilter narrows a booking listing. Empty fields match everything.
type BookingFilter struct {
	Phone  string        // matches requester or candidate phone
	Status BookingStatus // optional
	Limit  int
}

// CandidateStatus represents candidate availability.
type CandidateStatus string

const (
	CandidateStatusAvailable CandidateStatus = "available"
	CandidateStatusBusy      CandidateStatus = "busy"
	CandidateStatusHired     CandidateStatus = "hired"
)

// Candidate is an interviewable profile.
type Candidate struct {
	ID                 string          `json:"id"`
	FullName           string          `json:"full_name"`
	PhoneNumber        string          `json:"phone_number,omitempty"`
	Skills             []string        `json:"skills,omitempty"`
	ExperienceYears    int             `json:"experience_years"`
	Location           string          `json:"location,omitempty"`
	AvailabilityStatus CandidateStatus `json:"availability_status"`
	CreatedAt          time.Time       `json:"created_at"`
}

// HasSkill reports whether the candidate lists skill (case-insensitive substring).
func (c Candidate) HasSkill(skill string) bool {
	skill = strings.ToLower(strings.TrimSpace(skill))
	if skill == "" {
		return true
	}
	for _, s := range c.Skills {
		if strings.Contains(strings.ToLower(s), skill) {
			return true
		}
	}
	return false
}

// CandidateFilter narrows a candidate search. Empty fields match everything.
type CandidateFilter struct {
	Name          string
	Skills        []string
	MinExperience int
	Location      string
	Status        CandidateStatus
	Limit         int
}

// Matches reports whether c satisfies every populated field of f.
func (f CandidateFilter) Matches(c Candidate) bool {
	if f.Name != "" && !strings.Contains(strings.ToLower(c.FullName), strings.ToLower(strings.TrimSpace(f.Name))) {
		return false
	}
	if f.Status != "" && c.AvailabilityStatus != f.Status {
		return false
	}
	if f.MinExperience > 0 && c.ExperienceYears < f.MinExperience {
		return false
	}
	if f.Location != "" && !strings.Contains(strings.ToLower(c.Location), strings.ToLower(strings.TrimSpace(f.Location))) {
		return false
	}
	for _, skill := range f.Skills {
		if !c.HasSkill(skill) {
			return false
		}
	}
	return true
}

// PlatformType identifies an interview platform.
type PlatformType string

const (
	PlatformWhatsAppVideo  PlatformType = "whatsapp_video"
	PlatformZoom           PlatformType = "zoom"
	PlatformGoogleMeet     PlatformType = "google_meet"
	PlatformMicrosoftTeams PlatformType = "microsoft_teams"
	PlatformSkype          PlatformType = "skype"
	PlatformPhoneCall      PlatformType = "phone_call"
)

// PlatformTemplate describes one selectable interview platform.
type PlatformTemplate struct {
	Type              PlatformType `json:"platform_type"`
	DisplayName       string       `json:"display_name"`
	RequiresDownload  bool         `json:"requires_download"`
	DownloadLink      string       `json:"download_link,omitempty"`
	SetupInstructions string       `json:"setup_instructions,omitempty"`
	SortOrder         int          `json:"sort_order"`
}

// NotificationType classifies operator notifications.
type NotificationType string

const (
	NotificationAdminApprovalNeeded NotificationType = "admin_approval_needed"
)

// Notification is an operator-facing record emitted alongside a booking.
type Notification struct {
	ID             string           `json:"id"`
	BookingID      string           `json:"booking_id"`
	Type           NotificationType `json:"notification_type"`
	RecipientType  string           `json:"recipient_type"`
	RecipientPhone string           `json:"recipient_phone,omitempty"`
	MessageText    string           `json:"message_text"`
	MessageData    string           `json:"message_data,omitempty"` // JSON
	CreatedAt      time.Time        `json:"created_at"`
}
