package flow

import (
	"fmt"
	"strings"

	"github.com/BTreeMap/InterviewPipe/internal/models"
	"github.com/BTreeMap/InterviewPipe/internal/util"
)

// PlatformInstructions is what each party needs to join an interview on a platform.
type PlatformInstructions struct {
	PlatformType     models.PlatformType `json:"platform_type"`
	PlatformName     string              `json:"platform_name"`
	RequiresDownload bool                `json:"requires_download"`
	DownloadLink     string              `json:"download_link,omitempty"`
	MeetingLink      *string             `json:"meeting_link"`
	SetupSteps       []string            `json:"setup_steps"`
	SponsorMessage   string              `json:"sponsor_message"`
	CandidateMessage string              `json:"candidate_message"`
}

// MeetingLink derives the join link for an interview. It depends only on its
// arguments; platforms without a link (phone calls, unknown types) return nil.
func MeetingLink(platform models.PlatformType, candidatePhone, interviewID string) *string {
	short := interviewID
	if len(short) > 8 {
		short = short[:8]
	}

	var link string
	switch platform {
	case models.PlatformWhatsAppVideo:
		digits := util.DigitsOnly(candidatePhone)
		if digits == "" {
			return nil
		}
		link = fmt.Sprintf("https://wa.me/%s?text=Video%%20Interview%%20-%%20%s", digits, interviewID)
	case models.PlatformZoom:
		link = "https://zoom.us/j/interview-" + short
	case models.PlatformGoogleMeet:
		link = "https://meet.google.com/interview-" + short
	case models.PlatformMicrosoftTeams:
		link = "https://teams.microsoft.com/l/meetup-join/interview-" + short
	case models.PlatformSkype:
		link = "https://join.skype.com/interview-" + short
	default:
		return nil
	}
	return &link
}

// BuildInstructions assembles the joining instructions for platform p.
func BuildInstructions(p models.PlatformTemplate, meetingLink *string, candidatePhone string) PlatformInstructions {
	link := ""
	if meetingLink != nil {
		link = *meetingLink
	}
	in := PlatformInstructions{
		PlatformType:     p.Type,
		PlatformName:     p.DisplayName,
		RequiresDownload: p.RequiresDownload,
		DownloadLink:     p.DownloadLink,
		MeetingLink:      meetingLink,
	}

	switch p.Type {
	case models.PlatformWhatsAppVideo:
		in.SetupSteps = []string{
			"No setup required - you already have WhatsApp!",
			"We will call you on WhatsApp at the scheduled time",
			"Make sure your camera and microphone are working",
		}
		in.SponsorMessage = "We will call you on WhatsApp video at the scheduled time. Please ensure your camera and microphone are working."
		in.CandidateMessage = "You will receive a WhatsApp video call from the sponsor at the scheduled time."
	case models.PlatformZoom:
		in.SetupSteps = []string{
			"Download Zoom app: " + p.DownloadLink,
			"Install the app on your phone or computer",
			"At the scheduled time, click this link: " + link,
			"Allow camera and microphone access",
			"Join the meeting",
		}
		in.SponsorMessage = fmt.Sprintf("📥 Download Zoom: %s\n\n📞 Meeting Link: %s\n\nClick the link at your scheduled time to join.", p.DownloadLink, link)
		in.CandidateMessage = "Download Zoom app and join using the meeting link we'll send you."
	case models.PlatformGoogleMeet:
		in.SetupSteps = []string{
			"No download required - works in browser!",
			"Or download Google Meet app for better experience",
			"At scheduled time, click: " + link,
			"Allow camera and microphone access",
			"Join the meeting",
		}
		in.SponsorMessage = fmt.Sprintf("📞 Meeting Link: %s\n\nClick the link at your scheduled time. Works in any browser, no download needed!", link)
		in.CandidateMessage = "You'll receive a Google Meet link. Click it at the scheduled time to join."
	case models.PlatformPhoneCall:
		callee := candidatePhone
		if callee == "" {
			callee = "your phone number"
		}
		in.SetupSteps = []string{
			"We will call you on: " + callee,
			"Make sure you're available at the scheduled time",
			"Find a quiet place for the call",
		}
		in.SponsorMessage = "We will call you at the scheduled time on your phone number."
		in.CandidateMessage = "You will receive a phone call at the scheduled time."
	case models.PlatformMicrosoftTeams:
		in.SetupSteps = []string{
			"Download Microsoft Teams: " + p.DownloadLink,
			"Install the app",
			"At scheduled time, click: " + link,
			"Allow camera and microphone",
			"Join meeting",
		}
		in.SponsorMessage = fmt.Sprintf("📥 Download Teams: %s\n\n📞 Meeting Link: %s\n\nClick the link at your scheduled time.", p.DownloadLink, link)
		in.CandidateMessage = "Download Microsoft Teams and join using the meeting link."
	case models.PlatformSkype:
		in.SetupSteps = []string{
			"Download Skype: " + p.DownloadLink,
			"Install and create account if needed",
			"At scheduled time, click: " + link,
			"Join the call",
		}
		in.SponsorMessage = fmt.Sprintf("📥 Download Skype: %s\n\n📞 Meeting Link: %s\n\nClick the link at your scheduled time.", p.DownloadLink, link)
		in.CandidateMessage = "Download Skype and join using the meeting link."
	default:
		if p.SetupInstructions != "" {
			in.SetupSteps = []string{p.SetupInstructions}
			in.SponsorMessage = p.SetupInstructions
		}
	}
	return in
}

// FormatInterviewConfirmation renders the message sent once a booking is recorded.
func FormatInterviewConfirmation(candidateName, date, clock, platform string, in PlatformInstructions) string {
	var b strings.Builder
	b.WriteString("✅ *Interview Request Submitted!*\n\n")
	b.WriteString("📋 *Details:*\n")
	fmt.Fprintf(&b, "• Maid: %s\n", candidateName)
	fmt.Fprintf(&b, "• Date: %s\n", date)
	fmt.Fprintf(&b, "• Time: %s\n", clock)
	fmt.Fprintf(&b, "• Platform: %s\n\n", platform)

	if in.RequiresDownload && in.DownloadLink != "" {
		fmt.Fprintf(&b, "📥 *Download App:*\n%s\n\n", in.DownloadLink)
	}
	if in.MeetingLink != nil && *in.MeetingLink != "" {
		fmt.Fprintf(&b, "📞 *Meeting Link:*\n%s\n\n", *in.MeetingLink)
	}

	b.WriteString("⏳ *Next Steps:*\n")
	b.WriteString("1. Admin will confirm with the maid\n")
	b.WriteString("2. Maid will confirm availability\n")
	b.WriteString("3. You'll receive final confirmation\n")
	b.WriteString("4. Reminders will be sent before the interview\n\n")

	b.WriteString(in.SponsorMessage)
	b.WriteString("\n\n📧 Need help? Contact support.")
	return b.String()
}

// linkType classifies a platform for the booking record.
func linkType(p models.PlatformTemplate) string {
	if p.RequiresDownload {
		return models.LinkTypeDownloadRequired
	}
	return models.LinkTypeDirect
}
