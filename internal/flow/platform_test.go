package flow

import (
	"strings"
	"testing"

	"github.com/BTreeMap/InterviewPipe/internal/models"
	"github.com/BTreeMap/InterviewPipe/internal/store"
)

const testInterviewID = "3f2a9c1e-7b44-4d2a-9a51-0c6e2f1d8b77"

func TestMeetingLink(t *testing.T) {
	tests := []struct {
		platform models.PlatformType
		phone    string
		want     string // "" means nil
	}{
		{models.PlatformWhatsAppVideo, "+251 911-000-001", "https://wa.me/251911000001?text=Video%20Interview%20-%20" + testInterviewID},
		{models.PlatformWhatsAppVideo, "", ""},
		{models.PlatformZoom, "", "https://zoom.us/j/interview-3f2a9c1e"},
		{models.PlatformGoogleMeet, "", "https://meet.google.com/interview-3f2a9c1e"},
		{models.PlatformMicrosoftTeams, "", "https://teams.microsoft.com/l/meetup-join/interview-3f2a9c1e"},
		{models.PlatformSkype, "", "https://join.skype.com/interview-3f2a9c1e"},
		{models.PlatformPhoneCall, "+251911000001", ""},
		{models.PlatformType("carrier_pigeon"), "", ""},
	}
	for _, tt := range tests {
		t.Run(string(tt.platform), func(t *testing.T) {
			got := MeetingLink(tt.platform, tt.phone, testInterviewID)
			if tt.want == "" {
				if got != nil {
					t.Fatalf("expected nil link, got %q", *got)
				}
				return
			}
			if got == nil || *got != tt.want {
				t.Fatalf("MeetingLink() = %v, want %q", got, tt.want)
			}
		})
	}
}

func TestMeetingLink_Deterministic(t *testing.T) {
	a := MeetingLink(models.PlatformZoom, "", testInterviewID)
	b := MeetingLink(models.PlatformZoom, "", testInterviewID)
	if *a != *b {
		t.Errorf("expected identical links, got %q and %q", *a, *b)
	}
}

func platformTemplate(t *testing.T, pt models.PlatformType) models.PlatformTemplate {
	t.Helper()
	for _, p := range store.DefaultPlatformTemplates() {
		if p.Type == pt {
			return p
		}
	}
	t.Fatalf("no default template for %s", pt)
	return models.PlatformTemplate{}
}

func TestBuildInstructions_SponsorMessages(t *testing.T) {
	zoom := platformTemplate(t, models.PlatformZoom)
	link := MeetingLink(zoom.Type, "", testInterviewID)
	in := BuildInstructions(zoom, link, "")
	want := "📥 Download Zoom: https://zoom.us/download\n\n📞 Meeting Link: https://zoom.us/j/interview-3f2a9c1e\n\nClick the link at your scheduled time to join."
	if in.SponsorMessage != want {
		t.Errorf("zoom sponsor message = %q, want %q", in.SponsorMessage, want)
	}
	if len(in.SetupSteps) != 5 {
		t.Errorf("expected 5 zoom setup steps, got %d", len(in.SetupSteps))
	}

	phone := BuildInstructions(platformTemplate(t, models.PlatformPhoneCall), nil, "")
	if phone.SponsorMessage != "We will call you at the scheduled time on your phone number." {
		t.Errorf("unexpected phone sponsor message %q", phone.SponsorMessage)
	}
	if phone.SetupSteps[0] != "We will call you on: your phone number" {
		t.Errorf("unexpected phone setup step %q", phone.SetupSteps[0])
	}

	meet := BuildInstructions(platformTemplate(t, models.PlatformGoogleMeet), MeetingLink(models.PlatformGoogleMeet, "", testInterviewID), "")
	if !strings.HasSuffix(meet.SponsorMessage, "Works in any browser, no download needed!") {
		t.Errorf("unexpected meet sponsor message %q", meet.SponsorMessage)
	}
}

func TestFormatInterviewConfirmation(t *testing.T) {
	teams := platformTemplate(t, models.PlatformMicrosoftTeams)
	link := MeetingLink(teams.Type, "", testInterviewID)
	in := BuildInstructions(teams, link, "")

	got := FormatInterviewConfirmation("Almaz Tesfaye", "Monday, Oct 19", "2:00 PM", teams.DisplayName, in)

	want := "✅ *Interview Request Submitted!*\n\n" +
		"📋 *Details:*\n• Maid: Almaz Tesfaye\n• Date: Monday, Oct 19\n• Time: 2:00 PM\n• Platform: Microsoft Teams\n\n" +
		"📥 *Download App:*\n" + teams.DownloadLink + "\n\n" +
		"📞 *Meeting Link:*\n" + *link + "\n\n" +
		"⏳ *Next Steps:*\n1. Admin will confirm with the maid\n2. Maid will confirm availability\n3. You'll receive final confirmation\n4. Reminders will be sent before the interview\n\n" +
		in.SponsorMessage + "\n\n📧 Need help? Contact support."
	if got != want {
		t.Errorf("FormatInterviewConfirmation() =\n%s\nwant\n%s", got, want)
	}
}

func TestFormatInterviewConfirmation_NoLinks(t *testing.T) {
	phone := platformTemplate(t, models.PlatformPhoneCall)
	got := FormatInterviewConfirmation("Almaz", "Monday, Oct 19", "9:00 AM", phone.DisplayName, BuildInstructions(phone, nil, ""))
	if strings.Contains(got, "Download App") || strings.Contains(got, "Meeting Link") {
		t.Errorf("phone call confirmation should carry no links: %s", got)
	}
}
