package flow

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/InterviewPipe/internal/models"
)

const (
	// DateOptionCount is how many dates are offered per booking.
	DateOptionCount = 5
	// dateLookaheadDays bounds how far ahead date options may reach.
	dateLookaheadDays = 14

	dateValueLayout   = "2006-01-02"
	dateDisplayLayout = "Monday, Jan 2"
	timeValueLayout   = "15:04"
	timeDisplayLayout = "3:04 PM"
)

var digitRun = regexp.MustCompile(`\d+`)

// GenerateDateOptions returns up to count dates starting tomorrow in loc,
// skipping Fridays and never reaching more than two weeks ahead.
func GenerateDateOptions(now time.Time, loc *time.Location, count int) []models.DateOption {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	options := make([]models.DateOption, 0, count)
	for offset := 1; offset <= dateLookaheadDays && len(options) < count; offset++ {
		day := today.AddDate(0, 0, offset)
		if day.Weekday() == time.Friday {
			continue
		}
		options = append(options, models.DateOption{
			Display:   day.Format(dateDisplayLayout),
			Value:     day.Format(dateValueLayout),
			DayOfWeek: day.Weekday().String(),
		})
	}
	return options
}

// TimeSlots returns the fixed interview slots, grouped morning, afternoon, evening.
func TimeSlots() []models.TimeSlot {
	return []models.TimeSlot{
		{Display: "9:00 AM", Value: "09:00"},
		{Display: "10:00 AM", Value: "10:00"},
		{Display: "11:00 AM", Value: "11:00"},
		{Display: "2:00 PM", Value: "14:00"},
		{Display: "3:00 PM", Value: "15:00"},
		{Display: "4:00 PM", Value: "16:00"},
		{Display: "6:00 PM", Value: "18:00"},
		{Display: "7:00 PM", Value: "19:00"},
	}
}

// FormatDateOptions renders the numbered date prompt.
func FormatDateOptions(options []models.DateOption) string {
	var b strings.Builder
	b.WriteString("📅 *Please select your preferred date:*\n\n")
	for i, opt := range options {
		fmt.Fprintf(&b, "%d. %s\n", i+1, opt.Display)
	}
	fmt.Fprintf(&b, "\nReply with the number (1-%d)", len(options))
	return b.String()
}

// FormatTimeOptions renders the numbered time prompt in three day-part groups.
func FormatTimeOptions(slots []models.TimeSlot) string {
	groups := []struct {
		title    string
		from, to int
	}{
		{"*Morning:*\n", 0, 3},
		{"*Afternoon:*\n", 3, 6},
		{"*Evening:*\n", 6, len(slots)},
	}

	var b strings.Builder
	b.WriteString("⏰ *Please select your preferred time:*\n\n")
	for gi, g := range groups {
		if g.from >= len(slots) {
			break
		}
		if gi > 0 {
			b.WriteString("\n")
		}
		b.WriteString(g.title)
		to := g.to
		if to > len(slots) {
			to = len(slots)
		}
		for i := g.from; i < to; i++ {
			fmt.Fprintf(&b, "%d. %s\n", i+1, slots[i].Display)
		}
	}
	fmt.Fprintf(&b, "\nReply with the number (1-%d)", len(slots))
	return b.String()
}

// FormatPlatformOptions renders the numbered platform prompt, marking
// platforms that need an app download.
func FormatPlatformOptions(platforms []models.PlatformTemplate) string {
	var b strings.Builder
	b.WriteString("📹 *Please select your preferred video call platform:*\n\n")
	for i, p := range platforms {
		fmt.Fprintf(&b, "%d. %s", i+1, p.DisplayName)
		if p.RequiresDownload {
			b.WriteString(" 📥")
		}
		b.WriteString("\n")
	}
	b.WriteString("\n💡 Platforms marked with 📥 require downloading an app")
	fmt.Fprintf(&b, "\nReply with the number (1-%d)", len(platforms))
	return b.String()
}

// FormatCandidateOptions renders the disambiguation list for a name with several matches.
func FormatCandidateOptions(name string, candidates []models.CandidateOption) string {
	var b strings.Builder
	fmt.Fprintf(&b, "I found %d maids matching \"%s\":\n\n", len(candidates), name)
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c.FullName)
	}
	b.WriteString("\nReply with the number to select a maid.")
	return b.String()
}

// ParseSelection returns the 1-based position named by the first run of
// digits in reply, or 0 when there is none or it falls outside 1..max.
func ParseSelection(reply string, max int) int {
	m := digitRun.FindString(strings.TrimSpace(reply))
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil || n < 1 || n > max {
		return 0
	}
	return n
}

// invalidSelectionMessage is the re-prompt sent with the unchanged option list.
func invalidSelectionMessage(max int, list string) string {
	return fmt.Sprintf("Please reply with a number between 1 and %d\n\n%s", max, list)
}

// ScheduledAt combines a YYYY-MM-DD date and HH:MM time in loc.
func ScheduledAt(date, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(dateValueLayout+" "+timeValueLayout, date+" "+clock, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q %q", models.ErrInvalidScheduleTime, date, clock)
	}
	return t, nil
}
