package flow

import (
	"errors"
	"testing"
	"time"

	"github.com/BTreeMap/InterviewPipe/internal/models"
)

func TestGenerateDateOptions(t *testing.T) {
	got := GenerateDateOptions(testNow, time.UTC, DateOptionCount)
	want := []models.DateOption{
		{Display: "Monday, Oct 19", Value: "2026-10-19", DayOfWeek: "Monday"},
		{Display: "Tuesday, Oct 20", Value: "2026-10-20", DayOfWeek: "Tuesday"},
		{Display: "Wednesday, Oct 21", Value: "2026-10-21", DayOfWeek: "Wednesday"},
		{Display: "Thursday, Oct 22", Value: "2026-10-22", DayOfWeek: "Thursday"},
		{Display: "Saturday, Oct 24", Value: "2026-10-24", DayOfWeek: "Saturday"},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d options, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("option %d = %+v, want %+v", i+1, got[i], want[i])
		}
	}
}

func TestGenerateDateOptions_UsesLocation(t *testing.T) {
	// 22:30 UTC on Sunday is already Monday in Dubai.
	dubai := time.FixedZone("GST", 4*60*60)
	now := time.Date(2026, 10, 18, 22, 30, 0, 0, time.UTC)

	got := GenerateDateOptions(now, dubai, 1)
	if len(got) != 1 || got[0].Value != "2026-10-20" {
		t.Fatalf("expected first option 2026-10-20 in GST, got %+v", got)
	}
}

func TestGenerateDateOptions_NeverFridayAndBounded(t *testing.T) {
	for day := 0; day < 7; day++ {
		now := testNow.AddDate(0, 0, day)
		opts := GenerateDateOptions(now, time.UTC, 20)
		if len(opts) != 12 {
			t.Errorf("start %s: expected 12 non-Friday days in a 14 day window, got %d", now.Weekday(), len(opts))
		}
		for _, o := range opts {
			if o.DayOfWeek == "Friday" {
				t.Errorf("start %s: Friday offered: %+v", now.Weekday(), o)
			}
			d, err := time.Parse("2006-01-02", o.Value)
			if err != nil {
				t.Fatalf("bad value %q: %v", o.Value, err)
			}
			if !d.After(now.Truncate(24*time.Hour)) || d.Sub(now.Truncate(24*time.Hour)) > 14*24*time.Hour {
				t.Errorf("start %s: option %s outside tomorrow..+14d", now.Weekday(), o.Value)
			}
		}
	}
}

func TestFormatTimeOptions(t *testing.T) {
	want := "⏰ *Please select your preferred time:*\n\n" +
		"*Morning:*\n1. 9:00 AM\n2. 10:00 AM\n3. 11:00 AM\n" +
		"\n*Afternoon:*\n4. 2:00 PM\n5. 3:00 PM\n6. 4:00 PM\n" +
		"\n*Evening:*\n7. 6:00 PM\n8. 7:00 PM\n" +
		"\nReply with the number (1-8)"
	if got := FormatTimeOptions(TimeSlots()); got != want {
		t.Errorf("FormatTimeOptions() =\n%q\nwant\n%q", got, want)
	}
}

func TestFormatDateOptions(t *testing.T) {
	opts := GenerateDateOptions(testNow, time.UTC, 2)
	want := "📅 *Please select your preferred date:*\n\n1. Monday, Oct 19\n2. Tuesday, Oct 20\n\nReply with the number (1-2)"
	if got := FormatDateOptions(opts); got != want {
		t.Errorf("FormatDateOptions() = %q, want %q", got, want)
	}
}

func TestFormatPlatformOptions(t *testing.T) {
	platforms := []models.PlatformTemplate{
		{Type: models.PlatformWhatsAppVideo, DisplayName: "WhatsApp Video"},
		{Type: models.PlatformZoom, DisplayName: "Zoom", RequiresDownload: true},
	}
	want := "📹 *Please select your preferred video call platform:*\n\n1. WhatsApp Video\n2. Zoom 📥\n\n💡 Platforms marked with 📥 require downloading an app\nReply with the number (1-2)"
	if got := FormatPlatformOptions(platforms); got != want {
		t.Errorf("FormatPlatformOptions() = %q, want %q", got, want)
	}
}

func TestParseSelection(t *testing.T) {
	tests := []struct {
		reply string
		max   int
		want  int
	}{
		{"1", 5, 1},
		{"5", 5, 5},
		{" 3 ", 5, 3},
		{"option 2 please", 5, 2},
		{"2 or 3", 5, 2},
		{"0", 5, 0},
		{"6", 5, 0},
		{"9", 5, 0},
		{"-1", 5, 1},
		{"", 5, 0},
		{"three", 5, 0},
		{"1", 0, 0},
		{"99999999999999999999", 5, 0},
	}
	for _, tt := range tests {
		if got := ParseSelection(tt.reply, tt.max); got != tt.want {
			t.Errorf("ParseSelection(%q, %d) = %d, want %d", tt.reply, tt.max, got, tt.want)
		}
	}
}

func TestScheduledAt(t *testing.T) {
	dubai := time.FixedZone("GST", 4*60*60)
	got, err := ScheduledAt("2026-10-21", "14:00", dubai)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := time.Date(2026, 10, 21, 10, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("ScheduledAt = %s, want %s", got.UTC(), want)
	}

	if _, err := ScheduledAt("", "14:00", dubai); !errors.Is(err, models.ErrInvalidScheduleTime) {
		t.Errorf("expected ErrInvalidScheduleTime, got %v", err)
	}
	if _, err := ScheduledAt("2026-02-30", "09:00", nil); !errors.Is(err, models.ErrInvalidScheduleTime) {
		t.Errorf("expected ErrInvalidScheduleTime for impossible date, got %v", err)
	}
}
