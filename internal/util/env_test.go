package util

import (
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"", true, true},
		{"true", false, true},
		{"ON", false, true},
		{"0", true, false},
		{"no", true, false},
		{"maybe", true, true},
	}
	for _, tt := range tests {
		t.Setenv("TEST_BOOL", tt.value)
		if got := ParseBoolEnv("TEST_BOOL", tt.def); got != tt.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
		}
	}
}

func TestParseDurationEnv(t *testing.T) {
	t.Setenv("TEST_DURATION", "25s")
	if got := ParseDurationEnv("TEST_DURATION", time.Minute); got != 25*time.Second {
		t.Errorf("ParseDurationEnv() = %v, want 25s", got)
	}
	t.Setenv("TEST_DURATION", "soon")
	if got := ParseDurationEnv("TEST_DURATION", time.Minute); got != time.Minute {
		t.Errorf("ParseDurationEnv() invalid = %v, want default", got)
	}
	t.Setenv("TEST_DURATION", "-5s")
	if got := ParseDurationEnv("TEST_DURATION", time.Minute); got != time.Minute {
		t.Errorf("ParseDurationEnv() negative = %v, want default", got)
	}
}

func TestParseIntEnv(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	if got := ParseIntEnv("TEST_INT", 1); got != 42 {
		t.Errorf("ParseIntEnv() = %d, want 42", got)
	}
	t.Setenv("TEST_INT", "x")
	if got := ParseIntEnv("TEST_INT", 1); got != 1 {
		t.Errorf("ParseIntEnv() invalid = %d, want default", got)
	}
}

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("TEST_STR", "  value ")
	if got := GetEnvOrDefault("TEST_STR", "d"); got != "value" {
		t.Errorf("GetEnvOrDefault() = %q", got)
	}
	t.Setenv("TEST_STR", "")
	if got := GetEnvOrDefault("TEST_STR", "d"); got != "d" {
		t.Errorf("GetEnvOrDefault() unset = %q", got)
	}
}
