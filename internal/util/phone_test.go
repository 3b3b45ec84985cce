package util

import "testing"

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"whatsapp:+15550001111", "+15550001111"},
		{"WhatsApp:+15550001111", "+15550001111"},
		{"  +15550001111 ", "+15550001111"},
		{"+15550001111", "+15550001111"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizePhone(tt.in); got != tt.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWhatsAppAddress(t *testing.T) {
	if got := WhatsAppAddress("+15550001111"); got != "whatsapp:+15550001111" {
		t.Errorf("WhatsAppAddress() = %q", got)
	}
	if got := WhatsAppAddress("whatsapp:+15550001111"); got != "whatsapp:+15550001111" {
		t.Errorf("WhatsAppAddress() should not double prefix, got %q", got)
	}
	if got := WhatsAppAddress(""); got != "" {
		t.Errorf("WhatsAppAddress(\"\") = %q, want empty", got)
	}
}

func TestDigitsOnly(t *testing.T) {
	if got := DigitsOnly("+1 (555) 000-1111"); got != "15550001111" {
		t.Errorf("DigitsOnly() = %q", got)
	}
	if got := DigitsOnly("٣٤"); got != "" {
		t.Errorf("DigitsOnly() should keep ASCII digits only, got %q", got)
	}
}
