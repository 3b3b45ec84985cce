package util

import (
	"strings"
	"unicode"
)

// WhatsAppPrefix is the channel prefix Twilio puts on WhatsApp addresses.
const WhatsAppPrefix = "whatsapp:"

// NormalizePhone strips the channel prefix and surrounding whitespace,
// leaving the E.164 form the store keys on.
func NormalizePhone(addr string) string {
	addr = strings.TrimSpace(addr)
	if len(addr) >= len(WhatsAppPrefix) && strings.EqualFold(addr[:len(WhatsAppPrefix)], WhatsAppPrefix) {
		addr = addr[len(WhatsAppPrefix):]
	}
	return strings.TrimSpace(addr)
}

// WhatsAppAddress returns phone with the channel prefix applied exactly once.
func WhatsAppAddress(phone string) string {
	phone = NormalizePhone(phone)
	if phone == "" {
		return ""
	}
	return WhatsAppPrefix + phone
}

// DigitsOnly drops every non-digit rune.
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) && r < unicode.MaxASCII {
			b.WriteRune(r)
		}
	}
	return b.String()
}
