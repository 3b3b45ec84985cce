package flow

import (
	"regexp"
	"strings"
)

// IntentKind classifies an inbound message.
type IntentKind int

const (
	// IntentNone means no rule matched.
	IntentNone IntentKind = iota
	// IntentConfirmation is a yes/no reply to a pending booking.
	IntentConfirmation
	// IntentNewBooking is a request to start the booking flow.
	IntentNewBooking
)

func (k IntentKind) String() string {
	switch k {
	case IntentConfirmation:
		return "confirmation"
	case IntentNewBooking:
		return "new_booking"
	default:
		return "none"
	}
}

// Intent is the result of classifying one message.
type Intent struct {
	Kind IntentKind
	// Yes is set for confirmations.
	Yes bool
	// Name is the requested candidate name of a new booking request, if any.
	Name string
}

var (
	yesTerms     = []string{"yes", "y", "ok", "okay", "confirm", "accept", "agree", "نعم", "አዎ"}
	noTerms      = []string{"no", "n", "decline", "reject", "cancel", "لا", "አይ"}
	actionTerms  = []string{"schedule", "book", "arrange"}
	subjectTerms = []string{"interview", "video"}

	namePattern = regexp.MustCompile(`(?i)(?:with|for)\s+([a-z]+(?:\s+[a-z]+)?)`)
)

type intentRule func(text string) (Intent, bool)

// confirmationRules and requestRules are evaluated in order; the first match wins.
var (
	confirmationRules = []intentRule{matchYes, matchNo}
	requestRules      = []intentRule{matchNewBooking}
)

// Classify evaluates every rule against text, confirmations first.
func Classify(text string) Intent {
	if intent, ok := evaluate(confirmationRules, text); ok {
		return intent
	}
	return ClassifyRequest(text)
}

// ClassifyRequest evaluates only the booking request rules.
func ClassifyRequest(text string) Intent {
	if intent, ok := evaluate(requestRules, text); ok {
		// Extract from the original text so the name keeps its casing.
		intent.Name = ExtractName(text)
		return intent
	}
	return Intent{Kind: IntentNone}
}

// ExtractName returns the first name following "with" or "for", or "".
func ExtractName(text string) string {
	m := namePattern.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func evaluate(rules []intentRule, text string) (Intent, bool) {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return Intent{}, false
	}
	for _, rule := range rules {
		if intent, ok := rule(lower); ok {
			return intent, true
		}
	}
	return Intent{}, false
}

func matchYes(text string) (Intent, bool) {
	if containsAny(text, yesTerms) {
		return Intent{Kind: IntentConfirmation, Yes: true}, true
	}
	return Intent{}, false
}

func matchNo(text string) (Intent, bool) {
	if containsAny(text, noTerms) {
		return Intent{Kind: IntentConfirmation, Yes: false}, true
	}
	return Intent{}, false
}

func matchNewBooking(text string) (Intent, bool) {
	if containsAny(text, actionTerms) && containsAny(text, subjectTerms) {
		return Intent{Kind: IntentNewBooking}, true
	}
	return Intent{}, false
}

func containsAny(text string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}
