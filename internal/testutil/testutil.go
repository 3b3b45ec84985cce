// Package testutil provides common test utilities and helpers for InterviewPipe tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/BTreeMap/InterviewPipe/internal/models"
	"github.com/BTreeMap/InterviewPipe/internal/store"
)

// Phones used across seeded data.
const (
	SponsorPhone   = "+15550001111"
	CandidatePhone = "+251911000001"
)

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t testing.TB, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes JSON response and validates the status field.
func AssertJSONResponse(t testing.TB, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
		return nil
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Errorf("response missing or invalid 'status' field")
	}
	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t testing.TB, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// WebhookForm builds the form Twilio posts for a WhatsApp text message.
func WebhookForm(from, body, messageSid string) url.Values {
	form := url.Values{
		"From":     {"whatsapp:" + from},
		"To":       {"whatsapp:+14155238886"},
		"Body":     {body},
		"NumMedia": {"0"},
	}
	if messageSid != "" {
		form.Set("MessageSid", messageSid)
	}
	return form
}

// CreateWebhookRequest creates a form-encoded POST to path.
func CreateWebhookRequest(t testing.TB, path string, form url.Values) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatalf("failed to create webhook request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// twimlResponse mirrors a TwiML messaging response.
type twimlResponse struct {
	Messages []string `xml:"Message"`
}

// TwiMLMessages parses a TwiML body and returns its message texts.
func TwiMLMessages(t testing.TB, body string) []string {
	t.Helper()
	var resp twimlResponse
	if err := xml.Unmarshal([]byte(body), &resp); err != nil {
		t.Fatalf("failed to parse TwiML %q: %v", body, err)
		return nil
	}
	return resp.Messages
}

// AssertTwiMLMessage checks rr is a 200 TwiML reply whose single message contains want.
func AssertTwiMLMessage(t testing.TB, rr *httptest.ResponseRecorder, want string) string {
	t.Helper()
	AssertHTTPStatus(t, http.StatusOK, rr.Code, "TwiML reply")
	if ct := rr.Header().Get("Content-Type"); !strings.Contains(ct, "xml") {
		t.Errorf("expected XML content type, got %q", ct)
	}
	msgs := TwiMLMessages(t, rr.Body.String())
	if len(msgs) != 1 {
		t.Fatalf("expected 1 TwiML message, got %d in %s", len(msgs), rr.Body.String())
		return ""
	}
	if !strings.Contains(msgs[0], want) {
		t.Errorf("TwiML message %q does not contain %q", msgs[0], want)
	}
	return msgs[0]
}

// AssertEmptyTwiML checks rr is a 200 TwiML acknowledgement with no message.
func AssertEmptyTwiML(t testing.TB, rr *httptest.ResponseRecorder) {
	t.Helper()
	AssertHTTPStatus(t, http.StatusOK, rr.Code, "TwiML ack")
	if msgs := TwiMLMessages(t, rr.Body.String()); len(msgs) != 0 {
		t.Errorf("expected no TwiML messages, got %v", msgs)
	}
}

// SeedCandidates adds a small candidate roster to st.
func SeedCandidates(t testing.TB, st store.CandidateRepo) []models.Candidate {
	t.Helper()
	candidates := []models.Candidate{
		{ID: "cand-almaz", FullName: "Almaz Tesfaye", PhoneNumber: CandidatePhone, Skills: []string{"cooking", "cleaning"}, ExperienceYears: 5, Location: "UAE", AvailabilityStatus: models.CandidateStatusAvailable},
		{ID: "cand-fatima-a", FullName: "Fatima Ali", PhoneNumber: "+251911000002", Skills: []string{"childcare"}, ExperienceYears: 3, Location: "Qatar", AvailabilityStatus: models.CandidateStatusAvailable},
		{ID: "cand-fatima-s", FullName: "Fatima Said", Skills: []string{"cooking"}, ExperienceYears: 8, Location: "Oman", AvailabilityStatus: models.CandidateStatusAvailable},
	}
	for _, c := range candidates {
		if err := st.SaveCandidate(context.Background(), c); err != nil {
			t.Fatalf("failed to seed candidate %s: %v", c.ID, err)
		}
	}
	return candidates
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t testing.TB, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t testing.TB, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
