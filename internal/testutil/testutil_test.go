package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BTreeMap/InterviewPipe/internal/store"
)

// mockTestingT records failures instead of failing the enclosing test.
type mockTestingT struct {
	testing.TB
	failed   bool
	errorMsg string
}

func (m *mockTestingT) Helper() {}

func (m *mockTestingT) Errorf(format string, args ...interface{}) {
	m.failed = true
	m.errorMsg = fmt.Sprintf(format, args...)
}

func (m *mockTestingT) Fatalf(format string, args ...interface{}) {
	m.failed = true
	m.errorMsg = fmt.Sprintf(format, args...)
}

func TestAssertHTTPStatus(t *testing.T) {
	tests := []struct {
		name       string
		expected   int
		actual     int
		shouldFail bool
	}{
		{"matching status codes", 200, 200, false},
		{"different status codes", 200, 404, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockT := &mockTestingT{TB: t}
			AssertHTTPStatus(mockT, tt.expected, tt.actual, "test context")
			if mockT.failed != tt.shouldFail {
				t.Errorf("failed = %v; want %v (%s)", mockT.failed, tt.shouldFail, mockT.errorMsg)
			}
		})
	}
}

func TestAssertJSONResponse(t *testing.T) {
	tests := []struct {
		name           string
		jsonBody       string
		expectedStatus string
		shouldFail     bool
	}{
		{"valid ok", `{"status":"ok","result":[]}`, "ok", false},
		{"status mismatch", `{"status":"error","message":"boom"}`, "ok", true},
		{"missing status", `{"result":1}`, "ok", true},
		{"invalid json", `{"status":`, "ok", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockT := &mockTestingT{TB: t}
			rr := httptest.NewRecorder()
			rr.Body.WriteString(tt.jsonBody)
			AssertJSONResponse(mockT, rr, tt.expectedStatus)
			if mockT.failed != tt.shouldFail {
				t.Errorf("failed = %v; want %v (%s)", mockT.failed, tt.shouldFail, mockT.errorMsg)
			}
		})
	}
}

func TestCreateHTTPRequest(t *testing.T) {
	req := CreateHTTPRequest(t, http.MethodPost, "/bookings/b1/status", map[string]string{"status": "confirmed"})
	if req.Method != http.MethodPost || req.URL.Path != "/bookings/b1/status" {
		t.Errorf("unexpected request %s %s", req.Method, req.URL.Path)
	}
	if req.Header.Get("Content-Type") != "application/json" {
		t.Errorf("unexpected content type %q", req.Header.Get("Content-Type"))
	}
}

func TestWebhookRequest(t *testing.T) {
	req := CreateWebhookRequest(t, "/webhook/whatsapp", WebhookForm(SponsorPhone, "hi", "SM1"))
	if err := req.ParseForm(); err != nil {
		t.Fatal(err)
	}
	if req.PostForm.Get("From") != "whatsapp:"+SponsorPhone || req.PostForm.Get("MessageSid") != "SM1" {
		t.Errorf("unexpected form %v", req.PostForm)
	}
}

func TestTwiMLAssertions(t *testing.T) {
	rr := httptest.NewRecorder()
	rr.Header().Set("Content-Type", "text/xml")
	rr.WriteHeader(http.StatusOK)
	rr.Body.WriteString(`<?xml version="1.0" encoding="UTF-8"?><Response><Message>Pong! Webhook is working.</Message></Response>`)

	if got := AssertTwiMLMessage(t, rr, "Pong!"); got != "Pong! Webhook is working." {
		t.Errorf("AssertTwiMLMessage() = %q", got)
	}

	mockT := &mockTestingT{TB: t}
	AssertEmptyTwiML(mockT, rr)
	if !mockT.failed {
		t.Error("AssertEmptyTwiML should fail for a reply with a message")
	}

	empty := httptest.NewRecorder()
	empty.WriteHeader(http.StatusOK)
	empty.Body.WriteString(`<?xml version="1.0" encoding="UTF-8"?><Response></Response>`)
	AssertEmptyTwiML(t, empty)
}

func TestSeedCandidates(t *testing.T) {
	st := store.NewInMemoryStore()
	seeded := SeedCandidates(t, st)
	c, err := st.GetCandidate(t.Context(), seeded[0].ID)
	if err != nil || c == nil {
		t.Fatalf("seeded candidate missing: %v", err)
	}
	if c.PhoneNumber != CandidatePhone {
		t.Errorf("PhoneNumber = %q", c.PhoneNumber)
	}
}
