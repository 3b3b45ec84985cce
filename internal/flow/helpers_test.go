package flow

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/InterviewPipe/internal/models"
	"github.com/BTreeMap/InterviewPipe/internal/store"
)

// testNow is a Sunday; the next five bookable days are Mon 19 to Thu 22 and Sat 24.
var testNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

const (
	sponsorPhone = "+15550001111"
	almazPhone   = "+251911000001"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// recordingAssistant records every call and answers with a fixed reply.
type recordingAssistant struct {
	mu      sync.Mutex
	calls   []string
	history [][]models.ConversationMessage
	reply   string
	err     error
	panics  bool
}

func (a *recordingAssistant) Reply(ctx context.Context, subject, text string, history []models.ConversationMessage) (string, error) {
	if a.panics {
		panic("assistant exploded")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, text)
	a.history = append(a.history, history)
	if a.reply == "" {
		return "assistant reply", a.err
	}
	return a.reply, a.err
}

func (a *recordingAssistant) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

type fixture struct {
	t         *testing.T
	st        *store.InMemoryStore
	conv      *Conversation
	clock     *testClock
	assistant *recordingAssistant
	ids       int
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	st := store.NewInMemoryStore()
	seedCandidates(t, st)
	return newFixtureOver(t, st, st, opts...)
}

// newFixtureOver runs the conversation against backend while st stays
// available for seeding and inspection.
func newFixtureOver(t *testing.T, st *store.InMemoryStore, backend store.Store, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{t: t, st: st, clock: &testClock{t: testNow}, assistant: &recordingAssistant{}}
	opts = append([]Option{WithAssistant(f.assistant)}, opts...)
	f.conv = NewConversation(backend, opts...)

	f.conv.sessions.now = f.clock.Now
	f.conv.dispatcher.now = f.clock.Now
	f.conv.dispatcher.finalizer.now = f.clock.Now
	f.conv.dispatcher.finalizer.newID = func() string {
		f.ids++
		return fmt.Sprintf("b00%05d-7e57-4000-8000-000000000000", f.ids)
	}
	return f
}

func seedCandidates(t *testing.T, st store.CandidateRepo) {
	t.Helper()
	candidates := []models.Candidate{
		{ID: "cand-almaz", FullName: "Almaz Tesfaye", PhoneNumber: almazPhone, Skills: []string{"cooking", "cleaning"}, ExperienceYears: 5, Location: "UAE", AvailabilityStatus: models.CandidateStatusAvailable},
		{ID: "cand-fatima-a", FullName: "Fatima Ali", PhoneNumber: "+251911000002", Skills: []string{"childcare"}, ExperienceYears: 3, Location: "Qatar", AvailabilityStatus: models.CandidateStatusAvailable},
		{ID: "cand-fatima-s", FullName: "Fatima Said", Skills: []string{"cooking"}, ExperienceYears: 8, Location: "Oman", AvailabilityStatus: models.CandidateStatusAvailable},
		{ID: "cand-hana", FullName: "Hana Girma", PhoneNumber: "+251911000004", ExperienceYears: 2, AvailabilityStatus: models.CandidateStatusBusy},
	}
	for _, c := range candidates {
		if err := st.SaveCandidate(context.Background(), c); err != nil {
			t.Fatalf("failed to seed candidate %s: %v", c.ID, err)
		}
	}
}

func (f *fixture) send(from, body string) string {
	f.t.Helper()
	return f.conv.Handle(context.Background(), models.InboundMessage{From: from, Body: body, ReceivedAt: f.clock.Now()})
}

func (f *fixture) session(subject string) *models.Session {
	f.t.Helper()
	return f.conv.sessions.Get(context.Background(), subject)
}

func (f *fixture) bookings(phone string) []models.Booking {
	f.t.Helper()
	bookings, err := f.st.ListBookings(context.Background(), models.BookingFilter{Phone: phone})
	if err != nil {
		f.t.Fatalf("failed to list bookings: %v", err)
	}
	return bookings
}
