package flow

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/InterviewPipe/internal/models"
	"github.com/BTreeMap/InterviewPipe/internal/store"
)

func newTestCapabilities(t *testing.T) (*StoreCapabilities, *store.InMemoryStore) {
	t.Helper()
	st := store.NewInMemoryStore()
	seedCandidates(t, st)
	caps := NewStoreCapabilities(st, time.UTC, nil)
	caps.now = func() time.Time { return testNow }
	caps.newID = func() string { return "b0000001-7e57-4000-8000-000000000000" }
	return caps, st
}

func TestStoreCapabilities_SearchDefaultsToAvailable(t *testing.T) {
	caps, _ := newTestCapabilities(t)

	all, err := caps.SearchCandidates(context.Background(), models.CandidateFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	for _, c := range all {
		assert.NotEqual(t, "cand-hana", c.ID)
	}

	busy, err := caps.SearchCandidates(context.Background(), models.CandidateFilter{Status: models.CandidateStatusBusy})
	require.NoError(t, err)
	require.Len(t, busy, 1)
	assert.Equal(t, "Hana Girma", busy[0].FullName)
}

func TestStoreCapabilities_CreateBooking(t *testing.T) {
	caps, st := newTestCapabilities(t)
	ctx := context.Background()

	b, err := caps.CreateBooking(ctx, sponsorPhone, BookingRequest{CandidateID: "cand-almaz", Date: "2026-10-20", Time: "11:00"})
	require.NoError(t, err)

	assert.Equal(t, models.PlatformWhatsAppVideo, b.Platform)
	require.NotNil(t, b.MeetingLink)
	assert.Equal(t, "https://wa.me/251911000001?text=Video%20Interview%20-%20b0000001-7e57-4000-8000-000000000000", *b.MeetingLink)
	assert.Equal(t, models.LinkTypeDirect, b.LinkType)
	assert.Equal(t, models.BookingStatusPendingConfirmation, b.Status)
	assert.Equal(t, models.CreatedViaAssistant, b.CreatedVia)
	assert.Equal(t, time.Date(2026, 10, 20, 11, 0, 0, 0, time.UTC), b.ScheduledAt)

	stored, err := st.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, sponsorPhone, stored.RequesterPhone)
	assert.Equal(t, almazPhone, stored.CandidatePhone)
}

func TestStoreCapabilities_CreateBookingRejects(t *testing.T) {
	caps, _ := newTestCapabilities(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		req     BookingRequest
		wantErr error
	}{
		{"past", BookingRequest{CandidateID: "cand-almaz", Date: "2026-10-18", Time: "09:00"}, models.ErrInvalidScheduleTime},
		{"malformed date", BookingRequest{CandidateID: "cand-almaz", Date: "20/10/2026", Time: "09:00"}, models.ErrInvalidScheduleTime},
		{"unknown candidate", BookingRequest{CandidateID: "cand-nobody", Date: "2026-10-20", Time: "09:00"}, models.ErrCandidateNotFound},
		{"busy candidate", BookingRequest{CandidateID: "cand-hana", Date: "2026-10-20", Time: "09:00"}, models.ErrCandidateUnavailable},
		{"unknown platform", BookingRequest{CandidateID: "cand-almaz", Date: "2026-10-20", Time: "09:00", Platform: "carrier_pigeon"}, models.ErrPlatformNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := caps.CreateBooking(ctx, sponsorPhone, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestStoreCapabilities_CreateBookingRejectsUnavailableWithoutSideEffects(t *testing.T) {
	caps, st := newTestCapabilities(t)
	caps.WithAdminNumber("+971500000000")

	_, err := caps.CreateBooking(context.Background(), sponsorPhone, BookingRequest{CandidateID: "cand-hana", Date: "2026-10-20", Time: "11:00"})

	require.ErrorIs(t, err, models.ErrCandidateUnavailable)
	assert.Contains(t, err.Error(), "Hana Girma is busy")
	bookings, err := st.ListBookings(context.Background(), models.BookingFilter{Phone: sponsorPhone})
	require.NoError(t, err)
	assert.Empty(t, bookings)
	assert.Empty(t, st.OutboxMessages())
}

func TestStoreCapabilities_CreateBookingNotifiesAdmin(t *testing.T) {
	caps, st := newTestCapabilities(t)
	ctx := context.Background()

	b, err := caps.CreateBooking(ctx, sponsorPhone, BookingRequest{CandidateID: "cand-almaz", Date: "2026-10-20", Time: "11:00"})
	require.NoError(t, err)

	notifications, err := st.ListNotifications(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, models.NotificationAdminApprovalNeeded, notifications[0].Type)
	assert.Equal(t, "admin", notifications[0].RecipientType)
	assert.Equal(t, "New interview request: Almaz Tesfaye on Tuesday, Oct 20 at 11:00 AM", notifications[0].MessageText)
	assert.JSONEq(t, `{"interview_id":"`+b.ID+`","maid_name":"Almaz Tesfaye","scheduled_date":"2026-10-20T11:00:00Z"}`, notifications[0].MessageData)
	assert.Empty(t, st.OutboxMessages(), "no admin number configured")

	caps.WithAdminNumber("+971500000000")
	caps.newID = func() string { return "b0000002-7e57-4000-8000-000000000000" }
	second, err := caps.CreateBooking(ctx, sponsorPhone, BookingRequest{CandidateID: "cand-fatima-a", Date: "2026-10-21", Time: "14:00"})
	require.NoError(t, err)

	outbox := st.OutboxMessages()
	require.Len(t, outbox, 1)
	assert.Equal(t, "+971500000000", outbox[0].Recipient)
	assert.Equal(t, store.OutboxKindAdminNotification, outbox[0].Kind)
	assert.Equal(t, second.ID, outbox[0].DedupeKey)
	assert.Contains(t, outbox[0].PayloadJSON, "New interview request: Fatima Ali on Wednesday, Oct 21 at 2:00 PM")
}

func TestStoreCapabilities_CancelBooking(t *testing.T) {
	caps, st := newTestCapabilities(t)
	ctx := context.Background()
	b, err := caps.CreateBooking(ctx, sponsorPhone, BookingRequest{CandidateID: "cand-almaz", Date: "2026-10-20", Time: "11:00"})
	require.NoError(t, err)

	_, err = caps.CancelBooking(ctx, "+15559999999", b.ID, "not mine")
	assert.ErrorIs(t, err, models.ErrBookingNotFound)

	_, err = caps.CancelBooking(ctx, sponsorPhone, b.ID, strings.Repeat("x", models.MaxCancelReasonLength+1))
	assert.ErrorIs(t, err, models.ErrCancelReasonTooLong)

	cancelled, err := caps.CancelBooking(ctx, sponsorPhone, b.ID, "found someone else")
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, cancelled.Status)
	assert.Equal(t, "found someone else", cancelled.CancelReason)

	_, err = caps.CancelBooking(ctx, sponsorPhone, b.ID, "")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	stored, err := st.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, stored.Status)
}

func TestStoreCapabilities_RescheduleBooking(t *testing.T) {
	caps, _ := newTestCapabilities(t)
	ctx := context.Background()
	b, err := caps.CreateBooking(ctx, sponsorPhone, BookingRequest{CandidateID: "cand-almaz", Date: "2026-10-20", Time: "11:00"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		in      string
		want    time.Time
		wantErr error
	}{
		{"space layout", "2026-10-22 15:00", time.Date(2026, 10, 22, 15, 0, 0, 0, time.UTC), nil},
		{"T layout", "2026-10-23T09:00", time.Date(2026, 10, 23, 9, 0, 0, 0, time.UTC), nil},
		{"rfc3339", "2026-10-24T10:00:00+03:00", time.Date(2026, 10, 24, 7, 0, 0, 0, time.UTC), nil},
		{"past", "2026-10-01 10:00", time.Time{}, models.ErrInvalidScheduleTime},
		{"garbage", "next tuesday", time.Time{}, models.ErrInvalidScheduleTime},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := caps.RescheduleBooking(ctx, sponsorPhone, b.ID, tt.in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got.ScheduledAt), "got %s", got.ScheduledAt)
		})
	}

	// The candidate is party to the booking too.
	_, err = caps.RescheduleBooking(ctx, almazPhone, b.ID, "2026-10-25 10:00")
	require.NoError(t, err)

	_, err = caps.RescheduleBooking(ctx, "+15559999999", b.ID, "2026-10-25 10:00")
	assert.ErrorIs(t, err, models.ErrBookingNotFound)
}

func TestStoreCapabilities_ListBookings(t *testing.T) {
	caps, _ := newTestCapabilities(t)
	ctx := context.Background()

	_, err := caps.ListBookings(ctx, "", "")
	assert.ErrorIs(t, err, models.ErrEmptyRecipient)

	_, err = caps.CreateBooking(ctx, sponsorPhone, BookingRequest{CandidateID: "cand-almaz", Date: "2026-10-20", Time: "11:00"})
	require.NoError(t, err)

	pending, err := caps.ListBookings(ctx, sponsorPhone, models.BookingStatusPendingConfirmation)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	confirmed, err := caps.ListBookings(ctx, sponsorPhone, models.BookingStatusConfirmed)
	require.NoError(t, err)
	assert.Empty(t, confirmed)
}
