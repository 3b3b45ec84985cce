package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/InterviewPipe/internal/models"
	"github.com/BTreeMap/InterviewPipe/internal/store"
)

const (
	// candidateSearchLimit caps the disambiguation list.
	candidateSearchLimit = 5

	msgGenericApology = "Sorry, I couldn't process your message. Please try again."
	msgNameRequired   = `Please specify which maid you'd like to interview. For example: "Schedule video interview with Fatima"`
	msgFlowCancelled  = "Okay, I've cancelled this interview booking. Send \"Schedule video interview with <name>\" whenever you'd like to start again."
)

var cancelKeywords = map[string]bool{"cancel": true, "stop": true, "exit": true}

// Dispatcher walks a subject through the date, time and platform steps.
type Dispatcher struct {
	store     store.Store
	sessions  *SessionStore
	finalizer *Finalizer
	loc       *time.Location
	now       func() time.Time
}

// NewDispatcher creates a Dispatcher. A nil loc means UTC.
func NewDispatcher(st store.Store, sessions *SessionStore, finalizer *Finalizer, loc *time.Location) *Dispatcher {
	if loc == nil {
		loc = time.UTC
	}
	return &Dispatcher{store: st, sessions: sessions, finalizer: finalizer, loc: loc, now: time.Now}
}

// IsCancel reports whether text is one of the in-flow cancel keywords.
func IsCancel(text string) bool {
	return cancelKeywords[strings.ToLower(strings.TrimSpace(text))]
}

// StartBooking resolves name to an available candidate and opens the flow.
// Several matches produce a disambiguation list; none produce a not-found reply.
func (d *Dispatcher) StartBooking(ctx context.Context, subject, name string) string {
	if name == "" {
		return msgNameRequired
	}

	searchCtx, cancel := d.sessions.bound(ctx)
	candidates, err := d.store.SearchCandidates(searchCtx, models.CandidateFilter{
		Name:   name,
		Status: models.CandidateStatusAvailable,
		Limit:  candidateSearchLimit,
	})
	cancel()
	if err != nil {
		slog.Error("Dispatcher.StartBooking: candidate search failed", "error", err, "subject", subject, "name", name)
		return msgGenericApology
	}
	if len(candidates) == 0 {
		slog.Info("Dispatcher.StartBooking: no candidate matched", "subject", subject, "name", name)
		return fmt.Sprintf("I couldn't find a maid named \"%s\". Would you like to see all available maids?", name)
	}

	if len(candidates) > 1 {
		options := make([]models.CandidateOption, 0, len(candidates))
		for _, c := range candidates {
			options = append(options, models.CandidateOption{ID: c.ID, FullName: c.FullName})
		}
		if err := d.sessions.Put(ctx, subject, models.StepAwaitingDate, models.SessionContext{CandidateOptions: options, CandidateQuery: name}); err != nil {
			return msgGenericApology
		}
		slog.Info("Dispatcher.StartBooking: several candidates matched", "subject", subject, "name", name, "count", len(options))
		return FormatCandidateOptions(name, options)
	}

	return d.openDateStep(ctx, subject, candidates[0].ID, candidates[0].FullName)
}

// openDateStep starts the flow for a resolved candidate with fresh date options.
func (d *Dispatcher) openDateStep(ctx context.Context, subject, candidateID, candidateName string) string {
	dates := GenerateDateOptions(d.now(), d.loc, DateOptionCount)
	sc := models.SessionContext{
		CandidateID:   candidateID,
		CandidateName: candidateName,
		DateOptions:   dates,
	}
	if err := d.sessions.Put(ctx, subject, models.StepAwaitingDate, sc); err != nil {
		return msgGenericApology
	}
	slog.Info("Dispatcher.openDateStep: booking flow started", "subject", subject, "candidateID", candidateID)
	return fmt.Sprintf("Great! Let's schedule a video interview with %s.\n\n%s", candidateName, FormatDateOptions(dates))
}

// Dispatch handles a reply from a subject whose session is mid-flow.
func (d *Dispatcher) Dispatch(ctx context.Context, session *models.Session, text string) string {
	subject := session.SubjectID
	if IsCancel(text) {
		if err := d.sessions.Clear(ctx, subject); err != nil {
			return msgGenericApology
		}
		slog.Info("Dispatcher.Dispatch: flow cancelled by subject", "subject", subject, "step", session.Step)
		return msgFlowCancelled
	}

	sc := session.Context
	switch session.Step {
	case models.StepAwaitingDate:
		if sc.AwaitingCandidateSelection() {
			return d.selectCandidate(ctx, subject, sc, text)
		}
		return d.selectDate(ctx, subject, sc, text)
	case models.StepAwaitingTime:
		return d.selectTime(ctx, subject, sc, text)
	case models.StepAwaitingPlatform:
		return d.selectPlatform(ctx, subject, sc, text)
	default:
		return d.restart(ctx, subject, "unexpected step "+string(session.Step))
	}
}

// restart drops a session that can no longer be resolved by position.
func (d *Dispatcher) restart(ctx context.Context, subject, reason string) string {
	slog.Warn("Dispatcher.restart: clearing unusable session", "subject", subject, "reason", reason)
	if err := d.sessions.Clear(ctx, subject); err != nil {
		slog.Warn("Dispatcher.restart: failed to clear session", "error", err, "subject", subject)
	}
	return msgStartAgain
}

func (d *Dispatcher) selectCandidate(ctx context.Context, subject string, sc models.SessionContext, text string) string {
	n := ParseSelection(text, len(sc.CandidateOptions))
	if n == 0 {
		slog.Debug("Dispatcher.selectCandidate: invalid selection", "subject", subject, "reply", text)
		return invalidSelectionMessage(len(sc.CandidateOptions), FormatCandidateOptions(sc.CandidateQuery, sc.CandidateOptions))
	}
	chosen := sc.CandidateOptions[n-1]
	return d.openDateStep(ctx, subject, chosen.ID, chosen.FullName)
}

func (d *Dispatcher) selectDate(ctx context.Context, subject string, sc models.SessionContext, text string) string {
	if len(sc.DateOptions) == 0 {
		return d.restart(ctx, subject, "date options missing")
	}
	n := ParseSelection(text, len(sc.DateOptions))
	if n == 0 {
		slog.Debug("Dispatcher.selectDate: invalid selection", "subject", subject, "reply", text)
		return invalidSelectionMessage(len(sc.DateOptions), FormatDateOptions(sc.DateOptions))
	}

	date := sc.DateOptions[n-1]
	slots := TimeSlots()
	sc.SelectedDate = date.Value
	sc.SelectedDateDisplay = date.Display
	sc.TimeOptions = slots
	if err := d.sessions.Put(ctx, subject, models.StepAwaitingTime, sc); err != nil {
		return msgGenericApology
	}
	return fmt.Sprintf("Perfect! %s it is.\n\n%s", date.Display, FormatTimeOptions(slots))
}

func (d *Dispatcher) selectTime(ctx context.Context, subject string, sc models.SessionContext, text string) string {
	slots := sc.TimeOptions
	if len(slots) == 0 {
		slots = TimeSlots()
	}
	n := ParseSelection(text, len(slots))
	if n == 0 {
		slog.Debug("Dispatcher.selectTime: invalid selection", "subject", subject, "reply", text)
		return invalidSelectionMessage(len(slots), FormatTimeOptions(slots))
	}

	platformCtx, cancel := d.sessions.bound(ctx)
	platforms, err := d.store.ListPlatformTemplates(platformCtx)
	cancel()
	if err != nil || len(platforms) == 0 {
		slog.Error("Dispatcher.selectTime: failed to load platforms", "error", err, "subject", subject, "count", len(platforms))
		return msgGenericApology
	}

	slot := slots[n-1]
	sc.TimeOptions = slots
	sc.SelectedTime = slot.Value
	sc.SelectedTimeDisplay = slot.Display
	sc.PlatformOptions = platforms
	if err := d.sessions.Put(ctx, subject, models.StepAwaitingPlatform, sc); err != nil {
		return msgGenericApology
	}
	return fmt.Sprintf("Great choice! %s on %s.\n\n%s", slot.Display, sc.SelectedDateDisplay, FormatPlatformOptions(platforms))
}

func (d *Dispatcher) selectPlatform(ctx context.Context, subject string, sc models.SessionContext, text string) string {
	if len(sc.PlatformOptions) == 0 {
		return d.restart(ctx, subject, "platform options missing")
	}
	n := ParseSelection(text, len(sc.PlatformOptions))
	if n == 0 {
		slog.Debug("Dispatcher.selectPlatform: invalid selection", "subject", subject, "reply", text)
		return invalidSelectionMessage(len(sc.PlatformOptions), FormatPlatformOptions(sc.PlatformOptions))
	}

	platform := sc.PlatformOptions[n-1]
	sc.SelectedPlatform = string(platform.Type)
	if err := d.sessions.Put(ctx, subject, models.StepProcessing, sc); err != nil {
		slog.Warn("Dispatcher.selectPlatform: failed to mark session processing", "error", err, "subject", subject)
	}
	return d.finalizer.Finalize(ctx, subject, sc, platform)
}
