// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// The hubspot-meeting-sync service.
package main

// Polling-and-fan-out loop for HubSpot meetings.
//
// Each run:
//  1. fetches up to meetingsPageSize meetings whose hs_timestamp is newer than
//     now - meetingsLookback (no further pages are requested),
//  2. classifies each meeting as created or updated,
//  3. resolves the meeting's attendee emails,
//  4. dispatches one action per (meeting, attendee) pair, in order.
//
// Nothing is persisted between runs, so consecutive runs may reprocess the
// same meetings, and changes beyond the first page of the window are dropped.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/mo"
)

const (
	meetingsPageSize = 10
	meetingsLookback = 24 * time.Hour
)

// MeetingSource reads meeting records from the CRM.
type MeetingSource interface {
	SearchMeetings(ctx context.Context, query MeetingsQuery) ([]MeetingRecord, error)
}

// AttendeeLookup resolves the contacts attending a meeting.
type AttendeeLookup interface {
	GetMeetingAttendees(ctx context.Context, meetingID string) ([]Contact, error)
}

// ActionDispatcher performs the side effect for one meeting action.
type ActionDispatcher interface {
	ProcessAction(ctx context.Context, kind ActionKind, payload ActionPayload) error
}

// MeetingOutcome is the result of processing a single meeting.
type MeetingOutcome struct {
	MeetingID  string
	Action     ActionKind
	Attendees  int
	Dispatched int
	// AttendeeErr is set when the attendee lookup failed and the meeting was
	// treated as having no attendees.
	AttendeeErr error
	// Err is set when a dispatch failed; remaining attendees were skipped.
	Err error
}

// RunReport is the result of one polling run.
type RunReport struct {
	WindowStart time.Time
	// FetchErr is set when the CRM fetch failed and no meetings were processed.
	FetchErr error
	Meetings []MeetingOutcome
}

// Dispatched returns the number of actions dispatched during the run.
func (r RunReport) Dispatched() int {
	total := 0
	for _, m := range r.Meetings {
		total += m.Dispatched
	}
	return total
}

// Failed reports whether the fetch or any meeting failed.
func (r RunReport) Failed() bool {
	if r.FetchErr != nil {
		return true
	}
	for _, m := range r.Meetings {
		if m.Err != nil || m.AttendeeErr != nil {
			return true
		}
	}
	return false
}

// orchestratorOption is a functional option for a MeetingSyncOrchestrator.
type orchestratorOption func(*MeetingSyncOrchestrator)

// withClock overrides the wall clock used to compute the fetch window.
func withClock(now func() time.Time) orchestratorOption {
	return func(o *MeetingSyncOrchestrator) { o.now = now }
}

// MeetingSyncOrchestrator wires the CRM, the attendee lookup and the action
// dispatcher together.
type MeetingSyncOrchestrator struct {
	meetings   MeetingSource
	attendees  AttendeeLookup
	dispatcher ActionDispatcher
	logger     *slog.Logger
	now        func() time.Time
}

// NewMeetingSyncOrchestrator creates an orchestrator over the given
// collaborators.
func NewMeetingSyncOrchestrator(meetings MeetingSource, attendees AttendeeLookup, dispatcher ActionDispatcher, logger *slog.Logger, opts ...orchestratorOption) *MeetingSyncOrchestrator {
	o := &MeetingSyncOrchestrator{
		meetings:   meetings,
		attendees:  attendees,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunOnce fetches the recent meetings window and dispatches actions for each
// meeting attendee. It never returns an error: failures are logged and
// recorded in the returned report.
func (o *MeetingSyncOrchestrator) RunOnce(ctx context.Context) RunReport {
	report := RunReport{
		WindowStart: o.now().Add(-meetingsLookback),
	}

	meetings, err := o.fetchRecentMeetings(ctx, report.WindowStart)
	if err != nil {
		report.FetchErr = err
		o.logger.With(errKey, err, "window_start", report.WindowStart).ErrorContext(ctx, "error processing meetings")
		return report
	}

	o.logger.With("window_start", report.WindowStart, "meetings", len(meetings)).DebugContext(ctx, "fetched recent meetings")

	for _, meeting := range meetings {
		outcome := o.processOne(ctx, meeting)
		report.Meetings = append(report.Meetings, outcome)

		log := o.logger.With("meeting_id", outcome.MeetingID, "action_type", outcome.Action.String())
		if outcome.AttendeeErr != nil {
			log.With(errKey, outcome.AttendeeErr).WarnContext(ctx, "could not fetch attendees for meeting")
		}
		if outcome.Err != nil {
			log.With(errKey, outcome.Err, "dispatched", outcome.Dispatched, "attendees", outcome.Attendees).
				ErrorContext(ctx, "error processing meeting")
			continue
		}
		log.With("dispatched", outcome.Dispatched).DebugContext(ctx, "processed meeting")
	}

	o.logger.With(
		"window_start", report.WindowStart,
		"meetings", len(report.Meetings),
		"dispatched", report.Dispatched(),
		"failed", report.Failed(),
	).InfoContext(ctx, "meeting sync run complete")

	return report
}

// fetchRecentMeetings requests a single page of meetings modified after
// windowStart.
func (o *MeetingSyncOrchestrator) fetchRecentMeetings(ctx context.Context, windowStart time.Time) ([]MeetingRecord, error) {
	query := MeetingsQuery{
		Limit:          meetingsPageSize,
		Properties:     meetingProperties,
		FilterProperty: propTimestamp,
		After:          windowStart,
	}
	meetings, err := o.meetings.SearchMeetings(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch recent meetings: %w", err)
	}
	return meetings, nil
}

// processOne classifies a meeting and dispatches one action per attendee
// email. A dispatch error stops the remaining attendees of this meeting.
func (o *MeetingSyncOrchestrator) processOne(ctx context.Context, meeting MeetingRecord) MeetingOutcome {
	outcome := MeetingOutcome{
		MeetingID: meeting.ID,
		Action:    classify(meeting),
	}

	emails, err := o.resolveAttendees(ctx, meeting.ID).Get()
	if err != nil {
		outcome.AttendeeErr = err
		emails = nil
	}
	outcome.Attendees = len(emails)

	for _, email := range emails {
		payload := newActionPayload(meeting, email)
		if err := o.dispatcher.ProcessAction(ctx, outcome.Action, payload); err != nil {
			outcome.Err = fmt.Errorf("failed to dispatch %q for meeting %s: %w", outcome.Action, meeting.ID, err)
			return outcome
		}
		outcome.Dispatched++
	}

	return outcome
}

// resolveAttendees returns the attendee emails of a meeting in the order the
// lookup returned them. Contacts without an email are skipped.
func (o *MeetingSyncOrchestrator) resolveAttendees(ctx context.Context, meetingID string) mo.Result[[]string] {
	contacts, err := o.attendees.GetMeetingAttendees(ctx, meetingID)
	if err != nil {
		return mo.Err[[]string](fmt.Errorf("attendee lookup for meeting %s: %w", meetingID, err))
	}

	emails := make([]string, 0, len(contacts))
	for _, contact := range contacts {
		if contact.Email == "" {
			continue
		}
		emails = append(emails, contact.Email)
	}
	return mo.Ok(emails)
}

// classify reports a meeting as created when its creation and last
// modification instants are identical, and as updated otherwise.
func classify(meeting MeetingRecord) ActionKind {
	if meeting.CreatedAt.Equal(meeting.UpdatedAt) {
		return ActionMeetingCreated
	}
	return ActionMeetingUpdated
}
