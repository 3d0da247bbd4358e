// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// The hubspot-meeting-sync service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// newActionEvent wraps a payload in an ActionEvent with a new time-ordered ID.
func newActionEvent(kind ActionKind, payload ActionPayload, now time.Time) (ActionEvent, error) {
	eventID, err := uuid.NewV7()
	if err != nil {
		return ActionEvent{}, fmt.Errorf("failed to generate event ID: %w", err)
	}
	return ActionEvent{
		EventID:    eventID.String(),
		ActionType: kind,
		Payload:    payload,
		EmittedAt:  now.UTC(),
	}, nil
}

// LogActionDispatcher only logs actions. It is used for dry runs.
type LogActionDispatcher struct {
	logger *slog.Logger
}

// NewLogActionDispatcher creates a dispatcher that logs every action.
func NewLogActionDispatcher(logger *slog.Logger) *LogActionDispatcher {
	return &LogActionDispatcher{logger: logger}
}

// ProcessAction implements ActionDispatcher.
func (d *LogActionDispatcher) ProcessAction(ctx context.Context, kind ActionKind, payload ActionPayload) error {
	d.logger.With(
		"action_type", kind.String(),
		"meeting_id", payload.MeetingID,
		"title", payload.Title,
		"start_time", payload.StartTime,
		"end_time", payload.EndTime,
		"created_by", payload.CreatedBy,
		"contact_email", payload.ContactEmail,
	).InfoContext(ctx, "meeting action")
	return nil
}
