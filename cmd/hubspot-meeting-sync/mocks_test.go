// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/stretchr/testify/mock"
)

// testLogger returns a logger that discards all output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// MockMeetingSource is a mock implementation of the MeetingSource interface
type MockMeetingSource struct {
	mock.Mock
}

func (m *MockMeetingSource) SearchMeetings(ctx context.Context, query MeetingsQuery) ([]MeetingRecord, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]MeetingRecord), args.Error(1)
}

// MockAttendeeLookup is a mock implementation of the AttendeeLookup interface
type MockAttendeeLookup struct {
	mock.Mock
}

func (m *MockAttendeeLookup) GetMeetingAttendees(ctx context.Context, meetingID string) ([]Contact, error) {
	args := m.Called(ctx, meetingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Contact), args.Error(1)
}

// MockActionDispatcher is a mock implementation of the ActionDispatcher interface
type MockActionDispatcher struct {
	mock.Mock
}

func (m *MockActionDispatcher) ProcessAction(ctx context.Context, kind ActionKind, payload ActionPayload) error {
	args := m.Called(ctx, kind, payload)
	return args.Error(0)
}

// dispatchedPayloads returns the payloads passed to ProcessAction, in call order.
func (m *MockActionDispatcher) dispatchedPayloads() []ActionPayload {
	payloads := []ActionPayload{}
	for _, call := range m.Calls {
		if call.Method == "ProcessAction" {
			payloads = append(payloads, call.Arguments.Get(2).(ActionPayload))
		}
	}
	return payloads
}
