// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// The hubspot-meeting-sync service.
package main

import (
	"time"
)

// HubSpot meeting properties requested on every fetch.
const (
	propMeetingTitle     = "hs_meeting_title"
	propMeetingStartTime = "hs_meeting_start_time"
	propMeetingEndTime   = "hs_meeting_end_time"
	propCreatedBy        = "hs_created_by"
	propTimestamp        = "hs_timestamp"
)

// meetingProperties is the fixed projection requested from the CRM.
var meetingProperties = []string{
	propMeetingTitle,
	propMeetingStartTime,
	propMeetingEndTime,
	propCreatedBy,
	propTimestamp,
}

// ActionKind is the classification of a meeting change.
type ActionKind string

// Literal labels expected by the action processor.
const (
	ActionMeetingCreated ActionKind = "Meeting Created"
	ActionMeetingUpdated ActionKind = "Meeting Updated"
)

// String returns the string representation of the ActionKind.
func (k ActionKind) String() string {
	return string(k)
}

// subjectToken returns the NATS subject token for the kind.
func (k ActionKind) subjectToken() string {
	switch k {
	case ActionMeetingCreated:
		return "meeting_created"
	case ActionMeetingUpdated:
		return "meeting_updated"
	default:
		return "meeting_unknown"
	}
}

// MeetingRecord is a meeting object as returned by the HubSpot CRM.
// Properties that HubSpot returns as null are stored as empty strings.
type MeetingRecord struct {
	ID         string            `json:"id"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
	Properties map[string]string `json:"properties"`
}

// Property returns a meeting property, or an empty string when absent.
func (m MeetingRecord) Property(name string) string {
	if m.Properties == nil {
		return ""
	}
	return m.Properties[name]
}

// Contact is a CRM contact associated with a meeting.
type Contact struct {
	ID    string
	Email string
}

// ActionPayload is the flat record sent to the action processor for one
// (meeting, attendee) pair.
type ActionPayload struct {
	MeetingID    string `json:"meetingId" msgpack:"meetingId"`
	Title        string `json:"title" msgpack:"title"`
	StartTime    string `json:"startTime" msgpack:"startTime"`
	EndTime      string `json:"endTime" msgpack:"endTime"`
	CreatedBy    string `json:"createdBy" msgpack:"createdBy"`
	ContactEmail string `json:"contactEmail" msgpack:"contactEmail"`
}

// newActionPayload builds the payload for a meeting and one attendee email.
func newActionPayload(meeting MeetingRecord, email string) ActionPayload {
	return ActionPayload{
		MeetingID:    meeting.ID,
		Title:        meeting.Property(propMeetingTitle),
		StartTime:    meeting.Property(propMeetingStartTime),
		EndTime:      meeting.Property(propMeetingEndTime),
		CreatedBy:    meeting.Property(propCreatedBy),
		ContactEmail: email,
	}
}

// ActionEvent is the envelope written by the NATS, webhook and DynamoDB
// action sinks.
type ActionEvent struct {
	EventID    string        `json:"event_id" msgpack:"event_id"`
	ActionType ActionKind    `json:"action_type" msgpack:"action_type"`
	Payload    ActionPayload `json:"payload" msgpack:"payload"`
	EmittedAt  time.Time     `json:"emitted_at" msgpack:"emitted_at"`
}

// MeetingsQuery describes one request for recently modified meetings.
type MeetingsQuery struct {
	Limit          int
	Properties     []string
	FilterProperty string
	After          time.Time
}
