// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// The hubspot-meeting-sync service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
)

const (
	meetingContactsPathFmt = "crm/v4/objects/meetings/%s/associations/contacts"
	contactsBatchReadPath  = "crm/v3/objects/contacts/batch/read"
	contactEmailProperty   = "email"

	associationsPageLimit = 500
	contactsBatchSize     = 100
)

// associationsResponse is the CRM v4 associations response.
type associationsResponse struct {
	Results []struct {
		ToObjectID int64 `json:"toObjectId"`
	} `json:"results"`
}

// batchReadInput identifies one object in a batch read.
type batchReadInput struct {
	ID string `json:"id"`
}

// batchReadRequest is the body of a CRM v3 batch read call.
type batchReadRequest struct {
	Properties []string         `json:"properties"`
	Inputs     []batchReadInput `json:"inputs"`
}

// batchReadResponse is the CRM v3 batch read response. Result order is not
// guaranteed to match the inputs.
type batchReadResponse struct {
	Results []struct {
		ID         string            `json:"id"`
		Properties map[string]string `json:"properties"`
	} `json:"results"`
}

// HubSpotAttendeeService resolves meeting attendees to contacts through the
// meeting to contact associations.
type HubSpotAttendeeService struct {
	client *HubSpotClient
	emails *cache.Cache
	logger *slog.Logger
}

// NewHubSpotAttendeeService creates an attendee service. Contact emails are
// cached for cacheTTL.
func NewHubSpotAttendeeService(client *HubSpotClient, cacheTTL time.Duration, logger *slog.Logger) *HubSpotAttendeeService {
	return &HubSpotAttendeeService{
		client: client,
		emails: cache.New(cacheTTL, 2*cacheTTL),
		logger: logger,
	}
}

// GetMeetingAttendees returns the contacts associated with a meeting, in
// association order. Contacts without an email address are omitted.
func (s *HubSpotAttendeeService) GetMeetingAttendees(ctx context.Context, meetingID string) ([]Contact, error) {
	contactIDs, err := s.meetingContactIDs(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	if len(contactIDs) == 0 {
		return nil, nil
	}

	// Serve what we can from the cache; batch read the rest.
	missing := []string{}
	for _, id := range contactIDs {
		if _, found := s.emails.Get(id); !found {
			missing = append(missing, id)
		}
	}
	fetched := map[string]string{}
	if len(missing) > 0 {
		fetched, err = s.readContactEmails(ctx, missing)
		if err != nil {
			return nil, err
		}
	}

	contacts := make([]Contact, 0, len(contactIDs))
	for _, id := range contactIDs {
		email, ok := fetched[id]
		if !ok {
			cached, found := s.emails.Get(id)
			if !found {
				s.logger.With("meeting_id", meetingID, "contact_id", id).DebugContext(ctx, "associated contact not returned by batch read")
				continue
			}
			email, _ = cached.(string)
		}
		if email == "" {
			s.logger.With("meeting_id", meetingID, "contact_id", id).DebugContext(ctx, "skipping contact without email")
			continue
		}
		contacts = append(contacts, Contact{ID: id, Email: email})
	}

	return contacts, nil
}

// meetingContactIDs returns the IDs of the contacts associated with a meeting.
func (s *HubSpotAttendeeService) meetingContactIDs(ctx context.Context, meetingID string) ([]string, error) {
	endpoint := s.client.baseURL.JoinPath(fmt.Sprintf(meetingContactsPathFmt, meetingID))
	query := endpoint.Query()
	query.Set("limit", strconv.Itoa(associationsPageLimit))
	endpoint.RawQuery = query.Encode()

	var resp associationsResponse
	if err := s.client.doJSON(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list contacts for meeting %s: %w", meetingID, err)
	}

	ids := make([]string, 0, len(resp.Results))
	for _, assoc := range resp.Results {
		ids = append(ids, strconv.FormatInt(assoc.ToObjectID, 10))
	}
	return ids, nil
}

// readContactEmails batch reads the email property of the given contacts and
// stores the results in the cache.
func (s *HubSpotAttendeeService) readContactEmails(ctx context.Context, contactIDs []string) (map[string]string, error) {
	emails := make(map[string]string, len(contactIDs))

	for start := 0; start < len(contactIDs); start += contactsBatchSize {
		end := min(start+contactsBatchSize, len(contactIDs))

		body := batchReadRequest{
			Properties: []string{contactEmailProperty},
			Inputs:     make([]batchReadInput, 0, end-start),
		}
		for _, id := range contactIDs[start:end] {
			body.Inputs = append(body.Inputs, batchReadInput{ID: id})
		}

		var resp batchReadResponse
		if err := s.client.doJSON(ctx, http.MethodPost, s.client.baseURL.JoinPath(contactsBatchReadPath), body, &resp); err != nil {
			return nil, fmt.Errorf("failed to read contacts: %w", err)
		}

		for _, result := range resp.Results {
			email := result.Properties[contactEmailProperty]
			emails[result.ID] = email
			s.emails.SetDefault(result.ID, email)
		}
	}

	return emails, nil
}
