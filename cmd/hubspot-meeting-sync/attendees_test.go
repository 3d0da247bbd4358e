// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCRM serves the associations and contact batch read endpoints from
// in-memory data.
type fakeCRM struct {
	associations map[string][]int64
	emails       map[string]string
	failBatch    bool

	mu         sync.Mutex
	batchSizes []int
	batchReads int
}

func (f *fakeCRM) batchReadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batchReads
}

func (f *fakeCRM) batchReadSizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.batchSizes...)
}

func (f *fakeCRM) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/crm/v4/objects/meetings/"):
		meetingID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/crm/v4/objects/meetings/"), "/associations/contacts")
		if r.URL.Query().Get("limit") != "500" {
			http.Error(w, "unexpected limit", http.StatusBadRequest)
			return
		}
		ids, ok := f.associations[meetingID]
		if !ok {
			http.Error(w, `{"message":"meeting not found"}`, http.StatusNotFound)
			return
		}
		results := []map[string]any{}
		for _, id := range ids {
			results = append(results, map[string]any{
				"toObjectId":       id,
				"associationTypes": []map[string]any{{"category": "HUBSPOT_DEFINED", "typeId": 200}},
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"results": results})

	case r.Method == http.MethodPost && r.URL.Path == "/crm/v3/objects/contacts/batch/read":
		f.mu.Lock()
		f.batchReads++
		f.mu.Unlock()
		if f.failBatch {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		var req batchReadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.batchSizes = append(f.batchSizes, len(req.Inputs))
		f.mu.Unlock()
		results := []map[string]any{}
		// Reverse the order to check that results are matched by ID.
		for i := len(req.Inputs) - 1; i >= 0; i-- {
			id := req.Inputs[i].ID
			email, ok := f.emails[id]
			if !ok {
				continue
			}
			props := map[string]any{"email": email, "hs_object_id": id}
			if email == "" {
				props["email"] = nil
			}
			results = append(results, map[string]any{"id": id, "properties": props})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "COMPLETE", "results": results})

	default:
		http.NotFound(w, r)
	}
}

func newTestAttendeeService(t *testing.T, crm *fakeCRM) *HubSpotAttendeeService {
	t.Helper()
	client := newTestHubSpotClient(t, crm.ServeHTTP)
	return NewHubSpotAttendeeService(client, time.Minute, testLogger())
}

func TestGetMeetingAttendees_AssociationOrder(t *testing.T) {
	crm := &fakeCRM{
		associations: map[string][]int64{"m1": {301, 101, 201}},
		emails: map[string]string{
			"101": "a@x.com",
			"201": "b@x.com",
			"301": "c@x.com",
		},
	}
	svc := newTestAttendeeService(t, crm)

	contacts, err := svc.GetMeetingAttendees(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, []Contact{
		{ID: "301", Email: "c@x.com"},
		{ID: "101", Email: "a@x.com"},
		{ID: "201", Email: "b@x.com"},
	}, contacts)
}

func TestGetMeetingAttendees_SkipsContactsWithoutEmail(t *testing.T) {
	crm := &fakeCRM{
		associations: map[string][]int64{"m1": {1, 2, 3}},
		emails: map[string]string{
			"1": "a@x.com",
			"2": "",
			// 3 is missing from the batch read, e.g. archived.
		},
	}
	svc := newTestAttendeeService(t, crm)

	contacts, err := svc.GetMeetingAttendees(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, []Contact{{ID: "1", Email: "a@x.com"}}, contacts)
}

func TestGetMeetingAttendees_NoAssociations(t *testing.T) {
	crm := &fakeCRM{associations: map[string][]int64{"m1": {}}}
	svc := newTestAttendeeService(t, crm)

	contacts, err := svc.GetMeetingAttendees(context.Background(), "m1")
	require.NoError(t, err)
	assert.Empty(t, contacts)
	assert.Equal(t, 0, crm.batchReadCount())
}

func TestGetMeetingAttendees_CachesEmails(t *testing.T) {
	crm := &fakeCRM{
		associations: map[string][]int64{
			"m1": {1, 2},
			"m2": {2, 3},
		},
		emails: map[string]string{"1": "a@x.com", "2": "b@x.com", "3": "c@x.com"},
	}
	svc := newTestAttendeeService(t, crm)

	_, err := svc.GetMeetingAttendees(context.Background(), "m1")
	require.NoError(t, err)
	contacts, err := svc.GetMeetingAttendees(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, []Contact{{ID: "1", Email: "a@x.com"}, {ID: "2", Email: "b@x.com"}}, contacts)
	assert.Equal(t, 1, crm.batchReadCount())

	// Only the uncached contact is read for the second meeting.
	contacts, err = svc.GetMeetingAttendees(context.Background(), "m2")
	require.NoError(t, err)
	assert.Equal(t, []Contact{{ID: "2", Email: "b@x.com"}, {ID: "3", Email: "c@x.com"}}, contacts)
	assert.Equal(t, 2, crm.batchReadCount())
	assert.Equal(t, []int{2, 1}, crm.batchReadSizes())
}

func TestGetMeetingAttendees_BatchesLargeMeetings(t *testing.T) {
	crm := &fakeCRM{
		associations: map[string][]int64{"m1": {}},
		emails:       map[string]string{},
	}
	for i := int64(1); i <= 250; i++ {
		crm.associations["m1"] = append(crm.associations["m1"], i)
		crm.emails[fmt.Sprint(i)] = fmt.Sprintf("user%d@x.com", i)
	}
	svc := newTestAttendeeService(t, crm)

	contacts, err := svc.GetMeetingAttendees(context.Background(), "m1")
	require.NoError(t, err)
	require.Len(t, contacts, 250)
	assert.Equal(t, "user1@x.com", contacts[0].Email)
	assert.Equal(t, "user250@x.com", contacts[249].Email)
	assert.Equal(t, []int{100, 100, 50}, crm.batchReadSizes())
}

func TestGetMeetingAttendees_Errors(t *testing.T) {
	t.Run("associations not found", func(t *testing.T) {
		svc := newTestAttendeeService(t, &fakeCRM{associations: map[string][]int64{}})

		contacts, err := svc.GetMeetingAttendees(context.Background(), "m404")
		require.Error(t, err)
		assert.Nil(t, contacts)
		assert.Contains(t, err.Error(), "m404")
		assert.Contains(t, err.Error(), "status 404")
	})

	t.Run("batch read fails", func(t *testing.T) {
		crm := &fakeCRM{
			associations: map[string][]int64{"m1": {1}},
			failBatch:    true,
		}
		svc := newTestAttendeeService(t, crm)

		contacts, err := svc.GetMeetingAttendees(context.Background(), "m1")
		require.Error(t, err)
		assert.Nil(t, contacts)
		assert.Contains(t, err.Error(), "failed to read contacts")
	})
}

// Compile-time check that the HubSpot services satisfy the orchestrator's
// collaborator interfaces.
var (
	_ MeetingSource  = (*HubSpotClient)(nil)
	_ AttendeeLookup = (*HubSpotAttendeeService)(nil)
)
