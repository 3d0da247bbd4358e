// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// The hubspot-meeting-sync service.
package main

// OAuth2 authenticated HTTP client for the HubSpot CRM API.
//
// Two credential types are supported:
//   - Private app access tokens, sent as a static bearer token.
//   - OAuth app credentials with a refresh token; access tokens are fetched
//     from the HubSpot token endpoint and refreshed on expiry.

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
)

const (
	meetingsSearchPath = "crm/v3/objects/meetings/search"
	oauthTokenPath     = "oauth/v1/token"

	// isoMillisFormat matches the ISO-8601 form HubSpot uses for datetime
	// filter values, e.g. 2024-01-01T00:00:00.000Z.
	isoMillisFormat = "2006-01-02T15:04:05.000Z07:00"
)

// HubSpotClient reads CRM objects from the HubSpot API.
type HubSpotClient struct {
	httpClient *http.Client
	baseURL    *url.URL
}

// NewHubSpotClient creates a client for the given API base URL. The HTTP
// client is expected to add authentication (see newHubSpotHTTPClient).
func NewHubSpotClient(httpClient *http.Client, baseURL *url.URL) *HubSpotClient {
	return &HubSpotClient{
		httpClient: httpClient,
		baseURL:    baseURL,
	}
}

// newHubSpotHTTPClient creates an HTTP client that authenticates requests with
// the configured HubSpot credentials.
func newHubSpotHTTPClient(cfg *Config) *http.Client {
	// Token refreshes use the same timeout as API calls.
	baseClient := &http.Client{Timeout: cfg.HTTPTimeout}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, baseClient)

	var tokenSource oauth2.TokenSource
	if cfg.HubSpotAccessToken != "" {
		tokenSource = oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: cfg.HubSpotAccessToken,
			TokenType:   "Bearer",
		})
	} else {
		oauthConfig := &oauth2.Config{
			ClientID:     cfg.HubSpotClientID,
			ClientSecret: cfg.HubSpotClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.HubSpotAPIURL.JoinPath(oauthTokenPath).String(),
				AuthStyle: oauth2.AuthStyleInParams,
			},
		}
		tokenSource = oauthConfig.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.HubSpotRefreshToken})
	}

	client := oauth2.NewClient(ctx, tokenSource)
	client.Timeout = cfg.HTTPTimeout
	return client
}

// searchFilter is a single HubSpot CRM search filter.
type searchFilter struct {
	PropertyName string `json:"propertyName"`
	Operator     string `json:"operator"`
	Value        string `json:"value"`
}

// searchFilterGroup is a set of filters combined with AND.
type searchFilterGroup struct {
	Filters []searchFilter `json:"filters"`
}

// searchRequest is the body of a HubSpot CRM search call. No paging cursor is
// ever sent.
type searchRequest struct {
	FilterGroups []searchFilterGroup `json:"filterGroups"`
	Properties   []string            `json:"properties"`
	Limit        int                 `json:"limit"`
}

// searchResponse is the HubSpot CRM search response.
type searchResponse struct {
	Total   int             `json:"total"`
	Results []MeetingRecord `json:"results"`
}

// SearchMeetings returns one page of meetings whose filter property is
// strictly greater than query.After.
func (c *HubSpotClient) SearchMeetings(ctx context.Context, query MeetingsQuery) ([]MeetingRecord, error) {
	body := searchRequest{
		FilterGroups: []searchFilterGroup{
			{
				Filters: []searchFilter{
					{
						PropertyName: query.FilterProperty,
						Operator:     "GT",
						Value:        formatISOMillis(query.After),
					},
				},
			},
		},
		Properties: query.Properties,
		Limit:      query.Limit,
	}

	var resp searchResponse
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL.JoinPath(meetingsSearchPath), body, &resp); err != nil {
		return nil, fmt.Errorf("meetings search failed: %w", err)
	}

	return resp.Results, nil
}

// doJSON sends a request with an optional JSON body and decodes a JSON
// response into out.
func (c *HubSpotClient) doJSON(ctx context.Context, method string, endpoint *url.URL, in any, out any) error {
	var reqBody io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("HubSpot API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// formatISOMillis formats an instant as UTC ISO-8601 with millisecond
// precision.
func formatISOMillis(t time.Time) string {
	return t.UTC().Format(isoMillisFormat)
}
