// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// The hubspot-meeting-sync service.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	webhookTokenIssuer = "hubspot-meeting-sync"
	webhookTokenTTL    = 5 * time.Minute
)

// WebhookActionDispatcher posts each action to an HTTP endpoint,
// authenticated with a short-lived HS256 JWT.
type WebhookActionDispatcher struct {
	httpClient *http.Client
	endpoint   *url.URL
	secret     []byte
	audience   string
	logger     *slog.Logger
	now        func() time.Time
}

// NewWebhookActionDispatcher creates a webhook action dispatcher.
func NewWebhookActionDispatcher(httpClient *http.Client, endpoint *url.URL, secret, audience string, logger *slog.Logger) *WebhookActionDispatcher {
	return &WebhookActionDispatcher{
		httpClient: httpClient,
		endpoint:   endpoint,
		secret:     []byte(secret),
		audience:   audience,
		logger:     logger,
		now:        time.Now,
	}
}

// generateToken signs a bearer token for one webhook request.
func (d *WebhookActionDispatcher) generateToken() (string, error) {
	now := d.now()
	claims := jwt.MapClaims{
		"iss": webhookTokenIssuer,
		"aud": d.audience,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": now.Add(webhookTokenTTL).Unix(),
		"jti": uuid.New().String(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(d.secret)
}

// ProcessAction implements ActionDispatcher.
func (d *WebhookActionDispatcher) ProcessAction(ctx context.Context, kind ActionKind, payload ActionPayload) error {
	event, err := newActionEvent(kind, payload, d.now())
	if err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal action event: %w", err)
	}

	token, err := d.generateToken()
	if err != nil {
		return fmt.Errorf("failed to sign webhook token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint.String(), bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(actionTypeHeader, kind.String())

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("action webhook returned status %d: %s", resp.StatusCode, string(body))
	}

	d.logger.With("event_id", event.EventID, "meeting_id", payload.MeetingID, "status", resp.StatusCode).
		DebugContext(ctx, "delivered meeting action to webhook")

	return nil
}
