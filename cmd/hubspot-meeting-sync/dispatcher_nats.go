// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// The hubspot-meeting-sync service.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	nats "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	contentTypeJSON    = "application/json"
	contentTypeMsgpack = "application/msgpack"
	actionTypeHeader   = "Action-Type"
)

// jetStreamPublisher is the subset of jetstream.JetStream used to publish
// actions.
type jetStreamPublisher interface {
	PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// NATSActionDispatcher publishes each action as a message on a JetStream
// stream. Subjects have the form {prefix}.meeting_created and
// {prefix}.meeting_updated.
type NATSActionDispatcher struct {
	js            jetStreamPublisher
	subjectPrefix string
	useMsgpack    bool
	logger        *slog.Logger
	now           func() time.Time
}

// NewNATSActionDispatcher creates a JetStream action dispatcher.
func NewNATSActionDispatcher(js jetStreamPublisher, subjectPrefix string, useMsgpack bool, logger *slog.Logger) *NATSActionDispatcher {
	return &NATSActionDispatcher{
		js:            js,
		subjectPrefix: subjectPrefix,
		useMsgpack:    useMsgpack,
		logger:        logger,
		now:           time.Now,
	}
}

// ensureActionStream creates or updates the stream that receives meeting
// actions.
func ensureActionStream(ctx context.Context, js jetstream.JetStream, streamName, subjectPrefix string) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        streamName,
		Subjects:    []string{subjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      14 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Compression: jetstream.S2Compression,
		Description: "HubSpot meeting actions",
	})
	return err
}

// ProcessAction implements ActionDispatcher.
func (d *NATSActionDispatcher) ProcessAction(ctx context.Context, kind ActionKind, payload ActionPayload) error {
	event, err := newActionEvent(kind, payload, d.now())
	if err != nil {
		return err
	}

	data, contentType, err := d.encode(event)
	if err != nil {
		return fmt.Errorf("failed to marshal action event: %w", err)
	}

	subject := d.subjectPrefix + "." + kind.subjectToken()
	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header:  nats.Header{},
	}
	msg.Header.Set("Content-Type", contentType)
	msg.Header.Set(actionTypeHeader, kind.String())

	if _, err := d.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish to NATS subject %s: %w", subject, err)
	}

	d.logger.With("subject", subject, "event_id", event.EventID, "meeting_id", payload.MeetingID).
		DebugContext(ctx, "published meeting action")

	return nil
}

// encode serializes an event with the configured encoding.
func (d *NATSActionDispatcher) encode(event ActionEvent) ([]byte, string, error) {
	if d.useMsgpack {
		data, err := msgpack.Marshal(event)
		return data, contentTypeMsgpack, err
	}
	data, err := json.Marshal(event)
	return data, contentTypeJSON, err
}
