// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// The hubspot-meeting-sync service.
package main

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Supported action sinks.
const (
	sinkNATS     = "nats"
	sinkWebhook  = "webhook"
	sinkDynamoDB = "dynamodb"
	sinkLog      = "log"
)

// Config holds all configuration values for the hubspot-meeting-sync service.
type Config struct {
	// HubSpot configuration
	HubSpotAPIURL       *url.URL
	HubSpotAccessToken  string // Private app token
	HubSpotClientID     string // OAuth app client ID (refresh token flow)
	HubSpotClientSecret string
	HubSpotRefreshToken string
	HTTPTimeout         time.Duration
	ContactCacheTTL     time.Duration

	// Scheduling
	PollInterval time.Duration

	// Action sink selection: nats, webhook, dynamodb or log
	ActionSink string

	// NATS configuration
	NATSURL           string
	NATSStreamName    string
	NATSSubjectPrefix string
	UseMsgpack        bool

	// Webhook configuration
	WebhookURL      *url.URL
	WebhookSecret   string
	WebhookAudience string

	// AWS configuration
	DynamoDBTable    string
	DynamoDBEndpoint string // Optional: local or alternate endpoint
	AWSRegion        string
	AssumeRoleARN    string // Optional: IAM role ARN to assume via STS

	// Server configuration
	Port string
	Bind string

	// Logging
	Debug   bool
	LogFile string
}

// LoadConfig loads configuration from environment variables. A .env file in
// the working directory is loaded first when present.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &Config{
		HubSpotAccessToken:  os.Getenv("HUBSPOT_ACCESS_TOKEN"),
		HubSpotClientID:     os.Getenv("HUBSPOT_CLIENT_ID"),
		HubSpotClientSecret: os.Getenv("HUBSPOT_CLIENT_SECRET"),
		HubSpotRefreshToken: os.Getenv("HUBSPOT_REFRESH_TOKEN"),
		HTTPTimeout:         time.Duration(parseIntEnv("HTTP_TIMEOUT_SEC", 30)) * time.Second,
		ContactCacheTTL:     time.Duration(parseIntEnv("CONTACT_CACHE_TTL_SEC", 600)) * time.Second,
		PollInterval:        time.Duration(parseIntEnv("POLL_INTERVAL_SEC", 3600)) * time.Second,
		ActionSink:          strings.ToLower(strings.TrimSpace(os.Getenv("ACTION_SINK"))),
		NATSURL:             os.Getenv("NATS_URL"),
		NATSStreamName:      os.Getenv("NATS_STREAM_NAME"),
		NATSSubjectPrefix:   os.Getenv("NATS_SUBJECT_PREFIX"),
		UseMsgpack:          parseBooleanEnv("USE_MSGPACK"),
		WebhookSecret:       os.Getenv("ACTION_WEBHOOK_SECRET"),
		WebhookAudience:     os.Getenv("ACTION_WEBHOOK_AUDIENCE"),
		DynamoDBTable:       os.Getenv("DYNAMODB_TABLE"),
		DynamoDBEndpoint:    os.Getenv("DYNAMODB_ENDPOINT"),
		AWSRegion:           os.Getenv("AWS_REGION"),
		AssumeRoleARN:       os.Getenv("AWS_ASSUME_ROLE_ARN"),
		Port:                os.Getenv("PORT"),
		Bind:                os.Getenv("BIND"),
		Debug:               parseBooleanEnv("DEBUG"),
		LogFile:             os.Getenv("LOG_FILE"),
	}

	// Set defaults
	if cfg.ActionSink == "" {
		cfg.ActionSink = sinkNATS
	}
	if cfg.NATSURL == "" {
		cfg.NATSURL = "nats://localhost:4222"
	}
	if cfg.NATSStreamName == "" {
		cfg.NATSStreamName = "hubspot_meeting_actions"
	}
	if cfg.NATSSubjectPrefix == "" {
		cfg.NATSSubjectPrefix = "hubspot_meeting_actions"
	}
	if cfg.WebhookAudience == "" {
		cfg.WebhookAudience = "meeting-action-processor"
	}
	if cfg.AWSRegion == "" {
		cfg.AWSRegion = "us-west-2"
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Bind == "" {
		cfg.Bind = "*"
	}

	apiURLStr := os.Getenv("HUBSPOT_API_URL")
	if apiURLStr == "" {
		apiURLStr = "https://api.hubapi.com/"
	}
	apiURL, err := parseBaseURL(apiURLStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HUBSPOT_API_URL: %w", err)
	}
	cfg.HubSpotAPIURL = apiURL

	// Validate HubSpot credentials: a private app token, or the full OAuth
	// refresh token triple.
	if cfg.HubSpotAccessToken == "" && !cfg.hasOAuthCredentials() {
		return nil, fmt.Errorf("HUBSPOT_ACCESS_TOKEN or HUBSPOT_CLIENT_ID, HUBSPOT_CLIENT_SECRET and HUBSPOT_REFRESH_TOKEN environment variables are required")
	}

	// Validate sink-specific configuration.
	switch cfg.ActionSink {
	case sinkNATS, sinkLog:
	case sinkWebhook:
		webhookURLStr := os.Getenv("ACTION_WEBHOOK_URL")
		if webhookURLStr == "" {
			return nil, fmt.Errorf("ACTION_WEBHOOK_URL environment variable is required for the webhook action sink")
		}
		webhookURL, err := url.Parse(webhookURLStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse ACTION_WEBHOOK_URL: %w", err)
		}
		cfg.WebhookURL = webhookURL
		if cfg.WebhookSecret == "" {
			return nil, fmt.Errorf("ACTION_WEBHOOK_SECRET environment variable is required for the webhook action sink")
		}
	case sinkDynamoDB:
		if cfg.DynamoDBTable == "" {
			return nil, fmt.Errorf("DYNAMODB_TABLE environment variable is required for the dynamodb action sink")
		}
	default:
		return nil, fmt.Errorf("unsupported ACTION_SINK %q (expected one of nats, webhook, dynamodb, log)", cfg.ActionSink)
	}

	return cfg, nil
}

// hasOAuthCredentials reports whether the OAuth refresh token flow is fully
// configured.
func (c *Config) hasOAuthCredentials() bool {
	return c.HubSpotClientID != "" && c.HubSpotClientSecret != "" && c.HubSpotRefreshToken != ""
}

// parseBaseURL parses an API base URL and makes sure it ends with a slash so
// that relative API paths resolve beneath it.
func parseBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%q is not an absolute URL", raw)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u, nil
}

// parseBooleanEnv parses a boolean environment variable with common truthy values.
func parseBooleanEnv(envVar string) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(envVar)))
	truthyValues := []string{"true", "yes", "t", "y", "1"}
	return slices.Contains(truthyValues, value)
}

// parseIntEnv parses an integer environment variable with a default value.
func parseIntEnv(envVar string, defaultVal int) int {
	s := strings.TrimSpace(os.Getenv(envVar))
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return defaultVal
	}
	return v
}
