package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// ServiceTokenHeader authenticates calls between collaborating services.
const ServiceTokenHeader = "X-Service-Token"

// WebhookSink forwards ride lifecycle events to the battery service.
type WebhookSink struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewWebhookSink creates a sink posting to baseURL. A nil client uses
// http.DefaultClient; per-attempt timeouts come from the dispatcher context.
func NewWebhookSink(baseURL, token string, client *http.Client) *WebhookSink {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebhookSink{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  client,
	}
}

func (s *WebhookSink) Name() string { return "webhook" }

// Deliver posts evt if the battery service cares about its type.
func (s *WebhookSink) Deliver(ctx context.Context, evt Event) error {
	path, body, ok := s.route(evt)
	if !ok {
		return nil
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", evt.Type, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set(ServiceTokenHeader, s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s: unexpected status %d", path, resp.StatusCode)
	}
	return nil
}

func (s *WebhookSink) route(evt Event) (string, any, bool) {
	switch evt.Type {
	case EventRideUnlocked:
		return "/api/v1/battery/rides/" + url.PathEscape(evt.RideID) + "/start",
			map[string]any{"bike_id": evt.BikeID}, true
	case EventRideLocked:
		return "/api/v1/battery/rides/" + url.PathEscape(evt.RideID) + "/end",
			map[string]any{"bike_id": evt.BikeID}, true
	case EventRideTelemetry:
		body := map[string]any{"ride_id": evt.RideID}
		for _, k := range []string{"lat", "lon", "speed_mps", "ts"} {
			if v, ok := evt.Payload[k]; ok {
				body[k] = v
			}
		}
		return "/api/v1/battery/bikes/" + url.PathEscape(evt.BikeID) + "/telemetry", body, true
	default:
		return "", nil, false
	}
}
