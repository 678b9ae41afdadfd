// Package loki pushes auth events consumed from Kafka into Grafana Loki.
package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"otp-auth-service/internal/telemetry/domain"
)

// DefaultJob is the job label attached to every stream.
const DefaultJob = "otp-auth"

// PushRequest is the Loki push API request body (v1).
type PushRequest struct {
	Streams []Stream `json:"streams"`
}

// Stream is a single stream with labels and log entries.
type Stream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"` // [timestamp_ns, log_line]
}

// Label values are kept to a conservative character set.
var labelSanitize = regexp.MustCompile(`[^a-zA-Z0-9_\-:]`)

// Client pushes log lines to one Loki instance.
type Client struct {
	BaseURL    string
	Job        string
	HTTPClient *http.Client
}

// NewClient returns a client for baseURL (e.g. http://localhost:3100).
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		Job:        DefaultJob,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// PushEventJSON decodes an auth event, derives labels and timestamp, and pushes the raw line.
// Low-cardinality fields become labels; usernames and ids stay in the line.
// Undecodable payloads are pushed as-is with the current time.
func (c *Client) PushEventJSON(ctx context.Context, raw []byte) error {
	labels := map[string]string{}
	ts := time.Now().UTC()
	var ev domain.Event
	if err := json.Unmarshal(raw, &ev); err == nil {
		labels["event_type"] = ev.Type
		labels["action"] = ev.Action
		labels["outcome"] = ev.Outcome
		labels["source"] = ev.Source
		if !ev.CreatedAt.IsZero() {
			ts = ev.CreatedAt
		}
	}
	return c.Push(ctx, ts, string(raw), labels)
}

// Push sends a single line. Empty label values are dropped.
func (c *Client) Push(ctx context.Context, ts time.Time, line string, labels map[string]string) error {
	if c == nil || c.BaseURL == "" {
		return fmt.Errorf("loki: base URL is empty")
	}
	job := c.Job
	if job == "" {
		job = DefaultJob
	}
	streamLabels := map[string]string{"job": job}
	for k, v := range labels {
		if s := labelSanitize.ReplaceAllString(strings.TrimSpace(v), "_"); s != "" {
			streamLabels[k] = s
		}
	}
	payload, err := json.Marshal(PushRequest{Streams: []Stream{{
		Stream: streamLabels,
		Values: [][]string{{strconv.FormatInt(ts.UnixNano(), 10), line}},
	}}})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/loki/api/v1/push", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("loki: push returned %s", resp.Status)
	}
	return nil
}
