package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// RelayClient posts messages as JSON to an HTTP mail relay.
type RelayClient struct {
	APIKey     string
	URL        string
	HTTPClient *http.Client
}

// NewRelayClient returns a client for the relay at url authenticated with apiKey.
func NewRelayClient(url, apiKey string) *RelayClient {
	return &RelayClient{
		APIKey:     apiKey,
		URL:        url,
		HTTPClient: &http.Client{Timeout: defaultSendTimeout},
	}
}

// Send posts m to the relay. Any non-2xx status is an error.
func (c *RelayClient) Send(ctx context.Context, m Message) error {
	if c.URL == "" {
		return errors.New("email: relay URL not configured")
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("email: relay request failed status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}
