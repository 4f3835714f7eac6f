// Package sim talks to the train simulator's HTTP key/value control API.
// The bridge only needs two operations: read a control's current state and
// write a new value to it.
package sim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ControlReading is the simulator's reported state for one control endpoint.
type ControlReading struct {
	Current    float64 `json:"current"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	NotchCount int     `json:"notch_count"`
	NotchIndex int     `json:"notch_index"`
}

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// GetControl reads the current state of a control endpoint.
func (c *Client) GetControl(ctx context.Context, controlID string) (ControlReading, error) {
	endpoint := fmt.Sprintf("%s/get/%s", c.baseURL, url.PathEscape(controlID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ControlReading{}, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return ControlReading{}, fmt.Errorf("simulator request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return ControlReading{}, fmt.Errorf("simulator returned %d for %s: %s", resp.StatusCode, controlID, body)
	}

	var reading ControlReading
	if err := json.NewDecoder(resp.Body).Decode(&reading); err != nil {
		return ControlReading{}, fmt.Errorf("failed to decode reading: %w", err)
	}

	return reading, nil
}

// SetControl writes a value to a control endpoint.
func (c *Client) SetControl(ctx context.Context, controlID string, value float64) error {
	endpoint := fmt.Sprintf("%s/set/%s", c.baseURL, url.PathEscape(controlID))

	payload, err := json.Marshal(map[string]float64{"value": value})
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("simulator request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("simulator returned %d for %s: %s", resp.StatusCode, controlID, body)
	}

	return nil
}
