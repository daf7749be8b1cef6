package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Health is what the service's health endpoint discloses. Everything except
// the status code is optional.
type Health struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Database  string    `json:"database"`
	APIRoutes struct {
		Notes struct {
			SubNotes    string `json:"subNotes"`
			SubNoteByID string `json:"subNoteById"`
		} `json:"notes"`
	} `json:"apiRoutes"`
}

func (h *Health) ServerTime() *time.Time {
	if h == nil || h.Timestamp.IsZero() {
		return nil
	}
	t := h.Timestamp
	return &t
}

// Health performs the reachability check. A hinted sub-note route template
// is installed into the candidate ordering as a side effect.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.healthPath, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("health: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("health: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("health: status %d", resp.StatusCode)
	}

	var h Health
	if len(body) > 0 {
		if err := json.Unmarshal(body, &h); err != nil {
			c.logger.Printf("health: undecodable body: %v", err)
			return &h, nil
		}
	}
	if tmpl := h.APIRoutes.Notes.SubNotes; tmpl != "" {
		if err := c.routes.Hint(tmpl, h.APIRoutes.Notes.SubNoteByID); err != nil {
			c.logger.Printf("health: ignoring route hint: %v", err)
		}
	}
	return &h, nil
}
