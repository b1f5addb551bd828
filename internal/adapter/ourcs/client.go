// Package ourcs fetches rowing flag statuses from the Oxford University
// Rowing Clubs flag API.
package ourcs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/oxriver/flowmodel/internal/model"
)

// Client talks to the OURCS flag API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an OURCS client.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// FlagStatus fetches the current flag for a reach ("godstow" or "isis").
func (c *Client) FlagStatus(ctx context.Context, reach string) (model.Flag, error) {
	u := fmt.Sprintf("%s/api/flags/status/%s/", c.baseURL, url.PathEscape(reach))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return model.Flag{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.Flag{}, fmt.Errorf("flag %s: %w", reach, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return model.Flag{}, fmt.Errorf("flag %s: status %d: %s", reach, resp.StatusCode, body)
	}

	var flag model.Flag
	if err := json.NewDecoder(resp.Body).Decode(&flag); err != nil {
		return model.Flag{}, fmt.Errorf("flag %s: decode response: %w", reach, err)
	}
	return flag, nil
}
