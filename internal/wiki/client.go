package wiki

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/wangyi68/zenox/internal/game"
)

// Client fetches community wiki redemption-code pages
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a new wiki page client
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
		// Fandom is fetched a couple of times daily; stay polite anyway.
		limiter: rate.NewLimiter(rate.Every(2*time.Second), 1),
	}
}

// CodeTable fetches and parses the code table from the game's wiki page
func (c *Client) CodeTable(ctx context.Context, g game.Game) ([]Row, error) {
	url := g.WikiURL()
	if url == "" {
		return nil, fmt.Errorf("no wiki page for %s", g)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "zenox-bot/2.0 (redemption code tracker)")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("wiki error: status %d, body: %s", resp.StatusCode, string(body))
	}

	return ParseCodeTable(resp.Body)
}
