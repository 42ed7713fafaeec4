package hoyolab

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/wangyi68/zenox/internal/game"
)

const (
	BaseURL = "https://bbs-api-os.hoyolab.com"

	materialPath = "/community/painter/wapi/circle/channel/guide/material"

	userAgent = "Mozilla/5.0 (Linux; Android 6.0; Nexus 5 Build/MRA58N) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Mobile Safari/537.36"
)

// Client queries the Hoyolab community API for channel guide material
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a new Hoyolab API client
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		// The endpoint is polled for three games every few minutes; one
		// request per second is far below any visible limit.
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// GuideMaterial fetches the channel guide payload for one game
func (c *Client) GuideMaterial(ctx context.Context, g game.Game) (*MaterialResponse, error) {
	url := fmt.Sprintf("%s%s?game_id=%d", BaseURL, materialPath, g.HoyolabID())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Origin", "https://www.hoyolab.com")
	req.Header.Set("Referer", "https://www.hoyolab.com/")
	req.Header.Set("x-rpc-app_version", "3.1.0")
	req.Header.Set("x-rpc-client_type", "5")
	req.Header.Set("x-rpc-language", "en-us")

	resp, err := c.doRequest(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var material MaterialResponse
	if err := json.NewDecoder(resp.Body).Decode(&material); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if material.Retcode != 0 {
		return nil, fmt.Errorf("API error: retcode %d: %s", material.Retcode, material.Message)
	}
	return &material, nil
}

// doRequest performs an HTTP request with rate limiting
func (c *Client) doRequest(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	// Handle rate limiting (429)
	if resp.StatusCode == http.StatusTooManyRequests {
		resp.Body.Close()
		// Wait and retry once
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(1 * time.Second):
		}
		return c.httpClient.Do(req)
	}

	return resp, nil
}
