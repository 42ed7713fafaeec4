package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Embed is a minimal Discord webhook embed
type Embed struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Color       int    `json:"color,omitempty"`
	Footer      *struct {
		Text string `json:"text"`
	} `json:"footer,omitempty"`
}

// ColorGreen and ColorRed mark success and failure summaries
const (
	ColorGreen  = 0x00FF00
	ColorRed    = 0xFF0000
	ColorPurple = 0xF189FF
)

// Notifier posts task summaries to the operator webhook. Sends are
// fire-and-forget: failures are logged and never propagated.
type Notifier struct {
	url        string
	httpClient *http.Client
}

// NewNotifier creates a notifier; an empty URL disables all sends
func NewNotifier(url string) *Notifier {
	return &Notifier{
		url: url,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type payload struct {
	Username string  `json:"username,omitempty"`
	Content  string  `json:"content,omitempty"`
	Embeds   []Embed `json:"embeds,omitempty"`
}

// Notify posts a summary message to the operator channel
func (n *Notifier) Notify(ctx context.Context, username, content string, embeds ...Embed) {
	if n.url == "" {
		return
	}

	body, err := json.Marshal(payload{Username: username, Content: content, Embeds: embeds})
	if err != nil {
		slog.Error("Failed to encode webhook payload", "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		slog.Error("Failed to create webhook request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		slog.Error("Failed to send operator webhook", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		slog.Error("Operator webhook rejected", "status", resp.StatusCode)
	}
}

// StatsEmbed formats a tally map as a code block embed
func StatsEmbed(title string, stats map[string]int, order []string, color int) Embed {
	desc := "```\n"
	for _, key := range order {
		desc += fmt.Sprintf("%d %s\n", stats[key], key)
	}
	desc += "```"
	return Embed{Title: title, Description: desc, Color: color}
}
