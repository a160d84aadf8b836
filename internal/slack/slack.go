package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tubita/tubita/internal/session"
)

// Client posts session notifications to a Slack incoming webhook.
type Client struct {
	webhookURL string
	http       *http.Client
}

func New(webhookURL string) *Client {
	return &Client{
		webhookURL: webhookURL,
		http:       &http.Client{Timeout: 10 * time.Second},
	}
}

type block struct {
	Type     string `json:"type"`
	Text     *text  `json:"text,omitempty"`
	Elements []text `json:"elements,omitempty"`
}

type text struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type payload struct {
	Blocks []block `json:"blocks"`
}

func postMessage(ctx context.Context, client *http.Client, webhookURL string, p payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send slack message: %w", err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned status %d", resp.StatusCode)
	}

	return nil
}

// headline returns the message for events worth a parent's attention.
// Ticks, navigation and plain state changes are not announced.
func headline(e session.Event) (string, bool) {
	snap := e.Snapshot
	switch e.Type {
	case session.EventStarted:
		return fmt.Sprintf(":tv: *%s started watching* (%d videos)", snap.User, len(snap.Videos)), true
	case session.EventWarning:
		return fmt.Sprintf(":hourglass_flowing_sand: *%s has %s left*", snap.User, formatMinutes(snap.RemainingSeconds)), true
	case session.EventExpired:
		return fmt.Sprintf(":lock: *Time is up for %s*", snap.User), true
	case session.EventExhausted:
		return fmt.Sprintf(":checkered_flag: *%s finished the playlist*", snap.User), true
	case session.EventUnlocked:
		return fmt.Sprintf(":unlock: *Player unlocked for %s*", snap.User), true
	case session.EventEnded:
		return fmt.Sprintf(":wave: *%s logged out*", snap.User), true
	}
	return "", false
}

func formatMinutes(seconds int) string {
	minutes := (seconds + 59) / 60
	if minutes == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", minutes)
}

// Notify posts a message for the event. Failures are logged and swallowed.
func (c *Client) Notify(ctx context.Context, e session.Event) error {
	title, ok := headline(e)
	if !ok {
		return nil
	}

	snap := e.Snapshot
	blocks := []block{{Type: "section", Text: &text{Type: "mrkdwn", Text: title}}}
	if snap.Current != nil {
		blocks = append(blocks, block{
			Type: "context",
			Elements: []text{{
				Type: "mrkdwn",
				Text: fmt.Sprintf("Watching %q, %s watched", snap.Current.Title, formatMinutes(snap.TotalWatchedSeconds)),
			}},
		})
	}

	if err := postMessage(ctx, c.http, c.webhookURL, payload{Blocks: blocks}); err != nil {
		slog.Error("slack: failed to send session notification", "event", e.Type, "error", err)
	}
	return nil
}

// SendTestMessage posts a test message directly to the given webhook URL.
func SendTestMessage(ctx context.Context, webhookURL string) error {
	p := payload{
		Blocks: []block{
			{
				Type: "section",
				Text: &text{
					Type: "mrkdwn",
					Text: ":white_check_mark: *Tubita is connected!*\nYou'll receive messages here when a watch session starts, runs low on time or locks.",
				},
			},
		},
	}
	if err := postMessage(ctx, &http.Client{Timeout: 10 * time.Second}, webhookURL, p); err != nil {
		return fmt.Errorf("send slack test message: %w", err)
	}
	return nil
}
