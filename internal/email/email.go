// Package email sends parent notifications through Listmonk's transactional
// API.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/tubita/tubita/internal/session"
)

type Config struct {
	BaseURL    string
	Username   string
	Password   string
	TemplateID int
	To         string
}

type Client struct {
	config Config
	http   *http.Client
}

func New(cfg Config) *Client {
	return &Client{
		config: cfg,
		http:   &http.Client{Timeout: 10 * time.Second},
	}
}

type txRequest struct {
	SubscriberEmail string            `json:"subscriber_email"`
	TemplateID      int               `json:"template_id"`
	Data            map[string]string `json:"data"`
	ContentType     string            `json:"content_type"`
}

var subjects = map[session.EventType]string{
	session.EventExpired:   "Time is up",
	session.EventExhausted: "Playlist finished",
	session.EventEnded:     "Session ended",
}

// Notify mails the parent when a session locks or ends. Other events are
// ignored.
func (c *Client) Notify(ctx context.Context, e session.Event) error {
	subject, ok := subjects[e.Type]
	if !ok {
		return nil
	}
	snap := e.Snapshot
	if c.config.BaseURL == "" {
		slog.Info("email: not configured", "subject", subject, "user", snap.User)
		return nil
	}

	data := map[string]string{
		"subject":        subject,
		"user":           snap.User,
		"watchedSeconds": strconv.Itoa(snap.TotalWatchedSeconds),
		"limitSeconds":   strconv.Itoa(snap.LimitSeconds),
		"at":             e.At.UTC().Format(time.RFC3339),
	}
	if snap.Current != nil {
		data["videoTitle"] = snap.Current.Title
	}
	if snap.Device != "" {
		data["device"] = snap.Device
	}
	return c.send(ctx, data)
}

func (c *Client) send(ctx context.Context, data map[string]string) error {
	body := txRequest{
		SubscriberEmail: c.config.To,
		TemplateID:      c.config.TemplateID,
		Data:            data,
		ContentType:     "html",
	}
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal email request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/api/tx", bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("create email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.config.Username, c.config.Password)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("listmonk returned status %d", resp.StatusCode)
	}
	return nil
}
