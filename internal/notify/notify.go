// Package notify forwards mention notifications to outbound chat channels.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Channel is an outbound destination for notification text (e.g. Slack).
type Channel interface {
	Name() string
	// Notify sends text to the channel's default target.
	Notify(ctx context.Context, text string) error
}

// Registry holds configured channels by name. Registering a name again replaces it.
type Registry struct {
	mu    sync.RWMutex
	chans map[string]Channel
}

func NewRegistry() *Registry {
	return &Registry{chans: make(map[string]Channel)}
}

// FromEnv builds a registry with a Slack channel when slackURL is non-empty.
func FromEnv(slackURL string) *Registry {
	r := NewRegistry()
	if slackURL != "" {
		r.Register(SlackWebhook{WebhookURL: slackURL, Username: "Mission Control"})
	}
	return r
}

func (r *Registry) Register(c Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chans[c.Name()] = c
}

// Channels returns registered channels sorted by name.
func (r *Registry) Channels() []Channel {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Channel, 0, len(r.chans))
	for _, c := range r.chans {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

var slackClient = &http.Client{Timeout: 10 * time.Second}

// SlackWebhook posts to a Slack channel via incoming webhook URL.
type SlackWebhook struct {
	WebhookURL string
	Channel    string // optional override
	Username   string // optional
	Client     *http.Client
}

func (s SlackWebhook) Name() string { return "slack" }

func (s SlackWebhook) Notify(ctx context.Context, text string) error {
	if s.WebhookURL == "" {
		return errors.New("slack webhook URL not set")
	}
	payload := map[string]any{"text": text}
	if s.Channel != "" {
		payload["channel"] = s.Channel
	}
	if s.Username != "" {
		payload["username"] = s.Username
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	client := s.Client
	if client == nil {
		client = slackClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook returned %d", resp.StatusCode)
	}
	return nil
}
