package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strings"
	"time"
)

const channelTimeout = 10 * time.Second

var slackEmoji = map[AlertType]string{
	AlertTypeRecovery:        ":white_check_mark:",
	AlertTypeLiveEventDrop:   ":rotating_light:",
	AlertTypeBackfillStalled: ":hourglass:",
}

// SlackAlerter posts to a Slack incoming webhook.
type SlackAlerter struct {
	webhookURL string
	client     *http.Client
}

func NewSlackAlerter(webhookURL string) *SlackAlerter {
	return &SlackAlerter{webhookURL: webhookURL, client: &http.Client{Timeout: channelTimeout}}
}

func (*SlackAlerter) Name() string { return "slack" }

func (s *SlackAlerter) Send(ctx context.Context, a Alert) error {
	emoji, ok := slackEmoji[a.Type]
	if !ok {
		emoji = ":warning:"
	}

	lines := []string{
		fmt.Sprintf("%s *[%s]* %s/%s: %s", emoji, a.Type, a.Chain, a.Indexer, a.Title),
		a.Message,
	}
	for _, k := range slices.Sorted(maps.Keys(a.Fields)) {
		lines = append(lines, fmt.Sprintf("- *%s*: %s", k, a.Fields[k]))
	}
	return postJSON(ctx, s.client, s.webhookURL, map[string]string{"text": strings.Join(lines, "\n")})
}

// WebhookAlerter posts the alert as a flat JSON document.
type WebhookAlerter struct {
	url    string
	client *http.Client
}

func NewWebhookAlerter(url string) *WebhookAlerter {
	return &WebhookAlerter{url: url, client: &http.Client{Timeout: channelTimeout}}
}

func (*WebhookAlerter) Name() string { return "webhook" }

type webhookPayload struct {
	Type    AlertType         `json:"type"`
	Chain   string            `json:"chain"`
	Indexer string            `json:"indexer"`
	Title   string            `json:"title"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields"`
	Time    string            `json:"time"`
}

func (w *WebhookAlerter) Send(ctx context.Context, a Alert) error {
	return postJSON(ctx, w.client, w.url, webhookPayload{
		Type:    a.Type,
		Chain:   a.Chain,
		Indexer: a.Indexer,
		Title:   a.Title,
		Message: a.Message,
		Fields:  a.Fields,
		Time:    time.Now().UTC().Format(time.RFC3339),
	})
}

func postJSON(ctx context.Context, client *http.Client, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
