// Package slack posts assessment summaries to an incoming webhook.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"mealscore"
)

type Client struct {
	webhookURL string
	httpClient mealscore.HTTPClient
}

func NewClient(webhookURL string, httpClient mealscore.HTTPClient) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		webhookURL: webhookURL,
		httpClient: httpClient,
	}
}

// PostMessage sends text to channel. Any status other than 200 is an error.
func (c *Client) PostMessage(ctx context.Context, channel string, message string) error {
	payload, err := json.Marshal(map[string]any{
		"channel": channel,
		"text":    message,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to post message: %s", resp.Status)
	}
	return nil
}

// PostAssessment formats a and, when labels is non-nil, its comparison
// labels, then posts the result.
func (c *Client) PostAssessment(ctx context.Context, channel string, a mealscore.Assessment, labels map[string]map[string]string) error {
	text := FormatAssessment(a, labels)
	if err := c.PostMessage(ctx, channel, text); err != nil {
		slog.Error("SLACK: Post failed", "channel", channel, "error", err)
		return err
	}
	slog.Info("SLACK: Assessment posted", "channel", channel, "score", a.MetabolicScore)
	return nil
}

// FormatAssessment renders a as Slack mrkdwn.
func FormatAssessment(a mealscore.Assessment, labels map[string]map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s* (score %.1f/10)\n", a.Headline, a.MetabolicScore)
	if a.ExplanationShort != "" {
		fmt.Fprintf(&b, "%s\n", a.ExplanationShort)
	}
	if len(a.TagKeys) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(a.TagKeys, ", "))
	}
	writeBullets(&b, ":white_check_mark:", a.GetsRight)
	writeBullets(&b, ":eyes:", a.ThingsToWatch)

	if self, ok := labels["vs_user"]; ok {
		fmt.Fprintf(&b, "Vs your usual: %s\n", joinLabels(self))
	}
	if cohort, ok := labels["vs_cohort"]; ok {
		fmt.Fprintf(&b, "Vs your cohort: %s\n", joinLabels(cohort))
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeBullets(b *strings.Builder, marker string, items []string) {
	for _, item := range items {
		fmt.Fprintf(b, "%s %s\n", marker, item)
	}
}

func joinLabels(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + " " + m[k]
	}
	return strings.Join(parts, ", ")
}
