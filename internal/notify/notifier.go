// Package notify posts run notifications to a webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/upsell-cli/internal/config"
	"github.com/sells-group/upsell-cli/internal/stats"
)

// EventType identifies the kind of notification.
type EventType string

const (
	EventRunSucceeded EventType = "run_succeeded"
	EventRunFailed    EventType = "run_failed"
	EventFallbackUsed EventType = "fallback_used"
	EventTruncated    EventType = "export_truncated"
)

// Event is a single notification.
type Event struct {
	Type      EventType      `json:"type"`
	Severity  string         `json:"severity"`
	Shop      string         `json:"shop"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// RunReport is what a processing run hands to the notifier.
type RunReport struct {
	Shop            string
	Period          string
	Success         bool
	Error           string
	ProcessedOrders int
	Recommendations int
	FallbackUsed    bool
	Truncated       bool
	Summary         *stats.Summary
}

// Notifier turns run reports into events and delivers them to a webhook.
type Notifier struct {
	cfg    config.NotifyConfig
	client *http.Client
}

// New creates a Notifier.
func New(cfg config.NotifyConfig) *Notifier {
	return &Notifier{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate returns the events a report should raise. Successful runs only
// produce an event when OnSuccess is set.
func (n *Notifier) Evaluate(r RunReport) []Event {
	var events []Event
	now := time.Now().UTC()

	if !r.Success {
		return append(events, Event{
			Type:     EventRunFailed,
			Severity: "high",
			Shop:     r.Shop,
			Message:  fmt.Sprintf("Upsell processing failed for %s (%s): %s", r.Shop, r.Period, r.Error),
			Details: map[string]any{
				"period": r.Period,
				"error":  r.Error,
			},
			Timestamp: now,
		})
	}

	if n.cfg.OnSuccess {
		details := map[string]any{
			"period":           r.Period,
			"processed_orders": r.ProcessedOrders,
			"recommendations":  r.Recommendations,
		}
		if r.Summary != nil {
			details["total_revenue"] = r.Summary.FormatRevenue()
			details["average_order_value"] = r.Summary.FormatAOV()
			details["unique_customers"] = r.Summary.UniqueCustomers
		}
		events = append(events, Event{
			Type:     EventRunSucceeded,
			Severity: "info",
			Shop:     r.Shop,
			Message: fmt.Sprintf("Processed %d orders for %s (%s), %d recommendations stored",
				r.ProcessedOrders, r.Shop, r.Period, r.Recommendations),
			Details:   details,
			Timestamp: now,
		})
	}

	if r.FallbackUsed {
		events = append(events, Event{
			Type:      EventFallbackUsed,
			Severity:  "medium",
			Shop:      r.Shop,
			Message:   fmt.Sprintf("Recommendations for %s were generated without the AI provider", r.Shop),
			Timestamp: now,
		})
	}

	if r.Truncated {
		events = append(events, Event{
			Type:      EventTruncated,
			Severity:  "medium",
			Shop:      r.Shop,
			Message:   fmt.Sprintf("Order export for %s hit the batch limit after %d orders", r.Shop, r.ProcessedOrders),
			Timestamp: now,
		})
	}

	return events
}

// Send delivers events to the configured webhook URL and returns how many
// were accepted.
func (n *Notifier) Send(ctx context.Context, events []Event) int {
	if n.cfg.WebhookURL == "" || len(events) == 0 {
		return 0
	}

	sent := 0
	for _, e := range events {
		if err := n.post(ctx, e); err != nil {
			zap.L().Error("notify: failed to send event",
				zap.String("type", string(e.Type)),
				zap.String("shop", e.Shop),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("notify: event sent",
			zap.String("type", string(e.Type)),
			zap.String("severity", e.Severity),
		)
		sent++
	}
	return sent
}

// Notify evaluates r and sends the resulting events.
func (n *Notifier) Notify(ctx context.Context, r RunReport) int {
	return n.Send(ctx, n.Evaluate(r))
}

func (n *Notifier) post(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return eris.Wrap(err, "notify: marshal event")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "notify: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "notify: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("notify: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
