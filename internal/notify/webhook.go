package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"text/template"
	"time"

	"arpguard/internal/model"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// WebhookConfig carries the chat webhook settings.
type WebhookConfig struct {
	URL             string
	MessageTemplate string
	MaxRetries      uint64
	Timeout         time.Duration
}

// WebhookNotifier posts alerts to a chat webhook as JSON. Sends are retried
// with exponential backoff and guarded by a circuit breaker so a dead
// endpoint stops consuming worker time quickly.
type WebhookNotifier struct {
	cfg     WebhookConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	tmpl    *template.Template
	logger  *logrus.Logger
}

type webhookMessage struct {
	Text string `json:"text"`
}

// NewWebhookNotifier creates a webhook channel.
func NewWebhookNotifier(cfg WebhookConfig, logger *logrus.Logger) *WebhookNotifier {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	n := &WebhookNotifier{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}

	n.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "webhook",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warnf("Webhook circuit breaker %s -> %s", from, to)
		},
	})

	if cfg.MessageTemplate != "" {
		tmpl, err := template.New("webhook_message").Funcs(template.FuncMap{
			"formatTime": func(t time.Time, layout string) string {
				return t.Format(layout)
			},
		}).Parse(cfg.MessageTemplate)
		if err != nil {
			logger.Warnf("Failed to parse webhook message template: %v, using default format", err)
		} else {
			n.tmpl = tmpl
		}
	}

	return n
}

func (n *WebhookNotifier) Name() string {
	return "webhook"
}

func (n *WebhookNotifier) SendAlert(alert model.Alert) error {
	text := n.formatMessage(alert)

	operation := func() error {
		_, err := n.breaker.Execute(func() (interface{}, error) {
			return nil, n.post(text)
		})
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			// Breaker is open; retrying immediately is pointless.
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), n.cfg.MaxRetries)
	if err := backoff.Retry(operation, policy); err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	return nil
}

func (n *WebhookNotifier) formatMessage(alert model.Alert) string {
	if n.tmpl != nil {
		var buf bytes.Buffer
		if err := n.tmpl.Execute(&buf, alert); err != nil {
			n.logger.Warnf("Failed to execute webhook template: %v, using default format", err)
		} else {
			return buf.String()
		}
	}

	return fmt.Sprintf("ALERT FIRING: ARP Guard\n\n"+
		"type: %s\n"+
		"priority: %s\n"+
		"time: %s\n"+
		"source: %s\n"+
		"message: %s",
		alert.Type,
		alert.Priority,
		alert.CreatedAt.Format("2006-01-02 15:04:05"),
		alert.Source,
		alert.Message)
}

func (n *WebhookNotifier) post(text string) error {
	payload, err := json.Marshal(webhookMessage{Text: text})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook message: %w", err)
	}

	resp, err := n.client.Post(n.cfg.URL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
