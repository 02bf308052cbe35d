package notify

import (
	"fmt"
	"net/smtp"
	"strings"

	"arpguard/internal/model"

	"github.com/sirupsen/logrus"
)

// EmailConfig carries the SMTP settings for the email channel.
type EmailConfig struct {
	Host     string
	Port     int
	From     string
	To       []string
	Username string
	Password string
}

// EmailNotifier delivers alerts over SMTP.
type EmailNotifier struct {
	cfg    EmailConfig
	send   func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
	logger *logrus.Logger
}

// NewEmailNotifier creates an email channel.
func NewEmailNotifier(cfg EmailConfig, logger *logrus.Logger) *EmailNotifier {
	return &EmailNotifier{cfg: cfg, send: smtp.SendMail, logger: logger}
}

func (n *EmailNotifier) Name() string {
	return "email"
}

func (n *EmailNotifier) SendAlert(alert model.Alert) error {
	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	msg := n.format(alert)
	if err := n.send(addr, auth, n.cfg.From, n.cfg.To, msg); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}
	return nil
}

func (n *EmailNotifier) format(alert model.Alert) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", n.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(n.cfg.To, ", "))
	fmt.Fprintf(&b, "Subject: [%s] %s alert from %s\r\n", alert.Priority, alert.Type, alert.Source)
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "Alert #%d\r\n", alert.ID)
	fmt.Fprintf(&b, "Time: %s\r\n", alert.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Priority: %s\r\n", alert.Priority)
	fmt.Fprintf(&b, "Type: %s\r\n", alert.Type)
	fmt.Fprintf(&b, "Source: %s\r\n", alert.Source)
	fmt.Fprintf(&b, "Message: %s\r\n", alert.Message)
	for k, v := range alert.Details {
		fmt.Fprintf(&b, "  %s: %v\r\n", k, v)
	}
	return []byte(b.String())
}
