package notify

import (
	"arpguard/internal/model"

	"github.com/sirupsen/logrus"
)

// ConsoleNotifier writes alerts to the local log.
type ConsoleNotifier struct {
	logger *logrus.Logger
}

// NewConsoleNotifier creates a console channel.
func NewConsoleNotifier(logger *logrus.Logger) *ConsoleNotifier {
	return &ConsoleNotifier{logger: logger}
}

func (n *ConsoleNotifier) Name() string {
	return "console"
}

func (n *ConsoleNotifier) SendAlert(alert model.Alert) error {
	n.logger.Warnf("ALERT [%s] %s from %s: %s", alert.Priority, alert.Type, alert.Source, alert.Message)
	return nil
}
