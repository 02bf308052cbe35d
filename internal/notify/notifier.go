package notify

import "arpguard/internal/model"

// Notifier delivers one alert to one channel. Channels are stateless from
// the core's perspective; failures are counted per channel and never reach
// the caller.
type Notifier interface {
	Name() string
	SendAlert(alert model.Alert) error
}

// minPriorityNotifier forwards only alerts at or above the configured
// priority, the usual guard against notification fatigue on the UI channel.
type minPriorityNotifier struct {
	inner Notifier
	min   model.Priority
}

// WithMinPriority wraps a notifier with a minimum-priority filter.
func WithMinPriority(inner Notifier, min model.Priority) Notifier {
	return &minPriorityNotifier{inner: inner, min: min}
}

func (n *minPriorityNotifier) Name() string {
	return n.inner.Name()
}

func (n *minPriorityNotifier) SendAlert(alert model.Alert) error {
	if alert.Priority < n.min {
		return nil
	}
	return n.inner.SendAlert(alert)
}
