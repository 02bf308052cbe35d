package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// AlertType classifies what a detection check found.
type AlertType string

const (
	AlertSpoofing       AlertType = "spoofing"
	AlertFrameTampering AlertType = "frame-tampering"
	AlertRateAnomaly    AlertType = "rate-anomaly"
	AlertPatternMatch   AlertType = "pattern-match"
	AlertSystem         AlertType = "system"
)

// Priority orders alerts by urgency. The numeric ordering is what rule
// matching and notification filters compare against.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityMedium:
		return "MEDIUM"
	case PriorityHigh:
		return "HIGH"
	case PriorityCritical:
		return "CRITICAL"
	default:
		return fmt.Sprintf("Priority(%d)", int(p))
	}
}

// ParsePriority accepts the uppercase names used in config and API payloads.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOW":
		return PriorityLow, nil
	case "MEDIUM":
		return PriorityMedium, nil
	case "HIGH":
		return PriorityHigh, nil
	case "CRITICAL":
		return PriorityCritical, nil
	default:
		return PriorityLow, fmt.Errorf("unknown priority %q", s)
	}
}

func (p Priority) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *Priority) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParsePriority(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// AlertStatus is the lifecycle state. Transitions are enforced by the alert
// manager; RESOLVED is terminal.
type AlertStatus string

const (
	StatusActive       AlertStatus = "ACTIVE"
	StatusAcknowledged AlertStatus = "ACKNOWLEDGED"
	StatusResolved     AlertStatus = "RESOLVED"
)

// Alert is one detection finding with its lifecycle state. Source is the
// offending MAC address where one is known.
type Alert struct {
	ID        int64                  `json:"id"`
	Type      AlertType              `json:"type"`
	Priority  Priority               `json:"priority"`
	Message   string                 `json:"message"`
	Source    string                 `json:"source"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Status    AlertStatus            `json:"status"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// Clone returns a copy with its own details map, so holders of the copy can
// never race or mutate the stored alert. Nested maps and slices are copied
// too; rule conditions can reach them through dotted field paths.
func (a *Alert) Clone() Alert {
	out := *a
	out.Details = cloneDetails(a.Details)
	return out
}

func cloneDetails(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return cloneDetails(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
