package model

import "time"

// ActionType names an automated response the rule engine can run.
type ActionType string

const (
	ActionLog            ActionType = "LOG"
	ActionBlockSource    ActionType = "BLOCK_SOURCE"
	ActionExecuteCommand ActionType = "EXECUTE_COMMAND"
)

// Action is one step of a rule's ordered response list.
type Action struct {
	Type    ActionType `yaml:"type" json:"type"`
	Command string     `yaml:"command,omitempty" json:"command,omitempty"`
}

// Condition is a predicate over an alert's details map. Field is a dotted
// path into the map; a missing field makes the condition false, not an error.
type Condition struct {
	Field    string      `yaml:"field" json:"field"`
	Operator string      `yaml:"operator" json:"operator"`
	Value    interface{} `yaml:"value" json:"value"`
}

// Rule couples matching criteria with an ordered action list. Rules are
// immutable once registered except for the Enabled flag.
type Rule struct {
	ID          string        `json:"id"`
	Description string        `json:"description"`
	AlertTypes  []AlertType   `json:"alert_types,omitempty"`
	MinPriority Priority      `json:"min_priority"`
	Conditions  []Condition   `json:"conditions,omitempty"`
	Actions     []Action      `json:"actions"`
	Cooldown    time.Duration `json:"cooldown"`
	Enabled     bool          `json:"enabled"`
}

// AppliesToType reports whether the rule's type set admits the given alert
// type. An empty set matches any type.
func (r *Rule) AppliesToType(t AlertType) bool {
	if len(r.AlertTypes) == 0 {
		return true
	}
	for _, rt := range r.AlertTypes {
		if rt == t {
			return true
		}
	}
	return false
}
