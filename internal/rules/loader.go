package rules

import (
	"fmt"
	"os"
	"time"

	"arpguard/internal/model"

	"gopkg.in/yaml.v3"
)

type ruleSpec struct {
	ID              string            `yaml:"id"`
	Description     string            `yaml:"description"`
	AlertTypes      []string          `yaml:"alert_types"`
	MinPriority     string            `yaml:"min_priority"`
	Conditions      []model.Condition `yaml:"conditions"`
	Actions         []model.Action    `yaml:"actions"`
	CooldownSeconds int               `yaml:"cooldown_seconds"`
	Enabled         *bool             `yaml:"enabled"`
}

// LoadRules reads response rules from a YAML file. Rules with no explicit
// enabled flag default to enabled.
func LoadRules(filename string) ([]model.Rule, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file %s: %w", filename, err)
	}

	var doc struct {
		Rules []ruleSpec `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse rules file %s: %w", filename, err)
	}

	out := make([]model.Rule, 0, len(doc.Rules))
	for i, spec := range doc.Rules {
		rule, err := spec.toRule()
		if err != nil {
			return nil, fmt.Errorf("rules file %s, rule %d: %w", filename, i, err)
		}
		out = append(out, rule)
	}
	return out, nil
}

func (s ruleSpec) toRule() (model.Rule, error) {
	rule := model.Rule{
		ID:          s.ID,
		Description: s.Description,
		Conditions:  s.Conditions,
		Actions:     s.Actions,
		Cooldown:    time.Duration(s.CooldownSeconds) * time.Second,
		Enabled:     true,
	}
	if s.Enabled != nil {
		rule.Enabled = *s.Enabled
	}

	if s.MinPriority != "" {
		priority, err := model.ParsePriority(s.MinPriority)
		if err != nil {
			return model.Rule{}, err
		}
		rule.MinPriority = priority
	}

	for _, t := range s.AlertTypes {
		switch at := model.AlertType(t); at {
		case model.AlertSpoofing, model.AlertFrameTampering, model.AlertRateAnomaly,
			model.AlertPatternMatch, model.AlertSystem:
			rule.AlertTypes = append(rule.AlertTypes, at)
		default:
			return model.Rule{}, fmt.Errorf("unknown alert type %q", t)
		}
	}

	return rule, nil
}
