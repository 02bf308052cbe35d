package model

import "strings"

// Signature is a configurable frame pattern. Empty fields match anything;
// hardware address fields may end in "*" to match a prefix (useful for
// vendor OUIs).
type Signature struct {
	ID          string `yaml:"id" json:"id"`
	Description string `yaml:"description" json:"description"`
	Op          string `yaml:"op,omitempty" json:"op,omitempty"`
	SenderMAC   string `yaml:"sender_mac,omitempty" json:"sender_mac,omitempty"`
	SenderIP    string `yaml:"sender_ip,omitempty" json:"sender_ip,omitempty"`
	TargetMAC   string `yaml:"target_mac,omitempty" json:"target_mac,omitempty"`
	TargetIP    string `yaml:"target_ip,omitempty" json:"target_ip,omitempty"`
}

// Match reports whether the frame matches every non-empty field of the
// signature.
func (s *Signature) Match(f *Frame) bool {
	if s.Op != "" {
		op, err := ParseOperation(s.Op)
		if err != nil || op != f.Op {
			return false
		}
	}
	return matchField(s.SenderMAC, f.SenderMAC) &&
		matchField(s.SenderIP, f.SenderIP) &&
		matchField(s.TargetMAC, f.TargetMAC) &&
		matchField(s.TargetIP, f.TargetIP)
}

func matchField(pattern, value string) bool {
	if pattern == "" {
		return true
	}
	pattern = strings.ToLower(pattern)
	value = strings.ToLower(value)
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(value, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == value
}
