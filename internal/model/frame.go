package model

import (
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"
)

// Operation is the ARP opcode.
type Operation int

const (
	OpUnknown Operation = 0
	OpRequest Operation = 1
	OpReply   Operation = 2
)

func (o Operation) String() string {
	switch o {
	case OpRequest:
		return "request"
	case OpReply:
		return "reply"
	default:
		return "unknown"
	}
}

// ParseOperation accepts the textual opcode names and the numeric codes.
func ParseOperation(s string) (Operation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "request", "1":
		return OpRequest, nil
	case "reply", "2":
		return OpReply, nil
	default:
		return OpUnknown, fmt.Errorf("unknown ARP operation %q", s)
	}
}

func (o Operation) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

func (o *Operation) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	op, err := ParseOperation(s)
	if err != nil {
		return err
	}
	*o = op
	return nil
}

// Frame is one captured ARP frame together with its Ethernet header fields.
// The Ethernet source is carried separately from the ARP sender so tampering
// between the two layers stays visible.
type Frame struct {
	Op        Operation `json:"op"`
	EthSrc    string    `json:"eth_src"`
	EthDst    string    `json:"eth_dst"`
	SenderMAC string    `json:"arp_sender_mac"`
	SenderIP  string    `json:"arp_sender_ip"`
	TargetMAC string    `json:"arp_target_mac,omitempty"`
	TargetIP  string    `json:"arp_target_ip,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Normalize lower-cases the hardware addresses and stamps frames that arrive
// without a capture timestamp.
func (f *Frame) Normalize() {
	f.EthSrc = strings.ToLower(f.EthSrc)
	f.EthDst = strings.ToLower(f.EthDst)
	f.SenderMAC = strings.ToLower(f.SenderMAC)
	f.TargetMAC = strings.ToLower(f.TargetMAC)
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now()
	}
}

// Validate rejects frames that cannot be meaningfully analyzed. Target fields
// are optional; a request legitimately carries a zero target MAC.
func (f *Frame) Validate() error {
	if f.Op != OpRequest && f.Op != OpReply {
		return fmt.Errorf("invalid ARP operation %d", f.Op)
	}
	if _, err := net.ParseMAC(f.EthSrc); err != nil {
		return fmt.Errorf("invalid ethernet source %q: %w", f.EthSrc, err)
	}
	if _, err := net.ParseMAC(f.SenderMAC); err != nil {
		return fmt.Errorf("invalid sender MAC %q: %w", f.SenderMAC, err)
	}
	if net.ParseIP(f.SenderIP) == nil {
		return fmt.Errorf("invalid sender IP %q", f.SenderIP)
	}
	if f.TargetIP != "" && net.ParseIP(f.TargetIP) == nil {
		return fmt.Errorf("invalid target IP %q", f.TargetIP)
	}
	return nil
}
