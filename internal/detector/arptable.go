package detector

import (
	"sync"
	"time"
)

// TableEntry is the authoritative mapping for one IP. Only the detection
// engine mutates the table, so at most one MAC is recorded per IP at any
// instant.
type TableEntry struct {
	MAC       string    `json:"mac"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// ExportedEntry is the wire shape of a table snapshot row.
type ExportedEntry struct {
	MAC      string    `json:"mac"`
	LastSeen time.Time `json:"last_seen"`
}

// ARPTable tracks observed IP to MAC mappings for the life of the process.
type ARPTable struct {
	mu      sync.RWMutex
	entries map[string]TableEntry
}

// NewARPTable creates an empty table.
func NewARPTable() *ARPTable {
	return &ARPTable{entries: make(map[string]TableEntry)}
}

// Observe records the mapping and returns the previous entry when the IP was
// already known with a different MAC. The table always keeps the most recent
// mapping (accept-and-alert), even when the change itself raises an alert.
func (t *ARPTable) Observe(ip, mac string, now time.Time) (prev TableEntry, changed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[ip]
	if !ok {
		t.entries[ip] = TableEntry{MAC: mac, FirstSeen: now, LastSeen: now}
		return TableEntry{}, false
	}

	if entry.MAC == mac {
		entry.LastSeen = now
		t.entries[ip] = entry
		return entry, false
	}

	t.entries[ip] = TableEntry{MAC: mac, FirstSeen: now, LastSeen: now}
	return entry, true
}

// Lookup returns the current entry for an IP.
func (t *ARPTable) Lookup(ip string) (TableEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entry, ok := t.entries[ip]
	return entry, ok
}

// Len returns the number of tracked mappings.
func (t *ARPTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Export snapshots the table as {ip -> {mac, last_seen}}.
func (t *ARPTable) Export() map[string]ExportedEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]ExportedEntry, len(t.entries))
	for ip, entry := range t.entries {
		out[ip] = ExportedEntry{MAC: entry.MAC, LastSeen: entry.LastSeen}
	}
	return out
}
