package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the central set of instrumentation counters. One instance is
// shared across the pipeline; every per-item failure the error policy
// requires to be observable increments a counter here.
type Metrics struct {
	registry prometheus.Registerer

	// Frame pipeline
	FramesProcessed prometheus.Counter
	FramesRejected  prometheus.Counter

	// Detection
	AlertsTotal        *prometheus.CounterVec
	FindingsSuppressed *prometheus.CounterVec
	TableUpdates       prometheus.Counter

	// Rule engine
	RuleActions       *prometheus.CounterVec
	RuleEventsDropped prometheus.Counter

	// Notification fan-out
	NotificationsSent    *prometheus.CounterVec
	NotificationFailures *prometheus.CounterVec

	// Persistence
	JournalRecords prometheus.Counter
	JournalErrors  prometheus.Counter
}

// New registers the full metric set against the given registerer. Tests pass
// a throwaway prometheus.NewRegistry().
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		FramesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "arpguard_frames_processed_total",
			Help: "ARP frames consumed from the capture queue",
		}),
		FramesRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "arpguard_frames_rejected_total",
			Help: "Malformed frames skipped at the detection boundary",
		}),
		AlertsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "arpguard_alerts_total",
			Help: "Alerts created, by type and priority",
		}, []string{"type", "priority"}),
		FindingsSuppressed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "arpguard_findings_suppressed_total",
			Help: "Findings suppressed by the per-(type,source) cooldown",
		}, []string{"type"}),
		TableUpdates: factory.NewCounter(prometheus.CounterOpts{
			Name: "arpguard_arp_table_updates_total",
			Help: "ARP table mapping changes recorded",
		}),
		RuleActions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "arpguard_rule_actions_total",
			Help: "Rule actions executed, by rule, action and outcome",
		}, []string{"rule", "action", "outcome"}),
		RuleEventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "arpguard_rule_events_dropped_total",
			Help: "Alert events dropped because the rule engine queue was full",
		}),
		NotificationsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "arpguard_notifications_sent_total",
			Help: "Alerts delivered per notification channel",
		}, []string{"channel"}),
		NotificationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "arpguard_notification_failures_total",
			Help: "Failed or timed-out channel sends",
		}, []string{"channel"}),
		JournalRecords: factory.NewCounter(prometheus.CounterOpts{
			Name: "arpguard_journal_records_total",
			Help: "Alerts persisted to the journal",
		}),
		JournalErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "arpguard_journal_errors_total",
			Help: "Journal batch write failures",
		}),
	}
}

// RegisterQueueStats exposes the frame queue's depth and drop counter. The
// queue keeps plain atomics so it stays free of instrumentation concerns.
func (m *Metrics) RegisterQueueStats(depth func() float64, dropped func() float64) {
	factory := promauto.With(m.registry)
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "arpguard_frame_queue_depth",
		Help: "Frames currently buffered between capture and detection",
	}, depth)
	factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "arpguard_frames_dropped_total",
		Help: "Frames dropped because the capture queue was full",
	}, dropped)
}

// RegisterTableSize exposes the ARP table entry count.
func (m *Metrics) RegisterTableSize(size func() float64) {
	promauto.With(m.registry).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "arpguard_arp_table_entries",
		Help: "IP to MAC mappings currently tracked",
	}, size)
}
