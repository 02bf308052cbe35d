package rules

import (
	"arpguard/internal/model"

	"github.com/sirupsen/logrus"
)

// Remediator is the injected remediation capability. The core never blocks
// traffic itself; the integrator owns how blocking actually happens.
type Remediator interface {
	Block(mac, ip string) bool
	RestoreTable() bool
}

// CommandRunner is the injected command-execution capability. The engine
// never invokes an OS shell directly, so the security boundary stays with
// the integrator and the engine stays testable.
type CommandRunner interface {
	Run(command string, alert model.Alert) error
}

// LogSink receives the structured records produced by LOG actions.
type LogSink interface {
	Append(record map[string]interface{}) error
}

// LogrusSink is the default LogSink, writing rule action records as
// structured log entries.
type LogrusSink struct {
	Logger *logrus.Logger
}

func (s *LogrusSink) Append(record map[string]interface{}) error {
	s.Logger.WithFields(logrus.Fields(record)).Info("Rule action log")
	return nil
}
