package utils

import (
	"fmt"
	"net"
	"os"

	"arpguard/internal/model"

	"gopkg.in/yaml.v3"
)

// Config is the full daemon configuration. Invalid configuration is fatal at
// startup, before any background loop starts.
type Config struct {
	Capture       CaptureConfig       `yaml:"capture"`
	Detection     DetectionConfig     `yaml:"detection"`
	Rules         RulesConfig         `yaml:"rules"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Journal       JournalConfig       `yaml:"journal"`
	API           APIConfig           `yaml:"api"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Logging       LoggingConfig       `yaml:"logging"`
	Features      map[string]bool     `yaml:"features"`
}

type CaptureConfig struct {
	Interface     string `yaml:"interface"`
	QueueCapacity int    `yaml:"queue_capacity"`
	PollTimeoutMS int    `yaml:"poll_timeout_ms"`
}

type RateConfig struct {
	PacketsPerSecond float64 `yaml:"packets_per_second"`
	WindowSeconds    int     `yaml:"window_seconds"`
	Factor           float64 `yaml:"factor"`
}

type DetectionConfig struct {
	ProtectedAddresses []string          `yaml:"protected_addresses"`
	Rate               RateConfig        `yaml:"rate"`
	CooldownSeconds    int               `yaml:"cooldown_seconds"`
	Signatures         []model.Signature `yaml:"signatures"`
}

type RulesConfig struct {
	File            string `yaml:"file"`
	IntervalSeconds int    `yaml:"interval_seconds"`
	QueueSize       int    `yaml:"queue_size"`
}

type EmailChannelConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
}

type WebhookChannelConfig struct {
	Enabled         bool   `yaml:"enabled"`
	URL             string `yaml:"url"`
	MessageTemplate string `yaml:"message_template,omitempty"`
}

type UIChannelConfig struct {
	Enabled     bool   `yaml:"enabled"`
	MinPriority string `yaml:"min_priority"`
}

type NotificationsConfig struct {
	Console            bool                 `yaml:"console"`
	Email              EmailChannelConfig   `yaml:"email"`
	Webhook            WebhookChannelConfig `yaml:"webhook"`
	UI                 UIChannelConfig      `yaml:"ui"`
	Workers            int                  `yaml:"workers"`
	SendTimeoutSeconds int                  `yaml:"send_timeout_seconds"`
}

type JournalBatchConfig struct {
	TargetLatencyMS int `yaml:"target_latency_ms"`
	MinSize         int `yaml:"min_size"`
	MaxSize         int `yaml:"max_size"`
}

type JournalConfig struct {
	Enabled              bool               `yaml:"enabled"`
	Path                 string             `yaml:"path"`
	FlushIntervalSeconds int                `yaml:"flush_interval_seconds"`
	Batch                JournalBatchConfig `yaml:"batch"`
}

type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    string `yaml:"port"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadConfig reads and validates the YAML configuration file.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

// Validate fills defaults and rejects configuration the pipeline cannot run
// with.
func (c *Config) Validate() error {
	if c.Capture.QueueCapacity <= 0 {
		c.Capture.QueueCapacity = 10000
	}
	if c.Capture.PollTimeoutMS <= 0 {
		c.Capture.PollTimeoutMS = 250
	}

	for _, ip := range c.Detection.ProtectedAddresses {
		if net.ParseIP(ip) == nil {
			return fmt.Errorf("protected address %q is not a valid IP", ip)
		}
	}
	if c.Detection.Rate.PacketsPerSecond < 0 {
		return fmt.Errorf("rate packets_per_second cannot be negative")
	}
	if c.Detection.Rate.PacketsPerSecond == 0 {
		c.Detection.Rate.PacketsPerSecond = 10
	}
	if c.Detection.Rate.WindowSeconds <= 0 {
		c.Detection.Rate.WindowSeconds = 60
	}
	if c.Detection.Rate.Factor < 0 {
		return fmt.Errorf("rate factor cannot be negative")
	}
	if c.Detection.Rate.Factor == 0 {
		c.Detection.Rate.Factor = 5
	}
	if c.Detection.CooldownSeconds <= 0 {
		c.Detection.CooldownSeconds = 60
	}
	for i, sig := range c.Detection.Signatures {
		if sig.ID == "" {
			return fmt.Errorf("signature %d has no id", i)
		}
	}

	if c.Rules.IntervalSeconds <= 0 {
		c.Rules.IntervalSeconds = 1
	}
	if c.Rules.QueueSize <= 0 {
		c.Rules.QueueSize = 256
	}

	if c.Notifications.Workers <= 0 {
		c.Notifications.Workers = 4
	}
	if c.Notifications.SendTimeoutSeconds <= 0 {
		c.Notifications.SendTimeoutSeconds = 10
	}
	if c.Notifications.Email.Enabled {
		if c.Notifications.Email.Host == "" || len(c.Notifications.Email.To) == 0 {
			return fmt.Errorf("email channel requires host and recipients")
		}
		if c.Notifications.Email.Port <= 0 {
			c.Notifications.Email.Port = 25
		}
	}
	if c.Notifications.Webhook.Enabled && c.Notifications.Webhook.URL == "" {
		return fmt.Errorf("webhook channel requires a url")
	}
	if c.Notifications.UI.MinPriority == "" {
		c.Notifications.UI.MinPriority = "MEDIUM"
	}
	if _, err := model.ParsePriority(c.Notifications.UI.MinPriority); err != nil {
		return fmt.Errorf("ui channel: %w", err)
	}

	if c.Journal.Enabled {
		if c.Journal.Path == "" {
			c.Journal.Path = "alerts.jsonl"
		}
		if c.Journal.FlushIntervalSeconds <= 0 {
			c.Journal.FlushIntervalSeconds = 5
		}
		if c.Journal.Batch.TargetLatencyMS <= 0 {
			c.Journal.Batch.TargetLatencyMS = 50
		}
		if c.Journal.Batch.MinSize <= 0 {
			c.Journal.Batch.MinSize = 1
		}
		if c.Journal.Batch.MaxSize <= 0 {
			c.Journal.Batch.MaxSize = 500
		}
		if c.Journal.Batch.MinSize > c.Journal.Batch.MaxSize {
			return fmt.Errorf("journal batch min_size %d exceeds max_size %d",
				c.Journal.Batch.MinSize, c.Journal.Batch.MaxSize)
		}
	}

	if c.API.Listen == "" {
		c.API.Listen = ":5001"
	}
	if c.Metrics.Port == "" {
		c.Metrics.Port = "8080"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "INFO"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	return nil
}

// HasFeature answers the feature-gate query. Unknown features are off.
func (c *Config) HasFeature(name string) bool {
	return c.Features[name]
}

// DefaultConfig returns a runnable configuration when no file is supplied.
func DefaultConfig() *Config {
	c := &Config{
		Notifications: NotificationsConfig{
			Console: true,
			UI:      UIChannelConfig{Enabled: true, MinPriority: "MEDIUM"},
		},
		API:     APIConfig{Enabled: true, Listen: ":5001"},
		Metrics: MetricsConfig{Enabled: true, Port: "8080"},
		Features: map[string]bool{
			"pattern_matching": true,
		},
	}
	_ = c.Validate()
	return c
}
