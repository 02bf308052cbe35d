package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"arpguard/internal/alerts"
	"arpguard/internal/api"
	"arpguard/internal/batch"
	"arpguard/internal/capture"
	"arpguard/internal/detector"
	"arpguard/internal/journal"
	"arpguard/internal/metrics"
	"arpguard/internal/model"
	"arpguard/internal/notify"
	"arpguard/internal/rules"
	"arpguard/internal/utils"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// Optional .env for deployments that inject secrets (webhook URL, SMTP
	// credentials) outside the config file.
	_ = godotenv.Load()

	var (
		configFile = flag.String("config", envOrDefault("ARPGUARD_CONFIG", "configs/arpguard.yaml"), "Configuration file path (YAML)")
	)
	flag.Parse()

	config, err := utils.LoadConfig(*configFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Printf("Config %s not found, using defaults\n", *configFile)
			config = utils.DefaultConfig()
		} else {
			// Invalid configuration is fatal before any loop starts.
			fmt.Printf("Failed to load config %s: %v\n", *configFile, err)
			os.Exit(1)
		}
	}

	logger := utils.NewLogger(config.Logging.Level, config.Logging.Format)
	logger.Info("Starting arpguard")

	registry := metrics.NewRegistry()
	m := metrics.New(registry)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if config.Metrics.Enabled {
		exporter := metrics.NewExporter(config.Metrics.Port, registry, logger)
		go func() {
			if err := exporter.Start(ctx); err != nil {
				logger.Errorf("Metrics exporter shutdown error: %v", err)
			}
		}()
	}

	queue := capture.NewFrameQueue(config.Capture.QueueCapacity)
	m.RegisterQueueStats(
		func() float64 { return float64(queue.Len()) },
		func() float64 { return float64(queue.Dropped()) },
	)

	manager := alerts.NewManager(logger, m)

	engine := detector.NewEngine(detector.Config{
		ProtectedAddresses: config.Detection.ProtectedAddresses,
		BaselineRate:       config.Detection.Rate.PacketsPerSecond,
		RateFactor:         config.Detection.Rate.Factor,
		RateWindow:         time.Duration(config.Detection.Rate.WindowSeconds) * time.Second,
		Cooldown:           time.Duration(config.Detection.CooldownSeconds) * time.Second,
		PollTimeout:        time.Duration(config.Capture.PollTimeoutMS) * time.Millisecond,
		Signatures:         config.Detection.Signatures,
	}, queue, manager, config, logger, m)
	m.RegisterTableSize(func() float64 { return float64(engine.Table().Len()) })

	ruleEngine := rules.NewEngine(rules.Config{
		Interval:  time.Duration(config.Rules.IntervalSeconds) * time.Second,
		QueueSize: config.Rules.QueueSize,
	}, &logRemediator{logger: logger}, &logCommandRunner{logger: logger}, &rules.LogrusSink{Logger: logger}, logger, m)

	if config.Rules.File != "" {
		loaded, err := rules.LoadRules(config.Rules.File)
		if err != nil {
			logger.Fatalf("Failed to load rules: %v", err)
		}
		for _, rule := range loaded {
			if err := ruleEngine.Register(rule); err != nil {
				logger.Fatalf("Failed to register rule: %v", err)
			}
		}
	}
	manager.RegisterObserver(ruleEngine.Observer())
	ruleEngine.Start()

	dispatcher := notify.NewDispatcher(notify.DispatcherConfig{
		Workers:     config.Notifications.Workers,
		SendTimeout: time.Duration(config.Notifications.SendTimeoutSeconds) * time.Second,
	}, logger, m)

	var hub *notify.Hub
	registerChannels(dispatcher, &hub, config, logger)
	manager.RegisterObserver(dispatcher.Observer())
	dispatcher.Start()

	var alertJournal *journal.Journal
	if config.Journal.Enabled {
		alertJournal, err = journal.New(journal.Config{
			Path:          config.Journal.Path,
			FlushInterval: time.Duration(config.Journal.FlushIntervalSeconds) * time.Second,
			Batch: batch.Config{
				MinSize:       config.Journal.Batch.MinSize,
				MaxSize:       config.Journal.Batch.MaxSize,
				TargetLatency: time.Duration(config.Journal.Batch.TargetLatencyMS) * time.Millisecond,
			},
		}, logger, m)
		if err != nil {
			logger.Fatalf("Failed to open alert journal: %v", err)
		}
		manager.RegisterObserver(alertJournal.Observer())
	}

	if config.API.Enabled {
		server := api.NewServer(config.API.Listen, manager, engine, ruleEngine, hub, logger)
		go func() {
			if err := server.Start(ctx); err != nil {
				logger.Errorf("API server shutdown error: %v", err)
			}
		}()
	}

	go engine.Run()

	// The capture collaborator: an external process pipes JSON frames over
	// stdin. A capture failure stops the feed but not the daemon; operators
	// can still work the alert backlog through the API.
	source := capture.NewJSONLineSource(os.Stdin, logger)
	go func() {
		err := source.Stream(ctx, func(f model.Frame) { queue.Enqueue(f) })
		if err != nil && ctx.Err() == nil {
			logger.Errorf("Capture failure, detection feed stopped: %v", err)
		} else {
			logger.Info("Capture feed ended")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutting down")

	cancel()
	engine.Stop(3 * time.Second)
	ruleEngine.Stop(3 * time.Second)
	dispatcher.Stop(5 * time.Second)
	if hub != nil {
		hub.Close()
	}
	if alertJournal != nil {
		if err := alertJournal.Close(); err != nil {
			logger.Errorf("Journal close failed: %v", err)
		}
	}
	logger.Info("Shutdown complete")
}

func registerChannels(dispatcher *notify.Dispatcher, hub **notify.Hub, config *utils.Config, logger *logrus.Logger) {
	if config.Notifications.Console {
		dispatcher.Register(notify.NewConsoleNotifier(logger))
	}

	if config.Notifications.Email.Enabled {
		dispatcher.Register(notify.NewEmailNotifier(notify.EmailConfig{
			Host:     config.Notifications.Email.Host,
			Port:     config.Notifications.Email.Port,
			From:     config.Notifications.Email.From,
			To:       config.Notifications.Email.To,
			Username: config.Notifications.Email.Username,
			Password: config.Notifications.Email.Password,
		}, logger))
	}

	if config.Notifications.Webhook.Enabled {
		dispatcher.Register(notify.NewWebhookNotifier(notify.WebhookConfig{
			URL:             config.Notifications.Webhook.URL,
			MessageTemplate: config.Notifications.Webhook.MessageTemplate,
		}, logger))
	}

	if config.Notifications.UI.Enabled {
		*hub = notify.NewHub(logger)
		minPriority, _ := model.ParsePriority(config.Notifications.UI.MinPriority)
		dispatcher.Register(notify.WithMinPriority(*hub, minPriority))
	}
}

// logRemediator stands in for a real blocking integration; deployments wire
// their own rules.Remediator here.
type logRemediator struct {
	logger *logrus.Logger
}

func (r *logRemediator) Block(mac, ip string) bool {
	r.logger.Warnf("BLOCK requested for %s (%s) - no remediation backend configured", mac, ip)
	return true
}

func (r *logRemediator) RestoreTable() bool {
	r.logger.Warn("ARP table restore requested - no remediation backend configured")
	return true
}

// logCommandRunner logs EXECUTE_COMMAND actions instead of running them; the
// command-execution boundary belongs to the integrator.
type logCommandRunner struct {
	logger *logrus.Logger
}

func (r *logCommandRunner) Run(command string, alert model.Alert) error {
	r.logger.Warnf("EXECUTE requested for alert %d: %q - no command backend configured", alert.ID, command)
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
