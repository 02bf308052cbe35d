package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"arpguard/internal/alerts"
	"arpguard/internal/capture"
	"arpguard/internal/detector"
	"arpguard/internal/metrics"
	"arpguard/internal/model"
	"arpguard/internal/rules"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

type noopRemediator struct{}

func (noopRemediator) Block(mac, ip string) bool { return true }
func (noopRemediator) RestoreTable() bool        { return true }

type noopRunner struct{}

func (noopRunner) Run(command string, alert model.Alert) error { return nil }

type allFeatures struct{}

func (allFeatures) HasFeature(string) bool { return true }

type fixture struct {
	server   *httptest.Server
	manager  *alerts.Manager
	detector *detector.Engine
	rules    *rules.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	m := metrics.New(prometheus.NewRegistry())

	manager := alerts.NewManager(logger, m)
	det := detector.NewEngine(detector.Config{}, capture.NewFrameQueue(16), manager, allFeatures{}, logger, m)
	ruleEngine := rules.NewEngine(rules.Config{}, noopRemediator{}, noopRunner{}, &rules.LogrusSink{Logger: logger}, logger, m)

	srv := NewServer(":0", manager, det, ruleEngine, nil, logger)
	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)

	return &fixture{server: ts, manager: manager, detector: det, rules: ruleEngine}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, data
}

func TestGetAlertsFiltersByStatus(t *testing.T) {
	f := newFixture(t)
	a := f.manager.CreateAlert(model.AlertSpoofing, model.PriorityCritical, "spoof", "de:ad:be:ef:00:01", nil)
	f.manager.CreateAlert(model.AlertSystem, model.PriorityLow, "startup", "", nil)
	if err := f.manager.Resolve(a.ID); err != nil {
		t.Fatal(err)
	}

	resp, body := f.do(t, "GET", "/api/v1/alerts?status=active", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var active []model.Alert
	if err := json.Unmarshal(body, &active); err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 || active[0].Message != "startup" {
		t.Fatalf("active alerts = %+v", active)
	}

	_, body = f.do(t, "GET", "/api/v1/alerts", "")
	var all map[string]model.Alert
	if err := json.Unmarshal(body, &all); err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("exported %d alerts, want 2", len(all))
	}
}

func TestAlertLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t)
	a := f.manager.CreateAlert(model.AlertSpoofing, model.PriorityHigh, "spoof", "de:ad:be:ef:00:01", nil)

	resp, body := f.do(t, "POST", "/api/v1/alerts/1/acknowledge", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("acknowledge status = %d: %s", resp.StatusCode, body)
	}
	var got model.Alert
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatal(err)
	}
	if got.Status != model.StatusAcknowledged {
		t.Fatalf("status after acknowledge = %s", got.Status)
	}

	if err := f.manager.Resolve(a.ID); err != nil {
		t.Fatal(err)
	}

	// A resolved alert cannot go back to acknowledged.
	resp, _ = f.do(t, "POST", "/api/v1/alerts/1/acknowledge", "")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("invalid transition status = %d, want 409", resp.StatusCode)
	}
}

func TestUnknownAlertReturns404(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, "GET", "/api/v1/alerts/99", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("GET status = %d, want 404", resp.StatusCode)
	}

	resp, _ = f.do(t, "POST", "/api/v1/alerts/99/resolve", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("resolve status = %d, want 404", resp.StatusCode)
	}
}

func TestUpdateRuleTogglesEnabled(t *testing.T) {
	f := newFixture(t)
	if err := f.rules.Register(model.Rule{
		ID:      "block",
		Actions: []model.Action{{Type: model.ActionLog}},
		Enabled: true,
	}); err != nil {
		t.Fatal(err)
	}

	resp, _ := f.do(t, "PUT", "/api/v1/rules/block", `{"enabled": false}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status = %d", resp.StatusCode)
	}

	_, body := f.do(t, "GET", "/api/v1/rules", "")
	var got []model.Rule
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Enabled {
		t.Fatalf("rules after toggle = %+v", got)
	}

	resp, _ = f.do(t, "PUT", "/api/v1/rules/missing", `{"enabled": true}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown rule status = %d, want 404", resp.StatusCode)
	}

	resp, _ = f.do(t, "PUT", "/api/v1/rules/block", `{}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing flag status = %d, want 400", resp.StatusCode)
	}
}

func TestARPTableAndStats(t *testing.T) {
	f := newFixture(t)
	f.detector.ProcessFrame(model.Frame{
		Op:        model.OpReply,
		EthSrc:    "aa:bb:cc:dd:ee:01",
		EthDst:    "ff:ff:ff:ff:ff:ff",
		SenderMAC: "aa:bb:cc:dd:ee:01",
		SenderIP:  "10.0.0.1",
	})

	resp, body := f.do(t, "GET", "/api/v1/arp-table", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("arp-table status = %d", resp.StatusCode)
	}
	var table map[string]detector.ExportedEntry
	if err := json.Unmarshal(body, &table); err != nil {
		t.Fatal(err)
	}
	if table["10.0.0.1"].MAC != "aa:bb:cc:dd:ee:01" {
		t.Fatalf("table = %+v", table)
	}

	_, body = f.do(t, "GET", "/api/v1/stats", "")
	var stats map[string]interface{}
	if err := json.Unmarshal(body, &stats); err != nil {
		t.Fatal(err)
	}
	if stats["frames_processed"].(float64) != 1 {
		t.Errorf("frames_processed = %v", stats["frames_processed"])
	}
	if stats["arp_table_size"].(float64) != 1 {
		t.Errorf("arp_table_size = %v", stats["arp_table_size"])
	}
}

func TestHealthAndCORS(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, "GET", "/health", "")
	if resp.StatusCode != http.StatusOK || string(body) != "OK" {
		t.Fatalf("health = %d %q", resp.StatusCode, body)
	}

	resp, _ = f.do(t, "OPTIONS", "/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("preflight status = %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}
