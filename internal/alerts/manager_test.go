package alerts

import (
	"errors"
	"io"
	"testing"

	"arpguard/internal/metrics"
	"arpguard/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

func newTestManager() *Manager {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewManager(logger, metrics.New(prometheus.NewRegistry()))
}

func TestCreateAlertAssignsMonotonicIDs(t *testing.T) {
	mgr := newTestManager()

	var last int64
	for i := 0; i < 5; i++ {
		alert := mgr.CreateAlert(model.AlertSpoofing, model.PriorityMedium, "msg", "src", nil)
		if alert.ID <= last {
			t.Fatalf("id %d not monotonic after %d", alert.ID, last)
		}
		if alert.Status != model.StatusActive {
			t.Fatalf("new alert status = %s, want ACTIVE", alert.Status)
		}
		last = alert.ID
	}
}

func TestLifecycleTransitions(t *testing.T) {
	tests := []struct {
		name    string
		steps   []func(*Manager, int64) error
		wantErr bool
	}{
		{
			name: "active to acknowledged to resolved",
			steps: []func(*Manager, int64) error{
				(*Manager).Acknowledge,
				(*Manager).Resolve,
			},
		},
		{
			name: "active straight to resolved",
			steps: []func(*Manager, int64) error{
				(*Manager).Resolve,
			},
		},
		{
			name: "double acknowledge fails",
			steps: []func(*Manager, int64) error{
				(*Manager).Acknowledge,
				(*Manager).Acknowledge,
			},
			wantErr: true,
		},
		{
			name: "resolved is terminal",
			steps: []func(*Manager, int64) error{
				(*Manager).Resolve,
				(*Manager).Acknowledge,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr := newTestManager()
			alert := mgr.CreateAlert(model.AlertSystem, model.PriorityLow, "msg", "src", nil)

			var err error
			for _, step := range tt.steps {
				err = step(mgr, alert.ID)
				if err != nil {
					break
				}
			}

			if tt.wantErr {
				var stateErr *AlertStateError
				if !errors.As(err, &stateErr) {
					t.Fatalf("err = %v, want AlertStateError", err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestTransitionOnUnknownAlert(t *testing.T) {
	mgr := newTestManager()

	err := mgr.Acknowledge(42)
	var notFound *ErrAlertNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("err = %v, want ErrAlertNotFound", err)
	}
}

func TestObserversRunInOrderAndSurvivePanics(t *testing.T) {
	mgr := newTestManager()

	var order []string
	mgr.RegisterObserver(func(ev Event) {
		order = append(order, "first")
	})
	mgr.RegisterObserver(func(ev Event) {
		panic("observer bug")
	})
	mgr.RegisterObserver(func(ev Event) {
		order = append(order, "third")
	})

	mgr.CreateAlert(model.AlertSpoofing, model.PriorityHigh, "msg", "src", nil)

	if len(order) != 2 || order[0] != "first" || order[1] != "third" {
		t.Fatalf("observer order = %v, want [first third]", order)
	}
}

func TestObserversSeeUpdates(t *testing.T) {
	mgr := newTestManager()

	var events []Event
	mgr.RegisterObserver(func(ev Event) {
		events = append(events, ev)
	})

	alert := mgr.CreateAlert(model.AlertSpoofing, model.PriorityHigh, "msg", "src", nil)
	if err := mgr.Acknowledge(alert.ID); err != nil {
		t.Fatal(err)
	}

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Kind != EventCreated || events[1].Kind != EventUpdated {
		t.Fatalf("event kinds = %s, %s", events[0].Kind, events[1].Kind)
	}
	if events[1].Alert.Status != model.StatusAcknowledged {
		t.Fatalf("updated event status = %s", events[1].Alert.Status)
	}
}

func TestGettersReturnCopies(t *testing.T) {
	mgr := newTestManager()
	created := mgr.CreateAlert(model.AlertSpoofing, model.PriorityHigh, "msg", "src",
		map[string]interface{}{"is_gateway": true})

	got, ok := mgr.GetAlert(created.ID)
	if !ok {
		t.Fatal("alert missing")
	}
	got.Details["is_gateway"] = false
	got.Message = "mutated"

	again, _ := mgr.GetAlert(created.ID)
	if again.Details["is_gateway"] != true {
		t.Error("caller mutation leaked into stored details")
	}
	if again.Message != "msg" {
		t.Error("caller mutation leaked into stored alert")
	}
}

func TestActiveAlertsExcludeResolved(t *testing.T) {
	mgr := newTestManager()
	a := mgr.CreateAlert(model.AlertSpoofing, model.PriorityHigh, "one", "src", nil)
	mgr.CreateAlert(model.AlertSystem, model.PriorityLow, "two", "src", nil)

	if err := mgr.Resolve(a.ID); err != nil {
		t.Fatal(err)
	}

	active := mgr.ActiveAlerts()
	if len(active) != 1 || active[0].Message != "two" {
		t.Fatalf("active = %+v, want only the unresolved alert", active)
	}

	if exported := mgr.Export(); len(exported) != 2 {
		t.Fatalf("export has %d alerts, want 2", len(exported))
	}
}
