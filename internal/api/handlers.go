package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"arpguard/internal/alerts"
	"arpguard/internal/detector"
	"arpguard/internal/notify"
	"arpguard/internal/rules"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type handlers struct {
	manager  *alerts.Manager
	detector *detector.Engine
	rules    *rules.Engine
	hub      *notify.Hub
	logger   *logrus.Logger
}

// GetAlerts returns either the active set or the whole exported map.
func (h *handlers) GetAlerts(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("status") == "active" {
		writeJSON(w, http.StatusOK, h.manager.ActiveAlerts())
		return
	}
	writeJSON(w, http.StatusOK, h.manager.Export())
}

func (h *handlers) GetAlert(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid alert id")
		return
	}

	alert, ok := h.manager.GetAlert(id)
	if !ok {
		writeError(w, http.StatusNotFound, "alert not found")
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (h *handlers) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.manager.Acknowledge)
}

func (h *handlers) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.manager.Resolve)
}

func (h *handlers) transition(w http.ResponseWriter, r *http.Request, fn func(int64) error) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid alert id")
		return
	}

	if err := fn(id); err != nil {
		var notFound *alerts.ErrAlertNotFound
		if errors.As(err, &notFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		var stateErr *alerts.AlertStateError
		if errors.As(err, &stateErr) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	alert, _ := h.manager.GetAlert(id)
	writeJSON(w, http.StatusOK, alert)
}

func (h *handlers) GetARPTable(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.detector.Table().Export())
}

func (h *handlers) GetRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.rules.Rules())
}

// UpdateRule toggles a rule's enabled flag, the only mutable rule field.
func (h *handlers) UpdateRule(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Enabled == nil {
		writeError(w, http.StatusBadRequest, "body must carry an enabled flag")
		return
	}

	id := mux.Vars(r)["id"]
	if err := h.rules.SetEnabled(id, *body.Enabled); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "enabled": *body.Enabled})
}

func (h *handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"frames_processed": h.detector.Processed(),
		"frames_rejected":  h.detector.Rejected(),
		"arp_table_size":   h.detector.Table().Len(),
		"active_alerts":    len(h.manager.ActiveAlerts()),
	}
	if h.hub != nil {
		stats["ui_clients"] = h.hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, stats)
}

func parseID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
