package api

import (
	"context"
	"net/http"
	"time"

	"arpguard/internal/alerts"
	"arpguard/internal/detector"
	"arpguard/internal/notify"
	"arpguard/internal/rules"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Server exposes the operator surface: exported alert/ARP state, alert
// lifecycle commands, rule toggling and the UI alert stream.
type Server struct {
	httpServer *http.Server
	logger     *logrus.Logger
}

// NewServer builds the router over the running components.
func NewServer(listen string, mgr *alerts.Manager, det *detector.Engine, ruleEngine *rules.Engine, hub *notify.Hub, logger *logrus.Logger) *Server {
	h := &handlers{
		manager:  mgr,
		detector: det,
		rules:    ruleEngine,
		hub:      hub,
		logger:   logger,
	}

	router := mux.NewRouter()
	router.Use(corsMiddleware)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/alerts", h.GetAlerts).Methods("GET")
	api.HandleFunc("/alerts/{id:[0-9]+}", h.GetAlert).Methods("GET")
	api.HandleFunc("/alerts/{id:[0-9]+}/acknowledge", h.AcknowledgeAlert).Methods("POST")
	api.HandleFunc("/alerts/{id:[0-9]+}/resolve", h.ResolveAlert).Methods("POST")
	api.HandleFunc("/arp-table", h.GetARPTable).Methods("GET")
	api.HandleFunc("/rules", h.GetRules).Methods("GET")
	api.HandleFunc("/rules/{id}", h.UpdateRule).Methods("PUT")
	api.HandleFunc("/stats", h.GetStats).Methods("GET")

	if hub != nil {
		api.HandleFunc("/stream/alerts", hub.HandleStream).Methods("GET")
	}

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods("GET", "OPTIONS")

	return &Server{
		httpServer: &http.Server{
			Addr:    listen,
			Handler: router,
		},
		logger: logger,
	}
}

// Start runs the server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Infof("API server listening on %s", s.httpServer.Addr)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Errorf("API server error: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
