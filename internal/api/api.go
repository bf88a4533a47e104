package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/adaptive-climate/internal/config"
	"github.com/thatsimonsguy/adaptive-climate/internal/registry"
	"github.com/thatsimonsguy/adaptive-climate/internal/supervisor"
)

type Server struct {
	registry *registry.Registry
	config   *config.Config
}

type PauseRequest struct {
	Minutes    int      `json:"minutes"`
	TargetTemp *float64 `json:"target_temp,omitempty"`
}

type PauseResponse struct {
	DeviceID   string    `json:"device_id"`
	PauseUntil time.Time `json:"pause_until"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func NewServer(reg *registry.Registry, cfg *config.Config) *Server {
	return &Server{
		registry: reg,
		config:   cfg,
	}
}

func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()

	corsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		mux.ServeHTTP(w, r)
	})

	mux.HandleFunc("/api/devices", s.handleDevices)
	mux.HandleFunc("/api/devices/", s.handleDeviceOperations)

	log.Info().Str("address", addr).Msg("Starting REST API server")

	return http.ListenAndServe(addr, corsHandler)
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	statuses := make([]supervisor.Status, 0)
	for _, sup := range s.registry.All() {
		statuses = append(statuses, sup.Status())
	}
	s.writeJSON(w, http.StatusOK, statuses)
}

func (s *Server) handleDeviceOperations(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/devices/")
	parts := strings.Split(path, "/")

	if len(parts) < 1 || parts[0] == "" {
		s.writeError(w, http.StatusNotFound, "Device ID required")
		return
	}

	sup, ok := s.registry.Get(parts[0])
	if !ok {
		s.writeError(w, http.StatusNotFound, "Unknown device: "+parts[0])
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		s.writeJSON(w, http.StatusOK, sup.Status())
		return
	}

	switch parts[1] {
	case "pause":
		s.handlePause(w, r, sup)
	case "redetect":
		s.handleRedetect(w, r, sup)
	case "evaluate":
		s.handleEvaluate(w, r, sup)
	default:
		s.writeError(w, http.StatusNotFound, "Unknown operation: "+parts[1])
	}
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request, sup *supervisor.Supervisor) {
	switch r.Method {
	case http.MethodPost:
		var req PauseRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.Minutes <= 0 {
			s.writeError(w, http.StatusBadRequest, "minutes must be positive")
			return
		}
		until, err := sup.SetManualOverride(r.Context(), time.Duration(req.Minutes)*time.Minute, req.TargetTemp)
		if err != nil {
			log.Warn().Err(err).Str("device", sup.DeviceID()).Msg("Override setpoint delivery failed")
		}
		log.Info().
			Str("device", sup.DeviceID()).
			Time("pause_until", until).
			Msg("Manual pause set via API")
		s.writeJSON(w, http.StatusOK, PauseResponse{DeviceID: sup.DeviceID(), PauseUntil: until})

	case http.MethodDelete:
		sup.ClearManualPause()
		log.Info().Str("device", sup.DeviceID()).Msg("Manual pause cleared via API")
		w.WriteHeader(http.StatusNoContent)

	default:
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) handleRedetect(w http.ResponseWriter, r *http.Request, sup *supervisor.Supervisor) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	caps := sup.RedetectCapabilities()
	s.writeJSON(w, http.StatusOK, caps)
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request, sup *supervisor.Supervisor) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	sup.Kick()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode API response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, ErrorResponse{Error: msg})
}
