package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/heater-controller/internal/controller"
	"github.com/thatsimonsguy/heater-controller/internal/model"
)

// Controller is the part of the decision loop the HTTP API drives.
type Controller interface {
	Settings() model.Settings
	UpdateSettings(ctx context.Context, p model.SettingsPatch) (model.Settings, error)
	ManualOverride(ctx context.Context, cmd model.Command) (bool, error)
	Status() controller.Status
}

type Server struct {
	ctrl    Controller
	handler http.Handler
	srv     *http.Server
}

type HeaterRequest struct {
	Command string `json:"command"`
}

type HeaterResponse struct {
	OK        bool           `json:"ok"`
	State     model.Command  `json:"state"`
	Published bool           `json:"published"`
	Settings  model.Settings `json:"settings"`
}

type SettingsResponse struct {
	OK       bool           `json:"ok"`
	Settings model.Settings `json:"settings"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func NewServer(ctrl Controller) *Server {
	s := &Server{ctrl: ctrl}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	r.HandleFunc("/api/settings", s.getSettings).Methods(http.MethodGet)
	r.HandleFunc("/api/settings", s.postSettings).Methods(http.MethodPost)
	r.HandleFunc("/api/heater", s.postHeater).Methods(http.MethodPost)
	r.HandleFunc("/api/status", s.getStatus).Methods(http.MethodGet)
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)
	s.handler = handlers.LoggingHandler(log.Logger, cors(r))
	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves the API until Shutdown is called.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf("0.0.0.0:%d", port)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Info().Str("address", addr).Msg("Starting REST API server")

	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Settings())
}

func (s *Server) postSettings(w http.ResponseWriter, r *http.Request) {
	var patch model.SettingsPatch
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON payload: "+err.Error())
		return
	}

	settings, err := s.ctrl.UpdateSettings(r.Context(), patch)
	if err != nil {
		s.writeControllerError(w, err)
		return
	}

	log.Info().Msg("Settings updated via API")
	writeJSON(w, http.StatusOK, SettingsResponse{OK: true, Settings: settings})
}

func (s *Server) postHeater(w http.ResponseWriter, r *http.Request) {
	var req HeaterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	cmd, err := model.ParseCommand(req.Command)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	published, err := s.ctrl.ManualOverride(r.Context(), cmd)
	if err != nil {
		s.writeControllerError(w, err)
		return
	}

	log.Info().Str("command", string(cmd)).Bool("published", published).Msg("Manual heater override via API")
	writeJSON(w, http.StatusOK, HeaterResponse{
		OK:        true,
		State:     cmd,
		Published: published,
		Settings:  s.ctrl.Settings(),
	})
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) writeControllerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidMode), errors.Is(err, model.ErrInvalidToggle), errors.Is(err, model.ErrInvalidCommand):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, controller.ErrStopped), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		log.Error().Err(err).Msg("Controller request failed")
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, ErrorResponse{Error: message})
}
