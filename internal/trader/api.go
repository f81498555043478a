package trader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"headless-trader/internal/models"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// APIServer provides the HTTP command surface for the trading engine.
type APIServer struct {
	server *http.Server
	engine *Engine
	logger *zap.Logger
}

// NewAPIServer creates a new APIServer listening on port.
func NewAPIServer(engine *Engine, port int, logger *zap.Logger) *APIServer {
	s := &APIServer{
		engine: engine,
		logger: logger.Named("api-server"),
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Routes returns the HTTP handler for the command surface.
func (s *APIServer) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.statusHandler)
	mux.HandleFunc("GET /api/prices", s.pricesHandler)
	mux.HandleFunc("POST /api/start", s.startHandler)
	mux.HandleFunc("POST /api/stop", s.stopHandler)
	mux.HandleFunc("POST /api/restart", s.restartHandler)
	mux.HandleFunc("POST /api/reset", s.resetHandler)
	mux.HandleFunc("POST /api/buy", s.buyHandler)
	mux.HandleFunc("GET /api/config", s.getConfigHandler)
	mux.HandleFunc("POST /api/config", s.updateConfigHandler)
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// Start runs the HTTP server in a new goroutine.
func (s *APIServer) Start() {
	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *APIServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.server.Shutdown(ctx)
}

type startRequest struct {
	URL string `json:"url"`
}

type buyRequest struct {
	Direction string  `json:"direction"`
	Amount    float64 `json:"amount"`
}

type result struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *APIServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.State().Status())
}

func (s *APIServer) pricesHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, pricesView(s.engine.State().Sample()))
}

func (s *APIServer) startHandler(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	// The body is optional.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if err := s.engine.Start(r.Context(), req.URL); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, result{OK: true, Message: "trader started"})
}

func (s *APIServer) stopHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Stop(r.Context()); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, result{OK: true, Message: "trader stopped"})
}

func (s *APIServer) restartHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.RestartSession(r.Context()); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, result{OK: true, Message: "session restarted"})
}

func (s *APIServer) resetHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.ResetTiers(); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, result{OK: true, Message: "all tiers re-armed"})
}

func (s *APIServer) buyHandler(w http.ResponseWriter, r *http.Request) {
	var req buyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	side, err := models.ParseSide(req.Direction)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Amount <= 0 {
		s.writeError(w, http.StatusBadRequest, errors.New("amount must be positive"))
		return
	}
	if err := s.engine.ManualBuy(r.Context(), side, req.Amount); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, result{OK: true, Message: fmt.Sprintf("bought %s $%.2f", side, req.Amount)})
}

func (s *APIServer) getConfigHandler(w http.ResponseWriter, r *http.Request) {
	doc := s.engine.State().Document()
	s.writeJSON(w, http.StatusOK, struct {
		URL            string        `json:"url"`
		Tiers          []models.Tier `json:"tiers"`
		Safety         any           `json:"safety"`
		Monitoring     any           `json:"monitoring"`
		AmountStrategy any           `json:"amount_strategy"`
	}{
		URL:            doc.Website.URL,
		Tiers:          doc.Tiers.All(),
		Safety:         doc.Safety,
		Monitoring:     doc.Monitoring,
		AmountStrategy: doc.AmountStrategy,
	})
}

func (s *APIServer) updateConfigHandler(w http.ResponseWriter, r *http.Request) {
	var edit ConfigEdit
	if err := json.NewDecoder(r.Body).Decode(&edit); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if err := s.engine.State().ApplyEdit(edit); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, result{OK: true, Message: "config saved"})
}

func (s *APIServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotRunning), errors.Is(err, ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, ErrNoEndpoint), errors.Is(err, ErrInvalidConfig):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

func (s *APIServer) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, result{OK: false, Error: err.Error()})
}

func (s *APIServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to write response", zap.Error(err))
	}
}
