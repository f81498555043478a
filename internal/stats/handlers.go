package stats

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"headless-trader/internal/models"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultHistoryLimit = 100

// APIHandler serves the trade statistics and the execution ledger.
type APIHandler struct {
	log   *zap.Logger
	store *Store
	db    *gorm.DB // optional
	now   func() time.Time
}

// NewAPIHandler creates a new APIHandler. db may be nil.
func NewAPIHandler(log *zap.Logger, store *Store, db *gorm.DB) *APIHandler {
	return &APIHandler{log: log.Named("stats-api"), store: store, db: db, now: time.Now}
}

// Routes returns the HTTP handler for the statistics API.
func (h *APIHandler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/trades/daily", h.reportHandler(h.store.Daily))
	mux.HandleFunc("GET /api/trades/weekly", h.reportHandler(h.store.Weekly))
	mux.HandleFunc("GET /api/trades/monthly", h.reportHandler(h.store.Monthly))
	mux.HandleFunc("GET /api/trades/history", h.TradesHandler)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK\n"))
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func (h *APIHandler) reportHandler(report func(date string) (Report, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date := r.URL.Query().Get("date")
		if date == "" {
			date = h.now().Format(DateLayout)
		}
		res, err := report(date)
		if errors.Is(err, ErrInvalidDate) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		if err != nil {
			h.log.Error("Failed to build report", zap.Error(err))
			h.writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		h.writeJSON(w, http.StatusOK, res)
	}
}

// TradesHandler returns the most recent ledger entries, newest first.
func (h *APIHandler) TradesHandler(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		h.writeJSON(w, http.StatusOK, []models.Trade{})
		return
	}
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	var trades []models.Trade
	// Order by most recent first
	if err := h.db.Order("timestamp desc").Limit(limit).Find(&trades).Error; err != nil {
		h.log.Error("Failed to get trades from database", zap.Error(err))
		http.Error(w, "Failed to get trades", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, trades)
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to write response", zap.Error(err))
	}
}
