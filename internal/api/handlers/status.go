package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/maxxfly/trailerfin/internal/models"
	"github.com/maxxfly/trailerfin/internal/state"
	"github.com/sirupsen/logrus"
)

// StatusHandler handles status requests
type StatusHandler struct {
	db          *models.Database
	expirations *state.ExpirationStore
	ignores     *state.IgnoreStore
	logger      *logrus.Logger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(db *models.Database, expirations *state.ExpirationStore, ignores *state.IgnoreStore, logger *logrus.Logger) *StatusHandler {
	return &StatusHandler{
		db:          db,
		expirations: expirations,
		ignores:     ignores,
		logger:      logger,
	}
}

// StatusResponse represents the status response
type StatusResponse struct {
	TotalItems      int            `json:"total_items"`
	Pending         int            `json:"pending"`
	UpToDate        int            `json:"up_to_date"`
	Ignored         int            `json:"ignored"`
	Skipped         int            `json:"skipped"`
	Failed          int            `json:"failed"`
	TrailerRecords  int            `json:"trailer_records"`
	RecordsBySource map[string]int `json:"records_by_source"`
	IgnoredTitles   int            `json:"ignored_titles"`
	NextExpiry      *time.Time     `json:"next_expiry,omitempty"`
}

// ServeHTTP handles the status endpoint
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	items, err := h.db.GetAllItems()
	if err != nil {
		h.logger.WithError(err).Error("Failed to get library items")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	response := StatusResponse{
		TotalItems:      len(items),
		RecordsBySource: make(map[string]int),
	}

	for _, item := range items {
		switch item.State {
		case models.StatePending:
			response.Pending++
		case models.StateUpToDate:
			response.UpToDate++
		case models.StateIgnored:
			response.Ignored++
		case models.StateSkipped:
			response.Skipped++
		case models.StateFailed:
			response.Failed++
		}
	}

	records := h.expirations.All()
	response.TrailerRecords = len(records)
	for _, record := range records {
		response.RecordsBySource[string(record.Source)]++

		if record.ExpiresAt == nil {
			continue
		}
		if response.NextExpiry == nil || record.ExpiresAt.Before(*response.NextExpiry) {
			response.NextExpiry = record.ExpiresAt
		}
	}

	response.IgnoredTitles = h.ignores.Len()

	respondJSON(w, response)
}

// respondJSON writes v as a JSON response
func respondJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
