package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/taskcal/internal/auth"
	"github.com/dukerupert/taskcal/internal/gcal"
	"github.com/dukerupert/taskcal/internal/model"
	"github.com/dukerupert/taskcal/internal/store"
)

// CalendarExporter mirrors a user's placements into an external calendar.
type CalendarExporter interface {
	Export(ctx context.Context, userID string) ([]gcal.ItemResult, error)
}

type CalendarHandler struct {
	events   *store.EventStore
	exporter CalendarExporter
	logger   *slog.Logger
}

// NewCalendarHandler builds the handler; a nil exporter disables
// POST /calendar/export.
func NewCalendarHandler(events *store.EventStore, exporter CalendarExporter, logger *slog.Logger) *CalendarHandler {
	return &CalendarHandler{events: events, exporter: exporter, logger: logger}
}

// List handles GET /calendar?start=...&end=...
func (h *CalendarHandler) List(w http.ResponseWriter, r *http.Request) {
	var from, to *time.Time
	if s := r.URL.Query().Get("start"); s != "" {
		t, err := parseFlexibleTime(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start")
			return
		}
		from = &t
	}
	if s := r.URL.Query().Get("end"); s != "" {
		t, err := parseFlexibleTime(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid end")
			return
		}
		to = &t
	}

	events, err := h.events.List(r.Context(), auth.UserID(r.Context()), from, to)
	if err != nil {
		h.logger.Error("list calendar events", "error", err)
		internalError(w)
		return
	}
	if events == nil {
		events = []model.CalendarEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// Export handles POST /calendar/export
func (h *CalendarHandler) Export(w http.ResponseWriter, r *http.Request) {
	if h.exporter == nil {
		writeError(w, http.StatusServiceUnavailable, gcal.ErrNotConfigured.Error())
		return
	}

	results, err := h.exporter.Export(r.Context(), auth.UserID(r.Context()))
	switch {
	case errors.Is(err, gcal.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case errors.Is(err, gcal.ErrNotLinked):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		h.logger.Error("export calendar", "error", err)
		internalError(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}
