package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dukerupert/taskcal/internal/auth"
	"github.com/dukerupert/taskcal/internal/llm"
	"github.com/dukerupert/taskcal/internal/model"
	"github.com/dukerupert/taskcal/internal/store"
)

// ModelCatalog lists the models a user may select.
type ModelCatalog interface {
	Models() []llm.ModelRoute
	DefaultModel() string
	Known(model string) bool
}

type PreferencesHandler struct {
	prefs  *store.PreferencesStore
	models ModelCatalog
	logger *slog.Logger
}

func NewPreferencesHandler(prefs *store.PreferencesStore, models ModelCatalog, logger *slog.Logger) *PreferencesHandler {
	return &PreferencesHandler{prefs: prefs, models: models, logger: logger}
}

// Get handles GET /user/preferences
func (h *PreferencesHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.prefs.Get(auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("get preferences", "error", err)
		internalError(w)
		return
	}
	if p == nil {
		p = &model.AIPreferences{}
	}
	writeJSON(w, http.StatusOK, p)
}

type preferencesRequest struct {
	WorkingHours   *string `json:"workingHours"`
	PreferredTimes *string `json:"preferredTimes"`
	SelectedModel  *string `json:"selectedModel"`
}

// Save handles POST /user/preferences. Omitted fields keep their stored value.
func (h *PreferencesHandler) Save(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req preferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.SelectedModel != nil && *req.SelectedModel != "" && h.models != nil && !h.models.Known(*req.SelectedModel) {
		writeError(w, http.StatusBadRequest, "unknown model")
		return
	}

	cur, err := h.prefs.Get(userID)
	if err != nil {
		h.logger.Error("get preferences", "error", err)
		internalError(w)
		return
	}
	if cur == nil {
		cur = &model.AIPreferences{}
	}
	if req.WorkingHours != nil {
		cur.WorkingHours = *req.WorkingHours
	}
	if req.PreferredTimes != nil {
		cur.PreferredTimes = *req.PreferredTimes
	}
	if req.SelectedModel != nil {
		cur.SelectedModel = *req.SelectedModel
	}

	saved, err := h.prefs.Upsert(userID, cur.WorkingHours, cur.PreferredTimes, cur.SelectedModel)
	if err != nil {
		h.logger.Error("save preferences", "error", err)
		internalError(w)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}
