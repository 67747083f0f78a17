package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"

	"github.com/dukerupert/stride/internal/auth"
	"github.com/dukerupert/stride/internal/model"
	"github.com/dukerupert/stride/internal/store"
)

type PreferenceHandler struct {
	store  *store.PushStore
	logger *slog.Logger
}

func NewPreferenceHandler(s *store.PushStore, logger *slog.Logger) *PreferenceHandler {
	return &PreferenceHandler{store: s, logger: logger}
}

// Get handles GET /api/notifications/preferences
func (h *PreferenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.store.GetPreferences(auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("get preferences", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get preferences")
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

// updatePreferencesRequest leaves omitted flags unchanged.
type updatePreferencesRequest struct {
	Messages      *bool `json:"messages"`
	Bookings      *bool `json:"bookings"`
	Events        *bool `json:"events"`
	DailyReminder *bool `json:"daily_reminder"`
	Reviews       *bool `json:"reviews"`
}

// Update handles PUT /api/notifications/preferences
func (h *PreferenceHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req updatePreferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	prefs, err := h.store.GetPreferences(userID)
	if err != nil {
		h.logger.Error("get preferences", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get preferences")
		return
	}

	for notifType, v := range map[string]*bool{
		model.NotifTypeMessages:      req.Messages,
		model.NotifTypeBookings:      req.Bookings,
		model.NotifTypeEvents:        req.Events,
		model.NotifTypeDailyReminder: req.DailyReminder,
		model.NotifTypeReviews:       req.Reviews,
	} {
		if v != nil {
			prefs.Set(notifType, *v)
		}
	}

	if err := h.store.SavePreferences(prefs); err != nil {
		h.logger.Error("save preferences", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "failed to update preferences")
		return
	}

	prefs, err = h.store.GetPreferences(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get preferences")
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

// Toggle handles POST /api/notifications/preferences/{field}/toggle
func (h *PreferenceHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	field := r.PathValue("field")
	if !slices.Contains(model.NotifTypes, field) {
		writeError(w, http.StatusBadRequest, "unknown preference")
		return
	}

	prefs, err := h.store.TogglePreference(auth.UserID(r.Context()), field)
	if err != nil {
		h.logger.Error("toggle preference", "error", err, "field", field)
		writeError(w, http.StatusInternalServerError, "failed to toggle preference")
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}
