package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dukerupert/stride/internal/auth"
	"github.com/dukerupert/stride/internal/realtime"
	"github.com/dukerupert/stride/internal/store"
	ws "github.com/dukerupert/stride/internal/websocket"
)

const (
	maxTitleLength   = 120
	maxMessageLength = 4000
)

// Publisher receives row changes after a successful insert.
type Publisher interface {
	Publish(ch realtime.Change)
}

// Notifier pushes in-app notices to connected pages.
type Notifier interface {
	SendToUser(userID int64, msg ws.Message)
	Broadcast(msg ws.Message)
}

// SocialHandler creates the rows that drive realtime notifications.
type SocialHandler struct {
	profiles *store.ProfileStore
	messages *store.MessageStore
	classes  *store.ClassStore
	bookings *store.BookingStore
	events   *store.EventStore
	feed     Publisher
	hub      Notifier
	logger   *slog.Logger
}

func NewSocialHandler(
	profiles *store.ProfileStore,
	messages *store.MessageStore,
	classes *store.ClassStore,
	bookings *store.BookingStore,
	events *store.EventStore,
	feed Publisher,
	hub Notifier,
	logger *slog.Logger,
) *SocialHandler {
	return &SocialHandler{
		profiles: profiles,
		messages: messages,
		classes:  classes,
		bookings: bookings,
		events:   events,
		feed:     feed,
		hub:      hub,
		logger:   logger,
	}
}

// CreateClass handles POST /api/classes
func (h *SocialHandler) CreateClass(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	title, ok := cleanTitle(w, req.Title)
	if !ok {
		return
	}

	class, err := h.classes.Create(auth.UserID(r.Context()), title)
	if err != nil {
		h.logger.Error("create class", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create class")
		return
	}
	writeJSON(w, http.StatusCreated, class)
}

// CreateMessage handles POST /api/messages
func (h *SocialHandler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	senderID := auth.UserID(r.Context())

	var req struct {
		RecipientID int64  `json:"recipient_id"`
		Content     string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	content := strings.TrimSpace(req.Content)
	if content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	if utf8.RuneCountInString(content) > maxMessageLength {
		writeError(w, http.StatusBadRequest, "content is too long")
		return
	}
	if req.RecipientID == senderID {
		writeError(w, http.StatusBadRequest, "cannot message yourself")
		return
	}

	recipient, err := h.profiles.GetByID(req.RecipientID)
	if err != nil {
		h.logger.Error("get recipient", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create message")
		return
	}
	if recipient == nil {
		writeError(w, http.StatusNotFound, "recipient not found")
		return
	}

	msg, err := h.messages.Create(senderID, recipient.ID, content)
	if err != nil {
		h.logger.Error("create message", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create message")
		return
	}

	h.feed.Publish(realtime.MessageInserted(msg))
	h.hub.SendToUser(msg.RecipientID, ws.NewMessage("message", "created", msg.ID, map[string]any{
		"sender_id": msg.SenderID,
	}))
	writeJSON(w, http.StatusCreated, msg)
}

// CreateBooking handles POST /api/bookings
func (h *SocialHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClassID int64 `json:"class_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	class, err := h.classes.GetByID(req.ClassID)
	if err != nil {
		h.logger.Error("get class", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create booking")
		return
	}
	if class == nil {
		writeError(w, http.StatusNotFound, "class not found")
		return
	}

	booking, err := h.bookings.Create(class.ID, auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("create booking", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create booking")
		return
	}

	h.feed.Publish(realtime.BookingInserted(booking))
	h.hub.SendToUser(class.TrainerID, ws.NewMessage("booking", "created", booking.ID, map[string]any{
		"class_id": class.ID,
	}))
	writeJSON(w, http.StatusCreated, booking)
}

// CreateEvent handles POST /api/events. The district defaults to the
// creator's own.
func (h *SocialHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	creatorID := auth.UserID(r.Context())

	var req struct {
		Title    string    `json:"title"`
		District string    `json:"district"`
		StartsAt time.Time `json:"starts_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	title, ok := cleanTitle(w, req.Title)
	if !ok {
		return
	}
	if req.StartsAt.IsZero() {
		writeError(w, http.StatusBadRequest, "starts_at is required")
		return
	}

	district := strings.TrimSpace(req.District)
	if district == "" {
		d, err := h.profiles.District(creatorID)
		if err != nil {
			h.logger.Error("get district", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to create event")
			return
		}
		district = d
	}
	if district == "" {
		writeError(w, http.StatusBadRequest, "district is required")
		return
	}

	event, err := h.events.Create(creatorID, title, district, req.StartsAt)
	if err != nil {
		h.logger.Error("create event", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create event")
		return
	}

	h.feed.Publish(realtime.EventInserted(event))
	h.hub.Broadcast(ws.NewMessage("event", "created", event.ID, map[string]any{
		"district": event.District,
	}))
	writeJSON(w, http.StatusCreated, event)
}

func cleanTitle(w http.ResponseWriter, raw string) (string, bool) {
	title := strings.TrimSpace(raw)
	if title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return "", false
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		writeError(w, http.StatusBadRequest, "title is too long")
		return "", false
	}
	return title, true
}

