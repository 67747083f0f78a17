package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/dukerupert/stride/internal/auth"
	"github.com/dukerupert/stride/internal/config"
	"github.com/dukerupert/stride/internal/device"
	"github.com/dukerupert/stride/internal/handler"
	"github.com/dukerupert/stride/internal/middleware"
	"github.com/dukerupert/stride/internal/push"
	"github.com/dukerupert/stride/internal/realtime"
	"github.com/dukerupert/stride/internal/session"
	"github.com/dukerupert/stride/internal/store"
	ws "github.com/dukerupert/stride/internal/websocket"
)

const (
	writeLimit  = 30
	writeWindow = time.Minute
	maxDeviceID = 128
)

type Server struct {
	hub            *ws.Hub
	profiles       *store.ProfileStore
	socialH        *handler.SocialHandler
	preferenceH    *handler.PreferenceHandler
	pushH          *handler.PushHandler
	sessions       *session.Manager
	rateLimiter    *middleware.RateLimiter
	allowedOrigins []string
	logger         *slog.Logger
}

// New wires stores, handlers and the session manager. pushSvc is nil when
// web push is not configured.
func New(db *sql.DB, feed *realtime.Feed, pushSvc *push.Service, c *cron.Cron, cfg config.Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))
	clock := clockwork.NewRealClock()

	profiles := store.NewProfileStore(db)
	classes := store.NewClassStore(db)
	pushStore := store.NewPushStore(db)

	var pusher device.Pusher
	publicKey := ""
	if pushSvc != nil {
		pusher = pushSvc
		publicKey = pushSvc.VAPIDPublicKey()
	}

	sessions := session.NewManager(session.Deps{
		Feed:     feed,
		Profiles: profiles,
		Classes:  classes,
		Push:     pushStore,
		Devices:  store.NewDeviceStore(db),
		Pusher:   pusher,
		Cron:     c,
		Clock:    clock,
		Config:   cfg.Session(),
		Logger:   logger.With("component", "session"),
	})

	return &Server{
		hub:      hub,
		profiles: profiles,
		socialH: handler.NewSocialHandler(profiles, store.NewMessageStore(db), classes,
			store.NewBookingStore(db), store.NewEventStore(db), feed, hub, logger.With("component", "social")),
		preferenceH:    handler.NewPreferenceHandler(pushStore, logger.With("component", "preferences")),
		pushH:          handler.NewPushHandler(publicKey),
		sessions:       sessions,
		rateLimiter:    middleware.NewRateLimiter(clock),
		allowedOrigins: cfg.AllowedOrigins,
		logger:         logger,
	}
}

// Sessions returns the session manager for shutdown.
func (s *Server) Sessions() *session.Manager {
	return s.sessions
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.Handle("GET /metrics", promhttp.Handler())
	outerMux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)
	outerMux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.identify, s.openSession, s.allowedOrigins, s.logger.With("component", "websocket")))

	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.profiles, s.logger.With("component", "auth"))
	outerMux.Handle("/api/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/notifications/preferences", s.preferenceH.Get)
	mux.HandleFunc("PUT /api/notifications/preferences", s.rateLimited(s.preferenceH.Update))
	mux.HandleFunc("POST /api/notifications/preferences/{field}/toggle", s.rateLimited(s.preferenceH.Toggle))

	mux.HandleFunc("POST /api/classes", s.rateLimited(s.socialH.CreateClass))
	mux.HandleFunc("POST /api/messages", s.rateLimited(s.socialH.CreateMessage))
	mux.HandleFunc("POST /api/bookings", s.rateLimited(s.socialH.CreateBooking))
	mux.HandleFunc("POST /api/events", s.rateLimited(s.socialH.CreateEvent))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Count(),
	})
}

func (s *Server) rateLimited(h http.HandlerFunc) http.HandlerFunc {
	rl := middleware.RateLimit(s.rateLimiter, middleware.UserOrIP, writeLimit, writeWindow)
	return rl(h).ServeHTTP
}

// identify resolves a websocket upgrade. The device id is required; a
// missing or invalid token opens an anonymous session the device can
// authenticate later with an auth frame.
func (s *Server) identify(r *http.Request) (int64, string, bool) {
	deviceID := strings.TrimSpace(r.URL.Query().Get("device_id"))
	if deviceID == "" || len(deviceID) > maxDeviceID {
		return 0, "", false
	}

	token := middleware.TokenFromRequest(r)
	if token == "" {
		return 0, deviceID, true
	}
	userID, err := auth.Verify(s.profiles, token)
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidToken) && !errors.Is(err, auth.ErrMalformedToken) {
			s.logger.Error("verify websocket token", "error", err)
		}
		return 0, deviceID, true
	}
	return userID, deviceID, true
}

func (s *Server) openSession(ctx context.Context, c *ws.Client, userID int64, deviceID string) ws.Session {
	return s.sessions.Open(ctx, c, userID, deviceID)
}
