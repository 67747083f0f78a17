// Package session runs the notification and presence machinery for one
// connected device, tied to whichever user is signed in on it.
package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dukerupert/stride/internal/auth"
	"github.com/dukerupert/stride/internal/device"
	"github.com/dukerupert/stride/internal/metrics"
	"github.com/dukerupert/stride/internal/model"
	"github.com/dukerupert/stride/internal/notify"
	"github.com/dukerupert/stride/internal/presence"
	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
)

// Frames received from the device.
const (
	FrameHello                = "hello"
	FrameVisibility           = "visibility"
	FrameActivity             = "activity"
	FramePermission           = "permission"
	FrameEnableNotifications  = "enable_notifications"
	FramePushSubscription     = "push_subscription"
	FrameDismissPrompt        = "dismiss_prompt"
	FrameScheduleNotification = "schedule_notification"
	FrameCancelNotification   = "cancel_notification"
	FrameAuth                 = "auth"
	FrameLogout               = "logout"
)

// Frames sent to the device.
const (
	FrameSession         = "session"
	FramePermissionState = "permission_state"
	FramePrompt          = "prompt"
	FrameEnableResult    = "enable_result"
	FrameError           = "error"
)

// Conn is the device connection.
type Conn interface {
	Send(v any) error
	SetUser(userID int64)
}

// Profiles is everything the session needs from the profile store.
type Profiles interface {
	notify.Profiles
	presence.Writer
	auth.Tokens
}

// PushStore holds preferences and push subscriptions.
type PushStore interface {
	notify.Preferences
	device.Subscriptions
	CreateSubscription(userID int64, deviceID, endpoint, p256dh, auth string) (*model.PushSubscription, error)
}

type Config struct {
	ReminderHour      int
	Presence          presence.Config
	PromptWindow      time.Duration
	PermissionTimeout time.Duration
	PreviewLength     int
}

// Deps wires a Manager.
type Deps struct {
	Feed     notify.Feed
	Profiles Profiles
	Classes  notify.Classes
	Push     PushStore
	Devices  notify.DeviceSettings
	// Pusher delivers web push. Nil when push is not configured.
	Pusher device.Pusher
	Cron   *cron.Cron
	Clock  clockwork.Clock
	Config Config
	Logger *slog.Logger
}

// Manager opens and tracks sessions.
type Manager struct {
	deps      Deps
	heartbeat *presence.Heartbeat

	mu       sync.Mutex
	sessions map[*Session]struct{}
}

func NewManager(deps Deps) *Manager {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Config.PermissionTimeout <= 0 {
		deps.Config.PermissionTimeout = 2 * time.Minute
	}
	if deps.Config.PromptWindow <= 0 {
		deps.Config.PromptWindow = 7 * 24 * time.Hour
	}
	return &Manager{
		deps:      deps,
		heartbeat: presence.NewHeartbeat(deps.Profiles, deps.Clock, deps.Config.Presence, deps.Logger.With("component", "presence")),
		sessions:  make(map[*Session]struct{}),
	}
}

// Open starts a session for a connection. userID is 0 until the device
// authenticates.
func (m *Manager) Open(ctx context.Context, conn Conn, userID int64, deviceID string) *Session {
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		m:        m,
		conn:     conn,
		deviceID: deviceID,
		ctx:      ctx,
		cancel:   cancel,
		logger:   m.deps.Logger.With("device_id", deviceID),
		device:   notify.Unsupported{},
		handles:  make(map[string]*notify.Scheduled),
	}
	s.tracker = notify.NewTracker(s.device, s.logger)
	s.buildPipeline()

	m.mu.Lock()
	m.sessions[s] = struct{}{}
	m.mu.Unlock()
	metrics.ActiveSessions.Inc()

	s.SetUser(userID)
	return s
}

// Count returns the number of open sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close closes every open session.
func (m *Manager) Close() {
	m.mu.Lock()
	open := make([]*Session, 0, len(m.sessions))
	for s := range m.sessions {
		open = append(open, s)
	}
	m.mu.Unlock()

	for _, s := range open {
		s.Close()
	}
}

func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s]; ok {
		delete(m.sessions, s)
		metrics.ActiveSessions.Dec()
	}
}

// Session is one device connection. Frames are handled in order; enabling
// notifications runs in the background because it waits on later frames.
type Session struct {
	m        *Manager
	conn     Conn
	deviceID string
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *slog.Logger
	wg       sync.WaitGroup

	foreground atomic.Bool

	mu         sync.Mutex
	closed     bool
	identified bool
	userID     int64
	dev        *device.Device
	device     notify.Capability
	tracker    *notify.Tracker
	dispatcher *notify.Dispatcher
	prompt     *notify.PromptPolicy
	bridge     *notify.Bridge
	reminder   *notify.Reminder
	sub        *notify.Subscription
	run        *notify.ReminderRun
	presence   *presence.Tracker
	handles    map[string]*notify.Scheduled
}

// Foreground reports whether the page is visible.
func (s *Session) Foreground() bool {
	return s.foreground.Load()
}

// UserID returns the signed-in user, or 0.
func (s *Session) UserID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

type inboundFrame struct {
	Type string `json:"type"`

	Notifications bool   `json:"notifications"`
	Worker        bool   `json:"worker"`
	Permission    string `json:"permission"`

	State string `json:"state"`
	Kind  string `json:"kind"`

	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`

	Title   string `json:"title"`
	Body    string `json:"body"`
	DelayMS int64  `json:"delay_ms"`
	Tag     string `json:"tag"`

	Token string `json:"token"`
}

// HandleFrame applies one frame from the device.
func (s *Session) HandleFrame(ctx context.Context, data []byte) {
	var f inboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		s.sendError("invalid frame")
		return
	}

	switch f.Type {
	case FrameHello:
		s.hello(device.Hello{
			Notifications: f.Notifications,
			Worker:        f.Worker,
			Permission:    parsePermission(f.Permission),
		})
	case FrameVisibility:
		s.foreground.Store(f.State == "visible")
	case FrameActivity:
		s.mu.Lock()
		hb := s.presence
		s.mu.Unlock()
		if hb != nil {
			hb.Touch(f.Kind)
		}
	case FramePermission:
		s.permissionChanged(parsePermission(f.Permission))
	case FrameEnableNotifications:
		s.enableNotifications()
	case FramePushSubscription:
		s.saveSubscription(f.Endpoint, f.Keys.P256dh, f.Keys.Auth)
	case FrameDismissPrompt:
		s.mu.Lock()
		prompt := s.prompt
		s.mu.Unlock()
		prompt.Dismiss(s.m.deps.Clock.Now())
		s.sendPrompt()
	case FrameScheduleNotification:
		s.schedule(f.Title, f.Body, time.Duration(f.DelayMS)*time.Millisecond, f.Tag)
	case FrameCancelNotification:
		s.cancelScheduled(f.Tag)
	case FrameAuth:
		userID, err := auth.Verify(s.m.deps.Profiles, f.Token)
		if err != nil {
			s.logger.Info("device authentication failed", "error", err)
			s.sendError("authentication failed")
			return
		}
		s.SetUser(userID)
	case FrameLogout:
		s.SetUser(0)
	default:
		s.sendError("unknown frame type")
	}
}

func parsePermission(raw string) model.Permission {
	p, err := model.ParsePermission(raw)
	if err != nil {
		return model.PermissionDefault
	}
	return p
}

// hello installs the device's reported capability, replacing any earlier one.
// Notifications need both display and a background worker, and web push
// configured on the server; anything less is unsupported.
func (s *Session) hello(h device.Hello) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.teardownLocked()

	if h.Notifications && h.Worker && s.m.deps.Pusher != nil {
		s.dev = device.New(s.deviceID, s.conn, s.m.deps.Pusher, s.m.deps.Push, h, s.logger.With("component", "device"))
		s.dev.SetUser(s.userID)
		s.device = s.dev
	} else {
		s.dev = nil
		s.device = notify.Unsupported{}
	}
	s.tracker = notify.NewTracker(s.device, s.logger)
	s.buildPipeline()
	run := s.startLocked()
	s.mu.Unlock()

	s.checkReminder(run)
	s.sendPermissionState()
	s.sendPrompt()
}

// buildPipeline creates the dispatcher and everything that shows through it.
// Callers hold mu or own the session exclusively.
func (s *Session) buildPipeline() {
	deps := s.m.deps
	s.dispatcher = notify.NewDispatcher(s.tracker, s.device, deps.Clock, s.logger.With("component", "dispatcher"))
	s.prompt = notify.NewPromptPolicy(s.tracker, deps.Devices, s.deviceID, deps.Config.PromptWindow, s.logger)
	s.bridge = notify.NewBridge(notify.BridgeConfig{
		Feed:          deps.Feed,
		Tracker:       s.tracker,
		Dispatcher:    s.dispatcher,
		Profiles:      deps.Profiles,
		Classes:       deps.Classes,
		Preferences:   deps.Push,
		Visibility:    s,
		PreviewLength: deps.Config.PreviewLength,
		Logger:        s.logger.With("component", "bridge"),
	})
	s.reminder = notify.NewReminder(notify.ReminderConfig{
		Dispatcher:  s.dispatcher,
		Tracker:     s.tracker,
		Settings:    deps.Devices,
		Preferences: deps.Push,
		Clock:       deps.Clock,
		Cron:        deps.Cron,
		DeviceID:    s.deviceID,
		Hour:        deps.Config.ReminderHour,
		Logger:      s.logger.With("component", "reminder"),
	})
	s.handles = make(map[string]*notify.Scheduled)
}

// startLocked starts whatever the current user and permission allow and is
// not already running. A newly attached reminder run is returned so its first
// check can happen after mu is released.
func (s *Session) startLocked() *notify.ReminderRun {
	if s.closed {
		return nil
	}
	if s.userID != 0 && s.presence == nil {
		s.presence = s.m.heartbeat.Start(s.userID)
	}
	if !s.tracker.Granted() {
		s.stopNotificationsLocked()
		return nil
	}
	if s.sub == nil {
		s.sub = s.bridge.Start(s.userID)
	}
	if s.run != nil {
		return nil
	}
	s.run = s.reminder.Attach(s.userID)
	return s.run
}

// checkReminder runs the first check of a freshly attached run. A run stopped
// in the meantime skips it.
func (s *Session) checkReminder(run *notify.ReminderRun) {
	if run != nil {
		run.Check(s.ctx)
	}
}

func (s *Session) stopNotificationsLocked() {
	if s.sub != nil {
		s.sub.Close()
		s.sub = nil
	}
	if s.run != nil {
		s.run.Stop()
		s.run = nil
	}
}

// teardownLocked stops everything owned by the current user.
func (s *Session) teardownLocked() {
	s.stopNotificationsLocked()
	if s.presence != nil {
		s.presence.Stop()
		s.presence = nil
	}
	s.dispatcher.Close()
}

// SetUser switches the signed-in user. Everything tied to the previous user
// is torn down before anything starts for the new one.
func (s *Session) SetUser(userID int64) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.identified && userID == s.userID {
		s.mu.Unlock()
		return
	}

	s.teardownLocked()
	s.identified = true
	s.userID = userID
	s.conn.SetUser(userID)
	if s.dev != nil {
		s.dev.SetUser(userID)
	}
	s.buildPipeline()
	run := s.startLocked()
	s.mu.Unlock()

	s.checkReminder(run)
	s.send(map[string]any{"type": FrameSession, "user_id": userID})
	s.sendPermissionState()
	s.sendPrompt()
}

func (s *Session) permissionChanged(p model.Permission) {
	s.mu.Lock()
	dev := s.dev
	s.mu.Unlock()
	if dev == nil {
		return
	}

	dev.SetPermission(p)
	s.sync()
}

// sync brings the pipelines in line with the tracker after a permission
// change and tells the device.
func (s *Session) sync() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.tracker.Refresh()
	run := s.startLocked()
	s.mu.Unlock()

	s.checkReminder(run)
	s.sendPermissionState()
	s.sendPrompt()
}

func (s *Session) enableNotifications() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	tracker := s.tracker
	userID := s.userID
	timeout := s.m.deps.Config.PermissionTimeout
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, timeout)
		defer cancel()

		granted := tracker.Request(ctx, userID)
		s.sync()
		s.send(map[string]any{"type": FrameEnableResult, "granted": granted})
	}()
}

func (s *Session) saveSubscription(endpoint, p256dh, authKey string) {
	s.mu.Lock()
	userID, dev := s.userID, s.dev
	s.mu.Unlock()

	if userID == 0 || dev == nil {
		s.sendError("sign in to enable push")
		return
	}
	if endpoint == "" || p256dh == "" || authKey == "" {
		s.sendError("endpoint, p256dh, and auth are required")
		return
	}
	if _, err := s.m.deps.Push.CreateSubscription(userID, s.deviceID, endpoint, p256dh, authKey); err != nil {
		s.logger.Error("save push subscription", "error", err)
		s.sendError("failed to save subscription")
		return
	}
	dev.SubscriptionSaved()
}

func (s *Session) schedule(title, body string, delay time.Duration, tag string) {
	if title == "" || delay < 0 {
		s.sendError("title and a non-negative delay are required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.dispatcher.Schedule(title, body, delay, tag)
	if h == nil || tag == "" {
		return
	}
	if prev := s.handles[tag]; prev != nil {
		prev.Cancel()
	}
	s.handles[tag] = h
}

func (s *Session) cancelScheduled(tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h := s.handles[tag]; h != nil {
		h.Cancel()
		delete(s.handles, tag)
	}
}

// Pending returns the number of scheduled notifications not yet shown.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatcher.Pending()
}

func (s *Session) sendPermissionState() {
	s.mu.Lock()
	tracker := s.tracker
	s.mu.Unlock()

	state := tracker.State()
	s.send(map[string]any{
		"type":       FramePermissionState,
		"supported":  tracker.Supported(),
		"permission": state,
		"denied":     state == model.PermissionDenied,
	})
}

func (s *Session) sendPrompt() {
	s.mu.Lock()
	prompt := s.prompt
	s.mu.Unlock()

	s.send(map[string]any{"type": FramePrompt, "show": prompt.ShouldShow(s.m.deps.Clock.Now())})
}

func (s *Session) sendError(msg string) {
	s.send(map[string]any{"type": FrameError, "error": msg})
}

func (s *Session) send(v any) {
	if err := s.conn.Send(v); err != nil {
		s.logger.Debug("send frame", "error", err)
	}
}

// Close tears down the session. No channel, timer or ticker it started
// outlives it. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.teardownLocked()
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.m.remove(s)
}
