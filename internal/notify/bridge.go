package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/dukerupert/stride/internal/metrics"
	"github.com/dukerupert/stride/internal/model"
	"github.com/dukerupert/stride/internal/realtime"
)

const (
	DefaultPreviewLength = 50

	reasonForeground = "foreground"
	reasonDistrict   = "other_district"
	reasonPreference = "preference"

	unknownSender = "Someone"
)

// Feed is the change-subscription side of the realtime feed.
type Feed interface {
	Subscribe(table string, filter *realtime.Filter, handler func(realtime.Change)) (*realtime.Channel, error)
}

// Profiles answers the profile lookups the bridge needs.
type Profiles interface {
	DisplayName(id int64) (string, error)
	District(id int64) (string, error)
}

// Classes resolves a booking's class.
type Classes interface {
	GetByID(id int64) (*model.Class, error)
}

// Preferences reports whether a category is enabled for a user.
type Preferences interface {
	IsPreferenceEnabled(userID int64, notifType string) (bool, error)
}

// Visibility reports whether the user is looking at the page.
type Visibility interface {
	Foreground() bool
}

// BridgeConfig wires a Bridge.
type BridgeConfig struct {
	Feed          Feed
	Tracker       *Tracker
	Dispatcher    *Dispatcher
	Profiles      Profiles
	Classes       Classes
	Preferences   Preferences
	Visibility    Visibility
	PreviewLength int
	Logger        *slog.Logger
}

// Bridge turns inserts on messages, bookings and events into device
// notifications for one user.
//
// Bookings and events are subscribed table-wide and filtered here after a
// lookup, so every insert costs one lookup per connected device.
type Bridge struct {
	cfg BridgeConfig
}

func NewBridge(cfg BridgeConfig) *Bridge {
	if cfg.PreviewLength <= 0 {
		cfg.PreviewLength = DefaultPreviewLength
	}
	return &Bridge{cfg: cfg}
}

// Subscription owns the three channels opened by Start.
type Subscription struct {
	userID   int64
	alive    atomic.Bool
	mu       sync.Mutex
	channels []*realtime.Channel
}

// UserID returns the user the subscription was opened for.
func (s *Subscription) UserID() int64 {
	return s.userID
}

// Live reports whether the subscription has not been closed.
func (s *Subscription) Live() bool {
	return s.alive.Load()
}

// Close unsubscribes every channel. It is safe to call more than once.
func (s *Subscription) Close() {
	s.alive.Store(false)

	s.mu.Lock()
	channels := s.channels
	s.channels = nil
	s.mu.Unlock()

	for _, c := range channels {
		c.Close()
	}
}

// Start subscribes the three tables for userID. It returns nil when there is
// no user or permission is not granted.
func (b *Bridge) Start(userID int64) *Subscription {
	if userID == 0 || !b.cfg.Tracker.Granted() {
		return nil
	}

	sub := &Subscription{userID: userID}
	sub.alive.Store(true)

	subscriptions := []struct {
		table   string
		filter  *realtime.Filter
		handler func(*Subscription, realtime.Change)
	}{
		{realtime.TableMessages, realtime.Eq("recipient_id", userID), b.onMessage},
		{realtime.TableBookings, nil, b.onBooking},
		{realtime.TableEvents, nil, b.onEvent},
	}

	for _, s := range subscriptions {
		handler := s.handler
		c, err := b.cfg.Feed.Subscribe(s.table, s.filter, func(ch realtime.Change) {
			handler(sub, ch)
		})
		if err != nil {
			b.cfg.Logger.Error("subscribe realtime channel", "error", err, "table", s.table)
			continue
		}
		sub.mu.Lock()
		sub.channels = append(sub.channels, c)
		sub.mu.Unlock()
	}
	return sub
}

func (b *Bridge) onMessage(sub *Subscription, ch realtime.Change) {
	m, ok := ch.Record.(*model.Message)
	if !ok || m.RecipientID != sub.userID {
		return
	}
	if b.cfg.Visibility.Foreground() {
		metrics.NotificationsSuppressed.WithLabelValues(model.NotifTypeMessages, reasonForeground).Inc()
		return
	}

	name, err := b.cfg.Profiles.DisplayName(m.SenderID)
	if err != nil {
		b.cfg.Logger.Warn("look up message sender", "error", err, "sender_id", m.SenderID)
	}
	if name == "" {
		name = unknownSender
	}

	b.emit(sub, model.NotifTypeMessages, "New message from "+name, model.NotificationOptions{
		Body: Preview(m.Content, b.cfg.PreviewLength),
		Tag:  fmt.Sprintf("message-%d", m.ID),
		Data: map[string]string{"url": fmt.Sprintf("/messages/%d", m.SenderID)},
	})
}

func (b *Bridge) onBooking(sub *Subscription, ch realtime.Change) {
	bk, ok := ch.Record.(*model.Booking)
	if !ok {
		return
	}

	class, err := b.cfg.Classes.GetByID(bk.ClassID)
	if err != nil {
		b.cfg.Logger.Warn("look up booked class", "error", err, "class_id", bk.ClassID)
		return
	}
	if class == nil || class.TrainerID != sub.userID {
		return
	}
	if !sub.Live() {
		return
	}
	if b.cfg.Visibility.Foreground() {
		metrics.NotificationsSuppressed.WithLabelValues(model.NotifTypeBookings, reasonForeground).Inc()
		return
	}

	name, err := b.cfg.Profiles.DisplayName(bk.UserID)
	if err != nil {
		b.cfg.Logger.Warn("look up booking member", "error", err, "user_id", bk.UserID)
	}
	if name == "" {
		name = unknownSender
	}

	b.emit(sub, model.NotifTypeBookings, "New booking", model.NotificationOptions{
		Body: fmt.Sprintf("%s booked %s", name, class.Title),
		Tag:  fmt.Sprintf("booking-%d", bk.ID),
		Data: map[string]string{"url": "/bookings"},
	})
}

func (b *Bridge) onEvent(sub *Subscription, ch realtime.Change) {
	ev, ok := ch.Record.(*model.Event)
	if !ok {
		return
	}

	district, err := b.cfg.Profiles.District(sub.userID)
	if err != nil {
		b.cfg.Logger.Warn("look up user district", "error", err, "user_id", sub.userID)
		return
	}
	if district == "" || district != ev.District {
		metrics.NotificationsSuppressed.WithLabelValues(model.NotifTypeEvents, reasonDistrict).Inc()
		return
	}
	if !sub.Live() {
		return
	}
	if b.cfg.Visibility.Foreground() {
		metrics.NotificationsSuppressed.WithLabelValues(model.NotifTypeEvents, reasonForeground).Inc()
		return
	}

	b.emit(sub, model.NotifTypeEvents, "New event in "+ev.District, model.NotificationOptions{
		Body: ev.Title,
		Tag:  fmt.Sprintf("event-%d", ev.ID),
		Data: map[string]string{"url": fmt.Sprintf("/events/%d", ev.ID)},
	})
}

// emit checks liveness and the category preference, then shows.
func (b *Bridge) emit(sub *Subscription, category, title string, opts model.NotificationOptions) {
	if !sub.Live() {
		return
	}

	enabled, err := b.cfg.Preferences.IsPreferenceEnabled(sub.userID, category)
	if err != nil {
		b.cfg.Logger.Warn("read notification preference", "error", err, "category", category)
		enabled = true
	}
	if !enabled {
		metrics.NotificationsSuppressed.WithLabelValues(category, reasonPreference).Inc()
		return
	}
	if !sub.Live() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), showTimeout)
	defer cancel()
	opts.Category = category
	b.cfg.Dispatcher.Show(ctx, title, opts)
}

// Preview shortens s to at most n runes, marking a cut with "...".
func Preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}
