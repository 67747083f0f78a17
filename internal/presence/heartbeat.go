// Package presence keeps a user's last-seen timestamp fresh while they are
// interacting with a device.
package presence

import (
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/stride/internal/metrics"
	"github.com/jonboulle/clockwork"
)

// Input kinds that count as activity.
const (
	KindPointerDown = "pointerdown"
	KindKeyDown     = "keydown"
	KindScroll      = "scroll"
	KindTouchStart  = "touchstart"
)

const (
	resultWritten   = "written"
	resultThrottled = "throttled"
	resultError     = "error"
)

// Writer persists the last-seen timestamp.
type Writer interface {
	TouchLastSeen(userID int64, at time.Time) error
}

// Config holds the heartbeat timings.
type Config struct {
	// Debounce is the quiet period after the last input before a write is attempted.
	Debounce time.Duration
	// Floor is the minimum time between successful writes.
	Floor time.Duration
	// Interval is the period of the backstop ticker.
	Interval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Debounce: time.Second,
		Floor:    5 * time.Minute,
		Interval: 5 * time.Minute,
	}
}

// Heartbeat creates per-user trackers.
type Heartbeat struct {
	writer Writer
	clock  clockwork.Clock
	cfg    Config
	logger *slog.Logger
}

func NewHeartbeat(writer Writer, clock clockwork.Clock, cfg Config, logger *slog.Logger) *Heartbeat {
	def := DefaultConfig()
	if cfg.Debounce <= 0 {
		cfg.Debounce = def.Debounce
	}
	if cfg.Floor <= 0 {
		cfg.Floor = def.Floor
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	return &Heartbeat{writer: writer, clock: clock, cfg: cfg, logger: logger}
}

// Start attaches a tracker for userID. It returns nil when there is no user.
func (h *Heartbeat) Start(userID int64) *Tracker {
	if userID == 0 {
		return nil
	}
	t := &Tracker{
		h:      h,
		userID: userID,
		ticker: h.clock.NewTicker(h.cfg.Interval),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go t.loop()
	return t
}

// Tracker is the heartbeat for one signed-in user.
type Tracker struct {
	h      *Heartbeat
	userID int64
	ticker clockwork.Ticker
	stop   chan struct{}
	done   chan struct{}

	mu        sync.Mutex
	debounce  clockwork.Timer
	stopped   bool
	writing   bool
	lastWrite time.Time
}

// Touch records one input event. It reports whether the kind counts as
// activity.
func (t *Tracker) Touch(kind string) bool {
	switch kind {
	case KindPointerDown, KindKeyDown, KindScroll, KindTouchStart:
	default:
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return false
	}
	if t.debounce != nil {
		t.debounce.Stop()
	}
	t.debounce = t.h.clock.AfterFunc(t.h.cfg.Debounce, t.attempt)
	return true
}

func (t *Tracker) loop() {
	defer close(t.done)
	for {
		select {
		case <-t.stop:
			return
		case <-t.ticker.Chan():
			t.attempt()
		}
	}
}

// attempt writes last-seen unless a write is in flight or the last
// successful one was less than Floor ago.
func (t *Tracker) attempt() {
	t.mu.Lock()
	if t.stopped || t.writing {
		t.mu.Unlock()
		return
	}
	now := t.h.clock.Now()
	if !t.lastWrite.IsZero() && now.Sub(t.lastWrite) < t.h.cfg.Floor {
		t.mu.Unlock()
		metrics.PresenceWrites.WithLabelValues(resultThrottled).Inc()
		return
	}
	t.writing = true
	t.mu.Unlock()

	err := t.h.writer.TouchLastSeen(t.userID, now)

	t.mu.Lock()
	t.writing = false
	if err == nil {
		t.lastWrite = now
	}
	t.mu.Unlock()

	if err != nil {
		metrics.PresenceWrites.WithLabelValues(resultError).Inc()
		t.h.logger.Warn("update last seen", "error", err, "user_id", t.userID)
		return
	}
	metrics.PresenceWrites.WithLabelValues(resultWritten).Inc()
}

// Stop clears the debounce timer and the ticker and waits for the ticker
// goroutine to exit. It is safe to call more than once.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	if t.debounce != nil {
		t.debounce.Stop()
		t.debounce = nil
	}
	t.mu.Unlock()

	t.ticker.Stop()
	close(t.stop)
	<-t.done
}
