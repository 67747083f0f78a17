package notify

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/dukerupert/stride/internal/metrics"
	"github.com/dukerupert/stride/internal/model"
	"github.com/jonboulle/clockwork"
)

const (
	DefaultIcon  = "/icon-192.png"
	DefaultBadge = "/badge-72.png"

	categoryLocal = "local"
	showTimeout   = 10 * time.Second
	pathWorker    = "worker"
	pathDirect    = "direct"
	reasonDenied  = "permission"
)

// Dispatcher shows notifications on one device, preferring its background
// worker and falling back to a direct page notification.
type Dispatcher struct {
	mu      sync.Mutex
	tracker *Tracker
	device  Capability
	clock   clockwork.Clock
	logger  *slog.Logger
	pending map[*Scheduled]struct{}
	closed  bool
}

func NewDispatcher(tracker *Tracker, device Capability, clock clockwork.Clock, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		tracker: tracker,
		device:  device,
		clock:   clock,
		logger:  logger,
		pending: make(map[*Scheduled]struct{}),
	}
}

// Show displays a notification. It does nothing unless permission is
// granted, and reports whether the device accepted it.
func (d *Dispatcher) Show(ctx context.Context, title string, opts model.NotificationOptions) bool {
	category := opts.Category
	if category == "" {
		category = categoryLocal
	}
	if !d.tracker.Granted() {
		metrics.NotificationsSuppressed.WithLabelValues(category, reasonDenied).Inc()
		return false
	}

	n := merge(title, opts)

	if w := d.device.Worker(); w != nil {
		err := w.ShowNotification(ctx, n)
		if err == nil {
			metrics.NotificationsEmitted.WithLabelValues(category, pathWorker).Inc()
			return true
		}
		d.logger.Warn("worker notification failed, showing directly", "error", err, "tag", n.Tag)
	}

	if err := d.device.Display(ctx, n); err != nil {
		d.logger.Warn("show notification", "error", err, "tag", n.Tag)
		return false
	}
	metrics.NotificationsEmitted.WithLabelValues(category, pathDirect).Inc()
	return true
}

func merge(title string, opts model.NotificationOptions) model.Notification {
	n := model.Notification{
		Title: title,
		Body:  opts.Body,
		Icon:  DefaultIcon,
		Badge: DefaultBadge,
		Tag:   opts.Tag,
	}
	if opts.Icon != "" {
		n.Icon = opts.Icon
	}
	if opts.Badge != "" {
		n.Badge = opts.Badge
	}
	if len(opts.Data) > 0 {
		n.Data = maps.Clone(opts.Data)
	}
	return n
}

// Scheduled is a notification armed to fire once after a delay.
type Scheduled struct {
	d     *Dispatcher
	timer clockwork.Timer
}

// Cancel disarms the notification. It reports whether it was still pending.
func (s *Scheduled) Cancel() bool {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()

	if _, ok := s.d.pending[s]; !ok {
		return false
	}
	delete(s.d.pending, s)
	s.timer.Stop()
	return true
}

// Schedule arms a notification to show once after delay. It returns nil
// when permission is not granted. Scheduled notifications do not survive
// the dispatcher: Close drops anything still pending.
func (d *Dispatcher) Schedule(title, body string, delay time.Duration, tag string) *Scheduled {
	if !d.tracker.Granted() {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}

	s := &Scheduled{d: d}
	s.timer = d.clock.AfterFunc(delay, func() {
		d.fire(s, title, body, tag)
	})
	d.pending[s] = struct{}{}
	return s
}

func (d *Dispatcher) fire(s *Scheduled, title, body, tag string) {
	d.mu.Lock()
	if _, ok := d.pending[s]; !ok {
		d.mu.Unlock()
		return
	}
	delete(d.pending, s)
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), showTimeout)
	defer cancel()
	d.Show(ctx, title, model.NotificationOptions{Body: body, Tag: tag})
}

// Pending returns the number of armed notifications.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Close cancels every pending scheduled notification.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	for s := range d.pending {
		s.timer.Stop()
		delete(d.pending, s)
	}
}
