package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/stride/internal/model"
	"github.com/dukerupert/stride/internal/store"
)

// Tracker holds a device's notification permission.
type Tracker struct {
	mu        sync.RWMutex
	device    Capability
	supported bool
	state     model.Permission
	logger    *slog.Logger
}

// NewTracker reads the capability once.
func NewTracker(device Capability, logger *slog.Logger) *Tracker {
	t := &Tracker{
		device: device,
		state:  model.PermissionDefault,
		logger: logger,
	}
	t.supported = device.Supported()
	if t.supported {
		t.state = device.Permission()
	}
	return t
}

func (t *Tracker) Supported() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.supported
}

func (t *Tracker) State() model.Permission {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

func (t *Tracker) Granted() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.supported && t.state == model.PermissionGranted
}

// Refresh re-reads support and permission from the capability, for when the
// device reports a change made outside a Request.
func (t *Tracker) Refresh() {
	supported := t.device.Supported()
	state := model.PermissionDefault
	if supported {
		state = t.device.Permission()
	}

	t.mu.Lock()
	t.supported = supported
	t.state = state
	t.mu.Unlock()
}

// Request prompts for permission and reports whether it was granted. On a
// grant with a signed-in user it also registers the background worker, and a
// failed registration reports false.
func (t *Tracker) Request(ctx context.Context, userID int64) bool {
	if !t.Supported() {
		return false
	}

	perm, err := t.device.RequestPermission(ctx)
	if err != nil {
		t.logger.Warn("request notification permission", "error", err)
		return false
	}

	t.mu.Lock()
	t.state = perm
	t.mu.Unlock()

	if perm != model.PermissionGranted {
		return false
	}

	if userID != 0 {
		if err := t.device.RegisterWorker(ctx, WorkerPath); err != nil {
			t.logger.Warn("register background worker", "error", err, "path", WorkerPath)
			return false
		}
	}
	return true
}

// DeviceSettings is the per-device key/value store.
type DeviceSettings interface {
	Get(deviceID, key string) (string, error)
	Set(deviceID, key, value string) error
}

// PromptPolicy decides whether to offer the enable-notifications prompt.
// A dismissal suppresses the prompt for window.
type PromptPolicy struct {
	tracker  *Tracker
	settings DeviceSettings
	deviceID string
	window   time.Duration
	logger   *slog.Logger
}

func NewPromptPolicy(tracker *Tracker, settings DeviceSettings, deviceID string, window time.Duration, logger *slog.Logger) *PromptPolicy {
	return &PromptPolicy{
		tracker:  tracker,
		settings: settings,
		deviceID: deviceID,
		window:   window,
		logger:   logger,
	}
}

// ShouldShow reports whether the prompt is eligible at now.
func (p *PromptPolicy) ShouldShow(now time.Time) bool {
	if !p.tracker.Supported() || p.tracker.State() != model.PermissionDefault {
		return false
	}

	raw, err := p.settings.Get(p.deviceID, store.KeyPromptDismissed)
	if err != nil {
		p.logger.Warn("read prompt dismissal", "error", err)
		return true
	}
	if raw == "" {
		return true
	}

	dismissed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		p.logger.Warn("parse prompt dismissal", "error", err, "value", raw)
		return true
	}
	return now.Sub(dismissed) >= p.window
}

// Dismiss records that the user closed the prompt at now.
func (p *PromptPolicy) Dismiss(now time.Time) {
	if err := p.settings.Set(p.deviceID, store.KeyPromptDismissed, now.UTC().Format(time.RFC3339)); err != nil {
		p.logger.Warn("save prompt dismissal", "error", err)
	}
}
