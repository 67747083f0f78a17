package notify

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dukerupert/stride/internal/model"
	"github.com/dukerupert/stride/internal/store"
	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
)

const (
	DefaultReminderHour = 18

	reminderSchedule = "@every 1h"
	reminderTitle    = "Daily check-in"
	reminderBody     = "Take a minute to log today's training."
	reminderTag      = "daily-reminder"
	dateLayout       = "2006-01-02"
)

// ReminderAction is what a Check did.
type ReminderAction string

const (
	ReminderSkipped ReminderAction = "skipped"
	ReminderFired   ReminderAction = "fired"
	ReminderArmed   ReminderAction = "armed"
)

// ReminderOutcome reports a Check. Delay is set when the timer was armed.
type ReminderOutcome struct {
	Action ReminderAction
	Delay  time.Duration
}

type ReminderConfig struct {
	Dispatcher  *Dispatcher
	Tracker     *Tracker
	Settings    DeviceSettings
	Preferences Preferences
	Clock       clockwork.Clock
	// Cron runs the hourly checks. A nil Cron leaves checking to the caller.
	Cron     *cron.Cron
	DeviceID string
	Hour     int
	Logger   *slog.Logger
}

// Reminder fires one notification per calendar day per device at a fixed
// local hour.
type Reminder struct {
	cfg ReminderConfig
}

func NewReminder(cfg ReminderConfig) *Reminder {
	if cfg.Hour < 0 || cfg.Hour > 23 {
		cfg.Hour = DefaultReminderHour
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Reminder{cfg: cfg}
}

// ReminderRun is the reminder for one signed-in user.
type ReminderRun struct {
	r      *Reminder
	userID int64
	alive  atomic.Bool

	mu       sync.Mutex
	timer    clockwork.Timer
	entry    cron.EntryID
	hasEntry bool

	// fireMu serializes fire so the per-day mark is read and written once.
	fireMu sync.Mutex
}

// Start checks immediately and then hourly. It returns nil when there is no
// user or permission is not granted.
func (r *Reminder) Start(ctx context.Context, userID int64) *ReminderRun {
	run := r.Attach(userID)
	if run != nil {
		run.Check(ctx)
	}
	return run
}

// Attach schedules the hourly checks without running the first one, leaving
// it to the caller. It returns nil under the same conditions as Start.
func (r *Reminder) Attach(userID int64) *ReminderRun {
	if userID == 0 || !r.cfg.Tracker.Granted() {
		return nil
	}

	run := r.newRun(userID)
	if r.cfg.Cron != nil {
		id, err := r.cfg.Cron.AddFunc(reminderSchedule, func() {
			run.Check(context.Background())
		})
		if err != nil {
			r.cfg.Logger.Error("schedule hourly reminder check", "error", err)
			return run
		}
		run.mu.Lock()
		if run.alive.Load() {
			run.entry, run.hasEntry = id, true
		} else {
			r.cfg.Cron.Remove(id)
		}
		run.mu.Unlock()
	}
	return run
}

func (r *Reminder) newRun(userID int64) *ReminderRun {
	run := &ReminderRun{r: r, userID: userID}
	run.alive.Store(true)
	return run
}

// Check runs one evaluation of the reminder. Calling it again before an armed
// timer fires replaces that timer.
func (run *ReminderRun) Check(ctx context.Context) ReminderOutcome {
	r := run.r
	if !run.alive.Load() || !r.cfg.Tracker.Granted() {
		return ReminderOutcome{Action: ReminderSkipped}
	}

	now := r.cfg.Clock.Now()
	today := now.Format(dateLayout)

	mark, err := r.cfg.Settings.Get(r.cfg.DeviceID, store.KeyReminderLastDate)
	if err != nil {
		r.cfg.Logger.Warn("read reminder mark", "error", err)
		return ReminderOutcome{Action: ReminderSkipped}
	}
	if mark == today {
		return ReminderOutcome{Action: ReminderSkipped}
	}

	at := time.Date(now.Year(), now.Month(), now.Day(), r.cfg.Hour, 0, 0, 0, now.Location())
	if !now.Before(at) {
		run.stopTimer()
		if !run.fire(ctx) {
			return ReminderOutcome{Action: ReminderSkipped}
		}
		return ReminderOutcome{Action: ReminderFired}
	}

	delay := at.Sub(now)
	run.mu.Lock()
	defer run.mu.Unlock()
	if !run.alive.Load() {
		return ReminderOutcome{Action: ReminderSkipped}
	}
	if run.timer != nil {
		run.timer.Stop()
	}
	var t clockwork.Timer
	t = r.cfg.Clock.AfterFunc(delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), showTimeout)
		defer cancel()
		run.fire(ctx)

		run.mu.Lock()
		if run.timer == t {
			run.timer = nil
		}
		run.mu.Unlock()
	})
	run.timer = t
	return ReminderOutcome{Action: ReminderArmed, Delay: delay}
}

// fire shows the reminder unless it already fired today, and records the
// mark. It reports whether a reminder went out.
func (run *ReminderRun) fire(ctx context.Context) bool {
	run.fireMu.Lock()
	defer run.fireMu.Unlock()

	r := run.r
	if !run.alive.Load() || !r.cfg.Tracker.Granted() {
		return false
	}

	today := r.cfg.Clock.Now().Format(dateLayout)
	mark, err := r.cfg.Settings.Get(r.cfg.DeviceID, store.KeyReminderLastDate)
	if err != nil {
		r.cfg.Logger.Warn("read reminder mark", "error", err)
		return false
	}
	if mark == today {
		return false
	}

	if r.cfg.Preferences != nil {
		enabled, err := r.cfg.Preferences.IsPreferenceEnabled(run.userID, model.NotifTypeDailyReminder)
		if err != nil {
			r.cfg.Logger.Warn("read notification preference", "error", err, "category", model.NotifTypeDailyReminder)
		} else if !enabled {
			return false
		}
	}

	r.cfg.Dispatcher.Show(ctx, reminderTitle, model.NotificationOptions{
		Category: model.NotifTypeDailyReminder,
		Body:     reminderBody,
		Tag:      reminderTag,
		Data:     map[string]string{"url": "/"},
	})

	if err := r.cfg.Settings.Set(r.cfg.DeviceID, store.KeyReminderLastDate, today); err != nil {
		r.cfg.Logger.Warn("save reminder mark", "error", err)
	}
	return true
}

func (run *ReminderRun) stopTimer() {
	run.mu.Lock()
	defer run.mu.Unlock()
	if run.timer != nil {
		run.timer.Stop()
		run.timer = nil
	}
}

// Armed reports whether a one-shot timer is waiting.
func (run *ReminderRun) Armed() bool {
	run.mu.Lock()
	defer run.mu.Unlock()
	return run.timer != nil
}

// Stop removes the hourly check and any armed timer. It is safe to call more
// than once.
func (run *ReminderRun) Stop() {
	run.alive.Store(false)

	run.mu.Lock()
	defer run.mu.Unlock()
	if run.timer != nil {
		run.timer.Stop()
		run.timer = nil
	}
	if run.hasEntry {
		run.r.cfg.Cron.Remove(run.entry)
		run.hasEntry = false
	}
}
