package notify

import (
	"context"
	"testing"
	"time"

	"github.com/dukerupert/stride/internal/model"
	"github.com/dukerupert/stride/internal/store"
	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reminderFixture struct {
	clock    *clockwork.FakeClock
	dev      *fakeDevice
	settings *memSettings
	prefs    *memPrefs
	reminder *Reminder
}

func newReminderFixture(t *testing.T, at time.Time, c *cron.Cron) *reminderFixture {
	t.Helper()

	f := &reminderFixture{
		clock:    clockwork.NewFakeClockAt(at),
		dev:      newGrantedDevice(),
		settings: newMemSettings(),
		prefs:    &memPrefs{},
	}
	tracker := NewTracker(f.dev, testLogger)
	f.reminder = NewReminder(ReminderConfig{
		Dispatcher:  NewDispatcher(tracker, f.dev, f.clock, testLogger),
		Tracker:     tracker,
		Settings:    f.settings,
		Preferences: f.prefs,
		Clock:       f.clock,
		Cron:        c,
		DeviceID:    "dev-1",
		Hour:        18,
		Logger:      testLogger,
	})
	return f
}

func localTime(hour int) time.Time {
	return time.Date(2024, 3, 1, hour, 0, 0, 0, time.Local)
}

func (f *reminderFixture) mark() string {
	return f.settings.value("dev-1", store.KeyReminderLastDate)
}

func TestReminderArmsBeforeHour(t *testing.T) {
	f := newReminderFixture(t, localTime(10), nil)
	run := f.reminder.newRun(alice)
	defer run.Stop()

	out := run.Check(context.Background())
	assert.Equal(t, ReminderArmed, out.Action)
	assert.Equal(t, 8*time.Hour, out.Delay)
	assert.True(t, run.Armed())
	assert.Empty(t, f.mark())

	f.clock.Advance(8 * time.Hour)
	require.Eventually(t, func() bool { return f.mark() == "2024-03-01" }, time.Second, 5*time.Millisecond)

	shown := f.dev.shown()
	require.Len(t, shown, 1)
	assert.Equal(t, "Daily check-in", shown[0].Title)
	assert.Equal(t, "daily-reminder", shown[0].Tag)
	assert.Equal(t, "/", shown[0].Data["url"])
	require.Eventually(t, func() bool { return !run.Armed() }, time.Second, 5*time.Millisecond)
}

func TestReminderFiresAfterHour(t *testing.T) {
	f := newReminderFixture(t, localTime(19), nil)
	run := f.reminder.newRun(alice)
	defer run.Stop()

	out := run.Check(context.Background())
	assert.Equal(t, ReminderFired, out.Action)
	assert.Equal(t, "2024-03-01", f.mark())
	assert.Len(t, f.dev.shown(), 1)
	assert.False(t, run.Armed())
}

func TestReminderSecondCheckSameDaySkips(t *testing.T) {
	f := newReminderFixture(t, localTime(19), nil)
	run := f.reminder.newRun(alice)
	defer run.Stop()

	require.Equal(t, ReminderFired, run.Check(context.Background()).Action)

	for _, d := range []time.Duration{time.Minute, 2 * time.Hour, 4*time.Hour + 59*time.Minute} {
		f.clock.Advance(d)
		assert.Equal(t, ReminderSkipped, run.Check(context.Background()).Action)
	}
	assert.Len(t, f.dev.shown(), 1)
}

func TestReminderNextDayFiresAgain(t *testing.T) {
	f := newReminderFixture(t, localTime(19), nil)
	run := f.reminder.newRun(alice)
	defer run.Stop()

	require.Equal(t, ReminderFired, run.Check(context.Background()).Action)

	f.clock.Advance(24 * time.Hour)
	assert.Equal(t, ReminderFired, run.Check(context.Background()).Action)
	assert.Equal(t, "2024-03-02", f.mark())
	assert.Len(t, f.dev.shown(), 2)
}

// Re-checking before the reminder hour replaces the armed timer rather than
// stacking a second one, so only one timer is ever waiting.
func TestReminderRecheckReplacesArmedTimer(t *testing.T) {
	f := newReminderFixture(t, localTime(10), nil)
	run := f.reminder.newRun(alice)
	defer run.Stop()

	first := run.Check(context.Background())
	require.Equal(t, ReminderArmed, first.Action)

	f.clock.Advance(time.Hour)
	second := run.Check(context.Background())
	require.Equal(t, ReminderArmed, second.Action)
	assert.Equal(t, 7*time.Hour, second.Delay)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))

	f.clock.Advance(7 * time.Hour)
	require.Eventually(t, func() bool { return f.mark() == "2024-03-01" }, time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool { return len(f.dev.shown()) > 1 }, 50*time.Millisecond, 5*time.Millisecond)
	assert.Len(t, f.dev.shown(), 1)
}

func TestReminderRespectsPreference(t *testing.T) {
	f := newReminderFixture(t, localTime(19), nil)
	f.prefs.disable(model.NotifTypeDailyReminder)
	run := f.reminder.newRun(alice)
	defer run.Stop()

	assert.Equal(t, ReminderSkipped, run.Check(context.Background()).Action)
	assert.Empty(t, f.dev.shown())
	assert.Empty(t, f.mark())
}

func TestReminderStopDisarms(t *testing.T) {
	f := newReminderFixture(t, localTime(10), nil)
	run := f.reminder.newRun(alice)

	require.Equal(t, ReminderArmed, run.Check(context.Background()).Action)
	run.Stop()
	run.Stop()
	assert.False(t, run.Armed())

	f.clock.Advance(9 * time.Hour)
	assert.Never(t, func() bool { return len(f.dev.shown()) > 0 }, 50*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, ReminderSkipped, run.Check(context.Background()).Action)
}

func TestReminderStartSchedulesHourly(t *testing.T) {
	c := cron.New()
	f := newReminderFixture(t, localTime(10), c)

	run := f.reminder.Start(context.Background(), alice)
	require.NotNil(t, run)
	assert.True(t, run.Armed())
	assert.Len(t, c.Entries(), 1)

	run.Stop()
	assert.Empty(t, c.Entries())
}

func TestReminderAttachLeavesFirstCheckToCaller(t *testing.T) {
	c := cron.New()
	f := newReminderFixture(t, localTime(19), c)

	run := f.reminder.Attach(alice)
	require.NotNil(t, run)
	assert.Len(t, c.Entries(), 1)
	assert.Empty(t, f.dev.shown())
	assert.Empty(t, f.mark())

	assert.Equal(t, ReminderFired, run.Check(context.Background()).Action)
	assert.Len(t, f.dev.shown(), 1)

	run.Stop()
	assert.Empty(t, c.Entries())
	assert.Equal(t, ReminderSkipped, run.Check(context.Background()).Action)
}

func TestReminderStartRequiresUserAndPermission(t *testing.T) {
	f := newReminderFixture(t, localTime(19), nil)
	assert.Nil(t, f.reminder.Start(context.Background(), 0))

	denied := newReminderFixture(t, localTime(19), nil)
	denied.dev.perm = model.PermissionDenied
	denied.reminder.cfg.Tracker.Refresh()
	assert.Nil(t, denied.reminder.Start(context.Background(), alice))
	assert.Empty(t, denied.dev.shown())
}
