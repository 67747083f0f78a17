package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", c.Port)
	assert.Equal(t, 18, c.ReminderHour)
	assert.Equal(t, time.Second, c.Debounce)
	assert.Equal(t, 5*time.Minute, c.PresenceFloor)
	assert.Equal(t, 7*24*time.Hour, c.PromptWindow)
	assert.Equal(t, 50, c.PreviewLength)
	assert.False(t, c.Push().Enabled())

	s := c.Session()
	assert.Equal(t, 5*time.Minute, s.Presence.Interval)
	assert.Equal(t, 7*24*time.Hour, s.PromptWindow)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("STRIDE_PORT", "9000")
	t.Setenv("STRIDE_REMINDER_HOUR", "7")
	t.Setenv("STRIDE_PRESENCE_FLOOR", "10m")
	t.Setenv("STRIDE_ALLOWED_ORIGINS", "app.example.com,localhost:*")
	t.Setenv("STRIDE_VAPID_PUBLIC_KEY", "pub")
	t.Setenv("STRIDE_VAPID_PRIVATE_KEY", "priv")

	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", c.Port)
	assert.Equal(t, 7, c.ReminderHour)
	assert.Equal(t, 10*time.Minute, c.PresenceFloor)
	assert.Equal(t, []string{"app.example.com", "localhost:*"}, c.AllowedOrigins)
	assert.True(t, c.Push().Enabled())
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"STRIDE_REMINDER_HOUR":     "24",
		"STRIDE_PREVIEW_LENGTH":    "0",
		"STRIDE_VAPID_PUBLIC_KEY":  "only-one",
		"STRIDE_PRESENCE_DEBOUNCE": "0s",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
