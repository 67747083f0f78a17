// Package config loads runtime settings from STRIDE_* environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/dukerupert/stride/internal/presence"
	"github.com/dukerupert/stride/internal/push"
	"github.com/dukerupert/stride/internal/session"
)

const prefix = "stride"

type Config struct {
	Port      string `envconfig:"PORT" default:"8080"`
	DBPath    string `envconfig:"DB_PATH" default:"stride.db"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	VAPIDPublicKey  string `envconfig:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `envconfig:"VAPID_PRIVATE_KEY"`
	VAPIDSubscriber string `envconfig:"VAPID_SUBSCRIBER" default:"mailto:noreply@stride.app"`

	ReminderHour      int           `envconfig:"REMINDER_HOUR" default:"18"`
	Debounce          time.Duration `envconfig:"PRESENCE_DEBOUNCE" default:"1s"`
	PresenceFloor     time.Duration `envconfig:"PRESENCE_FLOOR" default:"5m"`
	PresenceInterval  time.Duration `envconfig:"PRESENCE_INTERVAL" default:"5m"`
	PromptWindow      time.Duration `envconfig:"PROMPT_WINDOW" default:"168h"`
	PermissionTimeout time.Duration `envconfig:"PERMISSION_TIMEOUT" default:"2m"`
	PreviewLength     int           `envconfig:"PREVIEW_LENGTH" default:"50"`

	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"`
}

// Load reads the environment and validates the result.
func Load() (Config, error) {
	var c Config
	if err := envconfig.Process(prefix, &c); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	if c.ReminderHour < 0 || c.ReminderHour > 23 {
		return fmt.Errorf("reminder hour %d out of range 0-23", c.ReminderHour)
	}
	if c.Debounce <= 0 || c.PresenceFloor <= 0 || c.PresenceInterval <= 0 {
		return fmt.Errorf("presence durations must be positive")
	}
	if c.PreviewLength <= 0 {
		return fmt.Errorf("preview length must be positive")
	}
	if (c.VAPIDPublicKey == "") != (c.VAPIDPrivateKey == "") {
		return fmt.Errorf("both VAPID keys must be set to enable push")
	}
	return nil
}

func (c Config) Push() push.Config {
	return push.Config{
		VAPIDPublicKey:  c.VAPIDPublicKey,
		VAPIDPrivateKey: c.VAPIDPrivateKey,
		Subscriber:      c.VAPIDSubscriber,
	}
}

// Session returns the per-connection runtime settings.
func (c Config) Session() session.Config {
	return session.Config{
		ReminderHour: c.ReminderHour,
		Presence: presence.Config{
			Debounce: c.Debounce,
			Floor:    c.PresenceFloor,
			Interval: c.PresenceInterval,
		},
		PromptWindow:      c.PromptWindow,
		PermissionTimeout: c.PermissionTimeout,
		PreviewLength:     c.PreviewLength,
	}
}
