package store

import (
	"database/sql"
	"fmt"
)

// Keys stored per device.
const (
	KeyPromptDismissed  = "notification_prompt_dismissed"
	KeyReminderLastDate = "reminder_last_fired"
)

// DeviceStore is the per-device key/value store that backs state a client
// would otherwise keep in its own local storage.
type DeviceStore struct {
	db *sql.DB
}

func NewDeviceStore(db *sql.DB) *DeviceStore {
	return &DeviceStore{db: db}
}

// Get returns the value for key on the device, or "" if unset.
func (s *DeviceStore) Get(deviceID, key string) (string, error) {
	var value string
	err := s.db.QueryRow(
		`SELECT value FROM device_settings WHERE device_id = ? AND key = ?`, deviceID, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get device setting %q: %w", key, err)
	}
	return value, nil
}

func (s *DeviceStore) Set(deviceID, key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO device_settings (device_id, key, value) VALUES (?, ?, ?)
		 ON CONFLICT(device_id, key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		deviceID, key, value,
	)
	if err != nil {
		return fmt.Errorf("set device setting %q: %w", key, err)
	}
	return nil
}
