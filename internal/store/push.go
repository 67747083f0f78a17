package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/stride/internal/model"
)

type PushStore struct {
	db *sql.DB
}

func NewPushStore(db *sql.DB) *PushStore {
	return &PushStore{db: db}
}

func (s *PushStore) CreateSubscription(userID int64, deviceID, endpoint, p256dh, auth string) (*model.PushSubscription, error) {
	_, err := s.db.Exec(
		`INSERT INTO push_subscriptions (user_id, device_id, endpoint, p256dh_key, auth_key)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(endpoint) DO UPDATE SET user_id = excluded.user_id, device_id = excluded.device_id,
		   p256dh_key = excluded.p256dh_key, auth_key = excluded.auth_key`,
		userID, deviceID, endpoint, p256dh, auth,
	)
	if err != nil {
		return nil, fmt.Errorf("create push subscription: %w", err)
	}

	// LastInsertId is unreliable on conflict update; re-query by endpoint
	return s.getByEndpoint(endpoint)
}

func (s *PushStore) getByEndpoint(endpoint string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	err := s.db.QueryRow(
		`SELECT id, user_id, device_id, endpoint, p256dh_key, auth_key, created_at
		 FROM push_subscriptions WHERE endpoint = ?`, endpoint,
	).Scan(&sub.ID, &sub.UserID, &sub.DeviceID, &sub.Endpoint, &sub.P256dhKey, &sub.AuthKey, &sub.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get push subscription by endpoint: %w", err)
	}
	return &sub, nil
}

// ListByDevice returns the worker registrations of one user's device.
func (s *PushStore) ListByDevice(userID int64, deviceID string) ([]model.PushSubscription, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, device_id, endpoint, p256dh_key, auth_key, created_at
		 FROM push_subscriptions WHERE user_id = ? AND device_id = ? ORDER BY created_at DESC`,
		userID, deviceID,
	)
	if err != nil {
		return nil, fmt.Errorf("list push subscriptions by device: %w", err)
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

func (s *PushStore) DeleteByEndpoint(endpoint string) error {
	_, err := s.db.Exec(`DELETE FROM push_subscriptions WHERE endpoint = ?`, endpoint)
	if err != nil {
		return fmt.Errorf("delete push subscription by endpoint: %w", err)
	}
	return nil
}

// GetPreferences returns the user's notification preferences, falling back
// to all-enabled defaults when no row has been written yet.
func (s *PushStore) GetPreferences(userID int64) (model.NotificationPreferences, error) {
	var p model.NotificationPreferences
	var messages, bookings, events, daily, reviews int
	err := s.db.QueryRow(
		`SELECT user_id, messages, bookings, events, daily_reminder, reviews, updated_at
		 FROM notification_preferences WHERE user_id = ?`, userID,
	).Scan(&p.UserID, &messages, &bookings, &events, &daily, &reviews, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return model.DefaultPreferences(userID), nil
	}
	if err != nil {
		return model.NotificationPreferences{}, fmt.Errorf("get notification preferences: %w", err)
	}
	p.Messages = messages != 0
	p.Bookings = bookings != 0
	p.Events = events != 0
	p.DailyReminder = daily != 0
	p.Reviews = reviews != 0
	return p, nil
}

// SavePreferences upserts the whole preference row.
func (s *PushStore) SavePreferences(p model.NotificationPreferences) error {
	_, err := s.db.Exec(
		`INSERT INTO notification_preferences (user_id, messages, bookings, events, daily_reminder, reviews)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   messages = excluded.messages,
		   bookings = excluded.bookings,
		   events = excluded.events,
		   daily_reminder = excluded.daily_reminder,
		   reviews = excluded.reviews,
		   updated_at = CURRENT_TIMESTAMP`,
		p.UserID, boolInt(p.Messages), boolInt(p.Bookings), boolInt(p.Events), boolInt(p.DailyReminder), boolInt(p.Reviews),
	)
	if err != nil {
		return fmt.Errorf("save notification preferences: %w", err)
	}
	return nil
}

// TogglePreference flips one flag, creating the row from defaults on first write.
func (s *PushStore) TogglePreference(userID int64, notifType string) (model.NotificationPreferences, error) {
	prefs, err := s.GetPreferences(userID)
	if err != nil {
		return model.NotificationPreferences{}, err
	}
	if !prefs.Set(notifType, !prefs.Enabled(notifType)) {
		return model.NotificationPreferences{}, fmt.Errorf("toggle preference: unknown notification type %q", notifType)
	}
	if err := s.SavePreferences(prefs); err != nil {
		return model.NotificationPreferences{}, err
	}
	return s.GetPreferences(userID)
}

// IsPreferenceEnabled checks if a specific notification type is enabled for a user.
// Returns true by default if no preference record exists.
func (s *PushStore) IsPreferenceEnabled(userID int64, notifType string) (bool, error) {
	prefs, err := s.GetPreferences(userID)
	if err != nil {
		return false, err
	}
	return prefs.Enabled(notifType), nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func scanSubscriptions(rows *sql.Rows) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	for rows.Next() {
		var sub model.PushSubscription
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.DeviceID, &sub.Endpoint, &sub.P256dhKey, &sub.AuthKey, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan push subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}
