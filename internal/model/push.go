package model

import "time"

// Notification categories, matching the preference flags.
const (
	NotifTypeMessages      = "messages"
	NotifTypeBookings      = "bookings"
	NotifTypeEvents        = "events"
	NotifTypeDailyReminder = "daily_reminder"
	NotifTypeReviews       = "reviews"
)

// NotifTypes lists every preference flag in a stable order.
var NotifTypes = []string{
	NotifTypeMessages,
	NotifTypeBookings,
	NotifTypeEvents,
	NotifTypeDailyReminder,
	NotifTypeReviews,
}

type PushSubscription struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	DeviceID  string    `json:"device_id"`
	Endpoint  string    `json:"endpoint"`
	P256dhKey string    `json:"p256dh_key"`
	AuthKey   string    `json:"auth_key"`
	CreatedAt time.Time `json:"created_at"`
}

// NotificationPreferences holds the per-user category switches.
// A user without a stored row gets DefaultPreferences.
type NotificationPreferences struct {
	UserID        int64     `json:"user_id"`
	Messages      bool      `json:"messages"`
	Bookings      bool      `json:"bookings"`
	Events        bool      `json:"events"`
	DailyReminder bool      `json:"daily_reminder"`
	Reviews       bool      `json:"reviews"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// DefaultPreferences returns the all-enabled preference record.
func DefaultPreferences(userID int64) NotificationPreferences {
	return NotificationPreferences{
		UserID:        userID,
		Messages:      true,
		Bookings:      true,
		Events:        true,
		DailyReminder: true,
		Reviews:       true,
	}
}

// Enabled reports the flag for a category. Unknown categories are enabled.
func (p NotificationPreferences) Enabled(notifType string) bool {
	switch notifType {
	case NotifTypeMessages:
		return p.Messages
	case NotifTypeBookings:
		return p.Bookings
	case NotifTypeEvents:
		return p.Events
	case NotifTypeDailyReminder:
		return p.DailyReminder
	case NotifTypeReviews:
		return p.Reviews
	}
	return true
}

// Set updates a single flag. It returns false for an unknown category.
func (p *NotificationPreferences) Set(notifType string, enabled bool) bool {
	switch notifType {
	case NotifTypeMessages:
		p.Messages = enabled
	case NotifTypeBookings:
		p.Bookings = enabled
	case NotifTypeEvents:
		p.Events = enabled
	case NotifTypeDailyReminder:
		p.DailyReminder = enabled
	case NotifTypeReviews:
		p.Reviews = enabled
	default:
		return false
	}
	return true
}
