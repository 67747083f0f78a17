package model

import "fmt"

// Permission is the device's notification permission.
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// ParsePermission maps a device-reported value onto a Permission.
func ParsePermission(s string) (Permission, error) {
	switch Permission(s) {
	case PermissionDefault, PermissionGranted, PermissionDenied:
		return Permission(s), nil
	}
	return "", fmt.Errorf("unknown permission %q", s)
}

// Notification is what gets shown on a device, either directly or through
// its background worker.
type Notification struct {
	Title string            `json:"title"`
	Body  string            `json:"body,omitempty"`
	Icon  string            `json:"icon,omitempty"`
	Badge string            `json:"badge,omitempty"`
	Tag   string            `json:"tag,omitempty"`
	Data  map[string]string `json:"data,omitempty"`
}

// NotificationOptions are the caller-supplied fields merged over defaults.
// Category labels the notification for metrics and is not sent to devices.
type NotificationOptions struct {
	Category string
	Body     string
	Icon     string
	Badge    string
	Tag      string
	Data     map[string]string
}
