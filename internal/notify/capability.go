// Package notify implements the per-device notification pipeline: the
// permission tracker, the local dispatcher, the realtime bridge and the
// daily reminder.
package notify

import (
	"context"
	"errors"

	"github.com/dukerupert/stride/internal/model"
)

// WorkerPath is where devices register their background worker.
const WorkerPath = "/sw.js"

var (
	// ErrUnsupported is returned by a device without notification support.
	ErrUnsupported = errors.New("notifications not supported")
	// ErrNoWorker is returned when no background worker could take a notification.
	ErrNoWorker = errors.New("no active background worker")
)

// Capability is the notification surface of one device.
type Capability interface {
	Supported() bool
	Permission() model.Permission
	// RequestPermission prompts the user. A device that has already decided
	// answers immediately with the stored decision.
	RequestPermission(ctx context.Context) (model.Permission, error)
	RegisterWorker(ctx context.Context, path string) error
	// Worker returns the device's active background worker, or nil.
	Worker() Worker
	// Display shows a notification directly on the page.
	Display(ctx context.Context, n model.Notification) error
}

// Worker shows notifications while the page is not focused.
type Worker interface {
	ShowNotification(ctx context.Context, n model.Notification) error
}

// Unsupported is the capability of a device lacking notifications or a
// background worker. Everything is a no-op.
type Unsupported struct{}

func (Unsupported) Supported() bool              { return false }
func (Unsupported) Permission() model.Permission { return model.PermissionDefault }
func (Unsupported) Worker() Worker               { return nil }

func (Unsupported) RequestPermission(context.Context) (model.Permission, error) {
	return model.PermissionDefault, ErrUnsupported
}

func (Unsupported) RegisterWorker(context.Context, string) error {
	return ErrUnsupported
}

func (Unsupported) Display(context.Context, model.Notification) error {
	return ErrUnsupported
}
