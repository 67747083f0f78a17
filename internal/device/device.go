// Package device implements the notification capability of a device
// connected over a websocket, with web push as its background worker.
package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukerupert/stride/internal/model"
	"github.com/dukerupert/stride/internal/notify"
	"github.com/dukerupert/stride/internal/push"
)

// Frame types sent to the device.
const (
	FrameRequestPermission = "request_permission"
	FrameRegisterWorker    = "register_worker"
	FrameNotification      = "notification"
)

// Sender writes a frame to the device's connection.
type Sender interface {
	Send(v any) error
}

// Pusher delivers a payload to one push subscription.
type Pusher interface {
	Send(sub *model.PushSubscription, payload push.Payload) error
	VAPIDPublicKey() string
}

// Subscriptions lists and prunes a device's push subscriptions.
type Subscriptions interface {
	ListByDevice(userID int64, deviceID string) ([]model.PushSubscription, error)
	DeleteByEndpoint(endpoint string) error
}

// Hello is what the device reports about itself on connect.
type Hello struct {
	Notifications bool             `json:"notifications"`
	Worker        bool             `json:"worker"`
	Permission    model.Permission `json:"permission"`
}

type requestPermissionFrame struct {
	Type string `json:"type"`
}

type registerWorkerFrame struct {
	Type     string `json:"type"`
	Path     string `json:"path"`
	VAPIDKey string `json:"vapid_key"`
}

type notificationFrame struct {
	Type         string             `json:"type"`
	Notification model.Notification `json:"notification"`
}

// Device is a notify.Capability backed by a live connection. Permission
// prompts and worker registration are frames to the page, answered by
// frames the session feeds back through SetPermission and
// SubscriptionSaved.
type Device struct {
	id     string
	sender Sender
	pusher Pusher
	subs   Subscriptions
	logger *slog.Logger

	mu            sync.Mutex
	userID        int64
	hello         Hello
	workerReady   bool
	permWaiters   []chan model.Permission
	workerWaiters []chan struct{}
}

// New creates the capability for deviceID. A nil pusher leaves the device
// without a background worker.
func New(id string, sender Sender, pusher Pusher, subs Subscriptions, hello Hello, logger *slog.Logger) *Device {
	if hello.Permission == "" {
		hello.Permission = model.PermissionDefault
	}
	return &Device{
		id:     id,
		sender: sender,
		pusher: pusher,
		subs:   subs,
		hello:  hello,
		logger: logger,
	}
}

// ID returns the device identifier.
func (d *Device) ID() string {
	return d.id
}

// SetUser switches the signed-in user and reloads whether that user already
// has a push subscription on this device.
func (d *Device) SetUser(userID int64) {
	ready := false
	if userID != 0 && d.workerCapable() {
		subs, err := d.subs.ListByDevice(userID, d.id)
		if err != nil {
			d.logger.Warn("list push subscriptions", "error", err, "user_id", userID)
		}
		ready = len(subs) > 0
	}

	d.mu.Lock()
	d.userID = userID
	d.workerReady = ready
	d.mu.Unlock()
}

func (d *Device) workerCapable() bool {
	return d.pusher != nil && d.hello.Worker
}

// Supported reports whether the device can both display notifications and
// run a background worker.
func (d *Device) Supported() bool {
	return d.hello.Notifications && d.hello.Worker
}

func (d *Device) Permission() model.Permission {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hello.Permission
}

// SetPermission records a permission reported by the device and answers any
// pending RequestPermission.
func (d *Device) SetPermission(p model.Permission) {
	d.mu.Lock()
	d.hello.Permission = p
	waiters := d.permWaiters
	d.permWaiters = nil
	d.mu.Unlock()

	for _, w := range waiters {
		w <- p
	}
}

// RequestPermission asks the page to prompt the user and waits for the
// answer or ctx.
func (d *Device) RequestPermission(ctx context.Context) (model.Permission, error) {
	if !d.Supported() {
		return model.PermissionDefault, notify.ErrUnsupported
	}

	d.mu.Lock()
	if p := d.hello.Permission; p != model.PermissionDefault {
		d.mu.Unlock()
		return p, nil
	}
	ch := make(chan model.Permission, 1)
	d.permWaiters = append(d.permWaiters, ch)
	d.mu.Unlock()

	if err := d.sender.Send(requestPermissionFrame{Type: FrameRequestPermission}); err != nil {
		d.dropPermWaiter(ch)
		return model.PermissionDefault, fmt.Errorf("send permission request: %w", err)
	}

	select {
	case p := <-ch:
		return p, nil
	case <-ctx.Done():
		d.dropPermWaiter(ch)
		return model.PermissionDefault, ctx.Err()
	}
}

func (d *Device) dropPermWaiter(ch chan model.Permission) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, w := range d.permWaiters {
		if w == ch {
			d.permWaiters = append(d.permWaiters[:i], d.permWaiters[i+1:]...)
			return
		}
	}
}

// RegisterWorker asks the page to register its worker at path and subscribe
// to push, then waits until the subscription has been saved.
func (d *Device) RegisterWorker(ctx context.Context, path string) error {
	if !d.workerCapable() {
		return notify.ErrNoWorker
	}

	ch := make(chan struct{}, 1)
	d.mu.Lock()
	d.workerWaiters = append(d.workerWaiters, ch)
	d.mu.Unlock()

	frame := registerWorkerFrame{Type: FrameRegisterWorker, Path: path, VAPIDKey: d.pusher.VAPIDPublicKey()}
	if err := d.sender.Send(frame); err != nil {
		d.dropWorkerWaiter(ch)
		return fmt.Errorf("send worker registration: %w", err)
	}

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		d.dropWorkerWaiter(ch)
		return ctx.Err()
	}
}

func (d *Device) dropWorkerWaiter(ch chan struct{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, w := range d.workerWaiters {
		if w == ch {
			d.workerWaiters = append(d.workerWaiters[:i], d.workerWaiters[i+1:]...)
			return
		}
	}
}

// SubscriptionSaved marks the worker active once the device's push
// subscription has been stored.
func (d *Device) SubscriptionSaved() {
	d.mu.Lock()
	d.workerReady = true
	waiters := d.workerWaiters
	d.workerWaiters = nil
	d.mu.Unlock()

	for _, w := range waiters {
		w <- struct{}{}
	}
}

// Worker returns the push worker once a subscription exists for the
// signed-in user, or nil.
func (d *Device) Worker() notify.Worker {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.workerCapable() || !d.workerReady || d.userID == 0 {
		return nil
	}
	return &pushWorker{d: d, userID: d.userID}
}

// Display sends the notification to the page.
func (d *Device) Display(_ context.Context, n model.Notification) error {
	if !d.Supported() {
		return notify.ErrUnsupported
	}
	return d.sender.Send(notificationFrame{Type: FrameNotification, Notification: n})
}

// pushWorker delivers through every push subscription the user holds on
// this device, pruning the expired ones.
type pushWorker struct {
	d      *Device
	userID int64
}

func (w *pushWorker) ShowNotification(ctx context.Context, n model.Notification) error {
	d := w.d
	subs, err := d.subs.ListByDevice(w.userID, d.id)
	if err != nil {
		return fmt.Errorf("list push subscriptions: %w", err)
	}
	if len(subs) == 0 {
		d.mu.Lock()
		d.workerReady = false
		d.mu.Unlock()
		return notify.ErrNoWorker
	}

	payload := push.PayloadFor(n)
	delivered := 0
	var errs []error
	for i := range subs {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := d.pusher.Send(&subs[i], payload)
		switch {
		case err == nil:
			delivered++
		case errors.Is(err, push.ErrExpired):
			if err := d.subs.DeleteByEndpoint(subs[i].Endpoint); err != nil {
				d.logger.Warn("delete expired subscription", "error", err)
			}
		default:
			errs = append(errs, err)
		}
	}

	if delivered > 0 {
		return nil
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	d.mu.Lock()
	d.workerReady = false
	d.mu.Unlock()
	return notify.ErrNoWorker
}
