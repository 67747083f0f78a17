package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/dukerupert/stride/internal/logging"
	"github.com/dukerupert/stride/internal/model"
)

var testLogger = logging.Discard()

// fakeDevice records what reaches the device.
type fakeDevice struct {
	mu          sync.Mutex
	supported   bool
	perm        model.Permission
	answer      model.Permission
	requestErr  error
	workerErr   error
	registerErr error
	hasWorker   bool
	registered  []string
	direct      []model.Notification
	worker      []model.Notification
	prompts     int
}

func newGrantedDevice() *fakeDevice {
	return &fakeDevice{supported: true, perm: model.PermissionGranted, answer: model.PermissionGranted}
}

func (d *fakeDevice) Supported() bool { return d.supported }

func (d *fakeDevice) Permission() model.Permission {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.perm
}

func (d *fakeDevice) RequestPermission(context.Context) (model.Permission, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prompts++
	if d.requestErr != nil {
		return "", d.requestErr
	}
	d.perm = d.answer
	return d.perm, nil
}

func (d *fakeDevice) RegisterWorker(_ context.Context, path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.registered = append(d.registered, path)
	if d.registerErr != nil {
		return d.registerErr
	}
	d.hasWorker = true
	return nil
}

func (d *fakeDevice) Worker() Worker {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.hasWorker {
		return nil
	}
	return fakeWorker{d}
}

func (d *fakeDevice) Display(_ context.Context, n model.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.direct = append(d.direct, n)
	return nil
}

// shown returns every notification, worker deliveries first.
func (d *fakeDevice) shown() []model.Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := append([]model.Notification{}, d.worker...)
	return append(out, d.direct...)
}

type fakeWorker struct{ d *fakeDevice }

func (w fakeWorker) ShowNotification(_ context.Context, n model.Notification) error {
	w.d.mu.Lock()
	defer w.d.mu.Unlock()
	if w.d.workerErr != nil {
		return w.d.workerErr
	}
	w.d.worker = append(w.d.worker, n)
	return nil
}

// memSettings is an in-memory DeviceSettings.
type memSettings struct {
	mu     sync.Mutex
	values map[string]string
	getErr error
}

func newMemSettings() *memSettings {
	return &memSettings{values: make(map[string]string)}
}

func (m *memSettings) Get(deviceID, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", m.getErr
	}
	return m.values[deviceID+"/"+key], nil
}

func (m *memSettings) Set(deviceID, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[deviceID+"/"+key] = value
	return nil
}

func (m *memSettings) value(deviceID, key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[deviceID+"/"+key]
}

// memPrefs disables the listed categories for every user.
type memPrefs struct {
	mu       sync.Mutex
	disabled map[string]bool
}

func (p *memPrefs) IsPreferenceEnabled(_ int64, notifType string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.disabled[notifType], nil
}

func (p *memPrefs) disable(notifType string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disabled == nil {
		p.disabled = make(map[string]bool)
	}
	p.disabled[notifType] = true
}

type memProfiles struct {
	names     map[int64]string
	districts map[int64]string
}

func (p memProfiles) DisplayName(id int64) (string, error) { return p.names[id], nil }
func (p memProfiles) District(id int64) (string, error)    { return p.districts[id], nil }

type memClasses map[int64]*model.Class

func (c memClasses) GetByID(id int64) (*model.Class, error) {
	if cl, ok := c[id]; ok {
		return cl, nil
	}
	return nil, errors.New("class not found")
}

type visibility struct {
	mu         sync.Mutex
	foreground bool
}

func (v *visibility) Foreground() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.foreground
}

func (v *visibility) set(fg bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.foreground = fg
}
