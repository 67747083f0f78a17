package realtime

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/asaskevich/EventBus"
	"github.com/dukerupert/stride/internal/metrics"
	"github.com/dukerupert/stride/internal/model"
)

// Watched tables.
const (
	TableMessages = "messages"
	TableBookings = "bookings"
	TableEvents   = "events"
)

// Change kinds.
const (
	KindInsert = "INSERT"
)

const channelBufferSize = 64

// ErrClosed is returned when subscribing to a closed feed.
var ErrClosed = errors.New("realtime feed closed")

// Change is a row-level change delivered to channels.
type Change struct {
	Table   string
	Kind    string
	Record  any
	Columns map[string]any
}

// MessageInserted builds the change for a new message row.
func MessageInserted(m *model.Message) Change {
	return Change{
		Table:  TableMessages,
		Kind:   KindInsert,
		Record: m,
		Columns: map[string]any{
			"id":           m.ID,
			"sender_id":    m.SenderID,
			"recipient_id": m.RecipientID,
		},
	}
}

// BookingInserted builds the change for a new booking row.
func BookingInserted(b *model.Booking) Change {
	return Change{
		Table:  TableBookings,
		Kind:   KindInsert,
		Record: b,
		Columns: map[string]any{
			"id":       b.ID,
			"class_id": b.ClassID,
			"user_id":  b.UserID,
		},
	}
}

// EventInserted builds the change for a new event row.
func EventInserted(e *model.Event) Change {
	return Change{
		Table:  TableEvents,
		Kind:   KindInsert,
		Record: e,
		Columns: map[string]any{
			"id":         e.ID,
			"creator_id": e.CreatorID,
			"district":   e.District,
		},
	}
}

// Filter restricts a channel to rows whose column equals a value.
type Filter struct {
	Column string
	Value  any
}

// Eq is shorthand for an equality filter.
func Eq(column string, value any) *Filter {
	return &Filter{Column: column, Value: value}
}

func (f *Filter) matches(ch Change) bool {
	if f == nil {
		return true
	}
	v, ok := ch.Columns[f.Column]
	return ok && v == f.Value
}

// Feed fans out table changes to subscribed channels. Each table is an
// EventBus topic with a transactional async handler, so changes to one table
// are dispatched in publish order while tables proceed independently.
type Feed struct {
	mu       sync.RWMutex
	bus      EventBus.Bus
	topics   map[string]bool
	channels map[string]map[*Channel]struct{}
	closed   bool
	logger   *slog.Logger
}

// NewFeed creates an empty feed.
func NewFeed(logger *slog.Logger) *Feed {
	return &Feed{
		bus:      EventBus.New(),
		topics:   make(map[string]bool),
		channels: make(map[string]map[*Channel]struct{}),
		logger:   logger,
	}
}

// Subscribe opens a channel on table. A nil filter receives every row.
// The handler runs on the channel's own goroutine, in delivery order.
func (f *Feed) Subscribe(table string, filter *Filter, handler func(Change)) (*Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, ErrClosed
	}
	if !f.topics[table] {
		if err := f.bus.SubscribeAsync(table, f.dispatch, true); err != nil {
			return nil, err
		}
		f.topics[table] = true
	}

	c := &Channel{
		feed:    f,
		table:   table,
		filter:  filter,
		handler: handler,
		queue:   make(chan Change, channelBufferSize),
		done:    make(chan struct{}),
	}
	if f.channels[table] == nil {
		f.channels[table] = make(map[*Channel]struct{})
	}
	f.channels[table][c] = struct{}{}
	metrics.RealtimeChannels.WithLabelValues(table).Set(float64(len(f.channels[table])))

	go c.run()
	return c, nil
}

// Publish announces a change. It waits while an earlier change to the same
// table is still being handed to its channels.
func (f *Feed) Publish(ch Change) {
	f.mu.RLock()
	closed := f.closed
	f.mu.RUnlock()
	if closed {
		return
	}
	f.bus.Publish(ch.Table, ch)
}

// dispatch hands ch to every matching channel, waiting on a full queue
// rather than dropping. The lock is released first so a channel can close
// while a send is waiting on it.
func (f *Feed) dispatch(ch Change) {
	f.mu.RLock()
	var targets []*Channel
	for c := range f.channels[ch.Table] {
		if c.filter.matches(ch) {
			targets = append(targets, c)
		}
	}
	f.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.queue <- ch:
		case <-c.done:
		}
	}
}

// LiveChannels returns the number of open channels on table.
func (f *Feed) LiveChannels(table string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.channels[table])
}

// Close waits for in-flight dispatches and closes every channel.
func (f *Feed) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.mu.Unlock()

	f.bus.WaitAsync()

	f.mu.Lock()
	var open []*Channel
	for _, set := range f.channels {
		for c := range set {
			open = append(open, c)
		}
	}
	f.mu.Unlock()

	for _, c := range open {
		c.Close()
	}
}

func (f *Feed) remove(c *Channel) {
	f.mu.Lock()
	defer f.mu.Unlock()

	set := f.channels[c.table]
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	metrics.RealtimeChannels.WithLabelValues(c.table).Set(float64(len(set)))
}

// Channel is one subscription to a table. It is the handle returned by
// Subscribe and must be closed by its owner.
type Channel struct {
	feed      *Feed
	table     string
	filter    *Filter
	handler   func(Change)
	queue     chan Change
	done      chan struct{}
	closeOnce sync.Once
}

// Table returns the subscribed table.
func (c *Channel) Table() string {
	return c.table
}

// Close unsubscribes the channel. Changes still queued are discarded.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.feed.remove(c)
	})
}

func (c *Channel) run() {
	for {
		select {
		case <-c.done:
			return
		case ch := <-c.queue:
			select {
			case <-c.done:
				return
			default:
			}
			c.handler(ch)
		}
	}
}
