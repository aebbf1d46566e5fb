// Package feed implements the in-process change feed: repositories publish
// row-change events per table and subscribers receive them in publish order,
// optionally filtered by a column equality.
package feed

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
)

// Event is one row change. Keys holds the filterable column values for the
// row; Row carries the typed record itself.
type Event struct {
	Table string
	Op    Op
	Keys  map[string]string
	Row   any
}

type Handler func(Event)

// Filter restricts a subscription to rows whose column equals the value.
// The zero Filter matches every row of the table.
type Filter struct {
	Column string
	Value  string
}

func (f Filter) matches(e Event) bool {
	if f.Column == "" {
		return true
	}
	return e.Keys[f.Column] == f.Value
}

const subscriptionQueueSize = 64

// Subscription is a handle to one table subscription. Events for a single
// subscription are delivered in order by a dedicated pump goroutine.
// Unsubscribe is the only cancellation primitive: after it returns no
// further handler invocations are started, so late events published during
// teardown are discarded rather than delivered to dead components.
type Subscription struct {
	bus    *Bus
	table  string
	id     uint64
	filter Filter
	fn     Handler
	queue  chan Event
	done   chan struct{}
	closed atomic.Bool
	once   sync.Once
}

func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.closed.Store(true)
		s.bus.remove(s.table, s.id)
		close(s.done)
	})
}

func (s *Subscription) pump() {
	for {
		select {
		case <-s.done:
			return
		case event := <-s.queue:
			if s.closed.Load() {
				continue
			}
			s.fn(event)
		}
	}
}

// Bus fans row-change events out to table subscribers. Delivery order is
// guaranteed within one subscription only; independent subscriptions (for
// example a room's document feed and its signaling feed) are independent
// streams with no relative ordering.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string]map[uint64]*Subscription
	log    *slog.Logger
}

func NewBus(log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{
		subs: make(map[string]map[uint64]*Subscription),
		log:  log,
	}
}

func (b *Bus) Subscribe(table string, filter Filter, fn Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		bus:    b,
		table:  table,
		id:     b.nextID,
		filter: filter,
		fn:     fn,
		queue:  make(chan Event, subscriptionQueueSize),
		done:   make(chan struct{}),
	}
	if b.subs[table] == nil {
		b.subs[table] = make(map[uint64]*Subscription)
	}
	b.subs[table][sub.id] = sub

	go sub.pump()
	return sub
}

// Publish enqueues the event to every matching subscriber without blocking.
// A subscriber that cannot keep up loses events.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	subs := make([]*Subscription, 0, len(b.subs[event.Table]))
	for _, sub := range b.subs[event.Table] {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		if sub.closed.Load() || !sub.filter.matches(event) {
			continue
		}
		select {
		case <-sub.done:
		case sub.queue <- event:
		default:
			b.log.Debug("dropping feed event",
				slog.String("table", event.Table),
				slog.String("op", string(event.Op)))
		}
	}
}

func (b *Bus) remove(table string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subs, ok := b.subs[table]; ok {
		delete(subs, id)
		if len(subs) == 0 {
			delete(b.subs, table)
		}
	}
}
