package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/MAKaminski/alpha-kite/internal/metrics"
	"github.com/MAKaminski/alpha-kite/internal/model"
	"github.com/MAKaminski/alpha-kite/internal/store"
)

// DefaultQueueSize is the per-handle queue capacity.
const DefaultQueueSize = 256

var (
	// ErrAlreadyUnsubscribed is returned by a second Unsubscribe of one handle.
	ErrAlreadyUnsubscribed = errors.New("subscription: handle already unsubscribed")
	// ErrManagerClosed is returned by Subscribe after Close.
	ErrManagerClosed = errors.New("subscription: manager closed")
	// ErrNilListener is returned by Subscribe without a listener.
	ErrNilListener = errors.New("subscription: nil listener")
)

// Listener receives one change event per call.
type Listener func(model.ChangeEvent)

// Source opens change feeds. *store.Facade satisfies it.
type Source interface {
	Listen(ctx context.Context, table string) (store.Feed, error)
}

// State is a handle's lifecycle state.
type State int32

const (
	StateOpen State = iota
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Config holds manager settings.
type Config struct {
	QueueSize int
}

// Manager owns table feeds and the handles attached to them.
type Manager struct {
	source  Source
	cfg     Config
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu     sync.Mutex
	tables map[string]*tableFeed
	live   map[*Handle]struct{}
	closed bool
}

// tableFeed is one open store feed and the handles it serves.
type tableFeed struct {
	table   string
	feed    store.Feed
	handles map[*Handle]struct{} // guarded by Manager.mu
	done    chan struct{}        // closed when the pump exits
}

// NewManager creates a Manager reading feeds from source.
func NewManager(source Source, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	return &Manager{
		source:  source,
		cfg:     cfg,
		metrics: m,
		logger:  logger,
		tables:  make(map[string]*tableFeed),
		live:    make(map[*Handle]struct{}),
	}
}

// Subscribe registers listener for changes on table. The returned handle
// is OPEN and must be released with Unsubscribe.
func (m *Manager) Subscribe(ctx context.Context, table string, listener Listener) (*Handle, error) {
	if listener == nil {
		return nil, ErrNilListener
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrManagerClosed
	}

	tf := m.tables[table]
	if tf == nil {
		feed, err := m.source.Listen(ctx, table)
		if err != nil {
			return nil, err
		}
		tf = &tableFeed{
			table:   table,
			feed:    feed,
			handles: make(map[*Handle]struct{}),
			done:    make(chan struct{}),
		}
		m.tables[table] = tf
		go m.pump(tf)
		m.logger.Info("table feed opened", "table", table)
	}

	h := &Handle{
		id:       uuid.NewString(),
		table:    table,
		listener: listener,
		queue:    NewQueue[model.ChangeEvent](m.cfg.QueueSize),
		tf:       tf,
		manager:  m,
		done:     make(chan struct{}),
	}
	tf.handles[h] = struct{}{}
	m.live[h] = struct{}{}
	go h.dispatch()

	m.metrics.SubscriptionOpened(table)
	m.logger.Debug("subscribed", "table", table, "handle", h.id)
	return h, nil
}

// Unsubscribe moves h to CLOSED. No listener invocation for h happens after
// Unsubscribe returns. The table feed closes with its last handle.
func (m *Manager) Unsubscribe(h *Handle) error {
	if h == nil || h.manager != m {
		return errors.New("subscription: handle not owned by this manager")
	}
	if !h.released.CompareAndSwap(false, true) {
		return ErrAlreadyUnsubscribed
	}

	h.state.Store(int32(StateClosed))
	if n := h.queue.Discard(); n > 0 {
		for range n {
			m.metrics.EventDiscarded(h.table)
		}
	}
	<-h.done

	var last *tableFeed
	m.mu.Lock()
	delete(m.live, h)
	tf := h.tf
	delete(tf.handles, h)
	if len(tf.handles) == 0 && m.tables[tf.table] == tf {
		delete(m.tables, tf.table)
		last = tf
	}
	m.mu.Unlock()

	if last != nil {
		if err := last.feed.Close(); err != nil {
			m.logger.Warn("close table feed", "table", last.table, "error", err)
		}
		<-last.done
		m.logger.Info("table feed closed", "table", last.table)
	}

	m.metrics.SubscriptionClosed(h.table)
	m.logger.Debug("unsubscribed", "table", h.table, "handle", h.id)
	return nil
}

// Len returns the number of handles not yet unsubscribed.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// Close rejects further subscriptions and releases every handle the caller
// leaked. Each leaked handle is logged.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	leaked := make([]*Handle, 0, len(m.live))
	for h := range m.live {
		leaked = append(leaked, h)
	}
	m.mu.Unlock()

	for _, h := range leaked {
		m.logger.Warn("subscription leaked; closing", "table", h.table, "handle", h.id)
		if err := m.Unsubscribe(h); err != nil && !errors.Is(err, ErrAlreadyUnsubscribed) {
			return err
		}
	}
	return nil
}

// pump copies feed events into every attached handle's queue in arrival
// order. When the feed ends it releases the feed's connection and closes the
// queues of the remaining handles.
func (m *Manager) pump(tf *tableFeed) {
	defer close(tf.done)

	for ev := range tf.feed.Events() {
		for _, h := range m.snapshot(tf) {
			if !h.queue.Send(ev) {
				m.metrics.EventDiscarded(tf.table)
			}
		}
	}

	err := tf.feed.Err()
	if cerr := tf.feed.Close(); cerr != nil {
		m.logger.Debug("closing ended table feed", "table", tf.table, "error", cerr)
	}

	m.mu.Lock()
	if m.tables[tf.table] == tf {
		delete(m.tables, tf.table)
	}
	m.mu.Unlock()

	handles := m.snapshot(tf)
	if err != nil {
		m.logger.Warn("table feed terminated", "table", tf.table, "handles", len(handles), "error", err)
	}
	for _, h := range handles {
		h.terminate(err)
	}
}

func (m *Manager) snapshot(tf *tableFeed) []*Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Handle, 0, len(tf.handles))
	for h := range tf.handles {
		out = append(out, h)
	}
	return out
}

// Handle is one registered listener on one table.
type Handle struct {
	id       string
	table    string
	listener Listener
	queue    *Queue[model.ChangeEvent]
	tf       *tableFeed
	manager  *Manager

	state    atomic.Int32
	released atomic.Bool
	done     chan struct{}

	mu  sync.Mutex
	err error
}

// ID returns the handle's unique id.
func (h *Handle) ID() string { return h.id }

// Table returns the subscribed table.
func (h *Handle) Table() string { return h.table }

// State returns the current lifecycle state.
func (h *Handle) State() State { return State(h.state.Load()) }

// Done is closed once the handle's dispatcher has stopped.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the reason the store ended the feed, if it did.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *Handle) terminate(err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
	h.queue.Close()
}

// dispatch invokes the listener for each queued event until the queue closes.
func (h *Handle) dispatch() {
	defer close(h.done)
	defer h.state.Store(int32(StateClosed))

	for {
		ev, ok := h.queue.Receive()
		if !ok {
			return
		}
		if h.released.Load() {
			continue
		}
		h.invoke(ev)
	}
}

func (h *Handle) invoke(ev model.ChangeEvent) {
	defer func() {
		if r := recover(); r != nil {
			h.manager.logger.Error("listener panicked", "table", h.table, "handle", h.id, "panic", r)
		}
	}()
	h.listener(ev)
	h.manager.metrics.EventDelivered(h.table)
}
