package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MAKaminski/alpha-kite/internal/model"
)

// Feed is a websocket change feed for one table. It satisfies store.Feed.
type Feed struct {
	cfg    Config
	table  string
	topic  string
	logger *slog.Logger

	conn     *websocket.Conn
	connOnce sync.Once
	connErr  error
	ref      atomic.Int64

	events chan model.ChangeEvent
	joined chan error
	done   chan struct{}
	loop   chan struct{}

	// Write serialization
	writeMu sync.Mutex

	mu     sync.Mutex
	err    error
	closed bool
}

// Dial connects to the realtime endpoint and joins table's change topic.
// It returns once the server acknowledges the join.
func Dial(ctx context.Context, cfg Config, table string, logger *slog.Logger) (*Feed, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse realtime url: %w", err)
	}
	q := u.Query()
	if cfg.APIKey != "" {
		q.Set("apikey", cfg.APIKey)
	}
	q.Set("vsn", "1.0.0")
	u.RawQuery = q.Encode()

	header := http.Header{}
	if cfg.APIKey != "" {
		header.Set("Authorization", "Bearer "+cfg.APIKey)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("dial realtime: %w", err)
	}

	f := &Feed{
		cfg:    cfg,
		table:  table,
		topic:  fmt.Sprintf("realtime:%s:%s", cfg.Schema, table),
		logger: logger.With("table", table),
		conn:   conn,
		events: make(chan model.ChangeEvent, cfg.BufferSize),
		joined: make(chan error, 1),
		done:   make(chan struct{}),
		loop:   make(chan struct{}),
	}

	go f.readLoop()

	joinRef, err := f.send(f.topic, eventJoin, joinPayload{Config: joinConfig{
		PostgresChanges: []changeBinding{{Event: "*", Schema: cfg.Schema, Table: table}},
	}})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("join %s: %w", f.topic, err)
	}
	f.logger.Debug("joining realtime topic", "topic", f.topic, "ref", joinRef)

	select {
	case err := <-f.joined:
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("join %s: %w", f.topic, err)
		}
	case <-f.loop:
		err := f.Err()
		f.Close()
		return nil, fmt.Errorf("join %s: %w", f.topic, err)
	case <-ctx.Done():
		f.Close()
		return nil, ctx.Err()
	}

	go f.heartbeatLoop()
	f.logger.Info("realtime feed joined", "topic", f.topic)
	return f, nil
}

// Events implements store.Feed.
func (f *Feed) Events() <-chan model.ChangeEvent {
	return f.events
}

// Err implements store.Feed.
func (f *Feed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Close leaves the topic and closes the connection. It waits for the read
// loop to exit, after which Events is closed.
func (f *Feed) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		<-f.loop
		return nil
	}
	f.closed = true
	f.mu.Unlock()

	close(f.done)

	// Best effort; the server drops the channel when the socket closes anyway.
	f.send(f.topic, eventLeave, struct{}{})

	f.writeMu.Lock()
	f.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	f.writeMu.Unlock()
	err := f.closeConn()

	<-f.loop
	return err
}

func (f *Feed) closeConn() error {
	f.connOnce.Do(func() { f.connErr = f.conn.Close() })
	return f.connErr
}

func (f *Feed) isClosing() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

func (f *Feed) fail(err error) {
	f.mu.Lock()
	if f.err == nil {
		f.err = err
	}
	f.mu.Unlock()
}

// send writes one frame and returns its ref.
func (f *Feed) send(topic, event string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	ref := strconv.FormatInt(f.ref.Add(1), 10)
	data, err := json.Marshal(Message{Topic: topic, Event: event, Payload: body, Ref: ref})
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	f.conn.SetWriteDeadline(time.Now().Add(f.cfg.WriteTimeout))
	if err := f.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return "", err
	}
	return ref, nil
}

// readLoop is the only sender on events and closes it on exit. The socket
// is closed with it, so a feed the server ended holds no connection.
func (f *Feed) readLoop() {
	defer close(f.loop)
	defer close(f.events)
	defer f.closeConn()

	joinPending := true
	for {
		_, data, err := f.conn.ReadMessage()
		if err != nil {
			if !f.isClosing() {
				f.fail(err)
				f.logger.Warn("realtime feed read failed", "error", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			f.logger.Warn("dropping malformed frame", "error", err)
			continue
		}
		if msg.Topic != f.topic {
			continue
		}

		switch msg.Event {
		case eventReply:
			if !joinPending {
				continue
			}
			joinPending = false
			var reply replyPayload
			json.Unmarshal(msg.Payload, &reply)
			if reply.Status != "ok" {
				err := fmt.Errorf("join rejected: %s %s", reply.Status, string(reply.Response))
				f.fail(err)
				f.joined <- err
				return
			}
			f.joined <- nil

		case eventChanges:
			ev, err := decodeChange(f.table, msg.Payload)
			if err != nil {
				f.logger.Warn("dropping malformed change", "error", err)
				continue
			}
			select {
			case f.events <- ev:
			case <-f.done:
				return
			}

		case eventClose, eventError:
			if !f.isClosing() {
				f.fail(ErrChannelClosed)
				f.logger.Warn("realtime channel ended by server", "event", msg.Event)
			}
			return
		}
	}
}

// heartbeatLoop keeps the socket alive.
func (f *Feed) heartbeatLoop() {
	ticker := time.NewTicker(f.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.done:
			return
		case <-f.loop:
			return
		case <-ticker.C:
			if _, err := f.send(topicPhoenix, eventHeartbeat, struct{}{}); err != nil {
				f.logger.Debug("failed to send heartbeat", "error", err)
			}
		}
	}
}

func decodeChange(table string, payload json.RawMessage) (model.ChangeEvent, error) {
	var p changesPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return model.ChangeEvent{}, err
	}

	ev := model.ChangeEvent{
		Table: p.Data.Table,
		Type:  model.ChangeType(p.Data.Type),
		New:   model.Record(p.Data.Record),
		Old:   model.Record(p.Data.OldRecord),
	}
	if ev.Table == "" {
		ev.Table = table
	}
	if ts, ok := model.ParseTime(p.Data.CommitTimestamp); ok {
		ev.CommitTime = ts
	}
	switch ev.Type {
	case model.ChangeInsert, model.ChangeUpdate, model.ChangeDelete:
		return ev, nil
	}
	return model.ChangeEvent{}, fmt.Errorf("unknown change type %q", p.Data.Type)
}
