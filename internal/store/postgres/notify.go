package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MAKaminski/alpha-kite/internal/model"
	"github.com/MAKaminski/alpha-kite/internal/store"
)

const channelPrefix = "alphakite_"

// feedBuffer is the per-feed channel capacity.
const feedBuffer = 256

// ChannelName returns the NOTIFY channel for table.
func ChannelName(table string) string {
	return channelPrefix + table
}

// NotifyTriggerSQL returns DDL that installs a row trigger on table
// publishing every change to ChannelName(table). NOTIFY payloads are
// limited to 8000 bytes, so very wide rows should not be subscribed to.
func NotifyTriggerSQL(table string) string {
	fn := ident(channelPrefix + "notify")
	trg := ident(channelPrefix + table + "_changes")
	return fmt.Sprintf(`
CREATE OR REPLACE FUNCTION %[1]s() RETURNS trigger AS $$
BEGIN
  PERFORM pg_notify(
    '%[4]s' || TG_TABLE_NAME,
    json_build_object(
      'table', TG_TABLE_NAME,
      'type', TG_OP,
      'new', CASE WHEN TG_OP = 'DELETE' THEN NULL ELSE to_jsonb(NEW) END,
      'old', CASE WHEN TG_OP = 'INSERT' THEN NULL ELSE to_jsonb(OLD) END,
      'commit_time', now()
    )::text
  );
  RETURN NULL;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS %[2]s ON %[3]s;
CREATE TRIGGER %[2]s
  AFTER INSERT OR UPDATE OR DELETE ON %[3]s
  FOR EACH ROW EXECUTE FUNCTION %[1]s();
`, fn, trg, ident(table), channelPrefix)
}

// InstallNotifyTrigger executes NotifyTriggerSQL for table.
func (b *Backend) InstallNotifyTrigger(ctx context.Context, table string) error {
	if _, err := b.pool.Exec(ctx, NotifyTriggerSQL(table)); err != nil {
		return fmt.Errorf("install notify trigger on %s: %w", table, err)
	}
	return nil
}

// Listen implements store.Backend. The feed holds one pooled connection
// until closed.
func (b *Backend) Listen(ctx context.Context, table string) (store.Feed, error) {
	conn, err := b.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen connection: %w", err)
	}

	channel := ChannelName(table)
	if _, err := conn.Exec(ctx, "LISTEN "+ident(channel)); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen %s: %w", channel, err)
	}

	feedCtx, cancel := context.WithCancel(context.Background())
	f := &feed{
		conn:    conn,
		table:   table,
		channel: channel,
		events:  make(chan model.ChangeEvent, feedBuffer),
		cancel:  cancel,
		done:    make(chan struct{}),
		logger:  b.logger.With("table", table),
	}
	go f.run(feedCtx)

	b.logger.Info("listening for changes", "table", table, "channel", channel)
	return f, nil
}

type feed struct {
	conn    *pgxpool.Conn
	table   string
	channel string
	events  chan model.ChangeEvent
	cancel  context.CancelFunc
	done    chan struct{}
	logger  *slog.Logger

	mu  sync.Mutex
	err error
}

func (f *feed) Events() <-chan model.ChangeEvent { return f.events }

func (f *feed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *feed) Close() error {
	f.cancel()
	<-f.done
	return nil
}

func (f *feed) run(ctx context.Context) {
	defer close(f.done)
	defer close(f.events)
	defer f.release()

	for {
		n, err := f.conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() == nil {
				f.mu.Lock()
				f.err = err
				f.mu.Unlock()
				f.logger.Warn("change feed ended", "error", err)
			}
			return
		}

		ev, err := decodeNotification(f.table, []byte(n.Payload))
		if err != nil {
			f.logger.Warn("dropping malformed notification", "error", err)
			continue
		}

		select {
		case f.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func (f *feed) release() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := f.conn.Exec(ctx, "UNLISTEN "+ident(f.channel)); err != nil {
		// Connection state is unknown; drop it from the pool.
		f.conn.Conn().Close(ctx)
	}
	f.conn.Release()
}

type notification struct {
	Table      string         `json:"table"`
	Type       string         `json:"type"`
	New        map[string]any `json:"new"`
	Old        map[string]any `json:"old"`
	CommitTime time.Time      `json:"commit_time"`
}

func decodeNotification(table string, payload []byte) (model.ChangeEvent, error) {
	var n notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return model.ChangeEvent{}, fmt.Errorf("decode payload: %w", err)
	}

	ev := model.ChangeEvent{
		Table:      n.Table,
		Type:       model.ChangeType(n.Type),
		New:        model.Record(n.New),
		Old:        model.Record(n.Old),
		CommitTime: n.CommitTime,
	}
	if ev.Table == "" {
		ev.Table = table
	}
	switch ev.Type {
	case model.ChangeInsert, model.ChangeUpdate, model.ChangeDelete:
	default:
		return model.ChangeEvent{}, errors.New("unknown change type " + n.Type)
	}
	return ev, nil
}
