package realtime

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrChannelClosed is reported when the server closes the joined topic.
var ErrChannelClosed = errors.New("channel closed by server")

// Phoenix events.
const (
	eventJoin      = "phx_join"
	eventLeave     = "phx_leave"
	eventReply     = "phx_reply"
	eventClose     = "phx_close"
	eventError     = "phx_error"
	eventHeartbeat = "heartbeat"
	eventChanges   = "postgres_changes"
	topicPhoenix   = "phoenix"
)

// Config configures a Feed.
type Config struct {
	URL               string        // e.g. wss://xyz.supabase.co/realtime/v1/websocket
	APIKey            string        // sent as apikey query parameter and bearer token
	Schema            string        // defaults to "public"
	HeartbeatInterval time.Duration // defaults to 30s
	WriteTimeout      time.Duration // defaults to 10s
	BufferSize        int           // event channel capacity, defaults to 256
}

func (c *Config) applyDefaults() {
	if c.Schema == "" {
		c.Schema = "public"
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.BufferSize == 0 {
		c.BufferSize = 256
	}
}

// Message is one Phoenix channel frame.
type Message struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref,omitempty"`
}

type joinPayload struct {
	Config joinConfig `json:"config"`
}

type joinConfig struct {
	PostgresChanges []changeBinding `json:"postgres_changes"`
}

type changeBinding struct {
	Event  string `json:"event"`
	Schema string `json:"schema"`
	Table  string `json:"table"`
}

type replyPayload struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

type changesPayload struct {
	Data changeData `json:"data"`
}

type changeData struct {
	Type            string         `json:"type"`
	Schema          string         `json:"schema"`
	Table           string         `json:"table"`
	Record          map[string]any `json:"record"`
	OldRecord       map[string]any `json:"old_record"`
	CommitTimestamp string         `json:"commit_timestamp"`
}
