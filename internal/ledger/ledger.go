// Package ledger records the files a receiver has stored, so operators can
// audit transfers across restarts.
package ledger

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Entry describes one file written by a receiving session.
type Entry struct {
	Session  string    `json:"session"` // connection id, hex
	Remote   string    `json:"remote"`
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Declared uint64    `json:"declared"`
	Written  uint64    `json:"written"`
	At       time.Time `json:"at"`
}

// Recorder persists entries. Implementations are safe for concurrent use.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
	Close() error
}

// Nop discards entries.
type Nop struct{}

func (Nop) Record(context.Context, Entry) error { return nil }
func (Nop) Close() error                        { return nil }

// Memory keeps entries in process.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
}

func (m *Memory) Record(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *Memory) Close() error { return nil }

// Entries returns a copy of what has been recorded.
func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}

// Default key names.
const (
	DefaultKey = "sendfile:received"
	totalsKey  = ":totals"
)

// Redis appends entries as JSON to a list and maintains running totals in
// a hash next to it (<key>:totals with fields files and bytes).
type Redis struct {
	client redis.UniversalClient
	key    string
}

// RedisOptions selects the server and list key.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Key      string // DefaultKey when empty
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return NewRedisWithClient(client, opts.Key), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client redis.UniversalClient, key string) *Redis {
	if key == "" {
		key = DefaultKey
	}
	return &Redis{client: client, key: key}
}

func (r *Redis) Record(ctx context.Context, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, r.key, data)
	pipe.HIncrBy(ctx, r.key+totalsKey, "files", 1)
	pipe.HIncrBy(ctx, r.key+totalsKey, "bytes", int64(e.Written))
	_, err = pipe.Exec(ctx)
	return err
}

// Recent returns up to n of the latest entries, oldest first.
func (r *Redis) Recent(ctx context.Context, n int64) ([]Entry, error) {
	raw, err := r.client.LRange(ctx, r.key, -n, -1).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(raw))
	for _, s := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (r *Redis) Close() error { return r.client.Close() }
