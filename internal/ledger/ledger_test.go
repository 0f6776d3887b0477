package ledger_test

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/1ureka/sendfile/internal/ledger"
)

func TestMemoryConcurrent(t *testing.T) {
	var m ledger.Memory
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Record(context.Background(), ledger.Entry{Name: "f", Written: uint64(i)})
		}()
	}
	wg.Wait()

	if n := len(m.Entries()); n != 50 {
		t.Errorf("got %d entries, want 50", n)
	}
}

func TestEntryJSON(t *testing.T) {
	e := ledger.Entry{Session: "0000abcd", Name: "a.txt", Declared: 10, Written: 5}
	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, field := range []string{`"session":"0000abcd"`, `"name":"a.txt"`, `"declared":10`, `"written":5`} {
		if !strings.Contains(string(data), field) {
			t.Errorf("%s missing from %s", field, data)
		}
	}
}

func TestRedisUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if _, err := ledger.NewRedis(ctx, ledger.RedisOptions{Addr: "127.0.0.1:1"}); err == nil {
		t.Fatal("expected connecting to a closed port to fail")
	}
}

// TestRedisRecord runs against a real server when SENDFILE_TEST_REDIS_ADDR
// is set.
func TestRedisRecord(t *testing.T) {
	addr := os.Getenv("SENDFILE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SENDFILE_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()

	key := "sendfile:test:" + time.Now().Format("150405.000000000")
	r, err := ledger.NewRedis(ctx, ledger.RedisOptions{Addr: addr, Key: key})
	if err != nil {
		t.Fatalf("NewRedis failed: %v", err)
	}
	defer r.Close()

	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		if err := r.Record(ctx, ledger.Entry{Name: name, Written: 7}); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	recent, err := r.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 2 || recent[0].Name != "b.txt" || recent[1].Name != "c.txt" {
		t.Errorf("unexpected recent entries: %+v", recent)
	}
}
