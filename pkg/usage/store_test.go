package usage

import (
	"context"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "cred-a", "gemma-3-27b"); err != nil || ok {
		t.Fatalf("expected empty store, got ok=%v err=%v", ok, err)
	}

	c := Counter{CredentialID: "cred-a", ResourceID: "gemma-3-27b"}
	c.Record(base, 120)
	if err := s.Upsert(ctx, c); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	c.Record(base.Add(time.Second), 30)
	if err := s.Upsert(ctx, c); err != nil {
		t.Fatalf("second Upsert() error = %v", err)
	}

	got, ok, err := s.Get(ctx, "cred-a", "gemma-3-27b")
	if err != nil || !ok {
		t.Fatalf("Get() ok=%v err=%v", ok, err)
	}
	if got.RequestsInWindow != 2 || got.TokensInWindow != 150 || got.RequestsToday != 2 {
		t.Errorf("unexpected counter %+v", got)
	}
	if !got.WindowStart.Equal(base) {
		t.Errorf("expected window start %v, got %v", base, got.WindowStart)
	}
	if got.DayStamp != "2026-03-09" {
		t.Errorf("expected day stamp, got %q", got.DayStamp)
	}

	other := Counter{CredentialID: "cred-b", ResourceID: "gemma-3-27b"}
	other.Record(base, 1)
	if err := s.Upsert(ctx, other); err != nil {
		t.Fatal(err)
	}

	all, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 counters, got %d", len(all))
	}
	if all[0].CredentialID != "cred-a" || all[1].CredentialID != "cred-b" {
		t.Errorf("unexpected order %s, %s", all[0].CredentialID, all[1].CredentialID)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestSQLStore_SQLite(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, Config{Driver: DriverSQLite, DSN: filepath.Join(t.TempDir(), "usage.db")})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	if _, ok := s.(*SQLStore); !ok {
		t.Fatalf("expected *SQLStore, got %T", s)
	}
	exerciseStore(t, s)
}

func TestSQLStore_ConcurrentUpserts(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, Config{Driver: DriverSQLite, DSN: filepath.Join(t.TempDir(), "usage.db")})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			c := Counter{CredentialID: "shared", ResourceID: "r", RequestsInWindow: n}
			if err := s.Upsert(ctx, c); err != nil {
				t.Errorf("Upsert() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	all, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Errorf("expected a single row after concurrent upserts, got %d", len(all))
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), Config{Driver: "cassandra"}); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestRedisHashRoundTrip(t *testing.T) {
	c := Counter{CredentialID: "abc", ResourceID: "gemini-2.5-flash-free"}
	c.Record(base, 42)

	fields := make(map[string]string)
	for k, v := range toHash(c) {
		switch val := v.(type) {
		case string:
			fields[k] = val
		case int:
			fields[k] = strconv.Itoa(val)
		case int64:
			fields[k] = strconv.FormatInt(val, 10)
		}
	}

	got, err := fromHash(fields)
	if err != nil {
		t.Fatalf("fromHash() error = %v", err)
	}
	if !got.WindowStart.Equal(c.WindowStart) {
		t.Errorf("expected window start %v, got %v", c.WindowStart, got.WindowStart)
	}
	got.WindowStart = c.WindowStart
	if got != c {
		t.Errorf("expected %+v, got %+v", c, got)
	}

	if _, err := fromHash(map[string]string{"requests_today": "many"}); err == nil {
		t.Error("expected error for non-numeric field")
	}
}
