package session

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"folio/cmd/security/token"
)

type failingStore struct {
	*MemoryStore
	calls   atomic.Int32
	err     error
	explode bool
}

func (s *failingStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	s.calls.Add(1)
	if s.explode {
		panic("storage exploded")
	}
	if s.err != nil {
		return 0, s.err
	}
	return s.MemoryStore.DeleteExpired(ctx, before)
}

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (w *syncBuffer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.b.Write(p)
}

func (w *syncBuffer) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.b.String()
}

func TestSweeper_RunOnceDeletesOnlyExpired(t *testing.T) {
	store := NewMemoryStore()
	creds, err := NewCredentials(store, token.Hasher{}, 32)
	if err != nil {
		t.Fatalf("NewCredentials: %v", err)
	}
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := creds.Create(ctx, "o", now.Add(-48*time.Hour), now.Add(-time.Hour)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	future, err := creds.Create(ctx, "o", now, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := creds.Revoke(ctx, future.Secret, now); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	var logs syncBuffer
	sw, err := NewSweeper(creds, time.Hour, slog.New(slog.NewJSONHandler(&logs, nil)), NewMetrics(nil))
	if err != nil {
		t.Fatalf("NewSweeper: %v", err)
	}

	n, err := sw.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 1 {
		t.Fatalf("deleted %d rows, want 1", n)
	}
	if store.Len() != 1 {
		t.Fatalf("store has %d rows, want 1 (revoked but unexpired kept)", store.Len())
	}
	if !strings.Contains(logs.String(), `"msg":"sweep.run"`) || !strings.Contains(logs.String(), `"deleted":1`) {
		t.Fatalf("expected sweep.run log with count, got %s", logs.String())
	}
}

func TestSweeper_RunOnceContainsFailures(t *testing.T) {
	cases := []struct {
		name  string
		store *failingStore
	}{
		{"error", &failingStore{MemoryStore: NewMemoryStore(), err: errors.New("db down")}},
		{"panic", &failingStore{MemoryStore: NewMemoryStore(), explode: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			creds, err := NewCredentials(tc.store, token.Hasher{}, 32)
			if err != nil {
				t.Fatalf("NewCredentials: %v", err)
			}
			sw, err := NewSweeper(creds, time.Hour, discardLogger(), nil)
			if err != nil {
				t.Fatalf("NewSweeper: %v", err)
			}

			if _, err := sw.RunOnce(context.Background()); err == nil {
				t.Fatalf("expected error")
			}
			// A failed run does not poison the next one.
			if _, err := sw.RunOnce(context.Background()); err == nil {
				t.Fatalf("expected error on second run")
			}
			if got := tc.store.calls.Load(); got != 2 {
				t.Fatalf("calls = %d, want 2", got)
			}
		})
	}
}

func TestSweeper_StartRunsImmediately(t *testing.T) {
	store := &failingStore{MemoryStore: NewMemoryStore()}
	creds, err := NewCredentials(store, token.Hasher{}, 32)
	if err != nil {
		t.Fatalf("NewCredentials: %v", err)
	}
	sw, err := NewSweeper(creds, 24*time.Hour, discardLogger(), nil)
	if err != nil {
		t.Fatalf("NewSweeper: %v", err)
	}

	sw.Start(context.Background())
	sw.Start(context.Background())
	defer sw.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for store.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("initial sweep did not run")
		}
		time.Sleep(10 * time.Millisecond)
	}

	sw.Stop()
	if got := store.calls.Load(); got != 1 {
		t.Fatalf("calls = %d, want exactly the startup pass", got)
	}
}

func TestSweeper_ScheduleSurvivesFailedRuns(t *testing.T) {
	cases := []struct {
		name  string
		store *failingStore
	}{
		{"error", &failingStore{MemoryStore: NewMemoryStore(), err: errors.New("db down")}},
		{"panic", &failingStore{MemoryStore: NewMemoryStore(), explode: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			creds, err := NewCredentials(tc.store, token.Hasher{}, 32)
			if err != nil {
				t.Fatalf("NewCredentials: %v", err)
			}
			// cron.Every rounds below one second up to one second.
			sw, err := NewSweeper(creds, time.Second, discardLogger(), nil)
			if err != nil {
				t.Fatalf("NewSweeper: %v", err)
			}

			sw.Start(context.Background())
			defer sw.Stop()

			deadline := time.Now().Add(10 * time.Second)
			for tc.store.calls.Load() < 3 {
				if time.Now().After(deadline) {
					t.Fatalf("calls = %d after failed runs, want the schedule to keep firing", tc.store.calls.Load())
				}
				time.Sleep(50 * time.Millisecond)
			}
		})
	}
}

func TestNewSweeper_Validates(t *testing.T) {
	if _, err := NewSweeper(nil, time.Hour, nil, nil); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
	creds, _ := NewCredentials(NewMemoryStore(), token.Hasher{}, 32)
	if _, err := NewSweeper(creds, 0, nil, nil); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}
