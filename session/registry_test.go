package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRegistry(t *testing.T, maxConcurrent int, policy ConcurrencyPolicy) (*Registry, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	reg := NewRegistry(client, "wg", 30*time.Minute, 8*time.Hour, maxConcurrent, policy)
	return reg, mr
}

func mustCreate(t *testing.T, reg *Registry, id, username string) []string {
	t.Helper()
	evicted, err := reg.Create(context.Background(), &Record{ID: id, Username: username})
	if err != nil {
		t.Fatalf("Create(%s): %v", id, err)
	}
	return evicted
}

func TestCreateAndTouch(t *testing.T) {
	reg, _ := newTestRegistry(t, 0, EvictOldest)
	ctx := context.Background()

	mustCreate(t, reg, "sid-1", "user")

	rec, err := reg.Touch(ctx, "sid-1")
	if err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if rec.Username != "user" {
		t.Errorf("Username = %q, want user", rec.Username)
	}
	if rec.CreatedAt == 0 || rec.LastAccessAt == 0 {
		t.Error("timestamps not set")
	}
}

func TestTouchUnknownSession(t *testing.T) {
	reg, _ := newTestRegistry(t, 0, EvictOldest)

	if _, err := reg.Touch(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Touch(missing) = %v, want ErrNotFound", err)
	}
}

func TestEvictOldestAtLimit(t *testing.T) {
	reg, _ := newTestRegistry(t, 1, EvictOldest)

	mustCreate(t, reg, "sid-old", "user")
	evicted := mustCreate(t, reg, "sid-new", "user")

	if len(evicted) != 1 || evicted[0] != "sid-old" {
		t.Fatalf("evicted = %v, want [sid-old]", evicted)
	}

	ctx := context.Background()
	if _, err := reg.Touch(ctx, "sid-old"); !errors.Is(err, ErrNotFound) {
		t.Errorf("old session still live: %v", err)
	}
	if _, err := reg.Touch(ctx, "sid-new"); err != nil {
		t.Errorf("new session not live: %v", err)
	}
}

func TestRejectNewAtLimit(t *testing.T) {
	reg, _ := newTestRegistry(t, 1, RejectNew)
	ctx := context.Background()

	mustCreate(t, reg, "sid-1", "user")

	_, err := reg.Create(ctx, &Record{ID: "sid-2", Username: "user"})
	if !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("Create at limit = %v, want ErrLimitExceeded", err)
	}

	if _, err := reg.Touch(ctx, "sid-1"); err != nil {
		t.Errorf("existing session disturbed: %v", err)
	}
	if _, err := reg.Touch(ctx, "sid-2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("rejected session exists: %v", err)
	}
}

func TestLimitIsPerPrincipal(t *testing.T) {
	reg, _ := newTestRegistry(t, 1, RejectNew)

	mustCreate(t, reg, "sid-a", "alice")
	mustCreate(t, reg, "sid-b", "bob")

	ctx := context.Background()
	for _, id := range []string{"sid-a", "sid-b"} {
		if _, err := reg.Touch(ctx, id); err != nil {
			t.Errorf("Touch(%s): %v", id, err)
		}
	}
}

func TestExpiredSessionFreesSlot(t *testing.T) {
	reg, mr := newTestRegistry(t, 1, RejectNew)

	mustCreate(t, reg, "sid-1", "user")

	// Idle timeout elapses; the index entry is stale but must not count.
	mr.FastForward(31 * time.Minute)

	if _, err := reg.Create(context.Background(), &Record{ID: "sid-2", Username: "user"}); err != nil {
		t.Fatalf("Create after expiry: %v", err)
	}
}

func TestAbsoluteLifetime(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	reg := NewRegistry(client, "wg", 30*time.Minute, time.Hour, 0, EvictOldest)
	ctx := context.Background()

	mustCreate(t, reg, "sid-1", "user")

	// Backdate creation past the absolute cap; the idle TTL alone would
	// still keep the key alive.
	rec, err := reg.Get(ctx, "sid-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	rec.CreatedAt = time.Now().Add(-2 * time.Hour).UnixMilli()
	blob, err := Encode(rec)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := client.Set(ctx, "wg:s:sid-1", blob, 30*time.Minute).Err(); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if _, err := reg.Touch(ctx, "sid-1"); !errors.Is(err, ErrExpired) {
		t.Fatalf("Touch past absolute lifetime = %v, want ErrExpired", err)
	}
	if _, err := reg.Get(ctx, "sid-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired session not removed: %v", err)
	}
}

func TestInvalidateIdempotent(t *testing.T) {
	reg, _ := newTestRegistry(t, 0, EvictOldest)
	ctx := context.Background()

	mustCreate(t, reg, "sid-1", "user")

	if err := reg.Invalidate(ctx, "sid-1"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if err := reg.Invalidate(ctx, "sid-1"); err != nil {
		t.Fatalf("second Invalidate: %v", err)
	}
	if _, err := reg.Touch(ctx, "sid-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("session survived invalidation: %v", err)
	}
}

func TestTouchCannotResurrectInvalidatedSession(t *testing.T) {
	reg, _ := newTestRegistry(t, 1, RejectNew)
	ctx := context.Background()

	// Touch in a tight loop while invalidating. A touch that read the
	// record before the invalidate must not write it back afterwards: the
	// re-created key would have no index entry and would escape the
	// concurrency limit.
	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("sid-%d", i)
		mustCreate(t, reg, id, "user")

		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, err := reg.Touch(ctx, id); err != nil {
					return
				}
			}
		}()

		if err := reg.Invalidate(ctx, id); err != nil {
			t.Fatalf("Invalidate(%s): %v", id, err)
		}
		<-done

		if _, err := reg.Get(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("iteration %d: invalidated session still stored: %v", i, err)
		}
		ids, err := reg.ActiveSessionIDs(ctx, "user")
		if err != nil {
			t.Fatalf("ActiveSessionIDs: %v", err)
		}
		if len(ids) != 0 {
			t.Fatalf("iteration %d: index still holds %v", i, ids)
		}
	}
}

func TestInvalidateAllFor(t *testing.T) {
	reg, _ := newTestRegistry(t, 0, EvictOldest)
	ctx := context.Background()

	mustCreate(t, reg, "sid-1", "user")
	mustCreate(t, reg, "sid-2", "user")
	mustCreate(t, reg, "sid-x", "other")

	removed, err := reg.InvalidateAllFor(ctx, "user")
	if err != nil {
		t.Fatalf("InvalidateAllFor: %v", err)
	}
	if len(removed) != 2 {
		t.Errorf("removed %d sessions, want 2", len(removed))
	}

	if _, err := reg.Touch(ctx, "sid-x"); err != nil {
		t.Errorf("unrelated principal's session removed: %v", err)
	}
}

func TestActiveSessionIDsOrderedOldestFirst(t *testing.T) {
	reg, _ := newTestRegistry(t, 0, EvictOldest)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		mustCreate(t, reg, fmt.Sprintf("sid-%d", i), "user")
		time.Sleep(2 * time.Millisecond)
	}

	ids, err := reg.ActiveSessionIDs(ctx, "user")
	if err != nil {
		t.Fatalf("ActiveSessionIDs: %v", err)
	}
	if len(ids) != 3 || ids[0] != "sid-0" {
		t.Fatalf("ids = %v, want oldest (sid-0) first", ids)
	}
}

func TestConcurrentCreatesRespectLimit(t *testing.T) {
	reg, _ := newTestRegistry(t, 3, RejectNew)
	ctx := context.Background()

	const attempts = 10
	errCh := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		go func(n int) {
			_, err := reg.Create(ctx, &Record{ID: fmt.Sprintf("sid-%d", n), Username: "user"})
			errCh <- err
		}(i)
	}

	var created, rejected int
	for i := 0; i < attempts; i++ {
		switch err := <-errCh; {
		case err == nil:
			created++
		case errors.Is(err, ErrLimitExceeded):
			rejected++
		default:
			t.Fatalf("Create: %v", err)
		}
	}

	if created != 3 || rejected != 7 {
		t.Fatalf("created=%d rejected=%d, want 3/7", created, rejected)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	cases := [][]byte{
		nil,
		{},
		{99},
		{1, 5, 'a', 'b'},
	}
	for _, data := range cases {
		if _, err := Decode(data); err == nil {
			t.Errorf("Decode(%v) accepted garbage", data)
		}
	}
}

func TestCodecRoundTrip(t *testing.T) {
	in := &Record{
		Username:       "admin",
		RememberMeOnly: true,
		CreatedAt:      time.Now().UnixMilli(),
		LastAccessAt:   time.Now().UnixMilli(),
	}

	blob, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out, err := Decode(blob)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if out.Username != in.Username || out.RememberMeOnly != in.RememberMeOnly ||
		out.CreatedAt != in.CreatedAt || out.LastAccessAt != in.LastAccessAt {
		t.Fatalf("round trip mismatch: %+v != %+v", out, in)
	}
}
