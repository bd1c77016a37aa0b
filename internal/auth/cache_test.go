package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// countingReader counts store reads and can block them.
type countingReader struct {
	store RecordReader
	reads atomic.Int64
	gate  chan struct{}
}

func (r *countingReader) GetByID(ctx context.Context, id string) (*SecurityRecord, error) {
	r.reads.Add(1)
	if r.gate != nil {
		<-r.gate
	}
	return r.store.GetByID(ctx, id)
}

// pausingReader reads the store, then waits for resume before returning.
type pausingReader struct {
	store  RecordReader
	reads  atomic.Int64
	read   chan struct{}
	resume chan struct{}
}

func (r *pausingReader) GetByID(ctx context.Context, id string) (*SecurityRecord, error) {
	rec, err := r.store.GetByID(ctx, id)
	if r.reads.Add(1) == 1 {
		close(r.read)
		<-r.resume
	}
	return rec, err
}

func TestMemoryRecordCache_TTL(t *testing.T) {
	clock := newFakeClock()
	c := NewMemoryRecordCache(time.Minute)
	c.now = clock.Now
	ctx := context.Background()

	c.Set(ctx, &SecurityRecord{ID: "usr-1", PasswordHash: "secret", Role: RoleUser})

	got, ok := c.Get(ctx, "usr-1")
	if !ok {
		t.Fatal("fresh entry should be cached")
	}
	if got.PasswordHash != "" {
		t.Error("cached copies must not carry the password hash")
	}

	clock.Advance(time.Minute)
	if _, ok := c.Get(ctx, "usr-1"); ok {
		t.Error("entry should expire after ttl")
	}
}

func TestMemoryRecordCache_Invalidate(t *testing.T) {
	c := NewMemoryRecordCache(time.Hour)
	ctx := context.Background()

	c.Set(ctx, &SecurityRecord{ID: "usr-1"})
	c.Invalidate(ctx, "usr-1")
	if _, ok := c.Get(ctx, "usr-1"); ok {
		t.Error("invalidated entry should be gone")
	}
}

func TestCachedRecordReader_ReadsThrough(t *testing.T) {
	store := NewMemoryStore()
	rec := seedRecord(t, store, testHasher(t), "a@example.com", RoleUser)
	reader := &countingReader{store: store}
	cached := NewCachedRecordReader(reader, NewMemoryRecordCache(time.Hour))
	ctx := context.Background()

	for range 3 {
		got, err := cached.GetByID(ctx, rec.ID)
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if got.ID != rec.ID {
			t.Fatalf("GetByID() = %q, want %q", got.ID, rec.ID)
		}
	}
	if n := reader.reads.Load(); n != 1 {
		t.Errorf("store reads = %d, want 1", n)
	}

	cached.Invalidate(ctx, rec.ID)
	if _, err := cached.GetByID(ctx, rec.ID); err != nil {
		t.Fatalf("GetByID() after invalidate error = %v", err)
	}
	if n := reader.reads.Load(); n != 2 {
		t.Errorf("store reads after invalidate = %d, want 2", n)
	}
}

func TestCachedRecordReader_CoalescesConcurrentMisses(t *testing.T) {
	store := NewMemoryStore()
	rec := seedRecord(t, store, testHasher(t), "a@example.com", RoleUser)
	reader := &countingReader{store: store, gate: make(chan struct{})}
	cached := NewCachedRecordReader(reader, NewMemoryRecordCache(time.Hour))

	const callers = 8
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cached.GetByID(context.Background(), rec.ID); err != nil {
				t.Errorf("GetByID() error = %v", err)
			}
		}()
	}

	// Let the single in-flight read finish once it has started.
	for reader.reads.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(reader.gate)
	wg.Wait()

	if n := reader.reads.Load(); n != 1 {
		t.Errorf("store reads = %d, want 1", n)
	}
}

func TestCachedRecordReader_DoesNotCacheErrors(t *testing.T) {
	store := NewMemoryStore()
	reader := &countingReader{store: store}
	cached := NewCachedRecordReader(reader, NewMemoryRecordCache(time.Hour))
	ctx := context.Background()

	for range 2 {
		if _, err := cached.GetByID(ctx, "missing"); !errors.Is(err, ErrRecordNotFound) {
			t.Fatalf("GetByID(missing) error = %v", err)
		}
	}
	if n := reader.reads.Load(); n != 2 {
		t.Errorf("store reads = %d, want 2", n)
	}
}

func TestCachedRecordReader_InvalidateDuringFill(t *testing.T) {
	store := NewMemoryStore()
	rec := seedRecord(t, store, testHasher(t), "a@example.com", RoleUser)
	reader := &pausingReader{store: store, read: make(chan struct{}), resume: make(chan struct{})}
	cache := NewMemoryRecordCache(time.Hour)
	cached := NewCachedRecordReader(reader, cache)
	ctx := context.Background()

	done := make(chan *SecurityRecord, 1)
	go func() {
		got, err := cached.GetByID(ctx, rec.ID)
		if err != nil {
			t.Errorf("GetByID() error = %v", err)
		}
		done <- got
	}()
	<-reader.read

	// Revoke tokens while the fill holds the old record.
	if _, err := Mutate(ctx, store, rec.ID, func(r *SecurityRecord) error {
		r.TokenVersion++
		return nil
	}); err != nil {
		t.Fatalf("Mutate() error = %v", err)
	}
	cached.Invalidate(ctx, rec.ID)

	// A caller arriving now must not join the stale flight.
	got, err := cached.GetByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.TokenVersion != rec.TokenVersion+1 {
		t.Errorf("TokenVersion after invalidate = %d, want %d", got.TokenVersion, rec.TokenVersion+1)
	}

	close(reader.resume)
	if stale := <-done; stale != nil && stale.TokenVersion != rec.TokenVersion {
		t.Errorf("in-flight read TokenVersion = %d, want %d", stale.TokenVersion, rec.TokenVersion)
	}

	cachedRec, ok := cache.Get(ctx, rec.ID)
	if !ok {
		t.Fatal("the fresh read should be cached")
	}
	if cachedRec.TokenVersion != rec.TokenVersion+1 {
		t.Errorf("cached TokenVersion = %d, want %d: stale fill landed after invalidate",
			cachedRec.TokenVersion, rec.TokenVersion+1)
	}
}
