package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestMemoryStore_CreateAndLookup(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec := &SecurityRecord{Email: "a@example.com", Phone: "+84912345678", PasswordHash: "x", Role: RoleUser, Enabled: true}
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if rec.ID == "" || rec.Revision != 1 {
		t.Fatalf("Create() should assign ID and revision 1, got %q / %d", rec.ID, rec.Revision)
	}

	byEmail, err := store.GetByIdentifier(ctx, emailIdent("a@example.com"))
	if err != nil || byEmail.ID != rec.ID {
		t.Fatalf("GetByIdentifier(email) = %v, %v", byEmail, err)
	}
	byPhone, err := store.GetByIdentifier(ctx, Identifier{Kind: IdentifierPhone, Value: "+84912345678"})
	if err != nil || byPhone.ID != rec.ID {
		t.Fatalf("GetByIdentifier(phone) = %v, %v", byPhone, err)
	}

	if _, err := store.GetByID(ctx, "missing"); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("GetByID(missing) error = %v, want ErrRecordNotFound", err)
	}

	dup := &SecurityRecord{Email: "a@example.com", PasswordHash: "x"}
	if err := store.Create(ctx, dup); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("duplicate email error = %v, want ErrEmailTaken", err)
	}
	dup = &SecurityRecord{Email: "b@example.com", Phone: "+84912345678", PasswordHash: "x"}
	if err := store.Create(ctx, dup); !errors.Is(err, ErrPhoneTaken) {
		t.Errorf("duplicate phone error = %v, want ErrPhoneTaken", err)
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	rec := &SecurityRecord{Email: "a@example.com", PasswordHash: "x", Enabled: true}
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, _ := store.GetByID(ctx, rec.ID) //nolint:errcheck // record exists
	got.Enabled = false

	again, _ := store.GetByID(ctx, rec.ID) //nolint:errcheck // record exists
	if !again.Enabled {
		t.Error("modifying a returned record must not change the store")
	}
}

func TestMemoryStore_UpdateCompareAndSwap(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	rec := &SecurityRecord{Email: "a@example.com", PasswordHash: "x"}
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	first, _ := store.GetByID(ctx, rec.ID)  //nolint:errcheck // record exists
	second, _ := store.GetByID(ctx, rec.ID) //nolint:errcheck // record exists

	first.FailedAttempts = 1
	if err := store.Update(ctx, first); err != nil {
		t.Fatalf("first Update() error = %v", err)
	}
	if first.Revision != 2 {
		t.Errorf("Revision after update = %d, want 2", first.Revision)
	}

	second.FailedAttempts = 1
	if err := store.Update(ctx, second); !errors.Is(err, ErrStaleRecord) {
		t.Errorf("stale Update() error = %v, want ErrStaleRecord", err)
	}
}

func TestMemoryStore_TokenVersionNeverDecreases(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	rec := &SecurityRecord{Email: "a@example.com", PasswordHash: "x", TokenVersion: 3}
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	rec.TokenVersion = 2
	if err := store.Update(ctx, rec); !errors.Is(err, ErrVersionRegression) {
		t.Errorf("Update() with lower version error = %v, want ErrVersionRegression", err)
	}
}

func TestMutate_NoLostUpdates(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	rec := &SecurityRecord{Email: "a@example.com", PasswordHash: "x"}
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	const workers = 10
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := Mutate(ctx, store, rec.ID, func(r *SecurityRecord) (bool, error) {
				r.TokenVersion++
				return true, nil
			})
			if err != nil {
				t.Errorf("Mutate() error = %v", err)
			}
		}()
	}
	wg.Wait()

	got, _ := store.GetByID(ctx, rec.ID) //nolint:errcheck // record exists
	if got.TokenVersion != workers {
		t.Errorf("TokenVersion = %d, want %d", got.TokenVersion, workers)
	}
}

func TestMutate_UnchangedSkipsWrite(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	rec := &SecurityRecord{Email: "a@example.com", PasswordHash: "x"}
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := Mutate(ctx, store, rec.ID, func(*SecurityRecord) (bool, error) { return false, nil })
	if err != nil {
		t.Fatalf("Mutate() error = %v", err)
	}
	if got.Revision != 1 {
		t.Errorf("Revision = %d, want 1 (no write)", got.Revision)
	}
}

func TestMutate_PropagatesFuncError(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	rec := &SecurityRecord{Email: "a@example.com", PasswordHash: "x"}
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	boom := errors.New("boom")
	if _, err := Mutate(ctx, store, rec.ID, func(*SecurityRecord) (bool, error) { return false, boom }); !errors.Is(err, boom) {
		t.Errorf("Mutate() error = %v, want boom", err)
	}
	if _, err := Mutate(ctx, store, "missing", func(*SecurityRecord) (bool, error) { return true, nil }); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("Mutate(missing) error = %v, want ErrRecordNotFound", err)
	}
}
