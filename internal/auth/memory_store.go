package auth

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process RecordStore. It backs tests and single-node
// deployments that do not need persistence.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*SecurityRecord
	byEmail map[string]string
	byPhone map[string]string
	now     func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*SecurityRecord),
		byEmail: make(map[string]string),
		byPhone: make(map[string]string),
		now:     time.Now,
	}
}

// GetByID returns a copy of the record with the given ID.
func (s *MemoryStore) GetByID(_ context.Context, id string) (*SecurityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return rec.Clone(), nil
}

// GetByIdentifier returns a copy of the record owning the email or phone.
func (s *MemoryStore) GetByIdentifier(_ context.Context, ident Identifier) (*SecurityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	index := s.byEmail
	if ident.Kind == IdentifierPhone {
		index = s.byPhone
	}
	id, ok := index[ident.Value]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return s.byID[id].Clone(), nil
}

// Create inserts a new record. ID and timestamps are filled in when empty.
func (s *MemoryStore) Create(_ context.Context, rec *SecurityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.Email != "" {
		if _, taken := s.byEmail[rec.Email]; taken {
			return ErrEmailTaken
		}
	}
	if rec.Phone != "" {
		if _, taken := s.byPhone[rec.Phone]; taken {
			return ErrPhoneTaken
		}
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := s.now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	rec.Revision = 1

	s.byID[rec.ID] = rec.Clone()
	if rec.Email != "" {
		s.byEmail[rec.Email] = rec.ID
	}
	if rec.Phone != "" {
		s.byPhone[rec.Phone] = rec.ID
	}
	return nil
}

// Update replaces the stored record if rec.Revision still matches.
func (s *MemoryStore) Update(_ context.Context, rec *SecurityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.byID[rec.ID]
	if !ok {
		return ErrRecordNotFound
	}
	if cur.Revision != rec.Revision {
		return ErrStaleRecord
	}
	if rec.TokenVersion < cur.TokenVersion {
		return ErrVersionRegression
	}
	if rec.Email != cur.Email || rec.Phone != cur.Phone {
		if err := s.reindex(cur, rec); err != nil {
			return err
		}
	}

	rec.Revision++
	rec.UpdatedAt = s.now().UTC()
	s.byID[rec.ID] = rec.Clone()
	return nil
}

func (s *MemoryStore) reindex(cur, next *SecurityRecord) error {
	if next.Email != "" && next.Email != cur.Email {
		if _, taken := s.byEmail[next.Email]; taken {
			return ErrEmailTaken
		}
	}
	if next.Phone != "" && next.Phone != cur.Phone {
		if _, taken := s.byPhone[next.Phone]; taken {
			return ErrPhoneTaken
		}
	}
	delete(s.byEmail, cur.Email)
	delete(s.byPhone, cur.Phone)
	if next.Email != "" {
		s.byEmail[next.Email] = next.ID
	}
	if next.Phone != "" {
		s.byPhone[next.Phone] = next.ID
	}
	return nil
}

// Count returns the number of records.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID), nil
}

// List returns copies of all records ordered by creation time.
func (s *MemoryStore) List(_ context.Context) ([]SecurityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]SecurityRecord, 0, len(s.byID))
	for _, rec := range s.byID {
		out = append(out, *rec.Clone())
	}
	slices.SortFunc(out, func(a, b SecurityRecord) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}
