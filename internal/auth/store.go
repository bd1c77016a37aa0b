package auth

import (
	"context"
	"errors"
	"fmt"
)

// maxMutateAttempts bounds the optimistic retry loop in Mutate.
const maxMutateAttempts = 16

// RecordReader loads security records by user ID.
type RecordReader interface {
	GetByID(ctx context.Context, id string) (*SecurityRecord, error)
}

// RecordStore persists security records.
//
// Implementations return copies: callers may modify what they get back
// and hand it to Update. Update is a compare-and-swap on Revision; a
// mismatch returns ErrStaleRecord and a decreasing TokenVersion returns
// ErrVersionRegression. On success Update increments rec.Revision.
type RecordStore interface {
	RecordReader
	GetByIdentifier(ctx context.Context, id Identifier) (*SecurityRecord, error)
	Create(ctx context.Context, rec *SecurityRecord) error
	Update(ctx context.Context, rec *SecurityRecord) error
	Count(ctx context.Context) (int, error)
	List(ctx context.Context) ([]SecurityRecord, error)
}

// MutateFunc edits a record in place and reports whether it changed.
// It may be called more than once if the record is modified concurrently.
type MutateFunc func(rec *SecurityRecord) (changed bool, err error)

// Mutate applies fn to the current record for id and writes the result
// back, retrying from a fresh read whenever another writer got there first.
//
// Returns the record as last seen (after the write, if one happened).
// An error from fn is returned unchanged along with the record fn saw.
func Mutate(ctx context.Context, store RecordStore, id string, fn MutateFunc) (*SecurityRecord, error) {
	for range maxMutateAttempts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rec, err := store.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		changed, err := fn(rec)
		if err != nil {
			return rec, err
		}
		if !changed {
			return rec, nil
		}

		err = store.Update(ctx, rec)
		if errors.Is(err, ErrStaleRecord) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return rec, nil
	}
	return nil, fmt.Errorf("%w: gave up after %d attempts", ErrStaleRecord, maxMutateAttempts)
}

// storeFailure classifies a store error. Sentinels the callers act on pass
// through; anything else becomes ErrStoreUnavailable.
func storeFailure(err error) error {
	switch {
	case errors.Is(err, ErrRecordNotFound),
		errors.Is(err, ErrEmailTaken),
		errors.Is(err, ErrPhoneTaken),
		errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
}
