// Package attempts tracks failed credential checks per client identifier and
// decides lockouts.
//
// A client is Clean (no record), Accumulating (1..N-1 failures) or Locked
// (N or more failures, with the last one inside the window). A successful
// login clears the record; an expired record is treated as Clean the next time
// it is touched. Nothing is reset by a timer.
package attempts

import (
	"context"
	"time"
)

const (
	DefaultMaxFailures = 5
	DefaultWindow      = 15 * time.Minute
)

// Status is a snapshot of one identifier's record.
type Status struct {
	Failures   int
	Locked     bool
	RetryAfter time.Duration
}

// Store holds attempt records. Implementations must make RecordFailure a
// single atomic read-compare-increment per identifier.
type Store interface {
	Check(ctx context.Context, id string) (Status, error)
	RecordFailure(ctx context.Context, id string) (Status, error)
	Reset(ctx context.Context, id string) error
}

// Tracker is the entry point used by the login flow.
type Tracker struct {
	store Store
}

func NewTracker(store Store) *Tracker {
	return &Tracker{store: store}
}

// Check must be called before the password hash is evaluated.
func (t *Tracker) Check(ctx context.Context, id string) (Status, error) {
	return t.store.Check(ctx, id)
}

// Fail records a failed credential check.
func (t *Tracker) Fail(ctx context.Context, id string) (Status, error) {
	return t.store.RecordFailure(ctx, id)
}

// Succeed clears the identifier's record.
func (t *Tracker) Succeed(ctx context.Context, id string) error {
	return t.store.Reset(ctx, id)
}
