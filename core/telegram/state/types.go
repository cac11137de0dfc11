package state

import (
	"context"
	"errors"
)

// ErrNoSession is returned by Save when the user has no live session to update.
var ErrNoSession = errors.New("state: no active session")

// Manager keeps at most one session value per user. A session exists between
// Begin and End, or until the backend expires it.
type Manager[T any] interface {
	// Load returns the user's session and whether one exists.
	Load(ctx context.Context, userID int64) (T, bool, error)
	// Begin creates or replaces the user's session.
	Begin(ctx context.Context, userID int64, v T) error
	// Save overwrites an existing session and refreshes its lifetime.
	Save(ctx context.Context, userID int64, v T) error
	// End drops the session. Ending a missing session is not an error.
	End(ctx context.Context, userID int64) error
	// Active reports whether the user has a session.
	Active(ctx context.Context, userID int64) (bool, error)
}

// Locker serializes work on one user's session. The returned unlock releases
// the lock and is safe to call once.
type Locker interface {
	Lock(ctx context.Context, userID int64) (unlock func(), err error)
}
