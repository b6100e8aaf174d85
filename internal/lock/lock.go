// Package lock serializes engine runs on a host through advisory file
// locks. Each engine has its own lock file, so the anniversary and digest
// workers never block each other but a second copy of the same worker exits
// immediately instead of double-sending.
package lock

import (
	"fmt"

	"github.com/gofrs/flock"

	"luach/internal/types"
)

// Guard holds an acquired run lock until released.
type Guard struct {
	fl *flock.Flock
}

// Acquire takes the lock at path without blocking. A held lock is a fatal
// condition for the caller: the previous run is still in flight.
func Acquire(path string) (*Guard, error) {
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, &types.AppError{
			Code:    types.ErrCodeInternalUnexpected,
			Message: fmt.Sprintf("failed to acquire run lock %s", path),
			Err:     err,
		}
	}
	if !ok {
		return nil, &types.AppError{
			Code:    types.ErrCodeLockHeld,
			Message: fmt.Sprintf("run lock %s is held by another process", path),
		}
	}
	return &Guard{fl: fl}, nil
}

// Release drops the lock. Safe to defer immediately after Acquire.
func (g *Guard) Release() error {
	return g.fl.Unlock()
}
