package types

import "errors"

var (
	// Mutex errors
	ErrNonBlockingTimeout = errors.New("cannot combine non-blocking acquire with a timeout")
	ErrLockNotHeld        = errors.New("release of unheld lock")
	ErrLockOwnershipLost  = errors.New("lock record was reassigned to another holder")

	// Node errors
	ErrJoinExhausted = errors.New("could not resolve a role within the join attempt budget")
	ErrNotJoined     = errors.New("node has not joined a coordinator")

	// Operation errors
	ErrEmptyKey        = errors.New("operation key is empty")
	ErrInvalidInterval = errors.New("invalid min interval")
)

var ErrLockTimeout = errors.New("timed out waiting for lock")
