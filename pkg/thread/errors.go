package thread

import "errors"

var (
	// ErrBusy is returned when an event arrives for a thread whose
	// previous execution has not finished. There is no queueing; the
	// event is rejected, not deferred.
	ErrBusy = errors.New("thread is already executing")

	// ErrCapacity is returned when a new thread cannot be admitted
	// because every tracked thread is currently busy.
	ErrCapacity = errors.New("no admission slot available")
)
