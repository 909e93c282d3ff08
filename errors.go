package querycache

import (
	"errors"
	"fmt"
)

var (
	ErrClosed           = errors.New("querycache: client closed")
	ErrDisabled         = errors.New("querycache: query disabled")
	ErrNoFetcher        = errors.New("querycache: query has no fetch function")
	ErrProviderRejected = errors.New("querycache: provider rejected write")

	// errSuperseded marks a flight whose generation moved. Waiters re-attach
	// to the current flight or read the cache; it never reaches callers.
	errSuperseded = errors.New("querycache: fetch superseded")
)

// RemoveError reports a failed Remove of one key. The key's generation bump
// (which discards in-flight fetches) and the provider delete are attempted
// independently.
type RemoveError struct {
	Key     Key
	BumpErr error
	DelErr  error
}

func (e *RemoveError) Error() string {
	switch {
	case e.BumpErr != nil && e.DelErr != nil:
		return fmt.Sprintf("remove %s failed: gen bump and delete failed: bump=%v; delete=%v",
			e.Key, e.BumpErr, e.DelErr)
	case e.BumpErr != nil:
		return fmt.Sprintf("remove %s: gen bump failed: %v", e.Key, e.BumpErr)
	case e.DelErr != nil:
		return fmt.Sprintf("remove %s: delete failed: %v", e.Key, e.DelErr)
	default:
		return fmt.Sprintf("remove %s: unknown error", e.Key)
	}
}

func (e *RemoveError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.BumpErr != nil {
		errs = append(errs, e.BumpErr)
	}
	if e.DelErr != nil {
		errs = append(errs, e.DelErr)
	}
	return errs
}
