package thread

import (
	"errors"
	"fmt"
)

// Business rejections. These are deterministic: retrying the same mutation
// fails the same way, so the boundary must never retry them. The messages
// are surfaced to clients verbatim.
var (
	// ErrNoParent means replyTo named a comment id that does not exist.
	ErrNoParent = errors.New("no parent post")

	// ErrDuplicateID means a comment insert reused an id that already
	// holds content.
	ErrDuplicateID = errors.New("dup uuid")
)

// StorageError wraps a persistence fault. The mutation is not committed and
// the caller may retry the whole mutation; nothing storage-specific should
// reach clients.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsRejection reports whether err is a deterministic business rejection as
// opposed to a storage fault.
func IsRejection(err error) bool {
	return errors.Is(err, ErrNoParent) || errors.Is(err, ErrDuplicateID)
}
