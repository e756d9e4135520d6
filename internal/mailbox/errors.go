package mailbox

import (
	"errors"
	"fmt"
)

// ConnectError indicates that dialing or authenticating against the
// remote mailbox store failed. It is surfaced to the caller as-is; the
// periodic trigger retries on its next run.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("mailbox connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// IsConnectError reports whether err (or any error in its chain) is a
// ConnectError.
func IsConnectError(err error) bool {
	var connErr *ConnectError
	return errors.As(err, &connErr)
}

// FolderNotFoundError indicates that a named folder could not be
// selected on the remote mailbox store.
type FolderNotFoundError struct {
	Folder string
	Err    error
}

func (e *FolderNotFoundError) Error() string {
	return fmt.Sprintf("mailbox folder %q: %v", e.Folder, e.Err)
}

func (e *FolderNotFoundError) Unwrap() error { return e.Err }

// IsFolderNotFound reports whether err (or any error in its chain) is a
// FolderNotFoundError.
func IsFolderNotFound(err error) bool {
	var folderErr *FolderNotFoundError
	return errors.As(err, &folderErr)
}
