package listingfileserver

import (
	"errors"
	"fmt"
)

var (
	// ErrNotDirectory is wrapped by ConfigurationError when the root is not a directory.
	ErrNotDirectory = errors.New("not a directory")
	// ErrDirectoryUnreadable is wrapped by DirectoryUnreadableError.
	ErrDirectoryUnreadable = errors.New("directory unreadable")
)

// ConfigurationError reports a root that cannot be served. It is fatal: a
// ListingFileServer is never constructed from a bad root.
type ConfigurationError struct {
	Root string
	Err  error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("bad ListingFileServer path %q: %v", e.Root, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// DirectoryUnreadableError reports a directory that passed resolution but could
// not be enumerated.
type DirectoryUnreadableError struct {
	Path string
	Err  error
}

func (e *DirectoryUnreadableError) Error() string {
	return fmt.Sprintf("cannot read directory %s: %v", e.Path, e.Err)
}

func (e *DirectoryUnreadableError) Unwrap() error { return e.Err }

func (e *DirectoryUnreadableError) Is(target error) bool {
	return target == ErrDirectoryUnreadable
}
