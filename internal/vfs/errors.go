package vfs

import "errors"

// Structural inconsistencies fail the offending request only; the mount keeps
// serving subsequent requests.
var (
	ErrInodeNotFound  = errors.New("inode not found")
	ErrParentNotFound = errors.New("parent inode not found")
	ErrChildNotFound  = errors.New("no child with that name")
	ErrRecordMissing  = errors.New("file record missing")
)

// IsNotFound reports whether err belongs to the not-found class the kernel
// boundary maps to ENOENT.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrInodeNotFound) ||
		errors.Is(err, ErrParentNotFound) ||
		errors.Is(err, ErrChildNotFound) ||
		errors.Is(err, ErrRecordMissing)
}
