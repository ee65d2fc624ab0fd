package store

import "errors"

// Sentinel errors returned by [Store] operations. Compare with errors.Is.
var (
	ErrNotFound   = errors.New("no such node")
	ErrExists     = errors.New("node already exists")
	ErrNoMemory   = errors.New("cannot allocate content")
	ErrPermission = errors.New("permission denied")
	ErrIsDir      = errors.New("is a directory")
	ErrInvalid    = errors.New("invalid argument")
	ErrRootBusy   = errors.New("root cannot be removed")
)
