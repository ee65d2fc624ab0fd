package fsops

import (
	"errors"
	"syscall"

	"github.com/brettbedarf/memfs/store"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// Errno statuses go-fuse has no named constant for
const (
	EEXIST = fuse.Status(syscall.EEXIST)
	ENOMEM = fuse.Status(syscall.ENOMEM)
	EBUSY  = fuse.Status(syscall.EBUSY)
	EIO    = fuse.Status(syscall.EIO)
)

// ToStatus maps a store error to the errno reported to the kernel.
// Unknown errors become EIO.
func ToStatus(err error) fuse.Status {
	switch {
	case err == nil:
		return fuse.OK
	case errors.Is(err, store.ErrNotFound):
		return fuse.ENOENT
	case errors.Is(err, store.ErrExists):
		return EEXIST
	case errors.Is(err, store.ErrNoMemory):
		return ENOMEM
	case errors.Is(err, store.ErrPermission):
		return fuse.EACCES
	case errors.Is(err, store.ErrIsDir):
		return fuse.EISDIR
	case errors.Is(err, store.ErrInvalid):
		return fuse.EINVAL
	case errors.Is(err, store.ErrRootBusy):
		return EBUSY
	default:
		return EIO
	}
}

var statusNames = map[fuse.Status]string{
	fuse.OK:      "OK",
	fuse.ENOENT:  "ENOENT",
	EEXIST:       "EEXIST",
	ENOMEM:       "ENOMEM",
	fuse.EACCES:  "EACCES",
	fuse.EISDIR:  "EISDIR",
	fuse.ENOTDIR: "ENOTDIR",
	fuse.EINVAL:  "EINVAL",
	EBUSY:        "EBUSY",
	EIO:          "EIO",
	fuse.EBADF:   "EBADF",
	fuse.ENOSYS:  "ENOSYS",
}

// StatusName returns the errno symbol for st, used as a metrics label
func StatusName(st fuse.Status) string {
	if name, ok := statusNames[st]; ok {
		return name
	}
	return st.String()
}
