// Package fsops translates path-addressed filesystem calls into [store.Store]
// operations. No per-open state is kept: every call resolves its path again.
package fsops

import (
	"strings"
	"syscall"
	"time"

	"github.com/brettbedarf/memfs/internal/util"
	"github.com/brettbedarf/memfs/metrics"
	"github.com/brettbedarf/memfs/store"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// Link counts reported by Getattr; they are fixed, not counted
const (
	DirNlink  = 2
	FileNlink = 1
)

// Stat is the result of Getattr: the node's attributes plus its link count
type Stat struct {
	store.Attr
	Nlink uint32
}

// Fill copies the stat into a kernel attribute block
func (s Stat) Fill(out *fuse.Attr, blockSize uint32) {
	out.Ino = s.Ino
	out.Size = s.Size
	out.Mode = s.FullMode()
	out.Nlink = s.Nlink
	out.Blksize = blockSize
	out.Blocks = (s.Size + 511) / 512
	out.SetTimes(&s.Atime, &s.Mtime, &s.Ctime)
}

// DirEntry is one line of a directory listing
type DirEntry struct {
	Name string
	Ino  uint64
	Mode uint32 // type bits only
}

// FS is the operation adapter over a single store
type FS struct {
	store   *store.Store
	metrics metrics.OpMetrics
}

// New creates an adapter over s. A nil m records no metrics.
func New(s *store.Store, m metrics.OpMetrics) *FS {
	if m == nil {
		m = metrics.NewNoopOpMetrics()
	}
	f := &FS{store: s, metrics: m}
	f.publishCapacity()
	return f
}

// Store returns the underlying store
func (f *FS) Store() *store.Store {
	return f.store
}

// NameOf strips one leading separator. "/" stays the root name; any further
// separators are part of the name.
func NameOf(path string) string {
	if path == store.RootName {
		return path
	}
	return strings.TrimPrefix(path, "/")
}

func (f *FS) observe(op string, start time.Time, err error) {
	f.metrics.RecordOp(op, StatusName(ToStatus(err)), time.Since(start))
}

func (f *FS) publishCapacity() {
	sb := f.store.Statfs()
	f.metrics.SetCapacity(f.store.Len(), sb.FreeInodes, sb.FreeBlocks)
}

// Getattr returns the attributes of path
func (f *FS) Getattr(path string) (st Stat, err error) {
	defer func(start time.Time) { f.observe("getattr", start, err) }(time.Now())

	attr, err := f.store.Attributes(NameOf(path))
	if err != nil {
		return Stat{}, err
	}
	return statOf(attr), nil
}

func statOf(attr store.Attr) Stat {
	nlink := uint32(FileNlink)
	if attr.IsDir() {
		nlink = DirNlink
	}
	return Stat{Attr: attr, Nlink: nlink}
}

// Readdir lists the root: ".", "..", then every node newest first.
// Any other path is ErrNotFound.
func (f *FS) Readdir(path string) (entries []DirEntry, err error) {
	defer func(start time.Time) { f.observe("readdir", start, err) }(time.Now())
	logger := util.GetLogger("FsOps.Readdir")

	if path != store.RootName {
		return nil, store.ErrNotFound
	}
	root, err := f.store.Find(store.RootName)
	if err != nil {
		return nil, err
	}

	children := f.store.Children()
	entries = make([]DirEntry, 0, len(children)+2)
	entries = append(entries,
		DirEntry{Name: ".", Ino: root.Ino, Mode: syscall.S_IFDIR},
		DirEntry{Name: "..", Ino: root.Ino, Mode: syscall.S_IFDIR},
	)
	for _, c := range children {
		entries = append(entries, DirEntry{Name: c.Name, Ino: c.Ino, Mode: c.Kind.TypeBits()})
	}
	logger.Trace().Int("count", len(children)).Msg("Listed root")
	return entries, nil
}

// Open checks that path exists and that flags request read-only access.
// Any other access mode fails with ErrPermission.
func (f *FS) Open(path string, flags uint32) (err error) {
	defer func(start time.Time) { f.observe("open", start, err) }(time.Now())
	logger := util.GetLogger("FsOps.Open")

	if _, err := f.store.Find(NameOf(path)); err != nil {
		return err
	}
	if flags&syscall.O_ACCMODE != syscall.O_RDONLY {
		logger.Debug().Str("path", path).Uint32("flags", flags).Msg("Rejected non read-only open")
		return store.ErrPermission
	}
	return nil
}

// Create adds an empty file at path with the permission bits of mode
func (f *FS) Create(path string, mode uint32) (st Stat, err error) {
	defer func(start time.Time) { f.observe("create", start, err) }(time.Now())

	attr, err := f.store.Create(NameOf(path), mode&store.PermMask)
	if err != nil {
		return Stat{}, err
	}
	f.publishCapacity()
	return statOf(attr), nil
}

// Read fills buf from path's content at offset and returns the byte count
func (f *FS) Read(path string, buf []byte, offset int64) (n int, err error) {
	defer func(start time.Time) { f.observe("read", start, err) }(time.Now())

	data, err := f.store.Read(NameOf(path), offset, len(buf))
	if err != nil {
		return 0, err
	}
	n = copy(buf, data)
	f.metrics.RecordBytes(metrics.DirectionRead, n)
	return n, nil
}

// Write stores data at offset in path and returns the byte count
func (f *FS) Write(path string, data []byte, offset int64) (n int, err error) {
	defer func(start time.Time) { f.observe("write", start, err) }(time.Now())

	n, err = f.store.Write(NameOf(path), offset, data)
	if err != nil {
		return 0, err
	}
	f.metrics.RecordBytes(metrics.DirectionWrite, n)
	f.publishCapacity()
	return n, nil
}

// Unlink removes path
func (f *FS) Unlink(path string) (err error) {
	defer func(start time.Time) { f.observe("unlink", start, err) }(time.Now())

	if err = f.store.Remove(NameOf(path)); err != nil {
		return err
	}
	f.publishCapacity()
	return nil
}

// Truncate resizes path to size bytes
func (f *FS) Truncate(path string, size int64) (err error) {
	defer func(start time.Time) { f.observe("truncate", start, err) }(time.Now())

	if err = f.store.Truncate(NameOf(path), size); err != nil {
		return err
	}
	f.publishCapacity()
	return nil
}

// Chmod replaces path's permission bits
func (f *FS) Chmod(path string, mode uint32) (err error) {
	defer func(start time.Time) { f.observe("chmod", start, err) }(time.Now())
	return f.store.Chmod(NameOf(path), mode&store.PermMask)
}

// Utimens sets access and modification times; nil leaves one unchanged
func (f *FS) Utimens(path string, atime, mtime *time.Time) (err error) {
	defer func(start time.Time) { f.observe("utimens", start, err) }(time.Now())
	return f.store.SetTimes(NameOf(path), atime, mtime)
}

// Statfs reports the superblock counters
func (f *FS) Statfs() store.Superblock {
	defer func(start time.Time) { f.observe("statfs", start, nil) }(time.Now())
	return f.store.Statfs()
}
