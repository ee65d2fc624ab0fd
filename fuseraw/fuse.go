// Package fuseraw bridges the low-level FUSE wire protocol to [fsops.FS].
package fuseraw

import (
	"time"

	"github.com/brettbedarf/memfs/config"
	"github.com/brettbedarf/memfs/fsops"
	"github.com/brettbedarf/memfs/internal/util"
	"github.com/brettbedarf/memfs/store"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// FuseRaw implements the low-level FUSE wire protocol
// It serves as protocol adapter between the FUSE and the operation adapter.
// NodeIDs handed to the kernel are the store's inode numbers.
// See https://www.man7.org/linux//man-pages/man4/fuse.4.html
type FuseRaw struct {
	fuse.RawFileSystem
	fs           *fsops.FS
	nodes        *nodeRegistry
	blockSize    uint32
	attrTimeout  time.Duration
	entryTimeout time.Duration
	server       *fuse.Server
}

// NewFuseRaw creates the bridge; cfg supplies cache timeouts and block size
func NewFuseRaw(fs *fsops.FS, cfg *config.Config) *FuseRaw {
	return &FuseRaw{
		RawFileSystem: fuse.NewDefaultRawFileSystem(),
		fs:            fs,
		nodes:         newNodeRegistry(),
		blockSize:     uint32(cfg.BlockSize),
		attrTimeout:   seconds(cfg.AttrTimeout),
		entryTimeout:  seconds(cfg.EntryTimeout),
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func (r *FuseRaw) Init(s *fuse.Server) {
	logger := util.GetLogger("Fuse.Init")
	logger.Debug().Msg("FUSE initialized")
	r.server = s
}

func (r *FuseRaw) OnUnmount() {
	logger := util.GetLogger("Fuse.OnUnmount")
	logger.Info().Msg("FUSE unmounted")
}

func (r *FuseRaw) String() string {
	return "memfs"
}

// childPath builds the path of a root entry; only the root has children
func (r *FuseRaw) childPath(parent uint64, name string) (string, fuse.Status) {
	if parent != fuse.FUSE_ROOT_ID {
		if _, ok := r.nodes.name(parent); ok {
			return "", fuse.ENOTDIR
		}
		return "", fuse.ENOENT
	}
	return "/" + name, fuse.OK
}

// resolve maps a NodeID to its path, rejecting IDs whose node was replaced
func (r *FuseRaw) resolve(nodeID uint64) (string, fuse.Status) {
	name, ok := r.nodes.name(nodeID)
	if !ok {
		return "", fuse.ENOENT
	}
	info, err := r.fs.Store().Find(name)
	if err != nil {
		return "", fsops.ToStatus(err)
	}
	if info.Ino != nodeID {
		return "", fuse.ENOENT
	}
	return pathOf(name), fuse.OK
}

// pathOf turns a store name back into an absolute path
func pathOf(name string) string {
	if name == store.RootName {
		return name
	}
	return "/" + name
}

func (r *FuseRaw) fillEntry(st fsops.Stat, out *fuse.EntryOut) {
	out.NodeId = st.Ino
	out.Generation = 1
	st.Fill(&out.Attr, r.blockSize)
	out.SetEntryTimeout(r.entryTimeout)
	out.SetAttrTimeout(r.attrTimeout)
}

// Access called when the kernel wants to know if the user has permission to access the node.
// If the 'default_permissions' mount option is given, this method is not called.
// Only the access mode on open is checked, so every existing node is accessible.
func (r *FuseRaw) Access(cancel <-chan struct{}, input *fuse.AccessIn) fuse.Status {
	logger := util.GetLogger("Fuse.Access")
	logger.Trace().Uint64("nodeID", input.NodeId).Uint32("mask", input.Mask).Msg("Access called")

	_, st := r.resolve(input.NodeId)
	return st
}

// Lookup is called by the kernel when the VFS wants to know
// about a file inside a directory. Many lookup calls can
// occur in parallel, but only one call happens for each (dir,
// name) pair.
func (r *FuseRaw) Lookup(cancel <-chan struct{}, header *fuse.InHeader, name string, out *fuse.EntryOut) fuse.Status {
	logger := util.GetLogger("Fuse.Lookup")
	logger.Debug().Uint64("parent", header.NodeId).Str("name", name).Msg("Lookup called")

	path, status := r.childPath(header.NodeId, name)
	if !status.Ok() {
		return status
	}
	st, err := r.fs.Getattr(path)
	if err != nil {
		return fsops.ToStatus(err)
	}

	r.nodes.ref(st.Ino, fsops.NameOf(path))
	r.fillEntry(st, out)
	return fuse.OK
}

// Forget is called when the kernel discards entries from its
// dentry cache. This happens on unmount, and when the kernel
// is short on memory.
func (r *FuseRaw) Forget(nodeid, nlookup uint64) {
	logger := util.GetLogger("Fuse.Forget")
	logger.Trace().Uint64("nodeID", nodeid).Uint64("nlookup", nlookup).Msg("Forget called")

	r.nodes.forget(nodeid, nlookup)
}

func (r *FuseRaw) GetAttr(cancel <-chan struct{}, input *fuse.GetAttrIn, out *fuse.AttrOut) fuse.Status {
	logger := util.GetLogger("Fuse.GetAttr")
	logger.Trace().Uint64("nodeID", input.NodeId).Msg("GetAttr called")

	name, ok := r.nodes.name(input.NodeId)
	if !ok {
		return fuse.ENOENT
	}
	st, err := r.fs.Getattr(pathOf(name))
	if err != nil {
		return fsops.ToStatus(err)
	}
	if st.Ino != input.NodeId {
		return fuse.ENOENT
	}

	st.Fill(&out.Attr, r.blockSize)
	out.SetTimeout(r.attrTimeout)
	return fuse.OK
}

// SetAttr handles truncate, chmod and utimens. Ownership changes are ignored.
func (r *FuseRaw) SetAttr(cancel <-chan struct{}, input *fuse.SetAttrIn, out *fuse.AttrOut) fuse.Status {
	logger := util.GetLogger("Fuse.SetAttr")
	logger.Debug().Uint64("nodeID", input.NodeId).Uint32("valid", input.Valid).Msg("SetAttr called")

	path, status := r.resolve(input.NodeId)
	if !status.Ok() {
		return status
	}

	if size, ok := input.GetSize(); ok {
		if err := r.fs.Truncate(path, int64(size)); err != nil {
			return fsops.ToStatus(err)
		}
	}
	if mode, ok := input.GetMode(); ok {
		if err := r.fs.Chmod(path, mode); err != nil {
			return fsops.ToStatus(err)
		}
	}
	atime, aok := input.GetATime()
	mtime, mok := input.GetMTime()
	if aok || mok {
		var ap, mp *time.Time
		if aok {
			ap = &atime
		}
		if mok {
			mp = &mtime
		}
		if err := r.fs.Utimens(path, ap, mp); err != nil {
			return fsops.ToStatus(err)
		}
	}

	st, err := r.fs.Getattr(path)
	if err != nil {
		return fsops.ToStatus(err)
	}
	st.Fill(&out.Attr, r.blockSize)
	out.SetTimeout(r.attrTimeout)
	return fuse.OK
}

func (r *FuseRaw) Open(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	logger := util.GetLogger("Fuse.Open")
	logger.Debug().Uint64("nodeID", input.NodeId).Uint32("flags", input.Flags).Msg("Open called")

	path, status := r.resolve(input.NodeId)
	if !status.Ok() {
		return status
	}
	if err := r.fs.Open(path, input.Flags); err != nil {
		return fsops.ToStatus(err)
	}
	// No per-open state: every read and write resolves the node again
	out.Fh = 0
	return fuse.OK
}

func (r *FuseRaw) Create(cancel <-chan struct{}, input *fuse.CreateIn, name string, out *fuse.CreateOut) fuse.Status {
	logger := util.GetLogger("Fuse.Create")
	logger.Debug().Uint64("parent", input.NodeId).Str("name", name).Uint32("mode", input.Mode).Msg("Create called")

	path, status := r.childPath(input.NodeId, name)
	if !status.Ok() {
		return status
	}
	// Mode already has the umask applied
	st, err := r.fs.Create(path, input.Mode)
	if err != nil {
		return fsops.ToStatus(err)
	}

	r.nodes.ref(st.Ino, fsops.NameOf(path))
	r.fillEntry(st, &out.EntryOut)
	out.OpenOut.Fh = 0
	return fuse.OK
}

func (r *FuseRaw) Read(cancel <-chan struct{}, input *fuse.ReadIn, buf []byte) (fuse.ReadResult, fuse.Status) {
	logger := util.GetLogger("Fuse.Read")
	logger.Trace().
		Uint64("nodeID", input.NodeId).
		Uint64("offset", input.Offset).
		Uint32("size", input.Size).
		Msg("Read called")

	path, status := r.resolve(input.NodeId)
	if !status.Ok() {
		return nil, status
	}
	if int(input.Size) < len(buf) {
		buf = buf[:input.Size]
	}
	n, err := r.fs.Read(path, buf, int64(input.Offset))
	if err != nil {
		return nil, fsops.ToStatus(err)
	}
	return fuse.ReadResultData(buf[:n]), fuse.OK
}

func (r *FuseRaw) Write(cancel <-chan struct{}, input *fuse.WriteIn, data []byte) (uint32, fuse.Status) {
	logger := util.GetLogger("Fuse.Write")
	logger.Trace().
		Uint64("nodeID", input.NodeId).
		Uint64("offset", input.Offset).
		Int("size", len(data)).
		Msg("Write called")

	path, status := r.resolve(input.NodeId)
	if !status.Ok() {
		return 0, status
	}
	n, err := r.fs.Write(path, data, int64(input.Offset))
	if err != nil {
		return 0, fsops.ToStatus(err)
	}
	return uint32(n), fuse.OK
}

// Release, Flush and Fsync have nothing to do: there are no handles and no backing store

func (r *FuseRaw) Release(cancel <-chan struct{}, input *fuse.ReleaseIn) {}

func (r *FuseRaw) Flush(cancel <-chan struct{}, input *fuse.FlushIn) fuse.Status {
	return fuse.OK
}

func (r *FuseRaw) Fsync(cancel <-chan struct{}, input *fuse.FsyncIn) fuse.Status {
	return fuse.OK
}

func (r *FuseRaw) Unlink(cancel <-chan struct{}, header *fuse.InHeader, name string) fuse.Status {
	logger := util.GetLogger("Fuse.Unlink")
	logger.Debug().Uint64("parent", header.NodeId).Str("name", name).Msg("Unlink called")

	path, status := r.childPath(header.NodeId, name)
	if !status.Ok() {
		return status
	}
	// The NodeID stays registered until the kernel forgets it; later calls
	// on it fail the inode check in resolve.
	return fsops.ToStatus(r.fs.Unlink(path))
}

func (r *FuseRaw) OpenDir(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	logger := util.GetLogger("Fuse.OpenDir")
	logger.Debug().Uint64("nodeID", input.NodeId).Msg("OpenDir called")

	if input.NodeId != fuse.FUSE_ROOT_ID {
		if _, st := r.resolve(input.NodeId); !st.Ok() {
			return st
		}
		return fuse.ENOTDIR
	}
	out.Fh = 0
	return fuse.OK
}

// ReadDir emits the root listing starting at input.Offset, stopping once the
// kernel buffer is full. The kernel calls again with the next offset.
func (r *FuseRaw) ReadDir(cancel <-chan struct{}, input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	logger := util.GetLogger("Fuse.ReadDir")
	logger.Debug().Uint64("nodeID", input.NodeId).Uint64("offset", input.Offset).Msg("ReadDir called")

	if input.NodeId != fuse.FUSE_ROOT_ID {
		return fuse.ENOTDIR
	}
	entries, err := r.fs.Readdir(store.RootName)
	if err != nil {
		return fsops.ToStatus(err)
	}

	for i := input.Offset; i < uint64(len(entries)); i++ {
		e := entries[i]
		if !out.AddDirEntry(fuse.DirEntry{Name: e.Name, Ino: e.Ino, Mode: e.Mode, Off: i + 1}) {
			// Buffer is full
			break
		}
	}
	return fuse.OK
}

func (r *FuseRaw) ReleaseDir(input *fuse.ReleaseIn) {}

func (r *FuseRaw) StatFs(cancel <-chan struct{}, header *fuse.InHeader, out *fuse.StatfsOut) fuse.Status {
	sb := r.fs.Statfs()
	out.Blocks = sb.TotalBlocks
	out.Bfree = sb.FreeBlocks
	out.Bavail = sb.FreeBlocks
	out.Files = sb.TotalInodes
	out.Ffree = sb.FreeInodes
	out.Bsize = sb.BlockSize
	out.Frsize = sb.BlockSize
	out.NameLen = store.NameMax
	return fuse.OK
}
