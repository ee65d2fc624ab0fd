// Package server ties the node store, the operation adapter and the kernel
// bridge together and owns the FUSE mount.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/brettbedarf/memfs"
	"github.com/brettbedarf/memfs/config"
	"github.com/brettbedarf/memfs/fsops"
	"github.com/brettbedarf/memfs/fuseraw"
	"github.com/brettbedarf/memfs/internal/util"
	"github.com/brettbedarf/memfs/metrics"
	"github.com/brettbedarf/memfs/store"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// ErrContentTooLarge is returned by a source whose content exceeds the file size limit
var ErrContentTooLarge = errors.New("content exceeds max file size")

// MemFs contains the filesystem state and operations with abstractions
// over the underlying FUSE wire protocol implementation
type MemFs struct {
	cfg   *config.Config
	store *store.Store
	fs    *fsops.FS

	mu     sync.Mutex
	server *fuse.Server
}

// New creates a MemFs instance given your config. A nil m records no metrics.
func New(cfg *config.Config, m metrics.OpMetrics) *MemFs {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	s := store.New(cfg)
	return &MemFs{
		cfg:   cfg,
		store: s,
		fs:    fsops.New(s, m),
	}
}

// FS returns the operation adapter
func (m *MemFs) FS() *fsops.FS {
	return m.fs
}

// Serve mounts and serves the filesystem at the given mountPoint.
// It returns once the kernel has completed the mount.
func (m *MemFs) Serve(mountPoint string) error {
	logger := util.GetLogger("Server.Serve")

	m.mu.Lock()
	if m.server != nil {
		m.mu.Unlock()
		return fmt.Errorf("already mounted")
	}

	raw := fuseraw.NewFuseRaw(m.fs, m.cfg)
	opts := m.cfg.MountOptions
	srv, err := fuse.NewServer(raw, mountPoint, &fuse.MountOptions{
		Name:       opts.Name,
		FsName:     opts.FsName,
		AllowOther: opts.AllowOther,
		MaxWrite:   m.cfg.MaxWrite,
		Debug:      opts.Debug || m.cfg.LogLvl == util.TraceLevel,
		Logger:     util.NewLogLogger("FuseServer", util.TraceLevel),
		// Listings go through ReadDir; lookups happen separately
		DisableReadDirPlus: true,
	})
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.server = srv
	m.mu.Unlock()

	m.store.Mount()
	logger.Debug().Str("mountPoint", mountPoint).Msg("Serving filesystem")

	go srv.Serve()
	return srv.WaitMount()
}

// ServeAsync runs Serve in a goroutine and reports its result on the returned channel
func (m *MemFs) ServeAsync(mountPoint string) <-chan error {
	done := make(chan error, 1)

	go func() {
		done <- m.Serve(mountPoint)
		close(done)
	}()

	return done
}

// Unmount cleanly unmounts the filesystem and releases all file content.
func (m *MemFs) Unmount() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.server == nil {
		return nil
	}
	if err := m.server.Unmount(); err != nil {
		return err
	}
	m.server = nil
	return m.store.Close()
}

// AddFileNode seeds a file from the request's sources. Sources are tried in
// priority order and the first one that yields content wins. The node is only
// created once content is in hand, so a request whose sources all fail leaves
// no trace.
func (m *MemFs) AddFileNode(ctx context.Context, req *memfs.FileCreateRequest) (store.Attr, error) {
	logger := util.GetLogger("Server.AddFileNode")

	if req == nil || req.Path == "" {
		return store.Attr{}, fmt.Errorf("%w: request needs a path", store.ErrInvalid)
	}
	path := "/" + req.Path

	if _, err := m.store.Find(fsops.NameOf(path)); err == nil {
		return store.Attr{}, fmt.Errorf("file %s: %w", req.Path, store.ErrExists)
	}

	content, err := m.fetch(ctx, req)
	if err != nil {
		logger.Error().Err(err).Str("path", req.Path).Msg("No source produced content")
		return store.Attr{}, err
	}

	if _, err := m.fs.Create(path, req.Perms); err != nil {
		return store.Attr{}, fmt.Errorf("file %s: %w", req.Path, err)
	}
	if _, err := m.fs.Write(path, content, 0); err != nil {
		// keep the namespace clean when the content cannot be stored
		_ = m.fs.Unlink(path)
		return store.Attr{}, fmt.Errorf("file %s: %w", req.Path, err)
	}

	var atime, mtime *time.Time
	if !req.Atime.IsZero() {
		atime = &req.Atime
	}
	if !req.Mtime.IsZero() {
		mtime = &req.Mtime
	}
	if atime != nil || mtime != nil {
		if err := m.fs.Utimens(path, atime, mtime); err != nil {
			return store.Attr{}, fmt.Errorf("file %s: %w", req.Path, err)
		}
	}

	st, err := m.fs.Getattr(path)
	if err != nil {
		return store.Attr{}, err
	}
	logger.Debug().Str("path", req.Path).Uint64("size", st.Size).Msg("Added new file node")
	return st.Attr, nil
}

// fetch returns the content of the first source, in priority order, that succeeds
func (m *MemFs) fetch(ctx context.Context, req *memfs.FileCreateRequest) ([]byte, error) {
	logger := util.GetLogger("Server.fetch")

	var errs []error
	for _, src := range memfs.SortSources(req.Sources) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if src.Adapter == nil {
			continue
		}
		data, err := m.readSource(ctx, src.Adapter)
		if err != nil {
			logger.Warn().Err(err).Str("path", req.Path).Str("type", src.Type).Msg("Source failed, trying next")
			errs = append(errs, fmt.Errorf("%s source: %w", src.Type, err))
			continue
		}
		return data, nil
	}
	return nil, fmt.Errorf("file %s: %w", req.Path, errors.Join(append([]error{memfs.ErrNoSource}, errs...)...))
}

func (m *MemFs) readSource(ctx context.Context, a memfs.ContentAdapter) ([]byte, error) {
	rc, err := a.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close() // nolint:errcheck

	limit := int64(m.cfg.MaxFileSize)
	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w (%d bytes)", ErrContentTooLarge, limit)
	}
	return data, nil
}
