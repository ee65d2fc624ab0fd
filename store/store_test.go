package store

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/brettbedarf/memfs/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock hands out a fixed time that tests advance explicitly
type fakeClock struct {
	mu  sync.Mutex
	cur time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(d)
	return c.cur
}

func emptyConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.DemoFile = false
	return cfg
}

func newTestStore(t *testing.T, cfg *config.Config) (*Store, *fakeClock) {
	t.Helper()
	s := New(cfg)
	clock := &fakeClock{cur: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	s.now = clock.Now
	t.Cleanup(func() { _ = s.Close() })
	return s, clock
}

func TestNew_Bootstrap(t *testing.T) {
	t.Parallel()

	s := New(nil)
	defer s.Close()

	root, err := s.Find(RootName)
	require.NoError(t, err)
	assert.Equal(t, RootName, root.Name)
	assert.Equal(t, KindDirectory, root.Kind)
	assert.Equal(t, uint32(0o755), root.Mode)
	assert.Equal(t, uint64(1), root.Ino)
	assert.Equal(t, uint64(0), root.Size)

	hello, err := s.Find(DemoFileName)
	require.NoError(t, err)
	assert.Equal(t, KindFile, hello.Kind)
	assert.Equal(t, uint32(DemoFileMode), hello.Mode)
	assert.Equal(t, uint64(len(DemoFileContent)), hello.Size)
	assert.NotEqual(t, root.ID, hello.ID)

	data, err := s.Read(DemoFileName, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, "Hello World\n", string(data))
	assert.Equal(t, []string{DemoFileName}, s.ListChildren())
}

func TestNew_WithoutDemoFile(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t, emptyConfig())

	assert.Empty(t, s.ListChildren())
	assert.Equal(t, 0, s.Len())
	_, err := s.Find(DemoFileName)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreate(t *testing.T) {
	t.Parallel()

	s, clock := newTestStore(t, emptyConfig())
	now := clock.Advance(time.Minute)

	attr, err := s.Create("a", 0o640)
	require.NoError(t, err)
	assert.Equal(t, KindFile, attr.Kind)
	assert.Equal(t, uint32(0o640), attr.Mode)
	assert.Equal(t, uint64(0), attr.Size)
	assert.True(t, attr.Atime.Equal(now))
	assert.True(t, attr.Mtime.Equal(now))
	assert.True(t, attr.Ctime.Equal(now))
	assert.Equal(t, uint32(0o100640), attr.FullMode())

	got, err := s.Attributes("a")
	require.NoError(t, err)
	assert.Equal(t, attr, got)
}

func TestCreate_Errors(t *testing.T) {
	t.Parallel()

	long := string(bytes.Repeat([]byte("x"), NameMax+1))
	tests := []struct {
		name    string
		create  string
		wantErr error
	}{
		{"duplicate", "dup", ErrExists},
		{"root_name", RootName, ErrExists},
		{"empty", "", ErrInvalid},
		{"too_long", long, ErrInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, _ := newTestStore(t, emptyConfig())
			_, err := s.Create("dup", 0o644)
			require.NoError(t, err)

			_, err = s.Create(tt.create, 0o644)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 1, s.Len(), "failed create must not add a node")
		})
	}
}

func TestCreate_MasksPermissionBits(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t, emptyConfig())
	attr, err := s.Create("f", 0o100644)
	require.NoError(t, err)
	assert.Equal(t, uint32(0o644), attr.Mode)
}

func TestCreate_UniqueInodes(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t, emptyConfig())
	a, err := s.Create("a", 0o644)
	require.NoError(t, err)
	require.NoError(t, s.Remove("a"))
	b, err := s.Create("a", 0o644)
	require.NoError(t, err)

	assert.Greater(t, b.Ino, a.Ino, "inode numbers are never reused")
	assert.Greater(t, a.Ino, uint64(1))
}

func TestListChildren_NewestFirst(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t, emptyConfig())
	for _, name := range []string{"a", "b", "c"} {
		_, err := s.Create(name, 0o644)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"c", "b", "a"}, s.ListChildren())

	require.NoError(t, s.Remove("b"))
	assert.Equal(t, []string{"c", "a"}, s.ListChildren())

	infos := s.Children()
	require.Len(t, infos, 2)
	assert.Equal(t, "c", infos[0].Name)
	assert.Equal(t, "a", infos[1].Name)
}

func TestRead(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t, emptyConfig())
	_, err := s.Create("f", 0o644)
	require.NoError(t, err)
	_, err = s.Write("f", 0, []byte("0123456789"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		offset int64
		maxLen int
		want   string
	}{
		{"whole", 0, 100, "0123456789"},
		{"prefix", 0, 4, "0123"},
		{"middle", 3, 4, "3456"},
		{"clamped_tail", 8, 10, "89"},
		{"at_end", 10, 5, ""},
		{"past_end", 50, 5, ""},
		{"zero_len", 2, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			data, err := s.Read("f", tt.offset, tt.maxLen)
			require.NoError(t, err)
			assert.NotNil(t, data)
			assert.Equal(t, tt.want, string(data))
		})
	}
}

func TestRead_Errors(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t, emptyConfig())
	_, err := s.Create("f", 0o644)
	require.NoError(t, err)

	_, err = s.Read("missing", 0, 1)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Read(RootName, 0, 1)
	assert.ErrorIs(t, err, ErrIsDir)
	_, err = s.Read("f", -1, 1)
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = s.Read("f", 0, -1)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestRead_ReturnsCopy(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t, emptyConfig())
	_, err := s.Create("f", 0o644)
	require.NoError(t, err)
	_, err = s.Write("f", 0, []byte("abc"))
	require.NoError(t, err)

	data, err := s.Read("f", 0, 3)
	require.NoError(t, err)
	data[0] = 'X'

	again, err := s.Read("f", 0, 3)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again))
}

func TestRead_RefreshesAtime(t *testing.T) {
	t.Parallel()

	s, clock := newTestStore(t, emptyConfig())
	_, err := s.Create("f", 0o644)
	require.NoError(t, err)
	before, err := s.Attributes("f")
	require.NoError(t, err)

	later := clock.Advance(time.Hour)
	_, err = s.Read("f", 0, 1)
	require.NoError(t, err)

	after, err := s.Attributes("f")
	require.NoError(t, err)
	assert.True(t, after.Atime.Equal(later))
	assert.Equal(t, before.Mtime, after.Mtime, "read must not touch mtime")
}

func TestWrite(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		initial string
		offset  int64
		data    string
		want    string
	}{
		{"empty_file", "", 0, "hello", "hello"},
		{"overwrite_inside", "hello world", 6, "WORLD", "hello WORLD"},
		{"extend_tail", "hello", 3, "p me", "help me"},
		{"append", "abc", 3, "def", "abcdef"},
		{"sparse_gap_zero_filled", "ab", 5, "cd", "ab\x00\x00\x00cd"},
		{"sparse_from_empty", "", 3, "x", "\x00\x00\x00x"},
		{"zero_length_inside", "abc", 1, "", "abc"},
		{"zero_length_past_end_extends", "abc", 5, "", "abc\x00\x00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, _ := newTestStore(t, emptyConfig())
			_, err := s.Create("f", 0o644)
			require.NoError(t, err)
			if tt.initial != "" {
				_, err = s.Write("f", 0, []byte(tt.initial))
				require.NoError(t, err)
			}

			n, err := s.Write("f", tt.offset, []byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, len(tt.data), n)

			attr, err := s.Attributes("f")
			require.NoError(t, err)
			assert.Equal(t, uint64(len(tt.want)), attr.Size, "size must equal content length")

			got, err := s.Read("f", 0, len(tt.want)+10)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestWrite_ZeroFillAfterShrink(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t, emptyConfig())
	_, err := s.Create("f", 0o644)
	require.NoError(t, err)
	_, err = s.Write("f", 0, []byte("secretdata"))
	require.NoError(t, err)
	require.NoError(t, s.Truncate("f", 2))

	// regrowing into old capacity must not resurrect stale bytes
	_, err = s.Write("f", 8, []byte("!"))
	require.NoError(t, err)

	got, err := s.Read("f", 0, 20)
	require.NoError(t, err)
	assert.Equal(t, "se\x00\x00\x00\x00\x00\x00!", string(got))
}

func TestWrite_RefreshesMtime(t *testing.T) {
	t.Parallel()

	s, clock := newTestStore(t, emptyConfig())
	_, err := s.Create("f", 0o644)
	require.NoError(t, err)

	later := clock.Advance(time.Hour)
	_, err = s.Write("f", 0, []byte("x"))
	require.NoError(t, err)

	attr, err := s.Attributes("f")
	require.NoError(t, err)
	assert.True(t, attr.Mtime.Equal(later))
	assert.True(t, s.Statfs().WriteTime.Equal(later))
}

func TestWrite_NoMemoryLeavesStoreUnchanged(t *testing.T) {
	t.Parallel()

	cfg := emptyConfig()
	cfg.MaxFileSize = 8
	s, clock := newTestStore(t, cfg)
	_, err := s.Create("f", 0o644)
	require.NoError(t, err)
	_, err = s.Write("f", 0, []byte("abcd"))
	require.NoError(t, err)
	before, err := s.Attributes("f")
	require.NoError(t, err)
	sbBefore := s.Statfs()

	clock.Advance(time.Hour)
	n, err := s.Write("f", 4, []byte("efghi"))
	assert.ErrorIs(t, err, ErrNoMemory)
	assert.Zero(t, n)

	after, err := s.Attributes("f")
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, sbBefore, s.Statfs())
	got, err := s.Read("f", 0, 100)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(got))

	// exactly at the ceiling is fine
	_, err = s.Write("f", 4, []byte("efgh"))
	assert.NoError(t, err)
}

func TestWrite_Errors(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t, emptyConfig())
	_, err := s.Create("f", 0o644)
	require.NoError(t, err)

	_, err = s.Write("missing", 0, []byte("x"))
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Write(RootName, 0, []byte("x"))
	assert.ErrorIs(t, err, ErrIsDir)
	_, err = s.Write("f", -1, []byte("x"))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		size int64
		want string
	}{
		{"shrink", 3, "abc"},
		{"same", 6, "abcdef"},
		{"grow_zero_filled", 8, "abcdef\x00\x00"},
		{"to_zero", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, _ := newTestStore(t, emptyConfig())
			_, err := s.Create("f", 0o644)
			require.NoError(t, err)
			_, err = s.Write("f", 0, []byte("abcdef"))
			require.NoError(t, err)

			require.NoError(t, s.Truncate("f", tt.size))

			attr, err := s.Attributes("f")
			require.NoError(t, err)
			assert.Equal(t, uint64(tt.size), attr.Size)
			got, err := s.Read("f", 0, 100)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestTruncate_Errors(t *testing.T) {
	t.Parallel()

	cfg := emptyConfig()
	cfg.MaxFileSize = 16
	s, _ := newTestStore(t, cfg)
	_, err := s.Create("f", 0o644)
	require.NoError(t, err)

	assert.ErrorIs(t, s.Truncate("missing", 1), ErrNotFound)
	assert.ErrorIs(t, s.Truncate(RootName, 1), ErrIsDir)
	assert.ErrorIs(t, s.Truncate("f", -1), ErrInvalid)
	assert.ErrorIs(t, s.Truncate("f", 17), ErrNoMemory)
}

func TestChmodAndSetTimes(t *testing.T) {
	t.Parallel()

	s, clock := newTestStore(t, emptyConfig())
	_, err := s.Create("f", 0o644)
	require.NoError(t, err)

	changed := clock.Advance(time.Minute)
	require.NoError(t, s.Chmod("f", 0o100600))
	attr, err := s.Attributes("f")
	require.NoError(t, err)
	assert.Equal(t, uint32(0o600), attr.Mode)
	assert.True(t, attr.Ctime.Equal(changed))

	at := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	mt := time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.SetTimes("f", &at, nil))
	require.NoError(t, s.SetTimes("f", nil, &mt))
	attr, err = s.Attributes("f")
	require.NoError(t, err)
	assert.True(t, attr.Atime.Equal(at))
	assert.True(t, attr.Mtime.Equal(mt))

	assert.ErrorIs(t, s.Chmod("missing", 0o644), ErrNotFound)
	assert.ErrorIs(t, s.SetTimes("missing", &at, &mt), ErrNotFound)
}

func TestRemove(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t, emptyConfig())
	_, err := s.Create("f", 0o644)
	require.NoError(t, err)
	_, err = s.Write("f", 0, []byte("data"))
	require.NoError(t, err)

	require.NoError(t, s.Remove("f"))

	_, err = s.Find("f")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Remove("f"), ErrNotFound)
	assert.Empty(t, s.ListChildren())

	// name is free again
	attr, err := s.Create("f", 0o644)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), attr.Size)
}

func TestRemove_RootRejected(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t, emptyConfig())
	assert.ErrorIs(t, s.Remove(RootName), ErrRootBusy)

	_, err := s.Find(RootName)
	assert.NoError(t, err)
}

func TestStatfs_Counters(t *testing.T) {
	t.Parallel()

	cfg := emptyConfig()
	s, _ := newTestStore(t, cfg)
	sb := s.Statfs()

	totalBlocks := uint64(cfg.FsSize / cfg.BlockSize)
	assert.Equal(t, uint64(cfg.FsSize), sb.FsSize)
	assert.Equal(t, uint32(cfg.BlockSize), sb.BlockSize)
	assert.Equal(t, totalBlocks, sb.TotalBlocks)
	assert.Equal(t, totalBlocks-1, sb.FreeBlocks)
	assert.Equal(t, uint64(cfg.TotalInodes), sb.TotalInodes)
	assert.Equal(t, uint64(cfg.TotalInodes-1), sb.FreeInodes)
	assert.Equal(t, uint32(cfg.MaxMountCount), sb.MaxMountCount)

	_, err := s.Create("f", 0o644)
	require.NoError(t, err)
	_, err = s.Write("f", 0, make([]byte, cfg.BlockSize+1))
	require.NoError(t, err)

	sb = s.Statfs()
	assert.Equal(t, uint64(cfg.TotalInodes-2), sb.FreeInodes)
	assert.Equal(t, totalBlocks-3, sb.FreeBlocks)

	require.NoError(t, s.Truncate("f", 1))
	assert.Equal(t, totalBlocks-2, s.Statfs().FreeBlocks)

	require.NoError(t, s.Remove("f"))
	sb = s.Statfs()
	assert.Equal(t, uint64(cfg.TotalInodes-1), sb.FreeInodes)
	assert.Equal(t, totalBlocks-1, sb.FreeBlocks)
}

func TestStatfs_InodeCounterSaturates(t *testing.T) {
	t.Parallel()

	cfg := emptyConfig()
	cfg.TotalInodes = 2
	s, _ := newTestStore(t, cfg)

	for i := range 4 {
		_, err := s.Create(fmt.Sprintf("f%d", i), 0o644)
		require.NoError(t, err, "counters never block creation")
	}
	assert.Equal(t, uint64(0), s.Statfs().FreeInodes)
}

func TestMount(t *testing.T) {
	t.Parallel()

	cfg := emptyConfig()
	cfg.MaxMountCount = 1
	s, clock := newTestStore(t, cfg)

	now := clock.Advance(time.Minute)
	s.Mount()
	s.Mount()

	sb := s.Statfs()
	assert.Equal(t, uint32(2), sb.MountCount)
	assert.True(t, sb.MountTime.Equal(now))
}

func TestClose(t *testing.T) {
	t.Parallel()

	s := New(nil)
	require.NoError(t, s.Close())

	assert.Equal(t, 0, s.Len())
	_, err := s.Find(DemoFileName)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Find(RootName)
	assert.NoError(t, err)
	assert.Equal(t, uint64(config.DefaultTotalInodes-1), s.Statfs().FreeInodes)
}

func TestConcurrentAccess(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t, emptyConfig())
	_, err := s.Create("shared", 0o644)
	require.NoError(t, err)

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers*3)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := fmt.Sprintf("f%d", i)
			if _, err := s.Create(name, 0o644); err != nil {
				errs <- err
				return
			}
			if _, err := s.Write("shared", int64(i), []byte{byte('a' + i)}); err != nil {
				errs <- err
			}
			if _, err := s.Read("shared", 0, workers); err != nil {
				errs <- err
			}
			_ = s.ListChildren()
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	assert.Equal(t, workers+1, s.Len())
	got, err := s.Read("shared", 0, workers)
	require.NoError(t, err)
	for i := range workers {
		assert.Equal(t, byte('a'+i), got[i])
	}
}

func TestConcurrentCreate_SameName(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t, emptyConfig())

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Create("race", 0o644)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ErrExists) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, s.Len())
}

func TestResize(t *testing.T) {
	t.Parallel()

	buf := make([]byte, 4, 16)
	copy(buf, "abcd")
	buf = resize(buf, 2)
	assert.Equal(t, "ab", string(buf))
	buf = resize(buf, 6)
	assert.Equal(t, "ab\x00\x00\x00\x00", string(buf))
	buf = resize(buf, 32)
	assert.Len(t, buf, 32)
	assert.Equal(t, "ab", string(buf[:2]))
	assert.Equal(t, make([]byte, 30), buf[2:])
}
