package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/brettbedarf/memfs"
)

// LocalFileSource reads content from a local file
type LocalFileSource struct {
	Path string `json:"path" validate:"required"`
}

// FileProvider builds adapters for "file" sources
type FileProvider struct{}

func (p *FileProvider) NewAdapter(raw []byte) (memfs.ContentAdapter, error) {
	var src LocalFileSource
	if err := json.Unmarshal(raw, &src); err != nil {
		return nil, err
	}
	if err := validate.Struct(src); err != nil {
		return nil, fmt.Errorf("invalid file source: %w", err)
	}
	return &FileAdapter{path: filepath.Clean(src.Path)}, nil
}

// FileAdapter implements [memfs.ContentAdapter] for local files
type FileAdapter struct {
	path string
}

func (a *FileAdapter) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(a.path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if st.IsDir() {
		f.Close()
		return nil, fmt.Errorf("file source %s is a directory", a.path)
	}
	return f, nil
}
