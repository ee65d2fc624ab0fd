package adapters

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/brettbedarf/memfs"
)

// InlineSource carries content directly in the seed file.
// Exactly one of Data or Base64 must be set.
type InlineSource struct {
	Data   *string `json:"data,omitempty"`
	Base64 *string `json:"base64,omitempty"`
}

// InlineProvider builds adapters for "inline" sources
type InlineProvider struct{}

func (p *InlineProvider) NewAdapter(raw []byte) (memfs.ContentAdapter, error) {
	var src InlineSource
	if err := json.Unmarshal(raw, &src); err != nil {
		return nil, err
	}

	switch {
	case src.Data != nil && src.Base64 != nil:
		return nil, fmt.Errorf("inline source sets both data and base64")
	case src.Data != nil:
		return &InlineAdapter{content: []byte(*src.Data)}, nil
	case src.Base64 != nil:
		b, err := base64.StdEncoding.DecodeString(*src.Base64)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 inline content: %w", err)
		}
		return &InlineAdapter{content: b}, nil
	default:
		return nil, fmt.Errorf("inline source needs data or base64")
	}
}

// InlineAdapter implements [memfs.ContentAdapter] over bytes held in memory
type InlineAdapter struct {
	content []byte
}

func (a *InlineAdapter) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(a.content)), nil
}
