// Package adapters holds the content source registry and the built-in
// source types used to seed files.
package adapters

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/brettbedarf/memfs"
	"github.com/puzpuzpuz/xsync/v4"
)

// ErrUnknownType is returned for a source type with no registered provider
var ErrUnknownType = errors.New("unknown source type")

// Registry maps source type keys to their providers
type Registry struct {
	providers *xsync.Map[string, memfs.AdapterProvider]
}

// NewRegistry creates an empty registry. See [RegisterBuiltins].
func NewRegistry() *Registry {
	return &Registry{providers: xsync.NewMap[string, memfs.AdapterProvider]()}
}

// Register ties a provider to a "type" key. The first registration for a key wins.
func (r *Registry) Register(adapterType string, provider memfs.AdapterProvider) {
	r.providers.LoadOrStore(adapterType, provider)
}

// GetProvider returns the provider registered for adapterType
func (r *Registry) GetProvider(adapterType string) (memfs.AdapterProvider, error) {
	p, ok := r.providers.Load(adapterType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, adapterType)
	}
	return p, nil
}

// SourceType extracts the "type" field of a raw source config
func SourceType(raw []byte) (string, error) {
	var meta struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return "", err
	}
	if meta.Type == "" {
		return "", fmt.Errorf("source config is missing the type field")
	}
	return meta.Type, nil
}

// NewAdapter builds an adapter from a raw source config, picking the
// provider by its "type" field
func (r *Registry) NewAdapter(raw []byte) (memfs.ContentAdapter, error) {
	adapterType, err := SourceType(raw)
	if err != nil {
		return nil, err
	}
	p, err := r.GetProvider(adapterType)
	if err != nil {
		return nil, err
	}
	return p.NewAdapter(raw)
}
