package api

import (
	"context"
	"sync"

	"github.com/samcharles93/perceptual/internal/pim"
)

// ModelProvider resolves PIM models by name.
type ModelProvider interface {
	Model(ctx context.Context, name string) (*pim.Model, error)
	List() ([]pim.CachedModel, error)
}

// CachedModelProvider loads models through a pim.Loader once and keeps them.
type CachedModelProvider struct {
	loader       *pim.Loader
	weightsCache string

	mu     sync.Mutex
	models map[string]*modelEntry
}

type modelEntry struct {
	once  sync.Once
	model *pim.Model
	err   error
}

// NewCachedModelProvider returns a provider loading through loader into
// weightsCache. Nil and empty arguments take the pim defaults.
func NewCachedModelProvider(loader *pim.Loader, weightsCache string) *CachedModelProvider {
	if loader == nil {
		loader = pim.NewLoader()
	}
	if weightsCache == "" {
		weightsCache = pim.DefaultWeightsCache()
	}
	return &CachedModelProvider{
		loader:       loader,
		weightsCache: weightsCache,
		models:       make(map[string]*modelEntry),
	}
}

// Model loads name on first use. Concurrent first requests share one load,
// which keeps the single-writer weights cache safe within this process.
// The shared load ignores cancellation of the request that started it.
// Failed loads are not memoized.
func (p *CachedModelProvider) Model(ctx context.Context, name string) (*pim.Model, error) {
	if err := pim.ValidateName(name); err != nil {
		return nil, err
	}
	p.mu.Lock()
	entry, ok := p.models[name]
	if !ok {
		entry = &modelEntry{}
		p.models[name] = entry
	}
	p.mu.Unlock()

	loadCtx := context.WithoutCancel(ctx)
	entry.once.Do(func() {
		entry.model, entry.err = p.loader.LoadTrained(loadCtx, name, p.weightsCache)
	})
	if entry.err != nil {
		p.mu.Lock()
		if p.models[name] == entry {
			delete(p.models, name)
		}
		p.mu.Unlock()
		return nil, entry.err
	}
	return entry.model, nil
}

// List returns the models present in the weights cache.
func (p *CachedModelProvider) List() ([]pim.CachedModel, error) {
	return pim.ListCached(p.weightsCache)
}
