package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"graph-persistence/internal/metadata"
	"graph-persistence/internal/store"
)

// Provisioner builds one access handle per descriptor according to the
// descriptor's storage backend.
type Provisioner struct {
	descriptors metadata.DescriptorSource
	store       *store.Store
	redis       *redis.Client
	redisPrefix string

	mu     sync.Mutex
	memory map[string]*MemoryHandle
}

type ProvisionerOption func(*Provisioner)

func WithStore(s *store.Store) ProvisionerOption {
	return func(p *Provisioner) { p.store = s }
}

func WithRedis(client *redis.Client, prefix string) ProvisionerOption {
	return func(p *Provisioner) {
		p.redis = client
		p.redisPrefix = prefix
	}
}

func NewProvisioner(descriptors metadata.DescriptorSource, opts ...ProvisionerOption) *Provisioner {
	p := &Provisioner{descriptors: descriptors, memory: make(map[string]*MemoryHandle)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handles implements the registry's handle source.
func (p *Provisioner) Handles(ctx context.Context) ([]AccessHandle, error) {
	descs, err := p.descriptors.Descriptors(ctx)
	if err != nil {
		return nil, err
	}
	handles := make([]AccessHandle, 0, len(descs))
	for _, d := range descs {
		h, err := p.handleFor(d)
		if err != nil {
			return nil, err
		}
		handles = append(handles, h)
	}
	return handles, nil
}

func (p *Provisioner) handleFor(d *metadata.Descriptor) (AccessHandle, error) {
	switch d.Storage {
	case metadata.StorageSQL:
		if p.store == nil {
			return nil, fmt.Errorf("entity %s: sql storage requested but no database is configured", d.EntityType)
		}
		return NewSQLHandle(p.store, d), nil
	case metadata.StorageRedis:
		if p.redis == nil {
			return nil, fmt.Errorf("entity %s: redis storage requested but redis is not configured", d.EntityType)
		}
		return NewRedisHandle(p.redis, p.redisPrefix, d), nil
	case metadata.StorageMemory:
		// Memory handles survive re-provisioning so their data is kept.
		p.mu.Lock()
		defer p.mu.Unlock()
		if h, ok := p.memory[d.EntityType]; ok {
			return h, nil
		}
		h := NewMemoryHandle(d)
		p.memory[d.EntityType] = h
		return h, nil
	}
	return nil, fmt.Errorf("entity %s: unknown storage %q", d.EntityType, d.Storage)
}

// StaticHandles is a fixed handle list.
type StaticHandles []AccessHandle

func (s StaticHandles) Handles(context.Context) ([]AccessHandle, error) {
	return s, nil
}
