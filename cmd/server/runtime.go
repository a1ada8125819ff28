package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"graph-persistence/internal/config"
	"graph-persistence/internal/dynattr"
	"graph-persistence/internal/metadata"
	"graph-persistence/internal/registry"
	"graph-persistence/internal/repository"
	"graph-persistence/internal/store"
)

// runtime holds the wired components shared by the commands.
type runtime struct {
	cfg         *config.Config
	logger      *zap.Logger
	store       *store.Store
	redis       *redis.Client
	schema      *metadata.Snapshot
	descriptors []*metadata.Descriptor
	registry    *registry.Registry
	setters     *dynattr.Registry
}

func (r *runtime) Close() {
	if r.redis != nil {
		r.redis.Close()
	}
	if r.store != nil {
		r.store.Close()
	}
}

// buildRuntime opens the backends, scans descriptors once and wires the
// registry. The registry is not initialized yet.
func buildRuntime(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*runtime, error) {
	scanner, err := metadata.NewDirectoryScanner(cfg.Schema.Sources)
	if err != nil {
		return nil, err
	}
	schema := metadata.NewSnapshot(scanner)
	descs, err := schema.Descriptors(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan descriptors: %w", err)
	}
	logger.Info("descriptors scanned", zap.Strings("sources", scanner.Sources()), zap.Int("count", len(descs)))

	setters, err := dynattr.FromDescriptors(descs)
	if err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg, logger: logger, schema: schema, descriptors: descs, setters: setters}
	rt.store, err = store.New(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := rt.store.Bootstrap(ctx); err != nil {
		rt.Close()
		return nil, err
	}
	logger.Info("database connected", zap.String("driver", rt.store.Dialect.Name()))

	if cfg.Schema.AutoMigrate {
		if err := store.NewMigrator(rt.store, logger).MigrateAll(ctx, descs); err != nil {
			rt.Close()
			return nil, fmt.Errorf("auto-migrate: %w", err)
		}
	}

	opts := []repository.ProvisionerOption{repository.WithStore(rt.store)}
	if cfg.Redis.Enabled() {
		rt.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rt.redis.Ping(ctx).Err(); err != nil {
			rt.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		opts = append(opts, repository.WithRedis(rt.redis, cfg.Redis.KeyPrefix))
	}

	rt.registry = registry.New(rt.store, schema, repository.NewProvisioner(schema, opts...), logger)
	return rt, nil
}

// Reload rescans the descriptor sources, migrates when auto-migrate is on and
// re-initializes the registry. Dynamic setters are swapped only after the
// registry accepted the new descriptors.
func (r *runtime) Reload(ctx context.Context) ([]string, error) {
	descs, err := r.schema.Refresh(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan descriptors: %w", err)
	}
	setters, err := dynattr.FromDescriptors(descs)
	if err != nil {
		return nil, err
	}
	if r.cfg.Schema.AutoMigrate {
		if err := store.NewMigrator(r.store, r.logger).MigrateAll(ctx, descs); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	if err := r.registry.Initialize(ctx); err != nil {
		return nil, err
	}
	r.setters.Replace(setters)
	return r.registry.EntityTypes(), nil
}
