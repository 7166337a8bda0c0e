package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"cloudarb/core/models"
)

type instanceKey struct {
	provider models.Provider
	name     string
}

// Catalog holds the persisted provider and instance-type records, read-only
// at the core boundary. It is loaded at startup and reloaded on signal.
type Catalog struct {
	mu        sync.RWMutex
	db        *sql.DB
	providers map[models.Provider]models.ProviderInfo
	instances map[instanceKey]models.InstanceType
}

// NewFromDB creates a catalog backed by the persisted providers and
// instance_types tables and performs the initial load.
func NewFromDB(ctx context.Context, db *sql.DB) (*Catalog, error) {
	c := &Catalog{
		db:        db,
		providers: make(map[models.Provider]models.ProviderInfo),
		instances: make(map[instanceKey]models.InstanceType),
	}
	if err := c.Reload(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// NewStatic creates an in-memory catalog, used when no database is
// configured and in tests.
func NewStatic(providerInfos []models.ProviderInfo, instanceTypes []models.InstanceType) *Catalog {
	c := &Catalog{
		providers: make(map[models.Provider]models.ProviderInfo),
		instances: make(map[instanceKey]models.InstanceType),
	}
	for _, p := range providerInfos {
		c.providers[p.Name] = p
	}
	for _, it := range instanceTypes {
		c.instances[instanceKey{provider: it.Provider, name: it.Name}] = it
	}
	return c
}

// Reload re-reads the catalog tables. A static catalog reloads to itself.
func (c *Catalog) Reload(ctx context.Context) error {
	if c.db == nil {
		return nil
	}

	providerInfos, err := c.loadProviders(ctx)
	if err != nil {
		return fmt.Errorf("load providers: %w", err)
	}
	instanceTypes, err := c.loadInstanceTypes(ctx)
	if err != nil {
		return fmt.Errorf("load instance types: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers = providerInfos
	c.instances = instanceTypes
	return nil
}

func (c *Catalog) loadProviders(ctx context.Context) (map[models.Provider]models.ProviderInfo, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, name, display_name, enabled
		FROM providers
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[models.Provider]models.ProviderInfo)
	for rows.Next() {
		var info models.ProviderInfo
		if err := rows.Scan(&info.ID, &info.Name, &info.DisplayName, &info.Enabled); err != nil {
			return nil, err
		}
		out[info.Name] = info
	}
	return out, rows.Err()
}

func (c *Catalog) loadInstanceTypes(ctx context.Context) (map[instanceKey]models.InstanceType, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, provider, name, gpu_kind, gpu_count, vcpu, ram_gb, capacity, perf_score
		FROM instance_types
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[instanceKey]models.InstanceType)
	for rows.Next() {
		var it models.InstanceType
		var capacity sql.NullInt64
		var perf sql.NullFloat64
		if err := rows.Scan(&it.ID, &it.Provider, &it.Name, &it.GPUKind, &it.GPUCount,
			&it.VCPU, &it.RAMGB, &capacity, &perf); err != nil {
			return nil, err
		}
		if capacity.Valid {
			it.Capacity = int(capacity.Int64)
		}
		if perf.Valid {
			it.PerfScore = perf.Float64
		}
		out[instanceKey{provider: it.Provider, name: it.Name}] = it
	}
	return out, rows.Err()
}

// Instance returns the catalog record for (provider, instance name).
func (c *Catalog) Instance(provider models.Provider, name string) (models.InstanceType, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	it, ok := c.instances[instanceKey{provider: provider, name: name}]
	return it, ok
}

// ProviderEnabled reports whether the provider is registered and enabled.
// Unregistered providers are treated as enabled so a catalog-less setup
// still aggregates.
func (c *Catalog) ProviderEnabled(provider models.Provider) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.providers[provider]
	if !ok {
		return true
	}
	return info.Enabled
}
