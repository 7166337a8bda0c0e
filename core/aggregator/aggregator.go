package aggregator

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"cloudarb/core/models"
	"cloudarb/providers"
)

// Catalog resolves instance metadata for enrichment during merge.
type Catalog interface {
	Instance(provider models.Provider, name string) (models.InstanceType, bool)
	ProviderEnabled(provider models.Provider) bool
}

// Config carries the aggregator cadence and freshness policy.
type Config struct {
	Interval         time.Duration                     // cycle cadence
	CycleDeadline    time.Duration                     // max wall-clock per cycle
	StalenessCeiling map[models.Provider]time.Duration // per-provider eviction age
	DefaultStaleness time.Duration                     // fallback eviction age
	ReadyGracePeriod time.Duration                     // max wait for the first publish
	Backoff          providers.BackoffPolicy
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Interval:         60 * time.Second,
		CycleDeadline:    5 * time.Second,
		DefaultStaleness: 10 * time.Minute,
		ReadyGracePeriod: 30 * time.Second,
		Backoff:          providers.DefaultBackoff(),
	}
}

// Metrics are plain in-process counters surfaced through the health payload.
type Metrics struct {
	Cycles         atomic.Int64
	DroppedPoints  atomic.Int64
	ParseIncidents atomic.Int64
	EvictedEntries atomic.Int64
	StaleFetches   atomic.Int64
}

// AdapterHealth is the operator-facing view of one adapter.
type AdapterHealth struct {
	Provider            models.Provider `json:"provider"`
	Quarantined         bool            `json:"quarantined"`
	ConsecutiveFailures int             `json:"consecutive_failures"`
	LastSuccess         time.Time       `json:"last_success,omitempty"`
}

type adapterState struct {
	adapter providers.Adapter

	mu          sync.Mutex
	quarantined bool
	failures    int
	lastAttempt time.Time
	lastSuccess time.Time
}

// Aggregator drives the adapters on a cadence and maintains the
// authoritative pricing table. Exactly one writer (the cycle driver)
// mutates the table; readers load immutable snapshots through an atomic
// pointer.
type Aggregator struct {
	cfg      Config
	catalog  Catalog
	filter   providers.Filter
	adapters []*adapterState

	table atomic.Pointer[models.PricingTable]

	firstOnce    sync.Once
	firstPublish chan struct{}

	subMu   sync.Mutex
	subs    map[int]chan uint64
	nextSub int
	closed  bool

	startOnce sync.Once
	metrics   Metrics
}

// New creates an aggregator over the given adapters. The filter restricts
// every fetch to the GPU kinds and regions the deployment cares about.
func New(cfg Config, cat Catalog, adapters []providers.Adapter, filter providers.Filter) *Aggregator {
	states := make([]*adapterState, 0, len(adapters))
	for _, a := range adapters {
		states = append(states, &adapterState{adapter: a})
	}
	a := &Aggregator{
		cfg:          cfg,
		catalog:      cat,
		filter:       filter,
		adapters:     states,
		firstPublish: make(chan struct{}),
		subs:         make(map[int]chan uint64),
	}
	empty := &models.PricingTable{Entries: map[models.LineKey]models.PricePoint{}}
	a.table.Store(empty)
	return a
}

// Start begins the periodic cycle. Safe to call once; subsequent calls are
// no-ops. The loop stops when ctx is canceled, closing all subscriber
// channels.
func (a *Aggregator) Start(ctx context.Context) {
	a.startOnce.Do(func() {
		go a.loop(ctx)
	})
}

func (a *Aggregator) loop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	if err := a.RunOnce(ctx); err != nil {
		log.Printf("aggregator: initial cycle: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			a.closeSubscribers()
			return
		case <-ticker.C:
			if err := a.RunOnce(ctx); err != nil {
				log.Printf("aggregator: cycle: %v", err)
			}
		}
	}
}

type fetchResult struct {
	provider models.Provider
	points   []models.PricePoint
	ok       bool
}

// RunOnce drives a single aggregation cycle: concurrent fan-out bounded by
// the cycle deadline, merge, validate, evict, publish.
func (a *Aggregator) RunOnce(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(ctx, a.cfg.CycleDeadline)
	defer cancel()

	now := time.Now()
	results := make(chan fetchResult, len(a.adapters))
	launched := 0

	for _, st := range a.adapters {
		if !a.eligible(st, now) {
			continue
		}
		launched++
		go a.fetchOne(cctx, st, results)
	}

	// Barrier: collect until every launched fetch reported or the cycle
	// deadline passed. Late adapters age into staleness.
	var incoming []models.PricePoint
	received := 0
	anySuccess := false
	for received < launched {
		select {
		case res := <-results:
			received++
			incoming = append(incoming, res.points...)
			anySuccess = anySuccess || res.ok
		case <-cctx.Done():
			a.metrics.StaleFetches.Add(int64(launched - received))
			received = launched
		}
	}

	a.publish(incoming, anySuccess)
	a.metrics.Cycles.Add(1)
	return ctx.Err()
}

// eligible filters out quarantined or disabled adapters and enforces each
// adapter's minimum poll interval.
func (a *Aggregator) eligible(st *adapterState, now time.Time) bool {
	if a.catalog != nil && !a.catalog.ProviderEnabled(st.adapter.Name()) {
		return false
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.quarantined {
		return false
	}
	if min := st.adapter.Capabilities().MinPollInterval; min > 0 && !st.lastAttempt.IsZero() {
		if now.Sub(st.lastAttempt) < min {
			return false
		}
	}
	st.lastAttempt = now
	return true
}

// fetchOne runs one adapter fetch with the retry policy and classifies the
// outcome. It always reports on the results channel.
func (a *Aggregator) fetchOne(ctx context.Context, st *adapterState, results chan<- fetchResult) {
	name := st.adapter.Name()
	var points []models.PricePoint

	err := a.cfg.Backoff.Retry(ctx, func(ctx context.Context) error {
		fetched, ferr := st.adapter.FetchPricing(ctx, a.filter)
		if ferr != nil {
			return ferr
		}
		points = fetched
		return nil
	})

	if err != nil {
		switch providers.KindOf(err) {
		case providers.FailureAuth:
			st.mu.Lock()
			st.quarantined = true
			st.failures++
			st.mu.Unlock()
			log.Printf("aggregator: %s quarantined: %v", name, err)
		case providers.FailureParse:
			a.metrics.ParseIncidents.Add(1)
			st.mu.Lock()
			st.failures++
			st.mu.Unlock()
			log.Printf("aggregator: %s schema error, zero points this cycle: %v", name, err)
		default:
			a.metrics.StaleFetches.Add(1)
			st.mu.Lock()
			st.failures++
			st.mu.Unlock()
			log.Printf("aggregator: %s fetch failed, entries aging: %v", name, err)
		}
		results <- fetchResult{provider: name}
		return
	}

	st.mu.Lock()
	st.failures = 0
	st.lastSuccess = time.Now()
	st.mu.Unlock()
	results <- fetchResult{provider: name, points: points, ok: true}
}

// publish merges incoming points over the previous generation, validates,
// evicts stale entries and atomically swaps the new table in. The first
// publish readiness gate opens only once at least one adapter has
// succeeded, so cold-start optimize calls keep waiting through all-failed
// cycles.
func (a *Aggregator) publish(incoming []models.PricePoint, anySuccess bool) {
	prev := a.table.Load()
	builtAt := time.Now()

	entries := make(map[models.LineKey]models.PricePoint, len(prev.Entries)+len(incoming))
	for k, v := range prev.Entries {
		entries[k] = v
	}

	for _, point := range incoming {
		point = a.enrich(point)
		if !a.valid(point) {
			a.metrics.DroppedPoints.Add(1)
			continue
		}
		key := point.Key()
		existing, ok := entries[key]
		if !ok || point.ObservedAt.After(existing.ObservedAt) {
			entries[key] = point
			continue
		}
		// Tie-break on equal timestamps: prefer the point carrying spot.
		if point.ObservedAt.Equal(existing.ObservedAt) && point.HasSpot && !existing.HasSpot {
			entries[key] = point
		}
	}

	for key, point := range entries {
		if builtAt.Sub(point.ObservedAt) > a.stalenessCeiling(point.Provider) {
			delete(entries, key)
			a.metrics.EvictedEntries.Add(1)
		}
	}

	next := &models.PricingTable{
		Generation: prev.Generation + 1,
		BuiltAt:    builtAt,
		Entries:    entries,
	}
	a.table.Store(next)
	if anySuccess {
		a.firstOnce.Do(func() { close(a.firstPublish) })
	}
	a.notify(next.Generation)
}

// enrich fills GPU shape and capacity from the catalog when the adapter
// left them empty.
func (a *Aggregator) enrich(point models.PricePoint) models.PricePoint {
	if a.catalog == nil {
		return point
	}
	it, ok := a.catalog.Instance(point.Provider, point.Instance)
	if !ok {
		return point
	}
	if point.GPUKind == "" {
		point.GPUKind = it.GPUKind
	}
	if point.GPUCount == 0 {
		point.GPUCount = it.GPUCount
	}
	if point.Capacity == 0 {
		point.Capacity = it.Capacity
	}
	return point
}

func (a *Aggregator) valid(point models.PricePoint) bool {
	if point.OnDemand <= 0 {
		return false
	}
	if point.HasSpot && point.Spot > point.OnDemand {
		return false
	}
	if point.ObservedAt.IsZero() {
		return false
	}
	return true
}

func (a *Aggregator) stalenessCeiling(provider models.Provider) time.Duration {
	if ceiling, ok := a.cfg.StalenessCeiling[provider]; ok && ceiling > 0 {
		return ceiling
	}
	if a.cfg.DefaultStaleness > 0 {
		return a.cfg.DefaultStaleness
	}
	return 10 * time.Minute
}

// Snapshot returns the current immutable table. Concurrent readers are
// lock-free with respect to one another.
func (a *Aggregator) Snapshot() *models.PricingTable {
	return a.table.Load()
}

// WaitReady blocks until the first successful publish, the ready grace
// period, or ctx expiry. Callers arriving before the first publish get
// PricingUnavailable after the grace period.
func (a *Aggregator) WaitReady(ctx context.Context) error {
	grace := a.cfg.ReadyGracePeriod
	if grace <= 0 {
		grace = 30 * time.Second
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-a.firstPublish:
		return nil
	case <-timer.C:
		return models.NewError(models.CodePricingUnavailable, "pricing table has no published generation yet")
	case <-ctx.Done():
		return models.WrapError(models.CodePricingUnavailable, ctx.Err(), "canceled waiting for pricing")
	}
}

// Subscribe registers for generation bumps. The channel is buffered with a
// single slot: slow subscribers observe only the most recent generation
// (coalescing semantics). The returned cancel function releases the
// subscription.
func (a *Aggregator) Subscribe() (<-chan uint64, func()) {
	a.subMu.Lock()
	defer a.subMu.Unlock()

	ch := make(chan uint64, 1)
	if a.closed {
		close(ch)
		return ch, func() {}
	}
	id := a.nextSub
	a.nextSub++
	a.subs[id] = ch

	return ch, func() {
		a.subMu.Lock()
		defer a.subMu.Unlock()
		if _, ok := a.subs[id]; ok {
			delete(a.subs, id)
			close(ch)
		}
	}
}

// notify bumps all subscribers, coalescing when a subscriber has not
// consumed the previous generation. Dropped ticks are never re-sent.
func (a *Aggregator) notify(generation uint64) {
	a.subMu.Lock()
	defer a.subMu.Unlock()
	for _, ch := range a.subs {
		select {
		case ch <- generation:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- generation:
			default:
			}
		}
	}
}

func (a *Aggregator) closeSubscribers() {
	a.subMu.Lock()
	defer a.subMu.Unlock()
	if a.closed {
		return
	}
	a.closed = true
	for id, ch := range a.subs {
		delete(a.subs, id)
		close(ch)
	}
}

// ResetQuarantine clears an adapter's quarantine after a credential change.
func (a *Aggregator) ResetQuarantine(provider models.Provider) {
	for _, st := range a.adapters {
		if st.adapter.Name() != provider {
			continue
		}
		st.mu.Lock()
		st.quarantined = false
		st.failures = 0
		st.mu.Unlock()
	}
}

// Health reports per-adapter state for operators.
func (a *Aggregator) Health() []AdapterHealth {
	out := make([]AdapterHealth, 0, len(a.adapters))
	for _, st := range a.adapters {
		st.mu.Lock()
		out = append(out, AdapterHealth{
			Provider:            st.adapter.Name(),
			Quarantined:         st.quarantined,
			ConsecutiveFailures: st.failures,
			LastSuccess:         st.lastSuccess,
		})
		st.mu.Unlock()
	}
	return out
}

// Stats exposes the cycle counters.
func (a *Aggregator) Stats() *Metrics {
	return &a.metrics
}
