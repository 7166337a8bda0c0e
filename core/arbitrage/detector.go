package arbitrage

import (
	"context"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"cloudarb/core/forecast"
	"cloudarb/core/models"
)

// Updates is the slice of the aggregator the detector consumes.
type Updates interface {
	Subscribe() (<-chan uint64, func())
	Snapshot() *models.PricingTable
}

// Config carries the detection policy.
type Config struct {
	Threshold     float64           // min savings fraction to emit
	Cooldown      time.Duration     // per-pair suppression window
	RiskTolerance float64           // blend weight for effective prices
	RegionClasses map[string]string // region -> equivalence class overrides
	BufferSize    int               // per-subscriber event buffer
	HorizonHours  int               // forecast horizon for demand risk
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Threshold:     0.05,
		Cooldown:      5 * time.Minute,
		RiskTolerance: 0.5,
		BufferSize:    64,
		HorizonHours:  4,
	}
}

type pairKey struct {
	from models.LineKey
	to   models.LineKey
}

type subscriber struct {
	ch chan models.Opportunity
}

// Detector scans each published pricing generation for cross-provider
// savings opportunities and broadcasts them to subscribers.
type Detector struct {
	cfg      Config
	updates  Updates
	forecast forecast.Source

	mu       sync.Mutex
	lastSent map[pairKey]time.Time
	subs     map[int]*subscriber
	nextSub  int
	closed   bool
}

// New creates a detector. The forecast source is optional; absence is
// non-fatal and simply removes the demand component from risk scores.
func New(cfg Config, updates Updates, fc forecast.Source) *Detector {
	return &Detector{
		cfg:      cfg,
		updates:  updates,
		forecast: fc,
		lastSent: make(map[pairKey]time.Time),
		subs:     make(map[int]*subscriber),
	}
}

// Start consumes generation bumps until ctx is canceled.
func (d *Detector) Start(ctx context.Context) {
	go d.loop(ctx)
}

func (d *Detector) loop(ctx context.Context) {
	bumps, cancel := d.updates.Subscribe()
	defer cancel()
	defer d.closeSubscribers()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-bumps:
			if !ok {
				return
			}
			table := d.updates.Snapshot()
			for _, opp := range d.Scan(ctx, table) {
				d.broadcast(opp)
			}
		}
	}
}

// Scan computes the opportunities a table yields right now, applying the
// per-pair cooldown. Exported for the one-shot CLI.
func (d *Detector) Scan(ctx context.Context, table *models.PricingTable) []models.Opportunity {
	now := time.Now()
	classes := make(map[string][]models.PricePoint)
	for _, point := range table.Lines() {
		if point.GPUKind == "" {
			continue
		}
		key := point.GPUKind + "|" + d.regionClass(point.Region)
		classes[key] = append(classes[key], point)
	}

	var out []models.Opportunity
	for _, points := range classes {
		if len(points) < 2 {
			continue
		}
		out = append(out, d.scanClass(ctx, points, now)...)
	}
	return out
}

// scanClass emits every (high, low) pair within one (gpu-kind, region-class)
// partition whose relative savings clear the threshold.
func (d *Detector) scanClass(ctx context.Context, points []models.PricePoint, now time.Time) []models.Opportunity {
	// Lines() already orders deterministically; a stable sort by effective
	// price keeps that order for equal prices.
	sorted := make([]models.PricePoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].EffectivePrice(d.cfg.RiskTolerance) < sorted[j].EffectivePrice(d.cfg.RiskTolerance)
	})

	var out []models.Opportunity
	for hi := len(sorted) - 1; hi > 0; hi-- {
		high := sorted[hi]
		highPrice := high.EffectivePrice(d.cfg.RiskTolerance)
		for lo := 0; lo < hi; lo++ {
			low := sorted[lo]
			if high.Provider == low.Provider && high.Region == low.Region && high.Instance == low.Instance {
				continue
			}
			lowPrice := low.EffectivePrice(d.cfg.RiskTolerance)
			savings := (highPrice - lowPrice) / highPrice
			if savings < d.cfg.Threshold {
				continue
			}
			if !d.admit(high.Key(), low.Key(), now) {
				continue
			}
			out = append(out, models.Opportunity{
				GPUKind: high.GPUKind,
				From: models.OpportunityLine{
					Provider: high.Provider,
					Instance: high.Instance,
					Region:   high.Region,
					Price:    highPrice,
				},
				To: models.OpportunityLine{
					Provider: low.Provider,
					Instance: low.Instance,
					Region:   low.Region,
					Price:    lowPrice,
				},
				SavingsPct: savings,
				RiskScore:  d.riskScore(ctx, high, low),
				DetectedAt: now,
			})
		}
	}
	return out
}

// admit applies the per-pair cooldown and records the emission time.
func (d *Detector) admit(from, to models.LineKey, now time.Time) bool {
	key := pairKey{from: from, to: to}
	d.mu.Lock()
	defer d.mu.Unlock()

	if last, ok := d.lastSent[key]; ok && now.Sub(last) < d.cfg.Cooldown {
		return false
	}
	d.lastSent[key] = now

	// Opportunistic cleanup keeps the suppression map bounded.
	if len(d.lastSent) > 4096 {
		for k, t := range d.lastSent {
			if now.Sub(t) >= d.cfg.Cooldown {
				delete(d.lastSent, k)
			}
		}
	}
	return true
}

// riskScore weighs the spot share of the destination line, a provider
// diversity bonus, and a region-distance penalty; the optional demand
// forecast raises risk on spot-heavy destinations.
func (d *Detector) riskScore(ctx context.Context, from, to models.PricePoint) float64 {
	spotShare := to.SpotBlend(d.cfg.RiskTolerance)

	regionPenalty := 0.0
	if from.Region != to.Region {
		regionPenalty = 0.5
	}

	diversity := 0.0
	if from.Provider == to.Provider {
		diversity = 1.0
	}

	score := 0.5*spotShare + 0.3*regionPenalty + 0.2*diversity

	if d.forecast != nil && spotShare > 0 {
		signal, err := d.forecast.GetDemandSignal(ctx, to.GPUKind, d.cfg.HorizonHours)
		if err == nil && signal.ExpectedRelativeDemand > 1 {
			bump := 0.2 * (signal.ExpectedRelativeDemand - 1) * signal.Confidence * spotShare
			score += bump
		}
	}

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

// regionClass collapses geographically equivalent regions. Config overrides
// win; otherwise a conservative continent mapping applies, and unknown
// regions form their own class.
func (d *Detector) regionClass(region string) string {
	if class, ok := d.cfg.RegionClasses[region]; ok {
		return class
	}
	r := strings.ToLower(region)
	switch {
	case strings.HasPrefix(r, "us-") || strings.HasPrefix(r, "us ") ||
		strings.HasPrefix(r, "eastus") || strings.HasPrefix(r, "westus") ||
		strings.HasPrefix(r, "centralus") || strings.HasPrefix(r, "ca-"):
		return "north-america"
	case strings.HasPrefix(r, "eu-") || strings.HasPrefix(r, "europe-") ||
		strings.HasPrefix(r, "westeurope") || strings.HasPrefix(r, "northeurope") ||
		strings.HasPrefix(r, "uk"):
		return "europe"
	case strings.HasPrefix(r, "ap-") || strings.HasPrefix(r, "asia-") ||
		strings.HasPrefix(r, "japan") || strings.HasPrefix(r, "korea") ||
		strings.HasPrefix(r, "australia"):
		return "asia-pacific"
	default:
		return r
	}
}

// Subscribe registers for opportunity events. Slow subscribers lose the
// oldest buffered events first. The cancel function releases the
// subscription.
func (d *Detector) Subscribe() (<-chan models.Opportunity, func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	size := d.cfg.BufferSize
	if size <= 0 {
		size = 64
	}
	ch := make(chan models.Opportunity, size)
	if d.closed {
		close(ch)
		return ch, func() {}
	}
	id := d.nextSub
	d.nextSub++
	d.subs[id] = &subscriber{ch: ch}

	return ch, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if sub, ok := d.subs[id]; ok {
			delete(d.subs, id)
			close(sub.ch)
		}
	}
}

// broadcast delivers one opportunity to every subscriber, dropping the
// oldest buffered event when a buffer is full.
func (d *Detector) broadcast(opp models.Opportunity) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, sub := range d.subs {
		select {
		case sub.ch <- opp:
		default:
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- opp:
			default:
				log.Printf("arbitrage: subscriber buffer still full, event dropped")
			}
		}
	}
}

func (d *Detector) closeSubscribers() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for id, sub := range d.subs {
		delete(d.subs, id)
		close(sub.ch)
	}
}
