package planner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hashicorp/go-hclog"

	"flotilla/retry"
)

// DefaultMinReliability is the selection threshold when none is
// configured.
const DefaultMinReliability = 0.25

// ErrNoEligiblePlanner is returned when no planner meets the reliability
// threshold even after self-heal rediscovery.
var ErrNoEligiblePlanner = errors.New("no eligible planner")

// Factory selects the best-ranked eligible planner and instantiates it.
// Selection is deterministic: candidates are ranked by reliability score
// descending, ties broken by name ascending.
type Factory struct {
	registry       *Registry
	loader         *Loader
	profiler       *Profiler
	minReliability float64
	healPolicy     retry.Policy
	logger         hclog.Logger

	mu    sync.Mutex
	cache map[string]Planner
}

// NewFactory builds a factory with the given selection threshold. A
// threshold of exactly 0 admits every discovered planner; a negative
// value falls back to the default.
func NewFactory(registry *Registry, loader *Loader, profiler *Profiler, minReliability float64, healPolicy retry.Policy, logger hclog.Logger) *Factory {
	if minReliability < 0 {
		minReliability = DefaultMinReliability
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Factory{
		registry:       registry,
		loader:         loader,
		profiler:       profiler,
		minReliability: minReliability,
		healPolicy:     healPolicy,
		logger:         logger.Named("factory"),
		cache:          make(map[string]Planner),
	}
}

type candidate struct {
	name  string
	score float64
}

// rankedCandidates returns eligible candidates best-first, excluding any
// names in the exclude set.
func (f *Factory) rankedCandidates(exclude map[string]bool) []candidate {
	var candidates []candidate
	for _, name := range f.registry.ListNames() {
		if exclude[name] {
			continue
		}
		score := f.profiler.Reliability(name)
		if score < f.minReliability {
			continue
		}
		candidates = append(candidates, candidate{name: name, score: score})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].name < candidates[j].name
	})
	return candidates
}

// SelectBestPlannerName returns the best eligible planner name. When no
// candidate is eligible it self-heals (bounded, backed-off rediscovery)
// before failing with ErrNoEligiblePlanner.
func (f *Factory) SelectBestPlannerName(ctx context.Context, exclude map[string]bool) (string, error) {
	candidates := f.rankedCandidates(exclude)
	if len(candidates) == 0 {
		if err := f.selfHeal(ctx); err != nil {
			return "", err
		}
		candidates = f.rankedCandidates(exclude)
	}
	if len(candidates) == 0 {
		return "", ErrNoEligiblePlanner
	}
	return candidates[0].name, nil
}

// selfHeal re-runs discovery with backoff until at least one planner is
// eligible or attempts run out.
func (f *Factory) selfHeal(ctx context.Context) error {
	f.logger.Warn("no eligible planner, attempting rediscovery")
	attempt := 0
	err := f.healPolicy.Do(ctx, func() error {
		attempt++
		if err := f.registry.Discover(); err != nil {
			return err
		}
		if len(f.rankedCandidates(nil)) == 0 {
			return fmt.Errorf("rediscovery attempt %d found no eligible planner", attempt)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: self-heal exhausted after %d attempts", ErrNoEligiblePlanner, attempt)
	}
	return nil
}

// GetPlanner loads the named planner, caching the instance for reuse.
func (f *Factory) GetPlanner(name string) (Planner, error) {
	f.mu.Lock()
	if p, ok := f.cache[name]; ok {
		f.mu.Unlock()
		return p, nil
	}
	f.mu.Unlock()

	p, err := f.loader.Load(name)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.cache[name] = p
	f.mu.Unlock()
	return p, nil
}

// SelectBest composes name selection and instantiation. If the top
// candidate fails to load, the failure is recorded and the next-best
// candidate is tried.
func (f *Factory) SelectBest(ctx context.Context, exclude map[string]bool) (string, Planner, error) {
	tried := make(map[string]bool, len(exclude))
	for name := range exclude {
		tried[name] = true
	}

	for {
		name, err := f.SelectBestPlannerName(ctx, tried)
		if err != nil {
			return "", nil, err
		}

		p, err := f.GetPlanner(name)
		if err != nil {
			f.logger.Warn("planner failed to load, trying next candidate", "planner", name, "error", err)
			tried[name] = true
			continue
		}

		f.logger.Info("planner selected", "planner", name, "reliability", f.profiler.Reliability(name))
		return name, p, nil
	}
}

// Evict drops a cached planner instance, forcing the next GetPlanner to
// load it fresh.
func (f *Factory) Evict(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.cache, name)
}
