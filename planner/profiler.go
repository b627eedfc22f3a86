package planner

import (
	"sync"
)

// DefaultRingCapacity bounds each outcome history when no capacity is
// configured.
const DefaultRingCapacity = 1000

// defaultReliability is the score for a planner with no recorded history.
// Absence of evidence means low confidence, not neutral confidence.
const defaultReliability = 0.1

// Weights for combining instantiation and selection success ratios.
// Instantiation failures signal a broken planner more strongly than
// planning-quality failures do.
const (
	instantiationWeight = 0.6
	selectionWeight     = 0.4
)

// ringBuffer is a fixed-capacity boolean sample history. Pushing onto a
// full buffer evicts the oldest sample.
type ringBuffer struct {
	samples []bool
	head    int
	size    int
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &ringBuffer{samples: make([]bool, capacity)}
}

func (b *ringBuffer) push(outcome bool) {
	b.samples[b.head] = outcome
	b.head = (b.head + 1) % len(b.samples)
	if b.size < len(b.samples) {
		b.size++
	}
}

func (b *ringBuffer) len() int {
	return b.size
}

func (b *ringBuffer) successRatio() (float64, bool) {
	if b.size == 0 {
		return 0, false
	}
	successes := 0
	for i := 0; i < b.size; i++ {
		if b.samples[i] {
			successes++
		}
	}
	return float64(successes) / float64(b.size), true
}

type profile struct {
	selections     *ringBuffer
	instantiations *ringBuffer
}

// Profiler tracks per-planner selection and instantiation outcomes in
// bounded ring buffers and derives a reliability score from them. Safe for
// concurrent use.
type Profiler struct {
	mu       sync.RWMutex
	capacity int
	profiles map[string]*profile
}

func NewProfiler(capacity int) *Profiler {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &Profiler{
		capacity: capacity,
		profiles: make(map[string]*profile),
	}
}

func (p *Profiler) profileFor(name string) *profile {
	prof, ok := p.profiles[name]
	if !ok {
		prof = &profile{
			selections:     newRingBuffer(p.capacity),
			instantiations: newRingBuffer(p.capacity),
		}
		p.profiles[name] = prof
	}
	return prof
}

// RecordSelection records whether a selected planner produced a usable
// plan.
func (p *Profiler) RecordSelection(name string, success bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.profileFor(name).selections.push(success)
}

// RecordInstantiation records whether loading the planner succeeded.
func (p *Profiler) RecordInstantiation(name string, success bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.profileFor(name).instantiations.push(success)
}

// Reliability returns the planner's score in [0,1]. A planner with no
// history at all scores 0.1. When only one history kind has samples its
// ratio is used directly; otherwise the two ratios are combined with
// instantiation weighted 0.6 and selection 0.4.
func (p *Profiler) Reliability(name string) float64 {
	p.mu.RLock()
	prof, ok := p.profiles[name]
	p.mu.RUnlock()
	if !ok {
		return defaultReliability
	}

	p.mu.RLock()
	instRatio, hasInst := prof.instantiations.successRatio()
	selRatio, hasSel := prof.selections.successRatio()
	p.mu.RUnlock()

	switch {
	case hasInst && hasSel:
		return instantiationWeight*instRatio + selectionWeight*selRatio
	case hasInst:
		return instRatio
	case hasSel:
		return selRatio
	default:
		return defaultReliability
	}
}

// HistoryLen reports the number of retained samples for a planner.
func (p *Profiler) HistoryLen(name string) (selections, instantiations int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	prof, ok := p.profiles[name]
	if !ok {
		return 0, 0
	}
	return prof.selections.len(), prof.instantiations.len()
}

// Reset discards all recorded history.
func (p *Profiler) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.profiles = make(map[string]*profile)
}
