// Package cache provides cross-component memory accounting: a MemoryBudget
// tracks byte usage per named component (the node store registers itself
// as one such component and reports its resident StoredNodes) and
// per-item priority, so GetEvictionCandidates can rank cold nodes before
// warm ones. The node store's LRU does not consult the budget when it
// evicts.
package cache

import (
	"sort"
	"sync"
	"time"
)

// DefaultMemoryLimit is used by NewMemoryBudget when the caller passes a
// non-positive limit: 256MiB.
const DefaultMemoryLimit = int64(256 * 1024 * 1024)

// DefaultPressureThreshold is the fraction of Limit at which IsUnderPressure
// starts reporting true.
const DefaultPressureThreshold = 0.8

// Priority ranks how reluctant an eviction policy should be to drop an
// item: PriorityCold items go first, PriorityHot items last.
type Priority int

const (
	PriorityCold Priority = iota
	PriorityWarm
	PriorityHot
)

// ItemInfo is a snapshot of one tracked item's accounting state.
type ItemInfo struct {
	Key         string
	Size        int64
	Priority    Priority
	AccessCount int64
	LastAccess  time.Time
}

// Stats summarises usage across every registered component at the moment
// it was taken.
type Stats struct {
	Limit           int64
	TotalUsage      int64
	ComponentUsage  map[string]int64
	IsUnderPressure bool
	IsExceeded      bool
}

// PressureCallback is invoked, in its own goroutine, the moment total usage
// first crosses the pressure threshold.
type PressureCallback func(currentUsage, limit int64)

// MemoryBudget is a thread-safe byte counter shared by every cache-like
// component in one tree operation's process: each component registers
// under a name, tracks and releases the bytes it holds, and may attach
// per-item priority so an eviction policy can rank what to drop first.
type MemoryBudget struct {
	mu sync.RWMutex

	limit             int64
	pressureThreshold float64
	wasUnderPressure  bool
	pressureCallback  PressureCallback

	totalUsage     int64
	componentUsage map[string]int64
	items          map[string]map[string]*ItemInfo
}

// NewMemoryBudget returns a MemoryBudget capped at limit bytes. A
// non-positive limit falls back to DefaultMemoryLimit.
func NewMemoryBudget(limit int64) *MemoryBudget {
	if limit <= 0 {
		limit = DefaultMemoryLimit
	}
	return &MemoryBudget{
		limit:             limit,
		pressureThreshold: DefaultPressureThreshold,
		componentUsage:    make(map[string]int64),
		items:             make(map[string]map[string]*ItemInfo),
	}
}

// RegisterComponent is idempotent: it gives component a zeroed usage
// bucket if it doesn't already have one.
func (b *MemoryBudget) RegisterComponent(component string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.componentUsage[component]; !ok {
		b.componentUsage[component] = 0
		b.items[component] = make(map[string]*ItemInfo)
	}
}

// Track charges bytes against component with no per-item bookkeeping; use
// TrackWithPriority when an eviction policy will need to name the item
// later.
func (b *MemoryBudget) Track(component string, bytes int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.componentUsage[component] += bytes
	b.totalUsage += bytes
	b.checkPressureLocked()
}

// TrackWithPriority records key's size and priority under component,
// replacing any prior record for the same key.
func (b *MemoryBudget) TrackWithPriority(component, key string, bytes int64, priority Priority) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.items[component] == nil {
		b.items[component] = make(map[string]*ItemInfo)
	}
	if old, ok := b.items[component][key]; ok {
		b.componentUsage[component] -= old.Size
		b.totalUsage -= old.Size
	}
	b.items[component][key] = &ItemInfo{
		Key:        key,
		Size:       bytes,
		Priority:   priority,
		LastAccess: time.Now(),
	}
	b.componentUsage[component] += bytes
	b.totalUsage += bytes
	b.checkPressureLocked()
}

// Release credits bytes back against component, clamped so usage never
// goes negative.
func (b *MemoryBudget) Release(component string, bytes int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if bytes > b.componentUsage[component] {
		bytes = b.componentUsage[component]
	}
	b.componentUsage[component] -= bytes
	b.totalUsage -= bytes
	if b.totalUsage < 0 {
		b.totalUsage = 0
	}
}

// ReleaseItem removes a single item tracked by TrackWithPriority and
// credits its size back to component. A miss is a no-op.
func (b *MemoryBudget) ReleaseItem(component, key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	items, ok := b.items[component]
	if !ok {
		return
	}
	info, ok := items[key]
	if !ok {
		return
	}
	b.componentUsage[component] -= info.Size
	b.totalUsage -= info.Size
	delete(items, key)
}

// RecordAccess bumps key's access count and promotes its priority once it
// crosses the warm (3 accesses) and hot (10 accesses) thresholds.
func (b *MemoryBudget) RecordAccess(component, key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	info, ok := b.items[component][key]
	if !ok {
		return
	}
	info.AccessCount++
	info.LastAccess = time.Now()
	switch {
	case info.AccessCount >= 10:
		info.Priority = PriorityHot
	case info.AccessCount >= 3 && info.Priority < PriorityWarm:
		info.Priority = PriorityWarm
	}
}

// GetItemInfo returns a copy of the tracked state for key under component,
// or nil if it isn't tracked.
func (b *MemoryBudget) GetItemInfo(component, key string) *ItemInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()
	info, ok := b.items[component][key]
	if !ok {
		return nil
	}
	cp := *info
	return &cp
}

// SetItemLastAccess backdates key's last-access timestamp; exported for
// tests exercising DecayPriorities without sleeping.
func (b *MemoryBudget) SetItemLastAccess(component, key string, t time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if info, ok := b.items[component][key]; ok {
		info.LastAccess = t
	}
}

// DecayPriorities steps every item in component not accessed within maxAge
// down one priority tier.
func (b *MemoryBudget) DecayPriorities(component string, maxAge time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	for _, info := range b.items[component] {
		if now.Sub(info.LastAccess) > maxAge && info.Priority > PriorityCold {
			info.Priority--
		}
	}
}

// GetEvictionCandidates returns item keys from component, ranked coldest
// and least-recently-accessed first, until at least bytesNeeded worth have
// been selected.
func (b *MemoryBudget) GetEvictionCandidates(component string, bytesNeeded int64) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	items := b.items[component]
	if len(items) == 0 {
		return nil
	}

	ranked := make([]*ItemInfo, 0, len(items))
	for _, info := range items {
		ranked = append(ranked, info)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Priority != ranked[j].Priority {
			return ranked[i].Priority < ranked[j].Priority
		}
		return ranked[i].LastAccess.Before(ranked[j].LastAccess)
	})

	var candidates []string
	var freed int64
	for _, info := range ranked {
		if freed >= bytesNeeded {
			break
		}
		candidates = append(candidates, info.Key)
		freed += info.Size
	}
	return candidates
}

// Limit returns the current byte cap.
func (b *MemoryBudget) Limit() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.limit
}

// SetLimit changes the byte cap. It does not itself evict anything.
func (b *MemoryBudget) SetLimit(limit int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.limit = limit
}

// SetPressureThreshold clamps threshold to [0,1] and uses it for future
// IsUnderPressure checks.
func (b *MemoryBudget) SetPressureThreshold(threshold float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if threshold < 0 {
		threshold = 0
	}
	if threshold > 1 {
		threshold = 1
	}
	b.pressureThreshold = threshold
}

// OnPressure registers callback to fire (once per pressure transition) when
// usage crosses the threshold.
func (b *MemoryBudget) OnPressure(callback PressureCallback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pressureCallback = callback
}

// TotalUsage returns bytes tracked across every component.
func (b *MemoryBudget) TotalUsage() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.totalUsage
}

// ComponentUsage returns bytes tracked for one component.
func (b *MemoryBudget) ComponentUsage(component string) int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.componentUsage[component]
}

// IsUnderPressure reports whether total usage has crossed
// limit*pressureThreshold.
func (b *MemoryBudget) IsUnderPressure() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.overThresholdLocked()
}

// IsExceeded reports whether total usage exceeds the hard limit.
func (b *MemoryBudget) IsExceeded() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.totalUsage > b.limit
}

// Stats snapshots every counter at once.
func (b *MemoryBudget) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	usage := make(map[string]int64, len(b.componentUsage))
	for k, v := range b.componentUsage {
		usage[k] = v
	}
	return Stats{
		Limit:           b.limit,
		TotalUsage:      b.totalUsage,
		ComponentUsage:  usage,
		IsUnderPressure: b.overThresholdLocked(),
		IsExceeded:      b.totalUsage > b.limit,
	}
}

func (b *MemoryBudget) overThresholdLocked() bool {
	return float64(b.totalUsage) >= float64(b.limit)*b.pressureThreshold
}

// checkPressureLocked fires pressureCallback on the rising edge only: a
// caller that stays over threshold across many Track calls gets one
// notification, not one per call.
func (b *MemoryBudget) checkPressureLocked() {
	over := b.overThresholdLocked()
	if over && !b.wasUnderPressure && b.pressureCallback != nil {
		callback, usage, limit := b.pressureCallback, b.totalUsage, b.limit
		b.wasUnderPressure = true
		go callback(usage, limit)
	} else if !over {
		b.wasUnderPressure = false
	}
}
