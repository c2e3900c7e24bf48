package monitor

import (
	"github.com/bits-and-blooms/bloom/v3"

	"github.com/BenjaminSRussell/urlmon/internal/types"
)

const (
	// Visited-set sizing per input URL. max_visits is capped at 1000, so
	// a filter for 4096 entries keeps false loop reports negligible.
	bloomFilterSize = 4096
	bloomFalseRate  = 1e-7
)

// Frontier holds the follow-ups of one input URL in FIFO order and
// enforces the hop cap, the visit cap and loop detection.
//
// A Frontier belongs to a single Process call and is not safe for
// concurrent use.
type Frontier struct {
	maxHops   int
	maxVisits int

	queue    []types.FollowItem
	seen     *bloom.BloomFilter
	admitted int
}

// NewFrontier creates a frontier bounded by maxHops follow steps and
// maxVisits visits in total
func NewFrontier(maxHops, maxVisits int) *Frontier {
	return &Frontier{
		maxHops:   maxHops,
		maxVisits: maxVisits,
		queue:     make([]types.FollowItem, 0, 4),
		seen:      bloom.NewWithEstimates(bloomFilterSize, bloomFalseRate),
	}
}

// Seed enqueues the input URL at hop 0. The seed is never refused.
func (f *Frontier) Seed(raw string) {
	f.seen.AddString(raw)
	f.admitted++
	f.queue = append(f.queue, types.FollowItem{URL: raw})
}

// Add enqueues a follow-up of parent. It returns types.ErrFollowLoop when
// the URL was already visited or queued for this input, and
// types.ErrFollowLimit when a hop or visit cap would be exceeded.
func (f *Frontier) Add(parent types.FollowItem, target string) error {
	if f.seen.TestString(target) {
		return types.ErrFollowLoop
	}

	hop := parent.Hop + 1
	if hop > f.maxHops || f.admitted >= f.maxVisits {
		return types.ErrFollowLimit
	}

	f.seen.AddString(target)
	f.admitted++
	f.queue = append(f.queue, types.FollowItem{
		URL:       target,
		Hop:       hop,
		ParentURL: parent.URL,
	})
	return nil
}

// Next dequeues the oldest pending item
func (f *Frontier) Next() (types.FollowItem, bool) {
	if len(f.queue) == 0 {
		return types.FollowItem{}, false
	}
	item := f.queue[0]
	f.queue = f.queue[1:]
	return item, true
}

// Size returns the number of pending items
func (f *Frontier) Size() int {
	return len(f.queue)
}

// Admitted returns how many items have been accepted, seed included
func (f *Frontier) Admitted() int {
	return f.admitted
}
