package nodemanager

import (
	"sync/atomic"

	"github.com/ledgerclient/nodemanager/internal/state"
)

// healthSnapshot is one published result of a sync cycle. It is never modified after publishing.
type healthSnapshot struct {
	nodes []Node
	ring  *nodeRing
}

// HealthTracker holds the nodes considered healthy by the last sync cycle.
// Many dispatch calls read it; only the sync process replaces it, always as a whole.
type HealthTracker struct {
	cell   *state.Cell[healthSnapshot]
	writes atomic.Int64
}

func NewHealthTracker() *HealthTracker {
	return &HealthTracker{
		cell: state.NewCell(healthSnapshot{ring: newNodeRing(nil)}),
	}
}

// Nodes returns a copy of the current healthy set.
func (h *HealthTracker) Nodes() ([]Node, error) {
	s, err := h.cell.Load()
	if err != nil {
		return nil, err
	}
	nodes := make([]Node, len(s.nodes))
	copy(nodes, s.nodes)
	return nodes, nil
}

func (h *HealthTracker) ring() (*nodeRing, error) {
	s, err := h.cell.Load()
	if err != nil {
		return nil, err
	}
	return s.ring, nil
}

// Contains reports whether n is currently healthy.
func (h *HealthTracker) Contains(n Node) (bool, error) {
	r, err := h.ring()
	if err != nil {
		return false, err
	}
	return r.Contains(n), nil
}

// Replace publishes a new healthy set, dropping everything from the previous one.
func (h *HealthTracker) Replace(nodes []Node) error {
	s := healthSnapshot{
		nodes: make([]Node, len(nodes)),
		ring:  newNodeRing(nodes),
	}
	copy(s.nodes, nodes)
	if err := h.cell.Store(s); err != nil {
		return err
	}
	h.writes.Add(1)
	healthyPoolSizeMetric.Set(float64(len(nodes)))
	return nil
}

// Writes returns how many times the healthy set has been replaced.
func (h *HealthTracker) Writes() int64 {
	return h.writes.Load()
}
