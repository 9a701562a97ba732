package nodemanager

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

type affinityKey struct{}

// WithAffinity makes requests made with the returned context visit the non-primary nodes in an
// order derived from key instead of a random one. Requests sharing a key share an order.
func WithAffinity(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, affinityKey{}, key)
}

func orderKey(ctx context.Context) string {
	if k, ok := ctx.Value(affinityKey{}).(string); ok && k != "" {
		return k
	}
	return uuid.NewString()
}

// getNodes returns the nodes to try for a request, in the order they should be tried,
// with path and query already applied.
//
// Permanodes come first when preferred (or for block lookups with a query), then the
// PoW node when asked for, then the primary node, then every other node in an order
// that changes from request to request.
func (m *NodeManager) getNodes(ctx context.Context, path, query string, usePrimaryPoW, preferPermanode bool) ([]Node, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}

	candidates := make([]Node, 0, len(m.pool.nodes)+len(m.pool.permanodes)+2)
	seen := make(map[string]struct{})
	add := func(n Node) {
		k := n.key()
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		candidates = append(candidates, n)
	}

	if preferPermanode || (trimPath(path) == blocksPath && query != "") {
		for _, n := range m.pool.permanodes {
			add(n)
		}
	}
	if usePrimaryPoW && m.pool.primaryPoW != nil {
		add(*m.pool.primaryPoW)
	}
	if m.pool.primary != nil {
		add(*m.pool.primary)
	}

	ring := m.pool.ring
	if m.syncActive() {
		var err error
		if ring, err = m.health.ring(); err != nil {
			return nil, err
		}
	}
	for _, n := range ring.GetNodes(orderKey(ctx)) {
		add(n)
	}

	enabled := candidates[:0]
	for _, n := range candidates {
		if !n.Disabled {
			enabled = append(enabled, n)
		}
	}
	if len(enabled) == 0 {
		return nil, ErrSyncedNodePoolEmpty
	}

	for i := range enabled {
		enabled[i] = enabled[i].withPathAndQuery(path, query)
	}
	return enabled, nil
}

func trimPath(path string) string {
	return strings.Trim(path, "/")
}
