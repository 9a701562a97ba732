package nodemanager

import (
	"github.com/serialx/hashring"
)

// nodeRing orders a set of nodes by consistent hashing on a per-request key.
// It is immutable once built and safe for concurrent readers.
type nodeRing struct {
	nodes map[string]Node
	keys  []string
	ring  *hashring.HashRing
}

func newNodeRing(nodes []Node) *nodeRing {
	nr := &nodeRing{nodes: make(map[string]Node, len(nodes))}
	keys := make([]string, 0, len(nodes))
	for _, n := range nodes {
		k := n.key()
		if _, ok := nr.nodes[k]; ok {
			continue
		}
		nr.nodes[k] = n
		keys = append(keys, k)
	}
	nr.keys = keys
	nr.ring = hashring.New(keys)
	return nr
}

func (nr *nodeRing) Len() int {
	return len(nr.nodes)
}

// GetNodes returns every node of the ring, in the order the ring walks them from key.
func (nr *nodeRing) GetNodes(key string) []Node {
	if len(nr.nodes) == 0 {
		return nil
	}
	keys, ok := nr.ring.GetNodes(key, len(nr.nodes))
	if !ok {
		keys = nr.keys
	}
	nodes := make([]Node, 0, len(keys))
	for _, k := range keys {
		if n, ok := nr.nodes[k]; ok {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// Contains reports whether n is part of the ring.
func (nr *nodeRing) Contains(n Node) bool {
	_, ok := nr.nodes[n.key()]
	return ok
}
