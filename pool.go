package nodemanager

import (
	"time"
)

// nodePool is the configured set of nodes. It never changes after construction.
type nodePool struct {
	primary    *Node
	primaryPoW *Node
	nodes      []Node
	permanodes []Node

	// ring orders nodes for requests when the health tracker is not in use.
	ring *nodeRing

	syncEnabled     bool
	syncInterval    time.Duration
	quorum          bool
	minQuorumSize   int
	quorumThreshold int
}

func newNodePool(c *Config) (*nodePool, error) {
	p := &nodePool{
		syncEnabled:     !c.NodeSyncDisabled,
		syncInterval:    c.NodeSyncInterval,
		quorum:          c.Quorum,
		minQuorumSize:   c.MinQuorumSize,
		quorumThreshold: c.QuorumThreshold,
	}

	var err error
	if c.PrimaryNode != nil {
		if p.primary, err = toNode(*c.PrimaryNode); err != nil {
			return nil, err
		}
	}
	if c.PrimaryPoWNode != nil {
		if p.primaryPoW, err = toNode(*c.PrimaryPoWNode); err != nil {
			return nil, err
		}
	}
	if p.nodes, err = toNodeSet(c.Nodes); err != nil {
		return nil, err
	}
	if p.permanodes, err = toNodeSet(c.Permanodes); err != nil {
		return nil, err
	}
	p.ring = newNodeRing(p.nodes)
	return p, nil
}

// syncTargets returns the nodes probed by each sync cycle: the primary node and the general set.
func (p *nodePool) syncTargets() []Node {
	targets := make([]Node, 0, len(p.nodes)+1)
	if p.primary != nil {
		targets = append(targets, *p.primary)
	}
	for _, n := range p.nodes {
		if !containsNode(targets, n) {
			targets = append(targets, n)
		}
	}
	return targets
}

func toNode(nc NodeConfig) (*Node, error) {
	n, err := NewNode(nc.URL, nc.Auth)
	if err != nil {
		return nil, err
	}
	n.Disabled = nc.Disabled
	return &n, nil
}

// toNodeSet converts configured nodes, keeping the first entry for each address.
func toNodeSet(ncs []NodeConfig) ([]Node, error) {
	nodes := make([]Node, 0, len(ncs))
	for _, nc := range ncs {
		n, err := toNode(nc)
		if err != nil {
			return nil, err
		}
		if !containsNode(nodes, *n) {
			nodes = append(nodes, *n)
		}
	}
	return nodes, nil
}

func containsNode(nodes []Node, n Node) bool {
	for _, e := range nodes {
		if e.Equals(n) {
			return true
		}
	}
	return false
}
