package nodemanager

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ledgerclient/nodemanager/internal/state"
)

// NodeManager routes requests to a set of ledger nodes. It keeps track of which nodes are
// healthy, can require several nodes to agree on an answer and falls back from node to
// node when one fails. It is safe for concurrent use.
type NodeManager struct {
	config *Config
	pool   *nodePool
	health *HealthTracker

	networkInfo *state.Cell[NetworkInfo]

	transport Transport
	// owned is set when the transport was created here and has to be released on Close.
	owned  *HTTPTransport
	fanOut fanOut

	syncer *syncer
	closed atomic.Bool
}

// New builds a node manager from config. Environment overrides are applied and missing
// values defaulted on config itself.
//
// Unless syncing is disabled or the manager is single threaded, the nodes are synced once
// before New returns and then again every NodeSyncInterval until Close.
func New(config *Config) (*NodeManager, error) {
	if config == nil {
		config = DefaultConfig()
	}
	config.applyEnv()
	config.Normalize()

	pool, err := newNodePool(config)
	if err != nil {
		return nil, err
	}

	m := &NodeManager{
		config: config,
		pool:   pool,
		health: NewHealthTracker(),
		networkInfo: state.NewCell(NetworkInfo{
			LocalPoW:           !config.RemotePoW,
			FallbackToLocalPoW: config.FallbackToLocalPoW,
			TipsInterval:       config.TipsInterval,
		}),
		fanOut: newFanOut(config.SingleThreaded),
	}
	if config.Transport != nil {
		m.transport = config.Transport
	} else {
		m.owned = NewHTTPTransport(config.HTTPClient)
		m.transport = m.owned
	}
	m.syncer = newSyncer(m)

	if m.syncActive() {
		if err := m.syncer.resync(context.Background()); err != nil {
			m.syncer.stop()
			return nil, fmt.Errorf("failed to sync nodes: %w", err)
		}
		m.syncer.start()
	}

	goLogger.Infow("node manager started", "nodes", len(pool.nodes), "permanodes", len(pool.permanodes),
		"primary", pool.primary != nil, "sync", m.syncActive(), "quorum", pool.quorum)
	return m, nil
}

// Close stops the sync process, including a running SyncNow or network info refresh, and
// waits for it to exit. Closing twice panics.
func (m *NodeManager) Close() {
	if !m.closed.CompareAndSwap(false, true) {
		panic("failed to stop syncing process: node manager already closed")
	}
	m.syncer.stop()
	if m.owned != nil {
		m.owned.CloseIdleConnections()
	}
	goLogger.Infow("node manager stopped")
}

func (m *NodeManager) syncActive() bool {
	return m.pool.syncEnabled && m.fanOut.Concurrent()
}

// SyncNow runs a sync cycle immediately. Close cancels a running SyncNow and waits for it.
func (m *NodeManager) SyncNow(ctx context.Context) error {
	if m.closed.Load() {
		return ErrClosed
	}
	return m.syncer.resync(ctx)
}

// GetNode returns the primary node, or the first general node when no primary is configured.
func (m *NodeManager) GetNode() (Node, error) {
	if m.pool.primary != nil {
		return *m.pool.primary, nil
	}
	if len(m.pool.nodes) > 0 {
		return m.pool.nodes[0], nil
	}
	return Node{}, ErrHealthyNodePoolEmpty
}

// HealthyNodes returns the nodes that passed the last sync cycle.
func (m *NodeManager) HealthyNodes() ([]Node, error) {
	return m.health.Nodes()
}

// UnhealthyNodes returns the configured nodes that did not pass the last sync cycle.
// Without an active sync process nothing is known about health and nil is returned.
func (m *NodeManager) UnhealthyNodes() ([]Node, error) {
	if !m.syncActive() {
		return nil, nil
	}
	var unhealthy []Node
	for _, n := range m.pool.syncTargets() {
		ok, err := m.health.Contains(n)
		if err != nil {
			return nil, err
		}
		if !ok {
			unhealthy = append(unhealthy, n)
		}
	}
	return unhealthy, nil
}

// NetworkInfo returns the cached network info. Without an active sync process it is
// refreshed from the nodes when older than NetworkInfoMaxAge.
func (m *NodeManager) NetworkInfo(ctx context.Context) (NetworkInfo, error) {
	info, err := m.networkInfo.Load()
	if err != nil {
		return NetworkInfo{}, err
	}
	if m.syncActive() || time.Since(info.LastSync) <= NetworkInfoMaxAge {
		return info, nil
	}
	if m.closed.Load() {
		return NetworkInfo{}, ErrClosed
	}
	if err := m.syncer.refresh(ctx); err != nil {
		return NetworkInfo{}, err
	}
	return m.networkInfo.Load()
}

func (m *NodeManager) ProtocolParameters(ctx context.Context) (ProtocolParameters, error) {
	info, err := m.NetworkInfo(ctx)
	return info.ProtocolParameters, err
}

func (m *NodeManager) NetworkName(ctx context.Context) (string, error) {
	p, err := m.ProtocolParameters(ctx)
	return p.NetworkName, err
}

func (m *NodeManager) Bech32HRP(ctx context.Context) (string, error) {
	p, err := m.ProtocolParameters(ctx)
	return p.Bech32HRP, err
}

func (m *NodeManager) MinPoWScore(ctx context.Context) (uint32, error) {
	p, err := m.ProtocolParameters(ctx)
	return p.MinPoWScore, err
}

func (m *NodeManager) TokenSupply(ctx context.Context) (uint64, error) {
	p, err := m.ProtocolParameters(ctx)
	if err != nil {
		return 0, err
	}
	return p.TokenSupplyValue()
}

// LocalPoW reports whether PoW is done by this client. Defaults to true if the cache is unusable.
func (m *NodeManager) LocalPoW() bool {
	info, err := m.networkInfo.Load()
	if err != nil {
		return true
	}
	return info.LocalPoW
}

func (m *NodeManager) FallbackToLocalPoW() bool {
	info, err := m.networkInfo.Load()
	if err != nil {
		return true
	}
	return info.FallbackToLocalPoW
}

func (m *NodeManager) TipsInterval() uint64 {
	info, err := m.networkInfo.Load()
	if err != nil {
		return DefaultTipsInterval
	}
	return info.TipsInterval
}

// Info returns the node info of the first candidate node that answers.
func (m *NodeManager) Info(ctx context.Context) (NodeInfoWrapper, error) {
	var w NodeInfoWrapper
	err := m.GetRequest(ctx, nodeInfoPath, "", m.config.APITimeout, false, false, &w)
	return w, err
}

// NodeInfoFrom asks a single node, which doesn't have to be configured, for its info.
func (m *NodeManager) NodeInfoFrom(ctx context.Context, rawURL string, auth *NodeAuth) (NodeInfo, error) {
	node, err := NewNode(rawURL, auth)
	if err != nil {
		return NodeInfo{}, err
	}
	ctx, span := spanTrace(ctx, "NodeInfoFrom")
	defer span.End()
	return fetchNodeInfo(ctx, m.transport, node, m.config.APITimeout)
}
