package nodemanager

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/ledgerclient/nodemanager/internal/state"
)

// syncer periodically probes the configured nodes and publishes the healthy ones.
type syncer struct {
	transport   Transport
	fanOut      fanOut
	targets     []Node
	health      *HealthTracker
	networkInfo *state.Cell[NetworkInfo]

	interval    time.Duration
	timeout     time.Duration
	concurrency int

	ctx     context.Context
	cancel  context.CancelFunc
	exited  chan struct{}
	started bool

	// lk guards stopped and registration with running.
	lk      sync.Mutex
	stopped bool
	running sync.WaitGroup
	// cycle serializes writers so an older snapshot never replaces a newer one.
	cycle   sync.Mutex
}

type probeResult struct {
	node Node
	info NodeInfo
}

func newSyncer(m *NodeManager) *syncer {
	ctx, cancel := context.WithCancel(context.Background())
	return &syncer{
		ctx:         ctx,
		cancel:      cancel,
		transport:   m.transport,
		fanOut:      m.fanOut,
		targets:     m.pool.syncTargets(),
		health:      m.health,
		networkInfo: m.networkInfo,
		interval:    m.pool.syncInterval,
		timeout:     m.config.APITimeout,
		concurrency: m.config.SyncConcurrency,
	}
}

func (s *syncer) start() {
	s.exited = make(chan struct{})
	s.started = true
	go s.run()
}

// stop cancels every running cycle and returns once they and the loop have exited.
// Nothing is written after stop returns.
func (s *syncer) stop() {
	s.lk.Lock()
	s.stopped = true
	s.lk.Unlock()

	s.cancel()
	s.running.Wait()
	if s.started {
		<-s.exited
	}
}

// guarded runs fn as a writer bound to the syncer's lifetime: fn's context is cancelled by
// stop as well as by ctx, and stop waits for fn to return.
func (s *syncer) guarded(ctx context.Context, fn func(context.Context) error) error {
	s.lk.Lock()
	if s.stopped {
		s.lk.Unlock()
		return ErrClosed
	}
	s.running.Add(1)
	s.lk.Unlock()
	defer s.running.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer context.AfterFunc(s.ctx, cancel)()

	s.cycle.Lock()
	defer s.cycle.Unlock()
	return fn(ctx)
}

// resync runs one guarded sync cycle.
func (s *syncer) resync(ctx context.Context) error {
	return s.guarded(ctx, s.syncNodes)
}

// refresh updates the cached network info under the same guard as resync.
func (s *syncer) refresh(ctx context.Context) error {
	return s.guarded(ctx, s.refreshNetworkInfo)
}

func (s *syncer) run() {
	defer close(s.exited)

	t := time.NewTimer(s.interval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			if err := s.resync(s.ctx); err != nil && s.ctx.Err() == nil {
				syncErrorsMetric.Add(1)
				goLogger.Warnw("syncing nodes failed", "err", err)
			}
			t.Reset(s.interval)
		case <-s.ctx.Done():
			return
		}
	}
}

// syncNodes runs one sync cycle; callers go through resync. Healthy nodes of the network
// reported by most of them become the new healthy set; nodes of other networks are left
// out. Unless PoW is done locally only nodes offering remote PoW are kept.
func (s *syncer) syncNodes(ctx context.Context) error {
	ctx, span := spanTrace(ctx, "SyncNodes")
	defer span.End()

	start := time.Now()
	goLogger.Debugw("syncing nodes", "cnt", len(s.targets))

	network, err := s.majorityNetwork(ctx)
	if err != nil {
		return err
	}

	localPoW := true
	if err := s.networkInfo.Read(func(ni NetworkInfo) { localPoW = ni.LocalPoW }); err != nil {
		return err
	}

	healthy := make([]Node, 0, len(network))
	for _, p := range network {
		if localPoW || p.info.HasFeature(powFeature) {
			healthy = append(healthy, p.node)
		}
	}

	// a cancelled cycle must not publish anything
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(network) > 0 {
		if err := s.storeProtocolParameters(network[0].info.Protocol); err != nil {
			return err
		}
	}
	if err := s.health.Replace(healthy); err != nil {
		return err
	}

	syncCyclesTotalMetric.Add(1)
	syncDurationMetric.Observe(float64(time.Since(start).Milliseconds()))
	goLogger.Infow("synced nodes", "healthy", len(healthy), "probed", len(s.targets))
	return nil
}

// refreshNetworkInfo updates the cached protocol parameters without touching the healthy set.
func (s *syncer) refreshNetworkInfo(ctx context.Context) error {
	network, err := s.majorityNetwork(ctx)
	if err != nil {
		return err
	}
	if len(network) == 0 {
		return &NodeError{Message: "couldn't acquire network info from any node"}
	}
	return s.storeProtocolParameters(network[0].info.Protocol)
}

func (s *syncer) storeProtocolParameters(p ProtocolParameters) error {
	return s.networkInfo.Modify(func(ni *NetworkInfo) {
		ni.ProtocolParameters = p
		ni.LastSync = time.Now()
	})
}

// majorityNetwork probes every target and returns the healthy nodes of the network reported
// by most of them, in probe order. On a tie the network seen first wins.
func (s *syncer) majorityNetwork(ctx context.Context) ([]probeResult, error) {
	results := make([]*probeResult, len(s.targets))
	err := s.fanOut.Run(ctx, len(s.targets), s.concurrency, func(ctx context.Context, i int) error {
		node := s.targets[i]
		info, err := fetchNodeInfo(ctx, s.transport, node, s.timeout)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			goLogger.Errorw("couldn't get the node info", "node", node.String(), "err", err)
			return nil
		}
		if !info.Status.IsHealthy {
			goLogger.Debugw("node is not healthy", "node", node.String(), "name", info.Name)
			return nil
		}
		results[i] = &probeResult{node: node, info: info}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var networks [][]probeResult
	index := make(map[string]int)
	for _, r := range results {
		if r == nil {
			continue
		}
		name := r.info.Protocol.NetworkName
		i, ok := index[name]
		if !ok {
			i = len(networks)
			index[name] = i
			networks = append(networks, nil)
		}
		networks[i] = append(networks[i], *r)
	}
	observedNetworksMetric.Set(float64(len(networks)))
	if len(networks) > 1 {
		goLogger.Warnw("nodes report different networks", "networks", len(index))
	}

	var winner []probeResult
	for _, n := range networks {
		if len(n) > len(winner) {
			winner = n
		}
	}
	return winner, nil
}

func fetchNodeInfo(ctx context.Context, t Transport, node Node, timeout time.Duration) (NodeInfo, error) {
	resp, err := t.Get(ctx, node.withPathAndQuery(nodeInfoPath, ""), timeout)
	if err != nil {
		return NodeInfo{}, normalizeError(err)
	}
	if resp.Status() != http.StatusOK {
		return NodeInfo{}, nodeErrorFrom(resp)
	}
	var info NodeInfo
	if err := resp.JSON(&info); err != nil {
		return NodeInfo{}, err
	}
	return info, nil
}
