package util

import (
	"crypto/tls"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ledgerclient/nodemanager"
	"github.com/stretchr/testify/require"
)

func BuildHarness(t *testing.T, n int, opts ...HarnessOption) *Harness {
	h := &Harness{}

	h.Endpoints = make([]*Endpoint, n)
	nodes := make([]nodemanager.NodeConfig, n)
	for i := 0; i < len(h.Endpoints); i++ {
		h.Endpoints[i] = &Endpoint{}
		h.Endpoints[i].Setup()
		nodes[i] = nodemanager.NodeConfig{URL: h.Endpoints[i].Server.URL}
	}

	nodeClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true,
				ServerName:         "example.com",
			},
		},
	}

	conf := nodemanager.DefaultConfig()
	conf.Nodes = nodes
	conf.HTTPClient = nodeClient
	conf.NodeSyncInterval = 50 * time.Millisecond
	conf.APITimeout = 2 * time.Second

	for _, opt := range opts {
		opt(conf)
	}

	m, err := nodemanager.New(conf)
	require.NoError(t, err)
	t.Cleanup(func() {
		m.Close()
		for _, e := range h.Endpoints {
			e.Server.Close()
		}
	})

	h.Manager = m
	h.Config = conf
	return h
}

type Harness struct {
	Manager   *nodemanager.NodeManager
	Config    *nodemanager.Config
	Endpoints []*Endpoint
}

func (h *Harness) FailNodesWithCode(t *testing.T, selectorF func(ep *Endpoint) bool, code int) {
	for _, n := range h.Endpoints {
		if selectorF(n) {
			n.lk.Lock()
			n.Valid = false
			n.httpCode = code
			n.lk.Unlock()
		}
	}
}

func (h *Harness) RecoverNodes(t *testing.T, selectorF func(ep *Endpoint) bool) {
	for _, n := range h.Endpoints {
		if selectorF(n) {
			n.lk.Lock()
			n.Valid = true
			n.lk.Unlock()
		}
	}
}

func (h *Harness) NNodesAlive() int {
	cnt := 0
	for _, n := range h.Endpoints {
		n.lk.Lock()
		if n.Valid && n.Healthy {
			cnt++
		}
		n.lk.Unlock()
	}
	return cnt
}

// TotalCount is the number of requests served by all endpoints.
func (h *Harness) TotalCount() int {
	cnt := 0
	for _, n := range h.Endpoints {
		cnt += n.Count()
	}
	return cnt
}

type HarnessOption func(config *nodemanager.Config)

func WithQuorum(minQuorumSize, threshold int) HarnessOption {
	return func(config *nodemanager.Config) {
		config.Quorum = true
		config.MinQuorumSize = minQuorumSize
		config.QuorumThreshold = threshold
	}
}

func WithoutSync() HarnessOption {
	return func(config *nodemanager.Config) {
		config.NodeSyncDisabled = true
	}
}

func WithSyncInterval(d time.Duration) HarnessOption {
	return func(config *nodemanager.Config) {
		config.NodeSyncInterval = d
	}
}

func WithRemotePoW() HarnessOption {
	return func(config *nodemanager.Config) {
		config.RemotePoW = true
	}
}

// Endpoint is a fake ledger node. It answers the info endpoint with its own status and
// every other path with Resp.
type Endpoint struct {
	Server   *httptest.Server
	Valid    bool
	Healthy  bool
	Network  string
	Features []string
	Resp     []byte

	count    int
	httpCode int
	auth     string
	lk       sync.Mutex
}

const DefaultNetwork = "testnet"

var testBody = []byte(`{"milestoneIndex":42}`)

func (e *Endpoint) Setup() {
	e.Valid = true
	e.Healthy = true
	e.Network = DefaultNetwork
	e.Resp = testBody
	e.Server = httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.lk.Lock()
		defer e.lk.Unlock()
		e.count++
		e.auth = r.Header.Get("Authorization")

		if !e.Valid {
			if e.httpCode == 0 {
				e.httpCode = http.StatusInternalServerError
			}
			w.WriteHeader(e.httpCode)
			w.Write([]byte("error"))
			return
		}

		if strings.HasSuffix(r.URL.Path, "/api/core/v2/info") {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(nodemanager.NodeInfo{
				Name:     "fake-node",
				Version:  "2.0.0",
				Status:   nodemanager.NodeStatus{IsHealthy: e.Healthy},
				Protocol: nodemanager.ProtocolParameters{Version: 2, NetworkName: e.Network, Bech32HRP: "rms", TokenSupply: "1450896407249092"},
				Features: e.Features,
			})
			return
		}

		if e.Resp == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
		}
		w.Write(e.Resp)
	}))
}

func (ep *Endpoint) SetResp(resp []byte) {
	ep.lk.Lock()
	defer ep.lk.Unlock()
	ep.Resp = resp
}

func (ep *Endpoint) SetNetwork(name string, healthy bool, features ...string) {
	ep.lk.Lock()
	defer ep.lk.Unlock()
	ep.Network = name
	ep.Healthy = healthy
	ep.Features = features
}

func (ep *Endpoint) Count() int {
	ep.lk.Lock()
	defer ep.lk.Unlock()
	return ep.count
}

// Auth returns the Authorization header of the last request.
func (ep *Endpoint) Auth() string {
	ep.lk.Lock()
	defer ep.lk.Unlock()
	return ep.auth
}
