package nodemanager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

type fakeHandler func(ctx context.Context, u *url.URL, body []byte) (Response, error)

// fakeTransport answers requests from per-host handlers and records every call.
type fakeTransport struct {
	lk       sync.Mutex
	handlers map[string]fakeHandler
	calls    []string
}

var _ Transport = (*fakeTransport)(nil)

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[string]fakeHandler)}
}

func (f *fakeTransport) handle(host string, h fakeHandler) {
	f.lk.Lock()
	defer f.lk.Unlock()
	f.handlers[host] = h
}

func (f *fakeTransport) serve(ctx context.Context, node Node, body []byte) (Response, error) {
	f.lk.Lock()
	f.calls = append(f.calls, node.URL.String())
	h, ok := f.handlers[node.URL.Host]
	f.lk.Unlock()
	if !ok {
		return nil, fmt.Errorf("dial %s: connection refused", node.URL.Host)
	}
	return h(ctx, node.URL, body)
}

func (f *fakeTransport) Get(ctx context.Context, node Node, _ time.Duration) (Response, error) {
	return f.serve(ctx, node, nil)
}

func (f *fakeTransport) GetBytes(ctx context.Context, node Node, _ time.Duration) (Response, error) {
	return f.serve(ctx, node, nil)
}

func (f *fakeTransport) PostBytes(ctx context.Context, node Node, _ time.Duration, body []byte) (Response, error) {
	return f.serve(ctx, node, body)
}

func (f *fakeTransport) PostJSON(ctx context.Context, node Node, _ time.Duration, body any) (Response, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return f.serve(ctx, node, b)
}

// callsTo returns the hosts that were asked for path, in call order.
func (f *fakeTransport) callsTo(path string) []string {
	f.lk.Lock()
	defer f.lk.Unlock()
	var hosts []string
	for _, c := range f.calls {
		u, _ := url.Parse(c)
		if strings.Trim(u.Path, "/") == path {
			hosts = append(hosts, u.Host)
		}
	}
	return hosts
}

type fakeResponse struct {
	status int
	body   []byte
}

func (r *fakeResponse) Status() int { return r.status }

func (r *fakeResponse) JSON(v any) error {
	if err := json.Unmarshal(r.body, v); err != nil {
		return &DecodeError{URL: "fake", Err: err}
	}
	return nil
}

func (r *fakeResponse) Text() (string, error) {
	if !utf8.Valid(r.body) {
		return "", &DecodeError{URL: "fake", Err: errors.New("non UTF8 response body")}
	}
	return string(r.body), nil
}

func (r *fakeResponse) Bytes() ([]byte, error) { return r.body, nil }

func respond(status int, body string) fakeHandler {
	return func(context.Context, *url.URL, []byte) (Response, error) {
		return &fakeResponse{status: status, body: []byte(body)}, nil
	}
}

// inTurn answers the n-th call it serves with bodies[n], whichever host it is bound to.
func inTurn(bodies ...string) fakeHandler {
	var lk sync.Mutex
	n := 0
	return func(context.Context, *url.URL, []byte) (Response, error) {
		lk.Lock()
		defer lk.Unlock()
		b := bodies[n%len(bodies)]
		n++
		return &fakeResponse{status: 200, body: []byte(b)}, nil
	}
}

func notFound() fakeHandler {
	return func(_ context.Context, u *url.URL, _ []byte) (Response, error) {
		return nil, &ResponseError{Code: 404, URL: u.String()}
	}
}

func failing() fakeHandler {
	return func(context.Context, *url.URL, []byte) (Response, error) {
		return nil, errors.New("connection reset by peer")
	}
}

// ledgerNode answers the info endpoint with network and health, and any other path with body.
func ledgerNode(network string, healthy bool, body string, features ...string) fakeHandler {
	return func(_ context.Context, u *url.URL, _ []byte) (Response, error) {
		if strings.HasSuffix(strings.Trim(u.Path, "/"), nodeInfoPath) {
			b, _ := json.Marshal(NodeInfo{
				Name:     u.Host,
				Version:  "2.0.0",
				Status:   NodeStatus{IsHealthy: healthy},
				Protocol: ProtocolParameters{NetworkName: network, Bech32HRP: "rms", TokenSupply: "1000"},
				Features: features,
			})
			return &fakeResponse{status: 200, body: b}, nil
		}
		return &fakeResponse{status: 200, body: []byte(body)}, nil
	}
}

func hostURL(host string) string {
	return "http://" + host
}

func nodeConfigs(hosts ...string) []NodeConfig {
	ncs := make([]NodeConfig, len(hosts))
	for i, h := range hosts {
		ncs[i] = NodeConfig{URL: hostURL(h)}
	}
	return ncs
}

// newTestManager builds a manager on ft. Sync stays off unless the config turns it on.
func newTestManager(t *testing.T, ft *fakeTransport, configure func(c *Config)) *NodeManager {
	t.Helper()
	c := DefaultConfig()
	c.NodeSyncDisabled = true
	c.NodeSyncInterval = time.Hour
	c.Transport = ft
	if configure != nil {
		configure(c)
	}
	m, err := New(c)
	require.NoError(t, err)
	t.Cleanup(func() {
		if !m.closed.Load() {
			m.Close()
		}
	})
	return m
}
