package nodemanager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func hosts(nodes []Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.URL.Host
	}
	return out
}

func TestGetNodesOrder(t *testing.T) {
	m := newTestManager(t, newFakeTransport(), func(c *Config) {
		c.PrimaryNode = &NodeConfig{URL: hostURL("primary")}
		c.PrimaryPoWNode = &NodeConfig{URL: hostURL("pow")}
		c.Nodes = nodeConfigs("a", "b", "c", "primary")
		c.Permanodes = nodeConfigs("perma")
	})
	ctx := context.Background()

	nodes, err := m.getNodes(ctx, "api/core/v2/outputs", "", false, false)
	require.NoError(t, err)
	require.Len(t, nodes, 4)
	require.Equal(t, "primary", nodes[0].URL.Host)
	require.ElementsMatch(t, []string{"a", "b", "c"}, hosts(nodes[1:]))

	nodes, err = m.getNodes(ctx, "api/core/v2/outputs", "", true, false)
	require.NoError(t, err)
	require.Equal(t, []string{"pow", "primary"}, hosts(nodes[:2]))

	nodes, err = m.getNodes(ctx, "api/core/v2/outputs", "", true, true)
	require.NoError(t, err)
	require.Equal(t, []string{"perma", "pow", "primary"}, hosts(nodes[:3]))
	require.Len(t, nodes, 6)
}

func TestGetNodesBlockQueryPrefersPermanodes(t *testing.T) {
	m := newTestManager(t, newFakeTransport(), func(c *Config) {
		c.PrimaryNode = &NodeConfig{URL: hostURL("primary")}
		c.Permanodes = nodeConfigs("perma")
	})

	nodes, err := m.getNodes(context.Background(), blocksPath, "tag=0x01", false, false)
	require.NoError(t, err)
	require.Equal(t, []string{"perma", "primary"}, hosts(nodes))
	require.Equal(t, "tag=0x01", nodes[0].URL.RawQuery)

	nodes, err = m.getNodes(context.Background(), blocksPath, "", false, false)
	require.NoError(t, err)
	require.Equal(t, []string{"primary"}, hosts(nodes))
}

func TestGetNodesAppliesPath(t *testing.T) {
	m := newTestManager(t, newFakeTransport(), func(c *Config) {
		c.Nodes = []NodeConfig{{URL: "https://node.example/base/"}}
	})

	nodes, err := m.getNodes(context.Background(), "/api/core/v2/tips", "a=b", false, false)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	require.Equal(t, "https://node.example/base/api/core/v2/tips?a=b", nodes[0].String())
}

func TestGetNodesSkipsDisabled(t *testing.T) {
	m := newTestManager(t, newFakeTransport(), func(c *Config) {
		c.PrimaryNode = &NodeConfig{URL: hostURL("primary"), Disabled: true}
		c.Nodes = []NodeConfig{{URL: hostURL("a")}, {URL: hostURL("b"), Disabled: true}}
	})

	nodes, err := m.getNodes(context.Background(), "x", "", false, false)
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, hosts(nodes))
}

func TestGetNodesEmpty(t *testing.T) {
	m := newTestManager(t, newFakeTransport(), func(c *Config) {
		c.Nodes = []NodeConfig{{URL: hostURL("a"), Disabled: true}}
	})

	_, err := m.getNodes(context.Background(), "x", "", false, false)
	require.ErrorIs(t, err, ErrSyncedNodePoolEmpty)
}

func TestGetNodesAffinity(t *testing.T) {
	m := newTestManager(t, newFakeTransport(), func(c *Config) {
		c.Nodes = nodeConfigs("a", "b", "c", "d", "e", "f", "g", "h")
	})
	ctx := WithAffinity(context.Background(), "wallet-1")

	first, err := m.getNodes(ctx, "x", "", false, false)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := m.getNodes(ctx, "x", "", false, false)
		require.NoError(t, err)
		require.Equal(t, hosts(first), hosts(again))
	}
}

func TestGetNodesUsesHealthySetWhenSyncing(t *testing.T) {
	ft := newFakeTransport()
	ft.handle("a", ledgerNode("main", true, "{}"))
	ft.handle("b", ledgerNode("main", false, "{}"))
	m := newTestManager(t, ft, func(c *Config) {
		c.NodeSyncDisabled = false
		c.Nodes = nodeConfigs("a", "b")
	})

	nodes, err := m.getNodes(context.Background(), "x", "", false, false)
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, hosts(nodes))
}

func TestGetNodesAfterClose(t *testing.T) {
	m := newTestManager(t, newFakeTransport(), func(c *Config) {
		c.Nodes = nodeConfigs("a")
	})
	m.Close()

	_, err := m.getNodes(context.Background(), "x", "", false, false)
	require.ErrorIs(t, err, ErrClosed)
}
