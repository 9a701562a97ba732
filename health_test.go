package nodemanager

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHealthTracker(t *testing.T) {
	h := NewHealthTracker()
	nodes, err := h.Nodes()
	require.NoError(t, err)
	require.Empty(t, nodes)

	a, _ := NewNode("https://a.example", nil)
	b, _ := NewNode("https://b.example", nil)

	require.NoError(t, h.Replace([]Node{a, b}))
	ok, err := h.Contains(a)
	require.NoError(t, err)
	require.True(t, ok)

	// callers can't change the published set
	nodes, _ = h.Nodes()
	nodes[0] = b
	again, _ := h.Nodes()
	require.True(t, again[0].Equals(a))

	require.NoError(t, h.Replace([]Node{b}))
	ok, _ = h.Contains(a)
	require.False(t, ok)
	require.EqualValues(t, 2, h.Writes())
}
