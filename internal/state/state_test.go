package state

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCellLoadStore(t *testing.T) {
	c := NewCell([]string{"a"})
	v, err := c.Load()
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, v)

	require.NoError(t, c.Store([]string{"b", "c"}))
	v, err = c.Load()
	require.NoError(t, err)
	require.Equal(t, []string{"b", "c"}, v)
}

func TestCellPoisonedByPanickingWriter(t *testing.T) {
	c := NewCell(1)

	require.Panics(t, func() {
		_ = c.Modify(func(v *int) {
			*v = 2
			panic("boom")
		})
	})

	_, err := c.Load()
	require.ErrorIs(t, err, ErrPoisoned)
	require.ErrorIs(t, c.Store(3), ErrPoisoned)
	require.ErrorIs(t, c.Read(func(int) {}), ErrPoisoned)
}
