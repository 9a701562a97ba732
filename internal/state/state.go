package state

import (
	"errors"
	"sync"
)

// ErrPoisoned is returned by a Cell whose writer panicked while holding the lock.
var ErrPoisoned error = errors.New("shared state poisoned by a panicking writer")

// Cell is a value shared by many readers and a single writer.
// Readers always observe a complete value: writes happen under the exclusive lock.
type Cell[T any] struct {
	lk       sync.RWMutex
	val      T    // guarded by lk
	poisoned bool // guarded by lk
}

func NewCell[T any](v T) *Cell[T] {
	return &Cell[T]{val: v}
}

// Load returns the current value.
func (c *Cell[T]) Load() (T, error) {
	c.lk.RLock()
	defer c.lk.RUnlock()
	if c.poisoned {
		var zero T
		return zero, ErrPoisoned
	}
	return c.val, nil
}

// Read calls f with the current value while holding the read lock.
func (c *Cell[T]) Read(f func(T)) error {
	c.lk.RLock()
	defer c.lk.RUnlock()
	if c.poisoned {
		return ErrPoisoned
	}
	f(c.val)
	return nil
}

// Store replaces the value.
func (c *Cell[T]) Store(v T) error {
	return c.Modify(func(cur *T) { *cur = v })
}

// Modify calls f with a pointer to the value while holding the write lock.
// If f panics the cell is poisoned and the panic continues.
func (c *Cell[T]) Modify(f func(*T)) error {
	c.lk.Lock()
	defer c.lk.Unlock()
	if c.poisoned {
		return ErrPoisoned
	}
	defer func() {
		if r := recover(); r != nil {
			c.poisoned = true
			panic(r)
		}
	}()
	f(&c.val)
	return nil
}
