// Package ident provides process-unique numeric identifiers and write-once
// identifier cells used by assets, dependencies and bundles.
package ident

import (
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
)

var (
	// ErrIDAlreadySet is returned when a write-once identifier is written twice.
	ErrIDAlreadySet = errors.New("identifier already set")
	// ErrIDNotSet is returned when an identifier is read before it was written.
	ErrIDNotSet = errors.New("identifier not set")
)

// InternalID is a monotonically increasing 64-bit identifier.
type InternalID uint64

func (id InternalID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Counter hands out InternalIDs. The zero value is ready to use and the
// first id returned is 1, so 0 never names a real entity.
type Counter struct {
	last atomic.Uint64
}

// Next returns the next id.
func (c *Counter) Next() InternalID {
	return InternalID(c.last.Add(1))
}

// Last returns the most recently issued id (0 if none).
func (c *Counter) Last() InternalID {
	return InternalID(c.last.Load())
}

var process Counter

// Next returns a process-unique id from the package-level counter.
func Next() InternalID {
	return process.Next()
}

// Identifier is a write-once cell. T is a phantom tag so ids of different
// entities do not mix at compile time.
type Identifier[T any] struct {
	mu  sync.RWMutex
	id  InternalID
	set bool
}

// Set stores id. A second call fails with ErrIDAlreadySet.
func (i *Identifier[T]) Set(id InternalID) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.set {
		return ErrIDAlreadySet
	}
	i.id = id
	i.set = true
	return nil
}

// Get returns the stored id or ErrIDNotSet.
func (i *Identifier[T]) Get() (InternalID, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if !i.set {
		return 0, ErrIDNotSet
	}
	return i.id, nil
}

// MustGet returns the stored id and panics if it was never set.
func (i *Identifier[T]) MustGet() InternalID {
	id, err := i.Get()
	if err != nil {
		panic(err)
	}
	return id
}

// IsSet reports whether Set succeeded before.
func (i *Identifier[T]) IsSet() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.set
}

func (i *Identifier[T]) String() string {
	id, err := i.Get()
	if err != nil {
		return "<unset>"
	}
	return id.String()
}
