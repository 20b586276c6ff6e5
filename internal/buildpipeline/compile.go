package buildpipeline

import (
	"fmt"
	"slices"
	"sync"

	"mach/internal/bundler"
	"mach/internal/config"
	"mach/internal/diag"
	"mach/internal/graph"
	"mach/internal/packager"
)

// order is the only path a successful build takes.
var order = []State{StateEmpty, StateResolving, StateTransforming, StateBundling, StatePackaging, StateDone}

// Compilation is one run of the pipeline over a MachConfig.
type Compilation struct {
	Config      *config.MachConfig
	Graph       *graph.AssetGraph
	Bundles     []*bundler.Bundle
	Outputs     []packager.Output
	Diagnostics *diag.Bag
	Timings     Timings
	// Err is the error that moved the compilation to StateFailed.
	Err error

	mu      sync.Mutex
	state   State
	history []State
}

// NewCompilation returns an empty compilation for cfg.
func NewCompilation(cfg *config.MachConfig) *Compilation {
	return &Compilation{
		Config:      cfg,
		Graph:       graph.New(nil, nil),
		Diagnostics: diag.NewBag(diag.DefaultBagSize),
		state:       StateEmpty,
		history:     []State{StateEmpty},
	}
}

func (c *Compilation) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// History returns every state the compilation has been in, oldest first.
func (c *Compilation) History() []State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.history)
}

// advance moves to next. Only the successor in order is accepted, or
// StateFailed from any non-terminal state.
func (c *Compilation) advance(next State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Terminal() {
		return fmt.Errorf("compilation already %s", c.state)
	}
	if next != StateFailed {
		i := slices.Index(order, c.state)
		if i+1 >= len(order) || order[i+1] != next {
			return fmt.Errorf("illegal transition %s -> %s", c.state, next)
		}
	}
	c.state = next
	c.history = append(c.history, next)
	return nil
}

// fail records err and moves to StateFailed.
func (c *Compilation) fail(err error) error {
	c.Err = err
	_ = c.advance(StateFailed)
	return err
}
