// Copyright ©2026 The ExpT-Tensor Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package engine bundles the context every method script operates against:
// the symmetry and spinor registries, the diagram stack, the memory budget,
// the on-disk backend, and a structured logger — replacing the source
// engine's collection of global singletons with one passed-around context
// object (spec.md §9 "Global singletons -> context objects", §1's carrier
// for go.uber.org/zap as the ambient logging library).
package engine

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/exptcc/tensor/alloc"
	"github.com/exptcc/tensor/arith"
	"github.com/exptcc/tensor/block"
	"github.com/exptcc/tensor/ops"
	"github.com/exptcc/tensor/persist"
	"github.com/exptcc/tensor/spinor"
	"github.com/exptcc/tensor/stack"
	"github.com/exptcc/tensor/symmetry"
)

// elemBytes reports the per-element footprint a Value instantiation charges
// against the memory budget.
func elemBytes[T arith.Value]() int {
	var zero T
	switch any(zero).(type) {
	case complex128:
		return 16
	default:
		return 8
	}
}

// Engine is the per-calculation context: everything a method script or a
// sorting/persistence call needs, gathered in one place instead of reached
// for as package-level state.
type Engine[T arith.Value] struct {
	Sym     *symmetry.Registry
	Spinors *spinor.Registry
	Stack   *stack.Stack[T]
	Budget  *alloc.Budget
	Backend *persist.FileBackend[T]
	Log     *zap.Logger

	RestrictT3 bool
}

// Config collects New's construction parameters.
type Config struct {
	MaxStackDepth   int
	MemCeilingBytes uint64
	ScratchDir      string
	RestrictT3      bool
	Logger          *zap.Logger // nil selects zap.NewProduction's default
}

// New builds an Engine: a fresh diagram stack, a memory budget, an on-disk
// backend rooted at cfg.ScratchDir, and a logger (defaulting to zap's
// production configuration when cfg.Logger is nil).
func New[T arith.Value](sym *symmetry.Registry, sp *spinor.Registry, cfg Config) (*Engine[T], error) {
	logger := cfg.Logger
	if logger == nil {
		var err error
		logger, err = zap.NewProduction()
		if err != nil {
			return nil, fmt.Errorf("engine: building default logger: %w", err)
		}
	}

	backend, err := persist.NewFileBackend[T](cfg.ScratchDir)
	if err != nil {
		return nil, err
	}

	return &Engine[T]{
		Sym:        sym,
		Spinors:    sp,
		Stack:      stack.New[T](cfg.MaxStackDepth),
		Budget:     alloc.NewBudget(cfg.MemCeilingBytes),
		Backend:    backend,
		Log:        logger,
		RestrictT3: cfg.RestrictT3,
	}, nil
}

// StorageFor picks a block's storage mode from the engine's memory budget:
// InMemory while it fits the remaining ceiling, OnDisk once it would not,
// mirroring the source engine's "does this block fit in the remaining RAM
// budget" test ahead of every block allocation (spec.md §4.E step 4).
func (e *Engine[T]) StorageFor(rank int, shape []int) block.Storage {
	size := 1
	for _, s := range shape {
		size *= s
	}
	if e.Budget.Fits(size, elemBytes[T]()) {
		if err := e.Budget.Charge(size, elemBytes[T]()); err != nil {
			e.Log.Warn("memory budget charge failed despite Fits reporting true", zap.Error(err))
			return block.OnDisk
		}
		return block.InMemory
	}
	e.Log.Debug("block spilling to disk", zap.Int("rank", rank), zap.Int("size", size))
	return block.OnDisk
}

// Builder returns an ops.Builder wired to this engine's registries, content
// filter policy, storage decision, and on-disk backend — the context object
// every diagram-creating operation in package ops requires.
func (e *Engine[T]) Builder() ops.Builder[T] {
	return ops.Builder[T]{
		Sym:        e.Sym,
		Sp:         e.Spinors,
		RestrictT3: e.RestrictT3,
		StorageFor: e.StorageFor,
		Backend:    e.Backend,
	}
}

// Close flushes the logger and releases engine-held resources.
func (e *Engine[T]) Close() error {
	return e.Log.Sync()
}
