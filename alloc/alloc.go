// Copyright ©2026 The ExpT-Tensor Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package alloc implements the byte-ceiling allocator the engine uses to
// decide whether a new block's buffer fits in memory or must spill to disk
// (spec.md §5, grounded on the source engine's mem_usage tracking that
// feeds storageFor's in-memory-vs-on-disk decision throughout diagram.c).
// Resource-exhaustion errors are reported with human-readable byte sizes
// via github.com/c2h5oh/datasize, the convention-setting library for this
// concern in the retrieved pack.
package alloc

import (
	"fmt"

	"github.com/c2h5oh/datasize"
)

// Budget tracks a fixed memory ceiling and the bytes currently charged
// against it. One Budget is shared by every diagram an engine.Engine
// builds, mirroring the single global "available RAM" figure the source
// engine checks before choosing a block's storage mode.
type Budget struct {
	ceiling datasize.ByteSize
	used    datasize.ByteSize
}

// NewBudget returns a Budget with the given ceiling in bytes.
func NewBudget(ceilingBytes uint64) *Budget {
	return &Budget{ceiling: datasize.ByteSize(ceilingBytes)}
}

// Ceiling reports the configured memory ceiling.
func (b *Budget) Ceiling() datasize.ByteSize { return b.ceiling }

// Used reports bytes currently charged against the ceiling.
func (b *Budget) Used() datasize.ByteSize { return b.used }

// Remaining reports how many bytes are left before the ceiling is reached.
func (b *Budget) Remaining() datasize.ByteSize {
	if b.used >= b.ceiling {
		return 0
	}
	return b.ceiling - b.used
}

// Fits reports whether n more elements of elemBytes each would stay within
// the ceiling without actually charging them — the pure predicate
// engine.StorageFor uses to pick InMemory vs. OnDisk for a new block.
func (b *Budget) Fits(n int, elemBytes int) bool {
	need := datasize.ByteSize(n) * datasize.ByteSize(elemBytes)
	return b.used+need <= b.ceiling
}

// Charge reserves n elements of elemBytes each against the ceiling, failing
// with a human-readable over-budget error (spec.md §7's resource-exhaustion
// error family) if it would exceed it.
func (b *Budget) Charge(n int, elemBytes int) error {
	need := datasize.ByteSize(n) * datasize.ByteSize(elemBytes)
	if b.used+need > b.ceiling {
		return fmt.Errorf("alloc: charging %s would exceed the %s memory ceiling (already using %s)",
			need.HumanReadable(), b.ceiling.HumanReadable(), b.used.HumanReadable())
	}
	b.used += need
	return nil
}

// Release returns n elements of elemBytes each to the budget, used when a
// block is freed or spilled to disk.
func (b *Budget) Release(n int, elemBytes int) {
	freed := datasize.ByteSize(n) * datasize.ByteSize(elemBytes)
	if freed > b.used {
		b.used = 0
		return
	}
	b.used -= freed
}

// String renders the budget's state for diagnostic logging, e.g.
// "1.2 GB / 4.0 GB".
func (b *Budget) String() string {
	return fmt.Sprintf("%s / %s", b.used.HumanReadable(), b.ceiling.HumanReadable())
}
