// Copyright ©2026 The ExpT-Tensor Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package diagram implements the Diagram (spec.md §4.F): a named tensor
// over the full spinor space, realized as the set of its DPD-symmetry-
// allowed blocks plus an O(1) inverse index from a spinor-block tuple to
// the block holding it.
package diagram

import (
	"fmt"

	"github.com/exptcc/tensor/arith"
	"github.com/exptcc/tensor/block"
	"github.com/exptcc/tensor/symmetry"
	"github.com/exptcc/tensor/tensor"
)

// MaxRank bounds the rank New accepts, mirroring CC_DIAGRAM_MAX_RANK in the
// reference engine. The canonical-orbit search in package block (used when
// onlyUnique is set) handles ranks 2, 4 and 6 only.
const MaxRank = 8

// Diagram is one named tensor quantity: T1, T2, the Hamiltonian's pphh
// block, and so on (spec.md glossary "Diagram").
type Diagram[T arith.Value] struct {
	Name     string
	Rank     int
	Symmetry int // operator irrep this diagram transforms as
	Only     bool // only_unique: whether non-unique blocks are pruned from storage

	Qparts  []byte // 'h'/'p' per dimension, natural order
	Valence []int  // 0/1 per dimension, natural order
	T3space []int  // 0/1 per dimension, natural order
	Order   []int  // current layout relative to natural order

	Blocks []*block.Block[T]

	numSpinorBlocks int
	invIndex        []int // linear(spinor-block tuple) -> index into Blocks, or -1
}

// noSuchBlock is the inverse-index sentinel for an absent entry. Using a
// dedicated sentinel (rather than defaulting to block index 0, as the
// reference engine's inv_index does) is what removes the "returns wrong
// pointer" workaround the source carries around diagram_get_block: a miss
// is now representable and GetBlock never needs to re-verify its answer.
const noSuchBlock = -1

// New builds a diagram by enumerating every spinor-block tuple of the given
// rank, keeping those allowed by the DPD symmetry filter (spec.md §4.E step
// 1) and non-empty under the content filter (step 2). qparts/valence/
// t3space/order are in natural (pre-reorder) layout, length rank.
//
// restrictT3 gates the T3space filter exactly as in package block's New.
// storageFor and backend are forwarded to every constructed block.
func New[T arith.Value](
	name string,
	qparts []byte,
	valence []int,
	t3space []int,
	order []int,
	irrep int,
	onlyUnique bool,
	sym *symmetry.Registry,
	sp block.Spinors,
	restrictT3 bool,
	storageFor func(rank int, shape []int) block.Storage,
	backend block.Backend[T],
) (*Diagram[T], error) {
	rank := len(qparts)
	if len(valence) != rank || len(t3space) != rank || len(order) != rank {
		return nil, fmt.Errorf("diagram: metadata length mismatch for %q: qparts=%d valence=%d t3space=%d order=%d",
			name, len(qparts), len(valence), len(t3space), len(order))
	}
	if rank == 0 {
		return nil, fmt.Errorf("diagram: %q has rank 0", name)
	}
	if rank > MaxRank {
		return nil, fmt.Errorf("diagram: %q rank %d exceeds MaxRank %d", name, rank, MaxRank)
	}

	dg := &Diagram[T]{
		Name:            name,
		Rank:            rank,
		Symmetry:        irrep,
		Only:            onlyUnique,
		Qparts:          append([]byte(nil), qparts...),
		Valence:         append([]int(nil), valence...),
		T3space:         append([]int(nil), t3space...),
		Order:           append([]int(nil), order...),
		numSpinorBlocks: sp.NumBlocks(),
	}

	spec := block.Spec{Qparts: dg.Qparts, Valence: dg.Valence, T3space: dg.T3space, Order: dg.Order}
	reverseOrder := tensor.InversePermutation(dg.Order)

	n := dg.numSpinorBlocks
	ijkl := make([]int, rank)
	sb := make([]int, rank)
	for ijkl[0] < n {
		for i := 0; i < rank; i++ {
			sb[i] = sp.BlockIrrep(ijkl[reverseOrder[i]])
		}
		ok, err := sym.ContainsTotallySymmetric(sb, irrep)
		if err != nil {
			return nil, fmt.Errorf("diagram: %q: %w", name, err)
		}
		if ok {
			b, created, err := block.New(ijkl, spec, sp, restrictT3, onlyUnique, storageFor, backend)
			if err != nil {
				return nil, fmt.Errorf("diagram: %q: %w", name, err)
			}
			if created {
				dg.Blocks = append(dg.Blocks, b)
			}
		}

		ijkl[rank-1]++
		for i := rank - 1; i > 0; i-- {
			if ijkl[i] >= n {
				ijkl[i] = 0
				ijkl[i-1]++
			} else {
				break
			}
		}
	}

	dg.buildInverseIndex()
	return dg, nil
}

func (dg *Diagram[T]) buildInverseIndex() {
	dims := make([]int, dg.Rank)
	for i := range dims {
		dims[i] = dg.numSpinorBlocks
	}
	strides := tensor.Strides(dims)

	size := 1
	for range dims {
		size *= dg.numSpinorBlocks
	}
	dg.invIndex = make([]int, size)
	for i := range dg.invIndex {
		dg.invIndex[i] = noSuchBlock
	}
	for bi, b := range dg.Blocks {
		lin := tensor.Linear(b.SpinorBlocks, strides)
		dg.invIndex[lin] = bi
	}
}

// GetBlock finds the block occupying spinor-block tuple sb in O(1) via the
// inverse index, or reports false if no such block was created (either out
// of symmetry or because its content filter left it empty).
func (dg *Diagram[T]) GetBlock(sb []int) (*block.Block[T], bool) {
	if len(dg.Blocks) == 0 {
		return nil, false
	}
	dims := make([]int, dg.Rank)
	for i := range dims {
		dims[i] = dg.numSpinorBlocks
	}
	lin := tensor.Linear(sb, tensor.Strides(dims))
	bi := dg.invIndex[lin]
	if bi == noSuchBlock {
		return nil, false
	}
	return dg.Blocks[bi], true
}

// Get returns the matrix element at global spinor tuple idx, routing
// through the unique representative and applying its canonical-orbit sign
// when idx's own block is not unique (spec.md §4.F "Get/Set").
func (dg *Diagram[T]) Get(idx []int, sp block.Spinors) (T, error) {
	var zero T
	sb := make([]int, dg.Rank)
	for i, s := range idx {
		sb[i] = sp.SpinorBlock(s)
	}

	b, ok := dg.GetBlock(sb)
	if !ok {
		return zero, nil
	}
	if b.IsUnique {
		if err := b.Load(); err != nil {
			return zero, err
		}
		v := b.Get(idx)
		b.Unload()
		return v, nil
	}

	uniqueSB := applyPerm(sb, b.PermToUnique)
	uniqueIdx := applyPerm(idx, b.PermToUnique)
	ub, ok := dg.GetBlock(uniqueSB)
	if !ok {
		return zero, nil
	}
	if err := ub.Load(); err != nil {
		return zero, err
	}
	v := ub.Get(uniqueIdx)
	ub.Unload()
	if b.Sign < 0 {
		v = arith.Negate(v)
	}
	return v, nil
}

// Set stores val at global spinor tuple idx, but only through idx's own
// block when that block is unique; setting through a non-unique block is
// rejected the way the source engine's diagram_set silently ignores it,
// since writing a restored copy would not be reflected back onto the
// unique representative.
func (dg *Diagram[T]) Set(idx []int, val T, sp block.Spinors) error {
	sb := make([]int, dg.Rank)
	for i, s := range idx {
		sb[i] = sp.SpinorBlock(s)
	}
	b, ok := dg.GetBlock(sb)
	if !ok || !b.IsUnique {
		return nil
	}
	if err := b.Load(); err != nil {
		return err
	}
	b.Set(idx, val)
	return b.Store()
}

// RestoreBlock returns b's data as a plain buffer in b's own declared
// layout: b's own buffer if it is unique, or its partner's buffer
// transposed and signed through block.Restore otherwise. This is the
// diagram-level half of restore_block — it owns the inverse-index lookup
// that package block cannot perform itself.
func (dg *Diagram[T]) RestoreBlock(b *block.Block[T]) ([]T, error) {
	if b.IsUnique {
		if err := b.Load(); err != nil {
			return nil, err
		}
		buf := append([]T(nil), b.Buf()...)
		b.Unload()
		return buf, nil
	}
	uniqueSB := applyPerm(b.SpinorBlocks, b.PermToUnique)
	partner, ok := dg.GetBlock(uniqueSB)
	if !ok {
		return nil, fmt.Errorf("diagram: %q: no unique partner for non-unique block with spinor blocks %v", dg.Name, b.SpinorBlocks)
	}
	return block.Restore(b, partner)
}

func applyPerm(v, perm []int) []int {
	out := make([]int, len(v))
	for i, p := range perm {
		out[i] = v[p]
	}
	return out
}

// Clear zeroes every block's buffer in place.
func (dg *Diagram[T]) Clear() error {
	for _, b := range dg.Blocks {
		if err := b.Load(); err != nil {
			return err
		}
		buf := b.Buf()
		var zero T
		for i := range buf {
			buf[i] = zero
		}
		if err := b.Store(); err != nil {
			return err
		}
	}
	return nil
}

// Rename changes the diagram's display name in place; used after Copy to
// give a clone a distinct identity the way diagram_copy appends "_copy".
func (dg *Diagram[T]) Rename(name string) { dg.Name = name }

// Copy builds an independent clone sharing dg's metadata (qparts, valence,
// t3space, order, symmetry, uniqueness policy) but fresh block storage and
// IDs, then copies every block's data over (spec.md §4.F "Copy"). The
// clone's blocks are created by the same deterministic enumeration as dg's,
// so Blocks[i] in the clone corresponds index-for-index to dg.Blocks[i].
func Copy[T arith.Value](
	dg *Diagram[T],
	newName string,
	sym *symmetry.Registry,
	sp block.Spinors,
	restrictT3 bool,
	storageFor func(rank int, shape []int) block.Storage,
	backend block.Backend[T],
) (*Diagram[T], error) {
	clone, err := New(newName, dg.Qparts, dg.Valence, dg.T3space, dg.Order, dg.Symmetry, dg.Only, sym, sp, restrictT3, storageFor, backend)
	if err != nil {
		return nil, err
	}
	if len(clone.Blocks) != len(dg.Blocks) {
		return nil, fmt.Errorf("diagram: copy of %q produced %d blocks, source has %d", dg.Name, len(clone.Blocks), len(dg.Blocks))
	}
	for i, src := range dg.Blocks {
		dst := clone.Blocks[i]
		if err := src.Load(); err != nil {
			return nil, err
		}
		buf := append([]T(nil), src.Buf()...)
		src.Unload()
		dst.SetBuf(buf)
		if err := dst.Store(); err != nil {
			return nil, err
		}
	}
	return clone, nil
}

// MemoryUsed sums the RAM and on-disk footprint of this diagram's blocks,
// in elements (not bytes): the caller scales by the element size, matching
// diagram_get_memory_used's separation of RAM from disk (spec.md §4.F).
func (dg *Diagram[T]) MemoryUsed() (ramElems, diskElems int64) {
	for _, b := range dg.Blocks {
		switch b.Storage {
		case block.InMemory:
			ramElems += int64(b.Size)
		case block.OnDisk:
			diskElems += int64(b.Size)
		}
	}
	return
}

// StorageType reports OnDisk if any block spilled to disk, In-memory
// otherwise; a diagram is only as good as its worst block.
func (dg *Diagram[T]) StorageType() block.Storage {
	for _, b := range dg.Blocks {
		if b.Storage == block.OnDisk {
			return block.OnDisk
		}
	}
	return block.InMemory
}

// NumUnique counts blocks carrying their own storage (IsUnique), the
// denominator-free count diagram_summary reports alongside len(Blocks).
func (dg *Diagram[T]) NumUnique() int {
	n := 0
	for _, b := range dg.Blocks {
		if b.IsUnique {
			n++
		}
	}
	return n
}

// SetOrder overwrites the diagram's order permutation in place, used by
// sorting/reordering operations that relabel a diagram's layout without
// rebuilding its blocks (spec.md §4.I "reorder"). Callers are responsible
// for keeping any already-built blocks' interpretation consistent; SetOrder
// itself only updates the metadata array.
func (dg *Diagram[T]) SetOrder(order []int) error {
	if len(order) != dg.Rank {
		return fmt.Errorf("diagram: SetOrder: length %d, want rank %d", len(order), dg.Rank)
	}
	copy(dg.Order, order)
	return nil
}

// Summary formats the one-line status diagram_summary prints: name, irrep,
// qparts/valence/t3space/order strings, and unique/total block counts.
func (dg *Diagram[T]) Summary(irrepName string) string {
	return fmt.Sprintf("diagram %s: irrep=%d(%s) %s %s %s %s %d/%d",
		dg.Name, dg.Symmetry, irrepName,
		string(dg.Qparts), digitsOf(dg.Valence), digitsOf(dg.T3space), digitsOf(dg.Order),
		dg.NumUnique(), len(dg.Blocks))
}

func digitsOf(v []int) string {
	buf := make([]byte, len(v))
	for i, d := range v {
		buf[i] = byte('0' + d)
	}
	return string(buf)
}

// Delete releases every block's storage (spec.md §4.F "Delete").
func (dg *Diagram[T]) Delete() error {
	for _, b := range dg.Blocks {
		if err := b.Delete(); err != nil {
			return err
		}
	}
	dg.Blocks = nil
	dg.invIndex = nil
	return nil
}
