// Copyright ©2026 The ExpT-Tensor Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package block implements the symmetry block (spec.md §4.E): one dense
// tile of a diagram, its storage-mode buffer, and the canonical-orbit
// (uniqueness) metadata that lets only one representative per
// antisymmetrizer orbit carry storage.
package block

import (
	"fmt"

	"github.com/exptcc/tensor/arith"
	"github.com/exptcc/tensor/tensor"
)

// Storage is the closed set of buffer residency variants (spec.md §4.E
// step 4, design note "Block storage polymorphism").
type Storage int

const (
	InMemory Storage = iota
	OnDisk
	Dummy
)

func (s Storage) String() string {
	switch s {
	case InMemory:
		return "in-memory"
	case OnDisk:
		return "on-disk"
	case Dummy:
		return "dummy"
	default:
		return "unknown"
	}
}

// Backend abstracts the on-disk side of a Storage=OnDisk block so package
// block never touches a filesystem path directly; package persist supplies
// the concrete implementation (spec.md §4.J).
type Backend[T arith.Value] interface {
	// Load reads back a previously stored buffer of n elements for file.
	Load(file string, n int) ([]T, error)
	// Store writes buf under file, to be retrieved later by Load.
	Store(file string, buf []T) error
	// Remove deletes file's backing storage.
	Remove(file string) error
}

// Block is one dense tile: a tuple of spinor blocks surviving the DPD
// symmetry and content filters, plus its orbit metadata.
type Block[T arith.Value] struct {
	ID int64

	Rank          int
	SpinorBlocks  []int   // spinor block index per dimension
	Shape         []int   // per-dimension tile extent (after filtering)
	Indices       [][]int // Indices[i] = surviving global spinor indices for dim i
	Size          int     // product of Shape

	Storage Storage
	buf     []T    // valid buffer when resident (InMemory when loaded, or always for Dummy=nil)
	file    string // backing file name when Storage == OnDisk

	IsUnique      bool
	Sign          int
	NEqualPerms   int
	PermToUnique  []int // maps a query index tuple to the unique block's layout
	PermFromUnique []int // inverse of PermToUnique

	IsCompressed bool

	backend Backend[T]
}

var nextID int64

func newID() int64 {
	nextID++
	return nextID
}

// Spec bundles the per-dimension metadata needed to build one block, i.e.
// the diagram template's qparts/valence/t3space expressed in natural
// (pre-order) layout plus the order permutation itself.
type Spec struct {
	Qparts  []byte // 'h' or 'p' per index, natural order
	Valence []int  // 0/1 per index, natural order
	T3space []int  // 0/1 per index, natural order
	Order   []int  // current layout relative to natural order (1-based in spec.md text; 0-based here)
}

// Spinors is the minimal spinor-registry surface block construction needs:
// the ascending member list of a spinor block, and the three per-spinor
// predicates the content filter tests (spec.md §4.E step 2). Satisfied by
// a thin adapter over *spinor.Registry.
type Spinors interface {
	NumBlocks() int
	BlockIrrep(spinorBlock int) int
	BlockMembers(spinorBlock int) []int
	SpinorBlock(spinorIdx int) int
	IsHole(spinorIdx int) bool
	IsActive(spinorIdx int) bool
	IsT3Space(spinorIdx int) bool
	Energy(spinorIdx int) float64
}

// New builds one block for spinor-block tuple sb, or (nil, false) if any
// dimension is empty after the content filter (spec.md §4.E steps 2-3).
// Callers apply the DPD symmetry filter (step 1) before calling New, since
// it only needs irrep numbers, not a full Spinors lookup.
//
// restrictT3 gates whether the t3space filter participates in the content
// filter, mirroring the source engine's do_restrict_t3 option: when false,
// every spinor passes the T3 test regardless of spec.T3space.
func New[T arith.Value](
	sb []int,
	spec Spec,
	sp Spinors,
	restrictT3 bool,
	onlyUnique bool,
	storageFor func(rank int, shape []int) Storage,
	backend Backend[T],
) (*Block[T], bool, error) {
	rank := len(sb)
	if len(spec.Qparts) != rank || len(spec.Valence) != rank || len(spec.Order) != rank {
		return nil, false, fmt.Errorf("block: spec length mismatch with spinor-block tuple of rank %d", rank)
	}

	b := &Block[T]{
		ID:           newID(),
		Rank:         rank,
		SpinorBlocks: append([]int(nil), sb...),
		Shape:        make([]int, rank),
		Indices:      make([][]int, rank),
		Size:         1,
		backend:      backend,
	}

	for i := 0; i < rank; i++ {
		members := sp.BlockMembers(sb[i])
		var survivors []int
		for _, s := range members {
			if spec.Qparts[i] == 'h' && !sp.IsHole(s) {
				continue
			}
			if spec.Qparts[i] == 'p' && sp.IsHole(s) {
				continue
			}
			active := sp.IsActive(s)
			if spec.Valence[i] == 1 && !active {
				continue
			}
			// spec.Valence[i] == 0 accepts both active and inactive spinors
			// (spec.md §4.E step 2: only the "must be active" direction restricts).
			if restrictT3 {
				if spec.T3space[i] == 1 && !sp.IsT3Space(s) {
					continue
				}
			}
			survivors = append(survivors, s)
		}
		b.Indices[i] = survivors
		b.Shape[i] = len(survivors)
		b.Size *= len(survivors)
		if b.Size == 0 {
			return nil, false, nil
		}
	}

	b.IsUnique = true
	b.Sign = 1
	b.NEqualPerms = 1
	b.PermToUnique = identity(rank)
	b.PermFromUnique = identity(rank)
	if onlyUnique {
		computeOrbit(b, spec)
	}

	if !b.IsUnique {
		b.Storage = Dummy
	} else {
		b.Storage = storageFor(rank, b.Shape)
	}

	switch b.Storage {
	case InMemory:
		b.buf = make([]T, b.Size)
	case OnDisk:
		b.file = fmt.Sprintf("block-%d.sb", b.ID)
		b.buf = make([]T, b.Size)
		if err := b.Store(); err != nil {
			return nil, false, err
		}
	case Dummy:
		b.buf = nil
	}

	return b, true, nil
}

func identity(n int) []int {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return p
}

// RelativeIndex finds idx's position within dim i's surviving index list,
// or -1 if idx is not present in this block's tile.
func (b *Block[T]) RelativeIndex(dim, idx int) int {
	for j, v := range b.Indices[dim] {
		if v == idx {
			return j
		}
	}
	return -1
}

// Get returns the buffer element for global spinor tuple idx, or 0 if any
// component falls outside the block's tile (spec.md §4.I "on get they
// return 0"). The caller must have already routed to this block via the
// diagram's inverse index and uniqueness transform.
func (b *Block[T]) Get(idx []int) T {
	rel := make([]int, b.Rank)
	for i := range idx {
		r := b.RelativeIndex(i, idx[i])
		if r < 0 {
			var zero T
			return zero
		}
		rel[i] = r
	}
	v, ok := tensor.Get(b.buf, b.Shape, rel)
	if !ok {
		var zero T
		return zero
	}
	return v
}

// Set stores val at global spinor tuple idx, silently skipping if idx does
// not belong to this block's tile (spec.md §4.I "on set silently skip").
func (b *Block[T]) Set(idx []int, val T) {
	rel := make([]int, b.Rank)
	for i := range idx {
		r := b.RelativeIndex(i, idx[i])
		if r < 0 {
			return
		}
		rel[i] = r
	}
	tensor.Set(b.buf, b.Shape, rel, val)
}

// Buf returns the live buffer; callers must Load first if the block may be
// on disk.
func (b *Block[T]) Buf() []T { return b.buf }

// SetBuf replaces the live buffer, used by ops after computing a new tile.
func (b *Block[T]) SetBuf(buf []T) { b.buf = buf }

// Load pages an on-disk block into memory; a no-op for in-memory or dummy
// blocks (spec.md §4.E "Storage I/O").
func (b *Block[T]) Load() error {
	if b.Storage != OnDisk {
		return nil
	}
	if b.backend == nil {
		return fmt.Errorf("block: on-disk block %d has no backend", b.ID)
	}
	buf, err := b.backend.Load(b.file, b.Size)
	if err != nil {
		return fmt.Errorf("block: load %q: %w", b.file, err)
	}
	b.buf = buf
	return nil
}

// Store flushes an in-memory copy of an on-disk block back to disk and
// frees the RAM copy, preserving invariant I4 (spec.md §3).
func (b *Block[T]) Store() error {
	if b.Storage != OnDisk {
		return nil
	}
	if b.backend == nil {
		return fmt.Errorf("block: on-disk block %d has no backend", b.ID)
	}
	if err := b.backend.Store(b.file, b.buf); err != nil {
		return fmt.Errorf("block: store %q: %w", b.file, err)
	}
	b.buf = nil
	return nil
}

// Unload frees the RAM copy of an on-disk block without writing it back;
// used when the caller knows the buffer was not modified.
func (b *Block[T]) Unload() {
	if b.Storage == OnDisk {
		b.buf = nil
	}
}

// File returns the backing file name for an on-disk block.
func (b *Block[T]) File() string { return b.file }

// SetFile assigns the backing file name (used by constructors and readers).
func (b *Block[T]) SetFile(f string) { b.file = f }

// Delete releases a block's resources: frees the buffer and, for on-disk
// blocks, removes the backing file.
func (b *Block[T]) Delete() error {
	b.buf = nil
	if b.Storage == OnDisk && b.backend != nil {
		return b.backend.Remove(b.file)
	}
	return nil
}

// Restore materializes nonUnique's buffer from its already-located unique
// partner: read the partner's buffer, apply nonUnique's PermFromUnique to
// the index order, and multiply by nonUnique's Sign (spec.md §4.E
// "Restoration"). Package block cannot resolve the partner itself (that is
// an inverse-index lookup, owned by package diagram); callers locate it via
// Diagram.GetBlock(nonUnique.SpinorBlocks transformed by PermToUnique) and
// pass it in. The returned buffer is a fresh copy; it does not mutate
// either block.
func Restore[T arith.Value](nonUnique, partner *Block[T]) ([]T, error) {
	if nonUnique.IsUnique {
		return nil, fmt.Errorf("block: Restore called on already-unique block %d", nonUnique.ID)
	}
	if err := partner.Load(); err != nil {
		return nil, err
	}
	defer partner.Unload()

	out := make([]T, nonUnique.Size)
	tensor.TransposeOutOfPlace(out, partner.Buf(), partner.Shape, nonUnique.PermFromUnique)

	if nonUnique.Sign < 0 {
		for i := range out {
			out[i] = arith.Negate(out[i])
		}
	}
	return out, nil
}
