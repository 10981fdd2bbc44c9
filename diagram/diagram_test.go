// Copyright ©2026 The ExpT-Tensor Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package diagram_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/exptcc/tensor/arith"
	"github.com/exptcc/tensor/block"
	"github.com/exptcc/tensor/diagram"
	"github.com/exptcc/tensor/persist"
	"github.com/exptcc/tensor/symmetry"
)

// trivialSpinors is a single-irrep, single-spinor-block fixture: two holes,
// enough to build a rank-2 hh diagram with one nonempty block.
type trivialSpinors struct{}

func (trivialSpinors) NumBlocks() int         { return 1 }
func (trivialSpinors) BlockIrrep(int) int     { return 0 }
func (trivialSpinors) BlockMembers(int) []int { return []int{0, 1} }
func (trivialSpinors) SpinorBlock(int) int    { return 0 }
func (trivialSpinors) IsHole(int) bool        { return true }
func (trivialSpinors) IsActive(int) bool      { return false }
func (trivialSpinors) IsT3Space(int) bool     { return false }
func (trivialSpinors) Energy(s int) float64   { return float64(s) }

func trivialSymmetry(t *testing.T) *symmetry.Registry {
	t.Helper()
	r, err := symmetry.NewFinite([]string{"A"}, [][]int{{0}}, 0, arith.Real)
	if err != nil {
		t.Fatalf("NewFinite: %v", err)
	}
	return r
}

func alwaysInMemory(rank int, shape []int) block.Storage { return block.InMemory }

func hhSpec() ([]byte, []int, []int, []int) {
	return []byte{'h', 'h'}, []int{0, 0}, []int{0, 0}, []int{0, 1}
}

func TestNewBuildsSingleBlockDiagram(t *testing.T) {
	sym := trivialSymmetry(t)
	qparts, valence, t3space, order := hhSpec()
	dg, err := diagram.New[float64]("T2hh", qparts, valence, t3space, order, 0, false, sym, trivialSpinors{}, false, alwaysInMemory, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(dg.Blocks) != 1 {
		t.Fatalf("len(Blocks) = %d, want 1", len(dg.Blocks))
	}
	if dg.Blocks[0].Size != 4 {
		t.Errorf("block size = %d, want 4 (2x2)", dg.Blocks[0].Size)
	}
}

func TestGetSetRoundTrip(t *testing.T) {
	sym := trivialSymmetry(t)
	qparts, valence, t3space, order := hhSpec()
	dg, err := diagram.New[float64]("T2hh", qparts, valence, t3space, order, 0, false, sym, trivialSpinors{}, false, alwaysInMemory, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sp := trivialSpinors{}
	if err := dg.Set([]int{0, 1}, 2.5, sp); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := dg.Get([]int{0, 1}, sp)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != 2.5 {
		t.Errorf("Get(0,1) = %v, want 2.5", got)
	}
}

func TestClearZeroesAllBlocks(t *testing.T) {
	sym := trivialSymmetry(t)
	qparts, valence, t3space, order := hhSpec()
	dg, err := diagram.New[float64]("T2hh", qparts, valence, t3space, order, 0, false, sym, trivialSpinors{}, false, alwaysInMemory, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sp := trivialSpinors{}
	dg.Set([]int{0, 1}, 9, sp)
	if err := dg.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	got, _ := dg.Get([]int{0, 1}, sp)
	if got != 0 {
		t.Errorf("Get after Clear = %v, want 0", got)
	}
}

func TestCopyProducesIndependentDiagram(t *testing.T) {
	sym := trivialSymmetry(t)
	qparts, valence, t3space, order := hhSpec()
	dg, err := diagram.New[float64]("T2hh", qparts, valence, t3space, order, 0, false, sym, trivialSpinors{}, false, alwaysInMemory, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sp := trivialSpinors{}
	dg.Set([]int{0, 1}, 7, sp)

	clone, err := diagram.Copy[float64](dg, "T2hh_copy", sym, sp, false, alwaysInMemory, nil)
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if clone.Name != "T2hh_copy" {
		t.Errorf("clone.Name = %q, want T2hh_copy", clone.Name)
	}
	got, _ := clone.Get([]int{0, 1}, sp)
	if got != 7 {
		t.Errorf("clone value = %v, want 7 (copied from source)", got)
	}

	// mutate the original and confirm the clone is unaffected
	dg.Set([]int{0, 1}, -1, sp)
	got, _ = clone.Get([]int{0, 1}, sp)
	if got != 7 {
		t.Errorf("clone value after mutating source = %v, want unchanged 7", got)
	}
}

func TestMemoryUsedAndNumUnique(t *testing.T) {
	sym := trivialSymmetry(t)
	qparts, valence, t3space, order := hhSpec()
	dg, err := diagram.New[float64]("T2hh", qparts, valence, t3space, order, 0, false, sym, trivialSpinors{}, false, alwaysInMemory, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ram, disk := dg.MemoryUsed()
	if ram != 4 || disk != 0 {
		t.Errorf("MemoryUsed = (%d, %d), want (4, 0)", ram, disk)
	}
	if dg.NumUnique() != 1 {
		t.Errorf("NumUnique = %d, want 1", dg.NumUnique())
	}
	if dg.StorageType() != block.InMemory {
		t.Errorf("StorageType = %v, want InMemory", dg.StorageType())
	}
}

// ppvHHSpinors is a rank-4 (p,p,h,h) fixture with two particle blocks (one
// per irrep of a two-irrep group) and a single hole block, built specifically
// to drive block.New's canonical-orbit search through diagram.New with
// onlyUnique=true: the (block1,block0,hole,hole) ordering of the particle
// pair is non-unique and must prune to a Dummy block pointing back at its
// (block0,block1,hole,hole) partner.
type ppvHHSpinors struct{}

func (ppvHHSpinors) NumBlocks() int { return 3 }
func (ppvHHSpinors) BlockIrrep(b int) int {
	if b == 1 {
		return 1
	}
	return 0
}
func (ppvHHSpinors) BlockMembers(b int) []int {
	switch b {
	case 0:
		return []int{2}
	case 1:
		return []int{3}
	default:
		return []int{0, 1}
	}
}
func (ppvHHSpinors) SpinorBlock(s int) int {
	switch s {
	case 2:
		return 0
	case 3:
		return 1
	default:
		return 2
	}
}
func (ppvHHSpinors) IsHole(s int) bool    { return s == 0 || s == 1 }
func (ppvHHSpinors) IsActive(int) bool    { return false }
func (ppvHHSpinors) IsT3Space(int) bool   { return false }
func (ppvHHSpinors) Energy(s int) float64 { return float64(s) }

// twoIrrepSymmetry is a Z2-like two-irrep group ("A"=identity, "B"=self-
// inverse), matching the Kramers-doublet-style product tables elsewhere in
// this package.
func twoIrrepSymmetry(t *testing.T) *symmetry.Registry {
	t.Helper()
	r, err := symmetry.NewFinite([]string{"A", "B"}, [][]int{{0, 1}, {1, 0}}, 0, arith.Real)
	if err != nil {
		t.Fatalf("NewFinite: %v", err)
	}
	return r
}

func TestOnlyUniquePrunesAndGetRoutesThroughPartner(t *testing.T) {
	sym := twoIrrepSymmetry(t)
	sp := ppvHHSpinors{}
	qparts := []byte{'p', 'p', 'h', 'h'}
	valence := []int{0, 0, 0, 0}
	t3space := []int{0, 0, 0, 0}
	order := []int{0, 1, 2, 3}

	// irrep 1 ("B") is the only product of the particle pair's block irreps
	// (A x B or B x A) times the hole pair's (A x A = A) that reaches B.
	dg, err := diagram.New[float64]("R", qparts, valence, t3space, order, 1, true, sym, sp, false, alwaysInMemory, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(dg.Blocks) != 2 {
		t.Fatalf("len(Blocks) = %d, want 2 (one unique, one pruned partner)", len(dg.Blocks))
	}

	var unique, pruned *block.Block[float64]
	for _, b := range dg.Blocks {
		if b.IsUnique {
			unique = b
		} else {
			pruned = b
		}
	}
	if unique == nil || pruned == nil {
		t.Fatalf("expected exactly one unique and one non-unique block, got IsUnique=%v,%v", dg.Blocks[0].IsUnique, dg.Blocks[1].IsUnique)
	}
	if pruned.Storage != block.Dummy || pruned.Buf() != nil {
		t.Errorf("non-unique block should be pruned to Dummy storage with no buffer, got Storage=%v Buf=%v", pruned.Storage, pruned.Buf())
	}
	if pruned.Sign != -1 {
		t.Errorf("pruned block Sign = %d, want -1 (bra transposition is odd)", pruned.Sign)
	}

	// Get on the unique block's own tuple (spinor blocks [0,1,2,2]) stores
	// and retrieves directly.
	if err := dg.Set([]int{2, 3, 0, 1}, 4, sp); err != nil {
		t.Fatalf("Set on unique tuple: %v", err)
	}
	got, err := dg.Get([]int{2, 3, 0, 1}, sp)
	if err != nil {
		t.Fatalf("Get on unique tuple: %v", err)
	}
	if got != 4 {
		t.Errorf("Get on unique tuple = %v, want 4", got)
	}

	// Get on the transposed (non-unique) tuple (spinor blocks [1,0,2,2])
	// must route through the partner and flip sign.
	got, err = dg.Get([]int{3, 2, 0, 1}, sp)
	if err != nil {
		t.Fatalf("Get on non-unique tuple: %v", err)
	}
	if got != -4 {
		t.Errorf("Get on non-unique (transposed) tuple = %v, want -4", got)
	}

	// Set is rejected on the non-unique tuple: writing a restored copy would
	// never be reflected back onto the unique representative.
	if err := dg.Set([]int{3, 2, 0, 1}, 99, sp); err != nil {
		t.Fatalf("Set on non-unique tuple should be a silent no-op, not an error: %v", err)
	}
	got, _ = dg.Get([]int{3, 2, 0, 1}, sp)
	if got != -4 {
		t.Errorf("Set on non-unique tuple mutated state; Get after = %v, want unchanged -4", got)
	}
}

func TestOnDiskBackendRoundTrip(t *testing.T) {
	sym := trivialSymmetry(t)
	qparts, valence, t3space, order := hhSpec()
	backend, err := persist.NewFileBackend[float64](t.TempDir())
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}
	onDisk := func(rank int, shape []int) block.Storage { return block.OnDisk }

	dg, err := diagram.New[float64]("T2hh", qparts, valence, t3space, order, 0, false, sym, trivialSpinors{}, false, onDisk, backend)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if dg.StorageType() != block.OnDisk {
		t.Fatalf("StorageType() = %v, want OnDisk", dg.StorageType())
	}

	sp := trivialSpinors{}
	if err := dg.Set([]int{0, 1}, 6, sp); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := dg.Get([]int{0, 1}, sp)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != 6 {
		t.Errorf("Get after on-disk Set = %v, want 6", got)
	}

	blockFile := filepath.Join(backend.Dir, dg.Blocks[0].File())
	if _, err := os.Stat(blockFile); err != nil {
		t.Errorf("block's on-disk file %q does not exist: %v", blockFile, err)
	}
}

func TestDeleteClearsBlocks(t *testing.T) {
	sym := trivialSymmetry(t)
	qparts, valence, t3space, order := hhSpec()
	dg, err := diagram.New[float64]("T2hh", qparts, valence, t3space, order, 0, false, sym, trivialSpinors{}, false, alwaysInMemory, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := dg.Delete(); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(dg.Blocks) != 0 {
		t.Errorf("len(Blocks) after Delete = %d, want 0", len(dg.Blocks))
	}
}
