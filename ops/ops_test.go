// Copyright ©2026 The ExpT-Tensor Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ops

import (
	"math"
	"testing"

	"github.com/exptcc/tensor/arith"
	"github.com/exptcc/tensor/block"
	"github.com/exptcc/tensor/diagram"
	"github.com/exptcc/tensor/stack"
	"github.com/exptcc/tensor/symmetry"
)

// twoBlockSpinors is a single-irrep fixture with two spinor blocks: block 0
// is two holes (0, 1), block 1 is two particles (2, 3). Spinors 1 and 3 are
// marked active (valence).
type twoBlockSpinors struct{}

var energies = map[int]float64{0: -1.0, 1: -0.8, 2: 0.4, 3: 0.6}

func (twoBlockSpinors) NumBlocks() int { return 2 }
func (twoBlockSpinors) BlockIrrep(int) int { return 0 }
func (twoBlockSpinors) BlockMembers(b int) []int {
	if b == 0 {
		return []int{0, 1}
	}
	return []int{2, 3}
}
func (twoBlockSpinors) SpinorBlock(s int) int {
	if s < 2 {
		return 0
	}
	return 1
}
func (twoBlockSpinors) IsHole(s int) bool    { return s < 2 }
func (twoBlockSpinors) IsActive(s int) bool  { return s == 1 || s == 3 }
func (twoBlockSpinors) IsT3Space(int) bool   { return false }
func (twoBlockSpinors) Energy(s int) float64 { return energies[s] }

func alwaysInMemory(rank int, shape []int) block.Storage { return block.InMemory }

func trivialSymmetry(t *testing.T) *symmetry.Registry {
	t.Helper()
	r, err := symmetry.NewFinite([]string{"A"}, [][]int{{0}}, 0, arith.Real)
	if err != nil {
		t.Fatalf("NewFinite: %v", err)
	}
	return r
}

func testBuilder(t *testing.T) Builder[float64] {
	return Builder[float64]{
		Sym:        trivialSymmetry(t),
		Sp:         twoBlockSpinors{},
		RestrictT3: false,
		StorageFor: alwaysInMemory,
	}
}

func ph(bd Builder[float64], t *testing.T, name string) *diagram.Diagram[float64] {
	t.Helper()
	dg, err := Tmplt(bd, name, []byte{'p', 'h'}, []int{0, 0}, []int{0, 0}, []int{0, 1}, 0, false)
	if err != nil {
		t.Fatalf("Tmplt(%q): %v", name, err)
	}
	return dg
}

func TestTmpltUpdateCopyClearRename(t *testing.T) {
	bd := testBuilder(t)
	sp := twoBlockSpinors{}
	dg := ph(bd, t, "T1")
	if err := dg.Set([]int{2, 0}, 3, sp); err != nil {
		t.Fatalf("Set: %v", err)
	}

	clone, err := Copy(bd, dg, "T1copy")
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}
	got, _ := clone.Get([]int{2, 0}, sp)
	if got != 3 {
		t.Fatalf("clone value = %v, want 3", got)
	}

	if err := Update(clone, dg, 1); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ = clone.Get([]int{2, 0}, sp)
	if got != 6 {
		t.Errorf("clone value after Update(+1x) = %v, want 6", got)
	}

	if err := Clear[float64](clone); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	got, _ = clone.Get([]int{2, 0}, sp)
	if got != 0 {
		t.Errorf("clone value after Clear = %v, want 0", got)
	}

	Rename[float64](clone, "T1renamed")
	if clone.Name != "T1renamed" {
		t.Errorf("clone.Name = %q, want T1renamed", clone.Name)
	}
}

func TestReorderTransposesData(t *testing.T) {
	bd := testBuilder(t)
	sp := twoBlockSpinors{}
	dg := ph(bd, t, "T1")
	if err := dg.Set([]int{2, 0}, 9, sp); err != nil {
		t.Fatalf("Set: %v", err)
	}

	dst, err := Reorder(bd, dg, "T1t", []int{1, 0})
	if err != nil {
		t.Fatalf("Reorder: %v", err)
	}
	got, err := dst.Get([]int{0, 2}, sp)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != 9 {
		t.Errorf("reordered value = %v, want 9", got)
	}
}

func TestMultContractsSharedDimension(t *testing.T) {
	bd := testBuilder(t)
	sp := twoBlockSpinors{}
	a := ph(bd, t, "A") // (p, h)

	bDg, err := Tmplt(bd, "B", []byte{'h', 'p'}, []int{0, 0}, []int{0, 0}, []int{0, 1}, 0, false)
	if err != nil {
		t.Fatalf("Tmplt(B): %v", err)
	}

	a.Set([]int{2, 0}, 2, sp)
	a.Set([]int{3, 1}, 3, sp)
	bDg.Set([]int{0, 2}, 5, sp)
	bDg.Set([]int{1, 3}, 7, sp)

	dst, err := Mult(bd, a, bDg, "AB", 1)
	if err != nil {
		t.Fatalf("Mult: %v", err)
	}
	got, err := dst.Get([]int{2, 2}, sp)
	if err != nil {
		t.Fatalf("Get(2,2): %v", err)
	}
	if got != 10 {
		t.Errorf("dst[2,2] = %v, want 10 (2*5)", got)
	}
	got, err = dst.Get([]int{3, 3}, sp)
	if err != nil {
		t.Fatalf("Get(3,3): %v", err)
	}
	if got != 21 {
		t.Errorf("dst[3,3] = %v, want 21 (3*7)", got)
	}
}

func TestDivepsAppliesBareDenominator(t *testing.T) {
	bd := testBuilder(t)
	sp := twoBlockSpinors{}
	dg := ph(bd, t, "T1")
	dg.Set([]int{2, 0}, 4, sp)

	if err := Diveps[float64](dg, sp, ShiftNone, 0, 0); err != nil {
		t.Fatalf("Diveps: %v", err)
	}
	got, _ := dg.Get([]int{2, 0}, sp)
	// denominator = e[hole 0] - e[particle 2] = -1.0 - 0.4 = -1.4
	want := 4.0 / -1.4
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("Diveps result = %v, want %v", got, want)
	}
}

func TestScalarProductAndFindMaxDiffMax(t *testing.T) {
	bd := testBuilder(t)
	sp := twoBlockSpinors{}
	a := ph(bd, t, "A")
	b := ph(bd, t, "B")
	a.Set([]int{2, 0}, 2, sp)
	a.Set([]int{3, 1}, -5, sp)
	b.Set([]int{2, 0}, 3, sp)
	b.Set([]int{3, 1}, 1, sp)

	sp_, err := ScalarProduct[float64](false, false, a, b)
	if err != nil {
		t.Fatalf("ScalarProduct: %v", err)
	}
	if sp_ != 2*3+(-5)*1 {
		t.Errorf("ScalarProduct = %v, want %v", sp_, 2*3+(-5)*1)
	}

	val, idx, err := FindMax[float64](a)
	if err != nil {
		t.Fatalf("FindMax: %v", err)
	}
	if val != -5 || idx[0] != 3 || idx[1] != 1 {
		t.Errorf("FindMax = %v at %v, want -5 at [3 1]", val, idx)
	}

	diff, idx2, err := DiffMax[float64](a, b)
	if err != nil {
		t.Fatalf("DiffMax: %v", err)
	}
	// |a[3,1]-b[3,1]| = |-5-1| = 6 is the largest difference
	if math.Abs(diff-6) > 1e-12 || idx2[0] != 3 || idx2[1] != 1 {
		t.Errorf("DiffMax = %v at %v, want 6 at [3 1]", diff, idx2)
	}
}

func TestRestrictValenceExpandDiagramClosed(t *testing.T) {
	bd := testBuilder(t)
	sp := twoBlockSpinors{}
	dg := ph(bd, t, "T1")
	dg.Set([]int{2, 0}, 1, sp) // particle 2 is inactive, hole 0 is inactive
	dg.Set([]int{3, 1}, 2, sp) // particle 3 is active, hole 1 is active

	closed, err := Closed(bd, dg, "T1closed")
	if err != nil {
		t.Fatalf("Closed: %v", err)
	}
	got, _ := closed.Get([]int{3, 1}, sp)
	if got != 2 {
		t.Errorf("closed[3,1] = %v, want 2 (fully active element)", got)
	}
	got, _ = closed.Get([]int{2, 0}, sp)
	if got != 0 {
		t.Errorf("closed[2,0] = %v, want 0 (element restricted out)", got)
	}

	expanded, err := ExpandDiagram(bd, closed, "T1expanded", []int{0, 0})
	if err != nil {
		t.Fatalf("ExpandDiagram: %v", err)
	}
	got, _ = expanded.Get([]int{3, 1}, sp)
	if got != 2 {
		t.Errorf("expanded[3,1] = %v, want 2 (copied back from closed)", got)
	}
}

func TestConjugateSwapsHalvesAndConjugates(t *testing.T) {
	bd := testBuilder(t)
	sp := twoBlockSpinors{}
	dg := ph(bd, t, "T1")
	dg.Set([]int{2, 0}, 5, sp)

	dst, err := Conjugate(bd, dg, "T1conj")
	if err != nil {
		t.Fatalf("Conjugate: %v", err)
	}
	got, err := dst.Get([]int{0, 2}, sp)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != 5 {
		t.Errorf("conjugated real value = %v, want 5 (real arithmetic conjugation is a no-op)", got)
	}
}

func TestPermAntisymmetrizesTwoIndices(t *testing.T) {
	bd := testBuilder(t)
	sp := twoBlockSpinors{}
	dg, err := Tmplt(bd, "V", []byte{'p', 'p'}, []int{0, 0}, []int{0, 0}, []int{0, 1}, 0, false)
	if err != nil {
		t.Fatalf("Tmplt: %v", err)
	}
	dg.Set([]int{2, 3}, 4, sp)

	st := stack.New[float64](0)
	if err := Perm(bd, st, dg, "12"); err != nil {
		t.Fatalf("Perm: %v", err)
	}
	v23, _ := dg.Get([]int{2, 3}, sp)
	v32, _ := dg.Get([]int{3, 2}, sp)
	if v23 != 4 {
		t.Errorf("dg[2,3] after antisymmetrization = %v, want 4", v23)
	}
	if v32 != -4 {
		t.Errorf("dg[3,2] after antisymmetrization = %v, want -4", v32)
	}
	// Perm's scratch diagrams must be swept up, not left on the stack.
	if st.Len() != 0 {
		t.Errorf("stack length after Perm = %d, want 0 (scratch diagrams cleaned up)", st.Len())
	}
}
