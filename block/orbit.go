// Copyright ©2026 The ExpT-Tensor Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package block

import "github.com/exptcc/tensor/tensor"

// elemPerm is one signed elementary permutation of a bra or ket half used
// by the canonical-orbit search (spec.md §4.E step 5, design note "Signed
// antisymmetrizer orbits").
type elemPerm struct {
	p    []int
	sign int
}

var perms2 = []elemPerm{
	{[]int{0, 1}, 1},
	{[]int{1, 0}, -1},
}

var perms3 = []elemPerm{
	{[]int{0, 1, 2}, 1},
	{[]int{0, 2, 1}, -1},
	{[]int{1, 2, 0}, 1},
	{[]int{1, 0, 2}, -1},
	{[]int{2, 0, 1}, 1},
	{[]int{2, 1, 0}, -1},
}

func isAscending(a []int) bool {
	for i := 1; i < len(a); i++ {
		if a[i-1] > a[i] {
			return false
		}
	}
	return true
}

// indexType classifies a single index under the four-way h/p/g/v scheme
// block_unique uses to decide whether a bra or ket is "uniform": inactive
// hole, inactive particle, active hole, active particle.
func indexType(qpart byte, valence int) byte {
	switch {
	case qpart == 'h' && valence == 0:
		return 'h'
	case qpart == 'p' && valence == 0:
		return 'p'
	case qpart == 'h' && valence == 1:
		return 'g'
	default:
		return 'v'
	}
}

func allEqual(types []byte) bool {
	for i := 1; i < len(types); i++ {
		if types[i] != types[0] {
			return false
		}
	}
	return true
}

// halfEqualCount mirrors the rank-4/rank-6 "number of blocks equal to this
// one" computation in block_unique: how many distinct spinor-block tuples
// the elementary permutations produce from spb (1 when all entries are
// equal, 2 or 6 when all differ, 3 for one coincidence in a triple).
func halfEqualCount(spb []int) int {
	n := len(spb)
	if n == 2 {
		if spb[0] == spb[1] {
			return 1
		}
		return 2
	}
	// n == 3
	switch {
	case spb[0] == spb[1] && spb[1] == spb[2]:
		return 1
	case spb[0] == spb[1] || spb[1] == spb[2] || spb[0] == spb[2]:
		return 3
	default:
		return 6
	}
}

// computeOrbit fills in b's uniqueness metadata in place, following the
// bra/ket-uniform canonical-representative scheme of spec.md §4.E step 5
// (grounded on block_unique in the reference engine).
func computeOrbit[T any](b *Block[T], spec Spec) {
	rank := b.Rank
	if rank == 2 {
		b.IsUnique = true
		b.Sign = 1
		b.NEqualPerms = 1
		return
	}

	reverseOrder := tensor.InversePermutation(spec.Order)
	normQparts := make([]byte, rank)
	normValence := make([]int, rank)
	normSpinorBlocks := make([]int, rank)
	for i := 0; i < rank; i++ {
		normQparts[i] = spec.Qparts[reverseOrder[i]]
		normValence[i] = spec.Valence[reverseOrder[i]]
		normSpinorBlocks[i] = b.SpinorBlocks[reverseOrder[i]]
	}
	normTypes := make([]byte, rank)
	for i := 0; i < rank; i++ {
		normTypes[i] = indexType(normQparts[i], normValence[i])
	}

	n := rank / 2
	oneTypeBra := allEqual(normTypes[:n])
	oneTypeKet := allEqual(normTypes[n:])

	var permList []elemPerm
	switch n {
	case 2:
		permList = perms2
	case 3:
		permList = perms3
	default:
		panic("block: canonical-orbit search only supports rank 4 and rank 6 diagrams")
	}

	P := identity(rank)
	braUnique, ketUnique := true, true
	braSign, ketSign := 1, 1
	braNEq, ketNEq := 1, 1

	if oneTypeBra {
		spb := normSpinorBlocks[:n]
		iperm := findSortingPerm(spb, permList)
		braUnique = iperm == 0
		braSign = permList[iperm].sign
		copy(P[:n], permList[iperm].p)
		braNEq = halfEqualCount(spb)
	}
	if oneTypeKet {
		spb := normSpinorBlocks[n:]
		iperm := findSortingPerm(spb, permList)
		ketUnique = iperm == 0
		ketSign = permList[iperm].sign
		for i := 0; i < n; i++ {
			P[n+i] = n + permList[iperm].p[i]
		}
		ketNEq = halfEqualCount(spb)
	}

	b.NEqualPerms = braNEq * ketNEq
	if braUnique && ketUnique {
		b.IsUnique = true
		b.Sign = 1
		return
	}

	b.IsUnique = false
	b.Sign = braSign * ketSign

	p0 := make([]int, rank)
	for i := range p0 {
		p0[i] = reverseOrder[P[i]]
	}
	permToUnique := make([]int, rank)
	for i := range permToUnique {
		permToUnique[i] = p0[spec.Order[i]]
	}
	b.PermToUnique = permToUnique
	b.PermFromUnique = tensor.InversePermutation(permToUnique)
}

// findSortingPerm returns the index into permList of the permutation that,
// applied to spb, yields an ascending sequence; permList[0] is always the
// identity, so a return of 0 means spb is already ascending (the block is
// unique on that side).
func findSortingPerm(spb []int, permList []elemPerm) int {
	buf := make([]int, len(spb))
	for i, perm := range permList {
		for j, p := range perm.p {
			buf[j] = spb[p]
		}
		if isAscending(buf) {
			return i
		}
	}
	panic("block: no elementary permutation sorts this block's spinor-block tuple; spinor blocks must be pairwise comparable")
}
