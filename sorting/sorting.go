// Copyright ©2026 The ExpT-Tensor Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sorting implements integral import (spec.md §4.H): turning the
// raw Kramers-paired integral records read from MDCINT/MDPROP into
// symmetry-blocked diagrams on the stack. A caller first leaves one
// request per diagram it needs built from the raw integrals, then performs
// a single pass over the file distributing every record to every diagram
// whose rank matches.
package sorting

import (
	"github.com/pkg/errors"

	"github.com/exptcc/tensor/arith"
	"github.com/exptcc/tensor/block"
	"github.com/exptcc/tensor/diagram"
	"github.com/exptcc/tensor/stack"
	"github.com/exptcc/tensor/symmetry"
)

// Request is one left-over "please build this diagram from the raw
// integrals" instruction, matching request_sorting's (name, qparts,
// valence, order) argument tuple.
type Request struct {
	Name    string
	Qparts  []byte
	Valence []int
	T3space []int
	Order   []int
	Irrep   int
}

// Requests accumulates sorting requests until PerformSorting drains them,
// mirroring the source engine's static sorting_requests array.
type Requests[T arith.Value] struct {
	pending []Request
	sym     *symmetry.Registry
	sp      block.Spinors
	storageFor func(rank int, shape []int) block.Storage
	backend    block.Backend[T]
	restrictT3 bool
}

// NewRequests builds an empty request queue bound to the registries and
// block-construction policy every diagram it creates will share.
func NewRequests[T arith.Value](
	sym *symmetry.Registry,
	sp block.Spinors,
	restrictT3 bool,
	storageFor func(rank int, shape []int) block.Storage,
	backend block.Backend[T],
) *Requests[T] {
	return &Requests[T]{sym: sym, sp: sp, restrictT3: restrictT3, storageFor: storageFor, backend: backend}
}

// Request leaves a sorting request for a diagram named name with the given
// natural-order qparts/valence/order strings, ready for PerformSorting.
func (r *Requests[T]) Request(name string, qparts, valence, order string, irrep int) error {
	rank := len(qparts)
	if len(valence) != rank || len(order) != rank {
		return errors.Errorf("sorting: request %q: qparts/valence/order length mismatch", name)
	}
	req := Request{Name: name, Irrep: irrep}
	req.Qparts = []byte(qparts)
	req.Valence = make([]int, rank)
	req.T3space = make([]int, rank)
	req.Order = make([]int, rank)
	for i := 0; i < rank; i++ {
		req.Valence[i] = int(valence[i] - '0')
		req.Order[i] = int(order[i] - '0' - 1) // spec.md text is 1-based; convert to 0-based
	}
	r.pending = append(r.pending, req)
	return nil
}

// NumTwoElectronRequests counts pending requests of rank 4 (the two-
// electron integral diagrams), the gate new_sort_2e uses to skip reading
// MDCINT entirely when nothing needs it.
func (r *Requests[T]) NumTwoElectronRequests() int {
	n := 0
	for _, req := range r.pending {
		if len(req.Qparts) == 4 {
			n++
		}
	}
	return n
}

// Build materializes every pending request as an empty (unfilled) diagram
// and pushes it onto st, then clears the pending queue. Two-electron
// diagrams are left for TwoElectron to fill in; rank-2 diagrams are ready
// for OneElectron.
func (r *Requests[T]) Build(st *stack.Stack[T]) ([]*diagram.Diagram[T], error) {
	built := make([]*diagram.Diagram[T], 0, len(r.pending))
	for _, req := range r.pending {
		dg, err := diagram.New(req.Name, req.Qparts, req.Valence, req.T3space, req.Order, req.Irrep,
			true, r.sym, r.sp, r.restrictT3, r.storageFor, r.backend)
		if err != nil {
			return nil, errors.Wrapf(err, "sorting: building %q", req.Name)
		}
		if _, err := st.Push(dg); err != nil {
			return nil, err
		}
		built = append(built, dg)
	}
	r.pending = r.pending[:0]
	return built, nil
}

// intClass mirrors int_class: Coulomb integrals carry an even number of
// barred (time-reversed) Kramers indices; one-barred integrals need the
// antisymmetric completion instead of the full eight-fold orbit.
func intClass(ikr, jkr, kkr, lkr int) bool {
	s := func(x int) int {
		switch {
		case x < 0:
			return -1
		case x > 0:
			return 1
		default:
			return 0
		}
	}
	return s(ikr)*s(jkr)*s(kkr)*s(lkr) > 0
}

// KramersIndex resolves a signed Kramers-pair label (positive: the first
// member of pair |ikr|, negative: its time-reversed partner) to an absolute
// 1-based spinor number, following kr2abs. kr holds the two absolute spinor
// numbers per pair, kr[2*(p-1)] and kr[2*(p-1)+1], p = 1..nkr.
func KramersIndex(signedPair int, kr []int32) int {
	if signedPair < 0 {
		p := -signedPair - 1
		return int(kr[2*p+1])
	}
	p := signedPair - 1
	return int(kr[2*p])
}

// TwoElectronBatch is one (ikr, jkr) record off MDCINT: every non-zero
// <ikr jkr | kkr lkr> integral sharing that bra pair.
type TwoElectronBatch struct {
	IKR, JKR int
	IndK     []int32
	IndL     []int32
	Val      []complex128
}

// TwoElectron distributes one MDCINT batch into every rank-4 diagram
// produced by Build, applying the eight-fold (or four-fold, for the
// single-barred case) permutation/conjugation orbit of perm_symm so that
// every physically equivalent ordering of the antisymmetrized two-electron
// integral is written exactly once per orbit (spec.md §4.H, grounded on
// new_sort_2e.c's expand_ints/perm_symm/put_integral chain).
func TwoElectron[T arith.Value](dg *diagram.Diagram[T], batch TwoElectronBatch, kr []int32, spinfree bool, sp block.Spinors) error {
	if dg.Rank != 4 {
		return nil
	}
	twoBars := len(batch.IndK) > 0 && intClass(batch.IKR, int(batch.IndK[0]), batch.JKR, int(batch.IndL[0]))

	for idx := range batch.IndK {
		kkr := int(batch.IndK[idx])
		lkr := int(batch.IndL[idx])
		val := batch.Val[idx]

		// (ij|kl) -> Dirac <ik|jl>
		ikrd, jkrd, kkrd, lkrd := batch.IKR, kkr, batch.JKR, lkr

		if twoBars {
			if err := permSymm(dg, ikrd, jkrd, kkrd, lkrd, val, kr, sp); err != nil {
				return err
			}
			if spinfree {
				if err := permSymm(dg, ikrd, -lkrd, kkrd, -jkrd, val, kr, sp); err != nil {
					return err
				}
				if err := permSymm(dg, -kkrd, jkrd, -ikrd, lkrd, val, kr, sp); err != nil {
					return err
				}
			}
			if err := permSymm(dg, -kkrd, -lkrd, -ikrd, -jkrd, val, kr, sp); err != nil {
				return err
			}
		} else {
			if err := permSymm(dg, ikrd, jkrd, kkrd, lkrd, val, kr, sp); err != nil {
				return err
			}
			if err := permSymm(dg, -kkrd, -lkrd, -ikrd, -jkrd, -val, kr, sp); err != nil {
				return err
			}
		}
	}
	return nil
}

// permSymm writes the eight antisymmetrized orderings of one integral value
// (bra/ket swap, particle exchange in bra and in ket, each combined with
// complex conjugation for the swapped-pair terms), following perm_symm.
func permSymm[T arith.Value](dg *diagram.Diagram[T], ikr, jkr, kkr, lkr int, val complex128, kr []int32, sp block.Spinors) error {
	i := KramersIndex(ikr, kr) - 1
	j := KramersIndex(jkr, kr) - 1
	k := KramersIndex(kkr, kr) - 1
	l := KramersIndex(lkr, kr) - 1
	cval := cmplxConj(val)

	puts := []struct {
		idx [4]int
		val complex128
	}{
		{[4]int{i, j, k, l}, val},
		{[4]int{j, i, l, k}, val},
		{[4]int{k, l, i, j}, cval},
		{[4]int{l, k, j, i}, cval},
		{[4]int{i, j, l, k}, -val},
		{[4]int{j, i, k, l}, -val},
		{[4]int{k, l, j, i}, -cval},
		{[4]int{l, k, i, j}, -cval},
	}
	for _, p := range puts {
		if err := putIntegral(dg, p.idx[:], p.val, sp); err != nil {
			return err
		}
	}
	return nil
}

func cmplxConj(v complex128) complex128 { return complex(real(v), -imag(v)) }

func putIntegral[T arith.Value](dg *diagram.Diagram[T], idx []int, val complex128, sp block.Spinors) error {
	return dg.Set(idx, arith.FromComplex128[T](val), sp)
}

// OneElectron distributes a dense nspinor x nspinor one-electron operator
// matrix (Fock matrix or a DIRAC property integral) into a rank-2 diagram,
// one element per call to Set; out-of-block elements are dropped the way
// Diagram.Set always does (spec.md §4.H, grounded on sort_prop's dense
// (nspinors x nspinors) contract in sort.h).
func OneElectron[T arith.Value](dg *diagram.Diagram[T], nspinors int, oper []complex128, sp block.Spinors) error {
	if dg.Rank != 2 {
		return errors.Errorf("sorting: OneElectron: diagram %q has rank %d, want 2", dg.Name, dg.Rank)
	}
	if len(oper) != nspinors*nspinors {
		return errors.Errorf("sorting: OneElectron: operator matrix has %d elements, want %d", len(oper), nspinors*nspinors)
	}
	idx := make([]int, 2)
	for p := 0; p < nspinors; p++ {
		for q := 0; q < nspinors; q++ {
			v := oper[p*nspinors+q]
			if v == 0 {
				continue
			}
			idx[0], idx[1] = p, q
			if err := dg.Set(idx, arith.FromComplex128[T](v), sp); err != nil {
				return err
			}
		}
	}
	return nil
}
