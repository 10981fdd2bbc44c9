// Copyright ©2026 The ExpT-Tensor Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package symmetry implements the irrep registry: names, the direct-product
// (multiplication) table, the totally-symmetric irrep, and a generator for
// the infinite-axis groups C∞v/D∞h (spec.md §4.C). A Registry is built once
// at import time and is read-only afterward; it is held by engine.Engine
// rather than as a package-level global (spec.md §9 "Global singletons ->
// context objects").
package symmetry

import (
	"fmt"

	"github.com/exptcc/tensor/arith"
)

// Registry is the symmetry group of the calculation: a finite Abelian
// multiplication table over a fixed set of named irreps.
type Registry struct {
	names    []string
	mult     [][]int // mult[i][j] = repno of irrep_i ⊗ irrep_j
	totSym   int
	ar       arith.Tag
	infinite bool
	parity   bool // true for D∞h (labels carry a g/u suffix), false for C∞v
}

// NumIrreps returns the number of irreps currently registered.
func (r *Registry) NumIrreps() int { return len(r.names) }

// Name returns the textual label of irrep i (0-based).
func (r *Registry) Name(i int) string { return r.names[i] }

// TotallySymmetric returns the totally symmetric irrep's index.
func (r *Registry) TotallySymmetric() int { return r.totSym }

// Arithmetic reports whether the group (and hence every diagram built over
// it) is real or complex, per the source group's arithmetic flag.
func (r *Registry) Arithmetic() arith.Tag { return r.ar }

// NewFinite builds a Registry for a finite Abelian point group from an
// explicit multiplication table. names[i] labels irrep i; mult must be
// square and 0-indexed; totSym is the totally symmetric irrep's index.
func NewFinite(names []string, mult [][]int, totSym int, ar arith.Tag) (*Registry, error) {
	n := len(names)
	if len(mult) != n {
		return nil, fmt.Errorf("symmetry: multiplication table has %d rows, want %d", len(mult), n)
	}
	for i, row := range mult {
		if len(row) != n {
			return nil, fmt.Errorf("symmetry: multiplication table row %d has %d entries, want %d", i, len(row), n)
		}
	}
	if totSym < 0 || totSym >= n {
		return nil, fmt.Errorf("symmetry: totally symmetric irrep %d out of range [0,%d)", totSym, n)
	}
	cp := make([][]int, n)
	for i := range mult {
		cp[i] = append([]int(nil), mult[i]...)
	}
	return &Registry{
		names:  append([]string(nil), names...),
		mult:   cp,
		totSym: totSym,
		ar:     ar,
	}, nil
}

// Multiply returns the repno of irrep(i) ⊗ irrep(j). Repnos out of range
// are an integrity error per spec.md §7 ("multiplication-table lookup out
// of range"); callers that cannot guarantee validity should use
// TryMultiply.
func (r *Registry) Multiply(i, j int) int {
	v, err := r.TryMultiply(i, j)
	if err != nil {
		panic(err)
	}
	return v
}

// TryMultiply is the fallible form of Multiply.
func (r *Registry) TryMultiply(i, j int) (int, error) {
	if r.infinite {
		return r.multiplyInfinite(i, j)
	}
	if i < 0 || i >= len(r.mult) || j < 0 || j >= len(r.mult) {
		return 0, fmt.Errorf("symmetry: irrep index out of range: %d, %d (have %d irreps)", i, j, len(r.names))
	}
	return r.mult[i][j], nil
}

// MultiplyAll reduces irreps[0]⊗irreps[1]⊗...⊗irreps[n-1] to a single
// repno, used by the DPD symmetry filter in package block.
func (r *Registry) MultiplyAll(irreps []int) (int, error) {
	if len(irreps) == 0 {
		return r.totSym, nil
	}
	acc := irreps[0]
	var err error
	for _, ir := range irreps[1:] {
		acc, err = r.TryMultiply(acc, ir)
		if err != nil {
			return 0, err
		}
	}
	return acc, nil
}

// ContainsTotallySymmetric reports whether the direct product of irreps
// equals the operator irrep opIrrep (spec.md §4.E step 1: the DPD symmetry
// filter). Passing the registry's TotallySymmetric() as opIrrep recovers
// the "is this block totally symmetric" check used for fully symmetric
// operators.
func (r *Registry) ContainsTotallySymmetric(irreps []int, opIrrep int) (bool, error) {
	prod, err := r.MultiplyAll(irreps)
	if err != nil {
		return false, err
	}
	return prod == opIrrep, nil
}

// NewInfiniteAxis builds a Registry for an infinite-axis group (C∞v or
// D∞h). hasParity selects whether a parity (g/u) label is carried alongside
// the half-integer projection quantum number (D∞h) or not (C∞v); the irrep
// table is synthesized lazily up to maxOmega2 (2|Ω|, so half-integer
// projections are exact integers) via Ensure.
func NewInfiniteAxis(hasParity bool, maxOmega2 int, ar arith.Tag) *Registry {
	r := &Registry{infinite: true, ar: ar, parity: hasParity}
	r.ensureUpTo(maxOmega2)
	// Totally symmetric irrep is Omega=0 (Sigma+, gerade if applicable).
	r.totSym = r.indexFor(0, true)
	return r
}

// Ensure grows the synthesized irrep table so that projections up to
// omega2 (in half-integer units, i.e. 2|Ω|) are representable.
func (r *Registry) Ensure(omega2 int) { r.ensureUpTo(omega2) }

func (r *Registry) ensureUpTo(omega2 int) {
	have := map[string]bool{}
	for _, n := range r.names {
		have[n] = true
	}
	addParities := []bool{true}
	if r.hasParity() {
		addParities = []bool{true, false}
	}
	for w := 0; w <= omega2; w++ {
		for _, sign := range signsFor(w) {
			for _, g := range addParities {
				name := labelFor(w, sign, g, r.hasParity())
				if !have[name] {
					r.names = append(r.names, name)
					have[name] = true
				}
			}
		}
	}
}

// hasParity reports whether this registry's irrep labels carry a gerade/
// ungerade tag (D∞h) as opposed to none (C∞v).
func (r *Registry) hasParity() bool { return r.parity }

func signsFor(omega2 int) []string {
	if omega2 == 0 {
		return []string{"+", "-"}
	}
	return []string{"+"}
}

func labelFor(omega2 int, sign string, gerade, hasParity bool) string {
	var projLabel string
	if omega2%2 == 0 {
		projLabel = fmt.Sprintf("%d", omega2/2)
	} else {
		projLabel = fmt.Sprintf("%d/2", omega2)
	}
	label := projLabel + sign
	if hasParity {
		if gerade {
			label += "g"
		} else {
			label += "u"
		}
	}
	return label
}

// indexFor finds (or synthesizes) the irrep index for projection omega2/2
// with the given parity, extending the table if needed.
func (r *Registry) indexFor(omega2 int, gerade bool) int {
	r.ensureUpTo(omega2)
	name := labelFor(omega2, "+", gerade, r.hasParity())
	for i, n := range r.names {
		if n == name {
			return i
		}
	}
	r.names = append(r.names, name)
	return len(r.names) - 1
}

// parseLabel recovers (omega2, sign, gerade) from a synthesized irrep name.
func parseLabel(name string, hasParity bool) (omega2 int, sign int, gerade bool) {
	s := name
	gerade = true
	if hasParity {
		switch s[len(s)-1] {
		case 'g':
			gerade = true
		case 'u':
			gerade = false
		}
		s = s[:len(s)-1]
	}
	sign = 1
	switch s[len(s)-1] {
	case '+':
		sign = 1
	case '-':
		sign = -1
	}
	s = s[:len(s)-1]
	var num, den int
	if n, err := fmt.Sscanf(s, "%d/%d", &num, &den); err == nil && n == 2 {
		omega2 = num
	} else {
		fmt.Sscanf(s, "%d", &num)
		omega2 = 2 * num
	}
	return
}

// multiplyInfinite implements the integer-arithmetic multiplication rule
// for infinite-axis irreps: projections add, Sigma signs multiply when both
// projections are zero, and (for D∞h) parities multiply.
func (r *Registry) multiplyInfinite(i, j int) (int, error) {
	if i < 0 || i >= len(r.names) || j < 0 || j >= len(r.names) {
		return 0, fmt.Errorf("symmetry: irrep index out of range: %d, %d", i, j)
	}
	hasParity := r.hasParity()
	wi, si, gi := parseLabel(r.names[i], hasParity)
	wj, sj, gj := parseLabel(r.names[j], hasParity)

	w := wi + wj
	if w < 0 {
		w = -w
	}
	gerade := true
	if hasParity {
		gerade = gi == gj
	}
	if w == 0 && si*sj < 0 {
		minus := labelFor(0, "-", gerade, hasParity)
		for k, n := range r.names {
			if n == minus {
				return k, nil
			}
		}
	}
	return r.indexFor(w, gerade), nil
}
