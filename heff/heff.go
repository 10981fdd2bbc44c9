// Copyright ©2026 The ExpT-Tensor Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package heff writes the engine's two formatted output files (spec.md §6):
// the effective-Hamiltonian "HEFF" file (one block per irrep, the
// calculation's final deliverable) and per-operator amplitude dumps used
// for debugging and cross-checking a run. Grounded on diagram_write_formatted
// in original_source/src/rcc/engine/diagram.c and the HEFF block layout
// described in spec.md §6.
package heff

import (
	"bufio"
	"fmt"
	"io"

	"github.com/davecgh/go-spew/spew"

	"github.com/exptcc/tensor/arith"
	"github.com/exptcc/tensor/block"
	"github.com/exptcc/tensor/diagram"
	"github.com/exptcc/tensor/symmetry"
)

// IrrepBlock is one diagonal symmetry block of the effective Hamiltonian: a
// dim x dim complex matrix over the model-space determinants of irrep Rep.
type IrrepBlock struct {
	Rep    int
	Dim    int
	Matrix []complex128 // row-major Dim x Dim
}

// WriteHEFF writes the formatted effective-Hamiltonian file: a header line
// naming the arithmetic and sector, then one block per irrep in the
// "(rep_index, dim, dim² complex numbers)" layout spec.md §6 specifies.
func WriteHEFF(w io.Writer, ar arith.Tag, sector string, sym *symmetry.Registry, blocks []IrrepBlock) error {
	bw := bufio.NewWriter(w)
	defer bw.Flush()

	fmt.Fprintf(bw, "%s %s\n", ar, sector)
	for _, b := range blocks {
		name := sector
		if sym != nil && b.Rep >= 0 && b.Rep < sym.NumIrreps() {
			name = sym.Name(b.Rep)
		}
		fmt.Fprintf(bw, "%d %d %s\n", b.Rep, b.Dim, name)
		if len(b.Matrix) != b.Dim*b.Dim {
			return fmt.Errorf("heff: irrep %d: matrix has %d elements, want %d", b.Rep, len(b.Matrix), b.Dim*b.Dim)
		}
		for i := 0; i < b.Dim; i++ {
			for j := 0; j < b.Dim; j++ {
				v := b.Matrix[i*b.Dim+j]
				if ar == arith.Real {
					fmt.Fprintf(bw, "%25.15e", real(v))
				} else {
					fmt.Fprintf(bw, "%25.15e%25.15e", real(v), imag(v))
				}
			}
			fmt.Fprintln(bw)
		}
	}
	return bw.Flush()
}

// WriteAmplitudes writes one ASCII line per nonzero element of dg: spinor
// indices followed by its value (two columns — real, imaginary — for a
// complex diagram), matching diagram_write_formatted's amplitude dump
// layout (spec.md §6 "formatted amplitude files").
func WriteAmplitudes[T arith.Value](w io.Writer, dg *diagram.Diagram[T], sp block.Spinors) error {
	bw := bufio.NewWriter(w)
	defer bw.Flush()

	fmt.Fprintf(bw, "# %s rank=%d irrep=%d\n", dg.Name, dg.Rank, dg.Symmetry)

	idx := make([]int, dg.Rank)
	var walk func(dim int) error
	walk = func(dim int) error {
		if dim == dg.Rank {
			v, err := dg.Get(idx, sp)
			if err != nil {
				return err
			}
			if v == *new(T) {
				return nil
			}
			for _, ix := range idx {
				fmt.Fprintf(bw, "%5d", ix+1)
			}
			c := arith.ToComplex128(v)
			if _, ok := any(v).(complex128); ok {
				fmt.Fprintf(bw, "%20.12e%20.12e\n", real(c), imag(c))
			} else {
				fmt.Fprintf(bw, "%20.12e\n", real(c))
			}
			return nil
		}
		n := numSpinorsHint(sp)
		for i := 0; i < n; i++ {
			idx[dim] = i
			if err := walk(dim + 1); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(0)
}

// numSpinorsHint extracts the total spinor count from a block.Spinors
// implementation that also satisfies the richer spinor.Registry surface,
// falling back to scanning block membership otherwise.
func numSpinorsHint(sp block.Spinors) int {
	type numSpinorser interface{ NumSpinors() int }
	if ns, ok := sp.(numSpinorser); ok {
		return ns.NumSpinors()
	}
	max := 0
	for b := 0; b < sp.NumBlocks(); b++ {
		for _, m := range sp.BlockMembers(b) {
			if m+1 > max {
				max = m + 1
			}
		}
	}
	return max
}

// DumpDiagram renders dg's full Go-level structure (metadata, block
// layout, orbit bookkeeping) via go-spew for crash diagnostics — the
// ecosystem debug-dump library this module exists to exercise, used
// wherever a bug report needs more than the one-line Summary.
func DumpDiagram[T arith.Value](w io.Writer, dg *diagram.Diagram[T]) {
	cfg := spew.ConfigState{Indent: "  ", DisableMethods: true}
	cfg.Fdump(w, dg)
}
