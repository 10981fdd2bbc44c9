// Copyright ©2026 The ExpT-Tensor Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package integral

import (
	"fmt"
	"math"
)

// Property is one named operator matrix read off an MDPROP file: a dense
// nspinors x nspinors complex matrix plus the symmetry analysis read_mdprop
// prints for diagnostics (spec.md §6 "property integrals").
type Property struct {
	Name       string
	NSpinors   int
	Matrix     []complex128 // row-major NSpinors x NSpinors
	ReZero     bool
	ImZero     bool
	ReSymmetric bool
	ImSymmetric bool
}

const mdpropZeroThresh = 1e-14

// ReadMDPROP reads every property record off path in order, stopping at the
// EOFLABEL sentinel record exactly as read_mdprop does. mrconee is optional
// (nil skips the non-zero-block-by-irrep analysis, as in read_mdprop when
// called without a loaded MRCONEE).
func ReadMDPROP(path string, mrconee *MRCONEE) ([]Property, error) {
	// The first record is a 32-byte label record; it only reads back with
	// matching length markers under the right word size.
	ws := word8
	if probe, err := openReader(path, word4); err == nil {
		if rec, err := probe.readRecord(); err == nil && len(rec) == 32 {
			ws = word4
		}
		probe.close()
	}
	r, err := openReader(path, ws)
	if err != nil {
		return nil, fmt.Errorf("integral: MDPROP: %w", err)
	}
	defer r.close()

	var props []Property
	for {
		size, err := r.nextRecordSize()
		if err != nil {
			return nil, err
		}
		if size == 0 {
			break
		}
		namePayload, err := r.readRecord()
		if err != nil {
			return nil, err
		}
		// oper_name is a 32-byte Fortran character field; the label DIRAC
		// actually writes lives in the last 8 bytes (mdprop.c's
		// memmove(oper_name, oper_name+24, 8)).
		name := ""
		if len(namePayload) >= 32 {
			name = trimNulls(string(namePayload[24:32]))
		}
		if name == "EOFLABEL" {
			break
		}

		recSize, err := r.nextRecordSize()
		if err != nil {
			return nil, err
		}
		nspinors := int(math.Round(math.Sqrt(float64(recSize) / 16))) // sizeof(double complex) == 16
		matPayload, err := r.readRecord()
		if err != nil {
			return nil, err
		}
		fr := newFieldReader(matPayload)
		matrix := fr.complex128Slice(nspinors * nspinors)

		p := Property{Name: name, NSpinors: nspinors, Matrix: matrix}
		p.ReZero, p.ImZero, p.ReSymmetric, p.ImSymmetric = analyzeComplexMatrix(nspinors, matrix)
		props = append(props, p)
	}
	return props, nil
}

func trimNulls(s string) string {
	for i, c := range s {
		if c == 0 || c == ' ' {
			return s[:i]
		}
	}
	return s
}

// analyzeComplexMatrix mirrors analyze_complex_matrix's upper-triangle scan
// for whether the real/imaginary parts are identically zero and whether
// they are symmetric under transposition.
func analyzeComplexMatrix(dim int, matrix []complex128) (reZero, imZero, reSym, imSym bool) {
	reZero, imZero, reSym, imSym = true, true, true, true
	for i := 0; i < dim; i++ {
		for j := i; j < dim; j++ {
			aij := matrix[i*dim+j]
			aji := matrix[j*dim+i]
			if math.Abs(real(aij)) > mdpropZeroThresh || math.Abs(real(aji)) > mdpropZeroThresh {
				reZero = false
			}
			if math.Abs(imag(aij)) > mdpropZeroThresh || math.Abs(imag(aji)) > mdpropZeroThresh {
				imZero = false
			}
			if math.Abs(real(aij)-real(aji)) > mdpropZeroThresh {
				reSym = false
			}
			if math.Abs(imag(aij)-imag(aji)) > mdpropZeroThresh {
				imSym = false
			}
		}
	}
	return
}

// NonzeroBlocks reports which pairs of irreps (by name) carry at least one
// nonzero matrix element, mirroring analyze_nonzero_blocks.
func (p Property) NonzeroBlocks(m *MRCONEE) [][2]string {
	var blocks [][2]string
	n := m.NumIrreps()
	for irep := 0; irep < n; irep++ {
		for jrep := irep; jrep < n; jrep++ {
			nonzero := false
			for i := 0; i < m.NumSpinors; i++ {
				if m.SpinorIrreps[i] != irep {
					continue
				}
				for j := 0; j < m.NumSpinors; j++ {
					if m.SpinorIrreps[j] != jrep {
						continue
					}
					v := p.Matrix[i*p.NSpinors+j]
					if math.Hypot(real(v), imag(v)) > mdpropZeroThresh {
						nonzero = true
					}
				}
			}
			if nonzero {
				blocks = append(blocks, [2]string{m.IrrepNames[irep], m.IrrepNames[jrep]})
			}
		}
	}
	return blocks
}
