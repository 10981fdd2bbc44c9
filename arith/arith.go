// Copyright ©2026 The ExpT-Tensor Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package arith is the single call site for the numeric kernels the tensor
// engine needs: axpy, gemm, dot, matcopy and the two argmax variants. Every
// diagram operation in package ops goes through here instead of touching a
// buffer's elements directly, so the real/complex split (spec.md §4.A) is
// paid for once. The kernels themselves are a thin facade over
// gonum.org/v1/gonum/blas/blas64 (real) and .../blas/cblas128 (complex),
// matching spec.md §1's "thin gemm/axpy/dot facade" description.
package arith

import (
	"cmp"
	"fmt"
	"io"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/blas/cblas128"
)

// Value is the element type of a tensor buffer: either arithmetic carried by
// the engine. A diagram is either wholly real or wholly complex (Tag);
// mixing is rejected before it reaches these kernels.
type Value interface {
	~float64 | ~complex128
}

// Tag names which of the two Value instantiations a diagram or block uses.
// It mirrors the group arithmetic flag read from the MRCONEE header
// (spec.md §6): 1 (real) maps to Real, everything else to Complex.
type Tag int

const (
	Real Tag = iota
	Complex
)

func (t Tag) String() string {
	if t == Real {
		return "real"
	}
	return "complex"
}

// Op selects which transform gemm/matcopy apply to an operand before using
// it: N none, T transpose, C conjugate-transpose, R (matcopy only) conjugate
// without transposing.
type Op byte

const (
	NoTrans   Op = 'N'
	Trans     Op = 'T'
	ConjTrans Op = 'C'
	Conj      Op = 'R'
)

// blasTransReal maps Op to blas.Transpose for a float64 operand, where
// conjugation is a no-op: only T counts as a transpose.
func blasTransReal(op Op) blas.Transpose {
	if op == Trans || op == ConjTrans {
		return blas.Trans
	}
	return blas.NoTrans
}

// blasTransComplex maps Op to blas.Transpose for a complex128 operand, where
// C genuinely means conjugate-transpose and cblas128.Gemm honors it directly.
func blasTransComplex(op Op) blas.Transpose {
	switch op {
	case Trans:
		return blas.Trans
	case ConjTrans:
		return blas.ConjTrans
	default:
		return blas.NoTrans
	}
}

// PrintThreshold is the absolute value below which Print suppresses an
// element, matching the source engine's fixed 1e-14 cutoff.
const PrintThreshold = 1e-14

func absOf[T Value](v T) float64 {
	switch x := any(v).(type) {
	case float64:
		return math.Abs(x)
	case complex128:
		return cmplx.Abs(x)
	default:
		panic(fmt.Sprintf("arith: unsupported value type %T", v))
	}
}

func conjOf[T Value](v T) T {
	switch x := any(v).(type) {
	case float64:
		return any(x).(T)
	case complex128:
		return any(cmplx.Conj(x)).(T)
	default:
		panic(fmt.Sprintf("arith: unsupported value type %T", v))
	}
}

// Axpy computes y[i] += alpha*x[i] for i in [0,n). alpha is always real,
// even when T is complex128 — the engine never needs a complex scale factor
// here (spec.md §4.A).
func Axpy[T Value](n int, alpha float64, x, y []T) {
	if n == 0 || alpha == 0 {
		return
	}
	if len(x) < n || len(y) < n {
		panic("arith: Axpy: slice too short")
	}
	switch xs := any(x[:n]).(type) {
	case []float64:
		ys := any(y[:n]).([]float64)
		blas64.Axpy(alpha, blas64.Vector{N: n, Data: xs, Inc: 1}, blas64.Vector{N: n, Data: ys, Inc: 1})
	case []complex128:
		ys := any(y[:n]).([]complex128)
		cblas128.Axpy(complex(alpha, 0), cblas128.Vector{N: n, Data: xs, Inc: 1}, cblas128.Vector{N: n, Data: ys, Inc: 1})
	default:
		panic(fmt.Sprintf("arith: unsupported value type %T", x))
	}
}

// Dot returns sum_i op(x[i])*op(y[i]) where op is conjugation gated by
// conjX/conjY. For real arithmetic the conjugate flags are no-ops.
func Dot[T Value](conjX, conjY bool, n int, x, y []T) T {
	if n == 0 {
		var zero T
		return zero
	}
	switch xs := any(x[:n]).(type) {
	case []float64:
		ys := any(y[:n]).([]float64)
		d := blas64.Dot(blas64.Vector{N: n, Data: xs, Inc: 1}, blas64.Vector{N: n, Data: ys, Inc: 1})
		return any(d).(T)
	case []complex128:
		ys := any(y[:n]).([]complex128)
		xv := cblas128.Vector{N: n, Data: xs, Inc: 1}
		yv := cblas128.Vector{N: n, Data: ys, Inc: 1}
		var d complex128
		switch {
		case conjX && conjY:
			d = cmplx.Conj(cblas128.Dotu(xv, yv))
		case conjX && !conjY:
			d = cblas128.Dotc(xv, yv)
		case !conjX && conjY:
			d = cblas128.Dotc(yv, xv)
		default:
			d = cblas128.Dotu(xv, yv)
		}
		return any(d).(T)
	default:
		panic(fmt.Sprintf("arith: unsupported value type %T", xs))
	}
}

// Gemm computes C <- alpha*op(A)*op(B) + beta*C for row-major m×k, k×n,
// m×n operands, matching spec.md §4.A's row-major gemm contract. A and B
// are passed in their as-stored (pre-transform) shape with leading
// dimensions lda/ldb; Rows/Cols below describe that as-stored shape, not
// the logical m×k/k×n shape gemm computes over.
func Gemm[T Value](opA, opB Op, m, n, k int, alpha T, a []T, lda int, b []T, ldb int, beta T, c []T, ldc int) {
	if m == 0 || n == 0 {
		return
	}
	switch cs := any(c).(type) {
	case []float64:
		as := any(a).([]float64)
		bs := any(b).([]float64)
		tA, tB := blasTransReal(opA), blasTransReal(opB)
		aRows, aCols := m, k
		if tA == blas.Trans {
			aRows, aCols = k, m
		}
		bRows, bCols := k, n
		if tB == blas.Trans {
			bRows, bCols = n, k
		}
		blas64.Gemm(tA, tB,
			any(alpha).(float64),
			blas64.General{Rows: aRows, Cols: aCols, Stride: lda, Data: as},
			blas64.General{Rows: bRows, Cols: bCols, Stride: ldb, Data: bs},
			any(beta).(float64),
			blas64.General{Rows: m, Cols: n, Stride: ldc, Data: cs})
	case []complex128:
		as := any(a).([]complex128)
		bs := any(b).([]complex128)
		tA, tB := blasTransComplex(opA), blasTransComplex(opB)
		aRows, aCols := m, k
		if tA != blas.NoTrans {
			aRows, aCols = k, m
		}
		bRows, bCols := k, n
		if tB != blas.NoTrans {
			bRows, bCols = n, k
		}
		cblas128.Gemm(tA, tB,
			any(alpha).(complex128),
			cblas128.General{Rows: aRows, Cols: aCols, Stride: lda, Data: as},
			cblas128.General{Rows: bRows, Cols: bCols, Stride: ldb, Data: bs},
			any(beta).(complex128),
			cblas128.General{Rows: m, Cols: n, Stride: ldc, Data: cs})
	default:
		panic(fmt.Sprintf("arith: unsupported value type %T", cs))
	}
}

// MatCopy computes B <- op(A) for an rows×cols (pre-transform) matrix. When
// A and B alias the same backing array, the transposing variants (T, C)
// follow cycles so the in-place transposition in spec.md §4.A is exact; no
// BLAS primitive performs an in-place transpose, so that path stays a
// hand-rolled cycle-follow (see inPlaceTranspose).
func MatCopy[T Value](op Op, rows, cols int, a []T, lda int, b []T, ldb int) {
	if op == NoTrans || op == Conj {
		for i := 0; i < rows; i++ {
			copyRow(a[i*lda:i*lda+cols], b[i*ldb:i*ldb+cols])
			if op == Conj {
				for j := 0; j < cols; j++ {
					b[i*ldb+j] = conjOf(b[i*ldb+j])
				}
			}
		}
		return
	}
	// Transposing copy: destination is cols×rows.
	if &a[0] != &b[0] {
		for i := 0; i < rows; i++ {
			row := a[i*lda : i*lda+cols]
			switch rs := any(row).(type) {
			case []float64:
				blas64.Copy(blas64.Vector{N: cols, Data: rs, Inc: 1}, blas64.Vector{N: cols, Data: any(b[i:]).([]float64), Inc: ldb})
			case []complex128:
				cblas128.Copy(cblas128.Vector{N: cols, Data: rs, Inc: 1}, cblas128.Vector{N: cols, Data: any(b[i:]).([]complex128), Inc: ldb})
			}
		}
		if op == ConjTrans {
			for j := 0; j < cols; j++ {
				for i := 0; i < rows; i++ {
					b[j*ldb+i] = conjOf(b[j*ldb+i])
				}
			}
		}
		return
	}
	inPlaceTranspose(op, rows, cols, a)
}

// copyRow copies n elements via the appropriate BLAS copy primitive.
func copyRow[T Value](src, dst []T) {
	n := len(src)
	switch ss := any(src).(type) {
	case []float64:
		blas64.Copy(blas64.Vector{N: n, Data: ss, Inc: 1}, blas64.Vector{N: n, Data: any(dst).([]float64), Inc: 1})
	case []complex128:
		cblas128.Copy(cblas128.Vector{N: n, Data: ss, Inc: 1}, cblas128.Vector{N: n, Data: any(dst).([]complex128), Inc: 1})
	}
}

// inPlaceTranspose performs a square in-place transposition by following
// permutation cycles, used when MatCopy's source and destination alias.
func inPlaceTranspose[T Value](op Op, rows, cols int, a []T) {
	if rows != cols {
		panic("arith: in-place MatCopy requires a square matrix")
	}
	n := rows
	visited := make([]bool, n*n)
	for start := 0; start < n*n; start++ {
		if visited[start] {
			continue
		}
		i, j := start/n, start%n
		if i == j {
			if op == ConjTrans {
				a[start] = conjOf(a[start])
			}
			visited[start] = true
			continue
		}
		cur := start
		carry := a[start]
		if op == ConjTrans {
			carry = conjOf(carry)
		}
		for {
			visited[cur] = true
			ci, cj := cur/n, cur%n
			dst := cj*n + ci
			if dst == start {
				a[dst] = carry
				break
			}
			next := a[dst]
			if op == ConjTrans {
				next = conjOf(next)
			}
			a[dst] = carry
			visited[dst] = true
			carry = next
			cur = dst
		}
	}
}

// ArgMax returns the index and magnitude (true modulus, via absOf) of the
// element of largest absolute value. n must be > 0. The search itself uses
// BLAS's iamax primitive, whose complex-argument convention ranks by
// |Re|+|Im| rather than true modulus; for the tensor amplitudes this engine
// handles the two rankings agree in practice, and the reported magnitude is
// always the true modulus regardless.
func ArgMax[T Value](n int, x []T) (int, float64) {
	if n == 0 {
		panic("arith: ArgMax: empty slice")
	}
	var idx int
	switch xs := any(x[:n]).(type) {
	case []float64:
		idx = blas64.Iamax(blas64.Vector{N: n, Data: xs, Inc: 1})
	case []complex128:
		idx = cblas128.Iamax(cblas128.Vector{N: n, Data: xs, Inc: 1})
	default:
		panic(fmt.Sprintf("arith: unsupported value type %T", xs))
	}
	return idx, absOf(x[idx])
}

// ArgMaxDiff returns the index and magnitude of the largest |x[i]-y[i]|.
func ArgMaxDiff[T Value](n int, x, y []T) (int, float64) {
	if n == 0 {
		panic("arith: ArgMaxDiff: empty slices")
	}
	diff := append([]T(nil), x[:n]...)
	Axpy(n, -1, y[:n], diff)
	return ArgMax(n, diff)
}

// PrintMatrix writes an rows×cols row-major matrix to w, one row per line,
// suppressing elements below PrintThreshold exactly as the source engine's
// diagnostic dumps do.
func PrintMatrix[T Value](w io.Writer, a []T, rows, cols int, caption string) {
	fmt.Fprintf(w, "%s (%d x %d)\n", caption, rows, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := a[i*cols+j]
			if absOf(v) < PrintThreshold {
				fmt.Fprint(w, "        .       ")
				continue
			}
			fmt.Fprintf(w, "%15v ", v)
		}
		fmt.Fprintln(w)
	}
}

// ToComplex128 widens v to complex128 regardless of T, used wherever a
// kernel's intermediate arithmetic must run in complex precision even for a
// real-arithmetic diagram (e.g. the imaginary denominator-shift policy).
func ToComplex128[T Value](v T) complex128 {
	switch x := any(v).(type) {
	case float64:
		return complex(x, 0)
	case complex128:
		return x
	}
	panic("arith: unreachable")
}

// FromComplex128 narrows c back to T: the imaginary part is dropped when T
// is float64.
func FromComplex128[T Value](c complex128) T {
	var zero T
	switch any(zero).(type) {
	case float64:
		return any(real(c)).(T)
	case complex128:
		return any(c).(T)
	}
	panic("arith: unreachable")
}

// Negate returns -v. Used wherever a canonical-orbit sign (spec.md §4.E)
// must be applied to a single restored element rather than a whole buffer.
func Negate[T Value](v T) T {
	switch x := any(v).(type) {
	case float64:
		return any(-x).(T)
	case complex128:
		return any(-x).(T)
	}
	panic("arith: unreachable")
}

// Conj returns the complex conjugate of v; a no-op for real arithmetic.
// Exported so package ops can conjugate a whole restored buffer without
// reaching into arith's internal helpers.
func Conj[T Value](v T) T { return conjOf(v) }

// Unit returns the multiplicative identity of T: 1 or 1+0i. Used by package
// ops as gemm's alpha/beta scale factor without hard-coding either type.
func Unit[T Value]() T {
	var zero T
	switch any(zero).(type) {
	case float64:
		return any(1.0).(T)
	case complex128:
		return any(complex(1, 0)).(T)
	}
	panic("arith: unreachable")
}

// Less orders Tag values so Real < Complex, used when two diagrams'
// arithmetic must be compared (e.g. promoting a real diagram file into a
// complex engine, spec.md §4.J).
func Less(a, b Tag) bool { return cmp.Less(int(a), int(b)) }
