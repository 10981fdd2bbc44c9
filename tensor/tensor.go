// Copyright ©2026 The ExpT-Tensor Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tensor holds the dense, row-major index arithmetic shared by every
// block buffer: compound-index <-> linear-index conversion and
// out-of-place/in-place transposition (spec.md §4.B).
package tensor

// Strides returns the row-major stride vector for shape: strides[i] is the
// product of shape[i+1:]. strides[len(shape)-1] is always 1.
func Strides(shape []int) []int {
	n := len(shape)
	strides := make([]int, n)
	if n == 0 {
		return strides
	}
	strides[n-1] = 1
	for i := n - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * shape[i+1]
	}
	return strides
}

// Linear converts a compound index into its row-major linear offset using a
// precomputed stride vector.
func Linear(idx, strides []int) int {
	off := 0
	for i, s := range strides {
		off += idx[i] * s
	}
	return off
}

// Compound fills idx with the compound index corresponding to linear offset
// off, given shape. It is the inverse of Linear (with Strides(shape)).
func Compound(off int, shape []int, idx []int) {
	for i := len(shape) - 1; i >= 0; i-- {
		idx[i] = off % shape[i]
		off /= shape[i]
	}
}

// InRange reports whether every component of idx lies within [0, shape[i]).
func InRange(shape, idx []int) bool {
	if len(idx) != len(shape) {
		return false
	}
	for i, s := range shape {
		if idx[i] < 0 || idx[i] >= s {
			return false
		}
	}
	return true
}

// Get returns the element at compound index idx, or zero if idx falls
// outside shape — diagram-level setters rely on this to silently skip
// spinors outside the current tile (spec.md §4.I "Out-of-range element
// accesses on set silently skip; on get they return 0").
func Get[T any](buf []T, shape, idx []int) (T, bool) {
	var zero T
	if !InRange(shape, idx) {
		return zero, false
	}
	return buf[Linear(idx, Strides(shape))], true
}

// Set stores val at compound index idx if it lies within shape; it is a
// no-op otherwise.
func Set[T any](buf []T, shape, idx []int, val T) {
	if !InRange(shape, idx) {
		return
	}
	buf[Linear(idx, Strides(shape))] = val
}

// TransposeOutOfPlace writes dst[i] = src permuted according to perm: the
// new axis i holds the old axis perm[i]. dst must be distinct from src and
// sized for the permuted shape.
func TransposeOutOfPlace[T any](dst, src []T, srcShape []int, perm []int) {
	rank := len(srcShape)
	dstShape := make([]int, rank)
	for i, p := range perm {
		dstShape[i] = srcShape[p]
	}
	srcStrides := Strides(srcShape)
	dstStrides := Strides(dstShape)

	total := 1
	for _, s := range srcShape {
		total *= s
	}
	srcIdx := make([]int, rank)
	dstIdx := make([]int, rank)
	for lin := 0; lin < total; lin++ {
		Compound(lin, srcShape, srcIdx)
		for i, p := range perm {
			dstIdx[i] = srcIdx[p]
		}
		dst[Linear(dstIdx, dstStrides)] = src[lin]
		_ = srcStrides
	}
}

// TransposeInPlace permutes buf according to perm by following permutation
// cycles; it requires the permutation to fix the tensor's shape (every axis
// length must match its image's), which holds for the square case used by
// arith.MatCopy's in-place path and by rank-2 reorders.
func TransposeInPlace[T any](buf []T, shape []int, perm []int) {
	rank := len(shape)
	for i, p := range perm {
		if shape[i] != shape[p] {
			panic("tensor: TransposeInPlace requires a shape-preserving permutation")
		}
	}
	total := 1
	for _, s := range shape {
		total *= s
	}
	strides := Strides(shape)
	visited := make([]bool, total)
	idx := make([]int, rank)
	permIdx := make([]int, rank)
	for start := 0; start < total; start++ {
		if visited[start] {
			continue
		}
		cur := start
		carry := buf[start]
		for {
			visited[cur] = true
			Compound(cur, shape, idx)
			for i, p := range perm {
				permIdx[i] = idx[p]
			}
			dst := Linear(permIdx, strides)
			if dst == start {
				buf[dst] = carry
				break
			}
			next := buf[dst]
			buf[dst] = carry
			carry = next
			cur = dst
		}
	}
}

// InversePermutation returns perm^-1 such that inv[perm[i]] = i.
func InversePermutation(perm []int) []int {
	inv := make([]int, len(perm))
	for i, p := range perm {
		inv[p] = i
	}
	return inv
}

// Compose returns the permutation equivalent to applying inner then outer:
// result[i] = inner[outer[i]].
func Compose(outer, inner []int) []int {
	out := make([]int, len(outer))
	for i, o := range outer {
		out[i] = inner[o]
	}
	return out
}

// Sign returns the signature (+1/-1) of a permutation given as a slice of
// distinct indices, by counting inversions.
func Sign(perm []int) int {
	n := len(perm)
	sign := 1
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if perm[i] > perm[j] {
				sign = -sign
			}
		}
	}
	return sign
}

// IsIdentity reports whether perm is 0,1,2,...,len(perm)-1.
func IsIdentity(perm []int) bool {
	for i, p := range perm {
		if i != p {
			return false
		}
	}
	return true
}
