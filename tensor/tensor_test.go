// Copyright ©2026 The ExpT-Tensor Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tensor

import (
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestStridesAndLinearRoundTrip(t *testing.T) {
	shape := []int{2, 3, 4}
	strides := Strides(shape)
	want := []int{12, 4, 1}
	if diff := cmp.Diff(want, strides); diff != "" {
		t.Fatalf("Strides(%v) mismatch (-want +got):\n%s", shape, diff)
	}

	total := 1
	for _, s := range shape {
		total *= s
	}
	idx := make([]int, len(shape))
	for lin := 0; lin < total; lin++ {
		Compound(lin, shape, idx)
		if got := Linear(idx, strides); got != lin {
			t.Errorf("Linear(Compound(%d)) = %d, want %d (idx=%v)", lin, got, lin, idx)
		}
	}
}

func TestInRange(t *testing.T) {
	shape := []int{2, 3}
	cases := []struct {
		idx []int
		in  bool
	}{
		{[]int{0, 0}, true},
		{[]int{1, 2}, true},
		{[]int{2, 0}, false},
		{[]int{0, 3}, false},
		{[]int{-1, 0}, false},
		{[]int{0, 0, 0}, false},
	}
	for _, c := range cases {
		if got := InRange(shape, c.idx); got != c.in {
			t.Errorf("InRange(%v, %v) = %v, want %v", shape, c.idx, got, c.in)
		}
	}
}

func TestGetSetOutOfRange(t *testing.T) {
	shape := []int{2, 2}
	buf := make([]float64, 4)
	Set(buf, shape, []int{0, 0}, 1)
	Set(buf, shape, []int{5, 5}, 99) // silently skipped

	v, ok := Get(buf, shape, []int{0, 0})
	if !ok || v != 1 {
		t.Errorf("Get(0,0) = %v, %v, want 1, true", v, ok)
	}
	if _, ok := Get(buf, shape, []int{5, 5}); ok {
		t.Errorf("Get(5,5) reported ok=true for an out-of-range index")
	}
}

func TestTransposeOutOfPlace(t *testing.T) {
	// src is 2x3, row-major: [[0,1,2],[3,4,5]]
	src := []float64{0, 1, 2, 3, 4, 5}
	srcShape := []int{2, 3}
	perm := []int{1, 0} // new axis 0 = old axis 1 (the 3-dim), new axis 1 = old axis 0
	dst := make([]float64, 6)
	TransposeOutOfPlace(dst, src, srcShape, perm)

	// dst should be the mathematical transpose: 3x2, [[0,3],[1,4],[2,5]]
	want := []float64{0, 3, 1, 4, 2, 5}
	if !reflect.DeepEqual(dst, want) {
		t.Fatalf("TransposeOutOfPlace = %v, want %v", dst, want)
	}
}

func TestTransposeInPlaceMatchesOutOfPlace(t *testing.T) {
	shape := []int{3, 3}
	perm := []int{1, 0}
	src := []float64{0, 1, 2, 3, 4, 5, 6, 7, 8}

	outPlace := make([]float64, 9)
	TransposeOutOfPlace(outPlace, src, shape, perm)

	inPlace := append([]float64(nil), src...)
	TransposeInPlace(inPlace, shape, perm)

	if !reflect.DeepEqual(inPlace, outPlace) {
		t.Fatalf("TransposeInPlace = %v, want %v (matching out-of-place)", inPlace, outPlace)
	}
}

func TestInversePermutation(t *testing.T) {
	perm := []int{2, 0, 1}
	inv := InversePermutation(perm)
	for i, p := range perm {
		if inv[p] != i {
			t.Errorf("inv[perm[%d]] = inv[%d] = %d, want %d", i, p, inv[p], i)
		}
	}
}

func TestCompose(t *testing.T) {
	outer := []int{1, 0, 2}
	inner := []int{2, 1, 0}
	got := Compose(outer, inner)
	want := []int{1, 2, 0}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Compose(%v, %v) = %v, want %v", outer, inner, got, want)
	}
}

func TestSign(t *testing.T) {
	cases := []struct {
		perm []int
		sign int
	}{
		{[]int{0, 1, 2}, 1},
		{[]int{1, 0, 2}, -1},
		{[]int{1, 2, 0}, 1},
		{[]int{2, 1, 0}, -1},
	}
	for _, c := range cases {
		if got := Sign(c.perm); got != c.sign {
			t.Errorf("Sign(%v) = %d, want %d", c.perm, got, c.sign)
		}
	}
}

func TestIsIdentity(t *testing.T) {
	if !IsIdentity([]int{0, 1, 2}) {
		t.Error("IsIdentity([0,1,2]) = false, want true")
	}
	if IsIdentity([]int{1, 0, 2}) {
		t.Error("IsIdentity([1,0,2]) = true, want false")
	}
}
