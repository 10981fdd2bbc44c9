// Copyright ©2026 The ExpT-Tensor Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package integral

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// writeFortranRecord appends one word4 Fortran-unformatted record (header
// marker, payload, trailer marker) to path.
func writeFortranRecord(t *testing.T, path string, payload []byte) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	var marker [4]byte
	binary.LittleEndian.PutUint32(marker[:], uint32(len(payload)))
	f.Write(marker[:])
	f.Write(payload)
	f.Write(marker[:])
}

func TestReaderRoundTripAndBackspace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.bin")
	writeFortranRecord(t, path, []byte("hello"))
	writeFortranRecord(t, path, []byte("world!"))

	r, err := openReader(path, word4)
	if err != nil {
		t.Fatalf("openReader: %v", err)
	}
	defer r.close()

	size, err := r.nextRecordSize()
	if err != nil {
		t.Fatalf("nextRecordSize: %v", err)
	}
	if size != 5 {
		t.Fatalf("nextRecordSize = %d, want 5", size)
	}

	payload, err := r.readRecord()
	if err != nil {
		t.Fatalf("readRecord: %v", err)
	}
	if string(payload) != "hello" {
		t.Errorf("readRecord = %q, want hello", payload)
	}

	if err := r.backspace(); err != nil {
		t.Fatalf("backspace: %v", err)
	}
	payload, err = r.readRecord()
	if err != nil {
		t.Fatalf("readRecord after backspace: %v", err)
	}
	if string(payload) != "hello" {
		t.Errorf("readRecord after backspace = %q, want hello (reread)", payload)
	}

	payload, err = r.readRecord()
	if err != nil {
		t.Fatalf("readRecord(2): %v", err)
	}
	if string(payload) != "world!" {
		t.Errorf("readRecord(2) = %q, want world!", payload)
	}

	size, err = r.nextRecordSize()
	if err != nil {
		t.Fatalf("nextRecordSize at EOF: %v", err)
	}
	if size != 0 {
		t.Errorf("nextRecordSize at EOF = %d, want 0", size)
	}
}

func TestFieldReaderDecodesFixedWidthFields(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, int32(42))
	binary.Write(&buf, binary.LittleEndian, 3.5)
	binary.Write(&buf, binary.LittleEndian, 1.0) // real part
	binary.Write(&buf, binary.LittleEndian, 2.0) // imag part
	buf.WriteString("AB")

	fr := newFieldReader(buf.Bytes())
	if got := fr.int32(); got != 42 {
		t.Errorf("int32() = %d, want 42", got)
	}
	if got := fr.float64(); got != 3.5 {
		t.Errorf("float64() = %v, want 3.5", got)
	}
	if got := fr.complex128(); got != complex(1, 2) {
		t.Errorf("complex128() = %v, want 1+2i", got)
	}
	if got := fr.chars(2); got != "AB" {
		t.Errorf("chars(2) = %q, want AB", got)
	}
}

func TestDetectPointGroup(t *testing.T) {
	cases := []struct {
		names     []string
		wantGroup string
		wantOrder int
	}{
		{[]string{"   A", "   a"}, "C1", 1},
		{[]string{"A  a", "A  b"}, "C1", 4},
		{[]string{"A1 a", "B1 a"}, "C2v", 16},
		{[]string{"xyz"}, "undetected", 0},
	}
	for _, c := range cases {
		group, order := detectPointGroup(c.names)
		if group != c.wantGroup || order != c.wantOrder {
			t.Errorf("detectPointGroup(%v) = (%q, %d), want (%q, %d)", c.names, group, order, c.wantGroup, c.wantOrder)
		}
	}
}

func TestRenameIrrepsDiracToExpT(t *testing.T) {
	names := []string{"   A", "   a", "   A", "   a"}
	renameIrrepsDiracToExpT(names)
	want := []string{"A", "a", "   A", "   a"}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}

	// Unrecognized forms are left untouched.
	untouched := []string{"A1 a", "B1 a"}
	renameIrrepsDiracToExpT(untouched)
	if untouched[0] != "A1 a" || untouched[1] != "B1 a" {
		t.Errorf("renameIrrepsDiracToExpT modified an unrecognized irrep set: %v", untouched)
	}
}

func TestAnalyzeComplexMatrixAndNonzeroBlocks(t *testing.T) {
	// A 2x2 real-symmetric, purely-real matrix.
	m := []complex128{1, 2, 2, 3}
	reZero, imZero, reSym, imSym := analyzeComplexMatrix(2, m)
	if reZero {
		t.Error("reZero = true, want false (matrix has nonzero real parts)")
	}
	if !imZero {
		t.Error("imZero = false, want true (matrix is purely real)")
	}
	if !reSym {
		t.Error("reSym = false, want true (matrix is symmetric)")
	}
	if !imSym {
		t.Error("imSym = false, want true (zero imaginary part is trivially symmetric)")
	}

	mrconee := &MRCONEE{
		NumSpinors:   2,
		IrrepNames:   []string{"A", "B"},
		SpinorIrreps: []int{0, 1},
	}
	p := Property{Name: "TEST", NSpinors: 2, Matrix: m}
	blocks := p.NonzeroBlocks(mrconee)
	if len(blocks) == 0 {
		t.Error("NonzeroBlocks reported no nonzero irrep-pair blocks for a fully nonzero matrix")
	}
}

func TestTrimNulls(t *testing.T) {
	if got := trimNulls("ABC\x00\x00"); got != "ABC" {
		t.Errorf("trimNulls = %q, want ABC", got)
	}
	if got := trimNulls("EOFLABEL"); got != "EOFLABEL" {
		t.Errorf("trimNulls = %q, want EOFLABEL", got)
	}
}

func writeMDPROPFile(t *testing.T, path string, name string, matrix []complex128, dim int) {
	t.Helper()
	nameRec := make([]byte, 32)
	copy(nameRec[24:32], []byte(name))
	writeFortranRecord(t, path, nameRec)

	var buf bytes.Buffer
	for _, v := range matrix {
		binary.Write(&buf, binary.LittleEndian, real(v))
		binary.Write(&buf, binary.LittleEndian, imag(v))
	}
	writeFortranRecord(t, path, buf.Bytes())

	eofRec := make([]byte, 32)
	copy(eofRec[24:32], []byte("EOFLABEL"))
	writeFortranRecord(t, path, eofRec)
}

func TestReadMDPROPRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "MDPROP")
	matrix := []complex128{1, 0, 0, 1}
	writeMDPROPFile(t, path, "DIPOLE  ", matrix, 2)

	props, err := ReadMDPROP(path, nil)
	if err != nil {
		t.Fatalf("ReadMDPROP: %v", err)
	}
	if len(props) != 1 {
		t.Fatalf("len(props) = %d, want 1", len(props))
	}
	p := props[0]
	if p.Name != "DIPOLE" {
		t.Errorf("Name = %q, want DIPOLE", p.Name)
	}
	if p.NSpinors != 2 {
		t.Errorf("NSpinors = %d, want 2", p.NSpinors)
	}
	for i, v := range matrix {
		if p.Matrix[i] != v {
			t.Errorf("Matrix[%d] = %v, want %v", i, p.Matrix[i], v)
		}
	}
	if math.Abs(real(p.Matrix[0])-1) > 1e-12 {
		t.Errorf("Matrix[0] real part = %v, want 1", real(p.Matrix[0]))
	}
}
