// Copyright ©2026 The ExpT-Tensor Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package integral

import (
	"bytes"
	"encoding/binary"
	"path/filepath"
	"testing"
)

func writeMDCINTHeader(t *testing.T, path string, kr []int32) {
	t.Helper()
	var rec bytes.Buffer
	rec.WriteString("2026-07-31  000000")
	rec.Truncate(18)
	binary.Write(&rec, binary.LittleEndian, int32(len(kr)/2))
	for _, v := range kr {
		binary.Write(&rec, binary.LittleEndian, v)
	}
	writeFortranRecord(t, path, rec.Bytes())
}

func writeMDCINTBatch(t *testing.T, path string, ikr, jkr int32, indK, indL []int32, val []complex128) {
	t.Helper()
	var rec bytes.Buffer
	binary.Write(&rec, binary.LittleEndian, ikr)
	binary.Write(&rec, binary.LittleEndian, jkr)
	binary.Write(&rec, binary.LittleEndian, int32(len(indK)))
	for i := range indK {
		binary.Write(&rec, binary.LittleEndian, indK[i])
		binary.Write(&rec, binary.LittleEndian, indL[i])
	}
	for _, v := range val {
		binary.Write(&rec, binary.LittleEndian, real(v))
		binary.Write(&rec, binary.LittleEndian, imag(v))
	}
	writeFortranRecord(t, path, rec.Bytes())
}

func TestMDCINTReadHeaderAndBatches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "MDCINT")
	kr := []int32{1, 2, 3, 4} // two Kramers pairs
	writeMDCINTHeader(t, path, kr)
	writeMDCINTBatch(t, path, 1, 2, []int32{1}, []int32{2}, []complex128{3 + 4i})
	writeMDCINTBatch(t, path, 0, 0, nil, nil, nil) // terminator

	m, err := OpenMDCINT(path, false)
	if err != nil {
		t.Fatalf("OpenMDCINT: %v", err)
	}
	defer m.Close()

	if len(m.KR) != 4 {
		t.Fatalf("len(KR) = %d, want 4", len(m.KR))
	}
	for i, v := range kr {
		if m.KR[i] != v {
			t.Errorf("KR[%d] = %d, want %d", i, m.KR[i], v)
		}
	}

	batch, ok, err := m.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !ok {
		t.Fatal("Next reported ok=false for the first real batch")
	}
	if batch.IKR != 1 || batch.JKR != 2 {
		t.Errorf("batch IKR/JKR = %d/%d, want 1/2", batch.IKR, batch.JKR)
	}
	if len(batch.Val) != 1 || batch.Val[0] != 3+4i {
		t.Errorf("batch.Val = %v, want [3+4i]", batch.Val)
	}

	_, ok, err = m.Next()
	if err != nil {
		t.Fatalf("Next (terminator): %v", err)
	}
	if ok {
		t.Error("Next at the ikr=jkr=0 terminator should report ok=false")
	}
}
