// Copyright ©2026 The ExpT-Tensor Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package integral reads the three binary files DIRAC hands off to the
// tensor engine (spec.md §6): MRCONEE (header, symmetry, spinor info, the
// Fock matrix), MDCINT (two-electron Kramers-paired integral batches) and
// MDPROP (property operator matrices). All three are Fortran sequential
// unformatted files, grounded on the "libunf" record reader used throughout
// original_source/src/rcc/new_sorting/{mrconee,mdprop}.c and
// new_sorting/new_sort_2e.c.
package integral

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// wordSize is the width, in bytes, of a Fortran unformatted record's length
// marker: 4 for a file written by a 32-bit-integer DIRAC build, 8 for a
// 64-bit one. detectWordSize (mrconee.go) picks between them the same way
// test_dirac_integer_size does, by sanity-checking record 1's decoded
// fields under each hypothesis.
type wordSize int

const (
	word4 wordSize = 4
	word8 wordSize = 8
)

// reader is a minimal sequential-access Fortran unformatted file reader:
// each record is a length-prefixed, length-suffixed byte string, the
// on-disk convention every record in MRCONEE/MDCINT/MDPROP follows.
type reader struct {
	f        *os.File
	ws       wordSize
	lastSize int64 // byte offset of the start of the most recently read record, for Backspace
}

func openReader(path string, ws wordSize) (*reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("integral: open %s: %w", path, err)
	}
	return &reader{f: f, ws: ws}, nil
}

func (r *reader) close() error { return r.f.Close() }

func (r *reader) readMarker() (int64, error) {
	buf := make([]byte, r.ws)
	if _, err := io.ReadFull(r.f, buf); err != nil {
		return 0, err
	}
	if r.ws == word4 {
		return int64(binary.LittleEndian.Uint32(buf)), nil
	}
	return int64(binary.LittleEndian.Uint64(buf)), nil
}

// nextRecordSize peeks at the length of the next record without consuming
// it, returning 0 (and no error) at end of file — the gate mdprop.c's main
// loop uses to stop at EOF instead of an explicit sentinel record.
func (r *reader) nextRecordSize() (int64, error) {
	pos, err := r.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	n, err := r.readMarker()
	if err == io.EOF {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if _, err := r.f.Seek(pos, io.SeekStart); err != nil {
		return 0, err
	}
	return n, nil
}

// readRecord consumes one full record (leading marker, payload, trailing
// marker) and returns its payload bytes.
func (r *reader) readRecord() ([]byte, error) {
	pos, err := r.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	r.lastSize = pos
	n, err := r.readMarker()
	if err != nil {
		return nil, fmt.Errorf("integral: read record header: %w", err)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r.f, payload); err != nil {
		return nil, fmt.Errorf("integral: read record payload: %w", err)
	}
	trail, err := r.readMarker()
	if err != nil {
		return nil, fmt.Errorf("integral: read record trailer: %w", err)
	}
	if trail != n {
		return nil, fmt.Errorf("integral: record length mismatch: header %d, trailer %d", n, trail)
	}
	return payload, nil
}

// backspace rewinds to the start of the most recently read record, mirroring
// unf_backspace's use in mrconee_read_abelian_irreps (peek the irrep count,
// then reread the whole record with the now-known array size).
func (r *reader) backspace() error {
	_, err := r.f.Seek(r.lastSize, io.SeekStart)
	return err
}

// fieldReader decodes fixed-width fields out of one record's payload in
// sequence, the Go equivalent of libunf's "i4,r8,..." format strings.
type fieldReader struct {
	br *bytes.Reader
}

func newFieldReader(payload []byte) *fieldReader {
	return &fieldReader{br: bytes.NewReader(payload)}
}

func (f *fieldReader) int32() int32 {
	var v int32
	binary.Read(f.br, binary.LittleEndian, &v)
	return v
}

func (f *fieldReader) int64() int64 {
	var v int64
	binary.Read(f.br, binary.LittleEndian, &v)
	return v
}

func (f *fieldReader) float64() float64 {
	var v float64
	binary.Read(f.br, binary.LittleEndian, &v)
	return v
}

func (f *fieldReader) complex128() complex128 {
	re := f.float64()
	im := f.float64()
	return complex(re, im)
}

func (f *fieldReader) chars(n int) string {
	buf := make([]byte, n)
	io.ReadFull(f.br, buf)
	return string(buf)
}

func (f *fieldReader) int32Slice(n int) []int32 {
	out := make([]int32, n)
	for i := range out {
		out[i] = f.int32()
	}
	return out
}

func (f *fieldReader) int64Slice(n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = f.int64()
	}
	return out
}

func (f *fieldReader) float64Slice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = f.float64()
	}
	return out
}

func (f *fieldReader) complex128Slice(n int) []complex128 {
	out := make([]complex128, n)
	for i := range out {
		out[i] = f.complex128()
	}
	return out
}
