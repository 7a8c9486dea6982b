// Copyright (C) 2014 Jakob Borg and Contributors (see the CONTRIBUTORS file).
//
// This program is free software: you can redistribute it and/or modify it
// under the terms of the GNU General Public License as published by the Free
// Software Foundation, either version 3 of the License, or (at your option)
// any later version.
//
// This program is distributed in the hope that it will be useful, but WITHOUT
// ANY WARRANTY; without even the implied warranty of MERCHANTABILITY or
// FITNESS FOR A PARTICULAR PURPOSE. See the GNU General Public License for
// more details.
//
// You should have received a copy of the GNU General Public License along
// with this program. If not, see <http://www.gnu.org/licenses/>.

// Package buffer implements the growable byte buffer with an
// append/consume cursor used to compose and parse the AcceptedRoster
// blob (spec §4.2, §4.6 item 3). All multi-byte fields are
// little-endian, per the Open Question in spec §9.
package buffer

import (
	"encoding/binary"
	"fmt"
)

// Buffer is a growable byte buffer with independent write (append) and
// read (take) cursors. The zero value is an empty buffer ready for
// appending, which is what New returns.
type Buffer struct {
	data []byte
	pos  int
}

// New returns an empty Buffer ready for appending.
func New() *Buffer {
	return &Buffer{}
}

// FromBytes wraps an existing slice for reading (take) only.
func FromBytes(b []byte) *Buffer {
	return &Buffer{data: b}
}

// Reserve ensures the backing array has room for at least n more bytes
// without changing the buffer's length; it reallocates only when the
// spare capacity is smaller than n.
func (b *Buffer) Reserve(n int) {
	if cap(b.data)-len(b.data) >= n {
		return
	}
	grown := make([]byte, len(b.data), len(b.data)+n)
	copy(grown, b.data)
	b.data = grown
}

// AppendRaw appends p verbatim.
func (b *Buffer) AppendRaw(p []byte) {
	b.data = append(b.data, p...)
}

// AppendUint64 appends v as 8 little-endian bytes.
func (b *Buffer) AppendUint64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	b.data = append(b.data, tmp[:]...)
}

// AppendUint32 appends v as 4 little-endian bytes.
func (b *Buffer) AppendUint32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	b.data = append(b.data, tmp[:]...)
}

// AppendInt16 appends v as 2 little-endian bytes.
func (b *Buffer) AppendInt16(v int16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], uint16(v))
	b.data = append(b.data, tmp[:]...)
}

// AppendString appends s's raw UTF-8 bytes. It adds no length prefix
// and no NUL terminator; the caller frames the length separately.
func (b *Buffer) AppendString(s string) {
	b.data = append(b.data, s...)
}

// TakeUint64 consumes 8 bytes and returns them as a little-endian uint64.
func (b *Buffer) TakeUint64() (uint64, error) {
	raw, err := b.TakeRaw(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(raw), nil
}

// TakeUint32 consumes 4 bytes and returns them as a little-endian uint32.
func (b *Buffer) TakeUint32() (uint32, error) {
	raw, err := b.TakeRaw(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(raw), nil
}

// TakeInt16 consumes 2 bytes and returns them as a little-endian int16.
func (b *Buffer) TakeInt16() (int16, error) {
	raw, err := b.TakeRaw(2)
	if err != nil {
		return 0, err
	}
	return int16(binary.LittleEndian.Uint16(raw)), nil
}

// TakeRaw consumes and returns the next n bytes.
func (b *Buffer) TakeRaw(n int) ([]byte, error) {
	if b.pos+n > len(b.data) {
		return nil, fmt.Errorf("buffer: short read, want %d bytes, have %d", n, len(b.data)-b.pos)
	}
	out := b.data[b.pos : b.pos+n]
	b.pos += n
	return out, nil
}

// TakeString consumes and returns n bytes decoded as a string.
func (b *Buffer) TakeString(n int) (string, error) {
	raw, err := b.TakeRaw(n)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Remaining reports how many unread bytes remain.
func (b *Buffer) Remaining() int {
	return len(b.data) - b.pos
}

// Bytes returns the buffer's full written contents.
func (b *Buffer) Bytes() []byte {
	return b.data
}
