// Package wire provides the byte-level primitives shared by every protocol
// codec in hydranet: big-endian integer reads/writes over a cursor, a
// zero-copy sub-stream view, and a FIFO ring buffer.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrShortBuffer is returned when a read would run past the end of the
// underlying byte slice.
var ErrShortBuffer = errors.New("wire: short buffer")

// Reader is a cursor over a byte slice supporting big-endian primitive reads.
// It never copies the underlying slice; callers that need to retain a value
// across further reads must copy it themselves.
type Reader struct {
	buf []byte
	off int
}

// NewReader wraps buf for sequential big-endian reads starting at offset 0.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Offset returns the current read position.
func (r *Reader) Offset() int { return r.off }

// Seek repositions the cursor to an absolute offset.
func (r *Reader) Seek(off int) error {
	if off < 0 || off > len(r.buf) {
		return fmt.Errorf("%w: seek offset %d out of range [0,%d]", ErrShortBuffer, off, len(r.buf))
	}
	r.off = off
	return nil
}

// Len returns the number of unread bytes remaining.
func (r *Reader) Len() int { return len(r.buf) - r.off }

// Bytes returns the underlying buffer (not a copy).
func (r *Reader) Bytes() []byte { return r.buf }

func (r *Reader) need(n int) error {
	if r.off+n > len(r.buf) {
		return fmt.Errorf("%w: need %d bytes, have %d", ErrShortBuffer, n, r.Len())
	}
	return nil
}

// Uint8 reads a single octet.
func (r *Reader) Uint8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.off]
	r.off++
	return v, nil
}

// Int8 reads a signed octet.
func (r *Reader) Int8() (int8, error) {
	v, err := r.Uint8()
	return int8(v), err
}

// Uint16 reads a big-endian 16-bit value.
func (r *Reader) Uint16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.buf[r.off : r.off+2])
	r.off += 2
	return v, nil
}

// Uint32 reads a big-endian 32-bit value.
func (r *Reader) Uint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.buf[r.off : r.off+4])
	r.off += 4
	return v, nil
}

// Int32 reads a big-endian signed 32-bit value.
func (r *Reader) Int32() (int32, error) {
	v, err := r.Uint32()
	return int32(v), err
}

// Uint64 reads a big-endian 64-bit value.
func (r *Reader) Uint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.buf[r.off : r.off+8])
	r.off += 8
	return v, nil
}

// ReadN reads n raw bytes and returns a copy.
func (r *Reader) ReadN(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.buf[r.off:r.off+n])
	r.off += n
	return out, nil
}

// SubStream returns a zero-copy view of the next n bytes without advancing
// the parent cursor's ownership of them (the parent cursor is advanced, but
// the returned Reader shares the parent's backing array).
func (r *Reader) SubStream(n int) (*Reader, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	sub := &Reader{buf: r.buf[r.off : r.off+n]}
	r.off += n
	return sub, nil
}

// Writer accumulates big-endian primitive writes into a growable buffer.
type Writer struct {
	buf []byte
}

// NewWriter creates an empty Writer, optionally pre-sizing its buffer.
func NewWriter(sizeHint int) *Writer {
	return &Writer{buf: make([]byte, 0, sizeHint)}
}

// Bytes returns the accumulated buffer.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

// PutUint8 appends a single octet.
func (w *Writer) PutUint8(v uint8) { w.buf = append(w.buf, v) }

// PutUint16 appends a big-endian 16-bit value.
func (w *Writer) PutUint16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// PutUint32 appends a big-endian 32-bit value.
func (w *Writer) PutUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// PutUint64 appends a big-endian 64-bit value.
func (w *Writer) PutUint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// PutBytes appends raw bytes verbatim.
func (w *Writer) PutBytes(b []byte) { w.buf = append(w.buf, b...) }
