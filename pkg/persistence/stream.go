// Package persistence provides the checksummed little-endian stream
// primitives behind collection snapshots: a writer that maintains a running
// CRC32-C over everything written, and a reader that parses an in-memory
// payload whose trailing checksum has already been verified.
//
// The snapshot layout itself is owned by the collection package; this layer
// only knows bytes, integers, floats and varints.
package persistence

import (
	"encoding/binary"
	"hash"
	"hash/crc32"
	"io"
	"math"

	"github.com/oasysai/oasysdb/pkg/core/oaserr"
)

// castagnoli is the CRC32-C polynomial table shared by writer and verifier.
var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Checksum computes the CRC32-C of a payload.
func Checksum(payload []byte) uint32 {
	return crc32.Checksum(payload, castagnoli)
}

// Writer writes little-endian values to an io.Writer while folding every
// byte into a running CRC32-C. The first write error sticks; Finish appends
// the checksum of everything written before it.
type Writer struct {
	w   io.Writer
	crc hash.Hash32
	n   int64
	err error
}

// NewWriter wraps an io.Writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, crc: crc32.New(castagnoli)}
}

// Err returns the sticky error, if any.
func (w *Writer) Err() error { return w.err }

// Written returns the number of payload bytes written so far.
func (w *Writer) Written() int64 { return w.n }

// Raw writes p verbatim.
func (w *Writer) Raw(p []byte) {
	if w.err != nil {
		return
	}
	if _, err := w.w.Write(p); err != nil {
		w.err = oaserr.WrapIo(err)
		return
	}
	w.crc.Write(p)
	w.n += int64(len(p))
}

// U8 writes a single byte.
func (w *Writer) U8(v uint8) {
	w.Raw([]byte{v})
}

// U16 writes a little-endian uint16.
func (w *Writer) U16(v uint16) {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	w.Raw(buf[:])
}

// U32 writes a little-endian uint32.
func (w *Writer) U32(v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	w.Raw(buf[:])
}

// F32 writes a little-endian IEEE-754 single.
func (w *Writer) F32(v float32) {
	w.U32(math.Float32bits(v))
}

// F64 writes a little-endian IEEE-754 double.
func (w *Writer) F64(v float64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
	w.Raw(buf[:])
}

// Uvarint writes an unsigned varint.
func (w *Writer) Uvarint(v uint64) {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	w.Raw(buf[:n])
}

// Finish writes the CRC32-C of every byte written so far and returns the
// sticky error state.
func (w *Writer) Finish() error {
	if w.err != nil {
		return w.err
	}
	sum := w.crc.Sum32()
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], sum)
	if _, err := w.w.Write(buf[:]); err != nil {
		w.err = oaserr.WrapIo(err)
	}
	return w.err
}

// Reader parses little-endian values out of an in-memory payload. Reads past
// the end set a sticky CorruptStream error and return zero values, so parse
// code can run straight-line and check Err once.
type Reader struct {
	buf []byte
	off int
	err error
}

// NewReader wraps a verified payload.
func NewReader(payload []byte) *Reader {
	return &Reader{buf: payload}
}

// Err returns the sticky error, if any.
func (r *Reader) Err() error { return r.err }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.off }

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.buf) {
		r.err = oaserr.Corrupt("stream is truncated")
		return nil
	}
	out := r.buf[r.off : r.off+n]
	r.off += n
	return out
}

// Raw returns the next n bytes of the payload without copying.
func (r *Reader) Raw(n int) []byte {
	return r.take(n)
}

// U8 reads a single byte.
func (r *Reader) U8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// U16 reads a little-endian uint16.
func (r *Reader) U16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

// U32 reads a little-endian uint32.
func (r *Reader) U32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// F32 reads a little-endian IEEE-754 single.
func (r *Reader) F32() float32 {
	return math.Float32frombits(r.U32())
}

// F64 reads a little-endian IEEE-754 double.
func (r *Reader) F64() float64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

// Uvarint reads an unsigned varint.
func (r *Reader) Uvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.buf[r.off:])
	if n <= 0 {
		r.err = oaserr.Corrupt("stream varint is malformed")
		return 0
	}
	r.off += n
	return v
}

// ReadVerified reads an entire snapshot from r, verifies its trailing
// CRC32-C and returns the payload without the checksum.
func ReadVerified(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, oaserr.WrapIo(err)
	}
	if len(data) < 4 {
		return nil, oaserr.Corrupt("stream is too short to carry a checksum")
	}
	payload := data[:len(data)-4]
	want := binary.LittleEndian.Uint32(data[len(data)-4:])
	if got := Checksum(payload); got != want {
		return nil, oaserr.Corrupt("checksum mismatch: stored %08x, computed %08x", want, got)
	}
	return payload, nil
}
