// Package bytestream implements the seekable, endian-aware byte handle that
// every other package in this module reads and writes through. It plays the
// role the google/tiff.BReader/BWriter pair plays in the teacher's COG
// rewriter (cog.go's COG.enc binary.ByteOrder field, used throughout
// writeHeader/WriteIFD), generalized into a standalone, bufio-backed type
// that can sit on a file, a memory buffer, or a remote object.
package bytestream

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// minBufferSize is the buffered-read floor spec.md §4.1 requires ("Reads
// must be buffered (>= 8 KiB) to make IFD traversal cheap").
const minBufferSize = 8 * 1024

// Backend is the minimal seekable byte source/sink a ByteStream wraps. File,
// memory, and remote backends (see the file.go, memory.go and remote.go
// backends in this package) all satisfy it.
type Backend interface {
	io.ReaderAt
	io.WriterAt
	// Truncate grows or shrinks the backend to size. Remote backends that
	// cannot truncate in place return ErrNotSupported.
	Truncate(size int64) error
	// Len reports the current size of the backend.
	Len() (int64, error)
	Flush() error
	Close() error
}

// ErrNotSupported is returned by backend operations a given backend cannot
// perform (e.g. in-place truncate on a remote object store).
var ErrNotSupported = fmt.Errorf("bytestream: operation not supported by this backend")

// ByteStream is the seekable, endian-parameterized read/write handle
// described in spec.md §4.1. A single instance is not safe for concurrent
// use from multiple goroutines; callers that want to parallelize tile
// encoding serialize their appends through one ByteStream (see the
// tilemap package's write_completed_tiles).
type ByteStream struct {
	backend Backend
	order   binary.ByteOrder
	pos     int64
	length  int64

	// br buffers sequential reads starting at pos, per spec.md's >=8KiB
	// buffering requirement. It is invalidated by any Seek or Write.
	br       *bufio.Reader
	brOrigin int64
}

// Open wraps backend in a ByteStream using the given byte order. The current
// length is read from the backend immediately.
func Open(backend Backend, order binary.ByteOrder) (*ByteStream, error) {
	n, err := backend.Len()
	if err != nil {
		return nil, fmt.Errorf("bytestream: stat backend: %w", err)
	}
	return &ByteStream{backend: backend, order: order, length: n}, nil
}

// Order returns the byte order this stream was opened with.
func (b *ByteStream) Order() binary.ByteOrder { return b.order }

// SetOrder changes the byte order used by the scalar accessors. Useful when
// a Writer flips an existing file's endianness is never supported by TIFF,
// but a Reader that hasn't yet parsed the header needs to probe both orders.
func (b *ByteStream) SetOrder(order binary.ByteOrder) { b.order = order }

// Offset returns the current read/write cursor.
func (b *ByteStream) Offset() int64 { return b.pos }

// Length returns the current backend size.
func (b *ByteStream) Length() (int64, error) {
	n, err := b.backend.Len()
	if err != nil {
		return 0, err
	}
	b.length = n
	return n, nil
}

// Seek repositions the cursor. Seeking past EOF is legal for writers (the
// next Write extends the backend); Seek itself never errors on a forward
// seek, matching spec.md's "out-of-range seek -> error" only for negative
// positions.
func (b *ByteStream) Seek(pos int64) error {
	if pos < 0 {
		return fmt.Errorf("bytestream: negative seek offset %d", pos)
	}
	if pos != b.pos {
		b.br = nil
	}
	b.pos = pos
	return nil
}

func (b *ByteStream) ensureReader() *bufio.Reader {
	if b.br == nil || b.brOrigin != b.pos {
		b.br = bufio.NewReaderSize(&atReader{b: b.backend, off: b.pos}, minBufferSize)
		b.brOrigin = b.pos
	}
	return b.br
}

// atReader adapts an io.ReaderAt plus a moving offset into an io.Reader so
// bufio.Reader can buffer ahead of the logical cursor.
type atReader struct {
	b   Backend
	off int64
}

func (a *atReader) Read(p []byte) (int, error) {
	n, err := a.b.ReadAt(p, a.off)
	a.off += int64(n)
	return n, err
}

// Read fills buf starting at the cursor, advancing it by the number of
// bytes actually read. Per spec.md §4.1, a short read at EOF returns the
// short count with no error; callers detect end-of-data themselves.
func (b *ByteStream) Read(buf []byte) (int, error) {
	n, err := io.ReadFull(b.ensureReader(), buf)
	b.pos += int64(n)
	b.brOrigin = b.pos
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		return n, nil
	}
	return n, err
}

// ReadFull is like Read but treats a short read as an error; used where the
// caller has already validated the range lies within the file (e.g. IFD
// entry arrays whose extent was checked against the file length).
func (b *ByteStream) ReadFull(buf []byte) error {
	n, err := b.Read(buf)
	if n != len(buf) {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return fmt.Errorf("bytestream: short read at offset %d: got %d of %d: %w", b.pos-int64(n), n, len(buf), err)
	}
	return nil
}

// Write appends/overwrites buf at the cursor, advancing it and extending
// the backend's reported length if necessary.
func (b *ByteStream) Write(buf []byte) (int, error) {
	n, err := b.backend.WriteAt(buf, b.pos)
	b.pos += int64(n)
	b.br = nil
	if b.pos > b.length {
		b.length = b.pos
	}
	return n, err
}

// WriteAt writes buf at an absolute offset without disturbing the cursor.
func (b *ByteStream) WriteAt(buf []byte, off int64) (int, error) {
	n, err := b.backend.WriteAt(buf, off)
	if off+int64(n) > b.length {
		b.length = off + int64(n)
	}
	return n, err
}

// ReadAt reads buf at an absolute offset without disturbing the cursor.
func (b *ByteStream) ReadAt(buf []byte, off int64) (int, error) {
	return b.backend.ReadAt(buf, off)
}

// Flush guarantees pending writes reach the backend; Close always flushes
// first (spec.md §4.1: "flush is guaranteed before a close returns").
func (b *ByteStream) Flush() error { return b.backend.Flush() }

func (b *ByteStream) Close() error {
	if err := b.backend.Flush(); err != nil {
		_ = b.backend.Close()
		return fmt.Errorf("bytestream: flush on close: %w", err)
	}
	return b.backend.Close()
}

// --- scalar accessors -------------------------------------------------

func (b *ByteStream) ReadU8() (uint8, error) {
	var buf [1]byte
	if err := b.ReadFull(buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (b *ByteStream) ReadU16() (uint16, error) {
	var buf [2]byte
	if err := b.ReadFull(buf[:]); err != nil {
		return 0, err
	}
	return b.order.Uint16(buf[:]), nil
}

func (b *ByteStream) ReadU32() (uint32, error) {
	var buf [4]byte
	if err := b.ReadFull(buf[:]); err != nil {
		return 0, err
	}
	return b.order.Uint32(buf[:]), nil
}

func (b *ByteStream) ReadU64() (uint64, error) {
	var buf [8]byte
	if err := b.ReadFull(buf[:]); err != nil {
		return 0, err
	}
	return b.order.Uint64(buf[:]), nil
}

func (b *ByteStream) ReadI8() (int8, error) {
	v, err := b.ReadU8()
	return int8(v), err
}
func (b *ByteStream) ReadI16() (int16, error) {
	v, err := b.ReadU16()
	return int16(v), err
}
func (b *ByteStream) ReadI32() (int32, error) {
	v, err := b.ReadU32()
	return int32(v), err
}
func (b *ByteStream) ReadI64() (int64, error) {
	v, err := b.ReadU64()
	return int64(v), err
}

func (b *ByteStream) ReadF32() (float32, error) {
	v, err := b.ReadU32()
	return math.Float32frombits(v), err
}
func (b *ByteStream) ReadF64() (float64, error) {
	v, err := b.ReadU64()
	return math.Float64frombits(v), err
}

func (b *ByteStream) WriteU8(v uint8) error {
	_, err := b.Write([]byte{v})
	return err
}
func (b *ByteStream) WriteU16(v uint16) error {
	var buf [2]byte
	b.order.PutUint16(buf[:], v)
	_, err := b.Write(buf[:])
	return err
}
func (b *ByteStream) WriteU32(v uint32) error {
	var buf [4]byte
	b.order.PutUint32(buf[:], v)
	_, err := b.Write(buf[:])
	return err
}
func (b *ByteStream) WriteU64(v uint64) error {
	var buf [8]byte
	b.order.PutUint64(buf[:], v)
	_, err := b.Write(buf[:])
	return err
}
func (b *ByteStream) WriteI8(v int8) error   { return b.WriteU8(uint8(v)) }
func (b *ByteStream) WriteI16(v int16) error { return b.WriteU16(uint16(v)) }
func (b *ByteStream) WriteI32(v int32) error { return b.WriteU32(uint32(v)) }
func (b *ByteStream) WriteI64(v int64) error { return b.WriteU64(uint64(v)) }
func (b *ByteStream) WriteF32(v float32) error {
	return b.WriteU32(math.Float32bits(v))
}
func (b *ByteStream) WriteF64(v float64) error {
	return b.WriteU64(math.Float64bits(v))
}
