// Package message implements the peer wire plane: framing,
// request/response correlation, retry with exponential backoff, and
// quorum aggregation. Packer/Unpacker are a hand-rolled big-endian,
// sticky-error byte codec rather than a generic reflection-based one,
// so integer widths and field order are exactly what the wire format
// requires.
package message

import (
	"encoding/binary"
	"errors"

	"github.com/antstorage/ant/addr"
)

// ErrShortBuffer is returned by Unpacker reads that run past the end of
// the underlying buffer.
var ErrShortBuffer = errors.New("message: short buffer")

// Packer appends big-endian-encoded values to Bytes, short-circuiting
// once Err is set, so a long chain of Pack calls can skip per-call
// error checks.
type Packer struct {
	Bytes []byte
	Err   error
}

// NewPacker returns a Packer with capacity hinted by size.
func NewPacker(size int) *Packer {
	return &Packer{Bytes: make([]byte, 0, size)}
}

func (p *Packer) PackByte(b byte) {
	if p.Err != nil {
		return
	}
	p.Bytes = append(p.Bytes, b)
}

func (p *Packer) PackBool(b bool) {
	if b {
		p.PackByte(1)
	} else {
		p.PackByte(0)
	}
}

func (p *Packer) PackInt(i uint32) {
	if p.Err != nil {
		return
	}
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], i)
	p.Bytes = append(p.Bytes, buf[:]...)
}

func (p *Packer) PackLong(l uint64) {
	if p.Err != nil {
		return
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], l)
	p.Bytes = append(p.Bytes, buf[:]...)
}

// PackBytes appends raw bytes with no length prefix; callers that need
// the length recovered on unpack should use PackVarBytes instead.
func (p *Packer) PackBytes(b []byte) {
	if p.Err != nil {
		return
	}
	p.Bytes = append(p.Bytes, b...)
}

// PackVarBytes appends a u32 length prefix followed by b.
func (p *Packer) PackVarBytes(b []byte) {
	p.PackInt(uint32(len(b)))
	p.PackBytes(b)
}

// PackAddress appends a fixed 32-byte address with no length prefix.
func (p *Packer) PackAddress(a addr.Address) {
	p.PackBytes(a[:])
}

// Unpacker reads big-endian-encoded values from Bytes starting at
// Offset, sticky-erroring on the first short read exactly as Packer
// sticky-errors on the first failed write.
type Unpacker struct {
	Bytes  []byte
	Offset int
	Err    error
}

// NewUnpacker wraps b for reading.
func NewUnpacker(b []byte) *Unpacker {
	return &Unpacker{Bytes: b}
}

func (u *Unpacker) require(n int) bool {
	if u.Err != nil {
		return false
	}
	if u.Offset+n > len(u.Bytes) {
		u.Err = ErrShortBuffer
		return false
	}
	return true
}

func (u *Unpacker) UnpackByte() byte {
	if !u.require(1) {
		return 0
	}
	b := u.Bytes[u.Offset]
	u.Offset++
	return b
}

func (u *Unpacker) UnpackBool() bool {
	return u.UnpackByte() != 0
}

func (u *Unpacker) UnpackInt() uint32 {
	if !u.require(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(u.Bytes[u.Offset:])
	u.Offset += 4
	return v
}

func (u *Unpacker) UnpackLong() uint64 {
	if !u.require(8) {
		return 0
	}
	v := binary.BigEndian.Uint64(u.Bytes[u.Offset:])
	u.Offset += 8
	return v
}

// UnpackBytes reads exactly n raw bytes.
func (u *Unpacker) UnpackBytes(n int) []byte {
	if !u.require(n) {
		return nil
	}
	b := u.Bytes[u.Offset : u.Offset+n]
	u.Offset += n
	return b
}

// UnpackVarBytes reads a u32 length prefix followed by that many bytes.
func (u *Unpacker) UnpackVarBytes() []byte {
	n := u.UnpackInt()
	return u.UnpackBytes(int(n))
}

// UnpackCount reads a u32 element count and checks that elemSize bytes
// per element could still be present in the buffer, so a hostile count
// fails as a short read instead of forcing a huge allocation.
func (u *Unpacker) UnpackCount(elemSize int) int {
	n := int(u.UnpackInt())
	if u.Err != nil {
		return 0
	}
	if elemSize > 0 && u.Offset+n*elemSize > len(u.Bytes) {
		u.Err = ErrShortBuffer
		return 0
	}
	return n
}

// UnpackAddress reads a fixed 32-byte address.
func (u *Unpacker) UnpackAddress() addr.Address {
	var a addr.Address
	b := u.UnpackBytes(addr.Size)
	if b != nil {
		copy(a[:], b)
	}
	return a
}
