package pumpfun

import (
	"encoding/binary"
	"errors"
	"fmt"

	"pump-candles/internal/solana"
)

// ErrShortBuffer is returned when a borsh payload ends early.
var ErrShortBuffer = errors.New("borsh: short buffer")

// maxStringLen bounds borsh strings; on-chain names and uris are far smaller.
const maxStringLen = 1 << 12

// reader decodes borsh little-endian fields. The first error sticks.
type reader struct {
	buf []byte
	off int
	err error
}

func newReader(b []byte) *reader {
	return &reader{buf: b}
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.buf) {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortBuffer, n, r.off, len(r.buf)-r.off)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) bool() bool {
	return r.u8() != 0
}

func (r *reader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *reader) i64() int64 {
	return int64(r.u64())
}

func (r *reader) pubkey() string {
	b := r.take(solana.PublicKeySize)
	if b == nil {
		return ""
	}
	var pk solana.PublicKey
	copy(pk[:], b)
	return pk.String()
}

func (r *reader) string() string {
	n := r.u32()
	if r.err == nil && n > maxStringLen {
		r.err = fmt.Errorf("borsh: string length %d exceeds %d", n, maxStringLen)
		return ""
	}
	b := r.take(int(n))
	if b == nil {
		return ""
	}
	return string(b)
}
