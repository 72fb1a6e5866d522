package pumpfun

import (
	"encoding/base64"
	"encoding/binary"

	"pump-candles/internal/solana"
)

// encoder writes borsh fields for test payloads.
type encoder struct {
	buf []byte
}

func (e *encoder) raw(b []byte) *encoder {
	e.buf = append(e.buf, b...)
	return e
}

func (e *encoder) u8(v uint8) *encoder {
	e.buf = append(e.buf, v)
	return e
}

func (e *encoder) u64(v uint64) *encoder {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
	return e
}

func (e *encoder) bool(v bool) *encoder {
	if v {
		return e.u8(1)
	}
	return e.u8(0)
}

func (e *encoder) str(s string) *encoder {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, uint32(len(s)))
	e.buf = append(e.buf, s...)
	return e
}

func (e *encoder) pubkey(s string) *encoder {
	pk := solana.MustParsePublicKey(s)
	return e.raw(pk[:])
}

const (
	testMint  = "So11111111111111111111111111111111111111112"
	testCurve = "TokenkegQfeZyiNwAJbNbGqPKJ6ES4GGDpzbRvBXGfD"
	testUser  = "11111111111111111111111111111111"
)

func tradePayload(sol, token uint64, isBuy bool, ts int64) []byte {
	e := &encoder{}
	e.raw(tradeDiscriminator[:]).
		pubkey(testMint).
		u64(sol).
		u64(token).
		bool(isBuy).
		pubkey(testUser).
		u64(uint64(ts)).
		u64(1_000_000). // virtual sol reserves, ignored
		u64(2_000_000)  // virtual token reserves, ignored
	return e.buf
}

func createPayload(name, symbol, uri string) []byte {
	e := &encoder{}
	e.raw(createDiscriminator[:]).
		str(name).
		str(symbol).
		str(uri).
		pubkey(testMint).
		pubkey(testCurve).
		pubkey(testUser)
	return e.buf
}

func dataLine(payload []byte) string {
	return programDataPrefix + base64.StdEncoding.EncodeToString(payload)
}
