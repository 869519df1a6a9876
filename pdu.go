// Copyright (c) 2018 by Thorsten von Eicken, see LICENSE file for details

package ble

// pduHeadReserve is the number of bytes reserved at the front of the
// first segment of an allocated receive PDU so a header can later be
// prepended without a second allocation.
const pduHeadReserve = 4

// MbufPool is the allocator a PDU chain draws segments from. Get returns
// a buffer whose capacity may be smaller than requested (in which case
// RxPDUAlloc chains another one), or nil if the pool is exhausted.
type MbufPool interface {
	Get(n int) []byte
}

// FixedPool is a pool of fixed-capacity blocks, the common case: every
// Get returns a block of at most BlockSize capacity, so PDUs larger than
// one block come back as chains.
type FixedPool struct {
	BlockSize int
}

func (p *FixedPool) Get(n int) []byte {
	sz := p.BlockSize
	if n < sz {
		sz = n
	}
	if sz <= 0 {
		return nil
	}
	return make([]byte, sz)
}

// MbufHdr is the BLE-specific sub-header carried alongside every PDU
// buffer. RX-side and TX-side fields coexist in the same struct; at most
// one side is live for a given buffer's lifetime.
type MbufHdr struct {
	// RX-side
	Flags      uint8
	RxState    State // LL state at the time of reception
	CRCOK      bool
	Channel    uint8
	RSSI       int8
	Timestamp  uint32
	AccessAddr uint32
	// TX-side
	Offset  uint8 // offset into the payload where TX starts
	PyldLen uint8
	HdrByte uint8 // first PDU header byte
}

// PDU is a chain of byte-buffer segments carrying one PDU, plus its
// header. The first pduHeadReserve bytes of the first segment are
// reserved and not part of the usable payload region.
type PDU struct {
	segs   [][]byte
	length int // usable payload length
	Hdr    MbufHdr
}

// RxPDUAlloc allocates a buffer chain with capacity for at least length
// usable bytes, reserving pduHeadReserve bytes at the head of the first
// segment. It returns nil if the pool cannot satisfy the request; the
// caller bumps the no-bufs stat on nil. There is no partial-chain case:
// segments allocated before a failure are only reachable through the
// returned *PDU, so a nil return lets the garbage collector reclaim
// whatever was already obtained.
func RxPDUAlloc(pool MbufPool, length int) *PDU {
	first := pool.Get(length + pduHeadReserve)
	if first == nil || len(first) <= pduHeadReserve {
		return nil
	}
	p := &PDU{segs: [][]byte{first[pduHeadReserve:]}, length: length}
	have := len(first) - pduHeadReserve
	remaining := length - have
	for remaining > 0 {
		seg := pool.Get(remaining)
		if seg == nil {
			return nil
		}
		p.segs = append(p.segs, seg)
		remaining -= len(seg)
	}
	return p
}

// NewTxPDU wraps an already-encoded payload (header byte kept
// separately, per the air format) for transmission by the LL itself, as
// opposed to a buffer arriving from the host.
func NewTxPDU(hdrByte byte, payload []byte) *PDU {
	return &PDU{
		segs:   [][]byte{payload},
		length: len(payload),
		Hdr: MbufHdr{
			PyldLen: uint8(len(payload)),
			HdrByte: hdrByte,
		},
	}
}

// NewHostPDU wraps a buffer received from the host (an HCI ACL packet,
// header still attached) for the transmit queue.
func NewHostPDU(data []byte) *PDU {
	return &PDU{segs: [][]byte{data}, length: len(data)}
}

// Len returns the usable payload length.
func (p *PDU) Len() int { return p.length }

// CopyIn copies src into the usable payload region, across segments if
// the PDU is chained. It panics if src is longer than the PDU's
// capacity, which would indicate a caller bug.
func (p *PDU) CopyIn(src []byte) {
	if len(src) > p.length {
		panic("ble: CopyIn source longer than PDU capacity")
	}
	off := 0
	for _, seg := range p.segs {
		if off >= len(src) {
			return
		}
		off += copy(seg, src[off:])
	}
}

// Adj strips n bytes off the front of the PDU, used to drop the HCI ACL
// header once parsed.
func (p *PDU) Adj(n int) {
	if n > p.length {
		n = p.length
	}
	p.length -= n
	for n > 0 && len(p.segs) > 0 {
		if len(p.segs[0]) > n {
			p.segs[0] = p.segs[0][n:]
			return
		}
		n -= len(p.segs[0])
		p.segs = p.segs[1:]
	}
}

// Bytes flattens the PDU's usable payload into a single contiguous
// slice. Chained PDUs pay a copy here; unchained ones (the common case)
// are returned by reference.
func (p *PDU) Bytes() []byte {
	if len(p.segs) == 1 {
		return p.segs[0][:p.length]
	}
	out := make([]byte, 0, p.length)
	for _, seg := range p.segs {
		out = append(out, seg...)
	}
	return out[:p.length]
}

// CopyOut copies the PDU's payload (offset-adjusted per Hdr.Offset) into
// dst and returns the bytes written plus the PDU's first header byte:
// the callback shape a PHY driver uses at TX time to pull a packet out
// of a buffer.
func (p *PDU) CopyOut(dst []byte) (n int, hdrByte byte) {
	b := p.Bytes()
	off := int(p.Hdr.Offset)
	pyld := int(p.Hdr.PyldLen)
	if off+pyld > len(b) {
		pyld = len(b) - off
	}
	n = copy(dst, b[off:off+pyld])
	return n, p.Hdr.HdrByte
}

// Free releases a PDU. Segments are garbage collected; clearing segs
// turns an accidental use-after-free into a visible nil-slice bug rather
// than silent corruption.
func (p *PDU) Free() {
	p.segs = nil
	p.length = 0
}
