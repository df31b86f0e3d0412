package frame

import (
	"encoding/binary"
)

// HeaderSize is the length of the little-endian uint32 length prefix.
const HeaderSize = 4

// LargeFrameWarnBytes is the declared payload length above which a one-time
// warning is raised. Frames of any length are still accepted.
const LargeFrameWarnBytes = 64 << 20

// Decoder splits a byte stream into length-prefixed payloads. It keeps any
// partial frame buffered across Feed calls. The zero value is ready to use.
//
// A Decoder is not safe for concurrent use.
type Decoder struct {
	buf []byte
	off int // start of the first undecoded frame

	// WarnBytes overrides LargeFrameWarnBytes when non-zero.
	WarnBytes uint32
	// OnLargeFrame is called at most once between Resets, the first time a
	// header declares more than the warning threshold.
	OnLargeFrame func(length uint32)
	warned       bool
}

// NewDecoder returns an empty decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends a chunk of stream bytes.
func (d *Decoder) Feed(chunk []byte) {
	d.buf = append(d.buf, chunk...)
}

// Next decodes the frame at the head of the buffer. It returns false when
// fewer than HeaderSize+L bytes are buffered, leaving the partial frame in
// place. The returned payload is a copy and stays valid after compaction.
func (d *Decoder) Next() ([]byte, bool) {
	avail := len(d.buf) - d.off
	if avail < HeaderSize {
		return nil, false
	}

	length := binary.LittleEndian.Uint32(d.buf[d.off:])
	d.checkLarge(length)

	need := HeaderSize + int(length)
	if avail < need {
		return nil, false
	}

	start := d.off + HeaderSize
	payload := make([]byte, length)
	copy(payload, d.buf[start:start+int(length)])
	d.off += need
	return payload, true
}

// Drain returns every complete payload in arrival order and compacts the
// buffer. An empty result is normal.
func (d *Decoder) Drain() [][]byte {
	var out [][]byte
	for {
		payload, ok := d.Next()
		if !ok {
			break
		}
		out = append(out, payload)
	}
	d.compact()
	return out
}

// Buffered returns the number of bytes held but not yet emitted.
func (d *Decoder) Buffered() int {
	return len(d.buf) - d.off
}

// Reset discards buffered bytes, including any partial frame.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
	d.off = 0
	d.warned = false
}

func (d *Decoder) compact() {
	if d.off == 0 {
		return
	}
	n := copy(d.buf, d.buf[d.off:])
	d.buf = d.buf[:n]
	d.off = 0
}

func (d *Decoder) checkLarge(length uint32) {
	limit := d.WarnBytes
	if limit == 0 {
		limit = LargeFrameWarnBytes
	}
	if length <= limit || d.warned {
		return
	}
	d.warned = true
	if d.OnLargeFrame != nil {
		d.OnLargeFrame(length)
	}
}

// AppendFrame appends the framed encoding of payload to dst.
func AppendFrame(dst, payload []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(payload)))
	return append(dst, payload...)
}

// Encode returns payload with its length prefix.
func Encode(payload []byte) []byte {
	return AppendFrame(make([]byte, 0, HeaderSize+len(payload)), payload)
}
