// Package wire implements MySQL wire-protocol packet framing: the 4-byte
// header (3-byte little-endian length + 1-byte sequence number) plus payload,
// read and written in repeated non-blocking steps.
package wire

const (
	// HeaderSize is the length of a MySQL packet header.
	HeaderSize = 4

	// Status bytes recognized at payload offset 0.
	StatusOK  byte = 0x00
	StatusErr byte = 0xff
	StatusEOF byte = 0xfe

	// Client command bytes recognized at payload offset 0 of a client packet.
	ComQuit      byte = 0x01
	ComQuery     byte = 0x03
	ComFieldList byte = 0x04
)

// Packet is a single framed MySQL packet: header plus payload, held in one
// contiguous buffer so Bytes()[0:4] is always the header.
type Packet struct {
	buf []byte
}

// NewPacket wraps a raw, already-complete header+payload buffer.
func NewPacket(buf []byte) *Packet {
	return &Packet{buf: buf}
}

// Bytes returns the full header+payload buffer.
func (p *Packet) Bytes() []byte {
	if p == nil {
		return nil
	}
	return p.buf
}

// Payload returns the payload (everything after the 4-byte header).
func (p *Packet) Payload() []byte {
	if p == nil || len(p.buf) < HeaderSize {
		return nil
	}
	return p.buf[HeaderSize:]
}

// Size is the total number of bytes in the packet, header included.
func (p *Packet) Size() int {
	if p == nil {
		return 0
	}
	return len(p.buf)
}

// Sequence is the packet's sequence number (header byte 3).
func (p *Packet) Sequence() byte {
	if p == nil || len(p.buf) < HeaderSize {
		return 0
	}
	return p.buf[3]
}

// FirstPayloadByte returns payload byte 0, the status/command discriminator,
// or 0 with ok=false if the packet has no payload.
func (p *Packet) FirstPayloadByte() (b byte, ok bool) {
	pl := p.Payload()
	if len(pl) == 0 {
		return 0, false
	}
	return pl[0], true
}

// IsEOF reports whether this packet is a MySQL EOF marker: first payload byte
// 0xfe and total payload length under 9 bytes.
func (p *Packet) IsEOF() bool {
	b, ok := p.FirstPayloadByte()
	return ok && b == StatusEOF && len(p.Payload()) < 9
}

// IsErr reports whether this packet is an ERR_Packet.
func (p *Packet) IsErr() bool {
	b, ok := p.FirstPayloadByte()
	return ok && b == StatusErr
}

// IsOK reports whether this packet is an OK_Packet.
func (p *Packet) IsOK() bool {
	b, ok := p.FirstPayloadByte()
	return ok && b == StatusOK
}

// Copy returns an owned deep copy of the packet.
func (p *Packet) Copy() *Packet {
	if p == nil {
		return nil
	}
	buf := make([]byte, len(p.buf))
	copy(buf, p.buf)
	return &Packet{buf: buf}
}

// PayloadLength decodes the 3-byte little-endian length header.
func PayloadLength(header []byte) int {
	return int(header[0]) | int(header[1])<<8 | int(header[2])<<16
}

// putLength encodes length into the first 3 bytes of header in place.
func putLength(header []byte, length int) {
	header[0] = byte(length)
	header[1] = byte(length >> 8)
	header[2] = byte(length >> 16)
}

// ErrPayload builds an ERR_Packet payload: 0xff + code(2, LE) + '#' + sqlstate(5) + message.
func ErrPayload(code uint16, sqlState, message string) []byte {
	if len(sqlState) > 5 {
		sqlState = sqlState[:5]
	}
	for len(sqlState) < 5 {
		sqlState += " "
	}
	buf := make([]byte, 0, 1+2+1+5+len(message))
	buf = append(buf, StatusErr, byte(code), byte(code>>8), '#')
	buf = append(buf, sqlState...)
	buf = append(buf, message...)
	return buf
}

// Frame builds a complete packet buffer (header+payload) for the given
// payload and sequence number.
func Frame(payload []byte, seq byte) *Packet {
	buf := make([]byte, HeaderSize+len(payload))
	putLength(buf, len(payload))
	buf[3] = seq
	copy(buf[HeaderSize:], payload)
	return &Packet{buf: buf}
}
