package wire

import (
	"errors"
	"io"
)

// Status mirrors the original driver's packet_status enum: a caller loops on
// Incomplete, one read (or write) at a time, until Complete, EOF, or Error.
type Status int

const (
	Incomplete Status = iota
	Complete
	EOF
	Error
)

// ErrNilBuffer is returned by a Writer Step called before any packet is set.
var ErrNilBuffer = errors.New("wire: put_packet called with a nil buffer")

// ErrAlreadySent is returned by a Writer Step called after the packet has
// already been fully written.
var ErrAlreadySent = errors.New("wire: put_packet called with sent >= size")

// ErrPacketTooLarge guards against a corrupt or hostile length header.
var ErrPacketTooLarge = errors.New("wire: packet length exceeds protocol maximum")

const maxPacketLength = 1 << 24

// Reader is a packet-read cursor: a packet under construction plus progress.
// Zero value is ready to use. Step performs one Read for the header while it
// is incomplete and, once the header is complete, one Read for the payload
// (both can happen in the same call), mirroring mysql_driver_get_packet, so a
// caller that feeds bytes one at a time (a fragmented stream) drives it to the
// same final packet as one that feeds them all at once. Created empty at the
// start of each read, reset when a packet is handed off or on error/EOF.
type Reader struct {
	buf       []byte
	size      int
	completed *Packet
}

func (r *Reader) reset() {
	r.buf = nil
	r.size = 0
}

// Step advances the read with at most one Read for the header and one for
// the payload. It returns Incomplete until the header and payload are both
// fully buffered, at which point it returns Complete and Packet() yields the
// finished packet.
func (r *Reader) Step(src io.Reader) (Status, error) {
	if r.buf == nil {
		r.buf = make([]byte, HeaderSize)
		r.size = 0
	}

	if r.size < HeaderSize {
		n, err := src.Read(r.buf[r.size:HeaderSize])
		if n > 0 {
			r.size += n
		}
		if err != nil || n == 0 {
			r.reset()
			if errors.Is(err, io.EOF) || (err == nil && n == 0) {
				return EOF, nil
			}
			return Error, err
		}
		if r.size < HeaderSize {
			return Incomplete, nil
		}
	}

	length := PayloadLength(r.buf)
	if length < 0 || length > maxPacketLength {
		r.reset()
		return Error, ErrPacketTooLarge
	}
	total := HeaderSize + length
	if cap(r.buf) < total {
		grown := make([]byte, total)
		copy(grown, r.buf[:r.size])
		r.buf = grown
	} else if len(r.buf) < total {
		r.buf = r.buf[:total]
	}

	if r.size < total {
		n, err := src.Read(r.buf[r.size:total])
		if n > 0 {
			r.size += n
		}
		if err != nil || n == 0 {
			r.reset()
			if errors.Is(err, io.EOF) || (err == nil && n == 0) {
				return EOF, nil
			}
			return Error, err
		}
	}

	if r.size < total {
		return Incomplete, nil
	}

	p := &Packet{buf: r.buf[:total]}
	r.reset()
	r.completed = p
	return Complete, nil
}

// Packet returns (and clears) the packet produced by the most recent Step
// call that returned Complete. Returns nil if none is pending.
func (r *Reader) Packet() *Packet {
	p := r.completed
	r.completed = nil
	return p
}

// ReadFull drives Step to completion (or failure) against src, the blocking
// convenience wrapper a session loop uses when it has nothing better to do
// than wait for the next full packet.
func ReadFull(src io.Reader) (*Packet, error) {
	var r Reader
	for {
		status, err := r.Step(src)
		switch status {
		case Complete:
			return r.Packet(), nil
		case EOF:
			return nil, io.EOF
		case Error:
			return nil, err
		}
	}
}

// Writer is a packet-write cursor: a reference to a packet plus a sent byte
// counter, reset to 0 per packet per destination.
type Writer struct {
	p    *Packet
	sent int
}

// NewWriter creates a write cursor for p, sent reset to 0.
func NewWriter(p *Packet) *Writer {
	return &Writer{p: p}
}

// Step writes from bytes[sent:size] to dst, advancing sent. Returns Complete
// once sent == size.
func (w *Writer) Step(dst io.Writer) (Status, error) {
	if w.p == nil || w.p.buf == nil {
		return Error, ErrNilBuffer
	}
	if w.sent >= len(w.p.buf) {
		return Error, ErrAlreadySent
	}

	n, err := dst.Write(w.p.buf[w.sent:])
	if n > 0 {
		w.sent += n
	}
	if err != nil {
		return Error, err
	}
	if w.sent < len(w.p.buf) {
		return Incomplete, nil
	}
	return Complete, nil
}

// WriteFull drives Step to completion against dst for packet p.
func WriteFull(dst io.Writer, p *Packet) error {
	w := NewWriter(p)
	for {
		status, err := w.Step(dst)
		switch status {
		case Complete:
			return nil
		case Error:
			return err
		}
	}
}
