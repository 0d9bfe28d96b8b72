package driver

import (
	"fmt"

	"github.com/mysqlfanout/mysqlfanout/internal/wire"
)

// DelegateID is a dense integer in [0, N), fixed for the session lifetime.
type DelegateID int

// Session is the singleton driver state for one client session: per-delegate
// reply expectations plus the session-wide flags and error slot described in
// spec.md §3. All mutation happens from the conversation loop goroutine, so
// no internal locking is needed (spec.md §5).
type Session struct {
	delegates []DelegateState

	done                 bool
	waitingForClientAuth bool
	commandIsClientAuth  bool

	errorPacket *wire.Packet
}

// NewSession allocates a Session for n delegates, all starting in Greeting.
func NewSession(n int) *Session {
	s := &Session{delegates: make([]DelegateState, n)}
	s.reset(n)
	return s
}

// Initialize resets the session to its starting state for n delegates.
// Mirrors mysql_driver_initialize; returns false only if n is invalid.
func (s *Session) Initialize(n int) bool {
	if n < 0 {
		return false
	}
	s.reset(n)
	return true
}

func (s *Session) reset(n int) {
	s.delegates = make([]DelegateState, n)
	for i := range s.delegates {
		s.delegates[i] = DelegateState{state: Greeting}
	}
	s.done = false
	s.waitingForClientAuth = false
	s.commandIsClientAuth = false
	s.errorPacket = nil
}

// N returns the number of delegates this session was initialized with.
func (s *Session) N() int { return len(s.delegates) }

// Done reflects whether the client has issued COM_QUIT.
func (s *Session) Done() bool { return s.done }

// ExpectReplies is true iff any delegate still owes a reply this round.
func (s *Session) ExpectReplies() bool {
	for _, d := range s.delegates {
		if d.owesReply() {
			return true
		}
	}
	return false
}

// ExpectCommands is true iff the session isn't done and at least one
// delegate is idle (ready for a new command from the client).
func (s *Session) ExpectCommands() bool {
	if s.done {
		return false
	}
	for _, d := range s.delegates {
		if !d.owesReply() {
			return true
		}
	}
	return false
}

// GotError is true iff any delegate recorded an error this round.
func (s *Session) GotError() bool {
	for _, d := range s.delegates {
		if d.state == Errored {
			return true
		}
	}
	return false
}

// ErrorPacket returns an owned copy of the first ERR packet seen this
// session, or nil if none has occurred yet.
func (s *Session) ErrorPacket() *wire.Packet {
	return s.errorPacket.Copy()
}

// DelegateState returns delegate id's current state. Panics on an
// out-of-range id — a programmer error, not a runtime condition to recover
// from, since ids are dense and fixed for the session lifetime.
func (s *Session) DelegateState(id DelegateID) DelegateState {
	return s.delegates[id]
}

// CommandIsClientAuth reports whether the most recent Command() call
// classified the packet as the client's handshake response rather than an
// ordinary command.
func (s *Session) CommandIsClientAuth() bool { return s.commandIsClientAuth }

// Command classifies one client packet and programs every delegate's default
// reply expectation for the round. Mirrors mysql_driver_command.
func (s *Session) Command(p *wire.Packet) CommandType {
	s.commandIsClientAuth = false

	for i := range s.delegates {
		s.delegates[i] = DelegateState{state: Simple}
	}

	if s.waitingForClientAuth {
		s.waitingForClientAuth = false
		s.commandIsClientAuth = true
		return Other
	}

	payload := p.Payload()
	if len(payload) == 0 {
		return Unsupported
	}

	switch payload[0] {
	case wire.ComQuit:
		for i := range s.delegates {
			s.delegates[i].state = Idle
		}
		s.done = true
		return Other
	case wire.ComQuery:
		for i := range s.delegates {
			s.delegates[i].expectingRows = true
		}
		return Sql
	case wire.ComFieldList:
		return TableMeta
	default:
		return Unsupported
	}
}

// CommandDone is called after the command has been dispatched to whichever
// delegates the fan-out's filter selected; any delegate the filter rejected
// stops owing a reply for this round. Mirrors mysql_driver_command_done.
func (s *Session) CommandDone(filter func(DelegateID) FilterResult) {
	for i := range s.delegates {
		if filter(DelegateID(i)) == DontUse {
			s.delegates[i].state = Idle
		}
	}
}

// DelegateFilter is the inspection predicate the fan-out uses to skip idle
// delegates during reply gathering. Mirrors mysql_driver_delegate_filter.
func (s *Session) DelegateFilter(id DelegateID) FilterResult {
	if !s.delegates[id].owesReply() {
		return DontUse
	}
	return Use
}

// Reply advances delegate id's reply FSM on receiving packet p. Mirrors
// mysql_driver_reply.
func (s *Session) Reply(id DelegateID, p *wire.Packet) {
	d := &s.delegates[id]
	if !d.owesReply() {
		return
	}

	if p.IsErr() {
		d.state = Errored
		d.expectingRows = false
		if s.errorPacket == nil {
			s.errorPacket = p.Copy()
		}
		return
	}

	first, _ := p.FirstPayloadByte()

	switch d.state {
	case Greeting:
		s.waitingForClientAuth = true
		d.state = Idle
	case Simple:
		if first == wire.StatusOK {
			d.state = Idle
		} else {
			d.state = TableFields
		}
	case TableFields:
		if first == wire.StatusEOF && len(p.Payload()) < 9 {
			if d.expectingRows {
				d.state = TableRows
			} else {
				d.state = Idle
			}
		}
		// any other byte: another field definition, state unchanged
	case TableRows:
		if first == wire.StatusEOF && len(p.Payload()) < 9 {
			d.state = Idle
		}
		// any other byte: another row, state unchanged
	case Idle, Errored:
		// defensive: owesReply() already excluded these
	}
}

// SQLExtract copies the SQL text out of a COM_QUERY packet (payload[1:]).
func SQLExtract(p *wire.Packet) string {
	pl := p.Payload()
	if len(pl) <= 1 {
		return ""
	}
	return string(pl[1:])
}

// TableExtract copies the table name out of a COM_FIELD_LIST packet. Same
// payload position as SQLExtract.
func TableExtract(p *wire.Packet) string {
	return SQLExtract(p)
}

// handshakeUsernameOffset is the byte offset of the null-terminated username
// in a pre-4.1-layout HandshakeResponse packet, counted from the start of the
// 4-byte header (payload offset 32).
const handshakeUsernameOffset = 36

// RewriteCommand rewrites the client's packet for one delegate. When the
// current command is the client's handshake response
// (CommandIsClientAuth()), it substitutes dbName in place of the database
// name field and recomputes the length header; otherwise it returns an
// unmodified copy. Mirrors mysql_driver_rewrite_command.
func (s *Session) RewriteCommand(in *wire.Packet, dbName string) (*wire.Packet, error) {
	if !s.commandIsClientAuth {
		return in.Copy(), nil
	}

	buf := in.Bytes()
	if len(buf) < handshakeUsernameOffset {
		return nil, fmt.Errorf("driver: handshake response too short to rewrite (%d bytes)", len(buf))
	}

	// Skip the null-terminated username starting at offset 36 to find where
	// the database-name field begins: 36 + strlen(username) + 2, where the
	// +2 accounts for the username's null terminator and the single
	// auth-response-length byte that follows it (pre-4.1 layout, spec.md §9).
	end := handshakeUsernameOffset
	for end < len(buf) && buf[end] != 0 {
		end++
	}
	if end >= len(buf) {
		return nil, fmt.Errorf("driver: handshake response username not null-terminated")
	}
	dbOffset := end + 2
	if dbOffset > len(buf) {
		return nil, fmt.Errorf("driver: handshake response too short for db name field")
	}

	out := make([]byte, dbOffset+len(dbName)+1)
	copy(out, buf[:dbOffset])
	copy(out[dbOffset:], dbName)
	out[len(out)-1] = 0

	length := len(out) - wire.HeaderSize
	out[0] = byte(length)
	out[1] = byte(length >> 8)
	out[2] = byte(length >> 16)
	out[3] = buf[3]

	return wire.NewPacket(out), nil
}
