package driver

import (
	"testing"

	"github.com/mysqlfanout/mysqlfanout/internal/wire"
)

func greetingPacket() *wire.Packet {
	return wire.Frame([]byte{0x0a, 'm', 'y', 's', 'q', 'l', 0x00, 0x01, 0x00, 0x00, 0x00}, 0)
}

func okPacket(seq byte) *wire.Packet {
	return wire.Frame([]byte{wire.StatusOK, 0x00, 0x00}, seq)
}

func errPacket(seq byte) *wire.Packet {
	return wire.Frame(wire.ErrPayload(1045, "28000", "access denied"), seq)
}

func eofPacket(seq byte) *wire.Packet {
	return wire.Frame([]byte{wire.StatusEOF, 0x00, 0x00}, seq)
}

func fieldPacket(seq byte) *wire.Packet {
	return wire.Frame([]byte{0x03, 'f', 'o', 'o'}, seq)
}

func comQuery(sql string) *wire.Packet {
	payload := append([]byte{wire.ComQuery}, []byte(sql)...)
	return wire.Frame(payload, 0)
}

func comQuit() *wire.Packet {
	return wire.Frame([]byte{wire.ComQuit}, 0)
}

// A fresh session starts in Greeting for every delegate, which means it
// expects replies (the handshake) and not commands, before any command has
// been issued.
func TestSession_InitialStateExpectsGreetingReplies(t *testing.T) {
	s := NewSession(2)
	if !s.ExpectReplies() {
		t.Fatal("fresh session should expect greeting replies")
	}
	if s.ExpectCommands() {
		t.Fatal("fresh session should not expect commands before greetings arrive")
	}
}

// Once every delegate's greeting has been consumed, the session is ready for
// the client's handshake response, which Command() must classify as
// CommandIsClientAuth rather than an ordinary command.
func TestSession_HandshakeRoundTrip(t *testing.T) {
	s := NewSession(2)
	s.Reply(0, greetingPacket())
	s.Reply(1, greetingPacket())

	if s.ExpectReplies() {
		t.Fatal("no delegate should owe a reply after both greetings consumed")
	}
	if !s.ExpectCommands() {
		t.Fatal("session should be ready for the client handshake response")
	}

	ct := s.Command(wire.Frame([]byte{0xff, 0xff}, 1))
	if !s.CommandIsClientAuth() {
		t.Fatal("first post-greeting command must be classified as client auth")
	}
	if ct != Other {
		t.Fatalf("handshake response should classify as Other, got %v", ct)
	}
}

// A COM_QUERY fans out to Simple, an OK reply retires the delegate to Idle.
func TestSession_SimpleQueryOK(t *testing.T) {
	s := NewSession(1)
	s.Reply(0, greetingPacket())
	s.Command(wire.Frame([]byte{0xff}, 1)) // handshake response
	s.Reply(0, okPacket(2))

	ct := s.Command(comQuery("select 1"))
	if ct != Sql {
		t.Fatalf("expected Sql, got %v", ct)
	}
	if s.DelegateState(0).State() != Simple {
		t.Fatalf("expected Simple after Command, got %v", s.DelegateState(0).State())
	}

	s.Reply(0, okPacket(3))
	if s.DelegateState(0).State() != Idle {
		t.Fatalf("expected Idle after OK reply, got %v", s.DelegateState(0).State())
	}
	if s.ExpectReplies() {
		t.Fatal("should not expect replies after OK retires the only delegate")
	}
}

// A result-set reply sequence: header -> fields -> EOF -> rows -> EOF.
func TestSession_ResultSetSequence(t *testing.T) {
	s := NewSession(1)
	s.Reply(0, greetingPacket())
	s.Command(wire.Frame([]byte{0xff}, 1))
	s.Reply(0, okPacket(2))
	s.Command(comQuery("select * from t"))

	s.Reply(0, wire.Frame([]byte{0x01}, 2)) // header: 1 column
	if s.DelegateState(0).State() != TableFields {
		t.Fatalf("expected TableFields after non-OK header, got %v", s.DelegateState(0).State())
	}

	s.Reply(0, fieldPacket(3))
	if s.DelegateState(0).State() != TableFields {
		t.Fatal("field definition packet should not change state")
	}

	s.Reply(0, eofPacket(4))
	if s.DelegateState(0).State() != TableRows {
		t.Fatalf("expected TableRows after fields EOF, got %v", s.DelegateState(0).State())
	}

	s.Reply(0, wire.Frame([]byte{1, 'a'}, 5))
	if s.DelegateState(0).State() != TableRows {
		t.Fatal("row packet should not change state")
	}

	s.Reply(0, eofPacket(6))
	if s.DelegateState(0).State() != Idle {
		t.Fatalf("expected Idle after rows EOF, got %v", s.DelegateState(0).State())
	}
}

// An ERR_Packet latches Errored regardless of which state the delegate was
// in; GotError reflects it until the next command resets the delegates, and
// ErrorPacket keeps the first error for the rest of the session.
func TestSession_ErrorLatches(t *testing.T) {
	s := NewSession(1)
	s.Reply(0, greetingPacket())
	s.Command(wire.Frame([]byte{0xff}, 1))
	s.Reply(0, okPacket(2))

	s.Command(comQuery("select 1"))
	s.Reply(0, errPacket(2))

	if s.DelegateState(0).State() != Errored {
		t.Fatalf("expected Errored, got %v", s.DelegateState(0).State())
	}
	if !s.GotError() {
		t.Fatal("GotError should be true")
	}
	if s.ErrorPacket() == nil {
		t.Fatal("ErrorPacket should be non-nil")
	}

	// further replies to an errored delegate are ignored (owesReply false)
	s.Reply(0, okPacket(3))
	if s.DelegateState(0).State() != Errored {
		t.Fatal("errored delegate should not accept further replies this round")
	}
}

// COM_QUIT is terminal: Done() becomes true and stays true, and no further
// commands are expected.
func TestSession_QuitIsTerminal(t *testing.T) {
	s := NewSession(2)
	s.Reply(0, greetingPacket())
	s.Reply(1, greetingPacket())
	s.Command(wire.Frame([]byte{0xff}, 1))
	s.Reply(0, okPacket(2))
	s.Reply(1, okPacket(2))

	s.Command(comQuit())
	if !s.Done() {
		t.Fatal("expected Done() after COM_QUIT")
	}
	if s.ExpectCommands() {
		t.Fatal("a done session should never expect more commands")
	}
}

// CommandDone retires delegates the fan-out filter rejected, independent of
// whatever Command() programmed as their default expectation.
func TestSession_CommandDoneRetiresFilteredOut(t *testing.T) {
	s := NewSession(2)
	s.Reply(0, greetingPacket())
	s.Reply(1, greetingPacket())
	s.Command(wire.Frame([]byte{0xff}, 1))
	s.Reply(0, okPacket(2))
	s.Reply(1, okPacket(2))

	s.Command(comQuery("select 1"))
	s.CommandDone(func(id DelegateID) FilterResult {
		if id == 1 {
			return DontUse
		}
		return Use
	})

	if s.DelegateState(1).State() != Idle {
		t.Fatal("delegate filtered out should be retired to Idle")
	}
	if s.DelegateState(0).State() != Simple {
		t.Fatal("delegate not filtered out should keep its programmed state")
	}
}

// DelegateFilter consistently reports DontUse for idle delegates and Use
// otherwise, matching owesReply.
func TestSession_DelegateFilterConsistency(t *testing.T) {
	s := NewSession(2)
	s.Reply(0, greetingPacket())
	s.Reply(1, greetingPacket())
	s.Command(wire.Frame([]byte{0xff}, 1))
	s.Reply(0, okPacket(2))
	// delegate 1 left in Simple (no reply yet)

	if s.DelegateFilter(0) != DontUse {
		t.Fatal("idle delegate should be filtered out")
	}
	if s.DelegateFilter(1) != Use {
		t.Fatal("delegate still owing a reply should be used")
	}
}

// An errored delegate must stop owing a reply for the round, exactly like an
// idle one: error ⇒ expect = None. Otherwise a gather loop driven by
// DelegateFilter/ExpectReplies would keep waiting on a connection the real
// server has nothing more to say on.
func TestSession_ErroredDelegateStopsOwingReply(t *testing.T) {
	s := NewSession(2)
	s.Reply(0, greetingPacket())
	s.Reply(1, greetingPacket())
	s.Command(wire.Frame([]byte{0xff}, 1))
	s.Reply(0, okPacket(2))
	s.Reply(1, okPacket(2))

	s.Command(comQuery("select 1"))
	s.Reply(0, errPacket(2))
	s.Reply(1, okPacket(2))

	if s.DelegateFilter(0) != DontUse {
		t.Fatal("errored delegate should be filtered out, not still awaited")
	}
	if s.ExpectReplies() {
		t.Fatal("session should no longer expect replies once the only other delegate is also done")
	}
}

func TestRewriteCommand_SubstitutesDBName(t *testing.T) {
	s := NewSession(1)
	s.Reply(0, greetingPacket())
	s.Command(wire.Frame([]byte{0xff}, 1))

	buf := make([]byte, 36)
	buf = append(buf, []byte("root")...)
	buf = append(buf, 0x00)
	buf = append(buf, 0x14)
	buf = append(buf, make([]byte, 20)...)
	buf = append(buf, []byte("olddb")...)
	buf = append(buf, 0x00)
	in := wire.Frame(buf, 1)

	out, err := s.RewriteCommand(in, "newdb")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payload := out.Payload()
	if string(payload[len(payload)-6:len(payload)-1]) != "newdb" {
		t.Fatalf("expected db name newdb in rewritten payload, got %q", payload)
	}
}

func TestReduce_FirstSuccessIgnoresOtherErrors(t *testing.T) {
	good := []*wire.Packet{okPacket(2)}
	bad := []*wire.Packet{errPacket(2)}
	replies := []DelegateReply{
		{ID: 0, Packets: bad, Errored: true},
		{ID: 1, Packets: good, Errored: false},
	}
	out := Reduce(FirstSuccess, replies)
	if len(out) != 1 || !out[0].IsOK() {
		t.Fatal("FirstSuccess should relay the first non-errored reply")
	}
}

func TestReduce_ErrorIfAnySurfacesError(t *testing.T) {
	good := []*wire.Packet{okPacket(2)}
	bad := []*wire.Packet{errPacket(2)}
	replies := []DelegateReply{
		{ID: 0, Packets: good, Errored: false},
		{ID: 1, Packets: bad, Errored: true},
	}
	out := Reduce(ErrorIfAny, replies)
	if len(out) != 1 || !out[0].IsErr() {
		t.Fatal("ErrorIfAny should surface the error even if another delegate succeeded")
	}
}

func TestReduce_RequireAllEqualDetectsDisagreement(t *testing.T) {
	replies := []DelegateReply{
		{ID: 0, Packets: []*wire.Packet{okPacket(2)}},
		{ID: 1, Packets: []*wire.Packet{wire.Frame([]byte{wire.StatusOK, 0x01, 0x00}, 2)}},
	}
	out := Reduce(RequireAllEqual, replies)
	if len(out) != 1 || !out[0].IsErr() {
		t.Fatal("RequireAllEqual should synthesize an error on disagreement")
	}
}

func TestReduce_RequireAllEqualPassesIdentical(t *testing.T) {
	replies := []DelegateReply{
		{ID: 0, Packets: []*wire.Packet{okPacket(2)}},
		{ID: 1, Packets: []*wire.Packet{okPacket(2)}},
	}
	out := Reduce(RequireAllEqual, replies)
	if len(out) != 1 || !out[0].IsOK() {
		t.Fatal("RequireAllEqual should pass through identical replies")
	}
}
