// Package driver implements the per-delegate MySQL reply state machine: it
// classifies client commands, tracks what kind of reply sequence is in
// flight for each delegate, and reduces a round's per-delegate replies into
// one client-visible packet.
package driver

import "github.com/mysqlfanout/mysqlfanout/internal/wire"

// ReplyState is the tagged variant a DelegateState is in. The error flag is
// folded into the variant as Errored (rather than carried as an independent
// boolean, as the original C driver did). The expecting-rows bit is not part
// of the variant: it is a separate DelegateState field, read only in
// TableFields, and it can stay set while a delegate is Idle.
type ReplyState int

const (
	// Greeting: the delegate's server handshake has not yet been consumed.
	Greeting ReplyState = iota
	// Idle: no reply owed by this delegate for the current round.
	Idle
	// Simple: a single OK/ERR/result-set-header packet is owed.
	Simple
	// TableFields: field-definition packets are owed, terminated by an EOF.
	TableFields
	// TableRows: row packets are owed, terminated by an EOF.
	TableRows
	// Errored: this delegate's round ended in an ERR_Packet.
	Errored
)

func (s ReplyState) String() string {
	switch s {
	case Greeting:
		return "greeting"
	case Idle:
		return "idle"
	case Simple:
		return "simple"
	case TableFields:
		return "table_fields"
	case TableRows:
		return "table_rows"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}

// DelegateState is one delegate's reply-expectation state for the current
// client session.
type DelegateState struct {
	state         ReplyState
	expectingRows bool
}

// State returns the delegate's current reply-state variant.
func (d DelegateState) State() ReplyState { return d.state }

// owesReply reports whether this delegate still owes a packet this round.
// Errored is terminal, like Idle: per spec invariant "error ⇒ expect = None",
// an errored delegate owes nothing further for the round.
func (d DelegateState) owesReply() bool {
	return d.state != Idle && d.state != Errored
}

// FilterResult is returned by DelegateFilter to tell the fan-out whether a
// delegate participates in the current round.
type FilterResult int

const (
	Use FilterResult = iota
	DontUse
)

// CommandType classifies a client command packet.
type CommandType int

const (
	Sql CommandType = iota
	TableMeta
	Other
	Unsupported
)

// Packet is the wire packet type driver operates on.
type Packet = wire.Packet
