package driver

import (
	"github.com/mysqlfanout/mysqlfanout/internal/wire"
)

// ReducePolicy selects how one round's per-delegate reply sequences are
// reduced to the single sequence relayed to the client. The original driver
// only ever implemented FirstSuccess; spec.md §9 leaves the rest as an open
// question, resolved here as a config choice rather than a fixed behavior.
type ReducePolicy int

const (
	// FirstSuccess relays the first delegate's non-error reply in id order,
	// ignoring errors from any other delegate. This is the original
	// behavior and the default.
	FirstSuccess ReducePolicy = iota
	// ErrorIfAny relays an error if any delegate errored this round, even if
	// another delegate succeeded.
	ErrorIfAny
	// RequireAllEqual requires every non-error delegate reply sequence to have
	// identical packet payloads (header sequence bytes are not compared); a
	// mismatch is synthesized as a driver-internal error.
	RequireAllEqual
)

// ErrDisagreement is the error code used when RequireAllEqual finds delegate
// replies diverge. 1105 is MySQL's generic ER_UNKNOWN_ERROR code, reused here
// since no standard error code covers cross-delegate disagreement.
const ErrDisagreement uint16 = 1105

// DelegateReply is one delegate's full reply sequence for a round: the
// packets it sent, in order, concatenated header-and-payload.
type DelegateReply struct {
	ID      DelegateID
	Packets []*wire.Packet
	Errored bool
}

// Reduce picks the packet sequence to relay to the client, per policy.
// replies must be supplied in ascending ID order.
func Reduce(policy ReducePolicy, replies []DelegateReply) []*wire.Packet {
	switch policy {
	case ErrorIfAny:
		for _, r := range replies {
			if r.Errored {
				return r.Packets
			}
		}
		return firstNonErrored(replies)
	case RequireAllEqual:
		return reduceRequireAllEqual(replies)
	default:
		return firstNonErrored(replies)
	}
}

func firstNonErrored(replies []DelegateReply) []*wire.Packet {
	for _, r := range replies {
		if !r.Errored {
			return r.Packets
		}
	}
	if len(replies) > 0 {
		return replies[0].Packets
	}
	return nil
}

func reduceRequireAllEqual(replies []DelegateReply) []*wire.Packet {
	var reference []*wire.Packet
	haveReference := false

	for _, r := range replies {
		if r.Errored {
			continue
		}
		if !haveReference {
			reference = r.Packets
			haveReference = true
			continue
		}
		if !packetsEqual(reference, r.Packets) {
			return []*wire.Packet{wire.Frame(
				wire.ErrPayload(ErrDisagreement, "HY000", "delegates disagree on reply"),
				0,
			)}
		}
	}

	if haveReference {
		return reference
	}
	return firstNonErrored(replies)
}

func packetsEqual(a, b []*wire.Packet) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		pa, pb := a[i].Payload(), b[i].Payload()
		if len(pa) != len(pb) {
			return false
		}
		for j := range pa {
			if pa[j] != pb[j] {
				return false
			}
		}
	}
	return true
}
