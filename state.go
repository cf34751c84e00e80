package reactor

import "sync/atomic"

// socketState is the async socket lifecycle, per the state table:
//
//	Fresh      → Bound, Connecting, Closed
//	Bound      → Listening, Closed
//	Listening  → Closed
//	Connecting → Connected, Closed
//	Connected  → Closed
//	Closed     → (terminal)
type socketState uint32

const (
	stateFresh socketState = iota
	stateBound
	stateListening
	stateConnecting
	stateConnected
	stateClosed
)

func (s socketState) String() string {
	switch s {
	case stateFresh:
		return "Fresh"
	case stateBound:
		return "Bound"
	case stateListening:
		return "Listening"
	case stateConnecting:
		return "Connecting"
	case stateConnected:
		return "Connected"
	case stateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// fastState is a lock-free state box guarded by CAS, used for the socket
// lifecycle above and for a Timer's armed/closed state.
type fastState struct {
	v atomic.Uint32
}

func newFastState(initial socketState) *fastState {
	s := &fastState{}
	s.v.Store(uint32(initial))
	return s
}

func (s *fastState) Load() socketState { return socketState(s.v.Load()) }

func (s *fastState) Store(state socketState) { s.v.Store(uint32(state)) }

// TryTransition atomically moves from one state to another, returning false
// if the current state does not match from.
func (s *fastState) TryTransition(from, to socketState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}

// TransitionAny moves from any of validFrom to to, returning false if the
// current state matches none of them.
func (s *fastState) TransitionAny(validFrom []socketState, to socketState) bool {
	for _, from := range validFrom {
		if s.v.CompareAndSwap(uint32(from), uint32(to)) {
			return true
		}
	}
	return false
}

func (s *fastState) IsClosed() bool { return s.Load() == stateClosed }
