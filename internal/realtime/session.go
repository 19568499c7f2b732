package realtime

import (
	"sync/atomic"

	"stealthy-realtime/internal/hub"
)

type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session tracks one connection through Connecting → Authenticated → Active → Closed.
type Session struct {
	conn   hub.Connection
	userID string
	state  atomic.Int32
}

func newSession(conn hub.Connection) *Session {
	s := &Session{conn: conn}
	s.state.Store(int32(StateConnecting))
	return s
}

func (s *Session) UserID() string       { return s.userID }
func (s *Session) ConnectionID() string { return s.conn.ID() }
func (s *Session) State() State         { return State(s.state.Load()) }

func (s *Session) set(state State) { s.state.Store(int32(state)) }

// close moves the session to Closed and returns the state it left.
func (s *Session) close() State {
	return State(s.state.Swap(int32(StateClosed)))
}
