package core

import "github.com/dkeye/Chat/internal/domain"

// SessionID is the opaque handle of one live connection.
type SessionID string

// MemberSession binds domain.Member and its transport endpoint.
// This is what the registry stores and the broadcaster fans out to.
type MemberSession interface {
	ID() SessionID
	Meta() *domain.Member
	Signal() SignalConnection
	// Client is the stable id of the browser behind the connection, may be empty.
	Client() string
}
