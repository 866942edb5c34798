package core

import "github.com/dkeye/meshcall/internal/domain"

// MemberSession binds domain.Member and its signaling endpoint.
// This is what a room stores and fans out to.
type MemberSession interface {
	ID() domain.SessionID
	Meta() *domain.Member
	Signal() SignalConnection
}
