package core

import (
	"github.com/dkeye/meshcall/internal/domain"
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	ID       domain.SessionID `json:"id"`
	Username string           `json:"username"`
}

// RoomService is the core-facing API of a room.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	Room() *domain.Room
	MemberCount() int
	// MembersSnapshot lists members in join order, skipping except.
	MembersSnapshot(except domain.SessionID) []MemberDTO
	Member(sid domain.SessionID) (MemberSession, bool)

	AddMember(ms MemberSession)
	RemoveMember(sid domain.SessionID)
	Broadcast(from domain.SessionID, data Frame) PublishResult
}

type RoomInfo struct {
	Name        domain.RoomName `json:"name"`
	MemberCount int             `json:"member_count"`
}

type RoomManager interface {
	GetOrCreate(name domain.RoomName) RoomService
	Get(name domain.RoomName) (RoomService, bool)
	List() []RoomInfo
	// StopRoomIfEmpty drops an idle room so the listing stays short.
	StopRoomIfEmpty(name domain.RoomName) bool
}
