package orch

import (
	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/rs/zerolog/log"
)

// Join moves sid into roomName, leaving its current room first. It returns
// the room joined and the room left, if any.
func (o *Orchestrator) Join(sid domain.SessionID, roomName domain.RoomName) (core.RoomService, domain.RoomName, error) {
	session, ok := o.Registry.GetSession(sid)
	if !ok {
		return nil, "", domain.ErrPeerNotFound
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	var left domain.RoomName
	if from, _, ok := o.Registry.RoomOf(sid); ok && from != roomName {
		o.leaveLocked(sid)
		left = from
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("from_room", string(from)).Msg("left previous room")
	}

	room := o.Rooms.GetOrCreate(roomName)
	room.AddMember(session)
	o.Registry.UpdateRoom(sid, roomName)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(roomName)).Msg("added to room")
	return room, left, nil
}

// Leave takes sid out of its room and reports which room that was.
func (o *Orchestrator) Leave(sid domain.SessionID) (domain.RoomName, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.leaveLocked(sid)
}

func (o *Orchestrator) leaveLocked(sid domain.SessionID) (domain.RoomName, bool) {
	roomName, _, ok := o.Registry.RoomOf(sid)
	if !ok {
		return "", false
	}
	if room, ok := o.Rooms.Get(roomName); ok {
		room.RemoveMember(sid)
	}
	o.Registry.RemoveRoom(sid)
	o.Rooms.StopRoomIfEmpty(roomName)
	return roomName, true
}

// Disconnect forgets the session entirely.
func (o *Orchestrator) Disconnect(sid domain.SessionID) (domain.RoomName, bool) {
	roomName, ok := o.Leave(sid)
	o.Registry.Unbind(sid)
	return roomName, ok
}

// KickBySID closes the member's socket. The transport then disconnects it
// like any other closed socket, so the room hears about the departure.
func (o *Orchestrator) KickBySID(sid domain.SessionID) bool {
	return o.Registry.Cancel(sid)
}

func (o *Orchestrator) EvictRoom(name domain.RoomName) {
	for _, snap := range o.Registry.MembersOfRoom(name) {
		o.KickBySID(snap.SID)
	}
}
