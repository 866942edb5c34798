// Package orch ties the session registry, the rooms and the back-pressure
// policy together for the signaling server.
package orch

import (
	"sync"

	"github.com/dkeye/meshcall/internal/app"
	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/rs/zerolog/log"
)

type Orchestrator struct {
	Registry *app.Registry
	Rooms    core.RoomManager
	Policy   app.Policy

	// mu serializes membership changes so an emptied room is never
	// stopped under a concurrent join.
	mu sync.Mutex
}

// OnFrame fans data out to everyone else in the sender's room.
func (o *Orchestrator) OnFrame(sid domain.SessionID, data core.Frame) core.PublishResult {
	roomName, _, ok := o.Registry.RoomOf(sid)
	if !ok {
		return core.PublishResult{}
	}
	return o.Publish(roomName, sid, data)
}

// Publish sends data to every member of the room except from and applies the
// policy to members that could not keep up.
func (o *Orchestrator) Publish(roomName domain.RoomName, from domain.SessionID, data core.Frame) core.PublishResult {
	room, ok := o.Rooms.Get(roomName)
	if !ok {
		return core.PublishResult{}
	}

	res := room.Broadcast(from, data)
	for _, slow := range res.Dropped {
		o.backpressure(room, slow)
	}
	return res
}

// Relay delivers a frame to one member of the sender's room.
func (o *Orchestrator) Relay(from, to domain.SessionID, data core.Frame) error {
	roomName, _, ok := o.Registry.RoomOf(from)
	if !ok {
		return domain.ErrPeerNotFound
	}
	room, ok := o.Rooms.Get(roomName)
	if !ok {
		return domain.ErrPeerNotFound
	}
	target, ok := room.Member(to)
	if !ok || from == to {
		return domain.ErrPeerNotFound
	}
	if err := target.Signal().TrySend(data); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("from", string(from)).Str("to", string(to)).Msg("relay failed")
		o.backpressure(room, target)
		return err
	}
	return nil
}

func (o *Orchestrator) backpressure(room core.RoomService, slow core.MemberSession) {
	if o.Policy == nil {
		return
	}
	switch o.Policy.OnBackPressure(room, slow) {
	case app.KickMember:
		log.Warn().Str("module", "orch").Str("sid", string(slow.ID())).Msg("kicking slow member")
		o.KickBySID(slow.ID())
	case app.MarkSlow, app.DropFrame, app.NoAction:
	}
}
