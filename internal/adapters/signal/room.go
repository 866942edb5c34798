package signal

import (
	"encoding/json"
	"strings"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/rs/zerolog/log"
)

// handleJoin moves the session into a room. The reply lists everyone who was
// already there; they in turn hear member_joined.
func (ctl *SignalWSController) handleJoin(
	sid domain.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	type joinPayload struct {
		Type string `json:"type"`
		Room string `json:"room"`
		Name string `json:"name,omitempty"`
	}
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(conn, "bad_payload", "")
		return
	}
	roomName, ok := domain.NormalizeRoom(p.Room)
	if !ok {
		ctl.sendError(conn, "bad_room", "")
		return
	}
	if ctl.limiter != nil && !ctl.limiter.Allow(sid) {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("join rate limited")
		ctl.sendError(conn, "rate_limited", "")
		return
	}

	if strings.TrimSpace(p.Name) != "" {
		if err := ctl.Orch.Registry.Rename(sid, p.Name); err != nil {
			log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("invalid name on join, using fallback")
			_ = ctl.Orch.Registry.Rename(sid, domain.FallbackName(sid))
		}
	}

	room, left, err := ctl.Orch.Join(sid, roomName)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("join")
		ctl.sendError(conn, "join_failed", "")
		return
	}
	user, _ := ctl.Orch.Registry.User(sid)
	if left != "" {
		ctl.BroadcastRoom(left, sid, memberEvent{Type: "member_left", User: user})
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", string(roomName)).Msg("join")

	ctl.sendJSON(conn, struct {
		Type    string           `json:"type"`
		Room    domain.RoomName  `json:"room"`
		Members []core.MemberDTO `json:"members"`
		Count   int              `json:"count"`
	}{
		Type:    "room_state",
		Room:    roomName,
		Members: room.MembersSnapshot(sid),
		Count:   room.MemberCount(),
	})

	ctl.BroadcastFrom(sid, memberEvent{Type: "member_joined", User: user})
}

// handleLeave exits the current room; the socket stays open.
func (ctl *SignalWSController) handleLeave(
	sid domain.SessionID,
	conn *WsSignalConn,
) {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("leave")
	roomName, ok := ctl.Orch.Leave(sid)
	ctl.sendJSON(conn, map[string]any{
		"type": "left",
	})

	if ok {
		user, _ := ctl.Orch.Registry.User(sid)
		ctl.BroadcastRoom(roomName, sid, memberEvent{Type: "member_left", User: user})
	}
}
