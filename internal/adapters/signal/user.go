package signal

import (
	"encoding/json"

	"github.com/dkeye/meshcall/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleRename(
	sid domain.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	type renamePayload struct {
		Type string `json:"type"`
		Name string `json:"name"`
	}
	var p renamePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad rename payload")
		ctl.sendError(conn, "bad_payload", "")
		return
	}

	if err := ctl.Orch.Registry.Rename(sid, p.Name); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("rename")
		ctl.sendError(conn, "invalid_name", "")
		return
	}
	ctl.handleWhoAmI(sid, conn)

	user, _ := ctl.Orch.Registry.User(sid)
	ctl.BroadcastFrom(sid, memberEvent{Type: "member_updated", User: user})
}

func (ctl *SignalWSController) handleWhoAmI(
	sid domain.SessionID,
	conn *WsSignalConn,
) {
	user, _ := ctl.Orch.Registry.User(sid)

	resp := struct {
		Type     string           `json:"type"`
		ID       domain.SessionID `json:"id"`
		Username string           `json:"username"`
		Room     domain.RoomName  `json:"room,omitempty"`
	}{
		Type:     "whoami",
		ID:       sid,
		Username: user.Username,
	}
	if roomName, _, ok := ctl.Orch.Registry.RoomOf(sid); ok {
		resp.Room = roomName
	}
	ctl.sendJSON(conn, resp)
}
