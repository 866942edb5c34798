package signal

import (
	"encoding/json"

	"github.com/dkeye/meshcall/internal/domain"
	"github.com/rs/zerolog/log"
)

// handleRelay forwards offer, answer, candidate and hangup frames to the peer
// named in "to". The server stamps "from" and, on offers and answers, the
// sender's validated display name.
func (ctl *SignalWSController) handleRelay(
	sid domain.SessionID,
	conn *WsSignalConn,
	typ string,
	data []byte,
) {
	var p map[string]json.RawMessage
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("type", typ).Msg("bad relay payload")
		ctl.sendError(conn, "bad_payload", "")
		return
	}
	var to, callID string
	if raw, ok := p["to"]; ok {
		_ = json.Unmarshal(raw, &to)
	}
	if raw, ok := p["call_id"]; ok {
		_ = json.Unmarshal(raw, &callID)
	}
	if to == "" {
		ctl.sendError(conn, "bad_payload", callID)
		return
	}

	p["from"], _ = json.Marshal(sid)
	if typ == "offer" || typ == "answer" {
		if user, ok := ctl.Orch.Registry.User(sid); ok {
			p["name"], _ = json.Marshal(user.Username)
		}
	}
	out, ok := marshal(p)
	if !ok {
		return
	}

	if err := ctl.Orch.Relay(sid, domain.SessionID(to), out); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("sid", string(sid)).Str("to", to).Str("type", typ).Msg("relay")
		ctl.sendError(conn, "peer_unavailable", callID)
	}
}
