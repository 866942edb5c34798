package wsclient

// Message is every frame exchanged with the signaling server.
type Message struct {
	Type    string   `json:"type"`
	ID      string   `json:"id,omitempty"`
	Room    string   `json:"room,omitempty"`
	Name    string   `json:"name,omitempty"`
	To      string   `json:"to,omitempty"`
	From    string   `json:"from,omitempty"`
	CallID  string   `json:"call_id,omitempty"`
	SDP     string   `json:"sdp,omitempty"`
	Error   string   `json:"error,omitempty"`
	Members []Member `json:"members,omitempty"`
	Count   int      `json:"count,omitempty"`
	User    *Member  `json:"user,omitempty"`
}

type Member struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Message type constants.
const (
	TypeOpen      = "open"
	TypeJoin      = "join"
	TypeLeave     = "leave"
	TypeRoomState = "room_state"
	TypeOffer     = "offer"
	TypeAnswer    = "answer"
	TypeCandidate = "candidate"
	TypeHangup    = "hangup"
	TypePing      = "ping"
	TypePong      = "pong"
	TypeError     = "error"

	TypeMemberJoined  = "member_joined"
	TypeMemberLeft    = "member_left"
	TypeMemberUpdated = "member_updated"
)

// ErrCodePeerUnavailable is what the server answers when the target of an
// offer or answer is not in the caller's room.
const ErrCodePeerUnavailable = "peer_unavailable"
