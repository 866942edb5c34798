// Package signal is the server side of the signaling websocket.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/meshcall/internal/app/orch"
	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

type Options struct {
	ReadLimit    int64
	PingPeriod   time.Duration
	SendBuffer   int
	JoinLimit    int
	JoinInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 32768
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = 54 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 32
	}
	return o
}

type SignalWSController struct {
	Orch    *orch.Orchestrator
	opts    Options
	limiter *RoomRateLimiter
}

func NewSignalWSController(o *orch.Orchestrator, opts Options) *SignalWSController {
	opts = opts.withDefaults()
	ctl := &SignalWSController{Orch: o, opts: opts}
	if opts.JoinLimit > 0 && opts.JoinInterval > 0 {
		ctl.limiter = NewRoomRateLimiter(opts.JoinLimit, opts.JoinInterval)
	}
	return ctl
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// BroadcastFrom sends v to everyone in sid's room but sid.
func (ctl *SignalWSController) BroadcastFrom(sid domain.SessionID, v any) {
	if f, ok := marshal(v); ok {
		ctl.Orch.OnFrame(sid, f)
	}
}

// BroadcastRoom sends v to the room, skipping except.
func (ctl *SignalWSController) BroadcastRoom(name domain.RoomName, except domain.SessionID, v any) {
	if f, ok := marshal(v); ok {
		ctl.Orch.Publish(name, except, f)
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and runs the session until the socket
// closes. Every socket gets a fresh session id; name seeds its display name.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context, name string) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	sid := domain.SessionID(uuid.NewString())
	user, err := domain.NewUser(sid, name)
	if err != nil {
		user, _ = domain.NewUser(sid, domain.FallbackName(sid))
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("name", user.Username).Msg("new WS connection")

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, ctl.opts.SendBuffer),
	}
	sess := core.NewMemberSession(domain.NewMember(user), conn)
	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.Registry.BindSignal(sess, cancel)

	ctl.sendJSON(conn, struct {
		Type string           `json:"type"`
		ID   domain.SessionID `json:"id"`
	}{"open", sid})

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, sid, conn)
}

// disconnect runs once the socket is gone.
func (ctl *SignalWSController) disconnect(sid domain.SessionID) {
	user, _ := ctl.Orch.Registry.User(sid)
	roomName, ok := ctl.Orch.Disconnect(sid)
	if ctl.limiter != nil {
		ctl.limiter.Forget(sid)
	}
	if ok {
		ctl.BroadcastRoom(roomName, sid, memberEvent{Type: "member_left", User: user})
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("disconnected")
}

type memberEvent struct {
	Type string      `json:"type"`
	User domain.User `json:"user"`
}
