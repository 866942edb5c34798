// Package wsclient talks to the signaling server over a websocket and
// negotiates one PeerConnection per call.
package wsclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/meshcall/internal/adapters/rtc"
	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 256 * 1024
	sendBuffer     = 32
)

var (
	ErrClosed      = errors.New("signaling connection closed")
	ErrAlreadyOpen = errors.New("signaling connection already open")
)

type Options struct {
	// URL of the websocket endpoint, e.g. ws://localhost:8080/api/ws/signal.
	URL string
	// Name is the local display name sent with join, offer and answer.
	Name string
	RTC  rtc.Config
	// API is built from RTC when nil.
	API *webrtc.API
}

// Client implements core.Signaling.
type Client struct {
	opts Options
	api  *webrtc.API

	outgoing  chan *Message
	done      chan struct{}
	gone      chan struct{}
	closeOnce sync.Once

	opened chan string
	joined chan *Message

	mu      sync.Mutex
	conn    *websocket.Conn
	id      domain.SessionID
	calls   map[string]*call
	offers  map[string]*incoming
	handler func(core.IncomingCall)
	backlog []core.IncomingCall
}

var _ core.Signaling = (*Client)(nil)

func New(opts Options) (*Client, error) {
	api := opts.API
	if api == nil {
		var err error
		if api, err = rtc.NewAPI(opts.RTC); err != nil {
			return nil, err
		}
	}
	return &Client{
		opts:     opts,
		api:      api,
		outgoing: make(chan *Message, sendBuffer),
		done:     make(chan struct{}),
		gone:     make(chan struct{}),
		opened:   make(chan string, 1),
		joined:   make(chan *Message, 1),
		calls:    make(map[string]*call),
		offers:   make(map[string]*incoming),
	}, nil
}

// Open connects and waits for the server to assign the session id.
func (c *Client) Open(ctx context.Context) (domain.SessionID, error) {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return "", ErrAlreadyOpen
	}
	select {
	case <-c.done:
		c.mu.Unlock()
		return "", ErrClosed
	default:
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.opts.URL, nil)
	if err != nil {
		c.mu.Unlock()
		return "", fmt.Errorf("dial signaling: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	c.conn = conn
	c.mu.Unlock()

	go c.readPump(conn)
	go c.writePump(conn)

	select {
	case id := <-c.opened:
		sid := domain.SessionID(id)
		c.mu.Lock()
		c.id = sid
		c.mu.Unlock()
		log.Info().Str("module", "wsclient").Str("sid", id).Msg("session opened")
		return sid, nil
	case <-c.gone:
		return "", fmt.Errorf("%w before open", ErrClosed)
	case <-ctx.Done():
		_ = c.Disconnect()
		return "", ctx.Err()
	}
}

func (c *Client) ID() domain.SessionID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// Discover joins the room. The server answers with everyone already in it.
func (c *Client) Discover(ctx context.Context, room domain.RoomName) ([]domain.SessionID, error) {
	select {
	case <-c.joined:
	default:
	}
	if err := c.send(&Message{Type: TypeJoin, Room: string(room), Name: c.opts.Name}); err != nil {
		return nil, err
	}

	for {
		select {
		case msg := <-c.joined:
			if msg.Type == TypeError {
				return nil, fmt.Errorf("join %s: %s", room, msg.Error)
			}
			if msg.Room != string(room) {
				continue
			}
			ids := make([]domain.SessionID, 0, len(msg.Members))
			for _, m := range msg.Members {
				ids = append(ids, domain.SessionID(m.ID))
			}
			log.Info().Str("module", "wsclient").Str("room", string(room)).Int("members", len(ids)).Msg("room state")
			return ids, nil
		case <-c.gone:
			return nil, ErrClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *Client) Dial(ctx context.Context, remote domain.SessionID, local core.LocalStream) (core.Call, error) {
	peer, err := rtc.NewPeer(c.api, c.opts.RTC, remote)
	if err != nil {
		return nil, err
	}
	if err := peer.AddLocalStream(local); err != nil {
		peer.Close()
		return nil, err
	}
	sdp, err := peer.CreateOffer(ctx)
	if err != nil {
		peer.Close()
		return nil, fmt.Errorf("create offer: %w", err)
	}

	cl := c.track(uuid.NewString(), remote, "", peer, false)
	err = c.send(&Message{
		Type:   TypeOffer,
		To:     string(remote),
		CallID: cl.id,
		SDP:    sdp,
		Name:   c.opts.Name,
	})
	if err != nil {
		cl.end(err)
		return nil, err
	}
	log.Debug().Str("module", "wsclient").Str("remote", string(remote)).Str("call_id", cl.id).Msg("offer sent")
	return cl, nil
}

// OnIncomingCall sets the handler and hands it every offer received so far.
func (c *Client) OnIncomingCall(h func(core.IncomingCall)) {
	c.mu.Lock()
	c.handler = h
	backlog := c.backlog
	c.backlog = nil
	c.mu.Unlock()

	if h == nil {
		return
	}
	for _, ic := range backlog {
		go h(ic)
	}
}

// Disconnect leaves the room, ends every call and closes the socket.
func (c *Client) Disconnect() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		open := c.conn != nil
		c.mu.Unlock()

		if open {
			c.trySend(&Message{Type: TypeLeave})
		}
		c.endAll()
		close(c.done)
		log.Info().Str("module", "wsclient").Msg("disconnected")
	})
	return nil
}

func (c *Client) send(msg *Message) error {
	select {
	case <-c.done:
		return ErrClosed
	case <-c.gone:
		return ErrClosed
	default:
	}
	select {
	case c.outgoing <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	case <-c.gone:
		return ErrClosed
	}
}

func (c *Client) trySend(msg *Message) {
	select {
	case c.outgoing <- msg:
	default:
		log.Warn().Str("module", "wsclient").Str("type", msg.Type).Msg("send buffer full, frame dropped")
	}
}

func (c *Client) track(id string, remote domain.SessionID, name string, peer *rtc.Peer, answered bool) *call {
	cl := &call{client: c, id: id, remote: remote, name: name, peer: peer, answered: answered}
	c.mu.Lock()
	c.calls[id] = cl
	c.mu.Unlock()
	peer.OnClosed(func() { cl.end(domain.ErrCallEnded) })
	return cl
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.calls, id)
	c.mu.Unlock()
}

func (c *Client) lookup(id string) (*call, *incoming) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[id], c.offers[id]
}

// endPeer ends every call and pending offer that involves remote.
func (c *Client) endPeer(remote domain.SessionID) {
	c.mu.Lock()
	var calls []*call
	for _, cl := range c.calls {
		if cl.remote == remote {
			calls = append(calls, cl)
		}
	}
	var offers []*incoming
	for id, ic := range c.offers {
		if ic.remote == remote {
			offers = append(offers, ic)
			delete(c.offers, id)
		}
	}
	c.mu.Unlock()

	for _, ic := range offers {
		ic.hangup()
	}
	for _, cl := range calls {
		cl.end(domain.ErrCallEnded)
	}
}

func (c *Client) endAll() {
	c.mu.Lock()
	calls := make([]*call, 0, len(c.calls))
	for _, cl := range c.calls {
		calls = append(calls, cl)
	}
	offers := make([]*incoming, 0, len(c.offers))
	for _, ic := range c.offers {
		offers = append(offers, ic)
	}
	c.offers = make(map[string]*incoming)
	c.mu.Unlock()

	for _, ic := range offers {
		ic.hangup()
	}
	for _, cl := range calls {
		cl.Close()
	}
}
