package wsclient

import (
	"fmt"
	"time"

	"github.com/dkeye/meshcall/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (c *Client) readPump(conn *websocket.Conn) {
	defer func() {
		_ = conn.Close()
		c.endAll()
		close(c.gone)
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			log.Debug().Err(err).Str("module", "wsclient").Msg("readPump closing")
			return
		}
		c.dispatch(&msg)
	}
}

func (c *Client) writePump(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	write := func(msg *Message) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(msg)
	}

	for {
		select {
		case msg := <-c.outgoing:
			if err := write(msg); err != nil {
				log.Error().Err(err).Str("module", "wsclient").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			// leave and hangups queued by Disconnect go out first
			for {
				select {
				case msg := <-c.outgoing:
					if err := write(msg); err != nil {
						return
					}
					continue
				default:
				}
				break
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-c.gone:
			return
		}
	}
}

func (c *Client) dispatch(msg *Message) {
	switch msg.Type {
	case TypeOpen:
		select {
		case c.opened <- msg.ID:
		default:
		}
	case TypeRoomState:
		c.deliverJoin(msg)
	case TypeOffer:
		c.onOffer(msg)
	case TypeAnswer:
		c.onAnswer(msg)
	case TypeHangup:
		c.onHangup(msg)
	case TypeError:
		c.onError(msg)
	case TypeMemberLeft:
		if msg.User != nil {
			log.Info().Str("module", "wsclient").Str("remote", msg.User.ID).Msg("member left")
			c.endPeer(domain.SessionID(msg.User.ID))
		}
	case TypeMemberJoined, TypeMemberUpdated, TypeCandidate, TypePong, "left":
		log.Debug().Str("module", "wsclient").Str("type", msg.Type).Msg("ignored")
	default:
		log.Warn().Str("module", "wsclient").Str("type", msg.Type).Msg("unknown signal")
	}
}

// deliverJoin keeps only the latest join outcome.
func (c *Client) deliverJoin(msg *Message) {
	select {
	case <-c.joined:
	default:
	}
	select {
	case c.joined <- msg:
	default:
	}
}

func (c *Client) onOffer(msg *Message) {
	if msg.CallID == "" || msg.From == "" {
		log.Warn().Str("module", "wsclient").Msg("offer without call id or sender")
		return
	}
	ic := &incoming{
		client: c,
		callID: msg.CallID,
		remote: domain.SessionID(msg.From),
		name:   msg.Name,
		sdp:    msg.SDP,
	}

	c.mu.Lock()
	c.offers[ic.callID] = ic
	h := c.handler
	if h == nil {
		c.backlog = append(c.backlog, ic)
	}
	c.mu.Unlock()

	log.Debug().Str("module", "wsclient").Str("remote", msg.From).Str("call_id", msg.CallID).Msg("incoming offer")
	if h != nil {
		go h(ic)
	}
}

func (c *Client) onAnswer(msg *Message) {
	cl, _ := c.lookup(msg.CallID)
	if cl == nil || string(cl.remote) != msg.From {
		log.Debug().Str("module", "wsclient").Str("call_id", msg.CallID).Msg("answer for unknown call")
		return
	}
	cl.answer(msg.Name)
	if err := cl.peer.ApplyAnswer(msg.SDP); err != nil {
		cl.end(fmt.Errorf("apply answer: %w", err))
	}
}

func (c *Client) onHangup(msg *Message) {
	cl, ic := c.lookup(msg.CallID)
	if cl != nil && string(cl.remote) == msg.From {
		if cl.wasAnswered() {
			cl.end(domain.ErrCallEnded)
		} else {
			cl.end(domain.ErrCallRejected)
		}
		return
	}
	if ic != nil && string(ic.remote) == msg.From {
		c.mu.Lock()
		delete(c.offers, msg.CallID)
		c.mu.Unlock()
		ic.hangup()
	}
}

func (c *Client) onError(msg *Message) {
	if msg.CallID == "" {
		log.Warn().Str("module", "wsclient").Str("error", msg.Error).Msg("server error")
		c.deliverJoin(msg)
		return
	}
	cl, _ := c.lookup(msg.CallID)
	if cl == nil {
		return
	}
	if msg.Error == ErrCodePeerUnavailable {
		cl.end(domain.ErrPeerNotFound)
		return
	}
	cl.end(fmt.Errorf("signaling: %s", msg.Error))
}
