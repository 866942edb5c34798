package wsclient

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/dkeye/meshcall/internal/adapters/rtc"
	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/rs/zerolog/log"
)

// call is one negotiated (or negotiating) PeerConnection.
type call struct {
	client *Client
	id     string
	remote domain.SessionID
	peer   *rtc.Peer

	mu       sync.Mutex
	name     string
	answered bool
	err      error
}

func (cl *call) Remote() domain.SessionID { return cl.remote }

func (cl *call) RemoteName() string {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return domain.DisplayName(cl.name, cl.remote)
}

func (cl *call) Stream(ctx context.Context) (core.RemoteStream, error) {
	s, err := cl.peer.WaitStream(ctx)
	if errors.Is(err, rtc.ErrPeerClosed) {
		return nil, cl.cause()
	}
	return s, err
}

func (cl *call) Done() <-chan struct{} { return cl.peer.Done() }

func (cl *call) Close() {
	if cl.end(domain.ErrCallEnded) {
		cl.client.trySend(&Message{Type: TypeHangup, To: string(cl.remote), CallID: cl.id})
	}
}

func (cl *call) answer(name string) {
	cl.mu.Lock()
	cl.answered = true
	if name != "" {
		cl.name = name
	}
	cl.mu.Unlock()
}

func (cl *call) wasAnswered() bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.answered
}

func (cl *call) cause() error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.err == nil {
		return domain.ErrCallEnded
	}
	return cl.err
}

// end records why the call ended and releases the peer. Only the first
// call reports true.
func (cl *call) end(err error) bool {
	cl.mu.Lock()
	first := cl.err == nil
	if first {
		cl.err = err
	}
	cl.mu.Unlock()
	if !first {
		return false
	}

	log.Debug().Err(err).Str("module", "wsclient").Str("remote", string(cl.remote)).Str("call_id", cl.id).Msg("call ended")
	cl.client.forget(cl.id)
	cl.peer.Close()
	return true
}

const (
	offerPending int32 = iota
	offerAnswering
	offerDone
)

// incoming is an offer nobody has answered or rejected yet.
type incoming struct {
	client *Client
	callID string
	remote domain.SessionID
	name   string
	sdp    string

	state  atomic.Int32
	hungUp atomic.Bool
}

func (ic *incoming) Remote() domain.SessionID { return ic.remote }

func (ic *incoming) RemoteName() string { return domain.DisplayName(ic.name, ic.remote) }

func (ic *incoming) Answer(ctx context.Context, local core.LocalStream) (core.Call, error) {
	if !ic.state.CompareAndSwap(offerPending, offerAnswering) {
		return nil, domain.ErrCallEnded
	}
	defer ic.state.Store(offerDone)

	c := ic.client
	peer, err := rtc.NewPeer(c.api, c.opts.RTC, ic.remote)
	if err != nil {
		ic.drop()
		return nil, err
	}
	if err := peer.AddLocalStream(local); err != nil {
		peer.Close()
		ic.drop()
		return nil, err
	}
	sdp, err := peer.ApplyOfferAndCreateAnswer(ctx, ic.sdp)
	if err != nil {
		peer.Close()
		ic.drop()
		return nil, err
	}

	cl := c.track(ic.callID, ic.remote, ic.name, peer, true)
	ic.drop()
	if ic.hungUp.Load() {
		cl.end(domain.ErrCallEnded)
		return nil, domain.ErrCallEnded
	}
	err = c.send(&Message{
		Type:   TypeAnswer,
		To:     string(ic.remote),
		CallID: ic.callID,
		SDP:    sdp,
		Name:   c.opts.Name,
	})
	if err != nil {
		cl.end(err)
		return nil, err
	}
	return cl, nil
}

func (ic *incoming) Reject() {
	if !ic.state.CompareAndSwap(offerPending, offerDone) {
		return
	}
	ic.drop()
	ic.client.trySend(&Message{Type: TypeHangup, To: string(ic.remote), CallID: ic.callID})
}

// hangup records that the caller gave up before we answered.
func (ic *incoming) hangup() {
	ic.hungUp.Store(true)
	ic.state.CompareAndSwap(offerPending, offerDone)
}

func (ic *incoming) drop() {
	c := ic.client
	c.mu.Lock()
	if c.offers[ic.callID] == ic {
		delete(c.offers, ic.callID)
	}
	c.mu.Unlock()
}
