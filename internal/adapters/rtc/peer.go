package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var ErrPeerClosed = errors.New("peer connection closed")

// Peer is one PeerConnection towards a single remote. Offers and answers are
// sent only after ICE gathering completes, so no candidates are trickled.
type Peer struct {
	pc     *webrtc.PeerConnection
	remote domain.SessionID

	stream  *remoteStream
	arrived chan struct{}
	arrOnce sync.Once

	closed    chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	onClosed func()
}

func NewPeer(api *webrtc.API, cfg Config, remote domain.SessionID) (*Peer, error) {
	pc, err := api.NewPeerConnection(cfg.WebRTC())
	if err != nil {
		return nil, err
	}
	p := &Peer{
		pc:      pc,
		remote:  remote,
		stream:  newRemoteStream(string(remote)),
		arrived: make(chan struct{}),
		closed:  make(chan struct{}),
	}

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Debug().Str("module", "rtc").Str("remote", string(remote)).Str("ice_state", s.String()).Msg("ICE state")
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("remote", string(remote)).Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed ||
			s == webrtc.PeerConnectionStateDisconnected ||
			s == webrtc.PeerConnectionStateClosed {
			p.Close()
		}
	})

	pc.OnTrack(p.onTrack)
	return p, nil
}

func (p *Peer) onTrack(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	log.Info().
		Str("module", "rtc").
		Str("remote", string(p.remote)).
		Str("kind", track.Kind().String()).
		Str("track_id", track.ID()).
		Str("stream_id", track.StreamID()).
		Msg("OnTrack received")

	p.stream.addKind(track.Kind())
	if track.Kind() == webrtc.RTPCodecTypeVideo {
		// ask for a keyframe right away
		if err := p.pc.WriteRTCP([]rtcp.Packet{
			&rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())},
		}); err != nil {
			log.Debug().Err(err).Str("module", "rtc").Str("remote", string(p.remote)).Msg("PLI failed")
		}
	}
	p.arrOnce.Do(func() { close(p.arrived) })
	go p.stream.drain(track)
}

// AddLocalStream attaches every local track. Kinds the local stream lacks get a
// receive-only transceiver so the remote can still send them.
func (p *Peer) AddLocalStream(local core.LocalStream) error {
	have := map[webrtc.RTPCodecType]bool{}
	if local != nil {
		for _, t := range local.Tracks() {
			sender, err := p.pc.AddTrack(t.Track())
			if err != nil {
				return fmt.Errorf("add %s track: %w", t.Kind(), err)
			}
			have[t.Kind()] = true
			go drainRTCP(sender)
		}
	}
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if have[kind] {
			continue
		}
		if _, err := p.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			return fmt.Errorf("add %s transceiver: %w", kind, err)
		}
	}
	return nil
}

// drainRTCP keeps the interceptors fed. Reads fail once the sender stops.
func drainRTCP(sender *webrtc.RTPSender) {
	rtcpBuf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(rtcpBuf); err != nil {
			return
		}
	}
}

func (p *Peer) CreateOffer(ctx context.Context) (string, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return "", err
	}
	return p.setLocal(ctx, offer)
}

func (p *Peer) ApplyAnswer(sdp string) error {
	return p.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp})
}

func (p *Peer) ApplyOfferAndCreateAnswer(ctx context.Context, sdp string) (string, error) {
	if err := p.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		return "", err
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	return p.setLocal(ctx, answer)
}

func (p *Peer) setLocal(ctx context.Context, desc webrtc.SessionDescription) (string, error) {
	gatherComplete := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(desc); err != nil {
		return "", err
	}
	select {
	case <-gatherComplete:
	case <-p.closed:
		return "", ErrPeerClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return p.pc.LocalDescription().SDP, nil
}

// WaitStream blocks until the first remote track arrives.
func (p *Peer) WaitStream(ctx context.Context) (core.RemoteStream, error) {
	select {
	case <-p.arrived:
		return p.stream, nil
	case <-p.closed:
		return nil, ErrPeerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Peer) Stream() core.RemoteStream { return p.stream }

func (p *Peer) Done() <-chan struct{} { return p.closed }

// OnClosed sets a callback run once when the peer closes for any reason.
func (p *Peer) OnClosed(fn func()) {
	p.mu.Lock()
	p.onClosed = fn
	p.mu.Unlock()
}

// Close marks the peer closed right away; the PeerConnection itself is torn
// down in the background.
func (p *Peer) Close() {
	var fn func()
	p.closeOnce.Do(func() {
		close(p.closed)
		p.mu.Lock()
		fn = p.onClosed
		p.mu.Unlock()

		go func() {
			if err := p.pc.Close(); err != nil {
				log.Error().Err(err).Str("module", "rtc").Str("remote", string(p.remote)).Msg("close error")
			} else {
				log.Debug().Str("module", "rtc").Str("remote", string(p.remote)).Msg("closed")
			}
		}()
	})
	if fn != nil {
		fn()
	}
}
