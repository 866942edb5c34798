package rtc

import (
	"sync"
	"sync/atomic"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/pion/webrtc/v4"
)

// remoteStream collects the tracks a peer sends us and counts what they deliver.
type remoteStream struct {
	id string

	mu    sync.Mutex
	kinds []webrtc.RTPCodecType

	packets atomic.Uint64
	bytes   atomic.Uint64
}

func newRemoteStream(id string) *remoteStream {
	return &remoteStream{id: id}
}

func (s *remoteStream) ID() string { return s.id }

func (s *remoteStream) Kinds() []webrtc.RTPCodecType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]webrtc.RTPCodecType, len(s.kinds))
	copy(out, s.kinds)
	return out
}

func (s *remoteStream) Stats() core.StreamStats {
	return core.StreamStats{Packets: s.packets.Load(), Bytes: s.bytes.Load()}
}

func (s *remoteStream) addKind(kind webrtc.RTPCodecType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.kinds {
		if k == kind {
			return
		}
	}
	s.kinds = append(s.kinds, kind)
}

func (s *remoteStream) count(n int) {
	s.packets.Add(1)
	s.bytes.Add(uint64(n))
}

// drain reads the remote track until it ends. Nothing is played back, the
// packets only feed the counters.
func (s *remoteStream) drain(track *webrtc.TrackRemote) {
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		s.count(pkt.MarshalSize())
	}
}
