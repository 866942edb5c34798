// Package capture provides the local media sources a participant can send.
package capture

import (
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

var (
	videoCodec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	audioCodec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
)

func codecFor(kind webrtc.RTPCodecType) webrtc.RTPCodecCapability {
	if kind == webrtc.RTPCodecTypeVideo {
		return videoCodec
	}
	return audioCodec
}

// track gates one local track. Nothing is written while it is disabled.
type track struct {
	kind    webrtc.RTPCodecType
	rtp     *webrtc.TrackLocalStaticRTP
	sample  *webrtc.TrackLocalStaticSample
	enabled atomic.Bool
	sent    atomic.Uint64

	stopOnce sync.Once
	stopped  chan struct{}
	release  func()
}

func newRTPTrack(kind webrtc.RTPCodecType, streamID string) (*track, error) {
	t, err := webrtc.NewTrackLocalStaticRTP(codecFor(kind), kind.String(), streamID)
	if err != nil {
		return nil, err
	}
	return &track{kind: kind, rtp: t, stopped: make(chan struct{})}, nil
}

func newSampleTrack(kind webrtc.RTPCodecType, streamID string) (*track, error) {
	t, err := webrtc.NewTrackLocalStaticSample(codecFor(kind), kind.String(), streamID)
	if err != nil {
		return nil, err
	}
	return &track{kind: kind, sample: t, stopped: make(chan struct{})}, nil
}

func (t *track) Kind() webrtc.RTPCodecType { return t.kind }

func (t *track) Track() webrtc.TrackLocal {
	if t.rtp != nil {
		return t.rtp
	}
	return t.sample
}

func (t *track) Enabled() bool     { return t.enabled.Load() }
func (t *track) SetEnabled(v bool) { t.enabled.Store(v) }

func (t *track) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopped)
		if t.release != nil {
			t.release()
		}
	})
}

func (t *track) isStopped() bool {
	select {
	case <-t.stopped:
		return true
	default:
		return false
	}
}

func (t *track) writeRTP(pkt *rtp.Packet) error {
	if !t.Enabled() {
		return nil
	}
	if err := t.rtp.WriteRTP(pkt); err != nil {
		return err
	}
	t.sent.Add(1)
	return nil
}

func (t *track) writeSample(s media.Sample) error {
	if !t.Enabled() {
		return nil
	}
	if err := t.sample.WriteSample(s); err != nil {
		return err
	}
	t.sent.Add(1)
	return nil
}

type stream struct {
	id     string
	tracks []core.LocalTrack
}

func newStreamID() string { return "meshcall-" + uuid.NewString() }

func (s *stream) ID() string                { return s.id }
func (s *stream) Tracks() []core.LocalTrack { return s.tracks }

func stopAll(tracks []*track) {
	for _, t := range tracks {
		t.Stop()
	}
}

func asStream(id string, tracks []*track) *stream {
	s := &stream{id: id, tracks: make([]core.LocalTrack, 0, len(tracks))}
	for _, t := range tracks {
		s.tracks = append(s.tracks, t)
	}
	return s
}

// kinds lists the requested kinds, video first.
func kinds(c core.Constraints) []webrtc.RTPCodecType {
	var out []webrtc.RTPCodecType
	if c.Video {
		out = append(out, webrtc.RTPCodecTypeVideo)
	}
	if c.Audio {
		out = append(out, webrtc.RTPCodecTypeAudio)
	}
	return out
}

// classify maps an open or bind error onto the media error taxonomy.
func classify(err error) error {
	switch {
	case errors.Is(err, fs.ErrPermission), errors.Is(err, syscall.EACCES):
		return fmt.Errorf("%w: %w", domain.ErrMediaDenied, err)
	default:
		return fmt.Errorf("%w: %w", domain.ErrMediaUnavailable, err)
	}
}
