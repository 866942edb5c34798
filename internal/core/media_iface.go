package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// Constraints selects which capture kinds are requested.
type Constraints struct {
	Video bool
	Audio bool
}

// LocalTrack is one capture track. While disabled it sends nothing,
// but the track stays attached to every peer connection.
type LocalTrack interface {
	Kind() webrtc.RTPCodecType
	// Track is what gets attached to each PeerConnection.
	Track() webrtc.TrackLocal
	Enabled() bool
	SetEnabled(bool)
	Stop()
}

// LocalStream is the capture stream shared by reference across all connections.
type LocalStream interface {
	ID() string
	Tracks() []LocalTrack
}

// CaptureDevice opens capture hardware or a capture stand-in.
// It must return errors matching domain.ErrMediaDenied or domain.ErrMediaUnavailable.
type CaptureDevice interface {
	GetUserMedia(ctx context.Context, c Constraints) (LocalStream, error)
}

// StreamStats is what a remote stream has delivered so far.
type StreamStats struct {
	Packets uint64
	Bytes   uint64
}

// RemoteStream is the media a peer sends us.
type RemoteStream interface {
	ID() string
	Kinds() []webrtc.RTPCodecType
	Stats() StreamStats
}
