package capture

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// RTPIngest receives already encoded RTP on local UDP ports, one per kind.
// Any encoder that can emit VP8 or Opus over RTP works as a source, e.g.
//
//	ffmpeg -re -f lavfi -i testsrc -c:v libvpx -f rtp rtp://127.0.0.1:5004
type RTPIngest struct {
	VideoAddr string
	AudioAddr string
}

func (d RTPIngest) addr(kind webrtc.RTPCodecType) string {
	if kind == webrtc.RTPCodecTypeVideo {
		return d.VideoAddr
	}
	return d.AudioAddr
}

func (d RTPIngest) GetUserMedia(ctx context.Context, c core.Constraints) (core.LocalStream, error) {
	id := newStreamID()
	var tracks []*track
	for _, kind := range kinds(c) {
		addr := d.addr(kind)
		if addr == "" {
			stopAll(tracks)
			return nil, fmt.Errorf("%w: no %s source configured", domain.ErrMediaUnavailable, kind)
		}

		var lc net.ListenConfig
		conn, err := lc.ListenPacket(ctx, "udp", addr)
		if err != nil {
			stopAll(tracks)
			return nil, classify(err)
		}
		t, err := newRTPTrack(kind, id)
		if err != nil {
			_ = conn.Close()
			stopAll(tracks)
			return nil, fmt.Errorf("%w: %w", domain.ErrMediaUnavailable, err)
		}
		t.release = func() { _ = conn.Close() }
		tracks = append(tracks, t)

		log.Info().Str("module", "capture").Str("kind", kind.String()).Str("addr", conn.LocalAddr().String()).Msg("rtp ingest listening")
		go ingest(conn, t)
	}
	return asStream(id, tracks), nil
}

func ingest(conn net.PacketConn, t *track) {
	buf := make([]byte, 1500)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				log.Error().Err(err).Str("module", "capture").Msg("rtp ingest read")
			}
			return
		}
		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			log.Debug().Err(err).Str("module", "capture").Msg("not an rtp packet")
			continue
		}
		if err := t.writeRTP(pkt); err != nil {
			log.Debug().Err(err).Str("module", "capture").Msg("rtp ingest write")
		}
	}
}
