//go:build mediadevices

package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"
)

const deviceVideoBitRate = 1_000_000

// Devices captures the camera and microphone. Frames are encoded to VP8 and
// Opus and forwarded through the same gated tracks as every other source.
type Devices struct{}

// DevicesAvailable reports whether this binary was built with device capture.
const DevicesAvailable = true

func (Devices) GetUserMedia(_ context.Context, c core.Constraints) (core.LocalStream, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrMediaUnavailable, err)
	}
	vpxParams.BitRate = deviceVideoBitRate
	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrMediaUnavailable, err)
	}

	constraints := mediadevices.MediaStreamConstraints{
		Codec: mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vpxParams),
			mediadevices.WithAudioEncoders(&opusParams),
		),
	}
	if c.Video {
		constraints.Video = func(mc *mediadevices.MediaTrackConstraints) {
			mc.FrameFormat = prop.FrameFormatOneOf{
				frame.FormatYUYV,
				frame.FormatI420,
				frame.FormatI444,
				frame.FormatRGBA,
			}
			mc.Width = prop.IntRanged{Max: 640}
			mc.Height = prop.IntRanged{Max: 480}
		}
	}
	if c.Audio {
		constraints.Audio = func(*mediadevices.MediaTrackConstraints) {}
	}

	ms, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		return nil, classifyDevice(err)
	}

	id := newStreamID()
	var tracks []*track
	for _, dt := range ms.GetTracks() {
		kind := dt.Kind()
		mime := webrtc.MimeTypeVP8
		clock := float64(videoCodec.ClockRate)
		if kind == webrtc.RTPCodecTypeAudio {
			mime = webrtc.MimeTypeOpus
			clock = float64(audioCodec.ClockRate)
		}

		reader, err := dt.NewEncodedReader(mime)
		if err != nil {
			_ = dt.Close()
			stopAll(tracks)
			return nil, fmt.Errorf("%w: %s encoder: %w", domain.ErrMediaUnavailable, kind, err)
		}
		t, err := newSampleTrack(kind, id)
		if err != nil {
			_ = reader.Close()
			_ = dt.Close()
			stopAll(tracks)
			return nil, fmt.Errorf("%w: %w", domain.ErrMediaUnavailable, err)
		}
		dt := dt
		t.release = func() {
			_ = reader.Close()
			_ = dt.Close()
		}
		dt.OnEnded(func(err error) {
			if err != nil {
				log.Warn().Err(err).Str("module", "capture").Str("kind", kind.String()).Msg("device track ended")
			}
		})
		tracks = append(tracks, t)
		go forward(t, reader, clock)
	}
	if len(tracks) == 0 {
		return nil, fmt.Errorf("%w: no capture device", domain.ErrMediaUnavailable)
	}
	return asStream(id, tracks), nil
}

func forward(t *track, r mediadevices.EncodedReadCloser, clock float64) {
	for {
		buf, release, err := r.Read()
		if err != nil {
			if !t.isStopped() {
				log.Error().Err(err).Str("module", "capture").Msg("device read")
			}
			return
		}
		d := time.Duration(float64(buf.Samples) / clock * float64(time.Second))
		if err := t.writeSample(media.Sample{Data: buf.Data, Duration: d}); err != nil {
			log.Debug().Err(err).Str("module", "capture").Msg("write sample")
		}
		release()
	}
}

func classifyDevice(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "permission") || strings.Contains(msg, "denied") {
		return fmt.Errorf("%w: %w", domain.ErrMediaDenied, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrMediaUnavailable, err)
}
