package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"github.com/rs/zerolog/log"
)

const defaultFrameDuration = 33 * time.Millisecond

// FileSource plays pre-encoded files as the local stream: VP8 in an IVF
// container for video, Opus in Ogg for audio.
type FileSource struct {
	VideoPath string
	AudioPath string
	// Loop restarts a file from the beginning when it ends.
	Loop bool
}

func (d FileSource) GetUserMedia(_ context.Context, c core.Constraints) (core.LocalStream, error) {
	id := newStreamID()
	var tracks []*track
	for _, kind := range kinds(c) {
		path, open := d.VideoPath, openIVF
		if kind == webrtc.RTPCodecTypeAudio {
			path, open = d.AudioPath, openOgg
		}
		if path == "" {
			stopAll(tracks)
			return nil, fmt.Errorf("%w: no %s file configured", domain.ErrMediaUnavailable, kind)
		}

		src, err := open(path)
		if err != nil {
			stopAll(tracks)
			return nil, err
		}
		t, err := newSampleTrack(kind, id)
		if err != nil {
			_ = src.Close()
			stopAll(tracks)
			return nil, fmt.Errorf("%w: %w", domain.ErrMediaUnavailable, err)
		}
		tracks = append(tracks, t)

		var reopen func() (sampleSource, error)
		if d.Loop {
			reopen = func() (sampleSource, error) { return open(path) }
		}
		log.Info().Str("module", "capture").Str("kind", kind.String()).Str("path", path).Msg("playing file")
		go play(t, src, reopen)
	}
	return asStream(id, tracks), nil
}

type sampleSource interface {
	Next() (media.Sample, error)
	Close() error
}

// play paces samples by their duration until the track stops or the file ends.
func play(t *track, src sampleSource, reopen func() (sampleSource, error)) {
	defer func() { _ = src.Close() }()

	wait := time.NewTimer(0)
	defer wait.Stop()
	for {
		select {
		case <-t.stopped:
			return
		case <-wait.C:
		}

		s, err := src.Next()
		if errors.Is(err, io.EOF) && reopen != nil {
			_ = src.Close()
			if src, err = reopen(); err != nil {
				log.Error().Err(err).Str("module", "capture").Msg("reopen file")
				src = nopSource{}
				return
			}
			wait.Reset(0)
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Error().Err(err).Str("module", "capture").Msg("read file")
			}
			return
		}
		if err := t.writeSample(s); err != nil {
			log.Debug().Err(err).Str("module", "capture").Msg("write sample")
		}
		wait.Reset(s.Duration)
	}
}

type nopSource struct{}

func (nopSource) Next() (media.Sample, error) { return media.Sample{}, io.EOF }
func (nopSource) Close() error                { return nil }

type ivfSource struct {
	f     *os.File
	r     *ivfreader.IVFReader
	frame time.Duration
}

func openIVF(path string) (sampleSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, classify(err)
	}
	r, h, err := ivfreader.NewWith(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrMediaUnavailable, path, err)
	}
	frame := defaultFrameDuration
	if h.TimebaseDenominator > 0 && h.TimebaseNumerator > 0 {
		frame = time.Duration(float64(h.TimebaseNumerator) / float64(h.TimebaseDenominator) * float64(time.Second))
	}
	return &ivfSource{f: f, r: r, frame: frame}, nil
}

func (s *ivfSource) Next() (media.Sample, error) {
	data, _, err := s.r.ParseNextFrame()
	if err != nil {
		return media.Sample{}, err
	}
	return media.Sample{Data: data, Duration: s.frame}, nil
}

func (s *ivfSource) Close() error { return s.f.Close() }

type oggSource struct {
	f    *os.File
	r    *oggreader.OggReader
	last uint64
}

func openOgg(path string) (sampleSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, classify(err)
	}
	r, _, err := oggreader.NewWith(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrMediaUnavailable, path, err)
	}
	return &oggSource{f: f, r: r}, nil
}

// Next returns one page. Its duration is the granule delta at 48kHz.
func (s *oggSource) Next() (media.Sample, error) {
	data, h, err := s.r.ParseNextPage()
	if err != nil {
		return media.Sample{}, err
	}
	var count uint64
	if h.GranulePosition > s.last {
		count = h.GranulePosition - s.last
	}
	s.last = h.GranulePosition
	d := time.Duration(float64(count) / 48000 * float64(time.Second))
	return media.Sample{Data: data, Duration: d}, nil
}

func (s *oggSource) Close() error { return s.f.Close() }
