// Package media owns the local capture stream and its enabled flags.
package media

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// State is the local media as the UI sees it.
type State struct {
	StreamID     string `json:"stream_id"`
	VideoEnabled bool   `json:"video_enabled"`
	AudioEnabled bool   `json:"audio_enabled"`
}

// Controller gates what every peer receives. The track enabled flags are
// the single source of truth; nothing else touches them.
type Controller struct {
	device core.CaptureDevice

	mu       sync.Mutex
	stream   core.LocalStream
	video    bool
	audio    bool
	released bool
}

func NewController(device core.CaptureDevice) *Controller {
	return &Controller{device: device}
}

// Acquire opens the capture device. Both kinds start disabled.
func (c *Controller) Acquire(ctx context.Context, cons core.Constraints) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return State{}, fmt.Errorf("acquire after release: %w", domain.ErrMediaUnavailable)
	}
	if c.stream != nil {
		return c.stateLocked(), nil
	}
	if c.device == nil {
		return State{}, fmt.Errorf("no capture device: %w", domain.ErrMediaUnavailable)
	}

	stream, err := c.device.GetUserMedia(ctx, cons)
	if err != nil {
		log.Error().Err(err).Str("module", "app.media").Msg("getUserMedia failed")
		return State{}, classify(err)
	}
	if stream == nil || len(stream.Tracks()) == 0 {
		return State{}, fmt.Errorf("capture returned no tracks: %w", domain.ErrMediaUnavailable)
	}
	for _, t := range stream.Tracks() {
		t.SetEnabled(false)
	}
	c.stream = stream
	c.video, c.audio = false, false

	log.Info().Str("module", "app.media").Str("stream", stream.ID()).Int("tracks", len(stream.Tracks())).Msg("capture acquired")
	return c.stateLocked(), nil
}

func classify(err error) error {
	if errors.Is(err, domain.ErrMediaDenied) || errors.Is(err, domain.ErrMediaUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrMediaUnavailable, err)
}

func (c *Controller) SetVideoEnabled(on bool) error {
	return c.setEnabled(webrtc.RTPCodecTypeVideo, on)
}

func (c *Controller) SetAudioEnabled(on bool) error {
	return c.setEnabled(webrtc.RTPCodecTypeAudio, on)
}

// ToggleVideo flips video and returns the new flag.
func (c *Controller) ToggleVideo() (bool, error) {
	c.mu.Lock()
	next := !c.video
	c.mu.Unlock()
	if err := c.SetVideoEnabled(next); err != nil {
		return c.State().VideoEnabled, err
	}
	return next, nil
}

// ToggleAudio flips audio and returns the new flag.
func (c *Controller) ToggleAudio() (bool, error) {
	c.mu.Lock()
	next := !c.audio
	c.mu.Unlock()
	if err := c.SetAudioEnabled(next); err != nil {
		return c.State().AudioEnabled, err
	}
	return next, nil
}

func (c *Controller) setEnabled(kind webrtc.RTPCodecType, on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		return domain.ErrNoLocalStream
	}
	found := false
	for _, t := range c.stream.Tracks() {
		if t.Kind() != kind {
			continue
		}
		found = true
		t.SetEnabled(on)
	}
	if !found {
		return fmt.Errorf("no %s track: %w", kind, domain.ErrMediaUnavailable)
	}
	switch kind {
	case webrtc.RTPCodecTypeVideo:
		c.video = on
	case webrtc.RTPCodecTypeAudio:
		c.audio = on
	}
	log.Debug().Str("module", "app.media").Str("kind", kind.String()).Bool("enabled", on).Msg("track toggled")
	return nil
}

// Release stops every track. Only the first call has effect.
func (c *Controller) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return
	}
	c.released = true
	if c.stream == nil {
		return
	}
	for _, t := range c.stream.Tracks() {
		t.SetEnabled(false)
		t.Stop()
	}
	log.Info().Str("module", "app.media").Str("stream", c.stream.ID()).Msg("capture released")
	c.stream = nil
	c.video, c.audio = false, false
}

// Stream returns the shared capture stream, or nil before Acquire.
func (c *Controller) Stream() core.LocalStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	s := State{VideoEnabled: c.video, AudioEnabled: c.audio}
	if c.stream != nil {
		s.StreamID = c.stream.ID()
	}
	return s
}
