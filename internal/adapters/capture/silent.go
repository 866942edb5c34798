package capture

import (
	"context"
	"fmt"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
)

// Silent hands out tracks that never carry media. The participant is still
// negotiated as a sender, so others see it join.
type Silent struct{}

func (Silent) GetUserMedia(_ context.Context, c core.Constraints) (core.LocalStream, error) {
	id := newStreamID()
	var tracks []*track
	for _, kind := range kinds(c) {
		t, err := newSampleTrack(kind, id)
		if err != nil {
			stopAll(tracks)
			return nil, fmt.Errorf("%w: %w", domain.ErrMediaUnavailable, err)
		}
		tracks = append(tracks, t)
	}
	return asStream(id, tracks), nil
}
