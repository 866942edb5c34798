//go:build !mediadevices

package capture

import (
	"context"
	"fmt"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
)

// Devices captures the camera and microphone. This build has no device
// support; rebuild with -tags mediadevices.
type Devices struct{}

const DevicesAvailable = false

func (Devices) GetUserMedia(context.Context, core.Constraints) (core.LocalStream, error) {
	return nil, fmt.Errorf("%w: built without device capture", domain.ErrMediaUnavailable)
}
