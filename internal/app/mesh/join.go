package mesh

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/dkeye/meshcall/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

// JoinReport is the outcome of one discovery pass.
type JoinReport struct {
	Discovered []domain.SessionID
	Connected  []domain.SessionID
	Failed     map[domain.SessionID]error
}

// Join discovers the peers already in the room and dials each of them.
// Only a failed discovery is an error; failed dials are reported and skipped.
func (c *Coordinator) Join(ctx context.Context) (JoinReport, error) {
	report := JoinReport{Failed: map[domain.SessionID]error{}}
	if c.media.Stream() == nil {
		return report, domain.ErrNoLocalStream
	}
	self := c.Self()

	found, err := c.sig.Discover(ctx, c.opts.Room)
	if err != nil {
		return report, fmt.Errorf("%w: %w", domain.ErrDiscoveryFailed, err)
	}
	if c.stopping() {
		return report, errLeft
	}
	remotes := make([]domain.SessionID, 0, len(found))
	for _, id := range found {
		if id == "" || id == self || slices.Contains(remotes, id) {
			continue
		}
		remotes = append(remotes, id)
	}
	report.Discovered = remotes
	log.Info().Str("module", "app.mesh").Str("room", string(c.opts.Room)).Int("peers", len(remotes)).Msg("discovered")

	var mu sync.Mutex
	var wg conc.WaitGroup
	for _, remote := range remotes {
		wg.Go(func() {
			connected, err := c.dial(ctx, remote)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Failed[remote] = err
			case connected:
				report.Connected = append(report.Connected, remote)
			}
		})
	}
	wg.Wait()
	return report, nil
}

// dial places one outbound call unless a connection for remote already exists.
func (c *Coordinator) dial(ctx context.Context, remote domain.SessionID) (bool, error) {
	conn, created, err := c.upsert(remote, domain.Outbound)
	if err != nil {
		return false, nil
	}
	if !created {
		log.Debug().Str("module", "app.mesh").Str("remote", string(remote)).Msg("connection exists, not dialing")
		return false, nil
	}

	nctx, cancel := context.WithTimeout(ctx, c.opts.NegotiationTimeout)
	defer cancel()
	if !conn.SetCancel(cancel) {
		return false, nil
	}

	call, err := c.sig.Dial(nctx, remote, c.media.Stream())
	if err != nil {
		return c.failed(conn, domain.NegotiationError(remote, err))
	}
	return c.negotiate(nctx, conn, call, domain.NegotiationError)
}
