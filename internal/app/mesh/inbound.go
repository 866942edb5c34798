package mesh

import (
	"context"

	"github.com/dkeye/meshcall/internal/app/peers"
	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/rs/zerolog/log"
)

// onIncomingCall accepts every call unless a link with that peer already exists.
// When both sides dial at once, the call placed by the lower session id survives.
func (c *Coordinator) onIncomingCall(ic core.IncomingCall) {
	remote := ic.Remote()
	self := c.Self()
	logger := log.With().Str("module", "app.mesh").Str("remote", string(remote)).Logger()

	if remote == "" || remote == self {
		ic.Reject()
		return
	}
	if existing, ok := c.registry.Get(remote); ok {
		yield := existing.Status() == domain.Pending &&
			existing.Direction == domain.Outbound &&
			remote < self
		if !yield {
			logger.Info().Str("status", existing.Status().String()).Msg("rejecting duplicate call")
			ic.Reject()
			return
		}
		logger.Info().Msg("simultaneous dial, yielding to remote call")
		c.registry.Close(remote)
	}

	conn, _ := c.registry.Upsert(remote, domain.Inbound)
	c.mu.RLock()
	ctx := c.ctx
	c.mu.RUnlock()
	go c.answer(ctx, conn, ic)
}

func (c *Coordinator) answer(ctx context.Context, conn *peers.Connection, ic core.IncomingCall) {
	nctx, cancel := context.WithTimeout(ctx, c.opts.NegotiationTimeout)
	defer cancel()
	if !conn.SetCancel(cancel) {
		ic.Reject()
		return
	}

	call, err := ic.Answer(nctx, c.media.Stream())
	if err != nil {
		c.failed(conn, domain.AnswerError(conn.RemoteID, err))
		return
	}
	c.negotiate(nctx, conn, call, domain.AnswerError)
}
