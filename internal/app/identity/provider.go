// Package identity obtains this participant's session id from the signaling service.
package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/rs/zerolog/log"
)

const DefaultOpenTimeout = 10 * time.Second

// Provider opens the signaling channel once and never retries.
type Provider struct {
	sig     core.Signaling
	timeout time.Duration

	mu     sync.Mutex
	id     domain.SessionID
	ready  chan struct{}
	closed bool
	// cancel is set while an open is in flight.
	cancel context.CancelFunc
}

func NewProvider(sig core.Signaling, timeout time.Duration) *Provider {
	if timeout <= 0 {
		timeout = DefaultOpenTimeout
	}
	return &Provider{
		sig:     sig,
		timeout: timeout,
		ready:   make(chan struct{}),
	}
}

// Open blocks until the service assigns an id, the open timeout expires or
// Close is called. Only one open may be in flight.
func (p *Provider) Open(ctx context.Context) (domain.SessionID, error) {
	p.mu.Lock()
	switch {
	case p.closed:
		p.mu.Unlock()
		return "", fmt.Errorf("provider closed: %w", domain.ErrIdentityUnavailable)
	case p.id != "":
		id := p.id
		p.mu.Unlock()
		return id, nil
	case p.cancel != nil:
		p.mu.Unlock()
		return "", fmt.Errorf("open already in progress: %w", domain.ErrIdentityUnavailable)
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	p.cancel = cancel
	p.mu.Unlock()

	id, err := p.sig.Open(ctx)
	cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancel = nil
	switch {
	case p.closed:
		if err == nil {
			err = errors.New("closed while opening")
		}
	case err == nil && id == "":
		err = errors.New("empty session id")
	}
	if err != nil {
		log.Error().Err(err).Str("module", "app.identity").Dur("timeout", p.timeout).Msg("open failed")
		return "", fmt.Errorf("%w: %w", domain.ErrIdentityUnavailable, err)
	}

	p.id = id
	close(p.ready)
	log.Info().Str("module", "app.identity").Str("sid", string(id)).Msg("session opened")
	return id, nil
}

// ID is empty until Open succeeds.
func (p *Provider) ID() domain.SessionID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.id
}

// Ready is closed once an id has been assigned.
func (p *Provider) Ready() <-chan struct{} { return p.ready }

// Close aborts a pending Open and disconnects the signaling channel.
// Safe to call more than once.
func (p *Provider) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if err := p.sig.Disconnect(); err != nil {
		log.Warn().Err(err).Str("module", "app.identity").Msg("disconnect")
	}
}
