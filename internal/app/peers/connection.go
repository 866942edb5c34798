package peers

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
)

// Connection is the local record of one peer link.
// Pointer identity matters: a negotiation result is only applied to the
// Connection it was started for.
type Connection struct {
	RemoteID  domain.SessionID
	Direction domain.Direction
	CreatedAt time.Time

	mu     sync.Mutex
	status domain.ConnStatus
	stream core.RemoteStream
	call   core.Call
	cancel context.CancelFunc
}

func newConnection(remote domain.SessionID, dir domain.Direction) *Connection {
	return &Connection{
		RemoteID:  remote,
		Direction: dir,
		CreatedAt: time.Now(),
		status:    domain.Pending,
	}
}

func (c *Connection) Status() domain.ConnStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Connection) Stream() core.RemoteStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream
}

// SetCancel registers the func that aborts in-flight negotiation.
// It returns false when the connection is already closed; the caller owns cancel then.
func (c *Connection) SetCancel(cancel context.CancelFunc) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == domain.Closed {
		return false
	}
	c.cancel = cancel
	return true
}

// Bind attaches the live link so closing the connection hangs it up.
// It returns false when the connection is already closed; the caller must close call.
func (c *Connection) Bind(call core.Call) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == domain.Closed {
		return false
	}
	c.call = call
	return true
}

func (c *Connection) activate(stream core.RemoteStream) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != domain.Pending {
		return false
	}
	c.status = domain.Active
	c.stream = stream
	return true
}

func (c *Connection) close() bool {
	c.mu.Lock()
	if c.status == domain.Closed {
		c.mu.Unlock()
		return false
	}
	c.status = domain.Closed
	call, cancel := c.call, c.cancel
	c.call, c.cancel = nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if call != nil {
		call.Close()
	}
	return true
}
