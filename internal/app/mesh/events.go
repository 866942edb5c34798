package mesh

import (
	"context"

	"github.com/dkeye/meshcall/internal/app/peers"
	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/rs/zerolog/log"
)

type event interface {
	name() string
}

type upsertRequest struct {
	remote domain.SessionID
	dir    domain.Direction

	conn    *peers.Connection
	created bool
}

type streamArrived struct {
	conn   *peers.Connection
	call   core.Call
	stream core.RemoteStream

	applied bool
}

type negotiationFailed struct {
	conn *peers.Connection
	err  error

	applied bool
}

type linkClosed struct {
	conn *peers.Connection
}

type incomingCall struct {
	call core.IncomingCall
}

type leaveRequest struct{}

func (*upsertRequest) name() string     { return "upsert" }
func (*streamArrived) name() string     { return "stream_arrived" }
func (*negotiationFailed) name() string { return "negotiation_failed" }
func (linkClosed) name() string         { return "link_closed" }
func (incomingCall) name() string       { return "incoming_call" }
func (leaveRequest) name() string       { return "leave" }

type envelope struct {
	ev   event
	done chan struct{}
}

// run is the only goroutine that mutates the registry and the roster.
func (c *Coordinator) run(ctx context.Context) {
	defer c.stopQueue()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "app.mesh").Msg("session context done")
			c.teardown()
			return
		case env := <-c.events:
			stop := c.handle(env.ev)
			if env.done != nil {
				close(env.done)
			}
			if stop {
				return
			}
		}
	}
}

func (c *Coordinator) handle(ev event) bool {
	log.Debug().Str("module", "app.mesh").Str("event", ev.name()).Msg("event")
	switch e := ev.(type) {
	case *upsertRequest:
		e.conn, e.created = c.registry.Upsert(e.remote, e.dir)
	case *streamArrived:
		e.applied = c.onStreamArrived(e)
	case *negotiationFailed:
		e.applied = c.onNegotiationFailed(e)
	case linkClosed:
		if c.registry.Current(e.conn) {
			c.registry.Close(e.conn.RemoteID)
		}
	case incomingCall:
		c.onIncomingCall(e.call)
	case leaveRequest:
		c.teardown()
		return true
	}
	c.notify()
	return false
}

// post queues ev without waiting. It fails once the loop has stopped.
func (c *Coordinator) post(ev event) bool {
	return c.enqueue(envelope{ev: ev})
}

// send queues ev and waits until the loop has handled it.
func (c *Coordinator) send(ev event) bool {
	done := make(chan struct{})
	if !c.enqueue(envelope{ev: ev, done: done}) {
		return false
	}
	select {
	case <-done:
		return true
	case <-c.loopDone:
		select {
		case <-done:
			return true
		default:
			return false
		}
	}
}

func (c *Coordinator) enqueue(env envelope) bool {
	c.queueMu.RLock()
	defer c.queueMu.RUnlock()
	if c.queueClosed {
		return false
	}
	select {
	case <-c.loopDone:
		return false
	default:
	}
	select {
	case c.events <- env:
		return true
	case <-c.loopDone:
		return false
	}
}

// stopQueue closes the queue and drops whatever the loop never handled.
// Queued incoming calls are rejected so the caller is not left ringing.
func (c *Coordinator) stopQueue() {
	c.queueOnce.Do(func() {
		close(c.loopDone)
		c.queueMu.Lock()
		c.queueClosed = true
		c.queueMu.Unlock()
	})
	for {
		select {
		case env := <-c.events:
			if ic, ok := env.ev.(incomingCall); ok {
				ic.call.Reject()
			}
		default:
			return
		}
	}
}

func (c *Coordinator) upsert(remote domain.SessionID, dir domain.Direction) (*peers.Connection, bool, error) {
	req := &upsertRequest{remote: remote, dir: dir}
	if !c.send(req) {
		return nil, false, errLeft
	}
	return req.conn, req.created, nil
}

func (c *Coordinator) onStreamArrived(e *streamArrived) bool {
	remote := e.conn.RemoteID
	if !c.registry.Current(e.conn) || !c.registry.MarkActive(remote, e.stream) {
		log.Debug().Str("module", "app.mesh").Str("remote", string(remote)).Msg("discarding stale stream")
		e.call.Close()
		return false
	}
	c.currentRoster().Publish(remote, e.call.RemoteName(), e.stream)
	go c.watch(e.conn, e.call)
	return true
}

func (c *Coordinator) onNegotiationFailed(e *negotiationFailed) bool {
	if !c.registry.Current(e.conn) {
		return false
	}
	c.registry.Close(e.conn.RemoteID)
	c.report(e.err)
	return true
}

// watch turns the end of a live link into a linkClosed event.
func (c *Coordinator) watch(conn *peers.Connection, call core.Call) {
	select {
	case <-call.Done():
		c.post(linkClosed{conn: conn})
	case <-c.loopDone:
	}
}

// negotiate waits for the remote stream of a freshly bound call and reports the outcome.
func (c *Coordinator) negotiate(ctx context.Context, conn *peers.Connection, call core.Call, wrap func(domain.SessionID, error) error) (bool, error) {
	if !conn.Bind(call) {
		call.Close()
		return false, nil
	}
	stream, err := call.Stream(ctx)
	if err != nil {
		return c.failed(conn, wrap(conn.RemoteID, err))
	}
	ev := &streamArrived{conn: conn, call: call, stream: stream}
	if !c.send(ev) {
		call.Close()
		return false, nil
	}
	return ev.applied, nil
}

func (c *Coordinator) failed(conn *peers.Connection, err error) (bool, error) {
	ev := &negotiationFailed{conn: conn, err: err}
	if !c.send(ev) || !ev.applied {
		return false, nil
	}
	return false, err
}
