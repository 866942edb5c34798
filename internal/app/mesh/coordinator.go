// Package mesh coordinates one participant's links to every other peer in a room.
//
// A Coordinator owns the identity provider, the local media controller, the
// connection registry and the roster. All registry and roster mutations run on
// the coordinator goroutine; negotiations run elsewhere and report back as events.
package mesh

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/meshcall/internal/app/identity"
	"github.com/dkeye/meshcall/internal/app/media"
	"github.com/dkeye/meshcall/internal/app/peers"
	"github.com/dkeye/meshcall/internal/app/roster"
	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/rs/zerolog/log"
)

const (
	DefaultNegotiationTimeout = 30 * time.Second
	maxNotices                = 5
)

var errLeft = errors.New("session left")

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseConnecting
	PhaseJoined
	PhaseFailed
	PhaseLeft
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConnecting:
		return "connecting"
	case PhaseJoined:
		return "joined"
	case PhaseFailed:
		return "failed"
	case PhaseLeft:
		return "left"
	default:
		return "unknown"
	}
}

type Options struct {
	Room        domain.RoomName
	Constraints core.Constraints
	// NegotiationTimeout bounds each dial and answer until the remote stream arrives.
	NegotiationTimeout time.Duration
	OpenTimeout        time.Duration
	// OnPeerError receives per-remote failures. Called from coordinator goroutines.
	OnPeerError func(error)
}

// Snapshot is everything the UI renders.
type Snapshot struct {
	Room         domain.RoomName
	Self         domain.SessionID
	Phase        Phase
	Err          error
	Media        media.State
	Participants []roster.Participant
	Connections  []peers.Info
	Notices      []string
}

type Coordinator struct {
	opts     Options
	sig      core.Signaling
	identity *identity.Provider
	media    *media.Controller
	registry *peers.Registry

	events   chan envelope
	loopDone chan struct{}
	changes  chan struct{}

	queueOnce   sync.Once
	queueMu     sync.RWMutex
	queueClosed bool

	mu      sync.RWMutex
	self    domain.SessionID
	roster  *roster.Roster
	phase   Phase
	err     error
	notices []string
	started bool
	leaving bool
	ctx     context.Context
	cancel  context.CancelFunc

	leaveOnce    sync.Once
	teardownOnce sync.Once
}

func New(sig core.Signaling, device core.CaptureDevice, opts Options) *Coordinator {
	if opts.NegotiationTimeout <= 0 {
		opts.NegotiationTimeout = DefaultNegotiationTimeout
	}
	return &Coordinator{
		opts:     opts,
		sig:      sig,
		identity: identity.NewProvider(sig, opts.OpenTimeout),
		media:    media.NewController(device),
		registry: peers.NewRegistry(),
		events:   make(chan envelope, 64),
		loopDone: make(chan struct{}),
		changes:  make(chan struct{}, 1),
		roster:   roster.New(""),
	}
}

// Start opens the session, acquires media, starts answering calls and joins the room.
// Any error is session-fatal: the coordinator is torn down and moves to PhaseFailed.
// A Leave that lands mid-setup makes Start return errLeft without dialing anyone.
func (c *Coordinator) Start(ctx context.Context) (JoinReport, error) {
	c.setPhase(PhaseConnecting, nil)

	id, err := c.identity.Open(ctx)
	if err != nil {
		return JoinReport{}, c.abort(err)
	}
	c.mu.Lock()
	c.self = id
	c.roster = roster.New(id)
	c.mu.Unlock()
	c.registry.OnClosed(func(conn *peers.Connection) {
		c.currentRoster().Retract(conn.RemoteID)
	})

	if _, err := c.media.Acquire(ctx, c.opts.Constraints); err != nil {
		return JoinReport{}, c.abort(err)
	}
	if !c.startLoop(ctx) {
		// Leave tore down while capture was still opening.
		c.media.Release()
		return JoinReport{}, errLeft
	}
	c.sig.OnIncomingCall(func(ic core.IncomingCall) {
		if !c.post(incomingCall{call: ic}) {
			ic.Reject()
		}
	})

	report, err := c.Join(ctx)
	if err != nil {
		return report, c.abort(err)
	}
	if c.stopping() {
		return report, errLeft
	}
	c.setPhase(PhaseJoined, nil)
	return report, nil
}

// startLoop refuses to start once Leave has begun.
func (c *Coordinator) startLoop(parent context.Context) bool {
	c.mu.Lock()
	if c.leaving {
		c.mu.Unlock()
		return false
	}
	c.ctx, c.cancel = context.WithCancel(parent)
	c.started = true
	ctx := c.ctx
	c.mu.Unlock()
	go c.run(ctx)
	return true
}

func (c *Coordinator) stopping() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.leaving || c.phase == PhaseLeft
}

// abort reports errLeft for a setup step cut short by Leave.
func (c *Coordinator) abort(err error) error {
	if c.stopping() {
		return errLeft
	}
	return c.fail(err)
}

func (c *Coordinator) fail(err error) error {
	log.Error().Err(err).Str("module", "app.mesh").Str("room", string(c.opts.Room)).Msg("call setup failed")
	c.setPhase(PhaseFailed, err)
	c.Leave()
	return err
}

func (c *Coordinator) setPhase(p Phase, err error) {
	c.mu.Lock()
	switch {
	case c.phase == PhaseFailed, c.phase == PhaseLeft && p != PhaseFailed:
		c.mu.Unlock()
		return
	}
	c.phase = p
	if err != nil {
		c.err = err
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Coordinator) report(err error) {
	log.Warn().Err(err).Str("module", "app.mesh").Msg("peer link failed")
	c.mu.Lock()
	c.notices = append(c.notices, err.Error())
	if len(c.notices) > maxNotices {
		c.notices = c.notices[len(c.notices)-maxNotices:]
	}
	c.mu.Unlock()
	if c.opts.OnPeerError != nil {
		c.opts.OnPeerError(err)
	}
	c.notify()
}

func (c *Coordinator) notify() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}

// Updates fires after any visible change. Bursts coalesce.
func (c *Coordinator) Updates() <-chan struct{} { return c.changes }

// Done is closed once the coordinator goroutine has stopped, or on Leave
// if it never started.
func (c *Coordinator) Done() <-chan struct{} { return c.loopDone }

func (c *Coordinator) Self() domain.SessionID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.self
}

func (c *Coordinator) Room() domain.RoomName { return c.opts.Room }

func (c *Coordinator) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

func (c *Coordinator) currentRoster() *roster.Roster {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roster
}

func (c *Coordinator) Roster() []roster.Participant {
	return c.currentRoster().Snapshot()
}

func (c *Coordinator) Connections() []peers.Info {
	return c.registry.Snapshot()
}

func (c *Coordinator) MediaState() media.State {
	return c.media.State()
}

func (c *Coordinator) Snapshot() Snapshot {
	c.mu.RLock()
	s := Snapshot{
		Room:    c.opts.Room,
		Self:    c.self,
		Phase:   c.phase,
		Err:     c.err,
		Notices: append([]string(nil), c.notices...),
	}
	r := c.roster
	c.mu.RUnlock()

	s.Media = c.media.State()
	s.Participants = r.Snapshot()
	s.Connections = c.registry.Snapshot()
	return s
}

// ToggleVideo flips local video for every peer at once.
func (c *Coordinator) ToggleVideo() (bool, error) {
	on, err := c.media.ToggleVideo()
	c.notify()
	return on, err
}

// ToggleAudio flips local audio for every peer at once.
func (c *Coordinator) ToggleAudio() (bool, error) {
	on, err := c.media.ToggleAudio()
	c.notify()
	return on, err
}

func (c *Coordinator) SetVideoEnabled(on bool) error {
	defer c.notify()
	return c.media.SetVideoEnabled(on)
}

func (c *Coordinator) SetAudioEnabled(on bool) error {
	defer c.notify()
	return c.media.SetAudioEnabled(on)
}
