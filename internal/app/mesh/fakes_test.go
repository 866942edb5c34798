package mesh

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/pion/webrtc/v4"
)

// fakeNet is an in-memory signaling service where calls are plain channels.
type fakeNet struct {
	mu    sync.Mutex
	nodes map[domain.SessionID]*fakeSignaling
	rooms map[domain.RoomName][]domain.SessionID
	links []*link
	// gate, when set, holds every incoming-call delivery until it is closed.
	gate chan struct{}
}

func newFakeNet() *fakeNet {
	return &fakeNet{
		nodes: map[domain.SessionID]*fakeSignaling{},
		rooms: map[domain.RoomName][]domain.SessionID{},
	}
}

func (n *fakeNet) node(id domain.SessionID, name string) *fakeSignaling {
	s := &fakeSignaling{net: n, id: id, name: name, failDial: map[domain.SessionID]error{}}
	n.mu.Lock()
	n.nodes[id] = s
	n.mu.Unlock()
	return s
}

// peer is a remote that answers every call and is already in room.
func (n *fakeNet) peer(room domain.RoomName, id domain.SessionID, name string) *fakeSignaling {
	s := n.node(id, name)
	s.OnIncomingCall(func(ic core.IncomingCall) {
		go func() { _, _ = ic.Answer(context.Background(), nil) }()
	})
	n.enter(room, id)
	return s
}

func (n *fakeNet) enter(room domain.RoomName, id domain.SessionID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !slices.Contains(n.rooms[room], id) {
		n.rooms[room] = append(n.rooms[room], id)
	}
}

func (n *fakeNet) lookup(id domain.SessionID) (*fakeSignaling, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	s, ok := n.nodes[id]
	return s, ok && !s.disconnected.Load()
}

// liveLinks counts answered links between a and b that have not ended.
func (n *fakeNet) liveLinks(a, b domain.SessionID) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, l := range n.links {
		pair := (l.caller.id == a && l.callee.id == b) || (l.caller.id == b && l.callee.id == a)
		if pair && l.isAnswered() && !l.isEnded() {
			count++
		}
	}
	return count
}

// hangup ends every link between a and b, as a network drop would.
func (n *fakeNet) hangup(a, b domain.SessionID) {
	n.mu.Lock()
	links := slices.Clone(n.links)
	n.mu.Unlock()
	for _, l := range links {
		if (l.caller.id == a && l.callee.id == b) || (l.caller.id == b && l.callee.id == a) {
			l.end(domain.ErrCallEnded)
		}
	}
}

type fakeSignaling struct {
	net  *fakeNet
	id   domain.SessionID
	name string

	openErr     error
	discoverErr error
	failDial    map[domain.SessionID]error

	mu           sync.Mutex
	handler      func(core.IncomingCall)
	dialed       []domain.SessionID
	disconnected atomic.Bool
	disconnects  atomic.Int32
}

func (s *fakeSignaling) Open(ctx context.Context) (domain.SessionID, error) {
	if s.openErr != nil {
		return "", s.openErr
	}
	return s.id, ctx.Err()
}

func (s *fakeSignaling) Discover(_ context.Context, room domain.RoomName) ([]domain.SessionID, error) {
	if s.discoverErr != nil {
		return nil, s.discoverErr
	}
	s.net.enter(room, s.id)
	s.net.mu.Lock()
	defer s.net.mu.Unlock()
	return slices.Clone(s.net.rooms[room]), nil
}

func (s *fakeSignaling) Dial(_ context.Context, remote domain.SessionID, _ core.LocalStream) (core.Call, error) {
	s.mu.Lock()
	s.dialed = append(s.dialed, remote)
	err := s.failDial[remote]
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	target, ok := s.net.lookup(remote)
	if !ok {
		return nil, domain.ErrPeerNotFound
	}

	l := newLink(s, target)
	s.net.mu.Lock()
	s.net.links = append(s.net.links, l)
	gate := s.net.gate
	s.net.mu.Unlock()

	go func() {
		if gate != nil {
			<-gate
		}
		target.deliver(&fakeIncoming{link: l})
	}()
	return &fakeCall{link: l, caller: true}, nil
}

func (s *fakeSignaling) deliver(ic core.IncomingCall) {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h == nil || s.disconnected.Load() {
		ic.Reject()
		return
	}
	h(ic)
}

func (s *fakeSignaling) OnIncomingCall(h func(core.IncomingCall)) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

func (s *fakeSignaling) Disconnect() error {
	s.disconnects.Add(1)
	s.disconnected.Store(true)
	s.net.mu.Lock()
	for room, ids := range s.net.rooms {
		s.net.rooms[room] = slices.DeleteFunc(ids, func(id domain.SessionID) bool { return id == s.id })
	}
	links := slices.Clone(s.net.links)
	s.net.mu.Unlock()
	for _, l := range links {
		if l.caller == s || l.callee == s {
			l.end(domain.ErrCallEnded)
		}
	}
	return nil
}

func (s *fakeSignaling) dials() []domain.SessionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.dialed)
}

type link struct {
	caller, callee *fakeSignaling

	answered chan struct{}
	ended    chan struct{}
	answer   sync.Once
	finish   sync.Once
	err      error
}

func newLink(caller, callee *fakeSignaling) *link {
	return &link{
		caller:   caller,
		callee:   callee,
		answered: make(chan struct{}),
		ended:    make(chan struct{}),
	}
}

func (l *link) end(err error) {
	l.finish.Do(func() {
		l.err = err
		close(l.ended)
	})
}

func (l *link) isAnswered() bool {
	select {
	case <-l.answered:
		return true
	default:
		return false
	}
}

func (l *link) isEnded() bool {
	select {
	case <-l.ended:
		return true
	default:
		return false
	}
}

type fakeCall struct {
	link   *link
	caller bool
}

func (c *fakeCall) other() *fakeSignaling {
	if c.caller {
		return c.link.callee
	}
	return c.link.caller
}

func (c *fakeCall) Remote() domain.SessionID { return c.other().id }
func (c *fakeCall) RemoteName() string       { return c.other().name }

func (c *fakeCall) Stream(ctx context.Context) (core.RemoteStream, error) {
	select {
	case <-c.link.answered:
		if c.link.isEnded() {
			return nil, c.link.err
		}
		return fakeRemote(c.other().id), nil
	case <-c.link.ended:
		return nil, c.link.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeCall) Done() <-chan struct{} { return c.link.ended }
func (c *fakeCall) Close()                { c.link.end(domain.ErrCallEnded) }

type fakeIncoming struct{ link *link }

func (i *fakeIncoming) Remote() domain.SessionID { return i.link.caller.id }
func (i *fakeIncoming) RemoteName() string       { return i.link.caller.name }

func (i *fakeIncoming) Answer(context.Context, core.LocalStream) (core.Call, error) {
	if i.link.isEnded() {
		return nil, errors.Join(domain.ErrCallEnded, i.link.err)
	}
	i.link.answer.Do(func() { close(i.link.answered) })
	return &fakeCall{link: i.link}, nil
}

func (i *fakeIncoming) Reject() { i.link.end(domain.ErrCallRejected) }

type fakeRemote string

func (r fakeRemote) ID() string { return "stream-" + string(r) }
func (r fakeRemote) Kinds() []webrtc.RTPCodecType {
	return []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo}
}
func (r fakeRemote) Stats() core.StreamStats { return core.StreamStats{} }

type fakeTrack struct {
	kind    webrtc.RTPCodecType
	enabled atomic.Bool
	stops   atomic.Int32
}

func (t *fakeTrack) Kind() webrtc.RTPCodecType { return t.kind }
func (t *fakeTrack) Track() webrtc.TrackLocal  { return nil }
func (t *fakeTrack) Enabled() bool             { return t.enabled.Load() }
func (t *fakeTrack) SetEnabled(on bool)        { t.enabled.Store(on) }
func (t *fakeTrack) Stop()                     { t.stops.Add(1) }

type fakeCapture struct {
	video, audio *fakeTrack
	err          error

	// When release is set, GetUserMedia closes entered and blocks until release is closed.
	entered, release chan struct{}
}

func newCapture() *fakeCapture {
	return &fakeCapture{
		video: &fakeTrack{kind: webrtc.RTPCodecTypeVideo},
		audio: &fakeTrack{kind: webrtc.RTPCodecTypeAudio},
	}
}

func (f *fakeCapture) GetUserMedia(context.Context, core.Constraints) (core.LocalStream, error) {
	if f.release != nil {
		close(f.entered)
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	return f, nil
}

func (f *fakeCapture) ID() string { return "local" }
func (f *fakeCapture) Tracks() []core.LocalTrack {
	return []core.LocalTrack{f.video, f.audio}
}

// ringing is an incoming call that only records whether it was rejected.
type ringing struct {
	core.IncomingCall
	rejected atomic.Bool
}

func (r *ringing) Remote() domain.SessionID { return "r-ring" }
func (r *ringing) Reject()                  { r.rejected.Store(true) }
