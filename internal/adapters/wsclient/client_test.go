package wsclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/meshcall/internal/adapters/rtc"
	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	m.Run()
}

// fakeServer accepts one socket, greets it with an open frame and lets the
// test read and write frames on the server side.
type fakeServer struct {
	srv   *httptest.Server
	conns chan *websocket.Conn
	greet bool
}

func newFakeServer(t *testing.T, greet bool) *fakeServer {
	t.Helper()
	fs := &fakeServer{conns: make(chan *websocket.Conn, 1), greet: greet}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if fs.greet {
			_ = ws.WriteJSON(Message{Type: TypeOpen, ID: "self"})
		}
		fs.conns <- ws
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) url() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http")
}

func (fs *fakeServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case ws := <-fs.conns:
		t.Cleanup(func() { _ = ws.Close() })
		return ws
	case <-time.After(5 * time.Second):
		t.Fatal("no connection")
		return nil
	}
}

// expect reads frames until one of the given type arrives.
func expect(t *testing.T, ws *websocket.Conn, typ string) Message {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(10*time.Second)))
	for {
		var msg Message
		require.NoError(t, ws.ReadJSON(&msg))
		if msg.Type == typ {
			return msg
		}
	}
}

func newClient(t *testing.T, fs *fakeServer) *Client {
	t.Helper()
	c, err := New(Options{URL: fs.url(), Name: "alice", RTC: rtc.Config{}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Disconnect() })
	return c
}

func openClient(t *testing.T) (*Client, *websocket.Conn) {
	t.Helper()
	fs := newFakeServer(t, true)
	c := newClient(t, fs)
	id, err := c.Open(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.SessionID("self"), id)
	return c, fs.accept(t)
}

func TestOpenAssignsID(t *testing.T) {
	c, _ := openClient(t)
	assert.Equal(t, domain.SessionID("self"), c.ID())

	_, err := c.Open(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyOpen)
}

func TestOpenTimesOutWithoutGreeting(t *testing.T) {
	fs := newFakeServer(t, false)
	c := newClient(t, fs)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := c.Open(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDiscoverListsMembers(t *testing.T) {
	c, ws := openClient(t)

	type result struct {
		ids []domain.SessionID
		err error
	}
	res := make(chan result, 1)
	go func() {
		ids, err := c.Discover(context.Background(), "lobby")
		res <- result{ids, err}
	}()

	join := expect(t, ws, TypeJoin)
	assert.Equal(t, "lobby", join.Room)
	assert.Equal(t, "alice", join.Name)

	require.NoError(t, ws.WriteJSON(Message{
		Type:    TypeRoomState,
		Room:    "lobby",
		Members: []Member{{ID: "b", Username: "bob"}, {ID: "c", Username: "carol"}},
		Count:   3,
	}))

	r := <-res
	require.NoError(t, r.err)
	assert.Equal(t, []domain.SessionID{"b", "c"}, r.ids)
}

func TestDiscoverReportsServerError(t *testing.T) {
	c, ws := openClient(t)

	errc := make(chan error, 1)
	go func() {
		_, err := c.Discover(context.Background(), "lobby")
		errc <- err
	}()
	expect(t, ws, TypeJoin)
	require.NoError(t, ws.WriteJSON(Message{Type: TypeError, Error: "rate_limited"}))

	err := <-errc
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate_limited")
}

func TestDialHangupBeforeAnswerIsRejection(t *testing.T) {
	c, ws := openClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cl, err := c.Dial(ctx, "bob", nil)
	require.NoError(t, err)

	offer := expect(t, ws, TypeOffer)
	assert.Equal(t, "bob", offer.To)
	assert.Equal(t, "alice", offer.Name)
	assert.NotEmpty(t, offer.CallID)
	assert.Contains(t, offer.SDP, "v=0")

	require.NoError(t, ws.WriteJSON(Message{Type: TypeHangup, From: "bob", CallID: offer.CallID}))

	_, err = cl.Stream(ctx)
	assert.ErrorIs(t, err, domain.ErrCallRejected)
	select {
	case <-cl.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("call not done")
	}
}

func TestDialPeerUnavailable(t *testing.T) {
	c, ws := openClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cl, err := c.Dial(ctx, "ghost", nil)
	require.NoError(t, err)

	offer := expect(t, ws, TypeOffer)
	require.NoError(t, ws.WriteJSON(Message{Type: TypeError, Error: ErrCodePeerUnavailable, CallID: offer.CallID}))

	_, err = cl.Stream(ctx)
	assert.ErrorIs(t, err, domain.ErrPeerNotFound)
}

func TestMemberLeftEndsCalls(t *testing.T) {
	c, ws := openClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cl, err := c.Dial(ctx, "bob", nil)
	require.NoError(t, err)
	expect(t, ws, TypeOffer)

	require.NoError(t, ws.WriteJSON(Message{Type: TypeMemberLeft, User: &Member{ID: "bob"}}))
	select {
	case <-cl.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("call not ended")
	}
	_, err = cl.Stream(ctx)
	assert.ErrorIs(t, err, domain.ErrCallEnded)
}

func TestCloseSendsHangup(t *testing.T) {
	c, ws := openClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cl, err := c.Dial(ctx, "bob", nil)
	require.NoError(t, err)
	offer := expect(t, ws, TypeOffer)

	cl.Close()
	cl.Close()
	hangup := expect(t, ws, TypeHangup)
	assert.Equal(t, "bob", hangup.To)
	assert.Equal(t, offer.CallID, hangup.CallID)
}

func TestIncomingOffersAreBufferedUntilHandler(t *testing.T) {
	c, ws := openClient(t)

	require.NoError(t, ws.WriteJSON(Message{Type: TypeOffer, From: "bob", CallID: "c1", Name: "Bob", SDP: "x"}))
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return len(c.backlog) == 1
	}, 5*time.Second, 10*time.Millisecond)

	got := make(chan core.IncomingCall, 1)
	c.OnIncomingCall(func(ic core.IncomingCall) { got <- ic })

	var ic core.IncomingCall
	select {
	case ic = <-got:
	case <-time.After(5 * time.Second):
		t.Fatal("no incoming call")
	}
	assert.Equal(t, domain.SessionID("bob"), ic.Remote())
	assert.Equal(t, "Bob", ic.RemoteName())

	ic.Reject()
	ic.Reject()
	hangup := expect(t, ws, TypeHangup)
	assert.Equal(t, "bob", hangup.To)
	assert.Equal(t, "c1", hangup.CallID)

	_, err := ic.Answer(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrCallEnded)
}

func TestIncomingWithoutNameFallsBack(t *testing.T) {
	c, ws := openClient(t)
	got := make(chan core.IncomingCall, 1)
	c.OnIncomingCall(func(ic core.IncomingCall) { got <- ic })

	require.NoError(t, ws.WriteJSON(Message{Type: TypeOffer, From: "bob", CallID: "c1", SDP: "x"}))
	select {
	case ic := <-got:
		assert.Equal(t, "User-bob", ic.RemoteName())
	case <-time.After(5 * time.Second):
		t.Fatal("no incoming call")
	}
}

func TestAnswerSendsAnswerFrame(t *testing.T) {
	c, ws := openClient(t)
	got := make(chan core.IncomingCall, 1)
	c.OnIncomingCall(func(ic core.IncomingCall) { got <- ic })

	api, err := rtc.NewAPI(rtc.Config{})
	require.NoError(t, err)
	caller, err := rtc.NewPeer(api, rtc.Config{}, "self")
	require.NoError(t, err)
	defer caller.Close()
	require.NoError(t, caller.AddLocalStream(nil))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	offer, err := caller.CreateOffer(ctx)
	require.NoError(t, err)

	require.NoError(t, ws.WriteJSON(Message{Type: TypeOffer, From: "bob", CallID: "c9", Name: "Bob", SDP: offer}))
	ic := <-got

	cl, err := ic.Answer(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "Bob", cl.RemoteName())

	answer := expect(t, ws, TypeAnswer)
	assert.Equal(t, "bob", answer.To)
	assert.Equal(t, "c9", answer.CallID)
	assert.Equal(t, "alice", answer.Name)
	require.NoError(t, caller.ApplyAnswer(answer.SDP))

	// a hangup after the answer ends the call
	require.NoError(t, ws.WriteJSON(Message{Type: TypeHangup, From: "bob", CallID: "c9"}))
	select {
	case <-cl.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("call not ended")
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	c, ws := openClient(t)

	require.NoError(t, c.Disconnect())
	require.NoError(t, c.Disconnect())
	expect(t, ws, TypeLeave)

	_, err := c.Discover(context.Background(), "lobby")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = c.Dial(context.Background(), "bob", nil)
	assert.Error(t, err)
}

func TestDisconnectBeforeOpen(t *testing.T) {
	fs := newFakeServer(t, true)
	c := newClient(t, fs)
	require.NoError(t, c.Disconnect())

	_, err := c.Open(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
