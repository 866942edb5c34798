package orch_test

import (
	"errors"
	"testing"

	"github.com/dkeye/meshcall/internal/app"
	"github.com/dkeye/meshcall/internal/app/orch"
	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/core/mocks"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type harness struct {
	o       *orch.Orchestrator
	ctrl    *gomock.Controller
	signals map[domain.SessionID]*mocks.MockSignalConnection
	kicked  map[domain.SessionID]int
}

func newHarness(t *testing.T, policy app.Policy) *harness {
	return &harness{
		o: &orch.Orchestrator{
			Registry: app.NewRegistry(),
			Rooms:    app.NewRoomManager(),
			Policy:   policy,
		},
		ctrl:    gomock.NewController(t),
		signals: make(map[domain.SessionID]*mocks.MockSignalConnection),
		kicked:  make(map[domain.SessionID]int),
	}
}

func (h *harness) connect(t *testing.T, id domain.SessionID) *mocks.MockSignalConnection {
	t.Helper()
	u, err := domain.NewUser(id, "user "+string(id))
	require.NoError(t, err)
	sig := mocks.NewMockSignalConnection(h.ctrl)
	h.signals[id] = sig
	h.o.Registry.BindSignal(core.NewMemberSession(domain.NewMember(u), sig), func() { h.kicked[id]++ })
	return sig
}

func TestJoinMovesBetweenRooms(t *testing.T) {
	h := newHarness(t, app.SimplePolicy{})
	h.connect(t, "a")
	h.connect(t, "b")

	room, left, err := h.o.Join("a", "lobby")
	require.NoError(t, err)
	assert.Empty(t, left)
	assert.Equal(t, domain.RoomName("lobby"), room.Room().Name)
	_, _, err = h.o.Join("b", "lobby")
	require.NoError(t, err)

	room, left, err = h.o.Join("a", "attic")
	require.NoError(t, err)
	assert.Equal(t, domain.RoomName("lobby"), left)
	assert.Equal(t, 1, room.MemberCount())

	lobby, ok := h.o.Rooms.Get("lobby")
	require.True(t, ok)
	assert.Equal(t, []core.MemberDTO{{ID: "b", Username: "user b"}}, lobby.MembersSnapshot(""))

	// rejoining the same room is not a move
	_, left, err = h.o.Join("a", "attic")
	require.NoError(t, err)
	assert.Empty(t, left)

	_, _, err = h.o.Join("ghost", "lobby")
	assert.ErrorIs(t, err, domain.ErrPeerNotFound)
}

func TestLeaveStopsEmptyRoom(t *testing.T) {
	h := newHarness(t, app.SimplePolicy{})
	h.connect(t, "a")
	_, _, err := h.o.Join("a", "lobby")
	require.NoError(t, err)

	name, ok := h.o.Leave("a")
	assert.True(t, ok)
	assert.Equal(t, domain.RoomName("lobby"), name)
	_, exists := h.o.Rooms.Get("lobby")
	assert.False(t, exists)

	_, ok = h.o.Leave("a")
	assert.False(t, ok)
}

func TestDisconnectUnbinds(t *testing.T) {
	h := newHarness(t, app.SimplePolicy{})
	h.connect(t, "a")
	_, _, err := h.o.Join("a", "lobby")
	require.NoError(t, err)

	name, ok := h.o.Disconnect("a")
	assert.True(t, ok)
	assert.Equal(t, domain.RoomName("lobby"), name)
	_, bound := h.o.Registry.GetSession("a")
	assert.False(t, bound)
}

func TestRelayWithinRoom(t *testing.T) {
	h := newHarness(t, app.SimplePolicy{})
	h.connect(t, "a")
	b := h.connect(t, "b")
	h.connect(t, "c")
	frame := core.Frame(`{"type":"offer"}`)

	for _, id := range []domain.SessionID{"a", "b"} {
		_, _, err := h.o.Join(id, "lobby")
		require.NoError(t, err)
	}
	_, _, err := h.o.Join("c", "attic")
	require.NoError(t, err)

	b.EXPECT().TrySend(frame).Return(nil)
	assert.NoError(t, h.o.Relay("a", "b", frame))

	assert.ErrorIs(t, h.o.Relay("a", "c", frame), domain.ErrPeerNotFound)
	assert.ErrorIs(t, h.o.Relay("a", "a", frame), domain.ErrPeerNotFound)
	assert.ErrorIs(t, h.o.Relay("ghost", "b", frame), domain.ErrPeerNotFound)
}

func TestRelayBackpressureKicks(t *testing.T) {
	h := newHarness(t, app.SimplePolicy{})
	h.connect(t, "a")
	b := h.connect(t, "b")
	for _, id := range []domain.SessionID{"a", "b"} {
		_, _, err := h.o.Join(id, "lobby")
		require.NoError(t, err)
	}

	full := errors.New("backpressure")
	b.EXPECT().TrySend(gomock.Any()).Return(full)
	assert.ErrorIs(t, h.o.Relay("a", "b", core.Frame("x")), full)
	assert.Equal(t, 1, h.kicked["b"])
}

func TestPublishDropPolicyKeepsMember(t *testing.T) {
	h := newHarness(t, app.DropPolicy{})
	h.connect(t, "a")
	b := h.connect(t, "b")
	c := h.connect(t, "c")
	for _, id := range []domain.SessionID{"a", "b", "c"} {
		_, _, err := h.o.Join(id, "lobby")
		require.NoError(t, err)
	}

	frame := core.Frame("hello")
	b.EXPECT().TrySend(frame).Return(nil)
	c.EXPECT().TrySend(frame).Return(errors.New("backpressure"))

	res := h.o.OnFrame("a", frame)
	assert.Equal(t, 1, res.SendTo)
	assert.Len(t, res.Dropped, 1)
	assert.Zero(t, h.kicked["c"])

	assert.Equal(t, core.PublishResult{}, h.o.OnFrame("ghost", frame))
}

func TestEvictRoomKicksEveryone(t *testing.T) {
	h := newHarness(t, app.SimplePolicy{})
	for _, id := range []domain.SessionID{"a", "b"} {
		h.connect(t, id)
		_, _, err := h.o.Join(id, "lobby")
		require.NoError(t, err)
	}
	h.o.EvictRoom("lobby")
	assert.Equal(t, 1, h.kicked["a"])
	assert.Equal(t, 1, h.kicked["b"])
}
