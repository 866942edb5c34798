package roster

import (
	"testing"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stream string

func (s stream) ID() string                   { return string(s) }
func (s stream) Kinds() []webrtc.RTPCodecType { return nil }
func (s stream) Stats() core.StreamStats      { return core.StreamStats{} }

func ids(ps []Participant) []domain.SessionID {
	out := make([]domain.SessionID, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.ID)
	}
	return out
}

func TestPublishSeedsPlaceholders(t *testing.T) {
	r := New("me")
	require.True(t, r.Publish("a", "Alice", stream("sa")))

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "Alice", snap[0].DisplayName)
	assert.True(t, snap[0].IsMuted)
	assert.True(t, snap[0].IsVideoOff)
	assert.Equal(t, stream("sa"), snap[0].Stream)
}

func TestPublishNeverAddsSelfOrStreamless(t *testing.T) {
	r := New("me")
	assert.False(t, r.Publish("me", "Me", stream("own")))
	assert.False(t, r.Publish("a", "Alice", nil))
	assert.Empty(t, r.Snapshot())
}

func TestPublishFallbackName(t *testing.T) {
	r := New("me")
	r.Publish("xyz", "", stream("s"))
	assert.Equal(t, "User-xyz", r.Snapshot()[0].DisplayName)
}

func TestPublishUpdatesInPlace(t *testing.T) {
	r := New("me")
	r.Publish("a", "Alice", stream("s1"))
	r.Publish("b", "Bob", stream("s2"))
	r.Publish("a", "Alice B.", stream("s3"))

	snap := r.Snapshot()
	assert.Equal(t, []domain.SessionID{"a", "b"}, ids(snap))
	assert.Equal(t, "Alice B.", snap[0].DisplayName)
	assert.Equal(t, stream("s3"), snap[0].Stream)
}

func TestRetract(t *testing.T) {
	r := New("me")
	r.Publish("a", "Alice", stream("s1"))
	r.Publish("b", "Bob", stream("s2"))

	assert.True(t, r.Retract("a"))
	assert.False(t, r.Retract("a"))
	assert.False(t, r.Retract("ghost"))
	assert.Equal(t, []domain.SessionID{"b"}, ids(r.Snapshot()))
}

func TestSnapshotIsACopy(t *testing.T) {
	r := New("me")
	r.Publish("a", "Alice", stream("s1"))
	snap := r.Snapshot()
	snap[0].DisplayName = "changed"
	assert.Equal(t, "Alice", r.Snapshot()[0].DisplayName)
}

func TestRetractThenPublishAppends(t *testing.T) {
	r := New("me")
	r.Publish("a", "Alice", stream("s1"))
	r.Publish("b", "Bob", stream("s2"))
	r.Retract("a")
	r.Publish("a", "Alice", stream("s3"))

	assert.Equal(t, []domain.SessionID{"b", "a"}, ids(r.Snapshot()))
}
