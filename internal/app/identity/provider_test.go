package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/meshcall/internal/core/mocks"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestOpenAssignsID(t *testing.T) {
	ctrl := gomock.NewController(t)
	sig := mocks.NewMockSignaling(ctrl)
	sig.EXPECT().Open(gomock.Any()).Return(domain.SessionID("sid-1"), nil).Times(1)

	p := NewProvider(sig, time.Second)
	select {
	case <-p.Ready():
		t.Fatal("ready before open")
	default:
	}

	id, err := p.Open(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.SessionID("sid-1"), id)
	assert.Equal(t, id, p.ID())

	again, err := p.Open(context.Background())
	require.NoError(t, err)
	assert.Equal(t, id, again)

	select {
	case <-p.Ready():
	default:
		t.Fatal("ready not closed")
	}
}

func TestOpenTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	sig := mocks.NewMockSignaling(ctrl)
	sig.EXPECT().Open(gomock.Any()).DoAndReturn(func(ctx context.Context) (domain.SessionID, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}).Times(1)

	p := NewProvider(sig, 20*time.Millisecond)
	_, err := p.Open(context.Background())
	assert.ErrorIs(t, err, domain.ErrIdentityUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, p.ID())
}

func TestOpenUnreachable(t *testing.T) {
	ctrl := gomock.NewController(t)
	sig := mocks.NewMockSignaling(ctrl)
	sig.EXPECT().Open(gomock.Any()).Return(domain.SessionID(""), errors.New("connection refused"))

	_, err := NewProvider(sig, time.Second).Open(context.Background())
	assert.ErrorIs(t, err, domain.ErrIdentityUnavailable)
	assert.True(t, domain.IsSessionFatal(err))
}

func TestOpenEmptyID(t *testing.T) {
	ctrl := gomock.NewController(t)
	sig := mocks.NewMockSignaling(ctrl)
	sig.EXPECT().Open(gomock.Any()).Return(domain.SessionID(""), nil)

	_, err := NewProvider(sig, time.Second).Open(context.Background())
	assert.ErrorIs(t, err, domain.ErrIdentityUnavailable)
}

func TestCloseDisconnectsOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	sig := mocks.NewMockSignaling(ctrl)
	sig.EXPECT().Open(gomock.Any()).Return(domain.SessionID("sid"), nil)
	sig.EXPECT().Disconnect().Return(errors.New("already gone")).Times(1)

	p := NewProvider(sig, time.Second)
	_, err := p.Open(context.Background())
	require.NoError(t, err)

	p.Close()
	p.Close()

	_, err = p.Open(context.Background())
	assert.ErrorIs(t, err, domain.ErrIdentityUnavailable)
}

func TestCloseCancelsPendingOpen(t *testing.T) {
	ctrl := gomock.NewController(t)
	sig := mocks.NewMockSignaling(ctrl)
	entered := make(chan struct{})
	sig.EXPECT().Open(gomock.Any()).DoAndReturn(func(ctx context.Context) (domain.SessionID, error) {
		close(entered)
		<-ctx.Done()
		return "", ctx.Err()
	}).Times(1)
	sig.EXPECT().Disconnect().Return(nil).Times(1)

	p := NewProvider(sig, 2*time.Second)
	errc := make(chan error, 1)
	go func() {
		_, err := p.Open(context.Background())
		errc <- err
	}()

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("open never reached the server")
	}

	begin := time.Now()
	assert.Empty(t, p.ID())
	_, err := p.Open(context.Background())
	assert.ErrorIs(t, err, domain.ErrIdentityUnavailable)
	p.Close()
	assert.Less(t, time.Since(begin), 500*time.Millisecond)

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, domain.ErrIdentityUnavailable)
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("close did not cancel the pending open")
	}
	assert.Empty(t, p.ID())
}
