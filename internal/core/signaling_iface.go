package core

import (
	"context"

	"github.com/dkeye/meshcall/internal/domain"
)

//go:generate mockgen -destination=mocks/signaling_mock.go -package=mocks github.com/dkeye/meshcall/internal/core Signaling

// Signaling is the client's view of the signaling service.
type Signaling interface {
	// Open blocks until the service assigns this session an id.
	Open(ctx context.Context) (domain.SessionID, error)
	// Discover enters the room and returns the ids already present.
	Discover(ctx context.Context, room domain.RoomName) ([]domain.SessionID, error)
	// Dial places a call carrying local. The remote stream arrives through Call.Stream.
	// ctx bounds the negotiation only, never the lifetime of the returned Call.
	Dial(ctx context.Context, remote domain.SessionID, local LocalStream) (Call, error)
	// OnIncomingCall sets the handler for calls placed by other peers.
	OnIncomingCall(func(IncomingCall))
	Disconnect() error
}

// Call is one media link with a remote peer.
type Call interface {
	Remote() domain.SessionID
	RemoteName() string
	// Stream waits for the remote stream.
	Stream(ctx context.Context) (RemoteStream, error)
	// Done is closed once the link has ended for any reason.
	Done() <-chan struct{}
	// Close hangs up. It must be idempotent and must not block on the network.
	Close()
}

// IncomingCall is a call request that has not been answered yet.
type IncomingCall interface {
	Remote() domain.SessionID
	RemoteName() string
	Answer(ctx context.Context, local LocalStream) (Call, error)
	// Reject declines the call without blocking.
	Reject()
}
