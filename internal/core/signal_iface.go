package core

//go:generate mockgen -destination=mocks/signal_mock.go -package=mocks github.com/dkeye/meshcall/internal/core SignalConnection

// Frame is a raw payload queued for one websocket.
type Frame []byte

// SignalConnection abstracts the server side of one signaling socket.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
