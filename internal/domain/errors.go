package domain

import (
	"errors"
	"fmt"
)

// Session-scope failures abort call setup.
var (
	ErrIdentityUnavailable = errors.New("identity unavailable")
	ErrMediaDenied         = errors.New("media permission denied")
	ErrMediaUnavailable    = errors.New("media device unavailable")
	ErrDiscoveryFailed     = errors.New("peer discovery failed")
)

// Per-remote failures only affect one connection.
var (
	ErrCallNegotiationFailed = errors.New("call negotiation failed")
	ErrAnswerFailed          = errors.New("answer failed")
)

var (
	ErrNoLocalStream = errors.New("no local stream")
	ErrCallRejected  = errors.New("call rejected")
	ErrCallEnded     = errors.New("call ended")
	ErrPeerNotFound  = errors.New("peer unavailable")
)

// CallError describes a failure on one peer link.
type CallError struct {
	Op     string
	Remote SessionID
	Err    error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Remote, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// NegotiationError wraps err so it matches ErrCallNegotiationFailed.
func NegotiationError(remote SessionID, err error) error {
	return &CallError{Op: "dial", Remote: remote, Err: fmt.Errorf("%w: %w", ErrCallNegotiationFailed, err)}
}

// AnswerError wraps err so it matches ErrAnswerFailed.
func AnswerError(remote SessionID, err error) error {
	return &CallError{Op: "answer", Remote: remote, Err: fmt.Errorf("%w: %w", ErrAnswerFailed, err)}
}

// IsSessionFatal reports whether err must end call setup.
func IsSessionFatal(err error) bool {
	return errors.Is(err, ErrIdentityUnavailable) ||
		errors.Is(err, ErrMediaDenied) ||
		errors.Is(err, ErrMediaUnavailable) ||
		errors.Is(err, ErrDiscoveryFailed)
}
