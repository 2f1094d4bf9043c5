package domain

import (
	"errors"
	"fmt"
)

var (
	ErrJoin                  = errors.New("join failed")
	ErrSend                  = errors.New("signaling message undeliverable")
	ErrBackpressure          = errors.New("backpressure")
	ErrChannelClosed         = errors.New("signaling channel closed")
	ErrNegotiation           = errors.New("malformed or unexpected setup message")
	ErrStaleMessage          = errors.New("stale setup message")
	ErrConnectivity          = errors.New("connectivity failure")
	ErrRenegotiationRequired = errors.New("remote restarted negotiation")
	ErrLinkClosed            = errors.New("peer link closed")
)

// Error carries the failed operation and, when known, the peer it concerns.
type Error struct {
	Op      string
	Peer    ParticipantID
	Err     error
	Details string
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Peer != "" {
		msg += " " + string(e.Peer)
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", msg, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

func NewPeerError(op string, peer ParticipantID, err error) *Error {
	return &Error{Op: op, Peer: peer, Err: err}
}

func WrapError(op string, err error, details string) *Error {
	return &Error{Op: op, Err: err, Details: details}
}

// JoinError marks cause as fatal to a join attempt while keeping it inspectable.
func JoinError(op string, cause error) *Error {
	return &Error{Op: op, Err: fmt.Errorf("%w: %w", ErrJoin, cause)}
}

// IsWarning reports errors that never need more than a log line.
func IsWarning(err error) bool {
	return errors.Is(err, ErrStaleMessage) || errors.Is(err, ErrNegotiation)
}
