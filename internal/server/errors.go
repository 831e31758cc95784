package server

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrAlreadyStarted is returned by Start on a running server.
var ErrAlreadyStarted = errors.New("server already started")

// BindError is returned by Start when the listening socket cannot be opened.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// ConnectionError is an I/O failure on one peer. It never affects other peers.
type ConnectionError struct {
	PeerID uuid.UUID
	Op     string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("peer %s: %s: %v", e.PeerID, e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
