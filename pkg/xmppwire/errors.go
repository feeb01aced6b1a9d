// Copyright 2024-2026 Aiku AI

package xmppwire

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupported is returned by send operations the remote network has
	// no equivalent for. Callers treat it as "feature absent", not failure.
	ErrUnsupported = errors.New("operation not supported by the remote network")

	// ErrUnexpectedStatus marks connect failures caused by a response the
	// client did not expect (as opposed to plain network or auth faults).
	// Detect it with errors.Is on a ConnectError.
	ErrUnexpectedStatus = errors.New("unexpected status from remote server")

	// ErrNoWireClient is the discovery failure produced when no wire-level
	// client has been linked into the build.
	ErrNoWireClient = errors.New("no wire-level XMPP client linked into this build")
)

// DiscoveryError reports a failure to resolve a connection endpoint for a
// domain before any authentication was attempted.
type DiscoveryError struct {
	Domain string
	Err    error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("endpoint discovery failed for %s: %v", e.Domain, e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// ConnectError reports a failed connection attempt, wrapping the underlying
// cause. The cause chain distinguishes ErrUnexpectedStatus from generic
// faults; that distinction only changes user-visible status text, never the
// recovery action.
type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect failed: %v", e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}
