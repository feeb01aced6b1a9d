// Copyright 2024-2026 Aiku AI

package xmppwire

import (
	"context"

	"github.com/rs/zerolog"
)

// Account holds the credentials and opaque persisted state for one remote
// account. State is whatever blob the wire client wants handed back on the
// next connect; the bridge never inspects it.
type Account struct {
	JID      JID
	Password string
	State    []byte
}

// Media describes an outbound file upload.
type Media struct {
	Name     string
	MimeType string
	Data     []byte
}

// Transport owns exactly one authenticated session with the remote
// network. Send operations return the server-assigned message id; an empty
// id means the network assigned none and no delivery echo should be
// awaited. Operations the network has no equivalent for return
// ErrUnsupported.
type Transport interface {
	// Connect resolves a connection endpoint via discovery and
	// authenticates. Failures are reported as a *ConnectError whose cause
	// chain may contain a *DiscoveryError or ErrUnexpectedStatus.
	Connect(ctx context.Context) error
	// Disconnect tears the session down. Safe to call when not connected.
	Disconnect()
	// State returns the opaque session blob to persist after a successful
	// connect.
	State() []byte
	// Events is the single inbound stream for this connection. The channel
	// is closed when the session ends.
	Events() <-chan Event

	SendMessage(ctx context.Context, room, body string) (string, error)
	SendEdit(ctx context.Context, room, targetID, body string) (string, error)
	SendRetraction(ctx context.Context, room, targetID string) (string, error)
	SendMedia(ctx context.Context, room string, media Media) (string, error)
	SendPresence(ctx context.Context, statusText string) error
	SendTyping(ctx context.Context, room string, active bool) error
	SendReceipt(ctx context.Context, room, messageID string) error
}

// DialFunc builds an unconnected Transport for an account.
type DialFunc func(account Account, log zerolog.Logger) Transport

// Dial is the entry point to the wire-level client. The production client
// is a separate module that replaces this at init time; the default
// fails discovery so the bridge degrades to scheduled reconnect attempts
// instead of crashing.
var Dial DialFunc = func(account Account, log zerolog.Logger) Transport {
	return &unavailableTransport{domain: account.JID.Domain}
}

type unavailableTransport struct {
	domain string
	events chan Event
}

func (t *unavailableTransport) Connect(context.Context) error {
	return &ConnectError{Err: &DiscoveryError{Domain: t.domain, Err: ErrNoWireClient}}
}

func (t *unavailableTransport) Disconnect() {}

func (t *unavailableTransport) State() []byte { return nil }

func (t *unavailableTransport) Events() <-chan Event {
	if t.events == nil {
		t.events = make(chan Event)
		close(t.events)
	}
	return t.events
}

func (t *unavailableTransport) SendMessage(context.Context, string, string) (string, error) {
	return "", ErrUnsupported
}

func (t *unavailableTransport) SendEdit(context.Context, string, string, string) (string, error) {
	return "", ErrUnsupported
}

func (t *unavailableTransport) SendRetraction(context.Context, string, string) (string, error) {
	return "", ErrUnsupported
}

func (t *unavailableTransport) SendMedia(context.Context, string, Media) (string, error) {
	return "", ErrUnsupported
}

func (t *unavailableTransport) SendPresence(context.Context, string) error { return ErrUnsupported }

func (t *unavailableTransport) SendTyping(context.Context, string, bool) error {
	return ErrUnsupported
}

func (t *unavailableTransport) SendReceipt(context.Context, string, string) error {
	return ErrUnsupported
}
