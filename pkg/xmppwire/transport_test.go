// Copyright 2024-2026 Aiku AI

package xmppwire

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func TestDefaultDialFailsDiscovery(t *testing.T) {
	t.Parallel()
	transport := Dial(Account{JID: JID{Local: "alice", Domain: "example.org"}}, zerolog.Nop())

	err := transport.Connect(context.Background())
	if err == nil {
		t.Fatal("expected the placeholder transport to fail")
	}

	var connErr *ConnectError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected *ConnectError, got %T", err)
	}
	var discErr *DiscoveryError
	if !errors.As(err, &discErr) {
		t.Fatalf("expected *DiscoveryError in the chain, got %v", err)
	}
	if discErr.Domain != "example.org" {
		t.Errorf("unexpected domain: %q", discErr.Domain)
	}
	if !errors.Is(err, ErrNoWireClient) {
		t.Error("expected ErrNoWireClient in the chain")
	}
	if errors.Is(err, ErrUnexpectedStatus) {
		t.Error("discovery failure must not read as an unexpected status")
	}
}

func TestDefaultDialEventStreamClosed(t *testing.T) {
	t.Parallel()
	transport := Dial(Account{JID: JID{Local: "alice", Domain: "example.org"}}, zerolog.Nop())

	if _, ok := <-transport.Events(); ok {
		t.Error("expected the event stream to be closed")
	}
	transport.Disconnect() // must not panic
	if transport.State() != nil {
		t.Error("expected no session state")
	}
}

func TestDefaultDialSendsUnsupported(t *testing.T) {
	t.Parallel()
	transport := Dial(Account{}, zerolog.Nop())

	if _, err := transport.SendMessage(context.Background(), "r", "b"); !errors.Is(err, ErrUnsupported) {
		t.Errorf("SendMessage: got %v", err)
	}
	if err := transport.SendTyping(context.Background(), "r", true); !errors.Is(err, ErrUnsupported) {
		t.Errorf("SendTyping: got %v", err)
	}
}

func TestConnectErrorUnwraps(t *testing.T) {
	t.Parallel()
	cause := errors.New("boom")
	err := &ConnectError{Err: &DiscoveryError{Domain: "x", Err: cause}}
	if !errors.Is(err, cause) {
		t.Error("expected the cause to be reachable through the chain")
	}
}

func TestContactClone(t *testing.T) {
	t.Parallel()
	var nilContact *Contact
	if nilContact.Clone() != nil {
		t.Error("expected nil clone of nil contact")
	}

	c := &Contact{ID: "bob@example.org", Name: "bob"}
	cp := c.Clone()
	cp.Name = "changed"
	if c.Name != "bob" {
		t.Error("expected clone to be independent")
	}
}

func TestConversationMemberIDsSorted(t *testing.T) {
	t.Parallel()
	convo := &Conversation{
		ID: "room@muc.example.org",
		Members: map[string]struct{}{
			"carol@example.org": {},
			"alice@example.org": {},
			"bob@example.org":   {},
		},
	}
	ids := convo.MemberIDs()
	want := []string{"alice@example.org", "bob@example.org", "carol@example.org"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("unexpected order: %v", ids)
		}
	}
}
