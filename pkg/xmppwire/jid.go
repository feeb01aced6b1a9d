// Copyright 2024-2026 Aiku AI

// Package xmppwire defines the boundary between the bridge core and the
// wire-level XMPP client: account credentials, the transport contract, the
// inbound event vocabulary, and the error taxonomy. The actual stanza
// parsing and stream negotiation live in the wire client linked into the
// build; nothing in this package touches the network.
package xmppwire

import (
	"fmt"
	"strings"
)

// JID is a parsed remote address of the form local@domain/resource.
// The resource part is optional and identifies a single connected device;
// the bare form (local@domain) identifies the account itself.
type JID struct {
	Local    string
	Domain   string
	Resource string
}

// ParseJID parses an address into its parts. The resource suffix is
// optional. Returns an error for addresses without a local or domain part.
func ParseJID(addr string) (JID, error) {
	var j JID
	rest := addr
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		j.Resource = rest[idx+1:]
		rest = rest[:idx]
	}
	at := strings.IndexByte(rest, '@')
	if at <= 0 || at == len(rest)-1 {
		return JID{}, fmt.Errorf("malformed address %q", addr)
	}
	j.Local = rest[:at]
	j.Domain = rest[at+1:]
	return j, nil
}

// Bare returns the address without the resource suffix.
func (j JID) Bare() string {
	return j.Local + "@" + j.Domain
}

// String returns the full address including the resource, if any.
func (j JID) String() string {
	if j.Resource == "" {
		return j.Bare()
	}
	return j.Bare() + "/" + j.Resource
}

// IsEmpty reports whether the JID has no address parts.
func (j JID) IsEmpty() bool {
	return j.Local == "" && j.Domain == ""
}

// BareAddress strips any resource suffix from an address without requiring
// it to parse fully. Used to derive a conversation key from a sender.
func BareAddress(addr string) string {
	if idx := strings.IndexByte(addr, '/'); idx >= 0 {
		return addr[:idx]
	}
	return addr
}
