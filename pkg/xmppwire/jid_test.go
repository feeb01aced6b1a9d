// Copyright 2024-2026 Aiku AI

package xmppwire

import "testing"

func TestParseJID(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want JID
	}{
		{"bare", "alice@example.org", JID{Local: "alice", Domain: "example.org"}},
		{"full", "alice@example.org/phone", JID{Local: "alice", Domain: "example.org", Resource: "phone"}},
		{"resource with slash", "alice@example.org/a/b", JID{Local: "alice", Domain: "example.org", Resource: "a/b"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseJID(tc.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestParseJIDMalformed(t *testing.T) {
	t.Parallel()
	for _, in := range []string{"", "no-at-sign", "@example.org", "alice@", "/resource-only"} {
		if _, err := ParseJID(in); err == nil {
			t.Errorf("expected error for %q", in)
		}
	}
}

func TestJIDStrings(t *testing.T) {
	t.Parallel()
	j := JID{Local: "alice", Domain: "example.org", Resource: "phone"}
	if j.Bare() != "alice@example.org" {
		t.Errorf("Bare: got %q", j.Bare())
	}
	if j.String() != "alice@example.org/phone" {
		t.Errorf("String: got %q", j.String())
	}
	bare := JID{Local: "alice", Domain: "example.org"}
	if bare.String() != "alice@example.org" {
		t.Errorf("bare String: got %q", bare.String())
	}
}

func TestJIDIsEmpty(t *testing.T) {
	t.Parallel()
	if !(JID{}).IsEmpty() {
		t.Error("expected zero JID to be empty")
	}
	if (JID{Local: "a", Domain: "b"}).IsEmpty() {
		t.Error("expected populated JID not to be empty")
	}
}

func TestBareAddress(t *testing.T) {
	t.Parallel()
	if got := BareAddress("alice@example.org/phone"); got != "alice@example.org" {
		t.Errorf("got %q", got)
	}
	if got := BareAddress("alice@example.org"); got != "alice@example.org" {
		t.Errorf("got %q", got)
	}
	if got := BareAddress(""); got != "" {
		t.Errorf("got %q", got)
	}
}
