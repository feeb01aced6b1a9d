// Copyright 2024-2026 Aiku AI

package xmppwire

import (
	"sort"
	"time"
)

// Contact is an identity record for a remote user, keyed by bare address.
// The network offers no directory lookup, so records are usually
// synthesized from the bare identifier and refined later by
// ContactUpdateEvents.
type Contact struct {
	ID        string
	Name      string
	AvatarURL string
	CreatedAt time.Time
}

// Clone returns a copy of the contact, or nil for a nil receiver.
func (c *Contact) Clone() *Contact {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// Conversation is a room record keyed by a stable remote room identifier.
type Conversation struct {
	ID      string
	Members map[string]struct{}
}

// MemberIDs returns the member set as a sorted slice.
func (c *Conversation) MemberIDs() []string {
	ids := make([]string, 0, len(c.Members))
	for id := range c.Members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
