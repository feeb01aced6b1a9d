// Copyright 2024-2026 Aiku AI

package connector

import (
	"strconv"
	"strings"

	"maunium.net/go/mautrix/bridgev2/networkid"

	"github.com/aiku/mautrix-xmpp/pkg/xmppwire"
)

// dmPortalPrefix namespaces one-to-one conversations. These rooms are
// reached through identifier resolution, not room listing, so ListRooms
// filters them out.
const dmPortalPrefix = "dm-"

// MakePortalID creates a networkid.PortalID from a conversation identifier.
func MakePortalID(conversationID string) networkid.PortalID {
	return networkid.PortalID(conversationID)
}

// ParsePortalID extracts the conversation identifier from a PortalID.
func ParsePortalID(portalID networkid.PortalID) string {
	return string(portalID)
}

// MakeUserID creates a networkid.UserID from a bare remote address.
func MakeUserID(address string) networkid.UserID {
	return networkid.UserID(xmppwire.BareAddress(address))
}

// ParseUserID extracts the bare remote address from a networkid.UserID.
func ParseUserID(userID networkid.UserID) string {
	return string(userID)
}

// MakeMessageID creates a networkid.MessageID from a remote message id.
func MakeMessageID(messageID string) networkid.MessageID {
	return networkid.MessageID(messageID)
}

// ParseMessageID extracts the remote message id from a MessageID.
func ParseMessageID(messageID networkid.MessageID) string {
	return string(messageID)
}

// MakeMessagePartID creates a networkid.PartID for message parts.
func MakeMessagePartID(index int) networkid.PartID {
	if index == 0 {
		return ""
	}
	return networkid.PartID(strconv.Itoa(index))
}

// MakeUserLoginID creates a UserLoginID from a bare account address.
func MakeUserLoginID(address string) networkid.UserLoginID {
	return networkid.UserLoginID(xmppwire.BareAddress(address))
}

// ParseUserLoginID extracts the bare account address from a UserLoginID.
func ParseUserLoginID(loginID networkid.UserLoginID) string {
	return string(loginID)
}

// makePortalKey creates a networkid.PortalKey for a conversation.
func makePortalKey(conversationID string) networkid.PortalKey {
	return networkid.PortalKey{
		ID: MakePortalID(conversationID),
	}
}

// dmConversationID derives the conversation identifier for a one-to-one
// chat with the given address, stripping any resource suffix first.
func dmConversationID(address string) string {
	return dmPortalPrefix + xmppwire.BareAddress(address)
}

// isDMConversationID reports whether a conversation identifier is in the
// one-to-one namespace.
func isDMConversationID(conversationID string) bool {
	return strings.HasPrefix(conversationID, dmPortalPrefix)
}

// dmPeerAddress extracts the peer address from a one-to-one conversation
// identifier. Returns "" for non-DM identifiers.
func dmPeerAddress(conversationID string) string {
	if !isDMConversationID(conversationID) {
		return ""
	}
	return conversationID[len(dmPortalPrefix):]
}

// dedupChannel builds the suppression key for outbound echo tracking.
// One channel per (account, conversation) pair.
func dedupChannel(loginID networkid.UserLoginID, conversationID string) string {
	return string(loginID) + "\x1f" + conversationID
}
