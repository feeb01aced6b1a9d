// Copyright 2024-2026 Aiku AI

package connector

import (
	"testing"

	"maunium.net/go/mautrix/bridgev2/database"

	"github.com/aiku/mautrix-xmpp/pkg/xmppwire"
)

func TestConversationToChatInfoDirect(t *testing.T) {
	t.Parallel()
	_, client, _ := newConnectedTestClient("alice@example.org")

	convo := client.GetConversation(dmConversationID("bob@example.org"))
	info := client.conversationToChatInfo(convo)

	if info.Type == nil || *info.Type != database.RoomTypeDM {
		t.Error("expected a direct chat")
	}
	if string(info.Members.OtherUserID) != "bob@example.org" {
		t.Errorf("unexpected other user: %q", info.Members.OtherUserID)
	}
	if info.Name != nil {
		t.Error("expected direct chats not to carry a name")
	}
	if len(info.Members.MemberMap) != 2 {
		t.Errorf("expected both members, got %d", len(info.Members.MemberMap))
	}
	self, ok := info.Members.MemberMap[MakeUserID("alice@example.org")]
	if !ok || !self.IsFromMe {
		t.Error("expected own membership to be marked IsFromMe")
	}
}

func TestConversationToChatInfoRoom(t *testing.T) {
	t.Parallel()
	_, client, _ := newConnectedTestClient("alice@example.org")

	convo := client.GetConversation("project@muc.example.org")
	convo.Members["bob@example.org"] = struct{}{}
	info := client.conversationToChatInfo(convo)

	if info.Type == nil || *info.Type != database.RoomTypeDefault {
		t.Error("expected a default room")
	}
	if info.Name == nil || *info.Name != "project" {
		t.Errorf("unexpected room name: %v", info.Name)
	}
	if info.Members.OtherUserID != "" {
		t.Error("expected no single peer for a room")
	}
}

func TestContactToUserInfo(t *testing.T) {
	t.Parallel()
	_, client, _ := newConnectedTestClient("alice@example.org")

	info := client.contactToUserInfo(&xmppwire.Contact{
		ID:   "bob@example.org",
		Name: "Bobby",
	})
	if info.Name == nil || *info.Name != "Bobby (XMPP)" {
		t.Errorf("unexpected name: %v", info.Name)
	}
	if len(info.Identifiers) != 1 || info.Identifiers[0] != "xmpp:bob@example.org" {
		t.Errorf("unexpected identifiers: %v", info.Identifiers)
	}
	if info.Avatar != nil {
		t.Error("expected no avatar without a URL")
	}
}

func TestContactToUserInfoAvatar(t *testing.T) {
	t.Parallel()
	_, client, _ := newConnectedTestClient("alice@example.org")

	info := client.contactToUserInfo(&xmppwire.Contact{
		ID:        "bob@example.org",
		Name:      "Bobby",
		AvatarURL: "https://example.org/avatar.png",
	})
	if info.Avatar == nil {
		t.Fatal("expected an avatar")
	}
	if string(info.Avatar.ID) != "https://example.org/avatar.png" {
		t.Errorf("unexpected avatar id: %q", info.Avatar.ID)
	}
}

func TestConversationName(t *testing.T) {
	t.Parallel()
	tests := []struct {
		id   string
		want string
	}{
		{"project@muc.example.org", "project"},
		{"plain-name", "plain-name"},
		{"  padded  ", "padded"},
	}
	for _, tc := range tests {
		if got := conversationName(tc.id); got != tc.want {
			t.Errorf("conversationName(%q): got %q, want %q", tc.id, got, tc.want)
		}
	}
}

func TestSortEntries(t *testing.T) {
	t.Parallel()
	entries := []DirectoryEntry{
		{ID: "c@x.org"}, {ID: "a@x.org"}, {ID: "b@x.org"},
	}
	sortEntries(entries)
	if entries[0].ID != "a@x.org" || entries[2].ID != "c@x.org" {
		t.Errorf("unexpected order: %+v", entries)
	}
}
