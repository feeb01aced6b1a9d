// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"go.mau.fi/util/ptr"
	"maunium.net/go/mautrix/bridgev2"
	"maunium.net/go/mautrix/bridgev2/database"
	"maunium.net/go/mautrix/bridgev2/networkid"
	"maunium.net/go/mautrix/event"

	"github.com/aiku/mautrix-xmpp/pkg/xmppwire"
)

// conversationToChatInfo converts a conversation into bridge chat info.
// One-to-one conversations become direct chats keyed on the peer; anything
// else is a named room.
func (m *XMPPClient) conversationToChatInfo(convo *xmppwire.Conversation) *bridgev2.ChatInfo {
	memberIDs := m.memberIDs(convo.ID)
	members := &bridgev2.ChatMemberList{
		IsFull:           true,
		TotalMemberCount: len(memberIDs),
		MemberMap:        make(map[networkid.UserID]bridgev2.ChatMember, len(memberIDs)),
	}
	for _, id := range memberIDs {
		userID := MakeUserID(id)
		members.MemberMap[userID] = bridgev2.ChatMember{
			EventSender: bridgev2.EventSender{
				Sender:   userID,
				IsFromMe: id == m.jid.Bare(),
			},
			Membership: event.MembershipJoin,
		}
	}

	if peer := dmPeerAddress(convo.ID); peer != "" {
		members.OtherUserID = MakeUserID(peer)
		return &bridgev2.ChatInfo{
			Members: members,
			Type:    ptr.Ptr(database.RoomTypeDM),
		}
	}

	return &bridgev2.ChatInfo{
		Name:    ptr.Ptr(conversationName(convo.ID)),
		Members: members,
		Type:    ptr.Ptr(database.RoomTypeDefault),
	}
}

// contactToUserInfo converts a contact into bridge ghost info.
func (m *XMPPClient) contactToUserInfo(contact *xmppwire.Contact) *bridgev2.UserInfo {
	name := contact.Name
	local, domain := contact.ID, ""
	if jid, err := xmppwire.ParseJID(contact.ID); err == nil {
		local, domain = jid.Local, jid.Domain
	}
	info := &bridgev2.UserInfo{
		Name: ptr.Ptr(m.connector.Config.FormatDisplayname(DisplaynameParams{
			Local:  local,
			Domain: domain,
			Name:   name,
		})),
		Identifiers: []string{fmt.Sprintf("xmpp:%s", contact.ID)},
	}
	if contact.AvatarURL != "" {
		info.Avatar = makeAvatar(contact.AvatarURL)
	}
	return info
}

// makeAvatar builds a lazily fetched avatar from a plain HTTP URL.
func makeAvatar(url string) *bridgev2.Avatar {
	return &bridgev2.Avatar{
		ID: networkid.AvatarID(url),
		Get: func(ctx context.Context) ([]byte, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return nil, err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return nil, fmt.Errorf("unexpected status %d fetching avatar", resp.StatusCode)
			}
			return io.ReadAll(resp.Body)
		},
	}
}

// conversationName derives a readable room name from a conversation id.
// For room addresses that parse as JIDs the local part is used.
func conversationName(conversationID string) string {
	if jid, err := xmppwire.ParseJID(conversationID); err == nil && jid.Local != "" {
		return jid.Local
	}
	return strings.TrimSpace(conversationID)
}

// sortEntries orders directory entries by id for stable listings.
func sortEntries(entries []DirectoryEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ID < entries[j].ID
	})
}
