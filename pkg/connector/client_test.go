// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package connector

import (
	"context"
	"testing"
	"time"

	"maunium.net/go/mautrix/bridgev2/database"

	"github.com/aiku/mautrix-xmpp/pkg/xmppwire"
)

func TestConnectInstallsSession(t *testing.T) {
	t.Parallel()
	xc, client, transport := newConnectedTestClient("alice@example.org")

	if client.transport == nil {
		t.Fatal("expected transport to be installed")
	}
	if !xc.sessionAlive(client) {
		t.Error("expected session to be alive after connect")
	}
	if transport.Disconnects() != 0 {
		t.Error("expected connection to stay up")
	}
	if client.jid.Bare() != "alice@example.org" {
		t.Errorf("unexpected jid: %q", client.jid.Bare())
	}
}

func TestConnectWithoutCredentials(t *testing.T) {
	t.Parallel()
	dialer := &fakeDialer{}
	xc := newTestConnector(dialer)
	login := newTestLogin("alice@example.org", "")

	xc.CreateAccount(context.Background(), login)

	if dialer.Dials() != 0 {
		t.Error("expected no dial without stored credentials")
	}
}

func TestConnectWithMalformedAddress(t *testing.T) {
	t.Parallel()
	dialer := &fakeDialer{}
	xc := newTestConnector(dialer)
	login := newTestLogin("not-a-jid", "hunter2")

	xc.CreateAccount(context.Background(), login)

	if dialer.Dials() != 0 {
		t.Error("expected no dial for a malformed address")
	}
}

func TestDisconnectIsSafeTwice(t *testing.T) {
	t.Parallel()
	_, client, transport := newConnectedTestClient("alice@example.org")

	client.Disconnect()
	client.Disconnect()

	if transport.Disconnects() != 1 {
		t.Errorf("expected exactly one transport disconnect, got %d", transport.Disconnects())
	}
}

func TestDisconnectWithoutConnect(t *testing.T) {
	t.Parallel()
	xc := newTestConnector(nil)
	login := newTestLogin("alice@example.org", "hunter2")
	client := NewXMPPClient(login, xc)

	// Must not panic with no transport installed.
	client.Disconnect()
}

func TestIsThisUser(t *testing.T) {
	t.Parallel()
	_, client, _ := newConnectedTestClient("alice@example.org")

	if !client.IsThisUser(context.Background(), MakeUserID("alice@example.org")) {
		t.Error("expected own bare address to match")
	}
	if client.IsThisUser(context.Background(), MakeUserID("bob@example.org")) {
		t.Error("expected other address not to match")
	}
}

func TestGetContactSynthesizesAndCaches(t *testing.T) {
	t.Parallel()
	_, client, _ := newConnectedTestClient("alice@example.org")

	c1 := client.GetContact("bob@example.org/phone")
	if c1 == nil {
		t.Fatal("expected a synthesized contact")
	}
	if c1.ID != "bob@example.org" {
		t.Errorf("expected resource to be stripped, got %q", c1.ID)
	}
	if c1.Name != "bob" {
		t.Errorf("expected local part as name, got %q", c1.Name)
	}
	if c1.CreatedAt.IsZero() {
		t.Error("expected creation time to be set")
	}

	c2 := client.GetContact("bob@example.org")
	if c1 != c2 {
		t.Error("expected the cached contact to be returned")
	}
}

func TestGetContactEmptyAddress(t *testing.T) {
	t.Parallel()
	_, client, _ := newConnectedTestClient("alice@example.org")
	if client.GetContact("") != nil {
		t.Error("expected nil for empty address")
	}
}

func TestGetConversationDirectMembers(t *testing.T) {
	t.Parallel()
	_, client, _ := newConnectedTestClient("alice@example.org")

	convo := client.GetConversation(dmConversationID("bob@example.org"))
	if convo == nil {
		t.Fatal("expected a synthesized conversation")
	}
	members := convo.MemberIDs()
	if len(members) != 2 {
		t.Fatalf("expected both participants, got %v", members)
	}
}

func TestGetConversationRoomStartsEmpty(t *testing.T) {
	t.Parallel()
	_, client, _ := newConnectedTestClient("alice@example.org")

	convo := client.GetConversation("room@muc.example.org")
	if convo == nil {
		t.Fatal("expected a synthesized conversation")
	}
	if len(convo.MemberIDs()) != 0 {
		t.Errorf("expected no members before any are seen, got %v", convo.MemberIDs())
	}
}

func TestResolveIdentifier(t *testing.T) {
	t.Parallel()
	_, client, _ := newConnectedTestClient("alice@example.org")

	resp, err := client.ResolveIdentifier(context.Background(), "bob@example.org", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp.UserID) != "bob@example.org" {
		t.Errorf("unexpected user id: %q", resp.UserID)
	}
	if resp.UserInfo == nil || resp.UserInfo.Name == nil {
		t.Fatal("expected user info with a name")
	}
	if *resp.UserInfo.Name != "bob (XMPP)" {
		t.Errorf("unexpected display name: %q", *resp.UserInfo.Name)
	}
	if resp.Chat != nil {
		t.Error("expected no chat without createChat")
	}
}

func TestResolveIdentifierCreateChat(t *testing.T) {
	t.Parallel()
	_, client, _ := newConnectedTestClient("alice@example.org")

	resp, err := client.ResolveIdentifier(context.Background(), "bob@example.org", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Chat == nil {
		t.Fatal("expected a chat response")
	}
	if string(resp.Chat.PortalKey.ID) != dmConversationID("bob@example.org") {
		t.Errorf("unexpected portal id: %q", resp.Chat.PortalKey.ID)
	}
	info := resp.Chat.PortalInfo
	if info == nil || info.Members == nil {
		t.Fatal("expected portal info with members")
	}
	if string(info.Members.OtherUserID) != "bob@example.org" {
		t.Errorf("unexpected other user: %q", info.Members.OtherUserID)
	}
	if info.Type == nil || *info.Type != database.RoomTypeDM {
		t.Error("expected the portal to be a direct chat")
	}
}

func TestResolveIdentifierMalformed(t *testing.T) {
	t.Parallel()
	_, client, _ := newConnectedTestClient("alice@example.org")

	if _, err := client.ResolveIdentifier(context.Background(), "no-domain", false); err == nil {
		t.Error("expected an error for a malformed identifier")
	}
}

func TestIsLoggedIn(t *testing.T) {
	t.Parallel()
	xc := newTestConnector(nil)

	withCreds := NewXMPPClient(newTestLogin("alice@example.org", "pw"), xc)
	if !withCreds.IsLoggedIn() {
		t.Error("expected login with credentials to count as logged in")
	}

	withoutCreds := NewXMPPClient(newTestLogin("alice@example.org", ""), xc)
	if withoutCreds.IsLoggedIn() {
		t.Error("expected login without password not to count as logged in")
	}
}

func TestListenEventsStopsOnErrorEvent(t *testing.T) {
	t.Parallel()
	xc, client, transport := newConnectedTestClient("alice@example.org")
	xc.reconnectDelay = time.Hour

	transport.Inject <- &xmppwire.ErrorEvent{Err: xmppwire.ErrUnexpectedStatus}

	ok := waitFor(t, time.Second, func() bool {
		s := xc.sessionFor(client.loginID())
		return s != nil && s.restarting
	})
	if !ok {
		t.Error("expected an error event to trigger the restart cycle")
	}
}

func TestListenEventsStreamClosedByRemote(t *testing.T) {
	t.Parallel()
	xc, client, transport := newConnectedTestClient("alice@example.org")
	xc.reconnectDelay = time.Hour

	close(transport.Inject)

	ok := waitFor(t, time.Second, func() bool {
		s := xc.sessionFor(client.loginID())
		return s != nil && s.restarting
	})
	if !ok {
		t.Error("expected a closed stream to trigger the restart cycle")
	}
}
