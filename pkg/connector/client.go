// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package connector

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/bridgev2"
	"maunium.net/go/mautrix/bridgev2/networkid"
	"maunium.net/go/mautrix/bridgev2/status"
	"maunium.net/go/mautrix/event"

	"github.com/aiku/mautrix-xmpp/pkg/xmppwire"
)

// dialFunc builds transports for accounts.
type dialFunc = xmppwire.DialFunc

// remoteEventSender is an interface for queuing remote events. This allows
// tests to inject a mock instead of requiring a full bridgev2.Bridge.
type remoteEventSender interface {
	QueueRemoteEvent(login *bridgev2.UserLogin, evt bridgev2.RemoteEvent)
}

// bridgeEventSender is the production implementation that delegates to the bridge.
type bridgeEventSender struct {
	bridge *bridgev2.Bridge
}

func (b *bridgeEventSender) QueueRemoteEvent(login *bridgev2.UserLogin, evt bridgev2.RemoteEvent) {
	b.bridge.QueueRemoteEvent(login, evt)
}

// ghostSyncer pushes revised contact profiles to the Matrix side. Mockable
// for the same reason as remoteEventSender.
type ghostSyncer interface {
	UpdateGhost(ctx context.Context, userID networkid.UserID, info *bridgev2.UserInfo)
}

type bridgeGhostSyncer struct {
	bridge *bridgev2.Bridge
	log    zerolog.Logger
}

func (b *bridgeGhostSyncer) UpdateGhost(ctx context.Context, userID networkid.UserID, info *bridgev2.UserInfo) {
	ghost, err := b.bridge.GetGhostByID(ctx, userID)
	if err != nil {
		b.log.Warn().Err(err).Str("user_id", string(userID)).Msg("Failed to get ghost for contact update")
		return
	}
	ghost.UpdateInfo(ctx, info)
}

// XMPPClient owns one authenticated remote session for an account. It
// drives the transport lifecycle, keeps the lazily populated contact and
// conversation caches, and feeds the inbound event stream to the router.
type XMPPClient struct {
	connector   *XMPPConnector
	userLogin   *bridgev2.UserLogin
	eventSender remoteEventSender
	ghosts      ghostSyncer

	transport xmppwire.Transport
	jid       xmppwire.JID

	cacheMu  sync.Mutex
	contacts map[string]*xmppwire.Contact
	convos   map[string]*xmppwire.Conversation

	stopOnce sync.Once
	stopChan chan struct{}
	log      zerolog.Logger
}

var (
	_ bridgev2.NetworkAPI                      = (*XMPPClient)(nil)
	_ bridgev2.EditHandlingNetworkAPI          = (*XMPPClient)(nil)
	_ bridgev2.RedactionHandlingNetworkAPI     = (*XMPPClient)(nil)
	_ bridgev2.ReadReceiptHandlingNetworkAPI   = (*XMPPClient)(nil)
	_ bridgev2.TypingHandlingNetworkAPI        = (*XMPPClient)(nil)
	_ bridgev2.IdentifierResolvingNetworkAPI   = (*XMPPClient)(nil)
)

// NewXMPPClient creates a new client from an existing user login.
func NewXMPPClient(login *bridgev2.UserLogin, connector *XMPPConnector) *XMPPClient {
	log := login.Log.With().Str("component", "xmpp_client").Logger()
	xc := &XMPPClient{
		connector:   connector,
		userLogin:   login,
		eventSender: connector.eventSender,
		ghosts:      connector.ghosts,
		contacts:    make(map[string]*xmppwire.Contact),
		convos:      make(map[string]*xmppwire.Conversation),
		stopChan:    make(chan struct{}),
		log:         log,
	}
	if xc.eventSender == nil {
		xc.eventSender = &bridgeEventSender{bridge: connector.Bridge}
	}
	if xc.ghosts == nil {
		xc.ghosts = &bridgeGhostSyncer{bridge: connector.Bridge, log: log}
	}
	if meta := getLoginMeta(login); meta != nil {
		if jid, err := xmppwire.ParseJID(meta.JID); err == nil {
			xc.jid = jid
		}
	}
	return xc
}

func (m *XMPPClient) loginID() networkid.UserLoginID {
	return m.userLogin.ID
}

// Connect implements bridgev2.NetworkAPI. It does not return an error;
// connection errors are reported via BridgeState and recovered through the
// scheduled reconnect cycle.
func (m *XMPPClient) Connect(ctx context.Context) {
	meta := getLoginMeta(m.userLogin)
	if meta == nil || meta.JID == "" || meta.Password == "" {
		m.log.Warn().Msg("Login has no stored credentials")
		m.connector.announce(m.userLogin, status.BridgeState{
			StateEvent: status.StateBadCredentials,
			Error:      "xmpp-no-credentials",
			Message:    "No stored credentials for this account",
		})
		return
	}

	jid, err := xmppwire.ParseJID(meta.JID)
	if err != nil {
		m.log.Error().Err(err).Msg("Stored account address does not parse")
		m.connector.announce(m.userLogin, status.BridgeState{
			StateEvent: status.StateBadCredentials,
			Error:      "xmpp-bad-address",
			Message:    "Stored account address is malformed",
		})
		return
	}
	if jid.Resource == "" {
		jid.Resource = meta.Resource
	}
	if jid.Resource == "" {
		jid.Resource = m.connector.Config.DefaultResource
	}
	m.jid = jid

	// Register as the account's single live session. Any previous session
	// for this id is disconnected first.
	m.connector.adoptSession(m)

	m.log.Info().Str("jid", jid.Bare()).Msg("Connecting to XMPP")

	dial := m.connector.dial
	if dial == nil {
		dial = xmppwire.Dial
	}
	transport := dial(xmppwire.Account{
		JID:      jid,
		Password: meta.Password,
		State:    []byte(meta.State),
	}, m.log)

	if err := transport.Connect(ctx); err != nil {
		m.connector.handleConnectFailure(ctx, m.userLogin, err)
		return
	}

	// The account may have been stopped or replaced while the connect was
	// in flight; a late success is discarded rather than installed.
	if !m.connector.sessionAlive(m) {
		m.log.Debug().Msg("Discarding connect result for stopped session")
		transport.Disconnect()
		return
	}
	m.transport = transport

	m.connector.markConnected(ctx, m.userLogin, transport.State())

	if err := transport.SendPresence(ctx, ""); err != nil && err != xmppwire.ErrUnsupported {
		m.log.Warn().Err(err).Msg("Failed to send initial presence")
	}

	go m.listenEvents(transport)
}

// listenEvents consumes the transport's single inbound stream in arrival
// order until the client stops or the stream dies.
func (m *XMPPClient) listenEvents(transport xmppwire.Transport) {
	for {
		select {
		case <-m.stopChan:
			return
		case evt, ok := <-transport.Events():
			if !ok {
				select {
				case <-m.stopChan:
					// Local disconnect closed the stream.
				default:
					m.log.Warn().Msg("Event stream closed by remote")
					m.connector.handleRuntimeError(context.Background(), m.userLogin, xmppwire.ErrUnexpectedStatus)
				}
				return
			}
			if evt == nil {
				continue
			}
			if errEvt, isErr := evt.(*xmppwire.ErrorEvent); isErr {
				m.connector.handleRuntimeError(context.Background(), m.userLogin, errEvt.Err)
				return
			}
			m.handleEvent(evt)
		}
	}
}

// Disconnect closes the transport and stops the client's event loop.
// Safe to call when not connected, and safe to call twice.
func (m *XMPPClient) Disconnect() {
	m.stopOnce.Do(func() {
		close(m.stopChan)
	})
	if m.transport != nil {
		m.transport.Disconnect()
		m.transport = nil
	}
}

// IsLoggedIn reports whether the login carries stored credentials.
func (m *XMPPClient) IsLoggedIn() bool {
	meta := getLoginMeta(m.userLogin)
	return meta != nil && meta.JID != "" && meta.Password != ""
}

func (m *XMPPClient) LogoutRemote(_ context.Context) {
	m.connector.DeleteAccount(m.loginID())
}

// IsThisUser reports whether the given network user ID matches this
// client's own account.
func (m *XMPPClient) IsThisUser(_ context.Context, userID networkid.UserID) bool {
	return string(userID) == m.jid.Bare()
}

// GetContact returns the cached contact for a bare address, synthesizing
// and caching a minimal record on first reference. The network offers no
// directory lookup, so synthesis never fails for a well-formed id.
func (m *XMPPClient) GetContact(address string) *xmppwire.Contact {
	bare := xmppwire.BareAddress(address)
	if bare == "" {
		return nil
	}
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	if c, ok := m.contacts[bare]; ok {
		return c
	}
	jid, err := xmppwire.ParseJID(bare)
	name := bare
	if err == nil {
		name = jid.Local
	}
	c := &xmppwire.Contact{
		ID:        bare,
		Name:      name,
		CreatedAt: time.Now(),
	}
	m.contacts[bare] = c
	return c
}

// cachedContact returns the contact for a bare address without
// synthesizing, or nil.
func (m *XMPPClient) cachedContact(address string) *xmppwire.Contact {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	return m.contacts[xmppwire.BareAddress(address)]
}

// storeContact replaces the cache entry for a contact.
func (m *XMPPClient) storeContact(c *xmppwire.Contact) {
	if c == nil || c.ID == "" {
		return
	}
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	m.contacts[c.ID] = c
}

// GetConversation returns the cached conversation for an identifier,
// synthesizing and caching a minimal record on first reference. One-to-one
// identifiers get the peer and the account itself as members.
func (m *XMPPClient) GetConversation(conversationID string) *xmppwire.Conversation {
	if conversationID == "" {
		return nil
	}
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	if c, ok := m.convos[conversationID]; ok {
		return c
	}
	c := &xmppwire.Conversation{
		ID:      conversationID,
		Members: make(map[string]struct{}),
	}
	if peer := dmPeerAddress(conversationID); peer != "" {
		c.Members[xmppwire.BareAddress(peer)] = struct{}{}
		if !m.jid.IsEmpty() {
			c.Members[m.jid.Bare()] = struct{}{}
		}
	}
	m.convos[conversationID] = c
	return c
}

// memberIDs snapshots a conversation's member set under the cache lock.
// The inbound event loop mutates the member map concurrently, so callers
// must never read it directly. Returns nil for unknown conversations.
func (m *XMPPClient) memberIDs(conversationID string) []string {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	convo, ok := m.convos[conversationID]
	if !ok {
		return nil
	}
	return convo.MemberIDs()
}

// contactEntries snapshots the contact cache as (id, name) pairs.
func (m *XMPPClient) contactEntries() []DirectoryEntry {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	entries := make([]DirectoryEntry, 0, len(m.contacts))
	for _, c := range m.contacts {
		entries = append(entries, DirectoryEntry{ID: c.ID, DisplayName: c.Name})
	}
	sortEntries(entries)
	return entries
}

// conversationEntries snapshots the conversation cache, excluding the
// one-to-one namespace.
func (m *XMPPClient) conversationEntries() []DirectoryEntry {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	entries := make([]DirectoryEntry, 0, len(m.convos))
	for _, c := range m.convos {
		if isDMConversationID(c.ID) {
			continue
		}
		entries = append(entries, DirectoryEntry{ID: c.ID, DisplayName: conversationName(c.ID)})
	}
	sortEntries(entries)
	return entries
}

func (m *XMPPClient) GetChatInfo(_ context.Context, portal *bridgev2.Portal) (*bridgev2.ChatInfo, error) {
	convo := m.GetConversation(ParsePortalID(portal.ID))
	if convo == nil {
		return nil, nil
	}
	return m.conversationToChatInfo(convo), nil
}

func (m *XMPPClient) GetUserInfo(_ context.Context, ghost *bridgev2.Ghost) (*bridgev2.UserInfo, error) {
	contact := m.GetContact(ParseUserID(ghost.ID))
	if contact == nil {
		return nil, nil
	}
	return m.contactToUserInfo(contact), nil
}

// ResolveIdentifier resolves a bare remote address to a user and,
// optionally, the one-to-one conversation with them.
func (m *XMPPClient) ResolveIdentifier(ctx context.Context, identifier string, createChat bool) (*bridgev2.ResolveIdentifierResponse, error) {
	jid, err := xmppwire.ParseJID(identifier)
	if err != nil {
		return nil, err
	}
	contact := m.GetContact(jid.Bare())
	resp := &bridgev2.ResolveIdentifierResponse{
		UserID:   MakeUserID(jid.Bare()),
		UserInfo: m.contactToUserInfo(contact),
	}
	if m.connector.Bridge != nil && m.connector.Bridge.DB != nil {
		ghost, err := m.connector.Bridge.GetGhostByID(ctx, resp.UserID)
		if err == nil {
			resp.Ghost = ghost
		}
	}
	if createChat {
		convoID := dmConversationID(jid.Bare())
		convo := m.GetConversation(convoID)
		resp.Chat = &bridgev2.CreateChatResponse{
			PortalKey:  makePortalKey(convoID),
			PortalInfo: m.conversationToChatInfo(convo),
		}
	}
	return resp, nil
}

func (m *XMPPClient) GetCapabilities(_ context.Context, _ *bridgev2.Portal) *event.RoomFeatures {
	return &event.RoomFeatures{
		Formatting: event.FormattingFeatureMap{
			event.FmtBold:          event.CapLevelFullySupported,
			event.FmtItalic:        event.CapLevelFullySupported,
			event.FmtStrikethrough: event.CapLevelFullySupported,
			event.FmtInlineCode:    event.CapLevelFullySupported,
			event.FmtCodeBlock:     event.CapLevelFullySupported,
			event.FmtBlockquote:    event.CapLevelFullySupported,
			event.FmtInlineLink:    event.CapLevelFullySupported,
		},
		File: event.FileFeatureMap{
			event.MsgImage: {
				MimeTypes: map[string]event.CapabilitySupportLevel{
					"image/*": event.CapLevelFullySupported,
				},
				MaxSize: 10 * 1024 * 1024,
			},
			event.MsgAudio: {
				MimeTypes: map[string]event.CapabilitySupportLevel{
					"audio/*": event.CapLevelFullySupported,
				},
				MaxSize: 10 * 1024 * 1024,
			},
			event.MsgFile: {
				MimeTypes: map[string]event.CapabilitySupportLevel{
					"*/*": event.CapLevelFullySupported,
				},
				MaxSize: 10 * 1024 * 1024,
			},
		},
		MaxTextLength:       65536,
		Reply:               event.CapLevelFullySupported,
		Edit:                event.CapLevelFullySupported,
		Delete:              event.CapLevelFullySupported,
		ReadReceipts:        true,
		TypingNotifications: true,
	}
}
