// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.mau.fi/util/random"
	"maunium.net/go/mautrix/bridgev2"
	"maunium.net/go/mautrix/bridgev2/database"
	"maunium.net/go/mautrix/bridgev2/simplevent"
	"maunium.net/go/mautrix/event"

	"github.com/aiku/mautrix-xmpp/pkg/xmppwire"
)

// handleEvent dispatches an inbound remote event to the appropriate
// handler. Events arrive on a single stream per connection and are handled
// in arrival order.
func (m *XMPPClient) handleEvent(evt xmppwire.Event) {
	switch e := evt.(type) {
	case *xmppwire.MessageEvent:
		m.handleMessage(e)
	case *xmppwire.EditEvent:
		m.handleEdit(e)
	case *xmppwire.LocationEvent:
		m.handleLocation(e)
	case *xmppwire.FileEvent:
		m.handleFile(e)
	case *xmppwire.TypingEvent:
		m.handleTyping(e)
	case *xmppwire.PresenceEvent:
		m.handlePresence(e)
	case *xmppwire.ReceiptEvent:
		m.handleReceipt(e)
	case *xmppwire.ContactUpdateEvent:
		m.handleContactUpdate(e)
	default:
		m.log.Trace().Str("event_kind", fmt.Sprintf("%T", evt)).Msg("Unhandled event kind")
	}
}

// conversationFor derives the conversation identifier for an inbound
// event: the explicit room when present, otherwise the one-to-one
// conversation with the sender's bare address.
func (m *XMPPClient) conversationFor(room, from string) string {
	if room != "" {
		return room
	}
	return dmConversationID(from)
}

// noteMember records a sender into a conversation's member set.
func (m *XMPPClient) noteMember(conversationID, address string) {
	bare := xmppwire.BareAddress(address)
	if bare == "" {
		return
	}
	convo := m.GetConversation(conversationID)
	if convo == nil {
		return
	}
	m.cacheMu.Lock()
	convo.Members[bare] = struct{}{}
	m.cacheMu.Unlock()
}

// eventTimestamp defaults a missing remote timestamp to now.
func eventTimestamp(ts time.Time) time.Time {
	if ts.IsZero() {
		return time.Now()
	}
	return ts
}

// localMessageID synthesizes a message id for events the remote network
// did not assign one to.
func localMessageID() string {
	return "xmpp-local-" + random.String(16)
}

func (m *XMPPClient) handleMessage(e *xmppwire.MessageEvent) {
	sender := xmppwire.BareAddress(e.From)
	convoID := m.conversationFor(e.Room, e.From)
	m.GetContact(sender)
	m.noteMember(convoID, sender)

	// Echo suppression: a message this bridge just sent on behalf of the
	// Matrix side may come back on the inbound stream.
	if echoes := m.connector.echoesFor(m.loginID()); echoes != nil {
		if echoes.Dedupe(dedupChannel(m.loginID(), convoID), sender, e.ID, e.Body) {
			m.log.Debug().
				Str("conversation_id", convoID).
				Str("sender", sender).
				Msg("Suppressed echo of locally originated message")
			return
		}
	}

	if marker := m.connector.Config.QuoteMarker; marker != "" && strings.HasPrefix(e.Body, marker+" ") {
		// Quoted-reply reconstruction is not implemented yet; the body is
		// delivered as-is.
		m.log.Trace().Str("conversation_id", convoID).Msg("Inbound body carries a quote marker")
	}

	m.log.Debug().
		Str("message_id", e.ID).
		Str("conversation_id", convoID).
		Str("sender", sender).
		Msg("Received new message")

	msgID := e.ID
	if msgID == "" {
		msgID = localMessageID()
	}

	m.eventSender.QueueRemoteEvent(m.userLogin, &simplevent.Message[*xmppwire.MessageEvent]{
		EventMeta: simplevent.EventMeta{
			Type: bridgev2.RemoteEventMessage,
			LogContext: func(c zerolog.Context) zerolog.Context {
				return c.Str("message_id", e.ID).Str("conversation_id", convoID)
			},
			PortalKey: makePortalKey(convoID),
			Sender: bridgev2.EventSender{
				Sender:   MakeUserID(sender),
				IsFromMe: sender == m.jid.Bare(),
			},
			Timestamp:    eventTimestamp(e.Timestamp),
			CreatePortal: true,
		},
		ID:   MakeMessageID(msgID),
		Data: e,
		ConvertMessageFunc: func(_ context.Context, _ *bridgev2.Portal, _ bridgev2.MatrixAPI, data *xmppwire.MessageEvent) (*bridgev2.ConvertedMessage, error) {
			return m.convertMessageToMatrix(data.Body), nil
		},
	})
}

func (m *XMPPClient) handleEdit(e *xmppwire.EditEvent) {
	sender := xmppwire.BareAddress(e.From)
	convoID := m.conversationFor(e.Room, e.From)

	// A correction targeting a message the Matrix side just redacted is a
	// late reflection of that redaction; drop it.
	if redactions := m.connector.redactionsFor(m.loginID()); redactions != nil && redactions.Contains(e.TargetID) {
		m.log.Debug().
			Str("target_id", e.TargetID).
			Msg("Ignoring correction of recently redacted message")
		return
	}

	if echoes := m.connector.echoesFor(m.loginID()); echoes != nil {
		if echoes.Dedupe(dedupChannel(m.loginID(), convoID), sender, e.ID, e.Body) {
			m.log.Debug().
				Str("conversation_id", convoID).
				Msg("Suppressed echo of locally originated edit")
			return
		}
	}

	m.eventSender.QueueRemoteEvent(m.userLogin, &simplevent.Message[*xmppwire.EditEvent]{
		EventMeta: simplevent.EventMeta{
			Type: bridgev2.RemoteEventEdit,
			LogContext: func(c zerolog.Context) zerolog.Context {
				return c.Str("target_id", e.TargetID).Str("conversation_id", convoID)
			},
			PortalKey: makePortalKey(convoID),
			Sender: bridgev2.EventSender{
				Sender:   MakeUserID(sender),
				IsFromMe: sender == m.jid.Bare(),
			},
			Timestamp: eventTimestamp(e.Timestamp),
		},
		TargetMessage: MakeMessageID(e.TargetID),
		Data:          e,
		ConvertEditFunc: func(_ context.Context, _ *bridgev2.Portal, _ bridgev2.MatrixAPI, existing []*database.Message, data *xmppwire.EditEvent) (*bridgev2.ConvertedEdit, error) {
			return m.convertEditToMatrix(data.Body, existing), nil
		},
	})
}

func (m *XMPPClient) handleLocation(e *xmppwire.LocationEvent) {
	sender := xmppwire.BareAddress(e.From)
	convoID := m.conversationFor(e.Room, e.From)
	m.GetContact(sender)
	m.noteMember(convoID, sender)

	msgID := e.ID
	if msgID == "" {
		msgID = localMessageID()
	}
	geoURI := fmt.Sprintf("geo:%f,%f", e.Latitude, e.Longitude)

	m.eventSender.QueueRemoteEvent(m.userLogin, &simplevent.Message[*xmppwire.LocationEvent]{
		EventMeta: simplevent.EventMeta{
			Type: bridgev2.RemoteEventMessage,
			LogContext: func(c zerolog.Context) zerolog.Context {
				return c.Str("message_id", e.ID).Str("conversation_id", convoID)
			},
			PortalKey: makePortalKey(convoID),
			Sender: bridgev2.EventSender{
				Sender: MakeUserID(sender),
			},
			Timestamp:    eventTimestamp(e.Timestamp),
			CreatePortal: true,
		},
		ID:   MakeMessageID(msgID),
		Data: e,
		ConvertMessageFunc: func(_ context.Context, _ *bridgev2.Portal, _ bridgev2.MatrixAPI, _ *xmppwire.LocationEvent) (*bridgev2.ConvertedMessage, error) {
			return &bridgev2.ConvertedMessage{
				Parts: []*bridgev2.ConvertedMessagePart{{
					Type: event.EventMessage,
					Content: &event.MessageEventContent{
						MsgType: event.MsgLocation,
						Body:    geoURI,
						GeoURI:  geoURI,
					},
				}},
			}, nil
		},
	})
}

func (m *XMPPClient) handleFile(e *xmppwire.FileEvent) {
	sender := xmppwire.BareAddress(e.From)
	convoID := m.conversationFor(e.Room, e.From)
	m.GetContact(sender)
	m.noteMember(convoID, sender)

	if echoes := m.connector.echoesFor(m.loginID()); echoes != nil {
		if echoes.Dedupe(dedupChannel(m.loginID(), convoID), sender, e.ID, e.URL) {
			m.log.Debug().
				Str("conversation_id", convoID).
				Msg("Suppressed echo of locally originated file share")
			return
		}
	}

	msgID := e.ID
	if msgID == "" {
		msgID = localMessageID()
	}

	m.eventSender.QueueRemoteEvent(m.userLogin, &simplevent.Message[*xmppwire.FileEvent]{
		EventMeta: simplevent.EventMeta{
			Type: bridgev2.RemoteEventMessage,
			LogContext: func(c zerolog.Context) zerolog.Context {
				return c.Str("message_id", e.ID).Str("conversation_id", convoID)
			},
			PortalKey: makePortalKey(convoID),
			Sender: bridgev2.EventSender{
				Sender:   MakeUserID(sender),
				IsFromMe: sender == m.jid.Bare(),
			},
			Timestamp:    eventTimestamp(e.Timestamp),
			CreatePortal: true,
		},
		ID:   MakeMessageID(msgID),
		Data: e,
		ConvertMessageFunc: func(_ context.Context, _ *bridgev2.Portal, _ bridgev2.MatrixAPI, data *xmppwire.FileEvent) (*bridgev2.ConvertedMessage, error) {
			return m.convertFileToMatrix(data), nil
		},
	})
}

func (m *XMPPClient) handleTyping(e *xmppwire.TypingEvent) {
	sender := xmppwire.BareAddress(e.From)
	if sender == m.jid.Bare() {
		return
	}
	convoID := m.conversationFor(e.Room, e.From)

	timeout := m.connector.Config.TypingTimeout
	if timeout <= 0 {
		timeout = 5
	}
	var duration time.Duration
	if e.Active {
		duration = time.Duration(timeout) * time.Second
	}

	m.eventSender.QueueRemoteEvent(m.userLogin, &simplevent.Typing{
		EventMeta: simplevent.EventMeta{
			Type:      bridgev2.RemoteEventTyping,
			PortalKey: makePortalKey(convoID),
			Sender: bridgev2.EventSender{
				Sender: MakeUserID(sender),
			},
		},
		Timeout: duration,
	})
}

// handlePresence records availability on the cached contact. Presence is
// not forwarded to Matrix; the exact field mapping is still unconfirmed.
func (m *XMPPClient) handlePresence(e *xmppwire.PresenceEvent) {
	sender := xmppwire.BareAddress(e.From)
	m.GetContact(sender)
	m.log.Debug().
		Str("sender", sender).
		Bool("available", e.Available).
		Str("status", e.Status).
		Msg("Presence update")
}

func (m *XMPPClient) handleReceipt(e *xmppwire.ReceiptEvent) {
	sender := xmppwire.BareAddress(e.From)
	convoID := m.conversationFor(e.Room, e.From)

	m.eventSender.QueueRemoteEvent(m.userLogin, &simplevent.Receipt{
		EventMeta: simplevent.EventMeta{
			Type:      bridgev2.RemoteEventReadReceipt,
			PortalKey: makePortalKey(convoID),
			Sender: bridgev2.EventSender{
				Sender:   MakeUserID(sender),
				IsFromMe: sender == m.jid.Bare(),
			},
		},
		LastTarget: MakeMessageID(e.MessageID),
	})
}

// handleContactUpdate forwards a revised contact profile only when the
// canonical projection (name, avatar) actually changed, or unconditionally
// on first sighting.
func (m *XMPPClient) handleContactUpdate(e *xmppwire.ContactUpdateEvent) {
	if e.New == nil || e.New.ID == "" {
		m.log.Warn().Msg("Contact update without new snapshot")
		return
	}
	m.storeContact(e.New.Clone())

	if e.Old != nil && e.Old.Name == e.New.Name && e.Old.AvatarURL == e.New.AvatarURL {
		m.log.Debug().Str("contact_id", e.New.ID).Msg("Contact update with no visible change")
		return
	}

	m.ghosts.UpdateGhost(context.Background(), MakeUserID(e.New.ID), m.contactToUserInfo(e.New))
}
