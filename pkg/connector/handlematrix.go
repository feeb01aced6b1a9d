// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package connector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"maunium.net/go/mautrix/bridgev2"
	"maunium.net/go/mautrix/bridgev2/database"
	"maunium.net/go/mautrix/event"

	"github.com/aiku/mautrix-xmpp/pkg/xmppwire"
)

// sendTarget maps a portal's conversation id to the wire-level destination:
// the peer address for one-to-one chats, the room address otherwise.
func sendTarget(conversationID string) string {
	if peer := dmPeerAddress(conversationID); peer != "" {
		return peer
	}
	return conversationID
}

// lockEcho registers a pending outbound send so the inbound path can
// suppress its reflection. Returns two finalizers: unlock, called with the
// id a successful send produced, and discard, called when the send failed
// so the entry cannot swallow a genuine inbound message later. All three
// halves are nil-safe for sessions without dedup state.
func (m *XMPPClient) lockEcho(conversationID, content string) (unlock func(id string), discard func()) {
	echoes := m.connector.echoesFor(m.loginID())
	if echoes == nil {
		return func(string) {}, func() {}
	}
	channel := dedupChannel(m.loginID(), conversationID)
	sender := m.jid.Bare()
	echoes.Lock(channel, sender, content)
	return func(id string) {
			echoes.Unlock(channel, sender, id)
		}, func() {
			echoes.Discard(channel, sender)
		}
}

// HandleMatrixMessage sends a Matrix message to the remote network.
func (m *XMPPClient) HandleMatrixMessage(ctx context.Context, msg *bridgev2.MatrixMessage) (*bridgev2.MatrixMessageResponse, error) {
	if !m.IsLoggedIn() {
		return nil, bridgev2.ErrNotLoggedIn
	}
	if m.transport == nil {
		return nil, bridgev2.ErrNotLoggedIn
	}

	convoID := ParsePortalID(msg.Portal.ID)
	target := sendTarget(convoID)
	content := msg.Content

	switch content.MsgType {
	case event.MsgText, event.MsgNotice, event.MsgEmote:
		body := matrixfmtParse(content)
		if content.MsgType == event.MsgEmote {
			body = "/me " + body
		}
		if msg.ReplyTo != nil {
			body = m.formatReply(msg.ReplyTo, body)
		}
		return m.sendText(ctx, convoID, target, body)

	case event.MsgImage, event.MsgVideo, event.MsgAudio, event.MsgFile:
		return m.sendMedia(ctx, msg, convoID, target)

	default:
		return nil, fmt.Errorf("unsupported message type: %s", content.MsgType)
	}
}

func (m *XMPPClient) sendText(ctx context.Context, convoID, target, body string) (*bridgev2.MatrixMessageResponse, error) {
	unlock, discard := m.lockEcho(convoID, body)
	id, err := m.transport.SendMessage(ctx, target, body)
	if err != nil {
		discard()
		return nil, fmt.Errorf("failed to send message: %w", err)
	}
	unlock(id)
	if id == "" {
		// The network assigned no id; the dedup entry stays content
		// matchable and the database row gets a synthesized id.
		id = localMessageID()
	}
	return m.matrixMessageResponse(id, &MessageMetadata{Body: body}), nil
}

func (m *XMPPClient) sendMedia(ctx context.Context, msg *bridgev2.MatrixMessage, convoID, target string) (*bridgev2.MatrixMessageResponse, error) {
	content := msg.Content
	data, err := msg.Portal.Bridge.Bot.DownloadMedia(ctx, content.URL, content.File)
	if err != nil {
		return nil, fmt.Errorf("failed to download Matrix media: %w", err)
	}
	filename := content.GetFileName()
	if filename == "" {
		filename = "upload"
	}
	mimeType := ""
	if content.Info != nil {
		mimeType = content.Info.MimeType
	}

	id, err := m.transport.SendMedia(ctx, target, xmppwire.Media{
		Name:     filename,
		MimeType: mimeType,
		Data:     data,
	})
	if errors.Is(err, xmppwire.ErrUnsupported) {
		// No upload path on this connection; fall back to announcing the
		// file by name so the conversation stays coherent.
		return m.sendText(ctx, convoID, target, "Sent a file: "+filename)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to send media: %w", err)
	}
	if id == "" {
		id = localMessageID()
	}
	return m.matrixMessageResponse(id, &MessageMetadata{FileName: filename}), nil
}

func (m *XMPPClient) matrixMessageResponse(id string, meta *MessageMetadata) *bridgev2.MatrixMessageResponse {
	return &bridgev2.MatrixMessageResponse{
		DB: &database.Message{
			ID:       MakeMessageID(id),
			SenderID: MakeUserID(m.jid.Bare()),
			Metadata: meta,
		},
	}
}

// formatReply prepends the replied-to message as a quote block. The quoted
// text comes from the stored remote-side body of the target, so no refetch
// is needed; a target without stored metadata is sent unquoted.
func (m *XMPPClient) formatReply(replyTo *database.Message, body string) string {
	meta, _ := replyTo.Metadata.(*MessageMetadata)
	if meta == nil {
		return body
	}
	quoted := meta.Body
	if quoted == "" && meta.FileName != "" {
		quoted = renderFileBody(meta.FileName, meta.FileURL)
	}
	if quoted == "" {
		return body
	}

	marker := m.connector.Config.QuoteMarker
	if marker == "" {
		marker = ">"
	}
	lines := strings.Split(quoted, "\n")
	for i, line := range lines {
		lines[i] = marker + " " + line
	}
	return strings.Join(lines, "\n") + "\n" + body
}

// HandleMatrixEdit sends a Matrix edit as a correction.
func (m *XMPPClient) HandleMatrixEdit(ctx context.Context, msg *bridgev2.MatrixEdit) error {
	if !m.IsLoggedIn() || m.transport == nil {
		return bridgev2.ErrNotLoggedIn
	}

	convoID := ParsePortalID(msg.Portal.ID)
	target := sendTarget(convoID)
	targetID := ParseMessageID(msg.EditTarget.ID)
	body := matrixfmtParse(msg.Content)

	unlock, discard := m.lockEcho(convoID, body)
	id, err := m.transport.SendEdit(ctx, target, targetID, body)
	if err != nil {
		discard()
		return fmt.Errorf("failed to send edit: %w", err)
	}
	unlock(id)

	if meta, ok := msg.EditTarget.Metadata.(*MessageMetadata); ok {
		meta.Body = body
	}
	return nil
}

// HandleMatrixMessageRemove sends a Matrix redaction as a retraction. The
// target id is remembered for a short window so the remote network's late
// reflections of the retraction are not replayed into the room.
func (m *XMPPClient) HandleMatrixMessageRemove(ctx context.Context, msg *bridgev2.MatrixMessageRemove) error {
	if !m.IsLoggedIn() || m.transport == nil {
		return bridgev2.ErrNotLoggedIn
	}

	convoID := ParsePortalID(msg.Portal.ID)
	targetID := ParseMessageID(msg.TargetMessage.ID)

	if _, err := m.transport.SendRetraction(ctx, sendTarget(convoID), targetID); err != nil {
		return fmt.Errorf("failed to send retraction: %w", err)
	}
	if redactions := m.connector.redactionsFor(m.loginID()); redactions != nil {
		redactions.Add(targetID)
	}
	return nil
}

// HandleMatrixTyping forwards a Matrix typing state change.
func (m *XMPPClient) HandleMatrixTyping(ctx context.Context, msg *bridgev2.MatrixTyping) error {
	if !m.IsLoggedIn() || m.transport == nil {
		return bridgev2.ErrNotLoggedIn
	}

	convoID := ParsePortalID(msg.Portal.ID)
	err := m.transport.SendTyping(ctx, sendTarget(convoID), msg.IsTyping)
	if err != nil && !errors.Is(err, xmppwire.ErrUnsupported) {
		m.log.Debug().Err(err).Msg("Failed to send typing state")
	}
	return nil
}

// HandleMatrixReadReceipt forwards a Matrix read receipt. Receipts without
// an exact target message are dropped; the network acknowledges individual
// messages, not positions.
func (m *XMPPClient) HandleMatrixReadReceipt(ctx context.Context, msg *bridgev2.MatrixReadReceipt) error {
	if !m.IsLoggedIn() || m.transport == nil {
		return bridgev2.ErrNotLoggedIn
	}
	if msg.ExactMessage == nil {
		return nil
	}

	convoID := ParsePortalID(msg.Portal.ID)
	err := m.transport.SendReceipt(ctx, sendTarget(convoID), ParseMessageID(msg.ExactMessage.ID))
	if err != nil && !errors.Is(err, xmppwire.ErrUnsupported) {
		return fmt.Errorf("failed to send read receipt: %w", err)
	}
	return nil
}
