// Copyright 2024-2026 Aiku AI

package connector

import (
	"fmt"
	"strings"

	"maunium.net/go/mautrix/bridgev2"
	"maunium.net/go/mautrix/bridgev2/database"
	"maunium.net/go/mautrix/event"

	"github.com/aiku/mautrix-xmpp/pkg/connector/matrixfmt"
	"github.com/aiku/mautrix-xmpp/pkg/connector/xmppfmt"
	"github.com/aiku/mautrix-xmpp/pkg/xmppwire"
)

// xmppfmtParse converts a styled remote body to Matrix HTML message content.
func xmppfmtParse(text string) *xmppfmt.ParsedMessage {
	return xmppfmt.Parse(text)
}

// matrixfmtParse converts Matrix message content to a styled plain-text body.
func matrixfmtParse(content *event.MessageEventContent) string {
	return matrixfmt.Parse(content)
}

// convertMessageToMatrix converts a remote message body to a
// bridgev2.ConvertedMessage.
func (m *XMPPClient) convertMessageToMatrix(body string) *bridgev2.ConvertedMessage {
	parsed := xmppfmtParse(body)
	return &bridgev2.ConvertedMessage{
		Parts: []*bridgev2.ConvertedMessagePart{{
			ID:   MakeMessagePartID(0),
			Type: event.EventMessage,
			Content: &event.MessageEventContent{
				MsgType:       event.MsgText,
				Body:          parsed.Body,
				Format:        parsed.Format,
				FormattedBody: parsed.FormattedBody,
			},
			DBMetadata: &MessageMetadata{Body: body},
		}},
	}
}

// convertEditToMatrix converts a remote correction to a bridgev2.ConvertedEdit.
func (m *XMPPClient) convertEditToMatrix(body string, existing []*database.Message) *bridgev2.ConvertedEdit {
	parsed := xmppfmtParse(body)

	var targetPart *database.Message
	if len(existing) > 0 {
		targetPart = existing[0]
		if meta, ok := targetPart.Metadata.(*MessageMetadata); ok {
			meta.Body = body
		}
	}

	return &bridgev2.ConvertedEdit{
		ModifiedParts: []*bridgev2.ConvertedEditPart{{
			Part: targetPart,
			Type: event.EventMessage,
			Content: &event.MessageEventContent{
				MsgType:       event.MsgText,
				Body:          parsed.Body,
				Format:        parsed.Format,
				FormattedBody: parsed.FormattedBody,
			},
		}},
	}
}

// convertFileToMatrix converts a remote file share to a
// bridgev2.ConvertedMessage. The file stays on the remote host; the
// message carries its name and URL as text.
func (m *XMPPClient) convertFileToMatrix(file *xmppwire.FileEvent) *bridgev2.ConvertedMessage {
	body := renderFileBody(file.Name, file.URL)
	return &bridgev2.ConvertedMessage{
		Parts: []*bridgev2.ConvertedMessagePart{{
			ID:   MakeMessagePartID(0),
			Type: event.EventMessage,
			Content: &event.MessageEventContent{
				MsgType: event.MsgText,
				Body:    body,
			},
			DBMetadata: &MessageMetadata{
				Body:     body,
				FileName: file.Name,
				FileURL:  file.URL,
			},
		}},
	}
}

// renderFileBody is the canonical "name: url" text form of a file share.
func renderFileBody(name, url string) string {
	name = strings.TrimSpace(name)
	url = strings.TrimSpace(url)
	switch {
	case name == "":
		return url
	case url == "":
		return name
	default:
		return fmt.Sprintf("%s: %s", name, url)
	}
}
