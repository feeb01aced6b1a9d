// Copyright 2024-2026 Aiku AI

package xmppwire

import "time"

// Event is the sealed vocabulary of inbound occurrences a Transport emits.
// Events are delivered on a single channel per connection, strictly in
// arrival order.
type Event interface {
	eventKind() string
}

// MessageEvent is an inbound text message. Room is empty for one-to-one
// chats; the conversation is then derived from the bare form of From.
type MessageEvent struct {
	ID        string
	From      string // full address, may carry a resource suffix
	Room      string
	Body      string
	Timestamp time.Time
}

// EditEvent is a correction of a previously delivered message.
type EditEvent struct {
	ID        string
	From      string
	Room      string
	TargetID  string
	Body      string
	Timestamp time.Time
}

// LocationEvent is an inbound geographic position share.
type LocationEvent struct {
	ID        string
	From      string
	Room      string
	Latitude  float64
	Longitude float64
	Timestamp time.Time
}

// FileEvent is an inbound out-of-band file share. The file stays on the
// remote host; only the link crosses the bridge.
type FileEvent struct {
	ID        string
	From      string
	Room      string
	Name      string
	URL       string
	MimeType  string
	Size      int64
	Timestamp time.Time
}

// TypingEvent reports a peer starting or stopping message composition.
type TypingEvent struct {
	From   string
	Room   string
	Active bool
}

// PresenceEvent reports a peer's availability change.
type PresenceEvent struct {
	From      string
	Available bool
	Status    string
}

// ReceiptEvent acknowledges delivery of a message up to MessageID.
type ReceiptEvent struct {
	From      string
	Room      string
	MessageID string
}

// ContactUpdateEvent fires when a contact is revised. Old is nil on first
// sighting; both snapshots are carried so consumers can diff.
type ContactUpdateEvent struct {
	Old *Contact
	New *Contact
}

// ErrorEvent reports a post-connect transport fault. The session is
// considered dead once one is emitted.
type ErrorEvent struct {
	Err error
}

func (*MessageEvent) eventKind() string       { return "message" }
func (*EditEvent) eventKind() string          { return "edit" }
func (*LocationEvent) eventKind() string      { return "location" }
func (*FileEvent) eventKind() string          { return "file" }
func (*TypingEvent) eventKind() string        { return "typing" }
func (*PresenceEvent) eventKind() string      { return "presence" }
func (*ReceiptEvent) eventKind() string       { return "receipt" }
func (*ContactUpdateEvent) eventKind() string { return "contact-update" }
func (*ErrorEvent) eventKind() string         { return "error" }
