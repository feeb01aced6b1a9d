// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package connector

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/bridgev2"
	"maunium.net/go/mautrix/bridgev2/database"
	"maunium.net/go/mautrix/bridgev2/networkid"

	"github.com/aiku/mautrix-xmpp/pkg/xmppwire"
)

// mockEventSender captures queued remote events for test assertions.
type mockEventSender struct {
	mu     sync.Mutex
	events []bridgev2.RemoteEvent
}

func (m *mockEventSender) QueueRemoteEvent(_ *bridgev2.UserLogin, evt bridgev2.RemoteEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
}

func (m *mockEventSender) Events() []bridgev2.RemoteEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]bridgev2.RemoteEvent, len(m.events))
	copy(cp, m.events)
	return cp
}

func (m *mockEventSender) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}

// ghostUpdate records one pushed contact profile.
type ghostUpdate struct {
	UserID networkid.UserID
	Info   *bridgev2.UserInfo
}

// mockGhostSyncer captures ghost profile updates.
type mockGhostSyncer struct {
	mu      sync.Mutex
	updates []ghostUpdate
}

func (m *mockGhostSyncer) UpdateGhost(_ context.Context, userID networkid.UserID, info *bridgev2.UserInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, ghostUpdate{UserID: userID, Info: info})
}

func (m *mockGhostSyncer) Updates() []ghostUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]ghostUpdate, len(m.updates))
	copy(cp, m.updates)
	return cp
}

// sentRecord is one recorded outbound call on a fakeTransport.
type sentRecord struct {
	Kind     string // "message", "edit", "retraction", "media", "typing", "receipt"
	Room     string
	Body     string
	TargetID string
	Active   bool
}

// fakeTransport is a scriptable in-memory wire connection. Inbound events
// are delivered by writing to Inject; outbound calls are recorded.
type fakeTransport struct {
	mu sync.Mutex

	ConnectErr error
	SendErr    error
	MediaErr   error
	NextID     string
	StateBlob  []byte

	Inject chan xmppwire.Event

	connects    int
	disconnects int
	sent        []sentRecord
}

var _ xmppwire.Transport = (*fakeTransport)(nil)

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		NextID:    "srv-id-1",
		StateBlob: []byte(`{"fake":true}`),
		Inject:    make(chan xmppwire.Event, 16),
	}
}

func (t *fakeTransport) Connect(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connects++
	return t.ConnectErr
}

func (t *fakeTransport) Disconnect() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disconnects++
}

func (t *fakeTransport) State() []byte {
	return t.StateBlob
}

func (t *fakeTransport) Events() <-chan xmppwire.Event {
	return t.Inject
}

func (t *fakeTransport) record(rec sentRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, rec)
}

func (t *fakeTransport) Sent() []sentRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	cp := make([]sentRecord, len(t.sent))
	copy(cp, t.sent)
	return cp
}

func (t *fakeTransport) Disconnects() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disconnects
}

func (t *fakeTransport) SendMessage(_ context.Context, room, body string) (string, error) {
	if t.SendErr != nil {
		return "", t.SendErr
	}
	t.record(sentRecord{Kind: "message", Room: room, Body: body})
	return t.NextID, nil
}

func (t *fakeTransport) SendEdit(_ context.Context, room, targetID, body string) (string, error) {
	if t.SendErr != nil {
		return "", t.SendErr
	}
	t.record(sentRecord{Kind: "edit", Room: room, TargetID: targetID, Body: body})
	return t.NextID, nil
}

func (t *fakeTransport) SendRetraction(_ context.Context, room, targetID string) (string, error) {
	if t.SendErr != nil {
		return "", t.SendErr
	}
	t.record(sentRecord{Kind: "retraction", Room: room, TargetID: targetID})
	return t.NextID, nil
}

func (t *fakeTransport) SendMedia(_ context.Context, room string, media xmppwire.Media) (string, error) {
	if t.MediaErr != nil {
		return "", t.MediaErr
	}
	t.record(sentRecord{Kind: "media", Room: room, Body: media.Name})
	return t.NextID, nil
}

func (t *fakeTransport) SendPresence(context.Context, string) error { return nil }

func (t *fakeTransport) SendTyping(_ context.Context, room string, active bool) error {
	t.record(sentRecord{Kind: "typing", Room: room, Active: active})
	return nil
}

func (t *fakeTransport) SendReceipt(_ context.Context, room, messageID string) error {
	t.record(sentRecord{Kind: "receipt", Room: room, TargetID: messageID})
	return nil
}

// fakeDialer hands out fakeTransports and counts dial attempts.
type fakeDialer struct {
	mu         sync.Mutex
	dials      int
	transports []*fakeTransport
	// Build customizes the next transport; defaults to newFakeTransport.
	Build func() *fakeTransport
}

func (d *fakeDialer) dial(_ xmppwire.Account, _ zerolog.Logger) xmppwire.Transport {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	ft := newFakeTransport()
	if d.Build != nil {
		ft = d.Build()
	}
	d.transports = append(d.transports, ft)
	return ft
}

func (d *fakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) Transport(i int) *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 || i >= len(d.transports) {
		return nil
	}
	return d.transports[i]
}

// newTestConnector builds an XMPPConnector wired with test seams instead of
// a full bridge: the given dialer, a mock event sender and ghost syncer.
func newTestConnector(dialer *fakeDialer) *XMPPConnector {
	xc := &XMPPConnector{
		Config:      Config{},
		eventSender: &mockEventSender{},
		ghosts:      &mockGhostSyncer{},
		sessions:    make(map[networkid.UserLoginID]*session),
	}
	if err := xc.Config.PostProcess(); err != nil {
		panic(err)
	}
	if dialer != nil {
		xc.dial = dialer.dial
	}
	return xc
}

// newTestLogin builds a bare user login with stored credentials, detached
// from any bridge or database.
func newTestLogin(jid, password string) *bridgev2.UserLogin {
	return &bridgev2.UserLogin{
		UserLogin: &database.UserLogin{
			ID: MakeUserLoginID(jid),
			Metadata: &UserLoginMetadata{
				JID:      jid,
				Password: password,
			},
		},
		Log: zerolog.Nop(),
	}
}

// newConnectedTestClient runs a full connect cycle against a fake transport
// and returns the connector, client and the transport it connected.
func newConnectedTestClient(jid string) (*XMPPConnector, *XMPPClient, *fakeTransport) {
	dialer := &fakeDialer{}
	xc := newTestConnector(dialer)
	login := newTestLogin(jid, "hunter2")
	xc.CreateAccount(context.Background(), login)
	client := login.Client.(*XMPPClient)
	return xc, client, dialer.Transport(0)
}

// testMock returns the mockEventSender from a test client.
func testMock(m *XMPPClient) *mockEventSender {
	return m.eventSender.(*mockEventSender)
}

// testGhosts returns the mockGhostSyncer from a test client.
func testGhosts(m *XMPPClient) *mockGhostSyncer {
	return m.ghosts.(*mockGhostSyncer)
}

// makeTestPortal creates a minimal bridgev2.Portal for testing.
func makeTestPortal(conversationID string) *bridgev2.Portal {
	return &bridgev2.Portal{
		Portal: &database.Portal{
			PortalKey: networkid.PortalKey{
				ID: MakePortalID(conversationID),
			},
		},
	}
}
