// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"maunium.net/go/mautrix/bridgev2"
	"maunium.net/go/mautrix/bridgev2/database"
	"maunium.net/go/mautrix/bridgev2/networkid"
)

const defaultReconnectDelay = 60 * time.Second

// redactionWindow bounds how long a redacted message id is remembered.
// Entries only exist to swallow the remote network's late reflections of a
// redaction, so they can expire quickly.
const redactionWindow = 2 * time.Minute

// session is the runtime record for one active account: the live client,
// the echo suppression state shared by the outbound and inbound paths, and
// the reconnect bookkeeping. Exactly one session exists per account id;
// creating a new one tears down the old one first.
type session struct {
	client       *XMPPClient
	echoes       *echoTracker
	redactions   *expiringSet
	stopped      bool
	restarting   bool
	restartTimer *time.Timer
}

// XMPPConnector implements bridgev2.NetworkConnector for XMPP and owns the
// account-id to session registry. All lifecycle operations on the registry
// are serialized on one mutex, so no two of them race for the same id.
type XMPPConnector struct {
	Bridge *bridgev2.Bridge
	Config Config

	// dial builds transports; overridable for tests and alternate wire
	// clients. Defaults to xmppwire.Dial.
	dial        dialFunc
	eventSender remoteEventSender
	ghosts      ghostSyncer

	reconnectDelay time.Duration

	sessionsMu sync.Mutex
	sessions   map[networkid.UserLoginID]*session
}

var _ bridgev2.NetworkConnector = (*XMPPConnector)(nil)

func (xc *XMPPConnector) Init(bridge *bridgev2.Bridge) {
	xc.Bridge = bridge
}

func (xc *XMPPConnector) Start(ctx context.Context) error {
	if err := xc.Config.PostProcess(); err != nil {
		return fmt.Errorf("failed to post-process config: %w", err)
	}
	xc.sessionsMu.Lock()
	if xc.sessions == nil {
		xc.sessions = make(map[networkid.UserLoginID]*session)
	}
	xc.sessionsMu.Unlock()

	xc.reconnectDelay = defaultReconnectDelay
	if xc.Config.ReconnectDelaySeconds > 0 {
		xc.reconnectDelay = time.Duration(xc.Config.ReconnectDelaySeconds) * time.Second
	}

	if apiAddr := xc.Config.AdminAPIAddr; apiAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/api/list-users", xc.HandleListUsers)
		mux.HandleFunc("/api/list-rooms", xc.HandleListRooms)
		mux.HandleFunc("/api/room-members", xc.HandleRoomMembers)
		mux.HandleFunc("/api/reconnect", xc.HandleReconnect)
		server := &http.Server{
			Addr:         apiAddr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			xc.Bridge.Log.Info().Str("addr", apiAddr).Msg("Starting bridge admin API")
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				xc.Bridge.Log.Error().Err(err).Msg("Bridge admin API error")
			}
		}()
	}

	return nil
}

func (xc *XMPPConnector) LoadUserLogin(_ context.Context, login *bridgev2.UserLogin) error {
	login.Client = NewXMPPClient(login, xc)
	return nil
}

func (xc *XMPPConnector) GetName() bridgev2.BridgeName {
	return bridgev2.BridgeName{
		DisplayName:      "XMPP",
		NetworkURL:       "https://xmpp.org",
		NetworkIcon:      "mxc://maunium.net/xmpp",
		NetworkID:        "xmpp",
		BeeperBridgeType: "xmpp",
		DefaultPort:      29329,
	}
}

func (xc *XMPPConnector) GetDBMetaTypes() database.MetaTypes {
	return database.MetaTypes{
		UserLogin: func() any {
			return &UserLoginMetadata{}
		},
		Message: func() any {
			return &MessageMetadata{}
		},
	}
}

func (xc *XMPPConnector) GetCapabilities() *bridgev2.NetworkGeneralCapabilities {
	return &bridgev2.NetworkGeneralCapabilities{
		DisappearingMessages: false,
		AggressiveUpdateInfo: false,
	}
}

func (xc *XMPPConnector) GetBridgeInfoVersion() (info, capabilities int) {
	return 1, 1
}

// UserLoginMetadata stores the persisted account record: credentials plus
// the opaque session state blob handed back by the wire client after a
// successful connect. State is cleared whenever a connection error occurs
// to force a full re-authentication on the next attempt.
type UserLoginMetadata struct {
	JID      string          `json:"jid"`
	Password string          `json:"password"`
	Resource string          `json:"resource,omitempty"`
	State    json.RawMessage `json:"state,omitempty"`
}

// MessageMetadata stores the remote-side body of a bridged message so that
// later replies can quote it without refetching anything.
type MessageMetadata struct {
	Body     string `json:"body,omitempty"`
	FileName string `json:"file_name,omitempty"`
	FileURL  string `json:"file_url,omitempty"`
}

// getLoginMeta extracts metadata from a UserLogin. Returns nil when the
// login carries no metadata of the expected type.
func getLoginMeta(login *bridgev2.UserLogin) *UserLoginMetadata {
	if login == nil {
		return nil
	}
	meta, _ := login.Metadata.(*UserLoginMetadata)
	return meta
}

// CreateAccount builds a fresh client for the account and starts it,
// tearing down any existing session for the same id first. Transport
// errors are not returned; recovery is owned by the reconnect machinery.
func (xc *XMPPConnector) CreateAccount(ctx context.Context, login *bridgev2.UserLogin) {
	client := NewXMPPClient(login, xc)
	login.Client = client
	client.Connect(ctx)
}

// StopAccount disconnects the account's client without removing the
// session record. No-op for unknown ids. Used by the reconnect machinery,
// which needs the record (and its restart flag) to survive the stop.
func (xc *XMPPConnector) StopAccount(id networkid.UserLoginID) {
	xc.sessionsMu.Lock()
	s := xc.sessions[id]
	var client *XMPPClient
	if s != nil {
		s.stopped = true
		client = s.client
	}
	xc.sessionsMu.Unlock()
	if client != nil {
		client.Disconnect()
	}
}

// DeleteAccount disconnects the account and removes its session record
// entirely, cancelling any pending restart. Idempotent.
func (xc *XMPPConnector) DeleteAccount(id networkid.UserLoginID) {
	xc.sessionsMu.Lock()
	s := xc.sessions[id]
	delete(xc.sessions, id)
	xc.sessionsMu.Unlock()
	if s == nil {
		return
	}
	if s.restartTimer != nil {
		s.restartTimer.Stop()
	}
	if s.client != nil {
		s.client.Disconnect()
	}
}

// adoptSession installs the client as the account's single live session.
// A previous session for the same id is stopped and discarded first, and
// any restart it had pending is cancelled: the new connect cycle replaces
// it. Returns the fresh session record.
func (xc *XMPPConnector) adoptSession(client *XMPPClient) *session {
	id := client.loginID()
	xc.sessionsMu.Lock()
	if xc.sessions == nil {
		xc.sessions = make(map[networkid.UserLoginID]*session)
	}
	prev := xc.sessions[id]
	s := &session{
		client:     client,
		echoes:     newEchoTracker(),
		redactions: newExpiringSet(redactionWindow),
	}
	if prev != nil {
		s.restarting = prev.restarting
		if prev.restartTimer != nil {
			prev.restartTimer.Stop()
		}
	}
	xc.sessions[id] = s
	xc.sessionsMu.Unlock()

	var prevClient *XMPPClient
	if prev != nil && prev.client != client {
		prevClient = prev.client
	}
	if prevClient != nil {
		prevClient.Disconnect()
	}
	return s
}

// sessionFor returns the session record for an account id, or nil.
func (xc *XMPPConnector) sessionFor(id networkid.UserLoginID) *session {
	xc.sessionsMu.Lock()
	defer xc.sessionsMu.Unlock()
	return xc.sessions[id]
}

// sessionAlive reports whether the given client is still the installed,
// unstopped session for its account. A connect attempt that finishes after
// its account was stopped or replaced must be discarded, not installed.
func (xc *XMPPConnector) sessionAlive(client *XMPPClient) bool {
	xc.sessionsMu.Lock()
	defer xc.sessionsMu.Unlock()
	s := xc.sessions[client.loginID()]
	return s != nil && s.client == client && !s.stopped
}

// echoesFor returns the dedup state for an account, or nil when no session
// exists. Callers fail open on nil.
func (xc *XMPPConnector) echoesFor(id networkid.UserLoginID) *echoTracker {
	if s := xc.sessionFor(id); s != nil {
		return s.echoes
	}
	return nil
}

// redactionsFor returns the recently-redacted id set for an account, or nil.
func (xc *XMPPConnector) redactionsFor(id networkid.UserLoginID) *expiringSet {
	if s := xc.sessionFor(id); s != nil {
		return s.redactions
	}
	return nil
}

// DirectoryEntry is a stable (id, display name) pair returned by the
// directory listing operations and the admin API.
type DirectoryEntry struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// ListUsers returns a snapshot of the account's contact cache. An account
// with no session yields an empty list, never an error.
func (xc *XMPPConnector) ListUsers(id networkid.UserLoginID) []DirectoryEntry {
	s := xc.sessionFor(id)
	if s == nil || s.client == nil {
		return []DirectoryEntry{}
	}
	return s.client.contactEntries()
}

// ListRooms returns a snapshot of the account's conversation cache.
// Conversations in the one-to-one namespace are filtered out: those are
// reached through identifier resolution, not room listing. They remain
// resolvable through GetConversation.
func (xc *XMPPConnector) ListRooms(id networkid.UserLoginID) []DirectoryEntry {
	s := xc.sessionFor(id)
	if s == nil || s.client == nil {
		return []DirectoryEntry{}
	}
	return s.client.conversationEntries()
}

// GetUserIDsInRoom resolves the conversation (fetching if uncached) and
// returns its member id set. ok is false when the account has no session
// or the room cannot be resolved.
func (xc *XMPPConnector) GetUserIDsInRoom(id networkid.UserLoginID, room string) (members []string, ok bool) {
	s := xc.sessionFor(id)
	if s == nil || s.client == nil {
		return nil, false
	}
	if s.client.GetConversation(room) == nil {
		return nil, false
	}
	return s.client.memberIDs(room), true
}

// adminLoginID extracts and validates the login query parameter.
func adminLoginID(r *http.Request) (networkid.UserLoginID, bool) {
	id := r.URL.Query().Get("login")
	return networkid.UserLoginID(id), id != ""
}

func writeAdminJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// HandleListUsers is an HTTP handler for GET /api/list-users?login=<id>.
func (xc *XMPPConnector) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, ok := adminLoginID(r)
	if !ok {
		http.Error(w, "missing login parameter", http.StatusBadRequest)
		return
	}
	writeAdminJSON(w, xc.ListUsers(id))
}

// HandleListRooms is an HTTP handler for GET /api/list-rooms?login=<id>.
func (xc *XMPPConnector) HandleListRooms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, ok := adminLoginID(r)
	if !ok {
		http.Error(w, "missing login parameter", http.StatusBadRequest)
		return
	}
	writeAdminJSON(w, xc.ListRooms(id))
}

// HandleRoomMembers is an HTTP handler for
// GET /api/room-members?login=<id>&room=<id>.
func (xc *XMPPConnector) HandleRoomMembers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, ok := adminLoginID(r)
	room := r.URL.Query().Get("room")
	if !ok || room == "" {
		http.Error(w, "missing login or room parameter", http.StatusBadRequest)
		return
	}
	members, ok := xc.GetUserIDsInRoom(id, room)
	if !ok {
		http.Error(w, "unknown login or room", http.StatusNotFound)
		return
	}
	writeAdminJSON(w, members)
}

// HandleReconnect is an HTTP handler for POST /api/reconnect?login=<id>.
// It stops the account and immediately runs a fresh connect cycle.
func (xc *XMPPConnector) HandleReconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, ok := adminLoginID(r)
	if !ok {
		http.Error(w, "missing login parameter", http.StatusBadRequest)
		return
	}
	s := xc.sessionFor(id)
	if s == nil || s.client == nil {
		http.Error(w, "unknown login", http.StatusNotFound)
		return
	}
	login := s.client.userLogin
	xc.StopAccount(id)
	xc.CreateAccount(r.Context(), login)
	writeAdminJSON(w, map[string]string{"status": "reconnecting"})
}
