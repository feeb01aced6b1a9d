// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package connector implements a Matrix-XMPP bridge using the mautrix
// bridgev2 framework.
//
// Each logged-in Matrix user gets one supervised XMPP session. Sessions
// never give up: any connect or runtime failure clears the persisted
// session state, reports a transient disconnect, and retries after a fixed
// delay for as long as the account exists. Overlapping failures collapse
// into a single pending restart per account.
//
// # Core Types
//
// [XMPPConnector] implements [bridgev2.NetworkConnector] and owns the
// account-id to session registry, the reconnect machinery, and the admin
// HTTP API for directory listing and manual reconnects.
//
// [XMPPClient] represents one authenticated XMPP session. It drives the
// wire transport, keeps the lazily populated contact and conversation
// caches, and routes the inbound event stream.
//
// The wire protocol itself lives behind [xmppwire.Transport]; the bridge
// never parses stanzas.
//
// # Echo Suppression
//
// A message sent to XMPP on behalf of the Matrix side may be reflected
// back on the inbound stream. The outbound path locks an expected echo
// before each send and finalizes it with the produced id; the inbound path
// consumes at most one matching event per send. Any mismatch fails open so
// genuine remote messages are never dropped.
//
// # Sub-packages
//
//   - matrixfmt converts Matrix HTML to XMPP message styling.
//   - xmppfmt converts XMPP message styling to Matrix HTML.
package connector
