// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Command mautrix-xmpp is a Matrix-XMPP puppeting bridge built on the
// mautrix bridgev2 framework. It logs into XMPP with each user's own
// credentials and relays messages, edits, typing and receipts between the
// two networks.
package main

import (
	"maunium.net/go/mautrix/bridgev2/matrix/mxmain"

	"github.com/aiku/mautrix-xmpp/pkg/connector"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var m = mxmain.BridgeMain{
	Name:        "mautrix-xmpp",
	URL:         "https://github.com/aiku/mautrix-xmpp",
	Description: "A Matrix-XMPP puppeting bridge",
	Version:     "0.1.0",

	Connector: &connector.XMPPConnector{},
}

func main() {
	m.Run()
}
