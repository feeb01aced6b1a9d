// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/bridgev2"
	"maunium.net/go/mautrix/bridgev2/status"

	"github.com/aiku/mautrix-xmpp/pkg/xmppwire"
)

// The reconnect machine supervises one connection per account:
//
//	Disconnected -> Connecting -> Connected -> (Error) -> Restarting -> Connecting ...
//
// Every connect or runtime failure is retried after the same fixed delay;
// there is no backoff growth and no retry ceiling. The machine runs for
// the account's whole lifetime and only exits on explicit deletion.

// announce sends a status update for the account. Tolerates logins without
// a wired state queue (as constructed in tests).
func (xc *XMPPConnector) announce(login *bridgev2.UserLogin, st status.BridgeState) {
	if login == nil || login.BridgeState == nil {
		return
	}
	login.BridgeState.Send(st)
}

// saveLogin persists the login record. Tolerates logins detached from a
// bridge database.
func (xc *XMPPConnector) saveLogin(ctx context.Context, login *bridgev2.UserLogin) {
	if login == nil || login.Bridge == nil {
		return
	}
	if err := login.Save(ctx); err != nil {
		xc.log(login).Error().Err(err).Msg("Failed to save login")
	}
}

// clearSessionState drops the persisted opaque session blob so the next
// connect attempt performs a full re-authentication.
func (xc *XMPPConnector) clearSessionState(ctx context.Context, login *bridgev2.UserLogin) {
	meta := getLoginMeta(login)
	if meta == nil || meta.State == nil {
		return
	}
	meta.State = nil
	xc.saveLogin(ctx, login)
}

// markConnected records a successful connect: the restart flag is cleared,
// the refreshed session blob is persisted, and the success is announced.
func (xc *XMPPConnector) markConnected(ctx context.Context, login *bridgev2.UserLogin, state []byte) {
	xc.sessionsMu.Lock()
	if s := xc.sessions[login.ID]; s != nil {
		s.restarting = false
		if s.restartTimer != nil {
			s.restartTimer.Stop()
			s.restartTimer = nil
		}
	}
	xc.sessionsMu.Unlock()

	meta := getLoginMeta(login)
	if meta != nil {
		meta.State = state
	}
	xc.saveLogin(ctx, login)

	xc.announce(login, status.BridgeState{
		StateEvent: status.StateConnected,
	})
	xc.log(login).Info().Msg("Connected to XMPP")
}

// handleConnectFailure reacts to a failed connect attempt: the persisted
// session state is cleared, exactly one status is announced, and a delayed
// restart is scheduled unless one already is. The unexpected-status cause
// only changes the status text, never the recovery action.
func (xc *XMPPConnector) handleConnectFailure(ctx context.Context, login *bridgev2.UserLogin, err error) {
	xc.log(login).Error().Err(err).Msg("Failed to connect")
	xc.clearSessionState(ctx, login)

	message := "Failed to connect to XMPP, reconnecting shortly"
	code := "xmpp-connect-failed"
	if errors.Is(err, xmppwire.ErrUnexpectedStatus) {
		message = "XMPP server rejected the connection with an unexpected status, reconnecting shortly"
		code = "xmpp-unexpected-status"
	}
	xc.announce(login, status.BridgeState{
		StateEvent: status.StateTransientDisconnect,
		Error:      status.BridgeStateErrorCode(code),
		Message:    message,
	})

	xc.scheduleRestart(login)
}

// handleRuntimeError reacts to a post-connect transport fault. If a
// restart is already in progress the error is logged and dropped so that
// overlapping errors cannot pile up restart timers. Otherwise the session
// is stopped, state cleared, one status announced and one restart
// scheduled.
func (xc *XMPPConnector) handleRuntimeError(ctx context.Context, login *bridgev2.UserLogin, err error) {
	xc.sessionsMu.Lock()
	s := xc.sessions[login.ID]
	restarting := s != nil && s.restarting
	xc.sessionsMu.Unlock()
	if restarting {
		xc.log(login).Debug().Err(err).Msg("Ignoring runtime error, restart already in progress")
		return
	}

	xc.log(login).Error().Err(err).Msg("Runtime error from XMPP session")
	xc.StopAccount(login.ID)
	xc.clearSessionState(ctx, login)

	message := "XMPP session failed, reconnecting shortly"
	code := "xmpp-session-failed"
	if errors.Is(err, xmppwire.ErrUnexpectedStatus) {
		message = "XMPP session closed with an unexpected status, reconnecting shortly"
		code = "xmpp-unexpected-status"
	}
	xc.announce(login, status.BridgeState{
		StateEvent: status.StateTransientDisconnect,
		Error:      status.BridgeStateErrorCode(code),
		Message:    message,
	})

	xc.scheduleRestart(login)
}

// scheduleRestart arms the account's single restart timer. A second call
// while one is pending is a no-op, so error storms collapse into one
// restart per account.
func (xc *XMPPConnector) scheduleRestart(login *bridgev2.UserLogin) {
	delay := xc.reconnectDelay
	if delay <= 0 {
		delay = defaultReconnectDelay
	}

	xc.sessionsMu.Lock()
	s := xc.sessions[login.ID]
	if s == nil {
		// Account deleted since the failure; nothing to restart.
		xc.sessionsMu.Unlock()
		return
	}
	if s.restarting {
		xc.sessionsMu.Unlock()
		xc.log(login).Debug().Msg("Restart already scheduled")
		return
	}
	s.restarting = true
	s.restartTimer = time.AfterFunc(delay, func() {
		xc.restartAccount(login)
	})
	xc.sessionsMu.Unlock()

	xc.log(login).Info().Dur("delay", delay).Msg("Scheduled reconnect")
}

// restartAccount fires when the restart delay elapses: the flag is cleared
// and a fresh create-account cycle rebuilds the connection from stored
// credentials. The cleared session blob forces a full handshake.
func (xc *XMPPConnector) restartAccount(login *bridgev2.UserLogin) {
	xc.sessionsMu.Lock()
	s := xc.sessions[login.ID]
	if s == nil {
		// Deleted while the timer was pending.
		xc.sessionsMu.Unlock()
		return
	}
	s.restarting = false
	s.restartTimer = nil
	xc.sessionsMu.Unlock()

	xc.log(login).Info().Msg("Reconnecting account")
	xc.CreateAccount(context.Background(), login)
}

// log returns the login's logger, falling back to the bridge logger.
func (xc *XMPPConnector) log(login *bridgev2.UserLogin) *zerolog.Logger {
	if login != nil {
		return &login.Log
	}
	if xc.Bridge != nil {
		return &xc.Bridge.Log
	}
	nop := zerolog.Nop()
	return &nop
}
