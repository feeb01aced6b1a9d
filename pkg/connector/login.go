// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"fmt"

	"maunium.net/go/mautrix/bridgev2"
	"maunium.net/go/mautrix/bridgev2/database"

	"github.com/aiku/mautrix-xmpp/pkg/xmppwire"
)

// GetLoginFlows returns the available login methods for the bridge.
func (xc *XMPPConnector) GetLoginFlows() []bridgev2.LoginFlow {
	return []bridgev2.LoginFlow{
		{
			Name:        "Password",
			Description: "Log in with your XMPP address and password",
			ID:          "password",
		},
	}
}

// CreateLogin starts a new login process for the given flow.
func (xc *XMPPConnector) CreateLogin(_ context.Context, user *bridgev2.User, flowID string) (bridgev2.LoginProcess, error) {
	if flowID != "password" {
		return nil, fmt.Errorf("unknown login flow: %s", flowID)
	}
	return &PasswordLoginProcess{
		connector: xc,
		user:      user,
	}, nil
}

// PasswordLoginProcess implements address/password login.
type PasswordLoginProcess struct {
	connector *XMPPConnector
	user      *bridgev2.User
}

var _ bridgev2.LoginProcessUserInput = (*PasswordLoginProcess)(nil)

func (p *PasswordLoginProcess) Start(_ context.Context) (*bridgev2.LoginStep, error) {
	return &bridgev2.LoginStep{
		Type:         bridgev2.LoginStepTypeUserInput,
		StepID:       "fi.mau.xmpp.login.credentials",
		Instructions: "Enter your XMPP address (user@domain) and password",
		UserInputParams: &bridgev2.LoginUserInputParams{
			Fields: []bridgev2.LoginInputDataField{
				{
					Type: bridgev2.LoginInputFieldTypeUsername,
					ID:   "jid",
					Name: "XMPP Address",
				},
				{
					Type: bridgev2.LoginInputFieldTypePassword,
					ID:   "password",
					Name: "Password",
				},
			},
		},
	}, nil
}

func (p *PasswordLoginProcess) SubmitUserInput(ctx context.Context, input map[string]string) (*bridgev2.LoginStep, error) {
	address := input["jid"]
	password := input["password"]

	jid, err := xmppwire.ParseJID(address)
	if err != nil {
		return nil, fmt.Errorf("invalid XMPP address: %w", err)
	}
	if password == "" {
		return nil, fmt.Errorf("password must not be empty")
	}

	loginID := MakeUserLoginID(jid.Bare())

	ul, err := p.user.NewLogin(ctx, &database.UserLogin{
		ID:         loginID,
		RemoteName: jid.Bare(),
	}, &bridgev2.NewLoginParams{
		LoadUserLogin: p.connector.LoadUserLogin,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create login: %w", err)
	}

	meta := ul.Metadata.(*UserLoginMetadata)
	meta.JID = jid.Bare()
	meta.Password = password
	meta.Resource = jid.Resource
	if err := ul.Save(ctx); err != nil {
		return nil, fmt.Errorf("failed to save login: %w", err)
	}

	// Connect after saving. The credentials are not validated here; a bad
	// password surfaces as a failed connect and is reported through the
	// bridge state, matching every later reconnect of this account.
	client := ul.Client.(*XMPPClient)
	client.Connect(ctx)

	return &bridgev2.LoginStep{
		Type:         bridgev2.LoginStepTypeComplete,
		StepID:       "fi.mau.xmpp.login.complete",
		Instructions: fmt.Sprintf("Logged in as %s", jid.Bare()),
		CompleteParams: &bridgev2.LoginCompleteParams{
			UserLoginID: loginID,
			UserLogin:   ul,
		},
	}, nil
}

func (p *PasswordLoginProcess) Cancel() {}
