// Copyright 2024-2026 Aiku AI

package connector

import (
	_ "embed"
	"text/template"

	up "go.mau.fi/util/configupgrade"
	"gopkg.in/yaml.v3"
)

//go:embed example-config.yaml
var ExampleConfig string

// Config holds the XMPP connector configuration.
type Config struct {
	// DefaultResource is the resource suffix announced for bridged
	// accounts when the login did not specify one.
	DefaultResource     string `yaml:"default_resource"`
	DisplaynameTemplate string `yaml:"displayname_template"`
	// QuoteMarker prefixes quoted content in outbound replies. Inbound
	// bodies starting with it are recognized as quoted replies (currently
	// delivered as-is, reconstruction pending).
	QuoteMarker string `yaml:"quote_marker"`
	// AdminAPIAddr is the listen address for the admin HTTP API that
	// serves the directory and reconnect endpoints. Empty disables it.
	AdminAPIAddr string `yaml:"admin_api_addr"`

	// ReconnectDelaySeconds is the fixed delay before a dropped or failed
	// session is rebuilt. There is no exponential growth and no retry
	// ceiling. Defaults to 60.
	ReconnectDelaySeconds int `yaml:"reconnect_delay_seconds"`
	TypingTimeout         int `yaml:"typing_timeout"`

	displaynameTemplate *template.Template `yaml:"-"`
}

// DisplaynameParams holds the parameters for rendering the displayname template.
type DisplaynameParams struct {
	Local  string
	Domain string
	Name   string
}

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig Config
	return node.Decode((*rawConfig)(c))
}

func (c *Config) PostProcess() error {
	if c.QuoteMarker == "" {
		c.QuoteMarker = ">"
	}
	if c.DisplaynameTemplate == "" {
		c.DisplaynameTemplate = "{{if .Name}}{{.Name}}{{else}}{{.Local}}{{end}} (XMPP)"
	}
	var err error
	c.displaynameTemplate, err = template.New("displayname").Parse(c.DisplaynameTemplate)
	return err
}

func upgradeConfig(helper up.Helper) {
	helper.Copy(up.Str, "default_resource")
	helper.Copy(up.Str, "displayname_template")
	helper.Copy(up.Str, "quote_marker")
	helper.Copy(up.Str, "admin_api_addr")
	helper.Copy(up.Int, "reconnect_delay_seconds")
	helper.Copy(up.Int, "typing_timeout")
}

func (xc *XMPPConnector) GetConfig() (example string, data any, upgrader up.Upgrader) {
	return ExampleConfig, &xc.Config, &up.StructUpgrader{
		SimpleUpgrader: up.SimpleUpgrader(upgradeConfig),
		Blocks:         nil,
		Base:           ExampleConfig,
	}
}

// FormatDisplayname generates a display name from the template and params.
func (c *Config) FormatDisplayname(params DisplaynameParams) string {
	if c.displaynameTemplate == nil {
		if params.Name != "" {
			return params.Name
		}
		return params.Local
	}
	var buf []byte
	err := c.displaynameTemplate.Execute(
		(*templateBuffer)(&buf),
		params,
	)
	if err != nil {
		return params.Local
	}
	return string(buf)
}

// templateBuffer is a simple io.Writer that appends to a byte slice.
type templateBuffer []byte

func (b *templateBuffer) Write(p []byte) (int, error) {
	*b = append(*b, p...)
	return len(p), nil
}
