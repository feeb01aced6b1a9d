// Copyright 2024-2026 Aiku AI

// Package xmppfmt converts XMPP message styling (XEP-0393) to Matrix HTML.
package xmppfmt

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"maunium.net/go/mautrix/event"
)

// ParsedMessage holds the result of converting a styled XMPP body to
// Matrix format. Plain bodies get no FormattedBody at all.
type ParsedMessage struct {
	Body          string
	Format        event.Format
	FormattedBody string
}

// Message styling spans. Bold is a single asterisk pair, strikethrough a
// single tilde pair; the span must not start or end with whitespace.
var (
	boldRe      = regexp.MustCompile(`\*([^\s*](?:[^*]*[^\s*])?)\*`)
	italicRe    = regexp.MustCompile(`_([^\s_](?:[^_]*[^\s_])?)_`)
	strikeRe    = regexp.MustCompile(`~([^\s~](?:[^~]*[^\s~])?)~`)
	codeRe      = regexp.MustCompile("`([^`\n]+)`")
	codeBlockRe = regexp.MustCompile("(?s)```\\n?(.*?)\\n?```")
	quoteRe     = regexp.MustCompile(`(?m)^>\s?(.*)$`)
	urlRe       = regexp.MustCompile(`https?://[^\s<>"]+`)
)

// Parse converts a styled XMPP body to Matrix event content.
func Parse(text string) *ParsedMessage {
	if text == "" {
		return &ParsedMessage{}
	}

	hasStyling := boldRe.MatchString(text) ||
		italicRe.MatchString(text) ||
		strikeRe.MatchString(text) ||
		codeRe.MatchString(text) ||
		codeBlockRe.MatchString(text) ||
		quoteRe.MatchString(text)

	if !hasStyling {
		return &ParsedMessage{Body: text}
	}

	// Preformatted blocks come out first so their content is never
	// reinterpreted as styling.
	var blocks []string
	processed := codeBlockRe.ReplaceAllStringFunc(text, func(match string) string {
		parts := codeBlockRe.FindStringSubmatch(match)
		content := ""
		if len(parts) >= 2 {
			content = parts[1]
		}
		idx := len(blocks)
		blocks = append(blocks, content)
		return "\x00BLOCK" + strconv.Itoa(idx) + "\x00"
	})

	// Quote runs collapse into one blockquote each.
	lines := strings.Split(processed, "\n")
	var result []string
	var quoted []string

	flushQuote := func() {
		if len(quoted) == 0 {
			return
		}
		result = append(result, "<blockquote>"+strings.Join(quoted, "<br/>")+"</blockquote>")
		quoted = nil
	}

	for _, line := range lines {
		if m := quoteRe.FindStringSubmatch(line); len(m) >= 2 && strings.HasPrefix(line, ">") {
			quoted = append(quoted, html.EscapeString(m[1]))
			continue
		}
		flushQuote()
		result = append(result, html.EscapeString(line))
	}
	flushQuote()

	formatted := strings.Join(result, "<br/>")

	// Inline spans, code first so other markers inside it survive.
	formatted = codeRe.ReplaceAllString(formatted, "<code>$1</code>")
	formatted = boldRe.ReplaceAllString(formatted, "<strong>$1</strong>")
	formatted = italicRe.ReplaceAllString(formatted, "<em>$1</em>")
	formatted = strikeRe.ReplaceAllString(formatted, "<del>$1</del>")

	formatted = urlRe.ReplaceAllString(formatted, `<a href="$0">$0</a>`)

	for i, content := range blocks {
		placeholder := "\x00BLOCK" + strconv.Itoa(i) + "\x00"
		replacement := "<pre><code>" + html.EscapeString(content) + "</code></pre>"
		formatted = strings.Replace(formatted, placeholder, replacement, 1)
	}

	return &ParsedMessage{
		Body:          text,
		Format:        event.FormatHTML,
		FormattedBody: formatted,
	}
}
