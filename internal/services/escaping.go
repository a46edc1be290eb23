package services

import (
	"fmt"
	"html"
	"strings"
)

// Helpers for Telegram HTML parse mode. User content is always escaped.

func Escape(text string) string {
	return html.EscapeString(text)
}

func FormatBold(text string) string {
	return fmt.Sprintf("<b>%s</b>", html.EscapeString(text))
}

func FormatItalic(text string) string {
	return fmt.Sprintf("<i>%s</i>", html.EscapeString(text))
}

func FormatCode(text string) string {
	return fmt.Sprintf("<code>%s</code>", html.EscapeString(text))
}

func SafeConcat(parts ...string) string {
	var sb strings.Builder
	for _, part := range parts {
		sb.WriteString(part)
	}
	return sb.String()
}
