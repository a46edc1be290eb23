package services

import (
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func TestSanitize(t *testing.T) {
	s := NewSanitizer()
	tests := []struct {
		input    string
		expected string
	}{
		{"Alex", "Alex"},
		{"  Alex   Doe \n", "Alex Doe"},
		{"<b>Alex</b>", "Alex"},
		{`<script>alert("x")</script>Sam`, "Sam"},
		{"Tom &amp; Jerry", "Tom & Jerry"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := s.Sanitize(tt.input); got != tt.expected {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestProperty_SanitizePlainTextUnchanged(t *testing.T) {
	s := NewSanitizer()
	rapid.Check(t, func(rt *rapid.T) {
		words := rapid.SliceOfN(rapid.StringMatching(`[A-Za-z0-9]{1,8}`), 1, 5).Draw(rt, "words")
		text := strings.Join(words, " ")
		if got := s.Sanitize(text); got != text {
			rt.Fatalf("Sanitize(%q) = %q", text, got)
		}
	})
}
