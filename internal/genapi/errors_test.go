package genapi

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short", "ok", 5, "ok"},
		{"ascii", "abcdef", 3, "abc..."},
		{"rune straddles limit", "ab€cd", 3, "ab..."},
		{"rune ends at limit", "a€b", 4, "a€..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.n)
			if got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("invalid UTF-8 in %q", got)
			}
		})
	}
}

func TestDecodeErrorBodyStaysValidUTF8(t *testing.T) {
	err := &DecodeError{What: "status", Err: errors.New("bad"), Raw: strings.Repeat("x", 199) + "日本語"}
	if msg := err.Error(); !utf8.ValidString(msg) {
		t.Errorf("error message split a rune: %q", msg)
	}
}
