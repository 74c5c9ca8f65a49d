// Package jsonutil extracts and parses JSON from response bodies that may be
// wrapped in other text, such as an HTML error page from a reverse proxy or a
// log line printed ahead of the payload.
package jsonutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var errNoJSON = errors.New("no JSON content found")

// ExtractJSON returns the first complete JSON object or array in text.
// Anything before or after it is ignored, including bracketed text that is
// not valid JSON (e.g. "[ERROR] {...}").
func ExtractJSON(text string) (string, error) {
	for i := 0; i < len(text); i++ {
		if text[i] != '{' && text[i] != '[' {
			continue
		}
		var raw json.RawMessage
		if err := json.NewDecoder(strings.NewReader(text[i:])).Decode(&raw); err == nil {
			return string(raw), nil
		}
	}
	return "", errNoJSON
}

// ParseJSON extracts JSON content from raw and unmarshals it into T.
func ParseJSON[T any](raw string) (T, error) {
	var result T
	jsonStr, err := ExtractJSON(raw)
	if err != nil {
		return result, fmt.Errorf("%w (raw length: %d)", err, len(raw))
	}
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return result, fmt.Errorf("invalid JSON: %w (text: %s)", err, preview(jsonStr))
	}
	return result, nil
}

// ErrorMessage returns the "error" field of a JSON error body, falling back
// to "message". It returns "" when raw holds neither.
func ErrorMessage(raw string) string {
	body, err := ParseJSON[struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}](raw)
	if err != nil {
		return ""
	}
	if body.Error != "" {
		return body.Error
	}
	return body.Message
}

func preview(s string) string {
	const limit = 200
	if len(s) <= limit {
		return s
	}
	n := limit
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
