// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// jsonSpace is the whitespace the JSON grammar allows between values.
const jsonSpace = " \t\r\n"

// =============================================================================
// ENCODING NORMALIZER
// =============================================================================

// NormalizeText converts arbitrary bytes to valid UTF-8, replacing every
// undecodable sequence with U+FFFD. It never fails.
func NormalizeText(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	out, _, err := transform.Bytes(unicode.UTF8.NewDecoder(), b)
	if err != nil {
		return strings.ToValidUTF8(string(b), string(utf8.RuneError))
	}
	return string(out)
}

// incompleteSuffix returns the length of a trailing UTF-8 sequence that has
// a valid leading byte but is still missing continuation bytes.
func incompleteSuffix(b []byte) int {
	for i := 1; i < utf8.UTFMax && i <= len(b); i++ {
		c := b[len(b)-i]
		if c < utf8.RuneSelf {
			return 0
		}
		if utf8.RuneStart(c) {
			if utf8.FullRune(b[len(b)-i:]) {
				return 0
			}
			return i
		}
	}
	return 0
}

// =============================================================================
// JSON FRAGMENT DECODER
// =============================================================================

// looksLikeJSON reports whether text, ignoring leading whitespace, opens an
// object or an array.
func looksLikeJSON(text []byte) bool {
	trimmed := bytes.TrimLeft(text, jsonSpace)
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}

// DecodeFragment decodes the first complete JSON object or array in text.
//
// It returns the value and the number of bytes of text it spans, leading
// whitespace included. ok is false when text does not open with '{' or '['
// or when the value is incomplete or malformed; callers keep buffering in
// both cases.
func DecodeFragment(text string) (value any, consumed int, ok bool) {
	return decodeFragment([]byte(text))
}

func decodeFragment(buf []byte) (any, int, bool) {
	if !looksLikeJSON(buf) {
		return nil, 0, false
	}
	trimmed := bytes.TrimLeft(buf, jsonSpace)

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, 0, false
	}
	return value, len(buf) - len(trimmed) + int(dec.InputOffset()), true
}

// =============================================================================
// BUFFERED RESPONSE PARSER
// =============================================================================

// ParseBuffered parses a complete response body as newline-delimited JSON.
//
// It returns []any with one decoded value per line when every line decodes.
// If the body does not open with '{' or '[', or if any line fails to decode,
// the body is returned unchanged as a string.
func ParseBuffered(body string) any {
	if !looksLikeJSON([]byte(body)) {
		return body
	}

	lines := strings.Split(body, "\n")
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	values := make([]any, 0, len(lines))
	for _, line := range lines {
		var value any
		if err := json.Unmarshal([]byte(line), &value); err != nil {
			return body
		}
		values = append(values, value)
	}
	return values
}
