// Package jsonrepair converts raw model output into parseable JSON.
//
// Chat backends routinely wrap JSON in markdown fences, cut strings short at the
// token limit, or leave brackets unbalanced. All call sites share this one pure
// function instead of stripping fences by hand.
package jsonrepair

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Repair normalizes raw model output into the best JSON candidate it can build.
// It strips code fences, slices the outermost object, and applies bounded
// structural fixes (close an unterminated string, drop a dangling comma, append
// missing closers). Repair is idempotent: Repair(Repair(x)) == Repair(x).
// The returned text is not guaranteed to parse; Extract reports that.
func Repair(raw string) string {
	s := stripFences(raw)
	s = sliceObject(s)
	if s == "" {
		return ""
	}
	if json.Valid([]byte(s)) {
		return compact(s)
	}

	s = closeUnterminatedString(s)
	s = dropTrailingComma(s)
	s += missingClosers(s)

	if json.Valid([]byte(s)) {
		return compact(s)
	}
	// Structural repair failed; hand back the sliced text so the caller's
	// default-value path decides.
	return s
}

// Extract repairs raw and decodes it into v.
func Extract(raw string, v interface{}) error {
	repaired := Repair(raw)
	dec := json.NewDecoder(strings.NewReader(repaired))
	return dec.Decode(v)
}

// ExtractOr repairs raw and decodes it into v; on any failure it decodes the
// designated fallback JSON instead. It never returns an error; callers always
// get a usable structured value.
func ExtractOr(raw string, v interface{}, fallback string) {
	if err := Extract(raw, v); err == nil {
		return
	}
	_ = json.Unmarshal([]byte(fallback), v)
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop the language tag up to the first newline ("json", "JSON", ...).
	if idx := strings.IndexByte(s, '\n'); idx >= 0 && len(strings.Fields(s[:idx])) <= 1 {
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// sliceObject cuts the text between the first '{' and the last '}'. When no
// closing brace exists the tail from the first '{' is kept for repair.
func sliceObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	end := strings.LastIndexByte(s, '}')
	if end < start {
		return s[start:]
	}
	return s[start : end+1]
}

// closeUnterminatedString appends a '"' when the text ends inside a string
// literal.
func closeUnterminatedString(s string) string {
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		}
	}
	if inString {
		return s + `"`
	}
	return s
}

// dropTrailingComma removes dangling commas: one at the very end of the text
// and any directly preceding a closing bracket/brace. String literals are left
// untouched.
func dropTrailingComma(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			b.WriteByte(c)
			continue
		}
		if c == ',' {
			// Look past whitespace: a closer (or nothing) makes the comma dangling.
			j := i + 1
			for j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == '\r' || s[j] == '\n') {
				j++
			}
			if j >= len(s) || s[j] == '}' || s[j] == ']' {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// missingClosers returns the closing brackets/braces implied by the imbalance
// between opens and closes, innermost first.
func missingClosers(s string) string {
	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		if inString {
			switch c {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	var b strings.Builder
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String()
}

// compact canonicalizes valid JSON so repeated repairs return byte-identical
// output.
func compact(s string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(s)); err != nil {
		return s
	}
	return buf.String()
}
