package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/aarondl/null/v8"
)

// parseNested decodes a semi-structured column that may hold a JSON value,
// a JSON string wrapping an encoded value, or a Python-literal rendering of
// the same (single quotes, None/True/False). It never fails: absent or
// unparseable input yields ok=false.
func parseNested(raw json.RawMessage) (any, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, false
	}

	if raw[0] == '"' {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return nil, false
		}
		return decodeEncoded(encoded)
	}

	v, err := decodeJSON([]byte(raw))
	if err != nil {
		return decodeEncoded(string(raw))
	}
	return v, v != nil
}

func decodeEncoded(s string) (any, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "None" || s == "nan" || s == "NaN" {
		return nil, false
	}
	if v, err := decodeJSON([]byte(s)); err == nil {
		return v, v != nil
	}
	converted, ok := pythonLiteralToJSON(s)
	if !ok {
		return nil, false
	}
	v, err := decodeJSON([]byte(converted))
	if err != nil {
		return nil, false
	}
	return v, v != nil
}

func decodeJSON(b []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errTrailingData
	}
	return v, nil
}

var errTrailingData = errors.New("trailing data after value")

// pythonLiteralToJSON rewrites a Python dict/list literal into JSON:
// single-quoted strings become double-quoted and None/True/False become
// null/true/false. Anything it cannot tokenize is rejected.
func pythonLiteralToJSON(s string) (string, bool) {
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '\'' || c == '"':
			end, body, ok := scanQuoted(s, i)
			if !ok {
				return "", false
			}
			quoted, err := json.Marshal(body)
			if err != nil {
				return "", false
			}
			b.Write(quoted)
			i = end
		case isIdentStart(c) && !(i > 0 && isNumberPart(s[i-1])):
			j := i
			for j < len(s) && isIdentPart(s[j]) {
				j++
			}
			switch s[i:j] {
			case "None":
				b.WriteString("null")
			case "True":
				b.WriteString("true")
			case "False":
				b.WriteString("false")
			default:
				return "", false
			}
			i = j
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), true
}

// scanQuoted reads a quoted Python string starting at s[start] and returns
// the index after the closing quote and the unescaped body.
func scanQuoted(s string, start int) (int, string, bool) {
	quote := s[start]
	var body strings.Builder
	for i := start + 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s):
			i++
			switch s[i] {
			case 'n':
				body.WriteByte('\n')
			case 't':
				body.WriteByte('\t')
			case 'r':
				body.WriteByte('\r')
			default:
				body.WriteByte(s[i])
			}
		case c == quote:
			return i + 1, body.String(), true
		default:
			body.WriteByte(c)
		}
	}
	return 0, "", false
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// isNumberPart lets exponents such as 1e-05 pass through untouched.
func isNumberPart(c byte) bool {
	return (c >= '0' && c <= '9') || c == '.'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// satisfactionScore returns the score of a satisfaction rating object.
func satisfactionScore(raw json.RawMessage) null.String {
	v, ok := parseNested(raw)
	if !ok {
		return null.String{}
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return null.String{}
	}
	score, ok := obj["score"].(string)
	if !ok {
		return null.String{}
	}
	return null.StringFrom(score)
}

// customFieldValue scans a custom field list for fieldID and returns its
// string value.
func customFieldValue(raw json.RawMessage, fieldID int64) null.String {
	v, ok := parseNested(raw)
	if !ok {
		return null.String{}
	}
	fields, ok := v.([]any)
	if !ok {
		return null.String{}
	}
	for _, f := range fields {
		field, ok := f.(map[string]any)
		if !ok {
			continue
		}
		id, ok := field["id"].(json.Number)
		if !ok {
			continue
		}
		n, err := id.Int64()
		if err != nil || n != fieldID {
			continue
		}
		value, ok := field["value"].(string)
		if !ok {
			return null.String{}
		}
		return null.StringFrom(value)
	}
	return null.String{}
}

// businessMinutes returns the business-time minute count of a timing object.
func businessMinutes(raw json.RawMessage) null.Float64 {
	v, ok := parseNested(raw)
	if !ok {
		return null.Float64{}
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return null.Float64{}
	}
	n, ok := obj["business"].(json.Number)
	if !ok {
		return null.Float64{}
	}
	f, err := n.Float64()
	if err != nil {
		return null.Float64{}
	}
	return null.Float64From(f)
}

func minutesToHours(m null.Float64) null.Float64 {
	if !m.Valid {
		return null.Float64{}
	}
	return null.Float64From(m.Float64 / 60)
}
