package history

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/tidwall/gjson"
)

// Store values are written by tooling that emits either JSON or python-style
// literals ("['a', 'b']", "{'10.0.0.2'}", "{'ip-address': '10.0.0.1'}").
// Every decoder normalizes to JSON first and then walks the value with gjson.

var errNotArray = errors.New("value is not a list")

func parseLiteral(raw string) (gjson.Result, error) {
	s := normalizeLiteral(raw)
	if !gjson.Valid(s) {
		return gjson.Result{}, fmt.Errorf("malformed literal %q", truncate(raw, 64))
	}
	return gjson.Parse(s), nil
}

// numpyScalar matches numpy scalar reprs such as np.float64(0.7) or
// np.str_('a'), which numpy 2 emits inside lists.
var numpyScalar = regexp.MustCompile(`\b(?:np|numpy)\.[a-z_]+[0-9]*\(([^()]*)\)`)

// normalizeLiteral rewrites a python literal as JSON. Valid JSON is returned
// unchanged.
func normalizeLiteral(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "set()" {
		return "[]"
	}
	if gjson.Valid(s) {
		return s
	}
	s = numpyScalar.ReplaceAllString(s, "$1")

	var b bytes.Buffer
	b.Grow(len(s) + 8)
	runes := []rune(s)

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '\'':
			i = copySingleQuoted(&b, runes, i)
		case r == '"':
			i = copyDoubleQuoted(&b, runes, i)
		case r == '(' || r == '[':
			b.WriteByte('[')
		case r == ')' || r == ']' || r == '}':
			// ('a',) and ['a', 'b',]
			dropTrailingComma(&b)
			if r == '}' {
				b.WriteByte('}')
			} else {
				b.WriteByte(']')
			}
		case unicode.IsLetter(r):
			j := i
			for j < len(runes) && (unicode.IsLetter(runes[j]) || runes[j] == '_') {
				j++
			}
			switch word := string(runes[i:j]); word {
			case "True":
				b.WriteString("true")
			case "False":
				b.WriteString("false")
			case "None":
				b.WriteString("null")
			default:
				b.WriteString(word)
			}
			i = j - 1
		default:
			b.WriteRune(r)
		}
	}

	out := b.String()
	// A python set of scalars: {'a', 'b'}
	if !gjson.Valid(out) && strings.HasPrefix(out, "{") && strings.HasSuffix(out, "}") {
		if asList := "[" + out[1:len(out)-1] + "]"; gjson.Valid(asList) {
			return asList
		}
	}
	return out
}

func dropTrailingComma(b *bytes.Buffer) {
	data := bytes.TrimRight(b.Bytes(), " \t\n")
	if len(data) > 0 && data[len(data)-1] == ',' {
		b.Truncate(len(data) - 1)
	}
}

// copySingleQuoted writes the python string starting at runes[start] as a
// JSON string and returns the index of its closing quote.
func copySingleQuoted(b *bytes.Buffer, runes []rune, start int) int {
	b.WriteRune('"')
	i := start + 1
	for ; i < len(runes); i++ {
		r := runes[i]
		switch r {
		case '\\':
			if i+1 < len(runes) {
				i++
				if runes[i] == '\'' {
					b.WriteRune('\'')
				} else {
					b.WriteRune('\\')
					b.WriteRune(runes[i])
				}
			}
		case '"':
			b.WriteString(`\"`)
		case '\'':
			b.WriteRune('"')
			return i
		default:
			b.WriteRune(r)
		}
	}
	return i
}

func copyDoubleQuoted(b *bytes.Buffer, runes []rune, start int) int {
	b.WriteRune('"')
	i := start + 1
	for ; i < len(runes); i++ {
		r := runes[i]
		b.WriteRune(r)
		if r == '\\' && i+1 < len(runes) {
			i++
			b.WriteRune(runes[i])
			continue
		}
		if r == '"' {
			return i
		}
	}
	return i
}

// decodeVector decodes a numeric list of exactly dim elements.
func decodeVector(raw string, dim int) ([]float64, error) {
	v, err := decodeFloats(raw)
	if err != nil {
		return nil, err
	}
	if len(v) != dim {
		return nil, fmt.Errorf("vector has %d elements, want %d", len(v), dim)
	}
	return v, nil
}

func decodeFloats(raw string) ([]float64, error) {
	res, err := parseLiteral(raw)
	if err != nil {
		return nil, err
	}
	if !res.IsArray() {
		return nil, errNotArray
	}

	elems := res.Array()
	out := make([]float64, 0, len(elems))
	for i, e := range elems {
		if e.Type != gjson.Number {
			return nil, fmt.Errorf("element %d (%s) is not a number", i, truncate(e.Raw, 32))
		}
		out = append(out, e.Float())
	}
	return out, nil
}

func decodeStrings(raw string) ([]string, error) {
	res, err := parseLiteral(raw)
	if err != nil {
		return nil, err
	}
	if !res.IsArray() {
		return nil, errNotArray
	}

	elems := res.Array()
	out := make([]string, 0, len(elems))
	for i, e := range elems {
		if e.Type != gjson.String {
			return nil, fmt.Errorf("element %d (%s) is not a string", i, truncate(e.Raw, 32))
		}
		out = append(out, e.String())
	}
	return out, nil
}

func decodeTimestamps(raw string) ([]Timestamp, error) {
	res, err := parseLiteral(raw)
	if err != nil {
		return nil, err
	}
	if !res.IsArray() {
		return nil, errNotArray
	}

	elems := res.Array()
	out := make([]Timestamp, 0, len(elems))
	for _, e := range elems {
		ts, err := timestampFromResult(e)
		if err != nil {
			return nil, err
		}
		out = append(out, ts)
	}
	return out, nil
}

// decodeEndpointAddress extracts "ip-address" from an endpoint dict literal.
func decodeEndpointAddress(raw string) (string, error) {
	res, err := parseLiteral(raw)
	if err != nil {
		return "", err
	}
	if !res.IsObject() {
		return "", errors.New("endpoint is not a dict")
	}

	addr := res.Get("ip-address")
	if addr.Type != gjson.String || addr.String() == "" {
		return "", errors.New(`endpoint has no "ip-address"`)
	}
	return addr.String(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
