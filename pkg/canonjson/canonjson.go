// Package canonjson implements a deterministic, canonical JSON encoding
// suitable for hashing and signing: object keys sorted by UTF-8 codepoint,
// minimal string escaping, shortest round-trippable number formatting, and
// no byte-order-mark or insignificant whitespace. Two implementations
// exist independently could disagree on floating point formatting or key
// ordering; this package exists so ours never does.
//
// Two entry points cover the two places canonical bytes are produced from:
// Marshal, for Go values this program constructs itself, and
// CanonicalizeJSON, for externally supplied JSON bytes (e.g. a bundle read
// back off disk) where duplicate keys must be rejected rather than
// silently resolved by last-write-wins.
package canonjson

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ErrDuplicateKey is returned when an input JSON object contains the same
// key more than once. Canonicalization refuses to silently pick a winner.
var ErrDuplicateKey = errors.New("canonjson: duplicate object key")

// ErrUnsupportedType is returned for values canonical JSON cannot express:
// channels, functions, complex numbers, and NaN/Inf floats.
var ErrUnsupportedType = errors.New("canonjson: unsupported value")

// ErrCyclicValue is returned when a Go value contains a reference cycle.
var ErrCyclicValue = errors.New("canonjson: cyclic value")

// Marshal produces the canonical JSON encoding of v. v is first passed
// through encoding/json (so struct tags, MarshalJSON methods, etc. behave
// exactly as they do for normal encoding), then the result is
// re-normalized into canonical form.
func Marshal(v any) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrCyclicValue, r)
		}
	}()

	raw, err := json.Marshal(v)
	if err != nil {
		var unsupported *json.UnsupportedValueError
		var unsupportedType *json.UnsupportedTypeError
		if errors.As(err, &unsupported) && strings.Contains(unsupported.Str, "cycle") {
			return nil, fmt.Errorf("%w: %v", ErrCyclicValue, err)
		}
		if errors.As(err, &unsupported) || errors.As(err, &unsupportedType) {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedType, err)
		}
		return nil, err
	}
	return CanonicalizeJSON(raw)
}

// MarshalHash is Marshal followed by a lowercase hex SHA-256 digest of the
// canonical bytes. Used pervasively for payloadHash/manifestHash/etc.
func MarshalHash(v any) (digestHex string, canonical []byte, err error) {
	canonical, err = Marshal(v)
	if err != nil {
		return "", nil, err
	}
	return HashHex(canonical), canonical, nil
}

// HashHex returns the lowercase hex SHA-256 digest of canonical bytes.
func HashHex(canonical []byte) string {
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// CanonicalizeJSON re-encodes already-serialized JSON bytes into canonical
// form, rejecting duplicate object keys, NaN/Inf (impossible in valid JSON
// but guarded anyway), and malformed input. The BOM, if present, is
// rejected rather than stripped: canonical bytes never carry one.
func CanonicalizeJSON(raw []byte) ([]byte, error) {
	if len(raw) >= 3 && raw[0] == 0xEF && raw[1] == 0xBB && raw[2] == 0xBF {
		return nil, fmt.Errorf("canonjson: byte order mark not allowed")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	val, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("canonjson: trailing data after JSON value")
	}
	var buf bytes.Buffer
	if err := encodeValue(&buf, val); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeValue reads one JSON value from dec using the token API so that
// duplicate object keys can be detected (encoding/json's map decoding
// silently keeps the last one).
func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return decodeFromToken(dec, tok)
}

func decodeFromToken(dec *json.Decoder, tok json.Token) (any, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := make(map[string]any)
			seen := make(map[string]struct{})
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("canonjson: non-string object key")
				}
				if _, dup := seen[key]; dup {
					return nil, fmt.Errorf("%w: %q", ErrDuplicateKey, key)
				}
				seen[key] = struct{}{}
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				obj[key] = val
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return nil, err
			}
			return obj, nil
		case '[':
			arr := make([]any, 0)
			for dec.More() {
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, val)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return nil, err
			}
			return arr, nil
		default:
			return nil, fmt.Errorf("canonjson: unexpected delimiter %v", t)
		}
	case json.Number, string, bool, nil:
		return t, nil
	default:
		return nil, fmt.Errorf("canonjson: unexpected token %v", t)
	}
}

func encodeValue(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case json.Number:
		return encodeNumber(buf, t)
	case string:
		encodeString(buf, t)
		return nil
	case map[string]any:
		return encodeObject(buf, t)
	case []any:
		return encodeArray(buf, t)
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedType, v)
	}
}

func encodeObject(buf *bytes.Buffer, obj map[string]any) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys) // byte-wise sort of UTF-8 is codepoint order
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		encodeString(buf, k)
		buf.WriteByte(':')
		if err := encodeValue(buf, obj[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func encodeArray(buf *bytes.Buffer, arr []any) error {
	buf.WriteByte('[')
	for i, v := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encodeValue(buf, v); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

const hexDigits = "0123456789abcdef"

// encodeString writes the minimal escape set: quote, backslash, and
// control characters. Everything else, including '/', '<', '>', '&', and
// non-ASCII, is passed through verbatim.
func encodeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		default:
			if r < 0x20 {
				buf.WriteString(`\u00`)
				buf.WriteByte(hexDigits[(r>>4)&0xF])
				buf.WriteByte(hexDigits[r&0xF])
				continue
			}
			buf.WriteRune(r)
		}
	}
	buf.WriteByte('"')
}

// encodeNumber re-renders a json.Number in minimal, shortest
// round-trippable form: integers with no leading zeros (other than a bare
// "0") and no trailing ".0", floats via the shortest decimal that
// round-trips through float64, exponent sign normalized to omit "+".
func encodeNumber(buf *bytes.Buffer, n json.Number) error {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		// Integral literal: validate and normalize sign/leading zeros.
		neg := strings.HasPrefix(s, "-")
		digits := s
		if neg {
			digits = s[1:]
		}
		if digits == "" {
			return fmt.Errorf("canonjson: malformed number %q", s)
		}
		digits = strings.TrimLeft(digits, "0")
		if digits == "" {
			digits = "0"
		}
		if neg && digits != "0" {
			buf.WriteByte('-')
		}
		buf.WriteString(digits)
		return nil
	}

	f, err := n.Float64()
	if err != nil {
		return fmt.Errorf("canonjson: malformed number %q: %w", s, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("%w: NaN/Inf not representable in JSON", ErrUnsupportedType)
	}
	out := strconv.FormatFloat(f, 'g', -1, 64)
	// strconv renders exponents as e+NN / e-NN; JSON canonical form drops
	// the '+' for brevity while keeping '-'.
	out = strings.Replace(out, "e+", "e", 1)
	buf.WriteString(out)
	return nil
}
