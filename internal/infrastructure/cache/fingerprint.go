package cache

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"golang.org/x/crypto/blake2b"
)

// KeyPrefix is prepended to every fingerprint.
const KeyPrefix = "stats:"

// Fingerprint derives the cache key of a request.
//
// The request is serialised to JSON and canonicalised before hashing:
// object keys are sorted and numbers are re-formatted so logically
// identical requests hash identically regardless of key order or number
// spelling (1, 1.0, 1e0). Integer literals keep every digit.
// []byte and json.RawMessage are taken as already-encoded JSON.
func Fingerprint(request any) (string, error) {
	canonical, err := Canonicalize(request)
	if err != nil {
		return "", err
	}
	sum := blake2b.Sum256(canonical)
	return KeyPrefix + hex.EncodeToString(sum[:]), nil
}

// Canonicalize returns the canonical JSON form of request.
func Canonicalize(request any) ([]byte, error) {
	var raw []byte
	switch v := request.(type) {
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		b, err := json.Marshal(request)
		if err != nil {
			return nil, fmt.Errorf("fingerprint: marshal request: %w", err)
		}
		raw = b
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("fingerprint: decode request: %w", err)
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, tree); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		buf.WriteString(strconv.FormatBool(t))
	case json.Number:
		s, err := canonicalNumber(t)
		if err != nil {
			return err
		}
		buf.WriteString(s)
	case string:
		b, _ := json.Marshal(t)
		buf.Write(b)
	case []any:
		buf.WriteByte('[')
		for i, item := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeCanonical(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("fingerprint: unexpected JSON value %T", v)
	}
	return nil
}

// canonicalNumber spells integers in plain decimal and everything else in
// the shortest 'g' form. Literals that fit int64 are formatted from the
// integer so values past 2^53 stay distinct.
func canonicalNumber(n json.Number) (string, error) {
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	f, err := n.Float64()
	if err != nil {
		return "", fmt.Errorf("fingerprint: number %q: %w", n, err)
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return strconv.FormatInt(int64(f), 10), nil
	}
	return strconv.FormatFloat(f, 'g', -1, 64), nil
}
