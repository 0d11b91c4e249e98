// Package canon provides deterministic canonical JSON serialization and
// content hashing for the recording engine. Every hash named by the
// specification — asset ids, event hashes, manifest and bundle hashes — is
// computed over the canonical encoding this package produces, and every hash
// is rendered as lowercase hex BLAKE3, matching the hashing library already
// pulled in by the wider corpus for content-addressed blob stores.
package canon

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"lukechampine.com/blake3"
)

// ErrNonFiniteFloat is returned when a value to be canonicalized contains a
// NaN or +/-Inf float, which has no canonical JSON representation.
var ErrNonFiniteFloat = fmt.Errorf("canon: non-finite float cannot be serialized")

// Marshal produces the canonical JSON encoding of v: object keys sorted
// lexicographically at every depth, array order preserved, no insignificant
// whitespace, UTF-8 output, and '<', '>', '&' left unescaped (HTML-escaping
// is a presentation concern and would make the same value hash differently
// depending on whether it went through an HTTP response writer).
func Marshal(v any) ([]byte, error) {
	// Round-trip through json.Marshal/Unmarshal into a generic tree so that
	// struct field tags, omitempty, etc. are respected, then re-encode that
	// tree deterministically. json.Number is used so integers large enough
	// to lose precision as float64 are not corrupted.
	raw, err := json.Marshal(v)
	if err != nil {
		var uve *json.UnsupportedValueError
		if errors.As(err, &uve) && (uve.Str == "NaN" || uve.Str == "+Inf" || uve.Str == "-Inf") {
			return nil, ErrNonFiniteFloat
		}
		return nil, fmt.Errorf("canon: marshal: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("canon: decode intermediate: %w", err)
	}

	var buf bytes.Buffer
	if err := encodeCanonical(&buf, tree); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalToString is a convenience wrapper around Marshal.
func MarshalToString(v any) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func encodeCanonical(buf *bytes.Buffer, v any) error {
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
		return encodeString(buf, t)
	case []any:
		buf.WriteByte('[')
		for i, elem := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeCanonical(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
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
			if err := encodeString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := encodeCanonical(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	default:
		return fmt.Errorf("canon: unsupported type %T in canonical tree", v)
	}
}

// encodeNumber prefers a signed-integer rendering when the json.Number is
// lossless as an int64; otherwise it falls back to the shortest
// round-tripping decimal float64 rendering. Non-finite values are rejected.
func encodeNumber(buf *bytes.Buffer, n json.Number) error {
	if i, err := n.Int64(); err == nil {
		fmt.Fprintf(buf, "%d", i)
		return nil
	}
	f, err := n.Float64()
	if err != nil {
		return fmt.Errorf("canon: invalid number %q: %w", n.String(), err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ErrNonFiniteFloat
	}
	// strconv via %g with -1 precision gives the shortest round-tripping
	// decimal; json.Marshal does the same internally for float64.
	b, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("canon: marshal float: %w", err)
	}
	buf.Write(b)
	return nil
}

func encodeString(buf *bytes.Buffer, s string) error {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("canon: marshal string: %w", err)
	}
	buf.Write(bytes.TrimSuffix(b.Bytes(), []byte("\n")))
	return nil
}

// Hash returns the lowercase hex BLAKE3 digest of b.
func Hash(b []byte) string {
	sum := blake3.Sum256(b)
	return fmt.Sprintf("%x", sum[:])
}

// HashJSON canonicalizes v and returns its BLAKE3 hash.
func HashJSON(v any) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return Hash(b), nil
}
