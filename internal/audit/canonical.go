package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// canonicalJSON serializes v into a deterministic compact JSON form suitable
// for hashing: object keys are sorted, and every number is reduced to a
// canonical decimal representation so the same logical value hashes
// identically regardless of the numeric type that produced it (int vs float,
// 1e3 vs 1000).
func canonicalJSON(v any) ([]byte, error) {
	tree, err := toTree(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := writeCanonical(&buf, tree); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// toTree round-trips v through encoding/json so the result contains only
// map[string]any, []any, string, json.Number, bool, and nil.
func toTree(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalizing payload: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("canonicalizing payload: %w", err)
	}
	return tree, nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		enc, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(enc)
	case json.Number:
		buf.WriteString(canonicalNumber(val))
	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			enc, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(enc)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("canonical serialization: unsupported type %T", v)
	}
	return nil
}

// canonicalNumber reduces any JSON number to a fixed decimal text form:
// shortest 'f' formatting of the float64 value, no exponent notation.
func canonicalNumber(n json.Number) string {
	f, err := n.Float64()
	if err != nil {
		// Not representable as a float (e.g. huge integer); the raw
		// lexeme is already deterministic for a given producer.
		return n.String()
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
