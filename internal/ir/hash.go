package ir

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strconv"
	"strings"
)

// QueryHash is the 32-bit content identity of a (query, model) pair.
type QueryHash uint32

// String renders the hash as an unsigned decimal, the form used in logs.
func (h QueryHash) String() string {
	return strconv.FormatUint(uint64(h), 10)
}

// UnsupportedValueTypeError reports a value that has no canonical identity form.
type UnsupportedValueTypeError struct {
	// Path locates the offending value, e.g. `"path"."subj"[0]`.
	Path string
	// Type is the Go type name of the value.
	Type string
}

func (e *UnsupportedValueTypeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("unsupported value type %s", e.Type)
	}
	return fmt.Sprintf("unsupported value type %s at %s", e.Type, e.Path)
}

// IsUnsupportedValueType returns true if err is or wraps an UnsupportedValueTypeError.
func IsUnsupportedValueType(err error) bool {
	var uv *UnsupportedValueTypeError
	return errors.As(err, &uv)
}

// HashWithModel computes the identity of a serialized query on a model.
// Format: FNV-1a-32(modelID + ":" + CanonicalString(v))
//
// Equal content always produces an equal hash regardless of map key order or
// list element order.
func HashWithModel(v any, modelID string) (QueryHash, error) {
	canonical, err := CanonicalString(v)
	if err != nil {
		return 0, fmt.Errorf("HashWithModel: %w", err)
	}
	h := fnv.New32a()
	h.Write([]byte(modelID + ":" + canonical))
	return QueryHash(h.Sum32()), nil
}

// MustHashWithModel is like HashWithModel but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustHashWithModel(v any, modelID string) QueryHash {
	h, err := HashWithModel(v, modelID)
	if err != nil {
		panic(err)
	}
	return h
}

// CanonicalString produces the order-independent identity form of a value.
//
//   - strings pass through unchanged
//   - floats use their shortest decimal form, always with a fraction or
//     exponent
//   - maps become "{" + sorted(key+canonical(value)) joined by "," + "}"
//   - lists become "[" + sorted(canonical(elem)) joined by "," + "]"
//
// Any other type, integers included, is an UnsupportedValueTypeError.
//
// The map rule sorts whole key+value entries rather than bare keys; this keeps
// hashes stable with records written by earlier deployments.
func CanonicalString(v any) (string, error) {
	return canonicalString(v, "")
}

func canonicalString(v any, path string) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case float64:
		return formatFloat(val), nil
	case float32:
		return formatFloat(float64(val)), nil
	case json.Number:
		return canonicalNumber(val, path)
	case map[string]any:
		entries := make([]string, 0, len(val))
		for k, elem := range val {
			s, err := canonicalString(elem, path+strconv.Quote(k)+".")
			if err != nil {
				return "", err
			}
			entries = append(entries, k+s)
		}
		return joinSorted("{", entries, "}"), nil
	case map[string]string:
		entries := make([]string, 0, len(val))
		for k, elem := range val {
			entries = append(entries, k+elem)
		}
		return joinSorted("{", entries, "}"), nil
	case []any:
		elems := make([]string, 0, len(val))
		for i, elem := range val {
			s, err := canonicalString(elem, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return "", err
			}
			elems = append(elems, s)
		}
		return joinSorted("[", elems, "]"), nil
	case []string:
		elems := append([]string(nil), val...)
		return joinSorted("[", elems, "]"), nil
	default:
		return "", &UnsupportedValueTypeError{
			Path: strings.TrimSuffix(path, "."),
			Type: fmt.Sprintf("%T", v),
		}
	}
}

func joinSorted(open string, parts []string, close string) string {
	sort.Strings(parts)
	return open + strings.Join(parts, ",") + close
}

// canonicalNumber handles numbers decoded with json.Decoder.UseNumber.
// Only float literals, with a fraction or exponent, are accepted. Integer
// literals are unsupported like Go integer values.
func canonicalNumber(n json.Number, path string) (string, error) {
	s := string(n)
	f, err := n.Float64()
	if err != nil || !strings.ContainsAny(s, ".eE") {
		return "", &UnsupportedValueTypeError{
			Path: strings.TrimSuffix(path, "."),
			Type: "json.Number(" + s + ")",
		}
	}
	return formatFloat(f), nil
}

// formatFloat renders f as the shortest repr that round-trips, switching to
// exponent form outside [1e-4, 1e16) and always keeping a ".0" on integral
// values written in positional form.
func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}

	if f == 0 {
		if math.Signbit(f) {
			return "-0.0"
		}
		return "0.0"
	}

	// The exponent of the shortest scientific form decides the layout.
	sci := strconv.FormatFloat(f, 'e', -1, 64)
	exp, _ := strconv.Atoi(sci[strings.IndexByte(sci, 'e')+1:])

	if exp < -4 || exp >= 16 {
		return sci
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}
