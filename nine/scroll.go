package nine

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// Tense is the ordinal enum for Metadata's linguistic tense hint.
type Tense string

// The three recognized tense values.
const (
	TensePast    Tense = "past"
	TensePresent Tense = "present"
	TenseFuture  Tense = "future"
)

// Metadata carries every field attached to a Scroll beyond its data. All
// temporal, linguistic, and taxonomic fields are optional; Version and Hash
// are authoritative and always recomputed by the namespace that persists
// the Scroll, never trusted from caller input.
type Metadata struct {
	// Temporal, milliseconds since the Unix epoch.
	CreatedAt *int64 `json:"createdAt,omitempty"`
	UpdatedAt *int64 `json:"updatedAt,omitempty"`
	SyncedAt  *int64 `json:"syncedAt,omitempty"`
	ExpiresAt *int64 `json:"expiresAt,omitempty"`

	// Lifecycle.
	Version int64  `json:"version"`
	Hash    string `json:"hash,omitempty"`
	Deleted *bool  `json:"deleted,omitempty"`

	// Linguistic.
	Subject *string `json:"subject,omitempty"`
	Verb    *string `json:"verb,omitempty"`
	Object  *string `json:"object,omitempty"`
	Tense   *Tense  `json:"tense,omitempty"`

	// Taxonomic.
	Kingdom *string `json:"kingdom,omitempty"`
	Phylum  *string `json:"phylum,omitempty"`
	Class   *string `json:"class,omitempty"`

	// Extensions holds arbitrary consumer-recognized key/value pairs.
	// On serialization these are spread at the top level of the metadata
	// object; on parse, any key not recognized above becomes an
	// extension.
	Extensions map[string]any `json:"-"`
}

// knownMetadataKeys lists every field name that must never be treated as
// an extension, even if absent from a particular Scroll.
var knownMetadataKeys = map[string]bool{
	"createdAt": true, "updatedAt": true, "syncedAt": true, "expiresAt": true,
	"version": true, "hash": true, "deleted": true,
	"subject": true, "verb": true, "object": true, "tense": true,
	"kingdom": true, "phylum": true, "class": true,
}

// MarshalJSON spreads Extensions at the top level alongside the known
// fields, per the wire form in spec §6.
func (m Metadata) MarshalJSON() ([]byte, error) {
	type known Metadata // avoid recursing into this MarshalJSON
	base, err := json.Marshal(known(m))
	if err != nil {
		return nil, err
	}
	if len(m.Extensions) == 0 {
		return base, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range m.Extensions {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		merged[k] = raw
	}
	return marshalSortedObject(merged)
}

// marshalSortedObject renders a map of raw JSON values as an object with
// keys sorted by Unicode code point, for deterministic output.
func marshalSortedObject(m map[string]json.RawMessage) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(m[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON collects any key not in knownMetadataKeys into Extensions.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	type known Metadata
	var k known
	if err := json.Unmarshal(data, &k); err != nil {
		return err
	}
	*m = Metadata(k)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key, v := range raw {
		if knownMetadataKeys[key] {
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return err
		}
		if m.Extensions == nil {
			m.Extensions = make(map[string]any)
		}
		m.Extensions[key] = val
	}
	return nil
}

// UpdatedAtOrZero returns *m.UpdatedAt, or 0 if unset.
func (m Metadata) UpdatedAtOrZero() int64 {
	if m.UpdatedAt == nil {
		return 0
	}
	return *m.UpdatedAt
}

// Clone returns a deep copy of m.
func (m Metadata) Clone() Metadata {
	c := m
	c.CreatedAt = clonePtr(m.CreatedAt)
	c.UpdatedAt = clonePtr(m.UpdatedAt)
	c.SyncedAt = clonePtr(m.SyncedAt)
	c.ExpiresAt = clonePtr(m.ExpiresAt)
	c.Deleted = clonePtr(m.Deleted)
	c.Subject = clonePtr(m.Subject)
	c.Verb = clonePtr(m.Verb)
	c.Object = clonePtr(m.Object)
	c.Tense = clonePtr(m.Tense)
	c.Kingdom = clonePtr(m.Kingdom)
	c.Phylum = clonePtr(m.Phylum)
	c.Class = clonePtr(m.Class)
	if m.Extensions != nil {
		c.Extensions = make(map[string]any, len(m.Extensions))
		for k, v := range m.Extensions {
			c.Extensions[k] = v
		}
	}
	return c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Scroll is the universal, immutable data envelope: a key, an opaque type
// hint, a JSON-compatible data map, and metadata.
type Scroll struct {
	Key      string         `json:"key"`
	Type     string         `json:"type,omitempty"`
	Metadata Metadata       `json:"metadata"`
	Data     map[string]any `json:"data"`
}

// Clone returns a deep copy of s, including its Data tree.
func (s *Scroll) Clone() *Scroll {
	if s == nil {
		return nil
	}
	c := &Scroll{
		Key:      s.Key,
		Type:     s.Type,
		Metadata: s.Metadata.Clone(),
		Data:     CloneValue(s.Data).(map[string]any),
	}
	return c
}

// CloneValue deep-copies a canonical JSON value tree (nil, bool,
// json.Number, string, []any, or map[string]any).
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		c := make(map[string]any, len(t))
		for k, vv := range t {
			c[k] = CloneValue(vv)
		}
		return c
	case []any:
		c := make([]any, len(t))
		for i, vv := range t {
			c[i] = CloneValue(vv)
		}
		return c
	default:
		return t
	}
}

// Equal reports whether two canonical JSON value trees are deeply equal:
// maps are compared structurally (key-order independent), lists
// positionally.
func Equal(a, b any) bool {
	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bvv, ok := bv[k]
			if !ok || !Equal(v, bvv) {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i, v := range av {
			if !Equal(v, bv[i]) {
				return false
			}
		}
		return true
	default:
		return numericAwareEqual(a, b)
	}
}

// numericAwareEqual compares scalars. Backends that round-trip Data
// through JSON (file, store, the wire protocol) hand back numbers as
// float64 or json.Number even when the original caller wrote a native Go
// int; without this, a value that numerically survived a write/read cycle
// would fail equality and patch diffing would treat it as a spurious
// change. Any two mutually comparable numeric kinds are compared by value;
// everything else falls back to Go equality.
func numericAwareEqual(a, b any) bool {
	if a == b {
		return true
	}
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		return af == bf
	}
	return false
}

// asFloat reports v's numeric value if v is one of the scalar numeric
// kinds this module's Data tree may contain (native Go ints/floats from a
// direct caller, or json.Number/float64 from a JSON round trip).
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Canonical returns the canonical JSON encoding of v: object keys sorted by
// Unicode code point, no insignificant whitespace, strict JSON string
// escaping. This is the sole encoder used for hashing; no ad-hoc
// serialization is permitted elsewhere in this module.
func Canonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := canonicalEncode(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func canonicalEncode(buf *bytes.Buffer, v any) error {
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
	case map[string]any:
		raw := make(map[string]json.RawMessage, len(t))
		for k, vv := range t {
			b, err := Canonical(vv)
			if err != nil {
				return err
			}
			raw[k] = b
		}
		out, err := marshalSortedObject(raw)
		if err != nil {
			return err
		}
		buf.Write(out)
		return nil
	case []any:
		buf.WriteByte('[')
		for i, vv := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := canonicalEncode(buf, vv); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	default:
		return encodeScalar(buf, v)
	}
}

// encodeScalar handles strings and numbers (including json.Number) with
// strict JSON escaping and no HTML-escaping quirks.
func encodeScalar(buf *bytes.Buffer, v any) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	// encoding/json.Encoder.Encode appends a trailing newline; strip it.
	b := buf.Bytes()
	if len(b) > 0 && b[len(b)-1] == '\n' {
		buf.Truncate(buf.Len() - 1)
	}
	return nil
}

// Hash computes the SHA-256 hash of the Scroll's content, as specified:
// SHA-256(UTF-8(key || type || canonical-json(data))), lowercase hex.
func Hash(key, typ string, data map[string]any) (string, error) {
	canon, err := Canonical(data)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(key))
	h.Write([]byte(typ))
	h.Write(canon)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// DecodeData parses a JSON object into the canonical value representation
// used throughout this module (numbers preserved via json.Number so int
// and float inputs remain distinguishable).
func DecodeData(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, &Error{Class: InvalidData, Err: errNotAnObject}
	}
	return m, nil
}

var errNotAnObject = jsonNotObjectError{}

type jsonNotObjectError struct{}

func (jsonNotObjectError) Error() string { return "data is not a JSON object" }
