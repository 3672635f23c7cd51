package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// MetadataKind discriminates the variants of a MetadataValue.
type MetadataKind int

const (
	MetadataKindString MetadataKind = iota
	MetadataKindNumber
	MetadataKindBool
	MetadataKindTime
)

// MetadataValue is one scalar metadata value. The core never interprets
// metadata beyond pass-through; the tagged union exists so values round-trip
// through storage without loss of type.
type MetadataValue struct {
	kind MetadataKind
	str  string
	num  float64
	b    bool
	t    time.Time
}

// StringValue creates a string metadata value.
func StringValue(s string) MetadataValue {
	return MetadataValue{kind: MetadataKindString, str: s}
}

// NumberValue creates a numeric metadata value.
func NumberValue(n float64) MetadataValue {
	return MetadataValue{kind: MetadataKindNumber, num: n}
}

// BoolValue creates a boolean metadata value.
func BoolValue(v bool) MetadataValue {
	return MetadataValue{kind: MetadataKindBool, b: v}
}

// TimeValue creates a timestamp metadata value.
func TimeValue(t time.Time) MetadataValue {
	return MetadataValue{kind: MetadataKindTime, t: t}
}

// Kind returns the variant discriminator.
func (v MetadataValue) Kind() MetadataKind { return v.kind }

// String returns the string variant (zero value if another kind).
func (v MetadataValue) String() string { return v.str }

// Number returns the numeric variant (zero value if another kind).
func (v MetadataValue) Number() float64 { return v.num }

// Bool returns the boolean variant (zero value if another kind).
func (v MetadataValue) Bool() bool { return v.b }

// Time returns the timestamp variant (zero value if another kind).
func (v MetadataValue) Time() time.Time { return v.t }

// metadataJSON is the storage representation, one field per variant.
type metadataJSON struct {
	S *string    `json:"s,omitempty"`
	N *float64   `json:"n,omitempty"`
	B *bool      `json:"b,omitempty"`
	T *time.Time `json:"t,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (v MetadataValue) MarshalJSON() ([]byte, error) {
	var m metadataJSON
	switch v.kind {
	case MetadataKindString:
		m.S = &v.str
	case MetadataKindNumber:
		m.N = &v.num
	case MetadataKindBool:
		m.B = &v.b
	case MetadataKindTime:
		m.T = &v.t
	}
	return json.Marshal(m)
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *MetadataValue) UnmarshalJSON(data []byte) error {
	var m metadataJSON
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	switch {
	case m.S != nil:
		*v = StringValue(*m.S)
	case m.N != nil:
		*v = NumberValue(*m.N)
	case m.B != nil:
		*v = BoolValue(*m.B)
	case m.T != nil:
		*v = TimeValue(*m.T)
	default:
		return fmt.Errorf("metadata value has no variant set")
	}
	return nil
}

// EncodeMetadata serializes a metadata map to JSON for storage.
// A nil map encodes as an empty object for stable round-trips.
func EncodeMetadata(m map[string]MetadataValue) ([]byte, error) {
	if m == nil {
		m = map[string]MetadataValue{}
	}
	return json.Marshal(m)
}

// DecodeMetadata deserializes a metadata map from storage.
func DecodeMetadata(data []byte) (map[string]MetadataValue, error) {
	if len(data) == 0 {
		return map[string]MetadataValue{}, nil
	}
	var m map[string]MetadataValue
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return m, nil
}
