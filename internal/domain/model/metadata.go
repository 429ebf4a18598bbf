package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
)

// Metadata limits.
const (
	MaxMetadataKeys     = 32
	MaxScalarStringSize = 1024
)

var metadataKeyPattern = regexp.MustCompile(`^[a-z][a-z0-9_.-]{0,63}$`)

// ScalarKind enumerates the value types allowed in event metadata.
type ScalarKind uint8

const (
	KindInvalid ScalarKind = iota
	KindString
	KindInt
	KindFloat
	KindBool
)

func (k ScalarKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	default:
		return "invalid"
	}
}

// Scalar is a single typed metadata value. The zero value is invalid.
type Scalar struct {
	kind ScalarKind
	s    string
	i    int64
	f    float64
	b    bool
}

// Scalar constructors.
func StringValue(v string) Scalar { return Scalar{kind: KindString, s: v} }
func IntValue(v int64) Scalar     { return Scalar{kind: KindInt, i: v} }
func FloatValue(v float64) Scalar { return Scalar{kind: KindFloat, f: v} }
func BoolValue(v bool) Scalar     { return Scalar{kind: KindBool, b: v} }

// Kind reports the value type.
func (v Scalar) Kind() ScalarKind { return v.kind }

// Interface returns the value as a plain Go value.
func (v Scalar) Interface() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	default:
		return nil
	}
}

func (v Scalar) validate() error {
	switch v.kind {
	case KindString:
		if len(v.s) > MaxScalarStringSize {
			return fmt.Errorf("string value exceeds %d bytes", MaxScalarStringSize)
		}
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return fmt.Errorf("float value must be finite")
		}
	case KindInt, KindBool:
	default:
		return fmt.Errorf("unset value")
	}
	return nil
}

// MarshalJSON encodes the scalar as a bare JSON value.
func (v Scalar) MarshalJSON() ([]byte, error) {
	if err := v.validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMetadata, err)
	}
	return json.Marshal(v.Interface())
}

// UnmarshalJSON accepts strings, numbers and booleans. Integral numbers that
// fit in int64 decode as KindInt, everything else numeric as KindFloat.
func (v *Scalar) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMetadata, err)
	}
	switch x := raw.(type) {
	case string:
		*v = StringValue(x)
	case bool:
		*v = BoolValue(x)
	case json.Number:
		if i, err := strconv.ParseInt(x.String(), 10, 64); err == nil {
			*v = IntValue(i)
			break
		}
		f, err := x.Float64()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidMetadata, err)
		}
		*v = FloatValue(f)
	default:
		return fmt.Errorf("%w: unsupported value %s", ErrInvalidMetadata, string(data))
	}
	return v.validate()
}

// Metadata maps schema-checked keys to scalar values.
type Metadata map[string]Scalar

// Validate enforces the metadata schema.
func (m Metadata) Validate() error {
	if len(m) > MaxMetadataKeys {
		return fmt.Errorf("%w: %d keys exceeds limit of %d", ErrInvalidMetadata, len(m), MaxMetadataKeys)
	}
	for k, v := range m {
		if !metadataKeyPattern.MatchString(k) {
			return fmt.Errorf("%w: bad key %q", ErrInvalidMetadata, k)
		}
		if err := v.validate(); err != nil {
			return fmt.Errorf("%w: key %q: %w", ErrInvalidMetadata, k, err)
		}
	}
	return nil
}
