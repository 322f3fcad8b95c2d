// Package schema implements declarative validation of inbound CRM payloads.
// A Schema is an ordered list of field descriptors walked recursively against
// a decoded JSON payload; the walk produces a normalized Values mapping and
// accumulates every problem it finds instead of stopping at the first one.
package schema

import (
	"context"
	"fmt"
	"sort"

	"github.com/dmitrijs2005/civisync/internal/common"
)

// Kind is the expected JSON type of a field.
type Kind int

const (
	KindBool Kind = iota
	KindInt
	KindFloat
	KindString
	// KindStringList is a list of strings (e.g. tax names).
	KindStringList
	// KindIntOrString accepts either form; some CRM builds send epoch
	// timestamps as strings.
	KindIntOrString
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindStringList:
		return "list of strings"
	case KindIntOrString:
		return "int or string"
	default:
		return "unknown"
	}
}

// Values is the normalized output of a validation walk. Nested schema fields
// appear as []Values. Converters write resolved ids here and remove the
// natural keys they consumed; the caller's payload is never mutated.
type Values map[string]any

// ConvertFunc transforms a validated value in place on the normalized output.
// It may append errors to acc instead of returning them so validation never
// short-circuits.
type ConvertFunc func(ctx context.Context, key string, value any, out Values, acc *Accumulator)

// Field describes one payload field.
type Field struct {
	Name     string
	Kind     Kind
	Required bool
	// Default substitutes for an absent or null value only. Empty strings,
	// zeros and false are legitimate values and pass through untouched.
	Default any
	Convert ConvertFunc
	// Weight orders processing within one payload level. Converters that
	// read sibling fields need those siblings validated first.
	Weight int
	// Nested marks a field holding a list of sub-payloads validated
	// against their own schema.
	Nested Schema
}

// Schema is an ordered field list. Walk order is ascending weight, stable by
// declaration order.
type Schema []Field

// Accumulator collects validation errors across a whole walk, nested levels
// included. It is threaded explicitly through every call.
type Accumulator struct {
	errors []string
}

func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

func (a *Accumulator) Addf(format string, args ...any) {
	a.errors = append(a.errors, fmt.Sprintf(format, args...))
}

func (a *Accumulator) Add(err error) {
	a.errors = append(a.errors, err.Error())
}

// Valid reports whether the walk found no errors.
func (a *Accumulator) Valid() bool {
	return len(a.errors) == 0
}

// Errors returns the accumulated messages in the order they were found.
func (a *Accumulator) Errors() []string {
	return a.errors
}

// Validate walks the schema against the payload and returns the normalized
// values. All fields are checked regardless of earlier errors; the caller
// decides via acc.Valid() whether to proceed.
func Validate(ctx context.Context, s Schema, payload map[string]any, acc *Accumulator) Values {
	out := Values{}

	ordered := make(Schema, len(s))
	copy(ordered, s)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Weight < ordered[j].Weight
	})

	for _, f := range ordered {
		raw := payload[f.Name]

		if f.Nested != nil {
			out[f.Name] = validateNested(ctx, f, raw, acc)
			continue
		}

		if raw == nil && f.Default != nil {
			raw = f.Default
		}

		if raw == nil {
			if f.Required {
				acc.Add(fmt.Errorf("%w: %s", common.ErrMissingRequiredField, f.Name))
			}
			continue
		}

		value, ok := coerce(f.Kind, raw)
		if !ok {
			acc.Add(fmt.Errorf("%w: %q is %T, expected %s",
				common.ErrInvalidFieldType, f.Name, raw, f.Kind))
			continue
		}
		out[f.Name] = value

		if f.Convert != nil {
			f.Convert(ctx, f.Name, value, out, acc)
		}
	}
	return out
}

// validateNested handles a list-of-objects field. A single object is accepted
// as a one-element list.
func validateNested(ctx context.Context, f Field, raw any, acc *Accumulator) []Values {
	var elems []any
	switch v := raw.(type) {
	case nil:
		return nil
	case []any:
		elems = v
	case map[string]any:
		elems = []any{v}
	default:
		acc.Add(fmt.Errorf("%w: %q is %T, expected list", common.ErrInvalidFieldType, f.Name, raw))
		return nil
	}

	var result []Values
	for _, elem := range elems {
		sub, ok := elem.(map[string]any)
		if !ok {
			acc.Add(fmt.Errorf("%w: %q is %T, expected object", common.ErrInvalidFieldType, f.Name, elem))
			continue
		}
		result = append(result, Validate(ctx, f.Nested, sub, acc))
	}
	return result
}

// coerce checks the JSON-decoded value against the expected kind and
// normalizes numbers. encoding/json yields float64 for every number, so an
// integral float64 passes as an int.
func coerce(k Kind, raw any) (any, bool) {
	switch k {
	case KindBool:
		v, ok := raw.(bool)
		return v, ok
	case KindInt:
		return asInt64(raw)
	case KindFloat:
		return asFloat64(raw)
	case KindString:
		v, ok := raw.(string)
		return v, ok
	case KindStringList:
		list, ok := raw.([]any)
		if !ok {
			return nil, false
		}
		result := make([]string, 0, len(list))
		for _, elem := range list {
			s, ok := elem.(string)
			if !ok {
				return nil, false
			}
			result = append(result, s)
		}
		return result, true
	case KindIntOrString:
		if s, ok := raw.(string); ok {
			return s, true
		}
		return asInt64(raw)
	default:
		return nil, false
	}
}

func asInt64(raw any) (int64, bool) {
	switch v := raw.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		if v != float64(int64(v)) {
			return 0, false
		}
		return int64(v), true
	default:
		return 0, false
	}
}

func asFloat64(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

// Int64 reads a normalized int field. The second result is false when the
// field is absent.
func (v Values) Int64(key string) (int64, bool) {
	raw, ok := v[key]
	if !ok {
		return 0, false
	}
	n, ok := raw.(int64)
	return n, ok
}

// Float64 reads a normalized float field.
func (v Values) Float64(key string) (float64, bool) {
	raw, ok := v[key]
	if !ok {
		return 0, false
	}
	switch n := raw.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// String reads a normalized string field; absent fields read as "".
func (v Values) String(key string) string {
	s, _ := v[key].(string)
	return s
}

// Bool reads a normalized bool field; absent fields read as false.
func (v Values) Bool(key string) bool {
	b, _ := v[key].(bool)
	return b
}

// Int64List reads a normalized id list field.
func (v Values) Int64List(key string) []int64 {
	ids, _ := v[key].([]int64)
	return ids
}

// Nested reads a nested list field.
func (v Values) Nested(key string) []Values {
	list, _ := v[key].([]Values)
	return list
}

// Has reports whether the key is present in the normalized output.
func (v Values) Has(key string) bool {
	_, ok := v[key]
	return ok
}
