// Package canonical produces the deterministic byte encoding that token
// signatures are computed over.
//
// Values are normalized into a closed variant (string, int64, finite
// float64, bool, list, string-keyed map) and serialized with CBOR core
// deterministic encoding: map keys are sorted bytewise by their encoded
// form at every level and numbers use their shortest form.
package canonical

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/fxamacker/cbor/v2"
)

var (
	ErrUnsupportedValue = errors.New("unsupported_value")
	ErrNonFiniteNumber  = errors.New("non_finite_number")
	ErrCyclicValue      = errors.New("cyclic_value")
)

// EncodingError reports a value that cannot be represented canonically.
type EncodingError struct {
	Path string
	Err  error
}

func (e *EncodingError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("canonical: %v", e.Err)
	}
	return fmt.Sprintf("canonical: %v at %s", e.Err, e.Path)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("canonical: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		DupMapKey:      cbor.DupMapKeyEnforcedAPF,
		IndefLength:    cbor.IndefLengthForbidden,
		TagsMd:         cbor.TagsForbidden,
	}.DecMode()
	if err != nil {
		panic("canonical: CBOR decoder initialization failed: " + err.Error())
	}
}

// Encode normalizes fields and returns their canonical encoding.
func Encode(fields map[string]any) ([]byte, error) {
	normalized, err := Normalize(fields)
	if err != nil {
		return nil, err
	}
	out, err := encMode.Marshal(normalized)
	if err != nil {
		return nil, &EncodingError{Err: err}
	}
	return out, nil
}

// Marshal encodes v with the deterministic encoder without normalizing it.
// It is meant for fixed Go structs whose field types are already canonical.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes data produced by Marshal or Encode. Duplicate map keys,
// indefinite lengths and tags are rejected.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Normalize converts v into the closed value variant accepted by Encode.
func Normalize(v any) (any, error) {
	n := normalizer{visiting: map[uintptr]struct{}{}}
	return n.value(reflect.ValueOf(v), "$")
}

type normalizer struct {
	visiting map[uintptr]struct{}
}

func (n *normalizer) value(rv reflect.Value, path string) (any, error) {
	if !rv.IsValid() {
		return nil, &EncodingError{Path: path, Err: ErrUnsupportedValue}
	}

	if rv.Type() == reflect.TypeOf(json.Number("")) {
		return normalizeJSONNumber(json.Number(rv.String()), path)
	}

	switch rv.Kind() {
	case reflect.Interface:
		if rv.IsNil() {
			return nil, &EncodingError{Path: path, Err: ErrUnsupportedValue}
		}
		return n.value(rv.Elem(), path)
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, &EncodingError{Path: path, Err: ErrUnsupportedValue}
		}
		leave, err := n.enter(rv.Pointer(), path)
		if err != nil {
			return nil, err
		}
		defer leave()
		return n.value(rv.Elem(), path)
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u <= math.MaxInt64 {
			return int64(u), nil
		}
		return u, nil
	case reflect.Float32, reflect.Float64:
		return normalizeFloat(rv.Float(), path)
	case reflect.Slice, reflect.Array:
		return n.list(rv, path)
	case reflect.Map:
		return n.mapping(rv, path)
	default:
		return nil, &EncodingError{Path: path, Err: fmt.Errorf("%w: %s", ErrUnsupportedValue, rv.Kind())}
	}
}

func (n *normalizer) list(rv reflect.Value, path string) (any, error) {
	if rv.Kind() == reflect.Slice {
		if rv.IsNil() {
			return nil, &EncodingError{Path: path, Err: ErrUnsupportedValue}
		}
		leave, err := n.enter(rv.Pointer(), path)
		if err != nil {
			return nil, err
		}
		defer leave()
	}

	out := make([]any, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		item, err := n.value(rv.Index(i), path+"["+strconv.Itoa(i)+"]")
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func (n *normalizer) mapping(rv reflect.Value, path string) (any, error) {
	if rv.Type().Key().Kind() != reflect.String {
		return nil, &EncodingError{Path: path, Err: fmt.Errorf("%w: map key %s", ErrUnsupportedValue, rv.Type().Key())}
	}
	if rv.IsNil() {
		return nil, &EncodingError{Path: path, Err: ErrUnsupportedValue}
	}
	leave, err := n.enter(rv.Pointer(), path)
	if err != nil {
		return nil, err
	}
	defer leave()

	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		key := iter.Key().String()
		item, err := n.value(iter.Value(), path+"."+key)
		if err != nil {
			return nil, err
		}
		out[key] = item
	}
	return out, nil
}

// enter marks a container as being on the current descent path. Seeing the
// same container again before leaving it means the value refers to itself.
func (n *normalizer) enter(ptr uintptr, path string) (func(), error) {
	if ptr == 0 {
		return func() {}, nil
	}
	if _, ok := n.visiting[ptr]; ok {
		return nil, &EncodingError{Path: path, Err: ErrCyclicValue}
	}
	n.visiting[ptr] = struct{}{}
	return func() { delete(n.visiting, ptr) }, nil
}

func normalizeFloat(f float64, path string) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, &EncodingError{Path: path, Err: ErrNonFiniteNumber}
	}
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return int64(f), nil
	}
	return f, nil
}

func normalizeJSONNumber(num json.Number, path string) (any, error) {
	if i, err := num.Int64(); err == nil {
		return i, nil
	}
	f, err := num.Float64()
	if err != nil {
		return nil, &EncodingError{Path: path, Err: fmt.Errorf("%w: %q", ErrUnsupportedValue, num.String())}
	}
	return normalizeFloat(f, path)
}
