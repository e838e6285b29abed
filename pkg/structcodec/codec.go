package structcodec

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrUnsupported reports a Go value with no wire value mapping.
var ErrUnsupported = errors.New("no wire representation")

// EncodeOptions control how Encode handles values outside the canonical
// mapping.
type EncodeOptions struct {
	// Stringify coerces otherwise unsupported values into their
	// fmt.Sprint form instead of failing.
	Stringify bool
}

// Encode converts a native Go value into a wire Value. nil maps to null,
// numeric types to number, string to string, bool to bool, []byte to
// bytes, slices and arrays to list, string-keyed maps to struct. Value
// and Struct pass through unchanged. Anything else is an error unless
// opts.Stringify is set.
func Encode(v any, opts EncodeOptions) (Value, error) {
	switch t := v.(type) {
	case nil:
		return NullValue(), nil
	case omitSentinel:
		return Value{}, fmt.Errorf("omitted value outside a struct field: %w", ErrUnsupported)
	case Value:
		return t, nil
	case Struct:
		return StructValue(t), nil
	case bool:
		return BoolValue(t), nil
	case string:
		return StringValue(t), nil
	case []byte:
		return BytesValue(t), nil
	case int:
		return NumberValue(float64(t)), nil
	case int8:
		return NumberValue(float64(t)), nil
	case int16:
		return NumberValue(float64(t)), nil
	case int32:
		return NumberValue(float64(t)), nil
	case int64:
		return NumberValue(float64(t)), nil
	case uint:
		return NumberValue(float64(t)), nil
	case uint8:
		return NumberValue(float64(t)), nil
	case uint16:
		return NumberValue(float64(t)), nil
	case uint32:
		return NumberValue(float64(t)), nil
	case uint64:
		return NumberValue(float64(t)), nil
	case float32:
		return NumberValue(float64(t)), nil
	case float64:
		return NumberValue(t), nil
	case map[string]any:
		s, err := EncodeStruct(t, opts)
		if err != nil {
			return Value{}, err
		}
		return StructValue(s), nil
	case []any:
		return encodeSlice(reflect.ValueOf(t))
	}
	return encodeReflect(reflect.ValueOf(v), v, opts)
}

// encodeReflect handles named types and container shapes the type switch
// cannot enumerate.
func encodeReflect(rv reflect.Value, orig any, opts EncodeOptions) (Value, error) {
	switch rv.Kind() {
	case reflect.Bool:
		return BoolValue(rv.Bool()), nil
	case reflect.String:
		return StringValue(rv.String()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return NumberValue(float64(rv.Int())), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return NumberValue(float64(rv.Uint())), nil
	case reflect.Float32, reflect.Float64:
		return NumberValue(rv.Float()), nil
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return BytesValue(rv.Bytes()), nil
		}
		return encodeSlice(rv)
	case reflect.Array:
		return encodeSlice(rv)
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			return encodeMap(rv, opts)
		}
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return NullValue(), nil
		}
		return Encode(rv.Elem().Interface(), opts)
	}
	if opts.Stringify {
		return StringValue(fmt.Sprint(orig)), nil
	}
	return Value{}, fmt.Errorf("cannot encode %T: %w", orig, ErrUnsupported)
}

// encodeSlice encodes list elements. Options do not carry into elements.
func encodeSlice(rv reflect.Value) (Value, error) {
	elems := make([]Value, rv.Len())
	for i := range elems {
		ev, err := Encode(rv.Index(i).Interface(), EncodeOptions{})
		if err != nil {
			return Value{}, fmt.Errorf("list index %d: %w", i, err)
		}
		elems[i] = ev
	}
	return ListValue(elems), nil
}

func encodeMap(rv reflect.Value, opts EncodeOptions) (Value, error) {
	fields := make(map[string]Value, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		k := iter.Key().String()
		fv := iter.Value().Interface()
		if _, ok := fv.(omitSentinel); ok {
			continue
		}
		ev, err := Encode(fv, opts)
		if err != nil {
			return Value{}, fmt.Errorf("field %q: %w", k, err)
		}
		fields[k] = ev
	}
	return StructValue(Struct{Fields: fields}), nil
}

// EncodeStruct converts a native field map into a wire Struct. Fields set
// to Omit are dropped entirely rather than encoded as null. Options carry
// into every encoded field.
func EncodeStruct(fields map[string]any, opts EncodeOptions) (Struct, error) {
	out := Struct{Fields: make(map[string]Value, len(fields))}
	for k, v := range fields {
		if _, ok := v.(omitSentinel); ok {
			continue
		}
		ev, err := Encode(v, opts)
		if err != nil {
			return Struct{}, fmt.Errorf("field %q: %w", k, err)
		}
		out.Fields[k] = ev
	}
	return out, nil
}

// Decode converts a wire Value back into its native Go form: null to nil,
// number to float64, string to string, bool to bool, bytes to []byte,
// list to []any, struct to map[string]any. Decode is total over
// well-formed values.
func Decode(v Value) any {
	switch v.kind {
	case KindNull:
		return nil
	case KindNumber:
		return v.num
	case KindString:
		return v.str
	case KindBool:
		return v.boo
	case KindBytes:
		return v.raw
	case KindList:
		out := make([]any, len(v.list))
		for i, e := range v.list {
			out[i] = Decode(e)
		}
		return out
	case KindStruct:
		return DecodeStruct(Struct{Fields: v.obj})
	}
	return nil
}

// DecodeStruct converts a wire Struct into a native field map.
func DecodeStruct(s Struct) map[string]any {
	out := make(map[string]any, len(s.Fields))
	for k, v := range s.Fields {
		out[k] = Decode(v)
	}
	return out
}
