package structcodec

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindNumber
	KindString
	KindBool
	KindBytes
	KindStruct
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindBytes:
		return "bytes"
	case KindStruct:
		return "struct"
	case KindList:
		return "list"
	}
	return "invalid"
}

// Value is a closed tagged variant over the wire value kinds. The zero
// value is null. Construct with the *Value helpers, inspect with Kind
// and the As* accessors.
type Value struct {
	kind Kind
	num  float64
	str  string
	boo  bool
	raw  []byte
	list []Value
	obj  map[string]Value
}

// Struct is a set of named wire values.
type Struct struct {
	Fields map[string]Value
}

// omitSentinel is the type of Omit. Unexported so Omit is the only instance.
type omitSentinel struct{}

// Omit marks a struct field as absent. EncodeStruct drops fields set to
// Omit instead of encoding them as null; Encode rejects it anywhere else.
var Omit = omitSentinel{}

func NullValue() Value {
	return Value{kind: KindNull}
}

func NumberValue(n float64) Value {
	return Value{kind: KindNumber, num: n}
}

func StringValue(s string) Value {
	return Value{kind: KindString, str: s}
}

func BoolValue(b bool) Value {
	return Value{kind: KindBool, boo: b}
}

func BytesValue(b []byte) Value {
	return Value{kind: KindBytes, raw: b}
}

func ListValue(elems []Value) Value {
	return Value{kind: KindList, list: elems}
}

func StructValue(s Struct) Value {
	return Value{kind: KindStruct, obj: s.Fields}
}

// Kind reports which variant the value holds.
func (v Value) Kind() Kind {
	return v.kind
}

func (v Value) IsNull() bool {
	return v.kind == KindNull
}

func (v Value) AsNumber() (float64, bool) {
	return v.num, v.kind == KindNumber
}

func (v Value) AsString() (string, bool) {
	return v.str, v.kind == KindString
}

func (v Value) AsBool() (bool, bool) {
	return v.boo, v.kind == KindBool
}

func (v Value) AsBytes() ([]byte, bool) {
	return v.raw, v.kind == KindBytes
}

func (v Value) AsList() ([]Value, bool) {
	return v.list, v.kind == KindList
}

func (v Value) AsStruct() (Struct, bool) {
	if v.kind != KindStruct {
		return Struct{}, false
	}
	return Struct{Fields: v.obj}, true
}
