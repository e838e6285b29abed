package structcodec

import (
	"encoding/base64"

	"google.golang.org/protobuf/types/known/structpb"
)

// Proto converts the value into its protobuf Struct representation.
// structpb has no bytes kind, so KindBytes crosses the boundary as a
// base64 string and decodes back as KindString.
func (v Value) Proto() *structpb.Value {
	switch v.kind {
	case KindNumber:
		return structpb.NewNumberValue(v.num)
	case KindString:
		return structpb.NewStringValue(v.str)
	case KindBool:
		return structpb.NewBoolValue(v.boo)
	case KindBytes:
		return structpb.NewStringValue(base64.StdEncoding.EncodeToString(v.raw))
	case KindList:
		elems := make([]*structpb.Value, len(v.list))
		for i, e := range v.list {
			elems[i] = e.Proto()
		}
		return structpb.NewListValue(&structpb.ListValue{Values: elems})
	case KindStruct:
		return structpb.NewStructValue(Struct{Fields: v.obj}.Proto())
	}
	return structpb.NewNullValue()
}

// ValueFromProto converts a protobuf Value into a wire Value. A nil or
// kindless input is null.
func ValueFromProto(pv *structpb.Value) Value {
	switch k := pv.GetKind().(type) {
	case *structpb.Value_NumberValue:
		return NumberValue(k.NumberValue)
	case *structpb.Value_StringValue:
		return StringValue(k.StringValue)
	case *structpb.Value_BoolValue:
		return BoolValue(k.BoolValue)
	case *structpb.Value_ListValue:
		elems := make([]Value, len(k.ListValue.GetValues()))
		for i, e := range k.ListValue.GetValues() {
			elems[i] = ValueFromProto(e)
		}
		return ListValue(elems)
	case *structpb.Value_StructValue:
		return StructValue(StructFromProto(k.StructValue))
	}
	return NullValue()
}

// Proto converts the struct into its protobuf representation.
func (s Struct) Proto() *structpb.Struct {
	fields := make(map[string]*structpb.Value, len(s.Fields))
	for k, v := range s.Fields {
		fields[k] = v.Proto()
	}
	return &structpb.Struct{Fields: fields}
}

// StructFromProto converts a protobuf Struct into a wire Struct. A nil
// input yields an empty struct.
func StructFromProto(ps *structpb.Struct) Struct {
	fields := make(map[string]Value, len(ps.GetFields()))
	for k, v := range ps.GetFields() {
		fields[k] = ValueFromProto(v)
	}
	return Struct{Fields: fields}
}
