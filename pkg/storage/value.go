package storage

import "fmt"

// ValueType is one of the four dynamic types a column may hold.
type ValueType int

const (
	TypeInt32 ValueType = iota
	TypeFloat32
	TypeString
	TypeNull
)

func (t ValueType) String() string {
	switch t {
	case TypeInt32:
		return "int32"
	case TypeFloat32:
		return "float32"
	case TypeString:
		return "string"
	case TypeNull:
		return "null"
	default:
		return "unknown"
	}
}

// ParseValueType maps a type name (as used on the wire and in headers) back
// to a ValueType.
func ParseValueType(name string) (ValueType, error) {
	switch name {
	case "int32":
		return TypeInt32, nil
	case "float32":
		return TypeFloat32, nil
	case "string":
		return TypeString, nil
	case "null":
		return TypeNull, nil
	default:
		return TypeNull, fmt.Errorf("storage: unknown type name %q", name)
	}
}

// Value is a dynamically typed column value drawn from
// {int32, float32, fixed-length string, null}.
type Value struct {
	Type    ValueType
	Int32   int32
	Float32 float32
	Str     string
}

// IsNull reports whether the value denotes SQL NULL.
func (v Value) IsNull() bool { return v.Type == TypeNull }

// NullValue constructs a null value.
func NullValue() Value { return Value{Type: TypeNull} }

// IntValue constructs an int32 value.
func IntValue(i int32) Value { return Value{Type: TypeInt32, Int32: i} }

// FloatValue constructs a float32 value.
func FloatValue(f float32) Value { return Value{Type: TypeFloat32, Float32: f} }

// StringValue constructs a string value. Truncation to the schema's declared
// length happens at serialization time, not here.
func StringValue(s string) Value { return Value{Type: TypeString, Str: s} }

// AsString renders the value's textual form, used by the wire protocol's
// encoded-row representation.
func (v Value) AsString() string {
	switch v.Type {
	case TypeInt32:
		return fmt.Sprintf("%d", v.Int32)
	case TypeFloat32:
		return fmt.Sprintf("%g", v.Float32)
	case TypeString:
		return v.Str
	case TypeNull:
		return "null"
	default:
		return ""
	}
}

// Compare orders two values of the same type. Values of differing type are
// never considered equal and compare by type order only.
func Compare(a, b Value) int {
	if a.Type != b.Type {
		if a.Type < b.Type {
			return -1
		}
		return 1
	}
	switch a.Type {
	case TypeInt32:
		switch {
		case a.Int32 < b.Int32:
			return -1
		case a.Int32 > b.Int32:
			return 1
		default:
			return 0
		}
	case TypeFloat32:
		switch {
		case a.Float32 < b.Float32:
			return -1
		case a.Float32 > b.Float32:
			return 1
		default:
			return 0
		}
	case TypeString:
		switch {
		case a.Str < b.Str:
			return -1
		case a.Str > b.Str:
			return 1
		default:
			return 0
		}
	default:
		return 0
	}
}
