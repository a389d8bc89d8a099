package tiny

import "fmt"

// valueKind tags a Value's variant (spec.md §3 "Value").
type valueKind int

const (
	kindNull valueKind = iota
	kindBool
	kindNumber
	kindConstString
	kindString
	kindNative
	kindLightNative
)

// Value is the tagged union every tiny expression evaluates to: null,
// boolean, double-precision number, interned constant string (borrowed,
// never GC'd), owned string (GC-managed heap copy), native object
// (GC-managed opaque pointer + optional descriptor), or light native
// (raw opaque pointer, never GC'd).
type Value struct {
	kind   valueKind
	number float64
	str    string   // kindConstString: the literal text itself
	obj    *heapObj // kindString, kindNative: heap-backed payload
	light  any       // kindLightNative
}

// NewNull returns the null Value.
func NewNull() Value { return Value{kind: kindNull} }

// NewBool wraps a boolean.
func NewBool(b bool) Value {
	v := Value{kind: kindBool}
	if b {
		v.number = 1
	}
	return v
}

// NewNumber wraps a float64.
func NewNumber(n float64) Value { return Value{kind: kindNumber, number: n} }

// NewConstString wraps a string literal whose storage lives outside
// the GC heap (spec.md's "Const string"): it is never linked into a
// Thread's object list and never swept.
func NewConstString(s string) Value { return Value{kind: kindConstString, str: s} }

// NewLightNative wraps a raw opaque pointer carried by value, never
// tracked by the GC (spec.md's "Light native").
func NewLightNative(addr any) Value { return Value{kind: kindLightNative, light: addr} }

func (v Value) IsNull() bool   { return v.kind == kindNull }
func (v Value) IsBool() bool   { return v.kind == kindBool }
func (v Value) IsNumber() bool { return v.kind == kindNumber }
func (v Value) IsString() bool { return v.kind == kindConstString || v.kind == kindString }
func (v Value) IsNative() bool { return v.kind == kindNative }

// Bool returns the boolean payload; only meaningful when IsBool.
func (v Value) Bool() bool { return v.number != 0 }

// Number returns the float64 payload; only meaningful when IsNumber.
func (v Value) Number() float64 { return v.number }

// String returns the text payload for either string variant.
func (v Value) String() string {
	switch v.kind {
	case kindConstString:
		return v.str
	case kindString:
		return v.obj.str
	default:
		return ""
	}
}

// NativeAddress returns the opaque pointer carried by a NATIVE or
// LIGHT_NATIVE value.
func (v Value) NativeAddress() any {
	switch v.kind {
	case kindNative:
		return v.obj.native.address
	case kindLightNative:
		return v.light
	default:
		return nil
	}
}

// NativeType returns the property descriptor of a NATIVE value, or nil
// for every other kind (including LIGHT_NATIVE, which carries none).
func (v Value) NativeType() *NativeType {
	if v.kind == kindNative {
		return v.obj.native.typ
	}
	return nil
}

// TypeName names a Value's kind for diagnostics ("runtime type error"
// messages, spec.md §7 kind 5).
func (v Value) TypeName() string {
	switch v.kind {
	case kindNull:
		return "null"
	case kindBool:
		return "bool"
	case kindNumber:
		return "number"
	case kindConstString, kindString:
		return "string"
	case kindNative:
		return "native"
	case kindLightNative:
		return "light_native"
	default:
		return "unknown"
	}
}

// GoString renders a Value for debugging and for the PRINT opcode.
func (v Value) GoString() string {
	switch v.kind {
	case kindNull:
		return "null"
	case kindBool:
		return fmt.Sprintf("%t", v.Bool())
	case kindNumber:
		return fmt.Sprintf("%g", v.number)
	case kindConstString, kindString:
		return v.String()
	case kindNative:
		if v.obj.native.typ != nil && v.obj.native.typ.ToString != nil {
			return v.obj.native.typ.ToString(v)
		}
		return fmt.Sprintf("<native %p>", v.obj)
	case kindLightNative:
		return fmt.Sprintf("<light_native %v>", v.light)
	default:
		return "<?>"
	}
}

// Equal implements spec.md §3's Value equality rules: same tag
// required, EXCEPT const-string and owned-string compare by content;
// null == null; bool/number/string compare by value; native kinds
// compare by pointer identity.
func (a Value) Equal(b Value) bool {
	if a.IsString() && b.IsString() {
		return a.String() == b.String()
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case kindNull:
		return true
	case kindBool, kindNumber:
		return a.number == b.number
	case kindNative:
		return a.obj == b.obj
	case kindLightNative:
		return a.light == b.light
	default:
		return false
	}
}

// NativeType is the caller-supplied, host-owned property descriptor
// attached to a NATIVE value (spec.md §3 "Native Property Descriptor").
// Its lifetime is owned by the host and must outlive any object
// referencing it.
type NativeType struct {
	Name string

	// ProtectFromGC is invoked during mark; it is responsible for
	// recursively protecting any objects its payload transitively
	// references (spec.md §4.7).
	ProtectFromGC func(v Value)

	// Finalize is invoked on sweep, once, for every unreachable
	// NATIVE value carrying this descriptor (P4).
	Finalize func(v Value)

	// ToString renders a NATIVE value for PRINT/diagnostics.
	ToString func(v Value) string
}

// heapObj is the GC-managed variant record of spec.md's "Heap Object":
// either an owned character buffer or a native-object descriptor pair,
// linked into a singly-linked intrusive list rooted at the owning
// Thread, with a single mark bit.
type heapObj struct {
	next   *heapObj
	marked bool

	str    string // set when this object backs a kindString Value
	native nativeObj
}

type nativeObj struct {
	address any
	typ     *NativeType
}
