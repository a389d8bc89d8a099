package tiny

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValueConstructors(t *testing.T) {
	assert.True(t, NewNull().IsNull())
	assert.True(t, NewBool(true).IsBool())
	assert.True(t, NewBool(true).Bool())
	assert.False(t, NewBool(false).Bool())
	assert.True(t, NewNumber(3.5).IsNumber())
	assert.Equal(t, 3.5, NewNumber(3.5).Number())
	assert.True(t, NewConstString("x").IsString())
	assert.Equal(t, "x", NewConstString("x").String())
}

func TestValueEqualCrossesStringVariants(t *testing.T) {
	state := NewState(nil)
	th := NewThread(state)

	owned := th.NewString("hi")
	constStr := NewConstString("hi")
	assert.True(t, owned.Equal(constStr))
	assert.True(t, constStr.Equal(owned))

	other := th.NewString("bye")
	assert.False(t, owned.Equal(other))
}

func TestValueEqualRequiresMatchingTagOutsideStrings(t *testing.T) {
	assert.False(t, NewNumber(1).Equal(NewBool(true)))
	assert.False(t, NewNull().Equal(NewBool(false)))
	assert.True(t, NewNull().Equal(NewNull()))
	assert.True(t, NewNumber(1).Equal(NewNumber(1)))
	assert.False(t, NewNumber(1).Equal(NewNumber(2)))
}

func TestValueEqualNativeComparesByIdentity(t *testing.T) {
	state := NewState(nil)
	th := NewThread(state)

	a := th.NewNative("payload", nil)
	b := th.NewNative("payload", nil)
	assert.False(t, a.Equal(b), "two distinct native allocations must not compare equal")
	assert.True(t, a.Equal(a))
}

func TestValueTypeName(t *testing.T) {
	assert.Equal(t, "null", NewNull().TypeName())
	assert.Equal(t, "bool", NewBool(true).TypeName())
	assert.Equal(t, "number", NewNumber(1).TypeName())
	assert.Equal(t, "string", NewConstString("x").TypeName())
}

func TestValueGoString(t *testing.T) {
	assert.Equal(t, "null", NewNull().GoString())
	assert.Equal(t, "true", NewBool(true).GoString())
	assert.Equal(t, "42", NewNumber(42).GoString())
	assert.Equal(t, "hi", NewConstString("hi").GoString())
}

func TestNativeTypeToStringOverridesDefault(t *testing.T) {
	state := NewState(nil)
	th := NewThread(state)
	typ := &NativeType{ToString: func(Value) string { return "<custom>" }}
	v := th.NewNative("anything", typ)
	assert.Equal(t, "<custom>", v.GoString())
}
