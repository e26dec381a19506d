package colstore

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/treeport/pkg/rowstore"
)

func TestNewScalarFieldClosedRegistry(t *testing.T) {
	supported := []rowstore.TypeTag{
		rowstore.TagBool, rowstore.TagInt8, rowstore.TagUInt8,
		rowstore.TagInt16, rowstore.TagUInt16, rowstore.TagInt32,
		rowstore.TagUInt32, rowstore.TagInt64, rowstore.TagUInt64,
		rowstore.TagFloat32, rowstore.TagFloat64, rowstore.TagChar,
	}
	for _, tag := range supported {
		f, err := NewScalarField("f", tag)
		require.NoError(t, err, tag.String())
		assert.Equal(t, KindScalar, f.Kind())
	}

	for _, tag := range []rowstore.TypeTag{rowstore.TagClass, rowstore.TagObject, rowstore.TagInvalid} {
		_, err := NewScalarField("f", tag)
		require.Error(t, err, tag.String())
		var ute *UnknownTypeError
		require.ErrorAs(t, err, &ute)
		assert.Equal(t, tag, ute.Tag)
	}
}

func TestFieldTypeNames(t *testing.T) {
	scalar, err := NewScalarField("e", rowstore.TagFloat64)
	require.NoError(t, err)
	assert.Equal(t, "float64", scalar.TypeName())

	str := NewStringField("tag")
	assert.Equal(t, "string", str.TypeName())

	arr, err := NewFixedArrayField("caps", rowstore.TagInt16, 3)
	require.NoError(t, err)
	assert.Equal(t, "[3]int16", arr.TypeName())

	x, _ := NewScalarField("x", rowstore.TagFloat64)
	y, _ := NewScalarField("y", rowstore.TagFloat64)
	rec := NewRecordField("pos", []*Field{x, y}, 16)
	assert.Equal(t, "record{x,y}", rec.TypeName())

	elem, _ := NewScalarField("hits", rowstore.TagFloat32)
	list := NewListField("hits", elem)
	assert.Equal(t, "[]float32", list.TypeName())

	card := NewCardinalityField("nHits")
	assert.Equal(t, "cardinality", card.TypeName())
}

func TestFieldValueSize(t *testing.T) {
	scalar, _ := NewScalarField("e", rowstore.TagInt32)
	assert.Equal(t, 4, scalar.ValueSize())

	arr, _ := NewFixedArrayField("caps", rowstore.TagInt16, 3)
	assert.Equal(t, 6, arr.ValueSize())

	rec := NewRecordField("pos", nil, 16)
	assert.Equal(t, 16, rec.ValueSize())

	// Shapes without a raw buffer form
	assert.Equal(t, 0, NewStringField("s").ValueSize())
	assert.Equal(t, 0, NewCardinalityField("n").ValueSize())
}

func TestDecodeScalar(t *testing.T) {
	f, err := NewScalarField("v", rowstore.TagFloat64)
	require.NoError(t, err)

	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(3.25))

	v, err := f.decode(buf)
	require.NoError(t, err)
	assert.Equal(t, 3.25, v)

	// Char decodes as a signed 8-bit integer
	c, err := NewScalarField("c", rowstore.TagChar)
	require.NoError(t, err)
	v, err = c.decode([]byte{0xFF})
	require.NoError(t, err)
	assert.Equal(t, int8(-1), v)

	_, err = f.decode(buf[:4])
	assert.Error(t, err)
}

func TestDecodeFixedArray(t *testing.T) {
	f, err := NewFixedArrayField("caps", rowstore.TagInt16, 3)
	require.NoError(t, err)

	buf := make([]byte, 6)
	for i, v := range []int16{10, -20, 30} {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}

	v, err := f.decode(buf)
	require.NoError(t, err)
	assert.Equal(t, []any{int16(10), int16(-20), int16(30)}, v)

	_, err = f.decode(buf[:4])
	assert.Error(t, err)
}

func TestDecodeRecord(t *testing.T) {
	desc := &rowstore.ClassDescriptor{
		Name: "Point",
		Members: []rowstore.ClassMember{
			{Name: "x", Tag: rowstore.TagFloat64, Offset: 0},
			{Name: "y", Tag: rowstore.TagFloat64, Offset: 8},
		},
		Size: 16,
	}
	f, err := NewRecordFieldFromClass("pos", desc)
	require.NoError(t, err)

	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(1.5))
	binary.LittleEndian.PutUint64(buf[8:], math.Float64bits(-2.5))

	v, err := f.decode(buf)
	require.NoError(t, err)
	assert.Equal(t, []any{1.5, -2.5}, v)
}

func TestDecodeUndcodableShapes(t *testing.T) {
	_, err := NewStringField("s").decode([]byte{1})
	assert.Error(t, err)

	_, err = NewCardinalityField("n").decode([]byte{1})
	assert.Error(t, err)
}
