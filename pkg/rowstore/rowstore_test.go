package rowstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTag(t *testing.T) {
	tests := []struct {
		name string
		want TypeTag
		ok   bool
	}{
		{"bool", TagBool, true},
		{"int8", TagInt8, true},
		{"uint8", TagUInt8, true},
		{"int16", TagInt16, true},
		{"uint16", TagUInt16, true},
		{"int32", TagInt32, true},
		{"uint32", TagUInt32, true},
		{"int64", TagInt64, true},
		{"uint64", TagUInt64, true},
		{"float32", TagFloat32, true},
		{"float64", TagFloat64, true},
		{"char", TagChar, true},
		{"class", TagClass, true},
		{"object", TagObject, true},
		{"decimal", TagInvalid, false},
		{"", TagInvalid, false},
	}

	for _, tt := range tests {
		tag, ok := ParseTag(tt.name)
		assert.Equal(t, tt.ok, ok, tt.name)
		if tt.ok {
			assert.Equal(t, tt.want, tag, tt.name)
			assert.Equal(t, tt.name, tag.String())
		}
	}
}

func TestTagWidth(t *testing.T) {
	assert.Equal(t, 1, TagBool.Width())
	assert.Equal(t, 1, TagChar.Width())
	assert.Equal(t, 2, TagInt16.Width())
	assert.Equal(t, 4, TagFloat32.Width())
	assert.Equal(t, 8, TagUInt64.Width())

	// Aggregate and opaque tags size from class metadata, not the tag
	assert.Equal(t, 0, TagClass.Width())
	assert.Equal(t, 0, TagObject.Width())
	assert.Equal(t, 0, TagInvalid.Width())
}

func TestTagStringInvalid(t *testing.T) {
	assert.Equal(t, "invalid", TagInvalid.String())
	assert.Equal(t, "invalid", TypeTag(200).String())
}
