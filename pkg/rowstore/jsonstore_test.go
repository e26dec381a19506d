package rowstore

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/treeport/pkg/treeporterrors"
)

const sampleDataset = `{
	"name": "events",
	"classes": [
		{
			"name": "Point",
			"size": 16,
			"members": [
				{"name": "x", "type": "float64", "offset": 0},
				{"name": "y", "type": "float64", "offset": 8}
			]
		}
	],
	"branches": [
		{"name": "id", "leaves": [{"name": "id", "type": "int64"}]},
		{"name": "energy", "leaves": [{"name": "energy", "type": "float32"}]},
		{"name": "tag", "leaves": [{"name": "tag", "type": "char"}]},
		{"name": "nHits", "leaves": [{"name": "nHits", "type": "int32", "range": true}]},
		{"name": "hits", "leaves": [{"name": "hits", "type": "float64", "count_leaf": "nHits"}]},
		{"name": "pos", "leaves": [{"name": "pos", "type": "class", "class": "Point"}]},
		{"name": "caps", "leaves": [{"name": "caps", "type": "int16", "count": 3}]}
	],
	"records": [
		{"id": 1, "energy": 1.5, "tag": "alpha", "nHits": 2, "hits": [0.5, 0.25],
		 "pos": {"x": 1.0, "y": 2.0}, "caps": [10, 20, 30]},
		{"id": 2, "energy": -3.0, "tag": "b", "nHits": 0, "hits": [],
		 "pos": {"x": 0.0, "y": -1.0}, "caps": [1, 2, 3]}
	]
}`

func TestDecodeJSONMetadata(t *testing.T) {
	s, err := DecodeJSON([]byte(sampleDataset))
	require.NoError(t, err)

	assert.Equal(t, "events", s.Name())
	assert.Equal(t, int64(2), s.NumRecords())

	branches := s.Branches()
	require.Len(t, branches, 7)

	// Count leaf maximum derived from the data
	nHits := branches[3].Leaves[0]
	assert.True(t, nHits.IsRange)
	assert.Equal(t, 2, nHits.Max)

	// String capacity is the longest string plus terminator
	tag := branches[2].Leaves[0]
	assert.Equal(t, TagChar, tag.Tag)
	assert.Equal(t, len("alpha")+1, tag.Max)

	desc, ok := s.Class("Point")
	require.True(t, ok)
	assert.Equal(t, 16, desc.Size)
	require.Len(t, desc.Members, 2)
}

func TestDecodeJSONPayloads(t *testing.T) {
	s, err := DecodeJSON([]byte(sampleDataset))
	require.NoError(t, err)

	idBuf := make([]byte, 8)
	countBuf := make([]byte, 4)
	hitsBuf := make([]byte, 2*8)
	tagBuf := make([]byte, 6)
	capsBuf := make([]byte, 3*2)
	var pos []byte

	require.NoError(t, s.RegisterBuffer("id", idBuf))
	require.NoError(t, s.RegisterBuffer("nHits", countBuf))
	require.NoError(t, s.RegisterBuffer("hits", hitsBuf))
	require.NoError(t, s.RegisterBuffer("tag", tagBuf))
	require.NoError(t, s.RegisterBuffer("caps", capsBuf))
	require.NoError(t, s.RegisterObject("pos", &pos))

	require.NoError(t, s.Read(0))

	assert.Equal(t, int64(1), int64(binary.LittleEndian.Uint64(idBuf)))
	assert.Equal(t, int32(2), int32(binary.LittleEndian.Uint32(countBuf)))
	assert.Equal(t, 0.5, math.Float64frombits(binary.LittleEndian.Uint64(hitsBuf)))
	assert.Equal(t, 0.25, math.Float64frombits(binary.LittleEndian.Uint64(hitsBuf[8:])))
	assert.Equal(t, byte('a'), tagBuf[0])
	assert.Equal(t, byte(0), tagBuf[5])
	assert.Equal(t, int16(20), int16(binary.LittleEndian.Uint16(capsBuf[2:])))

	require.Len(t, pos, 16)
	assert.Equal(t, 1.0, math.Float64frombits(binary.LittleEndian.Uint64(pos)))
	assert.Equal(t, 2.0, math.Float64frombits(binary.LittleEndian.Uint64(pos[8:])))

	// Zero-length counted array in record 1
	require.NoError(t, s.Read(1))
	assert.Equal(t, int32(0), int32(binary.LittleEndian.Uint32(countBuf)))
}

func TestDecodeJSONLeafList(t *testing.T) {
	doc := `{
		"name": "data",
		"branches": [
			{"name": "point", "leaves": [
				{"name": "px", "type": "float32", "offset": 0},
				{"name": "py", "type": "float32", "offset": 4}
			]}
		],
		"records": [{"point": {"px": 1.5, "py": -2.5}}]
	}`
	s, err := DecodeJSON([]byte(doc))
	require.NoError(t, err)

	buf := make([]byte, 8)
	require.NoError(t, s.RegisterBuffer("point", buf))
	require.NoError(t, s.Read(0))

	assert.Equal(t, float32(1.5), math.Float32frombits(binary.LittleEndian.Uint32(buf)))
	assert.Equal(t, float32(-2.5), math.Float32frombits(binary.LittleEndian.Uint32(buf[4:])))
}

func TestDecodeJSONCountMismatch(t *testing.T) {
	doc := `{
		"name": "data",
		"branches": [
			{"name": "n", "leaves": [{"name": "n", "type": "int32", "range": true}]},
			{"name": "vals", "leaves": [{"name": "vals", "type": "int32", "count_leaf": "n"}]}
		],
		"records": [{"n": 3, "vals": [1, 2]}]
	}`
	_, err := DecodeJSON([]byte(doc))
	require.Error(t, err)
	assert.True(t, treeporterrors.IsType(err, treeporterrors.ErrorTypeValidation))
}

func TestDecodeJSONUnknownType(t *testing.T) {
	doc := `{
		"name": "data",
		"branches": [{"name": "x", "leaves": [{"name": "x", "type": "decimal"}]}],
		"records": []
	}`
	_, err := DecodeJSON([]byte(doc))
	require.Error(t, err)
	assert.True(t, treeporterrors.IsType(err, treeporterrors.ErrorTypeValidation))
}

func TestDecodeJSONMissingName(t *testing.T) {
	_, err := DecodeJSON([]byte(`{"branches": [], "records": []}`))
	require.Error(t, err)
	assert.True(t, treeporterrors.IsType(err, treeporterrors.ErrorTypeValidation))
}

func TestDecodeJSONMalformed(t *testing.T) {
	_, err := DecodeJSON([]byte(`{"name": `))
	require.Error(t, err)
	assert.True(t, treeporterrors.IsType(err, treeporterrors.ErrorTypeData))
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleDataset), 0o644))

	s, err := LoadJSON(path)
	require.NoError(t, err)
	assert.Equal(t, "events", s.Name())

	_, err = LoadJSON(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.True(t, treeporterrors.IsType(err, treeporterrors.ErrorTypeFile))
}
