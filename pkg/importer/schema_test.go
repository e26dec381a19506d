package importer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/treeport/pkg/colstore"
	"github.com/ajitpratap0/treeport/pkg/config"
	"github.com/ajitpratap0/treeport/pkg/rowstore"
	"github.com/ajitpratap0/treeport/pkg/treeporterrors"
)

func TestClassifyBranch(t *testing.T) {
	tests := []struct {
		name   string
		branch rowstore.Branch
		want   branchClass
	}{
		{
			name: "scalar",
			branch: rowstore.Branch{Name: "x", Leaves: []rowstore.Leaf{
				{Name: "x", Tag: rowstore.TagInt32, Count: 1},
			}},
			want: branchClass{},
		},
		{
			name: "count leaf",
			branch: rowstore.Branch{Name: "n", Leaves: []rowstore.Leaf{
				{Name: "n", Tag: rowstore.TagInt32, Count: 1, IsRange: true},
			}},
			want: branchClass{isCountLeaf: true},
		},
		{
			name: "string",
			branch: rowstore.Branch{Name: "tag", Leaves: []rowstore.Leaf{
				{Name: "tag", Tag: rowstore.TagChar, Count: 1, Max: 8},
			}},
			want: branchClass{isCString: true},
		},
		{
			name: "char array is not a string",
			branch: rowstore.Branch{Name: "raw", Leaves: []rowstore.Leaf{
				{Name: "raw", Tag: rowstore.TagChar, Count: 4},
			}},
			want: branchClass{},
		},
		{
			name: "aggregate",
			branch: rowstore.Branch{Name: "pos", Leaves: []rowstore.Leaf{
				{Name: "pos", Tag: rowstore.TagClass, Count: 1, ClassName: "Point"},
			}},
			want: branchClass{isClass: true},
		},
		{
			name: "leaf list",
			branch: rowstore.Branch{Name: "p", Leaves: []rowstore.Leaf{
				{Name: "px", Tag: rowstore.TagFloat32, Count: 1, Offset: 0},
				{Name: "py", Tag: rowstore.TagFloat32, Count: 1, Offset: 4},
			}},
			want: branchClass{isLeafList: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := classifyBranch(tt.branch)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			// Classification is a pure function of the metadata
			again, err := classifyBranch(tt.branch)
			require.NoError(t, err)
			assert.Equal(t, got, again)
		})
	}
}

func TestClassifyBranchRejectsMixedLeafLists(t *testing.T) {
	aggregate := rowstore.Branch{Name: "bad", Leaves: []rowstore.Leaf{
		{Name: "a", Tag: rowstore.TagInt32, Count: 1},
		{Name: "b", Tag: rowstore.TagClass, Count: 1, ClassName: "Point"},
	}}
	_, err := classifyBranch(aggregate)
	require.Error(t, err)
	assert.True(t, treeporterrors.IsType(err, treeporterrors.ErrorTypeUnsupported))

	counted := rowstore.Branch{Name: "bad", Leaves: []rowstore.Leaf{
		{Name: "a", Tag: rowstore.TagInt32, Count: 1},
		{Name: "b", Tag: rowstore.TagFloat64, Count: 1, CountLeaf: "n"},
	}}
	_, err = classifyBranch(counted)
	require.Error(t, err)
	assert.True(t, treeporterrors.IsType(err, treeporterrors.ErrorTypeUnsupported))
}

func newTestImporter(t *testing.T, doc string) *Importer {
	t.Helper()

	source, err := rowstore.DecodeJSON([]byte(doc))
	require.NoError(t, err)

	store, err := colstore.OpenStore(t.TempDir())
	require.NoError(t, err)

	cfg := config.DefaultImportConfig()
	cfg.Quiet = true
	im, err := New(source, store, cfg)
	require.NoError(t, err)
	return im
}

func TestPrepareSchemaFields(t *testing.T) {
	im := newTestImporter(t, `{
		"name": "events",
		"branches": [
			{"name": "id", "leaves": [{"name": "id", "type": "int64"}]},
			{"name": "tag", "leaves": [{"name": "tag", "type": "char"}]},
			{"name": "nHits", "leaves": [{"name": "nHits", "type": "int32", "range": true}]},
			{"name": "hits", "leaves": [{"name": "hits", "type": "float64", "count_leaf": "nHits"}]}
		],
		"records": [{"id": 1, "tag": "a", "nHits": 1, "hits": [0.5]}]
	}`)

	require.NoError(t, im.PrepareSchema())

	desc := im.Describe()
	byName := make(map[string]FieldDescription, len(desc))
	for _, d := range desc {
		byName[d.Name] = d
	}

	assert.Equal(t, "int64", byName["id"].Type)
	assert.Equal(t, "string", byName["tag"].Type)
	assert.Equal(t, "[]float64", byName["hits"].Type)
	assert.True(t, byName["hits"].Projected)
	assert.Equal(t, "cardinality", byName["nHits"].Type)
	assert.True(t, byName["nHits"].Projected)

	// The synthesized collection stays internal
	_, found := byName["_collection0"]
	assert.False(t, found)
}

func TestPrepareSchemaIdempotent(t *testing.T) {
	im := newTestImporter(t, `{
		"name": "events",
		"branches": [
			{"name": "id", "leaves": [{"name": "id", "type": "int64"}]},
			{"name": "nHits", "leaves": [{"name": "nHits", "type": "int32", "range": true}]},
			{"name": "hits", "leaves": [{"name": "hits", "type": "float64", "count_leaf": "nHits"}]}
		],
		"records": [{"id": 1, "nHits": 0, "hits": []}]
	}`)

	require.NoError(t, im.PrepareSchema())
	first := im.Describe()

	require.NoError(t, im.PrepareSchema())
	second := im.Describe()

	assert.Equal(t, first, second)
	assert.Len(t, im.collections, 1)
	assert.Len(t, im.branches, 2)
}

func TestPrepareSchemaUnsupportedShapes(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "opaque object branch",
			doc: `{
				"name": "d",
				"branches": [{"name": "o", "leaves": [{"name": "o", "type": "object"}]}],
				"records": []
			}`,
		},
		{
			name: "array precedes its count leaf",
			doc: `{
				"name": "d",
				"branches": [
					{"name": "hits", "leaves": [{"name": "hits", "type": "float64", "count_leaf": "nHits"}]},
					{"name": "nHits", "leaves": [{"name": "nHits", "type": "int32", "range": true}]}
				],
				"records": []
			}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			im := newTestImporter(t, tt.doc)
			err := im.PrepareSchema()
			require.Error(t, err)
			assert.True(t, treeporterrors.IsType(err, treeporterrors.ErrorTypeUnsupported))
		})
	}
}

func TestPrepareSchemaUnknownClass(t *testing.T) {
	im := newTestImporter(t, `{
		"name": "d",
		"branches": [{"name": "pos", "leaves": [{"name": "pos", "type": "class", "class": "Missing"}]}],
		"records": []
	}`)

	err := im.PrepareSchema()
	require.Error(t, err)
	assert.True(t, treeporterrors.IsType(err, treeporterrors.ErrorTypeUnsupported))
}

func TestReportSchema(t *testing.T) {
	im := newTestImporter(t, `{
		"name": "events",
		"branches": [
			{"name": "id", "leaves": [{"name": "id", "type": "int64"}]},
			{"name": "tag", "leaves": [{"name": "tag", "type": "char"}]}
		],
		"records": [{"id": 1, "tag": "x"}]
	}`)

	var out bytes.Buffer
	im.SetOutput(&out)
	require.NoError(t, im.PrepareSchema())

	im.ReportSchema()
	assert.Equal(t, "Importing 'id' [int64]\nImporting 'tag' [string]\n", out.String())
}

func TestPrepareSchemaQuietSuppressesReport(t *testing.T) {
	doc := `{
		"name": "events",
		"branches": [{"name": "id", "leaves": [{"name": "id", "type": "int64"}]}],
		"records": [{"id": 1}]
	}`

	im := newTestImporter(t, doc)
	var out bytes.Buffer
	im.SetOutput(&out)
	require.NoError(t, im.PrepareSchema())
	assert.Empty(t, out.String())

	loud := newTestImporter(t, doc)
	loud.cfg.Quiet = false
	var loudOut bytes.Buffer
	loud.SetOutput(&loudOut)
	require.NoError(t, loud.PrepareSchema())
	assert.Equal(t, "Importing 'id' [int64]\n", loudOut.String())
}
