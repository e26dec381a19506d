package colstore

import (
	"bytes"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/klauspost/compress/zstd"

	"github.com/ajitpratap0/treeport/pkg/treeporterrors"
)

// ObjectReader reads a published columnar object back as row-oriented value
// maps. It exists for verification and inspection; imports never read the
// destination.
type ObjectReader struct {
	name   string
	reader *ipc.FileReader
	schema *arrow.Schema
}

// OpenObject opens a published object by name, transparently decompressing
// zstd payloads.
func (s *Store) OpenObject(name string) (*ObjectReader, error) {
	var payload []byte

	if raw, err := os.ReadFile(s.objectPath(name, true)); err == nil {
		dec, derr := zstd.NewReader(nil)
		if derr != nil {
			return nil, treeporterrors.Wrap(derr, treeporterrors.ErrorTypeInternal,
				"cannot create zstd decoder")
		}
		payload, derr = dec.DecodeAll(raw, nil)
		dec.Close()
		if derr != nil {
			return nil, treeporterrors.Wrap(derr, treeporterrors.ErrorTypeData,
				"cannot decompress object "+name)
		}
	} else {
		raw, err := os.ReadFile(s.objectPath(name, false))
		if err != nil {
			return nil, treeporterrors.Newf(treeporterrors.ErrorTypeNotFound,
				"object %q does not exist in store %s", name, s.dir)
		}
		payload = raw
	}

	fr, err := ipc.NewFileReader(bytes.NewReader(payload), ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, treeporterrors.Wrap(err, treeporterrors.ErrorTypeData,
			"cannot decode object "+name)
	}

	return &ObjectReader{
		name:   name,
		reader: fr,
		schema: fr.Schema(),
	}, nil
}

// Schema returns the object's Arrow schema.
func (r *ObjectReader) Schema() *arrow.Schema { return r.schema }

// NumRecords returns the total row count across all batches.
func (r *ObjectReader) NumRecords() (int64, error) {
	var total int64
	for i := 0; i < r.reader.NumRecords(); i++ {
		rec, err := r.reader.Record(i)
		if err != nil {
			return 0, treeporterrors.Wrap(err, treeporterrors.ErrorTypeData,
				"cannot read batch of object "+r.name)
		}
		total += rec.NumRows()
	}
	return total, nil
}

// ReadAll materializes every row as a field-name → value map. Sequence
// columns come back as []any, aggregates as map[string]any.
func (r *ObjectReader) ReadAll() ([]map[string]any, error) {
	var rows []map[string]any

	for i := 0; i < r.reader.NumRecords(); i++ {
		rec, err := r.reader.Record(i)
		if err != nil {
			return nil, treeporterrors.Wrap(err, treeporterrors.ErrorTypeData,
				"cannot read batch of object "+r.name)
		}

		for row := 0; row < int(rec.NumRows()); row++ {
			values := make(map[string]any, int(rec.NumCols()))
			for col := 0; col < int(rec.NumCols()); col++ {
				field := rec.Schema().Field(col)
				values[field.Name] = columnValue(rec.Column(col), row)
			}
			rows = append(rows, values)
		}
	}

	return rows, nil
}

// Close releases the underlying batches.
func (r *ObjectReader) Close() error {
	return r.reader.Close()
}

// columnValue extracts the value at row i of a column, recursing into list,
// fixed-size-list, and struct columns.
func columnValue(col arrow.Array, i int) any {
	if col.IsNull(i) {
		return nil
	}

	switch c := col.(type) {
	case *array.Boolean:
		return c.Value(i)
	case *array.Int8:
		return c.Value(i)
	case *array.Uint8:
		return c.Value(i)
	case *array.Int16:
		return c.Value(i)
	case *array.Uint16:
		return c.Value(i)
	case *array.Int32:
		return c.Value(i)
	case *array.Uint32:
		return c.Value(i)
	case *array.Int64:
		return c.Value(i)
	case *array.Uint64:
		return c.Value(i)
	case *array.Float32:
		return c.Value(i)
	case *array.Float64:
		return c.Value(i)
	case *array.String:
		return c.Value(i)
	case *array.List:
		start, end := c.ValueOffsets(i)
		values := c.ListValues()
		out := make([]any, 0, end-start)
		for j := start; j < end; j++ {
			out = append(out, columnValue(values, int(j)))
		}
		return out
	case *array.FixedSizeList:
		n := int(c.DataType().(*arrow.FixedSizeListType).Len())
		values := c.ListValues()
		out := make([]any, 0, n)
		for j := i * n; j < (i+1)*n; j++ {
			out = append(out, columnValue(values, j))
		}
		return out
	case *array.Struct:
		typ := c.DataType().(*arrow.StructType)
		out := make(map[string]any, c.NumField())
		for j := 0; j < c.NumField(); j++ {
			out[typ.Field(j).Name] = columnValue(c.Field(j), i)
		}
		return out
	default:
		return nil
	}
}
