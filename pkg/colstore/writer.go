package colstore

import (
	"io"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/klauspost/compress/zstd"

	"github.com/ajitpratap0/treeport/pkg/treeporterrors"
)

// WriterOptions configure a destination object writer.
type WriterOptions struct {
	// Compressed enables zstd compression of the object payload
	Compressed bool
	// BatchSize is the number of records buffered before a columnar flush
	BatchSize int
}

// DefaultWriterOptions returns compressed output with a 1000-record batch.
func DefaultWriterOptions() WriterOptions {
	return WriterOptions{Compressed: true, BatchSize: 1000}
}

// Writer encodes records of a frozen model into one named columnar object.
// Output columns are the model's physical fields followed by its projected
// fields; nested collections are shadowed by their projections and never
// appear under their internal names.
//
// The object is written to a staging file; Commit publishes it atomically,
// Abort discards it.
type Writer struct {
	store   *Store
	name    string
	model   *Model
	outputs []*Field

	file    *os.File
	final   string
	counter *countingWriter
	zenc    *zstd.Encoder
	fw      *ipc.FileWriter
	rb      *array.RecordBuilder
	schema  *arrow.Schema

	currentBatch   int
	batchSize      int
	recordsWritten int64
	committed      bool
	aborted        bool
}

// NewWriter opens a staged writer for the named object. The model must be
// frozen.
func (s *Store) NewWriter(name string, model *Model, opts WriterOptions) (*Writer, error) {
	if !model.Frozen() {
		return nil, treeporterrors.New(treeporterrors.ErrorTypeInternal,
			"cannot open writer for unfrozen model")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultWriterOptions().BatchSize
	}

	outputs := make([]*Field, 0, len(model.Fields())+len(model.ProjectedFields()))
	outputs = append(outputs, model.Fields()...)
	outputs = append(outputs, model.ProjectedFields()...)

	arrowFields := make([]arrow.Field, 0, len(outputs))
	for _, f := range outputs {
		arrowFields = append(arrowFields, arrow.Field{Name: f.Name(), Type: f.arrowType()})
	}
	schema := arrow.NewSchema(arrowFields, nil)

	final := s.objectPath(name, opts.Compressed)
	file, err := os.OpenFile(final+stagingSuffix, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, treeporterrors.Wrap(err, treeporterrors.ErrorTypeFile,
			"cannot open staging file for object "+name)
	}

	counter := &countingWriter{w: file}
	var sink io.Writer = counter
	var zenc *zstd.Encoder
	if opts.Compressed {
		zenc, err = zstd.NewWriter(counter)
		if err != nil {
			file.Close()
			os.Remove(final + stagingSuffix)
			return nil, treeporterrors.Wrap(err, treeporterrors.ErrorTypeInternal,
				"cannot create zstd encoder")
		}
		sink = zenc
	}

	mem := memory.NewGoAllocator()
	fw, err := ipc.NewFileWriter(sink, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err != nil {
		if zenc != nil {
			zenc.Close()
		}
		file.Close()
		os.Remove(final + stagingSuffix)
		return nil, treeporterrors.Wrap(err, treeporterrors.ErrorTypeInternal,
			"cannot create columnar writer for object "+name)
	}

	return &Writer{
		store:     s,
		name:      name,
		model:     model,
		outputs:   outputs,
		file:      file,
		final:     final,
		counter:   counter,
		zenc:      zenc,
		fw:        fw,
		rb:        array.NewRecordBuilder(mem, schema),
		schema:    schema,
		batchSize: opts.BatchSize,
	}, nil
}

// Fill submits the entry's current values as the next record. Projected
// fields resolve against their backing collections; all collection element
// fills for this record must have happened already. Collection per-record
// state is cleared on return.
func (w *Writer) Fill(e *Entry) error {
	for i, f := range w.outputs {
		var (
			v   any
			err error
		)
		if f.Projection() != nil {
			v, err = w.resolveProjection(f)
		} else {
			v, err = e.Value(f)
		}
		if err != nil {
			return err
		}
		if err := appendValue(w.rb.Field(i), f, v); err != nil {
			return treeporterrors.Wrap(err, treeporterrors.ErrorTypeData,
				"cannot append field "+f.Name())
		}
	}

	for _, c := range w.model.Collections() {
		c.endRecord()
	}

	w.currentBatch++
	w.recordsWritten++
	if w.currentBatch >= w.batchSize {
		return w.flushBatch()
	}
	return nil
}

// resolveProjection computes a projected field's value from its backing
// collection's current per-record state.
func (w *Writer) resolveProjection(f *Field) (any, error) {
	p := f.Projection()
	c := w.model.Collection(p.Collection)
	if c == nil {
		return nil, treeporterrors.Newf(treeporterrors.ErrorTypeInternal,
			"projection targets unknown collection %q", p.Collection)
	}
	if p.Member == "" {
		return uint64(c.Count()), nil
	}
	elems, _, err := c.memberElements(p.Member)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(elems))
	copy(out, elems)
	return out, nil
}

// BytesWritten returns the number of bytes flushed to the staging file so
// far; with compression enabled this is compressed output.
func (w *Writer) BytesWritten() int64 {
	return w.counter.n
}

// RecordsWritten returns the number of records submitted so far.
func (w *Writer) RecordsWritten() int64 {
	return w.recordsWritten
}

// Commit flushes all buffers, finalizes the object, and atomically publishes
// it under its final name.
func (w *Writer) Commit() error {
	if w.committed || w.aborted {
		return treeporterrors.New(treeporterrors.ErrorTypeInternal,
			"writer already finalized")
	}

	if err := w.flushBatch(); err != nil {
		return err
	}
	if err := w.fw.Close(); err != nil {
		return treeporterrors.Wrap(err, treeporterrors.ErrorTypeFile,
			"cannot finalize columnar object "+w.name)
	}
	if w.zenc != nil {
		if err := w.zenc.Close(); err != nil {
			return treeporterrors.Wrap(err, treeporterrors.ErrorTypeFile,
				"cannot finalize compressed object "+w.name)
		}
	}
	if err := w.file.Close(); err != nil {
		return treeporterrors.Wrap(err, treeporterrors.ErrorTypeFile,
			"cannot close staging file for object "+w.name)
	}
	if err := os.Rename(w.final+stagingSuffix, w.final); err != nil {
		return treeporterrors.Wrap(err, treeporterrors.ErrorTypeFile,
			"cannot publish object "+w.name)
	}

	w.rb.Release()
	w.committed = true
	return nil
}

// Abort discards the staged object. Safe to call after Commit, where it is
// a no-op.
func (w *Writer) Abort() {
	if w.committed || w.aborted {
		return
	}
	w.aborted = true
	if w.zenc != nil {
		w.zenc.Close()
	}
	w.file.Close()
	os.Remove(w.final + stagingSuffix)
	w.rb.Release()
}

func (w *Writer) flushBatch() error {
	if w.currentBatch == 0 {
		return nil
	}

	rec := w.rb.NewRecord()
	defer rec.Release()

	if err := w.fw.Write(rec); err != nil {
		return treeporterrors.Wrap(err, treeporterrors.ErrorTypeFile,
			"cannot write record batch for object "+w.name)
	}
	w.currentBatch = 0

	// Push compressed bytes through so BytesWritten tracks flushed output.
	if w.zenc != nil {
		if err := w.zenc.Flush(); err != nil {
			return treeporterrors.Wrap(err, treeporterrors.ErrorTypeFile,
				"cannot flush compressed output for object "+w.name)
		}
	}
	return nil
}

// appendValue appends one decoded value into the builder for f.
func appendValue(b array.Builder, f *Field, v any) error {
	switch f.Kind() {
	case KindScalar:
		return appendScalar(b, v)
	case KindString:
		sb, ok := b.(*array.StringBuilder)
		if !ok {
			return errBuilderMismatch(f, b)
		}
		s, ok := v.(string)
		if !ok {
			return errValueMismatch(f, v)
		}
		sb.Append(s)
		return nil
	case KindFixedArray:
		fb, ok := b.(*array.FixedSizeListBuilder)
		if !ok {
			return errBuilderMismatch(f, b)
		}
		elems, ok := v.([]any)
		if !ok {
			return errValueMismatch(f, v)
		}
		fb.Append(true)
		for _, ev := range elems {
			if err := appendScalar(fb.ValueBuilder(), ev); err != nil {
				return err
			}
		}
		return nil
	case KindRecord:
		sb, ok := b.(*array.StructBuilder)
		if !ok {
			return errBuilderMismatch(f, b)
		}
		members, ok := v.([]any)
		if !ok {
			return errValueMismatch(f, v)
		}
		sb.Append(true)
		for i, mv := range members {
			if err := appendValue(sb.FieldBuilder(i), f.members[i], mv); err != nil {
				return err
			}
		}
		return nil
	case KindList:
		lb, ok := b.(*array.ListBuilder)
		if !ok {
			return errBuilderMismatch(f, b)
		}
		elems, ok := v.([]any)
		if !ok {
			return errValueMismatch(f, v)
		}
		lb.Append(true)
		for _, ev := range elems {
			if err := appendValue(lb.ValueBuilder(), f.elem, ev); err != nil {
				return err
			}
		}
		return nil
	case KindCardinality:
		ub, ok := b.(*array.Uint64Builder)
		if !ok {
			return errBuilderMismatch(f, b)
		}
		n, ok := v.(uint64)
		if !ok {
			return errValueMismatch(f, v)
		}
		ub.Append(n)
		return nil
	default:
		return treeporterrors.Newf(treeporterrors.ErrorTypeInternal,
			"field %q has invalid kind", f.Name())
	}
}

func appendScalar(b array.Builder, v any) error {
	ok := false
	switch bb := b.(type) {
	case *array.BooleanBuilder:
		var val bool
		if val, ok = v.(bool); ok {
			bb.Append(val)
		}
	case *array.Int8Builder:
		var val int8
		if val, ok = v.(int8); ok {
			bb.Append(val)
		}
	case *array.Uint8Builder:
		var val uint8
		if val, ok = v.(uint8); ok {
			bb.Append(val)
		}
	case *array.Int16Builder:
		var val int16
		if val, ok = v.(int16); ok {
			bb.Append(val)
		}
	case *array.Uint16Builder:
		var val uint16
		if val, ok = v.(uint16); ok {
			bb.Append(val)
		}
	case *array.Int32Builder:
		var val int32
		if val, ok = v.(int32); ok {
			bb.Append(val)
		}
	case *array.Uint32Builder:
		var val uint32
		if val, ok = v.(uint32); ok {
			bb.Append(val)
		}
	case *array.Int64Builder:
		var val int64
		if val, ok = v.(int64); ok {
			bb.Append(val)
		}
	case *array.Uint64Builder:
		var val uint64
		if val, ok = v.(uint64); ok {
			bb.Append(val)
		}
	case *array.Float32Builder:
		var val float32
		if val, ok = v.(float32); ok {
			bb.Append(val)
		}
	case *array.Float64Builder:
		var val float64
		if val, ok = v.(float64); ok {
			bb.Append(val)
		}
	default:
		return treeporterrors.Newf(treeporterrors.ErrorTypeInternal,
			"unsupported scalar builder %T", b)
	}
	if !ok {
		return treeporterrors.Newf(treeporterrors.ErrorTypeInternal,
			"value %T does not match builder %T", v, b)
	}
	return nil
}

func errBuilderMismatch(f *Field, b array.Builder) error {
	return treeporterrors.Newf(treeporterrors.ErrorTypeInternal,
		"builder %T does not match field %q (%s)", b, f.Name(), f.TypeName())
}

func errValueMismatch(f *Field, v any) error {
	return treeporterrors.Newf(treeporterrors.ErrorTypeInternal,
		"value %T does not match field %q (%s)", v, f.Name(), f.TypeName())
}

// countingWriter counts bytes flowing into the staging file.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
