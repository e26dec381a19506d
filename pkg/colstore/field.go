// Package colstore provides the typed, columnar destination side of an
// import: a field model with a closed type registry, freezable schemas with
// value-capture entries, nested collections with projected views, and an
// Arrow-backed object store with optional zstd compression.
package colstore

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/ajitpratap0/treeport/pkg/rowstore"
)

// FieldKind discriminates the destination field shapes.
type FieldKind uint8

const (
	// KindScalar is a single fixed-width value
	KindScalar FieldKind = iota + 1
	// KindString is a variable-length UTF-8 string
	KindString
	// KindFixedArray is a fixed-capacity array of scalars
	KindFixedArray
	// KindRecord is an aggregate of named members at fixed offsets
	KindRecord
	// KindList is a variable-length sequence; only used for projected views
	KindList
	// KindCardinality is the element count of a collection; projected only
	KindCardinality
)

// UnknownTypeError reports a leaf tag outside the closed scalar mapping.
type UnknownTypeError struct {
	Tag rowstore.TypeTag
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("no destination field type for leaf type %q", e.Tag)
}

// Projection maps a projected field onto the collection backing it. An empty
// Member resolves to the collection itself (its cardinality); otherwise the
// named member's per-record element sequence.
type Projection struct {
	Collection string
	Member     string
}

// Field is a named, typed unit in the destination schema. Fields are built
// once during schema preparation and immutable afterwards.
type Field struct {
	name    string
	kind    FieldKind
	tag     rowstore.TypeTag // scalar / element tag
	length  int              // fixed array capacity
	members []*Field         // record members
	offset  int              // byte offset within the parent record buffer
	size    int              // record instance size
	elem    *Field           // list element field
	proj    *Projection      // set on projected fields only
}

// scalarArrowTypes is the closed mapping from leaf tags to Arrow types.
// Tags outside it cannot become destination fields.
var scalarArrowTypes = map[rowstore.TypeTag]arrow.DataType{
	rowstore.TagBool:    arrow.FixedWidthTypes.Boolean,
	rowstore.TagInt8:    arrow.PrimitiveTypes.Int8,
	rowstore.TagUInt8:   arrow.PrimitiveTypes.Uint8,
	rowstore.TagInt16:   arrow.PrimitiveTypes.Int16,
	rowstore.TagUInt16:  arrow.PrimitiveTypes.Uint16,
	rowstore.TagInt32:   arrow.PrimitiveTypes.Int32,
	rowstore.TagUInt32:  arrow.PrimitiveTypes.Uint32,
	rowstore.TagInt64:   arrow.PrimitiveTypes.Int64,
	rowstore.TagUInt64:  arrow.PrimitiveTypes.Uint64,
	rowstore.TagFloat32: arrow.PrimitiveTypes.Float32,
	rowstore.TagFloat64: arrow.PrimitiveTypes.Float64,
	rowstore.TagChar:    arrow.PrimitiveTypes.Int8,
}

// NewScalarField builds a scalar destination field for a leaf tag.
func NewScalarField(name string, tag rowstore.TypeTag) (*Field, error) {
	if _, ok := scalarArrowTypes[tag]; !ok {
		return nil, &UnknownTypeError{Tag: tag}
	}
	return &Field{name: name, kind: KindScalar, tag: tag}, nil
}

// NewStringField builds a string destination field.
func NewStringField(name string) *Field {
	return &Field{name: name, kind: KindString}
}

// NewFixedArrayField builds a fixed-capacity array field of n scalar
// elements.
func NewFixedArrayField(name string, tag rowstore.TypeTag, n int) (*Field, error) {
	if _, ok := scalarArrowTypes[tag]; !ok {
		return nil, &UnknownTypeError{Tag: tag}
	}
	return &Field{name: name, kind: KindFixedArray, tag: tag, length: n}, nil
}

// NewRecordField builds an aggregate field from already constructed member
// fields. Member offsets locate each member within the record's raw buffer;
// size is the total buffer size.
func NewRecordField(name string, members []*Field, size int) *Field {
	return &Field{name: name, kind: KindRecord, members: members, size: size}
}

// NewRecordFieldFromClass builds an aggregate field from class metadata.
func NewRecordFieldFromClass(name string, desc *rowstore.ClassDescriptor) (*Field, error) {
	members := make([]*Field, 0, len(desc.Members))
	for _, m := range desc.Members {
		f, err := NewScalarField(m.Name, m.Tag)
		if err != nil {
			return nil, err
		}
		f.offset = m.Offset
		members = append(members, f)
	}
	return NewRecordField(name, members, desc.Size), nil
}

// NewListField builds a projected variable-length sequence field whose
// elements have the shape of elem.
func NewListField(name string, elem *Field) *Field {
	return &Field{name: name, kind: KindList, elem: elem}
}

// NewCardinalityField builds a projected element-count field.
func NewCardinalityField(name string) *Field {
	return &Field{name: name, kind: KindCardinality}
}

// Name returns the field name.
func (f *Field) Name() string { return f.name }

// Kind returns the field's shape.
func (f *Field) Kind() FieldKind { return f.kind }

// Projection returns the backing projection, or nil for physical fields.
func (f *Field) Projection() *Projection { return f.proj }

// SetOffset locates the field within its parent record buffer.
func (f *Field) SetOffset(off int) { f.offset = off }

// TypeName returns the human-readable destination type, as shown in the
// schema report.
func (f *Field) TypeName() string {
	switch f.kind {
	case KindScalar:
		return f.tag.String()
	case KindString:
		return "string"
	case KindFixedArray:
		return "[" + strconv.Itoa(f.length) + "]" + f.tag.String()
	case KindRecord:
		return "record{" + recordMemberNames(f.members) + "}"
	case KindList:
		return "[]" + f.elem.TypeName()
	case KindCardinality:
		return "cardinality"
	default:
		return "invalid"
	}
}

func recordMemberNames(members []*Field) string {
	s := ""
	for i, m := range members {
		if i > 0 {
			s += ","
		}
		s += m.name
	}
	return s
}

// ValueSize returns the byte size of one value in source buffer layout: the
// element width for scalars, capacity times width for fixed arrays, the
// instance size for records, 0 for shapes without a raw buffer form.
func (f *Field) ValueSize() int {
	switch f.kind {
	case KindScalar:
		return f.tag.Width()
	case KindFixedArray:
		return f.length * f.tag.Width()
	case KindRecord:
		return f.size
	default:
		return 0
	}
}

// arrowType maps the field onto its Arrow data type.
func (f *Field) arrowType() arrow.DataType {
	switch f.kind {
	case KindScalar:
		return scalarArrowTypes[f.tag]
	case KindString:
		return arrow.BinaryTypes.String
	case KindFixedArray:
		return arrow.FixedSizeListOf(int32(f.length), scalarArrowTypes[f.tag])
	case KindRecord:
		fields := make([]arrow.Field, 0, len(f.members))
		for _, m := range f.members {
			fields = append(fields, arrow.Field{Name: m.name, Type: m.arrowType()})
		}
		return arrow.StructOf(fields...)
	case KindList:
		return arrow.ListOf(f.elem.arrowType())
	case KindCardinality:
		return arrow.PrimitiveTypes.Uint64
	default:
		return nil
	}
}

// decode reads one value from a raw source buffer. Only buffer-backed shapes
// (scalars, fixed arrays, records) are decodable; strings are materialized
// by transformations and never decoded here.
func (f *Field) decode(buf []byte) (any, error) {
	switch f.kind {
	case KindScalar:
		return decodeScalar(f.tag, buf)
	case KindFixedArray:
		w := f.tag.Width()
		if len(buf) < f.length*w {
			return nil, errShortBuffer(f.name, f.length*w, len(buf))
		}
		out := make([]any, f.length)
		for i := 0; i < f.length; i++ {
			v, err := decodeScalar(f.tag, buf[i*w:])
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case KindRecord:
		out := make([]any, len(f.members))
		for i, m := range f.members {
			if m.offset >= len(buf) {
				return nil, errShortBuffer(m.name, m.offset+m.ValueSize(), len(buf))
			}
			v, err := m.decode(buf[m.offset:])
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("field %q (%s) has no raw buffer form", f.name, f.TypeName())
	}
}

func decodeScalar(tag rowstore.TypeTag, buf []byte) (any, error) {
	w := tag.Width()
	if len(buf) < w {
		return nil, errShortBuffer(tag.String(), w, len(buf))
	}
	switch tag {
	case rowstore.TagBool:
		return buf[0] != 0, nil
	case rowstore.TagInt8, rowstore.TagChar:
		return int8(buf[0]), nil
	case rowstore.TagUInt8:
		return buf[0], nil
	case rowstore.TagInt16:
		return int16(binary.LittleEndian.Uint16(buf)), nil
	case rowstore.TagUInt16:
		return binary.LittleEndian.Uint16(buf), nil
	case rowstore.TagInt32:
		return int32(binary.LittleEndian.Uint32(buf)), nil
	case rowstore.TagUInt32:
		return binary.LittleEndian.Uint32(buf), nil
	case rowstore.TagInt64:
		return int64(binary.LittleEndian.Uint64(buf)), nil
	case rowstore.TagUInt64:
		return binary.LittleEndian.Uint64(buf), nil
	case rowstore.TagFloat32:
		return math.Float32frombits(binary.LittleEndian.Uint32(buf)), nil
	case rowstore.TagFloat64:
		return math.Float64frombits(binary.LittleEndian.Uint64(buf)), nil
	default:
		return nil, &UnknownTypeError{Tag: tag}
	}
}

func errShortBuffer(name string, want, got int) error {
	return fmt.Errorf("value buffer for %s too short: need %d bytes, have %d", name, want, got)
}
