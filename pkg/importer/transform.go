package importer

import (
	"bytes"

	"github.com/ajitpratap0/treeport/pkg/treeporterrors"
)

// recordContext carries per-record transformation state. It is created fresh
// for every record (and for every collection pass within a record), so
// transformations themselves stay stateless and no reset discipline exists.
type recordContext struct {
	// element is the index of the collection element being extracted;
	// always 0 for top-level transformations
	element int
}

// transformation converts a source read-buffer segment into a destination
// value-buffer segment. Implementations must not retain state across calls.
type transformation interface {
	transform(b *importBranch, f *importField, rc *recordContext) error
}

// boundTransform ties a transformation to the branch it reads and the field
// it writes.
type boundTransform struct {
	branch int
	field  int
	op     transformation
}

// cstringTransform materializes a null-terminated branch buffer into the
// field's string cell.
type cstringTransform struct{}

func (cstringTransform) transform(b *importBranch, f *importField, _ *recordContext) error {
	if f.str == nil {
		return treeporterrors.Newf(treeporterrors.ErrorTypeInternal,
			"field %q has no string cell", f.field.Name())
	}
	raw := b.buffer
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	*f.str = string(raw)
	return nil
}

// leafArrayTransform copies one fixed-width element of the branch's array
// buffer into the field's owned value buffer. The element index comes from
// the record context.
type leafArrayTransform struct{}

func (leafArrayTransform) transform(b *importBranch, f *importField, rc *recordContext) error {
	w := f.field.ValueSize()
	off := rc.element * w
	if off+w > len(b.buffer) {
		return treeporterrors.Newf(treeporterrors.ErrorTypeData,
			"element %d of branch %q is outside its %d-byte read buffer",
			rc.element, b.name, len(b.buffer))
	}
	copy(f.buffer.data, b.buffer[off:off+w])
	return nil
}
