package colstore

import (
	"github.com/ajitpratap0/treeport/pkg/treeporterrors"
)

// Model is a destination schema under construction. It starts bare, grows
// physical fields, nested collections, and projected fields, and is frozen
// before a writer can bind to it. A frozen model is immutable.
type Model struct {
	fields      []*Field
	projected   []*Field
	collections []*Collection
	frozen      bool
}

// NewBareModel creates an empty, unfrozen model.
func NewBareModel() *Model {
	return &Model{}
}

// AddField registers a physical top-level field.
func (m *Model) AddField(f *Field) error {
	if m.frozen {
		return treeporterrors.New(treeporterrors.ErrorTypeInternal,
			"cannot add field to frozen model")
	}
	if m.lookup(f.name) != nil {
		return treeporterrors.Newf(treeporterrors.ErrorTypeConflict,
			"field %q already registered", f.name)
	}
	m.fields = append(m.fields, f)
	return nil
}

// AddProjectedField registers a read-only view field backed by a collection.
// Projected fields own no storage; their values are computed from the
// collection's per-record state.
func (m *Model) AddProjectedField(f *Field, p Projection) error {
	if m.frozen {
		return treeporterrors.New(treeporterrors.ErrorTypeInternal,
			"cannot add projected field to frozen model")
	}
	if m.Collection(p.Collection) == nil {
		return treeporterrors.Newf(treeporterrors.ErrorTypeNotFound,
			"projection targets unknown collection %q", p.Collection)
	}
	proj := p
	f.proj = &proj
	m.projected = append(m.projected, f)
	return nil
}

// MakeCollection attaches a frozen sub-model as a nested collection under
// the given internal name and returns the collection's write handle. The
// collection name is never exposed to consumers of the destination schema;
// projected fields shadow it.
func (m *Model) MakeCollection(name string, sub *Model) (*Collection, error) {
	if m.frozen {
		return nil, treeporterrors.New(treeporterrors.ErrorTypeInternal,
			"cannot attach collection to frozen model")
	}
	if !sub.frozen {
		return nil, treeporterrors.New(treeporterrors.ErrorTypeInternal,
			"collection sub-model must be frozen before attachment")
	}
	c := &Collection{
		name:    name,
		model:   sub,
		pending: make([][]any, len(sub.fields)),
	}
	m.collections = append(m.collections, c)
	return c, nil
}

// Freeze makes the model immutable. Must be called before CreateEntry or
// writer binding.
func (m *Model) Freeze() {
	m.frozen = true
}

// Frozen reports whether the model has been frozen.
func (m *Model) Frozen() bool { return m.frozen }

// Fields returns the physical top-level fields in registration order.
func (m *Model) Fields() []*Field { return m.fields }

// ProjectedFields returns the projected fields in registration order.
func (m *Model) ProjectedFields() []*Field { return m.projected }

// Collections returns the nested collections in attachment order.
func (m *Model) Collections() []*Collection { return m.collections }

// Collection resolves a nested collection by its internal name.
func (m *Model) Collection(name string) *Collection {
	for _, c := range m.collections {
		if c.name == name {
			return c
		}
	}
	return nil
}

func (m *Model) lookup(name string) *Field {
	for _, f := range m.fields {
		if f.name == name {
			return f
		}
	}
	return nil
}

// CreateEntry builds a bare value-capture entry for the frozen model. Every
// physical field must be bound before the entry is usable.
func (m *Model) CreateEntry() (*Entry, error) {
	if !m.frozen {
		return nil, treeporterrors.New(treeporterrors.ErrorTypeInternal,
			"cannot create entry for unfrozen model")
	}
	return &Entry{
		model:    m,
		bindings: make(map[string]*Binding, len(m.fields)),
	}, nil
}

// Binding aliases the live storage of one field. Exactly one of the three
// members is set: Buf for plain value buffers, BufPtr for aggregate
// instances repointed by the reader each record, Str for materialized
// string cells.
type Binding struct {
	Buf    []byte
	BufPtr *[]byte
	Str    *string
}

// Entry is a value-capture proxy for one model: it aliases every bound
// field's live buffer so that submission reads current contents without a
// copy.
type Entry struct {
	model    *Model
	bindings map[string]*Binding
}

// BindBuffer captures a field's value buffer. The buffer is aliased, not
// copied; its current contents are read at each submission.
func (e *Entry) BindBuffer(name string, buf []byte) error {
	return e.bind(name, &Binding{Buf: buf})
}

// BindObject captures an aggregate field through a pointer to its instance
// buffer; the pointee may be repointed between records.
func (e *Entry) BindObject(name string, target *[]byte) error {
	return e.bind(name, &Binding{BufPtr: target})
}

// BindString captures a string field's materialized cell.
func (e *Entry) BindString(name string, s *string) error {
	return e.bind(name, &Binding{Str: s})
}

func (e *Entry) bind(name string, b *Binding) error {
	if e.model.lookup(name) == nil {
		return treeporterrors.Newf(treeporterrors.ErrorTypeNotFound,
			"cannot bind unknown field %q", name)
	}
	e.bindings[name] = b
	return nil
}

// Value reads the field's current value through its binding.
func (e *Entry) Value(f *Field) (any, error) {
	b := e.bindings[f.name]
	if b == nil {
		return nil, treeporterrors.Newf(treeporterrors.ErrorTypeInternal,
			"field %q is not bound", f.name)
	}

	if f.kind == KindString {
		if b.Str == nil {
			return nil, treeporterrors.Newf(treeporterrors.ErrorTypeInternal,
				"field %q requires a string binding", f.name)
		}
		return *b.Str, nil
	}

	buf := b.Buf
	if b.BufPtr != nil {
		buf = *b.BufPtr
	}
	if buf == nil {
		return nil, treeporterrors.Newf(treeporterrors.ErrorTypeInternal,
			"field %q has no buffer bound", f.name)
	}

	v, err := f.decode(buf)
	if err != nil {
		return nil, treeporterrors.Wrap(err, treeporterrors.ErrorTypeData,
			"cannot decode field "+f.name)
	}
	return v, nil
}

// Collection is the write handle for a nested sub-model. Elements are
// accumulated per outer record with Fill and drained when the outer record
// is submitted; Offset counts all elements written across records.
type Collection struct {
	name    string
	model   *Model
	pending [][]any
	count   int
	offset  uint64
}

// Name returns the collection's internal name.
func (c *Collection) Name() string { return c.name }

// Model returns the collection's frozen sub-model.
func (c *Collection) Model() *Model { return c.model }

// Fill captures the entry's current values as the next element of the
// current outer record.
func (c *Collection) Fill(e *Entry) error {
	for i, f := range c.model.fields {
		v, err := e.Value(f)
		if err != nil {
			return err
		}
		c.pending[i] = append(c.pending[i], v)
	}
	c.count++
	return nil
}

// Count returns the number of elements filled for the current outer record.
func (c *Collection) Count() int { return c.count }

// Offset returns the total number of elements written across all records.
func (c *Collection) Offset() uint64 { return c.offset }

// memberElements returns the pending element values for the named member
// field of the current outer record.
func (c *Collection) memberElements(member string) ([]any, *Field, error) {
	for i, f := range c.model.fields {
		if f.name == member {
			return c.pending[i], f, nil
		}
	}
	return nil, nil, treeporterrors.Newf(treeporterrors.ErrorTypeNotFound,
		"collection %q has no member %q", c.name, member)
}

// endRecord advances the global offset and clears the per-record element
// state. Called by the writer after the outer record is appended.
func (c *Collection) endRecord() {
	c.offset += uint64(c.count)
	c.count = 0
	for i := range c.pending {
		c.pending[i] = c.pending[i][:0]
	}
}
