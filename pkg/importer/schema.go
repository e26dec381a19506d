package importer

import (
	"fmt"
	"strconv"

	"github.com/ajitpratap0/treeport/pkg/colstore"
	"github.com/ajitpratap0/treeport/pkg/rowstore"
	"github.com/ajitpratap0/treeport/pkg/treeporterrors"
)

// importBranch pairs a source branch with its landing buffer. The buffer is
// allocated once during schema preparation and overwritten in place by every
// record read.
type importBranch struct {
	name   string
	buffer []byte
	// aggregate branches land through a pointer the reader repoints at its
	// live instance buffer
	aggregate bool
	instance  []byte
}

// bufferKind makes value buffer ownership explicit.
type bufferKind uint8

const (
	// bufferNone means no buffer has been assigned yet
	bufferNone bufferKind = iota
	// bufferOwned is a dedicated buffer filled by a transformation
	bufferOwned
	// bufferAliased shares memory with the branch's read buffer
	bufferAliased
)

type valueBuffer struct {
	kind bufferKind
	data []byte
}

// importField pairs one destination field with the storage its values are
// read from at submission time.
type importField struct {
	field     *colstore.Field
	branchIdx int
	buffer    valueBuffer
	// str is the materialized cell for string fields
	str *string
	// aggregate fields bind through the branch's instance pointer
	aggregate bool
	// inCollection fields belong to a count-leaf collection's sub-schema
	// and are not bound into the top-level entry
	inCollection bool
}

// branchClass is the classification of one source branch.
type branchClass struct {
	isLeafList  bool
	isCountLeaf bool
	isClass     bool
	isCString   bool
}

// leafCountCollection groups every import field whose source leaf shares one
// count leaf into a nested, untyped sub-schema with its own write handle.
type leafCountCollection struct {
	// name is the synthesized internal collection name; never user-visible
	name      string
	countLeaf string
	maxLength int
	// countBuf lands the count leaf's 32-bit value each record
	countBuf   []byte
	model      *colstore.Model
	entry      *colstore.Entry
	handle     *colstore.Collection
	fieldIdx   []int
	transforms []boundTransform
}

// classifyBranch inspects one branch and its leaves. Classification is a
// pure function of the branch metadata; re-running it yields identical
// results.
func classifyBranch(b rowstore.Branch) (branchClass, error) {
	if len(b.Leaves) == 0 {
		return branchClass{}, treeporterrors.Newf(treeporterrors.ErrorTypeInternal,
			"branch %q has no leaves", b.Name)
	}
	first := b.Leaves[0]

	c := branchClass{
		isLeafList:  len(b.Leaves) > 1,
		isCountLeaf: first.IsRange,
		isClass:     first.Tag == rowstore.TagClass,
	}

	if c.isLeafList {
		for _, l := range b.Leaves {
			if l.Tag == rowstore.TagClass {
				return branchClass{}, treeporterrors.New(treeporterrors.ErrorTypeUnsupported,
					"aggregates in leaf list, branch "+b.Name)
			}
			if l.CountLeaf != "" || l.IsRange {
				return branchClass{}, treeporterrors.New(treeporterrors.ErrorTypeUnsupported,
					"count leaf arrays in leaf list, branch "+b.Name)
			}
		}
	}

	// Only plain capacity-1 char leaves with no leaf counter are strings;
	// everything else char-typed is a char array.
	c.isCString = !c.isLeafList && first.Tag == rowstore.TagChar &&
		first.CountLeaf == "" && first.Count == 1 && !first.IsRange

	return c, nil
}

// ResetSchema discards all prepared schema state: branches, fields,
// collections, transformations, and the destination model.
func (im *Importer) ResetSchema() {
	im.branches = nil
	im.fields = nil
	im.collections = nil
	im.collByLeaf = make(map[string]*leafCountCollection)
	im.transforms = nil
	im.model = colstore.NewBareModel()
	im.entry = nil
}

// PrepareSchema walks all branches and their leaves, creates the
// corresponding destination fields, and plans the read and write buffers.
// Reading and writing usually share one buffer: the value is read from the
// source and written as-is. Count leaf arrays and strings are the
// exceptions; they pass through a transformation into an owned buffer first.
func (im *Importer) PrepareSchema() error {
	im.ResetSchema()

	for _, b := range im.source.Branches() {
		cls, err := classifyBranch(b)
		if err != nil {
			return err
		}
		first := b.Leaves[0]

		if cls.isCountLeaf {
			// Count leaves do not become physical fields; they open an
			// untyped collection that sibling arrays accumulate into.
			c := &leafCountCollection{
				countLeaf: first.Name,
				maxLength: first.Max,
				countBuf:  make([]byte, 4), // count leaves are 32-bit integers
				model:     colstore.NewBareModel(),
			}
			if err := im.source.RegisterBuffer(b.Name, c.countBuf); err != nil {
				return treeporterrors.Wrap(err, treeporterrors.ErrorTypeFile,
					"cannot register count leaf branch "+b.Name)
			}
			im.collections = append(im.collections, c)
			im.collByLeaf[first.Name] = c
			continue
		}

		if err := im.prepareBranch(b, cls); err != nil {
			return err
		}
	}

	if err := im.prepareCollections(); err != nil {
		return err
	}

	im.model.Freeze()
	entry, err := im.model.CreateEntry()
	if err != nil {
		return err
	}
	for _, f := range im.fields {
		if f.inCollection {
			continue
		}
		switch {
		case f.str != nil:
			err = entry.BindString(f.field.Name(), f.str)
		case f.aggregate:
			err = entry.BindObject(f.field.Name(), &im.branches[f.branchIdx].instance)
		default:
			err = entry.BindBuffer(f.field.Name(), f.buffer.data)
		}
		if err != nil {
			return err
		}
	}
	im.entry = entry

	if !im.cfg.Quiet {
		im.ReportSchema()
	}
	return nil
}

// prepareBranch builds the fields, value buffers, and read buffer for one
// non-count-leaf branch.
func (im *Importer) prepareBranch(b rowstore.Branch, cls branchClass) error {
	branchIdx := len(im.branches)
	branchBufferSize := 0

	// For leaf lists, every leaf becomes a member of one aggregate record
	// field added once the branch's leaves are exhausted.
	var recordMembers []*colstore.Field

	for _, l := range b.Leaves {
		if l.Tag == rowstore.TagObject {
			return treeporterrors.New(treeporterrors.ErrorTypeUnsupported,
				"opaque object branches, branch "+b.Name)
		}

		isLeafCountArray := l.CountLeaf != ""
		isFixedArray := !isLeafCountArray && l.Count > 1

		fieldName := b.Name
		if cls.isLeafList {
			fieldName = l.Name
		}

		field, err := im.buildField(fieldName, l, cls, isFixedArray)
		if err != nil {
			return err
		}

		f := &importField{field: field, branchIdx: branchIdx}

		switch {
		case cls.isCString:
			// The raw bytes must hold the longest string plus terminator;
			// a transformation materializes the string each record.
			branchBufferSize = l.Max
			f.str = new(string)
			im.transforms = append(im.transforms, boundTransform{
				branch: branchIdx, field: len(im.fields), op: cstringTransform{},
			})
		case cls.isClass:
			// The reader lands an instance pointer, not bytes
			f.aggregate = true
		case isLeafCountArray:
			c, ok := im.collByLeaf[l.CountLeaf]
			if !ok {
				return treeporterrors.Newf(treeporterrors.ErrorTypeUnsupported,
					"count leaf %q must precede array branch %q", l.CountLeaf, b.Name)
			}
			if size := c.maxLength * field.ValueSize(); size > branchBufferSize {
				branchBufferSize = size
			}
		default:
			if size := l.Offset + field.ValueSize(); size > branchBufferSize {
				branchBufferSize = size
			}
		}

		switch {
		case cls.isLeafList:
			field.SetOffset(l.Offset)
			recordMembers = append(recordMembers, field)
		case isLeafCountArray:
			f.buffer = valueBuffer{kind: bufferOwned, data: make([]byte, field.ValueSize())}
			f.inCollection = true
			c := im.collByLeaf[l.CountLeaf]
			if err := c.model.AddField(field); err != nil {
				return err
			}
			c.fieldIdx = append(c.fieldIdx, len(im.fields))
			c.transforms = append(c.transforms, boundTransform{
				branch: branchIdx, field: len(im.fields), op: leafArrayTransform{},
			})
			im.fields = append(im.fields, f)
		default:
			if err := im.model.AddField(field); err != nil {
				return err
			}
			im.fields = append(im.fields, f)
		}
	}

	if len(recordMembers) > 0 {
		recordField := colstore.NewRecordField(b.Name, recordMembers, branchBufferSize)
		f := &importField{field: recordField, branchIdx: branchIdx}
		if err := im.model.AddField(recordField); err != nil {
			return err
		}
		im.fields = append(im.fields, f)
	}

	ib := &importBranch{
		name:      b.Name,
		buffer:    make([]byte, branchBufferSize),
		aggregate: cls.isClass,
	}
	im.branches = append(im.branches, ib)

	var err error
	if cls.isClass {
		err = im.source.RegisterObject(b.Name, &ib.instance)
	} else {
		err = im.source.RegisterBuffer(b.Name, ib.buffer)
	}
	if err != nil {
		return treeporterrors.Wrap(err, treeporterrors.ErrorTypeFile,
			"cannot register branch "+b.Name)
	}

	// When the source layout and destination field layout match, the field
	// aliases the branch read buffer directly and no value is ever copied.
	last := im.fields[len(im.fields)-1]
	if last.branchIdx == branchIdx && last.buffer.kind == bufferNone &&
		last.str == nil && !last.aggregate {
		aliasOffset := 0
		if !cls.isLeafList {
			aliasOffset = b.Leaves[0].Offset
		}
		last.buffer = valueBuffer{kind: bufferAliased, data: ib.buffer[aliasOffset:]}
	}

	return nil
}

// buildField derives the destination field for one leaf from its
// classification. Failure to resolve the leaf type is fatal for the whole
// preparation and is forwarded, not retried.
func (im *Importer) buildField(name string, l rowstore.Leaf, cls branchClass, isFixedArray bool) (*colstore.Field, error) {
	var (
		field *colstore.Field
		err   error
	)
	switch {
	case cls.isCString:
		field = colstore.NewStringField(name)
	case cls.isClass:
		desc, ok := im.source.Class(l.ClassName)
		if !ok {
			return nil, treeporterrors.Newf(treeporterrors.ErrorTypeUnsupported,
				"unable to load class %q for branch %q", l.ClassName, name)
		}
		field, err = colstore.NewRecordFieldFromClass(name, desc)
	case isFixedArray:
		field, err = colstore.NewFixedArrayField(name, l.Tag, l.Count)
	default:
		field, err = colstore.NewScalarField(name, l.Tag)
	}
	if err != nil {
		return nil, treeporterrors.Wrap(err, treeporterrors.ErrorTypeUnsupported,
			"cannot build destination field "+name)
	}
	return field, nil
}

// prepareCollections freezes every count-leaf collection's sub-schema,
// attaches it to the top-level model under a synthesized internal name, and
// shadows it with projected fields: one variable-length sequence per member
// plus one cardinality field under the count leaf's own name.
func (im *Importer) prepareCollections() error {
	for i, c := range im.collections {
		c.model.Freeze()
		entry, err := c.model.CreateEntry()
		if err != nil {
			return err
		}
		for _, idx := range c.fieldIdx {
			f := im.fields[idx]
			if err := entry.BindBuffer(f.field.Name(), f.buffer.data); err != nil {
				return err
			}
		}
		c.entry = entry

		c.name = "_collection" + strconv.Itoa(i)
		handle, err := im.model.MakeCollection(c.name, c.model)
		if err != nil {
			return err
		}
		c.handle = handle

		for _, idx := range c.fieldIdx {
			member := im.fields[idx].field
			projected := colstore.NewListField(member.Name(), member)
			err := im.model.AddProjectedField(projected, colstore.Projection{
				Collection: c.name, Member: member.Name(),
			})
			if err != nil {
				return err
			}
		}

		cardinality := colstore.NewCardinalityField(c.countLeaf)
		err = im.model.AddProjectedField(cardinality, colstore.Projection{Collection: c.name})
		if err != nil {
			return err
		}
	}
	return nil
}

// ReportSchema prints one line per import field with its destination type.
func (im *Importer) ReportSchema() {
	for _, f := range im.fields {
		fmt.Fprintf(im.out, "Importing '%s' [%s]\n", f.field.Name(), f.field.TypeName())
	}
}

// FieldDescription is one entry of a schema description.
type FieldDescription struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Projected bool   `json:"projected,omitempty"`
}

// Describe returns the destination schema as it will be written, including
// projected sequence and cardinality fields. PrepareSchema must have run.
func (im *Importer) Describe() []FieldDescription {
	var out []FieldDescription
	for _, f := range im.model.Fields() {
		out = append(out, FieldDescription{Name: f.Name(), Type: f.TypeName()})
	}
	for _, f := range im.model.ProjectedFields() {
		out = append(out, FieldDescription{Name: f.Name(), Type: f.TypeName(), Projected: true})
	}
	return out
}
