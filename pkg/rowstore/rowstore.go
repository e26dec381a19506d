// Package rowstore models branch/leaf structured row datasets: the source
// side of an import. A dataset is a set of named branches, each holding one or
// more typed leaves; readers populate registered landing buffers one record
// at a time.
//
// Readers are single-threaded by contract. Branch buffers are shared,
// in-place overwritten scratch space with no per-record isolation, so a
// second concurrent reader would race with the import loop.
package rowstore

// TypeTag identifies the storage type of a leaf. The set is closed: anything
// outside it is rejected during schema translation rather than guessed at.
type TypeTag uint8

const (
	TagInvalid TypeTag = iota
	TagBool
	TagInt8
	TagUInt8
	TagInt16
	TagUInt16
	TagInt32
	TagUInt32
	TagInt64
	TagUInt64
	TagFloat32
	TagFloat64
	// TagChar is a single byte character; a plain capacity-1 char leaf with
	// no leaf counter represents a null-terminated string
	TagChar
	// TagClass is an aggregate instance described by a ClassDescriptor
	TagClass
	// TagObject is an opaque boxed object reference; never importable
	TagObject
)

var tagNames = map[TypeTag]string{
	TagBool:    "bool",
	TagInt8:    "int8",
	TagUInt8:   "uint8",
	TagInt16:   "int16",
	TagUInt16:  "uint16",
	TagInt32:   "int32",
	TagUInt32:  "uint32",
	TagInt64:   "int64",
	TagUInt64:  "uint64",
	TagFloat32: "float32",
	TagFloat64: "float64",
	TagChar:    "char",
	TagClass:   "class",
	TagObject:  "object",
}

// String returns the canonical name of the tag.
func (t TypeTag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return "invalid"
}

var tagsByName = func() map[string]TypeTag {
	m := make(map[string]TypeTag, len(tagNames))
	for tag, name := range tagNames {
		m[name] = tag
	}
	return m
}()

// ParseTag resolves a canonical tag name. The second return is false for
// names outside the closed tag set.
func ParseTag(name string) (TypeTag, bool) {
	tag, ok := tagsByName[name]
	return tag, ok
}

// Width returns the element width in bytes, or 0 for aggregate and opaque
// tags whose size comes from class metadata.
func (t TypeTag) Width() int {
	switch t {
	case TagBool, TagInt8, TagUInt8, TagChar:
		return 1
	case TagInt16, TagUInt16:
		return 2
	case TagInt32, TagUInt32, TagFloat32:
		return 4
	case TagInt64, TagUInt64, TagFloat64:
		return 8
	default:
		return 0
	}
}

// Leaf is the smallest typed unit within a branch. Metadata is immutable
// once the dataset is built.
type Leaf struct {
	// Name of the leaf
	Name string
	// Tag is the storage type
	Tag TypeTag
	// Count is the fixed element capacity; 1 for scalars
	Count int
	// CountLeaf names the sibling count leaf bounding a variable-length
	// array, or is empty for fixed shapes
	CountLeaf string
	// IsRange marks a count leaf: its value bounds sibling arrays
	IsRange bool
	// Max is the maximum observed value for count leaves, and the buffer
	// capacity in bytes for string leaves
	Max int
	// Offset is the byte offset of this leaf within a shared branch buffer
	Offset int
	// ClassName names the aggregate type for TagClass leaves
	ClassName string
}

// Branch is a named container of one or more leaves.
type Branch struct {
	Name   string
	Leaves []Leaf
}

// ClassMember describes one scalar member of an aggregate layout.
type ClassMember struct {
	Name   string
	Tag    TypeTag
	Offset int
}

// ClassDescriptor describes the in-memory layout of an aggregate instance.
type ClassDescriptor struct {
	Name    string
	Members []ClassMember
	// Size is the total instance size in bytes
	Size int
}

// Reader supplies branch/leaf metadata and populates registered buffers on
// demand. Implementations must support re-registration of the same branch
// (a schema re-preparation replaces all landing addresses).
type Reader interface {
	// Name returns the dataset name.
	Name() string

	// Branches enumerates the dataset's branches in definition order.
	Branches() []Branch

	// Class resolves an aggregate layout by name.
	Class(name string) (*ClassDescriptor, bool)

	// RegisterBuffer sets the landing buffer for a branch. Subsequent
	// Read calls copy that branch's record payload into buf.
	RegisterBuffer(branch string, buf []byte) error

	// RegisterObject sets a pointer-to-buffer landing address for an
	// aggregate branch. Read points *target at the live instance buffer.
	RegisterObject(branch string, target *[]byte) error

	// Read populates all registered buffers with record i's data.
	Read(i int64) error

	// NumRecords returns the total number of records in the dataset.
	NumRecords() int64
}
