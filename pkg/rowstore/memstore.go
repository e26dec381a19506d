package rowstore

import (
	"github.com/ajitpratap0/treeport/pkg/treeporterrors"
)

// MemStore is an in-memory Reader. Branches and classes are defined up
// front, then raw record payloads are appended branch by branch. It is the
// reference implementation used by the JSON loader and by tests.
//
// MemStore is not safe for concurrent use.
type MemStore struct {
	name     string
	branches []Branch
	byName   map[string]int
	classes  map[string]*ClassDescriptor

	// rows holds, per branch, one raw payload per record
	rows map[string][][]byte

	buffers map[string][]byte
	objects map[string]*[]byte

	numRecords int64
}

// NewMemStore creates an empty in-memory dataset.
func NewMemStore(name string) *MemStore {
	return &MemStore{
		name:    name,
		byName:  make(map[string]int),
		classes: make(map[string]*ClassDescriptor),
		rows:    make(map[string][][]byte),
		buffers: make(map[string][]byte),
		objects: make(map[string]*[]byte),
	}
}

// Name returns the dataset name.
func (s *MemStore) Name() string { return s.name }

// AddBranch defines a branch. Branch names must be unique and carry at
// least one leaf.
func (s *MemStore) AddBranch(b Branch) error {
	if len(b.Leaves) == 0 {
		return treeporterrors.Newf(treeporterrors.ErrorTypeValidation,
			"branch %q has no leaves", b.Name)
	}
	if _, exists := s.byName[b.Name]; exists {
		return treeporterrors.Newf(treeporterrors.ErrorTypeConflict,
			"branch %q already defined", b.Name)
	}
	s.byName[b.Name] = len(s.branches)
	s.branches = append(s.branches, b)
	return nil
}

// DefineClass registers an aggregate layout.
func (s *MemStore) DefineClass(d ClassDescriptor) error {
	if _, exists := s.classes[d.Name]; exists {
		return treeporterrors.Newf(treeporterrors.ErrorTypeConflict,
			"class %q already defined", d.Name)
	}
	desc := d
	s.classes[d.Name] = &desc
	return nil
}

// AppendRecord appends one record. payloads maps every branch name to that
// record's raw payload, laid out exactly as the branch's leaves declare
// (leaf offsets, element arrays, aggregate instances).
func (s *MemStore) AppendRecord(payloads map[string][]byte) error {
	for _, b := range s.branches {
		payload, ok := payloads[b.Name]
		if !ok {
			return treeporterrors.Newf(treeporterrors.ErrorTypeValidation,
				"record %d is missing branch %q", s.numRecords, b.Name)
		}
		s.rows[b.Name] = append(s.rows[b.Name], payload)
	}
	s.numRecords++
	return nil
}

// Branches enumerates the dataset's branches in definition order.
func (s *MemStore) Branches() []Branch { return s.branches }

// Class resolves an aggregate layout by name.
func (s *MemStore) Class(name string) (*ClassDescriptor, bool) {
	d, ok := s.classes[name]
	return d, ok
}

// RegisterBuffer sets the landing buffer for a branch, replacing any
// previous registration.
func (s *MemStore) RegisterBuffer(branch string, buf []byte) error {
	if _, ok := s.byName[branch]; !ok {
		return treeporterrors.Newf(treeporterrors.ErrorTypeNotFound,
			"unknown branch %q", branch)
	}
	delete(s.objects, branch)
	s.buffers[branch] = buf
	return nil
}

// RegisterObject sets a pointer-to-buffer landing address for an aggregate
// branch.
func (s *MemStore) RegisterObject(branch string, target *[]byte) error {
	if _, ok := s.byName[branch]; !ok {
		return treeporterrors.Newf(treeporterrors.ErrorTypeNotFound,
			"unknown branch %q", branch)
	}
	delete(s.buffers, branch)
	s.objects[branch] = target
	return nil
}

// Read populates all registered buffers with record i's data. For plain
// branches the payload is copied into the landing buffer; for aggregate
// branches the landing pointer is pointed at the stored instance.
func (s *MemStore) Read(i int64) error {
	if i < 0 || i >= s.numRecords {
		return treeporterrors.Newf(treeporterrors.ErrorTypeValidation,
			"record index %d out of range [0, %d)", i, s.numRecords)
	}

	for branch, buf := range s.buffers {
		payload := s.rows[branch][i]
		n := len(payload)
		if n > len(buf) {
			return treeporterrors.Newf(treeporterrors.ErrorTypeData,
				"branch %q record %d payload is %d bytes, landing buffer only %d",
				branch, i, n, len(buf))
		}
		copy(buf, payload)
	}

	for branch, target := range s.objects {
		*target = s.rows[branch][i]
	}

	return nil
}

// NumRecords returns the total number of records in the dataset.
func (s *MemStore) NumRecords() int64 { return s.numRecords }
