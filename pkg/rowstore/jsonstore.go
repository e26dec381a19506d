package rowstore

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"

	"github.com/goccy/go-json"

	"github.com/ajitpratap0/treeport/pkg/treeporterrors"
)

// JSON dataset document shape. Records map branch names to values: numbers
// for scalars, strings for string leaves, arrays for array leaves, and
// objects for aggregates and leaf lists.
type jsonDataset struct {
	Name     string           `json:"name"`
	Classes  []jsonClass      `json:"classes"`
	Branches []jsonBranch     `json:"branches"`
	Records  []map[string]any `json:"records"`
}

type jsonClass struct {
	Name    string       `json:"name"`
	Size    int          `json:"size"`
	Members []jsonMember `json:"members"`
}

type jsonMember struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Offset int    `json:"offset"`
}

type jsonBranch struct {
	Name   string     `json:"name"`
	Leaves []jsonLeaf `json:"leaves"`
}

type jsonLeaf struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Count     int    `json:"count"`
	CountLeaf string `json:"count_leaf"`
	Range     bool   `json:"range"`
	Max       int    `json:"max"`
	Offset    int    `json:"offset"`
	Class     string `json:"class"`
}

// LoadJSON reads a JSON dataset document from disk and materializes it as a
// MemStore.
func LoadJSON(path string) (*MemStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, treeporterrors.Wrap(err, treeporterrors.ErrorTypeFile,
			"cannot open source dataset "+path)
	}
	return DecodeJSON(data)
}

// DecodeJSON materializes a JSON dataset document as a MemStore: branch and
// class metadata is translated first, then every record's values are encoded
// into raw branch payloads. Count leaf maxima and string capacities missing
// from the document are derived from the data.
func DecodeJSON(data []byte) (*MemStore, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc jsonDataset
	if err := dec.Decode(&doc); err != nil {
		return nil, treeporterrors.Wrap(err, treeporterrors.ErrorTypeData,
			"malformed dataset document")
	}
	if doc.Name == "" {
		return nil, treeporterrors.New(treeporterrors.ErrorTypeValidation,
			"dataset document has no name")
	}

	store := NewMemStore(doc.Name)

	for _, c := range doc.Classes {
		desc := ClassDescriptor{Name: c.Name, Size: c.Size}
		for _, m := range c.Members {
			tag, ok := ParseTag(m.Type)
			if !ok {
				return nil, treeporterrors.Newf(treeporterrors.ErrorTypeValidation,
					"class %q member %q has unknown type %q", c.Name, m.Name, m.Type)
			}
			desc.Members = append(desc.Members, ClassMember{Name: m.Name, Tag: tag, Offset: m.Offset})
		}
		if err := store.DefineClass(desc); err != nil {
			return nil, err
		}
	}

	// countBranches maps count leaf names onto their branch names so array
	// lengths can be validated against the declared counts.
	countBranches := make(map[string]string)

	for _, jb := range doc.Branches {
		branch := Branch{Name: jb.Name}
		for _, jl := range jb.Leaves {
			leaf, err := buildLeaf(jb, jl, doc.Records)
			if err != nil {
				return nil, err
			}
			branch.Leaves = append(branch.Leaves, leaf)
		}
		if err := store.AddBranch(branch); err != nil {
			return nil, err
		}
		if len(branch.Leaves) == 1 && branch.Leaves[0].IsRange {
			countBranches[branch.Leaves[0].Name] = branch.Name
		}
	}

	for i, rec := range doc.Records {
		payloads := make(map[string][]byte, len(store.Branches()))
		for _, branch := range store.Branches() {
			payload, err := encodeBranchRecord(store, branch, rec, countBranches, i)
			if err != nil {
				return nil, err
			}
			payloads[branch.Name] = payload
		}
		if err := store.AppendRecord(payloads); err != nil {
			return nil, err
		}
	}

	return store, nil
}

func buildLeaf(jb jsonBranch, jl jsonLeaf, records []map[string]any) (Leaf, error) {
	tag, ok := ParseTag(jl.Type)
	if !ok {
		return Leaf{}, treeporterrors.Newf(treeporterrors.ErrorTypeValidation,
			"branch %q leaf %q has unknown type %q", jb.Name, jl.Name, jl.Type)
	}

	leaf := Leaf{
		Name:      jl.Name,
		Tag:       tag,
		Count:     jl.Count,
		CountLeaf: jl.CountLeaf,
		IsRange:   jl.Range,
		Max:       jl.Max,
		Offset:    jl.Offset,
		ClassName: jl.Class,
	}
	if leaf.Count < 1 {
		leaf.Count = 1
	}

	// Derive missing maxima from the data: the largest declared count for
	// count leaves, the longest string plus its terminator for strings.
	if leaf.IsRange && leaf.Max == 0 {
		for _, rec := range records {
			n, err := toInt64(rec[jb.Name])
			if err == nil && int(n) > leaf.Max {
				leaf.Max = int(n)
			}
		}
	}
	isCString := tag == TagChar && leaf.Count == 1 && leaf.CountLeaf == "" && !leaf.IsRange
	if isCString && leaf.Max == 0 {
		for _, rec := range records {
			if s, ok := rec[jb.Name].(string); ok && len(s)+1 > leaf.Max {
				leaf.Max = len(s) + 1
			}
		}
		if leaf.Max == 0 {
			leaf.Max = 1
		}
	}

	return leaf, nil
}

// encodeBranchRecord translates one record's JSON value for one branch into
// the raw payload layout the branch's leaves declare.
func encodeBranchRecord(store *MemStore, branch Branch, rec map[string]any, countBranches map[string]string, recIdx int) ([]byte, error) {
	first := branch.Leaves[0]
	isLeafList := len(branch.Leaves) > 1

	value, ok := rec[branch.Name]
	if !ok {
		return nil, treeporterrors.Newf(treeporterrors.ErrorTypeValidation,
			"record %d has no value for branch %q", recIdx, branch.Name)
	}

	// Count leaves are stored as 32-bit integers.
	if first.IsRange && !isLeafList {
		n, err := toInt64(value)
		if err != nil {
			return nil, wrapEncode(err, branch.Name, recIdx)
		}
		payload := make([]byte, 4)
		binary.LittleEndian.PutUint32(payload, uint32(int32(n)))
		return payload, nil
	}

	if first.Tag == TagClass && !isLeafList {
		desc, ok := store.Class(first.ClassName)
		if !ok {
			return nil, treeporterrors.Newf(treeporterrors.ErrorTypeNotFound,
				"branch %q references undefined class %q", branch.Name, first.ClassName)
		}
		members, ok := value.(map[string]any)
		if !ok {
			return nil, treeporterrors.Newf(treeporterrors.ErrorTypeValidation,
				"record %d branch %q: aggregate value must be an object", recIdx, branch.Name)
		}
		payload := make([]byte, desc.Size)
		for _, m := range desc.Members {
			if err := encodeScalar(m.Tag, members[m.Name], payload[m.Offset:]); err != nil {
				return nil, wrapEncode(err, branch.Name, recIdx)
			}
		}
		return payload, nil
	}

	if isLeafList {
		size := 0
		for _, l := range branch.Leaves {
			if end := l.Offset + l.Count*l.Tag.Width(); end > size {
				size = end
			}
		}
		members, ok := value.(map[string]any)
		if !ok {
			return nil, treeporterrors.Newf(treeporterrors.ErrorTypeValidation,
				"record %d branch %q: leaf list value must be an object", recIdx, branch.Name)
		}
		payload := make([]byte, size)
		for _, l := range branch.Leaves {
			if err := encodeLeaf(l, members[l.Name], payload[l.Offset:]); err != nil {
				return nil, wrapEncode(err, branch.Name, recIdx)
			}
		}
		return payload, nil
	}

	// Variable-length arrays carry exactly count*width bytes; the length
	// must agree with this record's count leaf value.
	if first.CountLeaf != "" {
		elems, ok := value.([]any)
		if !ok {
			return nil, treeporterrors.Newf(treeporterrors.ErrorTypeValidation,
				"record %d branch %q: counted array value must be an array", recIdx, branch.Name)
		}
		countBranch, ok := countBranches[first.CountLeaf]
		if !ok {
			return nil, treeporterrors.Newf(treeporterrors.ErrorTypeNotFound,
				"branch %q references undefined count leaf %q", branch.Name, first.CountLeaf)
		}
		declared, err := toInt64(rec[countBranch])
		if err != nil {
			return nil, wrapEncode(err, branch.Name, recIdx)
		}
		if int64(len(elems)) != declared {
			return nil, treeporterrors.Newf(treeporterrors.ErrorTypeValidation,
				"record %d branch %q has %d elements, count leaf %q declares %d",
				recIdx, branch.Name, len(elems), first.CountLeaf, declared)
		}
		w := first.Tag.Width()
		payload := make([]byte, len(elems)*w)
		for i, e := range elems {
			if err := encodeScalar(first.Tag, e, payload[i*w:]); err != nil {
				return nil, wrapEncode(err, branch.Name, recIdx)
			}
		}
		return payload, nil
	}

	// C strings land as the raw bytes plus a terminator.
	if first.Tag == TagChar && first.Count == 1 {
		s, ok := value.(string)
		if !ok {
			return nil, treeporterrors.Newf(treeporterrors.ErrorTypeValidation,
				"record %d branch %q: string value expected", recIdx, branch.Name)
		}
		payload := make([]byte, len(s)+1)
		copy(payload, s)
		return payload, nil
	}

	payload := make([]byte, first.Offset+first.Count*first.Tag.Width())
	if err := encodeLeaf(first, value, payload[first.Offset:]); err != nil {
		return nil, wrapEncode(err, branch.Name, recIdx)
	}
	return payload, nil
}

// encodeLeaf writes a scalar or fixed-array leaf value at the start of dst.
func encodeLeaf(l Leaf, value any, dst []byte) error {
	if l.Count == 1 {
		return encodeScalar(l.Tag, value, dst)
	}

	// Fixed char arrays accept strings, zero padded to capacity.
	if l.Tag == TagChar {
		if s, ok := value.(string); ok {
			if len(s) > l.Count {
				return treeporterrors.Newf(treeporterrors.ErrorTypeValidation,
					"string %q exceeds char array capacity %d", s, l.Count)
			}
			copy(dst, s)
			return nil
		}
	}

	elems, ok := value.([]any)
	if !ok {
		return treeporterrors.Newf(treeporterrors.ErrorTypeValidation,
			"fixed array leaf %q: array value expected", l.Name)
	}
	if len(elems) != l.Count {
		return treeporterrors.Newf(treeporterrors.ErrorTypeValidation,
			"fixed array leaf %q: got %d elements, capacity is %d", l.Name, len(elems), l.Count)
	}
	w := l.Tag.Width()
	for i, e := range elems {
		if err := encodeScalar(l.Tag, e, dst[i*w:]); err != nil {
			return err
		}
	}
	return nil
}

func encodeScalar(tag TypeTag, value any, dst []byte) error {
	switch tag {
	case TagBool:
		b, ok := value.(bool)
		if !ok {
			return treeporterrors.New(treeporterrors.ErrorTypeValidation, "boolean value expected")
		}
		if b {
			dst[0] = 1
		} else {
			dst[0] = 0
		}
	case TagFloat32:
		f, err := toFloat64(value)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(dst, math.Float32bits(float32(f)))
	case TagFloat64:
		f, err := toFloat64(value)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint64(dst, math.Float64bits(f))
	default:
		n, err := toInt64(value)
		if err != nil {
			return err
		}
		switch tag.Width() {
		case 1:
			dst[0] = byte(n)
		case 2:
			binary.LittleEndian.PutUint16(dst, uint16(n))
		case 4:
			binary.LittleEndian.PutUint32(dst, uint32(n))
		case 8:
			binary.LittleEndian.PutUint64(dst, uint64(n))
		default:
			return treeporterrors.Newf(treeporterrors.ErrorTypeValidation,
				"type %s is not encodable as a scalar", tag)
		}
	}
	return nil
}

func toInt64(value any) (int64, error) {
	switch v := value.(type) {
	case json.Number:
		return v.Int64()
	case float64:
		return int64(v), nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	default:
		return 0, treeporterrors.Newf(treeporterrors.ErrorTypeValidation,
			"integer value expected, got %T", value)
	}
}

func toFloat64(value any) (float64, error) {
	switch v := value.(type) {
	case json.Number:
		return v.Float64()
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	default:
		return 0, treeporterrors.Newf(treeporterrors.ErrorTypeValidation,
			"numeric value expected, got %T", value)
	}
}

func wrapEncode(err error, branch string, recIdx int) error {
	return treeporterrors.Wrap(err, treeporterrors.ErrorTypeData,
		"cannot encode branch "+branch).WithDetail("record", recIdx)
}
