package schema

import (
	"fmt"
	"sync"

	"github.com/tidalforge/m3codec/errs"
)

// primitiveNames are the eight reserved structure names whose instances
// carry a native buffer instead of a field-bundle list (spec.md §3).
var primitiveNames = map[string]bool{
	"CHAR": true, "U8__": true, "REAL": true,
	"I16_": true, "U16_": true, "I32_": true, "U32_": true, "FLAG": true,
}

// IsPrimitiveName reports whether name is one of the eight reserved
// primitive structure names.
func IsPrimitiveName(name string) bool { return primitiveNames[name] }

// fieldEntry binds a Field descriptor to the version range in which it
// is present.
type fieldEntry struct {
	field        Field
	sinceVersion uint32
	tillVersion  *uint32
}

func (e *fieldEntry) visibleAt(version uint32) bool {
	if version < e.sinceVersion {
		return false
	}

	if e.tillVersion != nil && version > *e.tillVersion {
		return false
	}

	return true
}

// StructureHistory is the versioned schema of a named record type:
// version → declared byte size, plus the ordered field list each
// annotated with its version range.
type StructureHistory struct {
	Name        string
	IsPrimitive bool
	sizes       map[uint32]int
	fields      []*fieldEntry

	mu           sync.Mutex
	descriptions map[uint32]*StructureDescription
}

func newStructureHistory(name string) *StructureHistory {
	return &StructureHistory{
		Name:         name,
		IsPrimitive:  primitiveNames[name],
		sizes:        make(map[uint32]int),
		descriptions: make(map[uint32]*StructureDescription),
	}
}

// NewestVersion returns the highest declared version number.
func (h *StructureHistory) NewestVersion() uint32 {
	var newest uint32

	first := true
	for v := range h.sizes {
		if first || v > newest {
			newest = v
			first = false
		}
	}

	return newest
}

// DeclaredSize returns the byte size declared for version, and whether
// that version exists.
func (h *StructureHistory) DeclaredSize(version uint32) (int, bool) {
	size, ok := h.sizes[version]
	return size, ok
}

// Description returns the StructureDescription for version, computing
// and memoizing it on first use (spec.md §3 "Constructed lazily and
// memoized per (history, version)").
func (h *StructureHistory) Description(version uint32) (*StructureDescription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if d, ok := h.descriptions[version]; ok {
		return d, nil
	}

	declared, ok := h.sizes[version]
	if !ok {
		return nil, &errs.SchemaError{
			Structure: h.Name,
			Err:       fmt.Errorf("version %d is not declared", version),
		}
	}

	var visible []Field

	offsets := make([]FieldOffset, 0, len(h.fields))
	cursor := 0

	for _, fe := range h.fields {
		if !fe.visibleAt(version) {
			continue
		}

		visible = append(visible, fe.field)
		offsets = append(offsets, FieldOffset{Name: fe.field.Name(), Offset: cursor, Size: fe.field.Size()})
		cursor += fe.field.Size()
	}

	// Primitive structures (CHAR, U8__, REAL, I16_/U16_/I32_/U32_/FLAG)
	// carry a native per-section buffer rather than a fixed-size
	// field-bundle (spec.md §3, §4.3); their declared "size" describes
	// one element's width, not a sum the (empty) field list could ever
	// match, so the size-sum invariant only applies to non-primitive
	// structures.
	if !h.IsPrimitive && cursor != declared {
		return nil, &errs.SchemaError{
			Structure: h.Name,
			Err: fmt.Errorf("%w: version %d declares size %d but fields sum to %d (offsets=%v)",
				errs.ErrSizeMismatch, version, declared, cursor, offsets),
		}
	}

	nameIdx := make(map[string]int, len(visible))
	for i, f := range visible {
		nameIdx[f.Name()] = i
	}

	desc := &StructureDescription{
		History: h,
		Version: version,
		Fields:  visible,
		Size:    declared,
		offsets: offsets,
		nameIdx: nameIdx,
	}
	h.descriptions[version] = desc

	return desc, nil
}

// FieldOffset records a field's byte offset within a structure
// description, used for size-mismatch diagnostics (spec.md §9
// dumpOffsets).
type FieldOffset struct {
	Name   string
	Offset int
	Size   int
}

// StructureDescription is an immutable (name, version, ordered fields)
// triple plus cached byte size and name→field index.
type StructureDescription struct {
	History *StructureHistory
	Version uint32
	Fields  []Field
	Size    int
	offsets []FieldOffset
	nameIdx map[string]int
}

// Name returns the structure's name.
func (d *StructureDescription) Name() string { return d.History.Name }

// DumpOffsets returns each field's computed byte offset, used in
// schema-size-mismatch and orphan-section diagnostics.
func (d *StructureDescription) DumpOffsets() []FieldOffset { return d.offsets }

// FieldIndex returns the index of the named field, and whether it
// exists in this description.
func (d *StructureDescription) FieldIndex(name string) (int, bool) {
	i, ok := d.nameIdx[name]
	return i, ok
}

// HasField reports whether name is a field of this description.
func (d *StructureDescription) HasField(name string) bool {
	_, ok := d.nameIdx[name]
	return ok
}

// Registry holds every structure history parsed from the schema XML. It
// is immutable after LoadRegistry returns and may be shared across
// goroutines (spec.md §5).
type Registry struct {
	histories map[string]*StructureHistory
	order     []string
}

// History returns the named structure history, if defined.
func (r *Registry) History(name string) (*StructureHistory, bool) {
	h, ok := r.histories[name]
	return h, ok
}

// Names returns every structure name in document order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)

	return out
}
