// Package resolve implements the reference-resolution passes that sit
// between the file-level section layout (package section) and the
// typed field values schema.Instance deals in: index allocation with
// identity-keyed memoization on save, and index lookup with orphan/
// unknown-section diagnostics on load (spec.md §4.5).
package resolve

import (
	"fmt"
	"reflect"
	"unsafe"

	"github.com/tidalforge/m3codec/errs"
	"github.com/tidalforge/m3codec/schema"
	"github.com/tidalforge/m3codec/section"
)

// IndexMaker implements schema.IndexAllocator for the save path. It
// assigns each distinct referent exactly one section index, reusing the
// same index whenever a later reference shares identity with content
// already allocated (spec.md §4.4 save step 3, §9 IndexMaker).
type IndexMaker struct {
	reg      *schema.Registry
	sections []*section.Section
	seen     map[uintptr]uint32
	next     uint32
}

// NewIndexMaker returns an IndexMaker bound to reg, used to resolve
// structure-kind referents' (tag, version) into a StructureDescription.
func NewIndexMaker(reg *schema.Registry) *IndexMaker {
	return &IndexMaker{reg: reg, seen: make(map[uintptr]uint32)}
}

// SeedHeader registers header itself as section 0 (original_source/m3.py's
// modelToSections calls getIndexReferenceTo([header], ...) before
// header.introduceIndexReferences, purely to reserve index 0 for the
// header's own section) and advances subsequent allocations to start at
// index 1. Must be called exactly once, before IntroduceIndexReferences
// walks header's own fields.
func (m *IndexMaker) SeedHeader(header *schema.Instance) *section.Section {
	sec := &section.Section{
		Tag:         section.HeaderStructureName,
		Version:     section.HeaderVersion,
		Repetitions: 1,
		Content:     []*schema.Instance{header},
		Desc:        header.Desc,
	}
	m.sections = append(m.sections, sec)
	m.next = 1

	return sec
}

// Sections returns the sections allocated so far, in index order.
// Sections()[0] is the header itself once SeedHeader has run.
func (m *IndexMaker) Sections() []*section.Section { return m.sections }

// NextIndex reports the index an allocation would receive next, without
// reserving it. Empty references carry Entries=0, under which the index
// value is not inspected on load (schema.referenceField.ResolveIndexReferences
// short-circuits before ever calling SectionLookup.Resolve) — so distinct
// empty references may safely report the same peeked value.
func (m *IndexMaker) NextIndex() uint32 { return m.next }

// Allocate assigns content a section index. Content sharing identity
// (same backing array/string data pointer) with a previously allocated
// value reuses that value's index instead of creating a duplicate
// section, mirroring the source format's id-by-identity memoization
// (spec.md §4.4 "same identity maps to the same index").
func (m *IndexMaker) Allocate(tag string, version uint32, content any, entries uint32) (uint32, error) {
	id, memoizable := identityOf(content)
	if memoizable {
		if idx, ok := m.seen[id]; ok {
			return idx, nil
		}
	}

	idx := m.next
	m.next++

	sec := &section.Section{Tag: tag, Version: version, Repetitions: int(entries), Content: content}

	if !schema.IsPrimitiveName(tag) {
		hist, ok := m.reg.History(tag)
		if !ok {
			return 0, &errs.SchemaError{Structure: tag, Err: fmt.Errorf("%w: no structure named %q", errs.ErrUnresolvedRef, tag)}
		}

		desc, err := hist.Description(version)
		if err != nil {
			return 0, err
		}

		sec.Desc = desc
	}

	m.sections = append(m.sections, sec)

	if memoizable {
		m.seen[id] = idx
	}

	if list, ok := content.([]*schema.Instance); ok {
		for _, inst := range list {
			if err := inst.IntroduceIndexReferences(m); err != nil {
				return 0, err
			}
		}
	}

	return idx, nil
}

// identityOf returns a stable pointer-sized key identifying v's backing
// storage, and whether v is identity-bearing at all. Go has no id()
// builtin; strings and slices are the only reference-content shapes a
// referenceField ever holds (string, []byte, []float32, []int16,
// []uint16, []int32, []uint32, []*schema.Instance), and reflect exposes
// a backing-array pointer for any of them uniformly via Kind().
func identityOf(v any) (uintptr, bool) {
	rv := reflect.ValueOf(v)

	switch rv.Kind() {
	case reflect.String:
		s := rv.String()
		if len(s) == 0 {
			return 0, false
		}

		return uintptr(unsafe.Pointer(unsafe.StringData(s))), true
	case reflect.Slice:
		if rv.Len() == 0 {
			return 0, false
		}

		return rv.Pointer(), true
	default:
		return 0, false
	}
}
