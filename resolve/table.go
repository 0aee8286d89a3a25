package resolve

import (
	"encoding/binary"
	"fmt"

	"github.com/tidalforge/m3codec/errs"
	"github.com/tidalforge/m3codec/schema"
	"github.com/tidalforge/m3codec/section"
)

// Table implements schema.SectionLookup for the load path: a read-only
// view over a file's decoded sections, tracking how many times each has
// been referenced so orphans can be reported after resolution completes
// (spec.md §4.5).
type Table struct {
	sections []*section.Section
}

// NewTable wraps sections for reference resolution.
func NewTable(sections []*section.Section) *Table {
	return &Table{sections: sections}
}

// Resolve returns the referent section's tag, version, repetitions and
// already-decoded content.
func (t *Table) Resolve(index uint32) (string, uint32, uint32, any, error) {
	if int(index) >= len(t.sections) {
		return "", 0, 0, nil, fmt.Errorf("%w: index %d, only %d sections present", errs.ErrReferenceOutOfBounds, index, len(t.sections))
	}

	s := t.sections[index]

	return s.Tag, s.Version, uint32(s.Repetitions), s.Content, nil
}

// MarkReferenced increments the referenced section's reference counter.
func (t *Table) MarkReferenced(index uint32) {
	if int(index) < len(t.sections) {
		t.sections[index].TimesReferenced++
	}
}

// ResolveAll runs reference resolution over every section's decoded
// instances plus header. header is sections[0]'s own content (the same
// instance Model.Sections()[0] holds), resolved exactly once: the loop
// below skips index 0 and resolves header explicitly afterward so the
// header's reference counters aren't incremented twice. Instances are
// independent of visit order: Content values are shared slice/pointer
// backing storage, so a reference resolved before its referent's own
// fields are resolved still observes the referent's final state once
// that section is visited (spec.md §4.4 load step 5).
func (t *Table) ResolveAll(header *schema.Instance) error {
	for i, s := range t.sections {
		if i == 0 {
			continue
		}

		list, ok := s.Content.([]*schema.Instance)
		if !ok {
			continue
		}

		for _, inst := range list {
			if err := inst.ResolveIndexReferences(t); err != nil {
				return err
			}
		}
	}

	return header.ResolveIndexReferences(t)
}

// Orphans reports every section except section 0 (the header) never
// referenced during resolution, together with any candidate
// reference-record byte patterns found elsewhere in the file (spec.md
// §3 "every section except section 0", §4.5 orphan diagnostic).
func (t *Table) Orphans() []error {
	var out []error

	for i, s := range t.sections {
		if i == 0 || s.TimesReferenced > 0 {
			continue
		}

		out = append(out, &errs.OrphanSectionError{
			Index: i, Tag: s.Tag, Version: s.Version,
			Matches:     t.findCandidateReferences(i),
			Fingerprint: s.Fingerprint(),
		})
	}

	return out
}

// findCandidateReferences scans every other section's raw bytes for a
// 12-byte {entries, index, flags} pattern whose index field equals
// sectionIndex, whose entries field plausibly matches the orphan's
// repetition count and whose flags field is zero. Only when no section
// holds such a pattern does it fall back to the 8-byte {entries, index}
// pattern, which also catches references with a non-zero flags word or
// SmallReference-style framing (spec.md §4.5). Each match names the
// referencing section's field at that offset when the section has a
// structure description.
func (t *Table) findCandidateReferences(sectionIndex int) []errs.OrphanMatch {
	target := t.sections[sectionIndex]

	var matches []errs.OrphanMatch

	for _, withFlags := range []bool{true, false} {
		for i, s := range t.sections {
			if i == sectionIndex {
				continue
			}

			for _, m := range scanForIndex(i, s.RawBytes, uint32(sectionIndex), uint32(target.Repetitions), withFlags) {
				m.Field = fieldAtOffset(s.Desc, m.ByteOffset)
				matches = append(matches, m)
			}
		}

		if len(matches) > 0 {
			break
		}
	}

	return matches
}

// fieldAtOffset names the field of desc covering byteOffset within one
// repetition of a structure section, or "" when desc is nil or no field
// covers that offset.
func fieldAtOffset(desc *schema.StructureDescription, byteOffset int) string {
	if desc == nil || desc.Size == 0 {
		return ""
	}

	rel := byteOffset % desc.Size
	for _, fo := range desc.DumpOffsets() {
		if rel >= fo.Offset && rel < fo.Offset+fo.Size {
			return fo.Name
		}
	}

	return ""
}

func scanForIndex(sectionIndex int, raw []byte, wantIndex, wantEntries uint32, withFlags bool) []errs.OrphanMatch {
	width := 8
	if withFlags {
		width = 12
	}

	var out []errs.OrphanMatch

	for off := 0; off+width <= len(raw); off++ {
		entries := binary.LittleEndian.Uint32(raw[off : off+4])
		index := binary.LittleEndian.Uint32(raw[off+4 : off+8])

		if index != wantIndex {
			continue
		}

		if entries != wantEntries && entries != 0 {
			continue
		}

		if withFlags && binary.LittleEndian.Uint32(raw[off+8:off+12]) != 0 {
			continue
		}

		out = append(out, errs.OrphanMatch{SectionIndex: sectionIndex, ByteOffset: off, WithFlags: withFlags})
	}

	return out
}
