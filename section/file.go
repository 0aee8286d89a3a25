package section

import (
	"errors"
	"fmt"

	"github.com/tidalforge/m3codec/errs"
	"github.com/tidalforge/m3codec/internal/hash"
	"github.com/tidalforge/m3codec/schema"
)

// unknownSeen dedupes repeated UnknownSectionError diagnostics for the
// same (tag, version) pair across many index entries, matching
// original_source/m3.py's loadSections, which collects unknown sections
// into a set keyed by "tagVversion" before reporting.
type unknownSeen struct {
	keys map[uint64]bool
}

func newUnknownSeen() *unknownSeen { return &unknownSeen{keys: make(map[uint64]bool)} }

func (u *unknownSeen) firstSighting(tag string, version uint32) bool {
	key := hash.TagKey(tag, version)
	if u.keys[key] {
		return false
	}

	u.keys[key] = true

	return true
}

// Field names the MD34 header and MD34IndexEntry structures are
// expected to declare (spec.md §4.4, §6).
const (
	headerFieldIndexOffset = "indexOffset"
	headerFieldIndexSize   = "indexSize"
	entryFieldTag          = "tag"
	entryFieldOffset       = "offset"
	entryFieldRepetitions  = "repetitions"
	entryFieldVersion      = "version"
)

// Load reads an entire M3 file's bytes into a slice of Sections:
// Sections[0] is the MD34 header, content decoded but references left
// unresolved (as schema.RawReference values) — the resolve package
// performs reference resolution as a separate pass over the result
// (spec.md §4.4 load steps 1-4; step 5 resolution lives in package
// resolve).
func Load(reg *schema.Registry, data []byte, checkExpectedValue bool) ([]*Section, error) {
	headerHist, ok := reg.History(HeaderStructureName)
	if !ok {
		return nil, &errs.SchemaError{Err: fmt.Errorf("schema does not declare %q", HeaderStructureName)}
	}

	headerDesc, err := headerHist.Description(HeaderVersion)
	if err != nil {
		return nil, err
	}

	if len(data) < headerDesc.Size {
		return nil, fmt.Errorf("%w: file shorter than header (%d bytes)", errs.ErrShortRead, headerDesc.Size)
	}

	headerInst := schema.NewInstance(headerDesc)
	if err := headerInst.ReadFrom(data[:headerDesc.Size], checkExpectedValue); err != nil {
		return nil, err
	}

	indexOffset, err := instIntField(headerInst, headerFieldIndexOffset)
	if err != nil {
		return nil, err
	}

	indexSize, err := instIntField(headerInst, headerFieldIndexSize)
	if err != nil {
		return nil, err
	}

	entryHist, ok := reg.History(IndexEntryStructureName)
	if !ok {
		return nil, &errs.SchemaError{Err: fmt.Errorf("schema does not declare %q", IndexEntryStructureName)}
	}

	entryDesc, err := entryHist.Description(IndexEntryVersion)
	if err != nil {
		return nil, err
	}

	if indexOffset+indexSize*entryDesc.Size > len(data) {
		return nil, fmt.Errorf("%w: index table extends past end of file", errs.ErrShortRead)
	}

	type entry struct {
		tag         string
		offset      int
		repetitions int
		version     uint32
	}

	entries := make([]entry, indexSize)
	offsets := make([]int, indexSize)

	for i := range entries {
		start := indexOffset + i*entryDesc.Size
		inst := schema.NewInstance(entryDesc)

		if err := inst.ReadFrom(data[start:start+entryDesc.Size], checkExpectedValue); err != nil {
			return nil, err
		}

		tag, err := instStringField(inst, entryFieldTag)
		if err != nil {
			return nil, err
		}

		off, err := instIntField(inst, entryFieldOffset)
		if err != nil {
			return nil, err
		}

		reps, err := instIntField(inst, entryFieldRepetitions)
		if err != nil {
			return nil, err
		}

		ver, err := instIntField(inst, entryFieldVersion)
		if err != nil {
			return nil, err
		}

		entries[i] = entry{tag: tag, offset: off, repetitions: reps, version: uint32(ver)}
		offsets[i] = off
	}

	lengths := computeLengths(offsets, indexOffset)

	sections := make([]*Section, indexSize)

	var unknown []error

	seen := newUnknownSeen()

	for i, e := range entries {
		length, ok := lengths[e.offset]
		if !ok {
			return nil, fmt.Errorf("%w: section %d offset %d collides with the index table offset", errs.ErrOffsetMismatch, i, e.offset)
		}

		if e.offset+length > len(data) {
			return nil, fmt.Errorf("%w: section %d extends past end of file", errs.ErrShortRead, i)
		}

		raw := data[e.offset : e.offset+length]

		sec := &Section{Tag: e.tag, Version: e.version, Offset: e.offset, Repetitions: e.repetitions, RawBytes: raw}

		hist, ok := reg.History(e.tag)
		if !ok {
			padding := countTrailingPad(raw)
			guessed := 0

			if e.repetitions > 0 {
				guessed = (len(raw) - padding) / e.repetitions
			}

			if seen.firstSighting(e.tag, e.version) {
				unknown = append(unknown, &errs.UnknownSectionError{
					Index: i, Tag: e.tag, Version: e.version, Offset: e.offset,
					Repetitions: e.repetitions, Padding: padding, GuessedBytesPerEntry: guessed,
					Fingerprint: hash.Fingerprint(raw),
				})
			}

			sections[i] = sec

			continue
		}

		desc, err := hist.Description(e.version)
		if err != nil {
			return nil, err
		}

		sec.Desc = desc

		content, err := decodeContent(e.tag, desc, raw, e.repetitions, checkExpectedValue)
		if err != nil {
			return nil, err
		}

		sec.Content = content
		sections[i] = sec
	}

	if len(unknown) > 0 {
		return sections, errors.Join(unknown...)
	}

	return sections, nil
}

// Save renders sections back into a complete file image: section
// payloads in ascending offset order (sections[0] is the header itself,
// seeded by resolve.IndexMaker.SeedHeader), followed by the index table
// at header.indexOffset (spec.md §4.4 save steps 4-6, matching
// original_source/m3.py's modelToSections/saveSections, which write
// every section's rawBytes first and the index table last). Each
// Section's Content must already hold its final, reference-introduced
// representation (see package resolve).
func Save(reg *schema.Registry, sections []*Section) ([]byte, error) {
	if len(sections) == 0 || sections[0].Tag != HeaderStructureName {
		return nil, fmt.Errorf("%w: sections[0] must be the %q header section", errs.ErrInvalidFieldType, HeaderStructureName)
	}

	headerList, ok := sections[0].Content.([]*schema.Instance)
	if !ok || len(headerList) != 1 {
		return nil, fmt.Errorf("%w: header section content must be a single instance", errs.ErrInvalidFieldType)
	}

	headerInst := headerList[0]

	entryHist, ok := reg.History(IndexEntryStructureName)
	if !ok {
		return nil, &errs.SchemaError{Err: fmt.Errorf("schema does not declare %q", IndexEntryStructureName)}
	}

	entryDesc, err := entryHist.Description(IndexEntryVersion)
	if err != nil {
		return nil, err
	}

	indexOffsetIdx, ok := headerInst.Desc.FieldIndex(headerFieldIndexOffset)
	if !ok {
		return nil, fmt.Errorf("%w: %q is missing field %q", errs.ErrInvalidFieldType, headerInst.Desc.Name(), headerFieldIndexOffset)
	}

	indexSizeIdx, ok := headerInst.Desc.FieldIndex(headerFieldIndexSize)
	if !ok {
		return nil, fmt.Errorf("%w: %q is missing field %q", errs.ErrInvalidFieldType, headerInst.Desc.Name(), headerFieldIndexSize)
	}

	// The header's own payload length doesn't depend on the values of
	// indexOffset/indexSize (only on their fixed field widths), so encode
	// every section once with those two fields still at their pre-seed
	// defaults to learn every section's offset, then re-encode the
	// header alone once the true indexOffset/indexSize are known.
	payloads := make([][]byte, len(sections))
	cursor := 0

	for i, sec := range sections {
		payload, err := encodeContent(sec.Tag, sec.Desc, sec.Content)
		if err != nil {
			return nil, fmt.Errorf("section %d (tag=%s): %w", i, sec.Tag, err)
		}

		payloads[i] = payload
		sec.Offset = cursor
		cursor += len(payload)
	}

	headerInst.Values[indexOffsetIdx] = int64(cursor)
	headerInst.Values[indexSizeIdx] = int64(len(sections))

	headerPayload, err := encodeContent(sections[0].Tag, sections[0].Desc, sections[0].Content)
	if err != nil {
		return nil, fmt.Errorf("section 0 (tag=%s): %w", sections[0].Tag, err)
	}

	if len(headerPayload) != len(payloads[0]) {
		return nil, &errs.EncodeError{Structure: HeaderStructureName, Err: fmt.Errorf("header section length changed after setting indexOffset/indexSize: %d vs %d", len(payloads[0]), len(headerPayload))}
	}

	payloads[0] = headerPayload

	out := make([]byte, 0, cursor+len(sections)*entryDesc.Size)

	for i, sec := range sections {
		if sec.Offset != len(out) {
			return nil, &errs.EncodeError{Structure: sec.Tag, Err: fmt.Errorf("section %d expected offset %d, file position is %d", i, sec.Offset, len(out))}
		}

		out = append(out, payloads[i]...)
	}

	for i, sec := range sections {
		entryInst := schema.NewInstance(entryDesc)
		entryInst.SetDefault()

		if err := setInstField(entryInst, entryFieldTag, sec.Tag); err != nil {
			return nil, err
		}

		if err := setInstField(entryInst, entryFieldOffset, int64(sec.Offset)); err != nil {
			return nil, err
		}

		if err := setInstField(entryInst, entryFieldRepetitions, int64(sec.Repetitions)); err != nil {
			return nil, err
		}

		if err := setInstField(entryInst, entryFieldVersion, int64(sec.Version)); err != nil {
			return nil, err
		}

		entryBuf := make([]byte, entryDesc.Size)
		if err := entryInst.WriteTo(entryBuf); err != nil {
			return nil, fmt.Errorf("index entry %d: %w", i, err)
		}

		out = append(out, entryBuf...)
	}

	return out, nil
}

func setInstField(inst *schema.Instance, name string, value any) error {
	i, ok := inst.Desc.FieldIndex(name)
	if !ok {
		return fmt.Errorf("%w: %q is missing field %q", errs.ErrInvalidFieldType, inst.Desc.Name(), name)
	}

	inst.Values[i] = value

	return nil
}

// countTrailingPad counts trailing 0xAA bytes, used by the
// unknown-section diagnostic (spec.md §4.5).
func countTrailingPad(raw []byte) int {
	n := 0
	for i := len(raw) - 1; i >= 0 && raw[i] == PadByte; i-- {
		n++
	}

	return n
}

func instIntField(inst *schema.Instance, name string) (int, error) {
	i, ok := inst.Desc.FieldIndex(name)
	if !ok {
		return 0, fmt.Errorf("%w: %q is missing field %q", errs.ErrInvalidFieldType, inst.Desc.Name(), name)
	}

	n, ok := inst.Values[i].(int64)
	if !ok {
		return 0, fmt.Errorf("%w: field %q is not an integer", errs.ErrInvalidFieldType, name)
	}

	return int(n), nil
}

func instStringField(inst *schema.Instance, name string) (string, error) {
	i, ok := inst.Desc.FieldIndex(name)
	if !ok {
		return "", fmt.Errorf("%w: %q is missing field %q", errs.ErrInvalidFieldType, inst.Desc.Name(), name)
	}

	s, ok := inst.Values[i].(string)
	if !ok {
		return "", fmt.Errorf("%w: field %q is not a tag", errs.ErrInvalidFieldType, name)
	}

	return s, nil
}

// Fingerprint attaches an xxHash64 digest of a section's raw bytes to
// diagnostics, so two diagnostics pointing at identical content are
// easy to spot without comparing full payloads (see DESIGN.md domain
// stack entry for internal/hash).
func (s *Section) Fingerprint() uint64 {
	return hash.Fingerprint(s.RawBytes)
}
