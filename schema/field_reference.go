package schema

import (
	"fmt"

	"github.com/tidalforge/m3codec/errs"
)

// refKind selects how a reference field's resolved content is
// represented and validated, chosen from the field's refTo attribute
// (spec.md §4.1).
type refKind int

const (
	refNone refKind = iota
	refChar
	refByte
	refReal
	refI16
	refU16
	refI32
	refU32
	refStructure
)

func (k refKind) tag() string {
	switch k {
	case refChar:
		return "CHAR"
	case refByte:
		return "U8__"
	case refReal:
		return "REAL"
	case refI16:
		return "I16_"
	case refU16:
		return "U16_"
	case refI32:
		return "I32_"
	case refU32:
		return "U32_"
	default:
		return ""
	}
}

// referenceField reads/writes the on-disk {entries, index, flags}
// record (spec.md §3, §6) via its own backing StructureDescription —
// usually "Reference" (12 bytes) or "SmallReference" — so field widths
// come from the schema rather than being hardcoded. Resolved content is
// a *Resolved whose Content type is determined by kind.
type referenceField struct {
	name          string
	kind          refKind
	structureName string // refStructure kind only: the named structure
	recordDesc    *StructureDescription
}

func newReferenceField(name string, kind refKind, structureName string, recordDesc *StructureDescription) *referenceField {
	return &referenceField{name: name, kind: kind, structureName: structureName, recordDesc: recordDesc}
}

func (f *referenceField) Name() string { return f.name }
func (f *referenceField) Size() int    { return f.recordDesc.Size }

func (f *referenceField) expectedTag() string {
	if f.kind == refStructure {
		return f.structureName
	}

	return f.kind.tag()
}

func (f *referenceField) ReadFrom(buf []byte, _ bool) (any, error) {
	inst := NewInstance(f.recordDesc)
	if err := inst.ReadFrom(buf, false); err != nil {
		return nil, fmt.Errorf("reference field %q: %w", f.name, err)
	}

	return rawReferenceFromInstance(inst)
}

func rawReferenceFromInstance(inst *Instance) (RawReference, error) {
	var raw RawReference

	for _, pair := range []struct {
		name string
		dst  *uint32
	}{{"entries", &raw.Entries}, {"index", &raw.Index}, {"flags", &raw.Flags}} {
		i, ok := inst.Desc.FieldIndex(pair.name)
		if !ok {
			return raw, fmt.Errorf("%w: reference record %q is missing field %q", errs.ErrInvalidFieldType, inst.Desc.Name(), pair.name)
		}

		n, err := toInt64(inst.Values[i])
		if err != nil {
			return raw, err
		}

		*pair.dst = uint32(n)
	}

	return raw, nil
}

func (f *referenceField) WriteTo(buf []byte, v any) error {
	raw, ok := v.(RawReference)
	if !ok {
		return fmt.Errorf("%w: reference field %q expects a resolved RawReference at write time, got %T", errs.ErrInvalidFieldType, f.name, v)
	}

	inst := NewInstance(f.recordDesc)
	inst.SetDefault()

	for _, pair := range []struct {
		name string
		val  uint32
	}{{"entries", raw.Entries}, {"index", raw.Index}, {"flags", raw.Flags}} {
		i, ok := inst.Desc.FieldIndex(pair.name)
		if !ok {
			return fmt.Errorf("%w: reference record %q is missing field %q", errs.ErrInvalidFieldType, inst.Desc.Name(), pair.name)
		}

		inst.Values[i] = int64(pair.val)
	}

	return inst.WriteTo(buf)
}

// emptyContent returns the empty collection native to the referent
// kind (spec.md §4.2 setToDefault).
func (f *referenceField) emptyContent() any {
	switch f.kind {
	case refChar:
		return ""
	case refByte:
		return []byte{}
	case refReal:
		return []float32{}
	case refI16:
		return []int16{}
	case refU16:
		return []uint16{}
	case refI32:
		return []int32{}
	case refU32:
		return []uint32{}
	case refStructure:
		return []*Instance{}
	default:
		return nil
	}
}

func (f *referenceField) SetDefault() any {
	return &Resolved{Content: f.emptyContent()}
}

func contentLen(kind refKind, content any) (int, error) {
	switch kind {
	case refChar:
		s, ok := content.(string)
		if !ok {
			return 0, fmt.Errorf("%w: CHAR reference expects string, got %T", errs.ErrInvalidFieldType, content)
		}

		return len(s), nil
	case refByte:
		b, ok := content.([]byte)
		if !ok {
			return 0, fmt.Errorf("%w: U8__ reference expects []byte, got %T", errs.ErrInvalidFieldType, content)
		}

		return len(b), nil
	case refReal:
		l, ok := content.([]float32)
		if !ok {
			return 0, fmt.Errorf("%w: REAL reference expects []float32, got %T", errs.ErrInvalidFieldType, content)
		}

		return len(l), nil
	case refI16:
		l, ok := content.([]int16)
		if !ok {
			return 0, fmt.Errorf("%w: I16_ reference expects []int16, got %T", errs.ErrInvalidFieldType, content)
		}

		return len(l), nil
	case refU16:
		l, ok := content.([]uint16)
		if !ok {
			return 0, fmt.Errorf("%w: U16_ reference expects []uint16, got %T", errs.ErrInvalidFieldType, content)
		}

		return len(l), nil
	case refI32:
		l, ok := content.([]int32)
		if !ok {
			return 0, fmt.Errorf("%w: I32_ reference expects []int32, got %T", errs.ErrInvalidFieldType, content)
		}

		return len(l), nil
	case refU32:
		l, ok := content.([]uint32)
		if !ok {
			return 0, fmt.Errorf("%w: U32_ reference expects []uint32, got %T", errs.ErrInvalidFieldType, content)
		}

		return len(l), nil
	case refStructure:
		l, ok := content.([]*Instance)
		if !ok {
			return 0, fmt.Errorf("%w: structure reference expects []*Instance, got %T", errs.ErrInvalidFieldType, content)
		}

		return len(l), nil
	default: // refNone
		if content == nil {
			return 0, nil
		}

		return 0, fmt.Errorf("%w: refTo-less reference must be empty on save, got %T", errs.ErrValidation, content)
	}
}

func (f *referenceField) IntroduceIndexReferences(v any, alloc IndexAllocator) (any, error) {
	resolved, ok := v.(*Resolved)
	if !ok {
		return nil, fmt.Errorf("%w: reference field %q expects *Resolved, got %T", errs.ErrInvalidFieldType, f.name, v)
	}

	n, err := contentLen(f.kind, resolved.Content)
	if err != nil {
		return nil, err
	}

	if n == 0 {
		return RawReference{Entries: 0, Index: alloc.NextIndex(), Flags: resolved.Flags}, nil
	}

	// CHAR repetitions include the trailing NUL (schema.CountInstances),
	// unlike contentLen's logical string length used for the zero check
	// above.
	entries := uint32(n)
	if f.kind == refChar {
		count, err := CountInstances("CHAR", resolved.Content)
		if err != nil {
			return nil, err
		}

		entries = uint32(count)
	}

	version := uint32(0)
	if f.kind == refStructure {
		if list, ok := resolved.Content.([]*Instance); ok && len(list) > 0 {
			version = list[0].Desc.Version
		}
	}

	idx, err := alloc.Allocate(f.expectedTag(), version, resolved.Content, entries)
	if err != nil {
		return nil, err
	}

	return RawReference{Entries: entries, Index: idx, Flags: resolved.Flags}, nil
}

func (f *referenceField) ResolveIndexReferences(v any, lookup SectionLookup) (any, error) {
	raw, ok := v.(RawReference)
	if !ok {
		return nil, fmt.Errorf("%w: reference field %q expects RawReference, got %T", errs.ErrInvalidFieldType, f.name, v)
	}

	if raw.Entries == 0 {
		return &Resolved{Content: f.emptyContent(), Flags: raw.Flags}, nil
	}

	tag, _, repetitions, content, err := lookup.Resolve(raw.Index)
	if err != nil {
		return nil, err
	}

	if repetitions < raw.Entries {
		return nil, fmt.Errorf("%w: reference %q expects %d entries, referent has %d", errs.ErrReferenceOverLength, f.name, raw.Entries, repetitions)
	}

	if expected := f.expectedTag(); expected != "" && tag != expected {
		return nil, fmt.Errorf("%w: reference %q expects tag %q, referent is %q", errs.ErrTagMismatch, f.name, expected, tag)
	}

	lookup.MarkReferenced(raw.Index)

	// Full-list/string/byte-array substitution, matching
	// original_source/m3.py's actual behavior (see DESIGN.md open
	// question 3) rather than slicing to raw.Entries.
	return &Resolved{Content: content, Flags: raw.Flags}, nil
}

func (f *referenceField) Validate(path string, v any) error {
	resolved, ok := v.(*Resolved)
	if !ok {
		return &errs.ValidationError{Path: path, Err: fmt.Errorf("expected *Resolved, got %T", v)}
	}

	if _, err := contentLen(f.kind, resolved.Content); err != nil {
		return &errs.ValidationError{Path: path, Err: err}
	}

	if f.kind == refI16 || f.kind == refU16 || f.kind == refI32 || f.kind == refU32 {
		if err := f.validateIntElements(resolved.Content); err != nil {
			return &errs.ValidationError{Path: path, Err: err}
		}
	}

	if f.kind == refStructure {
		list := resolved.Content.([]*Instance)
		for i, inst := range list {
			if inst.Desc.Name() != f.structureName {
				return &errs.ValidationError{Path: fmt.Sprintf("%s[%d]", path, i), Err: fmt.Errorf("expected structure %q, got %q", f.structureName, inst.Desc.Name())}
			}

			if err := inst.Validate(fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	}

	return nil
}

func (f *referenceField) validateIntElements(content any) error {
	switch f.kind {
	case refI16:
		_, ok := content.([]int16)
		if !ok {
			return fmt.Errorf("%w: expected []int16, got %T", errs.ErrInvalidFieldType, content)
		}
	case refU16:
		_, ok := content.([]uint16)
		if !ok {
			return fmt.Errorf("%w: expected []uint16, got %T", errs.ErrInvalidFieldType, content)
		}
	case refI32:
		_, ok := content.([]int32)
		if !ok {
			return fmt.Errorf("%w: expected []int32, got %T", errs.ErrInvalidFieldType, content)
		}
	case refU32:
		_, ok := content.([]uint32)
		if !ok {
			return fmt.Errorf("%w: expected []uint32, got %T", errs.ErrInvalidFieldType, content)
		}
	}

	return nil
}
