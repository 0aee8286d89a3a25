package schema

import (
	"fmt"

	"github.com/tidalforge/m3codec/errs"
)

// embeddedStructureField inlines another structure description: its
// size equals the embedded description's size, and every capability
// delegates recursively (spec.md §3, §4.2).
type embeddedStructureField struct {
	name string
	desc *StructureDescription
}

func newEmbeddedStructureField(name string, desc *StructureDescription) *embeddedStructureField {
	return &embeddedStructureField{name: name, desc: desc}
}

func (f *embeddedStructureField) Name() string { return f.name }
func (f *embeddedStructureField) Size() int    { return f.desc.Size }

func (f *embeddedStructureField) ReadFrom(buf []byte, checkExpected bool) (any, error) {
	inst := NewInstance(f.desc)
	if err := inst.ReadFrom(buf, checkExpected); err != nil {
		return nil, fmt.Errorf("embedded field %q: %w", f.name, err)
	}

	return inst, nil
}

func (f *embeddedStructureField) WriteTo(buf []byte, v any) error {
	inst, ok := v.(*Instance)
	if !ok {
		return fmt.Errorf("%w: embedded field expects *Instance, got %T", errs.ErrInvalidFieldType, v)
	}

	return inst.WriteTo(buf)
}

func (f *embeddedStructureField) SetDefault() any {
	inst := NewInstance(f.desc)
	inst.SetDefault()

	return inst
}

func (f *embeddedStructureField) Validate(path string, v any) error {
	inst, ok := v.(*Instance)
	if !ok {
		return &errs.ValidationError{Path: path, Err: fmt.Errorf("expected *Instance, got %T", v)}
	}

	return inst.Validate(path)
}

func (f *embeddedStructureField) IntroduceIndexReferences(v any, alloc IndexAllocator) (any, error) {
	inst, ok := v.(*Instance)
	if !ok {
		return nil, fmt.Errorf("%w: embedded field expects *Instance, got %T", errs.ErrInvalidFieldType, v)
	}

	if err := inst.IntroduceIndexReferences(alloc); err != nil {
		return nil, err
	}

	return inst, nil
}

func (f *embeddedStructureField) ResolveIndexReferences(v any, lookup SectionLookup) (any, error) {
	inst, ok := v.(*Instance)
	if !ok {
		return nil, fmt.Errorf("%w: embedded field expects *Instance, got %T", errs.ErrInvalidFieldType, v)
	}

	if err := inst.ResolveIndexReferences(lookup); err != nil {
		return nil, err
	}

	return inst, nil
}
