package schema

import (
	"fmt"

	"github.com/tidalforge/m3codec/errs"
)

// Instance is a record of a non-primitive structure: (description,
// ordered field values) (spec.md §3, §4.3). Primitive structures (CHAR,
// U8__, REAL, I16_/U16_/I32_/U32_/FLAG) don't use Instance — their
// section content is a native buffer handled by the primitive.go
// helpers instead.
type Instance struct {
	Desc   *StructureDescription
	Values []any
}

// NewInstance allocates an instance bound to desc with unset values.
func NewInstance(desc *StructureDescription) *Instance {
	return &Instance{Desc: desc, Values: make([]any, len(desc.Fields))}
}

// ReadFrom decodes buf (exactly Desc.Size bytes) into Values, one field
// at a time at sequential offsets.
func (inst *Instance) ReadFrom(buf []byte, checkExpected bool) error {
	if len(buf) != inst.Desc.Size {
		return fmt.Errorf("%w: structure %q expects %d bytes, got %d", errs.ErrShortRead, inst.Desc.Name(), inst.Desc.Size, len(buf))
	}

	cursor := 0

	for i, f := range inst.Desc.Fields {
		size := f.Size()

		v, err := f.ReadFrom(buf[cursor:cursor+size], checkExpected)
		if err != nil {
			return &errs.DecodeError{Tag: inst.Desc.Name(), Version: inst.Desc.Version, Offset: cursor, Err: err}
		}

		inst.Values[i] = v
		cursor += size
	}

	return nil
}

// WriteTo encodes Values into buf (exactly Desc.Size bytes).
func (inst *Instance) WriteTo(buf []byte) error {
	if len(buf) != inst.Desc.Size {
		return fmt.Errorf("%w: structure %q expects %d bytes, got %d", errs.ErrBufferSize, inst.Desc.Name(), inst.Desc.Size, len(buf))
	}

	cursor := 0

	for i, f := range inst.Desc.Fields {
		size := f.Size()

		if err := f.WriteTo(buf[cursor:cursor+size], inst.Values[i]); err != nil {
			return &errs.EncodeError{Structure: inst.Desc.Name(), Err: fmt.Errorf("field %q: %w", f.Name(), err)}
		}

		cursor += size
	}

	return nil
}

// SetDefault assigns every field its SetDefault() value.
func (inst *Instance) SetDefault() {
	for i, f := range inst.Desc.Fields {
		inst.Values[i] = f.SetDefault()
	}
}

// Validate recurses through every field's Validate.
func (inst *Instance) Validate(path string) error {
	for i, f := range inst.Desc.Fields {
		if err := f.Validate(path+"."+f.Name(), inst.Values[i]); err != nil {
			return err
		}
	}

	return nil
}

// IntroduceIndexReferences walks every field, replacing resolved
// reference content with RawReference records allocated via alloc
// (spec.md §4.2, §4.4 save step 3).
func (inst *Instance) IntroduceIndexReferences(alloc IndexAllocator) error {
	for i, f := range inst.Desc.Fields {
		v, err := f.IntroduceIndexReferences(inst.Values[i], alloc)
		if err != nil {
			return err
		}

		inst.Values[i] = v
	}

	return nil
}

// ResolveIndexReferences walks every field, replacing RawReference
// records with resolved content looked up via lookup (spec.md §4.5).
func (inst *Instance) ResolveIndexReferences(lookup SectionLookup) error {
	for i, f := range inst.Desc.Fields {
		v, err := f.ResolveIndexReferences(inst.Values[i], lookup)
		if err != nil {
			return err
		}

		inst.Values[i] = v
	}

	return nil
}

// NamedBit reads a named bit from a named integer field (spec.md §9
// getNamedBit, §8 bit get/set laws).
func (inst *Instance) NamedBit(fieldName, bitName string) (bool, error) {
	i, ok := inst.Desc.FieldIndex(fieldName)
	if !ok {
		return false, fmt.Errorf("%w: no field named %q", errs.ErrInvalidFieldType, fieldName)
	}

	intf, ok := inst.Desc.Fields[i].(*intField)
	if !ok {
		return false, fmt.Errorf("%w: field %q is not an integer field", errs.ErrInvalidFieldType, fieldName)
	}

	mask, ok := intf.NamedBitMask(bitName)
	if !ok {
		return false, fmt.Errorf("%w: field %q has no bit named %q", errs.ErrInvalidFieldType, fieldName, bitName)
	}

	n, err := toInt64(inst.Values[i])
	if err != nil {
		return false, err
	}

	return uint64(n)&mask == mask, nil
}

// SetNamedBit sets or clears a named bit on a named integer field
// (spec.md §9 setNamedBit).
func (inst *Instance) SetNamedBit(fieldName, bitName string, value bool) error {
	i, ok := inst.Desc.FieldIndex(fieldName)
	if !ok {
		return fmt.Errorf("%w: no field named %q", errs.ErrInvalidFieldType, fieldName)
	}

	intf, ok := inst.Desc.Fields[i].(*intField)
	if !ok {
		return fmt.Errorf("%w: field %q is not an integer field", errs.ErrInvalidFieldType, fieldName)
	}

	mask, ok := intf.NamedBitMask(bitName)
	if !ok {
		return fmt.Errorf("%w: field %q has no bit named %q", errs.ErrInvalidFieldType, fieldName, bitName)
	}

	n, err := toInt64(inst.Values[i])
	if err != nil {
		return err
	}

	u := uint64(n)
	if value {
		u |= mask
	} else {
		u &^= mask
	}

	inst.Values[i] = int64(u)

	return nil
}

// GetBitNameMaskPairs returns every named bit and its mask declared on
// a named integer field (spec.md §9 getBitNameMaskPairs).
func (inst *Instance) GetBitNameMaskPairs(fieldName string) (map[string]uint64, error) {
	i, ok := inst.Desc.FieldIndex(fieldName)
	if !ok {
		return nil, fmt.Errorf("%w: no field named %q", errs.ErrInvalidFieldType, fieldName)
	}

	intf, ok := inst.Desc.Fields[i].(*intField)
	if !ok {
		return nil, fmt.Errorf("%w: field %q is not an integer field", errs.ErrInvalidFieldType, fieldName)
	}

	out := make(map[string]uint64, len(intf.bits))
	for name, mask := range intf.bits {
		out[name] = mask
	}

	return out, nil
}
