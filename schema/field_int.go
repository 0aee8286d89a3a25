package schema

import (
	"fmt"

	"github.com/tidalforge/m3codec/errs"
	"github.com/tidalforge/m3codec/internal/endian"
)

// intField is a 1/2/4-byte signed or unsigned little-endian integer,
// optionally carrying an expected value, a default value, and a
// bit-name→mask map for flag fields (spec.md §3, §4.2).
type intField struct {
	name     string
	size     int
	signed   bool
	expected *int64
	def      int64
	bits     map[string]uint64 // name -> mask, for flag-style fields
}

func newIntField(name string, size int, signed bool, expected *int64, def int64, bits map[string]uint64) *intField {
	return &intField{name: name, size: size, signed: signed, expected: expected, def: def, bits: bits}
}

func (f *intField) Name() string { return f.name }
func (f *intField) Size() int    { return f.size }

func (f *intField) decode(buf []byte) int64 {
	switch f.size {
	case 1:
		if f.signed {
			return int64(int8(buf[0]))
		}

		return int64(buf[0])
	case 2:
		u := endian.LE.Uint16(buf)
		if f.signed {
			return int64(int16(u))
		}

		return int64(u)
	case 4:
		u := endian.LE.Uint32(buf)
		if f.signed {
			return int64(int32(u))
		}

		return int64(u)
	default:
		return 0
	}
}

func (f *intField) ReadFrom(buf []byte, checkExpected bool) (any, error) {
	if len(buf) != f.size {
		return nil, fmt.Errorf("%w: int field %q needs %d bytes, got %d", errs.ErrShortRead, f.name, f.size, len(buf))
	}

	v := f.decode(buf)

	if checkExpected && f.expected != nil && v != *f.expected {
		return nil, &errs.UnexpectedValueError{Field: f.name, Got: v, Want: *f.expected}
	}

	return v, nil
}

func (f *intField) WriteTo(buf []byte, v any) error {
	n, err := toInt64(v)
	if err != nil {
		return err
	}

	switch f.size {
	case 1:
		buf[0] = byte(n)
	case 2:
		endian.LE.PutUint16(buf, uint16(n))
	case 4:
		endian.LE.PutUint32(buf, uint32(n))
	}

	return nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("%w: int field expects an integer, got %T", errs.ErrInvalidFieldType, v)
	}
}

func (f *intField) SetDefault() any { return f.def }

func (f *intField) Validate(path string, v any) error {
	n, err := toInt64(v)
	if err != nil {
		return &errs.ValidationError{Path: path, Err: err}
	}

	min, max := f.bounds()
	if n < min || n > max {
		return &errs.ValidationError{Path: path, Err: fmt.Errorf("value %d out of range [%d,%d]", n, min, max)}
	}

	return nil
}

func (f *intField) bounds() (int64, int64) {
	bits := uint(f.size * 8)
	if !f.signed {
		return 0, int64(uint64(1)<<bits - 1)
	}

	return -(int64(1) << (bits - 1)), int64(1)<<(bits-1) - 1
}

func (f *intField) IntroduceIndexReferences(v any, _ IndexAllocator) (any, error) { return v, nil }
func (f *intField) ResolveIndexReferences(v any, _ SectionLookup) (any, error)    { return v, nil }

// NamedBitMask returns the mask for a named bit, and whether it exists.
func (f *intField) NamedBitMask(bit string) (uint64, bool) {
	m, ok := f.bits[bit]
	return m, ok
}

// BitNames returns every bit name declared for this field, in no
// particular order (mirrors getBitNameMaskPairs in original_source/m3.py).
func (f *intField) BitNames() []string {
	names := make([]string, 0, len(f.bits))
	for name := range f.bits {
		names = append(names, name)
	}

	return names
}
