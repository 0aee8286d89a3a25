package schema

import (
	"fmt"
	"math"

	"github.com/tidalforge/m3codec/errs"
	"github.com/tidalforge/m3codec/internal/endian"
)

// floatField is a 4-byte IEEE-754 little-endian float, optionally
// carrying an expected and default value (spec.md §3, §4.2).
type floatField struct {
	name     string
	expected *float32
	def      float32
}

func newFloatField(name string, expected *float32, def float32) *floatField {
	return &floatField{name: name, expected: expected, def: def}
}

func (f *floatField) Name() string { return f.name }
func (f *floatField) Size() int    { return 4 }

func (f *floatField) ReadFrom(buf []byte, checkExpected bool) (any, error) {
	if len(buf) != 4 {
		return nil, fmt.Errorf("%w: float field %q needs 4 bytes, got %d", errs.ErrShortRead, f.name, len(buf))
	}

	v := math.Float32frombits(endian.LE.Uint32(buf))

	if checkExpected && f.expected != nil && v != *f.expected {
		return nil, &errs.UnexpectedValueError{Field: f.name, Got: v, Want: *f.expected}
	}

	return v, nil
}

func (f *floatField) WriteTo(buf []byte, v any) error {
	fv, err := toFloat32(v)
	if err != nil {
		return err
	}

	endian.LE.PutUint32(buf, math.Float32bits(fv))

	return nil
}

func toFloat32(v any) (float32, error) {
	switch n := v.(type) {
	case float32:
		return n, nil
	case float64:
		return float32(n), nil
	default:
		return 0, fmt.Errorf("%w: float field expects a float, got %T", errs.ErrInvalidFieldType, v)
	}
}

func (f *floatField) SetDefault() any { return f.def }

func (f *floatField) Validate(path string, v any) error {
	if _, err := toFloat32(v); err != nil {
		return &errs.ValidationError{Path: path, Err: err}
	}

	return nil
}

func (f *floatField) IntroduceIndexReferences(v any, _ IndexAllocator) (any, error) { return v, nil }
func (f *floatField) ResolveIndexReferences(v any, _ SectionLookup) (any, error)    { return v, nil }

// fixed8Field is a 1-byte fixed-point encoding of a value in [-1, 1]:
// encode(v) = round((v+1)/2 * 255), decode(b) = (b/255 * 2) - 1
// (spec.md §3, §4.2, §8 "Fixed8 boundary").
type fixed8Field struct {
	name     string
	expected *byte
	def      float32
}

func newFixed8Field(name string, expected *byte, def float32) *fixed8Field {
	return &fixed8Field{name: name, expected: expected, def: def}
}

func (f *fixed8Field) Name() string { return f.name }
func (f *fixed8Field) Size() int    { return 1 }

func decodeFixed8(b byte) float32 {
	return float32(b)/255*2 - 1
}

func encodeFixed8(v float32) byte {
	scaled := (v + 1) / 2 * 255
	if scaled < 0 {
		scaled = 0
	}

	if scaled > 255 {
		scaled = 255
	}

	return byte(math.Round(float64(scaled)))
}

func (f *fixed8Field) ReadFrom(buf []byte, checkExpected bool) (any, error) {
	if len(buf) != 1 {
		return nil, fmt.Errorf("%w: fixed8 field %q needs 1 byte, got %d", errs.ErrShortRead, f.name, len(buf))
	}

	b := buf[0]

	if checkExpected && f.expected != nil && b != *f.expected {
		return nil, &errs.UnexpectedValueError{Field: f.name, Got: b, Want: *f.expected}
	}

	return decodeFixed8(b), nil
}

func (f *fixed8Field) WriteTo(buf []byte, v any) error {
	fv, err := toFloat32(v)
	if err != nil {
		return err
	}

	buf[0] = encodeFixed8(fv)

	return nil
}

func (f *fixed8Field) SetDefault() any { return f.def }

func (f *fixed8Field) Validate(path string, v any) error {
	if _, err := toFloat32(v); err != nil {
		return &errs.ValidationError{Path: path, Err: err}
	}

	return nil
}

func (f *fixed8Field) IntroduceIndexReferences(v any, _ IndexAllocator) (any, error) { return v, nil }
func (f *fixed8Field) ResolveIndexReferences(v any, _ SectionLookup) (any, error)    { return v, nil }
