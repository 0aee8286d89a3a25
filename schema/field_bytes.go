package schema

import (
	"bytes"
	"fmt"

	"github.com/tidalforge/m3codec/errs"
)

// unknownBytesField is an opaque N-byte payload with an optional
// expected/default hex value (spec.md §3, §4.1, §4.2). Used for
// type-less `<field>` declarations.
type unknownBytesField struct {
	name     string
	size     int
	expected []byte // nil if not declared
	def      []byte
}

func newUnknownBytesField(name string, size int, expected, def []byte) *unknownBytesField {
	return &unknownBytesField{name: name, size: size, expected: expected, def: def}
}

func (f *unknownBytesField) Name() string { return f.name }
func (f *unknownBytesField) Size() int    { return f.size }

func (f *unknownBytesField) ReadFrom(buf []byte, checkExpected bool) (any, error) {
	if len(buf) != f.size {
		return nil, fmt.Errorf("%w: unknown-bytes field %q needs %d bytes, got %d", errs.ErrShortRead, f.name, f.size, len(buf))
	}

	out := make([]byte, f.size)
	copy(out, buf)

	if checkExpected && f.expected != nil && !bytes.Equal(out, f.expected) {
		return nil, &errs.UnexpectedValueError{Field: f.name, Got: out, Want: f.expected}
	}

	return out, nil
}

func (f *unknownBytesField) WriteTo(buf []byte, v any) error {
	b, ok := v.([]byte)
	if !ok {
		return fmt.Errorf("%w: unknown-bytes field expects []byte, got %T", errs.ErrInvalidFieldType, v)
	}

	if len(b) != f.size {
		return fmt.Errorf("%w: unknown-bytes field %q expects %d bytes, got %d", errs.ErrBufferSize, f.name, f.size, len(b))
	}

	copy(buf, b)

	return nil
}

func (f *unknownBytesField) SetDefault() any {
	if f.def != nil {
		out := make([]byte, len(f.def))
		copy(out, f.def)

		return out
	}

	return make([]byte, f.size)
}

func (f *unknownBytesField) Validate(path string, v any) error {
	b, ok := v.([]byte)
	if !ok {
		return &errs.ValidationError{Path: path, Err: fmt.Errorf("expected []byte, got %T", v)}
	}

	if len(b) != f.size {
		return &errs.ValidationError{Path: path, Err: fmt.Errorf("expected length %d, got %d", f.size, len(b))}
	}

	return nil
}

func (f *unknownBytesField) IntroduceIndexReferences(v any, _ IndexAllocator) (any, error) {
	return v, nil
}

func (f *unknownBytesField) ResolveIndexReferences(v any, _ SectionLookup) (any, error) {
	return v, nil
}
