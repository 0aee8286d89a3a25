package schema

import (
	"fmt"

	"github.com/tidalforge/m3codec/errs"
)

// tagField is a 4-byte field holding a 3- or 4-character ASCII tag,
// stored reversed in memory order on disk (spec.md §3, §4.2, §6).
type tagField struct {
	name string
}

func newTagField(name string) *tagField { return &tagField{name: name} }

func (f *tagField) Name() string { return f.name }
func (f *tagField) Size() int    { return 4 }

func (f *tagField) ReadFrom(buf []byte, _ bool) (any, error) {
	if len(buf) != 4 {
		return nil, fmt.Errorf("%w: tag field needs 4 bytes, got %d", errs.ErrShortRead, len(buf))
	}

	if buf[3] == 0 {
		return string([]byte{buf[2], buf[1], buf[0]}), nil
	}

	return string([]byte{buf[3], buf[2], buf[1], buf[0]}), nil
}

func (f *tagField) WriteTo(buf []byte, v any) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("%w: tag field expects a string, got %T", errs.ErrInvalidFieldType, v)
	}

	switch len(s) {
	case 3:
		buf[0], buf[1], buf[2], buf[3] = s[2], s[1], s[0], 0
	case 4:
		buf[0], buf[1], buf[2], buf[3] = s[3], s[2], s[1], s[0]
	default:
		return fmt.Errorf("%w: tag must be 3 or 4 characters, got %q", errs.ErrValidation, s)
	}

	return nil
}

func (f *tagField) SetDefault() any { return "" }

func (f *tagField) Validate(path string, v any) error {
	s, ok := v.(string)
	if !ok {
		return &errs.ValidationError{Path: path, Err: fmt.Errorf("tag must be a string, got %T", v)}
	}

	if len(s) != 3 && len(s) != 4 {
		return &errs.ValidationError{Path: path, Err: fmt.Errorf("tag must be 3 or 4 characters, got %q", s)}
	}

	return nil
}

func (f *tagField) IntroduceIndexReferences(v any, _ IndexAllocator) (any, error) { return v, nil }
func (f *tagField) ResolveIndexReferences(v any, _ SectionLookup) (any, error)    { return v, nil }
