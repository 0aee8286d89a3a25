package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSchemaError(t *testing.T) {
	t.Run("unwraps to wrapped error", func(t *testing.T) {
		inner := errors.New("boom")
		err := &SchemaError{Structure: "BONE", Field: "flags", Err: inner}
		assert.ErrorIs(t, err, inner)
		assert.Contains(t, err.Error(), "BONE")
		assert.Contains(t, err.Error(), "flags")
	})

	t.Run("omits field when empty", func(t *testing.T) {
		err := &SchemaError{Structure: "BONE", Err: errors.New("boom")}
		assert.NotContains(t, err.Error(), "field")
	})
}

func TestUnknownSectionError(t *testing.T) {
	err := &UnknownSectionError{Index: 3, Tag: "XTRA", Version: 2, Offset: 128, Repetitions: 4, GuessedBytesPerEntry: 16}
	assert.ErrorIs(t, err, ErrUnknownStructure)
	assert.Contains(t, err.Error(), "XTRA")
}

func TestOrphanSectionError(t *testing.T) {
	t.Run("no matches", func(t *testing.T) {
		err := &OrphanSectionError{Index: 1, Tag: "BONE", Version: 1}
		assert.ErrorIs(t, err, ErrOrphanSection)
		assert.NotContains(t, err.Error(), "candidate")
	})

	t.Run("with matches", func(t *testing.T) {
		err := &OrphanSectionError{Index: 1, Tag: "BONE", Version: 1, Matches: []OrphanMatch{{SectionIndex: 0, ByteOffset: 4}}}
		assert.Contains(t, err.Error(), "candidate")
	})
}

func TestUnexpectedValueError(t *testing.T) {
	err := &UnexpectedValueError{Structure: "BONE", Field: "version", Got: 1, Want: 2}
	assert.ErrorIs(t, err, ErrUnexpectedValue)
	assert.Contains(t, err.Error(), "BONE.version")
}

func TestEncodeError(t *testing.T) {
	inner := errors.New("buffer too small")
	err := &EncodeError{Structure: "BONE", Err: inner}
	assert.ErrorIs(t, err, inner)
}
