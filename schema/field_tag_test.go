package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagFieldWriteTo(t *testing.T) {
	f := newTagField("tag")

	t.Run("4-char tag reverses byte order", func(t *testing.T) {
		buf := make([]byte, 4)
		require.NoError(t, f.WriteTo(buf, "MD34"))
		assert.Equal(t, []byte{0x34, 0x33, 0x44, 0x4D}, buf)
	})

	t.Run("3-char tag reverses and NUL-pads", func(t *testing.T) {
		buf := make([]byte, 4)
		require.NoError(t, f.WriteTo(buf, "DIV"))
		assert.Equal(t, []byte{0x56, 0x49, 0x44, 0x00}, buf)
	})

	t.Run("rejects wrong length", func(t *testing.T) {
		buf := make([]byte, 4)
		assert.Error(t, f.WriteTo(buf, "TOOLONG"))
	})

	t.Run("rejects non-string", func(t *testing.T) {
		buf := make([]byte, 4)
		assert.Error(t, f.WriteTo(buf, 42))
	})
}

func TestTagFieldReadFrom(t *testing.T) {
	f := newTagField("tag")

	t.Run("4-char round trip", func(t *testing.T) {
		buf := []byte{0x34, 0x33, 0x44, 0x4D}
		v, err := f.ReadFrom(buf, false)
		require.NoError(t, err)
		assert.Equal(t, "MD34", v)
	})

	t.Run("3-char round trip via NUL terminator", func(t *testing.T) {
		buf := []byte{0x56, 0x49, 0x44, 0x00}
		v, err := f.ReadFrom(buf, false)
		require.NoError(t, err)
		assert.Equal(t, "DIV", v)
	})

	t.Run("U8__ reverses like any other tag", func(t *testing.T) {
		buf := make([]byte, 4)
		require.NoError(t, f.WriteTo(buf, "U8__"))
		assert.Equal(t, []byte{0x5F, 0x5F, 0x38, 0x55}, buf)

		v, err := f.ReadFrom(buf, false)
		require.NoError(t, err)
		assert.Equal(t, "U8__", v)
	})
}

func TestTagFieldValidate(t *testing.T) {
	f := newTagField("tag")

	assert.NoError(t, f.Validate("x.tag", "DIV"))
	assert.NoError(t, f.Validate("x.tag", "MD34"))
	assert.Error(t, f.Validate("x.tag", "TOOLONG"))
	assert.Error(t, f.Validate("x.tag", 5))
}

func TestTagFieldSetDefault(t *testing.T) {
	f := newTagField("tag")
	assert.Equal(t, "", f.SetDefault())
}
