package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnknownBytesFieldRoundTrip(t *testing.T) {
	f := newUnknownBytesField("pad", 3, nil, nil)
	buf := []byte{0xAA, 0xBB, 0xCC}

	v, err := f.ReadFrom(buf, false)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC}, v)

	out := make([]byte, 3)
	require.NoError(t, f.WriteTo(out, v))
	assert.Equal(t, buf, out)
}

func TestUnknownBytesFieldDefault(t *testing.T) {
	t.Run("no declared default zero-fills", func(t *testing.T) {
		f := newUnknownBytesField("pad", 3, nil, nil)
		assert.Equal(t, []byte{0, 0, 0}, f.SetDefault())
	})

	t.Run("declared default is copied, not aliased", func(t *testing.T) {
		def := []byte{1, 2, 3}
		f := newUnknownBytesField("pad", 3, nil, def)
		got := f.SetDefault().([]byte)
		assert.Equal(t, def, got)

		got[0] = 99
		assert.Equal(t, byte(1), def[0])
	})
}

func TestUnknownBytesFieldExpectedValue(t *testing.T) {
	f := newUnknownBytesField("magic", 2, []byte{0x01, 0x02}, nil)

	_, err := f.ReadFrom([]byte{0x01, 0x02}, true)
	assert.NoError(t, err)

	_, err = f.ReadFrom([]byte{0x01, 0x03}, true)
	assert.Error(t, err)

	_, err = f.ReadFrom([]byte{0x01, 0x03}, false)
	assert.NoError(t, err)
}

func TestUnknownBytesFieldWriteToRejectsWrongLength(t *testing.T) {
	f := newUnknownBytesField("pad", 3, nil, nil)
	assert.Error(t, f.WriteTo(make([]byte, 3), []byte{1, 2}))
}

func TestUnknownBytesFieldValidate(t *testing.T) {
	f := newUnknownBytesField("pad", 3, nil, nil)
	assert.NoError(t, f.Validate("x", []byte{1, 2, 3}))
	assert.Error(t, f.Validate("x", []byte{1, 2}))
	assert.Error(t, f.Validate("x", "not bytes"))
}
