package schema

import (
	"fmt"

	"github.com/tidalforge/m3codec/errs"
	"github.com/tidalforge/m3codec/internal/endian"
)

// Primitive structures (spec.md §3, §4.3) carry a native buffer instead
// of a field-bundle list. These helpers operate at the whole-section
// level, which is why they're free functions rather than Instance
// methods: a primitive "instance" is the entire section content, not one
// element of a repeated list.

// DecodePrimitive decodes a primitive structure's raw section bytes
// into its native Go representation.
func DecodePrimitive(name string, buf []byte) (any, error) {
	switch name {
	case "CHAR":
		if len(buf) == 0 {
			return "", nil
		}

		if buf[len(buf)-1] == 0 {
			return string(buf[:len(buf)-1]), nil
		}

		return string(buf), nil
	case "U8__":
		out := make([]byte, len(buf))
		copy(out, buf)

		return out, nil
	case "REAL":
		return decodeFloat32List(buf)
	case "I16_":
		return decodeIntList[int16](buf, 2, true)
	case "U16_":
		return decodeIntList[uint16](buf, 2, false)
	case "I32_", "FLAG":
		return decodeIntList[int32](buf, 4, true)
	case "U32_":
		return decodeIntList[uint32](buf, 4, false)
	default:
		return nil, fmt.Errorf("%w: %q is not a primitive structure", errs.ErrInvalidFieldType, name)
	}
}

func decodeFloat32List(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("%w: REAL buffer length %d is not a multiple of 4", errs.ErrShortRead, len(buf))
	}

	out := make([]float32, len(buf)/4)
	for i := range out {
		v, err := (&floatField{}).ReadFrom(buf[i*4:i*4+4], false)
		if err != nil {
			return nil, err
		}

		out[i] = v.(float32)
	}

	return out, nil
}

type intLike interface{ ~int16 | ~uint16 | ~int32 | ~uint32 }

func decodeIntList[T intLike](buf []byte, size int, signed bool) ([]T, error) {
	if len(buf)%size != 0 {
		return nil, fmt.Errorf("%w: buffer length %d is not a multiple of %d", errs.ErrShortRead, len(buf), size)
	}

	n := len(buf) / size
	out := make([]T, n)
	f := &intField{size: size, signed: signed}

	for i := range out {
		out[i] = T(f.decode(buf[i*size : i*size+size]))
	}

	return out, nil
}

// EncodePrimitive encodes a primitive structure's native Go value back
// to raw bytes.
func EncodePrimitive(name string, content any) ([]byte, error) {
	switch name {
	case "CHAR":
		s, ok := content.(string)
		if !ok {
			return nil, fmt.Errorf("%w: CHAR expects string, got %T", errs.ErrInvalidFieldType, content)
		}

		return append([]byte(s), 0), nil
	case "U8__":
		b, ok := content.([]byte)
		if !ok {
			return nil, fmt.Errorf("%w: U8__ expects []byte, got %T", errs.ErrInvalidFieldType, content)
		}

		out := make([]byte, len(b))
		copy(out, b)

		return out, nil
	case "REAL":
		l, ok := content.([]float32)
		if !ok {
			return nil, fmt.Errorf("%w: REAL expects []float32, got %T", errs.ErrInvalidFieldType, content)
		}

		out := make([]byte, len(l)*4)
		for i, v := range l {
			endian.LE.PutUint32(out[i*4:], mustFloat32Bits(v))
		}

		return out, nil
	case "I16_":
		return encodeIntList(content.([]int16), 2)
	case "U16_":
		return encodeIntList(content.([]uint16), 2)
	case "I32_", "FLAG":
		return encodeIntList(content.([]int32), 4)
	case "U32_":
		return encodeIntList(content.([]uint32), 4)
	default:
		return nil, fmt.Errorf("%w: %q is not a primitive structure", errs.ErrInvalidFieldType, name)
	}
}

func mustFloat32Bits(v float32) uint32 {
	buf := make([]byte, 4)
	_ = (&floatField{}).WriteTo(buf, v)

	return endian.LE.Uint32(buf)
}

func encodeIntList[T intLike](list []T, size int) ([]byte, error) {
	out := make([]byte, len(list)*size)
	f := &intField{size: size}

	for i, v := range list {
		if err := f.WriteTo(out[i*size:i*size+size], int64(v)); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// PrimitiveElementSize returns the on-disk byte width of one repetition
// of a primitive structure's content (spec.md §4.3): 1 for CHAR/U8__ (a
// CHAR's repetitions count already includes the trailing NUL, so no
// further adjustment is needed), 2 for I16_/U16_, 4 for REAL/I32_/U32_/
// FLAG. Used to slice a section's raw, padding-included bytes down to
// its exact content length before decoding.
func PrimitiveElementSize(name string) (int, error) {
	switch name {
	case "CHAR", "U8__":
		return 1, nil
	case "I16_", "U16_":
		return 2, nil
	case "REAL", "I32_", "U32_", "FLAG":
		return 4, nil
	default:
		return 0, fmt.Errorf("%w: %q is not a primitive structure", errs.ErrInvalidFieldType, name)
	}
}

// CountInstances returns the repetitions value a primitive structure's
// section index entry carries for content (spec.md §4.3: CHAR includes
// the trailing NUL in its count, others count list elements).
func CountInstances(name string, content any) (int, error) {
	switch name {
	case "CHAR":
		s, ok := content.(string)
		if !ok {
			return 0, fmt.Errorf("%w: CHAR expects string, got %T", errs.ErrInvalidFieldType, content)
		}

		return len(s) + 1, nil
	case "U8__":
		b, ok := content.([]byte)
		if !ok {
			return 0, fmt.Errorf("%w: U8__ expects []byte, got %T", errs.ErrInvalidFieldType, content)
		}

		return len(b), nil
	case "REAL":
		l, ok := content.([]float32)
		if !ok {
			return 0, fmt.Errorf("%w: REAL expects []float32, got %T", errs.ErrInvalidFieldType, content)
		}

		return len(l), nil
	case "I16_":
		l, ok := content.([]int16)
		if !ok {
			return 0, fmt.Errorf("%w: I16_ expects []int16, got %T", errs.ErrInvalidFieldType, content)
		}

		return len(l), nil
	case "U16_":
		l, ok := content.([]uint16)
		if !ok {
			return 0, fmt.Errorf("%w: U16_ expects []uint16, got %T", errs.ErrInvalidFieldType, content)
		}

		return len(l), nil
	case "I32_", "FLAG":
		l, ok := content.([]int32)
		if !ok {
			return 0, fmt.Errorf("%w: I32_/FLAG expects []int32, got %T", errs.ErrInvalidFieldType, content)
		}

		return len(l), nil
	case "U32_":
		l, ok := content.([]uint32)
		if !ok {
			return 0, fmt.Errorf("%w: U32_ expects []uint32, got %T", errs.ErrInvalidFieldType, content)
		}

		return len(l), nil
	default:
		return 0, fmt.Errorf("%w: %q is not a primitive structure", errs.ErrInvalidFieldType, name)
	}
}
