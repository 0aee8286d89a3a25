// Package section implements the M3 file-level layout: the MD34 header,
// the index-entry table, and per-section payload framing with 16-byte
// 0xAA padding (spec.md §4.4, §6).
package section

import (
	"fmt"
	"sort"

	"github.com/tidalforge/m3codec/errs"
	"github.com/tidalforge/m3codec/internal/bufpool"
	"github.com/tidalforge/m3codec/schema"
)

// Alignment is the section payload alignment in bytes.
const Alignment = 16

// PadByte fills the unused tail of a section's rounded-up payload.
const PadByte = 0xAA

// HeaderStructureName and IndexEntryStructureName name the two
// structures every M3 schema must declare (spec.md §4.4).
const (
	HeaderStructureName     = "MD34"
	HeaderVersion           = 11
	IndexEntryStructureName = "MD34IndexEntry"
	IndexEntryVersion       = 0
)

// Section is a runtime-only object linking an index entry (tag,
// version, offset, repetitions) with its raw bytes and typed content.
// Content is either a []*schema.Instance or one of the primitive native
// buffers (spec.md §3); it is nil for a section whose (tag, version) the
// schema does not know.
type Section struct {
	Tag             string
	Version         uint32
	Offset          int
	Repetitions     int
	RawBytes        []byte
	Content         any
	Desc            *schema.StructureDescription // nil if unknown
	TimesReferenced int
}

// padTo16 returns n rounded up to the next multiple of Alignment.
func padTo16(n int) int {
	if rem := n % Alignment; rem != 0 {
		return n + (Alignment - rem)
	}

	return n
}

// computeLengths derives each section's on-disk byte length from the
// sorted set of offsets plus indexOffset as the final boundary (spec.md
// §4.4 load step 3).
func computeLengths(offsets []int, indexOffset int) map[int]int {
	sorted := append([]int(nil), offsets...)
	sorted = append(sorted, indexOffset)
	sort.Ints(sorted)

	lengths := make(map[int]int, len(offsets))

	for i, off := range sorted[:len(sorted)-1] {
		if off == indexOffset {
			continue
		}

		lengths[off] = sorted[i+1] - off
	}

	return lengths
}

// decodeContent decodes a section's raw bytes into typed content. tag
// names a primitive (content becomes a native buffer) or a structure
// known to desc (content becomes a []*schema.Instance of length
// repetitions).
func decodeContent(tag string, desc *schema.StructureDescription, raw []byte, repetitions int, checkExpectedValue bool) (any, error) {
	if schema.IsPrimitiveName(tag) {
		elemSize, err := schema.PrimitiveElementSize(tag)
		if err != nil {
			return nil, err
		}

		want := repetitions * elemSize
		if want > len(raw) {
			return nil, fmt.Errorf("%w: primitive %q expects %d bytes (repetitions=%d), section has %d", errs.ErrShortRead, tag, want, repetitions, len(raw))
		}

		return schema.DecodePrimitive(tag, raw[:want])
	}

	instances := make([]*schema.Instance, repetitions)

	for i := range instances {
		start, end := i*desc.Size, (i+1)*desc.Size
		if end > len(raw) {
			return nil, fmt.Errorf("%w: structure %q repetition %d exceeds section length", errs.ErrShortRead, desc.Name(), i)
		}

		inst := schema.NewInstance(desc)
		if err := inst.ReadFrom(raw[start:end], checkExpectedValue); err != nil {
			return nil, err
		}

		instances[i] = inst
	}

	return instances, nil
}

// encodeContent is the inverse of decodeContent: it renders a section's
// typed content back into a padded, 16-byte-aligned byte buffer.
func encodeContent(tag string, desc *schema.StructureDescription, content any) ([]byte, error) {
	buf := bufpool.Get()
	defer bufpool.Put(buf)

	if schema.IsPrimitiveName(tag) {
		raw, err := schema.EncodePrimitive(tag, content)
		if err != nil {
			return nil, err
		}

		buf.Write(raw)
	} else {
		instances, ok := content.([]*schema.Instance)
		if !ok {
			return nil, fmt.Errorf("%w: structure %q expects []*Instance content, got %T", errs.ErrInvalidFieldType, tag, content)
		}

		tmp := make([]byte, desc.Size)
		for _, inst := range instances {
			for i := range tmp {
				tmp[i] = 0
			}

			if err := inst.WriteTo(tmp); err != nil {
				return nil, err
			}

			buf.Write(tmp)
		}
	}

	padded := padTo16(len(buf.B))
	buf.Pad(padded-len(buf.B), PadByte)

	out := make([]byte, len(buf.B))
	copy(out, buf.B)

	return out, nil
}
