package section

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidalforge/m3codec/errs"
	"github.com/tidalforge/m3codec/schema"
)

const fileTestSchema = `<structures>
	<structure name="MD34IndexEntry">
		<versions><version number="0" size="16"/></versions>
		<fields>
			<field name="tag" type="tag"/>
			<field name="offset" type="uint32"/>
			<field name="repetitions" type="uint32"/>
			<field name="version" type="uint32"/>
		</fields>
	</structure>
	<structure name="DATA">
		<versions><version number="0" size="4"/></versions>
		<fields>
			<field name="value" type="uint32"/>
		</fields>
	</structure>
	<structure name="MD34">
		<versions><version number="11" size="12"/></versions>
		<fields>
			<field name="tag" type="tag"/>
			<field name="indexOffset" type="uint32"/>
			<field name="indexSize" type="uint32"/>
		</fields>
	</structure>
</structures>`

func loadFileTestRegistry(t *testing.T) *schema.Registry {
	t.Helper()

	reg, err := schema.LoadRegistry(strings.NewReader(fileTestSchema))
	require.NoError(t, err)

	return reg
}

func newHeaderSection(t *testing.T, reg *schema.Registry) *Section {
	t.Helper()

	hist, ok := reg.History(HeaderStructureName)
	require.True(t, ok)

	desc, err := hist.Description(HeaderVersion)
	require.NoError(t, err)

	inst := schema.NewInstance(desc)
	inst.SetDefault()
	inst.Values[0] = HeaderStructureName

	return &Section{Tag: HeaderStructureName, Version: HeaderVersion, Repetitions: 1, Desc: desc, Content: []*schema.Instance{inst}}
}

func newDataSection(t *testing.T, reg *schema.Registry, value int64) *Section {
	t.Helper()

	hist, ok := reg.History("DATA")
	require.True(t, ok)

	desc, err := hist.Description(0)
	require.NoError(t, err)

	inst := schema.NewInstance(desc)
	inst.SetDefault()
	inst.Values[0] = value

	return &Section{Tag: "DATA", Version: 0, Repetitions: 1, Desc: desc, Content: []*schema.Instance{inst}}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	reg := loadFileTestRegistry(t)

	header := newHeaderSection(t, reg)
	data := newDataSection(t, reg, 42)

	out, err := Save(reg, []*Section{header, data})
	require.NoError(t, err)

	// header payload (12B -> padded to 16) + data payload (4B -> padded
	// to 16) + one 16-byte index entry per section.
	assert.Len(t, out, 16+16+2*16)

	sections, err := Load(reg, out, false)
	require.NoError(t, err)
	require.Len(t, sections, 2)

	headerList := sections[0].Content.([]*schema.Instance)
	require.Len(t, headerList, 1)
	assert.Equal(t, "MD34", headerList[0].Values[0])
	assert.Equal(t, int64(32), headerList[0].Values[1]) // indexOffset
	assert.Equal(t, int64(2), headerList[0].Values[2])  // indexSize

	dataList := sections[1].Content.([]*schema.Instance)
	require.Len(t, dataList, 1)
	assert.Equal(t, int64(42), dataList[0].Values[0])
}

func TestSaveRejectsMissingHeaderSection(t *testing.T) {
	reg := loadFileTestRegistry(t)
	data := newDataSection(t, reg, 1)

	_, err := Save(reg, []*Section{data})
	assert.Error(t, err)
}

func TestSaveRejectsEmptySections(t *testing.T) {
	reg := loadFileTestRegistry(t)
	_, err := Save(reg, nil)
	assert.Error(t, err)
}

// buildRawFile hand-assembles a minimal file: header section 0 plus one
// entry for an undeclared tag, to exercise the unknown-section path
// without going through Save (which only ever writes known sections).
func buildRawFile(t *testing.T, reg *schema.Registry, unknownTag string, unknownVersion uint32, repeatEntry bool) []byte {
	t.Helper()

	header := newHeaderSection(t, reg)
	headerPayload := make([]byte, 16)
	headerList := header.Content.([]*schema.Instance)
	headerList[0].Values[1] = int64(32) // indexOffset, filled below
	headerList[0].Values[2] = int64(1)
	require.NoError(t, headerList[0].WriteTo(headerPayload[:12]))
	for i := 12; i < 16; i++ {
		headerPayload[i] = PadByte
	}

	// 16 bytes, already 16-byte aligned, no trailing pad: guessedBytesPerEntry
	// for 4 repetitions should come out to exactly 4.
	unknownPayload := []byte{
		0x01, 0x02, 0x03, 0x04,
		0x05, 0x06, 0x07, 0x08,
		0x09, 0x0A, 0x0B, 0x0C,
		0x0D, 0x0E, 0x0F, 0x10,
	}

	entryHist, ok := reg.History(IndexEntryStructureName)
	require.True(t, ok)

	entryDesc, err := entryHist.Description(IndexEntryVersion)
	require.NoError(t, err)

	buildEntry := func(tag string, offset, repetitions int, version uint32) []byte {
		inst := schema.NewInstance(entryDesc)
		inst.SetDefault()
		inst.Values[0] = tag
		inst.Values[1] = int64(offset)
		inst.Values[2] = int64(repetitions)
		inst.Values[3] = int64(version)

		buf := make([]byte, entryDesc.Size)
		require.NoError(t, inst.WriteTo(buf))

		return buf
	}

	var out []byte
	out = append(out, headerPayload...)
	out = append(out, unknownPayload...)
	out = append(out, buildEntry(HeaderStructureName, 0, 1, HeaderVersion)...)
	out = append(out, buildEntry(unknownTag, 16, 4, unknownVersion)...)

	if repeatEntry {
		out = append(out, buildEntry(unknownTag, 16, 4, unknownVersion)...)
	}

	return out
}

func TestLoadUnknownSectionDiagnostic(t *testing.T) {
	reg := loadFileTestRegistry(t)
	data := buildRawFile(t, reg, "XTRA", 2, false)

	// indexSize is 1 in the header but the file actually carries two
	// entries once the unknown one is appended; patch indexSize to 2.
	sections, err := Load(reg, patchIndexSize(t, reg, data, 2), false)

	require.Error(t, err)
	require.Len(t, sections, 2)

	var unknownErr *errs.UnknownSectionError
	require.True(t, errors.As(err, &unknownErr))
	assert.Equal(t, "XTRA", unknownErr.Tag)
	assert.Equal(t, 4, unknownErr.GuessedBytesPerEntry)
}

func TestLoadDedupesRepeatedUnknownSectionDiagnostics(t *testing.T) {
	reg := loadFileTestRegistry(t)
	data := buildRawFile(t, reg, "XTRA", 2, true)
	data = patchIndexSize(t, reg, data, 3)

	_, err := Load(reg, data, false)
	require.Error(t, err)

	joined, ok := err.(interface{ Unwrap() []error })
	require.True(t, ok)
	assert.Len(t, joined.Unwrap(), 1, "repeated (tag, version) should only be reported once")
}

// patchIndexSize rewrites the header's indexSize field in-place within
// an already-assembled file image (buildRawFile always leaves it at 1).
func patchIndexSize(t *testing.T, reg *schema.Registry, data []byte, size int) []byte {
	t.Helper()

	hist, ok := reg.History(HeaderStructureName)
	require.True(t, ok)

	desc, err := hist.Description(HeaderVersion)
	require.NoError(t, err)

	inst := schema.NewInstance(desc)
	require.NoError(t, inst.ReadFrom(data[:desc.Size], false))
	inst.Values[2] = int64(size)

	out := append([]byte(nil), data...)
	require.NoError(t, inst.WriteTo(out[:desc.Size]))

	return out
}
