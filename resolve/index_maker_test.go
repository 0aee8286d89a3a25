package resolve

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidalforge/m3codec/schema"
)

const indexMakerTestSchema = `<structures>
	<structure name="MD34IndexEntry">
		<versions><version number="0" size="16"/></versions>
		<fields>
			<field name="tag" type="tag"/>
			<field name="offset" type="uint32"/>
			<field name="repetitions" type="uint32"/>
			<field name="version" type="uint32"/>
		</fields>
	</structure>
	<structure name="BONE">
		<versions><version number="1" size="4"/></versions>
		<fields>
			<field name="flags" type="uint32"/>
		</fields>
	</structure>
	<structure name="MD34">
		<versions><version number="11" size="4"/></versions>
		<fields>
			<field name="tag" type="tag"/>
		</fields>
	</structure>
</structures>`

func loadIndexMakerRegistry(t *testing.T) *schema.Registry {
	t.Helper()

	reg, err := schema.LoadRegistry(strings.NewReader(indexMakerTestSchema))
	require.NoError(t, err)

	return reg
}

func boneInstance(t *testing.T, reg *schema.Registry) *schema.Instance {
	t.Helper()

	hist, ok := reg.History("BONE")
	require.True(t, ok)

	desc, err := hist.Description(1)
	require.NoError(t, err)

	inst := schema.NewInstance(desc)
	inst.SetDefault()

	return inst
}

func TestSeedHeaderReservesIndexZero(t *testing.T) {
	reg := loadIndexMakerRegistry(t)
	maker := NewIndexMaker(reg)

	hist, ok := reg.History("MD34")
	require.True(t, ok)
	desc, err := hist.Description(11)
	require.NoError(t, err)

	header := schema.NewInstance(desc)
	header.SetDefault()

	maker.SeedHeader(header)

	assert.Equal(t, uint32(1), maker.NextIndex())
	require.Len(t, maker.Sections(), 1)
	assert.Equal(t, "MD34", maker.Sections()[0].Tag)
}

func TestAllocateReusesIdentity(t *testing.T) {
	reg := loadIndexMakerRegistry(t)
	maker := NewIndexMaker(reg)

	list := []*schema.Instance{boneInstance(t, reg)}

	idx1, err := maker.Allocate("BONE", 1, list, 1)
	require.NoError(t, err)

	idx2, err := maker.Allocate("BONE", 1, list, 1)
	require.NoError(t, err)

	assert.Equal(t, idx1, idx2)
	assert.Len(t, maker.Sections(), 1, "same identity must not allocate a second section")
}

func TestAllocateDistinctContentGetsDistinctIndex(t *testing.T) {
	reg := loadIndexMakerRegistry(t)
	maker := NewIndexMaker(reg)

	listA := []*schema.Instance{boneInstance(t, reg)}
	listB := []*schema.Instance{boneInstance(t, reg)}

	idxA, err := maker.Allocate("BONE", 1, listA, 1)
	require.NoError(t, err)

	idxB, err := maker.Allocate("BONE", 1, listB, 1)
	require.NoError(t, err)

	assert.NotEqual(t, idxA, idxB)
}

func TestAllocateUnknownStructureErrors(t *testing.T) {
	reg := loadIndexMakerRegistry(t)
	maker := NewIndexMaker(reg)

	_, err := maker.Allocate("NOPE", 0, []*schema.Instance{}, 1)
	assert.Error(t, err)
}

func TestNextIndexPeeksWithoutAllocating(t *testing.T) {
	reg := loadIndexMakerRegistry(t)
	maker := NewIndexMaker(reg)

	before := maker.NextIndex()
	assert.Equal(t, before, maker.NextIndex(), "peeking twice must not advance the counter")
}
