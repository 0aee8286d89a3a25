package resolve

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidalforge/m3codec/schema"
)

const roundTripSchema = `<structures>
	<structure name="Reference">
		<versions><version number="0" size="12"/></versions>
		<fields>
			<field name="entries" type="uint32"/>
			<field name="index" type="uint32"/>
			<field name="flags" type="uint32"/>
		</fields>
	</structure>
	<structure name="MD34IndexEntry">
		<versions><version number="0" size="16"/></versions>
		<fields>
			<field name="tag" type="tag"/>
			<field name="offset" type="uint32"/>
			<field name="repetitions" type="uint32"/>
			<field name="version" type="uint32"/>
		</fields>
	</structure>
	<structure name="CHAR">
		<versions><version number="0" size="1"/></versions>
		<fields></fields>
	</structure>
	<structure name="BONE">
		<versions><version number="1" size="8"/></versions>
		<fields>
			<field name="name" type="tag"/>
			<field name="flags" type="uint32"/>
		</fields>
	</structure>
	<structure name="GROUP">
		<versions><version number="0" size="24"/></versions>
		<fields>
			<field name="label" type="Reference" refTo="CHAR"/>
			<field name="bones" type="Reference" refTo="BONE"/>
		</fields>
	</structure>
	<structure name="MD34">
		<versions><version number="11" size="24"/></versions>
		<fields>
			<field name="tag" type="tag"/>
			<field name="model" type="Reference" refTo="GROUP"/>
			<field name="indexOffset" type="uint32"/>
			<field name="indexSize" type="uint32"/>
		</fields>
	</structure>
</structures>`

func loadRoundTripRegistry(t *testing.T) *schema.Registry {
	t.Helper()

	reg, err := schema.LoadRegistry(strings.NewReader(roundTripSchema))
	require.NoError(t, err)

	return reg
}

func newBone(t *testing.T, reg *schema.Registry, name string, flags int64) *schema.Instance {
	t.Helper()

	hist, ok := reg.History("BONE")
	require.True(t, ok)
	desc, err := hist.Description(1)
	require.NoError(t, err)

	inst := schema.NewInstance(desc)
	inst.SetDefault()
	inst.Values[0] = name
	inst.Values[1] = flags

	return inst
}

func buildTestHeader(t *testing.T, reg *schema.Registry, bones []*schema.Instance) *schema.Instance {
	t.Helper()

	groupHist, ok := reg.History("GROUP")
	require.True(t, ok)
	groupDesc, err := groupHist.Description(0)
	require.NoError(t, err)

	group := schema.NewInstance(groupDesc)
	group.SetDefault()
	group.Values[0] = &schema.Resolved{Content: "skeleton"}
	group.Values[1] = &schema.Resolved{Content: bones}

	headerHist, ok := reg.History("MD34")
	require.True(t, ok)
	headerDesc, err := headerHist.Description(11)
	require.NoError(t, err)

	header := schema.NewInstance(headerDesc)
	header.SetDefault()
	header.Values[0] = "MD34"
	header.Values[1] = &schema.Resolved{Content: []*schema.Instance{group}}

	return header
}

func TestSaveLoadRoundTripWithReferences(t *testing.T) {
	reg := loadRoundTripRegistry(t)
	bones := []*schema.Instance{
		newBone(t, reg, "hip", 1),
		newBone(t, reg, "leg", 0),
	}
	header := buildTestHeader(t, reg, bones)

	data, err := Save(reg, header)
	require.NoError(t, err)

	result, err := Load(reg, data, false)
	require.NoError(t, err)
	assert.Empty(t, result.Orphans, "every section should be reachable from the header")

	i, ok := result.Header.Desc.FieldIndex("model")
	require.True(t, ok)
	resolved := result.Header.Values[i].(*schema.Resolved)
	group := resolved.Content.([]*schema.Instance)[0]

	labelIdx, ok := group.Desc.FieldIndex("label")
	require.True(t, ok)
	label := group.Values[labelIdx].(*schema.Resolved)
	assert.Equal(t, "skeleton", label.Content)

	bonesIdx, ok := group.Desc.FieldIndex("bones")
	require.True(t, ok)
	boneList := group.Values[bonesIdx].(*schema.Resolved).Content.([]*schema.Instance)
	require.Len(t, boneList, 2)
	assert.Equal(t, "hip", boneList[0].Values[0])
	assert.Equal(t, "leg", boneList[1].Values[0])
}

func TestLoadEmptyModelReferenceLeavesNoOrphans(t *testing.T) {
	reg := loadRoundTripRegistry(t)

	// A header whose model reference is empty leaves the GROUP/BONE
	// sections it would have pointed to entirely out of the file, so
	// there is nothing to orphan in this minimal case; instead exercise
	// the orphan path directly against a hand-built Table (see
	// table_test.go) since Save never emits unreachable sections.
	header := buildTestHeader(t, reg, nil)

	data, err := Save(reg, header)
	require.NoError(t, err)

	result, err := Load(reg, data, false)
	require.NoError(t, err)
	assert.Empty(t, result.Orphans)
}
