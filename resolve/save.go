package resolve

import (
	"github.com/tidalforge/m3codec/schema"
	"github.com/tidalforge/m3codec/section"
)

// Save introduces index references throughout header (and everything
// header transitively points to), then renders the whole file to bytes
// (spec.md §4.4 save steps 2-6). header's "model" field must already
// hold the root structure as a *schema.Resolved before calling Save.
// header itself becomes section 0 (original_source/m3.py's
// modelToSections seeds the header as its own first section before
// introducing references for its fields), so the on-disk index table
// ends up with an entry describing the header's own bytes, matching a
// real M3 file's layout.
func Save(reg *schema.Registry, header *schema.Instance) ([]byte, error) {
	maker := NewIndexMaker(reg)
	maker.SeedHeader(header)

	if err := header.IntroduceIndexReferences(maker); err != nil {
		return nil, err
	}

	return section.Save(reg, maker.Sections())
}
