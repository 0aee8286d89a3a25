package resolve

import (
	"errors"
	"fmt"

	"github.com/tidalforge/m3codec/errs"
	"github.com/tidalforge/m3codec/schema"
	"github.com/tidalforge/m3codec/section"
)

// LoadResult is the outcome of a full load: the parsed header, every
// section (resolved), and any orphan sections found once resolution
// settles. Load itself doesn't fail on a non-empty Orphans — the
// diagnostics must be gathered in full before the terminal failure
// (spec.md §7) — but a caller implementing §4.4 load step 6 / §6's
// loadModel contract MUST treat a non-empty Orphans as fatal (see
// m3.LoadModel).
type LoadResult struct {
	Header   *schema.Instance
	Sections []*section.Section
	Orphans  []error
}

// Load parses data's header and section table, then resolves every
// reference field across the whole file (spec.md §4.4 load steps 1-5).
// A non-nil error from section.Load for unknown sections is preserved
// alongside any successfully parsed sections and orphan diagnostics.
func Load(reg *schema.Registry, data []byte, checkExpectedValue bool) (*LoadResult, error) {
	sections, loadErr := section.Load(reg, data, checkExpectedValue)
	if loadErr != nil && sections == nil {
		return nil, loadErr
	}

	if len(sections) == 0 || sections[0].Tag != section.HeaderStructureName {
		return nil, errors.Join(loadErr, fmt.Errorf("%w: sections[0] must be the %q header section", errs.ErrInvalidFieldType, section.HeaderStructureName))
	}

	headerList, ok := sections[0].Content.([]*schema.Instance)
	if !ok || len(headerList) != 1 {
		return nil, errors.Join(loadErr, fmt.Errorf("%w: header section content must be a single instance", errs.ErrInvalidFieldType))
	}

	header := headerList[0]

	table := NewTable(sections)
	if err := table.ResolveAll(header); err != nil {
		return nil, errors.Join(loadErr, err)
	}

	return &LoadResult{Header: header, Sections: sections, Orphans: table.Orphans()}, loadErr
}
