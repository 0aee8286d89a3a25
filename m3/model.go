// Package m3 provides a high-level, schema-driven codec for M3 model
// files: the binary format used by StarCraft II and Heroes of the Storm
// model assets, built from a versioned structure schema, a section
// table, and an identity-keyed reference graph.
//
// # Core Features
//
//   - Schema-driven field layout: every structure's fields, sizes, and
//     version history come from an XML schema, not hardcoded Go structs
//   - Section-level framing: MD34 header, index table, 16-byte padded
//     payloads
//   - Reference resolution with identity-preserving save-path memoization
//   - Optional expected-value checking during decode
//
// # Basic Usage
//
// Loading a model:
//
//	reg, err := m3.LoadSchema(schemaFile)
//	model, err := m3.LoadModel(reg, path, m3.WithCheckExpectedValue(true))
//	root := model.Root()
//
// Saving a model back out:
//
//	err := model.Save(path)
//
// # Package Structure
//
// This package provides convenient top-level wrappers around schema,
// section, and resolve. For fine-grained control — custom structure
// walks, direct section access, bit-level field inspection — use those
// packages directly.
package m3

import (
	"errors"
	"io"
	"os"

	"github.com/tidalforge/m3codec/errs"
	"github.com/tidalforge/m3codec/internal/options"
	"github.com/tidalforge/m3codec/resolve"
	"github.com/tidalforge/m3codec/schema"
	"github.com/tidalforge/m3codec/section"
)

// RootFieldName is the MD34 header field holding the reference to the
// file's single root structure.
const RootFieldName = "model"

// headerFieldTag is the MD34 header's own tag field, set explicitly to
// "MD34" on a freshly constructed model (SetDefault leaves tag fields
// blank).
const headerFieldTag = "tag"

// config holds Load/Save tunables assembled from functional options.
type config struct {
	checkExpectedValue bool
}

// Option configures a Load or Save call.
type Option = options.Option[*config]

// WithCheckExpectedValue enables or disables expected-value checking
// during decode: a field whose decoded value disagrees with its
// schema-declared expected value becomes an error rather than being
// accepted silently.
func WithCheckExpectedValue(v bool) Option {
	return options.NoError(func(c *config) { c.checkExpectedValue = v })
}

func newConfig(opts []Option) (*config, error) {
	c := &config{}
	if err := options.Apply(c, opts...); err != nil {
		return nil, err
	}

	return c, nil
}

// LoadSchema parses an M3 XML schema document into a Registry.
func LoadSchema(r io.Reader) (*schema.Registry, error) {
	return schema.LoadRegistry(r)
}

// Model is a loaded M3 file: its header, its root structure instance,
// and the underlying section table. A Model passed to Save is
// invalidated — reference introduction mutates header and section
// content in place, so reusing it risks double-allocating indices.
type Model struct {
	reg         *schema.Registry
	header      *schema.Instance
	sections    []*section.Section
	orphans     []error
	invalidated bool
}

// LoadModel reads path, parses its MD34 header and section table, and
// resolves every reference field against reg. A section that survives
// resolution unreferenced (any index ≥1 with a zero reference count) is
// a fatal OrphanSectionError (spec.md §4.4 load step 6, §6): the
// diagnostics resolve.Load accumulated for every orphan are joined into
// the returned error.
func LoadModel(reg *schema.Registry, path string, opts ...Option) (*Model, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	result, err := resolve.Load(reg, data, cfg.checkExpectedValue)
	if err != nil {
		return nil, err
	}

	if len(result.Orphans) > 0 {
		return nil, errors.Join(result.Orphans...)
	}

	return &Model{reg: reg, header: result.Header, sections: result.Sections}, nil
}

// Root returns the file's root structure instance, or nil if the header
// has no model reference or it resolved to an empty list.
func (m *Model) Root() *schema.Instance {
	i, ok := m.header.Desc.FieldIndex(RootFieldName)
	if !ok {
		return nil
	}

	resolved, ok := m.header.Values[i].(*schema.Resolved)
	if !ok {
		return nil
	}

	list, ok := resolved.Content.([]*schema.Instance)
	if !ok || len(list) == 0 {
		return nil
	}

	return list[0]
}

// Sections returns every section parsed from the file, in file order.
func (m *Model) Sections() []*section.Section { return m.sections }

// Orphans always returns empty: LoadModel itself fails with an
// OrphanSectionError when any section goes unreferenced, so a
// successfully constructed Model never carries one. Kept as a stable
// accessor for callers that inspected orphans before this became a
// load-time error.
func (m *Model) Orphans() []error { return m.orphans }

// Validate recursively checks the root structure's field invariants.
func (m *Model) Validate() error {
	root := m.Root()
	if root == nil {
		return nil
	}

	return root.Validate("model")
}

// Validate recursively checks instance's field invariants, rooted at
// label (spec.md §4.6, §6 standalone "validate" entry point). Callers
// building or editing an Instance outside of a Model use this directly
// instead of constructing a Model first.
func Validate(instance *schema.Instance, label string) error {
	if instance == nil {
		return nil
	}

	return instance.Validate(label)
}

// Save validates the root structure, then renders the model back to
// path (spec.md §4.4 save step 1, §6). Save mutates the model's header
// and section content in place (reference introduction replaces
// resolved content with allocated indices) and invalidates the model;
// call LoadModel again before attempting a second Save.
func (m *Model) Save(path string) error {
	if m.invalidated {
		return errs.ErrModelInvalidated
	}

	if err := m.Validate(); err != nil {
		return err
	}

	data, err := resolve.Save(m.reg, m.header)
	if err != nil {
		return err
	}

	m.invalidated = true

	return os.WriteFile(path, data, 0o644)
}

// NewModel builds an empty Model around a freshly constructed MD34
// header (version section.HeaderVersion) whose model field points at root.
// root's structure name becomes the header's root reference tag.
func NewModel(reg *schema.Registry, root *schema.Instance) (*Model, error) {
	headerHist, ok := reg.History(section.HeaderStructureName)
	if !ok {
		return nil, &errs.SchemaError{Err: errs.ErrUnresolvedRef}
	}

	headerDesc, err := headerHist.Description(section.HeaderVersion)
	if err != nil {
		return nil, err
	}

	header := schema.NewInstance(headerDesc)
	header.SetDefault()

	tagIdx, ok := header.Desc.FieldIndex(headerFieldTag)
	if ok {
		header.Values[tagIdx] = section.HeaderStructureName
	}

	i, ok := header.Desc.FieldIndex(RootFieldName)
	if !ok {
		return nil, &errs.SchemaError{Structure: headerDesc.Name(), Field: RootFieldName, Err: errs.ErrMissingAttribute}
	}

	header.Values[i] = &schema.Resolved{Content: []*schema.Instance{root}}

	return &Model{reg: reg, header: header}, nil
}

// NewInstance allocates a zero-valued instance of name at its newest
// declared version, for callers building a model from scratch.
func NewInstance(reg *schema.Registry, name string) (*schema.Instance, error) {
	hist, ok := reg.History(name)
	if !ok {
		return nil, &errs.SchemaError{Structure: name, Err: errs.ErrUnresolvedRef}
	}

	desc, err := hist.Description(hist.NewestVersion())
	if err != nil {
		return nil, err
	}

	inst := schema.NewInstance(desc)
	inst.SetDefault()

	return inst, nil
}
