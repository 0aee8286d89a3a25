// Package schema interprets the M3 XML schema into structure histories,
// structure descriptions, and field descriptors, and provides the
// instance model bound to them.
package schema

// Field is the capability set every field descriptor implements (spec
// §2/§4.2): read-from-bytes, write-to-bytes, set-default, validate,
// introduce-index-reference, resolve-index-reference.
type Field interface {
	// Name is the field's schema name.
	Name() string

	// Size is the field's fixed byte span within its structure version.
	Size() int

	// ReadFrom decodes the field's value from a buffer exactly Size()
	// bytes long. When checkExpected is true, a decoded value that
	// disagrees with a schema-declared expected-value is an error.
	ReadFrom(buf []byte, checkExpected bool) (any, error)

	// WriteTo encodes v into a buffer exactly Size() bytes long.
	WriteTo(buf []byte, v any) error

	// SetDefault returns the field's zero/default value.
	SetDefault() any

	// Validate checks v against the field's type/range/shape invariants.
	// path identifies the field's location for error messages.
	Validate(path string, v any) error

	// IntroduceIndexReferences walks v (recursively through embedded
	// structures) and, for reference fields, asks alloc for a section
	// index for non-empty referents, returning the value to write
	// on disk (a RawReference in place of resolved content).
	IntroduceIndexReferences(v any, alloc IndexAllocator) (any, error)

	// ResolveIndexReferences walks v (recursively through embedded
	// structures) and, for reference fields holding a RawReference,
	// looks up the referenced section via lookup and substitutes its
	// resolved content.
	ResolveIndexReferences(v any, lookup SectionLookup) (any, error)
}

// IndexAllocator is implemented by the save-path reference resolver
// (package resolve). Allocate assigns content a section index, reusing
// an existing index when content shares identity with a previously
// allocated value. NextIndex reports the index that would be assigned
// next, without allocating a section — used for empty references, which
// get an index but no section (spec.md §4.5).
type IndexAllocator interface {
	Allocate(tag string, version uint32, content any, entries uint32) (index uint32, err error)
	NextIndex() uint32
}

// SectionLookup is implemented by the load-path reference resolver
// (package resolve). Resolve returns the referent section's tag,
// version, repetitions and already-decoded content; MarkReferenced
// increments the section's timesReferenced counter.
type SectionLookup interface {
	Resolve(index uint32) (tag string, version uint32, repetitions uint32, content any, err error)
	MarkReferenced(index uint32)
}

// RawReference is the on-disk shape of a reference record (spec.md §3,
// §6): 12 bytes, entries:u32, index:u32, flags:u32.
type RawReference struct {
	Entries uint32
	Index   uint32
	Flags   uint32
}

// Resolved is the in-memory value of a reference field once resolved
// (on load) or when prepared for save. Content holds the native value
// appropriate to the reference's kind: string (CHAR), []byte (U8__),
// []float32 (REAL), []int16/[]uint16/[]int32/[]uint32 (integer kinds),
// []*Instance (structure kind), or nil (kind-less/unknown references,
// which MUST be empty on save).
//
// Flags is preserved across load/save even though it carries no codec
// semantics (spec.md §3 "no semantic meaning enforced by the codec").
type Resolved struct {
	Content any
	Flags   uint32
}
