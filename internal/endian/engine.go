// Package endian provides the byte order engine used by every section
// and field codec. M3 files are little-endian only (spec.md §6), so this
// package is deliberately narrower than a general-purpose endian library:
// it exists to give every read/write call site the same engine value
// rather than scatter binary.LittleEndian literals through the codec.
package endian

import "encoding/binary"

// Engine combines ByteOrder and AppendByteOrder from encoding/binary into
// a single interface, satisfied by binary.LittleEndian.
type Engine interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// LE is the engine every M3 codec path uses.
var LE Engine = binary.LittleEndian
