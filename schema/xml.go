package schema

import (
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidalforge/m3codec/errs"
)

// The XML schema reader is a single recursive-descent pass over the DOM
// Go's stdlib encoding/xml decodes for us (spec.md §1 treats the XML
// parser itself as an out-of-scope external collaborator; the original
// source's composable visitor pipeline collapses cleanly into one pass
// since its stages are tightly ordered and data-coupled, per spec.md §9
// "Visitor pipeline for schema load").

type xmlStructures struct {
	XMLName    xml.Name       `xml:"structures"`
	Structures []xmlStructure `xml:"structure"`
}

type xmlStructure struct {
	Name     string      `xml:"name,attr"`
	Versions []xmlVer    `xml:"versions>version"`
	Fields   []xmlField  `xml:"fields>field"`
}

type xmlVer struct {
	Number uint32 `xml:"number,attr"`
	Size   int    `xml:"size,attr"`
}

type xmlField struct {
	Name          string   `xml:"name,attr"`
	Type          string   `xml:"type,attr"`
	RefTo         string   `xml:"refTo,attr"`
	Size          string   `xml:"size,attr"`
	ExpectedValue string   `xml:"expected-value,attr"`
	DefaultValue  string   `xml:"default-value,attr"`
	SinceVersion  string   `xml:"since-version,attr"`
	TillVersion   string   `xml:"till-version,attr"`
	Bits          []xmlBit `xml:"bits>bit"`
}

type xmlBit struct {
	Name string `xml:"name,attr"`
	Mask string `xml:"mask,attr"`
}

var typedStructureRe = regexp.MustCompile(`^(\w+)V(\d+)$`)

// LoadRegistry parses an XML schema document into a Registry, resolving
// every field's declared type into a concrete Field descriptor in a
// single pass over the structures in document order (forward references
// are rejected, spec.md §4.1).
func LoadRegistry(r io.Reader) (*Registry, error) {
	var doc xmlStructures
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, &errs.SchemaError{Err: fmt.Errorf("parsing schema xml: %w", err)}
	}

	reg := &Registry{histories: make(map[string]*StructureHistory)}

	for _, xs := range doc.Structures {
		hist, err := buildHistory(reg, xs)
		if err != nil {
			return nil, err
		}

		reg.histories[hist.Name] = hist
		reg.order = append(reg.order, hist.Name)
	}

	return reg, nil
}

func buildHistory(reg *Registry, xs xmlStructure) (*StructureHistory, error) {
	if xs.Name == "" {
		return nil, &errs.SchemaError{Err: fmt.Errorf("%w: structure", errs.ErrMissingAttribute)}
	}

	hist := newStructureHistory(xs.Name)

	for _, xv := range xs.Versions {
		if _, dup := hist.sizes[xv.Number]; dup {
			return nil, &errs.SchemaError{Structure: xs.Name, Err: fmt.Errorf("%w: version %d", errs.ErrDuplicateVersion, xv.Number)}
		}

		hist.sizes[xv.Number] = xv.Size
	}

	for _, xf := range xs.Fields {
		fe, err := buildFieldEntry(reg, xs.Name, xf)
		if err != nil {
			return nil, err
		}

		hist.fields = append(hist.fields, fe)
	}

	return hist, nil
}

func parseVersionAttr(s string) (uint32, bool, error) {
	if s == "" {
		return 0, false, nil
	}

	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, false, fmt.Errorf("invalid version %q: %w", s, err)
	}

	return uint32(n), true, nil
}

func buildFieldEntry(reg *Registry, structName string, xf xmlField) (*fieldEntry, error) {
	if xf.Name == "" {
		return nil, &errs.SchemaError{Structure: structName, Err: fmt.Errorf("%w: field name", errs.ErrMissingAttribute)}
	}

	since, _, err := parseVersionAttr(xf.SinceVersion)
	if err != nil {
		return nil, &errs.SchemaError{Structure: structName, Field: xf.Name, Err: err}
	}

	var till *uint32
	if v, ok, err := parseVersionAttr(xf.TillVersion); err != nil {
		return nil, &errs.SchemaError{Structure: structName, Field: xf.Name, Err: err}
	} else if ok {
		till = &v
	}

	field, err := buildField(reg, structName, xf)
	if err != nil {
		return nil, err
	}

	return &fieldEntry{field: field, sinceVersion: since, tillVersion: till}, nil
}

func buildField(reg *Registry, structName string, xf xmlField) (Field, error) {
	switch {
	case xf.Type == "tag":
		return newTagField(xf.Name), nil

	case xf.Type == "uint8" || xf.Type == "int8" || xf.Type == "uint16" || xf.Type == "int16" || xf.Type == "uint32" || xf.Type == "int32":
		return buildIntField(structName, xf)

	case xf.Type == "float":
		return buildFloatField(structName, xf)

	case xf.Type == "fixed8":
		return buildFixed8Field(structName, xf)

	case xf.Type == "":
		return buildUnknownBytesField(structName, xf)

	default:
		return buildStructuredField(reg, structName, xf)
	}
}

func intTypeWidth(t string) (size int, signed bool) {
	switch t {
	case "uint8":
		return 1, false
	case "int8":
		return 1, true
	case "uint16":
		return 2, false
	case "int16":
		return 2, true
	case "uint32":
		return 4, false
	case "int32":
		return 4, true
	}

	return 0, false
}

func parseIntLiteral(s string) (int64, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		n, err := strconv.ParseUint(s[2:], 16, 64)
		return int64(n), err
	}

	return strconv.ParseInt(s, 10, 64)
}

func buildIntField(structName string, xf xmlField) (Field, error) {
	size, signed := intTypeWidth(xf.Type)

	var expected *int64

	if xf.ExpectedValue != "" {
		v, err := parseIntLiteral(xf.ExpectedValue)
		if err != nil {
			return nil, &errs.SchemaError{Structure: structName, Field: xf.Name, Err: err}
		}

		expected = &v
	}

	def := int64(0)
	if xf.DefaultValue != "" {
		v, err := parseIntLiteral(xf.DefaultValue)
		if err != nil {
			return nil, &errs.SchemaError{Structure: structName, Field: xf.Name, Err: err}
		}

		def = v
	} else if expected != nil {
		def = *expected
	}

	bits := make(map[string]uint64, len(xf.Bits))

	maskRe := regexp.MustCompile(`^0x[0-9a-fA-F]+$`)
	for _, b := range xf.Bits {
		if !maskRe.MatchString(b.Mask) {
			return nil, &errs.SchemaError{Structure: structName, Field: xf.Name, Err: fmt.Errorf("%w: %q", errs.ErrInvalidMaskLiteral, b.Mask)}
		}

		m, err := strconv.ParseUint(b.Mask[2:], 16, 64)
		if err != nil {
			return nil, &errs.SchemaError{Structure: structName, Field: xf.Name, Err: fmt.Errorf("%w: %q", errs.ErrInvalidMaskLiteral, b.Mask)}
		}

		bits[b.Name] = m
	}

	return newIntField(xf.Name, size, signed, expected, def, bits), nil
}

func buildFloatField(structName string, xf xmlField) (Field, error) {
	var expected *float32

	if xf.ExpectedValue != "" {
		v, err := strconv.ParseFloat(xf.ExpectedValue, 32)
		if err != nil {
			return nil, &errs.SchemaError{Structure: structName, Field: xf.Name, Err: err}
		}

		f32 := float32(v)
		expected = &f32
	}

	def := float32(0)
	if xf.DefaultValue != "" {
		v, err := strconv.ParseFloat(xf.DefaultValue, 32)
		if err != nil {
			return nil, &errs.SchemaError{Structure: structName, Field: xf.Name, Err: err}
		}

		def = float32(v)
	} else if expected != nil {
		def = *expected
	}

	return newFloatField(xf.Name, expected, def), nil
}

func buildFixed8Field(structName string, xf xmlField) (Field, error) {
	var expected *byte

	if xf.ExpectedValue != "" {
		v, err := strconv.ParseFloat(xf.ExpectedValue, 32)
		if err != nil {
			return nil, &errs.SchemaError{Structure: structName, Field: xf.Name, Err: err}
		}

		b := encodeFixed8(float32(v))
		expected = &b
	}

	def := float32(0)
	if xf.DefaultValue != "" {
		v, err := strconv.ParseFloat(xf.DefaultValue, 32)
		if err != nil {
			return nil, &errs.SchemaError{Structure: structName, Field: xf.Name, Err: err}
		}

		def = float32(v)
	} else if expected != nil {
		def = decodeFixed8(*expected)
	}

	return newFixed8Field(xf.Name, expected, def), nil
}

func parseHexBytes(s string, size int) ([]byte, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return nil, fmt.Errorf("expected a 0x-prefixed hex literal, got %q", s)
	}

	hexDigits := s[2:]
	if len(hexDigits) != size*2 {
		return nil, fmt.Errorf("hex literal %q does not match declared size %d", s, size)
	}

	out := make([]byte, size)
	for i := range out {
		n, err := strconv.ParseUint(hexDigits[i*2:i*2+2], 16, 8)
		if err != nil {
			return nil, err
		}

		out[i] = byte(n)
	}

	return out, nil
}

func buildUnknownBytesField(structName string, xf xmlField) (Field, error) {
	if xf.Size == "" {
		return nil, &errs.SchemaError{Structure: structName, Field: xf.Name, Err: fmt.Errorf("%w: size", errs.ErrMissingAttribute)}
	}

	size, err := strconv.Atoi(xf.Size)
	if err != nil {
		return nil, &errs.SchemaError{Structure: structName, Field: xf.Name, Err: err}
	}

	var expected, def []byte

	if xf.ExpectedValue != "" {
		expected, err = parseHexBytes(xf.ExpectedValue, size)
		if err != nil {
			return nil, &errs.SchemaError{Structure: structName, Field: xf.Name, Err: err}
		}
	}

	if xf.DefaultValue != "" {
		def, err = parseHexBytes(xf.DefaultValue, size)
		if err != nil {
			return nil, &errs.SchemaError{Structure: structName, Field: xf.Name, Err: err}
		}
	} else if expected != nil {
		def = expected
	}

	return newUnknownBytesField(xf.Name, size, expected, def), nil
}

// buildStructuredField handles every `type` that names a structure:
// either a bare structure name (version 0 implied) or `NameV#`. If the
// named structure is "Reference" or "SmallReference" this produces a
// ReferenceField (sub-variant chosen by refTo); otherwise it's an
// EmbeddedStructureField.
func buildStructuredField(reg *Registry, structName string, xf xmlField) (Field, error) {
	name, version := xf.Type, uint32(0)
	if m := typedStructureRe.FindStringSubmatch(xf.Type); m != nil {
		name = m[1]

		v, err := strconv.ParseUint(m[2], 10, 32)
		if err != nil {
			return nil, &errs.SchemaError{Structure: structName, Field: xf.Name, Err: err}
		}

		version = uint32(v)
	}

	hist, ok := reg.History(name)
	if !ok {
		return nil, &errs.SchemaError{Structure: structName, Field: xf.Name, Err: fmt.Errorf("%w: %q", errs.ErrForwardReference, name)}
	}

	if name == "Reference" || name == "SmallReference" {
		return buildReferenceField(reg, structName, xf, hist, version)
	}

	desc, err := hist.Description(version)
	if err != nil {
		return nil, err
	}

	return newEmbeddedStructureField(xf.Name, desc), nil
}

func buildReferenceField(reg *Registry, structName string, xf xmlField, recordHist *StructureHistory, version uint32) (Field, error) {
	recordDesc, err := recordHist.Description(version)
	if err != nil {
		return nil, err
	}

	if xf.RefTo == "" {
		return newReferenceField(xf.Name, refNone, "", recordDesc), nil
	}

	switch xf.RefTo {
	case "CHAR":
		return newReferenceField(xf.Name, refChar, "", recordDesc), nil
	case "U8__":
		return newReferenceField(xf.Name, refByte, "", recordDesc), nil
	case "REAL":
		return newReferenceField(xf.Name, refReal, "", recordDesc), nil
	case "I16_":
		return newReferenceField(xf.Name, refI16, "", recordDesc), nil
	case "U16_":
		return newReferenceField(xf.Name, refU16, "", recordDesc), nil
	case "I32_":
		return newReferenceField(xf.Name, refI32, "", recordDesc), nil
	case "U32_":
		return newReferenceField(xf.Name, refU32, "", recordDesc), nil
	default:
		if _, ok := reg.History(xf.RefTo); !ok {
			return nil, &errs.SchemaError{Structure: structName, Field: xf.Name, Err: fmt.Errorf("%w: refTo %q", errs.ErrUnresolvedRef, xf.RefTo)}
		}

		return newReferenceField(xf.Name, refStructure, xf.RefTo, recordDesc), nil
	}
}
