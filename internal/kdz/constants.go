// Package kdz implements the outer KDZ container envelope: a small fixed
// header of named (offset, size) records pointing at components elsewhere
// in the file, one of which is the embedded DZ archive that the dz package
// decodes.
package kdz

// Header layout sizes and magics for the three KDZ header versions LG has
// shipped. V1 devices are pre-2014ish, V2 added 64-bit offsets, V3 added
// the FTM/SKU/suffix-map auxiliary record block used on newer devices.
const (
	V1HeaderSize = 1304
	V1Magic      = 0x50447932

	V2HeaderSize = 1320
	V2Magic      = 0x80253134

	V3HeaderSize = 1320
	V3Magic      = 0x25223824

	// ExtendedMemIDOffset is the fixed file offset the V3 extended memory
	// ID auxiliary record always lives at, independent of anything else
	// in the header.
	ExtendedMemIDOffset = 0x14738

	// dylibMarkerZero and dylibMarkerThree are the two accepted values of
	// the marker byte that separates the DLL and DYLIB records in V2/V3
	// headers. Some KDZ files use 0x03 here, older ones use 0x00.
	dylibMarkerZero  = 0x00
	dylibMarkerThree = 0x03

	// unknownRecordOffset is the fixed absolute offset of the trailing
	// unknown fourth record in both V2 and V3 headers. The V3 layout
	// looks like it should place this record relative to the dylib
	// record the way V2 does, but LG's own tooling reads it from this
	// fixed absolute offset for both versions.
	unknownRecordOffset = 825
)
