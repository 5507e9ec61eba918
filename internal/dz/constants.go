// Package dz implements the DZ partition archive embedded inside a KDZ
// file: a header describing the firmware build, followed by a run of
// compressed partition chunks grouped by hardware partition and partition
// name.
package dz

const (
	// Magic identifies a valid DZ main header.
	Magic = 0x74189632
	// PartMagic identifies a valid chunk header.
	PartMagic = 0x78951230

	modelNameLen      = 32
	swVersionLen      = 128
	chunkHdrsHashLen  = 16
	compressionLen    = 9
	dataHashLen       = 16
	swfvLen           = 50
	buildTypeLen      = 16
	androidVerLen     = 10
	memorySizeLen     = 11
	signedSecurityLen = 4
	supportedMemLen   = 64
	targetProductLen  = 24
	operatorCodeLen   = 24
	mainPaddingLen    = 44

	chunkPartNameLen  = 32
	chunkNameLen      = 64
	chunkHashLen      = 16
	chunkV1PaddingLen = 356
)
