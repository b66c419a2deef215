// Package codec builds and parses the sample-description extension
// boxes (avcC, hvcC, dac3, dec3, ddts, alac, esds) that record a
// track's codec-specific configuration.
//
// Each codec has a descriptor type (AvcC, HvcC, Ac3SpecificBox, ...)
// that encodes its Go fields into the box's on-disk byte layout. Only
// AlacSpecificBox and VC1Config also decode a body back into fields;
// AvcC, HvcC, Ac3SpecificBox, EAC3SpecificBox and DTSSpecificBox have
// no Unmarshal. None of these types implement bmff.ImmutableBox directly
// (their box-header framing is handled by the caller, since they are
// always nested inside a sample entry box such as avc1/hev1/mp4a); they
// expose Marshal (and, where present, Unmarshal) of their own body only.
package codec
