// Package segtest builds minimal ISO-BMFF segment payloads for tests.
package segtest

import "encoding/binary"

// Box wraps payload in a box of the given four-character type.
func Box(boxType string, payload []byte) []byte {
	out := make([]byte, 8, 8+len(payload))
	binary.BigEndian.PutUint32(out, uint32(8+len(payload)))
	copy(out[4:], boxType)
	return append(out, payload...)
}

// Sidx builds a version-0 segment index with one 12-byte reference entry per
// duration.
func Sidx(earliestPresentationTime, timescale uint32, durations []uint32) []byte {
	payload := make([]byte, 0, 24+12*len(durations))
	payload = append(payload, 0, 0, 0, 0) // version 0, flags
	payload = be32(payload, 1)            // reference_ID
	payload = be32(payload, timescale)
	payload = be32(payload, earliestPresentationTime)
	payload = be32(payload, 0) // first_offset
	payload = append(payload, 0, 0)
	payload = append(payload, byte(len(durations)>>8), byte(len(durations)))
	for _, d := range durations {
		payload = be32(payload, 0x80000000) // reference type and size
		payload = be32(payload, d)
		payload = be32(payload, 0x90000000) // SAP fields
	}
	return Box("sidx", payload)
}

// Sidx64 builds a version-1 segment index with 64-bit time fields.
func Sidx64(earliestPresentationTime uint64, timescale uint32, durations []uint32) []byte {
	payload := make([]byte, 0, 32+12*len(durations))
	payload = append(payload, 1, 0, 0, 0)
	payload = be32(payload, 1)
	payload = be32(payload, timescale)
	payload = be64(payload, earliestPresentationTime)
	payload = be64(payload, 0)
	payload = append(payload, 0, 0)
	payload = append(payload, byte(len(durations)>>8), byte(len(durations)))
	for _, d := range durations {
		payload = be32(payload, 0x80000000)
		payload = be32(payload, d)
		payload = be32(payload, 0x90000000)
	}
	return Box("sidx", payload)
}

// Moof builds a movie fragment holding only an mfhd with the sequence number.
func Moof(sequence uint32) []byte {
	mfhd := make([]byte, 0, 8)
	mfhd = be32(mfhd, 0) // version and flags
	mfhd = be32(mfhd, sequence)
	return Box("moof", Box("mfhd", mfhd))
}

// Media assembles a parseable media segment: styp, sidx, moof and a stub
// mdat, with the given sequence number, presentation time and per-reference
// durations in ticks.
func Media(sequence, earliestPresentationTime, timescale uint32, durations []uint32) []byte {
	var out []byte
	out = append(out, Box("styp", []byte("msdhmsix"))...)
	out = append(out, Sidx(earliestPresentationTime, timescale, durations)...)
	out = append(out, Moof(sequence)...)
	out = append(out, Box("mdat", []byte{0xde, 0xad, 0xbe, 0xef})...)
	return out
}

// Init assembles an initialization segment: ftyp and an opaque moov, with no
// sidx or mfhd anywhere.
func Init() []byte {
	var out []byte
	out = append(out, Box("ftyp", []byte("isomiso2"))...)
	out = append(out, Box("moov", []byte{0x00, 0x01, 0x02, 0x03})...)
	return out
}

func be32(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

func be64(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}
