// Package segment extracts timing metadata from fetched media segments by
// scanning the ISO-BMFF boxes embedded in them. Only the segment index
// (sidx) and movie fragment header (moof/mfhd) are parsed; everything else
// is skipped by its declared size.
package segment

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTruncated reports a buffer that ends before a complete box.
	ErrTruncated = errors.New("truncated box")
	// ErrNoSegmentIndex reports a segment without a sidx box.
	ErrNoSegmentIndex = errors.New("no sidx box found")
	// ErrNoFragmentHeader reports a segment without a moof/mfhd box.
	ErrNoFragmentHeader = errors.New("no mfhd box found")
)

// Metadata holds the timing facts derived from one media segment. It is
// constructed per fetched chunk and consumed immediately.
type Metadata struct {
	// SegmentNumber is the fragment sequence number from the mfhd box.
	SegmentNumber int
	// EarliestPresentationTime is the sidx presentation time in raw ticks.
	EarliestPresentationTime uint64
	// Timescale is the number of ticks per second.
	Timescale uint32
	// TotalDuration is the summed sub-segment duration in raw ticks.
	TotalDuration uint64
}

// PTS returns the earliest presentation time in seconds.
func (m *Metadata) PTS() float64 {
	return float64(m.EarliestPresentationTime) / float64(m.Timescale)
}

// Duration returns the total sub-segment duration.
func (m *Metadata) Duration() time.Duration {
	millis := float64(m.TotalDuration) / float64(m.Timescale) * 1000.0
	return time.Duration(millis) * time.Millisecond
}

// boxHeader is a decoded box size/type pair.
type boxHeader struct {
	boxType   string
	size      int // total box size including header
	headerLen int
}

// readHeader decodes the box header at data[pos:]. A size of 1 switches to
// the 64-bit largesize form; a size of 0 extends the box to end of buffer.
func readHeader(data []byte, pos int) (boxHeader, error) {
	if len(data)-pos < 8 {
		return boxHeader{}, fmt.Errorf("%w: %d bytes left for header at offset %d", ErrTruncated, len(data)-pos, pos)
	}

	size := uint64(binary.BigEndian.Uint32(data[pos:]))
	boxType := string(data[pos+4 : pos+8])
	headerLen := 8

	if size == 1 {
		if len(data)-pos < 16 {
			return boxHeader{}, fmt.Errorf("%w: largesize header at offset %d", ErrTruncated, pos)
		}
		size = binary.BigEndian.Uint64(data[pos+8:])
		headerLen = 16
	}

	if size == 0 {
		size = uint64(len(data) - pos)
	}

	if size < uint64(headerLen) || pos+int(size) > len(data) {
		return boxHeader{}, fmt.Errorf("%w: %s box claims %d bytes at offset %d", ErrTruncated, boxType, size, pos)
	}

	return boxHeader{boxType: boxType, size: int(size), headerLen: headerLen}, nil
}

// Parse scans one fetched media segment for its sidx and moof boxes and
// derives the segment's timing metadata. Both boxes must be present; a
// missing box or a truncated buffer makes the whole segment unusable.
func Parse(data []byte) (*Metadata, error) {
	var (
		sidx     *sidxBox
		sequence int
		haveMfhd bool
	)

	pos := 0
	for pos < len(data) {
		hdr, err := readHeader(data, pos)
		if err != nil {
			return nil, err
		}

		payload := data[pos+hdr.headerLen : pos+hdr.size]

		switch hdr.boxType {
		case "sidx":
			sidx, err = parseSidx(payload)
			if err != nil {
				return nil, err
			}
		case "moof":
			sequence, haveMfhd, err = parseMoof(payload)
			if err != nil {
				return nil, err
			}
		}

		pos += hdr.size
	}

	if sidx == nil {
		return nil, ErrNoSegmentIndex
	}
	if !haveMfhd {
		return nil, ErrNoFragmentHeader
	}

	return &Metadata{
		SegmentNumber:            sequence,
		EarliestPresentationTime: sidx.earliestPresentationTime,
		Timescale:                sidx.timescale,
		TotalDuration:            sidx.totalDuration(),
	}, nil
}

type sidxBox struct {
	version                  uint8
	timescale                uint32
	earliestPresentationTime uint64
	firstOffset              uint64
	subsegDurations          []uint32
}

func (b *sidxBox) totalDuration() uint64 {
	var total uint64
	for _, d := range b.subsegDurations {
		total += uint64(d)
	}
	return total
}

// parseSidx decodes a segment index payload. Version 0 carries 32-bit
// presentation-time and offset fields; any other version carries 64-bit ones.
func parseSidx(payload []byte) (*sidxBox, error) {
	r := reader{buf: payload}

	version, err := r.u8()
	if err != nil {
		return nil, err
	}
	if _, err := r.u24(); err != nil { // flags
		return nil, err
	}
	if _, err := r.u32(); err != nil { // reference_ID
		return nil, err
	}

	timescale, err := r.u32()
	if err != nil {
		return nil, err
	}

	box := &sidxBox{version: version, timescale: timescale}

	if version == 0 {
		ept, err := r.u32()
		if err != nil {
			return nil, err
		}
		off, err := r.u32()
		if err != nil {
			return nil, err
		}
		box.earliestPresentationTime = uint64(ept)
		box.firstOffset = uint64(off)
	} else {
		if box.earliestPresentationTime, err = r.u64(); err != nil {
			return nil, err
		}
		if box.firstOffset, err = r.u64(); err != nil {
			return nil, err
		}
	}

	if _, err := r.u16(); err != nil { // reserved
		return nil, err
	}

	refCount, err := r.u16()
	if err != nil {
		return nil, err
	}

	box.subsegDurations = make([]uint32, 0, refCount)
	for i := 0; i < int(refCount); i++ {
		if _, err := r.u32(); err != nil { // reference type and size
			return nil, err
		}
		duration, err := r.u32()
		if err != nil {
			return nil, err
		}
		if _, err := r.u32(); err != nil { // SAP fields
			return nil, err
		}
		box.subsegDurations = append(box.subsegDurations, duration)
	}

	return box, nil
}

// parseMoof scans a movie fragment's children for the mfhd box and returns
// its sequence number.
func parseMoof(payload []byte) (int, bool, error) {
	pos := 0
	for pos < len(payload) {
		hdr, err := readHeader(payload, pos)
		if err != nil {
			return 0, false, err
		}

		if hdr.boxType == "mfhd" {
			r := reader{buf: payload[pos+hdr.headerLen : pos+hdr.size]}
			if _, err := r.u32(); err != nil { // version and flags
				return 0, false, err
			}
			sequence, err := r.u32()
			if err != nil {
				return 0, false, err
			}
			return int(sequence), true, nil
		}

		pos += hdr.size
	}

	return 0, false, nil
}

// reader is a bounds-checked big-endian cursor over a box payload.
type reader struct {
	buf []byte
	pos int
}

func (r *reader) take(n int) ([]byte, error) {
	if len(r.buf)-r.pos < n {
		return nil, fmt.Errorf("%w: box payload ends at %d, need %d more bytes", ErrTruncated, r.pos, n)
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) u8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) u16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *reader) u24() (uint32, error) {
	b, err := r.take(3)
	if err != nil {
		return 0, err
	}
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2]), nil
}

func (r *reader) u32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *reader) u64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}
