package gdrom

import (
	"github.com/hansbonini/gdtools/pkg/common"
)

// ReadMode is the read-mode byte of a GD-ROM sector read packet: the
// expected sector type in bits 1-3 and the fields to return in bits 4-7.
type ReadMode byte

// Expected sector types
const (
	ReadTypeMask   ReadMode = 0x0E
	ReadAny        ReadMode = 0x00
	ReadCDDA       ReadMode = 0x02
	ReadMode1      ReadMode = 0x04
	ReadMode2      ReadMode = 0x06
	ReadMode2Form1 ReadMode = 0x08
	ReadMode2Form2 ReadMode = 0x0A
)

// Field selection bits
const (
	ReadRaw       ReadMode = 0x10
	ReadData      ReadMode = 0x20
	ReadSubHeader ReadMode = 0x40
	ReadHeader    ReadMode = 0x80
	ReadFieldMask ReadMode = 0xF0
)

// ReadLogical is the mode used to fetch 2048 bytes of user data from any data track
const ReadLogical = ReadData | ReadAny

// SectorType returns the expected sector type bits
func (m ReadMode) SectorType() ReadMode {
	return m & ReadTypeMask
}

// Fields returns the field selection bits
func (m ReadMode) Fields() ReadMode {
	return m & ReadFieldMask
}

var syncPattern = [SectorSyncSize]byte{0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x00}

// XA sub-headers synthesised for tracks stored without one
var (
	subHeaderForm1 = [SubHeaderSize]byte{0x00, 0x00, 0x08, 0x00, 0x00, 0x00, 0x08, 0x00}
	subHeaderForm2 = [SubHeaderSize]byte{0x00, 0x00, 0x20, 0x00, 0x00, 0x00, 0x20, 0x00}
)

// expandSector rebuilds the full 2352-byte sector at lba from the bytes a
// track stores for it. Missing sync, header and sub-header fields are
// synthesised; EDC/ECC areas are left zero.
func expandSector(mode TrackMode, lba uint32, stored []byte, raw []byte) {
	if len(stored) >= SectorSizeRaw {
		copy(raw, stored[:SectorSizeRaw])
		return
	}

	for i := range raw[:SectorSizeRaw] {
		raw[i] = 0
	}
	copy(raw, syncPattern[:])
	m, s, f := common.LBAToBCDMSF(lba)
	raw[12], raw[13], raw[14] = m, s, f

	switch mode {
	case ModeMode1:
		raw[15] = 1
		copy(raw[16:], stored)
	case ModeMode2XA1:
		raw[15] = 2
		copy(raw[16:], subHeaderForm1[:])
		copy(raw[24:], stored)
	case ModeMode2XA2:
		raw[15] = 2
		copy(raw[16:], subHeaderForm2[:])
		copy(raw[24:], stored)
	default:
		// 2336-byte Mode 2 variants carry their own sub-header
		raw[15] = 2
		copy(raw[16:], stored)
	}
}

// extractSector copies the fields selected by mode out of the full sector
// raw into out, returning the number of bytes written. out must hold at
// least SectorSizeRaw bytes.
func extractSector(track *Track, mode ReadMode, raw []byte, out []byte) (int, error) {
	kind := mode.SectorType()

	if track.Mode.IsAudio() {
		if kind != ReadAny && kind != ReadCDDA {
			return 0, ErrBadReadMode
		}
		return copy(out, raw[:SectorSizeRaw]), nil
	}
	if kind == ReadCDDA {
		return 0, ErrBadReadMode
	}
	if mode&ReadRaw != 0 {
		return copy(out, raw[:SectorSizeRaw]), nil
	}
	if mode.Fields() == 0 {
		return 0, ErrBadField
	}

	var header, subHeader, data []byte
	switch raw[15] {
	case 1:
		header = raw[12:16]
		data = raw[16 : 16+SectorSizeData]
	case 2:
		header = raw[12:16]
		subHeader = raw[16:24]
		switch kind {
		case ReadMode2Form2:
			data = raw[24 : 24+SectorSizeForm2]
		case ReadMode2:
			data = raw[24 : 16+SectorSizeMode2]
		default:
			data = raw[24 : 24+SectorSizeData]
		}
	default:
		return 0, ErrBadReadMode
	}

	n := 0
	if mode&ReadHeader != 0 {
		n += copy(out[n:], header)
	}
	if mode&ReadSubHeader != 0 && subHeader != nil {
		n += copy(out[n:], subHeader)
	}
	if mode&ReadData != 0 {
		n += copy(out[n:], data)
	}
	return n, nil
}
