// Package gdrom provides the virtual optical disc seen by the GD-ROM drive:
// tracks, sessions, table of contents and sector data, backed either by an
// image file (NRG, CDI, GDI, ISO) or by a real drive behind an MMC transport.
package gdrom

import "fmt"

// Sector sizes in bytes
const (
	SectorSizeData   = 2048 // Mode 1 / Mode 2 Form 1 user data
	SectorSizeForm2  = 2324 // Mode 2 Form 2 user data
	SectorSizeMode2  = 2336 // Mode 2 without sync and header
	SectorSizeRaw    = 2352 // Full sector including sync and header
	SectorSyncSize   = 12   // Sync pattern
	SectorHeaderSize = 4    // MSF address + mode byte
	SubHeaderSize    = 8    // Mode 2 XA sub-header
)

// MaxTracks is the most tracks a disc can carry
const MaxTracks = 99

// GDROMHighDensityLBA is the first address of the high-density area of a GD-ROM
const GDROMHighDensityLBA = 45000

// TrackMode identifies how the sectors of a track are stored in the backing data
type TrackMode int

const (
	ModeMode1         TrackMode = iota // 2048-byte Mode 1 user data
	ModeMode2Formless                  // 2336-byte Mode 2 (sub-header + 2328 bytes)
	ModeMode2XA1                       // 2048-byte Mode 2 Form 1 user data
	ModeMode2XA2                       // 2324-byte Mode 2 Form 2 user data
	ModeCDDA                           // 2352-byte audio
	ModeSemiRawMode2                   // 2336-byte Mode 2 without sync/header
	ModeRawXA                          // 2352-byte raw Mode 2 sectors
	ModeRawNonXA                       // 2352-byte raw Mode 1 sectors
	ModeGD                             // 2336-byte GD-ROM high-density data
)

var trackModeNames = map[TrackMode]string{
	ModeMode1:         "Mode1",
	ModeMode2Formless: "Mode2",
	ModeMode2XA1:      "Mode2/XA1",
	ModeMode2XA2:      "Mode2/XA2",
	ModeCDDA:          "CDDA",
	ModeSemiRawMode2:  "SemiRaw/Mode2",
	ModeRawXA:         "Raw/XA",
	ModeRawNonXA:      "Raw/NonXA",
	ModeGD:            "GD",
}

func (m TrackMode) String() string {
	if name, ok := trackModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("TrackMode(%d)", int(m))
}

// SectorSize returns the number of bytes one sector of this mode occupies
// in the backing data.
func (m TrackMode) SectorSize() int {
	switch m {
	case ModeMode1, ModeMode2XA1:
		return SectorSizeData
	case ModeMode2XA2:
		return SectorSizeForm2
	case ModeMode2Formless, ModeSemiRawMode2, ModeGD:
		return SectorSizeMode2
	default:
		return SectorSizeRaw
	}
}

// IsAudio reports whether the mode holds audio samples
func (m TrackMode) IsAudio() bool {
	return m == ModeCDDA
}

// IsXA reports whether the mode is one of the Mode 2 variants
func (m TrackMode) IsXA() bool {
	switch m {
	case ModeMode2Formless, ModeMode2XA1, ModeMode2XA2, ModeSemiRawMode2, ModeRawXA:
		return true
	}
	return false
}

// Track flag bits. The high nibble is the Q-channel CONTROL field, the low
// nibble the ADR field (always 1 for tracks built here).
const (
	FlagPreEmphasis   byte = 0x10
	FlagCopyPermitted byte = 0x20
	FlagData          byte = 0x40
	FlagFourChannel   byte = 0x80
	FlagADRPosition   byte = 0x01
)

// Track describes one track of a disc
type Track struct {
	Mode        TrackMode
	Flags       byte
	Session     int    // 0-based session index
	LBA         uint32 // Absolute address, 150-sector pregap included
	SectorSize  int    // Bytes per sector in the backing data
	SectorCount uint32
	Offset      int64  // Byte offset of the first sector; negative reads as zero-fill
	Source      Source // Dedicated backing data, nil to use the disc's file
}

// EndLBA returns the first address after the track
func (t *Track) EndLBA() uint32 {
	return t.LBA + t.SectorCount
}

// Contains reports whether lba falls inside the track
func (t *Track) Contains(lba uint32) bool {
	return lba >= t.LBA && lba < t.EndLBA()
}

// IsData reports whether the track carries data rather than audio
func (t *Track) IsData() bool {
	return !t.Mode.IsAudio()
}

// DiscType classifies the mounted medium. Status bits are OR'ed in when the
// value is mirrored into the drive's disc register.
type DiscType byte

const (
	DiscAudio   DiscType = 0x00
	DiscCDROM   DiscType = 0x10
	DiscCDROMXA DiscType = 0x20
	DiscGDROM   DiscType = 0x80

	DiscReady DiscType = 0x01
	DiscIdle  DiscType = 0x02
	DiscNone  DiscType = 0x06
)

func (t DiscType) String() string {
	switch t & 0xF0 {
	case DiscCDROM:
		return "CD-ROM"
	case DiscCDROMXA:
		return "CD-ROM XA"
	case DiscGDROM:
		return "GD-ROM"
	}
	if t == DiscNone {
		return "none"
	}
	return "CD-DA"
}

// Error is a GD-ROM packet status: the sense key in the low byte and the
// additional sense code in the high byte.
type Error uint16

const (
	ErrOK          Error = 0x0000
	ErrNoDisc      Error = 0x3A02 // Not ready, medium not present
	ErrNoResponse  Error = 0x0402 // Not ready, drive did not respond
	ErrBadRead     Error = 0x1103 // Medium error, unrecovered read error
	ErrBadCmd      Error = 0x2005 // Illegal request, invalid command
	ErrBadField    Error = 0x2405 // Illegal request, invalid field in packet
	ErrBadReadMode Error = 0x6405 // Illegal request, illegal mode for this track
	ErrReset       Error = 0x2906 // Unit attention, power on or reset
	ErrMediaChange Error = 0x2806 // Unit attention, medium may have changed
)

// NewError packs a sense key and additional sense code
func NewError(senseKey, asc byte) Error {
	return Error(uint16(senseKey&0x0F) | uint16(asc)<<8)
}

// SenseKey returns the sense key
func (e Error) SenseKey() byte {
	return byte(e) & 0x0F
}

// ASC returns the additional sense code
func (e Error) ASC() byte {
	return byte(e >> 8)
}

func (e Error) Error() string {
	switch e {
	case ErrNoDisc:
		return "no disc"
	case ErrNoResponse:
		return "drive not responding"
	case ErrBadRead:
		return "unrecoverable read error"
	case ErrBadCmd:
		return "invalid command"
	case ErrBadField:
		return "invalid field in packet"
	case ErrBadReadMode:
		return "illegal read mode for track"
	case ErrReset:
		return "device reset"
	case ErrMediaChange:
		return "medium changed"
	}
	return fmt.Sprintf("sense key 0x%X, asc 0x%02X", e.SenseKey(), e.ASC())
}
