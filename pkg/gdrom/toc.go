package gdrom

import (
	"encoding/binary"

	"github.com/hansbonini/gdtools/pkg/common"
)

// TOC layout: 99 track entries followed by the first-track, last-track and
// leadout entries, each a 4-byte word with the track flags in byte 0 and a
// 24-bit big-endian address (or track number) in bytes 1-3.
const (
	TOCEntrySize   = 4
	TOCFirstOffset = MaxTracks * TOCEntrySize
	TOCLastOffset  = TOCFirstOffset + TOCEntrySize
	TOCLeadout     = TOCLastOffset + TOCEntrySize
	TOCSize        = TOCLeadout + TOCEntrySize
)

// SessionInfoSize is the length of a session information reply
const SessionInfoSize = 6

// TOC areas of a GD-ROM
const (
	AreaSingleDensity = 0
	AreaHighDensity   = 1
)

// areaSession returns the session reported for a TOC area, or -1 for the
// whole disc.
func areaSession(discType DiscType, area int) (int, error) {
	switch area {
	case AreaSingleDensity:
		if discType&0xF0 == DiscGDROM {
			return 0, nil
		}
		return -1, nil
	case AreaHighDensity:
		return 1, nil
	}
	return 0, ErrBadField
}

// EncodeTOC serialises the table of contents for a TOC area
func EncodeTOC(tracks []Track, discType DiscType, area int) ([]byte, error) {
	if len(tracks) == 0 {
		return nil, ErrNoDisc
	}
	session, err := areaSession(discType, area)
	if err != nil {
		return nil, err
	}

	toc := make([]byte, TOCSize)
	for i := 0; i < MaxTracks; i++ {
		binary.BigEndian.PutUint32(toc[i*TOCEntrySize:], 0xFFFFFFFF)
	}

	first, last := -1, -1
	for i := range tracks {
		if session >= 0 && tracks[i].Session != session {
			continue
		}
		putTOCEntry(toc[i*TOCEntrySize:], tracks[i].Flags, tracks[i].LBA)
		if first < 0 {
			first = i
		}
		last = i
	}
	if first < 0 {
		return nil, ErrBadField
	}

	putTOCEntry(toc[TOCFirstOffset:], tracks[first].Flags, uint32(first+1)<<16)
	putTOCEntry(toc[TOCLastOffset:], tracks[last].Flags, uint32(last+1)<<16)
	putTOCEntry(toc[TOCLeadout:], tracks[last].Flags, tracks[last].EndLBA())
	return toc, nil
}

// putTOCEntry packs flags into byte 0 and the low 24 bits of value into bytes 1-3
func putTOCEntry(b []byte, flags byte, value uint32) {
	b[0] = flags
	common.PutUint24BE(b[1:4], value)
}

// DecodeTOCEntry splits a TOC word into its flags and 24-bit value
func DecodeTOCEntry(b []byte) (flags byte, value uint32) {
	return b[0], common.Uint24BE(b[1:4])
}

// EncodeSessionInfo describes a session: for session 0 the number of
// sessions and the leadout address, otherwise the first track number and
// start address of that (1-based) session.
func EncodeSessionInfo(tracks []Track, status byte, session int) ([]byte, error) {
	if len(tracks) == 0 {
		return nil, ErrNoDisc
	}

	info := make([]byte, SessionInfoSize)
	info[0] = status
	var lba uint32
	if session == 0 {
		last := &tracks[len(tracks)-1]
		sessions, err := common.SafeIntToUint8(last.Session + 1)
		if err != nil {
			return nil, ErrBadField
		}
		info[2] = sessions
		lba = last.EndLBA()
	} else {
		index := -1
		for i := range tracks {
			if tracks[i].Session == session-1 {
				index = i
				break
			}
		}
		if index < 0 {
			return nil, ErrBadField
		}
		info[2] = byte(index + 1)
		lba = tracks[index].LBA
	}
	common.PutUint24BE(info[3:6], lba)
	return info, nil
}
