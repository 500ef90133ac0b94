package gdrom

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/hansbonini/gdtools/pkg/common"
)

// NRG footer identifiers and chunk tags (big-endian ASCII)
const (
	nrgV50ID  = 0x4E45524F // "NERO"
	nrgV55ID  = 0x4E455235 // "NER5"
	nrgCUES   = 0x43554553 // "CUES"
	nrgCUEX   = 0x43554558 // "CUEX"
	nrgDAOI   = 0x44414F49 // "DAOI"
	nrgDAOX   = 0x44414F58 // "DAOX"
	nrgETNF   = 0x45544E46 // "ETNF"
	nrgETN2   = 0x45544E32 // "ETN2"
	nrgSINF   = 0x53494E46 // "SINF"
	nrgEND    = 0x454E4421 // "END!"
	nrgFooter = 12
)

// NRG record sizes
const (
	nrgCueSize       = 8
	nrgDAOHeaderSize = 22
	nrgDAOITrackSize = 30
	nrgDAOXTrackSize = 42
	nrgETNFSize      = 20
	nrgETN2Size      = 32
	nrgMaxChunkSize  = 1 << 20
)

// NRGFormat mounts Nero Burning ROM images
type NRGFormat struct{}

func (NRGFormat) Name() string {
	return "NRG"
}

// IsValid checks the footer for a Nero v5.0 or v5.5 identifier
func (NRGFormat) IsValid(src Source) bool {
	_, _, err := readNRGFooter(src)
	return err == nil
}

// readNRGFooter returns the footer version and the chunk directory offset.
// The v5.5 footer is an id followed by a 64-bit offset in the last 12 bytes;
// the v5.0 footer is an id followed by a 32-bit offset in the last 8 bytes.
func readNRGFooter(src Source) (string, int64, error) {
	size := src.Size()
	if size < nrgFooter {
		return "", 0, fmt.Errorf("%w: file too small for NRG footer", ErrInvalidImage)
	}

	footer := make([]byte, nrgFooter)
	if err := ReadAtSigned(src, footer, size-nrgFooter); err != nil {
		return "", 0, common.FormatError(common.ErrFailedToReadFooter, err)
	}

	var version string
	var offset int64
	switch {
	case binary.BigEndian.Uint32(footer[0:4]) == nrgV55ID:
		v, err := common.SafeUint64ToInt64(binary.BigEndian.Uint64(footer[4:12]))
		if err != nil {
			return "", 0, fmt.Errorf("%w: %v", ErrInvalidImage, err)
		}
		version, offset = "5.5", v
	case binary.BigEndian.Uint32(footer[4:8]) == nrgV50ID:
		version, offset = "5.0", int64(binary.BigEndian.Uint32(footer[8:12]))
	default:
		return "", 0, fmt.Errorf("%w: no NRG footer", ErrInvalidImage)
	}

	if offset <= 0 || offset >= size-nrgFooter {
		return "", 0, fmt.Errorf("%w: NRG chunk directory offset %d outside file", ErrInvalidImage, offset)
	}
	return version, offset, nil
}

// nrgCue is a track start collected from a CUES/CUEX chunk, waiting for the
// DAOI/DAOX chunk that describes its data.
type nrgCue struct {
	number int
	flags  byte
	lba    uint32
}

// nrgParser accumulates tracks while walking the chunk directory
type nrgParser struct {
	tracks   []Track
	cues     []nrgCue
	sessions []int
	catalog  string
}

// Open walks the chunk directory and builds the disc
func (f NRGFormat) Open(name string, src Source) (*ImageDisc, error) {
	version, offset, err := readNRGFooter(src)
	if err != nil {
		return nil, err
	}
	common.LogDebug(common.DebugNRGFooter, version, offset)

	reader := io.NewSectionReader(src, offset, src.Size()-offset)
	p := &nrgParser{}
	for {
		tag, err := common.ReadUint32BE(reader)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidImage, common.ErrFailedToReadChunk, err)
		}
		if tag == nrgEND {
			break
		}
		length, err := common.ReadUint32BE(reader)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidImage, common.ErrFailedToReadChunk, err)
		}
		if length > nrgMaxChunkSize {
			return nil, fmt.Errorf("%w: NRG chunk %s too large (%d bytes)", ErrInvalidImage, chunkName(tag), length)
		}
		payload, err := common.ReadBytes(reader, int(length))
		if err != nil {
			return nil, fmt.Errorf("%w: %s %s: %v", ErrInvalidImage, common.ErrFailedToReadChunk, chunkName(tag), err)
		}
		common.LogDebug(common.DebugNRGChunk, chunkName(tag), offset, length)
		offset += 8 + int64(length)

		if err := p.parseChunk(tag, payload); err != nil {
			return nil, err
		}
	}

	if len(p.cues) != 0 {
		return nil, fmt.Errorf("%w: NRG cue sheet without DAO information", ErrInvalidImage)
	}
	if err := p.assignSessions(); err != nil {
		return nil, err
	}

	disc, err := newImageDisc(name, f.Name(), src, p.tracks, classifyTracks(p.tracks), nil)
	if err != nil {
		return nil, err
	}
	disc.catalog = p.catalog
	return disc, nil
}

func (p *nrgParser) parseChunk(tag uint32, payload []byte) error {
	switch tag {
	case nrgCUES:
		return p.parseCues(payload, false)
	case nrgCUEX:
		return p.parseCues(payload, true)
	case nrgDAOI:
		return p.parseDAO(payload, false)
	case nrgDAOX:
		return p.parseDAO(payload, true)
	case nrgETNF:
		return p.parseETN(payload, false)
	case nrgETN2:
		return p.parseETN(payload, true)
	case nrgSINF:
		if len(payload) < 4 {
			return fmt.Errorf("%w: short SINF chunk", ErrInvalidImage)
		}
		p.sessions = append(p.sessions, int(binary.BigEndian.Uint32(payload)))
	default:
		common.LogDebug(common.WarnUnknownNRGChunk, chunkName(tag))
	}
	return nil
}

// parseCues reads the cue sheet of a DAO session. CUES addresses are BCD
// MSF; CUEX addresses are signed LBAs relative to the end of the pregap.
// Only index 1 entries of real tracks (not the lead-in/out) start a track.
func (p *nrgParser) parseCues(payload []byte, extended bool) error {
	if len(payload)%nrgCueSize != 0 {
		return fmt.Errorf("%w: cue sheet length %d", ErrInvalidImage, len(payload))
	}

	for i := 0; i < len(payload); i += nrgCueSize {
		entry := payload[i : i+nrgCueSize]
		if entry[1] == 0x00 || entry[1] == 0xAA || entry[2] != 0x01 {
			continue
		}

		number := int(entry[1])
		if !extended {
			number = int(common.BCDToBinary(entry[1]))
		}
		if number < 1 || number > MaxTracks {
			return fmt.Errorf("%w: cue track number %d", ErrInvalidImage, number)
		}

		var lba uint32
		if extended {
			addr := int32(binary.BigEndian.Uint32(entry[4:8])) + common.PregapSectors
			if addr < 0 {
				return fmt.Errorf("%w: cue address %d before disc start", ErrInvalidImage, addr)
			}
			lba = uint32(addr)
		} else {
			var err error
			lba, err = common.BCDMSFToLBA(entry[5], entry[6], entry[7])
			if err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidImage, err)
			}
		}

		p.cues = append(p.cues, nrgCue{
			number: number,
			flags:  entry[0]&0xF0 | FlagADRPosition,
			lba:    lba,
		})
	}
	return nil
}

// parseDAO reads the per-track layout of a DAO session and pairs it with
// the pending cue sheet entries.
func (p *nrgParser) parseDAO(payload []byte, extended bool) error {
	if len(payload) < nrgDAOHeaderSize {
		return fmt.Errorf("%w: short DAO chunk", ErrInvalidImage)
	}

	if p.catalog == "" {
		p.catalog = strings.TrimRight(string(bytes.TrimRight(payload[4:18], "\x00")), " ")
	}
	firstTrack, lastTrack := int(payload[20]), int(payload[21])
	count := lastTrack - firstTrack + 1
	if count < 1 || count > MaxTracks {
		return fmt.Errorf("%w: "+common.ErrInvalidTrackCount, ErrInvalidImage, count)
	}
	if count != len(p.cues) {
		return fmt.Errorf("%w: "+common.ErrTrackCountMismatch, ErrInvalidImage, "DAO chunk", count, len(p.cues))
	}

	entrySize := nrgDAOITrackSize
	if extended {
		entrySize = nrgDAOXTrackSize
	}
	if len(payload) < nrgDAOHeaderSize+count*entrySize {
		return fmt.Errorf("%w: DAO chunk too short for %d tracks", ErrInvalidImage, count)
	}

	for i := 0; i < count; i++ {
		entry := payload[nrgDAOHeaderSize+i*entrySize:]
		sectorSize := int(binary.BigEndian.Uint16(entry[12:14]))
		mode, err := nrgDAOMode(entry[14])
		if err != nil {
			return err
		}
		if sectorSize != mode.SectorSize() {
			return fmt.Errorf("%w: track %d: mode %s with "+common.ErrUnsupportedSectorSize, ErrInvalidImage, p.cues[i].number, mode, sectorSize)
		}

		var start, end int64
		if extended {
			if start, err = common.SafeUint64ToInt64(binary.BigEndian.Uint64(entry[26:34])); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidImage, err)
			}
			if end, err = common.SafeUint64ToInt64(binary.BigEndian.Uint64(entry[34:42])); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidImage, err)
			}
		} else {
			start = int64(binary.BigEndian.Uint32(entry[22:26]))
			end = int64(binary.BigEndian.Uint32(entry[26:30]))
		}
		if end < start {
			return fmt.Errorf("%w: track %d ends before it starts", ErrInvalidImage, p.cues[i].number)
		}
		sectors, err := common.SafeInt64ToUint32((end - start) / int64(sectorSize))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidImage, err)
		}

		flags := p.cues[i].flags
		if mode.IsAudio() {
			flags &^= FlagData
		} else {
			flags |= FlagData
		}
		p.tracks = append(p.tracks, Track{
			Mode:        mode,
			Flags:       flags,
			LBA:         p.cues[i].lba,
			SectorSize:  sectorSize,
			SectorCount: sectors,
			Offset:      start,
		})
	}
	p.cues = p.cues[:0]
	return nil
}

// parseETN reads track-at-once entries. Each entry's LBA is biased by one
// pregap for every entry before it.
func (p *nrgParser) parseETN(payload []byte, extended bool) error {
	entrySize := nrgETNFSize
	if extended {
		entrySize = nrgETN2Size
	}
	if len(payload) == 0 || len(payload)%entrySize != 0 {
		return fmt.Errorf("%w: track list length %d", ErrInvalidImage, len(payload))
	}

	for i := 0; i < len(payload)/entrySize; i++ {
		entry := payload[i*entrySize:]
		var offset, length int64
		var modeCode, lba uint32
		if extended {
			var err error
			if offset, err = common.SafeUint64ToInt64(binary.BigEndian.Uint64(entry[0:8])); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidImage, err)
			}
			if length, err = common.SafeUint64ToInt64(binary.BigEndian.Uint64(entry[8:16])); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidImage, err)
			}
			modeCode = binary.BigEndian.Uint32(entry[16:20])
			lba = binary.BigEndian.Uint32(entry[20:24])
		} else {
			offset = int64(binary.BigEndian.Uint32(entry[0:4]))
			length = int64(binary.BigEndian.Uint32(entry[4:8]))
			modeCode = binary.BigEndian.Uint32(entry[8:12])
			lba = binary.BigEndian.Uint32(entry[12:16])
		}

		mode, err := nrgETNMode(modeCode)
		if err != nil {
			return err
		}
		sectors, err := common.SafeInt64ToUint32(length / int64(mode.SectorSize()))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidImage, err)
		}

		flags := FlagADRPosition
		if !mode.IsAudio() {
			flags |= FlagData
		}
		p.tracks = append(p.tracks, Track{
			Mode:        mode,
			Flags:       flags,
			LBA:         lba + common.PregapSectors*uint32(len(p.tracks)+1),
			SectorSize:  mode.SectorSize(),
			SectorCount: sectors,
			Offset:      offset,
		})
	}
	return nil
}

// assignSessions hands out session indices in order using the SINF counts
func (p *nrgParser) assignSessions() error {
	if len(p.sessions) == 0 {
		return nil
	}

	next := 0
	for session, count := range p.sessions {
		if count < 0 || next+count > len(p.tracks) {
			return fmt.Errorf("%w: "+common.ErrTrackCountMismatch, ErrInvalidImage, "session list", next+count, len(p.tracks))
		}
		for i := next; i < next+count; i++ {
			p.tracks[i].Session = session
		}
		next += count
	}
	if next != len(p.tracks) {
		return fmt.Errorf("%w: "+common.ErrTrackCountMismatch, ErrInvalidImage, "session list", next, len(p.tracks))
	}
	return nil
}

// nrgETNMode maps a track-at-once mode code
func nrgETNMode(code uint32) (TrackMode, error) {
	switch code {
	case 0:
		return ModeMode1, nil
	case 2:
		return ModeMode2XA1, nil
	case 3:
		return ModeMode2Formless, nil
	case 7:
		return ModeCDDA, nil
	}
	return 0, fmt.Errorf("%w: "+common.ErrUnsupportedTrackMode, ErrInvalidImage, code)
}

// nrgDAOMode maps a disc-at-once mode code, which adds the raw 2352-byte
// data layouts to the track-at-once set.
func nrgDAOMode(code byte) (TrackMode, error) {
	switch code {
	case 5:
		return ModeRawNonXA, nil
	case 6:
		return ModeRawXA, nil
	}
	return nrgETNMode(uint32(code))
}

func chunkName(tag uint32) string {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], tag)
	return string(b[:])
}
