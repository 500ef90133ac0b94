package gdrom

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hansbonini/gdtools/pkg/common"
)

// CDI trailer version identifiers
const (
	cdiV2ID  = 0x80000004
	cdiV3ID  = 0x80000005
	cdiV35ID = 0x80000006

	cdiTrailerSize = 8
)

// CDI track descriptor layout
const (
	cdiNameSkip        = 19         // bytes between the file name and the version flag
	cdiVersionFlag     = 0x80000000 // flag announcing the longer pre-record gap
	cdiShortGap        = 2
	cdiLongGap         = 10
	cdiExtSkip         = 91 // trailing bytes after an extension marker
	cdiPlainSkip       = 3  // trailing bytes otherwise
	cdiSessionTrailer  = 12
	cdiNewFormatSkip   = 8
	cdiTrackMarkerSkip = 4
)

var (
	cdiTrackStartMarker = [20]byte{0, 0, 1, 0, 0, 0, 0xFF, 0xFF, 0xFF, 0xFF, 0, 0, 1, 0, 0, 0, 0xFF, 0xFF, 0xFF, 0xFF}
	cdiExtensionMarker  = [9]byte{0, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
)

// cdiTrackRecord is the fixed part of a CDI track descriptor
type cdiTrackRecord struct {
	PregapLength uint32
	Length       uint32
	_            [6]byte
	Mode         uint32
	_            [12]byte
	StartLBA     uint32
	TotalLength  uint32
	_            [16]byte
	SectorSize   uint32 // Size code: 0=2048, 1=2336, 2=2352
	_            [29]byte
}

// CDIFormat mounts DiscJuggler images
type CDIFormat struct{}

func (CDIFormat) Name() string {
	return "CDI"
}

// IsValid checks the trailer for a supported version and a header offset
// inside the file. Version 3.5 images are not supported.
func (CDIFormat) IsValid(src Source) bool {
	_, _, err := readCDITrailer(src)
	return err == nil
}

func readCDITrailer(src Source) (uint32, int64, error) {
	size := src.Size()
	if size < cdiTrailerSize {
		return 0, 0, fmt.Errorf("%w: file too small for CDI trailer", ErrInvalidImage)
	}

	trailer := make([]byte, cdiTrailerSize)
	if err := ReadAtSigned(src, trailer, size-cdiTrailerSize); err != nil {
		return 0, 0, common.FormatError(common.ErrFailedToReadFooter, err)
	}
	version := binary.LittleEndian.Uint32(trailer[0:4])
	headerOffset := int64(binary.LittleEndian.Uint32(trailer[4:8]))

	if version != cdiV2ID && version != cdiV3ID {
		return 0, 0, fmt.Errorf("%w: unsupported CDI version 0x%08X", ErrInvalidImage, version)
	}
	if headerOffset == 0 || headerOffset >= size {
		return 0, 0, fmt.Errorf("%w: CDI header offset %d outside file", ErrInvalidImage, headerOffset)
	}
	return version, headerOffset, nil
}

// Open reads the session and track descriptors from the header
func (f CDIFormat) Open(name string, src Source) (*ImageDisc, error) {
	version, headerOffset, err := readCDITrailer(src)
	if err != nil {
		return nil, err
	}
	common.LogDebug(common.DebugCDITrailer, version, headerOffset)

	reader := io.NewSectionReader(src, headerOffset, src.Size()-headerOffset)
	tracks, err := readCDIHeader(reader)
	if err != nil {
		return nil, err
	}
	return newImageDisc(name, f.Name(), src, tracks, classifyTracks(tracks), nil)
}

func readCDIHeader(reader io.Reader) ([]Track, error) {
	fail := func(err error) ([]Track, error) {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidImage, common.ErrFailedToReadCDIHeader, err)
	}

	sessionCount, err := common.ReadUint16LE(reader)
	if err != nil {
		return fail(err)
	}

	var tracks []Track
	var position int64
	for session := 0; session < int(sessionCount); session++ {
		trackCount, err := common.ReadUint16LE(reader)
		if err != nil {
			return fail(err)
		}
		if len(tracks)+int(trackCount) > MaxTracks {
			return nil, fmt.Errorf("%w: "+common.ErrInvalidTrackCount, ErrInvalidImage, len(tracks)+int(trackCount))
		}

		for i := 0; i < int(trackCount); i++ {
			track, advance, err := readCDITrack(reader, len(tracks)+1, session, position)
			if err != nil {
				return nil, err
			}
			tracks = append(tracks, track)
			position += advance
		}

		if err := common.SkipBytes(reader, cdiSessionTrailer); err != nil {
			return fail(err)
		}
	}
	return tracks, nil
}

// readCDITrack parses one track descriptor. position is the byte offset of
// the track's pregap in the image; the returned advance moves it past the
// whole track.
func readCDITrack(reader io.Reader, number, session int, position int64) (Track, int64, error) {
	fail := func(err error) (Track, int64, error) {
		return Track{}, 0, fmt.Errorf("%w: %s: %v", ErrInvalidImage, common.ErrFailedToReadCDIHeader, err)
	}

	newFormat, err := common.ReadUint32LE(reader)
	if err != nil {
		return fail(err)
	}
	if newFormat != 0 {
		if err := common.SkipBytes(reader, cdiNewFormatSkip); err != nil {
			return fail(err)
		}
	}

	marker, err := common.ReadBytes(reader, len(cdiTrackStartMarker))
	if err != nil {
		return fail(err)
	}
	if !bytes.Equal(marker, cdiTrackStartMarker[:]) {
		return Track{}, 0, fmt.Errorf("%w: %s", ErrInvalidImage, common.ErrTrackMarkerNotFound)
	}

	if err := common.SkipBytes(reader, cdiTrackMarkerSkip); err != nil {
		return fail(err)
	}
	nameLength, err := common.ReadBytes(reader, 1)
	if err != nil {
		return fail(err)
	}
	if err := common.SkipBytes(reader, int(nameLength[0])+cdiNameSkip); err != nil {
		return fail(err)
	}

	flag, err := common.ReadUint32LE(reader)
	if err != nil {
		return fail(err)
	}
	gap := cdiShortGap
	if flag == cdiVersionFlag {
		gap = cdiLongGap
	}
	if err := common.SkipBytes(reader, gap); err != nil {
		return fail(err)
	}

	var record cdiTrackRecord
	if err := binary.Read(reader, binary.LittleEndian, &record); err != nil {
		return fail(err)
	}

	track := Track{
		Session:     session,
		LBA:         record.StartLBA + common.PregapSectors,
		SectorCount: record.Length,
	}
	switch record.Mode {
	case 0:
		if record.SectorSize != 2 {
			return Track{}, 0, fmt.Errorf("%w: "+common.ErrInvalidModeSize, ErrInvalidImage, record.Mode, record.SectorSize)
		}
		track.Mode = ModeCDDA
		track.Flags = FlagADRPosition
	case 1:
		if record.SectorSize != 0 {
			return Track{}, 0, fmt.Errorf("%w: "+common.ErrInvalidModeSize, ErrInvalidImage, record.Mode, record.SectorSize)
		}
		track.Mode = ModeMode1
		track.Flags = FlagData | FlagADRPosition
	case 2:
		switch record.SectorSize {
		case 0:
			track.Mode = ModeMode2XA1
		case 1:
			track.Mode = ModeMode2Formless
		default:
			return Track{}, 0, fmt.Errorf("%w: "+common.ErrInvalidModeSize, ErrInvalidImage, record.Mode, record.SectorSize)
		}
		track.Flags = FlagData | FlagADRPosition
	default:
		return Track{}, 0, fmt.Errorf("%w: "+common.ErrUnsupportedTrackMode, ErrInvalidImage, record.Mode)
	}
	track.SectorSize = track.Mode.SectorSize()
	track.Offset = position + int64(record.PregapLength)*int64(track.SectorSize)
	common.LogDebug(common.DebugCDITrack, number, session, record.Mode, record.SectorSize, track.LBA, record.Length, record.PregapLength)

	ext, err := common.ReadBytes(reader, len(cdiExtensionMarker))
	if err != nil {
		return fail(err)
	}
	trailing := cdiPlainSkip
	if bytes.Equal(ext, cdiExtensionMarker[:]) {
		trailing = cdiExtSkip
	}
	if err := common.SkipBytes(reader, trailing); err != nil {
		return fail(err)
	}

	return track, int64(record.TotalLength) * int64(track.SectorSize), nil
}
