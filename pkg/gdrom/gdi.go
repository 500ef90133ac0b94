package gdrom

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hansbonini/gdtools/pkg/common"
)

// gdiMaxHeader bounds how much of a file is scanned for the track count line
const gdiMaxHeader = 64

// gdiPlaceholder is the file name of a track with no backing data
const gdiPlaceholder = "none"

// GDIFormat mounts GD-ROM track list files. Each track's data lives in its
// own file next to the .gdi.
type GDIFormat struct{}

func (GDIFormat) Name() string {
	return "GDI"
}

// IsValid checks that the first line holds a track count between 1 and 99
func (GDIFormat) IsValid(src Source) bool {
	size := src.Size()
	if size > gdiMaxHeader {
		size = gdiMaxHeader
	}
	head := make([]byte, size)
	n, _ := src.ReadAt(head, 0)

	line, _, found := strings.Cut(string(head[:n]), "\n")
	if !found && int64(n) == gdiMaxHeader {
		return false
	}
	count, err := strconv.Atoi(strings.TrimSpace(line))
	return err == nil && count >= 1 && count <= MaxTracks
}

// Open parses the track list and opens every track file. Track files are
// resolved relative to the directory of name.
func (f GDIFormat) Open(name string, src Source) (*ImageDisc, error) {
	scanner := bufio.NewScanner(io.NewSectionReader(src, 0, src.Size()))
	if !scanner.Scan() {
		return nil, fmt.Errorf("%w: empty GDI file", ErrInvalidImage)
	}
	count, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil || count < 1 || count > MaxTracks {
		return nil, fmt.Errorf("%w: "+common.ErrInvalidTrackCount, ErrInvalidImage, count)
	}

	dir := filepath.Dir(name)
	var closers []io.Closer
	fail := func(err error) (*ImageDisc, error) {
		closeAll(closers)
		return nil, err
	}

	tracks := make([]Track, 0, count)
	for len(tracks) < count {
		if !scanner.Scan() {
			return fail(fmt.Errorf("%w: GDI lists %d tracks, found %d", ErrInvalidImage, count, len(tracks)))
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		track, source, err := parseGDILine(line, len(tracks)+1, dir)
		if source != nil {
			closers = append(closers, source)
		}
		if err != nil {
			return fail(err)
		}
		tracks = append(tracks, track)
	}
	if err := scanner.Err(); err != nil {
		return fail(fmt.Errorf("%w: %v", ErrInvalidImage, err))
	}

	return newImageDisc(name, f.Name(), src, tracks, DiscGDROM, closers)
}

// parseGDILine parses "track lba flags size filename offset". The returned
// source is non-nil whenever a track file was opened, even on error.
func parseGDILine(line string, number int, dir string) (Track, *FileSource, error) {
	fields := splitGDIFields(line)
	if len(fields) != 6 {
		return Track{}, nil, fmt.Errorf("%w: %s: expected 6 fields, got %d", ErrInvalidImage, fmt.Sprintf(common.ErrFailedToParseGDILine, number), len(fields))
	}

	values := make([]int64, 5)
	for i, field := range []string{fields[0], fields[1], fields[2], fields[3], fields[5]} {
		v, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return Track{}, nil, fmt.Errorf("%w: %s: %v", ErrInvalidImage, fmt.Sprintf(common.ErrFailedToParseGDILine, number), err)
		}
		values[i] = v
	}
	trackNo, startLBA, flags, size, offset := values[0], values[1], values[2], values[3], values[4]
	filename := fields[4]

	if trackNo != int64(number) {
		return Track{}, nil, fmt.Errorf("%w: %s: track number %d out of sequence", ErrInvalidImage, fmt.Sprintf(common.ErrFailedToParseGDILine, number), trackNo)
	}
	if startLBA < 0 || startLBA > common.MaxMSFLBA || flags < 0 || flags > 0x0F {
		return Track{}, nil, fmt.Errorf("%w: %s: field out of range", ErrInvalidImage, fmt.Sprintf(common.ErrFailedToParseGDILine, number))
	}

	track := Track{
		Flags:      byte(flags)<<4 | FlagADRPosition,
		LBA:        uint32(startLBA) + common.PregapSectors,
		SectorSize: int(size),
		Offset:     offset,
	}
	if startLBA >= GDROMHighDensityLBA {
		track.Session = 1
	}

	switch size {
	case SectorSizeData:
		track.Mode = ModeMode1
	case SectorSizeMode2:
		track.Mode = ModeGD
	case SectorSizeRaw:
		if track.Flags&FlagData != 0 {
			track.Mode = ModeRawXA
		} else {
			track.Mode = ModeCDDA
		}
	default:
		return Track{}, nil, fmt.Errorf("%w: track %d: "+common.ErrUnsupportedSectorSize, ErrInvalidImage, number, size)
	}

	if strings.EqualFold(filename, gdiPlaceholder) {
		return track, nil, nil
	}

	source, err := OpenFileSource(filepath.Join(dir, filename))
	if err != nil {
		return Track{}, nil, fmt.Errorf("%w: %s %s: %v", ErrInvalidImage, common.ErrFailedToOpenTrackFile, filename, err)
	}
	track.Source = source

	sectors, err := common.SafeInt64ToUint32((source.Size() - offset) / size)
	if err != nil {
		return Track{}, source, fmt.Errorf("%w: track %d: %v", ErrInvalidImage, number, err)
	}
	track.SectorCount = sectors
	return track, source, nil
}

// splitGDIFields splits a track line on whitespace. A double-quoted field
// may contain spaces.
func splitGDIFields(line string) []string {
	var fields []string
	var current strings.Builder
	inQuotes, inField := false, false

	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			inField = true
		case (r == ' ' || r == '\t') && !inQuotes:
			if inField {
				fields = append(fields, current.String())
				current.Reset()
				inField = false
			}
		default:
			current.WriteRune(r)
			inField = true
		}
	}
	if inField {
		fields = append(fields, current.String())
	}
	return fields
}
