package gdrom

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/hansbonini/gdtools/pkg/common"
)

// Disc is the operation set every mounted medium provides, whether it is an
// image file or a real drive.
type Disc interface {
	Name() string
	Type() DiscType
	Catalog() string
	Title() string
	Tracks() []Track

	// CheckStatus polls for a media change and reloads the TOC if one
	// happened. It returns true when the disc contents changed.
	CheckStatus() bool

	// ReadSector reads the sector at lba into buf (at least SectorSizeRaw
	// bytes) and returns the number of bytes stored. Failures are Error
	// values or wrap one.
	ReadSector(lba uint32, mode ReadMode, buf []byte) (int, error)

	PlayAudio(lba, endLBA uint32) error
	StopAudio() error
	AudioPosition() (uint32, bool)

	// RunTimeSlice advances time-based state by nanosecs
	RunTimeSlice(nanosecs uint32)

	// Close destroys the disc, closing its backing handles if closeBacking is set
	Close(closeBacking bool) error
}

// discInfo holds the state shared by every Disc implementation
type discInfo struct {
	name      string
	discType  DiscType
	catalog   string
	tracks    []Track
	title     string
	titleRead bool
}

func (d *discInfo) Name() string {
	return d.name
}

func (d *discInfo) Type() DiscType {
	return d.discType
}

func (d *discInfo) Catalog() string {
	return d.catalog
}

// Tracks returns a copy of the track list
func (d *discInfo) Tracks() []Track {
	tracks := make([]Track, len(d.tracks))
	copy(tracks, d.tracks)
	return tracks
}

// trackAt returns the track containing lba, or nil
func (d *discInfo) trackAt(lba uint32) *Track {
	for i := range d.tracks {
		if d.tracks[i].Contains(lba) {
			return &d.tracks[i]
		}
	}
	return nil
}

// setTracks replaces the track list and forgets the cached title
func (d *discInfo) setTracks(tracks []Track, discType DiscType) {
	d.tracks = tracks
	d.discType = discType
	d.title = ""
	d.titleRead = false
}

func (d *discInfo) cachedTitle(disc Disc) string {
	if !d.titleRead {
		title, err := ReadTitle(disc)
		if err != nil {
			common.LogDebug(common.WarnTitleUnavailable, err)
		}
		d.title = title
		d.titleRead = true
	}
	return d.title
}

// Boot sector layout
const (
	bootSignature   = "SEGA SEGAKATANA "
	bootTitleOffset = 0x80
	bootTitleLength = 0x80
	isoDescriptor   = 16 // Sector of the primary volume descriptor
)

// BootTrack returns the first data track of the last session, which is
// where the boot sector and file system of a multisession disc live.
func BootTrack(tracks []Track) (*Track, error) {
	if len(tracks) == 0 {
		return nil, ErrNoDisc
	}

	lastSession := tracks[len(tracks)-1].Session
	for i := range tracks {
		if tracks[i].Session == lastSession && tracks[i].IsData() && tracks[i].SectorCount > 0 {
			return &tracks[i], nil
		}
	}
	for i := range tracks {
		if tracks[i].IsData() && tracks[i].SectorCount > 0 {
			return &tracks[i], nil
		}
	}
	return nil, fmt.Errorf("no data track")
}

// ReadTitle reads the disc title from the boot sector: the Dreamcast
// IP.BIN title if present, otherwise the ISO9660 volume identifier.
func ReadTitle(disc Disc) (string, error) {
	track, err := BootTrack(disc.Tracks())
	if err != nil {
		return "", err
	}

	buf := make([]byte, SectorSizeRaw)
	n, err := disc.ReadSector(track.LBA, ReadLogical, buf)
	if err != nil {
		return "", err
	}
	if n >= bootTitleOffset+bootTitleLength && bytes.HasPrefix(buf, []byte(bootSignature)) {
		return strings.TrimSpace(string(buf[bootTitleOffset : bootTitleOffset+bootTitleLength])), nil
	}

	n, err = disc.ReadSector(track.LBA+isoDescriptor, ReadLogical, buf)
	if err != nil {
		return "", err
	}
	if n >= 72 && string(buf[1:6]) == "CD001" {
		return strings.TrimSpace(string(buf[40:72])), nil
	}
	return "", nil
}

// audioState is the CD-DA play cursor
type audioState struct {
	playing   bool
	lba       uint32
	end       uint32
	remainder uint64 // nanosecond-frames carried between slices
}

const nanosPerSecond = 1000000000

func (a *audioState) start(lba, end uint32) {
	a.playing = true
	a.lba = lba
	a.end = end
	a.remainder = 0
}

func (a *audioState) stop() {
	a.playing = false
	a.remainder = 0
}

func (a *audioState) advance(nanosecs uint32) {
	if !a.playing {
		return
	}

	total := a.remainder + uint64(nanosecs)*common.FramesPerSecond
	frames := total / nanosPerSecond
	a.remainder = total % nanosPerSecond

	if uint64(a.lba)+frames >= uint64(a.end) {
		a.lba = a.end
		a.stop()
		return
	}
	a.lba += uint32(frames)
}
