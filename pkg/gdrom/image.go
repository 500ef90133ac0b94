package gdrom

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hansbonini/gdtools/pkg/common"
)

// Source is random-access backing data for a disc or track
type Source interface {
	io.ReaderAt
	Size() int64
}

// FileSource is a Source backed by an open file
type FileSource struct {
	file *os.File
	size int64
}

// OpenFileSource opens filename for reading
func OpenFileSource(filename string) (*FileSource, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	fileInfo, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, common.FormatError(common.ErrFailedToStatImage, err)
	}

	return &FileSource{file: file, size: fileInfo.Size()}, nil
}

func (s *FileSource) ReadAt(p []byte, off int64) (int, error) {
	return s.file.ReadAt(p, off)
}

func (s *FileSource) Size() int64 {
	return s.size
}

func (s *FileSource) Close() error {
	return s.file.Close()
}

// ReadAtSigned fills buf with the bytes of src starting at off. Positions
// before the start of src (off < 0) read as zero; only the remainder of buf
// is read from src, starting at offset 0. Reading past the end of src is an
// error.
func ReadAtSigned(src io.ReaderAt, buf []byte, off int64) error {
	if off < 0 {
		if -off >= int64(len(buf)) {
			clear(buf)
			return nil
		}
		zeros := int(-off)
		clear(buf[:zeros])
		buf = buf[zeros:]
		off = 0
	}

	n, err := src.ReadAt(buf, off)
	if n == len(buf) {
		return nil
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return err
}

// ImageFormat is one of the image file formats a disc can be mounted from
type ImageFormat interface {
	Name() string
	IsValid(src Source) bool
	Open(name string, src Source) (*ImageDisc, error)
}

// ImageFormats lists the formats tried, in order, when mounting an image
var ImageFormats = []ImageFormat{
	NRGFormat{},
	CDIFormat{},
	GDIFormat{},
	ISOFormat{},
}

// OpenImage opens filename and mounts it with the first format that
// recognises it. On failure the file is closed and nothing is retained.
func OpenImage(filename string, log common.Logger) (*ImageDisc, error) {
	log = common.LoggerOrDefault(log)

	src, err := OpenFileSource(filename)
	if err != nil {
		log.Error(common.ErrFailedToMountImage, filename, err)
		return nil, common.FormatError(common.ErrFailedToOpenImage, err)
	}

	disc, err := OpenImageSource(filename, src)
	if err != nil {
		src.Close()
		log.Error(common.ErrFailedToMountImage, filename, err)
		return nil, err
	}

	disc.closers = append(disc.closers, src)
	disc.log = log
	log.Info(common.InfoImageMounted, disc.format, filename, len(disc.tracks), byte(disc.discType))
	return disc, nil
}

// OpenImageSource mounts src with the first format that recognises it.
// The caller keeps ownership of src.
func OpenImageSource(name string, src Source) (*ImageDisc, error) {
	for _, format := range ImageFormats {
		if format.IsValid(src) {
			return format.Open(name, src)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, name)
}

// ImageDisc is a disc whose sectors come from one or more image files
type ImageDisc struct {
	discInfo
	format  string
	file    Source
	closers []io.Closer
	audio   audioState
	log     common.Logger
	stored  [SectorSizeRaw]byte
	raw     [SectorSizeRaw]byte
}

// newImageDisc validates tracks against their backing data and builds the
// disc. closers are closed if validation fails.
func newImageDisc(name, format string, src Source, tracks []Track, discType DiscType, closers []io.Closer) (*ImageDisc, error) {
	if err := validateTracks(tracks, src); err != nil {
		closeAll(closers)
		return nil, err
	}

	for i, t := range tracks {
		common.LogDebug(common.DebugTrackParsed, i+1, t.Session, t.Mode, t.Flags, t.LBA, t.SectorCount, t.SectorSize, t.Offset)
	}

	return &ImageDisc{
		discInfo: discInfo{
			name:     name,
			discType: discType,
			tracks:   tracks,
		},
		format:  format,
		file:    src,
		closers: closers,
		log:     common.StdLogger{},
	}, nil
}

// validateTracks checks the track count, ordering and that every track's
// byte extent lies inside its backing data.
func validateTracks(tracks []Track, src Source) error {
	if len(tracks) == 0 || len(tracks) > MaxTracks {
		return fmt.Errorf("%w: "+common.ErrInvalidTrackCount, ErrInvalidImage, len(tracks))
	}

	for i := range tracks {
		t := &tracks[i]
		if t.SectorSize != t.Mode.SectorSize() {
			return fmt.Errorf("%w: track %d: "+common.ErrUnsupportedSectorSize, ErrInvalidImage, i+1, t.SectorSize)
		}
		if i+1 < len(tracks) {
			next := tracks[i+1]
			if t.LBA >= next.LBA {
				return fmt.Errorf("%w: "+common.ErrTrackOrder, ErrInvalidImage, i+1, t.LBA, i+2, next.LBA)
			}
			if t.EndLBA() > next.LBA {
				return fmt.Errorf("%w: "+common.ErrTrackOverlap, ErrInvalidImage, i+1, t.LBA, t.SectorCount, i+2, next.LBA)
			}
		}
		if t.SectorCount == 0 {
			continue
		}

		backing := t.Source
		if backing == nil {
			backing = src
		}
		end := t.Offset + int64(t.SectorSize)*int64(t.SectorCount)
		if backing == nil || end > backing.Size() {
			size := int64(0)
			if backing != nil {
				size = backing.Size()
			}
			return fmt.Errorf("%w: "+common.ErrTrackBeyondFile, ErrInvalidImage, i+1, end, size)
		}
	}
	return nil
}

// classifyTracks derives the disc type from its track modes
func classifyTracks(tracks []Track) DiscType {
	discType := DiscAudio
	for _, t := range tracks {
		switch {
		case t.Mode.IsXA():
			return DiscCDROMXA
		case t.IsData():
			discType = DiscCDROM
		}
	}
	return discType
}

func closeAll(closers []io.Closer) {
	for _, c := range closers {
		c.Close()
	}
}

// Format returns the name of the image format the disc was mounted from
func (d *ImageDisc) Format() string {
	return d.format
}

// CheckStatus reports media changes. An image never changes underneath the disc.
func (d *ImageDisc) CheckStatus() bool {
	return false
}

// ReadSector reads the sector at lba into buf, which must hold at least
// SectorSizeRaw bytes, and returns the number of bytes stored.
func (d *ImageDisc) ReadSector(lba uint32, mode ReadMode, buf []byte) (int, error) {
	if len(buf) < SectorSizeRaw {
		return 0, ErrBadField
	}

	track := d.trackAt(lba)
	if track == nil {
		return 0, ErrBadRead
	}

	backing := track.Source
	if backing == nil {
		backing = d.file
	}
	if backing == nil {
		return 0, ErrBadRead
	}

	offset := track.Offset + int64(track.SectorSize)*int64(lba-track.LBA)
	stored := d.stored[:track.SectorSize]
	if err := ReadAtSigned(backing, stored, offset); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadRead, err)
	}

	expandSector(track.Mode, lba, stored, d.raw[:])
	return extractSector(track, mode, d.raw[:], buf)
}

// PlayAudio starts the play cursor at lba. Both ends of the range must fall
// in audio tracks.
func (d *ImageDisc) PlayAudio(lba, endLBA uint32) error {
	first := d.trackAt(lba)
	last := d.trackAt(endLBA - 1)
	if endLBA <= lba || first == nil || last == nil || !first.Mode.IsAudio() || !last.Mode.IsAudio() {
		d.log.Warn(common.WarnAudioRangeRejected, lba, endLBA)
		return ErrBadField
	}
	d.audio.start(lba, endLBA)
	return nil
}

// StopAudio stops the play cursor
func (d *ImageDisc) StopAudio() error {
	d.audio.stop()
	return nil
}

// RunTimeSlice advances the play cursor by the elapsed time
func (d *ImageDisc) RunTimeSlice(nanosecs uint32) {
	d.audio.advance(nanosecs)
}

// AudioPosition returns the play cursor and whether audio is playing
func (d *ImageDisc) AudioPosition() (uint32, bool) {
	return d.audio.lba, d.audio.playing
}

// Title returns the disc title read from the boot sector, or "" if none
func (d *ImageDisc) Title() string {
	return d.cachedTitle(d)
}

// Close releases the disc. Backing files are closed only when closeBacking
// is set.
func (d *ImageDisc) Close(closeBacking bool) error {
	d.audio.stop()
	if !closeBacking {
		return nil
	}

	var errs []error
	for _, c := range d.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}
