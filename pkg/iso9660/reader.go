package iso9660

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hansbonini/gdtools/pkg/common"
	"github.com/hansbonini/gdtools/pkg/gdrom"
)

// maxDirectoryDepth bounds recursion on corrupt directory trees
const maxDirectoryDepth = 64

// Reader reads the file system stored in the boot track of a disc
type Reader struct {
	disc       gdrom.Disc
	track      gdrom.Track
	endLBA     uint32
	descriptor *Descriptor
	sector     []byte
}

// NewReader locates the boot track of disc and reads its primary volume
// descriptor.
func NewReader(disc gdrom.Disc) (*Reader, error) {
	tracks := disc.Tracks()
	track, err := gdrom.BootTrack(tracks)
	if err != nil {
		return nil, common.FormatError(common.ErrFailedToReadDescriptor, err)
	}

	r := &Reader{
		disc:   disc,
		track:  *track,
		endLBA: tracks[len(tracks)-1].EndLBA(),
		sector: make([]byte, gdrom.SectorSizeRaw),
	}

	data, err := r.readAbsolute(track.LBA + DescriptorSector)
	if err != nil {
		return nil, common.FormatError(common.ErrFailedToReadDescriptor, err)
	}
	r.descriptor, err = parseDescriptor(data)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Descriptor returns the primary volume descriptor
func (r *Reader) Descriptor() *Descriptor {
	return r.descriptor
}

// Track returns the track the file system was read from
func (r *Reader) Track() gdrom.Track {
	return r.track
}

// readAbsolute reads the user data of the sector at disc address lba
func (r *Reader) readAbsolute(lba uint32) ([]byte, error) {
	n, err := r.disc.ReadSector(lba, gdrom.ReadLogical, r.sector)
	if err != nil {
		return nil, fmt.Errorf("read sector %d: %w", lba, err)
	}
	if n < LogicalBlockSize {
		return nil, fmt.Errorf("read sector %d: short read of %d bytes", lba, n)
	}
	return r.sector[:LogicalBlockSize], nil
}

// ReadSector reads the logical block recorded as lba in the file system
func (r *Reader) ReadSector(lba uint32) ([]byte, error) {
	return r.readAbsolute(lba + common.PregapSectors)
}

// readExtent reads size bytes starting at the recorded block lba
func (r *Reader) readExtent(lba, size uint32) ([]byte, error) {
	data := make([]byte, 0, size)
	for sector := uint32(0); uint32(len(data)) < size; sector++ {
		block, err := r.ReadSector(lba + sector)
		if err != nil {
			return nil, err
		}
		remaining := size - uint32(len(data))
		if remaining > LogicalBlockSize {
			remaining = LogicalBlockSize
		}
		data = append(data, block[:remaining]...)
	}
	return data, nil
}

// ReadPathTable reads the Type-L path table
func (r *Reader) ReadPathTable() ([]PathTableEntry, error) {
	pathData, err := r.readExtent(r.descriptor.PathTableLBA, r.descriptor.PathTableSize)
	if err != nil {
		return nil, err
	}

	var entries []PathTableEntry
	offset := 0
	for offset+8 <= len(pathData) {
		entry := PathTableEntry{NameLength: pathData[offset]}
		if entry.NameLength == 0 {
			break
		}
		entry.ExtendedAttrLength = pathData[offset+1]
		entry.DirLocation = binary.LittleEndian.Uint32(pathData[offset+2 : offset+6])
		entry.ParentDir = binary.LittleEndian.Uint16(pathData[offset+6 : offset+8])

		nameStart := offset + 8
		nameEnd := nameStart + int(entry.NameLength)
		if nameEnd > len(pathData) {
			break
		}
		entry.Name = string(pathData[nameStart:nameEnd])

		// Entries are padded to an even length
		offset = nameEnd + nameEnd%2

		if entry.DirLocation == 0 || !r.inBounds(entry.DirLocation) {
			common.LogDebug("Invalid directory location: %d", entry.DirLocation)
			continue
		}
		if entry.Name == "\x00" {
			entry.Name = ""
		} else if !isValidFilename(entry.Name) {
			common.LogDebug("Invalid directory name: %q", entry.Name)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// BuildDirectoryPath returns the path of a path table entry by following
// its parents. Directory numbers in the table are 1-based; 1 is the root.
func BuildDirectoryPath(entry PathTableEntry, pathTable []PathTableEntry) string {
	parts := []string{entry.Name}
	for depth := 0; entry.ParentDir > 1 && depth < maxDirectoryDepth; depth++ {
		index := int(entry.ParentDir) - 1
		if index >= len(pathTable) {
			break
		}
		entry = pathTable[index]
		parts = append([]string{entry.Name}, parts...)
	}
	return strings.Join(parts, "/")
}

// ReadDir parses the directory whose extent is recorded at lba. The "." and
// ".." entries and records failing validation are left out.
func (r *Reader) ReadDir(lba, size uint32) ([]Entry, error) {
	var entries []Entry
	sectors := common.GetSizeInSectors(size, LogicalBlockSize)

	for sector := uint32(0); sector < sectors; sector++ {
		data, err := r.ReadSector(lba + sector)
		if err != nil {
			return nil, err
		}

		// Records never straddle a sector; a zero length byte pads to the next one
		for offset := 0; offset < LogicalBlockSize; {
			length := int(data[offset])
			if length == 0 {
				break
			}
			if length < dirRecordMinSize || offset+length > LogicalBlockSize {
				break
			}

			entry, err := parseRecord(data[offset : offset+length])
			offset += length
			if err != nil {
				continue
			}
			if entry.Name == "." || entry.Name == ".." {
				continue
			}
			if !r.isValidEntry(entry) {
				common.LogDebug(common.WarnSkippingInvalidFile, entry.Name, entry.LBA, entry.Size)
				continue
			}
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// Walk visits every entry below the root, directories before their
// contents. Returning an error from fn stops the walk.
func (r *Reader) Walk(fn func(entry Entry) error) error {
	return r.walk(r.descriptor.Root, "", 0, fn)
}

func (r *Reader) walk(dir Entry, prefix string, depth int, fn func(Entry) error) error {
	if depth > maxDirectoryDepth {
		return fmt.Errorf("directory tree deeper than %d levels at %s", maxDirectoryDepth, prefix)
	}

	entries, err := r.ReadDir(dir.LBA, dir.Size)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		entry.Path = path.Join("/", prefix, entry.Name)
		common.LogDebug(common.DebugDirectoryEntry, entry.Path, entry.LBA, entry.Size)
		if err := fn(entry); err != nil {
			return err
		}
		if entry.IsDir {
			if err := r.walk(entry, path.Join(prefix, entry.Name), depth+1, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// Open finds the entry at name, a "/" separated path from the root.
// Matching ignores case.
func (r *Reader) Open(name string) (Entry, error) {
	current := r.descriptor.Root
	for _, part := range strings.Split(strings.Trim(name, "/"), "/") {
		if part == "" {
			continue
		}
		if !current.IsDir {
			return Entry{}, fmt.Errorf("%s: not a directory", current.Path)
		}
		entries, err := r.ReadDir(current.LBA, current.Size)
		if err != nil {
			return Entry{}, err
		}

		found := false
		for _, entry := range entries {
			if strings.EqualFold(entry.Name, part) {
				entry.Path = path.Join(current.Path, entry.Name)
				current = entry
				found = true
				break
			}
		}
		if !found {
			return Entry{}, fmt.Errorf("%s: %w", name, os.ErrNotExist)
		}
	}
	return current, nil
}

// ExtractFile writes the contents of entry to w
func (r *Reader) ExtractFile(entry Entry, w io.Writer) error {
	if entry.IsDir {
		return fmt.Errorf("%s is a directory", entry.Path)
	}
	if !r.inBounds(entry.LBA) {
		return fmt.Errorf("LBA %d out of bounds (disc ends at %d)", entry.LBA, r.endLBA)
	}

	bytesLeft := entry.Size
	for sector := uint32(0); bytesLeft > 0; sector++ {
		data, err := r.ReadSector(entry.LBA + sector)
		if err != nil {
			return fmt.Errorf("failed to read data at offset %d: %w", entry.Size-bytesLeft, err)
		}
		chunk := uint32(LogicalBlockSize)
		if chunk > bytesLeft {
			chunk = bytesLeft
		}
		if _, err := w.Write(data[:chunk]); err != nil {
			return fmt.Errorf("failed to write data at offset %d: %w", entry.Size-bytesLeft, err)
		}
		bytesLeft -= chunk
	}
	return nil
}

// ExtractAll writes every file of the disc below outputDir, recreating the
// directory tree. It returns the number of files written.
func (r *Reader) ExtractAll(outputDir string) (int, error) {
	count := 0
	err := r.Walk(func(entry Entry) error {
		target := filepath.Join(outputDir, filepath.FromSlash(strings.TrimPrefix(entry.Path, "/")))
		if entry.IsDir {
			return os.MkdirAll(target, 0755)
		}

		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", filepath.Dir(target), err)
		}
		out, err := os.Create(target)
		if err != nil {
			return common.FormatError(common.ErrFailedToCreateOutput, err)
		}
		if err := r.ExtractFile(entry, out); err != nil {
			out.Close()
			return err
		}
		if err := out.Close(); err != nil {
			return common.FormatError(common.ErrFailedToWriteOutput, err)
		}
		count++
		return nil
	})
	return count, err
}

// inBounds reports whether the recorded block lba lies on the disc
func (r *Reader) inBounds(lba uint32) bool {
	return lba+common.PregapSectors < r.endLBA
}

func (r *Reader) isValidEntry(entry Entry) bool {
	if entry.Size > 0 && !r.inBounds(entry.LBA) {
		return false
	}
	// Largest extent a GD-ROM can hold
	if entry.Size > 1200*1024*1024 {
		return false
	}
	return isValidFilename(entry.Name)
}

// isValidFilename rejects names that are empty, contain NUL or are mostly
// unprintable, which is what garbage records decode to.
func isValidFilename(name string) bool {
	if len(name) == 0 || strings.Contains(name, "\x00") || !utf8.ValidString(name) {
		return false
	}

	nonPrintable := 0
	for _, r := range name {
		if !unicode.IsPrint(r) && r != '\t' {
			nonPrintable++
		}
	}
	return nonPrintable <= len(name)/2
}
