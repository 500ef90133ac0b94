// Package iso9660 reads the ISO9660 file system of a mounted disc through
// the disc's sector interface, so it works the same for image files and
// real drives.
package iso9660

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/hansbonini/gdtools/pkg/common"
)

// Layout constants
const (
	LogicalBlockSize     = 2048
	DescriptorSector     = 16 // First volume descriptor, relative to the track start
	DescriptorPrimary    = 0x01
	DescriptorTerminator = 0xFF
	StandardID           = "CD001"
	dirRecordMinSize     = 33
	rootRecordOffset     = 156
	rootRecordSize       = 34
)

// Directory record flags
const (
	FlagHidden    = 0x01
	FlagDirectory = 0x02
)

// Descriptor holds the fields of the primary volume descriptor used to walk
// the file system.
type Descriptor struct {
	Type             byte
	Version          byte
	SystemID         string
	VolumeID         string
	VolumeSpaceSize  uint32
	LogicalBlockSize uint16
	PathTableSize    uint32
	PathTableLBA     uint32 // Type-L path table
	Root             Entry
	PublisherID      string
	PreparerID       string
	ApplicationID    string
}

// parseDescriptor decodes a primary volume descriptor sector
func parseDescriptor(data []byte) (*Descriptor, error) {
	if len(data) < LogicalBlockSize {
		return nil, fmt.Errorf("%s: short sector", common.ErrFailedToReadDescriptor)
	}
	if string(data[1:6]) != StandardID {
		return nil, fmt.Errorf("%s: invalid ISO9660 signature", common.ErrFailedToReadDescriptor)
	}
	if data[0] != DescriptorPrimary {
		return nil, fmt.Errorf("%s: descriptor type %d is not primary", common.ErrFailedToReadDescriptor, data[0])
	}

	root, err := parseRecord(data[rootRecordOffset : rootRecordOffset+rootRecordSize])
	if err != nil {
		return nil, fmt.Errorf("%s: root record: %w", common.ErrFailedToReadDescriptor, err)
	}
	root.Name = ""
	root.Path = "/"

	return &Descriptor{
		Type:             data[0],
		Version:          data[6],
		SystemID:         trimIdentifier(data[8:40]),
		VolumeID:         trimIdentifier(data[40:72]),
		VolumeSpaceSize:  binary.LittleEndian.Uint32(data[80:84]),
		LogicalBlockSize: binary.LittleEndian.Uint16(data[128:130]),
		PathTableSize:    binary.LittleEndian.Uint32(data[132:136]),
		PathTableLBA:     binary.LittleEndian.Uint32(data[140:144]),
		Root:             root,
		PublisherID:      trimIdentifier(data[318:446]),
		PreparerID:       trimIdentifier(data[446:574]),
		ApplicationID:    trimIdentifier(data[574:702]),
	}, nil
}

func trimIdentifier(b []byte) string {
	return strings.TrimRight(string(b), " \x00")
}

// PathTableEntry is one directory listed in the path table
type PathTableEntry struct {
	NameLength         byte
	ExtendedAttrLength byte
	DirLocation        uint32
	ParentDir          uint16
	Name               string
}

// Entry is a file or directory record
type Entry struct {
	Name       string // Identifier without the ";1" version suffix
	Path       string // Full path from the root, "/" separated
	LBA        uint32 // Extent as recorded, without the 150-sector pregap
	MSF        string // Disc address of the extent in MM:SS:FF
	Size       uint32 // Bytes
	IsDir      bool
	Hidden     bool
	ExtentSize uint32 // Sectors
}

// parseRecord decodes one directory record
func parseRecord(data []byte) (Entry, error) {
	if len(data) < dirRecordMinSize {
		return Entry{}, fmt.Errorf("insufficient data")
	}

	length := int(data[0])
	lba := binary.LittleEndian.Uint32(data[2:6])
	size := binary.LittleEndian.Uint32(data[10:14])
	flags := data[25]
	nameLength := int(data[32])

	if dirRecordMinSize+nameLength > length || length > len(data) {
		return Entry{}, fmt.Errorf("filename exceeds entry bounds")
	}

	return Entry{
		Name:       cleanIdentifier(string(data[dirRecordMinSize : dirRecordMinSize+nameLength])),
		LBA:        lba,
		MSF:        common.FormatMSF(lba + common.PregapSectors),
		Size:       size,
		IsDir:      flags&FlagDirectory != 0,
		Hidden:     flags&FlagHidden != 0,
		ExtentSize: common.GetSizeInSectors(size, LogicalBlockSize),
	}, nil
}

// cleanIdentifier strips the version suffix and names the special entries
func cleanIdentifier(name string) string {
	if idx := strings.Index(name, ";"); idx != -1 {
		name = name[:idx]
	}
	switch name {
	case "\x00":
		return "."
	case "\x01":
		return ".."
	}
	return strings.TrimSuffix(name, ".")
}
