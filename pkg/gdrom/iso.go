package gdrom

import (
	"fmt"

	"github.com/hansbonini/gdtools/pkg/common"
)

// ISOFormat mounts plain 2048-byte-per-sector images as a single Mode 1 track
type ISOFormat struct{}

func (ISOFormat) Name() string {
	return "ISO"
}

// IsValid checks for whole sectors and a CD001 volume descriptor at sector 16
func (ISOFormat) IsValid(src Source) bool {
	size := src.Size()
	if size%SectorSizeData != 0 || size < (isoDescriptor+1)*SectorSizeData {
		return false
	}

	id := make([]byte, 6)
	if err := ReadAtSigned(src, id, isoDescriptor*SectorSizeData); err != nil {
		return false
	}
	return string(id[1:6]) == "CD001"
}

// Open builds the single data track
func (f ISOFormat) Open(name string, src Source) (*ImageDisc, error) {
	sectors, err := common.SafeInt64ToUint32(src.Size() / SectorSizeData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	tracks := []Track{{
		Mode:        ModeMode1,
		Flags:       FlagData | FlagADRPosition,
		LBA:         common.PregapSectors,
		SectorSize:  SectorSizeData,
		SectorCount: sectors,
	}}
	return newImageDisc(name, f.Name(), src, tracks, DiscCDROM, nil)
}
