// Package common provides common utilities for CD-ROM operations.
// This file contains functions for MSF/BCD conversion and CD-ROM addressing.
package common

import "fmt"

// CD addressing constants
const (
	FramesPerSecond  = 75  // Sectors (frames) per second of CD time
	SecondsPerMinute = 60  // Seconds per minute of CD time
	PregapSectors    = 150 // Lead-in offset between MSF 00:00:00 and the first track
	MaxMSFMinutes    = 99  // Highest minute value representable in BCD
)

// MaxMSFLBA is the last address reachable with a two-digit minute field (99:59:74)
const MaxMSFLBA = (MaxMSFMinutes*SecondsPerMinute+SecondsPerMinute-1)*FramesPerSecond + FramesPerSecond - 1

// IsValidBCD reports whether both nibbles of v are decimal digits
func IsValidBCD(v uint8) bool {
	return v>>4 <= 9 && v&0x0F <= 9
}

// BCDToBinary converts a packed BCD byte to its binary value
func BCDToBinary(v uint8) uint8 {
	return (v>>4)*10 + (v & 0x0F)
}

// BinaryToBCD converts a binary value (0-99) to packed BCD
func BinaryToBCD(v uint8) uint8 {
	return ((v / 10) << 4) | (v % 10)
}

// MSFToLBA converts binary minute/second/frame values to an address.
// The 150-sector pregap is not removed: 00:02:00 is address 150.
func MSFToLBA(m, s, f uint8) uint32 {
	return FramesPerSecond*(SecondsPerMinute*uint32(m)+uint32(s)) + uint32(f)
}

// LBAToMSF converts an address to binary minute/second/frame values
func LBAToMSF(lba uint32) (m, s, f uint8) {
	m = uint8(lba / (SecondsPerMinute * FramesPerSecond))
	s = uint8((lba / FramesPerSecond) % SecondsPerMinute)
	f = uint8(lba % FramesPerSecond)
	return m, s, f
}

// BCDMSFToLBA converts BCD minute/second/frame values to an address.
// Returns an error if any field is not valid BCD or is out of range.
func BCDMSFToLBA(m, s, f uint8) (uint32, error) {
	if !IsValidBCD(m) || !IsValidBCD(s) || !IsValidBCD(f) {
		return 0, fmt.Errorf("invalid BCD MSF %02X:%02X:%02X", m, s, f)
	}
	bm, bs, bf := BCDToBinary(m), BCDToBinary(s), BCDToBinary(f)
	if bs >= SecondsPerMinute || bf >= FramesPerSecond {
		return 0, fmt.Errorf("MSF %02X:%02X:%02X out of range", m, s, f)
	}
	return MSFToLBA(bm, bs, bf), nil
}

// LBAToBCDMSF converts an address to BCD minute/second/frame values.
// Addresses beyond 99:59:74 wrap the minute field.
func LBAToBCDMSF(lba uint32) (m, s, f uint8) {
	bm, bs, bf := LBAToMSF(lba)
	return BinaryToBCD(bm % (MaxMSFMinutes + 1)), BinaryToBCD(bs), BinaryToBCD(bf)
}

// FormatMSF renders an address as MM:SS:FF
func FormatMSF(lba uint32) string {
	m, s, f := LBAToMSF(lba)
	return fmt.Sprintf("%02d:%02d:%02d", m, s, f)
}

// GetSizeInSectors calculates the number of sectors needed for a given size in bytes
func GetSizeInSectors(sizeBytes uint32, sectorSize uint32) uint32 {
	return (sizeBytes + sectorSize - 1) / sectorSize
}
