// Package common provides tests for utility functions
package common

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
)

func TestUint24BE(t *testing.T) {
	testCases := []struct {
		name     string
		data     []byte
		expected uint32
	}{
		{"pregap", []byte{0x00, 0x00, 0x96}, 150},
		{"high density start", []byte{0x00, 0xAF, 0xC8}, 45000},
		{"max value", []byte{0xFF, 0xFF, 0xFF}, 0xFFFFFF},
		{"trailing bytes ignored", []byte{0x01, 0x02, 0x03, 0x04}, 0x010203},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := Uint24BE(tc.data)
			if result != tc.expected {
				t.Errorf("Uint24BE() = 0x%06X, want 0x%06X", result, tc.expected)
			}

			buf := make([]byte, 3)
			PutUint24BE(buf, result)
			if !bytes.Equal(buf, tc.data[:3]) {
				t.Errorf("PutUint24BE(0x%06X) = % X, want % X", result, buf, tc.data[:3])
			}
		})
	}
}

func TestPutUint24BE_Truncates(t *testing.T) {
	buf := make([]byte, 3)
	PutUint24BE(buf, 0x12345678)
	if !bytes.Equal(buf, []byte{0x34, 0x56, 0x78}) {
		t.Errorf("PutUint24BE() = % X, want 34 56 78", buf)
	}
}

func TestReadUint32BE(t *testing.T) {
	reader := bytes.NewReader([]byte{'N', 'E', 'R', '5', 0x00})
	value, err := ReadUint32BE(reader)
	if err != nil {
		t.Fatalf("ReadUint32BE() failed: %v", err)
	}
	if value != 0x4E455235 {
		t.Errorf("ReadUint32BE() = 0x%08X, want 0x4E455235", value)
	}

	if _, err := ReadUint32BE(reader); err == nil {
		t.Error("ReadUint32BE() should fail with one byte left")
	}
}

func TestReadUint16LE(t *testing.T) {
	testCases := []struct {
		name     string
		data     []byte
		expected uint16
		hasError bool
	}{
		{"normal value", []byte{0x34, 0x12}, 0x1234, false},
		{"zero value", []byte{0x00, 0x00}, 0x0000, false},
		{"max value", []byte{0xFF, 0xFF}, 0xFFFF, false},
		{"incomplete data", []byte{0x34}, 0, true},
		{"empty data", []byte{}, 0, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			reader := bytes.NewReader(tc.data)
			result, err := ReadUint16LE(reader)

			if tc.hasError {
				if err == nil {
					t.Errorf("ReadUint16LE() should fail with data %v", tc.data)
				}
			} else {
				if err != nil {
					t.Errorf("ReadUint16LE() failed: %v", err)
				}
				if result != tc.expected {
					t.Errorf("ReadUint16LE() = 0x%04X, want 0x%04X", result, tc.expected)
				}
			}
		})
	}
}

func TestReadUint32LE(t *testing.T) {
	testCases := []struct {
		name     string
		data     []byte
		expected uint32
		hasError bool
	}{
		{"normal value", []byte{0x78, 0x56, 0x34, 0x12}, 0x12345678, false},
		{"zero value", []byte{0x00, 0x00, 0x00, 0x00}, 0x00000000, false},
		{"max value", []byte{0xFF, 0xFF, 0xFF, 0xFF}, 0xFFFFFFFF, false},
		{"incomplete data", []byte{0x78, 0x56, 0x34}, 0, true},
		{"empty data", []byte{}, 0, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			reader := bytes.NewReader(tc.data)
			result, err := ReadUint32LE(reader)

			if tc.hasError {
				if err == nil {
					t.Errorf("ReadUint32LE() should fail with data %v", tc.data)
				}
			} else {
				if err != nil {
					t.Errorf("ReadUint32LE() failed: %v", err)
				}
				if result != tc.expected {
					t.Errorf("ReadUint32LE() = 0x%08X, want 0x%08X", result, tc.expected)
				}
			}
		})
	}
}

func TestReadBytes(t *testing.T) {
	testCases := []struct {
		name     string
		data     []byte
		count    int
		expected []byte
		hasError bool
	}{
		{"normal read", []byte{0x01, 0x02, 0x03, 0x04}, 3, []byte{0x01, 0x02, 0x03}, false},
		{"exact read", []byte{0x01, 0x02}, 2, []byte{0x01, 0x02}, false},
		{"zero read", []byte{0x01, 0x02}, 0, []byte{}, false},
		{"insufficient data", []byte{0x01, 0x02}, 3, nil, true},
		{"empty source", []byte{}, 1, nil, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			reader := bytes.NewReader(tc.data)
			result, err := ReadBytes(reader, tc.count)

			if tc.hasError {
				if err == nil {
					t.Errorf("ReadBytes() should fail when requesting %d bytes from %v", tc.count, tc.data)
				}
			} else {
				if err != nil {
					t.Errorf("ReadBytes() failed: %v", err)
				}
				if len(result) != len(tc.expected) {
					t.Errorf("ReadBytes() returned %d bytes, want %d", len(result), len(tc.expected))
				} else {
					for i, expected := range tc.expected {
						if result[i] != expected {
							t.Errorf("ReadBytes()[%d] = 0x%02X, want 0x%02X", i, result[i], expected)
						}
					}
				}
			}
		})
	}
}

func TestSkipBytes(t *testing.T) {
	testCases := []struct {
		name     string
		data     []byte
		skip     int
		hasError bool
	}{
		{"normal skip", []byte{0x01, 0x02, 0x03, 0x04, 0x05}, 3, false},
		{"skip all", []byte{0x01, 0x02}, 2, false},
		{"skip zero", []byte{0x01, 0x02}, 0, false},
		{"skip more than available", []byte{0x01, 0x02}, 5, true},
		{"skip from empty", []byte{}, 1, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			reader := bytes.NewReader(tc.data)
			err := SkipBytes(reader, tc.skip)

			if tc.hasError {
				if err == nil {
					t.Errorf("SkipBytes() should fail when skipping %d bytes from %v", tc.skip, tc.data)
				}
			} else {
				if err != nil {
					t.Errorf("SkipBytes() failed: %v", err)
				}

				// Verify that the correct number of bytes were skipped
				remaining, readErr := io.ReadAll(reader)
				if readErr != nil {
					t.Errorf("Failed to read remaining bytes: %v", readErr)
				}

				expectedRemaining := len(tc.data) - tc.skip
				if len(remaining) != expectedRemaining {
					t.Errorf("After skipping %d bytes, %d bytes remain, want %d", tc.skip, len(remaining), expectedRemaining)
				}
			}
		})
	}
}

// Test reading from binary data created with the same endianness
func TestReadFunctions_BinaryCompatibility(t *testing.T) {
	var buffer bytes.Buffer

	// Write test data using binary.Write
	test16 := uint16(0x1234)
	test32 := uint32(0x12345678)

	binary.Write(&buffer, binary.LittleEndian, test16)
	binary.Write(&buffer, binary.LittleEndian, test32)

	reader := bytes.NewReader(buffer.Bytes())

	// Read back using our functions
	read16, err := ReadUint16LE(reader)
	if err != nil {
		t.Fatalf("ReadUint16LE() failed: %v", err)
	}

	if read16 != test16 {
		t.Errorf("ReadUint16LE() = 0x%04X, want 0x%04X", read16, test16)
	}

	read32, err := ReadUint32LE(reader)
	if err != nil {
		t.Fatalf("ReadUint32LE() failed: %v", err)
	}

	if read32 != test32 {
		t.Errorf("ReadUint32LE() = 0x%08X, want 0x%08X", read32, test32)
	}
}
