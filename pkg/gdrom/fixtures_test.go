package gdrom

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/hansbonini/gdtools/pkg/common"
)

// sectorData returns count sectors of size bytes, each filled with a
// pattern derived from its index so reads can be told apart.
func sectorData(count, size int, seed byte) []byte {
	data := make([]byte, count*size)
	for i := range data {
		data[i] = seed + byte(i/size) + byte(i%7)
	}
	return data
}

// isoImage builds a 2048-byte sector image with a primary volume descriptor
func isoImage(sectors int, volumeID string) []byte {
	img := sectorData(sectors, SectorSizeData, 0x10)
	pvd := img[isoDescriptor*SectorSizeData : (isoDescriptor+1)*SectorSizeData]
	clear(pvd)
	pvd[0] = 1
	copy(pvd[1:6], "CD001")
	pvd[6] = 1
	copy(pvd[40:72], bytes.Repeat([]byte{' '}, 32))
	copy(pvd[40:], volumeID)
	return img
}

func nrgChunk(tag string, payload []byte) []byte {
	chunk := make([]byte, 8, 8+len(payload))
	copy(chunk, tag)
	binary.BigEndian.PutUint32(chunk[4:], uint32(len(payload)))
	return append(chunk, payload...)
}

// nrgImage appends the chunk directory and a v5.5 (or v5.0) footer to data
func nrgImage(data []byte, v55 bool, chunks ...[]byte) []byte {
	offset := len(data)
	img := append([]byte{}, data...)
	for _, c := range chunks {
		img = append(img, c...)
	}
	img = append(img, nrgChunk("END!", nil)...)

	if v55 {
		footer := make([]byte, 12)
		copy(footer, "NER5")
		binary.BigEndian.PutUint64(footer[4:], uint64(offset))
		return append(img, footer...)
	}
	footer := make([]byte, 8)
	copy(footer, "NERO")
	binary.BigEndian.PutUint32(footer[4:], uint32(offset))
	return append(img, footer...)
}

// etn2Entry describes one track-at-once track of an ETN2 chunk
func etn2Entry(offset, length uint64, mode, lba uint32) []byte {
	entry := make([]byte, nrgETN2Size)
	binary.BigEndian.PutUint64(entry[0:], offset)
	binary.BigEndian.PutUint64(entry[8:], length)
	binary.BigEndian.PutUint32(entry[16:], mode)
	binary.BigEndian.PutUint32(entry[20:], lba)
	return entry
}

func etnfEntry(offset, length, mode, lba uint32) []byte {
	entry := make([]byte, nrgETNFSize)
	binary.BigEndian.PutUint32(entry[0:], offset)
	binary.BigEndian.PutUint32(entry[4:], length)
	binary.BigEndian.PutUint32(entry[8:], mode)
	binary.BigEndian.PutUint32(entry[12:], lba)
	return entry
}

// cdiTrack is the part of a CDI track descriptor the fixtures vary
type cdiTrack struct {
	pregap, length, mode, sizeCode, startLBA uint32
	longGap                                  bool

	newFormat bool // non-zero format word followed by its 8 extra bytes
	extension bool // extension marker followed by the long trailing block
	badMarker bool // corrupt track start marker
}

// cdiImage lays out the tracks' data (pregaps zero-filled) followed by the
// header and a version trailer.
func cdiImage(version uint32, sessions [][]cdiTrack) []byte {
	var img []byte
	for _, session := range sessions {
		for i, t := range session {
			size := 2048
			if t.mode == 0 || t.sizeCode == 2 {
				size = 2352
			} else if t.sizeCode == 1 {
				size = 2336
			}
			img = append(img, make([]byte, int(t.pregap)*size)...)
			img = append(img, sectorData(int(t.length), size, byte(0x40+i))...)
		}
	}

	var header bytes.Buffer
	headerOffset := len(img)
	binary.Write(&header, binary.LittleEndian, uint16(len(sessions)))
	for _, session := range sessions {
		binary.Write(&header, binary.LittleEndian, uint16(len(session)))
		for _, t := range session {
			if t.newFormat {
				binary.Write(&header, binary.LittleEndian, uint32(1))
				header.Write(bytes.Repeat([]byte{0xEE}, cdiNewFormatSkip))
			} else {
				binary.Write(&header, binary.LittleEndian, uint32(0))
			}
			marker := cdiTrackStartMarker
			if t.badMarker {
				marker[2] = 0x7F
			}
			header.Write(marker[:])
			header.Write(make([]byte, cdiTrackMarkerSkip))
			name := "track.iso"
			header.WriteByte(byte(len(name)))
			header.WriteString(name)
			header.Write(make([]byte, cdiNameSkip))
			if t.longGap {
				binary.Write(&header, binary.LittleEndian, uint32(cdiVersionFlag))
				header.Write(make([]byte, cdiLongGap))
			} else {
				binary.Write(&header, binary.LittleEndian, uint32(0))
				header.Write(make([]byte, cdiShortGap))
			}
			binary.Write(&header, binary.LittleEndian, cdiTrackRecord{
				PregapLength: t.pregap,
				Length:       t.length,
				Mode:         t.mode,
				StartLBA:     t.startLBA,
				TotalLength:  t.pregap + t.length,
				SectorSize:   t.sizeCode,
			})
			if t.extension {
				header.Write(cdiExtensionMarker[:])
				header.Write(bytes.Repeat([]byte{0xEE}, cdiExtSkip))
			} else {
				header.Write(make([]byte, len(cdiExtensionMarker)+cdiPlainSkip))
			}
		}
		header.Write(make([]byte, cdiSessionTrailer))
	}

	img = append(img, header.Bytes()...)
	trailer := make([]byte, cdiTrailerSize)
	binary.LittleEndian.PutUint32(trailer[0:], version)
	binary.LittleEndian.PutUint32(trailer[4:], uint32(headerOffset))
	return append(img, trailer...)
}

// writeFile writes data below dir and returns the path
func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

// openSource mounts an in-memory image
func openSource(t *testing.T, name string, img []byte) *ImageDisc {
	t.Helper()
	disc, err := OpenImageSource(name, bytes.NewReader(img))
	if err != nil {
		t.Fatalf("OpenImageSource(%s) failed: %v", name, err)
	}
	return disc
}

// fullTOCEntry builds an 11-byte READ TOC format 2 descriptor
func fullTOCEntry(session, control, point byte, p0, p1, p2 byte) []byte {
	return []byte{session, 0x10 | control, 0, point, 0, 0, 0, 0, p0, p1, p2}
}

// fullTOC builds a format 2 response describing tracks
func fullTOC(tracks []Track, xa bool) []byte {
	var body []byte
	sessionType := byte(0x00)
	if xa {
		sessionType = tocSessionXA
	}
	last := tracks[len(tracks)-1]
	lm, ls, lf := common.LBAToBCDMSF(last.EndLBA())
	body = append(body, fullTOCEntry(1, tracks[0].Flags>>4, tocPointSession, 1, sessionType, 0)...)
	body = append(body, fullTOCEntry(1, last.Flags>>4, 0xA1, byte(len(tracks)), 0, 0)...)
	body = append(body, fullTOCEntry(1, last.Flags>>4, tocPointLeadout, lm, ls, lf)...)
	for i, t := range tracks {
		m, s, f := common.LBAToBCDMSF(t.LBA)
		body = append(body, fullTOCEntry(byte(t.Session+1), t.Flags>>4, byte(i+1), m, s, f)...)
	}

	buf := make([]byte, tocHeaderSize, tocHeaderSize+len(body))
	binary.BigEndian.PutUint16(buf[0:], uint16(len(body)+2))
	buf[2], buf[3] = 1, 1
	return append(buf, body...)
}
