package gdrom

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/hansbonini/gdtools/pkg/common"
)

// MMC operation codes
const (
	MMCTestUnitReady = 0x00
	MMCInquiry       = 0x12
	MMCReadTOC       = 0x43
	MMCStopPlayScan  = 0x4E
	MMCPlayAudio12   = 0xA5
	MMCReadCD        = 0xBE
)

// PacketSize is the length of an ATAPI command packet
const PacketSize = 12

// Packet is a 12-byte ATAPI command
type Packet [PacketSize]byte

// Transport is the capability a real drive is reached through. Errors that
// carry device sense data are Error values; anything else is treated as an
// unresponsive drive.
type Transport interface {
	PacketRead(cmd Packet, buf []byte) (int, error)
	PacketCmd(cmd Packet) error
	MediaChanged() bool
}

// TOC response sizing
const (
	inquiryLength   = 36
	tocHeaderSize   = 4
	tocEntrySize    = 11
	tocMaxEntries   = 600
	tocMaxSize      = tocHeaderSize + tocMaxEntries*tocEntrySize
	tocPointSession = 0xA0
	tocPointLeadout = 0xA2
	tocSessionXA    = 0x20
)

// ScsiDisc is a disc in a real drive driven through MMC packet commands
type ScsiDisc struct {
	discInfo
	device    string
	transport Transport
	log       common.Logger
	tocBuf    []byte
	audio     audioState
}

// NewScsiDisc identifies the drive behind transport and reads its TOC. A
// drive with no readable disc is returned with an empty track list.
func NewScsiDisc(device string, transport Transport, log common.Logger) (*ScsiDisc, error) {
	d := &ScsiDisc{
		device:    device,
		transport: transport,
		log:       common.LoggerOrDefault(log),
		tocBuf:    make([]byte, tocMaxSize),
	}

	name, err := d.inquiry()
	if err != nil {
		d.log.Error("%s %s: %v", common.ErrFailedToQueryDrive, device, err)
		return nil, common.FormatError(common.ErrFailedToQueryDrive, err)
	}
	d.name = name
	d.log.Info(common.InfoDriveIdentified, name)

	d.readTOC()
	return d, nil
}

// Device returns the path or identifier the drive was opened with
func (d *ScsiDisc) Device() string {
	return d.device
}

func (d *ScsiDisc) inquiry() (string, error) {
	cmd := Packet{MMCInquiry, 0, 0, 0, inquiryLength}
	buf := make([]byte, inquiryLength)
	n, err := d.transport.PacketRead(cmd, buf)
	if err != nil {
		return "", err
	}
	if n < inquiryLength {
		return "", fmt.Errorf("short INQUIRY response: %d bytes", n)
	}

	vendor := strings.TrimSpace(string(buf[8:16]))
	product := strings.TrimSpace(string(buf[16:32]))
	revision := strings.TrimSpace(string(buf[32:36]))
	return strings.Join(strings.Fields(vendor+" "+product+" "+revision), " "), nil
}

// readTOC reloads the track list from a format 2 (full) TOC. On failure the
// disc is left empty.
func (d *ScsiDisc) readTOC() {
	cmd := Packet{MMCReadTOC, 0x02, 0x02, 0, 0, 0, 0, byte(tocMaxSize >> 8), byte(tocMaxSize & 0xFF)}
	n, err := d.transport.PacketRead(cmd, d.tocBuf)
	if err == nil {
		var tracks []Track
		var discType DiscType
		tracks, discType, err = ParseFullTOC(d.tocBuf[:n])
		if err == nil {
			d.setTracks(tracks, discType)
			d.log.Info(common.InfoTOCRebuilt, d.name, len(tracks), lastEnd(tracks))
			return
		}
	}

	d.setTracks(nil, DiscNone)
	var sense Error
	if errors.As(err, &sense) {
		d.log.Warn(common.WarnDiscNotReady, d.name, err)
	} else {
		d.log.Error("%s: %v", common.ErrFailedToReadTOC, err)
	}
}

func lastEnd(tracks []Track) uint32 {
	if len(tracks) == 0 {
		return 0
	}
	return tracks[len(tracks)-1].EndLBA()
}

// ParseFullTOC builds a track list from a READ TOC format 2 response. Each
// 11-byte descriptor with ADR 1 and point 1-99 is a track; point A0 gives
// the session type and A2 the leadout. Addresses are BCD MSF.
func ParseFullTOC(buf []byte) ([]Track, DiscType, error) {
	if len(buf) < tocHeaderSize {
		return nil, DiscNone, fmt.Errorf("%w: short TOC response", ErrInvalidImage)
	}
	end := int(binary.BigEndian.Uint16(buf[0:2])) + 2
	if end > len(buf) {
		end = len(buf)
	}

	var found [MaxTracks]bool
	var tracks [MaxTracks]Track
	maxTrack, lastTrack := 0, -1
	var leadout uint32
	hasLeadout := false
	discType := DiscCDROM

	for i := tocHeaderSize; i+tocEntrySize <= end; i += tocEntrySize {
		entry := buf[i : i+tocEntrySize]
		session := int(entry[0])
		adr := entry[1] >> 4
		control := entry[1] & 0x0F
		point := entry[3]
		common.LogDebug(common.DebugTOCEntry, session, adr, point)
		if adr != 1 {
			continue
		}

		switch {
		case point >= 1 && point <= MaxTracks:
			lba, err := common.BCDMSFToLBA(entry[8], entry[9], entry[10])
			if err != nil {
				return nil, DiscNone, fmt.Errorf("%w: track %d: %v", ErrInvalidImage, point, err)
			}
			index := int(point) - 1
			t := &tracks[index]
			t.Flags = control<<4 | FlagADRPosition
			t.Session = session - 1
			t.LBA = lba
			if t.Flags&FlagData != 0 {
				t.Mode = ModeMode1
			} else {
				t.Mode = ModeCDDA
			}
			t.SectorSize = t.Mode.SectorSize()
			found[index] = true
			if lastTrack >= 0 && lba >= tracks[lastTrack].LBA {
				tracks[lastTrack].SectorCount = lba - tracks[lastTrack].LBA
			}
			lastTrack = index
			if int(point) > maxTrack {
				maxTrack = int(point)
			}
		case point == tocPointSession:
			if entry[9] == tocSessionXA {
				discType = DiscCDROMXA
			} else {
				discType = DiscCDROM
			}
		case point == tocPointLeadout:
			lba, err := common.BCDMSFToLBA(entry[8], entry[9], entry[10])
			if err != nil {
				return nil, DiscNone, fmt.Errorf("%w: leadout: %v", ErrInvalidImage, err)
			}
			leadout, hasLeadout = lba, true
		}
	}

	if maxTrack == 0 {
		return nil, DiscNone, fmt.Errorf("%w: TOC lists no tracks", ErrInvalidImage)
	}
	for i := 0; i < maxTrack; i++ {
		if !found[i] {
			return nil, DiscNone, fmt.Errorf("%w: TOC is missing track %d", ErrInvalidImage, i+1)
		}
	}
	if hasLeadout && leadout >= tracks[lastTrack].LBA {
		tracks[lastTrack].SectorCount = leadout - tracks[lastTrack].LBA
	}

	result := make([]Track, maxTrack)
	copy(result, tracks[:maxTrack])
	if classifyTracks(result) == DiscAudio {
		discType = DiscAudio
	}
	return result, discType, nil
}

// CheckStatus re-reads the TOC when the transport reports a media change
func (d *ScsiDisc) CheckStatus() bool {
	if !d.transport.MediaChanged() {
		return false
	}
	d.log.Info(common.InfoMediaChanged, d.name)
	d.audio.stop()
	d.readTOC()
	return true
}

// ReadCDPacket builds a READ CD command for one sector. lba includes the
// 150-sector pregap, which MMC addressing does not.
func ReadCDPacket(lba uint32, mode ReadMode) Packet {
	var cmd Packet
	cmd[0] = MMCReadCD
	cmd[1] = byte(mode.SectorType()) << 1
	binary.BigEndian.PutUint32(cmd[2:6], lba-common.PregapSectors)
	cmd[8] = 1

	// byte 9: sync 0x80, header 0x20, sub-header 0x40, user data 0x10, EDC/ECC 0x08
	if mode&ReadRaw != 0 || mode.SectorType() == ReadCDDA {
		cmd[9] = 0xF8
		return cmd
	}
	if mode&ReadHeader != 0 {
		cmd[9] = 0x20
	}
	if mode&ReadSubHeader != 0 {
		cmd[9] |= 0x40
	}
	if mode&ReadData != 0 {
		cmd[9] |= 0x10
	}
	return cmd
}

// ReadSector reads one sector from the drive
func (d *ScsiDisc) ReadSector(lba uint32, mode ReadMode, buf []byte) (int, error) {
	if len(d.tracks) == 0 {
		return 0, ErrNoDisc
	}
	if d.trackAt(lba) == nil {
		return 0, ErrBadRead
	}
	if len(buf) < SectorSizeRaw {
		return 0, ErrBadField
	}

	n, err := d.transport.PacketRead(ReadCDPacket(lba, mode), buf[:SectorSizeRaw])
	if err != nil {
		return 0, d.transportError(MMCReadCD, err)
	}
	return n, nil
}

// PlayAudio starts CD-DA playback on the drive
func (d *ScsiDisc) PlayAudio(lba, endLBA uint32) error {
	if len(d.tracks) == 0 {
		return ErrNoDisc
	}
	if endLBA <= lba || lba < common.PregapSectors {
		return ErrBadField
	}

	var cmd Packet
	cmd[0] = MMCPlayAudio12
	binary.BigEndian.PutUint32(cmd[2:6], lba-common.PregapSectors)
	binary.BigEndian.PutUint32(cmd[6:10], endLBA-lba)
	if err := d.transport.PacketCmd(cmd); err != nil {
		return d.transportError(MMCPlayAudio12, err)
	}
	d.audio.start(lba, endLBA)
	return nil
}

// StopAudio stops playback
func (d *ScsiDisc) StopAudio() error {
	if len(d.tracks) == 0 {
		return ErrNoDisc
	}
	if err := d.transport.PacketCmd(Packet{MMCStopPlayScan}); err != nil {
		return d.transportError(MMCStopPlayScan, err)
	}
	d.audio.stop()
	return nil
}

// AudioPosition returns where playback was last started and whether it is running
func (d *ScsiDisc) AudioPosition() (uint32, bool) {
	return d.audio.lba, d.audio.playing
}

// RunTimeSlice does nothing: the drive keeps its own time
func (d *ScsiDisc) RunTimeSlice(nanosecs uint32) {}

// Title returns the disc title read from the boot sector, or "" if none
func (d *ScsiDisc) Title() string {
	return d.cachedTitle(d)
}

// Close releases the disc. A transport that is also an io.Closer is closed
// when closeBacking is set.
func (d *ScsiDisc) Close(closeBacking bool) error {
	if !closeBacking {
		return nil
	}
	if c, ok := d.transport.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// transportError logs a failed command and normalises its status
func (d *ScsiDisc) transportError(opcode byte, err error) error {
	var sense Error
	if errors.As(err, &sense) {
		d.log.Warn(common.WarnSenseError, uint16(sense), opcode)
		return sense
	}
	d.log.Error("%s: %v", common.ErrFailedToQueryDrive, err)
	return fmt.Errorf("%w: %v", ErrNoResponse, err)
}
