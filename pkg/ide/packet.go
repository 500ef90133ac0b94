package ide

import (
	"github.com/hansbonini/gdtools/pkg/common"
	"github.com/hansbonini/gdtools/pkg/gdrom"
)

// GD-ROM packet commands
const (
	PktTestReady   byte = 0x00
	PktReqMode     byte = 0x11
	PktSetMode     byte = 0x12
	PktReqError    byte = 0x13
	PktReadTOC     byte = 0x14
	PktSessionInfo byte = 0x15
	PktPlay        byte = 0x20
	PktPause       byte = 0x22
	PktReadSector  byte = 0x30
	PktGetStatus   byte = 0x40
)

// Drive status reported in session info and subcode replies
const (
	drivePaused  byte = 0x01
	drivePlaying byte = 0x03
	driveNoDisc  byte = 0x07
)

// Subcode audio status
const (
	audioPlaying  byte = 0x11
	audioNoStatus byte = 0x15
)

// Play packet address formats
const (
	playByLBA = 1
	playByMSF = 2
)

const (
	senseReplySize   = 10
	subcodeQSize     = 14
	subcodeRawSize   = 100
	identifyWords    = 256
	identifyConfig   = 0x8580 // ATAPI, CD-ROM, removable, 12-byte packets
	identifyFirmware = "6.42"
	identifyModel    = "SE CD-ROM DRIVE"
)

// defaultModeBlock is the drive's mode block: a short settings header
// followed by the manufacturer, model and firmware strings.
var defaultModeBlock = [40]byte{
	0x00, 0xB4, 0x19, 0x00, 0x00, 0x08,
	'S', 'E', ' ', ' ', ' ', ' ', ' ', ' ',
	'C', 'D', '-', 'R', 'O', 'M', ' ', 'D', 'R', 'I', 'V', 'E', ' ', ' ', ' ', ' ',
	'6', '.', '4', '2', '9', '9', '0', '3', '1', '6',
}

func (c *Controller) dispatchPacket(data []byte) {
	copy(c.packet[:], data)
	cmd := c.packet
	c.stats.Packets++
	c.state = StateBusy
	common.LogDebug(common.DebugPacketCommand, cmd[:])

	var resp []byte
	var err error
	switch cmd[0] {
	case PktTestReady:
		_, err = c.disc()
	case PktReqMode:
		resp, err = c.reqMode(cmd)
	case PktSetMode:
		err = c.setMode(cmd)
		if err == nil {
			return
		}
	case PktReqError:
		resp, err = c.reqError(cmd)
	case PktReadTOC:
		resp, err = c.readTOC(cmd)
	case PktSessionInfo:
		resp, err = c.sessionInfo(cmd)
	case PktPlay:
		err = c.play(cmd)
	case PktPause:
		err = c.pause()
	case PktReadSector:
		resp, err = c.readSectors(cmd)
	case PktGetStatus:
		resp, err = c.getStatus(cmd)
	default:
		c.log.Warn(common.WarnUnknownPacket, cmd[0])
		err = gdrom.ErrBadCmd
	}

	if err != nil {
		c.fail(err)
		return
	}
	if resp == nil {
		c.complete()
		return
	}
	c.startRead(resp, c.hostLimit)
}

// disc returns the mounted disc, failing NoDisc when the drive is empty
func (c *Controller) disc() (gdrom.Disc, error) {
	disc := c.drive.Disc()
	if disc == nil || len(disc.Tracks()) == 0 {
		return nil, gdrom.ErrNoDisc
	}
	return disc, nil
}

func (c *Controller) driveStatus() byte {
	disc := c.drive.Disc()
	if disc == nil || len(disc.Tracks()) == 0 {
		return driveNoDisc
	}
	if _, playing := disc.AudioPosition(); playing {
		return drivePlaying
	}
	return drivePaused
}

// reply copies data, truncated to limit bytes, into the scratch buffer
func (c *Controller) reply(data []byte, limit int) []byte {
	if limit < len(data) {
		data = data[:limit]
	}
	buf := c.scratch.ensure(len(data), 0)
	n := copy(buf, data)
	return buf[:n]
}

// modeRange validates the offset and length fields of REQ_MODE and SET_MODE
func (c *Controller) modeRange(cmd gdrom.Packet) (int, int, error) {
	offset, length := int(cmd[2]), int(cmd[4])
	if length == 0 || offset >= len(c.mode) {
		return 0, 0, gdrom.ErrBadField
	}
	if offset+length > len(c.mode) {
		length = len(c.mode) - offset
	}
	return offset, length, nil
}

func (c *Controller) reqMode(cmd gdrom.Packet) ([]byte, error) {
	offset, length, err := c.modeRange(cmd)
	if err != nil {
		return nil, err
	}
	return c.reply(c.mode[offset:offset+length], length), nil
}

// setMode arms a PIO write of the mode bytes; the command completes when
// the host has written them.
func (c *Controller) setMode(cmd gdrom.Packet) error {
	offset, length, err := c.modeRange(cmd)
	if err != nil {
		return err
	}
	c.startWrite(length+(length&1), 0, func(data []byte) {
		copy(c.mode[offset:offset+length], data)
		c.complete()
	})
	c.raiseInterrupt()
	return nil
}

// reqError reports the last failure in fixed sense format and clears it
func (c *Controller) reqError(cmd gdrom.Packet) ([]byte, error) {
	length := int(cmd[4])
	if length == 0 {
		return nil, gdrom.ErrBadField
	}

	var sense [senseReplySize]byte
	sense[0] = 0xF0
	sense[2] = c.sense.SenseKey()
	sense[8] = c.sense.ASC()
	c.sense = gdrom.ErrOK
	return c.reply(sense[:], length), nil
}

func (c *Controller) readTOC(cmd gdrom.Packet) ([]byte, error) {
	disc, err := c.disc()
	if err != nil {
		return nil, err
	}
	length := int(cmd[3])<<8 | int(cmd[4])
	if length == 0 {
		return nil, gdrom.ErrBadField
	}

	toc, err := gdrom.EncodeTOC(disc.Tracks(), disc.Type(), int(cmd[1]&1))
	if err != nil {
		return nil, err
	}
	return c.reply(toc, length), nil
}

func (c *Controller) sessionInfo(cmd gdrom.Packet) ([]byte, error) {
	disc, err := c.disc()
	if err != nil {
		return nil, err
	}
	length := int(cmd[4])
	if length == 0 {
		return nil, gdrom.ErrBadField
	}

	info, err := gdrom.EncodeSessionInfo(disc.Tracks(), c.driveStatus(), int(cmd[2]))
	if err != nil {
		return nil, err
	}
	return c.reply(info, length), nil
}

func (c *Controller) play(cmd gdrom.Packet) error {
	disc, err := c.disc()
	if err != nil {
		return err
	}

	var start, end uint32
	switch cmd[1] & 0x07 {
	case playByLBA:
		start = common.Uint24BE(cmd[2:5])
		end = common.Uint24BE(cmd[8:11])
	case playByMSF:
		start = common.MSFToLBA(cmd[2], cmd[3], cmd[4])
		end = common.MSFToLBA(cmd[8], cmd[9], cmd[10])
	default:
		return gdrom.ErrBadField
	}
	return disc.PlayAudio(start, end)
}

func (c *Controller) pause() error {
	disc, err := c.disc()
	if err != nil {
		return err
	}
	return disc.StopAudio()
}

// readSectors reads count sectors starting at lba into the scratch buffer,
// which grows as the reply does.
func (c *Controller) readSectors(cmd gdrom.Packet) ([]byte, error) {
	disc, err := c.disc()
	if err != nil {
		return nil, err
	}

	mode := gdrom.ReadMode(cmd[1])
	lba := common.Uint24BE(cmd[2:5])
	count := common.Uint24BE(cmd[8:11])
	if count == 0 {
		return nil, gdrom.ErrBadField
	}
	// The range must end within the last track
	tracks := disc.Tracks()
	if lba+count > tracks[len(tracks)-1].EndLBA() {
		return nil, gdrom.ErrBadField
	}

	size := 0
	for i := uint32(0); i < count; i++ {
		buf := c.scratch.ensure(size+gdrom.SectorSizeRaw, size)
		n, err := disc.ReadSector(lba+i, mode, buf[size:])
		if err != nil {
			return nil, err
		}
		size += n
	}
	return c.scratch.buf[:size], nil
}

// getStatus returns the Q subchannel position of the play cursor. Format 0
// is the raw subcode block, format 1 the decoded Q data.
func (c *Controller) getStatus(cmd gdrom.Packet) ([]byte, error) {
	disc, err := c.disc()
	if err != nil {
		return nil, err
	}
	length := int(cmd[4])
	if length == 0 {
		return nil, gdrom.ErrBadField
	}

	lba, playing := disc.AudioPosition()
	var q [subcodeRawSize]byte
	q[1] = audioNoStatus
	if playing {
		q[1] = audioPlaying
	}

	switch cmd[1] & 0x0F {
	case 0:
		q[3] = subcodeRawSize
		return c.reply(q[:], length), nil
	case 1:
		q[3] = subcodeQSize
		tracks := disc.Tracks()
		for i := range tracks {
			if tracks[i].Contains(lba) {
				q[4] = tracks[i].Flags
				q[5] = byte(i + 1)
				q[6] = 1
				common.PutUint24BE(q[7:10], lba-tracks[i].LBA)
				break
			}
		}
		common.PutUint24BE(q[11:14], lba)
		return c.reply(q[:subcodeQSize], length), nil
	}
	return nil, gdrom.ErrBadField
}

// identify builds the IDENTIFY PACKET DEVICE reply
func (c *Controller) identify() []byte {
	var words [identifyWords]uint16
	words[0] = identifyConfig
	putATAString(words[23:27], identifyFirmware)
	putATAString(words[27:47], identifyModel)
	words[49] = 0x0200 // LBA supported

	buf := c.scratch.ensure(identifyWords*2, 0)
	for i, w := range words {
		buf[i*2] = byte(w)
		buf[i*2+1] = byte(w >> 8)
	}
	return buf[:identifyWords*2]
}

// putATAString stores s space-padded, two characters per word with the
// first character in the high byte.
func putATAString(words []uint16, s string) {
	for i := range words {
		hi, lo := byte(' '), byte(' ')
		if 2*i < len(s) {
			hi = s[2*i]
		}
		if 2*i+1 < len(s) {
			lo = s[2*i+1]
		}
		words[i] = uint16(hi)<<8 | uint16(lo)
	}
}
