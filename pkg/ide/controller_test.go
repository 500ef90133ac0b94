package ide

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hansbonini/gdtools/pkg/gdrom"
)

// testISO builds an image of 2048-byte sectors with a volume descriptor at
// sector 16. Every other sector is filled with its own index.
func testISO(sectors int) []byte {
	img := make([]byte, sectors*gdrom.SectorSizeData)
	for i := 0; i < sectors; i++ {
		sector := img[i*gdrom.SectorSizeData : (i+1)*gdrom.SectorSizeData]
		if i == 16 {
			sector[0] = 1
			copy(sector[1:6], "CD001")
			sector[6] = 1
			copy(sector[40:72], "IDETEST                         ")
			continue
		}
		for j := range sector {
			sector[j] = byte(i) + byte(j%5)
		}
	}
	return img
}

func newTestController(t *testing.T, opts Options) (*Controller, []byte) {
	t.Helper()
	img := testISO(40)
	disc, err := gdrom.OpenImageSource("test.iso", bytes.NewReader(img))
	if err != nil {
		t.Fatalf("OpenImageSource() failed: %v", err)
	}

	drive := gdrom.NewDrive(nil, nil)
	drive.Mount(disc)
	return NewController(drive, opts, nil), img
}

func readPacket(lba, count uint32, mode gdrom.ReadMode) gdrom.Packet {
	var cmd gdrom.Packet
	cmd[0] = PktReadSector
	cmd[1] = byte(mode)
	cmd[2], cmd[3], cmd[4] = byte(lba>>16), byte(lba>>8), byte(lba)
	cmd[8], cmd[9], cmd[10] = byte(count>>16), byte(count>>8), byte(count)
	return cmd
}

func TestController_ResetSignature(t *testing.T) {
	c, _ := newTestController(t, DefaultOptions())

	testCases := []struct {
		reg      Register
		expected byte
	}{
		{RegAltStatus, 0x00},
		{RegError, 0x01},
		{RegCount, 0x01},
		{RegLBA0, 0x81},
		{RegLBA1, 0x14},
		{RegLBA2, 0xEB},
	}
	for _, tc := range testCases {
		if got := c.ReadRegister(tc.reg); got != tc.expected {
			t.Errorf("ReadRegister(%s) = 0x%02X, want 0x%02X", tc.reg, got, tc.expected)
		}
	}
	if c.Sense() != gdrom.ErrReset {
		t.Errorf("Sense() = 0x%04X, want 0x%04X", uint16(c.Sense()), uint16(gdrom.ErrReset))
	}
	if c.State() != StateIdle {
		t.Errorf("State() = %s, want idle", c.State())
	}
}

func TestController_SoftwareReset(t *testing.T) {
	c, _ := newTestController(t, DefaultOptions())

	c.WriteRegister(RegLBA0, 0x05)
	c.WriteRegister(RegControl, ControlSRST)
	if c.ReadRegister(RegLBA0) != 0x81 {
		t.Fatalf("SRST rising edge should reset, lba0 = 0x%02X", c.ReadRegister(RegLBA0))
	}

	// Holding SRST high does not reset again
	c.WriteRegister(RegLBA0, 0x05)
	c.WriteRegister(RegControl, ControlSRST)
	if c.ReadRegister(RegLBA0) != 0x05 {
		t.Errorf("SRST held high reset the device again, lba0 = 0x%02X", c.ReadRegister(RegLBA0))
	}

	c.WriteRegister(RegControl, 0)
	c.WriteRegister(RegControl, ControlSRST)
	if c.ReadRegister(RegLBA0) != 0x81 {
		t.Errorf("second SRST edge should reset, lba0 = 0x%02X", c.ReadRegister(RegLBA0))
	}
}

func TestController_PacketDispatch(t *testing.T) {
	c, _ := newTestController(t, DefaultOptions())

	c.WriteRegister(RegCommand, CmdPacket)
	if c.State() != StatePIOWrite || c.ReadRegister(RegCount) != ReasonCoD {
		t.Fatalf("PACKET state = %s, count 0x%02X", c.State(), c.ReadRegister(RegCount))
	}
	if c.ReadRegister(RegAltStatus)&StatusDRQ == 0 {
		t.Error("PACKET should set DRQ")
	}

	for i := 0; i < 5; i++ {
		c.WriteData(0)
	}
	if c.Stats().Packets != 0 {
		t.Fatalf("Packets = %d after 10 bytes, want 0", c.Stats().Packets)
	}

	c.WriteData(0)
	if c.Stats().Packets != 1 {
		t.Fatalf("Packets = %d after 12 bytes, want 1", c.Stats().Packets)
	}
	if c.State() != StateIdle || c.ReadRegister(RegAltStatus) != statusReady {
		t.Errorf("TEST_READY left state %s, status 0x%02X", c.State(), c.ReadRegister(RegAltStatus))
	}

	// Words outside a write phase are dropped
	c.WriteData(0)
	if c.Stats().Packets != 1 {
		t.Errorf("Packets = %d after a stray word, want 1", c.Stats().Packets)
	}
}

func TestController_ReadSectorInterrupts(t *testing.T) {
	testCases := []struct {
		name       string
		blockSize  int
		limit      int
		count      uint32
		interrupts uint64
	}{
		{"default block", 0, 0, 5, 1},
		{"4 KiB blocks", 4096, 0, 5, 3},
		{"exact blocks", 2048, 0, 4, 4},
		{"host limit", 0, 2048, 5, 5},
		{"odd host limit", 0, 3001, 3, 3},
		{"limit 0xFFFF is no limit", 8192, 0xFFFF, 5, 2},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c, img := newTestController(t, Options{BlockSize: tc.blockSize})
			asserted := 0
			c.SetInterruptHook(func(level bool) {
				if level {
					asserted++
				}
			})

			data, err := c.Execute(readPacket(152, tc.count, gdrom.ReadLogical), tc.limit)
			if err != nil {
				t.Fatalf("Execute(READ_SECTOR) failed: %v", err)
			}
			want := img[2*gdrom.SectorSizeData : (2+int(tc.count))*gdrom.SectorSizeData]
			if !bytes.Equal(data, want) {
				t.Errorf("Execute(READ_SECTOR) returned %d bytes that do not match the image", len(data))
			}
			if got := c.Stats().Interrupts; got != tc.interrupts {
				t.Errorf("Interrupts = %d, want %d", got, tc.interrupts)
			}
			if uint64(asserted) != tc.interrupts {
				t.Errorf("interrupt hook asserted %d times, want %d", asserted, tc.interrupts)
			}
			if c.State() != StateIdle || c.ReadRegister(RegCount) != ReasonIO|ReasonCoD {
				t.Errorf("after drain: state %s, count 0x%02X", c.State(), c.ReadRegister(RegCount))
			}
		})
	}
}

func TestController_Failures(t *testing.T) {
	c, _ := newTestController(t, DefaultOptions())
	var unknown gdrom.Packet
	unknown[0] = 0x71

	testCases := []struct {
		name  string
		cmd   gdrom.Packet
		sense gdrom.Error
	}{
		{"unknown packet", unknown, gdrom.ErrBadCmd},
		{"zero sectors", readPacket(150, 0, gdrom.ReadLogical), gdrom.ErrBadField},
		{"past the end", readPacket(150+39, 2, gdrom.ReadLogical), gdrom.ErrBadField},
		{"start past the end", readPacket(150+40, 1, gdrom.ReadLogical), gdrom.ErrBadField},
		{"largest count", readPacket(150, 0xFFFFFF, gdrom.ReadLogical), gdrom.ErrBadField},
		{"audio read of data", readPacket(150, 1, gdrom.ReadCDDA), gdrom.ErrBadReadMode},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.Execute(tc.cmd, 0)
			if !errors.Is(err, tc.sense) {
				t.Fatalf("Execute() error = %v, want %v", err, tc.sense)
			}
			if c.ReadRegister(RegAltStatus) != statusFailed {
				t.Errorf("status = 0x%02X, want 0x%02X", c.ReadRegister(RegAltStatus), statusFailed)
			}
			if c.ReadRegister(RegError) != tc.sense.SenseKey()<<4 {
				t.Errorf("error register = 0x%02X, want 0x%02X", c.ReadRegister(RegError), tc.sense.SenseKey()<<4)
			}
			if c.Sense() != tc.sense {
				t.Errorf("Sense() = 0x%04X, want 0x%04X", uint16(c.Sense()), uint16(tc.sense))
			}
		})
	}
}

func TestController_NoDisc(t *testing.T) {
	c := NewController(gdrom.NewDrive(nil, nil), DefaultOptions(), nil)

	var ready gdrom.Packet
	if _, err := c.Execute(ready, 0); !errors.Is(err, gdrom.ErrNoDisc) {
		t.Fatalf("TEST_READY on an empty drive error = %v, want %v", err, gdrom.ErrNoDisc)
	}
	if c.ReadRegister(RegError) != 0x20 {
		t.Errorf("error register = 0x%02X, want 0x20", c.ReadRegister(RegError))
	}

	reqError := gdrom.Packet{PktReqError, 0, 0, 0, senseReplySize}
	sense, err := c.Execute(reqError, 0)
	if err != nil {
		t.Fatalf("REQ_ERROR failed: %v", err)
	}
	if len(sense) != senseReplySize || sense[0] != 0xF0 || sense[2] != 0x02 || sense[8] != 0x3A {
		t.Errorf("REQ_ERROR = % X", sense)
	}

	// The sense status is cleared once reported
	sense, err = c.Execute(reqError, 0)
	if err != nil {
		t.Fatalf("second REQ_ERROR failed: %v", err)
	}
	if sense[2] != 0 || sense[8] != 0 {
		t.Errorf("second REQ_ERROR = % X, want cleared sense", sense)
	}

	info := gdrom.Packet{PktSessionInfo, 0, 0, 0, 6}
	if _, err := c.Execute(info, 0); !errors.Is(err, gdrom.ErrNoDisc) {
		t.Errorf("session info on an empty drive error = %v, want %v", err, gdrom.ErrNoDisc)
	}
}

func TestController_Mode(t *testing.T) {
	c, _ := newTestController(t, DefaultOptions())

	testCases := []struct {
		name     string
		offset   byte
		length   byte
		expected []byte
		err      error
	}{
		{"whole block", 0, 40, defaultModeBlock[:], nil},
		{"model", 18, 8, defaultModeBlock[18:26], nil},
		{"clipped", 36, 10, defaultModeBlock[36:], nil},
		{"zero length", 0, 0, nil, gdrom.ErrBadField},
		{"offset past block", 40, 1, nil, gdrom.ErrBadField},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := c.Execute(gdrom.Packet{PktReqMode, 0, tc.offset, 0, tc.length}, 0)
			if tc.err != nil {
				if !errors.Is(err, tc.err) {
					t.Errorf("REQ_MODE error = %v, want %v", err, tc.err)
				}
				return
			}
			if err != nil {
				t.Fatalf("REQ_MODE failed: %v", err)
			}
			if !bytes.Equal(got, tc.expected) {
				t.Errorf("REQ_MODE(%d, %d) = % X, want % X", tc.offset, tc.length, got, tc.expected)
			}
		})
	}
}

func TestController_SetMode(t *testing.T) {
	c, _ := newTestController(t, DefaultOptions())

	if err := c.ExecuteWrite(gdrom.Packet{PktSetMode, 0, 2, 0, 3}, []byte{0xAA, 0xBB, 0xCC, 0x00}); err != nil {
		t.Fatalf("SET_MODE failed: %v", err)
	}

	got, err := c.Execute(gdrom.Packet{PktReqMode, 0, 0, 0, 6}, 0)
	if err != nil {
		t.Fatalf("REQ_MODE failed: %v", err)
	}
	expected := []byte{0x00, 0xB4, 0xAA, 0xBB, 0xCC, 0x08}
	if !bytes.Equal(got, expected) {
		t.Errorf("REQ_MODE after SET_MODE = % X, want % X", got, expected)
	}

	if err := c.ExecuteWrite(gdrom.Packet{PktSetMode, 0, 0, 0, 4}, []byte{0x01}); err == nil {
		t.Error("ExecuteWrite() with too little data should fail")
	}
}

func TestController_ReadTOC(t *testing.T) {
	c, _ := newTestController(t, DefaultOptions())

	toc, err := c.Execute(gdrom.Packet{PktReadTOC, 0, 0, byte(gdrom.TOCSize >> 8), byte(gdrom.TOCSize & 0xFF)}, 0)
	if err != nil {
		t.Fatalf("READ_TOC failed: %v", err)
	}
	if len(toc) != gdrom.TOCSize {
		t.Fatalf("READ_TOC returned %d bytes, want %d", len(toc), gdrom.TOCSize)
	}
	if flags, lba := gdrom.DecodeTOCEntry(toc); flags != 0x41 || lba != 150 {
		t.Errorf("track 1 = 0x%02X/%d, want 0x41/150", flags, lba)
	}
	if _, leadout := gdrom.DecodeTOCEntry(toc[gdrom.TOCLeadout:]); leadout != 190 {
		t.Errorf("leadout = %d, want 190", leadout)
	}

	short, err := c.Execute(gdrom.Packet{PktReadTOC, 0, 0, 0, 4}, 0)
	if err != nil || !bytes.Equal(short, toc[:4]) {
		t.Errorf("READ_TOC of 4 bytes = % X, %v", short, err)
	}

	if _, err := c.Execute(gdrom.Packet{PktReadTOC, 1, 0, 1, 0x98}, 0); !errors.Is(err, gdrom.ErrBadField) {
		t.Errorf("READ_TOC of the high density area on a CD error = %v, want %v", err, gdrom.ErrBadField)
	}
	if _, err := c.Execute(gdrom.Packet{PktReadTOC}, 0); !errors.Is(err, gdrom.ErrBadField) {
		t.Errorf("READ_TOC of 0 bytes error = %v, want %v", err, gdrom.ErrBadField)
	}
}

func TestController_SessionInfo(t *testing.T) {
	c, _ := newTestController(t, DefaultOptions())

	info, err := c.Execute(gdrom.Packet{PktSessionInfo, 0, 0, 0, 6}, 0)
	if err != nil {
		t.Fatalf("session info failed: %v", err)
	}
	expected := []byte{drivePaused, 0x00, 0x01, 0x00, 0x00, 0xBE}
	if !bytes.Equal(info, expected) {
		t.Errorf("session info = % X, want % X", info, expected)
	}
}

func TestController_Audio(t *testing.T) {
	dir := t.TempDir()
	audio := make([]byte, 100*gdrom.SectorSizeRaw)
	if err := os.WriteFile(filepath.Join(dir, "track01.raw"), audio, 0644); err != nil {
		t.Fatal(err)
	}
	gdi := filepath.Join(dir, "audio.gdi")
	if err := os.WriteFile(gdi, []byte("1\n1 0 0 2352 track01.raw 0\n"), 0644); err != nil {
		t.Fatal(err)
	}

	drive := gdrom.NewDrive(nil, nil)
	if err := drive.MountImage(gdi); err != nil {
		t.Fatalf("MountImage() failed: %v", err)
	}
	defer drive.Close()
	c := NewController(drive, DefaultOptions(), nil)

	play := gdrom.Packet{PktPlay, playByLBA, 0x00, 0x00, 0xA0, 0, 0, 0, 0x00, 0x00, 0xC8}
	if _, err := c.Execute(play, 0); err != nil {
		t.Fatalf("PLAY failed: %v", err)
	}

	status, err := c.Execute(gdrom.Packet{PktGetStatus, 1, 0, 0, subcodeQSize}, 0)
	if err != nil {
		t.Fatalf("GET_STATUS failed: %v", err)
	}
	if len(status) != subcodeQSize || status[1] != audioPlaying || status[5] != 1 || status[6] != 1 {
		t.Errorf("GET_STATUS while playing = % X", status)
	}
	if pos := uint32(status[11])<<16 | uint32(status[12])<<8 | uint32(status[13]); pos != 160 {
		t.Errorf("play position = %d, want 160", pos)
	}

	info, err := c.Execute(gdrom.Packet{PktSessionInfo, 0, 0, 0, 1}, 0)
	if err != nil || info[0] != drivePlaying {
		t.Errorf("session info while playing = % X, %v", info, err)
	}

	if _, err := c.Execute(gdrom.Packet{PktPause}, 0); err != nil {
		t.Fatalf("PAUSE failed: %v", err)
	}
	status, err = c.Execute(gdrom.Packet{PktGetStatus, 0, 0, 0, 4}, 0)
	if err != nil || status[1] != audioNoStatus || status[3] != subcodeRawSize {
		t.Errorf("GET_STATUS after PAUSE = % X, %v", status, err)
	}

	badPlay := gdrom.Packet{PktPlay, 0x05}
	if _, err := c.Execute(badPlay, 0); !errors.Is(err, gdrom.ErrBadField) {
		t.Errorf("PLAY with an unknown address format error = %v, want %v", err, gdrom.ErrBadField)
	}
}

func TestController_MediaChange(t *testing.T) {
	var c *Controller
	drive := gdrom.NewDrive(nil, func(d gdrom.Disc) { c.DiscChanged(d) })
	c = NewController(drive, DefaultOptions(), nil)

	disc, err := gdrom.OpenImageSource("swap.iso", bytes.NewReader(testISO(20)))
	if err != nil {
		t.Fatalf("OpenImageSource() failed: %v", err)
	}
	drive.Mount(disc)

	if c.Sense() != gdrom.ErrMediaChange {
		t.Fatalf("Sense() after mount = 0x%04X, want 0x%04X", uint16(c.Sense()), uint16(gdrom.ErrMediaChange))
	}
	sense, err := c.Execute(gdrom.Packet{PktReqError, 0, 0, 0, senseReplySize}, 0)
	if err != nil {
		t.Fatalf("REQ_ERROR failed: %v", err)
	}
	if sense[2] != 0x06 || sense[8] != 0x28 {
		t.Errorf("REQ_ERROR after a media change = % X", sense)
	}
}

func TestController_DiscStatus(t *testing.T) {
	c, _ := newTestController(t, DefaultOptions())
	c.Drive().SetChangeHook(c.DiscChanged)

	idle := byte(gdrom.DiscCDROM | gdrom.DiscIdle)
	ready := byte(gdrom.DiscCDROM | gdrom.DiscReady)
	none := byte(gdrom.DiscNone)

	// The reset signature stays in lba0 until a command ends
	if c.DiscStatus() != idle || c.ReadRegister(RegLBA0) != 0x81 {
		t.Errorf("after reset: DiscStatus() = 0x%02X, lba0 = 0x%02X", c.DiscStatus(), c.ReadRegister(RegLBA0))
	}

	var testReady gdrom.Packet
	if _, err := c.Execute(testReady, 0); err != nil {
		t.Fatalf("TEST_READY failed: %v", err)
	}
	if c.DiscStatus() != ready || c.ReadRegister(RegLBA0) != ready {
		t.Errorf("mounted: DiscStatus() = 0x%02X, lba0 = 0x%02X, want 0x%02X", c.DiscStatus(), c.ReadRegister(RegLBA0), ready)
	}

	if _, err := c.Execute(readPacket(150, 2, gdrom.ReadLogical), 0); err != nil {
		t.Fatalf("READ_SECTOR failed: %v", err)
	}
	if c.ReadRegister(RegLBA0) != ready {
		t.Errorf("after a read: lba0 = 0x%02X, want 0x%02X", c.ReadRegister(RegLBA0), ready)
	}

	c.Drive().Unmount()
	if c.DiscStatus() != none || c.ReadRegister(RegLBA0) != none {
		t.Errorf("empty: DiscStatus() = 0x%02X, lba0 = 0x%02X, want 0x%02X", c.DiscStatus(), c.ReadRegister(RegLBA0), none)
	}
	if _, err := c.Execute(testReady, 0); !errors.Is(err, gdrom.ErrNoDisc) {
		t.Errorf("TEST_READY on an empty drive error = %v, want %v", err, gdrom.ErrNoDisc)
	}
	if c.ReadRegister(RegLBA0) != none {
		t.Errorf("after a failed command: lba0 = 0x%02X, want 0x%02X", c.ReadRegister(RegLBA0), none)
	}

	disc, err := gdrom.OpenImageSource("swap.iso", bytes.NewReader(testISO(20)))
	if err != nil {
		t.Fatalf("OpenImageSource() failed: %v", err)
	}
	c.Drive().Mount(disc)
	if c.ReadRegister(RegLBA0) != idle {
		t.Errorf("after a swap: lba0 = 0x%02X, want 0x%02X", c.ReadRegister(RegLBA0), idle)
	}
}

func TestController_Identify(t *testing.T) {
	c, _ := newTestController(t, DefaultOptions())

	c.WriteRegister(RegCommand, CmdIdentifyPacketDevice)
	if c.State() != StatePIORead {
		t.Fatalf("IDENTIFY state = %s, want pio-read", c.State())
	}
	if n := int(c.ReadRegister(RegLBA1)) | int(c.ReadRegister(RegLBA2))<<8; n != 512 {
		t.Errorf("IDENTIFY byte count = %d, want 512", n)
	}

	words := make([]uint16, identifyWords)
	for i := range words {
		words[i] = c.ReadData()
	}
	if c.State() != StateIdle {
		t.Errorf("state after IDENTIFY = %s, want idle", c.State())
	}
	if words[0] != 0x8580 || words[49] != 0x0200 {
		t.Errorf("IDENTIFY words 0/49 = 0x%04X/0x%04X", words[0], words[49])
	}

	model := make([]byte, 40)
	for i := 0; i < 20; i++ {
		binary.BigEndian.PutUint16(model[i*2:], words[27+i])
	}
	if string(bytes.TrimRight(model, " ")) != "SE CD-ROM DRIVE" {
		t.Errorf("IDENTIFY model = %q", model)
	}
	if c.ReadData() != 0xFFFF {
		t.Error("ReadData() outside a transfer should float high")
	}
}

func TestController_ATACommands(t *testing.T) {
	testCases := []struct {
		name    string
		cmd     byte
		feature byte
		status  byte
		errReg  byte
	}{
		{"set transfer mode", CmdSetFeatures, FeatureSetTransferMode, statusReady, 0x00},
		{"unknown feature", CmdSetFeatures, 0x55, statusFailed, ErrorABRT},
		{"nop", CmdNOP, 0, statusFailed, ErrorABRT},
		{"unknown command", 0xEC, 0, statusFailed, ErrorABRT},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newTestController(t, DefaultOptions())
			c.WriteRegister(RegFeature, tc.feature)
			c.WriteRegister(RegCount, 0x0C)
			c.WriteRegister(RegCommand, tc.cmd)
			if !c.Interrupt() {
				t.Error("command completion should raise INTRQ")
			}
			if got := c.ReadRegister(RegStatus); got != tc.status {
				t.Errorf("status = 0x%02X, want 0x%02X", got, tc.status)
			}
			if got := c.ReadRegister(RegError); got != tc.errReg {
				t.Errorf("error = 0x%02X, want 0x%02X", got, tc.errReg)
			}
		})
	}
}

func TestController_InterruptLine(t *testing.T) {
	c, _ := newTestController(t, DefaultOptions())

	c.WriteRegister(RegCommand, CmdSetFeatures)
	if !c.Interrupt() {
		t.Fatal("INTRQ should be asserted after completion")
	}
	c.ReadRegister(RegAltStatus)
	if !c.Interrupt() {
		t.Error("reading alternate status should not acknowledge INTRQ")
	}
	c.ReadRegister(RegStatus)
	if c.Interrupt() {
		t.Error("reading status should acknowledge INTRQ")
	}

	c.WriteRegister(RegControl, ControlNIEN)
	before := c.Stats().Interrupts
	if _, err := c.Execute(gdrom.Packet{PktTestReady}, 0); err != nil {
		t.Fatalf("TEST_READY failed: %v", err)
	}
	if c.Interrupt() || c.Stats().Interrupts != before {
		t.Error("nIEN should suppress interrupts")
	}
}

func TestController_BusyIgnoresCommands(t *testing.T) {
	c, _ := newTestController(t, DefaultOptions())

	c.raiseInterrupt()
	c.state = StateBusy
	c.WriteRegister(RegCommand, CmdPacket)
	if c.State() != StateBusy {
		t.Errorf("a command written while busy changed the state to %s", c.State())
	}
	c.ReadRegister(RegStatus)
	if !c.Interrupt() {
		t.Error("reading status while busy should not acknowledge INTRQ")
	}
}

func TestController_ScratchGrowth(t *testing.T) {
	c, img := newTestController(t, Options{ScratchSize: 4096})

	data, err := c.Execute(readPacket(150, 8, gdrom.ReadLogical), 0)
	if err != nil {
		t.Fatalf("Execute(READ_SECTOR) failed: %v", err)
	}
	if !bytes.Equal(data, img[:8*gdrom.SectorSizeData]) {
		t.Error("READ_SECTOR data does not match the image")
	}
	if c.scratch.allocs > 4 || len(c.scratch.buf) >= 2*(len(data)+gdrom.SectorSizeRaw) {
		t.Errorf("scratch grew to %d bytes in %d allocations", len(c.scratch.buf), c.scratch.allocs)
	}

	before := c.scratch.allocs
	if _, err := c.Execute(readPacket(150, 8, gdrom.ReadLogical), 0); err != nil {
		t.Fatalf("second READ_SECTOR failed: %v", err)
	}
	if c.scratch.allocs != before {
		t.Errorf("repeating a read allocated again: %d -> %d", before, c.scratch.allocs)
	}

	// A count running past the disc is refused before anything is read
	size := len(c.scratch.buf)
	if _, err := c.Execute(readPacket(150, 0xFFFFFF, gdrom.ReadLogical), 0); !errors.Is(err, gdrom.ErrBadField) {
		t.Errorf("READ_SECTOR of 0xFFFFFF sectors error = %v, want %v", err, gdrom.ErrBadField)
	}
	if c.scratch.allocs != before || len(c.scratch.buf) != size {
		t.Errorf("refused read grew the scratch buffer to %d bytes", len(c.scratch.buf))
	}
}

func TestOptions_withDefaults(t *testing.T) {
	testCases := []struct {
		in    Options
		block int
	}{
		{Options{}, DefaultBlockSize},
		{Options{BlockSize: 3}, 2},
		{Options{BlockSize: 1}, 2},
		{Options{BlockSize: 0x20000}, 0xFFFE},
	}

	for _, tc := range testCases {
		got := tc.in.withDefaults()
		if got.BlockSize != tc.block || got.ScratchSize != DefaultScratchSize {
			t.Errorf("withDefaults(%+v) = %+v, want block %d", tc.in, got, tc.block)
		}
	}
}
