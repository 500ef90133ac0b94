//go:build linux

package mmc

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/hansbonini/gdtools/pkg/common"
	"github.com/hansbonini/gdtools/pkg/gdrom"
	"golang.org/x/sys/unix"
)

// SG_IO request, see <scsi/sg.h>
const (
	sgIO             = 0x2285
	sgInterfaceID    = 'S'
	sgDxferNone      = -1
	sgDxferFromDev   = -3
	sgInfoOKMask     = 0x1
	sgSenseLength    = 32
	sgDefaultTimeout = 30000 // milliseconds

	scsiCheckCondition = 0x02
	senseUnitAttention = 0x06
)

// sgIOHdr mirrors struct sg_io_hdr
type sgIOHdr struct {
	InterfaceID    int32
	DxferDirection int32
	CmdLen         uint8
	MxSbLen        uint8
	IovecCount     uint16
	DxferLen       uint32
	Dxferp         uintptr
	Cmdp           uintptr
	Sbp            uintptr
	Timeout        uint32
	Flags          uint32
	PackID         int32
	UsrPtr         uintptr
	Status         uint8
	MaskedStatus   uint8
	MsgStatus      uint8
	SbLenWr        uint8
	HostStatus     uint16
	DriverStatus   uint16
	Resid          int32
	Duration       uint32
	Info           uint32
}

// Device is a gdrom.Transport over a Linux SCSI generic capable block
// device such as /dev/sr0.
type Device struct {
	path    string
	fd      int
	timeout uint32
	ready   bool
	polled  bool
}

// OpenDevice opens a CD/DVD drive for packet commands
func OpenDevice(path string) (*Device, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, common.FormatError(common.ErrFailedToQueryDrive, fmt.Errorf("open %s: %w", path, err))
	}
	return &Device{path: path, fd: fd, timeout: sgDefaultTimeout}, nil
}

// Path returns the device node the drive was opened from
func (d *Device) Path() string {
	return d.path
}

// Close releases the device
func (d *Device) Close() error {
	if d.fd < 0 {
		return nil
	}
	err := unix.Close(d.fd)
	d.fd = -1
	return err
}

func (d *Device) execute(cmd gdrom.Packet, buf []byte) (int, error) {
	var sense [sgSenseLength]byte
	hdr := sgIOHdr{
		InterfaceID:    sgInterfaceID,
		DxferDirection: sgDxferNone,
		CmdLen:         gdrom.PacketSize,
		MxSbLen:        sgSenseLength,
		Cmdp:           uintptr(unsafe.Pointer(&cmd[0])),
		Sbp:            uintptr(unsafe.Pointer(&sense[0])),
		Timeout:        d.timeout,
	}
	if len(buf) > 0 {
		hdr.DxferDirection = sgDxferFromDev
		hdr.DxferLen = uint32(len(buf))
		hdr.Dxferp = uintptr(unsafe.Pointer(&buf[0]))
	}

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), sgIO, uintptr(unsafe.Pointer(&hdr)))
	runtime.KeepAlive(&cmd)
	runtime.KeepAlive(&sense)
	runtime.KeepAlive(buf)
	if errno != 0 {
		return 0, fmt.Errorf("SG_IO on %s: %w", d.path, errno)
	}

	if hdr.Info&sgInfoOKMask != 0 {
		if hdr.Status == scsiCheckCondition && hdr.SbLenWr > 13 {
			return 0, senseFromFixed(sense[:])
		}
		return 0, fmt.Errorf("SG_IO on %s: status 0x%02X, host 0x%04X, driver 0x%04X",
			d.path, hdr.Status, hdr.HostStatus, hdr.DriverStatus)
	}
	return len(buf) - int(hdr.Resid), nil
}

// senseFromFixed packs fixed-format sense data into a gdrom.Error
func senseFromFixed(sense []byte) gdrom.Error {
	return gdrom.NewError(sense[2]&0x0F, sense[12])
}

// PacketRead issues a command that transfers data to the host
func (d *Device) PacketRead(cmd gdrom.Packet, buf []byte) (int, error) {
	return d.execute(cmd, buf)
}

// PacketCmd issues a command without a data phase
func (d *Device) PacketCmd(cmd gdrom.Packet) error {
	_, err := d.execute(cmd, nil)
	return err
}

// MediaChanged polls the drive with TEST UNIT READY. A unit attention or a
// change between ready and not ready counts as a media change; the first
// poll only records the current state.
func (d *Device) MediaChanged() bool {
	err := d.PacketCmd(gdrom.Packet{gdrom.MMCTestUnitReady})
	sense, isSense := err.(gdrom.Error)
	ready := err == nil

	changed := false
	if isSense && sense.SenseKey() == senseUnitAttention {
		changed = true
	}
	if d.polled && ready != d.ready {
		changed = true
	}
	d.ready = ready
	d.polled = true
	return changed
}
