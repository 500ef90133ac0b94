//go:build !linux

package mmc

import (
	"errors"

	"github.com/hansbonini/gdtools/pkg/common"
	"github.com/hansbonini/gdtools/pkg/gdrom"
)

var errUnsupported = errors.New("SG_IO drive access is only available on linux")

// Device is unavailable on this platform
type Device struct{}

// OpenDevice always fails outside linux
func OpenDevice(path string) (*Device, error) {
	return nil, common.FormatError(common.ErrFailedToQueryDrive, errUnsupported)
}

func (d *Device) Path() string { return "" }

func (d *Device) Close() error { return nil }

func (d *Device) PacketRead(cmd gdrom.Packet, buf []byte) (int, error) {
	return 0, errUnsupported
}

func (d *Device) PacketCmd(cmd gdrom.Packet) error {
	return errUnsupported
}

func (d *Device) MediaChanged() bool { return false }
