// Package ide emulates the ATA/ATAPI register interface of the GD-ROM drive:
// the task-file registers, the PIO data port, the packet protocol and the
// interrupt line, on top of the disc mounted in a gdrom.Drive.
package ide

import "fmt"

// Register selects one of the task-file registers
type Register int

const (
	RegData      Register = iota // 16-bit PIO data port, see ReadData/WriteData
	RegError                     // Error on read, Features on write
	RegCount                     // Interrupt reason on read, sector count on write
	RegLBA0                      // Sector number
	RegLBA1                      // Byte count low during packet transfers
	RegLBA2                      // Byte count high during packet transfers
	RegDevice                    // Drive select
	RegStatus                    // Status on read (clears INTRQ), command on write
	RegAltStatus                 // Alternate status on read, device control on write
)

// RegFeature and RegCommand are the write-side names of shared registers
const (
	RegFeature = RegError
	RegCommand = RegStatus
	RegControl = RegAltStatus
)

var registerNames = map[Register]string{
	RegData:      "data",
	RegError:     "error/feature",
	RegCount:     "count",
	RegLBA0:      "lba0",
	RegLBA1:      "lba1",
	RegLBA2:      "lba2",
	RegDevice:    "device",
	RegStatus:    "status/command",
	RegAltStatus: "altstatus/control",
}

func (r Register) String() string {
	if name, ok := registerNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Register(%d)", int(r))
}

// Status register bits
const (
	StatusBSY  byte = 0x80 // Busy
	StatusDRDY byte = 0x40 // Device ready
	StatusDF   byte = 0x20 // Device fault
	StatusDSC  byte = 0x10 // Seek complete
	StatusDRQ  byte = 0x08 // Data request
	StatusCORR byte = 0x04
	StatusCHK  byte = 0x01 // Error / check condition
)

// Composite status values
const (
	statusReady  = StatusDRDY | StatusDSC
	statusData   = StatusDRDY | StatusDSC | StatusDRQ
	statusFailed = StatusDRDY | StatusDSC | StatusCHK
)

// Error register bits
const (
	ErrorABRT byte = 0x04 // Command aborted
)

// Interrupt reason bits in the count register
const (
	ReasonCoD byte = 0x01 // Command packet (as opposed to data)
	ReasonIO  byte = 0x02 // Transfer towards the host
)

// Device control bits
const (
	ControlNIEN byte = 0x02 // Interrupts disabled
	ControlSRST byte = 0x04 // Software reset
)

// ATA commands
const (
	CmdNOP                  byte = 0x00
	CmdDeviceReset          byte = 0x08
	CmdPacket               byte = 0xA0
	CmdIdentifyPacketDevice byte = 0xA1
	CmdSetFeatures          byte = 0xEF
)

// SET FEATURES subcommands
const (
	FeatureSetTransferMode byte = 0x03
)

// Reset signature: ATAPI device with the GD-ROM revision in lba0
const (
	signatureLBA0 = 0x81
	signatureLBA1 = 0x14
	signatureLBA2 = 0xEB
)

// State is the protocol phase of the controller
type State int

const (
	StateIdle State = iota
	StateBusy
	StatePIORead
	StatePIOWrite
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBusy:
		return "busy"
	case StatePIORead:
		return "pio-read"
	case StatePIOWrite:
		return "pio-write"
	}
	return fmt.Sprintf("State(%d)", int(s))
}
