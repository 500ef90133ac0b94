package ide

import (
	"github.com/hansbonini/gdtools/pkg/common"
	"github.com/hansbonini/gdtools/pkg/gdrom"
)

// Stats counts protocol events since the controller was created
type Stats struct {
	Packets    uint64 // Packet commands dispatched
	Interrupts uint64 // Interrupts raised
}

// Controller is the GD-ROM drive as seen through its ATA task-file
type Controller struct {
	drive *gdrom.Drive
	log   common.Logger
	opts  Options

	// Task-file registers
	status  byte
	errReg  byte
	feature byte
	count   byte
	lba     [3]byte
	device  byte
	control byte

	// Disc type and drive state, shown in lba0 once a command ends
	discStatus byte

	state State
	irq   bool

	// Last packet failure, reported by REQ_ERROR
	sense gdrom.Error

	// PIO read
	scratch   *scratch
	readData  []byte
	readPos   int
	blockSize int
	blockLeft int

	// PIO write
	writeBuf  []byte
	writePos  int
	writeDone func([]byte)
	packet    gdrom.Packet
	hostLimit int

	// Mode block returned by REQ_MODE and patched by SET_MODE
	mode [len(defaultModeBlock)]byte

	onInterrupt func(bool)
	stats       Stats
}

// NewController attaches a controller to drive. The controller starts in
// the post-reset state with a unit attention pending.
func NewController(drive *gdrom.Drive, opts Options, log common.Logger) *Controller {
	opts = opts.withDefaults()
	c := &Controller{
		drive:   drive,
		log:     common.LoggerOrDefault(log),
		opts:    opts,
		scratch: newScratch(opts.ScratchSize),
	}
	c.mode = defaultModeBlock
	c.reset()
	return c
}

// SetInterruptHook registers fn to be called whenever the interrupt line
// changes level.
func (c *Controller) SetInterruptHook(fn func(asserted bool)) {
	c.onInterrupt = fn
}

// Drive returns the drive the controller reads from
func (c *Controller) Drive() *gdrom.Drive {
	return c.drive
}

// State returns the current protocol phase
func (c *Controller) State() State {
	return c.state
}

// Sense returns the status of the last failed packet command
func (c *Controller) Sense() gdrom.Error {
	return c.sense
}

// Stats returns the event counters
func (c *Controller) Stats() Stats {
	return c.stats
}

// DiscStatus returns the disc-status mirror: the disc type with the ready or
// idle bit, or gdrom.DiscNone when the drive is empty.
func (c *Controller) DiscStatus() byte {
	return c.discStatus
}

// Interrupt reports whether the interrupt line is asserted
func (c *Controller) Interrupt() bool {
	return c.irq
}

// DiscChanged records a unit attention for the host. It is meant to be
// installed as the drive's change hook.
func (c *Controller) DiscChanged(disc gdrom.Disc) {
	c.sense = gdrom.ErrMediaChange
	c.refreshDiscStatus(true)
	c.showDiscStatus()
	common.LogInfo(common.InfoMediaChanged, "GD-ROM drive")
}

// RunTimeSlice forwards elapsed time to the drive and polls for media changes
func (c *Controller) RunTimeSlice(nanosecs uint32) {
	c.drive.RunTimeSlice(nanosecs)
	if c.drive.CheckStatus() {
		c.refreshDiscStatus(true)
		c.showDiscStatus()
	}
}

// refreshDiscStatus reloads the mirror from the drive. A disc that was just
// reset or swapped reports idle until the next command ends.
func (c *Controller) refreshDiscStatus(idle bool) {
	status := c.drive.Status()
	if idle && status != gdrom.DiscNone {
		status = status&^gdrom.DiscReady | gdrom.DiscIdle
	}
	c.discStatus = byte(status)
}

// showDiscStatus copies the mirror into the sector number register. The
// register keeps whatever the host wrote while a command is in progress.
func (c *Controller) showDiscStatus() {
	if c.state == StateIdle {
		c.lba[0] = c.discStatus
	}
}

// endCommand refreshes the disc status at the end of every command
func (c *Controller) endCommand() {
	c.refreshDiscStatus(false)
	c.showDiscStatus()
}

// reset returns every register to its power-on value and drops any
// transfer in progress.
func (c *Controller) reset() {
	c.status = 0
	c.errReg = 0x01
	c.count = 0x01
	c.lba = [3]byte{signatureLBA0, signatureLBA1, signatureLBA2}
	c.feature = 0
	c.device = 0
	c.state = StateIdle
	c.readData = nil
	c.readPos = 0
	c.writeBuf = nil
	c.writePos = 0
	c.writeDone = nil
	c.sense = gdrom.ErrReset
	c.refreshDiscStatus(true)
	c.lowerInterrupt()
}

func (c *Controller) raiseInterrupt() {
	if c.control&ControlNIEN != 0 {
		return
	}
	c.stats.Interrupts++
	c.irq = true
	if c.onInterrupt != nil {
		c.onInterrupt(true)
	}
}

func (c *Controller) lowerInterrupt() {
	if !c.irq {
		return
	}
	c.irq = false
	if c.onInterrupt != nil {
		c.onInterrupt(false)
	}
}

// ReadRegister reads a byte-wide register. Reading RegStatus acknowledges
// the interrupt unless the device is busy.
func (c *Controller) ReadRegister(reg Register) byte {
	switch reg {
	case RegError:
		return c.errReg
	case RegCount:
		return c.count
	case RegLBA0:
		return c.lba[0]
	case RegLBA1:
		return c.lba[1]
	case RegLBA2:
		return c.lba[2]
	case RegDevice:
		return c.device
	case RegStatus:
		if c.state != StateBusy {
			c.lowerInterrupt()
		}
		return c.status
	case RegAltStatus:
		return c.status
	}
	return 0xFF
}

// WriteRegister writes a byte-wide register. Writing RegCommand starts a
// command, and is ignored while the device is busy.
func (c *Controller) WriteRegister(reg Register, value byte) {
	switch reg {
	case RegFeature:
		c.feature = value
	case RegCount:
		c.count = value
	case RegLBA0:
		c.lba[0] = value
	case RegLBA1:
		c.lba[1] = value
	case RegLBA2:
		c.lba[2] = value
	case RegDevice:
		c.device = value
	case RegCommand:
		if c.state == StateBusy {
			c.log.Warn(common.WarnCommandWhileBusy, value)
			return
		}
		c.command(value)
	case RegControl:
		if value&ControlSRST != 0 && c.control&ControlSRST == 0 {
			c.reset()
		}
		c.control = value
	}
}

// ReadData reads the next word of a PIO read. Without a transfer in
// progress the port floats high.
func (c *Controller) ReadData() uint16 {
	if c.state != StatePIORead {
		return 0xFFFF
	}

	value := uint16(c.readData[c.readPos])
	if c.readPos+1 < len(c.readData) {
		value |= uint16(c.readData[c.readPos+1]) << 8
	}
	c.readPos += 2
	c.blockLeft -= 2

	remaining := len(c.readData) - c.readPos
	switch {
	case remaining <= 0:
		// Draining the last block ends the command without a further interrupt
		c.readData = nil
		c.readPos = 0
		c.state = StateIdle
		c.status = statusReady
		c.count = ReasonIO | ReasonCoD
		c.endCommand()
	case c.blockLeft <= 0:
		c.nextBlock()
	}
	return value
}

// WriteData stores the next word of a PIO write. Outside a write phase the
// word is dropped.
func (c *Controller) WriteData(value uint16) {
	if c.state != StatePIOWrite {
		return
	}

	c.writeBuf[c.writePos] = byte(value)
	if c.writePos+1 < len(c.writeBuf) {
		c.writeBuf[c.writePos+1] = byte(value >> 8)
	}
	c.writePos += 2
	if c.writePos < len(c.writeBuf) {
		return
	}

	done := c.writeDone
	data := c.writeBuf
	c.writeBuf = nil
	c.writePos = 0
	c.writeDone = nil
	c.state = StateIdle
	done(data)
}

// byteCountLimit returns the transfer size programmed by the host in the
// byte count registers, or 0 if none.
func (c *Controller) byteCountLimit() int {
	limit := int(c.lba[1]) | int(c.lba[2])<<8
	if limit == 0xFFFF {
		return 0
	}
	return limit &^ 1
}

// startRead arms a PIO read of data. The first block is announced at once;
// each later block raises its own interrupt when the previous one has been
// consumed.
func (c *Controller) startRead(data []byte, block int) {
	if len(data) == 0 {
		c.complete()
		return
	}
	if block <= 0 {
		block = c.opts.BlockSize
	}

	c.readData = data
	c.readPos = 0
	c.blockSize = block
	c.state = StatePIORead
	common.LogDebug(common.DebugPIOReadArmed, len(data), block)
	c.nextBlock()
}

func (c *Controller) nextBlock() {
	remaining := len(c.readData) - c.readPos
	size := c.blockSize
	if remaining < size {
		size = remaining
	}
	c.blockLeft = size
	c.lba[1] = byte(size)
	c.lba[2] = byte(size >> 8)
	c.count = ReasonIO
	c.status = statusData
	c.raiseInterrupt()
}

// startWrite arms a PIO write of n bytes; done receives them once the last
// word arrives.
func (c *Controller) startWrite(n int, reason byte, done func([]byte)) {
	c.writeBuf = make([]byte, n)
	c.writePos = 0
	c.writeDone = done
	c.count = reason
	c.lba[1] = byte(n)
	c.lba[2] = byte(n >> 8)
	c.status = statusData
	c.state = StatePIOWrite
	common.LogDebug(common.DebugPIOWriteArmed, n)
}

// complete ends a command successfully
func (c *Controller) complete() {
	c.state = StateIdle
	c.status = statusReady
	c.errReg = 0
	c.count = ReasonIO | ReasonCoD
	c.endCommand()
	c.raiseInterrupt()
}

// abort ends an ATA command with the aborted bit set
func (c *Controller) abort() {
	c.state = StateIdle
	c.status = statusFailed
	c.errReg = ErrorABRT
	c.count = ReasonIO | ReasonCoD
	c.endCommand()
	c.raiseInterrupt()
}

// fail ends a packet command with err as its sense status
func (c *Controller) fail(err error) {
	sense := gdrom.SenseOf(err)
	c.sense = sense
	c.readData = nil
	c.state = StateIdle
	c.status = statusFailed
	c.errReg = sense.SenseKey() << 4
	c.count = ReasonIO | ReasonCoD
	c.endCommand()
	common.LogDebug(common.DebugPacketResult, uint16(sense))
	c.raiseInterrupt()
}

func (c *Controller) command(cmd byte) {
	switch cmd {
	case CmdNOP:
		c.abort()
	case CmdDeviceReset:
		c.reset()
	case CmdPacket:
		c.hostLimit = c.byteCountLimit()
		c.errReg = 0
		c.startWrite(gdrom.PacketSize, ReasonCoD, c.dispatchPacket)
	case CmdIdentifyPacketDevice:
		c.startRead(c.identify(), 0)
	case CmdSetFeatures:
		c.setFeatures()
	default:
		c.log.Warn(common.WarnUnimplementedCmd, cmd)
		c.abort()
	}
}

func (c *Controller) setFeatures() {
	switch c.feature {
	case FeatureSetTransferMode:
		kind := "PIO"
		switch c.count & 0xF8 {
		case 0x20:
			kind = "multiword DMA"
		case 0x40:
			kind = "Ultra DMA"
		}
		common.LogInfo(common.InfoTransferMode, kind, c.count&0x07)
		c.complete()
	default:
		c.log.Warn(common.WarnUnimplementedFeat, c.feature)
		c.abort()
	}
}
