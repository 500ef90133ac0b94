package ide

import (
	"fmt"

	"github.com/hansbonini/gdtools/pkg/gdrom"
)

// Execute runs cmd through the register interface the way host software
// does: PACKET, six data words, then drain every announced block. limit is
// programmed as the byte count limit (0 leaves the controller default). A
// failed command returns the sense status as a gdrom.Error.
func (c *Controller) Execute(cmd gdrom.Packet, limit int) ([]byte, error) {
	if err := c.sendPacket(cmd, limit); err != nil {
		return nil, err
	}

	var out []byte
	for c.state == StatePIORead && c.ReadRegister(RegStatus)&StatusDRQ != 0 {
		n := int(c.ReadRegister(RegLBA1)) | int(c.ReadRegister(RegLBA2))<<8
		for i := 0; i < n; i += 2 {
			word := c.ReadData()
			out = append(out, byte(word))
			if i+1 < n {
				out = append(out, byte(word>>8))
			}
		}
	}
	return out, c.result()
}

// ExecuteWrite runs a command with a host-to-device data phase
func (c *Controller) ExecuteWrite(cmd gdrom.Packet, data []byte) error {
	if err := c.sendPacket(cmd, 0); err != nil {
		return err
	}
	if c.state != StatePIOWrite {
		return c.result()
	}
	for i := 0; i < len(data) && c.state == StatePIOWrite; i += 2 {
		word := uint16(data[i])
		if i+1 < len(data) {
			word |= uint16(data[i+1]) << 8
		}
		c.WriteData(word)
	}
	if c.state == StatePIOWrite {
		return fmt.Errorf("device expects %d more bytes", len(c.writeBuf)-c.writePos)
	}
	return c.result()
}

func (c *Controller) sendPacket(cmd gdrom.Packet, limit int) error {
	c.WriteRegister(RegLBA1, byte(limit))
	c.WriteRegister(RegLBA2, byte(limit>>8))
	c.WriteRegister(RegCommand, CmdPacket)
	if c.state != StatePIOWrite {
		return gdrom.ErrNoResponse
	}
	for i := 0; i < gdrom.PacketSize; i += 2 {
		c.WriteData(uint16(cmd[i]) | uint16(cmd[i+1])<<8)
	}
	return nil
}

// result turns the final status into an error
func (c *Controller) result() error {
	if c.ReadRegister(RegStatus)&StatusCHK == 0 {
		return nil
	}
	if c.sense == gdrom.ErrOK {
		return gdrom.ErrNoResponse
	}
	return c.sense
}
