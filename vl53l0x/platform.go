package vl53l0x

import (
	"time"

	"tinygo.org/x/drivers"
)

// MaxI2CTransfer is the largest payload a single platform transfer accepts.
// Requests of this size or larger are rejected without touching the bus.
const MaxI2CTransfer = 64

// DefaultPollInterval is the pause inserted between status polls.
const DefaultPollInterval = 250 * time.Microsecond

// Comms is the byte-transfer layer under the ranging API. Every call is a
// single blocking bus transaction. Multi-byte values are big-endian on the
// wire.
type Comms struct {
	bus  drivers.I2C
	addr uint8 // 7-bit

	pollInterval time.Duration
	sleep        func(time.Duration)

	buf [MaxI2CTransfer + 1]byte
}

// NewComms binds a bus and a 7-bit device address.
func NewComms(bus drivers.I2C, addr uint8) *Comms {
	return &Comms{
		bus:          bus,
		addr:         addr & 0x7F,
		pollInterval: DefaultPollInterval,
		sleep:        time.Sleep,
	}
}

// Address returns the 7-bit address used for transactions.
func (c *Comms) Address() uint8 { return c.addr }

// SetAddress changes the 7-bit address used for later transactions.
func (c *Comms) SetAddress(addr uint8) { c.addr = addr & 0x7F }

// WriteMulti writes index followed by data in one transaction.
func (c *Comms) WriteMulti(index uint8, data []byte) error {
	if len(data) >= MaxI2CTransfer {
		return ErrInvalidParams
	}
	c.buf[0] = index
	n := copy(c.buf[1:], data)
	if err := c.bus.Tx(uint16(c.addr), c.buf[:n+1], nil); err != nil {
		return ErrControlInterface
	}
	return nil
}

// ReadMulti writes index and reads len(buf) bytes back.
func (c *Comms) ReadMulti(index uint8, buf []byte) error {
	if len(buf) >= MaxI2CTransfer {
		return ErrInvalidParams
	}
	c.buf[0] = index
	if err := c.bus.Tx(uint16(c.addr), c.buf[:1], buf); err != nil {
		return ErrControlInterface
	}
	return nil
}

// WriteReg writes one byte.
func (c *Comms) WriteReg(index, value uint8) error {
	return c.WriteMulti(index, []byte{value})
}

// WriteReg16 writes a big-endian word.
func (c *Comms) WriteReg16(index uint8, value uint16) error {
	return c.WriteMulti(index, []byte{byte(value >> 8), byte(value)})
}

// WriteReg32 writes a big-endian double word.
func (c *Comms) WriteReg32(index uint8, value uint32) error {
	return c.WriteMulti(index, []byte{
		byte(value >> 24), byte(value >> 16),
		byte(value >> 8), byte(value),
	})
}

// ReadReg reads one byte.
func (c *Comms) ReadReg(index uint8) (uint8, error) {
	var b [1]byte
	err := c.ReadMulti(index, b[:])
	return b[0], err
}

// ReadReg16 reads a big-endian word.
func (c *Comms) ReadReg16(index uint8) (uint16, error) {
	var b [2]byte
	if err := c.ReadMulti(index, b[:]); err != nil {
		return 0, err
	}
	return uint16(b[0])<<8 | uint16(b[1]), nil
}

// ReadReg32 reads a big-endian double word.
func (c *Comms) ReadReg32(index uint8) (uint32, error) {
	var b [4]byte
	if err := c.ReadMulti(index, b[:]); err != nil {
		return 0, err
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

// UpdateReg performs a read-modify-write: (value & and) | or.
func (c *Comms) UpdateReg(index, and, or uint8) error {
	v, err := c.ReadReg(index)
	if err != nil {
		return err
	}
	return c.WriteReg(index, (v&and)|or)
}

// PollingDelay pauses between two polls of a status register.
func (c *Comms) PollingDelay() {
	if c.pollInterval > 0 {
		c.sleep(c.pollInterval)
	}
}

// writeRegs writes a table of register/value pairs in order.
func (c *Comms) writeRegs(table []regVal) error {
	for _, rv := range table {
		if err := c.WriteReg(rv.reg, rv.val); err != nil {
			return err
		}
	}
	return nil
}
