package vl53l0x

import (
	"bytes"
	"errors"
	"testing"
)

// recordBus captures every transaction and answers reads from reply.
type recordBus struct {
	addr  uint16
	tx    [][]byte
	reply []byte
	err   error
}

func (b *recordBus) Tx(addr uint16, w, r []byte) error {
	b.addr = addr
	b.tx = append(b.tx, append([]byte(nil), w...))
	copy(r, b.reply)
	return b.err
}

func (b *recordBus) ReadRegister(addr uint8, reg uint8, buf []byte) error {
	return b.Tx(uint16(addr), []byte{reg}, buf)
}

func (b *recordBus) WriteRegister(addr uint8, reg uint8, buf []byte) error {
	return b.Tx(uint16(addr), append([]byte{reg}, buf...), nil)
}

func TestCommsWriteBigEndian(t *testing.T) {
	bus := &recordBus{}
	c := NewComms(bus, 0x29)

	if err := c.WriteReg(0x0B, 0x01); err != nil {
		t.Fatalf("WriteReg failed: %v", err)
	}
	if err := c.WriteReg16(0x44, 0x1234); err != nil {
		t.Fatalf("WriteReg16 failed: %v", err)
	}
	if err := c.WriteReg32(0x04, 0x01020304); err != nil {
		t.Fatalf("WriteReg32 failed: %v", err)
	}

	expected := [][]byte{
		{0x0B, 0x01},
		{0x44, 0x12, 0x34},
		{0x04, 0x01, 0x02, 0x03, 0x04},
	}
	if len(bus.tx) != len(expected) {
		t.Fatalf("Expected %d transactions, got %d", len(expected), len(bus.tx))
	}
	for i, want := range expected {
		if !bytes.Equal(bus.tx[i], want) {
			t.Errorf("Transaction %d: expected %v, got %v", i, want, bus.tx[i])
		}
	}
	if bus.addr != 0x29 {
		t.Errorf("Expected address 0x29, got 0x%02X", bus.addr)
	}
}

func TestCommsReadBigEndian(t *testing.T) {
	bus := &recordBus{reply: []byte{0xAB, 0xCD, 0xEF, 0x01}}
	c := NewComms(bus, 0x29)

	v8, err := c.ReadReg(0xC0)
	if err != nil || v8 != 0xAB {
		t.Errorf("ReadReg: expected 0xAB, got 0x%02X (%v)", v8, err)
	}
	v16, err := c.ReadReg16(0x44)
	if err != nil || v16 != 0xABCD {
		t.Errorf("ReadReg16: expected 0xABCD, got 0x%04X (%v)", v16, err)
	}
	v32, err := c.ReadReg32(0x04)
	if err != nil || v32 != 0xABCDEF01 {
		t.Errorf("ReadReg32: expected 0xABCDEF01, got 0x%08X (%v)", v32, err)
	}

	// Each read writes the index only
	for i, idx := range []byte{0xC0, 0x44, 0x04} {
		if !bytes.Equal(bus.tx[i], []byte{idx}) {
			t.Errorf("Read %d: expected index write %v, got %v", i, []byte{idx}, bus.tx[i])
		}
	}
}

func TestCommsTransferLimit(t *testing.T) {
	bus := &recordBus{}
	c := NewComms(bus, 0x29)

	if err := c.WriteMulti(0xB0, make([]byte, MaxI2CTransfer)); err != ErrInvalidParams {
		t.Errorf("Expected ErrInvalidParams for %d byte write, got %v", MaxI2CTransfer, err)
	}
	if err := c.ReadMulti(0xB0, make([]byte, MaxI2CTransfer)); err != ErrInvalidParams {
		t.Errorf("Expected ErrInvalidParams for %d byte read, got %v", MaxI2CTransfer, err)
	}
	if len(bus.tx) != 0 {
		t.Errorf("Oversized transfers must not reach the bus, got %d transactions", len(bus.tx))
	}

	if err := c.WriteMulti(0xB0, make([]byte, MaxI2CTransfer-1)); err != nil {
		t.Errorf("Expected %d byte write to succeed, got %v", MaxI2CTransfer-1, err)
	}
	if len(bus.tx) != 1 || len(bus.tx[0]) != MaxI2CTransfer {
		t.Errorf("Expected one %d byte transaction", MaxI2CTransfer)
	}
}

func TestCommsEmptyWrite(t *testing.T) {
	bus := &recordBus{}
	c := NewComms(bus, 0x29)

	if err := c.WriteMulti(0x13, nil); err != nil {
		t.Fatalf("WriteMulti failed: %v", err)
	}
	if !bytes.Equal(bus.tx[0], []byte{0x13}) {
		t.Errorf("Expected index-only write, got %v", bus.tx[0])
	}
}

func TestCommsBusError(t *testing.T) {
	bus := &recordBus{err: errors.New("nack")}
	c := NewComms(bus, 0x29)

	if err := c.WriteReg(0x00, 0x01); !errors.Is(err, ErrControlInterface) {
		t.Errorf("Expected ErrControlInterface on write, got %v", err)
	}
	if _, err := c.ReadReg16(0x44); !errors.Is(err, ErrControlInterface) {
		t.Errorf("Expected ErrControlInterface on read, got %v", err)
	}
	// No retries
	if len(bus.tx) != 2 {
		t.Errorf("Expected 2 transactions, got %d", len(bus.tx))
	}
}

func TestCommsUpdateReg(t *testing.T) {
	bus := &recordBus{reply: []byte{0xF0}}
	c := NewComms(bus, 0x29)

	if err := c.UpdateReg(0x84, 0xEF, 0x01); err != nil {
		t.Fatalf("UpdateReg failed: %v", err)
	}
	if len(bus.tx) != 2 {
		t.Fatalf("Expected read then write, got %d transactions", len(bus.tx))
	}
	if !bytes.Equal(bus.tx[1], []byte{0x84, 0xE1}) {
		t.Errorf("Expected write of 0xE1, got %v", bus.tx[1])
	}
}

func TestCommsSetAddress(t *testing.T) {
	bus := &recordBus{}
	c := NewComms(bus, 0xA9)
	if c.Address() != 0x29 {
		t.Errorf("Expected address masked to 0x29, got 0x%02X", c.Address())
	}
	c.SetAddress(0x30)
	c.WriteReg(0x00, 0x00)
	if bus.addr != 0x30 {
		t.Errorf("Expected transaction at 0x30, got 0x%02X", bus.addr)
	}
}
