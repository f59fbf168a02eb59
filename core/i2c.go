// I2C objects of the Klipper protocol: config_i2c allocates one,
// i2c_set_bus binds it to a bus and a device address.
package core

import (
	"tofmcu/protocol"
)

// I2CDevice is a configured I2C object. Drivers bound through HALBus may
// address other devices on the same bus.
type I2CDevice struct {
	OID     uint8
	Bus     I2CBusID
	Rate    uint32 // Hz
	Address I2CAddress
	Ready   bool // bus configured and not shut down
}

var i2cDevices = make(map[uint8]*I2CDevice)

// InitI2CCommands registers the I2C object commands
func InitI2CCommands() {
	RegisterCommand("config_i2c", "oid=%c", handleConfigI2C)
	RegisterCommand("i2c_set_bus", "oid=%c i2c_bus=%u rate=%u address=%u", handleI2CSetBus)
	RegisterCommand("i2c_write", "oid=%c data=%*s", handleI2CWrite)
	RegisterCommand("i2c_read", "oid=%c reg=%*s read_len=%u", handleI2CRead)

	RegisterResponse("i2c_read_response", "oid=%c response=%*s")
}

func GetI2C(oid uint8) (*I2CDevice, bool) {
	dev, ok := i2cDevices[oid]
	return dev, ok
}

// readyI2C returns the object at oid when its bus is usable
func readyI2C(oid uint32) *I2CDevice {
	if dev := i2cDevices[uint8(oid)]; dev != nil && dev.Ready {
		return dev
	}
	return nil
}

// Format: config_i2c oid=%c
func handleConfigI2C(data *[]byte) error {
	var oid uint32
	if err := decodeArgs(data, &oid); err != nil {
		return err
	}
	i2cDevices[uint8(oid)] = &I2CDevice{OID: uint8(oid)}
	return nil
}

// handleI2CSetBus configures the bus. The address is masked to 7 bits.
// Format: i2c_set_bus oid=%c i2c_bus=%u rate=%u address=%u
func handleI2CSetBus(data *[]byte) error {
	var oid, bus, rate, addr uint32
	if err := decodeArgs(data, &oid, &bus, &rate, &addr); err != nil {
		return err
	}
	dev, ok := i2cDevices[uint8(oid)]
	if !ok {
		return nil
	}
	dev.Bus = I2CBusID(bus)
	dev.Rate = rate
	dev.Address = I2CAddress(addr & 0x7F)
	if err := MustI2C().ConfigureBus(dev.Bus, rate); err != nil {
		return err
	}
	dev.Ready = true
	return nil
}

// Format: i2c_write oid=%c data=%*s
func handleI2CWrite(data *[]byte) error {
	var oid uint32
	if err := decodeArgs(data, &oid); err != nil {
		return err
	}
	payload, err := protocol.DecodeVLQBytes(data)
	if err != nil {
		return err
	}
	dev := readyI2C(oid)
	if dev == nil {
		return nil
	}
	if err := MustI2C().Write(dev.Bus, dev.Address, payload); err != nil {
		TryShutdown("I2C write error")
		return err
	}
	return nil
}

// handleI2CRead writes reg, when not empty, then reads read_len bytes
// Format: i2c_read oid=%c reg=%*s read_len=%u
func handleI2CRead(data *[]byte) error {
	var oid, n uint32
	if err := decodeArgs(data, &oid); err != nil {
		return err
	}
	reg, err := protocol.DecodeVLQBytes(data)
	if err != nil {
		return err
	}
	if err := decodeArgs(data, &n); err != nil {
		return err
	}
	dev := readyI2C(oid)
	if dev == nil {
		return nil
	}
	res, err := MustI2C().Read(dev.Bus, dev.Address, reg, uint8(n))
	if err != nil {
		TryShutdown("I2C read error")
		return err
	}
	SendResponse("i2c_read_response", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, oid)
		protocol.EncodeVLQBytes(out, res)
	})
	return nil
}

// ShutdownAllI2C disables every I2C object until they are configured again
func ShutdownAllI2C() {
	for _, dev := range i2cDevices {
		dev.Ready = false
	}
}
