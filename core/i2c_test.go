package core

import (
	"errors"
	"testing"
)

func TestI2CSetBus(t *testing.T) {
	setupFirmware(t)
	hal := i2cDriver.(*simHAL)

	mustRun(t, "config_i2c", 4)
	dev, ok := GetI2C(4)
	if !ok || dev.Ready {
		t.Fatal("Expected an unconfigured I2C object")
	}

	// Klipper sends 7-bit addresses; the top bit is dropped
	mustRun(t, "i2c_set_bus", 4, 1, 100000, 0xA9)
	if !dev.Ready || dev.Bus != 1 || dev.Rate != 100000 || dev.Address != 0x29 {
		t.Errorf("Unexpected I2C object %+v", dev)
	}
	if hal.rates[1] != 100000 {
		t.Errorf("Expected bus 1 configured at 100kHz, got %d", hal.rates[1])
	}
}

func TestI2CWriteRead(t *testing.T) {
	out, sensor := setupFirmware(t)
	configureI2C(t, 0)

	mustRun(t, "i2c_write", 0, []byte{0x0C, 0x12, 0x34})
	if sensor.Reg(0, 0x0C) != 0x12 || sensor.Reg(0, 0x0D) != 0x34 {
		t.Errorf("Write did not reach the device")
	}

	mustRun(t, "i2c_read", 0, []byte{0xC0}, 3)
	r := findResponse(t, out.takeResponses(t), "i2c_read_response")
	want := []byte{0, 3, 0xEE, 0xAA, 0x10}
	if string(r.args) != string(want) {
		t.Errorf("Expected %v, got %v", want, r.args)
	}
}

func TestI2CReadErrorShutsDown(t *testing.T) {
	out, sensor := setupFirmware(t)
	configureI2C(t, 0)
	sensor.SetFault(errors.New("nack"))

	if err := run(t, "i2c_read", 0, []byte{0xC0}, 1); err == nil {
		t.Error("Expected read error")
	}
	if ShutdownReason() != "I2C read error" {
		t.Errorf("Expected I2C read error shutdown, got %q", ShutdownReason())
	}
	findResponse(t, out.takeResponses(t), "shutdown")

	dev, _ := GetI2C(0)
	if dev.Ready {
		t.Error("Expected I2C objects to be disabled on shutdown")
	}
}

func TestHALBus(t *testing.T) {
	_, sensor := setupFirmware(t)
	configureI2C(t, 0)
	dev, _ := GetI2C(0)
	bus := NewHALBus(dev)

	if err := bus.WriteRegister(0x29, 0x0E, []byte{0x00, 0x2A}); err != nil {
		t.Fatalf("WriteRegister failed: %v", err)
	}
	if sensor.Reg(0, 0x0F) != 0x2A {
		t.Errorf("Expected register 0x0F = 0x2A, got 0x%02x", sensor.Reg(0, 0x0F))
	}

	buf := make([]byte, 2)
	if err := bus.ReadRegister(0x29, 0xC0, buf); err != nil {
		t.Fatalf("ReadRegister failed: %v", err)
	}
	if buf[0] != 0xEE || buf[1] != 0xAA {
		t.Errorf("Unexpected model id bytes %x", buf)
	}

	// the sensor driver picks the address, not the I2C object
	if err := bus.Tx(0x30, []byte{0xC0}, buf); err == nil {
		t.Error("Expected an error for an absent device")
	}

	dev.Ready = false
	if err := bus.Tx(0x29, []byte{0xC0}, buf); err != errI2CNotReady {
		t.Errorf("Expected errI2CNotReady, got %v", err)
	}
}
