//go:build rp2040

package main

import (
	"machine"
)

// InitUSB configures the USB CDC-ACM port. TinyGo's runtime provides the
// descriptors.
func InitUSB() {
	_ = machine.Serial.Configure(machine.UARTConfig{})
}

// USBAvailable returns the number of bytes waiting on the port
func USBAvailable() int {
	return machine.Serial.Buffered()
}

// USBRead reads one byte
func USBRead() (byte, error) {
	return machine.Serial.ReadByte()
}

// USBWriteBytes writes data and returns how much was accepted
func USBWriteBytes(data []byte) (int, error) {
	return machine.Serial.Write(data)
}
