//go:build rp2040

// Command rp2040 is the firmware image for RP2040 boards with VL53L0X
// sensors on I2C0 or I2C1.
package main

import (
	"machine"
	"time"

	"tofmcu/core"
	"tofmcu/protocol"
)

// maxWriteFailures is how many failed USB writes mark the host as gone
const maxWriteFailures = 10

var (
	inputBuffer  *protocol.FifoBuffer
	outputBuffer *protocol.ScratchOutput
	transport    *protocol.Transport

	msgErrors       uint32
	usbDisconnected bool
	writeFailures   uint32
)

func main() {
	// A watchdog left running by a previous image would reset us mid-boot
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0}); err != nil {
		return
	}

	InitUSB()

	// Debug text and the shutdown event dump go out on UART0 (GP0/GP1)
	_ = machine.UART0.Configure(machine.UARTConfig{BaudRate: 115200})
	core.SetDebugWriter(func(s string) {
		_, _ = machine.UART0.Write([]byte(s + "\r\n"))
	})
	core.InitAsyncDebug()

	InitClock()
	core.TimerInit()

	core.InitCoreCommands()
	core.InitI2CCommands()
	core.InitDriverCommands()
	core.InitTriggerSyncCommands()
	core.InitI2CEndstopCommands()
	core.InitToFCommands()
	core.InitGPIOCommands()
	core.InitEndstopCommands()
	core.SetI2CDriver(newRPI2C())
	core.SetGPIODriver(newRPGPIO())
	registerPins()

	// Must follow every registration
	core.GetGlobalDictionary().BuildDictionary()

	inputBuffer = protocol.NewFifoBuffer(256)
	outputBuffer = protocol.NewScratchOutput()
	transport = protocol.NewTransport(outputBuffer, core.DispatchCommand)
	transport.SetResetCallback(func() {
		inputBuffer.Reset()
		outputBuffer.Reset()
		core.ResetFirmwareState()
	})
	transport.SetFlushCallback(writeUSB)
	core.SetGlobalTransport(transport)

	core.SetResetHandler(func() {
		if machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 1}) != nil {
			return
		}
		if machine.Watchdog.Start() != nil {
			return
		}
		for {
			time.Sleep(time.Millisecond)
		}
	})

	go usbReaderLoop()

	for {
		step()
		time.Sleep(10 * time.Microsecond)
	}
}

// step runs one pass of the firmware loop. A panic drops the buffered
// traffic; the host resynchronises on the next frame.
func step() {
	defer func() {
		if r := recover(); r != nil {
			msgErrors++
			inputBuffer.Reset()
			outputBuffer.Reset()
		}
	}()

	UpdateSystemTime()

	if inputBuffer.Available() > 0 {
		// the reader goroutine may compact the FIFO under us
		var frameBuf [256]byte
		data := frameBuf[:copy(frameBuf[:], inputBuffer.Data())]
		in := protocol.NewSliceInputBuffer(data)
		transport.Receive(in)
		if consumed := len(data) - in.Available(); consumed > 0 {
			inputBuffer.Pop(consumed)
		}
	}

	if len(outputBuffer.Result()) > 0 {
		writeUSB()
	}

	// After the output so the ACK leaves before a reset
	core.CheckPendingReset()

	// Sensor polling and endstop sampling run from here
	core.ProcessTimers()
}

// usbReaderLoop moves bytes from the USB port into the input FIFO
func usbReaderLoop() {
	defer func() {
		if r := recover(); r != nil {
			msgErrors++
			time.Sleep(100 * time.Millisecond)
			go usbReaderLoop()
		}
	}()

	for {
		if USBAvailable() > 0 {
			b, err := USBRead()
			if err != nil {
				msgErrors++
				time.Sleep(time.Millisecond)
				continue
			}
			if usbDisconnected {
				// fresh host connection
				usbDisconnected = false
				inputBuffer.Reset()
				outputBuffer.Reset()
				transport.Reset()
				core.ResetFirmwareState()
				writeFailures = 0
			}
			if inputBuffer.Write([]byte{b}) == 0 {
				msgErrors++
				time.Sleep(10 * time.Millisecond)
			}
		}
		time.Sleep(100 * time.Microsecond)
	}
}

// writeUSB drains the output buffer to the port
func writeUSB() {
	result := outputBuffer.Result()
	written := 0
	for written < len(result) {
		n, err := USBWriteBytes(result[written:])
		if err != nil || n == 0 {
			writeFailures++
			if writeFailures > maxWriteFailures {
				usbDisconnected = true
				writeFailures = 0
				outputBuffer.Reset()
				inputBuffer.Reset()
			}
			return
		}
		written += n
	}
	writeFailures = 0
	outputBuffer.Reset()
}
