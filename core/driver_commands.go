package core

import (
	"tofmcu/protocol"
	"tofmcu/vl53l0x"
)

// InitDriverCommands registers the generic driver commands
func InitDriverCommands() {
	RegisterCommand("config_driver", "oid=%c", handleConfigDriver)
	RegisterCommand("driver_read", "oid=%c params=%*s", handleDriverRead)
	RegisterCommand("driver_write", "oid=%c data=%*s", handleDriverWrite)
	RegisterCommand("driver_start_poll", "oid=%c poll_ticks=%u", handleDriverStartPoll)
	RegisterCommand("driver_stop_poll", "oid=%c", handleDriverStopPoll)
	RegisterShutdownCommand("driver_query_state", "oid=%c", handleDriverQueryState)
	RegisterCommand("driver_unregister", "oid=%c", handleDriverUnregister)

	RegisterResponse("driver_data", "oid=%c data=%*s")
	RegisterResponse("driver_state", "oid=%c configured=%c active=%c error=%i")
	RegisterResponse("driver_poll_data", "oid=%c data=%*s")
}

// decodeDriver reads the leading oid. Unknown OIDs give a nil driver and
// the command is ignored.
func decodeDriver(data *[]byte) (*DriverInstance, error) {
	var oid uint32
	if err := decodeArgs(data, &oid); err != nil {
		return nil, err
	}
	return registeredDrivers[uint8(oid)], nil
}

func boolArg(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// Format: config_driver oid=%c
func handleConfigDriver(data *[]byte) error {
	d, err := decodeDriver(data)
	if err != nil || d == nil || d.Configured {
		return err
	}
	if fn := d.Config.ConfigureFunc; fn != nil {
		if err := fn(d.Device, d.Config); err != nil {
			d.LastError = err
			return err
		}
	}
	d.Configured = true
	return nil
}

// Format: driver_read oid=%c params=%*s
func handleDriverRead(data *[]byte) error {
	d, err := decodeDriver(data)
	if err != nil {
		return err
	}
	params, err := protocol.DecodeVLQBytes(data)
	if err != nil || d == nil || d.Config.ReadFunc == nil {
		return err
	}
	res, err := d.Config.ReadFunc(d.Device, params)
	d.LastError = err
	if err != nil {
		return err
	}
	SendResponse("driver_data", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, uint32(d.OID))
		protocol.EncodeVLQBytes(out, res)
	})
	return nil
}

// Format: driver_write oid=%c data=%*s
func handleDriverWrite(data *[]byte) error {
	d, err := decodeDriver(data)
	if err != nil {
		return err
	}
	payload, err := protocol.DecodeVLQBytes(data)
	if err != nil || d == nil || d.Config.WriteFunc == nil {
		return err
	}
	d.LastError = d.Config.WriteFunc(d.Device, payload)
	return d.LastError
}

// Format: driver_start_poll oid=%c poll_ticks=%u
func handleDriverStartPoll(data *[]byte) error {
	d, err := decodeDriver(data)
	if err != nil {
		return err
	}
	var ticks uint32
	if err := decodeArgs(data, &ticks); err != nil || d == nil {
		return err
	}
	if err := d.StartPolling(ticks); err != nil {
		d.LastError = err
		return err
	}
	return nil
}

// Format: driver_stop_poll oid=%c
func handleDriverStopPoll(data *[]byte) error {
	d, err := decodeDriver(data)
	if err == nil && d != nil {
		d.StopPolling()
	}
	return err
}

// handleDriverQueryState reports the driver state. The error is the last
// callback error as a ranging API status code.
// Format: driver_query_state oid=%c
func handleDriverQueryState(data *[]byte) error {
	d, err := decodeDriver(data)
	if err != nil || d == nil {
		return err
	}
	code := int32(vl53l0x.StatusOf(d.LastError))
	SendResponse("driver_state", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, uint32(d.OID))
		protocol.EncodeVLQUint(out, boolArg(d.Configured))
		protocol.EncodeVLQUint(out, boolArg(d.Active))
		protocol.EncodeVLQInt(out, code)
	})
	return nil
}

// Format: driver_unregister oid=%c
func handleDriverUnregister(data *[]byte) error {
	var oid uint32
	if err := decodeArgs(data, &oid); err != nil {
		return err
	}
	return UnregisterDriver(uint8(oid))
}
