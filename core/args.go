package core

import "tofmcu/protocol"

// decodeArgs reads one VLQ integer into each of args, in order
func decodeArgs(data *[]byte, args ...*uint32) error {
	for _, a := range args {
		v, err := protocol.DecodeVLQUint(data)
		if err != nil {
			return err
		}
		*a = v
	}
	return nil
}
