package protocol

import (
	"bytes"
	"encoding/binary"
)

// Frame is one checked frame taken off the wire
type Frame struct {
	Seq     uint8
	Payload []byte
}

// IsAck reports whether the frame carries no messages
func (f Frame) IsAck() bool { return len(f.Payload) == 0 }

// deframer splits a byte stream into frames. After a bad frame it skips
// to the next sync byte.
type deframer struct {
	lost bool
	// onResync runs when a sync byte ends a lost stretch
	onResync func()
}

// next returns the first frame in data and the bytes used up to its end.
// When ok is false data holds no complete frame and n counts the bytes
// that can be dropped.
func (d *deframer) next(data []byte) (f Frame, n int, ok bool) {
	for n < len(data) {
		rest := data[n:]
		if d.lost {
			i := bytes.IndexByte(rest, MessageValueSync)
			if i < 0 {
				return Frame{}, len(data), false
			}
			n += i + 1
			d.lost = false
			if d.onResync != nil {
				d.onResync()
			}
			continue
		}
		if rest[0] == MessageValueSync {
			n++
			continue
		}
		if len(rest) < MessageLengthMin {
			break
		}
		size := int(rest[MessagePositionLen])
		seq := rest[MessagePositionSeq]
		if size < MessageLengthMin || size > MessageLengthMax || seq&^MessageSeqMask != MessageDest {
			d.lost = true
			continue
		}
		if len(rest) < size {
			break
		}
		body := size - MessageTrailerSize
		if rest[size-1] != MessageValueSync || binary.BigEndian.Uint16(rest[body:]) != CRC16(rest[:body]) {
			d.lost = true
			continue
		}
		return Frame{Seq: seq, Payload: rest[MessageHeaderSize:body]}, n + size, true
	}
	return Frame{}, n, false
}

// encodeFrame appends a frame whose payload body writes. A nil body makes
// an ACK.
func encodeFrame(out OutputBuffer, seq uint8, body func(OutputBuffer)) {
	start := out.CurPosition()
	out.Output([]byte{0, seq})
	if body != nil {
		body(out)
	}
	out.Update(start, uint8(len(out.DataSince(start))+MessageTrailerSize))
	crc := CRC16(out.DataSince(start))
	out.Output([]byte{byte(crc >> 8), byte(crc), MessageValueSync})
}
