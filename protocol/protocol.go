// Package protocol implements the Klipper serial protocol: VLQ argument
// encoding, CRC-checked frames with sequence numbers, and the two ends of
// a link (Transport on the MCU, HostTransport on the host).
//
// A frame is
//
//	len seq payload... crc_hi crc_lo 0x7E
//
// where len counts the whole frame and seq carries MessageDest in its
// high bits. A frame with an empty payload is an ACK (or a NAK when its
// sequence is not the one the sender expects).
package protocol

// Version is the protocol implementation version reported by tools
const Version = "0.1.0"

// Frame layout
const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageValueSync   = 0x7E
	MessageDest        = 0x10
	MessageSeqMask     = 0x0F

	// MessageMax is the output space of one firmware loop pass
	MessageMax = 512
)

// NextSequence returns the sequence following seq
func NextSequence(seq uint8) uint8 {
	return (seq+1)&MessageSeqMask | MessageDest
}
