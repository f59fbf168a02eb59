package protocol

import "sync/atomic"

// CommandHandler decodes and runs one command. It must consume exactly
// its own arguments from data.
type CommandHandler func(cmdID uint16, data *[]byte) error

// Transport is the MCU end of the link. It runs the commands of each
// in-sequence frame, then acknowledges with the next sequence it expects.
// Responses carry the same sequence as the ACK.
type Transport struct {
	frames deframer
	expect uint32 // atomic, next sequence expected from the host

	output  OutputBuffer
	handler CommandHandler
	onReset func()
	onFlush func()
}

// NewTransport creates a synchronised transport writing to output
func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	t := &Transport{
		expect:  MessageDest,
		output:  output,
		handler: handler,
	}
	t.frames.onResync = t.sendAck
	return t
}

// Receive handles every complete frame in input and pops what it used
func (t *Transport) Receive(input InputBuffer) {
	data := input.Data()
	used := 0
	for {
		f, n, ok := t.frames.next(data[used:])
		used += n
		if !ok {
			break
		}
		t.accept(f)
	}
	input.Pop(used)
}

func (t *Transport) accept(f Frame) {
	expect := uint8(atomic.LoadUint32(&t.expect))
	if f.Seq == MessageDest && expect != MessageDest {
		// the host restarted its sequence
		expect = MessageDest
		atomic.StoreUint32(&t.expect, MessageDest)
		if t.onReset != nil {
			t.onReset()
		}
	}
	// Out of sequence frames are dropped; the ACK then works as a NAK
	if f.Seq == expect {
		atomic.StoreUint32(&t.expect, uint32(NextSequence(f.Seq)))
		t.run(f.Payload)
	}
	t.sendAck()
}

// run dispatches the commands of one frame. A handler error skips the
// rest of the frame; a malformed ID or a panic also drops sync.
func (t *Transport) run(payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			t.frames.lost = true
		}
	}()
	for len(payload) > 0 {
		id, err := DecodeVLQUint(&payload)
		if err != nil {
			t.frames.lost = true
			return
		}
		if t.handler == nil {
			continue
		}
		if t.handler(uint16(id), &payload) != nil {
			return
		}
	}
}

func (t *Transport) sendAck() {
	encodeFrame(t.output, t.sequence(), nil)
	if t.onFlush != nil {
		t.onFlush()
	}
}

func (t *Transport) sequence() uint8 {
	return uint8(atomic.LoadUint32(&t.expect))
}

// EncodeFrame writes a frame whose payload frameData encodes
func (t *Transport) EncodeFrame(frameData func(output OutputBuffer)) {
	encodeFrame(t.output, t.sequence(), frameData)
}

// SendCommand writes a frame with one message
func (t *Transport) SendCommand(cmdID uint16, args func(output OutputBuffer)) {
	t.EncodeFrame(func(out OutputBuffer) {
		EncodeVLQUint(out, uint32(cmdID))
		if args != nil {
			args(out)
		}
	})
}

// Reset returns to the power-on state, e.g. after a USB reconnect
func (t *Transport) Reset() {
	t.frames.lost = false
	atomic.StoreUint32(&t.expect, MessageDest)
	if t.onReset != nil {
		t.onReset()
	}
}

// SetResetCallback sets what runs when the host restarts its sequence
func (t *Transport) SetResetCallback(callback func()) {
	t.onReset = callback
}

// SetFlushCallback sets what runs after each ACK is written, so targets
// can push it out ahead of the main loop
func (t *Transport) SetFlushCallback(callback func()) {
	t.onFlush = callback
}
