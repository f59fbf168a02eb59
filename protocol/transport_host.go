package protocol

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultAckTimeout bounds the wait for the MCU to acknowledge a command
const DefaultAckTimeout = 2 * time.Second

var (
	ErrAckTimeout = errors.New("ACK timeout")
	ErrClosed     = errors.New("transport closed")
)

// ResponseHandler receives each message the MCU sends. It runs on the read
// goroutine and must not send.
type ResponseHandler func(cmdID uint16, data *[]byte) error

// HostTransport is the host end of the link. Sends are serialised: each
// waits for the ACK that moves the sequence on.
type HostTransport struct {
	port io.ReadWriteCloser
	seq  uint32 // atomic, sequence of the next command

	sendMu sync.Mutex
	acks   chan uint8

	readMu  sync.Mutex
	frames  deframer
	input   *FifoBuffer
	handler ResponseHandler

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewHostTransport starts reading from port
func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:  port,
		seq:   MessageDest,
		acks:  make(chan uint8, 4),
		input: NewFifoBuffer(4 * MessageLengthMax),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// SendCommand sends one command and waits for its ACK
func (t *HostTransport) SendCommand(cmdID uint16, args func(output OutputBuffer)) error {
	return t.SendCommandWithTimeout(cmdID, args, DefaultAckTimeout)
}

// SendCommandWithTimeout is SendCommand with a custom ACK timeout
func (t *HostTransport) SendCommandWithTimeout(cmdID uint16, args func(output OutputBuffer), timeout time.Duration) error {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	seq := t.Sequence()
	msg, err := buildFrame(seq, cmdID, args)
	if err != nil {
		return err
	}

	// drop ACKs left over from a resync
	for len(t.acks) > 0 {
		<-t.acks
	}
	if _, err := t.port.Write(msg); err != nil {
		return fmt.Errorf("write command: %w", err)
	}
	return t.waitForAck(NextSequence(seq), timeout)
}

// buildFrame encodes one command frame
func buildFrame(seq uint8, cmdID uint16, args func(OutputBuffer)) ([]byte, error) {
	out := NewScratchOutput()
	encodeFrame(out, seq, func(o OutputBuffer) {
		EncodeVLQUint(o, uint32(cmdID))
		if args != nil {
			args(o)
		}
	})
	if n := out.CurPosition(); n > MessageLengthMax {
		return nil, fmt.Errorf("message too long: %d bytes (max %d)", n, MessageLengthMax)
	}
	return append([]byte(nil), out.Result()...), nil
}

// waitForAck waits for the MCU to ask for want. A NAK or a stale ACK
// keeps waiting.
func (t *HostTransport) waitForAck(want uint8, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case seq := <-t.acks:
			if seq == want {
				atomic.StoreUint32(&t.seq, uint32(want))
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("%w after %v waiting for seq 0x%02x", ErrAckTimeout, timeout, want)
		case <-t.stop:
			return ErrClosed
		}
	}
}

// SetResponseHandler sets the receiver of MCU messages
func (t *HostTransport) SetResponseHandler(handler ResponseHandler) {
	t.readMu.Lock()
	t.handler = handler
	t.readMu.Unlock()
}

func (t *HostTransport) readLoop() {
	defer close(t.done)
	buf := make([]byte, 256)
	for {
		n, err := t.port.Read(buf)
		if n > 0 {
			t.receive(buf[:n])
		}
		if err != nil {
			select {
			case <-t.stop:
				return
			default:
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return
			}
			// serial read timeouts land here
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// receive queues data and handles every complete frame
func (t *HostTransport) receive(data []byte) {
	t.readMu.Lock()
	defer t.readMu.Unlock()

	for len(data) > 0 {
		n := t.input.Write(data)
		data = data[n:]
		for {
			f, used, ok := t.frames.next(t.input.Data())
			if ok {
				t.handleFrame(f)
			}
			t.input.Pop(used)
			if !ok {
				break
			}
		}
		if n == 0 {
			// full of garbage with no frame end in sight
			t.input.Reset()
			t.frames.lost = true
		}
	}
}

func (t *HostTransport) handleFrame(f Frame) {
	if f.IsAck() {
		select {
		case t.acks <- f.Seq:
		default:
		}
		return
	}
	if t.handler == nil {
		return
	}
	payload := append([]byte(nil), f.Payload...)
	for len(payload) > 0 {
		id, err := DecodeVLQUint(&payload)
		if err != nil {
			return
		}
		before := len(payload)
		if t.handler(uint16(id), &payload) != nil || len(payload) == before {
			// without a decoded message the rest cannot be split
			return
		}
	}
}

// Close stops the transport and closes the port. The port is closed
// before waiting so that a blocked Read returns.
func (t *HostTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.stop)
		if t.port != nil {
			err = t.port.Close()
		}
		<-t.done
	})
	return err
}

// Reset starts the sequence over, as after an MCU restart
func (t *HostTransport) Reset() {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()
	atomic.StoreUint32(&t.seq, MessageDest)

	t.readMu.Lock()
	t.input.Reset()
	t.frames.lost = false
	t.readMu.Unlock()
}

// Sequence returns the sequence of the next command
func (t *HostTransport) Sequence() uint8 {
	return uint8(atomic.LoadUint32(&t.seq))
}
