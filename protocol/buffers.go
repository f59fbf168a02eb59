package protocol

// InputBuffer is received data waiting to be parsed
type InputBuffer interface {
	Data() []byte
	Available() int
	// Pop drops n parsed bytes from the front
	Pop(n int)
}

// OutputBuffer collects encoded frames. Update and DataSince let a frame
// be patched and checksummed after its body is written.
type OutputBuffer interface {
	Output(data []byte)
	CurPosition() int
	Update(pos int, val byte)
	DataSince(pos int) []byte
}

// SliceInputBuffer reads from a fixed slice
type SliceInputBuffer struct {
	data []byte
}

func NewSliceInputBuffer(data []byte) *SliceInputBuffer {
	return &SliceInputBuffer{data: data}
}

func (s *SliceInputBuffer) Data() []byte   { return s.data }
func (s *SliceInputBuffer) Available() int { return len(s.data) }

func (s *SliceInputBuffer) Pop(n int) {
	s.data = s.data[min(n, len(s.data)):]
}

// ScratchOutput is a fixed MessageMax output area. Data past the end is
// dropped.
type ScratchOutput struct {
	buf [MessageMax]byte
	pos int
}

func NewScratchOutput() *ScratchOutput {
	return &ScratchOutput{}
}

func (s *ScratchOutput) Output(data []byte) {
	s.pos += copy(s.buf[s.pos:], data)
}

func (s *ScratchOutput) CurPosition() int { return s.pos }

func (s *ScratchOutput) Update(pos int, val byte) {
	if pos < s.pos {
		s.buf[pos] = val
	}
}

func (s *ScratchOutput) DataSince(pos int) []byte {
	if pos > s.pos {
		return nil
	}
	return s.buf[pos:s.pos]
}

// Result returns everything written since the last Reset
func (s *ScratchOutput) Result() []byte { return s.buf[:s.pos] }

func (s *ScratchOutput) Reset() { s.pos = 0 }

// FifoBuffer queues received bytes until a full frame is present. Data
// stays contiguous; space freed by Pop is reclaimed when a Write needs it.
type FifoBuffer struct {
	buf        []byte
	start, end int
}

// NewFifoBuffer creates a buffer holding up to capacity bytes
func NewFifoBuffer(capacity int) *FifoBuffer {
	return &FifoBuffer{buf: make([]byte, capacity)}
}

// Write queues as much of data as fits and returns how much that was
func (f *FifoBuffer) Write(data []byte) int {
	if len(data) > len(f.buf)-f.end && f.start > 0 {
		f.end = copy(f.buf, f.buf[f.start:f.end])
		f.start = 0
	}
	n := copy(f.buf[f.end:], data)
	f.end += n
	return n
}

// Read moves queued bytes into data
func (f *FifoBuffer) Read(data []byte) int {
	n := copy(data, f.buf[f.start:f.end])
	f.Pop(n)
	return n
}

func (f *FifoBuffer) Available() int { return f.end - f.start }

// Free returns how many more bytes Write accepts
func (f *FifoBuffer) Free() int { return len(f.buf) - f.Available() }

// Data returns the queued bytes without copying
func (f *FifoBuffer) Data() []byte { return f.buf[f.start:f.end] }

func (f *FifoBuffer) Pop(n int) {
	f.start += min(n, f.Available())
	if f.start == f.end {
		f.start, f.end = 0, 0
	}
}

func (f *FifoBuffer) IsEmpty() bool { return f.start == f.end }

func (f *FifoBuffer) Reset() { f.start, f.end = 0, 0 }
