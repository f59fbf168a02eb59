// Package mcu is the host side of the Klipper MCU protocol: it connects to
// the firmware, retrieves its data dictionary and exchanges messages by name.
package mcu

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"tofmcu/host/serial"
	"tofmcu/protocol"
)

// Bootstrap messages every MCU answers before its dictionary is known
const (
	identifyResponseFormat = "identify_response offset=%u data=%*s"
	identifyFormat         = "identify offset=%u count=%c"
)

// identifyChunk is the dictionary chunk size requested per identify
const identifyChunk = 40

var (
	ErrNotConnected   = errors.New("not connected to MCU")
	ErrNoDictionary   = errors.New("dictionary not loaded")
	ErrUnknownCommand = errors.New("unknown command")
	ErrTimeout        = errors.New("response timeout")
	ErrShutdown       = errors.New("mcu is shut down")
)

// MCU represents a connection to a Klipper microcontroller
type MCU struct {
	log       *zap.Logger
	transport *protocol.HostTransport
	timeout   time.Duration

	// Dictionary data
	dictionary     *Dictionary
	dictionaryData []byte

	mu        sync.Mutex
	commands  map[string]*messageFormat // by name
	responses map[uint16]*messageFormat // by id
	handlers  map[string]map[int]func(*Response)
	nextID    int

	connected bool
}

// Dictionary represents the parsed MCU dictionary
type Dictionary struct {
	Version       string                    `json:"version"`
	BuildVersions string                    `json:"build_versions"`
	Config        map[string]string         `json:"config"`
	Commands      map[string]int            `json:"commands"`
	Responses     map[string]int            `json:"responses"`
	Enumerations  map[string]map[string]int `json:"enumerations,omitempty"`
}

// New creates an MCU client that is not yet connected. A nil logger
// disables logging.
func New(log *zap.Logger) *MCU {
	if log == nil {
		log = zap.NewNop()
	}
	m := &MCU{
		log:       log,
		timeout:   time.Second,
		commands:  make(map[string]*messageFormat),
		responses: make(map[uint16]*messageFormat),
		handlers:  make(map[string]map[int]func(*Response)),
	}
	m.loadBootstrap()
	return m
}

func (m *MCU) loadBootstrap() {
	resp, _ := parseFormat(0, identifyResponseFormat)
	cmd, _ := parseFormat(1, identifyFormat)
	m.responses[resp.id] = resp
	m.commands[cmd.name] = cmd
}

// SetTimeout sets how long queries wait for their response
func (m *MCU) SetTimeout(d time.Duration) {
	m.timeout = d
}

// Connect connects to an MCU via serial port
func (m *MCU) Connect(device string) error {
	return m.ConnectWithConfig(serial.DefaultConfig(device))
}

// ConnectWithConfig connects to an MCU with a custom serial config
func (m *MCU) ConnectWithConfig(cfg *serial.Config) error {
	port, err := serial.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open serial port: %w", err)
	}
	m.log.Info("serial port open", zap.String("device", cfg.Device), zap.Int("baud", cfg.Baud))
	m.Attach(port)

	// Give a freshly powered MCU time to initialize
	time.Sleep(100 * time.Millisecond)
	return nil
}

// Attach runs the protocol over an already open connection
func (m *MCU) Attach(port io.ReadWriteCloser) {
	m.transport = protocol.NewHostTransport(port)
	m.transport.SetResponseHandler(m.handleResponse)
	m.connected = true
}

// Close closes the connection to the MCU
func (m *MCU) Close() error {
	if !m.connected {
		return nil
	}
	m.connected = false
	return m.transport.Close()
}

// IsConnected returns whether the MCU is connected
func (m *MCU) IsConnected() bool {
	return m.connected
}

// RetrieveDictionary retrieves the complete dictionary from the MCU
func (m *MCU) RetrieveDictionary() error {
	if !m.connected {
		return ErrNotConnected
	}

	var dictBuffer bytes.Buffer
	offset := uint32(0)
	for {
		chunk, err := m.identify(offset)
		if err != nil {
			return fmt.Errorf("failed to retrieve dictionary chunk at offset %d: %w", offset, err)
		}
		dictBuffer.Write(chunk)
		offset += uint32(len(chunk))
		if len(chunk) < identifyChunk {
			break
		}
	}
	m.log.Debug("dictionary retrieved", zap.Int("bytes", dictBuffer.Len()))

	data, err := decompress(dictBuffer.Bytes())
	if err != nil {
		return fmt.Errorf("failed to decompress dictionary: %w", err)
	}
	if err := m.loadDictionary(data); err != nil {
		return fmt.Errorf("failed to parse dictionary: %w", err)
	}

	dict := m.Dictionary()
	m.log.Info("dictionary loaded",
		zap.String("version", dict.Version),
		zap.Int("commands", len(dict.Commands)),
		zap.Int("responses", len(dict.Responses)))
	return nil
}

// identify requests one dictionary chunk
func (m *MCU) identify(offset uint32) ([]byte, error) {
	resp, err := m.Query("identify_response", func(r *Response) bool {
		return r.Uint("offset") == offset
	}, "identify", offset, identifyChunk)
	if err != nil {
		return nil, err
	}
	return resp.Bytes("data"), nil
}

// decompress inflates a zlib dictionary; plain JSON passes through
func decompress(data []byte) ([]byte, error) {
	if len(data) < 2 || data[0] != 0x78 {
		return data, nil
	}
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// loadDictionary parses the dictionary JSON and indexes its messages
func (m *MCU) loadDictionary(data []byte) error {
	dict := &Dictionary{}
	if err := json.Unmarshal(data, dict); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	commands := make(map[string]*messageFormat, len(dict.Commands))
	for key, id := range dict.Commands {
		mf, err := parseFormat(uint16(id), key)
		if err != nil {
			return err
		}
		commands[mf.name] = mf
	}
	responses := make(map[uint16]*messageFormat, len(dict.Responses))
	for key, id := range dict.Responses {
		mf, err := parseFormat(uint16(id), key)
		if err != nil {
			return err
		}
		responses[mf.id] = mf
	}

	m.mu.Lock()
	m.commands = commands
	m.responses = responses
	m.dictionary = dict
	m.dictionaryData = data
	m.mu.Unlock()
	return nil
}

// handleResponse decodes a message and hands it to the registered handlers.
// It runs on the transport's reader goroutine, so handlers must not block
// on further MCU traffic.
func (m *MCU) handleResponse(cmdID uint16, data *[]byte) error {
	m.mu.Lock()
	mf, ok := m.responses[cmdID]
	m.mu.Unlock()
	if !ok {
		m.log.Debug("unknown message", zap.Uint16("id", cmdID))
		return nil
	}

	resp, err := mf.decode(data)
	if err != nil {
		m.log.Warn("malformed message", zap.Error(err))
		return err
	}
	if resp.Name == "shutdown" || resp.Name == "is_shutdown" {
		m.log.Warn("mcu shutdown", zap.String("reason", m.ShutdownReason(resp.Uint("static_string_id"))))
	}

	m.mu.Lock()
	fns := make([]func(*Response), 0, len(m.handlers[resp.Name]))
	for _, fn := range m.handlers[resp.Name] {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(resp)
	}
	return nil
}

// RegisterHandler calls fn for every message with the given name. The
// returned func removes the handler.
func (m *MCU) RegisterHandler(name string, fn func(*Response)) (remove func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	if m.handlers[name] == nil {
		m.handlers[name] = make(map[int]func(*Response))
	}
	m.handlers[name][id] = fn
	return func() {
		m.mu.Lock()
		delete(m.handlers[name], id)
		m.mu.Unlock()
	}
}

// Send encodes args according to the command's dictionary format and
// sends it, waiting for the MCU to acknowledge
func (m *MCU) Send(name string, args ...interface{}) error {
	if !m.connected {
		return ErrNotConnected
	}
	m.mu.Lock()
	mf, ok := m.commands[name]
	m.mu.Unlock()
	if !ok {
		if m.Dictionary() == nil {
			return ErrNoDictionary
		}
		return fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	enc, err := mf.encode(args)
	if err != nil {
		return err
	}
	m.log.Debug("send", zap.String("command", name), zap.Any("args", args))
	return m.transport.SendCommand(mf.id, enc)
}

// SendCommand sends a command whose arguments are encoded by the caller
func (m *MCU) SendCommand(name string, args func(output protocol.OutputBuffer)) error {
	if !m.connected {
		return ErrNotConnected
	}
	if m.Dictionary() == nil {
		return ErrNoDictionary
	}
	m.mu.Lock()
	mf, ok := m.commands[name]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	return m.transport.SendCommand(mf.id, args)
}

// Query sends a command and waits for the first response named resp that
// match accepts. A nil match accepts any.
func (m *MCU) Query(resp string, match func(*Response) bool, cmd string, args ...interface{}) (*Response, error) {
	ch := make(chan *Response, 1)
	remove := m.RegisterHandler(resp, func(r *Response) {
		if match != nil && !match(r) {
			return
		}
		select {
		case ch <- r:
		default:
		}
	})
	defer remove()

	refused := make(chan *Response, 1)
	removeRefused := m.RegisterHandler("is_shutdown", func(r *Response) {
		select {
		case refused <- r:
		default:
		}
	})
	defer removeRefused()

	if err := m.Send(cmd, args...); err != nil {
		return nil, err
	}
	select {
	case r := <-ch:
		return r, nil
	case r := <-refused:
		return nil, fmt.Errorf("%s: %w: %s", cmd, ErrShutdown, m.ShutdownReason(r.Uint("static_string_id")))
	case <-time.After(m.timeout):
		return nil, fmt.Errorf("%w: %s after %s", ErrTimeout, resp, cmd)
	}
}

// Dictionary returns the parsed dictionary
func (m *MCU) Dictionary() *Dictionary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dictionary
}

// DictionaryRaw returns the decompressed dictionary JSON
func (m *MCU) DictionaryRaw() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dictionaryData
}

// Constant returns a dictionary config constant
func (m *MCU) Constant(name string) (string, bool) {
	d := m.Dictionary()
	if d == nil {
		return "", false
	}
	v, ok := d.Config[name]
	return v, ok
}

// ShutdownReason maps a static_string_id to its text
func (m *MCU) ShutdownReason(id uint32) string {
	if d := m.Dictionary(); d != nil {
		for text, v := range d.Enumerations["static_string_id"] {
			if uint32(v) == id {
				return text
			}
		}
	}
	return fmt.Sprintf("static_string_id %d", id)
}

// WriteSummary prints the dictionary contents
func (m *MCU) WriteSummary(w io.Writer) {
	d := m.Dictionary()
	if d == nil {
		fmt.Fprintln(w, "No dictionary loaded")
		return
	}

	fmt.Fprintf(w, "Version: %s\n", d.Version)
	fmt.Fprintf(w, "Build: %s\n", d.BuildVersions)

	fmt.Fprintln(w, "Config:")
	for _, k := range sortedKeys(d.Config) {
		fmt.Fprintf(w, "  %s = %s\n", k, d.Config[k])
	}
	fmt.Fprintf(w, "Commands (%d):\n", len(d.Commands))
	for _, k := range sortedByID(d.Commands) {
		fmt.Fprintf(w, "  [%d] %s\n", d.Commands[k], k)
	}
	fmt.Fprintf(w, "Responses (%d):\n", len(d.Responses))
	for _, k := range sortedByID(d.Responses) {
		fmt.Fprintf(w, "  [%d] %s\n", d.Responses[k], k)
	}
	if len(d.Enumerations) > 0 {
		fmt.Fprintf(w, "Enumerations (%d):\n", len(d.Enumerations))
		for name, values := range d.Enumerations {
			fmt.Fprintf(w, "  %s: %d values\n", name, len(values))
		}
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedByID(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return m[keys[i]] < m[keys[j]] })
	return keys
}
