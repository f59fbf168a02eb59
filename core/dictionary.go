// The data dictionary: the JSON document the host fetches with identify.
// It maps every message format to its ID and carries the firmware
// constants and enumerations.
package core

import (
	"bytes"
	"sync"

	"tofmcu/tinycompress"
)

// Dictionary collects the firmware description. After BuildDictionary it
// serves a zlib-compressed copy; any later change drops that copy.
type Dictionary struct {
	mu            sync.RWMutex
	commandReg    *CommandRegistry
	version       string
	buildVersions string
	constants     map[string]string
	enumerations  map[string][]string
	compressed    []byte
}

var globalDictionary = NewDictionary(globalRegistry)

// NewDictionary creates a dictionary describing the messages of cmdReg
func NewDictionary(cmdReg *CommandRegistry) *Dictionary {
	return &Dictionary{
		commandReg:    cmdReg,
		version:       "tofmcu-0.1.0",
		buildVersions: "go-tinygo",
		constants:     make(map[string]string),
		enumerations:  make(map[string][]string),
	}
}

// GetGlobalDictionary returns the dictionary of the global registry
func GetGlobalDictionary() *Dictionary {
	return globalDictionary
}

// RegisterConstant adds a constant to the global dictionary
func RegisterConstant(name string, value interface{}) {
	globalDictionary.AddConstant(name, value)
}

// RegisterEnumeration adds an enumeration to the global dictionary
func RegisterEnumeration(name string, values []string) {
	globalDictionary.AddEnumeration(name, values)
}

func (d *Dictionary) update(fn func()) {
	d.mu.Lock()
	fn()
	d.compressed = nil
	d.mu.Unlock()
}

// AddConstant sets a constant. Values are sent as strings.
func (d *Dictionary) AddConstant(name string, value interface{}) {
	d.update(func() { d.constants[name] = valueToString(value) })
}

// AddEnumeration sets an enumeration. Each value maps to its index; empty
// entries leave a gap.
func (d *Dictionary) AddEnumeration(name string, values []string) {
	values = append([]string(nil), values...)
	d.update(func() { d.enumerations[name] = values })
}

func (d *Dictionary) SetVersion(version string) {
	d.update(func() { d.version = version })
}

func (d *Dictionary) SetBuildVersions(versions string) {
	d.update(func() { d.buildVersions = versions })
}

// BuildDictionary compresses the dictionary. Call it once every message is
// registered. The plain JSON is kept when compression fails.
func (d *Dictionary) BuildDictionary() {
	// registry before dictionary, never the other way round
	commands, responses := d.commandReg.GetCommandsAndResponses()

	d.mu.Lock()
	defer d.mu.Unlock()
	plain := d.encode(commands, responses)

	var buf bytes.Buffer
	w := tinycompress.NewWriter(&buf)
	_, err := w.Write(plain)
	if err == nil {
		err = w.Close()
	}
	if err != nil {
		DebugPrintln("[DICT] compression failed: " + err.Error())
		d.compressed = plain
		return
	}
	d.compressed = buf.Bytes()
	DebugPrintln("[DICT] " + itoa(len(plain)) + " bytes, " + itoa(len(d.compressed)) + " compressed")
}

// Generate returns the compressed dictionary once built, else plain JSON
func (d *Dictionary) Generate() []byte {
	d.mu.RLock()
	cached := d.compressed
	d.mu.RUnlock()
	if cached != nil {
		return cached
	}

	commands, responses := d.commandReg.GetCommandsAndResponses()
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.encode(commands, responses)
}

// GetChunk copies up to count bytes from offset, for identify_response
func (d *Dictionary) GetChunk(offset uint32, count uint8) []byte {
	data := d.Generate()
	if offset >= uint32(len(data)) {
		return []byte{}
	}
	end := min(offset+uint32(count), uint32(len(data)))
	return append([]byte(nil), data[offset:end]...)
}

// encode writes the JSON document. The caller holds d.mu.
func (d *Dictionary) encode(commands, responses map[string]int) []byte {
	var j jsonWriter
	j.open('{')
	j.key("version").str(d.version)
	j.key("build_versions").str(d.buildVersions)

	j.key("config").open('{')
	for _, name := range sortedKeys(d.constants, func(a, b string) bool { return a < b }) {
		j.key(name).str(d.constants[name])
	}
	j.close('}')

	byID := func(m map[string]int) func(a, b string) bool {
		return func(a, b string) bool { return m[a] < m[b] }
	}
	j.key("commands").open('{')
	for _, name := range sortedKeys(commands, byID(commands)) {
		j.key(name).num(commands[name])
	}
	j.close('}')
	j.key("responses").open('{')
	for _, name := range sortedKeys(responses, byID(responses)) {
		j.key(name).num(responses[name])
	}
	j.close('}')

	if len(d.enumerations) > 0 {
		j.key("enumerations").open('{')
		for _, name := range sortedKeys(d.enumerations, func(a, b string) bool { return a < b }) {
			j.key(name).open('{')
			for idx, value := range d.enumerations[name] {
				if value != "" {
					j.key(value).num(idx)
				}
			}
			j.close('}')
		}
		j.close('}')
	}
	j.close('}')
	return j.buf
}

// sortedKeys returns the keys of m ordered by less. Insertion sort keeps
// the sort package out of the firmware image.
func sortedKeys[V any](m map[string]V, less func(a, b string) bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && less(keys[j], keys[j-1]); j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

// jsonWriter appends compact JSON. It tracks only whether the current
// object needs a comma before the next key.
type jsonWriter struct {
	buf  []byte
	more bool
}

func (j *jsonWriter) open(c byte) *jsonWriter {
	j.buf = append(j.buf, c)
	j.more = false
	return j
}

func (j *jsonWriter) close(c byte) {
	j.buf = append(j.buf, c)
	j.more = true
}

func (j *jsonWriter) key(k string) *jsonWriter {
	if j.more {
		j.buf = append(j.buf, ',')
	}
	j.quote(k)
	j.buf = append(j.buf, ':')
	return j
}

func (j *jsonWriter) str(s string) {
	j.quote(s)
	j.more = true
}

func (j *jsonWriter) num(n int) {
	j.buf = appendInt(j.buf, int64(n))
	j.more = true
}

func (j *jsonWriter) quote(s string) {
	j.buf = append(j.buf, '"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			j.buf = append(j.buf, '\\')
		}
		j.buf = append(j.buf, s[i])
	}
	j.buf = append(j.buf, '"')
}
