package core

import (
	"errors"
	"sync"
)

// CommandHandler decodes its own arguments from the message payload
type CommandHandler func(data *[]byte) error

// Command flags
const (
	// FlagInShutdown lets a command run while the firmware is shut down
	FlagInShutdown uint8 = 1 << 0
)

var errNotCommand = errors.New("message is a response")

// Command is one entry of the message table. Responses have no handler.
type Command struct {
	ID      uint16
	Name    string
	Format  string // e.g. "oid=%c pin=%u"
	Flags   uint8
	Handler CommandHandler
}

// Key is the dictionary key of the message, its name followed by its format
func (c *Command) Key() string {
	if c.Format == "" {
		return c.Name
	}
	return c.Name + " " + c.Format
}

// IsResponse reports whether the message is sent by the firmware
func (c *Command) IsResponse() bool {
	return c.Handler == nil
}

// CommandRegistry assigns message IDs in registration order
type CommandRegistry struct {
	mu     sync.RWMutex
	byID   []*Command
	byName map[string]*Command
}

var globalRegistry = NewCommandRegistry()

// NewCommandRegistry creates an empty registry
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{byName: make(map[string]*Command)}
}

// RegisterCommand adds a host command to the global registry
func RegisterCommand(name string, format string, handler CommandHandler) uint16 {
	return globalRegistry.RegisterFlags(name, format, 0, handler)
}

// RegisterShutdownCommand adds a host command that stays available after
// a shutdown
func RegisterShutdownCommand(name string, format string, handler CommandHandler) uint16 {
	return globalRegistry.RegisterFlags(name, format, FlagInShutdown, handler)
}

// RegisterResponse adds a firmware to host message to the global registry
func RegisterResponse(name string, format string) uint16 {
	return globalRegistry.RegisterFlags(name, format, 0, nil)
}

// Register adds a message without flags
func (r *CommandRegistry) Register(name string, format string, handler CommandHandler) uint16 {
	return r.RegisterFlags(name, format, 0, handler)
}

// RegisterFlags adds a message. Registering a name twice returns the first
// ID and keeps the first entry.
func (r *CommandRegistry) RegisterFlags(name string, format string, flags uint8, handler CommandHandler) uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cmd, ok := r.byName[name]; ok {
		return cmd.ID
	}
	cmd := &Command{
		ID:      uint16(len(r.byID)),
		Name:    name,
		Format:  format,
		Flags:   flags,
		Handler: handler,
	}
	r.byID = append(r.byID, cmd)
	r.byName[name] = cmd
	return cmd.ID
}

// GetCommand looks a message up by ID
func (r *CommandRegistry) GetCommand(id uint16) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.byID) {
		return nil, false
	}
	return r.byID[id], true
}

// GetCommandByName looks a message up by name
func (r *CommandRegistry) GetCommandByName(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.byName[name]
	return cmd, ok
}

// Count returns the number of registered messages
func (r *CommandRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func (r *CommandRegistry) lookup(id uint16) (*Command, error) {
	cmd, ok := r.GetCommand(id)
	if !ok {
		return nil, errors.New("unknown command ID: " + itoa(int(id)))
	}
	if cmd.IsResponse() {
		return nil, errNotCommand
	}
	return cmd, nil
}

// Dispatch runs the handler of command id
func (r *CommandRegistry) Dispatch(id uint16, data *[]byte) error {
	cmd, err := r.lookup(id)
	if err != nil {
		return err
	}
	return cmd.Handler(data)
}

// GetCommandsAndResponses returns the dictionary keys of the commands and
// of the responses, mapped to their IDs
func (r *CommandRegistry) GetCommandsAndResponses() (commands, responses map[string]int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	commands = make(map[string]int)
	responses = make(map[string]int)
	for _, cmd := range r.byID {
		if cmd.IsResponse() {
			responses[cmd.Key()] = int(cmd.ID)
		} else {
			commands[cmd.Key()] = int(cmd.ID)
		}
	}
	return commands, responses
}

// DispatchCommand runs a command from the global registry. While shut down
// only FlagInShutdown commands run; the others are answered with
// is_shutdown.
func DispatchCommand(id uint16, data *[]byte) error {
	cmd, err := globalRegistry.lookup(id)
	if err != nil {
		return err
	}
	if IsShutdown() && cmd.Flags&FlagInShutdown == 0 {
		reportShutdown()
		return nil
	}
	return cmd.Handler(data)
}
