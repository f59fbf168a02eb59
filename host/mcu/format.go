package mcu

import (
	"fmt"
	"strings"

	"tofmcu/protocol"
)

// paramKind is the wire type of a message parameter
type paramKind uint8

const (
	kindUint paramKind = iota
	kindInt
	kindBytes
)

type param struct {
	name string
	kind paramKind
}

// messageFormat describes one dictionary entry, e.g.
// "vl53l0x_range oid=%c status=%c range=%hu"
type messageFormat struct {
	id     uint16
	name   string
	format string
	params []param
}

// parseFormat parses a dictionary key of the form "name arg=%type ..."
func parseFormat(id uint16, key string) (*messageFormat, error) {
	fields := strings.Fields(key)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty message format for id %d", id)
	}
	mf := &messageFormat{id: id, name: fields[0], format: key}
	for _, f := range fields[1:] {
		name, typ, ok := strings.Cut(f, "=")
		if !ok {
			return nil, fmt.Errorf("message %s: malformed parameter %q", mf.name, f)
		}
		var kind paramKind
		switch typ {
		case "%c", "%u", "%hu":
			kind = kindUint
		case "%i", "%hi":
			kind = kindInt
		case "%s", "%*s", "%.*s":
			kind = kindBytes
		default:
			return nil, fmt.Errorf("message %s: unknown type %q", mf.name, typ)
		}
		mf.params = append(mf.params, param{name: name, kind: kind})
	}
	return mf, nil
}

// encode writes args in parameter order. Integers may be any Go integer
// type; byte parameters take []byte or string.
func (mf *messageFormat) encode(args []interface{}) (func(protocol.OutputBuffer), error) {
	if len(args) != len(mf.params) {
		return nil, fmt.Errorf("%s: expected %d arguments, got %d", mf.name, len(mf.params), len(args))
	}
	ints := make([]int32, len(args))
	for i, p := range mf.params {
		if p.kind == kindBytes {
			switch args[i].(type) {
			case []byte, string:
			default:
				return nil, fmt.Errorf("%s: %s wants bytes, got %T", mf.name, p.name, args[i])
			}
			continue
		}
		v, err := toInt32(args[i])
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", mf.name, p.name, err)
		}
		ints[i] = v
	}
	return func(out protocol.OutputBuffer) {
		for i := range mf.params {
			switch v := args[i].(type) {
			case []byte:
				protocol.EncodeVLQBytes(out, v)
			case string:
				protocol.EncodeVLQBytes(out, []byte(v))
			default:
				protocol.EncodeVLQInt(out, ints[i])
			}
		}
	}, nil
}

func toInt32(v interface{}) (int32, error) {
	switch n := v.(type) {
	case int:
		return int32(n), nil
	case int8:
		return int32(n), nil
	case int16:
		return int32(n), nil
	case int32:
		return n, nil
	case int64:
		return int32(n), nil
	case uint:
		return int32(n), nil
	case uint8:
		return int32(n), nil
	case uint16:
		return int32(n), nil
	case uint32:
		return int32(n), nil
	case uint64:
		return int32(n), nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("unsupported argument type %T", v)
}

// Response is a decoded message from the MCU
type Response struct {
	Name   string
	fields []string
	ints   map[string]int32
	data   map[string][]byte
}

// Uint returns an integer parameter as unsigned
func (r *Response) Uint(name string) uint32 {
	return uint32(r.ints[name])
}

// Int returns an integer parameter as signed
func (r *Response) Int(name string) int32 {
	return r.ints[name]
}

// Bytes returns a byte-string parameter
func (r *Response) Bytes(name string) []byte {
	return r.data[name]
}

// Has reports whether the response carries the parameter
func (r *Response) Has(name string) bool {
	if _, ok := r.ints[name]; ok {
		return true
	}
	_, ok := r.data[name]
	return ok
}

func (r *Response) String() string {
	var b strings.Builder
	b.WriteString(r.Name)
	for _, f := range r.fields {
		if v, ok := r.data[f]; ok {
			fmt.Fprintf(&b, " %s=%x", f, v)
		} else {
			fmt.Fprintf(&b, " %s=%d", f, r.ints[f])
		}
	}
	return b.String()
}

// decode parses the parameters that follow the message id
func (mf *messageFormat) decode(data *[]byte) (*Response, error) {
	r := &Response{Name: mf.name, ints: make(map[string]int32)}
	for _, p := range mf.params {
		r.fields = append(r.fields, p.name)
		if p.kind == kindBytes {
			b, err := protocol.DecodeVLQBytes(data)
			if err != nil {
				return nil, fmt.Errorf("%s: %s: %w", mf.name, p.name, err)
			}
			if r.data == nil {
				r.data = make(map[string][]byte)
			}
			r.data[p.name] = append([]byte(nil), b...)
			continue
		}
		v, err := protocol.DecodeVLQInt(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", mf.name, p.name, err)
		}
		r.ints[p.name] = v
	}
	return r, nil
}
