package core

// Number formatting for debug text and dictionary constants

func appendUint(b []byte, n uint64) []byte {
	var buf [20]byte
	i := len(buf)
	for {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
		if n == 0 {
			break
		}
	}
	return append(b, buf[i:]...)
}

func appendInt(b []byte, n int64) []byte {
	if n < 0 {
		return appendUint(append(b, '-'), uint64(-n))
	}
	return appendUint(b, uint64(n))
}

func itoa(n int) string { return string(appendInt(nil, int64(n))) }

func utoa(n uint32) string { return string(appendUint(nil, uint64(n))) }

// valueToString renders a dictionary constant. Unsupported types render
// empty.
func valueToString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		if val {
			return "1"
		}
		return "0"
	case int:
		return itoa(val)
	case int8:
		return itoa(int(val))
	case int16:
		return itoa(int(val))
	case int32:
		return itoa(int(val))
	case int64:
		return string(appendInt(nil, val))
	case uint:
		return string(appendUint(nil, uint64(val)))
	case uint8:
		return utoa(uint32(val))
	case uint16:
		return utoa(uint32(val))
	case uint32:
		return utoa(val)
	case uint64:
		return string(appendUint(nil, val))
	}
	return ""
}
