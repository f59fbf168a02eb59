package core

import "testing"

func TestValueToString(t *testing.T) {
	tests := []struct {
		in   interface{}
		want string
	}{
		{"rp2040", "rp2040"},
		{0, "0"},
		{-42, "-42"},
		{int8(-128), "-128"},
		{uint8(0x29), "41"},
		{uint16(65535), "65535"},
		{uint32(12000000), "12000000"},
		{uint64(1) << 40, "1099511627776"},
		{true, "1"},
		{3.5, ""},
	}
	for _, tt := range tests {
		if got := valueToString(tt.in); got != tt.want {
			t.Errorf("valueToString(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
