package protocol

import "testing"

func TestCRC16(t *testing.T) {
	tests := []struct {
		data []byte
		want uint16
	}{
		{nil, 0xFFFF},
		{[]byte("123456789"), 0x6F91},
	}
	for _, tt := range tests {
		if got := CRC16(tt.data); got != tt.want {
			t.Errorf("CRC16(%q) = %04X, want %04X", tt.data, got, tt.want)
		}
	}
	if CRC16([]byte{1, 2, 3}) == CRC16([]byte{1, 2, 4}) {
		t.Error("One bit change left the CRC unchanged")
	}
}
