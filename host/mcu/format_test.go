package mcu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tofmcu/protocol"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		key    string
		name   string
		kinds  []paramKind
		hasErr bool
	}{
		{"get_clock", "get_clock", nil, false},
		{"identify offset=%u count=%c", "identify", []paramKind{kindUint, kindUint}, false},
		{"vl53l0x_status oid=%c status=%i address=%c mode=%c", "vl53l0x_status",
			[]paramKind{kindUint, kindInt, kindUint, kindUint}, false},
		{"i2c_write oid=%c data=%*s", "i2c_write", []paramKind{kindUint, kindBytes}, false},
		{"bad oid", "", nil, true},
		{"bad oid=%f", "", nil, true},
		{"", "", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			mf, err := parseFormat(7, tt.key)
			if tt.hasErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.name, mf.name)
			assert.Equal(t, uint16(7), mf.id)
			var kinds []paramKind
			for _, p := range mf.params {
				kinds = append(kinds, p.kind)
			}
			assert.Equal(t, tt.kinds, kinds)
		})
	}
}

func TestEncodeDecode(t *testing.T) {
	mf, err := parseFormat(3, "vl53l0x_status oid=%c status=%i address=%c data=%*s")
	require.NoError(t, err)

	enc, err := mf.encode([]interface{}{uint8(1), int8(-20), 0x29, []byte{0xAA, 0x55}})
	require.NoError(t, err)
	out := protocol.NewScratchOutput()
	enc(out)

	data := out.Result()
	r, err := mf.decode(&data)
	require.NoError(t, err)
	assert.Empty(t, data)
	assert.Equal(t, "vl53l0x_status", r.Name)
	assert.Equal(t, uint32(1), r.Uint("oid"))
	assert.Equal(t, int32(-20), r.Int("status"))
	assert.Equal(t, uint32(0x29), r.Uint("address"))
	assert.Equal(t, []byte{0xAA, 0x55}, r.Bytes("data"))
	assert.True(t, r.Has("data"))
	assert.False(t, r.Has("range"))
	assert.Equal(t, "vl53l0x_status oid=1 status=-20 address=41 data=aa55", r.String())
}

func TestEncodeRejectsBadArguments(t *testing.T) {
	mf, err := parseFormat(4, "i2c_write oid=%c data=%*s")
	require.NoError(t, err)

	_, err = mf.encode([]interface{}{1})
	assert.Error(t, err)
	_, err = mf.encode([]interface{}{1, 2})
	assert.Error(t, err)
	_, err = mf.encode([]interface{}{"x", []byte{1}})
	assert.Error(t, err)
	_, err = mf.encode([]interface{}{1, "ok"})
	assert.NoError(t, err)
}

func TestDecodeShortPayload(t *testing.T) {
	mf, err := parseFormat(5, "clock clock=%u")
	require.NoError(t, err)
	var data []byte
	_, err = mf.decode(&data)
	assert.ErrorIs(t, err, protocol.ErrBufferTooSmall)
}
