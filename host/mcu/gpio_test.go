package mcu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tofmcu/host/vmcu"
	"tofmcu/vl53l0x"
)

func TestDigitalOutHoldsSensorInStandby(t *testing.T) {
	m, _ := startMCU(t)
	xshut, err := m.NewDigitalOut(5, uint32(vmcu.XShutPin), false, false)
	require.NoError(t, err)

	_, err = m.NewToF(ToFConfig{OID: 1, Rate: 400000})
	assert.ErrorIs(t, err, vl53l0x.ErrControlInterface)

	require.NoError(t, xshut.Set(true))
	tof := newToF(t, m, ToFConfig{OID: 2, I2COID: 3})
	r, err := tof.Measure()
	require.NoError(t, err)
	assert.True(t, r.Valid())
}

func TestNewToFsReleasesXShut(t *testing.T) {
	m, v := startMCU(t)
	tofs, err := m.NewToFs([]ToFConfig{{
		OID:     1,
		I2COID:  0,
		Rate:    400000,
		Address: 0x30,
		XShut:   &XShut{OID: 4, Pin: uint32(vmcu.XShutPin)},
	}})
	require.NoError(t, err)
	require.Len(t, tofs, 1)
	assert.Equal(t, uint8(0x30), v.Sensor.Address())

	st, err := tofs[0].Status()
	require.NoError(t, err)
	assert.Equal(t, uint8(0x30), st.Address)

	r, err := tofs[0].Measure()
	require.NoError(t, err)
	assert.True(t, r.Valid())
}
