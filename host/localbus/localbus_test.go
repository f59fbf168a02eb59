package localbus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"

	"tofmcu/vl53l0x"
	"tofmcu/vl53l0x/sim"
)

// simBus presents a simulated sensor as a periph.io bus
type simBus struct {
	*sim.Sensor
	speed physic.Frequency
}

func (b *simBus) String() string { return "sim" }

func (b *simBus) SetSpeed(f physic.Frequency) error {
	b.speed = f
	return nil
}

func fastConfig() vl53l0x.Config {
	cfg := vl53l0x.DefaultConfig()
	cfg.Sleep = func(time.Duration) {}
	return cfg
}

func TestBusTx(t *testing.T) {
	sb := &simBus{Sensor: sim.New()}
	rec := &i2ctest.Record{Bus: sb}
	bus := New(rec)

	buf := make([]byte, 1)
	require.NoError(t, bus.Tx(0x29, []byte{0xC0}, buf))
	assert.Equal(t, byte(0xEE), buf[0])
	require.Len(t, rec.Ops, 1)
	assert.Equal(t, uint16(0x29), rec.Ops[0].Addr)
	assert.Equal(t, []byte{0xC0}, rec.Ops[0].W)

	assert.Error(t, bus.Tx(0x30, []byte{0xC0}, buf))

	require.NoError(t, bus.SetRate(400000))
	assert.Equal(t, 400*physic.KiloHertz, sb.speed)
	assert.NoError(t, bus.Close())
}

func TestSensorMeasure(t *testing.T) {
	s := sim.New()
	bus := New(&simBus{Sensor: s})

	cfg := fastConfig()
	cfg.Address = 0x31
	sensor, err := NewSensor(bus, "front", cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, uint8(0x31), s.Address())

	s.SetRange(250)
	m, err := sensor.Measure()
	require.NoError(t, err)
	assert.Equal(t, vl53l0x.RangeValid, m.RangeStatus)
	assert.Equal(t, uint16(250), m.RangeMilliMeter)
}

func TestSensorInitFailure(t *testing.T) {
	s := sim.New()
	s.SetFault(errors.New("nack"))

	_, err := NewSensor(New(&simBus{Sensor: s}), "front", fastConfig(), nil)
	assert.ErrorIs(t, err, vl53l0x.ErrControlInterface)
}

func TestSensorStream(t *testing.T) {
	s := sim.New()
	sensor, err := NewSensor(New(&simBus{Sensor: s}), "front", fastConfig(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var got []uint16
	err = sensor.Stream(ctx, 20, func(m vl53l0x.RangingMeasurementData) {
		got = append(got, m.RangeMilliMeter)
		if len(got) == 3 {
			cancel()
		}
	})
	require.NoError(t, err)
	assert.Equal(t, []uint16{500, 500, 500}, got)
	assert.Equal(t, vl53l0x.ErrNone, sensor.Dev.Status())

	// back in single-shot mode after the stream
	s.SetRange(120)
	m, err := sensor.Measure()
	require.NoError(t, err)
	assert.Equal(t, uint16(120), m.RangeMilliMeter)
}

func TestSensorStreamFault(t *testing.T) {
	s := sim.New()
	sensor, err := NewSensor(New(&simBus{Sensor: s}), "front", fastConfig(), nil)
	require.NoError(t, err)

	n := 0
	err = sensor.Stream(context.Background(), 20, func(vl53l0x.RangingMeasurementData) {
		n++
		s.SetFault(errors.New("nack"))
	})
	assert.ErrorIs(t, err, vl53l0x.ErrControlInterface)
	assert.Equal(t, 1, n)
}
