package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"tofmcu/vl53l0x"
)

const sample = `
serial:
  device: /dev/ttyUSB1
log:
  development: true
  level: debug
sensors:
  - name: front
    address: 0x30
    sense: long_range
    budgetUs: 200000
  - name: rear
    oid: 10
    i2cOid: 11
    bus: 1
    rate: 100000
    periodMs: 100
`

func TestParse(t *testing.T) {
	c, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB1", c.Serial.Device)
	assert.Equal(t, DefaultBaud, c.Serial.Baud)
	assert.Equal(t, DefaultReadTimeoutMS, c.Serial.ReadTimeoutMS)
	assert.True(t, c.Log.Development)
	require.Len(t, c.Sensors, 2)

	front := c.Sensors[0]
	assert.Equal(t, uint8(0x30), front.Address)
	assert.Equal(t, vl53l0x.SenseLongRange, front.SenseMode())
	assert.Equal(t, uint32(200000), front.BudgetUS)
	assert.Equal(t, uint32(DefaultRate), front.Rate)
	assert.Equal(t, uint16(vl53l0x.DefaultContinuousPeriod), front.PeriodMS)
	assert.Equal(t, uint8(0), front.I2COID)
	assert.Equal(t, uint8(1), front.OID)

	rear := c.Sensors[1]
	assert.Equal(t, uint8(10), rear.OID)
	assert.Equal(t, uint8(11), rear.I2COID)
	assert.Equal(t, uint8(vl53l0x.DefaultAddress), rear.Address)
	assert.Equal(t, uint16(100), rear.PeriodMS)

	cfg := front.DriverConfig()
	assert.Equal(t, uint8(0x30), cfg.Address)
	assert.Equal(t, vl53l0x.SenseLongRange, cfg.Sense)
}

func TestDefault(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	require.Len(t, c.Sensors, 1)
	assert.Equal(t, "tof0", c.Sensors[0].Name)
	assert.Equal(t, DefaultDevice, c.Serial.Device)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"no sensors", "sensors: []", "no sensors configured"},
		{"bad level", "log: {level: loud}\nsensors: [{name: a}]", "unrecognized level"},
		{"duplicate name", "sensors: [{name: a}, {name: a, bus: 1}]", "duplicate name"},
		{"oid clash", "sensors: [{name: a, oid: 1, i2cOid: 2}, {name: b, oid: 2, i2cOid: 3, bus: 1}]", "oid 2 already used by a"},
		{"same oids", "sensors: [{name: a, oid: 4, i2cOid: 4}]", "oid and i2cOid are both 4"},
		{"address range", "sensors: [{name: a, address: 0x7F}]", "not a 7-bit device address"},
		{"address clash", "sensors: [{name: a}, {name: b}]", "already used by a"},
		{"sense", "sensors: [{name: a, sense: fast}]", `unknown sense mode "fast"`},
		{"budget", "sensors: [{name: a, budgetUs: 1000}]", "below 20000us"},
		{"shared bus", "sensors: [{name: a, address: 0x30}, {name: b, address: 0x31}]", "sensors a, b share the bus and need xshutPin"},
		{"xshut oid clash", "sensors: [{name: a, xshutPin: 2, xshutOid: 1}]", "oid 1 already used by a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseXShut(t *testing.T) {
	c, err := Parse([]byte(`
sensors:
  - name: left
    address: 0x30
    xshutPin: 10
  - name: right
    address: 0x31
    xshutPin: 11
  - name: middle
`))
	require.NoError(t, err)
	require.Len(t, c.Sensors, 3)

	left := c.Sensors[0]
	require.NotNil(t, left.XShutPin)
	assert.Equal(t, uint32(10), *left.XShutPin)
	assert.Equal(t, uint8(6), left.XShutOID)
	assert.Equal(t, uint8(7), c.Sensors[1].XShutOID)
	assert.Nil(t, c.Sensors[2].XShutPin)
}

func TestParseRejectsBadYAML(t *testing.T) {
	_, err := Parse([]byte("sensors: {name: ["))
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tof.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	c, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Len(t, c.Sensors, 2)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLogger(t *testing.T) {
	log, err := Log{Level: "warn"}.Logger(false)
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, log.Core().Enabled(zapcore.WarnLevel))

	log, err = Log{Level: "warn", Development: true}.Logger(true)
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))

	_, err = Log{Level: "loud"}.Logger(false)
	assert.Error(t, err)
}
