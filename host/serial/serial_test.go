package serial

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/dev/ttyACM1")
	assert.Equal(t, "/dev/ttyACM1", cfg.Device)
	assert.Equal(t, DefaultBaud, cfg.Baud)
	assert.Equal(t, DefaultReadTimeout, cfg.ReadTimeout)
}

func TestOpenErrors(t *testing.T) {
	_, err := Open(nil)
	assert.Error(t, err)

	_, err = Open(&Config{})
	assert.ErrorContains(t, err, "no device")

	missing := filepath.Join(t.TempDir(), "ttyNONE")
	_, err = Open(DefaultConfig(missing))
	require.Error(t, err)
	assert.ErrorContains(t, err, missing)
}
