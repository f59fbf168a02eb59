package core

import (
	"errors"
	"testing"
)

func newCounterDriver(name string) *DriverConfig {
	cfg := NewI2CDriverConfig(name, 0, 0x40)
	count := 0
	cfg.InitFunc = func(*DriverConfig) (interface{}, error) { return &count, nil }
	cfg.PollFunc = func(device interface{}) ([]byte, error) {
		c := device.(*int)
		*c++
		return []byte{byte(*c)}, nil
	}
	return cfg
}

func TestRegisterDriver(t *testing.T) {
	setupFirmware(t)

	tests := []struct {
		name string
		oid  uint8
		cfg  *DriverConfig
		want error
	}{
		{"nil config", 1, nil, errDriverConfigNil},
		{"empty name", 1, NewI2CDriverConfig("", 0, 0x40), errDriverNameRequired},
		{"first", 1, newCounterDriver("counter"), nil},
		{"oid taken", 1, newCounterDriver("other"), errDriverOIDTaken},
		{"name taken", 2, newCounterDriver("counter"), errDriverNameTaken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := RegisterDriver(tt.oid, tt.cfg); err != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}

	failing := NewI2CDriverConfig("failing", 0, 0x41)
	failing.InitFunc = func(*DriverConfig) (interface{}, error) { return nil, errors.New("no device") }
	if err := RegisterDriver(3, failing); err == nil {
		t.Error("Expected init error")
	}
	if _, ok := GetDriver(3); ok {
		t.Error("Driver registered despite init failure")
	}
}

func TestDriverPolling(t *testing.T) {
	out, _ := setupFirmware(t)
	if err := RegisterDriver(1, newCounterDriver("counter")); err != nil {
		t.Fatal(err)
	}

	mustRun(t, "driver_start_poll", 1, 100)
	advance(100)
	advance(100)
	resps := out.takeResponses(t)
	if len(resps) != 2 {
		t.Fatalf("Expected 2 poll results, got %v", resps)
	}
	if string(resps[1].args) != string([]byte{1, 1, 2}) {
		t.Errorf("Unexpected poll data %v", resps[1].args)
	}

	// restarting must not double-schedule the timer
	mustRun(t, "driver_start_poll", 1, 100)
	mustRun(t, "driver_start_poll", 1, 100)
	advance(100)
	if resps := out.takeResponses(t); len(resps) != 1 {
		t.Errorf("Expected 1 poll result after restart, got %d", len(resps))
	}

	mustRun(t, "driver_query_state", 1)
	args := findResponse(t, out.takeResponses(t), "driver_state").uints(t)
	if args[2] != 1 || args[3] != 0 {
		t.Errorf("Expected active driver without error, got %v", args)
	}

	if err := UnregisterDriver(1); err != nil {
		t.Fatalf("UnregisterDriver failed: %v", err)
	}
	if timerList != nil {
		t.Error("Poll timer left scheduled after unregister")
	}
	if err := UnregisterDriver(1); err != errDriverNotFound {
		t.Errorf("Expected errDriverNotFound, got %v", err)
	}
}

func TestDriverStartPollWithoutPollFunc(t *testing.T) {
	setupFirmware(t)
	cfg := NewI2CDriverConfig("plain", 0, 0x40)
	if err := RegisterDriver(1, cfg); err != nil {
		t.Fatal(err)
	}
	if err := run(t, "driver_start_poll", 1, 100); err != errDriverNoPoll {
		t.Errorf("Expected errDriverNoPoll, got %v", err)
	}
	if err := run(t, "driver_start_poll", 1, 0); err != errDriverNoPoll {
		t.Errorf("Expected errDriverNoPoll, got %v", err)
	}
}
