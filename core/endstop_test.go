package core

import "testing"

// setupGPIO1Endstop programs sensor 1 to pull GPIO1 low outside 100..1000mm
// and homes endstop 6 on that line through trsync 2
func setupGPIO1Endstop(t *testing.T, out *captureOutput, sampleCount int) {
	t.Helper()
	captureFromToF(t, out)
	mustRun(t, "vl53l0x_set_interrupt", 1, 100, 1000)
	mustRun(t, "vl53l0x_start_continuous", 1, 50)
	mustRun(t, "config_endstop", 6, pinGPIO1, 1)
	mustRun(t, "config_trsync", 2)
	mustRun(t, "trsync_start", 2, 0, 0, 4)
	mustRun(t, "endstop_home", 6, 1000, 100, sampleCount, 5000, 0, 2, 1)
	out.takeResponses(t)
}

func TestEndstopHomesOnGPIO1(t *testing.T) {
	out, sensor := setupFirmware(t)
	setupGPIO1Endstop(t, out, 2)
	if !gpioDriver.(*simGPIO).pullUps[pinGPIO1] {
		t.Error("Expected the pull-up enabled")
	}

	advance(1000)
	mustRun(t, "endstop_query_state", 6)
	args := findResponse(t, out.takeResponses(t), "endstop_state").uints(t)
	if args[1] != 1 || args[2] != 0 || args[3] != 1 {
		t.Errorf("Expected homing with the line idle high, got %v", args)
	}

	sensor.SetRange(60)
	advance(5000)
	if resps := out.takeResponses(t); len(resps) != 0 {
		t.Errorf("Triggered before sample_count readings: %v", resps)
	}
	advance(100)
	args = findResponse(t, out.takeResponses(t), "trsync_state").uints(t)
	if args[0] != 2 || args[1] != 0 || args[2] != 1 {
		t.Errorf("Expected trsync 2 triggered with reason 1, got %v", args)
	}

	mustRun(t, "endstop_query_state", 6)
	args = findResponse(t, out.takeResponses(t), "endstop_state").uints(t)
	if args[1] != 0 || args[3] != 0 {
		t.Errorf("Expected homing done with the line low, got %v", args)
	}
}

func TestEndstopGlitchRestartsSampling(t *testing.T) {
	out, sensor := setupFirmware(t)
	setupGPIO1Endstop(t, out, 3)

	sensor.SetRange(60)
	advance(1000)
	sensor.SetRange(500)
	advance(100)
	sensor.SetRange(60)
	// the glitch sends the endstop back to the rest_ticks checks
	advance(100)
	if resps := out.takeResponses(t); len(resps) != 0 {
		t.Fatalf("Unexpected responses %v", resps)
	}
	e := endstops[6]
	if e.Flags&ESF_HOMING == 0 || e.oversampling {
		t.Fatal("Expected the endstop back at slow checks")
	}

	advance(4900)
	advance(100)
	advance(100)
	findResponse(t, out.takeResponses(t), "trsync_state")
}

func TestEndstopDisarm(t *testing.T) {
	out, sensor := setupFirmware(t)
	setupGPIO1Endstop(t, out, 1)

	mustRun(t, "endstop_home", 6, 0, 0, 0, 0, 0, 0, 0)
	sensor.SetRange(60)
	advance(1000)
	advance(5000)
	if resps := out.takeResponses(t); len(resps) != 0 {
		t.Errorf("Disarmed endstop reported %v", resps)
	}
	mustRun(t, "endstop_home", 9, 0, 0, 1, 0, 0, 2, 0)
}
