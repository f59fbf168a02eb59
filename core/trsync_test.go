package core

import "testing"

func TestTriggerSyncReports(t *testing.T) {
	out, _ := setupFirmware(t)
	mustRun(t, "config_trsync", 3)
	mustRun(t, "trsync_start", 3, 100, 50, 7)
	ts, ok := GetTriggerSync(3)
	if !ok {
		t.Fatal("trsync 3 not configured")
	}

	var fired []uint8
	ts.AddSignal(func(reason uint8) { fired = append(fired, reason) })

	advance(100)
	advance(50)
	resps := out.takeResponses(t)
	if len(resps) != 2 {
		t.Fatalf("Expected 2 periodic reports, got %d", len(resps))
	}
	if args := resps[0].uints(t); args[0] != 3 || args[1] != 1 {
		t.Errorf("Expected an armed report, got %v", args)
	}

	mustRun(t, "trsync_trigger", 3, 2)
	mustRun(t, "trsync_trigger", 3, 5)
	advance(1)
	args := findResponse(t, out.takeResponses(t), "trsync_state").uints(t)
	if args[1] != 0 || args[2] != 2 {
		t.Errorf("Expected a report of reason 2, got %v", args)
	}
	if len(fired) != 1 || fired[0] != 2 || !ts.Triggered() {
		t.Errorf("Signals saw %v", fired)
	}

	// no reports once triggered
	advance(500)
	if resps := out.takeResponses(t); len(resps) != 0 {
		t.Errorf("Unexpected reports %v", resps)
	}
}

func TestTriggerSyncTimeout(t *testing.T) {
	out, _ := setupFirmware(t)
	mustRun(t, "config_trsync", 1)
	mustRun(t, "trsync_start", 1, 0, 0, 4)
	mustRun(t, "trsync_set_timeout", 1, 1000)

	advance(999)
	if resps := out.takeResponses(t); len(resps) != 0 {
		t.Fatalf("Report before the timeout: %v", resps)
	}
	advance(1)
	advance(1)
	args := findResponse(t, out.takeResponses(t), "trsync_state").uints(t)
	if args[2] != 4 {
		t.Errorf("Expected expire reason 4, got %v", args)
	}

	// unknown objects are ignored
	mustRun(t, "trsync_trigger", 9, 1)
	mustRun(t, "trsync_set_timeout", 9, 10)
}
