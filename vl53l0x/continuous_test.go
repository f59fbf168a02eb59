package vl53l0x

import (
	"testing"
	"time"
)

func TestContinuousRanging(t *testing.T) {
	d, s := newConfiguredDevice(t)

	if err := d.StartRangeContinuous(0); err != nil {
		t.Fatalf("StartRangeContinuous failed: %v", err)
	}
	if mode, _ := d.GetDeviceMode(); mode != DeviceModeContinuousTimedRanging {
		t.Errorf("Expected timed ranging mode, got %d", mode)
	}
	// 50ms scaled by the oscillator calibration value 0x35
	period := uint32(s.Reg(0, 0x04))<<24 | uint32(s.Reg(0, 0x05))<<16 | uint32(s.Reg(0, 0x06))<<8 | uint32(s.Reg(0, 0x07))
	if period != 50*0x35 {
		t.Errorf("Expected inter-measurement period %d, got %d", 50*0x35, period)
	}

	if err := d.WaitRangeComplete(); err != nil {
		t.Fatalf("WaitRangeComplete failed: %v", err)
	}
	if r := d.ReadRangeResult(); r != 500 {
		t.Errorf("Expected 500mm, got %d", r)
	}

	s.SetRange(321)
	complete := false
	for i := 0; i < 5 && !complete; i++ {
		complete = d.IsRangeComplete()
	}
	if !complete {
		t.Fatal("Expected a second continuous result")
	}
	if r := d.ReadRangeResult(); r != 321 {
		t.Errorf("Expected 321mm, got %d", r)
	}

	if err := d.StopRangeContinuous(); err != nil {
		t.Errorf("StopRangeContinuous failed: %v", err)
	}
}

func TestStartRangeContinuousPeriod(t *testing.T) {
	d, s := newConfiguredDevice(t)

	if err := d.StartRangeContinuous(100); err != nil {
		t.Fatalf("StartRangeContinuous failed: %v", err)
	}
	period := uint32(s.Reg(0, 0x06))<<8 | uint32(s.Reg(0, 0x07))
	if period != 100*0x35 {
		t.Errorf("Expected inter-measurement period %d, got %d", 100*0x35, period)
	}
}

func TestStopRangeContinuousTimeout(t *testing.T) {
	d, s := newConfiguredDevice(t)
	d.maxLoop = 5

	if err := d.StartRangeContinuous(50); err != nil {
		t.Fatalf("StartRangeContinuous failed: %v", err)
	}
	s.SetStopStatus(1)

	if err := d.StopRangeContinuous(); err != ErrTimeOut {
		t.Errorf("Expected ErrTimeOut, got %v", err)
	}
	if d.Status() != ErrTimeOut {
		t.Errorf("Expected status ErrTimeOut, got %v", d.Status())
	}
}

func TestStartRange(t *testing.T) {
	d, s := newConfiguredDevice(t)
	before := s.Measurements()

	if err := d.StartRange(); err != nil {
		t.Fatalf("StartRange failed: %v", err)
	}
	if s.Measurements() != before+1 {
		t.Errorf("Expected one measurement started, got %d", s.Measurements()-before)
	}
	if !d.IsRangeComplete() {
		t.Error("Expected range complete")
	}
	if r := d.ReadRangeResult(); r != 500 {
		t.Errorf("Expected 500mm, got %d", r)
	}
	if d.IsRangeComplete() {
		t.Error("Expected interrupt cleared after reading the result")
	}
}

func TestReadRangeResultPhaseFail(t *testing.T) {
	d, s := newConfiguredDevice(t)
	s.SetDeviceStatus(9)

	if err := d.StartRange(); err != nil {
		t.Fatalf("StartRange failed: %v", err)
	}
	if r := d.ReadRangeResult(); r != 0xFFFF {
		t.Errorf("Expected 0xFFFF on phase fail, got %d", r)
	}
	if d.ReadRangeStatus() != RangePhaseFail {
		t.Errorf("Expected phase fail status, got %d", d.ReadRangeStatus())
	}
}

func TestWaitRangeCompleteGivesUp(t *testing.T) {
	d, s := newConfiguredDevice(t)
	d.maxLoop = 4

	if err := d.ClearInterruptMask(); err != nil {
		t.Fatalf("ClearInterruptMask failed: %v", err)
	}
	var sleeps int
	d.sleep = func(time.Duration) { sleeps++ }

	// nothing was started, so no result ever becomes ready
	before := s.Measurements()
	if err := d.WaitRangeComplete(); err != ErrTimeOut {
		t.Errorf("Expected ErrTimeOut, got %v", err)
	}
	if sleeps != 4 {
		t.Errorf("Expected 4 polling delays, got %d", sleeps)
	}
	if s.Measurements() != before {
		t.Error("Expected no measurement started")
	}
}
