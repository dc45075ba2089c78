package monitor

import (
	"context"
	"sync"
	"testing"
	"time"
)

type recordingSink struct {
	mu      sync.Mutex
	samples []UsageSample
}

func (s *recordingSink) EmitUsage(sample UsageSample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, sample)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.samples)
}

func TestMonitorEmitsSamples(t *testing.T) {
	sink := &recordingSink{}
	m := New(10*time.Millisecond, sink)
	m.sample = func() (UsageSample, error) {
		return UsageSample{MemoryBytes: 64 << 20, CPULoad1: 0.5, SampledAt: time.Now()}, nil
	}

	if err := m.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for sink.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	if sink.count() < 3 {
		t.Fatalf("samples = %d, want at least 3", sink.count())
	}
}

func TestStopHaltsSampling(t *testing.T) {
	sink := &recordingSink{}
	m := New(10*time.Millisecond, sink)
	m.sample = func() (UsageSample, error) {
		return UsageSample{}, nil
	}

	if err := m.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	// Nothing may be emitted once Stop has returned.
	n := sink.count()
	time.Sleep(50 * time.Millisecond)
	if after := sink.count(); after != n {
		t.Errorf("samples grew from %d to %d after Stop", n, after)
	}
}

func TestStartTwiceSchedulesOnce(t *testing.T) {
	sink := &recordingSink{}
	m := New(time.Hour, sink)

	if err := m.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := m.Start(); err != nil {
		t.Fatalf("second Start() error: %v", err)
	}
	// A single Stop tears the single loop down; a second is a no-op.
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop() error: %v", err)
	}
}

func TestSampleUsage(t *testing.T) {
	s, err := sampleUsage()
	if err != nil {
		t.Fatalf("sampleUsage() error: %v", err)
	}
	if s.MemoryBytes == 0 {
		t.Error("MemoryBytes = 0, want > 0")
	}
	if s.CPULoad1 < 0 {
		t.Errorf("CPULoad1 = %f, want >= 0", s.CPULoad1)
	}
	if s.SampledAt.IsZero() {
		t.Error("SampledAt is zero")
	}
}

func TestMemoryMB(t *testing.T) {
	s := UsageSample{MemoryBytes: 300 << 20}
	if got := s.MemoryMB(); got != 300 {
		t.Errorf("MemoryMB() = %d, want 300", got)
	}
}
