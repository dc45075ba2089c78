package lifecycle

import (
	"os"
	"syscall"
	"testing"
	"time"
)

func TestBridgeWakeSignal(t *testing.T) {
	c := &fakeComponent{name: "c"}
	m, _ := newTestMachine(time.Minute, c)

	b := NewBridge(m)
	b.Start()
	defer b.Close()

	if err := syscall.Kill(os.Getpid(), syscall.SIGUSR1); err != nil {
		t.Fatalf("sending SIGUSR1: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return m.Snapshot().Running
	}, "wake via SIGUSR1")
	defer m.Stop()

	if starts, _ := c.counts(); starts != 1 {
		t.Errorf("component started %d times, want 1", starts)
	}
}

func TestBridgeTerminateSignal(t *testing.T) {
	c := &fakeComponent{name: "c"}
	m, _ := newTestMachine(time.Minute, c)
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	exited := make(chan int, 1)
	b := NewBridge(m)
	b.exit = func(code int) { exited <- code }
	b.Start()
	defer b.Close()

	if err := syscall.Kill(os.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("sending SIGTERM: %v", err)
	}

	select {
	case code := <-exited:
		if code != 0 {
			t.Errorf("exit code = %d, want 0", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for exit")
	}

	if snap := m.Snapshot(); snap.Running {
		t.Error("machine still running after SIGTERM")
	}
	if _, stops := c.counts(); stops != 1 {
		t.Errorf("component stopped %d times, want 1", stops)
	}
}
