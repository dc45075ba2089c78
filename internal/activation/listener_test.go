package activation

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"
)

type recordingActivator struct {
	mu    sync.Mutex
	calls int
}

func (a *recordingActivator) Activate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
}

func (a *recordingActivator) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func waitForCalls(t *testing.T, a *recordingActivator, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if a.count() >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("activations = %d, want %d", a.count(), want)
}

func TestConnectionTriggersActivation(t *testing.T) {
	act := &recordingActivator{}
	l := New("127.0.0.1", 0, act)

	if err := l.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer l.Stop(context.Background())

	conn, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	// Payload is ignored; connecting is enough.
	conn.Write([]byte("whatever"))
	conn.Close()

	waitForCalls(t, act, 1)
}

func TestEveryConnectionCounts(t *testing.T) {
	act := &recordingActivator{}
	l := New("127.0.0.1", 0, act)

	if err := l.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer l.Stop(context.Background())

	for i := 0; i < 3; i++ {
		conn, err := net.Dial("tcp", l.Addr().String())
		if err != nil {
			t.Fatalf("dial %d: %v", i, err)
		}
		conn.Close()
	}

	waitForCalls(t, act, 3)
}

func TestStopClosesListener(t *testing.T) {
	act := &recordingActivator{}
	l := New("127.0.0.1", 0, act)

	if err := l.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	addr := l.Addr().String()

	if err := l.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	if _, err := net.Dial("tcp", addr); err == nil {
		t.Error("dial succeeded after Stop")
	}

	// Second stop is a no-op.
	if err := l.Stop(context.Background()); err != nil {
		t.Errorf("second Stop() error: %v", err)
	}
}

func TestRestartAfterStop(t *testing.T) {
	act := &recordingActivator{}
	l := New("127.0.0.1", 0, act)

	if err := l.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := l.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	if err := l.Start(); err != nil {
		t.Fatalf("restart error: %v", err)
	}
	defer l.Stop(context.Background())

	conn, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatalf("dial after restart: %v", err)
	}
	conn.Close()
	waitForCalls(t, act, 1)
}
