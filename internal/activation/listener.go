package activation

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
)

// Activator is the slice of the lifecycle machine the listener needs.
type Activator interface {
	Activate()
}

// Listener accepts out-of-band wake connections. Any successful connection
// counts as an activation request; whatever the client sends is ignored and
// the connection is closed immediately. The point is that a supervisor can
// re-arm the service without speaking the primary protocol.
type Listener struct {
	host      string
	port      int
	activator Activator

	mu   sync.Mutex
	ln   net.Listener
	done chan struct{}
}

func New(host string, port int, activator Activator) *Listener {
	return &Listener{
		host:      host,
		port:      port,
		activator: activator,
	}
}

func (l *Listener) Name() string { return "activation listener" }

// Start binds the activation port and begins accepting. A bind failure is
// returned with nothing left open.
func (l *Listener) Start() error {
	addr := fmt.Sprintf("%s:%d", l.host, l.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding activation port: %w", err)
	}

	l.mu.Lock()
	l.ln = ln
	l.done = make(chan struct{})
	l.mu.Unlock()

	log.Printf("activation listener on %s", addr)
	go l.acceptLoop(ln, l.done)
	return nil
}

// Stop closes the listener and waits for the accept loop to exit, so no
// activation can be recorded after Stop returns.
func (l *Listener) Stop(ctx context.Context) error {
	l.mu.Lock()
	ln, done := l.ln, l.done
	l.ln, l.done = nil, nil
	l.mu.Unlock()

	if ln == nil {
		return nil
	}
	if err := ln.Close(); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Addr returns the bound address, for tests that listen on port 0.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

func (l *Listener) acceptLoop(ln net.Listener, done chan struct{}) {
	defer close(done)
	for {
		conn, err := ln.Accept()
		if err != nil {
			// Listener closed by Stop.
			return
		}
		l.activator.Activate()
		conn.Close()
	}
}
