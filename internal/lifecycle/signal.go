package lifecycle

import (
	"log"
	"os"
	"os/signal"
	"syscall"
)

// Bridge maps OS signals to machine operations: SIGUSR1 wakes the
// controller (the only way back from fully stopped, since no listener
// exists then), SIGINT and SIGTERM stop it and exit the process.
//
// The bridge is registered once at process startup, not managed by the
// machine: it has to outlive Stop or nothing could ever deliver the wake.
type Bridge struct {
	machine *Machine
	sigCh   chan os.Signal
	exit    func(int)
}

func NewBridge(m *Machine) *Bridge {
	return &Bridge{
		machine: m,
		exit:    os.Exit,
	}
}

// Start installs the signal handlers and begins dispatching.
func (b *Bridge) Start() {
	b.sigCh = make(chan os.Signal, 1)
	signal.Notify(b.sigCh, syscall.SIGUSR1, syscall.SIGINT, syscall.SIGTERM)
	go b.loop()
}

// Close uninstalls the handlers and ends the dispatch loop.
func (b *Bridge) Close() {
	signal.Stop(b.sigCh)
	close(b.sigCh)
}

func (b *Bridge) loop() {
	for sig := range b.sigCh {
		switch sig {
		case syscall.SIGUSR1:
			log.Printf("signal: wake (%v)", sig)
			b.machine.Wake()
		case syscall.SIGINT, syscall.SIGTERM:
			log.Printf("signal: shutting down (%v)", sig)
			b.machine.Stop()
			b.exit(0)
		}
	}
}
