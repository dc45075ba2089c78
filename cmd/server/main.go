package main

import (
	"flag"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/dormouse/backend/internal/activation"
	"github.com/dormouse/backend/internal/config"
	"github.com/dormouse/backend/internal/lifecycle"
	"github.com/dormouse/backend/internal/monitor"
	"github.com/dormouse/backend/internal/server"
	"github.com/dormouse/backend/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override primary port")
	activationPort := flag.Int("activation-port", 0, "Override activation port")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *activationPort > 0 {
		cfg.Activation.Port = *activationPort
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	broadcaster := ws.NewBroadcaster()

	machine := lifecycle.NewMachine(cfg.Lifecycle.InactivityTimeout, cfg.Lifecycle.ShutdownGrace)
	machine.Subscribe(broadcaster)
	broadcaster.SetStatusHook(machine.Snapshot)

	mon := monitor.New(cfg.Monitor.SampleInterval, monitor.NewLogSink(), broadcaster)
	primary := server.New(cfg.Server.Host, cfg.Server.Port, machine, appHandler(cfg), broadcaster)
	wake := activation.New(cfg.Server.Host, cfg.Activation.Port, machine)

	machine.Manage(primary, wake, mon)

	bridge := lifecycle.NewBridge(machine)
	bridge.Start()

	if err := machine.Start(); err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	log.Printf("Controller active; inactivity timeout %v", cfg.Lifecycle.InactivityTimeout)

	// The process stays alive after an inactivity stop so the wake signal
	// can revive it; only SIGINT/SIGTERM exit.
	select {}
}

// appHandler builds the opaque application handler the primary endpoint
// delegates to. With an upstream configured it is a reverse proxy; without
// one the application surface simply has nothing behind it.
func appHandler(cfg *config.Config) http.Handler {
	if cfg.Upstream.URL == "" {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "no upstream configured", http.StatusNotFound)
		})
	}
	target, err := url.Parse(cfg.Upstream.URL)
	if err != nil {
		log.Fatalf("Invalid upstream URL: %v", err)
	}
	log.Printf("Proxying application traffic to %s", target)
	return httputil.NewSingleHostReverseProxy(target)
}
