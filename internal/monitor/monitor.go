package monitor

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/process"
)

// UsageSample is one periodic snapshot of process memory and host CPU load.
// Immutable once emitted; consumed by whatever sinks are attached.
type UsageSample struct {
	MemoryBytes uint64    `json:"memoryBytes"`
	CPULoad1    float64   `json:"cpuLoad1"`
	SampledAt   time.Time `json:"sampledAt"`
}

// MemoryMB returns the sample's memory in whole megabytes, the unit the
// usage log record reports.
func (s UsageSample) MemoryMB() uint64 {
	return s.MemoryBytes / (1024 * 1024)
}

// Sink consumes usage samples. EmitUsage must not block for long; it is
// called from the sampling goroutine.
type Sink interface {
	EmitUsage(UsageSample)
}

// Monitor samples resource usage on a fixed cadence while the controller is
// running. Start and Stop pair exactly once per controller start/stop; the
// lifecycle machine serializes them, so the monitor never double-schedules.
type Monitor struct {
	interval time.Duration
	sinks    []Sink
	sample   func() (UsageSample, error)

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func New(interval time.Duration, sinks ...Sink) *Monitor {
	return &Monitor{
		interval: interval,
		sinks:    sinks,
		sample:   sampleUsage,
	}
}

func (m *Monitor) Name() string { return "resource monitor" }

func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop != nil {
		return nil
	}
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.loop(m.stop, m.done)
	return nil
}

// Stop halts sampling and waits for the loop to exit, so no sample is
// emitted after Stop returns.
func (m *Monitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	stop, done := m.stop, m.done
	m.stop, m.done = nil, nil
	m.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Monitor) loop(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s, err := m.sample()
			if err != nil {
				log.Printf("monitor: sampling failed: %v", err)
				continue
			}
			for _, sink := range m.sinks {
				sink.EmitUsage(s)
			}
		}
	}
}

// sampleUsage reads the process RSS and the host's 1-minute load average.
func sampleUsage() (UsageSample, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return UsageSample{}, err
	}
	mem, err := proc.MemoryInfo()
	if err != nil {
		return UsageSample{}, err
	}
	avg, err := load.Avg()
	if err != nil {
		return UsageSample{}, err
	}
	return UsageSample{
		MemoryBytes: mem.RSS,
		CPULoad1:    avg.Load1,
		SampledAt:   time.Now(),
	}, nil
}

// usageRecord is the wire shape of the usage log line.
type usageRecord struct {
	Type  string `json:"type"`
	Usage struct {
		MemoryMB uint64  `json:"memory_mb"`
		CPULoad  float64 `json:"cpu_load"`
	} `json:"usage"`
}

// LogSink writes each sample as a structured record on the log stream.
type LogSink struct{}

func NewLogSink() *LogSink { return &LogSink{} }

func (*LogSink) EmitUsage(s UsageSample) {
	var rec usageRecord
	rec.Type = "resources"
	rec.Usage.MemoryMB = s.MemoryMB()
	rec.Usage.CPULoad = s.CPULoad1
	data, err := json.Marshal(rec)
	if err != nil {
		log.Printf("monitor: marshal usage record: %v", err)
		return
	}
	log.Printf("%s", data)
}
