package metrics

import (
	"path"
	"sync"
	"time"

	"github.com/nakabonne/tstorage"
)

// Metric names recorded by the gateway.
const (
	SystemCpuUse         = "system_cpuuse"
	SystemMemUse         = "system_memuse"
	MessageInbound       = "message_inbound"
	MessageOutbound      = "message_outbound"
	ProviderErrors       = "provider_errors"
	StreamSubscribers    = "stream_subscribers"
	WebhookDropped       = "webhook_dropped"
	AutomationDispatches = "automation_dispatches"
)

var (
	storage  tstorage.Storage
	mu       sync.Mutex
	counters = map[string]int64{}
)

// InitMetrics opens the embedded time-series store under workdir.
func InitMetrics(workdir string) error {
	var err error
	storage, err = tstorage.NewStorage(
		tstorage.WithDataPath(path.Join(workdir, "metrics")),
		tstorage.WithTimestampPrecision(tstorage.Seconds),
		tstorage.WithRetention(30*24*time.Hour),
	)
	return err
}

// SetGauge records an instantaneous value for the metric.
func SetGauge(name string, value int64) {
	if storage == nil {
		return
	}
	_ = storage.InsertRows([]tstorage.Row{{
		Metric:    name,
		DataPoint: tstorage.DataPoint{Timestamp: time.Now().Unix(), Value: float64(value)},
	}})
}

// IncrCounter increments an in-process counter and records its new value.
func IncrCounter(name string, delta int64) {
	mu.Lock()
	counters[name] += delta
	v := counters[name]
	mu.Unlock()
	SetGauge(name, v)
}

// GetPoints returns data points for a metric within [start, end].
func GetPoints(name string, start, end int64) ([]*tstorage.DataPoint, error) {
	if storage == nil {
		return nil, nil
	}
	return storage.Select(name, nil, start, end)
}

func Close() error {
	if storage == nil {
		return nil
	}
	return storage.Close()
}
