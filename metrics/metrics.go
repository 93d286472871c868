// Package metrics defines the recorder the session reports counters and
// latencies through. The zero-cost NoopRecorder is the default; a Prometheus
// implementation ships alongside.
package metrics

import "time"

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}
