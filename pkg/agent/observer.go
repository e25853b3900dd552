package agent

import (
	"github.com/teslashibe/inbound-agent/pkg/metrics"
)

// metricsBuffer bounds how many metrics events wait for the observer.
const metricsBuffer = 64

// MetricsObserver receives every metrics event the agent emits.
//
// Calls happen on a dedicated goroutine in emission order. A returned
// error or a panic is logged and never reaches the pipeline.
type MetricsObserver interface {
	OnMetrics(m metrics.AgentMetrics) error
}

// ObserverFunc adapts a function to MetricsObserver.
type ObserverFunc func(m metrics.AgentMetrics) error

// OnMetrics calls f(m).
func (f ObserverFunc) OnMetrics(m metrics.AgentMetrics) error {
	return f(m)
}

// emit queues m for the observer without blocking the caller.
func (a *Agent) emit(m metrics.AgentMetrics) {
	if a.observer == nil {
		return
	}

	a.metricsMu.Lock()
	defer a.metricsMu.Unlock()
	if a.metricsClosed {
		return
	}
	select {
	case a.metricsCh <- m:
	default:
		a.logger.Warn("metrics dropped, observer too slow", "kind", m.Kind())
	}
}

func (a *Agent) dispatchMetrics() {
	defer close(a.metricsDone)
	for m := range a.metricsCh {
		a.observe(m)
	}
}

func (a *Agent) observe(m metrics.AgentMetrics) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("metrics observer panicked", "kind", m.Kind(), "panic", r)
		}
	}()

	if err := a.observer.OnMetrics(m); err != nil {
		a.logger.Warn("metrics observer failed", "kind", m.Kind(), "error", err)
	}
}

// closeMetrics stops accepting events and waits for queued ones to be observed.
func (a *Agent) closeMetrics() {
	a.metricsMu.Lock()
	if a.metricsClosed || a.metricsCh == nil {
		a.metricsClosed = true
		a.metricsMu.Unlock()
		return
	}
	a.metricsClosed = true
	close(a.metricsCh)
	a.metricsMu.Unlock()

	<-a.metricsDone
}
