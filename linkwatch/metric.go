package linkwatch

import (
	"sync/atomic"
)

// EngineMetrics contains atomic metrics for an engine.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type EngineMetrics struct {
	// StatusChangeCount indicates the number of published status changes.
	StatusChangeCount atomic.Uint64
	// PollSendCount indicates the number of keep-alive commands sent.
	PollSendCount atomic.Uint64
	// SendErrCount indicates the number of failed sends.
	SendErrCount atomic.Uint64
	// SilentFailureCount indicates the number of times the silent-failure detector tripped.
	SilentFailureCount atomic.Uint64
	// ReconnectAttemptCount indicates the number of connect attempts made by the engine.
	ReconnectAttemptCount atomic.Uint64
	// ReconnectDeferredCount indicates the number of connect attempts deferred by the rate limiter.
	ReconnectDeferredCount atomic.Uint64
	// ListenAttemptCount indicates the number of listen attempts made by the engine.
	ListenAttemptCount atomic.Uint64
	// EvictionCount indicates the number of idle sessions evicted.
	EvictionCount atomic.Uint64
	// TimerStartRetryCount indicates the number of timer starts retried after scheduler exhaustion.
	TimerStartRetryCount atomic.Uint64
	// ConnLogErrCount indicates the number of failed connection log writes.
	ConnLogErrCount atomic.Uint64

	// EndpointGauge indicates the number of registered endpoints.
	EndpointGauge atomic.Int64
	// ConnectedGauge indicates the number of endpoints whose published status is Connected.
	ConnectedGauge atomic.Int64
	// SessionGauge indicates the number of live listener sessions.
	SessionGauge atomic.Int64
}

func (m *EngineMetrics) incStatusChangeCount() {
	m.StatusChangeCount.Add(1)
}

func (m *EngineMetrics) incPollSendCount() {
	m.PollSendCount.Add(1)
}

func (m *EngineMetrics) incSendErrCount() {
	m.SendErrCount.Add(1)
}

func (m *EngineMetrics) incSilentFailureCount() {
	m.SilentFailureCount.Add(1)
}

func (m *EngineMetrics) incReconnectAttemptCount() {
	m.ReconnectAttemptCount.Add(1)
}

func (m *EngineMetrics) incReconnectDeferredCount() {
	m.ReconnectDeferredCount.Add(1)
}

func (m *EngineMetrics) incListenAttemptCount() {
	m.ListenAttemptCount.Add(1)
}

func (m *EngineMetrics) incEvictionCount() {
	m.EvictionCount.Add(1)
}

func (m *EngineMetrics) incTimerStartRetryCount() {
	m.TimerStartRetryCount.Add(1)
}

func (m *EngineMetrics) incConnLogErrCount() {
	m.ConnLogErrCount.Add(1)
}

func (m *EngineMetrics) addEndpointGauge(n int64) {
	m.EndpointGauge.Add(n)
}

func (m *EngineMetrics) addConnectedGauge(n int64) {
	m.ConnectedGauge.Add(n)
}

func (m *EngineMetrics) addSessionGauge(n int64) {
	m.SessionGauge.Add(n)
}
