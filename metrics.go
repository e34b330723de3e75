package symstream

// MetricsSink allows optional instrumentation without hard dependency.
// metrics/prommetrics provides a Prometheus implementation.
type MetricsSink interface {
	IncCounter(name string, tags map[string]string)
	ObserveHistogram(name string, value float64, tags map[string]string)
}

// Metric names reported by Device and Session.
const (
	MetricSessionsOpened = "sessions_opened"
	MetricSessionsClosed = "sessions_closed"
	MetricReads          = "reads"
	MetricReadBytes      = "read_bytes"
	MetricReadErrors     = "read_errors"
	MetricStreamsEnded   = "streams_ended"
)

type nopMetrics struct{}

func (nopMetrics) IncCounter(string, map[string]string)                {}
func (nopMetrics) ObserveHistogram(string, float64, map[string]string) {}
