package prommetrics

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/ggoodman/symstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSinkRecordsDeviceActivity(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	sink := New(reg, "symstream")

	dev, err := symstream.Register(ctx, "foxes",
		symstream.WithSupply(2),
		symstream.WithMetrics(sink),
		symstream.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	defer dev.Close(ctx)

	sess, err := dev.Open(ctx)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := io.ReadAll(sess.NewReader(ctx)); err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if err := sess.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	labels := []string{"foxes", "session"}
	if got := testutil.ToFloat64(sink.counters[symstream.MetricSessionsOpened].WithLabelValues(labels...)); got != 1 {
		t.Fatalf("want 1 session opened, got %v", got)
	}
	if got := testutil.ToFloat64(sink.counters[symstream.MetricSessionsClosed].WithLabelValues(labels...)); got != 1 {
		t.Fatalf("want 1 session closed, got %v", got)
	}
	if got := testutil.ToFloat64(sink.counters[symstream.MetricStreamsEnded].WithLabelValues(labels...)); got != 1 {
		t.Fatalf("want 1 stream ended, got %v", got)
	}
	if n := testutil.CollectAndCount(sink.histograms[symstream.MetricReadBytes], "symstream_read_bytes"); n != 1 {
		t.Fatalf("want read_bytes histogram series, got %d", n)
	}
}

func TestSinkSharesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := New(reg, "ns")
	b := New(reg, "ns")
	tags := map[string]string{"device": "foxes"}

	a.IncCounter("reads", tags)
	b.IncCounter("reads", tags)

	if got := testutil.ToFloat64(a.counters["reads"].With(tags)); got != 2 {
		t.Fatalf("want both sinks to share one collector, got %v", got)
	}
}
