package tracing

import (
	"context"
	"testing"
)

func TestSpanTreeTimings(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "catalog.query", "req-1")
	_, scan := StartChildSpan(ctx, "relevance_scan")
	scan.SetAttr("accepted", 3)
	scan.End()
	_, agg := StartChildSpan(ctx, "aggregate")
	agg.End()
	root.End()

	if scan.TraceID != "req-1" {
		t.Errorf("child trace id = %q, want inherited req-1", scan.TraceID)
	}
	timings := root.Timings()
	for _, key := range []string{"catalog.query", "catalog.query.relevance_scan", "catalog.query.aggregate"} {
		if _, ok := timings[key]; !ok {
			t.Errorf("missing timing %q in %v", key, timings)
		}
	}
}

func TestDetachedChildSpan(t *testing.T) {
	_, span := StartChildSpan(context.Background(), "orphan")
	span.SetAttr("k", "v")
	span.End()
	if span.TraceID != "" {
		t.Errorf("detached span trace id = %q", span.TraceID)
	}
}
