package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordWrite_Unique(t *testing.T) {
	EventsReceivedTotal.Reset()
	EventsUniqueTotal.Reset()
	EventsDuplicateTotal.Reset()

	RecordWrite("orders.created", true, 5*time.Millisecond)

	if got := testutil.ToFloat64(EventsReceivedTotal.WithLabelValues("orders.created")); got != 1 {
		t.Fatalf("expected received=1, got %v", got)
	}
	if got := testutil.ToFloat64(EventsUniqueTotal.WithLabelValues("orders.created")); got != 1 {
		t.Fatalf("expected unique=1, got %v", got)
	}
	if got := testutil.ToFloat64(EventsDuplicateTotal.WithLabelValues("orders.created")); got != 0 {
		t.Fatalf("expected duplicate=0, got %v", got)
	}
}

func TestRecordWrite_Duplicate(t *testing.T) {
	EventsReceivedTotal.Reset()
	EventsDuplicateTotal.Reset()

	RecordWrite("orders.created", false, time.Millisecond)

	if got := testutil.ToFloat64(EventsDuplicateTotal.WithLabelValues("orders.created")); got != 1 {
		t.Fatalf("expected duplicate=1, got %v", got)
	}
}

func TestRecordDecodeFailure(t *testing.T) {
	EventsDecodeFailedTotal.Reset()
	RecordDecodeFailure()
	if got := testutil.ToFloat64(EventsDecodeFailedTotal); got != 1 {
		t.Fatalf("expected decode failed=1, got %v", got)
	}
}

func TestSetQueueDepth(t *testing.T) {
	SetQueueDepth(42)
	if got := testutil.ToFloat64(QueueDepth); got != 42 {
		t.Fatalf("expected queue depth=42, got %v", got)
	}
}
