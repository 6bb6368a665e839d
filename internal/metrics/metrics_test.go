package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordCommand(t *testing.T) {
	before := testutil.ToFloat64(CommandsTotal.WithLabelValues("add_gesture", StatusOK))
	RecordCommand("add_gesture", StatusOK, 2*time.Millisecond)
	after := testutil.ToFloat64(CommandsTotal.WithLabelValues("add_gesture", StatusOK))

	if after-before != 1 {
		t.Errorf("Expected commands_total to increase by 1, got %v", after-before)
	}
}

func TestRecordWorkerConnected(t *testing.T) {
	RecordWorkerConnected(true)
	if got := testutil.ToFloat64(WorkerConnected); got != 1 {
		t.Errorf("Expected 1, got %v", got)
	}
	RecordWorkerConnected(false)
	if got := testutil.ToFloat64(WorkerConnected); got != 0 {
		t.Errorf("Expected 0, got %v", got)
	}
}

func TestRecordPersist(t *testing.T) {
	okBefore := testutil.ToFloat64(PersistsTotal.WithLabelValues("ok"))
	errBefore := testutil.ToFloat64(PersistsTotal.WithLabelValues("error"))

	RecordPersist(nil)
	RecordPersist(errors.New("disk full"))

	if got := testutil.ToFloat64(PersistsTotal.WithLabelValues("ok")) - okBefore; got != 1 {
		t.Errorf("Expected 1 ok persist, got %v", got)
	}
	if got := testutil.ToFloat64(PersistsTotal.WithLabelValues("error")) - errBefore; got != 1 {
		t.Errorf("Expected 1 failed persist, got %v", got)
	}
}

func TestRecordCounters(t *testing.T) {
	evictions := testutil.ToFloat64(ClientEvictions)
	dials := testutil.ToFloat64(WorkerDialFailures)
	malformed := testutil.ToFloat64(MalformedFramesTotal.WithLabelValues("worker"))
	events := testutil.ToFloat64(WorkerEventsTotal.WithLabelValues("frame"))

	RecordEviction()
	RecordDialFailure()
	RecordMalformed("worker")
	RecordWorkerEvent("frame")

	if testutil.ToFloat64(ClientEvictions)-evictions != 1 {
		t.Error("Expected client_evictions_total to increase")
	}
	if testutil.ToFloat64(WorkerDialFailures)-dials != 1 {
		t.Error("Expected worker_dial_failures_total to increase")
	}
	if testutil.ToFloat64(MalformedFramesTotal.WithLabelValues("worker"))-malformed != 1 {
		t.Error("Expected malformed_frames_total to increase")
	}
	if testutil.ToFloat64(WorkerEventsTotal.WithLabelValues("frame"))-events != 1 {
		t.Error("Expected worker_events_total to increase")
	}
}

func TestCollector(t *testing.T) {
	c := NewCollector(CounterFunc(func() int { return 3 }), CounterFunc(func() int { return 2 }))
	c.Collect()

	if got := testutil.ToFloat64(GesturesTotal); got != 3 {
		t.Errorf("Expected 3 gestures, got %v", got)
	}
	if got := testutil.ToFloat64(ClientsConnected); got != 2 {
		t.Errorf("Expected 2 clients, got %v", got)
	}
	if got := testutil.ToFloat64(Uptime); got < 0 {
		t.Errorf("Expected non-negative uptime, got %v", got)
	}
}
