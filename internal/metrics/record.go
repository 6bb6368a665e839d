package metrics

import (
	"time"
)

// RecordCommand records the outcome of a client command
func RecordCommand(cmd, status string, duration time.Duration) {
	CommandsTotal.WithLabelValues(cmd, status).Inc()
	CommandDuration.WithLabelValues(cmd).Observe(duration.Seconds())
}

// RecordWorkerEvent counts an event received from the worker
func RecordWorkerEvent(eventType string) {
	WorkerEventsTotal.WithLabelValues(eventType).Inc()
}

// RecordMalformed counts an unparseable frame from source
func RecordMalformed(source string) {
	MalformedFramesTotal.WithLabelValues(source).Inc()
}

// RecordWorkerConnected sets the worker connectivity gauge
func RecordWorkerConnected(connected bool) {
	if connected {
		WorkerConnected.Set(1)
		return
	}
	WorkerConnected.Set(0)
}

// RecordDialFailure counts a failed worker dial
func RecordDialFailure() {
	WorkerDialFailures.Inc()
}

// RecordEviction counts a dropped slow client
func RecordEviction() {
	ClientEvictions.Inc()
}

// RecordPersist counts a snapshot write
func RecordPersist(err error) {
	if err != nil {
		PersistsTotal.WithLabelValues("error").Inc()
		return
	}
	PersistsTotal.WithLabelValues("ok").Inc()
}
