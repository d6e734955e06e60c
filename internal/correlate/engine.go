// Package correlate reconstructs per-sub-request outcomes from the ordered
// trace events of one probe cycle.
//
// The upstream contract is positional: a routing-error event always refers
// to the most recently announced routing target. The engine keeps an
// append-only record sequence and matches each error against the last
// appended record; any mismatch is a protocol violation scoped to the
// cycle, never a process failure.
package correlate

import (
	"fmt"
	"time"

	"github.com/fleetwatch/canary/internal/trace"
)

// Record is the durable outcome of one correlated sub-request.
type Record struct {
	ParentInvocationID string
	InvocationID       string
	ServiceID          string
	InstanceID         string
	MinerUID           string
	MinerHotkey        string
	HasError           bool
	CreatedAt          time.Time
}

// ViolationError reports a routing-error event that does not match the
// most recent open record. The upstream trace format is not under this
// system's control, so this is recoverable: the cycle's correlation is
// abandoned, the process is not.
type ViolationError struct {
	Event      *trace.RoutingErrorEvent
	OpenRecord *Record // nil when the error event arrived before any routing event
}

// Error implements error.
func (e *ViolationError) Error() string {
	if e.OpenRecord == nil {
		return fmt.Sprintf("routing error for instance %s invocation %s with no open record",
			e.Event.InstanceID, e.Event.InvocationID)
	}
	return fmt.Sprintf("routing error for instance %s invocation %s does not match open record instance %s invocation %s",
		e.Event.InstanceID, e.Event.InvocationID, e.OpenRecord.InstanceID, e.OpenRecord.InvocationID)
}

// Engine accumulates correlation records for a single cycle. Not safe for
// concurrent use; a cycle's events arrive on one goroutine.
type Engine struct {
	parentID  string
	serviceID string
	records   []Record
	now       func() time.Time
}

// NewEngine creates an engine for one cycle. parentID correlates every
// record in the cycle; serviceID is the probed service.
func NewEngine(parentID, serviceID string) *Engine {
	return &Engine{
		parentID:  parentID,
		serviceID: serviceID,
		now:       time.Now,
	}
}

// Ingest consumes one classified event in arrival order. A RoutingEvent
// appends a fresh open record; a RoutingErrorEvent flips the error flag on
// the last appended record, returning *ViolationError when identities do
// not line up. Unknown event types are ignored.
func (e *Engine) Ingest(ev trace.Event) error {
	switch ev := ev.(type) {
	case *trace.RoutingEvent:
		e.records = append(e.records, Record{
			ParentInvocationID: e.parentID,
			InvocationID:       ev.InvocationID,
			ServiceID:          e.serviceID,
			InstanceID:         ev.InstanceID,
			MinerUID:           ev.MinerUID,
			MinerHotkey:        ev.MinerHotkey,
			CreatedAt:          e.now(),
		})
	case *trace.RoutingErrorEvent:
		if len(e.records) == 0 {
			return &ViolationError{Event: ev}
		}
		last := &e.records[len(e.records)-1]
		if last.InstanceID != ev.InstanceID || last.InvocationID != ev.InvocationID {
			open := *last
			return &ViolationError{Event: ev, OpenRecord: &open}
		}
		last.HasError = true
	}
	return nil
}

// Finalize returns the cycle's records in arrival order. The engine does
// not deduplicate or reorder; callers must not ingest after finalizing.
func (e *Engine) Finalize() []Record {
	return e.records
}
