// Package probe drives one synthetic request cycle: pick a target, issue
// the streaming request, and correlate the trace events it emits.
package probe

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/fleetwatch/canary/internal/correlate"
	"github.com/fleetwatch/canary/internal/corpus"
	"github.com/fleetwatch/canary/internal/fleet"
	"github.com/fleetwatch/canary/internal/infrastructure/logging"
	"github.com/fleetwatch/canary/internal/infrastructure/monitoring"
	"github.com/fleetwatch/canary/internal/shared/id"
	"github.com/fleetwatch/canary/internal/trace"
)

// Outcome classifies how a probe cycle ended.
type Outcome int

const (
	// OutcomeCompleted: the stream ended naturally and all records are final.
	OutcomeCompleted Outcome = iota
	// OutcomeNoEligibleTarget: no service had an active, verified instance.
	OutcomeNoEligibleTarget
	// OutcomeRequestRejected: the probe endpoint returned a non-200 status.
	OutcomeRequestRejected
	// OutcomeStreamInterrupted: the stream failed mid-read; partial records kept.
	OutcomeStreamInterrupted
	// OutcomeProtocolViolation: the trace events broke the correlation
	// contract; the cycle's records are discarded.
	OutcomeProtocolViolation
)

// String returns the outcome label used in logs and metrics.
func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeNoEligibleTarget:
		return "no_eligible_target"
	case OutcomeRequestRejected:
		return "request_rejected"
	case OutcomeStreamInterrupted:
		return "stream_interrupted"
	case OutcomeProtocolViolation:
		return "protocol_violation"
	default:
		return "unknown"
	}
}

// Result is the output of one probe cycle.
type Result struct {
	Outcome  Outcome
	ParentID string
	Records  []correlate.Record
}

// Endpoints maps each task kind to its probe URL.
type Endpoints map[TaskKind]string

// Driver orchestrates probe cycles. It holds no state across cycles
// beyond the shared HTTP client; every cycle is independent.
type Driver struct {
	client    *Client
	corpus    *corpus.Corpus
	extractor *trace.Extractor
	endpoints Endpoints
	template  string
	policy    TaskPolicy
	rng       *rand.Rand
	logger    *logging.Logger
	metrics   *monitoring.Metrics
}

// NewDriver creates a probe driver.
func NewDriver(
	client *Client,
	c *corpus.Corpus,
	endpoints Endpoints,
	template string,
	logger *logging.Logger,
	metrics *monitoring.Metrics,
) *Driver {
	return &Driver{
		client:    client,
		corpus:    c,
		extractor: trace.NewExtractor(logger),
		endpoints: endpoints,
		template:  template,
		policy:    DefaultTaskPolicy,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:    logger,
		metrics:   metrics,
	}
}

// WithPolicy swaps the task selection policy.
func (d *Driver) WithPolicy(policy TaskPolicy) *Driver {
	d.policy = policy
	return d
}

// RunCycle executes one full probe cycle against the given fleet snapshot.
func (d *Driver) RunCycle(ctx context.Context, snap fleet.Snapshot) Result {
	cycleID := id.NewCycleID()
	start := time.Now()

	task := d.policy(d.rng)
	svc, ok := snap.Pick(d.template, d.rng)
	if !ok {
		d.logger.Warn("No eligible service in fleet snapshot",
			zap.String("cycle_id", cycleID.String()),
			zap.String("template", d.template),
		)
		return d.finish(cycleID, start, Result{Outcome: OutcomeNoEligibleTarget})
	}

	d.logger.Info("Probing service",
		zap.String("cycle_id", cycleID.String()),
		zap.String("task", task.String()),
		zap.String("service_id", svc.ServiceID),
		zap.String("name", svc.Name),
	)

	var result Result
	switch task {
	case TaskChat:
		result = d.runChat(ctx, cycleID, svc)
	default:
		// Unreachable while the policy only emits known kinds.
		result = Result{Outcome: OutcomeRequestRejected}
	}
	return d.finish(cycleID, start, result)
}

// finish logs and records the cycle result.
func (d *Driver) finish(cycleID id.CycleID, start time.Time, r Result) Result {
	d.metrics.RecordCycle(r.Outcome.String(), time.Since(start), len(r.Records))
	d.logger.Info("Cycle finished",
		zap.String("cycle_id", cycleID.String()),
		zap.String("outcome", r.Outcome.String()),
		zap.Int("records", len(r.Records)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return r
}

// runChat probes the chat endpoint of svc and correlates the trace stream.
func (d *Driver) runChat(ctx context.Context, cycleID id.CycleID, svc fleet.Service) Result {
	payload := d.corpus.ChatPayload(svc.Name, d.rng)
	body, err := sonic.Marshal(payload)
	if err != nil {
		d.logger.Error("Failed to encode payload", zap.Error(err))
		return Result{Outcome: OutcomeRequestRejected}
	}

	resp, err := d.client.Stream(ctx, d.endpoints[TaskChat], body)
	if err != nil {
		d.logger.Warn("Probe request failed",
			zap.String("cycle_id", cycleID.String()),
			zap.String("service_id", svc.ServiceID),
			zap.Error(err),
		)
		return Result{Outcome: OutcomeRequestRejected}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		d.logger.Warn("Probe request rejected",
			zap.String("cycle_id", cycleID.String()),
			zap.String("service_id", svc.ServiceID),
			zap.Int("status", resp.StatusCode),
		)
		return Result{Outcome: OutcomeRequestRejected}
	}

	parentID := resp.Header.Get(HeaderInvocationID)
	if parentID == "" {
		d.logger.Error("Response missing invocation ID header",
			zap.String("cycle_id", cycleID.String()),
			zap.String("service_id", svc.ServiceID),
		)
		d.metrics.ProtocolViolations.Inc()
		return Result{Outcome: OutcomeProtocolViolation}
	}

	return d.consumeStream(cycleID, parentID, svc, resp)
}

var dataPrefix = []byte("data: ")

// consumeStream reads SSE data lines in arrival order, classifying each
// and feeding typed events to a fresh correlation engine.
func (d *Driver) consumeStream(cycleID id.CycleID, parentID string, svc fleet.Service, resp *http.Response) Result {
	engine := correlate.NewEngine(parentID, svc.ServiceID)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for scanner.Scan() {
		line := scanner.Bytes()
		if !bytes.HasPrefix(line, dataPrefix) {
			continue
		}
		d.metrics.StreamChunks.Inc()

		ev := d.extractor.Classify(line[len(dataPrefix):])
		if ev == nil {
			continue
		}
		d.metrics.RecordTraceEvent(ev.Kind())

		if err := engine.Ingest(ev); err != nil {
			var violation *correlate.ViolationError
			if errors.As(err, &violation) {
				d.logger.Error("Correlation protocol violation",
					zap.String("cycle_id", cycleID.String()),
					zap.String("parent_invocation_id", parentID),
					zap.String("service_id", svc.ServiceID),
					zap.String("detail", violation.Error()),
				)
				d.metrics.ProtocolViolations.Inc()
				return Result{Outcome: OutcomeProtocolViolation, ParentID: parentID}
			}
			d.logger.Error("Unexpected ingest failure", zap.Error(err))
			return Result{Outcome: OutcomeProtocolViolation, ParentID: parentID}
		}
	}

	if err := scanner.Err(); err != nil {
		d.logger.Warn("Stream interrupted",
			zap.String("cycle_id", cycleID.String()),
			zap.String("parent_invocation_id", parentID),
			zap.Error(err),
		)
		return Result{
			Outcome:  OutcomeStreamInterrupted,
			ParentID: parentID,
			Records:  engine.Finalize(),
		}
	}

	return Result{
		Outcome:  OutcomeCompleted,
		ParentID: parentID,
		Records:  engine.Finalize(),
	}
}

// Validate checks that every selectable task kind has an endpoint.
func (e Endpoints) Validate() error {
	if _, ok := e[TaskChat]; !ok {
		return fmt.Errorf("no endpoint configured for task %s", TaskChat)
	}
	return nil
}
