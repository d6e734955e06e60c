package trace

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/fleetwatch/canary/internal/infrastructure/logging"
)

// Event is a classified trace event.
type Event interface {
	// Kind returns a short label for metrics and logs.
	Kind() string
}

// RoutingEvent announces which instance was selected to serve a sub-request.
type RoutingEvent struct {
	InvocationID string
	InstanceID   string
	MinerUID     string
	MinerHotkey  string
}

// Kind implements Event.
func (e *RoutingEvent) Kind() string { return "routing" }

// RoutingErrorEvent reports that a previously announced instance failed.
type RoutingErrorEvent struct {
	InvocationID string
	InstanceID   string
	MinerUID     string
	MinerHotkey  string
	ErrorMessage string
}

// Kind implements Event.
func (e *RoutingErrorEvent) Kind() string { return "routing_error" }

// Field values are space-free tokens in the producer's log format, so
// token-level matching is sufficient. The trailing error text is free-form.
var (
	routingPattern = regexp.MustCompile(`query target=(\S+) uid=([0-9]+) hotkey=(\S+)`)
	errorPattern   = regexp.MustCompile(`error encountered while querying target=(\S+) uid=([0-9]+) hotkey=(\S+) coldkey=\S+: (.*)`)
)

// chunk is the decoded shape of one SSE data payload. The trace body keeps
// map form: the producer attaches arbitrary context keys and the debug log
// echoes all of them.
type chunk struct {
	Trace  map[string]interface{} `json:"trace"`
	Error  string                 `json:"error"`
	Result string                 `json:"result"`
}

// Extractor classifies decoded stream payloads.
type Extractor struct {
	logger *logging.Logger
}

// NewExtractor creates an extractor logging anomalies to logger.
func NewExtractor(logger *logging.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// Classify decodes one stream payload and returns the typed event it
// carries, or nil. Malformed payloads and unrecognized trace messages are
// logged and skipped; they never fail the stream.
func (x *Extractor) Classify(payload []byte) Event {
	var c chunk
	if err := sonic.Unmarshal(payload, &c); err != nil {
		x.logger.Debug("Skipping malformed stream chunk", zap.Error(err))
		return nil
	}

	if c.Trace == nil {
		switch {
		case c.Error != "":
			x.logger.Error("Stream reported error", zap.String("error", c.Error))
		case strings.TrimSpace(c.Result) != "":
			x.logger.Debug("Received result bytes", zap.Int("bytes", len(payload)))
		}
		return nil
	}

	message, _ := c.Trace["message"].(string)
	invocationID, _ := c.Trace["invocation_id"].(string)

	if m := errorPattern.FindStringSubmatch(message); m != nil && invocationID != "" {
		return &RoutingErrorEvent{
			InvocationID: invocationID,
			InstanceID:   m[1],
			MinerUID:     m[2],
			MinerHotkey:  m[3],
			ErrorMessage: m[4],
		}
	}
	if m := routingPattern.FindStringSubmatch(message); m != nil && invocationID != "" {
		return &RoutingEvent{
			InvocationID: invocationID,
			InstanceID:   m[1],
			MinerUID:     m[2],
			MinerHotkey:  m[3],
		}
	}

	x.logger.Debug("Trace event", zap.String("detail", formatTrace(c.Trace)))
	return nil
}

// formatTrace renders a trace body the way the producer logs it:
// timestamp, bracketed context keys, then the message.
func formatTrace(trace map[string]interface{}) string {
	timestamp, _ := trace["timestamp"].(string)
	message, _ := trace["message"].(string)

	keys := make([]string, 0, len(trace))
	for key := range trace {
		if key == "timestamp" || key == "message" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%v", key, trace[key]))
	}

	return fmt.Sprintf("%s [%s]: %s", timestamp, strings.Join(pairs, " "), message)
}
