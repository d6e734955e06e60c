package probe

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetwatch/canary/internal/corpus"
	"github.com/fleetwatch/canary/internal/fleet"
	"github.com/fleetwatch/canary/internal/infrastructure/logging"
	"github.com/fleetwatch/canary/internal/infrastructure/monitoring"
)

func testCorpus(t *testing.T) *corpus.Corpus {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corpus.yml")
	content := "conversations:\n  - messages:\n      - role: user\n        content: Hello.\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	c, err := corpus.Load(path, "")
	require.NoError(t, err)
	return c
}

func testDriver(t *testing.T, endpoint string) *Driver {
	t.Helper()
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	client := NewClient("test-key", 0)
	return NewDriver(client, testCorpus(t), Endpoints{TaskChat: endpoint}, "vllm", logging.NewNop(), metrics)
}

func liveSnapshot() fleet.Snapshot {
	return fleet.Snapshot{
		Services: []fleet.Service{
			{
				ServiceID: "svc-1",
				Name:      "org/model-a",
				Template:  "vllm",
				Instances: []fleet.Instance{
					{InstanceID: "i-1", Active: true, Verified: true},
				},
			},
		},
	}
}

func sseLine(invocationID, message string) string {
	return fmt.Sprintf("data: {\"trace\":{\"timestamp\":\"t\",\"invocation_id\":%q,\"message\":%q}}\n\n",
		invocationID, message)
}

func TestRunCycleCompleted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "true", r.Header.Get(HeaderTrace))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		w.Header().Set(HeaderInvocationID, "parent-1")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, sseLine("inv-a", "query target=inst-a uid=1 hotkey=hk-a"))
		fmt.Fprint(w, "data: {\"result\":\"token\"}\n\n")
		fmt.Fprint(w, sseLine("inv-b", "query target=inst-b uid=2 hotkey=hk-b"))
		fmt.Fprint(w, sseLine("inv-b", "error encountered while querying target=inst-b uid=2 hotkey=hk-b coldkey=ck: timeout"))
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	d := testDriver(t, srv.URL)
	result := d.RunCycle(context.Background(), liveSnapshot())

	assert.Equal(t, OutcomeCompleted, result.Outcome)
	assert.Equal(t, "parent-1", result.ParentID)
	require.Len(t, result.Records, 2)

	assert.Equal(t, "parent-1", result.Records[0].ParentInvocationID)
	assert.Equal(t, "svc-1", result.Records[0].ServiceID)
	assert.Equal(t, "inst-a", result.Records[0].InstanceID)
	assert.False(t, result.Records[0].HasError)

	assert.Equal(t, "inst-b", result.Records[1].InstanceID)
	assert.Equal(t, "2", result.Records[1].MinerUID)
	assert.Equal(t, "hk-b", result.Records[1].MinerHotkey)
	assert.True(t, result.Records[1].HasError)
}

func TestRunCycleNoEligibleTarget(t *testing.T) {
	d := testDriver(t, "http://unused.invalid")
	result := d.RunCycle(context.Background(), fleet.Snapshot{})

	assert.Equal(t, OutcomeNoEligibleTarget, result.Outcome)
	assert.Empty(t, result.Records)
}

func TestRunCycleRequestRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model cold", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d := testDriver(t, srv.URL)
	result := d.RunCycle(context.Background(), liveSnapshot())

	assert.Equal(t, OutcomeRequestRejected, result.Outcome)
	assert.Empty(t, result.Records)
}

func TestRunCycleMissingParentHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, sseLine("inv-a", "query target=inst-a uid=1 hotkey=hk-a"))
	}))
	defer srv.Close()

	d := testDriver(t, srv.URL)
	result := d.RunCycle(context.Background(), liveSnapshot())

	assert.Equal(t, OutcomeProtocolViolation, result.Outcome)
	assert.Empty(t, result.Records)
}

func TestRunCycleProtocolViolation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(HeaderInvocationID, "parent-1")
		w.WriteHeader(http.StatusOK)
		// Error event with no preceding routing event.
		fmt.Fprint(w, sseLine("inv-a", "error encountered while querying target=inst-a uid=1 hotkey=hk coldkey=ck: boom"))
	}))
	defer srv.Close()

	d := testDriver(t, srv.URL)
	result := d.RunCycle(context.Background(), liveSnapshot())

	assert.Equal(t, OutcomeProtocolViolation, result.Outcome)
	assert.Empty(t, result.Records, "violation discards the cycle's records")
}

func TestRunCycleStreamInterrupted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(HeaderInvocationID, "parent-1")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, sseLine("inv-a", "query target=inst-a uid=1 hotkey=hk-a"))
		fmt.Fprint(w, sseLine("inv-b", "query target=inst-b uid=2 hotkey=hk-b"))
		w.(http.Flusher).Flush()
		panic(http.ErrAbortHandler)
	}))
	defer srv.Close()

	d := testDriver(t, srv.URL)
	result := d.RunCycle(context.Background(), liveSnapshot())

	assert.Equal(t, OutcomeStreamInterrupted, result.Outcome)
	// Partial results reflect only the events observed before the failure.
	require.Len(t, result.Records, 2)
	assert.False(t, result.Records[0].HasError)
	assert.False(t, result.Records[1].HasError)
}

func TestEndpointsValidate(t *testing.T) {
	assert.Error(t, Endpoints{}.Validate())
	assert.NoError(t, Endpoints{TaskChat: "http://probe"}.Validate())
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "completed", OutcomeCompleted.String())
	assert.Equal(t, "no_eligible_target", OutcomeNoEligibleTarget.String())
	assert.Equal(t, "request_rejected", OutcomeRequestRejected.String())
	assert.Equal(t, "stream_interrupted", OutcomeStreamInterrupted.String())
	assert.Equal(t, "protocol_violation", OutcomeProtocolViolation.String())
}

func TestDefaultTaskPolicy(t *testing.T) {
	assert.Equal(t, TaskChat, DefaultTaskPolicy(nil))
}
