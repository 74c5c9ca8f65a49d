package metrics

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRecorder_FlushOutput(t *testing.T) {
	rec := New(Namespace)
	rec.Dimension("Mode", "poll")
	rec.Metric("LatencyMs", 1234.5, UnitMilliseconds)
	rec.Count("PollTicks")
	rec.Count("PollTicks")
	rec.Property("jobId", "abc-123")

	var buf bytes.Buffer
	if err := rec.Flush(&buf); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	output := buf.String()
	if strings.Count(output, "\n") != 1 || !strings.HasSuffix(output, "\n") {
		t.Fatalf("expected exactly one line, got %q", output)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(output), &doc); err != nil {
		t.Fatalf("failed to parse output as JSON: %v\nOutput: %s", err, output)
	}

	awsMap, ok := doc["_aws"].(map[string]interface{})
	if !ok {
		t.Fatal("missing _aws directive")
	}
	if _, ok := awsMap["Timestamp"]; !ok {
		t.Error("missing Timestamp in _aws directive")
	}
	cwArr, ok := awsMap["CloudWatchMetrics"].([]interface{})
	if !ok || len(cwArr) == 0 {
		t.Fatal("CloudWatchMetrics should be a non-empty array")
	}
	cw := cwArr[0].(map[string]interface{})
	if cw["Namespace"] != Namespace {
		t.Errorf("expected namespace %s, got %v", Namespace, cw["Namespace"])
	}

	if doc["Mode"] != "poll" {
		t.Errorf("expected Mode=poll, got %v", doc["Mode"])
	}
	if doc["LatencyMs"] != 1234.5 {
		t.Errorf("expected LatencyMs=1234.5, got %v", doc["LatencyMs"])
	}
	if doc["PollTicks"] != float64(2) {
		t.Errorf("expected PollTicks=2, got %v", doc["PollTicks"])
	}
	if doc["jobId"] != "abc-123" {
		t.Errorf("expected jobId=abc-123, got %v", doc["jobId"])
	}
}

func TestRecorder_FlushEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := New("Test").Flush(&buf); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no output for empty recorder, got: %s", buf.String())
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestRecorder_FlushWriteError(t *testing.T) {
	err := New("Test").Count("Calls").Flush(failingWriter{})
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("expected write error, got %v", err)
	}
}

func TestRecorder_Chaining(t *testing.T) {
	rec := New("Test").
		Dimension("Op", "test").
		Metric("Duration", 100, UnitMilliseconds).
		Count("Calls").
		Property("id", "xyz")

	if rec.dimensions["Op"] != "test" {
		t.Error("chaining Dimension failed")
	}
	if rec.values["Duration"] != 100 {
		t.Error("chaining Metric failed")
	}
	if rec.values["Calls"] != 1 || rec.metrics["Calls"].Unit != UnitCount {
		t.Error("chaining Count failed")
	}
	if rec.properties["id"] != "xyz" {
		t.Error("chaining Property failed")
	}
}

func TestRecorder_Elapsed(t *testing.T) {
	clock := time.Unix(1000, 0)
	rec := New("Test")
	rec.now = func() time.Time { return clock }
	rec.started = clock

	clock = clock.Add(1500 * time.Millisecond)
	if got := rec.Elapsed(); got != 1500*time.Millisecond {
		t.Errorf("expected 1.5s, got %v", got)
	}
}
