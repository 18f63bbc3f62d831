package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
)

func TestWithRunLoggerAnnotatesRecords(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Level: "debug", Format: "json", Output: &buf})

	ctx, log := WithRunLogger(context.Background(), base)
	id := RunIDFromContext(ctx)
	if id == "" {
		t.Fatalf("RunIDFromContext returned empty id")
	}

	log.Info(ctx, "trajectory decided", Float("delta_e", 0.25), Bool("accepted", true))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log record: %v (%q)", err, buf.String())
	}
	if rec["run_id"] != id {
		t.Fatalf("run_id = %v, want %v", rec["run_id"], id)
	}
	if rec["delta_e"] != 0.25 {
		t.Fatalf("delta_e = %v, want 0.25", rec["delta_e"])
	}
	if FromContext(ctx) != log {
		t.Fatalf("FromContext did not return the run logger")
	}
}

func TestEnsureRunIDKeepsExisting(t *testing.T) {
	ctx := ContextWithRunID(context.Background(), "run-1")
	ctx, id := EnsureRunID(ctx)
	if id != "run-1" || RunIDFromContext(ctx) != "run-1" {
		t.Fatalf("EnsureRunID replaced existing id: got %q", id)
	}
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Output: &buf})
	log.Debug(context.Background(), "hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug record written at info level: %q", buf.String())
	}
	if _, ok := FromContext(context.Background()).(noopLogger); !ok {
		t.Fatalf("FromContext without logger should return noop")
	}
}
