// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/tunegrab/tunegrab/internal/history"
	"github.com/tunegrab/tunegrab/internal/selfupdate"
)

// seedHistory records a confirmed cycle and a rolled-back one.
func seedHistory(t *testing.T, path string) {
	t.Helper()
	ctx := context.Background()

	store, err := history.Open(ctx, path)
	if err != nil {
		t.Fatalf("opening history: %v", err)
	}
	defer func() { _ = store.Close() }()

	first, err := store.Begin(ctx, "1.1.0", "1.2.0", selfupdate.RunModeBinary)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.RecordArtifact(ctx, first, &selfupdate.DownloadResult{SHA256: "abc", ByteSize: 3 << 20}); err != nil {
		t.Fatal(err)
	}
	if err := store.Confirm(ctx, first); err != nil {
		t.Fatal(err)
	}

	second, err := store.Begin(ctx, "1.2.0", "1.3.0", selfupdate.RunModeBinary)
	if err != nil {
		t.Fatal(err)
	}
	cause := &selfupdate.InstallError{Step: selfupdate.StepPromote, RolledBack: true, Cause: errors.New("disk full")}
	if err := store.RecordState(ctx, second, selfupdate.StateRolledBack, cause); err != nil {
		t.Fatal(err)
	}
}

func TestHistory_YAML(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, testConfig(t, "http://127.0.0.1:0"))
	seedHistory(t, h.cfg.History.Path)

	if err := h.run("history", "--output", "yaml"); err != nil {
		t.Fatalf("history: %v", err)
	}

	var entries []history.Entry
	if err := yaml.Unmarshal(h.stdout.Bytes(), &entries); err != nil {
		t.Fatalf("decoding %q: %v", h.stdout.String(), err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].ToVersion != "1.3.0" || entries[0].State != selfupdate.StateRolledBack.String() {
		t.Errorf("newest entry = %+v", entries[0])
	}
	if entries[1].ConfirmedAt == nil || entries[1].ByteSize != 3<<20 {
		t.Errorf("oldest entry = %+v", entries[1])
	}
}

func TestHistory_TableAndLimit(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, testConfig(t, "http://127.0.0.1:0"))
	seedHistory(t, h.cfg.History.Path)

	if err := h.run("history", "--limit", "1"); err != nil {
		t.Fatalf("history: %v", err)
	}
	out := h.stdout.String()
	if !strings.Contains(out, "1.2.0 → 1.3.0") || !strings.Contains(out, "disk full") {
		t.Errorf("output missing newest cycle:\n%s", out)
	}
	if strings.Contains(out, "1.1.0 → 1.2.0") {
		t.Errorf("--limit 1 printed the older cycle:\n%s", out)
	}
}

func TestHistory_Empty(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, testConfig(t, "http://127.0.0.1:0"))
	if err := h.run("history", "-o", "json"); err != nil {
		t.Fatalf("history: %v", err)
	}
	if got := strings.TrimSpace(h.stdout.String()); got != "[]" {
		t.Errorf("output = %q, want []", got)
	}
}

func TestHistory_Disabled(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "http://127.0.0.1:0")
	cfg.History.Enabled = false
	h := newTestHarness(t, cfg)
	if err := h.run("history"); !errors.Is(err, errHistoryDisabled) {
		t.Errorf("error = %v, want errHistoryDisabled", err)
	}
}
