package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/KieranHarper/Yakka/pkg/task"
)

func writeWorkload(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wl.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing workload: %v", err)
	}
	return path
}

func TestLoadWorkload(t *testing.T) {
	path := writeWorkload(t, `
name: demo
limit: 2
tasks:
  - name: fetch
    duration: 50ms
    steps: 5
    failFirst: 1
    retries: 2
    backoff: 10ms
  - name: deploy
    mode: serial
    requireSuccess: true
    tasks:
      - name: push
        duration: 20ms
      - name: verify
        duration: 30ms
`)
	wl, err := LoadWorkload(path)
	if err != nil {
		t.Fatalf("LoadWorkload: %v", err)
	}
	if wl.Name != "demo" || wl.Limit != 2 {
		t.Errorf("header mismatch: %+v", wl)
	}
	if len(wl.Tasks) != 2 {
		t.Fatalf("expected 2 top-level tasks, got %d", len(wl.Tasks))
	}
	if got := time.Duration(wl.Tasks[0].Duration); got != 50*time.Millisecond {
		t.Errorf("duration = %v, want 50ms", got)
	}
	if len(wl.Tasks[1].Tasks) != 2 {
		t.Errorf("group should have 2 sub-tasks")
	}
}

func TestLoadWorkloadDefaultsNameFromFile(t *testing.T) {
	path := writeWorkload(t, "tasks:\n  - duration: 10ms\n")
	wl, err := LoadWorkload(path)
	if err != nil {
		t.Fatalf("LoadWorkload: %v", err)
	}
	if wl.Name != "wl" {
		t.Errorf("name = %q, want %q", wl.Name, "wl")
	}
}

func TestLoadWorkloadRejectsEmpty(t *testing.T) {
	path := writeWorkload(t, "name: empty\n")
	if _, err := LoadWorkload(path); err == nil {
		t.Error("expected error for workload with no tasks")
	}
}

func TestLoadWorkloadRejectsBadMode(t *testing.T) {
	path := writeWorkload(t, `
tasks:
  - name: g
    mode: sideways
    tasks:
      - duration: 10ms
`)
	if _, err := LoadWorkload(path); err == nil {
		t.Error("expected error for unknown group mode")
	}
}

func TestLoadWorkloadRejectsBadDuration(t *testing.T) {
	path := writeWorkload(t, "tasks:\n  - duration: fast\n")
	if _, err := LoadWorkload(path); err == nil {
		t.Error("expected error for unparsable duration")
	}
}

func TestBuildRunsWorkload(t *testing.T) {
	wl := &Workload{
		Name: "build-test",
		Tasks: []TaskDef{
			{Name: "leaf", Duration: Duration(20 * time.Millisecond), Steps: 2},
			{Name: "group", Mode: "parallel", Tasks: []TaskDef{
				{Duration: Duration(10 * time.Millisecond), Steps: 1},
				{Duration: Duration(10 * time.Millisecond), Steps: 1},
			}},
		},
	}
	tasks := wl.Build()
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	if tasks[0].Name() != "leaf" || tasks[1].Name() != "group" {
		t.Errorf("names not carried: %q, %q", tasks[0].Name(), tasks[1].Name())
	}

	outcomes := make(chan task.Outcome, 2)
	for _, tk := range tasks {
		tk.OnFinish(func(o task.Outcome) { outcomes <- o })
		tk.Start()
	}
	for i := 0; i < 2; i++ {
		select {
		case o := <-outcomes:
			if o != task.OutcomeSuccess {
				t.Errorf("outcome = %v, want success", o)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for workload tasks")
		}
	}
}

func TestBuildRetriesThroughFailures(t *testing.T) {
	def := TaskDef{
		Name:      "flaky",
		Duration:  Duration(10 * time.Millisecond),
		Steps:     1,
		FailFirst: 2,
		Retries:   2,
		Backoff:   Duration(10 * time.Millisecond),
	}
	tk := def.build()

	outcome := make(chan task.Outcome, 1)
	tk.OnFinish(func(o task.Outcome) { outcome <- o })
	tk.Start()

	select {
	case o := <-outcome:
		if o != task.OutcomeSuccess {
			t.Errorf("outcome = %v, want success after retries", o)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for retries")
	}
}
