package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/KieranHarper/Yakka/pkg/task"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "500ms" or "2s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", s)
	}
	*d = Duration(parsed)
	return nil
}

// Workload is a YAML-defined set of simulated tasks to run through a line.
type Workload struct {
	Name  string    `yaml:"name"`
	Limit int       `yaml:"limit"`
	Tasks []TaskDef `yaml:"tasks"`
}

// TaskDef describes one task. A def with a non-empty Tasks list is a
// group (serial by default); otherwise it is a leaf whose work sleeps
// through Duration in Steps slices, reporting progress and honouring
// cancellation between slices. FailFirst makes the first N attempts fail,
// which together with Retries/Backoff exercises the retry machinery.
type TaskDef struct {
	Name           string    `yaml:"name"`
	Duration       Duration  `yaml:"duration"`
	Steps          int       `yaml:"steps"`
	FailFirst      int       `yaml:"failFirst"`
	Retries        int       `yaml:"retries"`
	Backoff        Duration  `yaml:"backoff"`
	Mode           string    `yaml:"mode"`
	MaxConcurrent  int       `yaml:"maxConcurrent"`
	RequireSuccess bool      `yaml:"requireSuccess"`
	Tasks          []TaskDef `yaml:"tasks"`
}

// LoadWorkload reads and validates a workload file.
func LoadWorkload(path string) (*Workload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading workload file %s", path)
	}
	var wl Workload
	if err := yaml.Unmarshal(data, &wl); err != nil {
		return nil, errors.Wrapf(err, "parsing workload file %s", path)
	}
	if wl.Name == "" {
		wl.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if len(wl.Tasks) == 0 {
		return nil, errors.Errorf("workload %s defines no tasks", wl.Name)
	}
	for i := range wl.Tasks {
		if err := wl.Tasks[i].validate(); err != nil {
			return nil, errors.Wrapf(err, "workload %s", wl.Name)
		}
	}
	return &wl, nil
}

func (d *TaskDef) validate() error {
	if len(d.Tasks) > 0 {
		switch d.Mode {
		case "", "serial", "parallel":
		default:
			return errors.Errorf("task %q: unknown mode %q (want serial or parallel)", d.Name, d.Mode)
		}
		for i := range d.Tasks {
			if err := d.Tasks[i].validate(); err != nil {
				return err
			}
		}
		return nil
	}
	if d.Mode != "" {
		return errors.Errorf("task %q: mode is only valid on groups", d.Name)
	}
	if d.Retries < 0 {
		return errors.Errorf("task %q: negative retries", d.Name)
	}
	return nil
}

// Build constructs the top-level tasks of the workload.
func (wl *Workload) Build() []*task.Task {
	tasks := make([]*task.Task, 0, len(wl.Tasks))
	for i := range wl.Tasks {
		tasks = append(tasks, wl.Tasks[i].build())
	}
	return tasks
}

func (d *TaskDef) build() *task.Task {
	var t *task.Task
	if len(d.Tasks) > 0 {
		subs := make([]*task.Task, 0, len(d.Tasks))
		for i := range d.Tasks {
			subs = append(subs, d.Tasks[i].build())
		}
		cfg := task.MultiTaskConfig{RequireSuccess: d.RequireSuccess}
		switch {
		case d.Mode == "parallel" && d.MaxConcurrent > 0:
			cfg.MaxConcurrent = d.MaxConcurrent
		case d.Mode == "parallel":
			cfg.MaxConcurrent = 0
		default:
			cfg.MaxConcurrent = 1
		}
		t = task.NewMultiTask(cfg, subs...)
	} else {
		t = task.NewWithWork(d.simulatedWork())
		if d.Retries > 0 {
			seed := time.Duration(d.Backoff)
			t.RetryWithBackoff(seed, d.Retries)
		}
	}
	if d.Name != "" {
		t.SetName(d.Name)
	}
	return t
}

// simulatedWork sleeps through the configured duration in slices, reports
// progress after each, and polls for cancellation between slices. The
// first FailFirst attempts fail so retry behaviour can be observed.
func (d *TaskDef) simulatedWork() task.Work {
	total := time.Duration(d.Duration)
	if total <= 0 {
		total = 200 * time.Millisecond
	}
	steps := d.Steps
	if steps <= 0 {
		steps = 10
	}
	failFirst := int64(d.FailFirst)
	var attempts atomic.Int64

	return func(p *task.Process) {
		n := attempts.Add(1)
		slice := total / time.Duration(steps)
		for i := 1; i <= steps; i++ {
			if p.ShouldCancel() {
				p.Cancel()
				return
			}
			time.Sleep(slice)
			p.Progress(float64(i) / float64(steps))
		}
		if n <= failFirst {
			p.Fail()
			return
		}
		p.Succeed()
	}
}
