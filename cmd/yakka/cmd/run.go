package cmd

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/KieranHarper/Yakka/pkg/exec"
	"github.com/KieranHarper/Yakka/pkg/line"
	"github.com/KieranHarper/Yakka/pkg/logger"
	"github.com/KieranHarper/Yakka/pkg/task"
)

var runOpts struct {
	limit      int
	noProgress bool
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().IntVar(&runOpts.limit, "limit", 0, "Override the workload's concurrency limit (0 keeps the file's value)")
	runCmd.Flags().BoolVar(&runOpts.noProgress, "no-progress", false, "Disable the live progress bar")
}

var runCmd = &cobra.Command{
	Use:   "run <workload.yaml> [more workloads...]",
	Short: "Execute one or more YAML workloads",
	Long: `Executes each workload file through its own concurrency-limited line.
Multiple files run concurrently. A workload fails if any of its top-level
tasks ends with a failure outcome; Ctrl-C cancels everything in flight.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		defer logger.SyncGlobal()

		// The live bar only makes sense for a single workload; with
		// several running concurrently the output would interleave.
		showBar := !runOpts.noProgress && len(args) == 1

		g, ctx := errgroup.WithContext(cmd.Context())
		for _, path := range args {
			path := path
			g.Go(func() error {
				wl, err := LoadWorkload(path)
				if err != nil {
					return err
				}
				return runWorkload(ctx, wl, showBar)
			})
		}
		return g.Wait()
	},
}

// runWorkload pushes the workload's top-level tasks through a line and
// blocks until the line drains (or ctx is cancelled, in which case it
// cancels everything and still waits for the drain).
func runWorkload(ctx context.Context, wl *Workload, showBar bool) error {
	log := logger.Get()

	tasks := wl.Build()

	limit := wl.Limit
	if runOpts.limit > 0 {
		limit = runOpts.limit
	}
	var opts []line.Option
	if limit > 0 {
		opts = append(opts, line.WithLimit(limit))
	}
	l := line.New(opts...)
	l.Stop() // hold admission until every task is queued

	var bar *progressbar.ProgressBar
	if showBar {
		bar = progressbar.NewOptions(1000,
			progressbar.OptionSetDescription(fmt.Sprintf("Running %s", wl.Name)),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetWidth(40),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionOnCompletion(func() { fmt.Fprint(os.Stderr, "\n") }),
		)
	}

	// All handlers below run on the main serial executor, so the slices
	// need no locking; the final reads are snapshotted on that same
	// executor before rendering.
	progress := make([]float64, len(tasks))
	started := make([]time.Time, len(tasks))
	elapsed := make([]time.Duration, len(tasks))
	refresh := func() {
		if bar == nil {
			return
		}
		var sum float64
		for _, p := range progress {
			sum += p
		}
		_ = bar.Set(int(sum / float64(len(progress)) * 1000))
	}

	done := make(chan struct{})
	var once sync.Once
	l.OnBecameEmpty(func() { once.Do(func() { close(done) }) })
	l.OnTaskStarted(func(t *task.Task) {
		log.Debugf("line %s admitted task %s (%q)", wl.Name, t.ID(), t.Name())
	})

	for i, t := range tasks {
		t.OnStart(func() {
			started[i] = time.Now()
		})
		t.OnProgress(func(pct float64) {
			progress[i] = pct
			refresh()
		})
		t.OnRetry(func() {
			log.Warnf("task %q scheduled for retry", t.Name())
		})
		t.OnFinish(func(o task.Outcome) {
			progress[i] = 1
			if !started[i].IsZero() {
				elapsed[i] = time.Since(started[i])
			}
			refresh()
		})
		l.Add(t)
	}

	begin := time.Now()
	l.Start()

	select {
	case <-ctx.Done():
		log.Warnf("workload %s interrupted, cancelling", wl.Name)
		l.StopAndCancel()
		<-done
	case <-done:
	}
	if bar != nil {
		_ = bar.Finish()
	}

	// On the interrupt path the line reports empty while cancelled tasks
	// are still draining, and their finish handlers keep writing these
	// slices on the main executor. Snapshot there instead of reading
	// directly.
	snapped := make(chan []time.Duration, 1)
	exec.Main().Async(func() {
		cp := make([]time.Duration, len(elapsed))
		copy(cp, elapsed)
		snapped <- cp
	})
	renderSummary(wl.Name, tasks, <-snapped)

	failed := 0
	for _, t := range tasks {
		if o, ok := t.Outcome(); ok && o == task.OutcomeFailure {
			failed++
		}
	}
	if failed > 0 {
		return errors.Errorf("workload %s: %d task(s) failed", wl.Name, failed)
	}
	log.Successf("workload %s finished in %s", wl.Name, time.Since(begin).Round(time.Millisecond))
	return nil
}

func renderSummary(name string, tasks []*task.Task, elapsed []time.Duration) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"TASK", "STATE", "OUTCOME", "ELAPSED"})
	for i, t := range tasks {
		label := t.Name()
		if label == "" {
			label = t.ID()
		}
		outcome := "-"
		if o, ok := t.Outcome(); ok {
			outcome = o.String()
		}
		dur := "-"
		if elapsed[i] > 0 {
			dur = elapsed[i].Round(time.Millisecond).String()
		}
		table.Append([]string{label, t.State().String(), outcome, dur})
	}
	fmt.Printf("\nWorkload %s:\n", name)
	table.Render()
}
