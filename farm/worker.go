package farm

import (
	"fmt"
	"math"
	"time"

	"github.com/j-r-jones/optsearch/logging"
	"github.com/j-r-jones/optsearch/stats"
)

// pollInterval is how often an idle worker re-polls the master when the
// queue is momentarily empty.
const pollInterval = 2 * time.Second

// WorkerConfig carries everything a worker needs to turn a WorkItem's
// rendered flags string into a fitness, independent of the master
// connection itself. Field names mirror the config keys from SPEC_FULL.md
// 6 (clean-script, build-script, accuracy-test, performance-test,
// timeout, benchmark-timeout, benchmark-repeats, epsilon).
type WorkerConfig struct {
	CleanScript     string
	BuildScript     string
	AccuracyTest    string
	PerformanceTest string

	StepTimeout      time.Duration
	BenchmarkTimeout time.Duration
	BenchmarkRepeats int
	EpsilonPct       float64

	// MaxIdle, if positive, makes RunWorker return once the worker has
	// polled an empty queue continuously for that long. Zero means never
	// self-shutdown on idle.
	MaxIdle time.Duration
}

// RunWorker dials addr, registers, and loops fetch/evaluate/report until
// the master sends STOP or (if configured) the worker has been idle for
// longer than cfg.MaxIdle. It is the Go counterpart of the teacher's
// cloudlus.Worker main loop.
func RunWorker(addr string, cfg WorkerConfig) error {
	client, err := Dial(addr)
	if err != nil {
		return err
	}
	defer client.Close()

	idleSince := time.Now()
	for {
		item, ok, stop, err := client.Fetch()
		if err != nil {
			return fmt.Errorf("farm: worker loop: %w", err)
		}
		if stop {
			return nil
		}
		if !ok {
			if cfg.MaxIdle > 0 && time.Since(idleSince) > cfg.MaxIdle {
				logging.Infof("farm: worker idle for %s, shutting down", cfg.MaxIdle)
				return nil
			}
			time.Sleep(pollInterval)
			continue
		}
		beatDone := make(chan struct{})
		go func(uid int) {
			ticker := time.NewTicker(beatInterval)
			defer ticker.Stop()
			for {
				select {
				case <-beatDone:
					return
				case <-ticker.C:
					if err := client.Heartbeat(uid); err != nil {
						logging.Warnf("farm: particle %d: heartbeat: %v", uid, err)
					}
				}
			}
		}(item.UID)
		fitness := evaluate(item, cfg)
		close(beatDone)
		if err := client.Report(item.UID, fitness, item.Seq); err != nil {
			return fmt.Errorf("farm: worker loop: %w", err)
		}
		idleSince = time.Now()
	}
}

// evaluate runs the prologue and, if it succeeds, the benchmark, returning
// the fitness to report for item. It never returns an error: every failure
// mode collapses to math.MaxFloat64, per the evaluation error policy.
func evaluate(item WorkItem, cfg WorkerConfig) float64 {
	if err := runStep(cfg.CleanScript, item.Command, cfg.StepTimeout); err != nil {
		logging.Debugf("farm: particle %d: clean failed: %v", item.UID, err)
		return math.MaxFloat64
	}
	if err := runStep(cfg.BuildScript, item.Command, cfg.StepTimeout); err != nil {
		logging.Debugf("farm: particle %d: build failed: %v", item.UID, err)
		return math.MaxFloat64
	}
	if err := runStep(cfg.AccuracyTest, item.Command, cfg.StepTimeout); err != nil {
		logging.Debugf("farm: particle %d: accuracy test failed: %v", item.UID, err)
		return math.MaxFloat64
	}
	return runBenchmark(cfg.PerformanceTest, item.Command, cfg)
}

// runStep executes one prologue step (clean, build, accuracy-test) with
// the particle's flags exported as FLAGS. An empty script is treated as a
// no-op success, since config.Load does not require clean-script or
// accuracy-test.
func runStep(script, flags string, timeout time.Duration) error {
	if script == "" {
		return nil
	}
	_, err := RunCommand(flagsCommand(flags, script), timeout)
	return err
}

// runBenchmark repeats the performance-test script up to
// cfg.BenchmarkRepeats times, tracking wall-clock samples in window. From
// the sixth sample on (i > 4, 0-indexed) it checks whether the
// running standard deviation has settled inside the epsilon band and
// returns the mean early if so. If the repeat budget is exhausted without
// settling, a final in-band check decides between reporting the mean and
// reporting the abort sentinel.
func runBenchmark(script, flags string, cfg WorkerConfig) float64 {
	if script == "" {
		return math.MaxFloat64
	}
	cmd := flagsCommand(flags, script)
	window := make([]float64, 0, cfg.BenchmarkRepeats)

	for i := 0; i < cfg.BenchmarkRepeats; i++ {
		elapsed, err := RunCommand(cmd, cfg.BenchmarkTimeout)
		if err != nil {
			return math.MaxFloat64
		}
		window = append(window, elapsed.Seconds())

		if i > 4 {
			dev := stats.StdDev(window)
			band := stats.EpsilonBand(window, cfg.EpsilonPct)
			if dev <= band {
				return stats.Mean(window)
			}
		}
	}

	dev := stats.StdDev(window)
	band := stats.EpsilonBand(window, cfg.EpsilonPct)
	if dev > band {
		return math.MaxFloat64
	}
	return stats.Mean(window)
}

// flagsCommand builds the "FLAGS=<flags> <script>" shell line a prologue
// or benchmark step runs, matching spec.md's wire format for passing the
// rendered compiler flags to an external script.
func flagsCommand(flags, script string) string {
	return fmt.Sprintf("FLAGS=%q %s", flags, script)
}
