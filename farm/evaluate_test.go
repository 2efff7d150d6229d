package farm

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestPrologueShortCircuit grounds scenario 4: build fails, so
// accuracy-test and performance-test must never run, and the reported
// fitness is the abort sentinel.
func TestPrologueShortCircuit(t *testing.T) {
	dir := t.TempDir()
	sentinel := filepath.Join(dir, "should-not-exist")

	cfg := WorkerConfig{
		CleanScript:      "true",
		BuildScript:      "false",
		AccuracyTest:     fmt.Sprintf("touch %s", sentinel),
		PerformanceTest:  fmt.Sprintf("touch %s", sentinel),
		StepTimeout:      time.Second,
		BenchmarkTimeout: time.Second,
		BenchmarkRepeats: 6,
		EpsilonPct:       1,
	}

	fitness := evaluate(WorkItem{UID: 0, Command: "-O2"}, cfg)
	if fitness != math.MaxFloat64 {
		t.Fatalf("fitness = %v, want MaxFloat64 after failed build", fitness)
	}
	if _, err := os.Stat(sentinel); err == nil {
		t.Fatal("accuracy-test or performance-test ran after a failed build")
	}
}

// TestBenchmarkEarlyStop grounds scenario 5: a benchmark script whose
// successive wall-clock samples settle inside the epsilon band by the 6th
// repeat must stop early at 6 samples rather than running the full repeat
// budget.
func TestBenchmarkEarlyStop(t *testing.T) {
	samples := []time.Duration{
		10 * time.Millisecond,
		11 * time.Millisecond,
		9 * time.Millisecond,
		10 * time.Millisecond,
		10 * time.Millisecond,
		11 * time.Millisecond,
		500 * time.Millisecond, // must never be reached
	}
	script := fakeSleepScript(t, samples)

	cfg := WorkerConfig{
		PerformanceTest:  script,
		BenchmarkTimeout: 2 * time.Second,
		BenchmarkRepeats: len(samples),
		EpsilonPct:       50, // generous band, settles quickly
	}

	start := time.Now()
	fitness := runBenchmark(cfg.PerformanceTest, "-O2", cfg)
	elapsed := time.Since(start)

	if fitness == math.MaxFloat64 {
		t.Fatal("runBenchmark reported abort sentinel, want a settled mean")
	}
	if elapsed > 400*time.Millisecond {
		t.Fatalf("runBenchmark took %s, looks like it ran past the 6th sample", elapsed)
	}
}

// TestBenchmarkAbortOnNonZeroExit grounds the abort path: any non-zero
// exit during the benchmark collapses the fitness to the sentinel,
// regardless of how many samples were already collected.
func TestBenchmarkAbortOnNonZeroExit(t *testing.T) {
	cfg := WorkerConfig{
		PerformanceTest:  "false",
		BenchmarkTimeout: time.Second,
		BenchmarkRepeats: 6,
		EpsilonPct:       1,
	}
	fitness := runBenchmark(cfg.PerformanceTest, "-O2", cfg)
	if fitness != math.MaxFloat64 {
		t.Fatalf("fitness = %v, want MaxFloat64 on non-zero exit", fitness)
	}
}

// fakeSleepScript writes a shell script that sleeps for the Nth configured
// duration on its Nth invocation, driven by a counter file, so repeated
// RunCommand calls return controlled elapsed times.
func fakeSleepScript(t *testing.T, samples []time.Duration) string {
	t.Helper()
	dir := t.TempDir()
	counter := filepath.Join(dir, "count")
	if err := os.WriteFile(counter, []byte("0"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	script := "#!/bin/sh\n"
	script += fmt.Sprintf("n=$(cat %q)\n", counter)
	script += fmt.Sprintf("echo $((n+1)) > %q\n", counter)
	for i, d := range samples {
		script += fmt.Sprintf("if [ \"$n\" -eq %d ]; then sleep %f; fi\n", i, d.Seconds())
	}
	script += "exit 0\n"

	path := filepath.Join(dir, "bench.sh")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}
