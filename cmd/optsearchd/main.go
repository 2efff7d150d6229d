// Command optsearchd runs one process of a distributed compiler-flag
// auto-tuner: either the master, which owns the SPSO search and the task
// farm's work queue, or a worker, which dials a master and evaluates
// flag combinations it is handed.
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/j-r-jones/optsearch/config"
	"github.com/j-r-jones/optsearch/dashboard"
	"github.com/j-r-jones/optsearch/farm"
	"github.com/j-r-jones/optsearch/logging"
	"github.com/j-r-jones/optsearch/optimiser"
	"github.com/j-r-jones/optsearch/rng"
	"github.com/j-r-jones/optsearch/spso"
	"github.com/j-r-jones/optsearch/store"
)

const version = "0.1.0"

func main() {
	log.SetFlags(0)

	var (
		conf          string
		out           string
		debug         bool
		verbose       bool
		showVersion   bool
		role          string
		addr          string
		maxIdle       time.Duration
		dashboardAddr string
		storePath     string
	)

	fs := pflag.NewFlagSet("optsearchd", pflag.ExitOnError)
	fs.StringVarP(&conf, "conf", "c", "", "path to configuration file (required on master)")
	fs.StringVarP(&out, "out", "o", "", "log output file; a -<role>-<id> suffix is appended")
	fs.BoolVarP(&debug, "debug", "d", false, "lower log level to debug")
	fs.BoolVarP(&verbose, "verbose", "v", false, "enable all logging")
	fs.BoolVarP(&showVersion, "version", "V", false, "print version and exit")
	fs.StringVar(&role, "role", "master", "process role: master or worker")
	fs.StringVar(&addr, "addr", "127.0.0.1:4242", "master listen address (master) or dial address (worker)")
	fs.DurationVar(&maxIdle, "max-idle", 0, "worker self-shutdown after this much idle time (0 disables)")
	fs.StringVar(&dashboardAddr, "dashboard-addr", "", "master dashboard listen address (empty disables)")
	fs.StringVar(&storePath, "store", "optsearch.sqlite", "path to the durable SQLite store (master only)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: optsearchd [OPTION]...\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(os.Args[1:]); err != nil {
		log.Fatal(err)
	}

	if showVersion {
		fmt.Println(version)
		return
	}

	if out != "" {
		logf, err := openLogFile(out, role)
		if err != nil {
			log.Fatal(err)
		}
		defer logf.Close()
		log.SetOutput(logf)
	}
	if debug || verbose {
		logging.SetLevel(logging.Debug)
	}

	var err error
	switch role {
	case "master":
		err = runMaster(conf, addr, dashboardAddr, storePath)
	case "worker":
		err = runWorker(conf, addr, maxIdle)
	default:
		log.Fatalf("optsearchd: unknown role %q (want master or worker)", role)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func openLogFile(out, role string) (*os.File, error) {
	path := fmt.Sprintf("%s-%s-0", out, role)
	return os.Create(path)
}

func runMaster(confPath, addr, dashboardAddr, storePath string) error {
	if confPath == "" {
		return fmt.Errorf("optsearchd: --conf is required for role master")
	}
	cfg, err := config.Load(confPath)
	if err != nil {
		return err
	}

	flags := buildFlags(cfg)
	dims := make([]spso.Dimension, len(flags))
	for i, f := range flags {
		dims[i] = optimiser.FlagToDimension(f)
	}

	st, err := store.Open(storePath, dims)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.VerifyDimensions(dims); err != nil {
		return err
	}

	rngSrc, err := openRNG(st)
	if err != nil {
		return err
	}

	// ctx is forward-declared so the master's result callback and the
	// engine's fitness callback can close over it before it exists; both
	// closures only fire after NewContext has filled it in below.
	var ctx *optimiser.Context

	master := farm.NewMaster(func(uid int, fitness float64, wasCached bool) {
		if err := ctx.ReportFitness(uid, fitness, wasCached); err != nil {
			logging.Errorf("optsearchd: report fitness: %v", err)
		}
	})

	engine, err := buildEngine(st, dims, func(uid int) {
		if err := ctx.AddToFitnessQueue(uid); err != nil {
			logging.Errorf("optsearchd: add to fitness queue: %v", err)
		}
	}, cfg, rngSrc)
	if err != nil {
		return err
	}

	ctx = optimiser.NewContext(rngSrc, st, engine, flags, master)

	stopCh := make(chan os.Signal, 1)
	sigs := []os.Signal{os.Interrupt, syscall.SIGCONT}
	if cfg.QuitSignal != "" {
		sig, ok := namedSignal(cfg.QuitSignal)
		if !ok {
			return fmt.Errorf("optsearchd: quit-signal %q not recognized", cfg.QuitSignal)
		}
		sigs = append(sigs, sig)
	}
	signal.Notify(stopCh, sigs...)
	go func() {
		<-stopCh
		logging.Infof("optsearchd: signal received, stopping search")
		engine.Stop()
		master.Stop()
	}()

	var hist *dashboard.History
	var g errgroup.Group
	if dashboardAddr != "" {
		var herr error
		hist, herr = dashboard.OpenHistory("")
		if herr != nil {
			return herr
		}
		defer hist.Close()
		master.SetRecorder(func(ci farm.CompletedItem) {
			entry := dashboard.Entry{
				UID:      ci.UID,
				Command:  ci.Command,
				Fitness:  ci.Fitness,
				Worker:   string(ci.Worker),
				Elapsed:  ci.Elapsed,
				Finished: time.Now(),
			}
			if err := hist.Record(entry); err != nil {
				logging.Warnf("optsearchd: record history: %v", err)
			}
		})
		g.Go(func() error {
			return dashboard.ListenAndServe(dashboardAddr, master, hist)
		})
	}
	g.Go(func() error {
		return master.ListenAndServe(addr)
	})

	go waitForWorkerThenStart(master, engine)

	return g.Wait()
}

// waitForWorkerThenStart blocks until at least one worker has registered,
// per spec.md's "fewer than two total processes is fatal" rule translated
// to this Go realization's explicit registration handshake, then enqueues
// the initial fitness evaluations for the whole swarm.
func waitForWorkerThenStart(master *farm.Master, engine *spso.Engine) {
	for {
		if len(master.Status().Workers) > 0 {
			engine.Start()
			return
		}
		time.Sleep(500 * time.Millisecond)
	}
}

func runWorker(confPath, addr string, maxIdle time.Duration) error {
	if confPath == "" {
		return fmt.Errorf("optsearchd: --conf is required for role worker")
	}
	cfg, err := config.Load(confPath)
	if err != nil {
		return err
	}

	wcfg := farm.WorkerConfig{
		CleanScript:      cfg.CleanScript,
		BuildScript:      cfg.BuildScript,
		AccuracyTest:     cfg.AccuracyTest,
		PerformanceTest:  cfg.PerformanceTest,
		StepTimeout:      cfg.Timeout,
		BenchmarkTimeout: cfg.BenchmarkTimeout,
		BenchmarkRepeats: cfg.Repeats(),
		EpsilonPct:       cfg.Epsilon,
		MaxIdle:          maxIdle,
	}
	return farm.RunWorker(addr, wcfg)
}

func buildFlags(cfg *config.Config) []optimiser.Flag {
	flags := make([]optimiser.Flag, len(cfg.Compiler.Flags))
	for i, rec := range cfg.Compiler.Flags {
		f := optimiser.Flag{
			UID:          int64(i),
			Name:         rec.Name,
			Prefix:       rec.Prefix,
			NegPrefix:    rec.OffPrefix,
			Separator:    rec.Separator,
			Values:       rec.Values,
			Min:          rec.Min,
			Max:          rec.Max,
			Default:      rec.Default,
			DependsOn:    rec.DependsOn,
			DependedOnBy: rec.DependedOnBy,
		}
		switch rec.Type {
		case "on-off":
			f.Kind = optimiser.OnOff
		case "list":
			f.Kind = optimiser.List
		case "range":
			f.Kind = optimiser.Range
		}
		flags[i] = f
	}
	return flags
}

func openRNG(st *store.Store) (*rng.Source, error) {
	seed, err := st.PRNGSeedWords()
	if err != nil {
		return nil, err
	}
	if seed == ([16]uint32{}) {
		seed, err = rng.GenerateSeed()
		if err != nil {
			return nil, err
		}
		if err := st.SetPRNGSeedWords(seed); err != nil {
			return nil, err
		}
	}
	return rng.New(seed), nil
}

func buildEngine(st *store.Store, dims []spso.Dimension, fitness spso.FitnessFunc, cfg *config.Config, r *rng.Source) (*spso.Engine, error) {
	n, err := st.ParticleCount()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return spso.New(dims, fitness, cfg.Epsilon, nil, r), nil
	}

	swarm, err := st.LoadSwarm()
	if err != nil {
		return nil, err
	}
	bestPosID, err := st.BestPos()
	if err != nil {
		return nil, err
	}
	bestPos, _, _, err := st.PositionByID(bestPosID)
	if err != nil {
		return nil, err
	}
	currBest, err := st.CurrBest()
	if err != nil {
		return nil, err
	}
	prevBest, err := st.PrevBest()
	if err != nil {
		return nil, err
	}
	prevPrevBest, err := st.PrevPrevBest()
	if err != nil {
		return nil, err
	}
	noMove, err := st.NoMovementCounter()
	if err != nil {
		return nil, err
	}

	return spso.NewFromPrevious(dims, swarm, fitness, cfg.Epsilon, nil, r, bestPos, currBest, prevBest, prevPrevBest, noMove), nil
}

// namedSignal resolves a configured quit-signal name to an os.Signal. The
// SIG prefix is optional, so "USR1" and "SIGUSR1" both match.
func namedSignal(name string) (os.Signal, bool) {
	name = strings.ToUpper(name)
	if !strings.HasPrefix(name, "SIG") {
		name = "SIG" + name
	}
	switch name {
	case "SIGTERM":
		return syscall.SIGTERM, true
	case "SIGINT":
		return syscall.SIGINT, true
	case "SIGHUP":
		return syscall.SIGHUP, true
	case "SIGQUIT":
		return syscall.SIGQUIT, true
	case "SIGUSR1":
		return syscall.SIGUSR1, true
	case "SIGUSR2":
		return syscall.SIGUSR2, true
	case "SIGSTOP":
		return syscall.SIGSTOP, true
	case "SIGCONT":
		return syscall.SIGCONT, true
	default:
		return nil, false
	}
}
