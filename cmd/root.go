package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kernsim/kernsim/kern"
)

var (
	logLevel     string // log verbosity level
	tuningPath   string // scheduler tuning YAML (empty = defaults)
	scenarioPath string // scenario YAML (empty = built-in or random)
	seed         int64  // seed for random scenario generation
	numThreads   int    // >0 generates a random scenario instead of the default
	horizon      int64  // simulation horizon in ticks
	showTrace    bool   // print the diagnostic trace after the run
	dumpQueues   bool   // print remaining ready-queue contents after the run
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "kernsim",
	Short: "MLFQ kernel scheduler with a discrete-event machine simulator",
}

// buildScenario resolves the scenario source: an explicit file wins, then a
// random workload if --threads is set, then the built-in default.
func buildScenario() (*kern.Scenario, error) {
	if scenarioPath != "" {
		return kern.LoadScenario(scenarioPath)
	}
	if numThreads > 0 {
		return kern.RandomScenario(seed, numThreads, horizon), nil
	}
	sc := kern.DefaultScenario()
	if horizon > 0 {
		sc.Horizon = horizon
	}
	return sc, nil
}

// runCmd executes a scenario through the scheduler
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a scheduling scenario",
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q", logLevel)
		}
		logrus.SetLevel(level)

		tuning, err := kern.LoadTuning(tuningPath)
		if err != nil {
			return err
		}
		sc, err := buildScenario()
		if err != nil {
			return err
		}

		logrus.Infof("scenario %q: %d threads, horizon=%d ticks, timer every %d ticks",
			sc.Name, len(sc.Threads), sc.Horizon, sc.TimerInterval)

		sim, err := kern.NewSimulator(tuning, sc)
		if err != nil {
			return err
		}
		sim.Run()

		fmt.Print(sim.Metrics.Summary())
		if dumpQueues {
			fmt.Print(sim.Sched.Dump())
		}
		if showTrace {
			for _, r := range sim.Trace.Records() {
				fmt.Printf("tick %07d thread %d %s L%d\n", r.Tick, r.ThreadID, r.Kind, r.Level)
			}
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	runCmd.Flags().StringVar(&tuningPath, "tuning", "", "Path to scheduler tuning YAML")
	runCmd.Flags().StringVar(&scenarioPath, "scenario", "", "Path to scenario YAML")
	runCmd.Flags().Int64Var(&seed, "seed", 42, "Seed for random scenario generation")
	runCmd.Flags().IntVar(&numThreads, "threads", 0, "Generate a random scenario with this many threads")
	runCmd.Flags().Int64Var(&horizon, "horizon", 0, "Override the simulation horizon in ticks")
	runCmd.Flags().BoolVar(&showTrace, "trace", false, "Print the diagnostic trace after the run")
	runCmd.Flags().BoolVar(&dumpQueues, "dump-queues", false, "Print remaining ready-queue contents after the run")
	rootCmd.AddCommand(runCmd)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
