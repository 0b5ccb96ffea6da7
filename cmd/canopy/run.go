package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/skalene/canopy/internal/config"
	"github.com/skalene/canopy/internal/engine"
	"github.com/skalene/canopy/internal/inference"
	"github.com/skalene/canopy/internal/metrics"
	"github.com/skalene/canopy/internal/mission"
	"github.com/skalene/canopy/internal/pool"
	"github.com/skalene/canopy/internal/sink"
	"github.com/skalene/canopy/internal/tui"
)

var (
	runHeadless bool
	runNoStore  bool
	runBedrock  bool
)

var runCmd = &cobra.Command{
	Use:   "run <mission.yaml>",
	Short: "Run a mission",
	Long: `Run a mission described by a YAML spec.

The mission is decomposed into one task per worker (plus a coordination
fan-in when the mission spans more than two workers), layered into
dependency-ordered waves, and executed in parallel under resource
admission. Progress streams to the TUI; pass --headless for plain
output.

Operator controls while a mission runs:
  touch .canopy/signals/pause   hold new admissions
  rm    .canopy/signals/pause   resume
  touch .canopy/signals/abort   cancel the mission`,
	Args: cobra.ExactArgs(1),
	RunE: runMission,
}

func init() {
	runCmd.Flags().BoolVar(&runHeadless, "headless", false, "Run without TUI (plain output)")
	runCmd.Flags().BoolVar(&runNoStore, "no-store", false, "Skip mission persistence")
	runCmd.Flags().BoolVar(&runBedrock, "bedrock", false, "Route inference through AWS Bedrock")
}

func runMission(cmd *cobra.Command, args []string) error {
	spec, err := mission.Load(args[0])
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if runBedrock {
		cfg.Anthropic.UseBedrock = true
	}

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	client, err := inference.NewClient(inference.ClientConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		APIKey:        cfg.Anthropic.APIKey,
		UseAWSBedrock: cfg.Anthropic.UseBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	})
	if err != nil {
		return err
	}

	logger := engine.NewDebugLoggerForDir(cwd)
	defer logger.Close()

	control, err := engine.NewControlWatcher(cwd)
	if err != nil {
		return fmt.Errorf("create control watcher: %w", err)
	}
	defer control.Close()
	control.ClearSignals()

	var missionSink sink.Sink = sink.NopSink{}
	if !runNoStore {
		s, err := sink.Open(sink.ProjectPath(cwd))
		if err != nil {
			return fmt.Errorf("open mission store: %w", err)
		}
		defer s.Close()
		missionSink = s
	}

	var store engine.DurationStore
	if !runNoStore {
		m, err := metrics.Open(metrics.DefaultPath(cwd))
		if err != nil {
			return fmt.Errorf("open metrics store: %w", err)
		}
		defer m.Close()
		store = m
	}

	eng := engine.New(
		engine.RequiredConfig{
			Pool: pool.New(pool.Config{
				MaxConcurrentTasks: cfg.Pool.MaxConcurrentTasks,
				MaxCallsPerWindow:  cfg.Pool.MaxCallsPerWindow,
				WindowLength:       cfg.Pool.WindowLength,
				MaxMemoryFraction:  cfg.Pool.MaxMemoryFraction,
			}),
			Executor: inference.NewExecutor(client, cfg.Anthropic.Temperature),
		},
		engine.WithLogger(logger),
		engine.WithControlWatcher(control),
		engine.WithSink(missionSink),
		engine.WithMonitor(engine.NewPerformanceMonitor(store, logger)),
		engine.WithEventBuffer(cfg.Scheduler.EventBuffer),
	)

	// Mission specs may omit task_timeout; the scheduler config then
	// supplies it.
	if spec.TaskTimeout == 0 && cfg.Scheduler.TaskTimeout > 0 {
		spec.TaskTimeout = mission.Duration(cfg.Scheduler.TaskTimeout)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if runHeadless {
		return runPlain(ctx, eng, spec, client)
	}
	return runWithTUI(ctx, eng, spec, client)
}

// runPlain executes the mission with line-oriented output.
func runPlain(ctx context.Context, eng *engine.Engine, spec *mission.Spec, client *inference.Client) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range eng.Events() {
			printEvent(ev)
		}
	}()

	report, err := eng.Run(ctx, spec)
	<-done
	if report != nil {
		printReport(report, client)
	}
	return err
}

func printEvent(ev engine.Event) {
	switch ev.Type {
	case engine.EventTaskCompleted:
		color.Green("  done   %s (%s)", ev.WorkerID, ev.Duration.Round(time.Millisecond))
	case engine.EventTaskFailed:
		color.Red("  failed %s: %v", ev.WorkerID, ev.Error)
	case engine.EventTaskCancelled:
		color.Yellow("  cancelled %s: %s", ev.WorkerID, ev.Message)
	case engine.EventTaskQueued:
		fmt.Printf("  queued %s\n", ev.WorkerID)
	case engine.EventWaveStarted:
		color.Cyan("wave %d: %s", ev.Wave+1, ev.Message)
	case engine.EventCycleFallback:
		color.Yellow("warning: %s", ev.Message)
	}
}

func printReport(report *engine.MissionReport, client *inference.Client) {
	fmt.Println()
	color.Cyan("mission %s: %d completed, %d failed, %d cancelled in %s",
		report.MissionID, report.Completed, report.Failed, report.Cancelled,
		report.Duration.Round(time.Millisecond))

	in, out := client.Tracker().Total()
	if calls := client.Tracker().Calls(); calls > 0 {
		fmt.Printf("inference: %d calls, %d in / %d out tokens\n", calls, in, out)
	}

	if answer, ok := report.Synthesis["answer"].(string); ok {
		fmt.Println()
		fmt.Println(answer)
	}
}

// runWithTUI executes the mission behind the bubbletea display.
func runWithTUI(ctx context.Context, eng *engine.Engine, spec *mission.Spec, client *inference.Client) error {
	program, _ := tui.NewProgram(spec.Objective)

	go tui.ForwardEvents(program, eng.Events())

	runDone := make(chan error, 1)
	var report *engine.MissionReport
	go func() {
		var err error
		report, err = eng.Run(ctx, spec)
		if err != nil {
			program.Send(tui.MissionDoneMsg{Success: false, Message: err.Error()})
		} else {
			program.Send(tui.MissionDoneMsg{Success: true})
		}
		runDone <- err
	}()

	if _, err := program.Run(); err != nil {
		return err
	}
	err := <-runDone
	if report != nil {
		printReport(report, client)
	}
	return err
}
