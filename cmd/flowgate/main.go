package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	v1 "github.com/flowgate-labs/flowgate/pkg/flowgate/v1"
	gateerrors "github.com/flowgate-labs/flowgate/pkg/flowgate/v1/errors"
	gatelog "github.com/flowgate-labs/flowgate/pkg/flowgate/v1/log"

	"github.com/flowgate-labs/flowgate/internal/config"
	"github.com/flowgate-labs/flowgate/internal/engine"
	"github.com/flowgate-labs/flowgate/internal/events"
	"github.com/flowgate-labs/flowgate/internal/flowreg"
	"github.com/flowgate-labs/flowgate/internal/logger"
	"github.com/flowgate-labs/flowgate/internal/metrics"
	"github.com/flowgate-labs/flowgate/internal/state"
	"github.com/flowgate-labs/flowgate/internal/tracing"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	_ "github.com/flowgate-labs/flowgate/flows/crunch"
	_ "github.com/flowgate-labs/flowgate/flows/seed"
	_ "github.com/flowgate-labs/flowgate/flows/watch"
)

const (
	ExitSuccess         = 0
	ExitFailure         = 1
	ExitUsageError      = 2
	ExitTimeout         = 124
	ExitSigIntBase      = 128
	ExitSigInt          = ExitSigIntBase + int(syscall.SIGINT)
	ExitSigTerm         = ExitSigIntBase + int(syscall.SIGTERM)
	DefaultLogLevel     = "info"
	DefaultLogFmt       = "text"
	DefaultEventBusSize = 256
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "validate" {
		runValidateCommand(os.Args[2:])
		return
	}
	if len(os.Args) == 2 && (os.Args[1] == "--version" || os.Args[1] == "-version") {
		printVersion()
		os.Exit(ExitSuccess)
	}
	exitCode := runExecuteCommand(os.Args[1:])
	os.Exit(exitCode)
}

func printVersion() {
	fmt.Printf("flowgate version %s\n", version)
	fmt.Printf("commit: %s\n", commit)
	fmt.Printf("built: %s\n", buildDate)
	fmt.Printf("go version: %s\n", runtime.Version())
	fmt.Printf("os/arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

func runValidateCommand(args []string) {
	validateFlags := flag.NewFlagSet("validate", flag.ExitOnError)
	scenarioPath := validateFlags.String("scenario", "", "Path to the scenario YAML file to validate (required)")
	logLevel := validateFlags.String("log-level", DefaultLogLevel, "Log level for validation output (debug, info, warn, error)")

	validateFlags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s validate -scenario <path> [flags...]\n\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "Validates the structure and schema compatibility of a flowgate scenario.")
		fmt.Fprintln(os.Stderr, "\nFlags:")
		validateFlags.PrintDefaults()
	}

	if err := validateFlags.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing validate flags: %v\n", err)
		os.Exit(ExitUsageError)
	}

	if *scenarioPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -scenario flag is required for validation")
		validateFlags.Usage()
		os.Exit(ExitUsageError)
	}

	log := logger.NewLogger(*logLevel, "text", os.Stderr)
	log.Infof("Validating scenario: %s", *scenarioPath)

	scenarioBytes, err := os.ReadFile(*scenarioPath)
	if err != nil {
		log.Errorf("Failed to read scenario file '%s': %v", *scenarioPath, err)
		os.Exit(ExitFailure)
	}

	_, err = config.LoadScenario(scenarioBytes, *scenarioPath)
	if err != nil {
		var validationErr *gateerrors.ValidationError
		var configErr *gateerrors.ConfigError
		if errors.As(err, &validationErr) {
			log.Errorf("Scenario validation failed:\n%s", validationErr.Error())
		} else if errors.As(err, &configErr) {
			log.Errorf("Scenario configuration error:\n%s", configErr.Error())
		} else {
			log.Errorf("Failed to load or validate scenario: %v", err)
		}
		os.Exit(ExitFailure)
	}

	log.Infof("Scenario validation successful: %s", *scenarioPath)
	os.Exit(ExitSuccess)
}

func runExecuteCommand(args []string) int {
	execFlags := flag.NewFlagSet("flowgate", flag.ExitOnError)
	scenarioPath := execFlags.String("scenario", "", "Path to the scenario YAML file (required)")
	logLevel := execFlags.String("log-level", DefaultLogLevel, "Log level (debug, info, warn, error)")
	logFormat := execFlags.String("log-format", DefaultLogFmt, "Log format (text, json)")
	cycleInterval := execFlags.Duration("cycle-interval", 0, "Host update loop period (overrides the scenario value)")
	serviceCap := execFlags.Int("service-cap", -1, "Max flows serviced per cycle, 0 for no cap (overrides the scenario value)")
	metricsListen := execFlags.String("metrics-listen", "", "Address to serve Prometheus metrics on (e.g. ':9090'); disabled when empty")
	versionFlag := execFlags.Bool("version", false, "Print version information and exit")

	execFlags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags...] -scenario <path>\n\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "Runs a flowgate scenario: starts its flows and drives the handoff loop.")
		fmt.Fprintln(os.Stderr, "\nFlags:")
		execFlags.PrintDefaults()
	}

	if err := execFlags.Parse(args); err != nil {
		return ExitUsageError
	}

	if *versionFlag {
		printVersion()
		return ExitSuccess
	}

	if *scenarioPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -scenario flag is required")
		execFlags.Usage()
		return ExitUsageError
	}
	if *logFormat != "text" && *logFormat != "json" {
		fmt.Fprintln(os.Stderr, "Error: -log-format must be 'text' or 'json'")
		return ExitUsageError
	}

	var logWriter io.Writer = os.Stderr
	log := logger.NewLogger(*logLevel, *logFormat, logWriter)
	log = log.With("flowgate_version", version)

	log.Infof("Flowgate v%s starting...", version)

	scenario, err := config.LoadScenarioFromFile(*scenarioPath)
	if err != nil {
		log.Errorf("Failed to load scenario '%s': %v", *scenarioPath, err)
		return ExitFailure
	}

	interval := scenario.GetCycleInterval()
	if *cycleInterval > 0 {
		interval = *cycleInterval
	}
	cap := scenario.GetServiceCap()
	if *serviceCap >= 0 {
		cap = *serviceCap
	}

	stateStore := state.NewMemoryStore()
	eventBus := events.NewChannelEventBus(DefaultEventBusSize, log)
	defer eventBus.Close()
	metricsProvider := metrics.NewPrometheusRegistryProvider()
	tracerProvider, err := tracing.NewProviderFromEnv(context.Background())
	if err != nil {
		log.Warnf("Failed to initialize tracing from environment: %v. Using NoOp tracer.", err)
		tracerProvider, _ = tracing.NewNoOpProvider()
	}

	hostOpts := []v1.HostOption{
		v1.WithStateStore(stateStore),
		v1.WithEventBus(eventBus),
		v1.WithMetricsRegistryProvider(metricsProvider),
		v1.WithTracerProvider(tracerProvider),
		v1.WithServiceCap(cap),
	}

	host, err := engine.NewHost(log, hostOpts...)
	if err != nil {
		log.Errorf("Failed to create flowgate host: %v", err)
		return ExitFailure
	}

	if *metricsListen != "" {
		startMetricsServer(*metricsListen, metricsProvider, log)
	}

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	defer close(sigChan)

	var receivedSignal os.Signal
	var sigMu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case sig := <-sigChan:
			log.Warnf("Received signal: %v. Initiating graceful shutdown...", sig)
			sigMu.Lock()
			receivedSignal = sig
			sigMu.Unlock()
			cancelRun()
		case <-runCtx.Done():
			log.Debugf("Signal handler exiting because run context is done.")
		}
	}()
	defer wg.Wait()

	log.Infof("Running scenario '%s' (%d flows, cycle interval %v)", scenario.Name, len(scenario.Flows), interval)
	execErr := runScenario(runCtx, host, scenario, interval, log)

	closeCtx, cancelClose := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelClose()
	if closeErr := host.Close(closeCtx); closeErr != nil {
		log.Warnf("Error closing host: %v", closeErr)
	}
	if shutdownErr := tracerProvider.Shutdown(closeCtx); shutdownErr != nil {
		log.Warnf("Error shutting down tracer provider: %v", shutdownErr)
	}

	report := host.Report()
	printReportSummary(log, scenario.Name, report, execErr)

	sigMu.Lock()
	finalSignal := receivedSignal
	sigMu.Unlock()
	return determineExitCode(report, execErr, finalSignal, log)
}

// runScenario seeds the store, starts the scenario's flows, and drives the
// handoff loop on a ticker until every flow is terminal, the cycle bound is
// exhausted, or the run context is cancelled.
func runScenario(ctx context.Context, host *engine.Host, scenario *config.Scenario, interval time.Duration, log gatelog.Logger) error {
	if err := host.SeedVars(scenario.Vars); err != nil {
		return fmt.Errorf("failed to seed scenario vars: %w", err)
	}

	for i := range scenario.Flows {
		spec := &scenario.Flows[i]
		factory, err := flowreg.DefaultCatalog.Get(spec.Type)
		if err != nil {
			return fmt.Errorf("flow '%s': %w", spec.InternalID, err)
		}
		body, err := factory(spec.Params)
		if err != nil {
			return fmt.Errorf("flow '%s': %w", spec.InternalID, err)
		}
		if _, err := host.StartFlow(ctx, spec.InternalID, body); err != nil {
			return fmt.Errorf("flow '%s': %w", spec.InternalID, err)
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	maxCycles := scenario.GetMaxCycles()
	cycles := 0

	for host.ActiveFlows() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := host.ServiceAccess(ctx); err != nil {
				return err
			}
			cycles++
			if maxCycles > 0 && cycles >= maxCycles && host.ActiveFlows() > 0 {
				return fmt.Errorf("scenario stalled: %d flow(s) still active after %d cycles", host.ActiveFlows(), cycles)
			}
		}
	}

	log.Infof("All flows finished after %d cycles", cycles)
	return nil
}

// startMetricsServer exposes the host's Prometheus registry over HTTP.
func startMetricsServer(addr string, provider *metrics.PrometheusRegistryProvider, log gatelog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(provider.Registry(), promhttp.HandlerOpts{}))
	go func() {
		log.Infof("Serving metrics on %s/metrics", addr)
		if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warnf("Metrics server stopped: %v", err)
		}
	}()
}

func printReportSummary(log gatelog.Logger, scenarioName string, report *v1.Report, execErr error) {
	if report == nil {
		log.Warnf("Run finished but no report was generated.")
		if execErr != nil {
			logExecutionErrorReason(log, execErr)
		}
		return
	}

	status := "Completed"
	if report.FailedFlows > 0 || execErr != nil {
		status = "Failed"
	}
	statusLine := fmt.Sprintf("Scenario '%s' finished. Status: %s", scenarioName, status)
	summaryLine := fmt.Sprintf("Flows: Total=%d, Completed=%d, Failed=%d, Unfinished=%d",
		report.TotalFlows, report.CompletedFlows, report.FailedFlows, report.ActiveFlows)

	if status == "Failed" {
		log.Errorf("%s. %s", statusLine, summaryLine)
		if execErr != nil {
			logExecutionErrorReason(log, execErr)
		}
		logFailedFlows(log, report)
	} else {
		log.Infof("%s. %s", statusLine, summaryLine)
	}
}

func logExecutionErrorReason(log gatelog.Logger, execErr error) {
	if errors.Is(execErr, context.Canceled) {
		log.Warnf("Run Reason: Cancelled.")
	} else if errors.Is(execErr, context.DeadlineExceeded) {
		log.Errorf("Run Reason: Timeout.")
	} else {
		log.Errorf("Run Error: %v", execErr)
	}
}

func logFailedFlows(log gatelog.Logger, report *v1.Report) {
	if report.FailedFlows > 0 {
		log.Warnf("Failed Flow Details:")
		for id, result := range report.FlowResults {
			if result.Status == "Failed" {
				log.Errorf("  - Flow '%s' (%s): %s", result.Name, id, result.Error)
			}
		}
	}
}

func determineExitCode(report *v1.Report, execErr error, sig os.Signal, log gatelog.Logger) int {
	exitCode := ExitSuccess

	if execErr != nil {
		exitCode = ExitFailure
		if errors.Is(execErr, context.Canceled) && sig != nil {
			switch sig {
			case syscall.SIGINT:
				exitCode = ExitSigInt
				log.Warnf("Scenario run interrupted by signal: SIGINT")
			case syscall.SIGTERM:
				exitCode = ExitSigTerm
				log.Warnf("Scenario run terminated by signal: SIGTERM")
			default:
				log.Warnf("Scenario run terminated by signal: %v", sig)
			}
		} else if errors.Is(execErr, context.DeadlineExceeded) {
			exitCode = ExitTimeout
			log.Errorf("Scenario run timed out.")
		}
	} else if report != nil && report.FailedFlows > 0 {
		log.Errorf("Scenario finished but %d flow(s) failed.", report.FailedFlows)
		exitCode = ExitFailure
	} else {
		log.Infof("Scenario completed successfully.")
		exitCode = ExitSuccess
	}
	return exitCode
}
